package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"coglex/internal/service"
)

// RouterConfig agrupa los parámetros de borde del router.
type RouterConfig struct {
	APIKey        string
	SessionCookie string
	SessionTTL    time.Duration
	SecureCookie  bool
}

// RouterDeps son los handlers montados por NewRouter. Los nil no se registran.
type RouterDeps struct {
	Sessions   service.SessionStore
	Auth       *AuthHandler
	Storage    *StorageHandler
	Archive    *ArchiveHandler
	Payment    *PaymentHandler
	Generation *GenerationHandler
	Execution  *ExecutionHandler
}

// NewRouter configura el router de Gin con middlewares y rutas de servicio.
func NewRouter(logger *zap.Logger, cfg RouterConfig, deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(zapLoggerMiddleware(logger), gin.Recovery())

	protected := apiKeyMiddleware(cfg.APIKey)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if h := deps.Auth; h != nil {
		sessions := deps.Sessions
		if sessions == nil {
			sessions = service.NewMemorySessionStore()
		}
		auth := r.Group("/service/auth/v1", sessionMiddleware(logger, sessions, cfg.SessionCookie, cfg.SessionTTL, cfg.SecureCookie))
		auth.POST("/signup/:collection", protected, h.Signup)
		auth.POST("/signin/:collection", protected, h.Signin)
		auth.GET("/session/:collection", protected, h.Session)
		auth.GET("/signout/:collection", h.Signout)
		auth.GET("/profile/:collection", protected, h.Authenticated(), h.Profile)
		auth.PATCH("/profile/:collection", protected, h.Authenticated(), h.UpdateProfile)
		auth.POST("/passcode/:collection", protected, h.Passcode)
		auth.POST("/passcode/:collection/verify", protected, h.VerifyPasscode)
		// El navegador llega sin X-API-Key. El state firmado debe coincidir con el nonce de la
		// sesión y la colección con OAUTH_COLLECTIONS.
		auth.GET("/oauth/:provider/authorize", h.OAuthAuthorize)
		auth.GET("/oauth/:provider/callback", h.OAuthCallback)
	}

	if h := deps.Storage; h != nil {
		storage := r.Group("/service/storage/v1", protected)
		storage.POST("/:collection/aggregate", h.Aggregate)
		storage.GET("/:collection/:id", h.FindOne)
		storage.GET("/:collection", h.FindMany)
		storage.POST("/:collection", h.Insert)
		storage.PATCH("/:collection/:id", h.PatchOne)
		storage.PATCH("/:collection", h.PatchMany)
		storage.DELETE("/:collection/:id", h.DeleteOne)
		storage.DELETE("/:collection", h.DeleteMany)
	}

	if h := deps.Archive; h != nil {
		archive := r.Group("/service/archive/v1", protected)
		archive.GET("", h.List)
		archive.POST("", h.Upload)
		archive.GET("/:id", h.Download)
		archive.DELETE("/:id", h.Delete)
	}

	if h := deps.Payment; h != nil {
		payment := r.Group("/service/payment/v1")
		payment.POST("/checkout", protected, h.Checkout)
		payment.POST("/subscription", protected, h.Subscription)
		// Stripe firma el body; no puede enviar X-API-Key.
		payment.POST("/webhook", h.Webhook)
	}

	if h := deps.Generation; h != nil {
		r.POST("/service/generation/v1/converse", protected, h.Converse)
	}

	if h := deps.Execution; h != nil {
		r.POST("/service/execution/v1/execute/:function", protected, h.Execute)
	}

	return r
}
