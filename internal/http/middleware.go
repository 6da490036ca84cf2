package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"coglex/internal/domain"
	"coglex/internal/service"
)

const (
	apiKeyHeader     = "X-API-Key"
	sessionKey       = "session"
	sessionCookieKey = "session_cookie"
	authClaimsKey    = "auth_claims"
	authIdentityKey  = "auth_identity"
	collectionParam  = "collection"
	bearerPrefix     = "bearer "
)

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// apiKeyMiddleware exige el header X-API-Key con la clave del servidor.
func apiKeyMiddleware(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(apiKeyHeader)
		if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

type cookieSpec struct {
	name   string
	ttl    time.Duration
	secure bool
}

func (sc cookieSpec) write(c *gin.Context, id string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sc.name, id, int(sc.ttl.Seconds()), "/", "", sc.secure, true)
}

// sessionMiddleware carga la sesión del servidor indicada por la cookie y la persiste
// al terminar el handler si cambió. Ids que el store no conoce se reemplazan por uno nuevo.
func sessionMiddleware(logger *zap.Logger, store service.SessionStore, cookie string, ttl time.Duration, secure bool) gin.HandlerFunc {
	sc := cookieSpec{name: cookie, ttl: ttl, secure: secure}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		var sess *domain.Session
		if id, err := c.Cookie(cookie); err == nil && uuid.Validate(id) == nil {
			sess, err = store.Load(ctx, id)
			if err != nil && !errors.Is(err, service.ErrSessionNotFound) {
				logger.Error("load session failed", zap.Error(err))
			}
		}
		stored := sess != nil
		if !stored {
			sess = domain.NewSession(uuid.NewString())
			sc.write(c, sess.ID)
		}
		before := sess.Clone()
		c.Set(sessionKey, sess)
		c.Set(sessionCookieKey, sc)

		c.Next()

		var err error
		if stored && sess.ID != before.ID {
			if err = store.Delete(ctx, before.ID); err != nil {
				logger.Error("delete rotated session failed", zap.Error(err))
			}
		}
		if sess.Equal(before) {
			return
		}
		switch {
		case !sess.Empty():
			err = store.Save(ctx, sess, ttl)
		case stored && sess.ID == before.ID:
			err = store.Delete(ctx, sess.ID)
		default:
			return
		}
		if err != nil {
			logger.Error("persist session failed", zap.Error(err))
		}
	}
}

// rotateSession asigna un id nuevo a la sesión del request y reescribe la cookie.
// El id anterior se descarta al persistir.
func rotateSession(c *gin.Context) {
	sess := GetSession(c)
	val, ok := c.Get(sessionCookieKey)
	if sess == nil || !ok {
		return
	}
	sc, ok := val.(cookieSpec)
	if !ok {
		return
	}
	sess.ID = uuid.NewString()
	sc.write(c, sess.ID)
}

// GetSession obtiene la sesión del request cargada por sessionMiddleware.
func GetSession(c *gin.Context) *domain.Session {
	if val, ok := c.Get(sessionKey); ok {
		if sess, ok := val.(*domain.Session); ok {
			return sess
		}
	}
	return nil
}

// authenticatedMiddleware valida el token bearer o el de la sesión para la colección de la ruta
// y revalida la identidad contra el store.
func authenticatedMiddleware(logger *zap.Logger, auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		collection := c.Param(collectionParam)
		token := bearerToken(c)
		if token == "" {
			token, _ = auth.Session(GetSession(c), collection)
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, identity, err := auth.Verify(c.Request.Context(), collection, token)
		if err != nil {
			if errors.Is(err, service.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			logger.Error("verify session failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.Set(authClaimsKey, claims)
		c.Set(authIdentityKey, identity)
		c.Next()
	}
}

// GetAuthClaims obtiene los claims verificados desde el contexto.
func GetAuthClaims(c *gin.Context) (domain.SessionClaims, bool) {
	val, ok := c.Get(authClaimsKey)
	if !ok {
		return domain.SessionClaims{}, false
	}
	claims, ok := val.(domain.SessionClaims)
	return claims, ok
}

func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}
