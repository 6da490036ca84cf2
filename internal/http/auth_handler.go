package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"coglex/internal/domain"
	"coglex/internal/email"
	"coglex/internal/service"
)

// AuthHandler mantiene dependencias para los endpoints de autenticación.
type AuthHandler struct {
	logger *zap.Logger
	auth   *service.AuthService
	oauth  *service.OAuthService
	sender email.Sender
}

// NewAuthHandler crea una instancia de AuthHandler. oauth y sender pueden ser nil.
func NewAuthHandler(logger *zap.Logger, auth *service.AuthService, oauth *service.OAuthService, sender email.Sender) *AuthHandler {
	if sender == nil {
		sender = email.NewDisabledSender()
	}
	return &AuthHandler{
		logger: logger,
		auth:   auth,
		oauth:  oauth,
		sender: sender,
	}
}

// Authenticated devuelve el middleware que exige una sesión válida para la colección.
func (h *AuthHandler) Authenticated() gin.HandlerFunc {
	return authenticatedMiddleware(h.logger, h.auth)
}

// Signup maneja POST /signup/:collection.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req struct {
		Document domain.Document `json:"document" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid signup request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	password, ok := optionalString(req.Document[domain.FieldPassword])
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	// Para registrar sin password se omite el campo o se envía null.
	if req.Document[domain.FieldPassword] != nil && password == "" {
		respondError(c, h.logger, "signup", service.ErrInvalidPassword)
		return
	}

	id, err := h.auth.Signup(c.Request.Context(), c.Param(collectionParam), req.Document.Key(), password, req.Document)
	if err != nil {
		respondError(c, h.logger, "signup", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// Signin maneja POST /signin/:collection y guarda el token en la sesión.
func (h *AuthHandler) Signin(c *gin.Context) {
	var req struct {
		Document domain.Document `json:"document" binding:"required"`
		Query    domain.Filter   `json:"query"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid signin request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	password, ok := optionalString(req.Document[domain.FieldPassword])
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	collection := c.Param(collectionParam)
	token, err := h.auth.Signin(c.Request.Context(), collection, req.Document.Key(), password, req.Query)
	if err != nil {
		respondError(c, h.logger, "signin", err)
		return
	}
	rotateSession(c)
	h.auth.Remember(GetSession(c), collection, token)
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Session maneja GET /session/:collection.
func (h *AuthHandler) Session(c *gin.Context) {
	token, ok := h.auth.Session(GetSession(c), c.Param(collectionParam))
	if !ok {
		c.JSON(http.StatusOK, gin.H{"token": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Signout maneja GET /signout/:collection.
func (h *AuthHandler) Signout(c *gin.Context) {
	h.auth.Signout(GetSession(c), c.Param(collectionParam))
	c.JSON(http.StatusOK, gin.H{"signed_out": true})
}

// Profile maneja GET /profile/:collection.
func (h *AuthHandler) Profile(c *gin.Context) {
	identity, _ := c.Get(authIdentityKey)
	c.JSON(http.StatusOK, identity)
}

// UpdateProfile maneja PATCH /profile/:collection.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var req struct {
		Document domain.Update `json:"document" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid profile update request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	modified, err := h.auth.Refresh(c.Request.Context(), c.Param(collectionParam), claims.Key, req.Document, claims.Query)
	if err != nil {
		respondError(c, h.logger, "refresh profile", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"modified": modified})
}

// Passcode maneja POST /passcode/:collection.
func (h *AuthHandler) Passcode(c *gin.Context) {
	var req struct {
		Key     string        `json:"_key" binding:"required"`
		Query   domain.Filter `json:"query"`
		Deliver bool          `json:"deliver"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid passcode request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if req.Deliver && !h.sender.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "email delivery unavailable"})
		return
	}

	ctx := c.Request.Context()
	pc, err := h.auth.PasscodeGenerate(ctx, c.Param(collectionParam), strings.TrimSpace(req.Key), req.Query, 0, 0)
	if err != nil {
		respondError(c, h.logger, "generate passcode", err)
		return
	}
	if !req.Deliver {
		c.JSON(http.StatusOK, pc)
		return
	}
	if err := h.sender.SendPasscode(ctx, req.Key, pc.Code, pc.ExpiresAt); err != nil {
		h.logger.Warn("send passcode failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "email delivery unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"delivered": true, "expires_at": pc.ExpiresAt})
}

// VerifyPasscode maneja POST /passcode/:collection/verify.
func (h *AuthHandler) VerifyPasscode(c *gin.Context) {
	var req struct {
		Key   string        `json:"_key" binding:"required"`
		Code  string        `json:"code" binding:"required"`
		Query domain.Filter `json:"query"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid passcode verify request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	ok, err := h.auth.PasscodeVerify(c.Request.Context(), c.Param(collectionParam), strings.TrimSpace(req.Key), strings.TrimSpace(req.Code), req.Query, 0)
	if err != nil {
		respondError(c, h.logger, "verify passcode", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": ok})
}

// OAuthAuthorize maneja GET /oauth/:provider/authorize.
func (h *AuthHandler) OAuthAuthorize(c *gin.Context) {
	if h.oauth == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "oauth not configured"})
		return
	}
	url, nonce, err := h.oauth.Authorize(c.Param("provider"), c.Query("redirect_uri"), c.Query(collectionParam))
	if err != nil {
		respondError(c, h.logger, "oauth authorize", err)
		return
	}
	if sess := GetSession(c); sess != nil {
		sess.OAuthNonce = nonce
	}
	c.Redirect(http.StatusFound, url)
}

// OAuthCallback maneja GET /oauth/:provider/callback.
func (h *AuthHandler) OAuthCallback(c *gin.Context) {
	if h.oauth == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "oauth not configured"})
		return
	}
	ctx := c.Request.Context()
	var nonce string
	if sess := GetSession(c); sess != nil {
		nonce, sess.OAuthNonce = sess.OAuthNonce, ""
	}
	profile, state, err := h.oauth.Callback(ctx, c.Param("provider"), c.Query("code"), c.Query("state"), nonce)
	if err != nil {
		if errors.Is(err, service.ErrOAuthInvalid) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "oauth failed"})
			return
		}
		respondError(c, h.logger, "oauth callback", err)
		return
	}
	if state.Collection == "" {
		c.JSON(http.StatusOK, gin.H{"profile": profile})
		return
	}

	token, err := h.auth.SigninExternal(ctx, state.Collection, profile)
	if err != nil {
		respondError(c, h.logger, "oauth signin", err)
		return
	}
	rotateSession(c)
	h.auth.Remember(GetSession(c), state.Collection, token)
	c.JSON(http.StatusOK, gin.H{"profile": profile, "token": token})
}

// optionalString acepta ausencia, null o string.
func optionalString(v any) (string, bool) {
	switch s := v.(type) {
	case nil:
		return "", true
	case string:
		return s, true
	}
	return "", false
}
