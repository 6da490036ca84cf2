package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"coglex/internal/config"
	"coglex/internal/domain"
)

var ErrOAuthInvalid = errors.New("oauth data invalid")

// OAuthService implementa el flujo authorization code contra proveedores externos.
type OAuthService struct {
	logger      *zap.Logger
	providers   map[string]config.OAuthProvider
	tokens      *TokenService
	collections map[string]struct{}
	stateTTL    time.Duration
	httpClient  *http.Client
}

// NewOAuthService crea el servicio. collections limita dónde un login externo puede
// crear o abrir identidades.
func NewOAuthService(logger *zap.Logger, providers map[string]config.OAuthProvider, tokens *TokenService, collections []string) *OAuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]struct{}, len(collections))
	for _, c := range collections {
		if c = strings.TrimSpace(c); c != "" {
			allowed[c] = struct{}{}
		}
	}
	return &OAuthService{
		logger:      logger,
		providers:   providers,
		tokens:      tokens,
		collections: allowed,
		stateTTL:    10 * time.Minute,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Authorize arma la URL de autorización del proveedor con un state firmado.
// Devuelve también el nonce, que el caller debe atar a la sesión del navegador.
func (s *OAuthService) Authorize(provider, redirectURI, collection string) (string, string, error) {
	p, ok := s.providers[provider]
	if !ok || !s.collectionAllowed(collection) {
		return "", "", ErrOAuthInvalid
	}
	if redirectURI = strings.TrimSpace(redirectURI); redirectURI == "" {
		redirectURI = p.RedirectURL
	}
	if redirectURI == "" {
		return "", "", ErrOAuthInvalid
	}
	nonce := uuid.NewString()
	state, err := s.tokens.Encode(domain.OAuthState{
		Provider:    provider,
		RedirectURI: redirectURI,
		Nonce:       nonce,
		Collection:  collection,
	}, s.stateTTL)
	if err != nil {
		return "", "", fmt.Errorf("sign oauth state: %w", err)
	}
	return oauthConfig(p, redirectURI).AuthCodeURL(state), nonce, nil
}

// Callback valida el state contra el nonce de la sesión, canjea el código y normaliza
// el perfil del proveedor.
func (s *OAuthService) Callback(ctx context.Context, provider, code, rawState, sessionNonce string) (domain.OAuthProfile, domain.OAuthState, error) {
	var state domain.OAuthState
	if !s.tokens.Decode(rawState, &state) || state.Provider != provider || state.Nonce == "" {
		return domain.OAuthProfile{}, domain.OAuthState{}, ErrOAuthInvalid
	}
	if sessionNonce == "" || !stampsEqual(state.Nonce, sessionNonce) || !s.collectionAllowed(state.Collection) {
		s.logger.Warn("oauth state not bound to session", zap.String("provider", provider))
		return domain.OAuthProfile{}, domain.OAuthState{}, ErrOAuthInvalid
	}
	p, ok := s.providers[provider]
	if !ok || strings.TrimSpace(code) == "" {
		return domain.OAuthProfile{}, domain.OAuthState{}, ErrOAuthInvalid
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	cfg := oauthConfig(p, state.RedirectURI)
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		s.logger.Warn("oauth code exchange failed", zap.String("provider", provider), zap.Error(err))
		return domain.OAuthProfile{}, domain.OAuthState{}, ErrOAuthInvalid
	}

	info, err := s.userinfo(ctx, cfg.Client(ctx, tok), p.UserinfoURL)
	if err != nil {
		s.logger.Warn("oauth userinfo failed", zap.String("provider", provider), zap.Error(err))
		return domain.OAuthProfile{}, domain.OAuthState{}, ErrOAuthInvalid
	}

	profile := domain.OAuthProfile{
		Provider: provider,
		ID:       firstString(info, "sub", "id"),
		Name:     firstString(info, "name", "login"),
		Email:    firstString(info, "email"),
	}
	if profile.ID == "" {
		return domain.OAuthProfile{}, domain.OAuthState{}, ErrOAuthInvalid
	}
	profile.EmailVerified = profile.Email != "" && emailVerified(info)
	return profile, state, nil
}

// collectionAllowed acepta el flujo sin colección (solo perfil) o una colección habilitada.
func (s *OAuthService) collectionAllowed(collection string) bool {
	if collection == "" {
		return true
	}
	_, ok := s.collections[collection]
	return ok
}

// emailVerified respeta email_verified cuando el proveedor lo informa, como bool o string.
func emailVerified(info map[string]any) bool {
	switch v := info["email_verified"].(type) {
	case nil:
		return true
	case bool:
		return v
	case string:
		ok, err := strconv.ParseBool(v)
		return err == nil && ok
	}
	return false
}

func (s *OAuthService) userinfo(ctx context.Context, client *http.Client, url string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}
	var info map[string]any
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, err
	}
	if len(info) == 0 {
		return nil, errors.New("empty userinfo")
	}
	return info, nil
}

func oauthConfig(p config.OAuthProvider, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthorizeURL,
			TokenURL: p.TokenURL,
		},
		RedirectURL: redirectURI,
		Scopes:      p.Scopes,
	}
}

// firstString toma el primer campo no vacío; los ids numéricos (GitHub) se formatean sin decimales.
func firstString(info map[string]any, fields ...string) string {
	for _, f := range fields {
		switch v := info[f].(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
