package service

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService firma y valida tokens HS256 con el secreto del servidor.
type TokenService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// payloadClaims guarda cualquier payload bajo la claim "_".
type payloadClaims struct {
	Data json.RawMessage `json:"_"`
	jwt.RegisteredClaims
}

var ErrJWTInvalid = errors.New("jwt invalid")

func NewTokenService(secret string) *TokenService {
	return &TokenService{
		secret: []byte(secret),
		issuer: "coglex",
		now:    time.Now,
	}
}

// Encode serializa payload y agrega exp cuando ttl > 0. Con ttl <= 0 el token no expira.
func (s *TokenService) Encode(payload any, ttl time.Duration) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrJWTInvalid
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	now := s.now().UTC()
	claims := payloadClaims{
		Data: data,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   s.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Decode valida firma, emisor y expiración y vuelca el payload en dst.
// Cualquier fallo devuelve false, sin distinguir la causa.
func (s *TokenService) Decode(tokenString string, dst any) bool {
	if len(s.secret) == 0 || strings.TrimSpace(tokenString) == "" {
		return false
	}
	var claims payloadClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || len(claims.Data) == 0 {
		return false
	}
	return json.Unmarshal(claims.Data, dst) == nil
}
