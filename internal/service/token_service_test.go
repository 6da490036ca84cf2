package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"coglex/internal/domain"
)

func TestTokenService_RoundTrip(t *testing.T) {
	svc := NewTokenService("secret")
	in := domain.SessionClaims{Collection: "users", Key: "alice@example.com", PasswordStamp: "st", Query: domain.Filter{"active": true}}

	token, err := svc.Encode(in, time.Minute)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var out domain.SessionClaims
	if !svc.Decode(token, &out) {
		t.Fatalf("expected decode to succeed")
	}
	if out.Key != in.Key || out.Collection != in.Collection || out.PasswordStamp != in.PasswordStamp {
		t.Fatalf("unexpected claims: %+v", out)
	}
	if out.Query["active"] != true {
		t.Fatalf("expected query to survive round trip, got %+v", out.Query)
	}
}

func TestTokenService_Expired(t *testing.T) {
	svc := NewTokenService("secret")
	token, err := svc.Encode(map[string]string{"k": "v"}, time.Minute)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	var out map[string]string
	if svc.Decode(token, &out) {
		t.Fatalf("expected expired token to fail")
	}
}

func TestTokenService_NoExpiry(t *testing.T) {
	svc := NewTokenService("secret")
	token, err := svc.Encode("payload", 0)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	svc.now = func() time.Time { return time.Now().Add(24 * 365 * time.Hour) }
	var out string
	if !svc.Decode(token, &out) || out != "payload" {
		t.Fatalf("expected non-expiring token to decode, got %q", out)
	}
}

func TestTokenService_RejectsTamperedAndForeign(t *testing.T) {
	svc := NewTokenService("secret")
	token, err := svc.Encode("x", time.Minute)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var out string
	if svc.Decode(token+"x", &out) {
		t.Fatalf("expected tampered token to fail")
	}
	if NewTokenService("other").Decode(token, &out) {
		t.Fatalf("expected token signed with another secret to fail")
	}
	if svc.Decode("", &out) || svc.Decode("not.a.jwt", &out) {
		t.Fatalf("expected malformed tokens to fail")
	}

	claims := jwt.RegisteredClaims{Issuer: "other-issuer", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))}
	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if svc.Decode(foreign, &out) {
		t.Fatalf("expected wrong issuer to fail")
	}
}

func TestTokenService_EmptySecret(t *testing.T) {
	svc := NewTokenService("")
	if _, err := svc.Encode("x", time.Minute); err != ErrJWTInvalid {
		t.Fatalf("expected ErrJWTInvalid, got %v", err)
	}
}
