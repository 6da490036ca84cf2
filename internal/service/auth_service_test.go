package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"coglex/internal/domain"
	"coglex/internal/repository"
)

const usersColl = "users"

func newTestAuthService(t *testing.T) (*AuthService, *repository.MemoryDocumentRepository) {
	t.Helper()
	docs := repository.NewMemoryDocumentRepository()
	svc := NewAuthService(zap.NewNop(), docs, NewTokenService("test-secret"), nil, AuthOptions{
		SessionTTL:     time.Hour,
		OTPLength:      6,
		OTPTTL:         10 * time.Minute,
		OTPMaxAttempts: 3,
	})
	return svc, docs
}

func countByKey(t *testing.T, docs repository.DocumentRepository, key string) int {
	t.Helper()
	rows, err := docs.Find(context.Background(), usersColl, domain.Filter{domain.FieldKey: key}, nil)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	return len(rows)
}

func TestAuthService_SignupSigninRetrieve(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	id, err := svc.Signup(ctx, usersColl, "alice@example.com", "pw123", domain.Document{})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if len(id) != 24 {
		t.Fatalf("expected 24 hex id, got %q", id)
	}

	token, err := svc.Signin(ctx, usersColl, "alice@example.com", "pw123", nil)
	if err != nil || token == "" {
		t.Fatalf("signin: token=%q err=%v", token, err)
	}

	if _, err := svc.Signin(ctx, usersColl, "alice@example.com", "wrong", nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for wrong password, got %v", err)
	}
	if _, err := svc.Signin(ctx, usersColl, "nobody@example.com", "pw123", nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for unknown key, got %v", err)
	}

	doc, err := svc.Retrieve(ctx, usersColl, "alice@example.com", nil)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if doc.Key() != "alice@example.com" {
		t.Fatalf("expected _key in document, got %+v", doc)
	}
	if _, ok := doc[domain.FieldPassword]; ok {
		t.Fatalf("password hash must not be exposed")
	}
}

func TestAuthService_SignupStripsReservedFields(t *testing.T) {
	svc, docs := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, usersColl, "bob", "pw", domain.Document{
		domain.FieldKey:      "mallory",
		domain.FieldPassword: "plaintext",
		domain.FieldOTPHash:  "x",
		domain.FieldProvider: "github:1",
		"name":               "Bob",
	})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	rows, _ := docs.Find(ctx, usersColl, domain.Filter{domain.FieldKey: "bob"}, nil)
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	row := rows[0]
	if row.PasswordHash() == "plaintext" || !CheckPassword(row.PasswordHash(), "pw") {
		t.Fatalf("expected hashed password, got %q", row.PasswordHash())
	}
	if _, ok := row[domain.FieldOTPHash]; ok {
		t.Fatalf("otp fields must not be accepted at signup")
	}
	if _, ok := row[domain.FieldProvider]; ok {
		t.Fatalf("provider link must not be accepted at signup")
	}
	if row["name"] != "Bob" {
		t.Fatalf("expected caller fields merged, got %+v", row)
	}
	if countByKey(t, docs, "mallory") != 0 {
		t.Fatalf("caller supplied _key must be ignored")
	}
}

func TestAuthService_SignupConflict(t *testing.T) {
	svc, docs := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, usersColl, "alice", "pw", nil); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, err := svc.Signup(ctx, usersColl, "alice", "other", nil); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if n := countByKey(t, docs, "alice"); n != 1 {
		t.Fatalf("expected exactly one record, got %d", n)
	}
	if _, err := svc.Signup(ctx, usersColl, "  ", "pw", nil); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected missing key, got %v", err)
	}
}

func TestAuthService_ConcurrentSignupInsertsOnce(t *testing.T) {
	svc, docs := newTestAuthService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Signup(ctx, usersColl, "race", "", nil); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if successes != 1 {
		t.Fatalf("expected exactly one successful signup, got %d", successes)
	}
	if n := countByKey(t, docs, "race"); n != 1 {
		t.Fatalf("expected one record, got %d", n)
	}
}

func TestAuthService_SigninWithQuery(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, usersColl, "carol", "pw", domain.Document{"active": false}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, err := svc.Signin(ctx, usersColl, "carol", "pw", domain.Filter{"active": true}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized when query does not match, got %v", err)
	}
	if _, err := svc.Signin(ctx, usersColl, "carol", "pw", domain.Filter{"active": false}); err != nil {
		t.Fatalf("expected signin with matching query, got %v", err)
	}
}

func TestAuthService_PasswordlessSignin(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, usersColl, "dave", "", nil); err != nil {
		t.Fatalf("signup: %v", err)
	}
	token, err := svc.Signin(ctx, usersColl, "dave", "", nil)
	if err != nil {
		t.Fatalf("signin: %v", err)
	}
	if _, _, err := svc.Verify(ctx, usersColl, token); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestAuthService_AmbiguousKey(t *testing.T) {
	svc, docs := newTestAuthService(t)
	ctx := context.Background()

	// Insert sin índice único para simular datos corruptos.
	if _, err := docs.Insert(ctx, usersColl, []domain.Document{
		{domain.FieldKey: "dup"},
		{domain.FieldKey: "dup"},
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := svc.Retrieve(ctx, usersColl, "dup", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for ambiguous key, got %v", err)
	}
	if _, err := svc.Signin(ctx, usersColl, "dup", "", nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for ambiguous key, got %v", err)
	}
}

func TestAuthService_RefreshPasswordInvalidatesToken(t *testing.T) {
	svc, docs := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, usersColl, "erin", "old", nil); err != nil {
		t.Fatalf("signup: %v", err)
	}
	token, err := svc.Signin(ctx, usersColl, "erin", "old", nil)
	if err != nil {
		t.Fatalf("signin: %v", err)
	}
	if _, _, err := svc.Verify(ctx, usersColl, token); err != nil {
		t.Fatalf("verify before refresh: %v", err)
	}

	modified, err := svc.Refresh(ctx, usersColl, "erin", domain.Update{
		"$set": map[string]any{domain.FieldPassword: "new", domain.FieldKey: "hijack"},
	}, nil)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if modified != 1 {
		t.Fatalf("expected one modified, got %d", modified)
	}

	if _, _, err := svc.Verify(ctx, usersColl, token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected old token rejected, got %v", err)
	}
	if _, err := svc.Signin(ctx, usersColl, "erin", "new", nil); err != nil {
		t.Fatalf("signin with new password: %v", err)
	}
	rows, _ := docs.Find(ctx, usersColl, domain.Filter{domain.FieldKey: "erin"}, nil)
	if len(rows) != 1 || rows[0].PasswordHash() == "new" {
		t.Fatalf("expected hashed password and immutable _key, got %+v", rows)
	}
}

func TestAuthService_Refresh(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Refresh(ctx, usersColl, "ghost", domain.Update{"$set": map[string]any{"a": 1}}, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.Signup(ctx, usersColl, "frank", "", domain.Document{"plan": "free"}); err != nil {
		t.Fatalf("signup: %v", err)
	}

	modified, err := svc.Refresh(ctx, usersColl, "frank", domain.Update{"$set": map[string]any{"plan": "free"}}, nil)
	if err != nil {
		t.Fatalf("refresh no-op: %v", err)
	}
	if modified != 0 {
		t.Fatalf("expected no-op refresh to report 0, got %d", modified)
	}

	if _, err := svc.Refresh(ctx, usersColl, "frank", domain.Update{"plan": "pro"}, nil); !errors.Is(err, ErrInvalidUpdate) {
		t.Fatalf("expected invalid update for bare fields, got %v", err)
	}
	if _, err := svc.Refresh(ctx, usersColl, "frank", domain.Update{"$set": map[string]any{domain.FieldID: "x"}}, nil); !errors.Is(err, ErrInvalidUpdate) {
		t.Fatalf("expected invalid update when only immutable fields remain, got %v", err)
	}
	if _, err := svc.Refresh(ctx, usersColl, "frank", domain.Update{"$inc": map[string]any{domain.FieldPassword: 1}}, nil); !errors.Is(err, ErrInvalidUpdate) {
		t.Fatalf("expected invalid update for $inc on password, got %v", err)
	}
}

func TestAuthService_RefreshRejectsReservedTargets(t *testing.T) {
	svc, docs := newTestAuthService(t)
	ctx := context.Background()
	if _, err := svc.Signup(ctx, usersColl, "gina", "pw123", domain.Document{"nick": "g"}); err != nil {
		t.Fatalf("signup: %v", err)
	}

	updates := map[string]domain.Update{
		"rename into key":      {"$rename": map[string]any{"nick": domain.FieldKey}},
		"rename into password": {"$rename": map[string]any{"nick": domain.FieldPassword}},
		"rename into otp":      {"$rename": map[string]any{"nick": domain.FieldOTPHash}},
		"set on insert":        {"$setOnInsert": map[string]any{"nick": "x"}},
		"nested password":      {"$set": map[string]any{domain.FieldPassword + ".x": "y"}},
		"nested otp":           {"$unset": map[string]any{domain.FieldOTPAttempts + ".n": ""}},
		"nested provider":      {"$set": map[string]any{domain.FieldProvider + ".id": "1"}},
		"min on password":      {"$min": map[string]any{domain.FieldPassword: ""}},
	}
	for name, update := range updates {
		if _, err := svc.Refresh(ctx, usersColl, "gina", update, nil); !errors.Is(err, ErrInvalidUpdate) {
			t.Fatalf("%s: expected invalid update, got %v", name, err)
		}
	}

	if _, err := svc.Refresh(ctx, usersColl, "gina", domain.Update{"$set": map[string]any{domain.FieldProvider: "github:1", "nick": "h"}}, nil); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	rows, _ := docs.Find(ctx, usersColl, domain.Filter{domain.FieldKey: "gina"}, nil)
	if len(rows) != 1 || rows[0]["nick"] != "h" {
		t.Fatalf("expected allowed field updated, got %+v", rows)
	}
	if _, ok := rows[0][domain.FieldProvider]; ok {
		t.Fatalf("provider link must not be writable from updates")
	}
	if _, err := svc.Signin(ctx, usersColl, "gina", "pw123", nil); err != nil {
		t.Fatalf("password must be unchanged: %v", err)
	}
}

func TestAuthService_VerifyRejects(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, usersColl, "gina", "pw", domain.Document{"active": true}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	token, err := svc.Signin(ctx, usersColl, "gina", "pw", domain.Filter{"active": true})
	if err != nil {
		t.Fatalf("signin: %v", err)
	}

	if _, _, err := svc.Verify(ctx, "admins", token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected token bound to its collection, got %v", err)
	}
	if _, _, err := svc.Verify(ctx, usersColl, token+"x"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected tampered token rejected, got %v", err)
	}

	claims, doc, err := svc.Verify(ctx, usersColl, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Key != "gina" || doc.Key() != "gina" {
		t.Fatalf("unexpected claims %+v doc %+v", claims, doc)
	}

	if _, err := svc.Refresh(ctx, usersColl, "gina", domain.Update{"$set": map[string]any{"active": false}}, nil); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, _, err := svc.Verify(ctx, usersColl, token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected standing query re-checked, got %v", err)
	}
}

func TestAuthService_TokenExpires(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()
	now := time.Now()
	svc.tokens.now = func() time.Time { return now }

	if _, err := svc.Signup(ctx, usersColl, "hank", "pw", nil); err != nil {
		t.Fatalf("signup: %v", err)
	}
	token, err := svc.Signin(ctx, usersColl, "hank", "pw", nil)
	if err != nil {
		t.Fatalf("signin: %v", err)
	}
	now = now.Add(2 * time.Hour)
	if _, _, err := svc.Verify(ctx, usersColl, token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected expired token rejected, got %v", err)
	}
}

func TestAuthService_SessionHelpers(t *testing.T) {
	svc, _ := newTestAuthService(t)
	sess := domain.NewSession("sid")

	if _, ok := svc.Session(sess, usersColl); ok {
		t.Fatalf("expected no token in fresh session")
	}
	svc.Remember(sess, usersColl, "tok")
	if tok, ok := svc.Session(sess, usersColl); !ok || tok != "tok" {
		t.Fatalf("expected remembered token, got %q", tok)
	}
	svc.Signout(sess, usersColl)
	if _, ok := svc.Session(sess, usersColl); ok {
		t.Fatalf("expected token dropped after signout")
	}
	svc.Signout(nil, usersColl)
}

func TestAuthService_PasscodeFlow(t *testing.T) {
	svc, docs := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.PasscodeGenerate(ctx, usersColl, "u1", nil, 0, 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown identity, got %v", err)
	}
	if _, err := svc.Signup(ctx, usersColl, "u1", "", nil); err != nil {
		t.Fatalf("signup: %v", err)
	}

	pc, err := svc.PasscodeGenerate(ctx, usersColl, "u1", nil, 0, 0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(pc.Code) != 6 {
		t.Fatalf("expected default length 6, got %q", pc.Code)
	}
	rows, _ := docs.Find(ctx, usersColl, domain.Filter{domain.FieldKey: "u1"}, nil)
	if rows[0].String(domain.FieldOTPHash) == pc.Code || rows[0].String(domain.FieldOTPHash) == "" {
		t.Fatalf("expected only the hash to be stored")
	}

	ok, err := svc.PasscodeVerify(ctx, usersColl, "u1", pc.Code, nil, 0)
	if err != nil || !ok {
		t.Fatalf("expected correct code accepted, ok=%v err=%v", ok, err)
	}
	ok, _ = svc.PasscodeVerify(ctx, usersColl, "u1", pc.Code, nil, 0)
	if ok {
		t.Fatalf("expected code to be single use")
	}
	rows, _ = docs.Find(ctx, usersColl, domain.Filter{domain.FieldKey: "u1"}, nil)
	if _, present := rows[0][domain.FieldOTPHash]; present {
		t.Fatalf("expected challenge cleared after success")
	}
}

func TestAuthService_PasscodeExhausted(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, usersColl, "u2", "", nil); err != nil {
		t.Fatalf("signup: %v", err)
	}
	pc, err := svc.PasscodeGenerate(ctx, usersColl, "u2", nil, 8, time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(pc.Code) != 8 {
		t.Fatalf("expected requested length, got %q", pc.Code)
	}
	wrong := "00000000"
	if wrong == pc.Code {
		wrong = "11111111"
	}
	for i := 0; i < 4; i++ {
		if ok, _ := svc.PasscodeVerify(ctx, usersColl, "u2", wrong, nil, 0); ok {
			t.Fatalf("wrong code accepted")
		}
	}
	if ok, _ := svc.PasscodeVerify(ctx, usersColl, "u2", pc.Code, nil, 0); ok {
		t.Fatalf("expected exhausted challenge to reject the correct code")
	}

	pc, err = svc.PasscodeGenerate(ctx, usersColl, "u2", nil, 0, 0)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if ok, _ := svc.PasscodeVerify(ctx, usersColl, "u2", pc.Code, nil, 0); !ok {
		t.Fatalf("expected new challenge to reset attempts")
	}
}

func TestAuthService_PasscodeExpired(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()
	now := time.Now()
	svc.now = func() time.Time { return now }

	if _, err := svc.Signup(ctx, usersColl, "u3", "", nil); err != nil {
		t.Fatalf("signup: %v", err)
	}
	pc, err := svc.PasscodeGenerate(ctx, usersColl, "u3", nil, 0, time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if ok, _ := svc.PasscodeVerify(ctx, usersColl, "u3", pc.Code, nil, 0); ok {
		t.Fatalf("expected expired code rejected")
	}
}

func TestAuthService_PasscodeNoChallenge(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, usersColl, "u4", "", nil); err != nil {
		t.Fatalf("signup: %v", err)
	}
	ok, err := svc.PasscodeVerify(ctx, usersColl, "u4", "123456", nil, 0)
	if err != nil || ok {
		t.Fatalf("expected fail closed without challenge, ok=%v err=%v", ok, err)
	}
}

func TestAuthService_PasscodeConcurrentAttemptsRespectCap(t *testing.T) {
	svc, docs := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, usersColl, "u5", "", nil); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, err := svc.PasscodeGenerate(ctx, usersColl, "u5", nil, 0, 0); err != nil {
		t.Fatalf("generate: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = svc.PasscodeVerify(ctx, usersColl, "u5", fmt.Sprintf("x%d", i), nil, 0)
		}(i)
	}
	wg.Wait()

	rows, _ := docs.Find(ctx, usersColl, domain.Filter{domain.FieldKey: "u5"}, nil)
	attempts, _ := rows[0][domain.FieldOTPAttempts].(int64)
	if attempts != 3 {
		t.Fatalf("expected attempts capped at 3, got %v", rows[0][domain.FieldOTPAttempts])
	}
}

func TestAuthService_PasscodeRateLimited(t *testing.T) {
	docs := repository.NewMemoryDocumentRepository()
	svc := NewAuthService(zap.NewNop(), docs, NewTokenService("s"), NewOTPRateLimiter(time.Minute, 1), AuthOptions{})
	ctx := context.Background()

	if _, err := svc.Signup(ctx, usersColl, "u6", "", nil); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, err := svc.PasscodeGenerate(ctx, usersColl, "u6", nil, 0, 0); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := svc.PasscodeGenerate(ctx, usersColl, "u6", nil, 0, 0); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
}

func TestAuthService_SigninExternal(t *testing.T) {
	svc, docs := newTestAuthService(t)
	ctx := context.Background()
	profile := domain.OAuthProfile{Provider: "github", ID: "42", Name: "Octo", Email: "Octo@Example.com", EmailVerified: true}

	token, err := svc.SigninExternal(ctx, usersColl, profile)
	if err != nil {
		t.Fatalf("signin external: %v", err)
	}
	claims, doc, err := svc.Verify(ctx, usersColl, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Key != "octo@example.com" || doc["provider"] != "github" {
		t.Fatalf("unexpected identity %+v %+v", claims, doc)
	}

	if _, err := svc.SigninExternal(ctx, usersColl, profile); err != nil {
		t.Fatalf("second signin external: %v", err)
	}
	if n := countByKey(t, docs, "octo@example.com"); n != 1 {
		t.Fatalf("expected single identity, got %d", n)
	}
}

func TestAuthService_SigninExternalDoesNotOpenPasswordAccount(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()
	if _, err := svc.Signup(ctx, usersColl, "victim@example.com", "pw123", domain.Document{}); err != nil {
		t.Fatalf("signup: %v", err)
	}

	profile := domain.OAuthProfile{Provider: "github", ID: "666", Email: "Victim@example.com", EmailVerified: true}
	token, err := svc.SigninExternal(ctx, usersColl, profile)
	if !errors.Is(err, ErrConflict) || token != "" {
		t.Fatalf("expected conflict without token, got token=%q err=%v", token, err)
	}
	if _, err := svc.Signin(ctx, usersColl, "victim@example.com", "pw123", nil); err != nil {
		t.Fatalf("victim password signin must still work: %v", err)
	}
}

func TestAuthService_SigninExternalRejectsForeignProvider(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	google := domain.OAuthProfile{Provider: "google", ID: "g-1", Email: "shared@example.com", EmailVerified: true}
	if _, err := svc.SigninExternal(ctx, usersColl, google); err != nil {
		t.Fatalf("google signin: %v", err)
	}
	github := domain.OAuthProfile{Provider: "github", ID: "7", Email: "shared@example.com", EmailVerified: true}
	if _, err := svc.SigninExternal(ctx, usersColl, github); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for another provider account, got %v", err)
	}

	// Un registro sin password con campos de proveedor puestos por el cliente no se vincula.
	if _, err := svc.Signup(ctx, usersColl, "planted@example.com", "", domain.Document{
		domain.FieldProvider: "github:8",
		"provider":           "github",
	}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	planted := domain.OAuthProfile{Provider: "github", ID: "8", Email: "planted@example.com", EmailVerified: true}
	if _, err := svc.SigninExternal(ctx, usersColl, planted); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for client created record, got %v", err)
	}
}

func TestAuthService_SigninExternalUnverifiedEmail(t *testing.T) {
	svc, docs := newTestAuthService(t)
	ctx := context.Background()
	if _, err := svc.Signup(ctx, usersColl, "target@example.com", "pw123", domain.Document{}); err != nil {
		t.Fatalf("signup: %v", err)
	}

	profile := domain.OAuthProfile{Provider: "google", ID: "g-9", Email: "target@example.com", EmailVerified: false}
	token, err := svc.SigninExternal(ctx, usersColl, profile)
	if err != nil {
		t.Fatalf("signin external: %v", err)
	}
	claims, _, err := svc.Verify(ctx, usersColl, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Key != "google:g-9" {
		t.Fatalf("expected provider scoped key for unverified email, got %q", claims.Key)
	}
	if n := countByKey(t, docs, "target@example.com"); n != 1 {
		t.Fatalf("expected original identity untouched, got %d rows", n)
	}

	if _, err := svc.SigninExternal(ctx, usersColl, domain.OAuthProfile{Provider: "google"}); !errors.Is(err, ErrOAuthInvalid) {
		t.Fatalf("expected invalid profile without id, got %v", err)
	}
}
