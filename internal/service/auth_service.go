package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"coglex/internal/domain"
	"coglex/internal/repository"
)

var (
	ErrConflict      = errors.New("conflict")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNotFound      = errors.New("not found")
	ErrRateLimited   = errors.New("rate limited")
	ErrInvalidUpdate = errors.New("invalid update")
	ErrMissingKey    = errors.New("missing _key")
)

// AuthOptions agrupa los parámetros de sesión y OTP del núcleo de autenticación.
type AuthOptions struct {
	SessionTTL     time.Duration
	OTPLength      int
	OTPTTL         time.Duration
	OTPMaxAttempts int
}

// Passcode es un desafío OTP recién emitido. Code solo existe en memoria.
type Passcode struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthService implementa signup, signin, perfil, sesiones y OTP sobre colecciones de identidades.
type AuthService struct {
	logger  *zap.Logger
	docs    repository.DocumentRepository
	tokens  *TokenService
	limiter OTPRateLimiter
	opts    AuthOptions
	now     func() time.Time
}

func NewAuthService(logger *zap.Logger, docs repository.DocumentRepository, tokens *TokenService, limiter OTPRateLimiter, opts AuthOptions) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 8 * 24 * time.Hour
	}
	if opts.OTPLength <= 0 {
		opts.OTPLength = 6
	}
	if opts.OTPTTL <= 0 {
		opts.OTPTTL = 10 * time.Minute
	}
	if opts.OTPMaxAttempts <= 0 {
		opts.OTPMaxAttempts = 5
	}
	return &AuthService{
		logger:  logger,
		docs:    docs,
		tokens:  tokens,
		limiter: limiter,
		opts:    opts,
		now:     time.Now,
	}
}

// Signup crea una identidad nueva. Un _key existente devuelve ErrConflict sin insertar nada.
func (s *AuthService) Signup(ctx context.Context, collection, key, password string, document domain.Document) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrMissingKey
	}

	if _, err := s.lookup(ctx, collection, key, nil); err == nil {
		return "", ErrConflict
	} else if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	row := make(domain.Document, len(document)+2)
	for k, v := range document {
		if isReservedField(k) {
			continue
		}
		row[k] = v
	}
	return s.create(ctx, collection, key, password, row)
}

// create inserta row bajo key con el password hasheado (nil si no tiene).
func (s *AuthService) create(ctx context.Context, collection, key, password string, row domain.Document) (string, error) {
	row[domain.FieldKey] = key
	row[domain.FieldPassword] = nil
	if password != "" {
		hash, err := HashPassword(password)
		if err != nil {
			return "", err
		}
		row[domain.FieldPassword] = hash
	}

	id, err := s.docs.InsertUnique(ctx, collection, row)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return "", ErrConflict
		}
		return "", fmt.Errorf("signup: %w", err)
	}
	return id, nil
}

// Signin verifica credenciales y emite un token de sesión.
// Identidad inexistente y password incorrecto son indistinguibles.
func (s *AuthService) Signin(ctx context.Context, collection, key, password string, query domain.Filter) (string, error) {
	doc, err := s.lookup(ctx, collection, strings.TrimSpace(key), query)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			burnPasswordCheck(password)
			return "", ErrUnauthorized
		}
		return "", err
	}
	if hash := doc.PasswordHash(); hash != "" && !CheckPassword(hash, password) {
		return "", ErrUnauthorized
	}
	return s.issue(collection, doc, query)
}

// SigninExternal emite un token para una identidad verificada por un proveedor OAuth,
// registrándola sin password si todavía no existe. Solo abre registros creados por el
// mismo proveedor y cuenta; cualquier otro registro bajo la misma _key es ErrConflict.
func (s *AuthService) SigninExternal(ctx context.Context, collection string, profile domain.OAuthProfile) (string, error) {
	if profile.Provider == "" || profile.ID == "" {
		return "", ErrOAuthInvalid
	}
	link := profile.Provider + ":" + profile.ID
	key := link
	if email := strings.ToLower(strings.TrimSpace(profile.Email)); email != "" && profile.EmailVerified {
		key = email
	}

	doc, err := s.lookup(ctx, collection, key, nil)
	if errors.Is(err, ErrNotFound) {
		row := domain.Document{
			"name":               profile.Name,
			"email":              profile.Email,
			"provider":           profile.Provider,
			domain.FieldProvider: link,
		}
		if _, err := s.create(ctx, collection, key, "", row); err != nil && !errors.Is(err, ErrConflict) {
			return "", err
		}
		doc, err = s.lookup(ctx, collection, key, nil)
	}
	if err != nil {
		return "", err
	}
	if doc.String(domain.FieldProvider) != link {
		s.logger.Warn("external signin on foreign identity",
			zap.String("collection", collection),
			zap.String("provider", profile.Provider),
		)
		return "", ErrConflict
	}
	return s.issue(collection, doc, nil)
}

// Retrieve devuelve el documento sin credenciales ni estado OTP.
func (s *AuthService) Retrieve(ctx context.Context, collection, key string, query domain.Filter) (domain.Document, error) {
	doc, err := s.lookup(ctx, collection, key, query)
	if err != nil {
		return nil, err
	}
	return doc.Public(), nil
}

// Refresh aplica update sobre la identidad y devuelve la cantidad modificada (0 es válido).
// Un $set de _password se hashea antes de persistir.
func (s *AuthService) Refresh(ctx context.Context, collection, key string, update domain.Update, query domain.Filter) (int64, error) {
	if _, err := s.lookup(ctx, collection, key, query); err != nil {
		return 0, err
	}
	clean, err := sanitizeUpdate(update)
	if err != nil {
		return 0, err
	}
	matched, modified, err := s.docs.Update(ctx, collection, clean, domain.KeyFilter(key, query))
	if err != nil {
		return 0, fmt.Errorf("refresh: %w", err)
	}
	if matched == 0 {
		return 0, ErrNotFound
	}
	return modified, nil
}

// Verify decodifica un token de sesión y revalida la identidad contra el store:
// debe existir bajo _key+query y el password no debe haber cambiado.
func (s *AuthService) Verify(ctx context.Context, collection, token string) (domain.SessionClaims, domain.Document, error) {
	var claims domain.SessionClaims
	if !s.tokens.Decode(token, &claims) || claims.Collection != collection || claims.Key == "" {
		return domain.SessionClaims{}, nil, ErrUnauthorized
	}
	doc, err := s.lookup(ctx, collection, claims.Key, claims.Query)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.SessionClaims{}, nil, ErrUnauthorized
		}
		return domain.SessionClaims{}, nil, err
	}
	if !stampsEqual(passwordStamp(doc.PasswordHash()), claims.PasswordStamp) {
		return domain.SessionClaims{}, nil, ErrUnauthorized
	}
	return claims, doc.Public(), nil
}

// Remember guarda el token de la colección en la sesión del request.
func (s *AuthService) Remember(session *domain.Session, collection, token string) {
	if session == nil {
		return
	}
	session.SetToken(collection, token)
}

// Session devuelve el token de la colección guardado en la sesión del request.
func (s *AuthService) Session(session *domain.Session, collection string) (string, bool) {
	return session.Token(collection)
}

// Signout descarta el token de la colección de la sesión del request.
func (s *AuthService) Signout(session *domain.Session, collection string) {
	if session == nil {
		return
	}
	session.Drop(collection)
}

// PasscodeGenerate emite un desafío OTP nuevo, reemplazando cualquier desafío previo.
// Solo se persiste el hash del código.
func (s *AuthService) PasscodeGenerate(ctx context.Context, collection, key string, query domain.Filter, length int, ttl time.Duration) (Passcode, error) {
	if length <= 0 {
		length = s.opts.OTPLength
	}
	if ttl <= 0 {
		ttl = s.opts.OTPTTL
	}
	if s.limiter != nil && !s.limiter.Allow(ctx, collection+":"+key) {
		return Passcode{}, ErrRateLimited
	}
	if _, err := s.lookup(ctx, collection, key, query); err != nil {
		return Passcode{}, err
	}

	code, err := RandomCode(length)
	if err != nil {
		return Passcode{}, err
	}
	hash, err := hashCode(code)
	if err != nil {
		return Passcode{}, err
	}
	expiresAt := s.now().UTC().Add(ttl)
	update := domain.Update{"$set": domain.Document{
		domain.FieldOTPHash:     hash,
		domain.FieldOTPExpiry:   expiresAt,
		domain.FieldOTPAttempts: 0,
	}}
	matched, _, err := s.docs.Update(ctx, collection, update, domain.KeyFilter(key, query))
	if err != nil {
		return Passcode{}, fmt.Errorf("store passcode: %w", err)
	}
	if matched == 0 {
		return Passcode{}, ErrNotFound
	}
	return Passcode{Code: code, ExpiresAt: expiresAt}, nil
}

// PasscodeVerify consume un intento del desafío vigente y compara el código.
// Sin desafío, vencido o agotado devuelve false. Un acierto borra el desafío.
func (s *AuthService) PasscodeVerify(ctx context.Context, collection, key, code string, query domain.Filter, maxAttempts int) (bool, error) {
	if maxAttempts <= 0 {
		maxAttempts = s.opts.OTPMaxAttempts
	}
	filter := domain.KeyFilter(key, query)
	filter[domain.FieldOTPHash] = domain.Document{"$exists": true}
	filter[domain.FieldOTPAttempts] = domain.Document{"$lt": maxAttempts}
	filter[domain.FieldOTPExpiry] = domain.Document{"$gt": s.now().UTC()}

	// El incremento con guarda es atómico; dos intentos concurrentes nunca superan el tope.
	doc, err := s.docs.FindOneAndUpdate(ctx, collection, filter, domain.Update{
		"$inc": domain.Document{domain.FieldOTPAttempts: 1},
	})
	if err != nil {
		if errors.Is(err, repository.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("passcode attempt: %w", err)
	}

	stored := doc.String(domain.FieldOTPHash)
	if !verifyCode(code, stored) {
		return false, nil
	}

	matched, _, err := s.docs.Update(ctx, collection, domain.Update{
		"$unset": domain.Document{
			domain.FieldOTPHash:     "",
			domain.FieldOTPExpiry:   "",
			domain.FieldOTPAttempts: "",
		},
	}, domain.Filter{domain.FieldKey: key, domain.FieldOTPHash: stored})
	if err != nil {
		return false, fmt.Errorf("passcode clear: %w", err)
	}
	return matched > 0, nil
}

func (s *AuthService) issue(collection string, doc domain.Document, query domain.Filter) (string, error) {
	claims := domain.SessionClaims{
		Collection:    collection,
		Key:           doc.Key(),
		PasswordStamp: passwordStamp(doc.PasswordHash()),
		Query:         query,
	}
	token, err := s.tokens.Encode(claims, s.opts.SessionTTL)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// lookup exige exactamente un documento bajo _key+query.
func (s *AuthService) lookup(ctx context.Context, collection, key string, query domain.Filter) (domain.Document, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	docs, err := s.docs.Find(ctx, collection, domain.KeyFilter(key, query), nil)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", collection, err)
	}
	switch len(docs) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return docs[0], nil
	default:
		s.logger.Error("ambiguous identity key",
			zap.String("collection", collection),
			zap.Int("matches", len(docs)),
		)
		return nil, ErrNotFound
	}
}

func isReservedField(field string) bool {
	switch field {
	case domain.FieldID, domain.FieldKey, domain.FieldPassword, domain.FieldProvider,
		domain.FieldOTPHash, domain.FieldOTPExpiry, domain.FieldOTPAttempts:
		return true
	}
	return false
}

// updateOperators son los operadores de update aceptados desde el cliente.
var updateOperators = map[string]struct{}{
	"$set": {}, "$unset": {}, "$inc": {}, "$mul": {}, "$min": {}, "$max": {},
	"$push": {}, "$addToSet": {}, "$pull": {}, "$pop": {}, "$currentDate": {},
}

// sanitizeUpdate descarta campos inmutables y hashea el password nuevo.
// Operadores fuera de updateOperators y rutas que apuntan dentro de campos reservados
// devuelven ErrInvalidUpdate.
func sanitizeUpdate(update domain.Update) (domain.Update, error) {
	out := make(domain.Update, len(update))
	for op, raw := range update {
		if _, ok := updateOperators[op]; !ok {
			return nil, ErrInvalidUpdate
		}
		fields, ok := fieldMap(raw)
		if !ok {
			return nil, ErrInvalidUpdate
		}
		clean := make(domain.Document, len(fields))
		for field, value := range fields {
			root, _, nested := strings.Cut(field, ".")
			if nested && isReservedField(root) {
				return nil, ErrInvalidUpdate
			}
			switch field {
			case domain.FieldID, domain.FieldKey, domain.FieldProvider,
				domain.FieldOTPHash, domain.FieldOTPExpiry, domain.FieldOTPAttempts:
				continue
			case domain.FieldPassword:
				switch op {
				case "$unset":
					clean[field] = ""
				case "$set":
					password, ok := value.(string)
					if !ok {
						return nil, ErrInvalidUpdate
					}
					hash, err := HashPassword(password)
					if err != nil {
						return nil, ErrInvalidUpdate
					}
					clean[field] = hash
				default:
					return nil, ErrInvalidUpdate
				}
			default:
				clean[field] = value
			}
		}
		if len(clean) > 0 {
			out[op] = clean
		}
	}
	if len(out) == 0 {
		return nil, ErrInvalidUpdate
	}
	return out, nil
}

func fieldMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case domain.Document:
		return m, true
	case domain.Filter:
		return m, true
	}
	return nil, false
}
