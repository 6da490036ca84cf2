package domain

// Session es el estado de sesión del lado servidor: token por colección y el nonce
// del flujo OAuth en curso.
type Session struct {
	ID         string            `json:"id"`
	Tokens     map[string]string `json:"tokens"`
	OAuthNonce string            `json:"oauth_nonce,omitempty"`
}

// NewSession crea una sesión vacía con el id indicado.
func NewSession(id string) *Session {
	return &Session{ID: id, Tokens: make(map[string]string)}
}

// Token devuelve el token guardado para la colección.
func (s *Session) Token(collection string) (string, bool) {
	if s == nil || s.Tokens == nil {
		return "", false
	}
	tok, ok := s.Tokens[collection]
	return tok, ok
}

// SetToken guarda el token de la colección.
func (s *Session) SetToken(collection, token string) {
	if s.Tokens == nil {
		s.Tokens = make(map[string]string)
	}
	s.Tokens[collection] = token
}

// Drop elimina el token de la colección.
func (s *Session) Drop(collection string) {
	delete(s.Tokens, collection)
}

// Clone devuelve una copia independiente.
func (s *Session) Clone() *Session {
	out := NewSession(s.ID)
	for k, v := range s.Tokens {
		out.Tokens[k] = v
	}
	out.OAuthNonce = s.OAuthNonce
	return out
}

// Equal compara id, tokens y nonce.
func (s *Session) Equal(o *Session) bool {
	if s.ID != o.ID || s.OAuthNonce != o.OAuthNonce || len(s.Tokens) != len(o.Tokens) {
		return false
	}
	for k, v := range s.Tokens {
		if w, ok := o.Tokens[k]; !ok || w != v {
			return false
		}
	}
	return true
}

// Empty indica que no queda nada que persistir.
func (s *Session) Empty() bool {
	return len(s.Tokens) == 0 && s.OAuthNonce == ""
}

// SessionClaims es el payload firmado de un token de sesión.
// PasswordStamp deriva del hash vigente al emitir el token; cambia al rotar el password.
type SessionClaims struct {
	Collection    string `json:"collection"`
	Key           string `json:"_key"`
	PasswordStamp string `json:"stamp,omitempty"`
	Query         Filter `json:"query,omitempty"`
}
