package domain

// OAuthProfile son los campos normalizados devueltos por un proveedor OAuth.
// EmailVerified es false cuando el proveedor reporta el email como no verificado.
type OAuthProfile struct {
	Provider      string `json:"provider"`
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified"`
}

// OAuthState es el payload firmado que viaja como parámetro state (CSRF).
// Nonce se guarda también en la sesión del navegador que inició el flujo.
type OAuthState struct {
	Provider    string `json:"provider"`
	RedirectURI string `json:"redirect_uri"`
	Nonce       string `json:"nonce"`
	Collection  string `json:"collection,omitempty"`
}
