package config

import (
	"strings"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort      string `env:"HTTP_PORT" envDefault:"8080"`
	ServerSecret  string `env:"SERVER_SECRET,required,notEmpty"`
	APIKey        string `env:"API_KEY"`
	SessionCookie string `env:"SESSION_COOKIE" envDefault:"coglex_session"`
	SecureCookie  bool   `env:"SESSION_SECURE_COOKIE" envDefault:"true"`

	MongoURI          string `env:"MONGODB_URI,required,notEmpty"`
	MongoDatabase     string `env:"MONGODB_DATABASE" envDefault:"coglex"`
	AuthCollection    string `env:"AUTH_COLLECTION" envDefault:"users"`
	ArchiveCollection string `env:"ARCHIVE_COLLECTION" envDefault:"archives"`

	UploadDir        string `env:"UPLOAD_DIR" envDefault:"uploads"`
	MaxContentLength int64  `env:"MAX_CONTENT_LENGTH" envDefault:"16777216"`

	SessionTTLMinutes    int `env:"SESSION_TTL_MINUTES" envDefault:"11520"`
	OTPLength            int `env:"OTP_LENGTH" envDefault:"6"`
	OTPTTLMinutes        int `env:"OTP_TTL_MINUTES" envDefault:"10"`
	OTPMaxAttempts       int `env:"OTP_MAX_ATTEMPTS" envDefault:"5"`
	OTPRequestsPerWindow int `env:"OTP_REQUESTS_PER_WINDOW" envDefault:"3"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"465"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME" envDefault:"Coglex Intelligence"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"true"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`

	LLMAPIKey  string `env:"LLM_API_KEY"`
	LLMBaseURL string `env:"LLM_BASE_URL" envDefault:"https://api.groq.com/openai/v1"`
	LLMModel   string `env:"LLM_MODEL" envDefault:"llama-3.3-70b-versatile"`

	S3Bucket    string `env:"S3_BUCKET"`
	S3Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`

	Google OAuthProvider `envPrefix:"OAUTH_GOOGLE_"`
	GitHub OAuthProvider `envPrefix:"OAUTH_GITHUB_"`

	// Colecciones donde un login OAuth puede crear o abrir identidades.
	OAuthCollections []string `env:"OAUTH_COLLECTIONS" envSeparator:","`
}

// OAuthProvider describe la configuración de un proveedor OAuth 2.0.
type OAuthProvider struct {
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	AuthorizeURL string   `env:"AUTHORIZE_URL"`
	TokenURL     string   `env:"TOKEN_URL"`
	UserinfoURL  string   `env:"USERINFO_URL"`
	Scopes       []string `env:"SCOPES" envSeparator:","`
	RedirectURL  string   `env:"REDIRECT_URL"`
}

// Configured indica si el proveedor tiene credenciales y endpoints.
func (p OAuthProvider) Configured() bool {
	return p.ClientID != "" && p.ClientSecret != "" &&
		p.AuthorizeURL != "" && p.TokenURL != "" && p.UserinfoURL != ""
}

// OAuthProviders devuelve los proveedores configurados indexados por nombre.
func (c *Config) OAuthProviders() map[string]OAuthProvider {
	out := make(map[string]OAuthProvider)
	if c.Google.Configured() {
		out["google"] = c.Google
	}
	if c.GitHub.Configured() {
		out["github"] = c.GitHub
	}
	return out
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.APIKey) == "" {
		c.APIKey = c.ServerSecret
	}
	if len(c.OAuthCollections) == 0 {
		c.OAuthCollections = []string{c.AuthCollection}
	}
	fillProvider(&c.Google, OAuthProvider{
		AuthorizeURL: "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL:     "https://oauth2.googleapis.com/token",
		UserinfoURL:  "https://openidconnect.googleapis.com/v1/userinfo",
		Scopes:       []string{"openid", "email", "profile"},
	})
	fillProvider(&c.GitHub, OAuthProvider{
		AuthorizeURL: "https://github.com/login/oauth/authorize",
		TokenURL:     "https://github.com/login/oauth/access_token",
		UserinfoURL:  "https://api.github.com/user",
		Scopes:       []string{"read:user", "user:email"},
	})
}

func fillProvider(p *OAuthProvider, defaults OAuthProvider) {
	if p.AuthorizeURL == "" {
		p.AuthorizeURL = defaults.AuthorizeURL
	}
	if p.TokenURL == "" {
		p.TokenURL = defaults.TokenURL
	}
	if p.UserinfoURL == "" {
		p.UserinfoURL = defaults.UserinfoURL
	}
	if len(p.Scopes) == 0 {
		p.Scopes = defaults.Scopes
	}
}
