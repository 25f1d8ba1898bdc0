package config

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds runtime configuration for the schoold service.
type Config struct {
	Addr           string   `env:"ADDR,default=:8080"`
	Env            string   `env:"APP_ENV,default=development"`
	AppURL         string   `env:"APP_URL,default=http://localhost:3001"`
	DBDSN          string   `env:"DB_DSN,required"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS,default=http://localhost:5173"`

	// Token codec. Access and refresh secrets are disjoint so compromise of one
	// cannot forge the other kind.
	JWTSigningKey   string        `env:"JWT_SIGNING_KEY,required"`
	JWTRefreshKey   string        `env:"JWT_REFRESH_KEY,required"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL,default=15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL,default=168h"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT,default=587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASS"`
	MailFrom     string `env:"MAIL_FROM,default=onboarding@schoold.local"`
	MailFallback string `env:"MAIL_FALLBACK_FROM"`

	S3Endpoint       string `env:"S3_ENDPOINT"`
	S3AccessKey      string `env:"S3_ACCESS_KEY"`
	S3SecretKey      string `env:"S3_SECRET_KEY"`
	S3Region         string `env:"S3_REGION,default=us-east-1"`
	S3Bucket         string `env:"S3_BUCKET,default=schoold"`
	S3DisableTLS     bool   `env:"S3_DISABLE_TLS,default=false"`
	S3ForcePathStyle bool   `env:"S3_FORCE_PATH_STYLE,default=true"`

	NATSURL string `env:"NATS_URL"`

	// Bootstrap admin, created on startup when absent.
	AdminEmail    string `env:"ADMIN_EMAIL,default=admin@schoold.local"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	CookieDomain string `env:"COOKIE_DOMAIN"`
}

// Load returns a Config populated from environment variables.
func Load(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Production reports whether the service runs with production hardening
// (Secure cookies, real email dispatch).
func (c Config) Production() bool {
	return c.Env == "production"
}
