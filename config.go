package contacts

import (
	"os"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
)

// EnvConfig is the concrete, immutable configuration loaded once at
// startup. It satisfies the auth Config interface and carries the service
// level settings for mail, storage, and HTTP.
type EnvConfig struct {
	SigningKey            string
	Issuer                string
	Audience              []string
	TokenExpiration       int
	ExtendedTokenDuration int

	ListenAddr  string
	DatabaseDSN string
	BaseURL     string

	SMTP SMTPConfig
	S3   S3Config
}

var _ Config = (*EnvConfig)(nil)

func (c *EnvConfig) GetSigningKey() string { return c.SigningKey }

func (c *EnvConfig) GetIssuer() string { return c.Issuer }

func (c *EnvConfig) GetAudience() []string { return c.Audience }

func (c *EnvConfig) GetTokenExpiration() int { return c.TokenExpiration }

func (c *EnvConfig) GetExtendedTokenDuration() int { return c.ExtendedTokenDuration }

// LoadConfig reads the environment, optionally seeded from a .env file.
// The signing key is the only required setting.
func LoadConfig(envFiles ...string) (*EnvConfig, error) {
	// missing .env files are fine, the environment may be set directly
	_ = godotenv.Load(envFiles...)

	cfg := &EnvConfig{
		SigningKey:            os.Getenv("AUTH_SIGNING_KEY"),
		Issuer:                envOr("AUTH_ISSUER", "go-contacts"),
		Audience:              splitList(os.Getenv("AUTH_AUDIENCE")),
		TokenExpiration:       envInt("AUTH_TOKEN_EXPIRATION_MINUTES", 15),
		ExtendedTokenDuration: envInt("AUTH_EXTENDED_TOKEN_MINUTES", int((30*24*time.Hour)/time.Minute)),
		ListenAddr:            envOr("HTTP_LISTEN_ADDR", ":8000"),
		DatabaseDSN:           envOr("DATABASE_DSN", "file:contacts.db?cache=shared"),
		BaseURL:               envOr("BASE_URL", "http://localhost:8000"),
		SMTP: SMTPConfig{
			Host:     os.Getenv("MAIL_SERVER"),
			Port:     envInt("MAIL_PORT", 587),
			Username: os.Getenv("MAIL_USERNAME"),
			Password: os.Getenv("MAIL_PASSWORD"),
			From:     envOr("MAIL_FROM", os.Getenv("MAIL_USERNAME")),
		},
		S3: S3Config{
			Region:       envOr("S3_REGION", "us-east-1"),
			Bucket:       os.Getenv("S3_BUCKET"),
			BaseEndpoint: os.Getenv("S3_BASE_ENDPOINT"),
			AccessKey:    os.Getenv("S3_ACCESS_KEY"),
			SecretKey:    os.Getenv("S3_SECRET_KEY"),
		},
	}

	if cfg.SigningKey == "" {
		return nil, goerrors.New("AUTH_SIGNING_KEY is required", goerrors.CategoryBadInput)
	}

	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
