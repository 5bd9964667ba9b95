package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Stripe    StripeConfig
	Evolution EvolutionConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// AppConfig holds public-facing URLs used in checkout redirects and invitation links.
type AppConfig struct {
	BaseURL      string // e.g. https://app.smartinvite.com.br
	RSVPPath     string // appended to BaseURL before the token
	CheckoutPath string // where Stripe returns the organizer after checkout
}

// CheckoutReturnURL is the success and cancel URL for checkout sessions.
func (c AppConfig) CheckoutReturnURL() string {
	return strings.TrimRight(c.BaseURL, "/") + c.CheckoutPath
}

// RSVPLink returns the public RSVP URL for a token.
func (c AppConfig) RSVPLink(token string) string {
	if token == "" {
		return ""
	}
	return strings.TrimRight(c.BaseURL, "/") + c.RSVPPath + token
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// StripeConfig for event checkout.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	Locale        string
	ProductName   string
}

// EvolutionConfig for the WhatsApp sending provider. Empty token or base URL runs the client in mock mode.
type EvolutionConfig struct {
	BaseURL        string
	Token          string
	WebhookSecret  string
	WebhookBase    string
	TimeoutSeconds int
}

// RateLimitConfig for public RSVP endpoints, in ulule/limiter format (e.g. "30-M").
type RateLimitConfig struct {
	PublicRSVP string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()
	_ = godotenv.Load("env")

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		App: AppConfig{
			BaseURL:      getEnv("PUBLIC_BASE_URL", "http://localhost:3000"),
			RSVPPath:     getEnv("PUBLIC_RSVP_PATH", "/r/"),
			CheckoutPath: getEnv("PUBLIC_CHECKOUT_PATH", "/Pages"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "smartinvite"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			Currency:      getEnv("STRIPE_CURRENCY", "brl"),
			Locale:        getEnv("STRIPE_LOCALE", "pt-BR"),
			ProductName:   getEnv("STRIPE_PRODUCT_NAME", "SmartInvite - Plano por evento"),
		},
		Evolution: EvolutionConfig{
			BaseURL:        strings.TrimSuffix(getEnv("EVOLUTION_BASE_URL", ""), "/dashboard"),
			Token:          getEnv("EVOLUTION_TOKEN", ""),
			WebhookSecret:  getEnv("EVOLUTION_WEBHOOK_SECRET", ""),
			WebhookBase:    getEnv("EVOLUTION_WEBHOOK_BASE", ""),
			TimeoutSeconds: getEnvInt("EVOLUTION_TIMEOUT_SEC", 15),
		},
		RateLimit: RateLimitConfig{
			PublicRSVP: getEnv("RATE_LIMIT_PUBLIC_RSVP", "30-M"),
		},
	}
	if cfg.JWT.ExpireHours <= 0 {
		return nil, fmt.Errorf("JWT_EXPIRE_HOURS must be positive, got %d", cfg.JWT.ExpireHours)
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
