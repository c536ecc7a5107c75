package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	defaultDSN         = "host=localhost user=postgres password=postgres dbname=catalog port=5432 sslmode=disable"
	defaultCORSOrigins = "http://localhost:4200"
)

var (
	ErrMissingJWTSecret = errors.New("JWT_SECRET is not set")
	ErrShortJWTSecret   = errors.New("JWT_SECRET must be at least 32 characters")
	ErrUnknownDriver    = errors.New("DATABASE_DRIVER must be postgres or sqlite")
)

type Config struct {
	AppEnv   string
	HTTPPort string

	DatabaseDriver string
	DatabaseDSN    string

	JWTSecret string
	JWTTTL    time.Duration

	CORSOrigins string

	PhotoPath     string // directory holding product photos
	PhotoBaseURL  string // public prefix used to build product.url
	PhotoMaxBytes int64

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	LogLevel string
	LogFile  string

	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPassword  string
	SMTPFrom      string
	ResetTokenTTL time.Duration

	ShutdownTimeout time.Duration
}

// Load reads the environment (and a .env file when one exists) into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:          getEnv("APP_ENV", "development"),
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		DatabaseDriver:  strings.ToLower(getEnv("DATABASE_DRIVER", "postgres")),
		DatabaseDSN:     getEnv("DATABASE_DSN", defaultDSN),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		JWTTTL:          getEnvDuration("JWT_TTL", 24*time.Hour),
		CORSOrigins:     getEnv("CORS_ALLOWED_ORIGINS", defaultCORSOrigins),
		PhotoPath:       getEnv("PHOTO_PATH", "./photos"),
		PhotoBaseURL:    strings.TrimRight(getEnv("PHOTO_BASE_URL", "/photos"), "/"),
		PhotoMaxBytes:   int64(getEnvInt("PHOTO_MAX_BYTES", 3*1024*1024)),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		CacheTTL:        getEnvDuration("CACHE_TTL", 5*time.Minute),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFile:         getEnv("LOG_FILE", ""),
		SMTPHost:        getEnv("SMTP_HOST", ""),
		SMTPPort:        getEnvInt("SMTP_PORT", 587),
		SMTPUser:        getEnv("SMTP_USER", ""),
		SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:        getEnv("SMTP_FROM", "no-reply@catalog.local"),
		ResetTokenTTL:   getEnvDuration("RESET_TOKEN_TTL", time.Hour),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the service cannot run without.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if len(c.JWTSecret) < 32 {
		return ErrShortJWTSecret
	}
	if c.DatabaseDriver != "postgres" && c.DatabaseDriver != "sqlite" {
		return ErrUnknownDriver
	}
	return nil
}

// Warn logs settings that still hold their development defaults.
func (c *Config) Warn() {
	if c.DatabaseDriver == "postgres" && c.DatabaseDSN == defaultDSN {
		zap.L().Warn("DATABASE_DSN uses the default value, set your own Postgres connection for production")
	}
	if c.CORSOrigins == defaultCORSOrigins {
		zap.L().Warn("CORS_ALLOWED_ORIGINS uses the default value, set your own domain for production")
	}
	if c.SMTPHost == "" {
		zap.L().Warn("SMTP_HOST is empty, recovery mails will only be logged")
	}
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
