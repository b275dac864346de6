package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv string `validate:"required"`
	Port   string `validate:"required,numeric"`

	DatabaseURL string `validate:"required"`
	DBDriver    string `validate:"oneof=postgres sqlite"`

	GatewayToken   string `validate:"required"`
	AllowedOrigins string

	RedisAddr        string
	ProgressCacheTTL time.Duration `validate:"gte=0"`

	PuzzleDigestSalt  string `validate:"required,min=8"`
	PuzzleMaxAttempts int    `validate:"gte=1,lte=10"`

	UnlockablesFile string

	SyncServiceURL string `validate:"omitempty,url"`

	R2 R2Config

	RateLimitWindow time.Duration `validate:"gt=0"`
}

// R2Config is optional: premium delivery is disabled unless every field is set.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	URLTTL          time.Duration
}

func (r R2Config) Enabled() bool {
	return r.AccountID != "" && r.AccessKeyID != "" && r.AccessKeySecret != "" && r.Bucket != ""
}

// Load reads .env (if present) and the process environment.
// The returned warnings are meant to be logged by the caller once a logger exists.
func Load() (*Config, []string, error) {
	var warnings []string
	if err := godotenv.Load(); err != nil {
		warnings = append(warnings, "no .env file found, reading environment variables directly")
	}

	cfg := &Config{
		AppEnv:            getenv("APP_ENV", "development"),
		Port:              getenv("PORT", "5200"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		DBDriver:          strings.ToLower(getenv("DB_DRIVER", "postgres")),
		GatewayToken:      os.Getenv("GAME_SERVICE_TOKEN"),
		AllowedOrigins:    getenv("ALLOWED_ORIGINS", "http://localhost:3000"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		PuzzleDigestSalt:  os.Getenv("PUZZLE_DIGEST_SALT"),
		UnlockablesFile:   os.Getenv("UNLOCKABLES_FILE"),
		SyncServiceURL:    os.Getenv("SYNC_SERVICE_URL"),
		PuzzleMaxAttempts: 3,
		R2: R2Config{
			AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          os.Getenv("R2_BUCKET_NAME"),
		},
	}

	var err error
	if cfg.ProgressCacheTTL, err = durationEnv("PROGRESS_CACHE_TTL", 30*time.Second); err != nil {
		return nil, warnings, err
	}
	if cfg.RateLimitWindow, err = durationEnv("RATE_LIMIT_WINDOW", time.Minute); err != nil {
		return nil, warnings, err
	}
	if cfg.R2.URLTTL, err = durationEnv("PREMIUM_URL_TTL", 15*time.Minute); err != nil {
		return nil, warnings, err
	}
	if raw := os.Getenv("PUZZLE_MAX_ATTEMPTS"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return nil, warnings, fmt.Errorf("PUZZLE_MAX_ATTEMPTS: %w", convErr)
		}
		cfg.PuzzleMaxAttempts = n
	}

	if cfg.RedisAddr == "" {
		warnings = append(warnings, "REDIS_ADDR not set, progress cache disabled")
	}
	if !cfg.R2.Enabled() {
		warnings = append(warnings, "R2 credentials not set, premium content delivery disabled")
	}

	if err := cfg.Validate(); err != nil {
		return nil, warnings, err
	}
	return cfg, warnings, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production") || strings.EqualFold(c.AppEnv, "prod")
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
