package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeAPI    Mode = "api"
	ModeWorker Mode = "worker"
	ModeCLI    Mode = "cli"
)

// MemoryDatabaseURL selects the in-process store instead of Postgres.
const MemoryDatabaseURL = "memory://"

// Config holds service configuration shared by the API server, the price
// worker and the operator CLI.
type Config struct {
	DatabaseURL           string
	SupabaseURL           string
	SupabaseSecretKey     string
	SupabaseJWTSecret     string
	CryptoProviderAPIKey  string
	CryptoProviderName    string
	CryptoProviderBaseURL string
	RedisURL              string
	PriceCacheSize        int64
	CronSchedule          string
	Port                  string
	Market                MarketConfig
	Logging               LoggingConfig
}

type MarketConfig struct {
	Timeout       time.Duration
	RatePerMinute int
	// Freshness is how long a cached price is served without a live call.
	Freshness time.Duration
	// Retention is how long a price stays available as a stale fallback.
	Retention time.Duration
}

type LoggingConfig struct {
	Level      string
	Format     string
	Output     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func LoadForAPI() (Config, error) {
	return load(ModeAPI)
}

func LoadForWorker() (Config, error) {
	return load(ModeWorker)
}

func LoadForCLI() (Config, error) {
	return load(ModeCLI)
}

func load(mode Mode) (Config, error) {
	// A missing .env file is not an error; the process environment wins.
	_ = godotenv.Load()

	var validationErrs []string

	cfg := Config{
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		SupabaseURL:           os.Getenv("SUPABASE_URL"),
		SupabaseSecretKey:     os.Getenv("SUPABASE_SECRET_KEY"),
		SupabaseJWTSecret:     os.Getenv("SUPABASE_JWT_SECRET"),
		CryptoProviderAPIKey:  os.Getenv("CRYPTO_PROVIDER_API_KEY"),
		CryptoProviderName:    os.Getenv("CRYPTO_PROVIDER_NAME"),
		CryptoProviderBaseURL: os.Getenv("CRYPTO_PROVIDER_BASE_URL"),
		RedisURL:              os.Getenv("REDIS_URL"),
		PriceCacheSize:        int64(envInt("PRICE_CACHE_SIZE", 5000, &validationErrs)),
		CronSchedule:          envDefault("CRON_SCHEDULE", "@every 5m"),
		Port:                  envDefault("PORT", "8080"),
		Market: MarketConfig{
			Timeout:       envDuration("MARKET_TIMEOUT", 8*time.Second, &validationErrs),
			RatePerMinute: envInt("MARKET_RATE_PER_MINUTE", 30, &validationErrs),
			Freshness:     envDuration("MARKET_FRESHNESS", time.Minute, &validationErrs),
			Retention:     envDuration("MARKET_RETENTION", 7*24*time.Hour, &validationErrs),
		},
		Logging: LoggingConfig{
			Level:      envDefault("LOG_LEVEL", "info"),
			Format:     envDefault("LOG_FORMAT", "json"),
			Output:     envDefault("LOG_OUTPUT", "stdout"),
			File:       os.Getenv("LOG_FILE"),
			MaxSizeMB:  envInt("LOG_MAX_SIZE_MB", 100, &validationErrs),
			MaxBackups: envInt("LOG_MAX_BACKUPS", 3, &validationErrs),
			MaxAgeDays: envInt("LOG_MAX_AGE_DAYS", 28, &validationErrs),
		},
	}

	requireEnv("DATABASE_URL", cfg.DatabaseURL, &validationErrs)

	switch mode {
	case ModeAPI:
		if strings.TrimSpace(cfg.SupabaseJWTSecret) == "" {
			requireEnv("SUPABASE_URL", cfg.SupabaseURL, &validationErrs)
			requireEnv("SUPABASE_SECRET_KEY", cfg.SupabaseSecretKey, &validationErrs)
		}
	case ModeWorker:
		requireEnv("CRYPTO_PROVIDER_NAME", cfg.CryptoProviderName, &validationErrs)
		requireEnv("CRYPTO_PROVIDER_API_KEY", cfg.CryptoProviderAPIKey, &validationErrs)
	case ModeCLI:
	default:
		validationErrs = append(validationErrs, "unknown service mode")
	}

	if cfg.Market.RatePerMinute <= 0 {
		validationErrs = append(validationErrs, "MARKET_RATE_PER_MINUTE must be greater than 0")
	}
	if cfg.Market.Freshness > cfg.Market.Retention {
		validationErrs = append(validationErrs, "MARKET_FRESHNESS must not exceed MARKET_RETENTION")
	}

	if len(validationErrs) > 0 {
		return cfg, errors.New(strings.Join(validationErrs, "; "))
	}

	return cfg, nil
}

func envDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int, errs *[]string) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, key+" must be an integer")
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration, errs *[]string) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		*errs = append(*errs, key+" must be a positive duration")
		return fallback
	}
	return v
}

func requireEnv(name, value string, errs *[]string) {
	if strings.TrimSpace(value) == "" {
		*errs = append(*errs, name+" is required")
	}
}
