package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName         = "PratoFrio"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultTokenTTL        = 7 * 24 * time.Hour
	defaultDonationMinimum = 99
	defaultDonationWindow  = 72 * time.Hour
	defaultPreviewLimit    = 720 * time.Second
	defaultLoginRateLimit  = 5
	defaultAllowedCountry  = "MZ"
	defaultMpesaHost       = "api.vm.co.mz"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string
	AppEnv   string
	Port     string
	LogLevel string

	DatabaseURL string
	RedisURL    string

	JWTSecret string
	TokenTTL  time.Duration

	// DonationMinimum is the smallest accepted donation amount in MZN.
	DonationMinimum int64
	// DonationValidity is how long a completed donation grants access.
	DonationValidity time.Duration

	// PreviewLimit is how much playback an unentitled viewer gets before the gate closes.
	PreviewLimit time.Duration

	LoginRateLimit int

	AllowedCountry  string
	GeoBlockEnabled bool

	MpesaAPIKey              string
	MpesaPublicKey           string
	MpesaServiceProviderCode string
	MpesaHost                string

	ShutdownPeriod time.Duration
}

// Load reads configuration values from the environment and populates a Config
// instance. A .env file is honoured when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:                  getEnv("APP_NAME", defaultAppName),
		AppEnv:                   getEnv("APP_ENV", defaultAppEnv),
		Port:                     getEnv("PORT", defaultPort),
		LogLevel:                 strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		RedisURL:                 os.Getenv("REDIS_URL"),
		JWTSecret:                os.Getenv("JWT_SECRET"),
		TokenTTL:                 defaultTokenTTL,
		DonationMinimum:          defaultDonationMinimum,
		DonationValidity:         defaultDonationWindow,
		PreviewLimit:             defaultPreviewLimit,
		LoginRateLimit:           defaultLoginRateLimit,
		AllowedCountry:           strings.ToUpper(getEnv("ALLOWED_COUNTRY", defaultAllowedCountry)),
		MpesaAPIKey:              os.Getenv("MPESA_API_KEY"),
		MpesaPublicKey:           os.Getenv("MPESA_PUBLIC_KEY"),
		MpesaServiceProviderCode: os.Getenv("MPESA_SERVICE_PROVIDER_CODE"),
		MpesaHost:                getEnv("MPESA_HOST", defaultMpesaHost),
		ShutdownPeriod:           defaultShutdownDelay,
	}

	var err error
	if cfg.TokenTTL, err = durationEnv("TOKEN_TTL", cfg.TokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.DonationValidity, err = durationEnv("DONATION_VALIDITY", cfg.DonationValidity); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("PREVIEW_LIMIT_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("invalid PREVIEW_LIMIT_SECONDS: %q", v)
		}
		cfg.PreviewLimit = time.Duration(seconds) * time.Second
	}

	if v := os.Getenv("DONATION_MINIMUM"); v != "" {
		minimum, err := strconv.ParseInt(v, 10, 64)
		if err != nil || minimum <= 0 {
			return Config{}, fmt.Errorf("invalid DONATION_MINIMUM: %q", v)
		}
		cfg.DonationMinimum = minimum
	}

	if v := os.Getenv("LOGIN_RATE_LIMIT"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return Config{}, fmt.Errorf("invalid LOGIN_RATE_LIMIT: %q", v)
		}
		cfg.LoginRateLimit = limit
	}

	// Geo blocking can only be switched off in development.
	disable := strings.EqualFold(os.Getenv("GEO_BLOCK_DISABLED"), "true")
	cfg.GeoBlockEnabled = !(cfg.IsDev() && disable)

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET must be set")
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
