package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// RateBudget describes one sliding-window quota. Name namespaces the
// counter keys so each budget class keeps its own window per address.
type RateBudget struct {
	Name   string
	Window time.Duration
	Max    int
}

// SpeedLimit describes the progressive-delay stage parameters.
type SpeedLimit struct {
	Window     time.Duration
	DelayAfter int
	DelayStep  time.Duration
	MaxDelay   time.Duration
}

// Config captures runtime configuration sourced from environment variables.
type Config struct {
	Environment  string
	HTTPPort     string
	DatabasePath string

	// Shared secret identifying the first-party client. Requests carrying
	// it bypass rate and speed limiting entirely.
	APIKey         string
	AllowedOrigins []string

	MaxBodyBytes int64

	GeneralLimit RateBudget
	AuthLimit    RateBudget
	UploadLimit  RateBudget
	SpeedLimit   SpeedLimit

	// Rate counter backend: "memory" (single instance) or "redis"
	// (shared across instances).
	RateLimitStore string
	RedisURL       string

	SweepInterval    time.Duration
	RetentionHorizon time.Duration

	// Risk thresholds over the trailing hour of events per address.
	RiskMediumCount   int
	RiskHighCount     int
	RiskCriticalCount int

	// Admin surface credentials and token signing secret.
	AdminUser   string
	AdminPass   string
	JWTSecret   string
	TokenExpiry time.Duration

	// Optional shoutrrr URLs notified when an address is auto-blocked.
	NotifyURLs []string
}

// Load reads env vars and falls back to defaults so the server can boot with zero configuration.
func Load() (Config, error) {
	cfg := Config{
		Environment:  getEnv("MARKET_ENV", "development"),
		HTTPPort:     getEnv("MARKET_HTTP_PORT", "8080"),
		DatabasePath: getEnv("MARKET_DB_PATH", filepath.Join("data", "market.db")),

		APIKey:         os.Getenv("MARKET_API_KEY"),
		AllowedOrigins: getEnvList("MARKET_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		MaxBodyBytes: getEnvInt64("MARKET_MAX_BODY_BYTES", 10*1024*1024),

		GeneralLimit: RateBudget{
			Name:   "general",
			Window: getEnvDuration("MARKET_RATE_GENERAL_WINDOW", 15*time.Minute),
			Max:    getEnvInt("MARKET_RATE_GENERAL_MAX", 100),
		},
		AuthLimit: RateBudget{
			Name:   "auth",
			Window: getEnvDuration("MARKET_RATE_AUTH_WINDOW", 15*time.Minute),
			Max:    getEnvInt("MARKET_RATE_AUTH_MAX", 5),
		},
		UploadLimit: RateBudget{
			Name:   "upload",
			Window: getEnvDuration("MARKET_RATE_UPLOAD_WINDOW", time.Hour),
			Max:    getEnvInt("MARKET_RATE_UPLOAD_MAX", 20),
		},
		SpeedLimit: SpeedLimit{
			Window:     getEnvDuration("MARKET_SPEED_WINDOW", 15*time.Minute),
			DelayAfter: getEnvInt("MARKET_SPEED_DELAY_AFTER", 50),
			DelayStep:  getEnvDuration("MARKET_SPEED_DELAY_STEP", 500*time.Millisecond),
			MaxDelay:   getEnvDuration("MARKET_SPEED_MAX_DELAY", 20*time.Second),
		},

		RateLimitStore: getEnv("MARKET_RATE_LIMIT_STORE", "memory"),
		RedisURL:       os.Getenv("MARKET_REDIS_URL"),

		SweepInterval:    getEnvDuration("MARKET_SWEEP_INTERVAL", time.Minute),
		RetentionHorizon: getEnvDuration("MARKET_RETENTION_HORIZON", 24*time.Hour),

		RiskMediumCount:   getEnvInt("MARKET_RISK_MEDIUM_COUNT", 10),
		RiskHighCount:     getEnvInt("MARKET_RISK_HIGH_COUNT", 20),
		RiskCriticalCount: getEnvInt("MARKET_RISK_CRITICAL_COUNT", 50),

		AdminUser:   getEnv("MARKET_ADMIN_USER", "admin"),
		AdminPass:   os.Getenv("MARKET_ADMIN_PASS"),
		JWTSecret:   os.Getenv("MARKET_JWT_SECRET"),
		TokenExpiry: getEnvDuration("MARKET_TOKEN_EXPIRY", 24*time.Hour),

		NotifyURLs: getEnvList("MARKET_NOTIFY_URLS", nil),
	}

	if cfg.RateLimitStore != "memory" && cfg.RateLimitStore != "redis" {
		return Config{}, fmt.Errorf("invalid MARKET_RATE_LIMIT_STORE %q: want memory or redis", cfg.RateLimitStore)
	}
	if cfg.RateLimitStore == "redis" && cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("MARKET_RATE_LIMIT_STORE=redis requires MARKET_REDIS_URL")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}

	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n
		}
	}

	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}

	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}

	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}

	return out
}
