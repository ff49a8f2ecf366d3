package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Port        string
	DatabaseURL string
	JWTSecret   string
	OTPSalt     string
	DevMode     bool

	OTPLength      int
	OTPTTL         time.Duration
	OTPMaxAttempts int
	SessionTTL     time.Duration

	// Per-identity login-init limit (count per window, enforced at the store).
	InitMaxPerWindow int
	InitWindow       time.Duration

	// SessionBackend selects the session store: "postgres" or "redis".
	SessionBackend string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// Load reads configuration from config.yaml (if present) and the
// environment; env vars take precedence.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("DEV_MODE", false)
	v.SetDefault("OTP_LENGTH", 6)
	v.SetDefault("OTP_TTL", 5*time.Minute)
	v.SetDefault("OTP_MAX_ATTEMPTS", 5)
	v.SetDefault("SESSION_TTL", 12*time.Hour)
	v.SetDefault("INIT_MAX_PER_WINDOW", 3)
	v.SetDefault("INIT_WINDOW", 10*time.Minute)
	v.SetDefault("SESSION_BACKEND", "postgres")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "no-reply@trademart.local")

	// A missing config file is fine; env-only deployments are the norm.
	_ = v.ReadInConfig()

	cfg := &Config{
		Port:             v.GetString("APP_PORT"),
		DatabaseURL:      v.GetString("DATABASE_URL"),
		JWTSecret:        v.GetString("JWT_SECRET"),
		OTPSalt:          v.GetString("OTP_SALT"),
		DevMode:          v.GetBool("DEV_MODE"),
		OTPLength:        v.GetInt("OTP_LENGTH"),
		OTPTTL:           v.GetDuration("OTP_TTL"),
		OTPMaxAttempts:   v.GetInt("OTP_MAX_ATTEMPTS"),
		SessionTTL:       v.GetDuration("SESSION_TTL"),
		InitMaxPerWindow: v.GetInt("INIT_MAX_PER_WINDOW"),
		InitWindow:       v.GetDuration("INIT_WINDOW"),
		SessionBackend:   v.GetString("SESSION_BACKEND"),
		RedisAddr:        v.GetString("REDIS_ADDR"),
		RedisPassword:    v.GetString("REDIS_PASSWORD"),
		RedisDB:          v.GetInt("REDIS_DB"),
		SMTPHost:         v.GetString("SMTP_HOST"),
		SMTPPort:         v.GetInt("SMTP_PORT"),
		SMTPUsername:     v.GetString("SMTP_USERNAME"),
		SMTPPassword:     v.GetString("SMTP_PASSWORD"),
		SMTPFrom:         v.GetString("SMTP_FROM"),
	}

	if cfg.DatabaseURL == "" && !cfg.DevMode {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.OTPSalt == "" {
		return nil, fmt.Errorf("OTP_SALT is required")
	}
	if cfg.SessionBackend != "postgres" && cfg.SessionBackend != "redis" {
		return nil, fmt.Errorf("SESSION_BACKEND must be postgres or redis, got %q", cfg.SessionBackend)
	}
	if cfg.OTPLength < 4 || cfg.OTPLength > 10 {
		return nil, fmt.Errorf("OTP_LENGTH must be between 4 and 10, got %d", cfg.OTPLength)
	}

	return cfg, nil
}
