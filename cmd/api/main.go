package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/trademart/server/internal/auth"
	"github.com/trademart/server/internal/config"
	"github.com/trademart/server/internal/db"
	httphandler "github.com/trademart/server/internal/http"
	"github.com/trademart/server/internal/http/handlers"
	"github.com/trademart/server/internal/repo"
)

func main() {
	// Env vars override .env values.
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.DevMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	var (
		accountRepo repo.AccountRepo
		pendingRepo repo.PendingLoginRepo
		sessionRepo repo.SessionRepo
	)

	if cfg.DatabaseURL == "" {
		// Dev mode without a database: everything in memory.
		logger.Warn("DATABASE_URL not set, using in-memory stores (dev mode)")
		accountRepo = repo.NewMemoryAccountRepo()
		pendingRepo = repo.NewMemoryPendingLoginRepo()
		sessionRepo = repo.NewMemorySessionRepo()
	} else {
		database, err := db.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal("failed to open database", zap.Error(err))
		}
		defer database.Close()

		if err := runMigrations(database); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}

		accountRepo = repo.NewAccountRepo(database)
		pendingRepo = repo.NewPendingLoginRepo(database)
		sessionRepo = repo.NewSessionRepo(database)
	}

	if cfg.SessionBackend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		sessionRepo = repo.NewRedisSessionRepo(client)
	}

	dispatcher, err := newDispatcher(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize otp dispatcher", zap.Error(err))
	}

	verifier := auth.NewCredentialVerifier(accountRepo, logger)
	otpManager := auth.NewOTPManager(pendingRepo, dispatcher, logger, auth.OTPConfig{
		Salt:               cfg.OTPSalt,
		Length:             cfg.OTPLength,
		TTL:                cfg.OTPTTL,
		MaxAttempts:        cfg.OTPMaxAttempts,
		MaxIssuesPerWindow: cfg.InitMaxPerWindow,
		IssueWindow:        cfg.InitWindow,
	})
	sessionStore := auth.NewSessionStore(sessionRepo, logger, cfg.JWTSecret, cfg.SessionTTL)
	service := auth.NewService(verifier, otpManager, sessionStore, logger)

	authHandler := handlers.NewAuthHandler(service, logger)
	router := httphandler.NewRouter(authHandler, sessionStore, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

// newLogger builds the zap logger: human-readable in dev, JSON in production.
func newLogger(devMode bool) (*zap.Logger, error) {
	if devMode {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newDispatcher picks the OTP delivery channel. SMTP when configured; the
// log dispatcher is the dev fallback and refuses to run outside dev mode.
func newDispatcher(cfg *config.Config, logger *zap.Logger) (auth.Dispatcher, error) {
	if cfg.SMTPHost != "" {
		return auth.NewSMTPDispatcher(auth.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	}
	if !cfg.DevMode {
		return nil, fmt.Errorf("SMTP_HOST is required unless DEV_MODE is set")
	}
	logger.Warn("SMTP not configured, OTP codes will be logged (dev mode)")
	return auth.NewLogDispatcher(logger), nil
}

// runMigrations runs database migrations using goose
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from the repo root)")
	}

	absDir, _ := filepath.Abs(migrationDir)
	log.Printf("Running migrations from %s", absDir)

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
