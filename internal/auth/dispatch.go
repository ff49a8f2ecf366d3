package auth

import (
	"context"
	"fmt"
	"net/smtp"
	"time"

	"github.com/knadh/smtppool"
	"go.uber.org/zap"

	"github.com/trademart/server/internal/model"
)

// Dispatcher delivers the plaintext OTP code over an out-of-band channel.
// Dispatch is fire-and-forget from the orchestrator's perspective: delivery
// failures are logged, never awaited.
type Dispatcher interface {
	Dispatch(ctx context.Context, account *model.Account, code string, ttl time.Duration) error
}

// SMTPConfig holds the mail server settings for the SMTP dispatcher.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPDispatcher sends OTP codes by email through a pooled SMTP connection.
type SMTPDispatcher struct {
	pool *smtppool.Pool
	from string
}

// NewSMTPDispatcher connects the pool eagerly so misconfiguration fails at
// startup, not on the first login.
func NewSMTPDispatcher(cfg SMTPConfig) (*SMTPDispatcher, error) {
	var auth smtp.Auth
	if cfg.Username != "" || cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	pool, err := smtppool.New(smtppool.Opt{
		Host:            cfg.Host,
		Port:            cfg.Port,
		MaxConns:        4,
		IdleTimeout:     15 * time.Second,
		PoolWaitTimeout: 5 * time.Second,
		Auth:            auth,
	})
	if err != nil {
		return nil, fmt.Errorf("smtp pool: %w", err)
	}
	return &SMTPDispatcher{pool: pool, from: cfg.From}, nil
}

// Dispatch emails the code to the account's address.
func (d *SMTPDispatcher) Dispatch(ctx context.Context, account *model.Account, code string, ttl time.Duration) error {
	body := fmt.Sprintf("Your login code is %s. It expires in %d minutes.", code, int(ttl.Minutes()))
	err := d.pool.Send(smtppool.Email{
		From:    d.from,
		To:      []string{account.Email},
		Subject: "Your login code",
		Text:    []byte(body),
	})
	if err != nil {
		return fmt.Errorf("send otp mail: %w", err)
	}
	return nil
}

// LogDispatcher writes the code to the log instead of delivering it.
// Dev mode only; never wire this in production.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher creates a dispatcher that logs codes at debug level.
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, account *model.Account, code string, ttl time.Duration) error {
	d.logger.Debug("otp issued",
		zap.String("email", MaskIdentity(account.Email)),
		zap.String("code", code),
		zap.Duration("ttl", ttl),
	)
	return nil
}
