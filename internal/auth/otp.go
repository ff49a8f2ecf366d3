package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trademart/server/internal/model"
	"github.com/trademart/server/internal/repo"
)

const dispatchTimeout = 10 * time.Second

// OTPConfig holds the tunable parts of the OTP manager.
type OTPConfig struct {
	Salt        string
	Length      int
	TTL         time.Duration
	MaxAttempts int
	// Issue limit per account within the window.
	MaxIssuesPerWindow int
	IssueWindow        time.Duration
}

// OTPManager generates, stores and validates one-time codes tied to a
// pending login. Only a salted hash of the code is ever stored; the
// plaintext goes to the dispatcher and nowhere else.
type OTPManager struct {
	pending    repo.PendingLoginRepo
	dispatcher Dispatcher
	logger     *zap.Logger
	cfg        OTPConfig
}

// NewOTPManager creates a new OTP manager.
func NewOTPManager(pending repo.PendingLoginRepo, dispatcher Dispatcher, logger *zap.Logger, cfg OTPConfig) *OTPManager {
	return &OTPManager{
		pending:    pending,
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// Issue creates a fresh pending login for the account, replacing any prior
// one (last writer wins), and hands the plaintext code to the dispatcher
// without waiting for delivery. Returns the pending login id the caller
// must present at verification.
func (m *OTPManager) Issue(ctx context.Context, account *model.Account, requestIP string) (uuid.UUID, error) {
	if m.cfg.MaxIssuesPerWindow > 0 {
		since := time.Now().Add(-m.cfg.IssueWindow)
		count, err := m.pending.CountRecentByAccount(ctx, account.ID, since)
		if err != nil {
			return uuid.Nil, fmt.Errorf("issuance rate check: %w", err)
		}
		if count >= m.cfg.MaxIssuesPerWindow {
			return uuid.Nil, ErrRateLimited
		}
	}

	code, err := generateOTPCode(m.cfg.Length)
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate code: %w", err)
	}

	var ip *string
	if requestIP != "" {
		ip = &requestIP
	}
	p := &model.PendingLogin{
		AccountID: account.ID,
		Email:     account.Email,
		Role:      account.Role,
		OTPHash:   hashOTPBytes(account.Email, code, m.cfg.Salt),
		ExpiresAt: time.Now().Add(m.cfg.TTL),
		RequestIP: ip,
	}
	if err := m.pending.CreateOrReplace(ctx, p); err != nil {
		return uuid.Nil, fmt.Errorf("create pending login: %w", err)
	}

	// Fire-and-forget: the login response does not wait on delivery.
	acc := *account
	go func() {
		dctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		if err := m.dispatcher.Dispatch(dctx, &acc, code, m.cfg.TTL); err != nil {
			m.logger.Error("otp dispatch failed",
				zap.String("email", MaskIdentity(acc.Email)),
				zap.Error(err),
			)
		}
	}()

	return p.ID, nil
}

// Validate checks a supplied code against the pending login. Expiry is
// checked before the comparison, so an expired code always fails
// ErrOtpExpired even when correct. A successful validation consumes the
// pending login atomically: replays and concurrent duplicates fail.
func (m *OTPManager) Validate(ctx context.Context, pendingLoginID uuid.UUID, code string) (*model.PendingLogin, error) {
	p, err := m.pending.Get(ctx, pendingLoginID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrOtpExpired
		}
		return nil, fmt.Errorf("load pending login: %w", err)
	}

	if time.Now().After(p.ExpiresAt) {
		if _, err := m.pending.Consume(ctx, p.ID); err != nil {
			m.logger.Warn("failed to consume expired pending login", zap.Error(err))
		}
		return nil, ErrOtpExpired
	}

	supplied := hashOTPBytes(p.Email, code, m.cfg.Salt)
	if !constantTimeCompare(supplied, p.OTPHash) {
		newCount, err := m.pending.IncrementAttempt(ctx, p.ID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, ErrOtpExpired
			}
			return nil, fmt.Errorf("record attempt: %w", err)
		}
		if newCount >= m.cfg.MaxAttempts {
			if _, err := m.pending.Consume(ctx, p.ID); err != nil {
				m.logger.Warn("failed to consume exhausted pending login", zap.Error(err))
			}
			return nil, ErrOtpAttemptsExceeded
		}
		return nil, ErrOtpMismatch
	}

	consumed, err := m.pending.Consume(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("consume pending login: %w", err)
	}
	if !consumed {
		// Lost the race to a concurrent validation, or a replay.
		return nil, ErrOtpExpired
	}
	return &p, nil
}

// generateOTPCode returns a random numeric code of the given length.
func generateOTPCode(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}

// hashOTPBytes returns SHA-256(identity:code:salt).
func hashOTPBytes(identity, code, salt string) []byte {
	data := fmt.Sprintf("%s:%s:%s", identity, code, salt)
	hash := sha256.Sum256([]byte(data))
	return hash[:]
}

func constantTimeCompare(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var result int
	for i := 0; i < len(a); i++ {
		result |= int(a[i]) ^ int(b[i])
	}
	return result == 0
}
