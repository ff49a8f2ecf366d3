package repo

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/trademart/server/internal/model"
)

// PendingLoginRepo defines the interface for pending-login repository
// operations. The store guarantees at most one unconsumed pending login per
// account, and Consume is atomic so that concurrent verifications of the
// same pending login cannot both succeed.
type PendingLoginRepo interface {
	CreateOrReplace(ctx context.Context, p *model.PendingLogin) error
	Get(ctx context.Context, id uuid.UUID) (model.PendingLogin, error)
	IncrementAttempt(ctx context.Context, id uuid.UUID) (newAttemptCount int, err error)
	Consume(ctx context.Context, id uuid.UUID) (consumed bool, err error)
	CountRecentByAccount(ctx context.Context, accountID uuid.UUID, since time.Time) (int, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type pendingLoginRepo struct {
	db *sql.DB
}

// NewPendingLoginRepo creates a new PendingLoginRepo backed by PostgreSQL.
func NewPendingLoginRepo(db *sql.DB) PendingLoginRepo {
	return &pendingLoginRepo{db: db}
}

// CreateOrReplace ensures only one active pending login per account:
// atomically consumes any existing unconsumed row and inserts a new one.
// Last writer wins. Uses an advisory xact lock to serialize per account
// and avoid duplicate-key races on the partial unique index.
func (r *pendingLoginRepo) CreateOrReplace(ctx context.Context, p *model.PendingLogin) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Released on COMMIT/ROLLBACK; blocks until held.
	_, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(1, hashtext($1))`, p.AccountID.String())
	if err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}

	// Consume ALL unconsumed rows for the account, including expired ones.
	_, err = tx.ExecContext(ctx, `
		UPDATE pending_logins
		SET consumed_at = now()
		WHERE account_id = $1 AND consumed_at IS NULL
	`, p.AccountID)
	if err != nil {
		return fmt.Errorf("consume existing pending logins: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO pending_logins (id, account_id, email, role, otp_hash, expires_at, request_ip)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, p.ID, p.AccountID, p.Email, string(p.Role), hex.EncodeToString(p.OTPHash), p.ExpiresAt, p.RequestIP).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert pending login: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Get returns the pending login if it has not been consumed. Expired rows
// are still returned; expiry classification is the caller's concern.
func (r *pendingLoginRepo) Get(ctx context.Context, id uuid.UUID) (model.PendingLogin, error) {
	query := `
		SELECT id, account_id, email, role, otp_hash, expires_at, consumed_at,
		       created_at, attempt_count, last_attempt_at, request_ip
		FROM pending_logins
		WHERE id = $1 AND consumed_at IS NULL
	`
	var p model.PendingLogin
	var idStr, accountIDStr, role, otpHashHex string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&idStr,
		&accountIDStr,
		&p.Email,
		&role,
		&otpHashHex,
		&p.ExpiresAt,
		&p.ConsumedAt,
		&p.CreatedAt,
		&p.AttemptCount,
		&p.LastAttemptAt,
		&p.RequestIP,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PendingLogin{}, ErrNotFound
		}
		return model.PendingLogin{}, fmt.Errorf("query pending login: %w", err)
	}
	p.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.PendingLogin{}, fmt.Errorf("parse pending login ID: %w", err)
	}
	p.AccountID, err = uuid.Parse(accountIDStr)
	if err != nil {
		return model.PendingLogin{}, fmt.Errorf("parse account ID: %w", err)
	}
	p.Role = model.Role(role)
	p.OTPHash, err = hex.DecodeString(otpHashHex)
	if err != nil {
		return model.PendingLogin{}, fmt.Errorf("decode otp_hash: %w", err)
	}
	return p, nil
}

// IncrementAttempt bumps attempt_count and last_attempt_at; returns the new count.
func (r *pendingLoginRepo) IncrementAttempt(ctx context.Context, id uuid.UUID) (int, error) {
	var newCount int
	err := r.db.QueryRowContext(ctx, `
		UPDATE pending_logins
		SET attempt_count = attempt_count + 1, last_attempt_at = now()
		WHERE id = $1 AND consumed_at IS NULL
		RETURNING attempt_count
	`, id).Scan(&newCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("increment attempt: %w", err)
	}
	return newCount, nil
}

// Consume marks the pending login consumed. Returns true only for the call
// that actually flipped the row; a concurrent second consume gets false.
func (r *pendingLoginRepo) Consume(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE pending_logins SET consumed_at = now()
		WHERE id = $1 AND consumed_at IS NULL
	`, id)
	if err != nil {
		return false, fmt.Errorf("consume pending login: %w", err)
	}
	n, _ := result.RowsAffected()
	return n == 1, nil
}

// CountRecentByAccount returns how many pending logins were created for the
// account since the given time (per-identity issuance rate limiting).
func (r *pendingLoginRepo) CountRecentByAccount(ctx context.Context, accountID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pending_logins
		WHERE account_id = $1 AND created_at >= $2
	`, accountID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count recent pending logins: %w", err)
	}
	return count, nil
}

// DeleteExpired reclaims rows whose expiry passed before the given time.
// Correctness does not depend on this; expiry is evaluated at validation.
func (r *pendingLoginRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM pending_logins WHERE expires_at < $1
	`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired pending logins: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
