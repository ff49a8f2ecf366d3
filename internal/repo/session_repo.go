package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/trademart/server/internal/model"
)

// SessionRepo defines the interface for session repository operations.
// Revoke is a no-op on unknown or already-revoked sessions; logout must be
// safe to call redundantly.
type SessionRepo interface {
	Create(ctx context.Context, s *model.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (model.Session, error)
	Revoke(ctx context.Context, id uuid.UUID) error
	RevokeAllForAccount(ctx context.Context, accountID uuid.UUID) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type sessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a new SessionRepo backed by PostgreSQL.
func NewSessionRepo(db *sql.DB) SessionRepo {
	return &sessionRepo{db: db}
}

// Create inserts a new session row.
func (r *sessionRepo) Create(ctx context.Context, s *model.Session) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO sessions (id, account_id, email, role, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, s.ID, s.AccountID, s.Email, string(s.Role), s.ExpiresAt).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetByID returns the session row regardless of revocation or expiry;
// classification is the caller's concern.
func (r *sessionRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Session, error) {
	var s model.Session
	var idStr, accountIDStr, role string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, account_id, email, role, created_at, expires_at, revoked_at
		FROM sessions
		WHERE id = $1
	`, id).Scan(
		&idStr,
		&accountIDStr,
		&s.Email,
		&role,
		&s.CreatedAt,
		&s.ExpiresAt,
		&s.RevokedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Session{}, ErrNotFound
		}
		return model.Session{}, fmt.Errorf("query session: %w", err)
	}
	s.ID, _ = uuid.Parse(idStr)
	s.AccountID, _ = uuid.Parse(accountIDStr)
	s.Role = model.Role(role)
	return s, nil
}

// Revoke sets revoked_at. Unknown or already-revoked sessions are not an
// error.
func (r *sessionRepo) Revoke(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET revoked_at = now()
		WHERE id = $1 AND revoked_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeAllForAccount revokes every active session for the account
// (administrative force-logout).
func (r *sessionRepo) RevokeAllForAccount(ctx context.Context, accountID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET revoked_at = now()
		WHERE account_id = $1 AND revoked_at IS NULL
	`, accountID)
	if err != nil {
		return fmt.Errorf("revoke all sessions for account: %w", err)
	}
	return nil
}

// DeleteExpired reclaims long-dead session rows.
func (r *sessionRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE expires_at < $1
	`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
