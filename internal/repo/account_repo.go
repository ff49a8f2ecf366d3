package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/trademart/server/internal/model"
)

// AccountRepo defines the interface for account repository operations.
// Accounts are provisioned out of band; the auth flow only reads them and
// bumps the failed-attempt counter.
type AccountRepo interface {
	Create(ctx context.Context, account *model.Account) error
	GetByEmail(ctx context.Context, email string) (model.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.Account, error)
	IncrementFailedAttempts(ctx context.Context, id uuid.UUID) error
	ResetFailedAttempts(ctx context.Context, id uuid.UUID) error
}

type accountRepo struct {
	db *sql.DB
}

// NewAccountRepo creates a new AccountRepo backed by PostgreSQL.
func NewAccountRepo(db *sql.DB) AccountRepo {
	return &accountRepo{db: db}
}

// Create inserts a new account. Used by the provisioning CLI and tests.
func (r *accountRepo) Create(ctx context.Context, account *model.Account) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, password_hash, secret_key_hash, role)
		VALUES ($1, $2, $3, $4, $5)
	`, account.ID, account.Email, account.PasswordHash, account.SecretKeyHash, string(account.Role))
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetByEmail retrieves an account by its unique email. Matching is
// case-insensitive, backed by the unique index on LOWER(email).
func (r *accountRepo) GetByEmail(ctx context.Context, email string) (model.Account, error) {
	return r.getOne(ctx, `
		SELECT id, email, password_hash, secret_key_hash, role, failed_attempts, created_at
		FROM accounts
		WHERE LOWER(email) = LOWER($1)
	`, email)
}

// GetByID retrieves an account by ID.
func (r *accountRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Account, error) {
	return r.getOne(ctx, `
		SELECT id, email, password_hash, secret_key_hash, role, failed_attempts, created_at
		FROM accounts
		WHERE id = $1
	`, id)
}

func (r *accountRepo) getOne(ctx context.Context, query string, arg interface{}) (model.Account, error) {
	var a model.Account
	var idStr, role string
	var secretKeyHash sql.NullString
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&idStr,
		&a.Email,
		&a.PasswordHash,
		&secretKeyHash,
		&role,
		&a.FailedAttempts,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, ErrNotFound
		}
		return model.Account{}, fmt.Errorf("query account: %w", err)
	}
	a.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.Account{}, fmt.Errorf("parse account ID: %w", err)
	}
	a.SecretKeyHash = secretKeyHash.String
	a.Role = model.Role(role)
	return a, nil
}

// IncrementFailedAttempts bumps the best-effort failed login counter.
func (r *accountRepo) IncrementFailedAttempts(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET failed_attempts = failed_attempts + 1 WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("increment failed attempts: %w", err)
	}
	return nil
}

// ResetFailedAttempts clears the counter after a successful login.
func (r *accountRepo) ResetFailedAttempts(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET failed_attempts = 0 WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("reset failed attempts: %w", err)
	}
	return nil
}
