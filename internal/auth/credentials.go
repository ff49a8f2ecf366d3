package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/trademart/server/internal/model"
	"github.com/trademart/server/internal/repo"
)

// dummyHash is a bcrypt hash of a random value no caller can supply. It is
// compared against when the identity is unknown so that lookups cost the
// same whether or not the account exists.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// CredentialVerifier checks identity plus password (and, for admins, the
// secret key) against stored records. Stateless apart from the best-effort
// failed-attempt counter.
type CredentialVerifier struct {
	accounts repo.AccountRepo
	logger   *zap.Logger
}

// NewCredentialVerifier creates a new credential verifier.
func NewCredentialVerifier(accounts repo.AccountRepo, logger *zap.Logger) *CredentialVerifier {
	return &CredentialVerifier{accounts: accounts, logger: logger}
}

// Verify returns the account when all required factors match. Every failure
// mode resolves to ErrInvalidCredentials: unknown identity, wrong password
// and wrong secret key are indistinguishable to the caller.
func (v *CredentialVerifier) Verify(ctx context.Context, identity, password, secretKey string) (*model.Account, error) {
	account, err := v.accounts.GetByEmail(ctx, identity)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// Burn a compare so timing does not reveal account existence.
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	passwordOK := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) == nil

	secretKeyOK := true
	if account.Role == model.RoleAdmin {
		// Both factors are always checked; a failed password does not skip
		// the secret key compare.
		secretKeyOK = account.SecretKeyHash != "" &&
			bcrypt.CompareHashAndPassword([]byte(account.SecretKeyHash), []byte(secretKey)) == nil
	}

	if !passwordOK || !secretKeyOK {
		if err := v.accounts.IncrementFailedAttempts(ctx, account.ID); err != nil {
			v.logger.Warn("failed to record login attempt", zap.Error(err))
		}
		return nil, ErrInvalidCredentials
	}

	if account.FailedAttempts > 0 {
		if err := v.accounts.ResetFailedAttempts(ctx, account.ID); err != nil {
			v.logger.Warn("failed to reset attempt counter", zap.Error(err))
		}
	}

	return &account, nil
}
