package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trademart/server/internal/model"
)

// Service drives the login state machine: Anonymous -> PendingOtp on a
// successful login-init, PendingOtp -> Authenticated on a successful
// login-verify, back to Anonymous on logout or expiry. It composes the
// credential verifier, the OTP manager and the session store.
type Service struct {
	credentials *CredentialVerifier
	otp         *OTPManager
	sessions    *SessionStore
	logger      *zap.Logger
}

// NewService creates a new auth service.
func NewService(credentials *CredentialVerifier, otp *OTPManager, sessions *SessionStore, logger *zap.Logger) *Service {
	return &Service{
		credentials: credentials,
		otp:         otp,
		sessions:    sessions,
		logger:      logger,
	}
}

// LoginInit verifies the first factor(s) and opens a pending login. On
// failure the caller stays anonymous and learns only ErrInvalidCredentials
// (or ErrRateLimited). A new init for the same account replaces the prior
// pending login.
func (s *Service) LoginInit(ctx context.Context, identity, password, secretKey, requestIP string) (uuid.UUID, error) {
	account, err := s.credentials.Verify(ctx, identity, password, secretKey)
	if err != nil {
		return uuid.Nil, err
	}
	pendingLoginID, err := s.otp.Issue(ctx, account, requestIP)
	if err != nil {
		return uuid.Nil, err
	}
	s.logger.Info("login initiated",
		zap.String("email", MaskIdentity(account.Email)),
		zap.String("role", string(account.Role)),
		zap.String("pending_login_id", pendingLoginID.String()),
	)
	return pendingLoginID, nil
}

// LoginVerify validates the one-time code and, on success, issues a
// session token. OTP failures keep the pending login open (mismatch) or
// collapse it (expiry, attempts exhausted); the specific kind is returned.
func (s *Service) LoginVerify(ctx context.Context, pendingLoginID uuid.UUID, code string) (string, model.Role, error) {
	p, err := s.otp.Validate(ctx, pendingLoginID, code)
	if err != nil {
		return "", "", err
	}
	token, err := s.sessions.Issue(ctx, p.AccountID, p.Email, p.Role)
	if err != nil {
		return "", "", fmt.Errorf("issue session: %w", err)
	}
	s.logger.Info("login completed",
		zap.String("email", MaskIdentity(p.Email)),
		zap.String("role", string(p.Role)),
	)
	return token, p.Role, nil
}

// Logout revokes the token's session. Always succeeds on well-formed
// input, including for tokens that are already invalid.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}

// ValidateSession resolves a token to its session info.
func (s *Service) ValidateSession(ctx context.Context, token string) (*model.SessionInfo, error) {
	return s.sessions.Validate(ctx, token)
}
