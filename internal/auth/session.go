package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trademart/server/internal/model"
	"github.com/trademart/server/internal/repo"
)

// SessionClaims are the JWT claims carried by a session token. The jti
// claim is the session row id; the row is authoritative for revocation.
type SessionClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// SessionStore issues, validates and revokes session tokens. A token is
// valid only while its JWT checks out AND its backing row is live: revoked
// or expired rows are never revalidated.
type SessionStore struct {
	sessions repo.SessionRepo
	logger   *zap.Logger
	secret   []byte
	ttl      time.Duration
}

// NewSessionStore creates a new session store.
func NewSessionStore(sessions repo.SessionRepo, logger *zap.Logger, secret string, ttl time.Duration) *SessionStore {
	return &SessionStore{
		sessions: sessions,
		logger:   logger,
		secret:   []byte(secret),
		ttl:      ttl,
	}
}

// Issue creates a session row for the account and returns its signed token.
func (s *SessionStore) Issue(ctx context.Context, accountID uuid.UUID, email string, role model.Role) (string, error) {
	now := time.Now()
	session := &model.Session{
		ID:        uuid.New(),
		AccountID: accountID,
		Email:     email,
		Role:      role,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	claims := &SessionClaims{
		Email: email,
		Role:  string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.ID.String(),
			Subject:   accountID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Validate returns the session info for a live token. Read-only apart from
// opportunistic cleanup: an expired row found here is revoked in place.
func (s *SessionStore) Validate(ctx context.Context, token string) (*model.SessionInfo, error) {
	claims, err := s.parseClaims(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, ErrSessionNotFound
	}

	sessionID, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	if session.RevokedAt != nil {
		return nil, ErrSessionNotFound
	}
	if time.Now().After(session.ExpiresAt) {
		if err := s.sessions.Revoke(ctx, session.ID); err != nil {
			s.logger.Warn("failed to revoke expired session", zap.Error(err))
		}
		return nil, ErrSessionExpired
	}

	return &model.SessionInfo{
		AccountID: session.AccountID,
		Email:     session.Email,
		Role:      session.Role,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// Revoke invalidates the token's session. Idempotent: malformed, unknown,
// expired and already-revoked tokens all return nil, so logout is safe to
// call redundantly.
func (s *SessionStore) Revoke(ctx context.Context, token string) error {
	claims, err := s.parseClaims(token)
	if err != nil {
		return nil
	}
	sessionID, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil
	}
	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeAllForAccount force-logs-out every session of the account.
func (s *SessionStore) RevokeAllForAccount(ctx context.Context, accountID uuid.UUID) error {
	if err := s.sessions.RevokeAllForAccount(ctx, accountID); err != nil {
		return fmt.Errorf("revoke account sessions: %w", err)
	}
	return nil
}

func (s *SessionStore) parseClaims(token string) (*SessionClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
