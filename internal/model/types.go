package model

import (
	"time"

	"github.com/google/uuid"
)

// Role determines which login-init variant and factor requirements apply.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleVendor Role = "vendor"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleVendor
}

// Account represents a provisioned login identity. Admin accounts carry a
// second login-init factor (SecretKeyHash); vendor accounts do not.
type Account struct {
	ID             uuid.UUID
	Email          string
	PasswordHash   string
	SecretKeyHash  string
	Role           Role
	FailedAttempts int
	CreatedAt      time.Time
}

// PendingLogin bridges a verified first factor to OTP verification.
// At most one unconsumed PendingLogin exists per account.
type PendingLogin struct {
	ID            uuid.UUID
	AccountID     uuid.UUID
	Email         string
	Role          Role
	OTPHash       []byte
	ExpiresAt     time.Time
	ConsumedAt    *time.Time
	CreatedAt     time.Time
	AttemptCount  int
	LastAttemptAt *time.Time
	RequestIP     *string
}

// Session is the authenticated-request credential issued after full login.
type Session struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Email     string
	Role      Role
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// SessionInfo is the read-only view returned by session validation.
type SessionInfo struct {
	AccountID uuid.UUID
	Email     string
	Role      Role
	ExpiresAt time.Time
}
