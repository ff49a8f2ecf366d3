package auth

import "errors"

// Login and session failures are user-visible outcomes, not process
// failures. Handlers map them to HTTP statuses with errors.Is; anything
// outside this taxonomy is an internal fault and is surfaced generically.
var (
	// ErrInvalidCredentials covers unknown identity, wrong password and
	// wrong secret key alike, so callers cannot tell which factor failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrOtpExpired covers expired, consumed and unknown pending logins.
	ErrOtpExpired = errors.New("otp expired")

	// ErrOtpMismatch means the code was wrong but the pending login is
	// still usable.
	ErrOtpMismatch = errors.New("otp mismatch")

	// ErrOtpAttemptsExceeded means the pending login has been invalidated
	// permanently; a fresh login-init is required.
	ErrOtpAttemptsExceeded = errors.New("otp attempts exceeded")

	ErrSessionExpired  = errors.New("session expired")
	ErrSessionNotFound = errors.New("session not found")

	// ErrRateLimited is returned for repeated login-init for the same
	// identity within the issuance window.
	ErrRateLimited = errors.New("rate limited")
)
