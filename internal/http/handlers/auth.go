package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trademart/server/internal/auth"
	"github.com/trademart/server/internal/middleware"
)

// AuthHandler handles the login/logout endpoints. The router guards the
// endpoints with IP rate limiters; the per-identity issuance limit lives
// at the store.
type AuthHandler struct {
	service *auth.Service
	logger  *zap.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(service *auth.Service, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger,
	}
}

// loginInitRequest is the request body for POST /auth/login-init and
// POST /auth/admin/login-init.
type loginInitRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	SecretKey string `json:"secretKey"`
}

// loginInitResponse is the JSON response for login-init.
type loginInitResponse struct {
	PendingLoginID string `json:"pendingLoginId"`
}

// loginVerifyRequest is the request body for POST /auth/login-verify.
type loginVerifyRequest struct {
	PendingLoginID string `json:"pendingLoginId"`
	Code           string `json:"code"`
}

// loginVerifyResponse is the JSON response for login-verify.
type loginVerifyResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// logoutRequest is the request body for POST /auth/logout.
type logoutRequest struct {
	Token string `json:"token"`
}

// HandleAdminLoginInit handles POST /auth/admin/login-init. The secret key
// is a required factor here.
func (h *AuthHandler) HandleAdminLoginInit(w http.ResponseWriter, r *http.Request) {
	var req loginInitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" || req.SecretKey == "" {
		respondWithError(w, http.StatusBadRequest, "email, password and secretKey are required")
		return
	}
	h.loginInit(w, r, req)
}

// HandleLoginInit handles POST /auth/login-init (non-admin roles). A
// supplied secretKey is ignored.
func (h *AuthHandler) HandleLoginInit(w http.ResponseWriter, r *http.Request) {
	var req loginInitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.SecretKey = ""
	if req.Email == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	h.loginInit(w, r, req)
}

func (h *AuthHandler) loginInit(w http.ResponseWriter, r *http.Request, req loginInitRequest) {
	pendingLoginID, err := h.service.LoginInit(r.Context(), req.Email, req.Password, req.SecretKey, middleware.ClientIP(r))
	if err != nil {
		h.respondAuthError(w, req.Email, "login-init failed", err)
		return
	}

	respondWithJSON(w, http.StatusOK, loginInitResponse{PendingLoginID: pendingLoginID.String()})
}

// HandleLoginVerify handles POST /auth/login-verify.
func (h *AuthHandler) HandleLoginVerify(w http.ResponseWriter, r *http.Request) {
	var req loginVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Code = strings.TrimSpace(req.Code)
	if req.PendingLoginID == "" || req.Code == "" {
		respondWithError(w, http.StatusBadRequest, "pendingLoginId and code are required")
		return
	}
	pendingLoginID, err := uuid.Parse(req.PendingLoginID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "pendingLoginId must be a UUID")
		return
	}

	token, role, err := h.service.LoginVerify(r.Context(), pendingLoginID, req.Code)
	if err != nil {
		h.respondAuthError(w, "", "login-verify failed", err)
		return
	}

	respondWithJSON(w, http.StatusOK, loginVerifyResponse{Token: token, Role: string(role)})
}

// HandleLogout handles POST /auth/logout. Idempotent: a second logout with
// the same token, or a token that never was valid, still returns ok.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		respondWithError(w, http.StatusBadRequest, "token is required")
		return
	}

	if err := h.service.Logout(r.Context(), req.Token); err != nil {
		h.logger.Error("logout failed", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "logout failed")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// sessionResponse is the JSON response for GET /auth/session.
type sessionResponse struct {
	AccountID string `json:"accountId"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	ExpiresAt string `json:"expiresAt"`
}

// HandleSession handles GET /auth/session (protected). Returns the
// authenticated session.
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	info, ok := middleware.GetSession(r.Context())
	if !ok || info == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	respondWithJSON(w, http.StatusOK, sessionResponse{
		AccountID: info.AccountID.String(),
		Email:     info.Email,
		Role:      string(info.Role),
		ExpiresAt: info.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// respondAuthError maps the auth error taxonomy to HTTP statuses. Anything
// outside the taxonomy is an internal fault: logged, surfaced generically.
func (h *AuthHandler) respondAuthError(w http.ResponseWriter, identity, msg string, err error) {
	fields := []zap.Field{zap.Error(err)}
	if identity != "" {
		fields = append(fields, zap.String("email", auth.MaskIdentity(identity)))
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.logger.Info(msg, fields...)
		respondWithCode(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
	case errors.Is(err, auth.ErrOtpExpired):
		h.logger.Info(msg, fields...)
		respondWithCode(w, http.StatusUnauthorized, "otp_expired", "invalid or expired code")
	case errors.Is(err, auth.ErrOtpMismatch):
		h.logger.Info(msg, fields...)
		respondWithCode(w, http.StatusUnauthorized, "otp_mismatch", "invalid or expired code")
	case errors.Is(err, auth.ErrOtpAttemptsExceeded):
		h.logger.Info(msg, fields...)
		respondWithCode(w, http.StatusUnauthorized, "otp_attempts_exceeded", "too many attempts, start over")
	case errors.Is(err, auth.ErrRateLimited):
		h.logger.Info(msg, fields...)
		respondWithCode(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
	default:
		h.logger.Error(msg, fields...)
		respondWithError(w, http.StatusInternalServerError, "internal error")
	}
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{"error": message})
}

// respondWithCode sends a JSON error response with a machine-readable kind
func respondWithCode(w http.ResponseWriter, statusCode int, code, message string) {
	respondWithJSON(w, statusCode, map[string]string{"error": message, "code": code})
}
