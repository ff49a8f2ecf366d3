package tests

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/trademart/server/internal/auth"
	"github.com/trademart/server/internal/db"
	httphandler "github.com/trademart/server/internal/http"
	"github.com/trademart/server/internal/http/handlers"
	"github.com/trademart/server/internal/model"
	"github.com/trademart/server/internal/repo"

	_ "github.com/lib/pq"
)

// These tests exercise the Postgres repos end to end: the advisory-lock
// replace semantics, the partial unique index, and atomic consumption.
// They skip unless DATABASE_URL points at a disposable test database.

type recordingDispatcher struct {
	mu   sync.Mutex
	last string
	sent chan struct{}
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, account *model.Account, code string, ttl time.Duration) error {
	d.mu.Lock()
	d.last = code
	d.mu.Unlock()
	d.sent <- struct{}{}
	return nil
}

func (d *recordingDispatcher) waitForCode(t *testing.T) string {
	t.Helper()
	select {
	case <-d.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for otp dispatch")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

type testServer struct {
	Server     *httptest.Server
	DB         *sql.DB
	Accounts   repo.AccountRepo
	Dispatcher *recordingDispatcher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set; skipping postgres integration tests")
	}

	logger := zap.NewNop()
	ctx := context.Background()
	database, err := db.Open(ctx, databaseURL, logger)
	require.NoError(t, err, "database open must succeed; check DATABASE_URL and that the test DB exists")
	t.Cleanup(func() { database.Close() })

	require.NoError(t, RunMigrations(database))
	require.NoError(t, TruncateAuthTables(ctx, database))

	accountRepo := repo.NewAccountRepo(database)
	pendingRepo := repo.NewPendingLoginRepo(database)
	sessionRepo := repo.NewSessionRepo(database)
	dispatcher := &recordingDispatcher{sent: make(chan struct{}, 16)}

	verifier := auth.NewCredentialVerifier(accountRepo, logger)
	otpManager := auth.NewOTPManager(pendingRepo, dispatcher, logger, auth.OTPConfig{
		Salt:               "integration-salt",
		Length:             6,
		TTL:                5 * time.Minute,
		MaxAttempts:        5,
		MaxIssuesPerWindow: 5,
		IssueWindow:        10 * time.Minute,
	})
	sessionStore := auth.NewSessionStore(sessionRepo, logger, "integration-jwt-secret-32-characters!", time.Hour)
	service := auth.NewService(verifier, otpManager, sessionStore, logger)

	router := httphandler.NewRouter(handlers.NewAuthHandler(service, logger), sessionStore, logger)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{Server: server, DB: database, Accounts: accountRepo, Dispatcher: dispatcher}
}

func (s *testServer) seedAccount(t *testing.T, email, password, secretKey string, role model.Role) {
	t.Helper()
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	account := &model.Account{Email: email, PasswordHash: string(passwordHash), Role: role}
	if secretKey != "" {
		secretKeyHash, err := bcrypt.GenerateFromPassword([]byte(secretKey), bcrypt.MinCost)
		require.NoError(t, err)
		account.SecretKeyHash = string(secretKeyHash)
	}
	require.NoError(t, s.Accounts.Create(context.Background(), account))
}

func (s *testServer) postJSON(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(s.Server.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestIntegration_AdminLoginLogout(t *testing.T) {
	s := newTestServer(t)
	s.seedAccount(t, "admin@x.com", "Pw1", "SECRET", model.RoleAdmin)

	resp := s.postJSON(t, "/auth/admin/login-init", map[string]string{
		"email": "admin@x.com", "password": "Pw1", "secretKey": "SECRET",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var initBody struct {
		PendingLoginID string `json:"pendingLoginId"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&initBody))
	resp.Body.Close()

	code := s.Dispatcher.waitForCode(t)

	resp = s.postJSON(t, "/auth/login-verify", map[string]string{
		"pendingLoginId": initBody.PendingLoginID, "code": code,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var verifyBody struct {
		Token string `json:"token"`
		Role  string `json:"role"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&verifyBody))
	resp.Body.Close()
	assert.Equal(t, "admin", verifyBody.Role)

	// Logout twice; both are 200.
	for i := 0; i < 2; i++ {
		resp = s.postJSON(t, "/auth/logout", map[string]string{"token": verifyBody.Token})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	// Replay of the consumed pending login fails.
	resp = s.postJSON(t, "/auth/login-verify", map[string]string{
		"pendingLoginId": initBody.PendingLoginID, "code": code,
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestIntegration_ReplaceKeepsOneActivePendingLogin(t *testing.T) {
	s := newTestServer(t)
	s.seedAccount(t, "vendor@x.com", "Pw2", "", model.RoleVendor)

	var lastID string
	for i := 0; i < 3; i++ {
		resp := s.postJSON(t, "/auth/login-init", map[string]string{
			"email": "vendor@x.com", "password": "Pw2",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body struct {
			PendingLoginID string `json:"pendingLoginId"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		resp.Body.Close()
		lastID = body.PendingLoginID
		s.Dispatcher.waitForCode(t)
	}

	var active int
	err := s.DB.QueryRow(`SELECT COUNT(*) FROM pending_logins WHERE consumed_at IS NULL`).Scan(&active)
	require.NoError(t, err)
	assert.Equal(t, 1, active, "exactly one live pending login per account")

	var activeID string
	err = s.DB.QueryRow(`SELECT id FROM pending_logins WHERE consumed_at IS NULL`).Scan(&activeID)
	require.NoError(t, err)
	assert.Equal(t, lastID, activeID, "the survivor is the most recent init")
}

func TestIntegration_SessionRowRevokedOnLogout(t *testing.T) {
	s := newTestServer(t)
	s.seedAccount(t, "vendor@x.com", "Pw2", "", model.RoleVendor)

	resp := s.postJSON(t, "/auth/login-init", map[string]string{
		"email": "vendor@x.com", "password": "Pw2",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var initBody struct {
		PendingLoginID string `json:"pendingLoginId"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&initBody))
	resp.Body.Close()

	code := s.Dispatcher.waitForCode(t)
	resp = s.postJSON(t, "/auth/login-verify", map[string]string{
		"pendingLoginId": initBody.PendingLoginID, "code": code,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var verifyBody struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&verifyBody))
	resp.Body.Close()

	resp = s.postJSON(t, "/auth/logout", map[string]string{"token": verifyBody.Token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	var revoked int
	err := s.DB.QueryRow(`SELECT COUNT(*) FROM sessions WHERE revoked_at IS NOT NULL`).Scan(&revoked)
	require.NoError(t, err)
	assert.Equal(t, 1, revoked)
}
