package repo

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trademart/server/internal/model"
)

// In-memory implementations for dev mode and tests. All mutation happens
// under the repo mutex, which gives the same per-record serialization the
// Postgres repos get from row updates and advisory locks: two concurrent
// Consume calls for one pending login can never both return true.

// MemoryAccountRepo stores accounts in memory.
type MemoryAccountRepo struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]model.Account
	byEmail map[string]uuid.UUID
}

// NewMemoryAccountRepo creates an empty in-memory account repo.
func NewMemoryAccountRepo() *MemoryAccountRepo {
	return &MemoryAccountRepo{
		byID:    make(map[uuid.UUID]model.Account),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (r *MemoryAccountRepo) Create(ctx context.Context, account *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	key := strings.ToLower(account.Email)
	r.byID[account.ID] = *account
	r.byEmail[key] = account.ID
	return nil
}

func (r *MemoryAccountRepo) GetByEmail(ctx context.Context, email string) (model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return model.Account{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return model.Account{}, ErrNotFound
	}
	return a, nil
}

func (r *MemoryAccountRepo) IncrementFailedAttempts(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.byID[id]; ok {
		a.FailedAttempts++
		r.byID[id] = a
	}
	return nil
}

func (r *MemoryAccountRepo) ResetFailedAttempts(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.byID[id]; ok {
		a.FailedAttempts = 0
		r.byID[id] = a
	}
	return nil
}

// MemoryPendingLoginRepo stores pending logins in memory.
type MemoryPendingLoginRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*model.PendingLogin
}

// NewMemoryPendingLoginRepo creates an empty in-memory pending-login repo.
func NewMemoryPendingLoginRepo() *MemoryPendingLoginRepo {
	return &MemoryPendingLoginRepo{rows: make(map[uuid.UUID]*model.PendingLogin)}
}

func (r *MemoryPendingLoginRepo) CreateOrReplace(ctx context.Context, p *model.PendingLogin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	// Last writer wins: consume every live row for the account.
	now := time.Now()
	for _, row := range r.rows {
		if row.AccountID == p.AccountID && row.ConsumedAt == nil {
			t := now
			row.ConsumedAt = &t
		}
	}
	clone := *p
	r.rows[p.ID] = &clone
	return nil
}

func (r *MemoryPendingLoginRepo) Get(ctx context.Context, id uuid.UUID) (model.PendingLogin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.ConsumedAt != nil {
		return model.PendingLogin{}, ErrNotFound
	}
	return *row, nil
}

func (r *MemoryPendingLoginRepo) IncrementAttempt(ctx context.Context, id uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.ConsumedAt != nil {
		return 0, ErrNotFound
	}
	row.AttemptCount++
	now := time.Now()
	row.LastAttemptAt = &now
	return row.AttemptCount, nil
}

func (r *MemoryPendingLoginRepo) Consume(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.ConsumedAt != nil {
		return false, nil
	}
	now := time.Now()
	row.ConsumedAt = &now
	return true, nil
}

func (r *MemoryPendingLoginRepo) CountRecentByAccount(ctx context.Context, accountID uuid.UUID, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, row := range r.rows {
		if row.AccountID == accountID && !row.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *MemoryPendingLoginRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, row := range r.rows {
		if row.ExpiresAt.Before(before) {
			delete(r.rows, id)
			n++
		}
	}
	return n, nil
}

// MemorySessionRepo stores sessions in memory.
type MemorySessionRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*model.Session
}

// NewMemorySessionRepo creates an empty in-memory session repo.
func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{rows: make(map[uuid.UUID]*model.Session)}
}

func (r *MemorySessionRepo) Create(ctx context.Context, s *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	clone := *s
	r.rows[s.ID] = &clone
	return nil
}

func (r *MemorySessionRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return model.Session{}, ErrNotFound
	}
	return *row, nil
}

func (r *MemorySessionRepo) Revoke(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.RevokedAt != nil {
		return nil
	}
	now := time.Now()
	row.RevokedAt = &now
	return nil
}

func (r *MemorySessionRepo) RevokeAllForAccount(ctx context.Context, accountID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, row := range r.rows {
		if row.AccountID == accountID && row.RevokedAt == nil {
			t := now
			row.RevokedAt = &t
		}
	}
	return nil
}

func (r *MemorySessionRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, row := range r.rows {
		if row.ExpiresAt.Before(before) {
			delete(r.rows, id)
			n++
		}
	}
	return n, nil
}
