package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/trademart/server/internal/model"
)

const (
	sessionKeyPrefix      = "session:"
	accountSessionsPrefix = "accountSessions:"
	// Rows are kept past expiry so validation can still classify a stale
	// token as expired rather than unknown.
	sessionRetentionPastTTL = 24 * time.Hour
)

type redisSessionRepo struct {
	client *redis.Client
}

// NewRedisSessionRepo creates a SessionRepo backed by Redis. Rows are
// stored as JSON with a TTL; Redis reclaims them after the retention
// window, so DeleteExpired is a no-op here.
func NewRedisSessionRepo(client *redis.Client) SessionRepo {
	return &redisSessionRepo{client: client}
}

func sessionKey(id uuid.UUID) string {
	return sessionKeyPrefix + id.String()
}

func accountSessionsKey(accountID uuid.UUID) string {
	return accountSessionsPrefix + accountID.String()
}

func (r *redisSessionRepo) Create(ctx context.Context, s *model.Session) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ttl := time.Until(s.ExpiresAt) + sessionRetentionPastTTL
	if err := r.client.Set(ctx, sessionKey(s.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	// Track ids per account for force-logout. Same retention as the rows.
	accKey := accountSessionsKey(s.AccountID)
	if err := r.client.SAdd(ctx, accKey, s.ID.String()).Err(); err != nil {
		return fmt.Errorf("index session for account: %w", err)
	}
	if err := r.client.Expire(ctx, accKey, ttl).Err(); err != nil {
		return fmt.Errorf("expire account session index: %w", err)
	}
	return nil
}

func (r *redisSessionRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Session{}, ErrNotFound
		}
		return model.Session{}, fmt.Errorf("get session: %w", err)
	}
	var s model.Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return model.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return s, nil
}

func (r *redisSessionRepo) Revoke(ctx context.Context, id uuid.UUID) error {
	s, err := r.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if s.RevokedAt != nil {
		return nil
	}
	now := time.Now()
	s.RevokedAt = &now
	data, err := json.Marshal(&s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(id), data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("save revoked session: %w", err)
	}
	return nil
}

func (r *redisSessionRepo) RevokeAllForAccount(ctx context.Context, accountID uuid.UUID) error {
	ids, err := r.client.SMembers(ctx, accountSessionsKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("list account sessions: %w", err)
	}
	for _, idStr := range ids {
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		if err := r.Revoke(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *redisSessionRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	// Redis TTLs reclaim expired rows on their own.
	return 0, nil
}
