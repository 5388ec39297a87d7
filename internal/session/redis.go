package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/superst1/chatbot-whatsapp-citas/internal/models"
)

// RedisStore keeps sessions as JSON values with a native TTL, so several
// bot instances can share them.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	tracer trace.Tracer
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		prefix: "session:",
		tracer: otel.Tracer("citas.internal.session"),
	}
}

func (r *RedisStore) key(userID string) string {
	return r.prefix + userID
}

func (r *RedisStore) Get(ctx context.Context, userID string) (*models.Session, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	ctx, span := r.tracer.Start(ctx, "session.get")
	defer span.End()

	now := time.Now()
	data, err := r.client.GetEx(ctx, r.key(userID), r.ttl).Bytes()
	if errors.Is(err, redis.Nil) {
		s := models.NewSession(userID)
		s.UpdatedAt = now
		s.ExpiresAt = now.Add(r.ttl)
		return s, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to load %s: %w", userID, err)
	}

	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to decode %s: %w", userID, err)
	}
	s.ExpiresAt = now.Add(r.ttl)
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, s *models.Session) error {
	if s == nil || s.UserID == "" {
		return ErrEmptyUserID
	}
	ctx, span := r.tracer.Start(ctx, "session.save")
	defer span.End()

	stored := s.Clone()
	stored.UpdatedAt = time.Now()
	stored.ExpiresAt = stored.UpdatedAt.Add(r.ttl)
	data, err := json.Marshal(stored)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to marshal %s: %w", s.UserID, err)
	}
	if err := r.client.Set(ctx, r.key(s.UserID), data, r.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to persist %s: %w", s.UserID, err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context, userID string) error {
	ctx, span := r.tracer.Start(ctx, "session.clear")
	defer span.End()

	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to delete %s: %w", userID, err)
	}
	return nil
}

// Ping reports whether redis is reachable.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
