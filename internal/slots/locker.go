package slots

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/superst1/chatbot-whatsapp-citas/internal/keylock"
)

// Locker grants exclusive, non-blocking ownership of a slot key.
// ok is false when someone else holds the key.
type Locker interface {
	TryLock(ctx context.Context, key string) (release func(), ok bool, err error)
}

// LocalLocker serializes reservations inside one process.
type LocalLocker struct {
	table *keylock.Table
}

func NewLocalLocker(table *keylock.Table) *LocalLocker {
	if table == nil {
		table = keylock.New()
	}
	return &LocalLocker{table: table}
}

func (l *LocalLocker) TryLock(_ context.Context, key string) (func(), bool, error) {
	release, ok := l.table.TryLock(key)
	return release, ok, nil
}

// Held returns how many slot keys are currently locked.
func (l *LocalLocker) Held() int {
	return l.table.Len()
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker is an advisory lock shared by several bot instances.
// Keys expire after ttl so a crashed holder cannot block a slot forever.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, prefix: "slotlock:"}
}

func (r *RedisLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	token := uuid.NewString()
	k := r.prefix + key
	ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return func() {
		// release must succeed even if the request context is gone
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, r.client, []string{k}, token).Err()
	}, true, nil
}

// ChainLocker acquires every locker in order and releases in reverse.
type ChainLocker []Locker

func (c ChainLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	var releases []func()
	undo := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, l := range c {
		release, ok, err := l.TryLock(ctx, key)
		if err != nil || !ok {
			undo()
			return nil, false, err
		}
		releases = append(releases, release)
	}
	return undo, true, nil
}
