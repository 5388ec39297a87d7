package slots

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superst1/chatbot-whatsapp-citas/internal/keylock"
	"github.com/superst1/chatbot-whatsapp-citas/internal/models"
	"github.com/superst1/chatbot-whatsapp-citas/internal/repository"
)

func newTestGuard() (*Guard, *LocalLocker, *repository.MemoryRepository) {
	repo := repository.NewMemoryRepository()
	gen := NewGenerator(repo, testSchedule()).WithClock(fixedClock(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)))
	locker := NewLocalLocker(keylock.New())
	return NewGuard(locker, gen, repo), locker, repo
}

func TestGuard_ConcurrentReservationsSameSlot(t *testing.T) {
	guard, locker, repo := newTestGuard()
	ctx := context.Background()

	const attempts = 20
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
		start     = make(chan struct{})
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := guard.Reserve(ctx, "05/03/2025", "09:00", func(ctx context.Context) error {
				_, err := repo.AppendRecord(ctx, &models.Appointment{Date: "05/03/2025", Time: "09:00"})
				return err
			})
			var ce *ConflictError
			switch {
			case err == nil:
				successes.Add(1)
			case errors.As(err, &ce):
				conflicts.Add(1)
				assert.NotContains(t, ce.Free, "09:00")
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(attempts-1), conflicts.Load())
	assert.Equal(t, 0, locker.Held())

	times, err := repo.ListBookedSlotsForDate(ctx, "05/03/2025")
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00"}, times)
}

func TestGuard_BusyAndTaken(t *testing.T) {
	guard, locker, repo := newTestGuard()
	ctx := context.Background()

	release, ok, err := locker.TryLock(ctx, "05/03/2025|10:00")
	require.NoError(t, err)
	require.True(t, ok)

	err = guard.Reserve(ctx, "05/03/2025", "10:00", func(context.Context) error {
		t.Fatal("commit must not run while the slot is held")
		return nil
	})
	assert.ErrorIs(t, err, ErrSlotBusy)
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.NotContains(t, ce.Free, "10:00")
	assert.Contains(t, ce.Free, "09:00")
	release()

	_, err = repo.AppendRecord(ctx, &models.Appointment{Date: "05/03/2025", Time: "10:00"})
	require.NoError(t, err)

	err = guard.Reserve(ctx, "05/03/2025", "10:00", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.Equal(t, 0, locker.Held())
}

func TestGuard_ReleasesOnErrorAndPanic(t *testing.T) {
	guard, locker, _ := newTestGuard()
	ctx := context.Background()

	boom := errors.New("sheet unavailable")
	err := guard.Reserve(ctx, "05/03/2025", "11:00", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, locker.Held())

	assert.Panics(t, func() {
		_ = guard.Reserve(ctx, "05/03/2025", "11:00", func(context.Context) error { panic("boom") })
	})
	assert.Equal(t, 0, locker.Held())

	err = guard.Reserve(ctx, "05/03/2025", "11:00", func(context.Context) error { return repository.ErrSlotTaken })
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.Equal(t, 0, locker.Held())
}

func TestRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	locker := NewRedisLocker(client, 10*time.Second)

	release, ok, err := locker.TryLock(ctx, "05/03/2025|09:00")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("slotlock:05/03/2025|09:00"))

	_, ok, err = locker.TryLock(ctx, "05/03/2025|09:00")
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	assert.False(t, mr.Exists("slotlock:05/03/2025|09:00"))

	// an expired holder must not delete a lock taken over by someone else
	stale, ok, err := locker.TryLock(ctx, "05/03/2025|10:00")
	require.NoError(t, err)
	require.True(t, ok)
	mr.FastForward(11 * time.Second)
	_, ok, err = locker.TryLock(ctx, "05/03/2025|10:00")
	require.NoError(t, err)
	require.True(t, ok)
	stale()
	assert.True(t, mr.Exists("slotlock:05/03/2025|10:00"))
}

func TestChainLocker_UndoesOnFailure(t *testing.T) {
	first := NewLocalLocker(keylock.New())
	second := NewLocalLocker(keylock.New())
	chain := ChainLocker{first, second}
	ctx := context.Background()

	hold, ok, _ := second.TryLock(ctx, "k")
	require.True(t, ok)

	_, ok, err := chain.TryLock(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, first.Held())

	hold()
	release, ok, err := chain.TryLock(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, first.Held())
	assert.Equal(t, 1, second.Held())
	release()
	assert.Equal(t, 0, first.Held()+second.Held())
}
