package keylock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_TryLock(t *testing.T) {
	tbl := New()

	unlock, ok := tbl.TryLock("05/03/2025|09:00")
	require.True(t, ok)
	assert.Equal(t, 1, tbl.Len())

	_, ok = tbl.TryLock("05/03/2025|09:00")
	assert.False(t, ok)

	other, ok := tbl.TryLock("05/03/2025|10:00")
	require.True(t, ok)
	other()

	unlock()
	unlock()
	assert.Equal(t, 0, tbl.Len())

	_, ok = tbl.TryLock("05/03/2025|09:00")
	assert.True(t, ok)
}

func TestTable_FIFOOrder(t *testing.T) {
	tbl := New()
	ctx := context.Background()

	first, err := tbl.Lock(ctx, "user")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unlock, err := tbl.Lock(ctx, "user")
			if err != nil {
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			unlock()
		}(i)
		// wait until goroutine i is queued before starting the next one
		require.Eventually(t, func() bool { return waiters(tbl, "user") == i+1 }, time.Second, time.Millisecond)
	}

	first()
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.Equal(t, 0, tbl.Len())
}

func TestTable_LockContextCancel(t *testing.T) {
	tbl := New()
	unlock, err := tbl.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = tbl.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, waiters(tbl, "k"))

	unlock()
	assert.Equal(t, 0, tbl.Len())
}

func TestTable_MutualExclusion(t *testing.T) {
	tbl := New()
	ctx := context.Background()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := tbl.Lock(ctx, "shared")
			if err != nil {
				return
			}
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, tbl.Len())
}

func waiters(tbl *Table, key string) int {
	s := tbl.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return len(e.waiters)
	}
	return 0
}
