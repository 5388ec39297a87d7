package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/superst1/chatbot-whatsapp-citas/internal/models"
)

const recoveryInterval = time.Minute

type pendingOp int

const (
	pendingSave pendingOp = iota + 1
	pendingClear
)

// FailoverStore uses primary while it answers and switches to fallback on
// errors. While down, primary is probed again at most once per minute.
// Users written during an outage are copied back to primary the next time
// they are touched after recovery, so primary never serves an older draft.
type FailoverStore struct {
	primary  Store
	fallback Store
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
	pending   map[string]pendingOp
}

func NewFailoverStore(primary, fallback Store, logger *zerolog.Logger) *FailoverStore {
	return &FailoverStore{primary: primary, fallback: fallback, logger: logger, pending: make(map[string]pendingOp)}
}

func (f *FailoverStore) usePrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if time.Since(f.lastCheck) > recoveryInterval {
		f.lastCheck = time.Now()
		return true
	}
	return false
}

func (f *FailoverStore) markDown(op string, err error) {
	if !f.isDown.Swap(true) {
		f.logger.Warn().Err(err).Str("op", op).Msg("session primary store failed, switching to fallback")
	}
	f.mu.Lock()
	f.lastCheck = time.Now()
	f.mu.Unlock()
}

func (f *FailoverStore) markUp() {
	if f.isDown.Swap(false) {
		f.logger.Info().Msg("session primary store recovered")
	}
}

func (f *FailoverStore) setPending(userID string, op pendingOp) {
	f.mu.Lock()
	f.pending[userID] = op
	f.mu.Unlock()
}

func (f *FailoverStore) takePending(userID string) pendingOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	op := f.pending[userID]
	delete(f.pending, userID)
	return op
}

// Pending returns how many users still wait to be copied back to primary.
func (f *FailoverStore) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// resync replays the outage state of one user onto primary. It returns the
// fallback session when that is the current one.
func (f *FailoverStore) resync(ctx context.Context, userID string) (*models.Session, error) {
	op := f.takePending(userID)
	switch op {
	case pendingSave:
		s, err := f.fallback.Get(ctx, userID)
		if err != nil {
			f.setPending(userID, op)
			return nil, err
		}
		if err := f.primary.Save(ctx, s); err != nil {
			f.setPending(userID, op)
			return nil, err
		}
		return s, nil
	case pendingClear:
		if err := f.primary.Clear(ctx, userID); err != nil {
			f.setPending(userID, op)
			return nil, err
		}
	}
	return nil, nil
}

func (f *FailoverStore) Get(ctx context.Context, userID string) (*models.Session, error) {
	if f.usePrimary() {
		s, err := f.resync(ctx, userID)
		if err == nil && s != nil {
			f.markUp()
			return s, nil
		}
		if err == nil {
			s, err = f.primary.Get(ctx, userID)
		}
		if err == nil {
			f.markUp()
			return s, nil
		}
		f.markDown("get", err)
	}
	return f.fallback.Get(ctx, userID)
}

func (f *FailoverStore) Save(ctx context.Context, s *models.Session) error {
	if f.usePrimary() {
		f.takePending(s.UserID)
		err := f.primary.Save(ctx, s)
		if err == nil {
			f.markUp()
			return nil
		}
		f.markDown("save", err)
	}
	if err := f.fallback.Save(ctx, s); err != nil {
		return err
	}
	f.setPending(s.UserID, pendingSave)
	return nil
}

func (f *FailoverStore) Clear(ctx context.Context, userID string) error {
	// a recovered primary must not bring back a cleared dialogue
	ferr := f.fallback.Clear(ctx, userID)
	if f.usePrimary() {
		f.takePending(userID)
		if err := f.primary.Clear(ctx, userID); err != nil {
			f.markDown("clear", err)
			f.setPending(userID, pendingClear)
			return ferr
		}
		f.markUp()
		return ferr
	}
	f.setPending(userID, pendingClear)
	return ferr
}
