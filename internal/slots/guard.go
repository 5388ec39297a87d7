package slots

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/superst1/chatbot-whatsapp-citas/internal/metrics"
	"github.com/superst1/chatbot-whatsapp-citas/internal/models"
	"github.com/superst1/chatbot-whatsapp-citas/internal/repository"
)

var (
	// ErrSlotBusy means another reservation for the same slot is in flight.
	ErrSlotBusy = errors.New("slot is being reserved by someone else")
	// ErrSlotTaken means the slot already has an active appointment.
	ErrSlotTaken = errors.New("slot already booked")
)

// ConflictError carries the reason and the times still free on that date.
type ConflictError struct {
	Err  error
	Date string
	Time string
	Free []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s %s", e.Err, e.Date, e.Time)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// CommitFunc writes the reservation. It runs while the slot lock is held.
type CommitFunc func(ctx context.Context) error

// Guard runs lock, re-check and commit for one slot as a unit.
type Guard struct {
	locker Locker
	gen    *Generator
	booked BookedLister
}

func NewGuard(locker Locker, gen *Generator, booked BookedLister) *Guard {
	return &Guard{locker: locker, gen: gen, booked: booked}
}

// Reserve locks date|time, verifies the slot is still free in persistence
// and calls commit. The lock is released on every path, panics included.
func (g *Guard) Reserve(ctx context.Context, date, tm string, commit CommitFunc) error {
	key := models.SlotKey(date, tm)
	logger := zerolog.Ctx(ctx)

	release, ok, err := g.locker.TryLock(ctx, key)
	if err != nil {
		return fmt.Errorf("lock slot: %w", err)
	}
	if !ok {
		metrics.IncSlotConflict("busy")
		logger.Info().Str("slot", key).Msg("slot busy")
		return g.conflict(ctx, ErrSlotBusy, date, tm)
	}
	defer release()

	booked, err := g.booked.ListBookedSlotsForDate(ctx, date)
	if err != nil {
		return fmt.Errorf("re-check slot: %w", err)
	}
	for _, b := range booked {
		if b == tm {
			metrics.IncSlotConflict("taken")
			logger.Info().Str("slot", key).Msg("slot already taken")
			return g.conflict(ctx, ErrSlotTaken, date, tm)
		}
	}

	if err := commit(ctx); err != nil {
		if errors.Is(err, repository.ErrSlotTaken) {
			metrics.IncSlotConflict("taken")
			return g.conflict(ctx, ErrSlotTaken, date, tm)
		}
		return err
	}
	return nil
}

func (g *Guard) conflict(ctx context.Context, reason error, date, tm string) error {
	free, err := g.gen.AvailableTimes(ctx, date)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("date", date).Msg("list free times after conflict")
	}
	// a busy slot is still listed as free by persistence; do not offer it back
	out := free[:0:0]
	for _, f := range free {
		if f != tm {
			out = append(out, f)
		}
	}
	return &ConflictError{Err: reason, Date: date, Time: tm, Free: out}
}
