package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/superst1/chatbot-whatsapp-citas/internal/models"
)

// MemoryRepository keeps appointments in process memory. Useful for local
// runs and tests; data is lost on restart.
type MemoryRepository struct {
	mu     sync.RWMutex
	rows   []models.Appointment
	nextID int64
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nextID: 1, now: time.Now}
}

func (r *MemoryRepository) AppendRecord(_ context.Context, a *models.Appointment) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := *a
	if rec.Status == "" {
		rec.Status = models.StatusPending
	}
	if rec.IsActive() && r.slotHeld(rec.Date, rec.Time, 0) {
		return 0, ErrSlotTaken
	}
	rec.Number = r.nextID
	r.nextID++
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}
	r.rows = append(r.rows, rec)

	a.Number, a.Status, a.CreatedAt = rec.Number, rec.Status, rec.CreatedAt
	return rec.Number, nil
}

func (r *MemoryRepository) byNationalID(nationalID string) []int {
	var idx []int
	for i, row := range r.rows {
		if row.NationalID == nationalID {
			idx = append(idx, i)
		}
	}
	return idx
}

func (r *MemoryRepository) FindByNationalID(_ context.Context, nationalID string) (*models.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var list []models.Appointment
	for _, i := range r.byNationalID(nationalID) {
		list = append(list, r.rows[i])
	}
	a, ok := PickLatest(list)
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func (r *MemoryRepository) FindByNumber(_ context.Context, number int64) (*models.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, row := range r.rows {
		if row.Number == number {
			a := row
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) UpdateStatusByNationalID(_ context.Context, nationalID, status string) (*models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.byNationalID(nationalID)
	for j := len(idx) - 1; j >= 0; j-- {
		i := idx[j]
		if r.rows[i].IsActive() {
			r.rows[i].Status = status
			a := r.rows[i]
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) UpdateStatusByNumber(_ context.Context, number int64, status string) (*models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.rows {
		if r.rows[i].Number == number {
			if models.Reactivates(r.rows[i].Status, status) && r.slotHeld(r.rows[i].Date, r.rows[i].Time, number) {
				return nil, ErrSlotTaken
			}
			r.rows[i].Status = status
			a := r.rows[i]
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

// slotHeld reports whether an active row other than number occupies the slot.
func (r *MemoryRepository) slotHeld(date, tm string, number int64) bool {
	for _, row := range r.rows {
		if row.Number != number && row.IsActive() && row.Date == date && row.Time == tm {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) ListBookedSlotsForDate(_ context.Context, date string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var times []string
	for _, row := range r.rows {
		if row.Date == date && row.IsActive() {
			times = append(times, row.Time)
		}
	}
	sort.Strings(times)
	return times, nil
}

func (r *MemoryRepository) ListAppointments(_ context.Context) ([]models.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.Appointment(nil), r.rows...), nil
}
