package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superst1/chatbot-whatsapp-citas/internal/models"
)

func TestMemoryRepository_AppendAndFind(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	a := &models.Appointment{PatientName: "Ana Pérez", NationalID: "1802525254", Date: "05/03/2025", Time: "09:00"}
	n, err := repo.AppendRecord(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(1), a.Number)
	assert.Equal(t, models.StatusPending, a.Status)
	assert.False(t, a.CreatedAt.IsZero())

	got, err := repo.FindByNationalID(ctx, "1802525254")
	require.NoError(t, err)
	assert.Equal(t, "Ana Pérez", got.PatientName)

	got, err = repo.FindByNumber(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "09:00", got.Time)

	_, err = repo.FindByNumber(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.FindByNationalID(ctx, "0000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepository_SlotUniqueness(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.AppendRecord(ctx, &models.Appointment{NationalID: "1", Date: "05/03/2025", Time: "09:00"})
	require.NoError(t, err)
	_, err = repo.AppendRecord(ctx, &models.Appointment{NationalID: "2", Date: "05/03/2025", Time: "09:00"})
	assert.ErrorIs(t, err, ErrSlotTaken)

	_, err = repo.UpdateStatusByNumber(ctx, 1, models.StatusCancelled)
	require.NoError(t, err)

	n, err := repo.AppendRecord(ctx, &models.Appointment{NationalID: "2", Date: "05/03/2025", Time: "09:00"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = repo.UpdateStatusByNumber(ctx, 1, models.StatusConfirmed)
	assert.ErrorIs(t, err, ErrSlotTaken)
	old, err := repo.FindByNumber(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, old.Status)

	_, err = repo.UpdateStatusByNumber(ctx, 2, models.StatusConfirmed)
	require.NoError(t, err)
	_, err = repo.UpdateStatusByNumber(ctx, 2, models.StatusCancelled)
	require.NoError(t, err)
	_, err = repo.UpdateStatusByNumber(ctx, 1, models.StatusConfirmed)
	require.NoError(t, err)

	booked, err := repo.ListBookedSlotsForDate(ctx, "05/03/2025")
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00"}, booked)
}

func TestMemoryRepository_StatusAndBookedSlots(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	for _, tm := range []string{"11:00", "09:00", "10:00"} {
		_, err := repo.AppendRecord(ctx, &models.Appointment{NationalID: "1802525254", Date: "05/03/2025", Time: tm})
		require.NoError(t, err)
	}
	_, err := repo.AppendRecord(ctx, &models.Appointment{NationalID: "0102030405", Date: "06/03/2025", Time: "09:00"})
	require.NoError(t, err)

	times, err := repo.ListBookedSlotsForDate(ctx, "05/03/2025")
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "10:00", "11:00"}, times)

	// latest active appointment of the patient is the 10:00 one
	updated, err := repo.UpdateStatusByNationalID(ctx, "1802525254", models.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, "10:00", updated.Time)

	times, err = repo.ListBookedSlotsForDate(ctx, "05/03/2025")
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "11:00"}, times)

	got, err := repo.FindByNationalID(ctx, "1802525254")
	require.NoError(t, err)
	assert.Equal(t, "09:00", got.Time)

	all, err := repo.ListAppointments(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestPickLatest(t *testing.T) {
	_, ok := PickLatest(nil)
	assert.False(t, ok)

	a, ok := PickLatest([]models.Appointment{
		{Number: 1, Status: models.StatusPending},
		{Number: 2, Status: models.StatusCancelled},
	})
	require.True(t, ok)
	assert.Equal(t, int64(1), a.Number)

	a, ok = PickLatest([]models.Appointment{{Number: 3, Status: models.StatusCancelled}})
	require.True(t, ok)
	assert.Equal(t, int64(3), a.Number)
}
