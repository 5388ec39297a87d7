package slots

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superst1/chatbot-whatsapp-citas/internal/models"
	"github.com/superst1/chatbot-whatsapp-citas/internal/repository"
)

func testSchedule() Schedule {
	s := DefaultSchedule()
	s.Location = time.UTC
	return s
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSchedule_Times(t *testing.T) {
	day := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC) // Wednesday

	s := testSchedule()
	times, err := s.Times(day)
	require.NoError(t, err)
	require.Len(t, times, 9)
	assert.Equal(t, "08:00", times[0].Format("15:04"))
	assert.Equal(t, "16:00", times[8].Format("15:04"))

	s.LunchStart, s.LunchEnd = "12:00", "13:00"
	times, err = s.Times(day)
	require.NoError(t, err)
	assert.Len(t, times, 8)
	for _, tm := range times {
		assert.NotEqual(t, "12:00", tm.Format("15:04"))
	}

	s.StepMinutes = 30
	s.LunchStart, s.LunchEnd = "", ""
	times, err = s.Times(day)
	require.NoError(t, err)
	assert.Len(t, times, 18)

	s.DaysOff = []time.Weekday{time.Wednesday}
	times, err = s.Times(day)
	require.NoError(t, err)
	assert.Nil(t, times)

	_, err = Schedule{Open: "x", Close: "17:00"}.Times(day)
	assert.Error(t, err)
}

func TestGenerator_AvailableTimes(t *testing.T) {
	repo := repository.NewMemoryRepository()
	ctx := context.Background()
	_, err := repo.AppendRecord(ctx, &models.Appointment{Date: "06/03/2025", Time: "09:00"})
	require.NoError(t, err)
	_, err = repo.AppendRecord(ctx, &models.Appointment{Date: "06/03/2025", Time: "11:00", Status: models.StatusCancelled})
	require.NoError(t, err)

	gen := NewGenerator(repo, testSchedule()).WithClock(fixedClock(time.Date(2025, 3, 6, 10, 30, 0, 0, time.UTC)))

	free, err := gen.AvailableTimes(ctx, "06/03/2025")
	require.NoError(t, err)
	assert.Equal(t, []string{"11:00", "12:00", "13:00", "14:00", "15:00", "16:00"}, free)

	free, err = gen.AvailableTimes(ctx, "07/03/2025")
	require.NoError(t, err)
	assert.Len(t, free, 9)

	_, err = gen.AvailableTimes(ctx, "not a date")
	assert.Error(t, err)
}

func TestGenerator_GridAndPast(t *testing.T) {
	gen := NewGenerator(repository.NewMemoryRepository(), testSchedule()).
		WithClock(fixedClock(time.Date(2025, 3, 6, 10, 30, 0, 0, time.UTC)))

	assert.True(t, gen.OnGrid("07/03/2025", "09:00"))
	assert.False(t, gen.OnGrid("07/03/2025", "09:30"))
	assert.False(t, gen.OnGrid("07/03/2025", "17:00"))

	assert.True(t, gen.IsPastDate("05/03/2025"))
	assert.False(t, gen.IsPastDate("06/03/2025"))
	assert.False(t, gen.IsPastDate("07/03/2025"))

	s := testSchedule()
	s.Open = "09:00"
	gen.SetSchedule(s)
	assert.False(t, gen.OnGrid("07/03/2025", "08:00"))
	assert.Equal(t, "09:00", gen.Schedule().Open)
}
