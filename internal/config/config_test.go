package config

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superst1/chatbot-whatsapp-citas/internal/models"
	"github.com/superst1/chatbot-whatsapp-citas/internal/slots"
)

func TestParse_DefaultsAndEnv(t *testing.T) {
	t.Setenv("CITAS_VERIFY_TOKEN", "s3cret")

	cfg, err := Parse([]byte(`
server:
  verify_token: ${CITAS_VERIFY_TOKEN}
booking:
  required_fields: [patient_name, " National_ID ", date, time, notes]
`))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Server.VerifyToken)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "CITAS", cfg.Storage.Sheets.SheetName)
	assert.Equal(t, "rules", cfg.NLU.Provider)
	assert.Equal(t, "cloud", cfg.WhatsApp.Provider)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL())
	assert.Equal(t, 60*time.Second, cfg.TurnTimeout())
	assert.Nil(t, cfg.RetryDelays())

	fields, err := cfg.RequiredFields()
	require.NoError(t, err)
	assert.Equal(t, []models.Field{
		models.FieldPatientName, models.FieldNationalID, models.FieldDate, models.FieldTime, models.FieldNotes,
	}, fields)
}

func TestParse_Durations(t *testing.T) {
	cfg, err := Parse([]byte(`
session:
  ttl_minutes: 5
dispatcher:
  retry_delays_ms: [100, 250]
`))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 250 * time.Millisecond}, cfg.RetryDelays())

	fields, err := cfg.RequiredFields()
	require.NoError(t, err)
	assert.Equal(t, models.DefaultRequiredFields, fields)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"session backend":   "session:\n  backend: etcd\n",
		"storage backend":   "storage:\n  backend: mongo\n",
		"postgres dsn":      "storage:\n  backend: postgres\n",
		"sheets id":         "storage:\n  backend: sheets\n",
		"nlu provider":      "nlu:\n  provider: bert\n",
		"whatsapp provider": "whatsapp:\n  provider: sms\n",
		"required field":    "booking:\n  required_fields: [shoe_size]\n",
		"yaml":              "server: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestScheduleConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
open: "8:00"
close: "17:00"
step_minutes: 30
lunch_start: "13:00"
lunch_end: "14:00"
days_off: [6, 7]
timezone: America/Guayaquil
`), 0o644))

	cfg, err := LoadScheduleConfig(path)
	require.NoError(t, err)
	s, err := cfg.Schedule()
	require.NoError(t, err)

	assert.Equal(t, "08:00", s.Open)
	assert.Equal(t, "17:00", s.Close)
	assert.Equal(t, 30, s.StepMinutes)
	assert.Equal(t, []time.Weekday{time.Saturday, time.Sunday}, s.DaysOff)
	assert.Equal(t, "America/Guayaquil", s.Location.String())
}

func TestScheduleConfig_Validate(t *testing.T) {
	cases := []ScheduleConfig{
		{Open: "nine", Close: "17:00"},
		{Open: "17:00", Close: "08:00"},
		{Open: "08:00", Close: "17:00", LunchStart: "13:00"},
		{Open: "08:00", Close: "17:00", DaysOff: []int{0}},
		{Open: "08:00", Close: "17:00", Timezone: "Mars/Olympus"},
	}
	for _, c := range cases {
		assert.Error(t, c.Validate(), "%+v", c)
	}
	ok := ScheduleConfig{Open: "08:00", Close: "17:00"}
	assert.NoError(t, ok.Validate())
}

func TestWatchSchedule_Reloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.yaml")
	require.NoError(t, os.WriteFile(path, []byte("open: \"08:00\"\nclose: \"12:00\"\n"), 0o644))

	var (
		mu   sync.Mutex
		seen []slots.Schedule
	)
	logger := zerolog.New(io.Discard)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := WatchSchedule(ctx, path, 10*time.Millisecond, &logger, func(s slots.Schedule) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, seen, 1)
	assert.Equal(t, "12:00", seen[0].Close)
	assert.Equal(t, 60, seen[0].StepMinutes)
	mu.Unlock()

	require.NoError(t, os.WriteFile(path, []byte("open: \"08:00\"\nclose: \"16:00\"\n"), 0o644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2 && seen[1].Close == "16:00"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatchSchedule_InitialLoadFails(t *testing.T) {
	err := WatchSchedule(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), time.Second, nil, func(slots.Schedule) {})
	assert.Error(t, err)
}
