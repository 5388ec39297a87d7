package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAppointment_Missing(t *testing.T) {
	a := Appointment{PatientName: "Ana Pérez", Date: "05/03/2025", Time: TimeUnset}

	assert.Equal(t, []Field{FieldNationalID, FieldTime}, a.Missing(DefaultRequiredFields))
	assert.False(t, a.IsComplete(DefaultRequiredFields))

	a.NationalID = "1802525254"
	a.Time = "10:00"
	assert.True(t, a.IsComplete(DefaultRequiredFields))
	assert.Empty(t, a.Missing(DefaultRequiredFields))
}

func TestAppointment_GetSet(t *testing.T) {
	var a Appointment
	for _, f := range []Field{FieldPatientName, FieldNationalID, FieldContactName, FieldContactPhone, FieldDate, FieldTime, FieldNotes} {
		a.Set(f, string(f))
		assert.Equal(t, string(f), a.Get(f))
	}
}

func TestAppointment_SlotKeyAndActive(t *testing.T) {
	a := Appointment{Date: "05/03/2025", Time: "10:00", Status: StatusPending}
	assert.Equal(t, "05/03/2025|10:00", a.SlotKey())
	assert.True(t, a.IsActive())

	a.Status = StatusRescheduled
	assert.False(t, a.IsActive())
	a.Status = StatusCancelled
	assert.False(t, a.IsActive())
}

func TestParseHelpers(t *testing.T) {
	f, ok := ParseField(" National_ID ")
	assert.True(t, ok)
	assert.Equal(t, FieldNationalID, f)

	_, ok = ParseField("age")
	assert.False(t, ok)

	st, ok := ParseStatus("Confirmada")
	assert.True(t, ok)
	assert.Equal(t, StatusConfirmed, st)
	assert.Equal(t, "cancelada", StatusLabel(StatusCancelled))
}

func TestSession_CloneAndExpiry(t *testing.T) {
	now := time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)
	s := NewSession("593999")
	s.OfferedTimes = []string{"09:00"}
	s.ExpiresAt = now.Add(time.Minute)

	c := s.Clone()
	c.OfferedTimes[0] = "10:00"
	c.Draft.PatientName = "X"
	assert.Equal(t, "09:00", s.OfferedTimes[0])
	assert.Empty(t, s.Draft.PatientName)

	assert.False(t, s.Expired(now))
	assert.True(t, s.Expired(now.Add(time.Minute)))

	s.Mode = ModeCreating
	s.Draft.Date = "05/03/2025"
	s.Reset()
	assert.Equal(t, ModeIdle, s.Mode)
	assert.Equal(t, StateIdle, s.State)
	assert.Empty(t, s.Draft.Date)
	assert.Equal(t, "593999", s.UserID)
}

func TestReactivates(t *testing.T) {
	assert.True(t, Reactivates(StatusCancelled, StatusConfirmed))
	assert.True(t, Reactivates(StatusRescheduled, StatusPending))
	assert.False(t, Reactivates(StatusPending, StatusConfirmed))
	assert.False(t, Reactivates(StatusCancelled, StatusRescheduled))
	assert.False(t, Reactivates(StatusConfirmed, StatusCancelled))
}
