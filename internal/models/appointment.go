package models

import (
	"strings"
	"time"
)

const (
	StatusPending     = "pending"
	StatusConfirmed   = "confirmed"
	StatusCancelled   = "cancelled"
	StatusRescheduled = "rescheduled"
)

// TimeUnset marks a time the user explicitly left open. It is treated as missing.
const TimeUnset = "unset"

// Field names an appointment attribute collected during a dialogue.
type Field string

const (
	FieldPatientName  Field = "patient_name"
	FieldNationalID   Field = "national_id"
	FieldContactName  Field = "contact_name"
	FieldContactPhone Field = "contact_phone"
	FieldDate         Field = "date"
	FieldTime         Field = "time"
	FieldNotes        Field = "notes"
)

// DefaultRequiredFields is the completeness policy used when none is configured.
var DefaultRequiredFields = []Field{FieldPatientName, FieldNationalID, FieldDate, FieldTime}

// ParseField maps a config value to a Field.
func ParseField(s string) (Field, bool) {
	switch f := Field(strings.ToLower(strings.TrimSpace(s))); f {
	case FieldPatientName, FieldNationalID, FieldContactName, FieldContactPhone, FieldDate, FieldTime, FieldNotes:
		return f, true
	}
	return "", false
}

// Appointment is both the draft collected in a session and the committed record.
type Appointment struct {
	Number       int64     `json:"number,omitempty"`
	PatientName  string    `json:"patient_name,omitempty"`
	NationalID   string    `json:"national_id,omitempty"`
	ContactName  string    `json:"contact_name,omitempty"`
	ContactPhone string    `json:"contact_phone,omitempty"`
	Date         string    `json:"date,omitempty"` // DD/MM/YYYY
	Time         string    `json:"time,omitempty"` // HH:MM, 24h
	Status       string    `json:"status,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

func (a *Appointment) Get(f Field) string {
	switch f {
	case FieldPatientName:
		return a.PatientName
	case FieldNationalID:
		return a.NationalID
	case FieldContactName:
		return a.ContactName
	case FieldContactPhone:
		return a.ContactPhone
	case FieldDate:
		return a.Date
	case FieldTime:
		return a.Time
	case FieldNotes:
		return a.Notes
	}
	return ""
}

func (a *Appointment) Set(f Field, v string) {
	switch f {
	case FieldPatientName:
		a.PatientName = v
	case FieldNationalID:
		a.NationalID = v
	case FieldContactName:
		a.ContactName = v
	case FieldContactPhone:
		a.ContactPhone = v
	case FieldDate:
		a.Date = v
	case FieldTime:
		a.Time = v
	case FieldNotes:
		a.Notes = v
	}
}

// Has reports whether the field holds a usable value. The unset time sentinel counts as empty.
func (a *Appointment) Has(f Field) bool {
	v := strings.TrimSpace(a.Get(f))
	if f == FieldTime && v == TimeUnset {
		return false
	}
	return v != ""
}

// Missing returns the required fields still empty, in policy order.
func (a *Appointment) Missing(required []Field) []Field {
	var out []Field
	for _, f := range required {
		if !a.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

func (a *Appointment) IsComplete(required []Field) bool {
	return len(a.Missing(required)) == 0
}

// IsActive reports whether the appointment still occupies its slot.
func (a *Appointment) IsActive() bool {
	return IsActiveStatus(a.Status)
}

// IsActiveStatus reports whether a row with this status holds its slot.
func IsActiveStatus(status string) bool {
	return status != StatusCancelled && status != StatusRescheduled
}

// Reactivates reports whether moving a row from one status to another makes
// it take its slot again.
func Reactivates(from, to string) bool {
	return !IsActiveStatus(from) && IsActiveStatus(to)
}

// SlotKey identifies the (date, time) pair an appointment occupies.
func (a *Appointment) SlotKey() string {
	return SlotKey(a.Date, a.Time)
}

func SlotKey(date, tm string) string {
	return date + "|" + tm
}

// ParseStatus maps user words (Spanish or English) to a status.
func ParseStatus(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pendiente", StatusPending:
		return StatusPending, true
	case "confirmada", "confirmado", StatusConfirmed:
		return StatusConfirmed, true
	case "cancelada", "cancelado", "anulada", StatusCancelled:
		return StatusCancelled, true
	case "reagendada", "reprogramada", StatusRescheduled:
		return StatusRescheduled, true
	}
	return "", false
}

// StatusLabel renders a status for patients.
func StatusLabel(status string) string {
	switch status {
	case StatusPending:
		return "pendiente"
	case StatusConfirmed:
		return "confirmada"
	case StatusCancelled:
		return "cancelada"
	case StatusRescheduled:
		return "reagendada"
	}
	return status
}
