package entities

import (
	"strings"

	"github.com/superst1/chatbot-whatsapp-citas/internal/models"
)

var mergeOrder = []models.Field{
	models.FieldPatientName,
	models.FieldNationalID,
	models.FieldContactName,
	models.FieldContactPhone,
	models.FieldDate,
	models.FieldTime,
	models.FieldNotes,
}

// Normalize returns the canonical form of v for field f.
func Normalize(f models.Field, v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	switch f {
	case models.FieldPatientName, models.FieldContactName:
		return NormalizeName(v)
	case models.FieldNationalID:
		return NormalizeNationalID(v)
	case models.FieldContactPhone:
		return NormalizePhone(v)
	case models.FieldDate:
		return NormalizeDate(v)
	case models.FieldTime:
		if strings.EqualFold(v, models.TimeUnset) {
			return models.TimeUnset, true
		}
		return NormalizeTime(v)
	case models.FieldNotes:
		return v, true
	}
	return "", false
}

// Merge fills empty draft fields from the local pattern matches first and the
// extractor output second. Non-empty draft fields are never overwritten.
// Contact name and phone default to the patient name and the sender id.
// The returned slice lists required fields that are still missing.
func Merge(draft, nlu, local models.Appointment, sender string, required []models.Field) (models.Appointment, []models.Field) {
	if len(required) == 0 {
		required = models.DefaultRequiredFields
	}
	out := draft
	for _, f := range mergeOrder {
		if out.Has(f) {
			continue
		}
		for _, src := range []*models.Appointment{&local, &nlu} {
			if v, ok := Normalize(f, src.Get(f)); ok {
				out.Set(f, v)
				if v != models.TimeUnset {
					break
				}
			}
		}
	}
	if !out.Has(models.FieldContactName) && out.Has(models.FieldPatientName) {
		out.ContactName = out.PatientName
	}
	if !out.Has(models.FieldContactPhone) {
		if p, ok := NormalizePhone(sender); ok {
			out.ContactPhone = p
		} else if s := strings.TrimSpace(sender); s != "" {
			out.ContactPhone = s
		}
	}
	return out, out.Missing(required)
}

// FillExpected accepts a bare reply for the field the dialogue asked for,
// e.g. "Ana Pérez" after a name prompt or "1802525254" after an id prompt.
// It only fills empty fields and reports whether it did.
func FillExpected(draft *models.Appointment, expecting, text string) bool {
	f, ok := models.ParseField(expecting)
	if !ok || draft.Has(f) {
		return false
	}
	text = strings.TrimSpace(text)
	var v string
	switch f {
	case models.FieldPatientName, models.FieldContactName:
		if !IsValidName(text) {
			return false
		}
		v, ok = NormalizeName(text)
	case models.FieldNotes:
		v, ok = text, text != ""
	default:
		v, ok = Normalize(f, text)
	}
	if !ok || v == models.TimeUnset {
		return false
	}
	draft.Set(f, v)
	return true
}

// ClearFields empties the named fields, used when the user corrects a summary.
func ClearFields(draft *models.Appointment, fields []models.Field) {
	for _, f := range fields {
		if f == models.FieldPatientName && draft.ContactName == draft.PatientName {
			draft.ContactName = ""
		}
		draft.Set(f, "")
	}
}
