package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/superst1/chatbot-whatsapp-citas/internal/models"
)

var testNow = time.Date(2025, 3, 5, 8, 0, 0, 0, time.UTC)

func TestExtract_FullSentence(t *testing.T) {
	l := Extract("Hola, soy María López, cédula 1802525254, quiero cita el 5/3/25 a las 3pm", testNow)

	assert.Equal(t, IntentBook, l.Intent)
	assert.Equal(t, "María López", l.Fields.PatientName)
	assert.Equal(t, "1802525254", l.Fields.NationalID)
	assert.Equal(t, "05/03/2025", l.Fields.Date)
	assert.Equal(t, "15:00", l.Fields.Time)
	assert.Zero(t, l.Number)
}

func TestExtract_Numbers(t *testing.T) {
	l := Extract("Mi cédula es 1802525254 y mi celular 0991234567", testNow)
	assert.Equal(t, "1802525254", l.Fields.NationalID)
	assert.Equal(t, "0991234567", l.Fields.ContactPhone)

	l = Extract("1802525254 0991234567", testNow)
	assert.Equal(t, "1802525254", l.Fields.NationalID)
	assert.Equal(t, "0991234567", l.Fields.ContactPhone)

	l = Extract("cancelar cita #12.", testNow)
	assert.Equal(t, int64(12), l.Number)
	assert.Equal(t, IntentCancel, l.Intent)

	l = Extract("cita 1802525254", testNow)
	assert.Zero(t, l.Number)
	assert.Equal(t, "1802525254", l.Fields.NationalID)
}

func TestExtract_RelativeDates(t *testing.T) {
	l := Extract("quiero una cita mañana a las 10:00", testNow)
	assert.Equal(t, "06/03/2025", l.Fields.Date)
	assert.Equal(t, "10:00", l.Fields.Time)

	l = Extract("pasado mañana", testNow)
	assert.Equal(t, "07/03/2025", l.Fields.Date)

	l = Extract("hoy", testNow)
	assert.Equal(t, "05/03/2025", l.Fields.Date)

	l = Extract("prefiero en la mañana", testNow)
	assert.Empty(t, l.Fields.Date)
}

func TestExtract_Names(t *testing.T) {
	assert.Equal(t, "Ana Perez", Extract("me llamo ana perez", testNow).Fields.PatientName)
	assert.Equal(t, "Juan Pérez", Extract("Quiero una cita para Juan Pérez", testNow).Fields.PatientName)
	assert.Empty(t, Extract("soy paciente nuevo", testNow).Fields.PatientName)
	assert.Empty(t, Extract("Hola Buenos Días", testNow).Fields.PatientName)
}

func TestExtract_NotesAndStatus(t *testing.T) {
	assert.Equal(t, "control de presión", Extract("motivo: control de presión", testNow).Fields.Notes)

	l := Extract("actualizar 1802525254 a confirmada", testNow)
	assert.Equal(t, IntentUpdateStatus, l.Intent)
	assert.Equal(t, models.StatusConfirmed, l.Status)
	assert.Equal(t, "1802525254", l.Fields.NationalID)
}

func TestDetectIntent(t *testing.T) {
	tests := map[string]Intent{
		"Quiero reagendar mi cita":  IntentReschedule,
		"necesito cambiar mi cita":  IntentReschedule,
		"ya no podré ir, cancelen":  IntentCancel,
		"consultar mi cita":         IntentQuery,
		"quiero agendar":            IntentBook,
		"hola":                      IntentGreeting,
		"buenos días":               IntentGreeting,
		"ayuda":                     IntentHelp,
		"cambiar la hora":           IntentNone,
		"12345":                     IntentNone,
		"":                          IntentNone,
	}
	for in, want := range tests {
		assert.Equal(t, want, DetectIntent(in), in)
	}
}

func TestParseIntent(t *testing.T) {
	assert.Equal(t, IntentBook, ParseIntent("crear_cita"))
	assert.Equal(t, IntentReschedule, ParseIntent("Reagendar"))
	assert.Equal(t, IntentNone, ParseIntent("other"))
}

func TestReplySets(t *testing.T) {
	assert.True(t, IsAffirmative("Sí, confirmo"))
	assert.True(t, IsAffirmative("de acuerdo"))
	assert.False(t, IsAffirmative("no"))
	assert.True(t, IsNegative("No, está mal"))
	assert.False(t, IsNegative("sí"))
	assert.True(t, IsSkip("omitir"))
	assert.True(t, IsSkip("Ninguna"))
	assert.True(t, IsSkip("no, gracias"))
	assert.False(t, IsSkip("dolor de cabeza"))
}

func TestReplySetsIgnoreLongerReplies(t *testing.T) {
	assert.False(t, IsAffirmative("si, pero cambia la hora"))
	assert.False(t, IsSkip("nada grave, dolor de cabeza"))
	assert.False(t, IsNegative("no puedo ir en la mañana temprano"))
	assert.True(t, IsAffirmative("sí, todo bien"))
}

func TestCorrectionFields(t *testing.T) {
	assert.Equal(t, []models.Field{models.FieldDate, models.FieldTime}, CorrectionFields("la fecha y la hora"))
	assert.Equal(t, []models.Field{models.FieldPatientName}, CorrectionFields("el nombre"))
	assert.Empty(t, CorrectionFields("todo"))
}
