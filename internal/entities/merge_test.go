package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/superst1/chatbot-whatsapp-citas/internal/models"
)

func TestMerge_FillOnlyEmptyAndPrecedence(t *testing.T) {
	draft := models.Appointment{PatientName: "Ana Pérez"}
	local := models.Appointment{PatientName: "Otro Nombre", NationalID: "1802525254"}
	nlu := models.Appointment{NationalID: "0102030405", Date: "5/3/25"}

	out, missing := Merge(draft, nlu, local, "593991234567", nil)

	assert.Equal(t, "Ana Pérez", out.PatientName)
	assert.Equal(t, "1802525254", out.NationalID)
	assert.Equal(t, "05/03/2025", out.Date)
	assert.Equal(t, "Ana Pérez", out.ContactName)
	assert.Equal(t, "593991234567", out.ContactPhone)
	assert.Equal(t, []models.Field{models.FieldTime}, missing)
}

func TestMerge_NeverOverwrites(t *testing.T) {
	full := models.Appointment{
		PatientName:  "Ana Pérez",
		NationalID:   "1802525254",
		ContactName:  "Luis Pérez",
		ContactPhone: "0991234567",
		Date:         "05/03/2025",
		Time:         "09:00",
		Notes:        "control",
	}
	other := models.Appointment{
		PatientName:  "Juan Soto",
		NationalID:   "0102030405",
		ContactName:  "Juan Soto",
		ContactPhone: "0987654321",
		Date:         "06/03/2025",
		Time:         "10:00",
		Notes:        "dolor",
	}
	out, missing := Merge(full, other, other, "593000000000", nil)
	assert.Equal(t, full, out)
	assert.Empty(t, missing)
}

func TestMerge_InvalidValuesIgnored(t *testing.T) {
	nlu := models.Appointment{Date: "31/02/2025", NationalID: "123", Time: "25:00"}
	out, missing := Merge(models.Appointment{}, nlu, models.Appointment{}, "12345", nil)

	assert.Empty(t, out.Date)
	assert.Empty(t, out.NationalID)
	assert.Empty(t, out.Time)
	assert.Equal(t, "12345", out.ContactPhone)
	assert.Equal(t, models.DefaultRequiredFields, missing)
}

func TestMerge_UnsetTimeStaysMissing(t *testing.T) {
	out, missing := Merge(models.Appointment{}, models.Appointment{Time: "unset"}, models.Appointment{}, "", []models.Field{models.FieldTime})
	assert.Equal(t, models.TimeUnset, out.Time)
	assert.Equal(t, []models.Field{models.FieldTime}, missing)

	out, missing = Merge(out, models.Appointment{}, models.Appointment{Time: "10:00"}, "", []models.Field{models.FieldTime})
	assert.Equal(t, "10:00", out.Time)
	assert.Empty(t, missing)
}

func TestFillExpected(t *testing.T) {
	var a models.Appointment

	assert.False(t, FillExpected(&a, string(models.FieldPatientName), "Ana"))
	assert.True(t, FillExpected(&a, string(models.FieldPatientName), "ana perez"))
	assert.Equal(t, "Ana Perez", a.PatientName)
	assert.False(t, FillExpected(&a, string(models.FieldPatientName), "Otro Nombre"))

	assert.True(t, FillExpected(&a, string(models.FieldNationalID), "1802525254"))
	assert.Equal(t, "1802525254", a.NationalID)

	assert.True(t, FillExpected(&a, string(models.FieldNotes), "chequeo general"))
	assert.Equal(t, "chequeo general", a.Notes)

	assert.False(t, FillExpected(&a, models.ExpectConfirmation, "sí"))
}

func TestClearFields(t *testing.T) {
	a := models.Appointment{PatientName: "Ana Pérez", ContactName: "Ana Pérez", Date: "05/03/2025", Time: "09:00"}
	ClearFields(&a, []models.Field{models.FieldPatientName, models.FieldTime})

	assert.Empty(t, a.PatientName)
	assert.Empty(t, a.ContactName)
	assert.Empty(t, a.Time)
	assert.Equal(t, "05/03/2025", a.Date)
}
