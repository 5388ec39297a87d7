package booking

import (
	"errors"
	"fmt"
	"strings"

	"github.com/superst1/chatbot-whatsapp-citas/internal/models"
	"github.com/superst1/chatbot-whatsapp-citas/internal/slots"
)

const (
	msgRetry          = "😕 Tuve un problema procesando tu mensaje. Por favor, inténtalo de nuevo en un momento."
	msgAskIdentifier  = "Para continuar necesito el número de cédula del paciente (10 dígitos) o el número de tu cita."
	msgCancelAborted  = "De acuerdo, no cancelé ninguna cita."
	msgAskCorrection  = "¿Qué dato quieres corregir? Puedes decirme: nombre, cédula, teléfono, fecha, hora o motivo."
	msgPastDate       = "Esa fecha ya pasó."
	msgSlotBusy       = "⏳ Ese horario lo está reservando otra persona en este momento."
	msgUpdateUsage    = "Para actualizar una cita escribe, por ejemplo: actualizar 1802525254 a confirmada"
	msgQueryUsage     = "Para consultar tu cita envíame tu número de cédula, por ejemplo: consultar cédula 1802525254"
	msgNoActive       = "No encontré una cita activa con esos datos. Revisa la cédula o el número de cita e inténtalo de nuevo."
	msgRescheduleDate = "¿Para qué fecha quieres mover tu cita? Escríbela como DD/MM/AAAA o dime \"mañana\"."
)

var fieldPrompts = map[models.Field]string{
	models.FieldPatientName:  "¿Cuál es el nombre completo del paciente?",
	models.FieldNationalID:   "¿Cuál es el número de cédula del paciente? (10 dígitos)",
	models.FieldContactName:  "¿A nombre de quién dejamos el contacto?",
	models.FieldContactPhone: "¿A qué número de teléfono podemos contactarte?",
	models.FieldDate:         "¿Para qué fecha deseas la cita? Escríbela como DD/MM/AAAA o dime \"mañana\".",
	models.FieldTime:         "¿A qué hora deseas la cita?",
	models.FieldNotes:        "¿Cuál es el motivo de la consulta? Si prefieres no decirlo, responde \"omitir\".",
}

var greetings = []string{
	"Hola %s 👋",
	"¡Qué gusto verte, %s!",
	"Buenas, %s 😄",
	"¡Hola de nuevo, %s!",
}

var closings = []string{
	"¡Te espero! 😊",
	"Nos vemos pronto.",
	"Gracias por confiar en nosotros.",
	"¡Hasta pronto!",
}

const helpText = `Puedo ayudarte con tus citas médicas. Por ejemplo:
• crear cita para mañana 10am a nombre de Ana Pérez, cédula 1802525254
• consultar cédula 1802525254
• reagendar mi cita
• cancelar cita 12
• actualizar 1802525254 a confirmada`

func joinLines(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n")
}

func formatTimes(times []string) string {
	var b strings.Builder
	for i, t := range times {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("• ")
		b.WriteString(t)
	}
	return b.String()
}

func formatSlotOffer(date string, free []string) string {
	return fmt.Sprintf("🗓 Horarios disponibles para el %s:\n%s\n\n¿Cuál prefieres?", date, formatTimes(free))
}

func formatNoSlots(date string) string {
	return fmt.Sprintf("No hay horarios disponibles el %s. ¿Qué otra fecha te sirve?", date)
}

func formatTimeUnavailable(tm, date string) string {
	return fmt.Sprintf("⚠️ Las %s del %s no están disponibles.", tm, date)
}

func formatReactivateConflict(ce *slots.ConflictError) string {
	lead := msgSlotBusy
	if errors.Is(ce, slots.ErrSlotTaken) {
		lead = fmt.Sprintf("⚠️ No puedo reactivar esa cita: las %s del %s ya están ocupadas por otra cita.", ce.Time, ce.Date)
	}
	return lead
}

func formatNotOffered(free []string) string {
	return fmt.Sprintf("Esa hora no está entre las opciones. Elige una de estas:\n%s", formatTimes(free))
}

// FormatSummary renders the draft for the confirmation question.
func FormatSummary(a *models.Appointment) string {
	notes := a.Notes
	if notes == "" {
		notes = "(sin motivo)"
	}
	contact := a.ContactName
	if a.ContactPhone != "" {
		contact = strings.TrimSpace(contact + " " + a.ContactPhone)
	}
	lines := []string{
		"📋 Revisa los datos de tu cita:",
		"",
		"👤 Paciente: " + a.PatientName,
		"🪪 Cédula: " + a.NationalID,
	}
	if contact != "" {
		lines = append(lines, "📞 Contacto: "+contact)
	}
	lines = append(lines,
		"📅 Fecha: "+a.Date,
		"⏰ Hora: "+a.Time,
		"📝 Motivo: "+notes,
		"",
		"¿Confirmas la cita? Responde \"sí\" o \"no\".",
	)
	return strings.Join(lines, "\n")
}

func formatBooked(a *models.Appointment, closing string) string {
	return joinLines(
		fmt.Sprintf("✅ Cita registrada para %s el %s a las %s.", a.PatientName, a.Date, a.Time),
		fmt.Sprintf("Tu número de cita es %d.", a.Number),
		closing,
	)
}

func formatRescheduled(a *models.Appointment, previous int64, closing string) string {
	return joinLines(
		fmt.Sprintf("✅ Tu cita #%d fue reagendada para el %s a las %s.", previous, a.Date, a.Time),
		fmt.Sprintf("Tu nuevo número de cita es %d.", a.Number),
		closing,
	)
}

func formatCancelled(a *models.Appointment) string {
	return fmt.Sprintf("❌ Tu cita #%d del %s a las %s fue cancelada.", a.Number, a.Date, a.Time)
}

func formatStatusUpdated(a *models.Appointment) string {
	return fmt.Sprintf("🔄 La cita #%d de %s ahora está %s.", a.Number, a.PatientName, models.StatusLabel(a.Status))
}

func formatQuery(a *models.Appointment) string {
	notes := a.Notes
	if notes == "" {
		notes = "-"
	}
	return fmt.Sprintf("📄 Cita #%d de %s:\n- Fecha: %s %s\n- Estado: %s\n- Obs: %s",
		a.Number, a.PatientName, a.Date, a.Time, models.StatusLabel(a.Status), notes)
}

func formatRescheduleFound(a *models.Appointment) string {
	return fmt.Sprintf("Encontré tu cita #%d del %s a las %s.", a.Number, a.Date, a.Time)
}
