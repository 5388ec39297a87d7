// Package nlu adapts language-model providers into an entity extractor.
package nlu

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/superst1/chatbot-whatsapp-citas/internal/entities"
	"github.com/superst1/chatbot-whatsapp-citas/internal/models"
)

// Result is what an extractor understood from one message.
type Result struct {
	Intent entities.Intent
	Fields models.Appointment
	// Status is the target status word for update_status requests.
	Status string
	Reply  string
}

// Extractor turns free text into intent and appointment fields.
// Errors are reserved for transport failures; an unparseable model answer
// yields an empty Result and no error.
type Extractor interface {
	Extract(ctx context.Context, text string) (Result, error)
	Name() string
}

const systemPrompt = `Eres un asistente que extrae datos para agendar citas médicas a partir de mensajes de WhatsApp en español.
Responde SOLO con un objeto JSON con estas claves:
{"intent": "book|reschedule|cancel|query|update_status|greeting|help|none",
 "patient_name": "", "national_id": "", "contact_name": "", "contact_phone": "",
 "date": "DD/MM/YYYY", "time": "HH:MM", "notes": "", "status": "", "reply": ""}
Reglas: deja vacío lo que no aparezca en el mensaje; no inventes datos.
La cédula tiene 10 dígitos. Usa hora de 24 horas. Si el usuario dice que no le importa la hora, usa "unset".
En "status" pon el nuevo estado (pendiente, confirmada, cancelada) solo si el usuario pide actualizar una cita.
En "reply" escribe una respuesta breve y amable para el paciente.`

type payload struct {
	Intent       string `json:"intent"`
	PatientName  string `json:"patient_name"`
	NationalID   string `json:"national_id"`
	ContactName  string `json:"contact_name"`
	ContactPhone string `json:"contact_phone"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	Notes        string `json:"notes"`
	Status       string `json:"status"`
	Reply        string `json:"reply"`
}

// ParseResult decodes a model answer. Markdown fences and text around the
// JSON object are tolerated; anything else produces an empty Result.
func ParseResult(raw string) Result {
	s := strings.TrimSpace(raw)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return Result{}
	}
	var p payload
	if err := json.Unmarshal([]byte(s[start:end+1]), &p); err != nil {
		return Result{}
	}
	return Result{
		Intent: entities.ParseIntent(p.Intent),
		Fields: models.Appointment{
			PatientName:  strings.TrimSpace(p.PatientName),
			NationalID:   strings.TrimSpace(p.NationalID),
			ContactName:  strings.TrimSpace(p.ContactName),
			ContactPhone: strings.TrimSpace(p.ContactPhone),
			Date:         strings.TrimSpace(p.Date),
			Time:         strings.TrimSpace(p.Time),
			Notes:        strings.TrimSpace(p.Notes),
		},
		Status: strings.TrimSpace(p.Status),
		Reply:  strings.TrimSpace(p.Reply),
	}
}
