package entities

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/superst1/chatbot-whatsapp-citas/internal/models"
)

// Intent is the user's goal for a message.
type Intent string

const (
	IntentNone         Intent = ""
	IntentBook         Intent = "book"
	IntentReschedule   Intent = "reschedule"
	IntentCancel       Intent = "cancel"
	IntentQuery        Intent = "query"
	IntentUpdateStatus Intent = "update_status"
	IntentGreeting     Intent = "greeting"
	IntentHelp         Intent = "help"
)

// ParseIntent maps labels produced by extractors onto Intent values.
func ParseIntent(s string) Intent {
	switch Fold(s) {
	case "book", "agendar", "crear_cita", "create":
		return IntentBook
	case "reschedule", "reagendar":
		return IntentReschedule
	case "cancel", "cancelar":
		return IntentCancel
	case "query", "consulta", "consultar", "consultar_cita":
		return IntentQuery
	case "update_status", "actualizar_estado":
		return IntentUpdateStatus
	case "greeting", "saludo":
		return IntentGreeting
	case "help", "ayuda":
		return IntentHelp
	}
	return IntentNone
}

var (
	tenDigitsRe = regexp.MustCompile(`\b\d{10}\b`)
	dateRe      = regexp.MustCompile(`\b(\d{1,2}[/\-.]\d{1,2}[/\-.](?:\d{4}|\d{2}))\b`)
	timeTokenRe = regexp.MustCompile(`(?i)\b(\d{1,2}(?::\d{2})?\s*[ap]\.?\s?m\b\.?|\d{1,2}:\d{2})`)
	numberRe    = regexp.MustCompile(`(?i)(?:\bcita|\bn[uú]mero|\bnro\.?|#)\s*(?:n[uú]mero\s*)?#?\s*(\d{1,9})(?:$|[^\d/\-.:]|\.(?:\s|$))`)
	strongLabel = regexp.MustCompile(`(?i)\b(?:mi nombre es|me llamo|nombre del paciente\s*:?|nombre\s*:|nombre es)\s*`)
	weakLabel   = regexp.MustCompile(`(?i)\b(?:paciente|nombre|soy)\s*:?\s+(?:es\s+)?`)
	capNameRe   = regexp.MustCompile(`\p{Lu}\p{Ll}+(?:\s+\p{Lu}\p{Ll}+){1,3}`)
	notesRe     = regexp.MustCompile(`(?i)\b(?:motivo|raz[oó]n|nota|notas)\s*(?:es|:)?\s*:?\s+(.+)$`)
	statusRe    = regexp.MustCompile(`(?i)\ba\s+(pendiente|confirmad[ao]|cancelad[ao]|anulada|reagendada|reprogramada)\b`)
	relDateRe   = regexp.MustCompile(`\b(?:(la|pasado)\s+)?(hoy|manana)\b`)
	phoneHint   = regexp.MustCompile(`(?i)\b(?:tel[eé]fono|celular|cel|whatsapp|contacto|n[uú]mero de contacto)\s*:?\s*(?:es\s*)?$`)
	idHint      = regexp.MustCompile(`(?i)\b(?:c[eé]dula|ci|identificaci[oó]n|documento|dni)\s*:?\s*(?:es\s*)?$`)

	rescheduleRe = regexp.MustCompile(`\bre.?agend|\breprogram|\b(?:cambiar|mover)\s+(?:mi|la)\s+cita\b`)
	cancelRe     = regexp.MustCompile(`\bcancel|\banul|\bya no\b|\bno podr|\bno voy a poder\b`)
	queryRe      = regexp.MustCompile(`\bconsult|\bver mi cita\b|\bmis citas\b|\bestado de mi cita\b|\btengo (?:una )?cita\b`)
	updateRe     = regexp.MustCompile(`\bactualiz`)
	bookRe       = regexp.MustCompile(`\bagend|\bcita\b|\breserv|\bquiero\b|\bturno\b`)
	helpRe       = regexp.MustCompile(`\bayuda\b|\bhelp\b|\bcomo funciona\b|\binstrucciones\b`)
	greetingRe   = regexp.MustCompile(`^(?:hola|buen[oa]s?\s*(?:dias|tardes|noches)?|saludos|hi|hello)\b`)
)

var nameStopwords = map[string]bool{
	"y": true, "quiero": true, "para": true, "con": true, "mi": true, "cedula": true, "cita": true,
	"el": true, "hola": true, "buenos": true, "buenas": true, "dias": true, "tardes": true, "noches": true,
	"agendar": true, "reservar": true, "necesito": true, "por": true, "favor": true, "gracias": true,
	"fecha": true, "hora": true, "motivo": true, "telefono": true, "celular": true, "numero": true,
	"a": true, "las": true, "en": true, "que": true, "una": true, "un": true, "me": true, "llamo": true,
	"soy": true, "nombre": true, "paciente": true, "doctor": true, "doctora": true, "dr": true,
}

var trailingConnectors = map[string]bool{"de": true, "del": true, "la": true, "los": true, "las": true}

// Local holds what the regular-expression extractor found in one message.
type Local struct {
	Fields models.Appointment
	Number int64
	Intent Intent
	Status string
}

// Fold lowercases s and strips diacritics so keyword patterns stay ASCII.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// Extract runs the local patterns over text. now resolves relative dates.
func Extract(text string, now time.Time) Local {
	var l Local
	folded := Fold(text)

	l.Intent = DetectIntent(text)
	extractNumbers(text, &l.Fields)

	if m := dateRe.FindStringSubmatch(text); m != nil {
		if d, ok := NormalizeDate(m[1]); ok {
			l.Fields.Date = d
		}
	}
	if l.Fields.Date == "" && !now.IsZero() {
		if m := relDateRe.FindStringSubmatch(folded); m != nil && m[1] != "la" {
			day := now
			switch {
			case m[1] == "pasado":
				day = now.AddDate(0, 0, 2)
			case m[2] == "manana":
				day = now.AddDate(0, 0, 1)
			}
			l.Fields.Date = day.Format(DateLayout)
		}
	}

	withoutDates := dateRe.ReplaceAllString(text, " ")
	if m := timeTokenRe.FindStringSubmatch(withoutDates); m != nil {
		if t, ok := NormalizeTime(m[1]); ok {
			l.Fields.Time = t
		}
	}

	if m := numberRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.ParseInt(m[1], 10, 64); err == nil && n > 0 {
			l.Number = n
		}
	}

	l.Fields.PatientName = extractName(text)

	if m := notesRe.FindStringSubmatch(text); m != nil {
		l.Fields.Notes = strings.TrimSpace(m[1])
	}
	if m := statusRe.FindStringSubmatch(text); m != nil {
		l.Status, _ = models.ParseStatus(Fold(m[1]))
	}
	return l
}

// extractNumbers assigns ten digit numbers to the national id or the phone.
// A label right before the number decides; otherwise the first unlabeled
// number is the id and a later 09 number is the phone.
func extractNumbers(text string, a *models.Appointment) {
	var unlabeled []string
	for _, loc := range tenDigitsRe.FindAllStringIndex(text, -1) {
		num := text[loc[0]:loc[1]]
		prefix := text[:loc[0]]
		switch {
		case phoneHint.MatchString(prefix):
			if a.ContactPhone == "" {
				a.ContactPhone = num
			}
		case idHint.MatchString(prefix):
			if a.NationalID == "" {
				a.NationalID = num
			}
		default:
			unlabeled = append(unlabeled, num)
		}
	}
	for _, num := range unlabeled {
		switch {
		case a.NationalID == "":
			a.NationalID = num
		case a.ContactPhone == "" && strings.HasPrefix(num, "09"):
			a.ContactPhone = num
		}
	}
}

func extractName(text string) string {
	if loc := strongLabel.FindStringIndex(text); loc != nil {
		if name := takeNameWords(text[loc[1]:], false); name != "" {
			return name
		}
	}
	for _, loc := range weakLabel.FindAllStringIndex(text, -1) {
		if name := takeNameWords(text[loc[1]:], true); name != "" {
			return name
		}
	}
	for _, m := range capNameRe.FindAllString(text, -1) {
		words := strings.Fields(m)
		for len(words) > 0 && nameStopwords[Fold(words[0])] {
			words = words[1:]
		}
		if len(words) >= 2 {
			if name, ok := NormalizeName(strings.Join(words, " ")); ok {
				return name
			}
		}
	}
	return ""
}

// takeNameWords reads up to four letter-only words, stopping at punctuation,
// digits or stopwords. With requireCap the first word must start uppercase.
func takeNameWords(s string, requireCap bool) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	if first := []rune(fields[0]); requireCap && !unicode.IsUpper(first[0]) {
		return ""
	}
	var words []string
	for _, tok := range fields {
		if len(words) == 4 {
			break
		}
		word := strings.TrimRight(tok, ",.;:!?")
		stop := word != tok
		if word == "" || !nameRegex.MatchString(word) || nameStopwords[Fold(word)] {
			break
		}
		words = append(words, word)
		if stop {
			break
		}
	}
	for len(words) > 0 && trailingConnectors[Fold(words[len(words)-1])] {
		words = words[:len(words)-1]
	}
	if len(words) == 0 {
		return ""
	}
	name, _ := NormalizeName(strings.Join(words, " "))
	return name
}

// DetectIntent classifies a message by keywords. Reschedule is checked
// before cancel so "cambiar mi cita" is not read as a cancellation.
func DetectIntent(text string) Intent {
	s := Fold(text)
	switch {
	case s == "":
		return IntentNone
	case updateRe.MatchString(s) && statusRe.MatchString(s):
		return IntentUpdateStatus
	case rescheduleRe.MatchString(s):
		return IntentReschedule
	case cancelRe.MatchString(s):
		return IntentCancel
	case queryRe.MatchString(s):
		return IntentQuery
	case bookRe.MatchString(s):
		return IntentBook
	case helpRe.MatchString(s):
		return IntentHelp
	case greetingRe.MatchString(s):
		return IntentGreeting
	}
	return IntentNone
}

var (
	affirmative = map[string]bool{
		"si": true, "confirmo": true, "confirmar": true, "correcto": true, "ok": true, "okay": true,
		"dale": true, "claro": true, "afirmativo": true, "yes": true, "perfecto": true, "listo": true,
		"de acuerdo": true, "esta bien": true, "todo bien": true, "exacto": true,
	}
	negative = map[string]bool{
		"no": true, "incorrecto": true, "negativo": true, "corregir": true, "cambiar": true,
		"esta mal": true, "hay un error": true, "nop": true,
	}
	skipNotes = map[string]bool{
		"omitir": true, "ninguna": true, "ninguno": true, "no": true, "nada": true,
		"sin motivo": true, "skip": true, "no gracias": true, "-": true,
	}
)

func words(text string) []string {
	return strings.FieldsFunc(Fold(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
}

// maxLeadWords bounds replies that count by their first words alone, so
// "sí, claro" matches and "sí, pero cambia la hora" does not.
const maxLeadWords = 3

func matchSet(set map[string]bool, text string) bool {
	w := words(text)
	if len(w) == 0 {
		return false
	}
	if set[strings.Join(w, " ")] {
		return true
	}
	if len(w) > maxLeadWords {
		return false
	}
	return set[w[0]] || (len(w) > 1 && set[w[0]+" "+w[1]])
}

// IsAffirmative reports whether the reply confirms.
func IsAffirmative(text string) bool { return matchSet(affirmative, text) }

// IsNegative reports whether the reply rejects.
func IsNegative(text string) bool { return matchSet(negative, text) }

// IsSkip reports whether the reply declines to give optional notes.
func IsSkip(text string) bool { return matchSet(skipNotes, text) }

var correctionWords = map[string]models.Field{
	"nombre":         models.FieldPatientName,
	"paciente":       models.FieldPatientName,
	"cedula":         models.FieldNationalID,
	"identificacion": models.FieldNationalID,
	"documento":      models.FieldNationalID,
	"fecha":          models.FieldDate,
	"dia":            models.FieldDate,
	"hora":           models.FieldTime,
	"horario":        models.FieldTime,
	"motivo":         models.FieldNotes,
	"nota":           models.FieldNotes,
	"notas":          models.FieldNotes,
	"telefono":       models.FieldContactPhone,
	"celular":        models.FieldContactPhone,
	"contacto":       models.FieldContactName,
}

// CorrectionFields lists the fields a correction reply names, in order of mention.
func CorrectionFields(text string) []models.Field {
	seen := make(map[models.Field]bool)
	var out []models.Field
	for _, w := range words(text) {
		if f, ok := correctionWords[w]; ok && !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}
