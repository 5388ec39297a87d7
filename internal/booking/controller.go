package booking

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/superst1/chatbot-whatsapp-citas/internal/entities"
	"github.com/superst1/chatbot-whatsapp-citas/internal/events"
	"github.com/superst1/chatbot-whatsapp-citas/internal/keylock"
	"github.com/superst1/chatbot-whatsapp-citas/internal/messaging"
	"github.com/superst1/chatbot-whatsapp-citas/internal/metrics"
	"github.com/superst1/chatbot-whatsapp-citas/internal/models"
	"github.com/superst1/chatbot-whatsapp-citas/internal/nlu"
	"github.com/superst1/chatbot-whatsapp-citas/internal/repository"
	"github.com/superst1/chatbot-whatsapp-citas/internal/session"
	"github.com/superst1/chatbot-whatsapp-citas/internal/slots"
)

const (
	msgDraftDiscarded    = "Listo, descarté la solicitud de cita que estábamos armando."
	msgRescheduleAborted = "De acuerdo, tu cita se mantiene igual."
	msgNotFound          = "No encontré citas con esos datos."
	msgDateNotUnderstood = "No entendí la fecha."
	tracerName           = "citas.internal.booking"
	outcomeOK            = "ok"
	outcomeError         = "error"
	outcomeConflict      = "conflict"
	outcomeBooked        = "booked"
	outcomeRescheduled   = "rescheduled"
	outcomeCancelled     = "cancelled"
	outcomeStatusUpdated = "status_updated"
)

var (
	bareHourRe = regexp.MustCompile(`^(?:a\s+las\s+|las\s+)?(\d{1,2})(?:\s*(?:h|hs|hrs|horas))?$`)
	bareNumRe  = regexp.MustCompile(`^#?\s*(\d{1,9})$`)
)

// Option configures a Controller.
type Option func(*Controller)

// WithRequiredFields sets the completeness policy. Date and time are always
// added because a reservation cannot happen without them.
func WithRequiredFields(fields []models.Field) Option {
	return func(c *Controller) {
		if len(fields) > 0 {
			c.required = fields
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithEventBus(bus *events.EventBus) Option {
	return func(c *Controller) { c.bus = bus }
}

// WithUserLocks shares the per-user lock table with other components.
func WithUserLocks(table *keylock.Table) Option {
	return func(c *Controller) {
		if table != nil {
			c.locks = table
		}
	}
}

// WithRandom replaces the source used to pick greetings and closings.
func WithRandom(pick func(n int) int) Option {
	return func(c *Controller) { c.pick = pick }
}

// Controller runs one dialogue turn per inbound message.
type Controller struct {
	sessions  session.Store
	repo      repository.Repository
	extractor nlu.Extractor
	guard     *slots.Guard
	gen       *slots.Generator
	locks     *keylock.Table
	bus       *events.EventBus
	fsm       *FSM
	required  []models.Field
	now       func() time.Time
	pick      func(n int) int
	tracer    trace.Tracer
}

func NewController(
	sessions session.Store,
	repo repository.Repository,
	extractor nlu.Extractor,
	guard *slots.Guard,
	gen *slots.Generator,
	opts ...Option,
) *Controller {
	c := &Controller{
		sessions:  sessions,
		repo:      repo,
		extractor: extractor,
		guard:     guard,
		gen:       gen,
		locks:     keylock.New(),
		fsm:       NewFSM(),
		required:  models.DefaultRequiredFields,
		now:       time.Now,
		pick:      rand.IntN,
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.extractor == nil {
		c.extractor = nlu.RulesExtractor{}
	}
	c.required = withSlotFields(c.required)
	return c
}

func withSlotFields(fields []models.Field) []models.Field {
	out := append([]models.Field(nil), fields...)
	for _, f := range []models.Field{models.FieldDate, models.FieldTime} {
		found := false
		for _, have := range out {
			found = found || have == f
		}
		if !found {
			out = append(out, f)
		}
	}
	return out
}

// turn is the working state of one message. The session is a clone; it is
// written back only when the turn succeeds.
type turn struct {
	in      messaging.Inbound
	text    string
	s       *models.Session
	local   entities.Local
	nlu     nlu.Result
	clear   bool
	outcome string
}

// Handle applies one message to the sender's session and returns the reply.
// Messages of the same user are applied one at a time in arrival order.
// Collaborator failures produce a generic retry reply and leave the stored
// session as it was before the message.
func (c *Controller) Handle(ctx context.Context, in messaging.Inbound) string {
	started := time.Now()
	ctx, span := c.tracer.Start(ctx, "booking.Handle", trace.WithAttributes(attribute.String("channel", in.Channel)))
	defer span.End()

	logger := zerolog.Ctx(ctx).With().Str("user_id", in.UserID).Str("channel", in.Channel).Logger()
	ctx = logger.WithContext(ctx)

	reply, outcome := c.handle(ctx, in)
	metrics.ObserveTurn(outcome, time.Since(started))
	span.SetAttributes(attribute.String("outcome", outcome))
	return reply
}

func (c *Controller) handle(ctx context.Context, in messaging.Inbound) (string, string) {
	logger := zerolog.Ctx(ctx)
	if strings.TrimSpace(in.UserID) == "" {
		logger.Warn().Msg("message without user id")
		return msgRetry, outcomeError
	}

	unlock, err := c.locks.Lock(ctx, in.UserID)
	if err != nil {
		logger.Warn().Err(err).Msg("wait for user lock")
		return msgRetry, outcomeError
	}
	defer unlock()

	stored, err := c.sessions.Get(ctx, in.UserID)
	if err != nil {
		logger.Error().Err(err).Msg("load session")
		return msgRetry, outcomeError
	}

	t := &turn{in: in, text: strings.TrimSpace(in.Text), s: stored.Clone(), outcome: outcomeOK}
	if in.DisplayName != "" {
		t.s.DisplayName = in.DisplayName
	}
	if t.s.DisplayName == "" {
		t.s.DisplayName = messaging.DefaultDisplayName
	}
	t.local = entities.Extract(t.text, c.now().In(c.location()))

	res, err := c.extractor.Extract(ctx, t.text)
	if err != nil {
		metrics.IncExtractorError(c.extractor.Name())
		logger.Error().Err(err).Str("extractor", c.extractor.Name()).Msg("extract entities")
		return msgRetry, outcomeError
	}
	t.nlu = res

	from := t.s.State
	reply, err := c.step(ctx, t)
	if err != nil {
		logger.Error().Err(err).Str("state", string(from)).Msg("dialogue turn failed")
		return msgRetry, outcomeError
	}

	if t.clear {
		// the appointment is already written; a stale session must not block the reply
		if err := c.sessions.Clear(ctx, in.UserID); err != nil {
			logger.Warn().Err(err).Msg("clear session")
		}
		return reply, t.outcome
	}
	if err := c.sessions.Save(ctx, t.s); err != nil {
		logger.Error().Err(err).Msg("save session")
		return msgRetry, outcomeError
	}
	logger.Debug().Str("from", string(from)).Str("to", string(t.s.State)).Msg("turn handled")
	return reply, t.outcome
}

func (c *Controller) location() *time.Location {
	if loc := c.gen.Schedule().Location; loc != nil {
		return loc
	}
	return time.Local
}

func (c *Controller) move(ctx context.Context, s *models.Session, to models.State) {
	if !c.fsm.Transition(s, to) {
		zerolog.Ctx(ctx).Warn().Str("from", string(s.State)).Str("to", string(to)).Msg("unexpected dialogue transition")
		s.State = to
	}
}

func (c *Controller) step(ctx context.Context, t *turn) (string, error) {
	s := t.s
	switch c.flowIntent(t) {
	case entities.IntentCancel:
		if s.Mode != models.ModeCancelling {
			return c.startCancel(ctx, t)
		}
	case entities.IntentReschedule:
		if s.Mode != models.ModeRescheduling {
			return c.startReschedule(ctx, t)
		}
	}

	switch s.State {
	case models.StateCollecting:
		return c.collect(ctx, t)
	case models.StateAwaitingSlot:
		return c.onSlotChoice(ctx, t)
	case models.StateAwaitingNotes:
		return c.onNotes(ctx, t)
	case models.StateAwaitingConfirmation:
		return c.onConfirmation(ctx, t)
	case models.StateAwaitingCorrection:
		return c.onCorrection(ctx, t)
	case models.StateCancelling:
		return c.onCancelIdentifier(ctx, t)
	case models.StateRescheduleLookup:
		return c.onRescheduleLookup(ctx, t)
	case models.StateRescheduleDate:
		return c.onRescheduleDate(ctx, t)
	case models.StateIdle:
	default:
		zerolog.Ctx(ctx).Warn().Str("state", string(s.State)).Msg("unknown state, starting over")
		s.Reset()
	}
	return c.onIdle(ctx, t)
}

// flowIntent is the cancel or reschedule request of the message, if any.
// Keyword matches win; the extractor's intent counts when no keyword matched.
func (c *Controller) flowIntent(t *turn) entities.Intent {
	for _, intent := range []entities.Intent{t.local.Intent, t.nlu.Intent} {
		if intent == entities.IntentCancel || intent == entities.IntentReschedule {
			return intent
		}
		if intent != entities.IntentNone {
			return entities.IntentNone
		}
	}
	return entities.IntentNone
}

func (c *Controller) onIdle(ctx context.Context, t *turn) (string, error) {
	intent := t.local.Intent
	if (intent == entities.IntentNone || intent == entities.IntentGreeting) && t.nlu.Intent != entities.IntentNone {
		intent = t.nlu.Intent
	}

	switch intent {
	case entities.IntentUpdateStatus:
		return c.updateStatus(ctx, t)
	case entities.IntentQuery:
		return c.query(ctx, t)
	case entities.IntentCancel:
		return c.startCancel(ctx, t)
	case entities.IntentReschedule:
		return c.startReschedule(ctx, t)
	case entities.IntentBook:
		return c.startCreating(ctx, t)
	}
	if hasAppointmentData(&t.local.Fields) || hasAppointmentData(&t.nlu.Fields) {
		return c.startCreating(ctx, t)
	}

	switch {
	case intent == entities.IntentHelp:
		return helpText, nil
	case intent == entities.IntentNone && t.nlu.Reply != "":
		return t.nlu.Reply, nil
	}
	greeting := fmt.Sprintf(greetings[c.pick(len(greetings))], t.s.DisplayName)
	return joinLines(greeting, helpText), nil
}

func hasAppointmentData(a *models.Appointment) bool {
	return a.PatientName != "" || a.NationalID != "" || a.Date != "" || a.Time != ""
}

func (c *Controller) startCreating(ctx context.Context, t *turn) (string, error) {
	t.s.Mode = models.ModeCreating
	return c.collect(ctx, t)
}

// collect merges the message into the draft and asks for what is missing.
func (c *Controller) collect(ctx context.Context, t *turn) (string, error) {
	s := t.s
	d, _ := entities.Merge(s.Draft, t.nlu.Fields, t.local.Fields, t.in.UserID, c.required)
	entities.FillExpected(&d, s.Expecting, t.text)
	s.Draft = d
	return c.advance(ctx, t, "")
}

// ask prompts for one field and parks the session in the matching state.
func (c *Controller) ask(ctx context.Context, s *models.Session, f models.Field) string {
	s.Expecting = string(f)
	if s.Mode == models.ModeRescheduling {
		c.move(ctx, s, models.StateRescheduleDate)
		return msgRescheduleDate
	}
	c.move(ctx, s, models.StateCollecting)
	return fieldPrompts[f]
}

// advance decides the next step from the draft: ask a field, offer slots,
// ask for notes, show the summary, or commit a reschedule.
func (c *Controller) advance(ctx context.Context, t *turn, prefix string) (string, error) {
	s := t.s
	d := &s.Draft

	if d.Has(models.FieldDate) && c.gen.IsPastDate(d.Date) {
		prefix = joinLines(prefix, msgPastDate)
		d.Date = ""
		d.Time = ""
	}

	for _, f := range d.Missing(c.required) {
		if f == models.FieldTime {
			continue
		}
		// a reschedule only collects a new date and time
		if s.Mode == models.ModeRescheduling && f != models.FieldDate {
			continue
		}
		return joinLines(prefix, c.ask(ctx, s, f)), nil
	}
	if !d.Has(models.FieldDate) {
		return joinLines(prefix, c.ask(ctx, s, models.FieldDate)), nil
	}

	free, err := c.gen.AvailableTimes(ctx, d.Date)
	if err != nil {
		return "", fmt.Errorf("available times for %s: %w", d.Date, err)
	}
	if d.Has(models.FieldTime) && !contains(free, d.Time) {
		prefix = joinLines(prefix, formatTimeUnavailable(d.Time, d.Date))
		d.Time = ""
	}
	if !d.Has(models.FieldTime) {
		if len(free) == 0 {
			date := d.Date
			d.Date = ""
			d.Time = ""
			s.OfferedTimes = nil
			c.ask(ctx, s, models.FieldDate)
			return joinLines(prefix, formatNoSlots(date)), nil
		}
		s.OfferedTimes = free
		s.Expecting = string(models.FieldTime)
		c.move(ctx, s, models.StateAwaitingSlot)
		return joinLines(prefix, formatSlotOffer(d.Date, free)), nil
	}
	s.OfferedTimes = nil

	if s.Mode == models.ModeRescheduling {
		return c.commit(ctx, t, prefix)
	}
	if !s.NotesAsked && !d.Has(models.FieldNotes) {
		s.NotesAsked = true
		s.Expecting = models.ExpectNotes
		c.move(ctx, s, models.StateAwaitingNotes)
		return joinLines(prefix, fieldPrompts[models.FieldNotes]), nil
	}
	s.Expecting = models.ExpectConfirmation
	c.move(ctx, s, models.StateAwaitingConfirmation)
	return joinLines(prefix, FormatSummary(d)), nil
}

func (c *Controller) onSlotChoice(ctx context.Context, t *turn) (string, error) {
	s := t.s
	if len(s.OfferedTimes) == 0 {
		return c.advance(ctx, t, "")
	}
	choice, ok := matchOffered(t.text, t.local.Fields.Time, s.OfferedTimes)
	if !ok {
		return formatNotOffered(s.OfferedTimes), nil
	}
	s.Draft.Time = choice
	return c.advance(ctx, t, "")
}

// matchOffered finds the offered time the reply names: an HH:MM substring,
// a parsed time, or a bare hour such as "10" or "a las 3".
func matchOffered(text, parsed string, offered []string) (string, bool) {
	for _, o := range offered {
		if strings.Contains(text, o) {
			return o, true
		}
	}
	if parsed != "" {
		if contains(offered, parsed) {
			return parsed, true
		}
		return "", false
	}
	m := bareHourRe.FindStringSubmatch(entities.Fold(text))
	if m == nil {
		return "", false
	}
	h, err := strconv.Atoi(m[1])
	if err != nil {
		return "", false
	}
	candidates := []int{h}
	if h < 12 {
		candidates = append(candidates, h+12)
	}
	for _, hour := range candidates {
		if hhmm := fmt.Sprintf("%02d:00", hour); contains(offered, hhmm) {
			return hhmm, true
		}
	}
	return "", false
}

func (c *Controller) onNotes(ctx context.Context, t *turn) (string, error) {
	d := &t.s.Draft
	switch {
	case entities.IsSkip(t.text):
		d.Notes = ""
	case t.local.Fields.Notes != "":
		d.Notes = t.local.Fields.Notes
	default:
		d.Notes = t.text
	}
	t.s.NotesAsked = true
	return c.advance(ctx, t, "")
}

func (c *Controller) onConfirmation(ctx context.Context, t *turn) (string, error) {
	fields := entities.CorrectionFields(t.text)
	switch {
	case len(fields) > 0:
		return c.correct(ctx, t, fields)
	case entities.IsAffirmative(t.text):
		return c.commit(ctx, t, "")
	case entities.IsNegative(t.text):
		t.s.Expecting = models.ExpectCorrection
		c.move(ctx, t.s, models.StateAwaitingCorrection)
		return msgAskCorrection, nil
	}
	return FormatSummary(&t.s.Draft), nil
}

func (c *Controller) onCorrection(ctx context.Context, t *turn) (string, error) {
	if fields := entities.CorrectionFields(t.text); len(fields) > 0 {
		return c.correct(ctx, t, fields)
	}
	if entities.IsAffirmative(t.text) {
		t.s.Expecting = models.ExpectConfirmation
		c.move(ctx, t.s, models.StateAwaitingConfirmation)
		return FormatSummary(&t.s.Draft), nil
	}
	return msgAskCorrection, nil
}

// correct clears the named fields and re-enters collection, so values in
// the same message ("la hora a las 11:00") are picked up right away.
func (c *Controller) correct(ctx context.Context, t *turn, fields []models.Field) (string, error) {
	s := t.s
	entities.ClearFields(&s.Draft, fields)
	for _, f := range fields {
		switch f {
		case models.FieldNotes:
			s.NotesAsked = false
		case models.FieldDate:
			s.Draft.Time = ""
		}
	}
	s.OfferedTimes = nil
	s.Expecting = ""
	return c.collect(ctx, t)
}

func (c *Controller) commit(ctx context.Context, t *turn, prefix string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "booking.commit")
	defer span.End()

	s := t.s
	rec := s.Draft
	rec.Number = 0
	rec.Status = models.StatusPending
	rec.CreatedAt = time.Time{}

	rescheduling := s.Mode == models.ModeRescheduling
	previous := s.RescheduleOf
	err := c.guard.Reserve(ctx, rec.Date, rec.Time, func(ctx context.Context) error {
		n, err := c.repo.AppendRecord(ctx, &rec)
		if err != nil {
			return err
		}
		rec.Number = n
		if !rescheduling {
			return nil
		}
		if _, err := c.repo.UpdateStatusByNumber(ctx, previous, models.StatusRescheduled); err != nil {
			// the old appointment still holds its slot; withdraw the new one
			if _, cerr := c.repo.UpdateStatusByNumber(ctx, n, models.StatusCancelled); cerr != nil {
				zerolog.Ctx(ctx).Error().Err(cerr).Int64("appointment", n).Msg("withdraw appointment after failed reschedule")
			}
			return fmt.Errorf("mark appointment %d rescheduled: %w", previous, err)
		}
		return nil
	})
	var ce *slots.ConflictError
	switch {
	case errors.As(err, &ce):
		t.outcome = outcomeConflict
		return c.onConflict(ctx, t, ce, prefix), nil
	case err != nil:
		span.RecordError(err)
		return "", fmt.Errorf("commit appointment: %w", err)
	}

	t.clear = true
	closing := closings[c.pick(len(closings))]
	logger := zerolog.Ctx(ctx)

	if rescheduling {
		logger.Info().Int64("previous", previous).Int64("appointment", rec.Number).Str("slot", rec.SlotKey()).Msg("appointment rescheduled")
		t.outcome = outcomeRescheduled
		c.bus.Publish(events.Event{Type: events.AppointmentRescheduled, UserID: s.UserID, Appointment: rec, PreviousNumber: previous})
		return joinLines(prefix, formatRescheduled(&rec, previous, closing)), nil
	}

	t.outcome = outcomeBooked
	logger.Info().Int64("appointment", rec.Number).Str("slot", rec.SlotKey()).Msg("appointment booked")
	c.bus.Publish(events.Event{Type: events.AppointmentCreated, UserID: s.UserID, Appointment: rec})
	return joinLines(prefix, formatBooked(&rec, closing)), nil
}

// onConflict keeps the draft and sends the user back to slot choice, or to
// date collection when the day has nothing left.
func (c *Controller) onConflict(ctx context.Context, t *turn, ce *slots.ConflictError, prefix string) string {
	s := t.s
	lead := msgSlotBusy
	if errors.Is(ce, slots.ErrSlotTaken) {
		lead = formatTimeUnavailable(ce.Time, ce.Date)
	}
	s.Draft.Time = ""
	if len(ce.Free) == 0 {
		s.Draft.Date = ""
		s.OfferedTimes = nil
		c.ask(ctx, s, models.FieldDate)
		return joinLines(prefix, lead, formatNoSlots(ce.Date))
	}
	s.OfferedTimes = ce.Free
	s.Expecting = string(models.FieldTime)
	c.move(ctx, s, models.StateAwaitingSlot)
	return joinLines(prefix, lead, formatSlotOffer(ce.Date, ce.Free))
}

// identifiers returns the appointment number and national id named in the
// message. A bare number counts when an identifier was asked for.
func (c *Controller) identifiers(t *turn) (int64, string) {
	number := t.local.Number
	id := t.local.Fields.NationalID
	if id == "" {
		id, _ = entities.NormalizeNationalID(t.nlu.Fields.NationalID)
	}
	if number == 0 && id == "" && t.s.Expecting == models.ExpectIdentifier {
		if m := bareNumRe.FindStringSubmatch(t.text); m != nil {
			number, _ = strconv.ParseInt(m[1], 10, 64)
		}
	}
	return number, id
}

// lookupActive finds an active appointment by number first, then by id.
func (c *Controller) lookupActive(ctx context.Context, number int64, id string) (*models.Appointment, bool, error) {
	if number > 0 {
		a, err := c.repo.FindByNumber(ctx, number)
		switch {
		case err == nil && a.IsActive():
			return a, true, nil
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return nil, false, fmt.Errorf("find appointment %d: %w", number, err)
		}
	}
	if id != "" {
		a, err := c.repo.FindByNationalID(ctx, id)
		switch {
		case err == nil && a.IsActive():
			return a, true, nil
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return nil, false, fmt.Errorf("find appointment by national id: %w", err)
		}
	}
	return nil, false, nil
}

func (c *Controller) startCancel(ctx context.Context, t *turn) (string, error) {
	number, id := c.identifiers(t)
	fromDraft := false
	if number == 0 && id == "" && t.s.Draft.NationalID != "" {
		id, fromDraft = t.s.Draft.NationalID, true
	}
	t.s.Reset()
	t.s.Mode = models.ModeCancelling
	t.s.Expecting = models.ExpectIdentifier
	c.move(ctx, t.s, models.StateCancelling)
	if number == 0 && id == "" {
		return msgAskIdentifier, nil
	}

	reply, found, err := c.cancel(ctx, t, number, id)
	if err == nil && !found && fromDraft {
		t.clear = true
		return msgDraftDiscarded, nil
	}
	return reply, err
}

func (c *Controller) onCancelIdentifier(ctx context.Context, t *turn) (string, error) {
	if entities.IsNegative(t.text) {
		t.s.Reset()
		return msgCancelAborted, nil
	}
	number, id := c.identifiers(t)
	if number == 0 && id == "" {
		return msgAskIdentifier, nil
	}
	reply, _, err := c.cancel(ctx, t, number, id)
	return reply, err
}

func (c *Controller) cancel(ctx context.Context, t *turn, number int64, id string) (string, bool, error) {
	appt, found, err := c.lookupActive(ctx, number, id)
	if err != nil {
		return "", false, err
	}
	if !found {
		t.clear = true
		return msgNoActive, false, nil
	}
	updated, err := c.repo.UpdateStatusByNumber(ctx, appt.Number, models.StatusCancelled)
	if err != nil {
		return "", true, fmt.Errorf("cancel appointment %d: %w", appt.Number, err)
	}
	t.clear = true
	t.outcome = outcomeCancelled
	c.bus.Publish(events.Event{Type: events.AppointmentCancelled, UserID: t.s.UserID, Appointment: *updated})
	return formatCancelled(updated), true, nil
}

func (c *Controller) startReschedule(ctx context.Context, t *turn) (string, error) {
	number, id := c.identifiers(t)
	if number == 0 && id == "" {
		id = t.s.Draft.NationalID
	}
	t.s.Reset()
	t.s.Mode = models.ModeRescheduling
	t.s.Expecting = models.ExpectIdentifier
	c.move(ctx, t.s, models.StateRescheduleLookup)
	if number == 0 && id == "" {
		return msgAskIdentifier, nil
	}
	return c.beginReschedule(ctx, t, number, id)
}

func (c *Controller) onRescheduleLookup(ctx context.Context, t *turn) (string, error) {
	if entities.IsNegative(t.text) {
		t.s.Reset()
		return msgRescheduleAborted, nil
	}
	number, id := c.identifiers(t)
	if number == 0 && id == "" {
		return msgAskIdentifier, nil
	}
	return c.beginReschedule(ctx, t, number, id)
}

// beginReschedule seeds the draft from the existing appointment with date
// and time cleared, then continues with whatever slot the message names.
func (c *Controller) beginReschedule(ctx context.Context, t *turn, number int64, id string) (string, error) {
	appt, found, err := c.lookupActive(ctx, number, id)
	if err != nil {
		return "", err
	}
	if !found {
		t.clear = true
		return msgNoActive, nil
	}
	s := t.s
	s.RescheduleOf = appt.Number
	s.NotesAsked = true
	s.Draft = models.Appointment{
		PatientName:  appt.PatientName,
		NationalID:   appt.NationalID,
		ContactName:  appt.ContactName,
		ContactPhone: appt.ContactPhone,
		Notes:        appt.Notes,
	}
	c.mergeSlot(t)
	reply, err := c.advance(ctx, t, "")
	return joinLines(formatRescheduleFound(appt), reply), err
}

func (c *Controller) onRescheduleDate(ctx context.Context, t *turn) (string, error) {
	c.mergeSlot(t)
	if !t.s.Draft.Has(models.FieldDate) {
		return joinLines(msgDateNotUnderstood, msgRescheduleDate), nil
	}
	return c.advance(ctx, t, "")
}

// mergeSlot takes only date and time from the message.
func (c *Controller) mergeSlot(t *turn) {
	local := models.Appointment{Date: t.local.Fields.Date, Time: t.local.Fields.Time}
	ext := models.Appointment{Date: t.nlu.Fields.Date, Time: t.nlu.Fields.Time}
	t.s.Draft, _ = entities.Merge(t.s.Draft, ext, local, t.in.UserID, c.required)
	entities.FillExpected(&t.s.Draft, t.s.Expecting, t.text)
}

func (c *Controller) updateStatus(ctx context.Context, t *turn) (string, error) {
	number, id := c.identifiers(t)
	status := t.local.Status
	if status == "" {
		status, _ = models.ParseStatus(entities.Fold(t.nlu.Status))
	}
	if status == "" || (number == 0 && id == "") {
		return msgUpdateUsage, nil
	}

	var (
		appt *models.Appointment
		err  error
	)
	if number > 0 {
		appt, err = c.setStatusByNumber(ctx, number, status)
	} else {
		appt, err = c.repo.UpdateStatusByNationalID(ctx, id, status)
	}
	var ce *slots.ConflictError
	switch {
	case errors.As(err, &ce):
		t.outcome = outcomeConflict
		return formatReactivateConflict(ce), nil
	case errors.Is(err, repository.ErrNotFound):
		return msgNoActive, nil
	case err != nil:
		return "", fmt.Errorf("update status: %w", err)
	}

	t.outcome = outcomeStatusUpdated
	eventType := events.AppointmentUpdated
	if status == models.StatusCancelled {
		eventType = events.AppointmentCancelled
	}
	c.bus.Publish(events.Event{Type: eventType, UserID: t.s.UserID, Appointment: *appt})
	return formatStatusUpdated(appt), nil
}

// setStatusByNumber changes the status of one appointment. Bringing a
// cancelled or rescheduled appointment back takes its slot again, so that
// change goes through the slot guard like a new booking.
func (c *Controller) setStatusByNumber(ctx context.Context, number int64, status string) (*models.Appointment, error) {
	current, err := c.repo.FindByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if !models.Reactivates(current.Status, status) {
		return c.repo.UpdateStatusByNumber(ctx, number, status)
	}

	var updated *models.Appointment
	err = c.guard.Reserve(ctx, current.Date, current.Time, func(ctx context.Context) error {
		a, err := c.repo.UpdateStatusByNumber(ctx, number, status)
		if err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (c *Controller) query(ctx context.Context, t *turn) (string, error) {
	number, id := c.identifiers(t)
	if number == 0 && id == "" {
		return msgQueryUsage, nil
	}
	var (
		appt *models.Appointment
		err  error
	)
	if number > 0 {
		appt, err = c.repo.FindByNumber(ctx, number)
	} else {
		appt, err = c.repo.FindByNationalID(ctx, id)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return msgNotFound, nil
	}
	if err != nil {
		return "", fmt.Errorf("query appointment: %w", err)
	}
	return formatQuery(appt), nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
