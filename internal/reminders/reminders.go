// Package reminders messages patients the day before their appointment.
package reminders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/superst1/chatbot-whatsapp-citas/internal/messaging"
	"github.com/superst1/chatbot-whatsapp-citas/internal/metrics"
	"github.com/superst1/chatbot-whatsapp-citas/internal/models"
)

const dateLayout = "02/01/2006"

// Lister is the read side of the appointment repository.
type Lister interface {
	ListAppointments(ctx context.Context) ([]models.Appointment, error)
}

type Config struct {
	// Hour of day, in the schedule location, when reminders go out.
	Hour int
	// CountryCode is prefixed to national 09######## numbers.
	CountryCode string
	Location    *time.Location
}

type Service struct {
	repo   Lister
	sender messaging.Sender
	cfg    Config
	logger *zerolog.Logger
	now    func() time.Time
}

func NewService(repo Lister, sender messaging.Sender, cfg Config, logger *zerolog.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Hour < 0 || cfg.Hour > 23 {
		cfg.Hour = 9
	}
	return &Service{repo: repo, sender: sender, cfg: cfg, logger: logger, now: time.Now}
}

// Start waits until the next reminder hour and then runs once a day.
func (s *Service) Start(ctx context.Context) {
	timer := time.NewTimer(timeUntilNextHour(s.now().In(s.cfg.Location), s.cfg.Hour))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			sent, err := s.SendTomorrow(ctx)
			if err != nil {
				s.logger.Error().Err(err).Msg("send reminders")
			} else {
				s.logger.Info().Int("sent", sent).Msg("reminders sent")
			}
			timer.Reset(timeUntilNextHour(s.now().In(s.cfg.Location), s.cfg.Hour))
		}
	}
}

// SendTomorrow reminds every pending or confirmed appointment dated tomorrow.
// Failed sends are logged and skipped.
func (s *Service) SendTomorrow(ctx context.Context) (int, error) {
	tomorrow := s.now().In(s.cfg.Location).AddDate(0, 0, 1).Format(dateLayout)

	list, err := s.repo.ListAppointments(ctx)
	if err != nil {
		return 0, fmt.Errorf("list appointments: %w", err)
	}

	sent := 0
	for i := range list {
		a := &list[i]
		if a.Date != tomorrow || !shouldRemind(a.Status) {
			continue
		}
		to := s.recipient(a.ContactPhone)
		if to == "" {
			continue
		}
		if err := s.sender.Send(ctx, to, formatReminder(a)); err != nil {
			metrics.IncSendFailure(s.sender.Name())
			s.logger.Warn().Err(err).Int64("number", a.Number).Msg("reminder not delivered")
			continue
		}
		sent++
	}
	return sent, nil
}

func shouldRemind(status string) bool {
	switch status {
	case models.StatusPending, models.StatusConfirmed:
		return true
	default:
		return false
	}
}

// recipient turns a stored contact phone into a WhatsApp address.
func (s *Service) recipient(phone string) string {
	p := strings.TrimPrefix(strings.TrimSpace(phone), "+")
	if s.cfg.CountryCode != "" && len(p) == 10 && strings.HasPrefix(p, "09") {
		return s.cfg.CountryCode + p[1:]
	}
	return p
}

func formatReminder(a *models.Appointment) string {
	return fmt.Sprintf("⏰ Recordatorio: mañana %s a las %s tienes tu cita #%d a nombre de %s.\nSi no puedes asistir, responde \"cancelar\".",
		a.Date, a.Time, a.Number, a.PatientName)
}

func timeUntilNextHour(now time.Time, hour int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
