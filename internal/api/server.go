// Package api exposes the WhatsApp webhook and the admin endpoints.
package api

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/superst1/chatbot-whatsapp-citas/internal/audit"
	"github.com/superst1/chatbot-whatsapp-citas/internal/entities"
	"github.com/superst1/chatbot-whatsapp-citas/internal/messaging"
	"github.com/superst1/chatbot-whatsapp-citas/internal/models"
	"github.com/superst1/chatbot-whatsapp-citas/internal/worker"
)

const (
	maxBodyBytes = 1 << 20
	apiKeyHeader = "x-api-key"
	xlsxMIME     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Submitter accepts inbound messages for asynchronous handling.
type Submitter interface {
	Submit(ctx context.Context, in messaging.Inbound) (bool, error)
}

type Config struct {
	VerifyToken string
	AdminAPIKey string
}

type Server struct {
	cfg          Config
	submitter    Submitter
	appointments audit.AppointmentLister
	logger       *zerolog.Logger
}

func NewServer(cfg Config, submitter Submitter, appointments audit.AppointmentLister, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Server{cfg: cfg, submitter: submitter, appointments: appointments, logger: logger}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "Method not allowed"})
	})

	r.Get("/webhook", s.verify)
	r.Post("/webhook", s.inbound)

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(s.requireAPIKey)
		admin.Get("/appointments", s.listAppointments)
		admin.Get("/appointments.xlsx", s.exportAppointments)
	})
	return r
}

// requestLogger attaches a request-scoped logger to the context and logs
// completion.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		logger := s.logger.With().Str("request_id", id).Logger()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context())))

		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminAPIKey == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "admin api disabled"})
			return
		}
		key := r.Header.Get(apiKeyHeader)
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.AdminAPIKey)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid api key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// verify answers the Meta subscription handshake.
func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("hub.verify_token")
	if q.Get("hub.mode") != "subscribe" || s.cfg.VerifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.VerifyToken)) != 1 {
		http.Error(w, "Verification failed", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, q.Get("hub.challenge"))
}

// inbound acknowledges immediately; replies are sent by the dispatcher.
func (s *Server) inbound(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unreadable body"})
		return
	}
	in, kind, err := ParseWebhook(body)
	if err != nil {
		logger.Warn().Err(err).Msg("invalid webhook payload")
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON"})
		return
	}

	switch kind {
	case KindStatus:
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "statusUpdate": true})
		return
	case KindNoMessage:
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "noMessage": true})
		return
	case KindNoText:
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "ignored": "no_text"})
		return
	}

	accepted, err := s.submitter.Submit(r.Context(), in)
	if errors.Is(err, worker.ErrClosed) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "shutting down"})
		return
	}
	if err != nil {
		logger.Error().Err(err).Msg("submit inbound message")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Internal error"})
		return
	}
	if !accepted {
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "duplicate": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}

func (s *Server) filter(r *http.Request) (audit.Filter, bool) {
	var f audit.Filter
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, ok := entities.NormalizeDate(raw)
		if !ok {
			return f, false
		}
		f.Date = d
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, ok := models.ParseStatus(raw)
		if !ok {
			return f, false
		}
		f.Status = st
	}
	return f, true
}

func (s *Server) listAppointments(w http.ResponseWriter, r *http.Request) {
	f, ok := s.filter(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid filter"})
		return
	}
	all, err := s.appointments.ListAppointments(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("list appointments")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Internal error"})
		return
	}
	out := make([]models.Appointment, 0, len(all))
	for i := range all {
		if f.Match(&all[i]) {
			out = append(out, all[i])
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": out, "total": len(out)})
}

func (s *Server) exportAppointments(w http.ResponseWriter, r *http.Request) {
	f, ok := s.filter(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid filter"})
		return
	}
	var buf bytes.Buffer
	n, err := audit.WriteAppointments(r.Context(), s.appointments, f, &buf)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("export appointments")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Internal error"})
		return
	}
	zerolog.Ctx(r.Context()).Info().Int("rows", n).Msg("appointments exported")

	w.Header().Set("Content-Type", xlsxMIME)
	w.Header().Set("Content-Disposition", `attachment; filename="citas.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
