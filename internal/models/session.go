package models

import "time"

// State is a dialogue state. Transitions between states live in the booking package.
type State string

const (
	StateIdle                 State = "idle"
	StateCollecting           State = "collecting"
	StateAwaitingSlot         State = "awaiting_slot"
	StateAwaitingNotes        State = "awaiting_notes"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateAwaitingCorrection   State = "awaiting_correction"
	StateCancelling           State = "cancelling"
	StateRescheduleLookup     State = "reschedule_lookup"
	StateRescheduleDate       State = "reschedule_date"
)

// Mode is the high level goal of the conversation.
type Mode string

const (
	ModeIdle         Mode = "idle"
	ModeCreating     Mode = "creating"
	ModeRescheduling Mode = "rescheduling"
	ModeCancelling   Mode = "cancelling"
)

// Non-field expectations.
const (
	ExpectNotes        = "notes"
	ExpectConfirmation = "confirmation"
	ExpectCorrection   = "correction"
	ExpectIdentifier   = "identifier"
)

// Session is the per-user conversational state.
type Session struct {
	UserID       string      `json:"user_id"`
	DisplayName  string      `json:"display_name,omitempty"`
	Draft        Appointment `json:"draft"`
	State        State       `json:"state"`
	Mode         Mode        `json:"mode"`
	Expecting    string      `json:"expecting,omitempty"`
	OfferedTimes []string    `json:"offered_times,omitempty"`
	NotesAsked   bool        `json:"notes_asked,omitempty"`
	RescheduleOf int64       `json:"reschedule_of,omitempty"`
	ExpiresAt    time.Time   `json:"expires_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

func NewSession(userID string) *Session {
	return &Session{UserID: userID, State: StateIdle, Mode: ModeIdle}
}

// Clone returns a deep copy so a turn can mutate state without touching the stored value.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.OfferedTimes != nil {
		c.OfferedTimes = append([]string(nil), s.OfferedTimes...)
	}
	return &c
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Reset drops all collected data but keeps the owner.
func (s *Session) Reset() {
	*s = Session{UserID: s.UserID, DisplayName: s.DisplayName, State: StateIdle, Mode: ModeIdle, ExpiresAt: s.ExpiresAt, UpdatedAt: s.UpdatedAt}
}
