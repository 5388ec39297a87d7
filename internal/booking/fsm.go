// Package booking drives the appointment dialogue: it merges what the user
// says into the session draft, walks the state machine and commits through
// the slot guard.
package booking

import "github.com/superst1/chatbot-whatsapp-citas/internal/models"

// shortcuts are reachable from every state: cancel and reschedule triggers
// interrupt any flow, and every flow may end back in idle.
var shortcuts = []models.State{
	models.StateIdle,
	models.StateCancelling,
	models.StateRescheduleLookup,
	models.StateRescheduleDate,
}

// FSM holds the allowed dialogue transitions.
type FSM struct {
	transitions map[models.State][]models.State
}

func NewFSM() *FSM {
	collect := []models.State{
		models.StateCollecting,
		models.StateAwaitingSlot,
		models.StateAwaitingNotes,
		models.StateAwaitingConfirmation,
	}
	return &FSM{
		transitions: map[models.State][]models.State{
			models.StateIdle:                 collect,
			models.StateCollecting:           collect,
			models.StateAwaitingSlot:         collect,
			models.StateAwaitingNotes:        {models.StateAwaitingNotes, models.StateAwaitingConfirmation, models.StateAwaitingSlot, models.StateCollecting},
			models.StateAwaitingConfirmation: append([]models.State{models.StateAwaitingCorrection}, collect...),
			models.StateAwaitingCorrection:   append([]models.State{models.StateAwaitingCorrection}, collect...),
			models.StateCancelling:           nil,
			models.StateRescheduleLookup:     {models.StateAwaitingSlot},
			models.StateRescheduleDate:       {models.StateAwaitingSlot},
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to models.State) bool {
	if from == to {
		return true
	}
	for _, s := range shortcuts {
		if s == to {
			return true
		}
	}
	for _, s := range f.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves the session when the transition is allowed.
func (f *FSM) Transition(s *models.Session, to models.State) bool {
	if !f.CanTransition(s.State, to) {
		return false
	}
	s.State = to
	return true
}
