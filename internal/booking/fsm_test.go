package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/superst1/chatbot-whatsapp-citas/internal/models"
)

func TestFSMTransitions(t *testing.T) {
	fsm := NewFSM()

	tests := []struct {
		name        string
		from        models.State
		to          models.State
		shouldAllow bool
	}{
		{"idle to collecting", models.StateIdle, models.StateCollecting, true},
		{"collecting to slot choice", models.StateCollecting, models.StateAwaitingSlot, true},
		{"slot choice to notes", models.StateAwaitingSlot, models.StateAwaitingNotes, true},
		{"notes to confirmation", models.StateAwaitingNotes, models.StateAwaitingConfirmation, true},
		{"confirmation to correction", models.StateAwaitingConfirmation, models.StateAwaitingCorrection, true},
		{"correction back to collecting", models.StateAwaitingCorrection, models.StateCollecting, true},
		{"reschedule date to slot choice", models.StateRescheduleDate, models.StateAwaitingSlot, true},
		{"any state to cancelling", models.StateAwaitingNotes, models.StateCancelling, true},
		{"any state to idle", models.StateAwaitingSlot, models.StateIdle, true},
		{"self loop", models.StateCollecting, models.StateCollecting, true},
		// Invalid transitions
		{"idle to correction", models.StateIdle, models.StateAwaitingCorrection, false},
		{"cancelling to confirmation", models.StateCancelling, models.StateAwaitingConfirmation, false},
		{"reschedule lookup to notes", models.StateRescheduleLookup, models.StateAwaitingNotes, false},
		{"notes to correction", models.StateAwaitingNotes, models.StateAwaitingCorrection, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.shouldAllow, fsm.CanTransition(tt.from, tt.to))
		})
	}
}

func TestFSM_Transition(t *testing.T) {
	fsm := NewFSM()
	s := models.NewSession("u1")

	assert.False(t, fsm.Transition(s, models.StateAwaitingCorrection))
	assert.Equal(t, models.StateIdle, s.State)

	assert.True(t, fsm.Transition(s, models.StateCollecting))
	assert.Equal(t, models.StateCollecting, s.State)
}
