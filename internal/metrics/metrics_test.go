package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	Register()
	Register()

	before := testutil.ToFloat64(slotConflicts.WithLabelValues("busy"))
	IncSlotConflict("busy")
	assert.Equal(t, before+1, testutil.ToFloat64(slotConflicts.WithLabelValues("busy")))

	before = testutil.ToFloat64(appointments.WithLabelValues("created"))
	IncAppointment("created")
	assert.Equal(t, before+1, testutil.ToFloat64(appointments.WithLabelValues("created")))

	IncMessageReceived("whatsapp")
	IncDuplicate()
	IncSendFailure("whatsapp")
	IncExtractorError("gemini")
	ObserveTurn("ok", 20*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(turnDuration))
}
