package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func TestNewTracker_Registers(t *testing.T) {
	reg := NewRegistry()
	m := NewTracker(reg)

	m.StatusProcessed.Inc()
	m.InvariantViolations.Add(2)
	m.StreamParts.Set(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StatusProcessed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.InvariantViolations))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["overlay_tracker_status_processed_total"])
	assert.True(t, names["overlay_invariant_violations_total"])
	assert.True(t, names["overlay_tracker_stream_parts"])
}

func TestNewNode_Unregistered(t *testing.T) {
	m := NewNode(nil)
	m.Duplicates.Inc()
	m.Latency.Set(12.5)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Duplicates))
	assert.Equal(t, 12.5, testutil.ToFloat64(m.Latency))
}

func TestTrackerAndNode_SameRegistry(t *testing.T) {
	reg := NewRegistry()
	assert.NotPanics(t, func() {
		NewTracker(reg)
		NewNode(reg)
	})
}

func TestModule(t *testing.T) {
	var tracker *Tracker
	app := fxtest.New(t,
		Module(),
		fx.Provide(NewTracker),
		fx.Populate(&tracker),
	)
	app.RequireStart()
	defer app.RequireStop()

	require.NotNil(t, tracker)
	tracker.Flushes.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(tracker.Flushes))
}
