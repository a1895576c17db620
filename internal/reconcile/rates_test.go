package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateTrackerFirstSampleHasNoRate(t *testing.T) {
	rt := newRateTracker()
	now := time.Now()

	_, ok := rt.Observe(1, "net_rx", now, 1000)
	assert.False(t, ok)
}

func TestRateTrackerComputesDeltaOverElapsed(t *testing.T) {
	rt := newRateTracker()
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	rt.Observe(1, "net_rx", t0, 1000)
	bps, ok := rt.Observe(1, "net_rx", t0.Add(2*time.Second), 3000)
	assert.True(t, ok)
	assert.InDelta(t, 1000.0, bps, 0.001)
}

func TestRateTrackerClampsCounterResetToZero(t *testing.T) {
	rt := newRateTracker()
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	rt.Observe(1, "net_rx", t0, 5000)
	bps, ok := rt.Observe(1, "net_rx", t0.Add(time.Second), 100)
	assert.True(t, ok)
	assert.Zero(t, bps)

	// The reset value becomes the new baseline.
	bps, ok = rt.Observe(1, "net_rx", t0.Add(2*time.Second), 600)
	assert.True(t, ok)
	assert.InDelta(t, 500.0, bps, 0.001)
}

func TestRateTrackerRejectsNonAdvancingClock(t *testing.T) {
	rt := newRateTracker()
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	rt.Observe(1, "net_rx", t0, 1000)
	_, ok := rt.Observe(1, "net_rx", t0, 2000)
	assert.False(t, ok)
}

func TestRateTrackerKeysAreIndependentPerEntity(t *testing.T) {
	rt := newRateTracker()
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	rt.Observe(1, "net_rx", t0, 1000)
	rt.Observe(2, "net_rx", t0, 9000)

	bps, ok := rt.Observe(1, "net_rx", t0.Add(time.Second), 1500)
	assert.True(t, ok)
	assert.InDelta(t, 500.0, bps, 0.001)
}

func TestRateTrackerForgetClearsBaseline(t *testing.T) {
	rt := newRateTracker()
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	rt.Observe(1, "net_rx", t0, 1000)
	rt.Forget(1)

	_, ok := rt.Observe(1, "net_rx", t0.Add(time.Second), 2000)
	assert.False(t, ok)
}
