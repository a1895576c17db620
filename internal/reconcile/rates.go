package reconcile

import (
	"sync"
	"time"
)

type rateSample struct {
	value uint64
	at    time.Time
}

// rateTracker converts cumulative byte counters into bytes/sec by dividing the
// delta between consecutive samples by their elapsed time. Counter resets
// clamp to zero instead of producing negative rates.
type rateTracker struct {
	mu      sync.Mutex
	samples map[int64]map[string]rateSample
}

func newRateTracker() *rateTracker {
	return &rateTracker{samples: make(map[int64]map[string]rateSample)}
}

// Observe stores the current counter for (entity, key) and returns the rate
// since the previous sample. ok is false for the first sample of a key and for
// non-advancing clocks.
func (t *rateTracker) Observe(entityID int64, key string, now time.Time, cur uint64) (bps float64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	byKey, exists := t.samples[entityID]
	if !exists {
		byKey = make(map[string]rateSample)
		t.samples[entityID] = byKey
	}
	prev, hadPrev := byKey[key]
	byKey[key] = rateSample{value: cur, at: now}
	if !hadPrev {
		return 0, false
	}

	seconds := now.Sub(prev.at).Seconds()
	if seconds <= 0 {
		return 0, false
	}
	if cur < prev.value {
		// counter reset/overflow/restart
		return 0, true
	}
	return float64(cur-prev.value) / seconds, true
}

// Forget drops all samples for one entity, called when it leaves the desired
// set so a later reselect starts from a clean baseline.
func (t *rateTracker) Forget(entityID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.samples, entityID)
}
