package monitor

import (
	"sync/atomic"
	"time"
)

// HealthStatus is the lock-free view of the monitor's wellbeing served on the
// probe endpoint.
type HealthStatus struct {
	streamConnected atomic.Bool
	streamTerminal  atomic.Bool
	lastPushAt      atomic.Int64
	lastSnapshotAt  atomic.Int64
}

func NewHealthStatus() *HealthStatus {
	h := &HealthStatus{}
	h.streamConnected.Store(false)
	return h
}

func (h *HealthStatus) SetStreamConnected(ok bool) {
	h.streamConnected.Store(ok)
	if ok {
		h.streamTerminal.Store(false)
	}
}

// SetStreamTerminal latches the gave-up-reconnecting condition so the UI can
// show a persistent disconnected indicator rather than a one-time notice.
func (h *HealthStatus) SetStreamTerminal() {
	h.streamTerminal.Store(true)
	h.streamConnected.Store(false)
}

func (h *HealthStatus) MarkPushSample(ts time.Time) {
	h.lastPushAt.Store(ts.UnixNano())
}

func (h *HealthStatus) MarkSnapshotBatch(ts time.Time) {
	h.lastSnapshotAt.Store(ts.UnixNano())
}

func (h *HealthStatus) Snapshot() map[string]any {
	out := map[string]any{
		"stream_connected": h.streamConnected.Load(),
		"stream_terminal":  h.streamTerminal.Load(),
	}
	if v := h.lastPushAt.Load(); v > 0 {
		out["last_push_at"] = time.Unix(0, v).UTC()
	}
	if v := h.lastSnapshotAt.Load(); v > 0 {
		out["last_snapshot_batch_at"] = time.Unix(0, v).UTC()
	}
	return out
}
