package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StreamConnected is 1 while the shared push connection is established.
	StreamConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetmon_stream_connected",
			Help: "Whether the shared push connection is currently established",
		},
	)

	// ReconnectAttemptsTotal counts reconnect attempts by outcome.
	ReconnectAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetmon_reconnect_attempts_total",
			Help: "Reconnect attempts against the push connection",
		},
		[]string{"outcome"},
	)

	// ActiveSubscriptions tracks currently held topic subscriptions.
	ActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetmon_active_subscriptions",
			Help: "Topic subscriptions currently held on the push connection",
		},
	)

	// PushUpdatesTotal counts per-entity push updates by result.
	PushUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetmon_push_updates_total",
			Help: "Per-entity push updates processed by the reconciler",
		},
		[]string{"result"},
	)

	// PushDecodeFailuresTotal counts push payloads that could not be decoded.
	PushDecodeFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetmon_push_decode_failures_total",
			Help: "Push payloads dropped because their shape or JSON was invalid",
		},
	)

	// SnapshotFetchesTotal counts per-entity snapshot fetches by outcome.
	SnapshotFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetmon_snapshot_fetches_total",
			Help: "Per-entity snapshot fetches by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordPushApplied marks one push update merged into the record store.
func RecordPushApplied() {
	PushUpdatesTotal.WithLabelValues("applied").Inc()
}

// RecordPushDiscarded marks one push update dropped for a deselected entity.
func RecordPushDiscarded() {
	PushUpdatesTotal.WithLabelValues("discarded").Inc()
}
