package model

import "time"

// SeriesName identifies one named time series inside a MetricRecord.
type SeriesName string

const (
	SeriesCPUPercent    SeriesName = "cpu_percent"
	SeriesMemoryPercent SeriesName = "memory_percent"
	SeriesNetworkRxBps  SeriesName = "network_rx_bps"
	SeriesNetworkTxBps  SeriesName = "network_tx_bps"
	SeriesBlockReadBps  SeriesName = "block_read_bps"
	SeriesBlockWriteBps SeriesName = "block_write_bps"
)

// SeriesPoint is one (timestamp, value) sample.
type SeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// CurrentValues is the as-of-now scalar metric set for one entity. It is always
// replaced wholesale by the freshest source, never merged field by field.
type CurrentValues struct {
	CPUPercent       float64   `json:"cpuPercent"`
	MemoryUsedBytes  int64     `json:"memoryUsedBytes"`
	MemoryLimitBytes int64     `json:"memoryLimitBytes"`
	NetworkRxBps     float64   `json:"networkRxBps"`
	NetworkTxBps     float64   `json:"networkTxBps"`
	BlockReadBps     float64   `json:"blockReadBps"`
	BlockWriteBps    float64   `json:"blockWriteBps"`
	CPUQuota         int64     `json:"cpuQuota"`
	CPUPeriod        int64     `json:"cpuPeriod"`
	SampledAt        time.Time `json:"sampledAt"`
}

// MemoryPercent derives memory utilization from used/limit, 0 when no limit.
func (v CurrentValues) MemoryPercent() float64 {
	if v.MemoryLimitBytes <= 0 {
		return 0
	}
	return float64(v.MemoryUsedBytes) / float64(v.MemoryLimitBytes) * 100
}

// SummaryStats are REST-supplied precomputed aggregates. The client never
// recomputes them.
type SummaryStats struct {
	Avg1m  float64 `json:"avg1m"`
	Avg5m  float64 `json:"avg5m"`
	Avg15m float64 `json:"avg15m"`
	P95    float64 `json:"p95"`
}

// Phase is the conceptual merge phase of a record.
type Phase string

const (
	PhaseUninitialized Phase = "UNINITIALIZED"
	PhaseSnapshotOnly  Phase = "SNAPSHOT_ONLY"
	PhaseLive          Phase = "LIVE"
)

// MetricRecord is the canonical merged state for one entity. Identity,
// currentValues, timeSeries and summaryStats update independently from
// asynchronous sources; freshness is tracked per group by the reconciler.
type MetricRecord struct {
	Identity      Identity
	CurrentValues CurrentValues
	TimeSeries    map[SeriesName][]SeriesPoint
	SummaryStats  map[SeriesName]SummaryStats
	Phase         Phase
}

// Series returns the named series, nil when absent.
func (r MetricRecord) Series(name SeriesName) []SeriesPoint {
	if r.TimeSeries == nil {
		return nil
	}
	return r.TimeSeries[name]
}

// EntitySnapshot is the REST-delivered point-in-time value set for one entity:
// recent history plus optional aggregates and the values current at fetch time.
type EntitySnapshot struct {
	Identity      Identity                     `json:"identity"`
	CurrentValues CurrentValues                `json:"currentValues"`
	Series        map[SeriesName][]SeriesPoint `json:"series"`
	SummaryStats  map[SeriesName]SummaryStats  `json:"summaryStats,omitempty"`
}

// EntityDetail is the single-entity detail fetch result: static metadata the
// push stream does not carry.
type EntityDetail struct {
	Identity     Identity          `json:"identity"`
	ImageDigest  string            `json:"imageDigest,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	Labels       map[string]string `json:"labels,omitempty"`
	RestartCount int               `json:"restartCount"`
}
