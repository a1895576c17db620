package model

import (
	"encoding/json"
	"time"
)

// Envelope is the backend's uniform REST response framing.
type Envelope struct {
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

// PushUpdate is one flat per-entity update as carried by the push feed.
// Network and block I/O figures are cumulative byte counters; the reconciler
// derives rates from consecutive samples. The same flat shape appears bare, in
// arrays, and under a data wrapper on the wire.
type PushUpdate struct {
	ContainerID      int64     `json:"containerId,omitempty"`
	AgentID          int64     `json:"agentId,omitempty"`
	ID               int64     `json:"id,omitempty"`
	Name             string    `json:"name,omitempty"`
	Hash             string    `json:"hash,omitempty"`
	State            string    `json:"state,omitempty"`
	Health           string    `json:"health,omitempty"`
	CPUPercent       float64   `json:"cpuPercent"`
	MemoryUsedBytes  int64     `json:"memoryUsedBytes"`
	MemoryLimitBytes int64     `json:"memoryLimitBytes"`
	NetworkRxBytes   uint64    `json:"networkRxBytes"`
	NetworkTxBytes   uint64    `json:"networkTxBytes"`
	BlockReadBytes   uint64    `json:"blockReadBytes"`
	BlockWriteBytes  uint64    `json:"blockWriteBytes"`
	CPUQuota         int64     `json:"cpuQuota,omitempty"`
	CPUPeriod        int64     `json:"cpuPeriod,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// EntityID resolves the target entity of an update. Historically evolved
// payloads use containerId, agentId or a bare id for the same thing.
func (u PushUpdate) EntityID() int64 {
	if u.ContainerID != 0 {
		return u.ContainerID
	}
	if u.ID != 0 {
		return u.ID
	}
	return u.AgentID
}
