// Package model defines the canonical domain types shared by the transport,
// reconciliation and presentation layers.
package model

import "strings"

// EntityKind distinguishes the two monitored entity classes.
type EntityKind string

const (
	KindContainer EntityKind = "container"
	KindAgent     EntityKind = "agent"
)

// ContainerState is the backend's container lifecycle state.
type ContainerState string

const (
	StateRunning    ContainerState = "RUNNING"
	StateRestarting ContainerState = "RESTARTING"
	StateDead       ContainerState = "DEAD"
	StateCreated    ContainerState = "CREATED"
	StateExited     ContainerState = "EXITED"
	StatePaused     ContainerState = "PAUSED"
	StateDeleted    ContainerState = "DELETED"
	StateUnknown    ContainerState = "UNKNOWN"
)

// HealthState is the container health-check verdict. HealthNone means the
// image defines no health check at all.
type HealthState string

const (
	HealthHealthy   HealthState = "HEALTHY"
	HealthUnhealthy HealthState = "UNHEALTHY"
	HealthStarting  HealthState = "STARTING"
	HealthNone      HealthState = "NONE"
	HealthUnknown   HealthState = "UNKNOWN"
)

// ParseContainerState normalizes a wire state string. Unrecognized values map
// to StateUnknown rather than failing.
func ParseContainerState(s string) ContainerState {
	switch ContainerState(strings.ToUpper(strings.TrimSpace(s))) {
	case StateRunning:
		return StateRunning
	case StateRestarting:
		return StateRestarting
	case StateDead:
		return StateDead
	case StateCreated:
		return StateCreated
	case StateExited:
		return StateExited
	case StatePaused:
		return StatePaused
	case StateDeleted:
		return StateDeleted
	default:
		return StateUnknown
	}
}

// ParseHealthState normalizes a wire health string. An empty value means the
// backend reported no health check, not that the state is unknown.
func ParseHealthState(s string) HealthState {
	trimmed := strings.ToUpper(strings.TrimSpace(s))
	if trimmed == "" {
		return HealthNone
	}
	switch HealthState(trimmed) {
	case HealthHealthy:
		return HealthHealthy
	case HealthUnhealthy:
		return HealthUnhealthy
	case HealthStarting:
		return HealthStarting
	case HealthNone:
		return HealthNone
	default:
		return HealthUnknown
	}
}

// Identity is the stable descriptive metadata for one entity. The hash is the
// backend's content identifier for containers; agents leave it empty.
type Identity struct {
	ID       int64          `json:"id"`
	Kind     EntityKind     `json:"kind,omitempty"`
	Name     string         `json:"name"`
	Hash     string         `json:"hash,omitempty"`
	AgentID  int64          `json:"agentId,omitempty"`
	ImageTag string         `json:"imageTag,omitempty"`
	State    ContainerState `json:"state,omitempty"`
	Health   HealthState    `json:"health,omitempty"`
}
