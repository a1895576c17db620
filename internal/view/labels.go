package view

import "fleetmon/internal/model"

const unknownLabel = "unknown"

var stateLabels = map[model.ContainerState]string{
	model.StateRunning:    "Running",
	model.StateRestarting: "Restarting",
	model.StateDead:       "Dead",
	model.StateCreated:    "Created",
	model.StateExited:     "Exited",
	model.StatePaused:     "Paused",
	model.StateDeleted:    "Deleted",
	model.StateUnknown:    unknownLabel,
}

var healthLabels = map[model.HealthState]string{
	model.HealthHealthy:   "Healthy",
	model.HealthUnhealthy: "Unhealthy",
	model.HealthStarting:  "Starting",
	model.HealthNone:      "No health check",
	model.HealthUnknown:   unknownLabel,
}

// StateLabel maps a lifecycle state to its display label, falling back to
// "unknown" for unmapped values.
func StateLabel(s model.ContainerState) string {
	if label, ok := stateLabels[s]; ok {
		return label
	}
	return unknownLabel
}

// HealthLabel maps a health state to its display label, falling back to
// "unknown" for unmapped values.
func HealthLabel(h model.HealthState) string {
	if label, ok := healthLabels[h]; ok {
		return label
	}
	return unknownLabel
}
