// Package view holds the pure presentation mappers that turn canonical metric
// records into display-ready values. One threshold table serves every caller;
// nothing here ever panics — invalid input maps to a documented sentinel.
package view

import (
	"fmt"
	"math"
)

// NotAvailable is the sentinel for values that cannot be rendered.
const NotAvailable = "N/A"

var (
	byteUnits = []string{"B", "KB", "MB", "GB", "TB", "PB"}
	bitUnits  = []string{"bps", "Kbps", "Mbps", "Gbps", "Tbps"}
)

const (
	byteStep = 1024 // bytes humanize in powers of 1024
	bitStep  = 1000 // bit rates humanize in powers of 1000
)

// FormatBytes humanizes a byte count with automatic unit selection.
// FormatBytes(0) == "0 B", FormatBytes(1536) == "1.5 KB".
func FormatBytes(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return NotAvailable
	}
	if v < byteStep {
		return fmt.Sprintf("%.0f B", v)
	}
	value, unit := scale(v, byteStep, byteUnits)
	return fmt.Sprintf("%.1f %s", value, unit)
}

// FormatBytesIn converts a byte count to one explicit unit, for callers that
// need a fixed column unit instead of auto-selection.
func FormatBytesIn(v float64, unit string) string {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return NotAvailable
	}
	for i, u := range byteUnits {
		if u == unit {
			return fmt.Sprintf("%.1f %s", v/math.Pow(byteStep, float64(i)), u)
		}
	}
	return NotAvailable
}

// FormatNetworkSpeed humanizes a bytes-per-second figure as a bit rate.
// FormatNetworkSpeed(125000) == "1.0 Mbps".
func FormatNetworkSpeed(bytesPerSec float64) string {
	if math.IsNaN(bytesPerSec) || math.IsInf(bytesPerSec, 0) || bytesPerSec < 0 {
		return NotAvailable
	}
	bits := bytesPerSec * 8
	if bits < bitStep {
		return fmt.Sprintf("%.0f bps", bits)
	}
	value, unit := scale(bits, bitStep, bitUnits)
	return fmt.Sprintf("%.1f %s", value, unit)
}

// FormatPercent renders a percentage with one fixed decimal place.
// Non-finite input maps to "N/A".
func FormatPercent(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NotAvailable
	}
	return fmt.Sprintf("%.1f%%", v)
}

// CPUCores derives the effective core count from a cgroup quota/period pair.
// A quota of -1 means unlimited and yields +Inf; a non-positive period yields 0.
func CPUCores(quota, period int64) float64 {
	if quota == -1 {
		return math.Inf(1)
	}
	if quota <= 0 || period <= 0 {
		return 0
	}
	return float64(quota) / float64(period)
}

// FormatCPUCores renders CPUCores output, with an unlimited marker for +Inf.
func FormatCPUCores(quota, period int64) string {
	cores := CPUCores(quota, period)
	if math.IsInf(cores, 1) {
		return "unlimited"
	}
	if cores == 0 {
		return NotAvailable
	}
	return fmt.Sprintf("%.2f", cores)
}

func scale(v, step float64, units []string) (float64, string) {
	idx := 0
	for v >= step && idx < len(units)-1 {
		v /= step
		idx++
	}
	return v, units[idx]
}
