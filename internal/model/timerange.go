package model

import "time"

// QuickRange is a named relative time window accepted by metric endpoints.
type QuickRange string

const (
	Last5Minutes  QuickRange = "LAST_5_MINUTES"
	Last15Minutes QuickRange = "LAST_15_MINUTES"
	Last30Minutes QuickRange = "LAST_30_MINUTES"
	LastHour      QuickRange = "LAST_HOUR"
	Last6Hours    QuickRange = "LAST_6_HOURS"
	Last12Hours   QuickRange = "LAST_12_HOURS"
	Last24Hours   QuickRange = "LAST_24_HOURS"
)

var quickRangeDurations = map[QuickRange]time.Duration{
	Last5Minutes:  5 * time.Minute,
	Last15Minutes: 15 * time.Minute,
	Last30Minutes: 30 * time.Minute,
	LastHour:      time.Hour,
	Last6Hours:    6 * time.Hour,
	Last12Hours:   12 * time.Hour,
	Last24Hours:   24 * time.Hour,
}

// TimeRange is an explicit [Start, End] metric query window.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Window resolves a quick range against now. Unknown ranges resolve to the
// last 5 minutes rather than failing.
func (q QuickRange) Window(now time.Time) TimeRange {
	d, ok := quickRangeDurations[q]
	if !ok {
		d = 5 * time.Minute
	}
	return TimeRange{Start: now.Add(-d), End: now}
}

// LastWindow is a convenience for "most recent d ending now".
func LastWindow(now time.Time, d time.Duration) TimeRange {
	return TimeRange{Start: now.Add(-d), End: now}
}
