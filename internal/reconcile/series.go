package reconcile

import (
	"sort"
	"time"

	"fleetmon/internal/model"
)

// mergeSeries folds incoming points into existing ones: deduplicated by
// timestamp (incoming wins), sorted ascending, truncated from the oldest end
// to the retention cap. Inputs may arrive in any order; the result is always
// strictly ascending.
func mergeSeries(existing, incoming []model.SeriesPoint, retention int) []model.SeriesPoint {
	if len(incoming) == 0 && len(existing) <= retention {
		return existing
	}

	byTime := make(map[int64]float64, len(existing)+len(incoming))
	for _, p := range existing {
		byTime[p.Timestamp.UnixNano()] = p.Value
	}
	for _, p := range incoming {
		byTime[p.Timestamp.UnixNano()] = p.Value
	}

	keys := make([]int64, 0, len(byTime))
	for k := range byTime {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	if retention > 0 && len(keys) > retention {
		keys = keys[len(keys)-retention:]
	}

	merged := make([]model.SeriesPoint, len(keys))
	for i, k := range keys {
		merged[i] = model.SeriesPoint{Timestamp: time.Unix(0, k).UTC(), Value: byTime[k]}
	}
	return merged
}

func appendPoint(series map[model.SeriesName][]model.SeriesPoint, name model.SeriesName, at time.Time, value float64, retention int) {
	series[name] = mergeSeries(series[name], []model.SeriesPoint{{Timestamp: at, Value: value}}, retention)
}
