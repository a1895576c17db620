package reconcile

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetmon/internal/model"
)

func testSnapshot(cpu float64) model.EntitySnapshot {
	return model.EntitySnapshot{
		Identity: model.Identity{ID: 1, Name: "api-1", State: model.StateRunning, Health: model.HealthHealthy},
		CurrentValues: model.CurrentValues{
			CPUPercent:       cpu,
			MemoryUsedBytes:  512,
			MemoryLimitBytes: 1024,
		},
		Series: map[model.SeriesName][]model.SeriesPoint{
			model.SeriesCPUPercent: {pt(10, 1), pt(20, 2)},
		},
		SummaryStats: map[model.SeriesName]model.SummaryStats{
			model.SeriesCPUPercent: {Avg1m: 1.5, Avg5m: 1.4, Avg15m: 1.2, P95: 2.0},
		},
	}
}

func pushPayload(id int64, cpu float64, ts time.Time) []byte {
	return []byte(fmt.Sprintf(
		`{"containerId":%d,"state":"RUNNING","cpuPercent":%g,"memoryUsedBytes":256,"memoryLimitBytes":1024,"timestamp":%q}`,
		id, cpu, ts.Format(time.RFC3339)))
}

func TestSnapshotThenPushCurrentValuesFollowPush(t *testing.T) {
	s := NewStore(100, nil)
	s.SetDesired([]int64{1})

	s.ApplySnapshot(1, testSnapshot(50))
	rec, ok := s.Record(1)
	require.True(t, ok)
	assert.Equal(t, model.PhaseSnapshotOnly, rec.Phase)
	assert.InDelta(t, 50.0, rec.CurrentValues.CPUPercent, 0.001)

	s.ApplyPush(pushPayload(1, 75, time.Now().UTC()))
	rec, _ = s.Record(1)
	assert.Equal(t, model.PhaseLive, rec.Phase)
	assert.InDelta(t, 75.0, rec.CurrentValues.CPUPercent, 0.001)
}

// A delayed snapshot response must not regress currentValues once a push has
// claimed them, while its series and summary stats still merge in.
func TestPushThenLateSnapshotDoesNotRegressCurrentValues(t *testing.T) {
	s := NewStore(100, nil)
	s.SetDesired([]int64{1})

	s.ApplyPush(pushPayload(1, 75, time.Now().UTC()))
	s.ApplySnapshot(1, testSnapshot(50))

	rec, ok := s.Record(1)
	require.True(t, ok)
	assert.Equal(t, model.PhaseLive, rec.Phase)
	assert.InDelta(t, 75.0, rec.CurrentValues.CPUPercent, 0.001)

	// The other field groups still took the snapshot's data.
	assert.NotEmpty(t, rec.Series(model.SeriesCPUPercent))
	require.Contains(t, rec.SummaryStats, model.SeriesCPUPercent)
	assert.InDelta(t, 2.0, rec.SummaryStats[model.SeriesCPUPercent].P95, 0.001)
}

func TestStaleSnapshotForDeselectedEntityIsDiscarded(t *testing.T) {
	s := NewStore(100, nil)
	s.SetDesired([]int64{1, 2})
	s.SetDesired([]int64{2})

	s.ApplySnapshot(1, testSnapshot(50))

	_, ok := s.Record(1)
	assert.False(t, ok, "record must not exist for deselected entity")
	assert.Len(t, s.Records(), 1)
}

func TestSetDesiredDropsRecordAndRateBaselineTogether(t *testing.T) {
	s := NewStore(100, nil)
	s.SetDesired([]int64{1})

	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.ApplyPush([]byte(fmt.Sprintf(`{"containerId":1,"networkRxBytes":1000,"timestamp":%q}`, t0.Format(time.RFC3339))))

	s.SetDesired(nil)
	s.SetDesired([]int64{1})

	// Reselect starts from a clean baseline: the first push yields no rate
	// point even though the counter advanced.
	s.ApplyPush([]byte(fmt.Sprintf(`{"containerId":1,"networkRxBytes":99000,"timestamp":%q}`, t0.Add(time.Second).Format(time.RFC3339))))
	rec, ok := s.Record(1)
	require.True(t, ok)
	assert.Empty(t, rec.Series(model.SeriesNetworkRxBps))
}

func TestPushComputesRatesFromCumulativeCounters(t *testing.T) {
	s := NewStore(100, nil)
	s.SetDesired([]int64{1})
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	s.ApplyPush([]byte(fmt.Sprintf(`{"containerId":1,"networkRxBytes":1000,"networkTxBytes":500,"timestamp":%q}`, t0.Format(time.RFC3339))))
	s.ApplyPush([]byte(fmt.Sprintf(`{"containerId":1,"networkRxBytes":3000,"networkTxBytes":700,"timestamp":%q}`, t0.Add(2*time.Second).Format(time.RFC3339))))

	rec, ok := s.Record(1)
	require.True(t, ok)
	assert.InDelta(t, 1000.0, rec.CurrentValues.NetworkRxBps, 0.001)
	assert.InDelta(t, 100.0, rec.CurrentValues.NetworkTxBps, 0.001)

	rx := rec.Series(model.SeriesNetworkRxBps)
	require.Len(t, rx, 1)
	assert.InDelta(t, 1000.0, rx[0].Value, 0.001)
}

func TestPushSeriesAreDedupedAndCapped(t *testing.T) {
	s := NewStore(3, nil)
	s.SetDesired([]int64{1})
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		s.ApplyPush(pushPayload(1, float64(i), t0.Add(time.Duration(i)*time.Second)))
	}
	// Duplicate timestamp replaces the existing point.
	s.ApplyPush(pushPayload(1, 99, t0.Add(5*time.Second)))

	rec, _ := s.Record(1)
	cpu := rec.Series(model.SeriesCPUPercent)
	require.Len(t, cpu, 3)
	assert.True(t, cpu[0].Timestamp.Before(cpu[1].Timestamp))
	assert.True(t, cpu[1].Timestamp.Before(cpu[2].Timestamp))
	assert.InDelta(t, 99.0, cpu[2].Value, 0.001)
}

func TestMalformedPushLeavesOtherRecordsUntouched(t *testing.T) {
	s := NewStore(100, nil)
	s.SetDesired([]int64{1})
	s.ApplyPush(pushPayload(1, 75, time.Now().UTC()))

	s.ApplyPush([]byte(`{"containerId":`))
	s.ApplyPush([]byte(`"not a shape we know"`))

	rec, ok := s.Record(1)
	require.True(t, ok)
	assert.InDelta(t, 75.0, rec.CurrentValues.CPUPercent, 0.001)
}

func TestMultiEntityPushAppliesIndependently(t *testing.T) {
	s := NewStore(100, nil)
	s.SetDesired([]int64{1, 2})

	// Entity 3 is not selected; its slice of the batch is discarded while the
	// others merge normally.
	s.ApplyPush([]byte(`{"data":[{"containerId":1,"cpuPercent":10},{"containerId":2,"cpuPercent":20},{"containerId":3,"cpuPercent":30}]}`))

	rec1, ok := s.Record(1)
	require.True(t, ok)
	assert.InDelta(t, 10.0, rec1.CurrentValues.CPUPercent, 0.001)

	rec2, ok := s.Record(2)
	require.True(t, ok)
	assert.InDelta(t, 20.0, rec2.CurrentValues.CPUPercent, 0.001)

	_, ok = s.Record(3)
	assert.False(t, ok)
}

func TestApplyDetailFillsStaticFieldsWithoutClobberingLiveState(t *testing.T) {
	s := NewStore(100, nil)
	s.SetDesired([]int64{1})
	s.ApplyPush(pushPayload(1, 75, time.Now().UTC()))

	s.ApplyDetail(1, model.EntityDetail{
		Identity: model.Identity{
			ID:       1,
			Name:     "api-1",
			Hash:     "sha256:abcd",
			AgentID:  4,
			ImageTag: "api:2.3",
			State:    model.StateExited, // stale REST state must not win while live
		},
	})

	rec, _ := s.Record(1)
	assert.Equal(t, "sha256:abcd", rec.Identity.Hash)
	assert.Equal(t, int64(4), rec.Identity.AgentID)
	assert.Equal(t, "api:2.3", rec.Identity.ImageTag)
	assert.Equal(t, model.StateRunning, rec.Identity.State)
}

func TestUninitializedRecordExistsForSelectedEntity(t *testing.T) {
	s := NewStore(100, nil)
	s.SetDesired([]int64{5})

	rec, ok := s.Record(5)
	require.True(t, ok)
	assert.Equal(t, model.PhaseUninitialized, rec.Phase)
	assert.Equal(t, model.StateUnknown, rec.Identity.State)
}
