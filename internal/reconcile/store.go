// Package reconcile merges the three asynchronous metric sources — the batch
// REST snapshot, the on-selection detail fetch, and the push stream — into one
// canonical record per entity.
package reconcile

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"fleetmon/internal/metrics"
	"fleetmon/internal/model"
)

const maxLoggedPayload = 512

type record struct {
	rec  model.MetricRecord
	live bool // a push update owns currentValues from now on
}

// Store is the authoritative keyed arena of merged records. All writes funnel
// through its Apply* methods; readers get copies. Records exist only for
// entities in the desired set — a late result for a deselected entity is
// discarded at merge time, not at request time.
type Store struct {
	logger    *slog.Logger
	retention int
	now       func() time.Time

	mu      sync.Mutex
	rates   *rateTracker
	records map[int64]*record
	desired map[int64]struct{}
}

func NewStore(retention int, logger *slog.Logger) *Store {
	if retention <= 0 {
		retention = 360
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger:    logger,
		retention: retention,
		now:       time.Now,
		rates:     newRateTracker(),
		records:   make(map[int64]*record),
		desired:   make(map[int64]struct{}),
	}
}

// SetDesired replaces the desired entity set. New entities get an
// uninitialized record; removed entities lose their record and rate baseline
// together.
func (s *Store) SetDesired(ids []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}
	for id := range s.records {
		if _, keep := next[id]; !keep {
			delete(s.records, id)
			s.rates.Forget(id)
		}
	}
	for id := range next {
		if _, ok := s.records[id]; !ok {
			s.records[id] = &record{rec: model.MetricRecord{
				Identity:   model.Identity{ID: id, State: model.StateUnknown, Health: model.HealthUnknown},
				TimeSeries: make(map[model.SeriesName][]model.SeriesPoint),
				Phase:      model.PhaseUninitialized,
			}}
		}
	}
	s.desired = next
}

// ApplySnapshot merges one batch-snapshot result. Series and summary stats are
// taken from the payload; currentValues only while no push update has claimed
// them yet, so a delayed response never regresses a live record.
func (s *Store) ApplySnapshot(id int64, snap model.EntitySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.memberLocked(id, "snapshot")
	if !ok {
		return
	}

	for name, points := range snap.Series {
		r.rec.TimeSeries[name] = mergeSeries(r.rec.TimeSeries[name], points, s.retention)
	}
	if len(snap.SummaryStats) > 0 {
		if r.rec.SummaryStats == nil {
			r.rec.SummaryStats = make(map[model.SeriesName]model.SummaryStats, len(snap.SummaryStats))
		}
		for name, stats := range snap.SummaryStats {
			r.rec.SummaryStats[name] = stats
		}
	}
	if !r.live {
		r.rec.CurrentValues = snap.CurrentValues
		mergeIdentity(&r.rec.Identity, snap.Identity)
		r.rec.Phase = model.PhaseSnapshotOnly
	}
}

// ApplyDetail merges a single-entity detail fetch: static metadata the push
// stream does not carry. Live currentValues are never touched.
func (s *Store) ApplyDetail(id int64, detail model.EntityDetail) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.memberLocked(id, "detail")
	if !ok {
		return
	}

	ident := &r.rec.Identity
	if detail.Identity.Name != "" {
		ident.Name = detail.Identity.Name
	}
	if detail.Identity.Hash != "" {
		ident.Hash = detail.Identity.Hash
	}
	if detail.Identity.AgentID != 0 {
		ident.AgentID = detail.Identity.AgentID
	}
	if detail.Identity.Kind != "" {
		ident.Kind = detail.Identity.Kind
	}
	if detail.Identity.ImageTag != "" {
		ident.ImageTag = detail.Identity.ImageTag
	}
	if !r.live {
		// State and health stay push-owned once live.
		if detail.Identity.State != "" {
			ident.State = detail.Identity.State
		}
		if detail.Identity.Health != "" {
			ident.Health = detail.Identity.Health
		}
	}
}

// ApplyPush decodes one push message and merges its per-entity updates.
// Malformed or unrecognized payloads are logged with the raw content and
// dropped without affecting other entities.
func (s *Store) ApplyPush(raw []byte) {
	updates, err := DecodePushPayload(raw)
	if err != nil {
		metrics.PushDecodeFailuresTotal.Inc()
		s.logger.Warn("push payload dropped", "error", err, "payload", truncate(raw))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range updates {
		s.applyPushLocked(u)
	}
}

func (s *Store) applyPushLocked(u model.PushUpdate) {
	id := u.EntityID()
	if id == 0 {
		s.logger.Warn("push update without entity id dropped")
		metrics.RecordPushDiscarded()
		return
	}
	r, ok := s.memberLocked(id, "push")
	if !ok {
		metrics.RecordPushDiscarded()
		return
	}

	at := u.Timestamp
	if at.IsZero() {
		at = s.now().UTC()
	}

	rxBps, rxOK := s.rates.Observe(id, "net_rx", at, u.NetworkRxBytes)
	txBps, txOK := s.rates.Observe(id, "net_tx", at, u.NetworkTxBytes)
	rdBps, rdOK := s.rates.Observe(id, "blk_read", at, u.BlockReadBytes)
	wrBps, wrOK := s.rates.Observe(id, "blk_write", at, u.BlockWriteBytes)

	// The server sends a complete current-value snapshot on each push, so the
	// group is replaced wholesale.
	cur := model.CurrentValues{
		CPUPercent:       u.CPUPercent,
		MemoryUsedBytes:  u.MemoryUsedBytes,
		MemoryLimitBytes: u.MemoryLimitBytes,
		NetworkRxBps:     rxBps,
		NetworkTxBps:     txBps,
		BlockReadBps:     rdBps,
		BlockWriteBps:    wrBps,
		CPUQuota:         u.CPUQuota,
		CPUPeriod:        u.CPUPeriod,
		SampledAt:        at,
	}
	r.rec.CurrentValues = cur
	r.live = true
	r.rec.Phase = model.PhaseLive

	ident := &r.rec.Identity
	if u.Name != "" {
		ident.Name = u.Name
	}
	if u.Hash != "" {
		ident.Hash = u.Hash
	}
	if u.State != "" {
		ident.State = model.ParseContainerState(u.State)
	}
	if u.Health != "" {
		ident.Health = model.ParseHealthState(u.Health)
	}
	if u.AgentID != 0 && u.ContainerID != 0 {
		ident.AgentID = u.AgentID
	}

	ts := r.rec.TimeSeries
	appendPoint(ts, model.SeriesCPUPercent, at, u.CPUPercent, s.retention)
	appendPoint(ts, model.SeriesMemoryPercent, at, cur.MemoryPercent(), s.retention)
	if rxOK {
		appendPoint(ts, model.SeriesNetworkRxBps, at, rxBps, s.retention)
	}
	if txOK {
		appendPoint(ts, model.SeriesNetworkTxBps, at, txBps, s.retention)
	}
	if rdOK {
		appendPoint(ts, model.SeriesBlockReadBps, at, rdBps, s.retention)
	}
	if wrOK {
		appendPoint(ts, model.SeriesBlockWriteBps, at, wrBps, s.retention)
	}

	metrics.RecordPushApplied()
}

// Record returns a copy of one entity's merged record.
func (s *Store) Record(id int64) (model.MetricRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return model.MetricRecord{}, false
	}
	return copyRecord(r.rec), true
}

// Records returns copies of all records, ordered by entity ID.
func (s *Store) Records() []model.MetricRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.MetricRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, copyRecord(r.rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity.ID < out[j].Identity.ID })
	return out
}

// memberLocked gates every merge on current desired-set membership.
func (s *Store) memberLocked(id int64, source string) (*record, bool) {
	if _, ok := s.desired[id]; !ok {
		s.logger.Debug("stale result for deselected entity discarded", "entity_id", id, "source", source)
		return nil, false
	}
	r, ok := s.records[id]
	if !ok {
		return nil, false
	}
	return r, true
}

func mergeIdentity(dst *model.Identity, src model.Identity) {
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.Hash != "" {
		dst.Hash = src.Hash
	}
	if src.Kind != "" {
		dst.Kind = src.Kind
	}
	if src.AgentID != 0 {
		dst.AgentID = src.AgentID
	}
	if src.ImageTag != "" {
		dst.ImageTag = src.ImageTag
	}
	if src.State != "" {
		dst.State = src.State
	}
	if src.Health != "" {
		dst.Health = src.Health
	}
}

func copyRecord(rec model.MetricRecord) model.MetricRecord {
	out := rec
	out.TimeSeries = make(map[model.SeriesName][]model.SeriesPoint, len(rec.TimeSeries))
	for name, points := range rec.TimeSeries {
		out.TimeSeries[name] = append([]model.SeriesPoint(nil), points...)
	}
	if rec.SummaryStats != nil {
		out.SummaryStats = make(map[model.SeriesName]model.SummaryStats, len(rec.SummaryStats))
		for name, stats := range rec.SummaryStats {
			out.SummaryStats[name] = stats
		}
	}
	return out
}

func truncate(raw []byte) string {
	if len(raw) > maxLoggedPayload {
		return string(raw[:maxLoggedPayload]) + "...(truncated)"
	}
	return string(raw)
}
