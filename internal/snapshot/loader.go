// Package snapshot performs the one-shot parallel REST fetch that seeds
// per-entity state before live updates arrive.
package snapshot

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"fleetmon/internal/metrics"
	"fleetmon/internal/model"
)

// FetchFunc fetches the snapshot for one entity. The api client's
// ContainerSnapshot/AgentSnapshot methods satisfy it.
type FetchFunc func(ctx context.Context, id int64, window model.TimeRange) (model.EntitySnapshot, error)

// Result maps entity IDs to their snapshots. Entities whose fetch failed are
// absent from Snapshots and listed in Failures; a failure never aborts the
// batch.
type Result struct {
	Snapshots map[int64]model.EntitySnapshot
	Failures  map[int64]error
}

type Loader struct {
	fetch       FetchFunc
	concurrency int
	logger      *slog.Logger
}

func NewLoader(fetch FetchFunc, concurrency int, logger *slog.Logger) *Loader {
	if concurrency <= 0 {
		concurrency = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{fetch: fetch, concurrency: concurrency, logger: logger}
}

// Load fetches every entity in ids concurrently and settles the whole batch:
// each entity succeeds or fails on its own.
func (l *Loader) Load(ctx context.Context, ids []int64, window model.TimeRange) Result {
	res := Result{
		Snapshots: make(map[int64]model.EntitySnapshot, len(ids)),
		Failures:  make(map[int64]error),
	}
	if len(ids) == 0 {
		return res
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			snap, err := l.fetch(gctx, id, window)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failures[id] = err
				metrics.SnapshotFetchesTotal.WithLabelValues("failure").Inc()
				l.logger.Warn("snapshot fetch failed", "entity_id", id, "error", err)
				return nil
			}
			res.Snapshots[id] = snap
			metrics.SnapshotFetchesTotal.WithLabelValues("success").Inc()
			return nil
		})
	}
	_ = g.Wait()
	return res
}

// SameIDSet reports whether two ID slices contain the same set of entities,
// ignoring order and duplicates. The monitor uses it to re-run snapshots only
// when the selection changes by content.
func SameIDSet(a, b []int64) bool {
	as := make(map[int64]struct{}, len(a))
	for _, id := range a {
		as[id] = struct{}{}
	}
	bs := make(map[int64]struct{}, len(b))
	for _, id := range b {
		bs[id] = struct{}{}
	}
	if len(as) != len(bs) {
		return false
	}
	for id := range as {
		if _, ok := bs[id]; !ok {
			return false
		}
	}
	return true
}
