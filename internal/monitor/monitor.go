// Package monitor is the composition root: it owns the shared transport, the
// record store, the snapshot loader and the subscription manager, and exposes
// the selection-driven read API that UI consumers render from.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"fleetmon/internal/api"
	"fleetmon/internal/config"
	"fleetmon/internal/model"
	"fleetmon/internal/reconcile"
	"fleetmon/internal/snapshot"
	"fleetmon/internal/subscription"
	"fleetmon/internal/transport"
)

// ContainerMetricsTopic renders the per-container push topic.
func ContainerMetricsTopic(id int64) string {
	return fmt.Sprintf("/topic/containers/%d/metrics", id)
}

type selectionState struct {
	ids  []int64
	live bool
}

// Monitor wires the reconciliation pipeline together. It is a constructed,
// injectable service: the transport is shared by every feature, but only the
// monitor may disconnect it.
type Monitor struct {
	cfg        config.Config
	logger     *slog.Logger
	transport  *transport.Client
	api        *api.Client
	store      *reconcile.Store
	loader     *snapshot.Loader
	containers *subscription.Manager
	health     *HealthStatus

	selMu   sync.Mutex
	sel     selectionState
	applied []int64
	kickCh  chan struct{}
}

func New(cfg config.Config, logger *slog.Logger) (*Monitor, error) {
	tlsCfg, err := cfg.TLSConfig()
	if err != nil {
		return nil, fmt.Errorf("tls config: %w", err)
	}

	apiClient := api.NewClient(cfg.APIBaseURL, api.Options{
		Token:          func() string { return cfg.Token },
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	})

	dialer := transport.NewDialer(transport.DialConfig{
		URL:               cfg.StreamURL,
		Token:             cfg.Token,
		TLSConfig:         tlsCfg,
		HeartbeatInterval: cfg.HeartbeatInterval,
	})
	tc := transport.NewClient(dialer, transport.Options{
		MaxReconnectAttempts: cfg.ReconnectMaxAttempts,
		ReconnectBaseDelay:   cfg.ReconnectBaseDelay,
		Logger:               logger,
	})

	store := reconcile.NewStore(cfg.SeriesRetention, logger)
	loader := snapshot.NewLoader(apiClient.ContainerSnapshot, cfg.SnapshotConcurrency, logger)
	health := NewHealthStatus()

	m := &Monitor{
		cfg:       cfg,
		logger:    logger,
		transport: tc,
		api:       apiClient,
		store:     store,
		loader:    loader,
		health:    health,
		sel:       selectionState{live: true},
		kickCh:    make(chan struct{}, 1),
	}
	m.containers = subscription.NewManager(tc, ContainerMetricsTopic, m.onPushMessage, logger)

	tc.OnStateChange(func(s transport.State) {
		health.SetStreamConnected(s == transport.StateConnected)
	})
	tc.OnError(func(e transport.Error) {
		if e.Terminal {
			health.SetStreamTerminal()
		}
	})

	return m, nil
}

// SetSelection replaces the desired entity-ID set. Safe from any goroutine;
// the selection loop applies the change asynchronously.
func (m *Monitor) SetSelection(ids []int64) {
	m.selMu.Lock()
	m.sel.ids = append([]int64(nil), ids...)
	m.selMu.Unlock()
	m.kick()
}

// SetLiveView toggles whether live data is wanted at all (e.g. the user moved
// to a tab without metrics). Disabling drops subscriptions and records but
// keeps the selection for re-enable.
func (m *Monitor) SetLiveView(on bool) {
	m.selMu.Lock()
	m.sel.live = on
	m.selMu.Unlock()
	m.kick()
}

// Record returns the merged record for one entity.
func (m *Monitor) Record(id int64) (model.MetricRecord, bool) {
	return m.store.Record(id)
}

// Records returns all merged records ordered by entity ID.
func (m *Monitor) Records() []model.MetricRecord {
	return m.store.Records()
}

// ConnectionState exposes the transport state for spinners and badges.
func (m *Monitor) ConnectionState() transport.State {
	return m.transport.State()
}

// Run drives the monitor until ctx is canceled or a shutdown signal arrives,
// then tears down gracefully within the configured timeout.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("starting fleetmon", "api", m.cfg.APIBaseURL, "stream", m.cfg.StreamURL)
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- m.run(runCtx)
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case runErr = <-runErrCh:
	case sig := <-sigCh:
		m.logger.Info("shutdown signal received, starting graceful shutdown", "signal", sig.String(), "timeout", m.cfg.ShutdownTimeout)
		cancelRun()

		graceTimer := time.NewTimer(m.cfg.ShutdownTimeout)
		defer graceTimer.Stop()

		select {
		case runErr = <-runErrCh:
		case sig2 := <-sigCh:
			m.logger.Warn("second signal received, forcing immediate shutdown", "signal", sig2.String())
			runErr = context.Canceled
		case <-graceTimer.C:
			m.logger.Warn("graceful shutdown timeout reached, forcing shutdown", "timeout", m.cfg.ShutdownTimeout)
			runErr = context.DeadlineExceeded
		}
	}

	m.shutdown()

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}
	m.logger.Info("fleetmon stopped")
	return nil
}

func (m *Monitor) run(ctx context.Context) error {
	m.transport.Connect()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.runSelectionLoop(gctx)
	})
	g.Go(func() error {
		return m.runHealthLoop(gctx)
	})
	g.Go(func() error {
		return m.runProbeListener(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (m *Monitor) runSelectionLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.kickCh:
			m.applySelection(ctx)
		}
	}
}

func (m *Monitor) applySelection(ctx context.Context) {
	m.selMu.Lock()
	sel := m.sel
	m.selMu.Unlock()

	want := sel.ids
	if !sel.live {
		want = nil
	}
	if snapshot.SameIDSet(want, m.applied) {
		return
	}

	added := diffAdded(m.applied, want)
	m.applied = append([]int64(nil), want...)

	m.store.SetDesired(want)
	m.containers.Set(want)

	if len(added) == 0 {
		return
	}
	window := model.LastWindow(time.Now().UTC(), m.cfg.SnapshotWindow)
	res := m.loader.Load(ctx, added, window)
	for id, snap := range res.Snapshots {
		m.store.ApplySnapshot(id, snap)
	}
	m.health.MarkSnapshotBatch(time.Now().UTC())

	for _, id := range added {
		detailCtx, cancel := context.WithTimeout(ctx, m.cfg.DetailFetchTimeout)
		detail, err := m.api.ContainerDetail(detailCtx, id)
		cancel()
		if err != nil {
			m.logger.Warn("detail fetch failed", "entity_id", id, "error", err)
			continue
		}
		m.store.ApplyDetail(id, detail)
	}
}

func (m *Monitor) onPushMessage(topic string, body []byte) {
	m.store.ApplyPush(body)
	m.health.MarkPushSample(time.Now().UTC())
}

func (m *Monitor) runHealthLoop(ctx context.Context) error {
	t := time.NewTicker(m.cfg.HealthInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			m.logger.Debug("monitor health", "state", m.transport.State(), "snapshot", m.health.Snapshot())
		}
	}
}

func (m *Monitor) shutdown() {
	m.containers.Close()
	m.transport.Disconnect()
	m.health.SetStreamConnected(false)
}

func (m *Monitor) kick() {
	select {
	case m.kickCh <- struct{}{}:
	default:
	}
}

func diffAdded(prev, next []int64) []int64 {
	seen := make(map[int64]struct{}, len(prev))
	for _, id := range prev {
		seen[id] = struct{}{}
	}
	added := make([]int64, 0)
	for _, id := range next {
		if _, ok := seen[id]; !ok {
			added = append(added, id)
			seen[id] = struct{}{}
		}
	}
	return added
}
