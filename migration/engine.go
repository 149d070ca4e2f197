package migration

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// State is the lifecycle state of the engine
type State int32

const (
	StateIdle State = iota
	StateValidating
	StateScanning
	StateSteadyState
	StateStopping
	StateStopped
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateValidating:
		return "Validating"
	case StateScanning:
		return "Scanning"
	case StateSteadyState:
		return "SteadyState"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Defaults applied by NewEngine for zero config values
const (
	DefaultBatchSize      = 5000
	DefaultChunkSize      = 1000
	DefaultMetricInterval = 5 * time.Second

	defaultConnectTimeout = 5 * time.Second
	defaultReadTimeout    = 30 * time.Second
	defaultWriteTimeout   = 10 * time.Second

	eventBufferSize = 256
)

// Config carries the engine's construction parameters
type Config struct {
	Source Endpoint
	Target Endpoint

	MigrationID  string
	RealtimeSync bool

	BatchSize      int64
	ChunkSize      int
	MetricInterval time.Duration
	Timeouts       Timeouts

	Filter  KeyFilter
	Logger  Logger
	Metrics MetricsCollector
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MetricInterval <= 0 {
		c.MetricInterval = DefaultMetricInterval
	}
	if c.Timeouts.Connect <= 0 {
		c.Timeouts.Connect = defaultConnectTimeout
	}
	if c.Timeouts.Read <= 0 {
		c.Timeouts.Read = defaultReadTimeout
	}
	if c.Timeouts.Write <= 0 {
		c.Timeouts.Write = defaultWriteTimeout
	}
	if c.Logger == nil {
		c.Logger = &defaultLogger{}
	}
}

// Engine coordinates the bulk scanner and the change subscriber against a
// single writer with at-most-once-in-flight-per-key discipline. It owns the
// three sessions and the pending set exclusively; an engine runs one
// migration and is not reusable after Stop.
type Engine struct {
	cfg Config

	conns      *ConnPair
	stats      *Stats
	replicator *Replicator
	queue      *PendingSet
	scanner    *Scanner
	subscriber *Subscriber

	state       atomic.Int32
	syncEnabled atomic.Bool
	subscribed  bool
	cancel      context.CancelFunc
	stopOnce    sync.Once

	events chan Event

	mu            sync.Mutex
	scanDone      bool
	scanCallbacks []func()

	logger  Logger
	metrics MetricsCollector
}

// NewEngine wires the components together. Nothing connects until Validate
// or Start.
func NewEngine(cfg Config) *Engine {
	cfg.applyDefaults()

	e := &Engine{
		cfg:     cfg,
		stats:   NewStats(),
		events:  make(chan Event, eventBufferSize),
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}

	e.conns = NewConnPair(cfg.Source, cfg.Target, cfg.Timeouts, cfg.Logger)
	e.replicator = NewReplicator(e.conns, e.stats, cfg.Filter, cfg.Logger, cfg.Metrics)
	e.queue = NewPendingSet(cfg.ChunkSize, e.replicateKey)
	e.scanner = NewScanner(e.conns.Source, e.replicateKey, e.stats,
		cfg.BatchSize, cfg.ChunkSize, func() bool { return e.State() == StateScanning },
		cfg.Logger, cfg.Metrics)
	e.subscriber = NewSubscriber(e.conns, e.queue, e.replicateKey,
		&e.syncEnabled, e.emit, cfg.Logger, cfg.Metrics)

	return e
}

// State returns the current lifecycle state
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// Stats returns a snapshot of the migration counters
func (e *Engine) Stats() StatsSnapshot {
	return e.stats.Snapshot()
}

// Events returns the engine's event channel. Emission never blocks
// replication: when the consumer lags behind the buffer, events are dropped.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Validate runs the pre-flight connection check without starting the
// migration. On failure the sessions are closed and the engine must be
// rebuilt.
func (e *Engine) Validate(ctx context.Context) error {
	return e.conns.Validate(ctx)
}

// Start validates, activates the subscriber, and launches the bulk scan.
// The subscriber is fully subscribed before the first page is requested, so
// writes arriving during the sweep are re-covered rather than lost. Start
// returns once the sweep is underway; completion surfaces as a scanComplete
// event.
func (e *Engine) Start(ctx context.Context) error {
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateValidating)) {
		switch e.State() {
		case StateStopping, StateStopped:
			// Engines are single-use; a restart is a new engine
			return ErrNotRunning
		default:
			return ErrAlreadyRunning
		}
	}

	e.logger.Info("Starting migration", "id", e.cfg.MigrationID,
		"source", e.cfg.Source.Addr(), "target", e.cfg.Target.Addr())
	e.stats.Begin()

	if err := e.conns.Validate(ctx); err != nil {
		e.fail(err)
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.syncEnabled.Store(e.cfg.RealtimeSync)

	if e.cfg.RealtimeSync {
		if err := e.subscriber.EnsureNotifications(ctx); err != nil {
			e.fail(err)
			return err
		}
		if err := e.subscriber.Subscribe(runCtx); err != nil {
			e.fail(err)
			return err
		}
		e.subscribed = true
	}

	e.setState(StateScanning)
	go e.run(runCtx)
	go e.metricsLoop(runCtx)

	return nil
}

// run drives the bulk sweep to completion and transitions to steady state
func (e *Engine) run(ctx context.Context) {
	if err := e.scanner.Run(ctx); err != nil {
		if ctx.Err() != nil || e.State() != StateScanning {
			// A stop raced the sweep's in-flight page; not a failure
			return
		}
		e.logger.Error("Bulk scan failed", "error", err)
		e.emitError("", err)
		e.stats.SetStatus(StatusFailed)
		e.shutdown()
		return
	}

	if e.State() != StateScanning {
		// Stopped mid-sweep; Stop owns the rest of the teardown
		return
	}

	e.emit(Event{Kind: EventScanComplete})
	e.fireScanCallbacks()

	if e.cfg.RealtimeSync {
		e.setState(StateSteadyState)
		e.logger.Info("Entering steady state")
		return
	}

	// One-shot snapshot mode: the sweep is the whole migration
	e.stats.SetStatus(StatusCompleted)
	e.shutdown()
}

// metricsLoop emits metric snapshots at the configured cadence and, in
// steady state, re-reads the source's key count
func (e *Engine) metricsLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.MetricInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.State() == StateSteadyState {
				if t, err := e.conns.Source.DBSize(ctx).Result(); err == nil {
					e.stats.SetTotal(t)
				}
			}
			snap := e.stats.MetricSnapshot()
			e.emit(Event{Kind: EventMetrics, Metrics: &snap})
		}
	}
}

// replicateKey is the single entry point through which the scanner, the
// queue drain and the subscriber's inline list rebuild reach the replicator.
// Per-key failures are recorded and the migration continues.
func (e *Engine) replicateKey(ctx context.Context, key string) {
	op, err := e.replicator.Replicate(ctx, key)
	if err != nil {
		if errors.Is(err, context.Canceled) || e.State() == StateStopping || e.State() == StateStopped {
			// Teardown noise, not a replication failure
			return
		}
		var ute *UnsupportedTypeError
		if errors.As(err, &ute) {
			e.logger.Debug("Skipping unsupported type", "key", key, "type", ute.Type)
		} else {
			e.logger.Error("Key replication failed", "key", key, "error", err)
		}
		e.emitError(key, err)
		return
	}
	if op == OpNone {
		return
	}

	e.emit(Event{Kind: EventKeyProcessed, Key: key, Op: op})
	p := e.stats.Progress()
	e.emit(Event{Kind: EventProgress, Progress: &p})
}

// PauseSync freezes the subscriber's effects without tearing down the
// subscription; events arriving during the pause are dropped, not buffered
func (e *Engine) PauseSync() error {
	if !e.active() || !e.cfg.RealtimeSync {
		return ErrNotRunning
	}
	e.syncEnabled.Store(false)
	e.emit(Event{Kind: EventSyncPaused})
	e.logger.Info("Realtime sync paused")
	return nil
}

// ResumeSync re-enables the subscriber's effects
func (e *Engine) ResumeSync() error {
	if !e.active() || !e.cfg.RealtimeSync {
		return ErrNotRunning
	}
	e.syncEnabled.Store(true)
	e.emit(Event{Kind: EventSyncResumed})
	e.logger.Info("Realtime sync resumed")
	return nil
}

func (e *Engine) active() bool {
	s := e.State()
	return s == StateScanning || s == StateSteadyState
}

// Stop ends the migration: no new enqueues are accepted, the subscription is
// torn down, the pending set is cleared, and all sessions close. Running
// replication tasks may complete their current I/O first. Stop is
// best-effort and idempotent.
func (e *Engine) Stop() error {
	e.shutdown()
	return nil
}

func (e *Engine) shutdown() {
	e.stopOnce.Do(func() {
		e.syncEnabled.Store(false)
		e.setState(StateStopping)
		e.logger.Info("Stopping migration", "id", e.cfg.MigrationID)

		if e.cancel != nil {
			e.cancel()
		}
		if e.subscribed {
			e.subscriber.Close()
		}
		e.queue.Clear()
		e.conns.Close()

		e.stats.SetStatus(StatusStopped)
		e.setState(StateStopped)
		e.emit(Event{Kind: EventStopped})
	})
}

// fail handles a fatal failure during startup
func (e *Engine) fail(err error) {
	e.logger.Error("Migration failed to start", "error", err)
	e.stats.SetStatus(StatusFailed)
	e.emitError("", err)
	e.shutdown()
}

// OnScanComplete registers a callback fired once when the bulk sweep
// finishes. If the sweep is already complete the callback fires immediately.
func (e *Engine) OnScanComplete(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.scanDone {
		go fn()
		return
	}
	e.scanCallbacks = append(e.scanCallbacks, fn)
}

func (e *Engine) fireScanCallbacks() {
	e.mu.Lock()
	e.scanDone = true
	callbacks := make([]func(), len(e.scanCallbacks))
	copy(callbacks, e.scanCallbacks)
	e.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// Queue exposes the pending set for observation
func (e *Engine) Queue() *PendingSet {
	return e.queue
}

// emit delivers an event without ever blocking replication. Error events are
// also recorded in the stats error list.
func (e *Engine) emit(ev Event) {
	if ev.Kind == EventError && ev.Err != nil {
		e.stats.RecordError(ev.Err)
	}
	select {
	case e.events <- ev:
	default:
	}
}

func (e *Engine) emitError(key string, err error) {
	if e.metrics != nil {
		e.metrics.RecordError("replication")
	}
	e.emit(Event{Kind: EventError, Key: key, Err: err})
}
