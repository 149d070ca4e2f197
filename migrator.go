package redismigrate

import (
	"context"
	"sync"
	"time"

	"github.com/raniellyferreira/redis-live-migrator/migration"
)

// MigrationStats is a point-in-time snapshot of the migration counters
type MigrationStats struct {
	Processed int64
	Total     int64
	Bytes     int64
	Percent   float64
	Rate      float64 // keys per second
	StartTime time.Time
	Status    string
	Errors    []string
}

// Migrator performs a live, online migration of one Redis instance into
// another while the source continues to accept writes
type Migrator struct {
	// Configuration
	config *config

	// Components
	engine *migration.Engine

	// State
	mu      sync.RWMutex
	started bool
	closed  bool
}

// New creates a new Migrator for the given source and target endpoints
//
// The migrator is created but not started. Use Start() to begin the
// migration.
//
// Example:
//
//	m, err := redismigrate.New(
//		redismigrate.Endpoint{Host: "localhost", Port: 6379},
//		redismigrate.Endpoint{Host: "localhost", Port: 6380},
//		redismigrate.WithMigrationID("cache-move"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Since: v1.0.0
func New(source, target Endpoint, opts ...Option) (*Migrator, error) {
	cfg := defaultConfig()
	cfg.source = source
	cfg.target = target

	// Apply options
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	engineCfg := migration.Config{
		Source:         cfg.source,
		Target:         cfg.target,
		MigrationID:    cfg.migrationID,
		RealtimeSync:   cfg.realtimeSync,
		BatchSize:      cfg.batchSize,
		ChunkSize:      cfg.chunkSize,
		MetricInterval: cfg.metricInterval,
		Timeouts: migration.Timeouts{
			Connect: cfg.connectTimeout,
			Read:    cfg.readTimeout,
			Write:   cfg.writeTimeout,
		},
		Filter: cfg.keyFilter,
		Logger: &engineLogger{logger: cfg.logger},
	}
	if cfg.metrics != nil {
		engineCfg.Metrics = &metricsAdapter{metrics: cfg.metrics}
	}

	return &Migrator{
		config: cfg,
		engine: migration.NewEngine(engineCfg),
	}, nil
}

// Validate runs the pre-flight check without starting the migration: both
// sides must answer a liveness probe, the target must accept authentication,
// and source and target must not be the same server. Failures carry a kind
// distinguishable with errors.Is (ErrConnRefused, ErrAuthFailed, ErrTimeout,
// ErrHostNotFound, ErrConnReset, ErrSameInstance).
//
// Since: v1.0.0
func (m *Migrator) Validate(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	return m.engine.Validate(ctx)
}

// Start begins the migration: validation, subscriber activation, then the
// bulk scan. The subscriber is fully subscribed before the first scanner
// page so writes during the sweep are not lost.
//
// Start returns once the sweep is underway; observe completion through the
// Events channel or OnScanComplete. A second Start on an active migrator
// fails with ErrAlreadyRunning.
//
// Example:
//
//	if err := m.Start(context.Background()); err != nil {
//		log.Fatal(err)
//	}
//
// Since: v1.0.0
func (m *Migrator) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	if err := m.engine.Start(ctx); err != nil {
		return err
	}

	m.started = true
	return nil
}

// Stop ends the migration. No further writes reach the target once Stop
// returns: the subscriber is disabled and unsubscribed, the pending set is
// cleared, and all three sessions close. Stop is best-effort and idempotent.
//
// Since: v1.0.0
func (m *Migrator) Stop() error {
	return m.engine.Stop()
}

// PauseSync freezes the effects of realtime sync without tearing down the
// keyspace subscription. Events arriving during the pause are dropped, not
// buffered; after ResumeSync only new changes are applied.
//
// Since: v1.0.0
func (m *Migrator) PauseSync() error {
	return m.engine.PauseSync()
}

// ResumeSync re-enables realtime sync after PauseSync
//
// Since: v1.0.0
func (m *Migrator) ResumeSync() error {
	return m.engine.ResumeSync()
}

// Stats returns a snapshot of the migration counters
//
// Example:
//
//	stats := m.Stats()
//	fmt.Printf("%d/%d keys (%.1f%%)\n", stats.Processed, stats.Total, stats.Percent)
//
// Since: v1.0.0
func (m *Migrator) Stats() MigrationStats {
	snap := m.engine.Stats()

	return MigrationStats{
		Processed: snap.Processed,
		Total:     snap.Total,
		Bytes:     snap.Bytes,
		Percent:   snap.Percent,
		Rate:      snap.Rate,
		StartTime: snap.StartTime,
		Status:    snap.Status.String(),
		Errors:    snap.Errors,
	}
}

// Events returns the migrator's event channel carrying progress,
// keyProcessed, scanComplete, metrics, syncPaused, syncResumed, stopped and
// error events. Emission never blocks replication; when the consumer lags
// behind the buffer, events are dropped.
//
// Example:
//
//	for ev := range m.Events() {
//		if ev.Kind == migration.EventScanComplete {
//			fmt.Println("bulk sweep finished")
//		}
//	}
//
// Since: v1.0.0
func (m *Migrator) Events() <-chan migration.Event {
	return m.engine.Events()
}

// OnScanComplete registers a callback fired once when the bulk sweep
// finishes. If the sweep is already complete, the callback fires
// immediately.
//
// Since: v1.0.0
func (m *Migrator) OnScanComplete(fn func()) {
	m.engine.OnScanComplete(fn)
}

// State returns the current lifecycle state
//
// Since: v1.0.0
func (m *Migrator) State() migration.State {
	return m.engine.State()
}

// Close shuts the migrator down and releases all sessions. It should be
// called when the migrator is no longer needed; a closed migrator cannot be
// restarted.
//
// Example:
//
//	defer m.Close()
//
// Since: v1.0.0
func (m *Migrator) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	return m.engine.Stop()
}

// GetInfo returns detailed information about the migrator
//
// Since: v1.0.0
func (m *Migrator) GetInfo() map[string]interface{} {
	stats := m.Stats()

	return map[string]interface{}{
		"migration_id": m.config.migrationID,
		"state":        m.State().String(),
		"status":       stats.Status,
		"processed":    stats.Processed,
		"total":        stats.Total,
		"bytes":        stats.Bytes,
		"version":      VersionInfo(),
	}
}
