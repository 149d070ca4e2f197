package migration

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Scanner drives the bulk snapshot phase: a cursor-paginated sweep of the
// source keyspace, handing each page to the replicator in bounded-concurrency
// chunks. New keys appearing during the sweep are covered by the subscriber,
// which is live before the first page is requested.
type Scanner struct {
	source    *redis.Client
	replicate func(ctx context.Context, key string)
	stats     *Stats

	batchSize int64
	chunkSize int

	running func() bool
	logger  Logger
	metrics MetricsCollector
}

// NewScanner creates a scanner. running is consulted at the top of every
// page so a stop during the sweep ends it promptly; the cursor never
// persists.
func NewScanner(source *redis.Client, replicate func(ctx context.Context, key string), stats *Stats,
	batchSize int64, chunkSize int, running func() bool, logger Logger, metrics MetricsCollector) *Scanner {

	if logger == nil {
		logger = &defaultLogger{}
	}
	return &Scanner{
		source:    source,
		replicate: replicate,
		stats:     stats,
		batchSize: batchSize,
		chunkSize: chunkSize,
		running:   running,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run performs the full sweep. It returns nil when the cursor comes back to
// zero or the lifecycle stops the scan, and an error only on source I/O
// failure, which is fatal for the migration.
func (s *Scanner) Run(ctx context.Context) error {
	start := time.Now()

	total, err := s.source.DBSize(ctx).Result()
	if err != nil {
		return &ConnectionError{Addr: s.source.Options().Addr, Err: classifyError(err)}
	}
	s.stats.SetTotal(total)
	s.logger.Info("Bulk scan starting", "keys", total)

	var cursor uint64
	for {
		if ctx.Err() != nil || !s.running() {
			s.logger.Info("Bulk scan interrupted")
			return nil
		}

		keys, next, err := s.source.Scan(ctx, cursor, "*", s.batchSize).Result()
		if err != nil {
			return &ConnectionError{Addr: s.source.Options().Addr, Err: classifyError(err)}
		}

		s.replicatePage(ctx, keys)

		// The source keeps accepting writes during the sweep, so the total
		// is a moving target; re-read it at the end of every page.
		if t, err := s.source.DBSize(ctx).Result(); err == nil {
			s.stats.SetTotal(t)
			if s.metrics != nil {
				s.metrics.RecordKeyCount(t)
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	if s.metrics != nil {
		s.metrics.RecordScanDuration(time.Since(start))
	}
	s.logger.Info("Bulk scan finished", "duration", time.Since(start))
	return nil
}

// replicatePage copies one page of keys with at most chunkSize in flight
func (s *Scanner) replicatePage(ctx context.Context, keys []string) {
	sem := make(chan struct{}, s.chunkSize)
	var wg sync.WaitGroup

	for _, key := range keys {
		if ctx.Err() != nil || !s.running() {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(k string) {
			defer wg.Done()
			defer func() { <-sem }()
			s.replicate(ctx, k)
		}(key)
	}
	wg.Wait()
}
