package migration

import (
	"sync"
	"time"
)

// Status describes the overall migration outcome as reported in metric
// snapshots and stats
type Status int

const (
	StatusRunning Status = iota
	StatusCompleted
	StatusFailed
	StatusStopped
)

// String returns the status name
func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "Running"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// maxRecordedErrors bounds the error list carried in snapshots
const maxRecordedErrors = 50

// Stats tracks migration counters. Processed is incremented only by the
// replicator; Total comes from the source's DBSIZE and is re-read while the
// source keeps accepting writes.
type Stats struct {
	mu        sync.RWMutex
	processed int64
	total     int64
	bytes     int64
	startTime time.Time
	status    Status
	errors    []string
	truncated int64 // errors dropped beyond maxRecordedErrors
}

// StatsSnapshot is a consistent copy of the counters
type StatsSnapshot struct {
	Processed int64
	Total     int64
	Bytes     int64
	Percent   float64
	Rate      float64
	StartTime time.Time
	Status    Status
	Errors    []string
}

// NewStats creates a zeroed counter set
func NewStats() *Stats {
	return &Stats{status: StatusStopped}
}

// Begin resets all counters and marks the migration running
func (s *Stats) Begin() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.processed = 0
	s.total = 0
	s.bytes = 0
	s.startTime = time.Now()
	s.status = StatusRunning
	s.errors = nil
	s.truncated = 0
}

// AddProcessed increments the processed-keys counter
func (s *Stats) AddProcessed(n int64) {
	s.mu.Lock()
	s.processed += n
	s.mu.Unlock()
}

// AddBytes adds to the bytes-copied counter
func (s *Stats) AddBytes(n int64) {
	s.mu.Lock()
	s.bytes += n
	s.mu.Unlock()
}

// SetTotal records the source's current key count
func (s *Stats) SetTotal(n int64) {
	s.mu.Lock()
	s.total = n
	s.mu.Unlock()
}

// SetStatus updates the migration status. Terminal states (Completed,
// Failed) are sticky: a later Stop does not overwrite them.
func (s *Stats) SetStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if status == StatusStopped && (s.status == StatusCompleted || s.status == StatusFailed) {
		return
	}
	s.status = status
}

// Status returns the current status
func (s *Stats) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// RecordError appends an error to the bounded error list
func (s *Stats) RecordError(err error) {
	if err == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.errors) >= maxRecordedErrors {
		s.truncated++
		return
	}
	s.errors = append(s.errors, err.Error())
}

// Progress returns the current progress view. Processed is clamped to Total
// so observers never see more than 100%, even while the source's key count
// is a moving target.
func (s *Stats) Progress() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progressLocked()
}

func (s *Stats) progressLocked() Progress {
	processed := s.processed
	total := s.total
	if total > 0 && processed > total {
		processed = total
	}

	percent := 100.0
	if total > 0 {
		percent = 100.0 * float64(processed) / float64(total)
		if percent > 100.0 {
			percent = 100.0
		}
	}

	rate := 0.0
	if !s.startTime.IsZero() {
		elapsed := time.Since(s.startTime).Seconds()
		if elapsed > 0 {
			rate = float64(s.processed) / elapsed
		}
	}

	return Progress{
		Processed: processed,
		Total:     total,
		Percent:   percent,
		Rate:      rate,
		Bytes:     s.bytes,
	}
}

// Snapshot returns a full copy of the counters and error list
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := s.progressLocked()
	errs := make([]string, len(s.errors))
	copy(errs, s.errors)

	return StatsSnapshot{
		Processed: p.Processed,
		Total:     p.Total,
		Bytes:     p.Bytes,
		Percent:   p.Percent,
		Rate:      p.Rate,
		StartTime: s.startTime,
		Status:    s.status,
		Errors:    errs,
	}
}

// MetricSnapshot builds the periodic metrics event payload
func (s *Stats) MetricSnapshot() MetricSnapshot {
	snap := s.Snapshot()
	return MetricSnapshot{
		Progress: Progress{
			Processed: snap.Processed,
			Total:     snap.Total,
			Percent:   snap.Percent,
			Rate:      snap.Rate,
			Bytes:     snap.Bytes,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Status:    snap.Status,
		Errors:    snap.Errors,
	}
}
