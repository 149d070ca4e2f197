package migration

import "time"

// Logger interface for migration logging
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// MetricsCollector interface for migration metrics
type MetricsCollector interface {
	RecordScanDuration(duration time.Duration)
	RecordKeyReplicated(kind string, duration time.Duration)
	RecordBytesCopied(bytes int64)
	RecordKeyCount(count int64)
	RecordQueueDepth(depth int64)
	RecordError(errorType string)
}

// defaultLogger is a silent logger used when none is configured
type defaultLogger struct{}

func (l *defaultLogger) Debug(msg string, fields ...interface{}) {}

func (l *defaultLogger) Info(msg string, fields ...interface{}) {}

func (l *defaultLogger) Error(msg string, fields ...interface{}) {}
