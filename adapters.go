package redismigrate

import (
	"time"
)

// engineLogger adapts our Logger interface to migration.Logger
type engineLogger struct {
	logger Logger
}

func (el *engineLogger) Debug(msg string, fields ...interface{}) {
	el.logger.Debug(msg, convertFields(fields...)...)
}

func (el *engineLogger) Info(msg string, fields ...interface{}) {
	el.logger.Info(msg, convertFields(fields...)...)
}

func (el *engineLogger) Error(msg string, fields ...interface{}) {
	el.logger.Error(msg, convertFields(fields...)...)
}

func convertFields(fields ...interface{}) []Field {
	result := make([]Field, 0, len(fields)/2)
	for i := 0; i < len(fields)-1; i += 2 {
		if key, ok := fields[i].(string); ok {
			result = append(result, Field{
				Key:   key,
				Value: fields[i+1],
			})
		}
	}
	return result
}

// metricsAdapter adapts our MetricsCollector to migration.MetricsCollector
type metricsAdapter struct {
	metrics MetricsCollector
}

func (ma *metricsAdapter) RecordScanDuration(duration time.Duration) {
	ma.metrics.RecordScanDuration(duration)
}

func (ma *metricsAdapter) RecordKeyReplicated(kind string, duration time.Duration) {
	ma.metrics.RecordKeyReplicated(kind, duration)
}

func (ma *metricsAdapter) RecordBytesCopied(bytes int64) {
	ma.metrics.RecordBytesCopied(bytes)
}

func (ma *metricsAdapter) RecordKeyCount(count int64) {
	ma.metrics.RecordKeyCount(count)
}

func (ma *metricsAdapter) RecordQueueDepth(depth int64) {
	ma.metrics.RecordQueueDepth(depth)
}

func (ma *metricsAdapter) RecordError(errorType string) {
	ma.metrics.RecordError(errorType)
}
