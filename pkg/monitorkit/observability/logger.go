// Package observability provides structured logging, metrics, and
// tracing for the monitor core.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds monitor context to a logger.
// Returns a new logger with thread_id and monitor_id fields.
func EnrichLogger(logger *slog.Logger, threadID, monitorID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("thread_id", threadID),
		slog.String("monitor_id", monitorID),
	)
}

// LogAcquired logs a successful acquisition.
func LogAcquired(logger *slog.Logger, threadID, monitorID string, holdCount int, waitedMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("monitor acquired",
		slog.String("thread_id", threadID),
		slog.String("monitor_id", monitorID),
		slog.Int("hold_count", holdCount),
		slog.Float64("waited_ms", waitedMs),
	)
}

// LogReleased logs a release that left the monitor free.
func LogReleased(logger *slog.Logger, threadID, monitorID string) {
	if logger == nil {
		return
	}
	logger.Debug("monitor released",
		slog.String("thread_id", threadID),
		slog.String("monitor_id", monitorID),
	)
}

// LogWaitOutcome logs a completed wait with its outcome
// ("notified", "timed_out", or "interrupted").
func LogWaitOutcome(logger *slog.Logger, threadID, monitorID, outcome string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("wait completed",
		slog.String("thread_id", threadID),
		slog.String("monitor_id", monitorID),
		slog.String("outcome", outcome),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogOwnershipViolation logs a rejected operation by a non-owner.
func LogOwnershipViolation(logger *slog.Logger, threadID, monitorID, op string) {
	if logger == nil {
		return
	}
	logger.Warn("ownership violation",
		slog.String("thread_id", threadID),
		slog.String("monitor_id", monitorID),
		slog.String("operation", op),
	)
}

// LogDeadlock logs a detected wait-for cycle.
func LogDeadlock(logger *slog.Logger, cycle []string) {
	if logger == nil {
		return
	}
	logger.Error("deadlock detected",
		slog.Any("cycle", cycle),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in
// milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
