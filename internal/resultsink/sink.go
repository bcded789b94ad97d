// Package resultsink delivers finished job verdicts to downstream
// consumers (the submission service, notification fan-out).
package resultsink

import (
	"context"
	"log/slog"

	"github.com/unicon/grader-go/pkg/types"
)

// Sink receives each finished job verdict exactly once. Publishing is
// best-effort: a sink error is logged by the caller but does not fail
// the execution.
type Sink interface {
	Publish(ctx context.Context, verdict *types.JobVerdict) error
	Close() error
}

// LogSink writes verdicts to the structured log. It is the default when
// no broker is configured.
type LogSink struct {
	Logger *slog.Logger
}

func (s *LogSink) Publish(_ context.Context, verdict *types.JobVerdict) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("verdict emitted",
		slog.String("execution_id", verdict.ExecutionID),
		slog.String("task_id", verdict.TaskID),
		slog.Bool("passed", verdict.Passed),
		slog.Int("testcases", len(verdict.Verdicts)))
	return nil
}

func (s *LogSink) Close() error { return nil }
