package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/unicon/grader-go/internal/graph"
	"github.com/unicon/grader-go/internal/metrics"
	"github.com/unicon/grader-go/pkg/types"
)

// CompileTask validates every testcase graph of a task. It returns the
// compiled graphs in testcase order, failing on the first invalid one.
func CompileTask(task *types.TaskDefinition) ([]*graph.Graph, error) {
	testcases := sortedTestcases(task)
	graphs := make([]*graph.Graph, len(testcases))
	for i := range testcases {
		g, err := graph.Compile(&testcases[i].GraphDefinition)
		if err != nil {
			return nil, fmt.Errorf("testcase %s: %w", testcases[i].ID, err)
		}
		graphs[i] = g
	}
	return graphs, nil
}

// ExecuteTask grades one submission: it attaches the submitted inputs,
// compiles every testcase graph and executes them concurrently. A non-nil
// error is an infrastructure fault or an invalid definition; grading
// outcomes, including failures, land in the JobVerdict.
func (e *Engine) ExecuteTask(ctx context.Context, executionID string, task *types.TaskDefinition, submitted map[string]interface{}) (*types.JobVerdict, error) {
	ctx, span := e.tracer.Start(ctx, "engine.ExecuteTask",
		trace.WithAttributes(
			attribute.String("execution.id", executionID),
			attribute.String("task.id", task.ID)))
	defer span.End()

	userInputs, err := attachUserInputs(task, submitted)
	if err != nil {
		return nil, err
	}

	testcases := sortedTestcases(task)
	graphs, err := CompileTask(task)
	if err != nil {
		return nil, err
	}

	metrics.ExecutionsActive.Inc()
	defer metrics.ExecutionsActive.Dec()
	start := time.Now()

	// Testcases are independent; each carries its own frames and
	// registry, so they grade in parallel.
	verdicts := make([]*types.Verdict, len(testcases))
	errs := make([]error, len(testcases))
	var wg sync.WaitGroup
	for i := range testcases {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			verdicts[i], errs[i] = e.ExecuteGraph(ctx, testcases[i].ID, graphs[i], task.Environment, userInputs)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			metrics.ExecutionDuration.WithLabelValues("failed").Observe(time.Since(start).Seconds())
			return nil, fmt.Errorf("testcase %s: %w", testcases[i].ID, err)
		}
	}

	job := &types.JobVerdict{
		ExecutionID: executionID,
		TaskID:      task.ID,
		Verdicts:    verdicts,
		EmittedAt:   timeNow().UTC(),
	}
	job.Passed = e.aggregate(verdicts)

	metrics.ExecutionDuration.WithLabelValues("completed").Observe(time.Since(start).Seconds())
	e.logger.Info("task graded",
		slog.String("execution_id", executionID),
		slog.String("task_id", task.ID),
		slog.Bool("passed", job.Passed),
		slog.Int("testcases", len(verdicts)),
		slog.Duration("duration", time.Since(start)))
	return job, nil
}

func (e *Engine) aggregate(verdicts []*types.Verdict) bool {
	if len(verdicts) == 0 {
		return false
	}
	switch e.policy {
	case PolicyAny:
		for _, v := range verdicts {
			if v.Passed {
				return true
			}
		}
		return false
	default:
		for _, v := range verdicts {
			if !v.Passed {
				return false
			}
		}
		return true
	}
}

// attachUserInputs merges submitted values over the task's declared
// required inputs, keyed by socket ID on the user INPUT node. Every
// required input must end up with a value.
func attachUserInputs(task *types.TaskDefinition, submitted map[string]interface{}) (map[string]interface{}, error) {
	bindings := make(map[string]interface{}, len(task.RequiredInputs))
	for _, ri := range task.RequiredInputs {
		if v, ok := submitted[ri.ID]; ok {
			bindings[ri.ID] = v
			continue
		}
		if ri.Data != nil {
			bindings[ri.ID] = ri.Data
			continue
		}
		return nil, fmt.Errorf("required input %q has no value", ri.ID)
	}
	return bindings, nil
}

func sortedTestcases(task *types.TaskDefinition) []types.TestcaseDefinition {
	testcases := append([]types.TestcaseDefinition(nil), task.Testcases...)
	sort.SliceStable(testcases, func(i, j int) bool {
		return testcases[i].OrderIndex < testcases[j].OrderIndex
	})
	return testcases
}
