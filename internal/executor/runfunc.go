package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/unicon/grader-go/internal/graph"
	"github.com/unicon/grader-go/internal/sandbox"
	"github.com/unicon/grader-go/pkg/types"
)

// RunFunctionExecutor delegates to the sandbox collaborator: it invokes
// one function from the submitted file under the resource limits of the
// node or, failing that, the task environment.
type RunFunctionExecutor struct {
	Runner sandbox.Runner
	Env    types.ComputeContext
}

func (e *RunFunctionExecutor) Execute(ctx context.Context, n *graph.Node, in Inputs) (Outputs, error) {
	cfg := n.RunFunction

	var entry *types.File
	args := make([]interface{}, 0, len(n.Inputs))
	for _, s := range n.Inputs {
		if s.Type == types.SocketTypeFile {
			f, ok := types.FileFromValue(in[s.ID])
			if !ok {
				return nil, failf(n.ID, types.FailureTypeMismatch,
					"socket %s does not carry a file", s.ID)
			}
			entry = f
			continue
		}
		args = append(args, in[s.ID])
	}
	if entry == nil {
		return nil, fmt.Errorf("node %d has no file input bound", n.ID)
	}
	if err := entry.Validate(); err != nil {
		return nil, failf(n.ID, types.FailureRuntimeError, "rejected file: %v", err)
	}

	timeLimit := e.Env.TimeLimitSecs
	if cfg.TimeLimitSecs > 0 {
		timeLimit = cfg.TimeLimitSecs
	}
	memLimit := e.Env.MemoryLimitMB
	if cfg.MemoryLimitMB > 0 {
		memLimit = cfg.MemoryLimitMB
	}

	req := &types.RunnerRequest{
		ID:            uuid.NewString(),
		Function:      cfg.FunctionName,
		Args:          args,
		EntryFile:     entry.Name,
		Files:         []types.File{*entry},
		Language:      e.Env.Language,
		TimeLimitSecs: timeLimit,
		MemoryLimitMB: memLimit,
	}

	resp, err := e.Runner.Run(ctx, req)
	if err != nil {
		if errors.Is(err, sandbox.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, failf(n.ID, types.FailureTimeout,
				"sandbox did not answer within %ds", timeLimit)
		}
		// ErrUnavailable and everything else is an infrastructure fault.
		return nil, fmt.Errorf("sandbox call for node %d: %w", n.ID, err)
	}

	switch resp.Status {
	case types.RunnerStatusOK:
		return Outputs{n.Outputs[0].ID: resp.Value}, nil
	case types.RunnerStatusTLE:
		return nil, failf(n.ID, types.FailureTimeout,
			"function %s exceeded the %ds time limit", cfg.FunctionName, timeLimit)
	case types.RunnerStatusMLE:
		return nil, failf(n.ID, types.FailureResourceExceeded,
			"function %s exceeded the %dMB memory limit", cfg.FunctionName, memLimit)
	case types.RunnerStatusRTE:
		return nil, failf(n.ID, types.FailureRuntimeError,
			"function %s raised: %s", cfg.FunctionName, resp.Error)
	default:
		return nil, fmt.Errorf("sandbox returned unknown status %q for node %d", resp.Status, n.ID)
	}
}
