package executor

import (
	"context"

	"github.com/unicon/grader-go/internal/graph"
	"github.com/unicon/grader-go/pkg/types"
)

// OutputExecutor terminates the pipeline. Every input socket must be
// bound: a skipped producer upstream of an OUTPUT is a grading failure,
// not a silent omission. The bound values are echoed back for the verdict
// assembly.
type OutputExecutor struct{}

func (e *OutputExecutor) Execute(_ context.Context, n *graph.Node, in Inputs) (Outputs, error) {
	out := make(Outputs, len(n.Inputs))
	for _, s := range n.Inputs {
		v, ok := in[s.ID]
		if !ok {
			return nil, failf(n.ID, types.FailureUnboundOutput,
				"output socket %s was never bound", s.ID)
		}
		out[s.ID] = v
	}
	return out, nil
}
