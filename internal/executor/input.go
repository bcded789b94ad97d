package executor

import (
	"context"
	"fmt"

	"github.com/unicon/grader-go/internal/graph"
)

// InputExecutor sources values into the pipeline: authored literals from
// the definition, or submitter-supplied bindings for the user INPUT node.
type InputExecutor struct {
	// User maps socket IDs of the user INPUT node to the values attached
	// at execution time.
	User map[string]interface{}
}

func (e *InputExecutor) Execute(_ context.Context, n *graph.Node, _ Inputs) (Outputs, error) {
	out := make(Outputs, len(n.Outputs))
	for _, s := range n.Outputs {
		if n.IsUser {
			v, ok := e.User[s.ID]
			if !ok {
				// Validated upstream against the required-inputs list;
				// reaching here is a wiring bug, not a grading failure.
				return nil, fmt.Errorf("no submitted value for input socket %s", n.Addr(s.ID))
			}
			out[s.ID] = v
			continue
		}
		out[s.ID] = s.Data
	}
	return out, nil
}
