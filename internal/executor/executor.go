// Package executor implements the behaviour of individual node kinds.
// Control-flow kinds (IF_ELSE, LOOP) are resolved by the engine and have
// no executor here.
package executor

import (
	"context"
	"fmt"

	"github.com/unicon/grader-go/internal/graph"
	"github.com/unicon/grader-go/internal/sandbox"
	"github.com/unicon/grader-go/pkg/types"
)

// Inputs maps input socket IDs to the values read off the data bus.
// Sockets left unbound by skipped producers are absent from the map.
type Inputs map[string]interface{}

// Outputs maps output socket IDs to produced values.
type Outputs map[string]interface{}

// Failure is a grading failure attributable to a node. It terminates the
// testcase with a verdict; it is not an infrastructure error.
type Failure struct {
	NodeID  int
	Kind    types.FailureKind
	Message string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("node %d: %s: %s", f.NodeID, f.Kind, f.Message)
}

// Record converts the failure to its wire form.
func (f *Failure) Record() *types.NodeFailure {
	return &types.NodeFailure{NodeID: f.NodeID, Kind: f.Kind, Message: f.Message}
}

func failf(nodeID int, kind types.FailureKind, format string, args ...interface{}) *Failure {
	return &Failure{NodeID: nodeID, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Executor evaluates one node kind. A returned *Failure fails the
// testcase; any other error is an infrastructure fault that fails the
// whole execution.
type Executor interface {
	Execute(ctx context.Context, n *graph.Node, in Inputs) (Outputs, error)
}

// Registry holds the executors for one execution. It is rebuilt per
// execution because the INPUT executor carries submitter bindings.
type Registry struct {
	byKind map[types.NodeKind]Executor
}

// NewRegistry wires the non-control-flow executors.
func NewRegistry(runner sandbox.Runner, env types.ComputeContext, userInputs map[string]interface{}) *Registry {
	return &Registry{byKind: map[types.NodeKind]Executor{
		types.NodeKindInput:       &InputExecutor{User: userInputs},
		types.NodeKindOutput:      &OutputExecutor{},
		types.NodeKindStringMatch: &StringMatchExecutor{},
		types.NodeKindCompare:     &CompareExecutor{},
		types.NodeKindRunFunction: &RunFunctionExecutor{Runner: runner, Env: env},
	}}
}

// For returns the executor for a node kind, or nil for control-flow kinds.
func (r *Registry) For(kind types.NodeKind) Executor {
	return r.byKind[kind]
}
