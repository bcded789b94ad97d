// Package engine executes compiled testcase graphs: it drives the
// execution plan over the socket data bus, resolves control-flow regions
// and assembles verdicts.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/unicon/grader-go/internal/bus"
	"github.com/unicon/grader-go/internal/executor"
	"github.com/unicon/grader-go/internal/graph"
	"github.com/unicon/grader-go/internal/metrics"
	"github.com/unicon/grader-go/internal/plan"
	"github.com/unicon/grader-go/internal/sandbox"
	"github.com/unicon/grader-go/pkg/types"
)

// Policy selects how testcase verdicts aggregate into the job verdict.
type Policy string

const (
	// PolicyAll passes the job only if every testcase passes.
	PolicyAll Policy = "all"
	// PolicyAny passes the job if at least one testcase passes.
	PolicyAny Policy = "any"
)

// Config tunes engine behaviour.
type Config struct {
	// Policy is the job-level verdict aggregation (default PolicyAll).
	Policy Policy

	// MaxIterations caps LOOP regions that do not set their own bound.
	// Zero selects graph.DefaultMaxIterations.
	MaxIterations int
}

// Engine executes compiled graphs against a sandbox runner. It is safe
// for concurrent use; each execution carries its own frames and registry.
type Engine struct {
	runner   sandbox.Runner
	exprs    *ExprEvaluator
	logger   *slog.Logger
	policy   Policy
	maxIters int
	tracer   trace.Tracer
}

// New creates an engine.
func New(runner sandbox.Runner, cfg *Config, logger *slog.Logger) *Engine {
	if cfg == nil {
		cfg = &Config{}
	}
	policy := cfg.Policy
	if policy == "" {
		policy = PolicyAll
	}
	maxIters := cfg.MaxIterations
	if maxIters <= 0 {
		maxIters = graph.DefaultMaxIterations
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		runner:   runner,
		exprs:    NewExprEvaluator(),
		logger:   logger,
		policy:   policy,
		maxIters: maxIters,
		tracer:   otel.Tracer("grader-engine"),
	}
}

// execState accumulates per-execution results across nested frames.
type execState struct {
	graph    *graph.Graph
	registry *executor.Registry
	logger   *slog.Logger

	// outputs holds the echoed socket values of each OUTPUT node.
	outputs map[int]executor.Outputs

	// failure is the first grading failure; it terminates the pass.
	failure *executor.Failure
}

// errFailed signals a grading failure recorded in execState.failure. It
// unwinds the plan walk without being an infrastructure error.
var errFailed = errors.New("execution failed")

// ExecuteGraph runs one compiled testcase graph to a verdict. A non-nil
// error is an infrastructure fault; grading failures yield a verdict
// with Passed=false and a Failure record.
func (e *Engine) ExecuteGraph(ctx context.Context, testcaseID string, g *graph.Graph, env types.ComputeContext, userInputs map[string]interface{}) (*types.Verdict, error) {
	ctx, span := e.tracer.Start(ctx, "engine.ExecuteGraph",
		trace.WithAttributes(attribute.String("testcase.id", testcaseID)))
	defer span.End()

	p, err := plan.Build(g)
	if err != nil {
		return nil, fmt.Errorf("plan testcase %s: %w", testcaseID, err)
	}

	st := &execState{
		graph:    g,
		registry: executor.NewRegistry(e.runner, env, userInputs),
		logger:   e.logger.With(slog.String("testcase_id", testcaseID)),
		outputs:  make(map[int]executor.Outputs),
	}

	frame := bus.NewFrame(nil)
	if err := e.runUnits(ctx, st, p.Units, frame); err != nil {
		if !errors.Is(err, errFailed) {
			return nil, err
		}
	}

	verdict := e.buildVerdict(testcaseID, st)
	if verdict.Passed {
		metrics.VerdictsTotal.WithLabelValues("passed").Inc()
	} else {
		metrics.VerdictsTotal.WithLabelValues("failed").Inc()
	}
	return verdict, nil
}

func (e *Engine) runUnits(ctx context.Context, st *execState, units []plan.Unit, frame *bus.Frame) error {
	for _, u := range units {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("execution cancelled: %w", err)
		}
		var err error
		switch u.Node.Kind {
		case types.NodeKindIfElse:
			err = e.runIfElse(ctx, st, u, frame)
		case types.NodeKindLoop:
			err = e.runLoop(ctx, st, u, frame)
		default:
			err = e.runNode(ctx, st, u.Node, frame)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// readInputs resolves a node's input sockets against the frame via their
// incoming edges. Sockets fed by skipped producers stay absent.
func (st *execState) readInputs(n *graph.Node, frame *bus.Frame) (executor.Inputs, bool) {
	in := make(executor.Inputs, len(n.Inputs))
	complete := true
	for _, s := range n.Inputs {
		edge := st.graph.IncomingEdge(n.Addr(s.ID))
		v, ok := frame.Read(edge.From)
		if !ok {
			complete = false
			continue
		}
		if edge.Coerce {
			v = coerceValue(v, s.Type)
		}
		in[s.ID] = v
	}
	return in, complete
}

func (e *Engine) runNode(ctx context.Context, st *execState, n *graph.Node, frame *bus.Frame) error {
	in, complete := st.readInputs(n, frame)

	// Skip-on-unbound: a node whose inputs were never produced (its
	// producer sat on an untaken branch) is skipped, and the skip
	// propagates. OUTPUT nodes are the exception: they must fail loudly.
	if !complete && n.Kind != types.NodeKindOutput {
		metrics.NodesTotal.WithLabelValues(string(n.Kind), "skipped").Inc()
		st.logger.Debug("node skipped, inputs unbound", slog.Int("node_id", n.ID))
		return nil
	}

	out, err := st.registry.For(n.Kind).Execute(ctx, n, in)
	if err != nil {
		var failure *executor.Failure
		if errors.As(err, &failure) {
			metrics.NodesTotal.WithLabelValues(string(n.Kind), "failed").Inc()
			st.failure = failure
			st.logger.Info("node failed",
				slog.Int("node_id", n.ID),
				slog.String("kind", string(failure.Kind)),
				slog.String("message", failure.Message))
			return errFailed
		}
		return err
	}
	metrics.NodesTotal.WithLabelValues(string(n.Kind), "ok").Inc()

	if n.Kind == types.NodeKindOutput {
		st.outputs[n.ID] = out
		return nil
	}
	for _, s := range n.Outputs {
		if err := frame.Write(n.Addr(s.ID), out[s.ID]); err != nil {
			return fmt.Errorf("node %d: %w", n.ID, err)
		}
	}
	return nil
}

func (e *Engine) runIfElse(ctx context.Context, st *execState, u plan.Unit, frame *bus.Frame) error {
	n := u.Node
	in, complete := st.readInputs(n, frame)
	if !complete {
		metrics.NodesTotal.WithLabelValues(string(n.Kind), "skipped").Inc()
		return nil
	}

	cond, ok := in[n.Inputs[0].ID].(bool)
	if !ok {
		st.failure = &executor.Failure{
			NodeID:  n.ID,
			Kind:    types.FailureTypeMismatch,
			Message: fmt.Sprintf("condition is %T, expected bool", in[n.Inputs[0].ID]),
		}
		metrics.NodesTotal.WithLabelValues(string(n.Kind), "failed").Inc()
		return errFailed
	}
	metrics.NodesTotal.WithLabelValues(string(n.Kind), "ok").Inc()

	// Exactly one branch runs; the other branch's sockets stay unbound
	// and its consumers skip.
	branch := u.Else
	if cond {
		branch = u.Then
	}
	return e.runUnits(ctx, st, branch, frame)
}

func (e *Engine) runLoop(ctx context.Context, st *execState, u plan.Unit, frame *bus.Frame) error {
	n := u.Node
	cfg := n.Loop

	in, complete := st.readInputs(n, frame)
	if !complete {
		metrics.NodesTotal.WithLabelValues(string(n.Kind), "skipped").Inc()
		return nil
	}

	// Input sockets seed the same-position output sockets: the loop's
	// outputs carry the evolving state the body reads each iteration.
	state := make(map[string]interface{}, len(n.Outputs))
	for i, out := range n.Outputs {
		state[out.ID] = in[n.Inputs[i].ID]
	}

	bound := cfg.MaxIterations
	if bound == 0 {
		bound = e.maxIters
	}

	for iter := 0; ; iter++ {
		more, err := e.loopContinues(st, n, state, iter)
		if err != nil {
			return err
		}
		if !more {
			break
		}
		if iter >= bound {
			st.failure = &executor.Failure{
				NodeID:  n.ID,
				Kind:    types.FailureLoopBound,
				Message: fmt.Sprintf("loop exceeded %d iterations", bound),
			}
			metrics.NodesTotal.WithLabelValues(string(n.Kind), "failed").Inc()
			return errFailed
		}

		child := bus.NewFrame(frame)
		for id, v := range state {
			if err := child.Write(n.Addr(id), v); err != nil {
				return fmt.Errorf("loop %d: %w", n.ID, err)
			}
		}
		if err := e.runUnits(ctx, st, u.Body, child); err != nil {
			return err
		}

		// Carried bindings advance the state; a binding whose producer
		// was skipped this iteration keeps its previous value.
		for _, c := range cfg.Carried {
			addr := graph.SocketAddr{Node: c.From.NodeID, Socket: c.From.SocketID}
			if v, ok := child.Read(addr); ok {
				state[c.To] = v
			}
		}
	}
	metrics.NodesTotal.WithLabelValues(string(n.Kind), "ok").Inc()

	// Publish the final state once; downstream consumers see the values
	// after the last iteration.
	for _, out := range n.Outputs {
		if err := frame.Write(n.Addr(out.ID), state[out.ID]); err != nil {
			return fmt.Errorf("loop %d: %w", n.ID, err)
		}
	}
	return nil
}

// loopContinues decides whether another iteration runs, from the fixed
// count or the predicate over the carried state.
func (e *Engine) loopContinues(st *execState, n *graph.Node, state map[string]interface{}, iter int) (bool, error) {
	cfg := n.Loop
	if cfg.Count != nil {
		return iter < *cfg.Count, nil
	}

	env := make(map[string]interface{}, len(state)+1)
	for k, v := range state {
		env[k] = v
	}
	env["iteration"] = iter

	more, err := e.exprs.EvaluateBool(cfg.Predicate, env)
	if err != nil {
		st.failure = &executor.Failure{
			NodeID:  n.ID,
			Kind:    types.FailureTypeMismatch,
			Message: fmt.Sprintf("loop predicate: %v", err),
		}
		metrics.NodesTotal.WithLabelValues(string(n.Kind), "failed").Inc()
		return false, errFailed
	}
	return more, nil
}

// coerceValue applies a declared edge coercion to the consumer's type.
// Validation has already confirmed the coercion is legal.
func coerceValue(v interface{}, to types.SocketType) interface{} {
	switch to {
	case types.SocketTypeFloat:
		if f, ok := executor.ToFloat(v); ok {
			return f
		}
	case types.SocketTypeString:
		return executor.Stringify(v)
	}
	return v
}

// timeNow is stubbed in tests.
var timeNow = time.Now
