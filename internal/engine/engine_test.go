package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/unicon/grader-go/internal/sandbox"
	"github.com/unicon/grader-go/pkg/types"
)

func intp(i int) *int { return &i }

// mockRunner answers every invocation with a canned response, or counts
// invocations when Sequence is set.
type mockRunner struct {
	mu    sync.Mutex
	resp  *types.RunnerResponse
	err   error
	count bool
	reqs  []*types.RunnerRequest
}

func (m *mockRunner) Run(_ context.Context, req *types.RunnerRequest) (*types.RunnerResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs = append(m.reqs, req)
	if m.err != nil {
		return nil, m.err
	}
	if m.count {
		return &types.RunnerResponse{
			ID:     req.ID,
			Status: types.RunnerStatusOK,
			Value:  float64(len(m.reqs)),
		}, nil
	}
	resp := *m.resp
	resp.ID = req.ID
	return &resp, nil
}

func (m *mockRunner) Close() error { return nil }

func (m *mockRunner) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reqs)
}

func submission() map[string]interface{} {
	return map[string]interface{}{
		"name":    "main.py",
		"content": "def solve(x, y):\n    return x + y\n",
	}
}

// matchTestcase grades solve(3, 4) against the string "7": user file into
// RUN_FUNCTION, result string-matched against an authored literal.
func matchTestcase(id, expected string) types.TestcaseDefinition {
	return types.TestcaseDefinition{
		ID: id,
		GraphDefinition: types.GraphDefinition{
			Nodes: []types.NodeSpec{
				{ID: 0, Kind: types.NodeKindInput, IsUser: true, Outputs: []types.SocketSpec{
					{ID: "submission", Type: types.SocketTypeFile},
				}},
				{ID: 1, Kind: types.NodeKindInput, Outputs: []types.SocketSpec{
					{ID: "expected", Type: types.SocketTypeString, Data: expected},
					{ID: "x", Type: types.SocketTypeInt, Data: 3},
					{ID: "y", Type: types.SocketTypeInt, Data: 4},
				}},
				{ID: 2, Kind: types.NodeKindRunFunction,
					RunFunction: &types.RunFunctionConfig{FunctionName: "solve"},
					Inputs: []types.SocketSpec{
						{ID: "submission", Type: types.SocketTypeFile},
						{ID: "x", Type: types.SocketTypeInt},
						{ID: "y", Type: types.SocketTypeInt},
					},
					Outputs: []types.SocketSpec{{ID: "result", Type: types.SocketTypeAny}},
				},
				{ID: 3, Kind: types.NodeKindStringMatch,
					Inputs: []types.SocketSpec{
						{ID: "l", Type: types.SocketTypeAny},
						{ID: "r", Type: types.SocketTypeAny},
					},
					Outputs: []types.SocketSpec{{ID: "match", Type: types.SocketTypeBool}},
				},
				{ID: 4, Kind: types.NodeKindOutput, Inputs: []types.SocketSpec{
					{ID: "match", Type: types.SocketTypeBool, Public: true},
					{ID: "answer", Type: types.SocketTypeAny},
				}},
			},
			Edges: []types.EdgeSpec{
				{ID: 1, FromNodeID: 0, FromSocketID: "submission", ToNodeID: 2, ToSocketID: "submission"},
				{ID: 2, FromNodeID: 1, FromSocketID: "x", ToNodeID: 2, ToSocketID: "x"},
				{ID: 3, FromNodeID: 1, FromSocketID: "y", ToNodeID: 2, ToSocketID: "y"},
				{ID: 4, FromNodeID: 2, FromSocketID: "result", ToNodeID: 3, ToSocketID: "l"},
				{ID: 5, FromNodeID: 1, FromSocketID: "expected", ToNodeID: 3, ToSocketID: "r"},
				{ID: 6, FromNodeID: 3, FromSocketID: "match", ToNodeID: 4, ToSocketID: "match"},
				{ID: 7, FromNodeID: 2, FromSocketID: "result", ToNodeID: 4, ToSocketID: "answer"},
			},
		},
	}
}

func matchTask(testcases ...types.TestcaseDefinition) *types.TaskDefinition {
	return &types.TaskDefinition{
		ID:             "task-1",
		Environment:    types.ComputeContext{Language: types.LanguagePython, TimeLimitSecs: 10, MemoryLimitMB: 256},
		RequiredInputs: []types.RequiredInput{{ID: "submission"}},
		Testcases:      testcases,
	}
}

func TestExecuteTaskPasses(t *testing.T) {
	runner := &mockRunner{resp: &types.RunnerResponse{Status: types.RunnerStatusOK, Value: 7.0}}
	eng := New(runner, nil, nil)

	job, err := eng.ExecuteTask(context.Background(), "exec-1", matchTask(matchTestcase("tc-1", "7")),
		map[string]interface{}{"submission": submission()})
	if err != nil {
		t.Fatalf("ExecuteTask failed: %v", err)
	}
	if !job.Passed {
		t.Fatalf("job did not pass: %+v", job.Verdicts[0])
	}
	v := job.Verdicts[0]
	if v.TestcaseID != "tc-1" || !v.Passed || v.Failure != nil {
		t.Fatalf("verdict = %+v", v)
	}
	if len(v.Results) != 2 {
		t.Fatalf("results = %+v, want 2 bindings", v.Results)
	}
	if v.Results[0].Correct == nil || !*v.Results[0].Correct {
		t.Fatalf("match binding not asserted correct: %+v", v.Results[0])
	}
	if v.Results[1].Correct != nil {
		t.Fatalf("informational binding carries an assertion: %+v", v.Results[1])
	}
	if runner.reqs[0].Language != types.LanguagePython {
		t.Fatalf("language = %q", runner.reqs[0].Language)
	}
}

func TestExecuteTaskPublicProjection(t *testing.T) {
	runner := &mockRunner{resp: &types.RunnerResponse{Status: types.RunnerStatusOK, Value: 7.0}}
	eng := New(runner, nil, nil)

	job, err := eng.ExecuteTask(context.Background(), "exec-1", matchTask(matchTestcase("tc-1", "7")),
		map[string]interface{}{"submission": submission()})
	if err != nil {
		t.Fatalf("ExecuteTask failed: %v", err)
	}
	pub := job.Public()
	if len(pub.Verdicts[0].Results) != 1 || pub.Verdicts[0].Results[0].ID != "match" {
		t.Fatalf("public projection leaked private bindings: %+v", pub.Verdicts[0].Results)
	}
}

func TestRuntimeErrorVerdict(t *testing.T) {
	runner := &mockRunner{resp: &types.RunnerResponse{Status: types.RunnerStatusRTE, Error: "ZeroDivisionError: division by zero"}}
	eng := New(runner, nil, nil)

	job, err := eng.ExecuteTask(context.Background(), "exec-1", matchTask(matchTestcase("tc-1", "7")),
		map[string]interface{}{"submission": submission()})
	if err != nil {
		t.Fatalf("a submission crash must not fail the execution: %v", err)
	}
	v := job.Verdicts[0]
	if v.Passed || v.Failure == nil {
		t.Fatalf("verdict = %+v", v)
	}
	if v.Failure.Kind != types.FailureRuntimeError || v.Failure.NodeID != 2 {
		t.Fatalf("failure = %+v", v.Failure)
	}
}

func TestSandboxUnavailableFailsExecution(t *testing.T) {
	runner := &mockRunner{err: fmt.Errorf("%w: connection refused", sandbox.ErrUnavailable)}
	eng := New(runner, nil, nil)

	_, err := eng.ExecuteTask(context.Background(), "exec-1", matchTask(matchTestcase("tc-1", "7")),
		map[string]interface{}{"submission": submission()})
	if !errors.Is(err, sandbox.ErrUnavailable) {
		t.Fatalf("expected infrastructure fault, got %v", err)
	}
}

func TestMissingRequiredInput(t *testing.T) {
	runner := &mockRunner{resp: &types.RunnerResponse{Status: types.RunnerStatusOK}}
	eng := New(runner, nil, nil)

	_, err := eng.ExecuteTask(context.Background(), "exec-1", matchTask(matchTestcase("tc-1", "7")), nil)
	if err == nil {
		t.Fatalf("missing required input accepted")
	}
	if runner.calls() != 0 {
		t.Fatalf("sandbox called despite missing inputs")
	}
}

func TestVerdictPolicies(t *testing.T) {
	task := matchTask(
		matchTestcase("tc-pass", "7"),
		matchTestcase("tc-fail", "8"),
	)
	inputs := map[string]interface{}{"submission": submission()}

	for _, tc := range []struct {
		policy Policy
		want   bool
	}{
		{PolicyAll, false},
		{PolicyAny, true},
	} {
		runner := &mockRunner{resp: &types.RunnerResponse{Status: types.RunnerStatusOK, Value: 7.0}}
		eng := New(runner, &Config{Policy: tc.policy}, nil)
		job, err := eng.ExecuteTask(context.Background(), "exec-1", task, inputs)
		if err != nil {
			t.Fatalf("ExecuteTask failed: %v", err)
		}
		if job.Passed != tc.want {
			t.Fatalf("policy %s: passed = %v, want %v", tc.policy, job.Passed, tc.want)
		}
		if len(job.Verdicts) != 2 {
			t.Fatalf("verdicts = %d", len(job.Verdicts))
		}
	}
}

// branchTestcase puts the RUN_FUNCTION on the then branch of an IF_ELSE
// so a false condition leaves the output unbound.
func branchTestcase(cond interface{}) types.TestcaseDefinition {
	return types.TestcaseDefinition{
		ID: "tc-branch",
		GraphDefinition: types.GraphDefinition{
			Nodes: []types.NodeSpec{
				{ID: 0, Kind: types.NodeKindInput, IsUser: true, Outputs: []types.SocketSpec{
					{ID: "submission", Type: types.SocketTypeFile},
				}},
				{ID: 1, Kind: types.NodeKindInput, Outputs: []types.SocketSpec{
					{ID: "cond", Type: types.SocketTypeAny, Data: cond},
				}},
				{ID: 2, Kind: types.NodeKindIfElse,
					IfElse: &types.IfElseConfig{Then: []int{3}},
					Inputs: []types.SocketSpec{{ID: "cond", Type: types.SocketTypeBool}},
				},
				{ID: 3, Kind: types.NodeKindRunFunction,
					RunFunction: &types.RunFunctionConfig{FunctionName: "solve"},
					Inputs:      []types.SocketSpec{{ID: "submission", Type: types.SocketTypeFile}},
					Outputs:     []types.SocketSpec{{ID: "result", Type: types.SocketTypeAny}},
				},
				{ID: 4, Kind: types.NodeKindOutput, Inputs: []types.SocketSpec{
					{ID: "result", Type: types.SocketTypeAny, Public: true, Expected: 7},
				}},
			},
			Edges: []types.EdgeSpec{
				{ID: 1, FromNodeID: 1, FromSocketID: "cond", ToNodeID: 2, ToSocketID: "cond"},
				{ID: 2, FromNodeID: 0, FromSocketID: "submission", ToNodeID: 3, ToSocketID: "submission"},
				{ID: 3, FromNodeID: 3, FromSocketID: "result", ToNodeID: 4, ToSocketID: "result"},
			},
		},
	}
}

func TestBranchTaken(t *testing.T) {
	runner := &mockRunner{resp: &types.RunnerResponse{Status: types.RunnerStatusOK, Value: 7.0}}
	eng := New(runner, nil, nil)

	job, err := eng.ExecuteTask(context.Background(), "exec-1", matchTask(branchTestcase(true)),
		map[string]interface{}{"submission": submission()})
	if err != nil {
		t.Fatalf("ExecuteTask failed: %v", err)
	}
	if !job.Passed {
		t.Fatalf("verdict = %+v", job.Verdicts[0])
	}
	if runner.calls() != 1 {
		t.Fatalf("sandbox called %d times, want 1", runner.calls())
	}
}

func TestBranchNotTakenSkipsAndFailsOutput(t *testing.T) {
	runner := &mockRunner{resp: &types.RunnerResponse{Status: types.RunnerStatusOK, Value: 7.0}}
	eng := New(runner, nil, nil)

	job, err := eng.ExecuteTask(context.Background(), "exec-1", matchTask(branchTestcase(false)),
		map[string]interface{}{"submission": submission()})
	if err != nil {
		t.Fatalf("ExecuteTask failed: %v", err)
	}
	v := job.Verdicts[0]
	if v.Passed || v.Failure == nil || v.Failure.Kind != types.FailureUnboundOutput {
		t.Fatalf("verdict = %+v failure = %+v", v, v.Failure)
	}
	// The untaken branch never reaches the sandbox.
	if runner.calls() != 0 {
		t.Fatalf("sandbox called %d times, want 0", runner.calls())
	}
}

func TestNonBoolConditionIsTypeMismatch(t *testing.T) {
	runner := &mockRunner{resp: &types.RunnerResponse{Status: types.RunnerStatusOK, Value: 7.0}}
	eng := New(runner, nil, nil)

	job, err := eng.ExecuteTask(context.Background(), "exec-1", matchTask(branchTestcase("yes")),
		map[string]interface{}{"submission": submission()})
	if err != nil {
		t.Fatalf("ExecuteTask failed: %v", err)
	}
	v := job.Verdicts[0]
	if v.Failure == nil || v.Failure.Kind != types.FailureTypeMismatch || v.Failure.NodeID != 2 {
		t.Fatalf("failure = %+v", v.Failure)
	}
}

// earlyConsumerTestcase declares the STRING_MATCH consumer ahead of the
// IF_ELSE whose then branch produces its input.
func earlyConsumerTestcase(cond interface{}) types.TestcaseDefinition {
	return types.TestcaseDefinition{
		ID: "tc-early-consumer",
		GraphDefinition: types.GraphDefinition{
			Nodes: []types.NodeSpec{
				{ID: 0, Kind: types.NodeKindInput, IsUser: true, Outputs: []types.SocketSpec{
					{ID: "submission", Type: types.SocketTypeFile},
				}},
				{ID: 1, Kind: types.NodeKindInput, Outputs: []types.SocketSpec{
					{ID: "cond", Type: types.SocketTypeBool, Data: cond},
					{ID: "expected", Type: types.SocketTypeString, Data: "7"},
				}},
				{ID: 2, Kind: types.NodeKindStringMatch,
					Inputs: []types.SocketSpec{
						{ID: "l", Type: types.SocketTypeAny},
						{ID: "r", Type: types.SocketTypeAny},
					},
					Outputs: []types.SocketSpec{{ID: "match", Type: types.SocketTypeBool}},
				},
				{ID: 3, Kind: types.NodeKindIfElse,
					IfElse: &types.IfElseConfig{Then: []int{4}},
					Inputs: []types.SocketSpec{{ID: "cond", Type: types.SocketTypeBool}},
				},
				{ID: 4, Kind: types.NodeKindRunFunction,
					RunFunction: &types.RunFunctionConfig{FunctionName: "solve"},
					Inputs:      []types.SocketSpec{{ID: "submission", Type: types.SocketTypeFile}},
					Outputs:     []types.SocketSpec{{ID: "result", Type: types.SocketTypeAny}},
				},
				{ID: 5, Kind: types.NodeKindOutput, Inputs: []types.SocketSpec{
					{ID: "match", Type: types.SocketTypeBool, Public: true},
				}},
			},
			Edges: []types.EdgeSpec{
				{ID: 1, FromNodeID: 1, FromSocketID: "cond", ToNodeID: 3, ToSocketID: "cond"},
				{ID: 2, FromNodeID: 0, FromSocketID: "submission", ToNodeID: 4, ToSocketID: "submission"},
				{ID: 3, FromNodeID: 4, FromSocketID: "result", ToNodeID: 2, ToSocketID: "l"},
				{ID: 4, FromNodeID: 1, FromSocketID: "expected", ToNodeID: 2, ToSocketID: "r"},
				{ID: 5, FromNodeID: 2, FromSocketID: "match", ToNodeID: 5, ToSocketID: "match"},
			},
		},
	}
}

func TestBranchOutputReachesEarlierDeclaredConsumer(t *testing.T) {
	runner := &mockRunner{resp: &types.RunnerResponse{Status: types.RunnerStatusOK, Value: 7.0}}
	eng := New(runner, nil, nil)

	job, err := eng.ExecuteTask(context.Background(), "exec-1", matchTask(earlyConsumerTestcase(true)),
		map[string]interface{}{"submission": submission()})
	if err != nil {
		t.Fatalf("ExecuteTask failed: %v", err)
	}
	v := job.Verdicts[0]
	if !v.Passed || v.Failure != nil {
		t.Fatalf("verdict = %+v failure = %+v", v, v.Failure)
	}
	if runner.calls() != 1 {
		t.Fatalf("sandbox called %d times, want 1", runner.calls())
	}
}

func TestEarlyDeclaredConsumerSkipsWithBranch(t *testing.T) {
	runner := &mockRunner{resp: &types.RunnerResponse{Status: types.RunnerStatusOK, Value: 7.0}}
	eng := New(runner, nil, nil)

	job, err := eng.ExecuteTask(context.Background(), "exec-1", matchTask(earlyConsumerTestcase(false)),
		map[string]interface{}{"submission": submission()})
	if err != nil {
		t.Fatalf("ExecuteTask failed: %v", err)
	}
	v := job.Verdicts[0]
	if v.Passed || v.Failure == nil || v.Failure.Kind != types.FailureUnboundOutput {
		t.Fatalf("verdict = %+v failure = %+v", v, v.Failure)
	}
	if runner.calls() != 0 {
		t.Fatalf("sandbox called %d times, want 0", runner.calls())
	}
}

// loopTestcase counts up via a carried binding: each iteration the
// sandbox returns the number of calls so far.
func loopTestcase(loop *types.LoopConfig) types.TestcaseDefinition {
	if loop.Body == nil {
		loop.Body = []int{3}
	}
	if loop.Carried == nil {
		loop.Carried = []types.CarriedBinding{
			{From: types.SocketRef{NodeID: 3, SocketID: "result"}, To: "acc"},
		}
	}
	return types.TestcaseDefinition{
		ID: "tc-loop",
		GraphDefinition: types.GraphDefinition{
			Nodes: []types.NodeSpec{
				{ID: 0, Kind: types.NodeKindInput, IsUser: true, Outputs: []types.SocketSpec{
					{ID: "submission", Type: types.SocketTypeFile},
				}},
				{ID: 1, Kind: types.NodeKindInput, Outputs: []types.SocketSpec{
					{ID: "seed", Type: types.SocketTypeInt, Data: 0},
				}},
				{ID: 2, Kind: types.NodeKindLoop,
					Loop:    loop,
					Inputs:  []types.SocketSpec{{ID: "init", Type: types.SocketTypeInt}},
					Outputs: []types.SocketSpec{{ID: "acc", Type: types.SocketTypeInt}},
				},
				{ID: 3, Kind: types.NodeKindRunFunction,
					RunFunction: &types.RunFunctionConfig{FunctionName: "inc"},
					Inputs: []types.SocketSpec{
						{ID: "submission", Type: types.SocketTypeFile},
						{ID: "cur", Type: types.SocketTypeInt},
					},
					Outputs: []types.SocketSpec{{ID: "result", Type: types.SocketTypeInt}},
				},
				{ID: 4, Kind: types.NodeKindOutput, Inputs: []types.SocketSpec{
					{ID: "total", Type: types.SocketTypeInt, Public: true, Expected: 3},
				}},
			},
			Edges: []types.EdgeSpec{
				{ID: 1, FromNodeID: 1, FromSocketID: "seed", ToNodeID: 2, ToSocketID: "init"},
				{ID: 2, FromNodeID: 0, FromSocketID: "submission", ToNodeID: 3, ToSocketID: "submission"},
				{ID: 3, FromNodeID: 2, FromSocketID: "acc", ToNodeID: 3, ToSocketID: "cur"},
				{ID: 4, FromNodeID: 2, FromSocketID: "acc", ToNodeID: 4, ToSocketID: "total"},
			},
		},
	}
}

func TestLoopCarriesState(t *testing.T) {
	runner := &mockRunner{count: true}
	eng := New(runner, nil, nil)

	job, err := eng.ExecuteTask(context.Background(), "exec-1",
		matchTask(loopTestcase(&types.LoopConfig{Count: intp(3)})),
		map[string]interface{}{"submission": submission()})
	if err != nil {
		t.Fatalf("ExecuteTask failed: %v", err)
	}
	if !job.Passed {
		t.Fatalf("verdict = %+v failure = %+v", job.Verdicts[0], job.Verdicts[0].Failure)
	}
	if runner.calls() != 3 {
		t.Fatalf("sandbox called %d times, want 3", runner.calls())
	}
	// Each iteration reads the state carried from the previous one.
	wantArgs := []float64{0, 1, 2}
	for i, req := range runner.reqs {
		var got float64
		switch v := req.Args[0].(type) {
		case int:
			got = float64(v)
		case float64:
			got = v
		default:
			t.Fatalf("iteration %d arg = %T", i, req.Args[0])
		}
		if got != wantArgs[i] {
			t.Fatalf("iteration %d saw state %v, want %v", i, got, wantArgs[i])
		}
	}
}

func TestLoopBoundExceeded(t *testing.T) {
	runner := &mockRunner{count: true}
	eng := New(runner, nil, nil)

	job, err := eng.ExecuteTask(context.Background(), "exec-1",
		matchTask(loopTestcase(&types.LoopConfig{Predicate: "acc < 100", MaxIterations: 3})),
		map[string]interface{}{"submission": submission()})
	if err != nil {
		t.Fatalf("ExecuteTask failed: %v", err)
	}
	v := job.Verdicts[0]
	if v.Passed || v.Failure == nil || v.Failure.Kind != types.FailureLoopBound {
		t.Fatalf("verdict = %+v failure = %+v", v, v.Failure)
	}
	if v.Failure.NodeID != 2 {
		t.Fatalf("failure attributed to node %d, want the loop node", v.Failure.NodeID)
	}
	if runner.calls() != 3 {
		t.Fatalf("sandbox called %d times, want the bound 3", runner.calls())
	}
}

func TestLoopPredicateStops(t *testing.T) {
	runner := &mockRunner{count: true}
	eng := New(runner, nil, nil)

	job, err := eng.ExecuteTask(context.Background(), "exec-1",
		matchTask(loopTestcase(&types.LoopConfig{Predicate: "acc < 3"})),
		map[string]interface{}{"submission": submission()})
	if err != nil {
		t.Fatalf("ExecuteTask failed: %v", err)
	}
	if !job.Passed {
		t.Fatalf("verdict = %+v failure = %+v", job.Verdicts[0], job.Verdicts[0].Failure)
	}
	if runner.calls() != 3 {
		t.Fatalf("sandbox called %d times, want 3", runner.calls())
	}
}

func TestExecutionIsDeterministic(t *testing.T) {
	inputs := map[string]interface{}{"submission": submission()}

	var first []byte
	for run := 0; run < 5; run++ {
		runner := &mockRunner{resp: &types.RunnerResponse{Status: types.RunnerStatusOK, Value: 7.0}}
		eng := New(runner, nil, nil)
		job, err := eng.ExecuteTask(context.Background(), "exec-1", matchTask(matchTestcase("tc-1", "7")), inputs)
		if err != nil {
			t.Fatalf("ExecuteTask failed: %v", err)
		}
		encoded, err := json.Marshal(job.Verdicts)
		if err != nil {
			t.Fatalf("marshal verdicts: %v", err)
		}
		if first == nil {
			first = encoded
			continue
		}
		if !reflect.DeepEqual(first, encoded) {
			t.Fatalf("run %d produced a different verdict:\n%s\n%s", run, first, encoded)
		}
	}
}

func TestTestcaseOrderFollowsOrderIndex(t *testing.T) {
	a := matchTestcase("tc-a", "7")
	a.OrderIndex = 2
	b := matchTestcase("tc-b", "7")
	b.OrderIndex = 1

	runner := &mockRunner{resp: &types.RunnerResponse{Status: types.RunnerStatusOK, Value: 7.0}}
	eng := New(runner, nil, nil)
	job, err := eng.ExecuteTask(context.Background(), "exec-1", matchTask(a, b),
		map[string]interface{}{"submission": submission()})
	if err != nil {
		t.Fatalf("ExecuteTask failed: %v", err)
	}
	if job.Verdicts[0].TestcaseID != "tc-b" || job.Verdicts[1].TestcaseID != "tc-a" {
		t.Fatalf("verdict order = %s, %s", job.Verdicts[0].TestcaseID, job.Verdicts[1].TestcaseID)
	}
}
