package engine

import (
	"reflect"

	"github.com/unicon/grader-go/internal/executor"
	"github.com/unicon/grader-go/pkg/types"
)

// buildVerdict assembles the testcase verdict from the OUTPUT node
// bindings. A binding asserts when its socket declares an expected value
// or carries a BOOL; other bindings are informational.
func (e *Engine) buildVerdict(testcaseID string, st *execState) *types.Verdict {
	v := &types.Verdict{TestcaseID: testcaseID}
	if st.failure != nil {
		v.Failure = st.failure.Record()
		return v
	}

	asserted := 0
	correct := 0
	for _, n := range st.graph.OutputNodes() {
		out := st.outputs[n.ID]
		for _, s := range n.Inputs {
			r := types.SocketResult{
				ID:     s.ID,
				NodeID: n.ID,
				Value:  out[s.ID],
				Public: s.Public,
			}
			switch {
			case s.Expected != nil:
				ok := valuesEqual(out[s.ID], s.Expected)
				r.Correct = &ok
			case s.Type == types.SocketTypeBool:
				ok, _ := out[s.ID].(bool)
				r.Correct = &ok
			}
			if r.Correct != nil {
				asserted++
				if *r.Correct {
					correct++
				}
			}
			v.Results = append(v.Results, r)
		}
	}

	// Every assertion must hold. A graph with no assertions passes by
	// reaching its outputs.
	v.Passed = correct == asserted
	return v
}

// valuesEqual compares a realized value with an authored expectation.
// Numbers compare as float64 so JSON "1" matches a computed 1.0; other
// values compare structurally.
func valuesEqual(got, want interface{}) bool {
	gf, gok := executor.ToFloat(got)
	wf, wok := executor.ToFloat(want)
	if gok && wok {
		return gf == wf
	}
	return reflect.DeepEqual(got, want)
}
