package types

import "time"

// FailureKind tags why an execution pass terminated early.
type FailureKind string

const (
	FailureTimeout          FailureKind = "TIMEOUT"
	FailureResourceExceeded FailureKind = "RESOURCE_EXCEEDED"
	FailureRuntimeError     FailureKind = "RUNTIME_ERROR"
	FailureTypeMismatch     FailureKind = "TYPE_MISMATCH"
	FailureUnboundOutput    FailureKind = "UNBOUND_OUTPUT"
	FailureLoopBound        FailureKind = "LOOP_BOUND_EXCEEDED"
)

// NodeFailure records the node at which an execution failed and why.
type NodeFailure struct {
	NodeID  int         `json:"node_id"`
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message,omitempty"`
}

// SocketResult is the realized value of one OUTPUT node binding.
// Correct is nil for informational (non-asserting) bindings.
type SocketResult struct {
	ID      string      `json:"id"`
	NodeID  int         `json:"node_id"`
	Value   interface{} `json:"value"`
	Public  bool        `json:"public"`
	Correct *bool       `json:"correct,omitempty"`
}

// Verdict is the terminal artifact of one testcase graph execution.
// Immutable once emitted.
type Verdict struct {
	TestcaseID string         `json:"testcase_id"`
	Passed     bool           `json:"passed"`
	Results    []SocketResult `json:"results,omitempty"`
	Failure    *NodeFailure   `json:"failure,omitempty"`
}

// PublicVerdict is the submitter-visible projection of a Verdict: private
// bindings and internal failure detail are withheld.
type PublicVerdict struct {
	TestcaseID string         `json:"testcase_id"`
	Passed     bool           `json:"passed"`
	Results    []SocketResult `json:"results,omitempty"`
}

// Public strips private results and internal failure detail.
func (v *Verdict) Public() *PublicVerdict {
	pub := &PublicVerdict{TestcaseID: v.TestcaseID, Passed: v.Passed}
	for _, r := range v.Results {
		if r.Public {
			pub.Results = append(pub.Results, r)
		}
	}
	return pub
}

// JobVerdict aggregates the verdicts of every testcase in one submission.
type JobVerdict struct {
	ExecutionID string     `json:"execution_id"`
	TaskID      string     `json:"task_id,omitempty"`
	Passed      bool       `json:"passed"`
	Verdicts    []*Verdict `json:"verdicts"`
	EmittedAt   time.Time  `json:"emitted_at"`
}

// PublicJobVerdict is the submitter-visible projection of a JobVerdict.
type PublicJobVerdict struct {
	ExecutionID string           `json:"execution_id"`
	Passed      bool             `json:"passed"`
	Verdicts    []*PublicVerdict `json:"verdicts"`
}

// Public projects every testcase verdict to its submitter-visible form.
func (j *JobVerdict) Public() *PublicJobVerdict {
	pub := &PublicJobVerdict{ExecutionID: j.ExecutionID, Passed: j.Passed}
	for _, v := range j.Verdicts {
		pub.Verdicts = append(pub.Verdicts, v.Public())
	}
	return pub
}
