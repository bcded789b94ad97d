package types

// RunnerStatus is the structured outcome reported by the sandbox
// collaborator for one invocation.
type RunnerStatus string

const (
	RunnerStatusOK  RunnerStatus = "OK"
	RunnerStatusTLE RunnerStatus = "TLE" // time limit exceeded
	RunnerStatusMLE RunnerStatus = "MLE" // memory limit exceeded
	RunnerStatusRTE RunnerStatus = "RTE" // runtime error
)

// RunnerRequest asks the sandbox to invoke one function from a file bundle
// under resource limits. ID correlates the asynchronous reply.
type RunnerRequest struct {
	ID string `json:"id"`

	Function  string        `json:"function"`
	Args      []interface{} `json:"args"`
	EntryFile string        `json:"entry_file"`
	Files     []File        `json:"files"`

	Language      Language `json:"language"`
	TimeLimitSecs int      `json:"time_limit_secs"`
	MemoryLimitMB int      `json:"memory_limit_mb"`
}

// RunnerResponse carries the structured result of a sandbox invocation:
// a return value, a raised-error indicator, or a resource-limit indicator.
type RunnerResponse struct {
	ID     string       `json:"id"`
	Status RunnerStatus `json:"status"`

	Value  interface{} `json:"value,omitempty"`
	Error  string      `json:"error,omitempty"`
	Stdout string      `json:"stdout,omitempty"`
	Stderr string      `json:"stderr,omitempty"`
}
