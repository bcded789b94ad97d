// Package types provides wire types shared between the grader engine and
// its collaborators: task definitions, sandbox requests and verdicts.
package types

// NodeKind identifies the behaviour of a pipeline node. The set is closed;
// unknown kinds are rejected at validation time.
type NodeKind string

const (
	NodeKindInput       NodeKind = "INPUT"
	NodeKindOutput      NodeKind = "OUTPUT"
	NodeKindRunFunction NodeKind = "RUN_FUNCTION"
	NodeKindStringMatch NodeKind = "STRING_MATCH"
	NodeKindCompare     NodeKind = "COMPARE"
	NodeKindIfElse      NodeKind = "IF_ELSE"
	NodeKindLoop        NodeKind = "LOOP"
)

// IsControlFlow returns true for region-forming kinds.
func (k NodeKind) IsControlFlow() bool {
	return k == NodeKindIfElse || k == NodeKindLoop
}

// Known returns true if the kind is part of the closed set.
func (k NodeKind) Known() bool {
	switch k {
	case NodeKindInput, NodeKindOutput, NodeKindRunFunction,
		NodeKindStringMatch, NodeKindCompare, NodeKindIfElse, NodeKindLoop:
		return true
	default:
		return false
	}
}

// SocketType is the declared value type of a socket.
type SocketType string

const (
	SocketTypeString SocketType = "STRING"
	SocketTypeInt    SocketType = "INT"
	SocketTypeFloat  SocketType = "FLOAT"
	SocketTypeBool   SocketType = "BOOL"
	SocketTypeFile   SocketType = "FILE"
	SocketTypeAny    SocketType = "ANY"
)

// SocketSpec declares a named, typed endpoint on a node.
type SocketSpec struct {
	ID   string     `json:"id"`
	Type SocketType `json:"type"`

	// Data holds the literal value produced by an INPUT node's output
	// socket. FILE-typed sockets decode it into a File.
	Data interface{} `json:"data,omitempty"`

	// Public marks an OUTPUT node's input socket as visible to the
	// submitter. Private sockets are grading-only.
	Public bool `json:"public,omitempty"`

	// Expected, when set on an OUTPUT node's input socket, turns the
	// binding into an assertion against this value.
	Expected interface{} `json:"expected,omitempty"`
}

// SocketRef addresses a socket on a specific node.
type SocketRef struct {
	NodeID   int    `json:"node_id"`
	SocketID string `json:"socket_id"`
}

// NodeSpec is the wire form of a single pipeline node. Exactly one of the
// kind-specific config fields may be set, and it must match Kind.
type NodeSpec struct {
	ID      int          `json:"id"`
	Kind    NodeKind     `json:"type"`
	Inputs  []SocketSpec `json:"inputs,omitempty"`
	Outputs []SocketSpec `json:"outputs,omitempty"`

	// IsUser marks the INPUT node whose socket values are supplied by the
	// submitter at execution time rather than authored into the definition.
	IsUser bool `json:"is_user,omitempty"`

	RunFunction *RunFunctionConfig `json:"run_function,omitempty"`
	Compare     *CompareConfig     `json:"compare,omitempty"`
	IfElse      *IfElseConfig      `json:"if_else,omitempty"`
	Loop        *LoopConfig        `json:"loop,omitempty"`
}

// RunFunctionConfig configures the sandbox-delegating node kind.
type RunFunctionConfig struct {
	// FunctionName is the function invoked inside the submitted module.
	FunctionName string `json:"function_name"`

	// TimeLimitSecs and MemoryLimitMB override the task-level limits for
	// this invocation when non-zero.
	TimeLimitSecs int `json:"time_limit_secs,omitempty"`
	MemoryLimitMB int `json:"memory_limit_mb,omitempty"`
}

// CompareOperator enumerates the comparison operators for COMPARE nodes.
type CompareOperator string

const (
	CompareEqual        CompareOperator = "eq"
	CompareNotEqual     CompareOperator = "ne"
	CompareLess         CompareOperator = "lt"
	CompareLessEqual    CompareOperator = "le"
	CompareGreater      CompareOperator = "gt"
	CompareGreaterEqual CompareOperator = "ge"
)

// CompareConfig configures a COMPARE node.
type CompareConfig struct {
	Operator CompareOperator `json:"operator"`

	// Tolerance enables approximate numeric equality for eq/ne.
	// Zero means exact comparison.
	Tolerance float64 `json:"tolerance,omitempty"`
}

// IfElseConfig declares the two branch sub-regions of an IF_ELSE node.
// The node's single BOOL input socket selects the branch.
type IfElseConfig struct {
	Then []int `json:"then"`
	Else []int `json:"else"`
}

// CarriedBinding declares a loop-carried socket: at the end of each
// iteration the value bound at From (a body node's output socket) seeds
// the loop node's To output socket for the next iteration.
type CarriedBinding struct {
	From SocketRef `json:"from"`
	To   string    `json:"to"`
}

// LoopConfig declares the iteration contract of a LOOP region. Exactly one
// of Count or Predicate must be set. The loop node's input sockets seed the
// initial values of its same-named output sockets; body nodes read loop
// state through edges from those output sockets.
type LoopConfig struct {
	// Count runs the body a fixed number of times.
	Count *int `json:"count,omitempty"`

	// Predicate is an expression re-evaluated before each iteration over
	// the carried state; iteration continues while it is true.
	Predicate string `json:"predicate,omitempty"`

	// MaxIterations bounds the loop regardless of the predicate. Exceeding
	// it fails the execution. Zero selects the engine default.
	MaxIterations int `json:"max_iterations,omitempty"`

	Body    []int            `json:"body"`
	Carried []CarriedBinding `json:"carried,omitempty"`
}

// EdgeSpec is a directed connection from a producer output socket to a
// consumer input socket.
type EdgeSpec struct {
	ID           int    `json:"id"`
	FromNodeID   int    `json:"from_node_id"`
	FromSocketID string `json:"from_socket_id"`
	ToNodeID     int    `json:"to_node_id"`
	ToSocketID   string `json:"to_socket_id"`

	// Coerce permits a declared type coercion across the edge
	// (INT to FLOAT widening, scalar to STRING).
	Coerce bool `json:"coerce,omitempty"`
}

// GraphDefinition is the wire form of one testcase graph.
type GraphDefinition struct {
	Nodes []NodeSpec `json:"nodes"`
	Edges []EdgeSpec `json:"edges"`
}

// TestcaseDefinition is one graph within a task, ordered by OrderIndex.
type TestcaseDefinition struct {
	ID         string `json:"id"`
	OrderIndex int    `json:"order_index,omitempty"`
	GraphDefinition
}

// Language tags the runtime the sandbox should use.
type Language string

const LanguagePython Language = "PYTHON"

// ComputeContext holds task-level sandbox resource limits.
type ComputeContext struct {
	Language      Language `json:"language"`
	TimeLimitSecs int      `json:"time_limit_secs"`
	MemoryLimitMB int      `json:"memory_limit_mb"`
}

// RequiredInput declares a value the submitter must provide, keyed by the
// socket ID on the user INPUT node it binds to.
type RequiredInput struct {
	ID    string      `json:"id"`
	Data  interface{} `json:"data"`
	Label string      `json:"label,omitempty"`
}

// TaskDefinition is the externally authored description of one graded
// problem: an environment, the inputs the submitter supplies, and one or
// more testcase graphs.
type TaskDefinition struct {
	ID             string               `json:"id"`
	Question       string               `json:"question,omitempty"`
	Environment    ComputeContext       `json:"environment"`
	RequiredInputs []RequiredInput      `json:"required_inputs,omitempty"`
	Testcases      []TestcaseDefinition `json:"testcases"`
}
