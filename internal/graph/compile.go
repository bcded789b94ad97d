package graph

import (
	"fmt"

	"github.com/unicon/grader-go/pkg/types"
)

// DefaultMaxIterations bounds LOOP regions whose definition does not set
// an explicit bound. Untrusted pipelines must always terminate.
const DefaultMaxIterations = 100

// ValidationError reports the first violated invariant of a definition,
// with the offending node or edge ID. Validation never partially succeeds.
type ValidationError struct {
	NodeID  *int   `json:"node_id,omitempty"`
	EdgeID  *int   `json:"edge_id,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	switch {
	case e.NodeID != nil:
		return fmt.Sprintf("invalid definition: node %d: %s", *e.NodeID, e.Message)
	case e.EdgeID != nil:
		return fmt.Sprintf("invalid definition: edge %d: %s", *e.EdgeID, e.Message)
	default:
		return fmt.Sprintf("invalid definition: %s", e.Message)
	}
}

func nodeErr(id int, format string, args ...interface{}) *ValidationError {
	return &ValidationError{NodeID: &id, Message: fmt.Sprintf(format, args...)}
}

func edgeErr(id int, format string, args ...interface{}) *ValidationError {
	return &ValidationError{EdgeID: &id, Message: fmt.Sprintf(format, args...)}
}

// Compile validates a testcase definition and returns the typed graph.
// It is a pure function over the definition: checks run in a fixed order
// and fail fast with the first violated invariant.
func Compile(def *types.GraphDefinition) (*Graph, error) {
	g := &Graph{
		nodeByID: make(map[int]*Node),
		inEdges:  make(map[int][]*Edge),
		outEdges: make(map[int][]*Edge),
		inEdgeTo: make(map[SocketAddr]*Edge),
		owner:    make(map[int]int),
	}

	// Parse-time node checks: unique IDs, unique socket names, closed kind
	// set, kind-specific socket schema and configuration.
	for i := range def.Nodes {
		node, err := compileNode(&def.Nodes[i], i)
		if err != nil {
			return nil, err
		}
		if g.nodeByID[node.ID] != nil {
			return nil, nodeErr(node.ID, "duplicate node id")
		}
		g.nodeByID[node.ID] = node
		g.Nodes = append(g.Nodes, node)
	}
	if len(g.Nodes) == 0 {
		return nil, &ValidationError{Message: "definition has no nodes"}
	}
	if len(g.OutputNodes()) == 0 {
		return nil, &ValidationError{Message: "definition has no OUTPUT node"}
	}

	// Edge checks, in spec order: (1) endpoints exist, (2) directions
	// match, (3) at most one incoming edge per input socket, (4) type
	// compatibility.
	seenEdgeIDs := make(map[int]bool)
	for i := range def.Edges {
		spec := &def.Edges[i]
		if seenEdgeIDs[spec.ID] {
			return nil, edgeErr(spec.ID, "duplicate edge id")
		}
		seenEdgeIDs[spec.ID] = true

		from := g.Node(spec.FromNodeID)
		if from == nil {
			return nil, edgeErr(spec.ID, "unknown from_node_id %d", spec.FromNodeID)
		}
		to := g.Node(spec.ToNodeID)
		if to == nil {
			return nil, edgeErr(spec.ID, "unknown to_node_id %d", spec.ToNodeID)
		}
		fromSocket := from.Socket(spec.FromSocketID)
		if fromSocket == nil {
			return nil, edgeErr(spec.ID, "unknown socket %q on node %d", spec.FromSocketID, from.ID)
		}
		toSocket := to.Socket(spec.ToSocketID)
		if toSocket == nil {
			return nil, edgeErr(spec.ID, "unknown socket %q on node %d", spec.ToSocketID, to.ID)
		}
		if fromSocket.Dir != DirOut {
			return nil, edgeErr(spec.ID, "socket %s is not an output socket", from.Addr(fromSocket.ID))
		}
		if toSocket.Dir != DirIn {
			return nil, edgeErr(spec.ID, "socket %s is not an input socket", to.Addr(toSocket.ID))
		}

		edge := &Edge{
			ID:     spec.ID,
			From:   from.Addr(fromSocket.ID),
			To:     to.Addr(toSocket.ID),
			Coerce: spec.Coerce,
		}
		if g.inEdgeTo[edge.To] != nil {
			return nil, edgeErr(spec.ID, "socket %s already has an incoming edge", edge.To)
		}
		if !typesCompatible(fromSocket.Type, toSocket.Type, spec.Coerce) {
			return nil, edgeErr(spec.ID, "incompatible socket types %s -> %s", fromSocket.Type, toSocket.Type)
		}

		g.Edges = append(g.Edges, edge)
		g.inEdges[edge.To.Node] = append(g.inEdges[edge.To.Node], edge)
		g.outEdges[edge.From.Node] = append(g.outEdges[edge.From.Node], edge)
		g.inEdgeTo[edge.To] = edge
	}

	// Every input socket must be fed by exactly one edge; unconnected
	// consumers cannot be satisfied at execution time.
	for _, n := range g.Nodes {
		for _, s := range n.Inputs {
			if g.inEdgeTo[n.Addr(s.ID)] == nil {
				return nil, nodeErr(n.ID, "input socket %q has no incoming edge", s.ID)
			}
		}
	}

	if err := g.resolveRegions(); err != nil {
		return nil, err
	}

	// (5) The scheduling structure is acyclic at every nesting level:
	// the top level with region members excluded, and each region body.
	if _, err := g.TopologicalOrder(func(n *Node) bool {
		_, owned := g.owner[n.ID]
		return !owned
	}); err != nil {
		return nil, &ValidationError{Message: "cycle detected outside control-flow regions"}
	}
	for _, region := range g.Nodes {
		if !region.Kind.IsControlFlow() {
			continue
		}
		rid := region.ID
		if _, err := g.TopologicalOrder(func(n *Node) bool {
			return g.owner[n.ID] == rid
		}); err != nil {
			return nil, nodeErr(rid, "cycle detected inside control-flow region")
		}
	}

	// (6) Reachability: every non-control-flow node is reachable from an
	// INPUT node and reaches an OUTPUT node.
	if err := g.checkReachability(); err != nil {
		return nil, err
	}

	return g, nil
}

func compileNode(spec *types.NodeSpec, index int) (*Node, error) {
	if !spec.Kind.Known() {
		return nil, nodeErr(spec.ID, "unknown node kind %q", spec.Kind)
	}

	node := &Node{
		ID:          spec.ID,
		Kind:        spec.Kind,
		Index:       index,
		IsUser:      spec.IsUser,
		RunFunction: spec.RunFunction,
		Compare:     spec.Compare,
		IfElse:      spec.IfElse,
		Loop:        spec.Loop,
		sockets:     make(map[string]*Socket),
	}

	add := func(specs []types.SocketSpec, dir Direction) *ValidationError {
		for i := range specs {
			ss := &specs[i]
			if ss.ID == "" {
				return nodeErr(spec.ID, "socket with empty id")
			}
			if node.sockets[ss.ID] != nil {
				return nodeErr(spec.ID, "duplicate socket id %q", ss.ID)
			}
			socketType := ss.Type
			if socketType == "" {
				socketType = types.SocketTypeAny
			}
			data := ss.Data
			if data != nil && socketType == types.SocketTypeFile {
				file, ok := types.FileFromValue(data)
				if !ok {
					return nodeErr(spec.ID, "socket %q: malformed file payload", ss.ID)
				}
				if err := file.Validate(); err != nil {
					return nodeErr(spec.ID, "socket %q: %v", ss.ID, err)
				}
				data = file
			}
			s := &Socket{
				ID:       ss.ID,
				Type:     socketType,
				Dir:      dir,
				Data:     data,
				Public:   ss.Public,
				Expected: ss.Expected,
			}
			node.sockets[s.ID] = s
			if dir == DirIn {
				node.Inputs = append(node.Inputs, s)
			} else {
				node.Outputs = append(node.Outputs, s)
			}
		}
		return nil
	}
	if err := add(spec.Inputs, DirIn); err != nil {
		return nil, err
	}
	if err := add(spec.Outputs, DirOut); err != nil {
		return nil, err
	}

	if err := checkNodeSchema(node); err != nil {
		return nil, err
	}
	return node, nil
}

// checkNodeSchema enforces the fixed socket schema and configuration of
// each node kind.
func checkNodeSchema(n *Node) *ValidationError {
	configs := 0
	for _, set := range []bool{n.RunFunction != nil, n.Compare != nil, n.IfElse != nil, n.Loop != nil} {
		if set {
			configs++
		}
	}
	if configs > 1 {
		return nodeErr(n.ID, "multiple kind configurations set")
	}

	switch n.Kind {
	case types.NodeKindInput:
		if len(n.Inputs) != 0 {
			return nodeErr(n.ID, "INPUT node must not declare input sockets")
		}
		if len(n.Outputs) == 0 {
			return nodeErr(n.ID, "INPUT node must declare at least one output socket")
		}
		if !n.IsUser {
			for _, s := range n.Outputs {
				if s.Data == nil {
					return nodeErr(n.ID, "output socket %q has no data", s.ID)
				}
			}
		}
	case types.NodeKindOutput:
		if len(n.Inputs) == 0 {
			return nodeErr(n.ID, "OUTPUT node must declare at least one input socket")
		}
		if len(n.Outputs) != 0 {
			return nodeErr(n.ID, "OUTPUT node must not declare output sockets")
		}
	case types.NodeKindRunFunction:
		if n.RunFunction == nil || n.RunFunction.FunctionName == "" {
			return nodeErr(n.ID, "RUN_FUNCTION node requires a function name")
		}
		files := 0
		for _, s := range n.Inputs {
			if s.Type == types.SocketTypeFile {
				files++
			}
		}
		if files != 1 {
			return nodeErr(n.ID, "RUN_FUNCTION node requires exactly one FILE input socket, found %d", files)
		}
		if len(n.Outputs) != 1 {
			return nodeErr(n.ID, "RUN_FUNCTION node requires exactly one output socket")
		}
	case types.NodeKindStringMatch:
		if len(n.Inputs) != 2 || len(n.Outputs) != 1 {
			return nodeErr(n.ID, "STRING_MATCH node requires two input sockets and one output socket")
		}
		if n.Outputs[0].Type != types.SocketTypeBool {
			return nodeErr(n.ID, "STRING_MATCH output socket must be BOOL")
		}
	case types.NodeKindCompare:
		if n.Compare == nil {
			return nodeErr(n.ID, "COMPARE node requires a comparison configuration")
		}
		switch n.Compare.Operator {
		case types.CompareEqual, types.CompareNotEqual, types.CompareLess,
			types.CompareLessEqual, types.CompareGreater, types.CompareGreaterEqual:
		default:
			return nodeErr(n.ID, "unknown comparison operator %q", n.Compare.Operator)
		}
		if len(n.Inputs) != 2 || len(n.Outputs) != 1 {
			return nodeErr(n.ID, "COMPARE node requires two input sockets and one output socket")
		}
		if n.Outputs[0].Type != types.SocketTypeBool {
			return nodeErr(n.ID, "COMPARE output socket must be BOOL")
		}
	case types.NodeKindIfElse:
		if n.IfElse == nil {
			return nodeErr(n.ID, "IF_ELSE node requires a branch configuration")
		}
		if len(n.Inputs) != 1 || n.Inputs[0].Type != types.SocketTypeBool {
			return nodeErr(n.ID, "IF_ELSE node requires a single BOOL condition socket")
		}
		if len(n.Outputs) != 0 {
			return nodeErr(n.ID, "IF_ELSE node must not declare output sockets")
		}
		if len(n.IfElse.Then) == 0 && len(n.IfElse.Else) == 0 {
			return nodeErr(n.ID, "IF_ELSE node has empty branches")
		}
	case types.NodeKindLoop:
		if n.Loop == nil {
			return nodeErr(n.ID, "LOOP node requires a loop configuration")
		}
		cfg := n.Loop
		if (cfg.Count == nil) == (cfg.Predicate == "") {
			return nodeErr(n.ID, "LOOP node requires exactly one of count or predicate")
		}
		if cfg.Count != nil && *cfg.Count < 0 {
			return nodeErr(n.ID, "LOOP count must be non-negative")
		}
		if cfg.MaxIterations < 0 {
			return nodeErr(n.ID, "LOOP max_iterations must be non-negative")
		}
		bound := cfg.MaxIterations
		if bound == 0 {
			bound = DefaultMaxIterations
		}
		if cfg.Count != nil && *cfg.Count > bound {
			return nodeErr(n.ID, "LOOP count %d exceeds iteration bound %d", *cfg.Count, bound)
		}
		if len(cfg.Body) == 0 {
			return nodeErr(n.ID, "LOOP node has an empty body")
		}
		// Loop state contract: input sockets seed output sockets pairwise
		// in declaration order.
		if len(n.Inputs) != len(n.Outputs) {
			return nodeErr(n.ID, "LOOP node input and output sockets must pair one to one")
		}
	}
	return nil
}

// resolveRegions assigns every region member to its owning control-flow
// node and validates region-local invariants.
func (g *Graph) resolveRegions() *ValidationError {
	claim := func(owner *Node, memberID int) *ValidationError {
		member := g.Node(memberID)
		if member == nil {
			return nodeErr(owner.ID, "region references unknown node %d", memberID)
		}
		if member.ID == owner.ID {
			return nodeErr(owner.ID, "region cannot contain its own node")
		}
		switch member.Kind {
		case types.NodeKindInput, types.NodeKindOutput:
			return nodeErr(owner.ID, "node %d of kind %s cannot be a region member", member.ID, member.Kind)
		}
		if prev, owned := g.owner[member.ID]; owned {
			return nodeErr(member.ID, "node belongs to both region %d and region %d", prev, owner.ID)
		}
		g.owner[member.ID] = owner.ID
		return nil
	}

	for _, n := range g.Nodes {
		switch n.Kind {
		case types.NodeKindIfElse:
			for _, id := range append(append([]int{}, n.IfElse.Then...), n.IfElse.Else...) {
				if err := claim(n, id); err != nil {
					return err
				}
			}
		case types.NodeKindLoop:
			for _, id := range n.Loop.Body {
				if err := claim(n, id); err != nil {
					return err
				}
			}
		}
	}

	// Loop-local invariants: carried bindings resolve inside the body, and
	// body values escape only through carried bindings.
	for _, n := range g.Nodes {
		if n.Kind != types.NodeKindLoop {
			continue
		}
		inBody := make(map[int]bool, len(n.Loop.Body))
		for _, id := range n.Loop.Body {
			inBody[id] = true
		}
		for _, c := range n.Loop.Carried {
			to := n.Socket(c.To)
			if to == nil || to.Dir != DirOut {
				return nodeErr(n.ID, "carried binding targets unknown output socket %q", c.To)
			}
			src := g.Node(c.From.NodeID)
			if src == nil || !inBody[src.ID] {
				return nodeErr(n.ID, "carried binding source node %d is not in the loop body", c.From.NodeID)
			}
			srcSocket := src.Socket(c.From.SocketID)
			if srcSocket == nil || srcSocket.Dir != DirOut {
				return nodeErr(n.ID, "carried binding source %d.%s is not an output socket", c.From.NodeID, c.From.SocketID)
			}
		}
		for _, id := range n.Loop.Body {
			for _, e := range g.outEdges[id] {
				if !inBody[e.To.Node] {
					return edgeErr(e.ID, "loop body socket %s consumed outside the loop body", e.From)
				}
			}
		}
	}
	return nil
}

// checkReachability verifies every non-control-flow node lies on a path
// from an INPUT node to an OUTPUT node. Loop-carried bindings count as
// a path from the producing body node to the loop node, and an IF_ELSE
// condition path continues into its branch members.
func (g *Graph) checkReachability() *ValidationError {
	forward := make(map[int][]int)
	backward := make(map[int][]int)
	link := func(from, to int) {
		forward[from] = append(forward[from], to)
		backward[to] = append(backward[to], from)
	}
	for _, e := range g.Edges {
		link(e.From.Node, e.To.Node)
	}
	for _, n := range g.Nodes {
		switch n.Kind {
		case types.NodeKindLoop:
			for _, c := range n.Loop.Carried {
				link(c.From.NodeID, n.ID)
			}
		case types.NodeKindIfElse:
			// The condition path continues into the branches it selects.
			for _, id := range append(append([]int{}, n.IfElse.Then...), n.IfElse.Else...) {
				link(n.ID, id)
			}
		}
	}

	bfs := func(adj map[int][]int, seeds []int) map[int]bool {
		seen := make(map[int]bool)
		queue := append([]int{}, seeds...)
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			if seen[id] {
				continue
			}
			seen[id] = true
			queue = append(queue, adj[id]...)
		}
		return seen
	}

	var inputs, outputs []int
	for _, n := range g.Nodes {
		switch n.Kind {
		case types.NodeKindInput:
			inputs = append(inputs, n.ID)
		case types.NodeKindOutput:
			outputs = append(outputs, n.ID)
		}
	}
	fromInput := bfs(forward, inputs)
	toOutput := bfs(backward, outputs)

	for _, n := range g.Nodes {
		if n.Kind.IsControlFlow() {
			continue
		}
		if !fromInput[n.ID] {
			return nodeErr(n.ID, "node is not reachable from any INPUT node")
		}
		if !toOutput[n.ID] {
			return nodeErr(n.ID, "node does not reach any OUTPUT node")
		}
	}
	return nil
}

// typesCompatible implements edge type checking: exact match, ANY on
// either side, or a declared coercion (INT widening to FLOAT, scalar to
// STRING).
func typesCompatible(from, to types.SocketType, coerce bool) bool {
	if from == to || from == types.SocketTypeAny || to == types.SocketTypeAny {
		return true
	}
	if !coerce {
		return false
	}
	if from == types.SocketTypeInt && to == types.SocketTypeFloat {
		return true
	}
	if to == types.SocketTypeString && from != types.SocketTypeFile {
		return true
	}
	return false
}
