// Package graph provides the typed in-memory representation of a testcase
// pipeline and its structural validation.
package graph

import (
	"fmt"

	"github.com/unicon/grader-go/pkg/types"
)

// Direction distinguishes input and output sockets.
type Direction string

const (
	DirIn  Direction = "IN"
	DirOut Direction = "OUT"
)

// SocketAddr identifies a socket on the data bus: (node id, socket id).
type SocketAddr struct {
	Node   int
	Socket string
}

func (a SocketAddr) String() string {
	return fmt.Sprintf("%d.%s", a.Node, a.Socket)
}

// Socket is a typed named endpoint on a node. Sockets do not own values;
// they are addresses on the data bus.
type Socket struct {
	ID       string
	Type     types.SocketType
	Dir      Direction
	Data     interface{}
	Public   bool
	Expected interface{}
}

// Node is one step in the pipeline.
type Node struct {
	ID   int
	Kind types.NodeKind

	// Index is the declaration position within the definition; sibling
	// nodes with no data dependency execute in this order.
	Index int

	IsUser  bool
	Inputs  []*Socket
	Outputs []*Socket

	RunFunction *types.RunFunctionConfig
	Compare     *types.CompareConfig
	IfElse      *types.IfElseConfig
	Loop        *types.LoopConfig

	sockets map[string]*Socket
}

// Socket looks up a socket by ID across both directions.
func (n *Node) Socket(id string) *Socket {
	return n.sockets[id]
}

// Addr returns the bus address of one of this node's sockets.
func (n *Node) Addr(socketID string) SocketAddr {
	return SocketAddr{Node: n.ID, Socket: socketID}
}

// Edge connects exactly one producer output socket to one consumer input
// socket.
type Edge struct {
	ID     int
	From   SocketAddr
	To     SocketAddr
	Coerce bool
}

// Graph is the validated, read-only pipeline for one testcase.
type Graph struct {
	Nodes []*Node
	Edges []*Edge

	nodeByID map[int]*Node
	inEdges  map[int][]*Edge
	outEdges map[int][]*Edge
	inEdgeTo map[SocketAddr]*Edge

	// owner maps region-member node IDs to their owning control-flow node.
	owner map[int]int
}

// Node returns the node with the given ID, or nil.
func (g *Graph) Node(id int) *Node { return g.nodeByID[id] }

// InEdges returns the edges terminating at the given node.
func (g *Graph) InEdges(nodeID int) []*Edge { return g.inEdges[nodeID] }

// OutEdges returns the edges originating at the given node.
func (g *Graph) OutEdges(nodeID int) []*Edge { return g.outEdges[nodeID] }

// IncomingEdge returns the single edge feeding an input socket, or nil.
func (g *Graph) IncomingEdge(addr SocketAddr) *Edge { return g.inEdgeTo[addr] }

// Owner reports the control-flow node owning the given node, if any.
func (g *Graph) Owner(nodeID int) (int, bool) {
	id, ok := g.owner[nodeID]
	return id, ok
}

// OutputNodes returns all OUTPUT nodes in declaration order.
func (g *Graph) OutputNodes() []*Node {
	var out []*Node
	for _, n := range g.Nodes {
		if n.Kind == types.NodeKindOutput {
			out = append(out, n)
		}
	}
	return out
}

// UserInputNode returns the INPUT node bound at execution time, or nil.
func (g *Graph) UserInputNode() *Node {
	for _, n := range g.Nodes {
		if n.Kind == types.NodeKindInput && n.IsUser {
			return n
		}
	}
	return nil
}

// TopologicalOrder orders the nodes selected by include. Edges whose
// endpoints sit inside a control-flow region constrain this level through
// the region's owning node: a consumer of a branch output depends on the
// IF_ELSE node itself, not on the hidden member. Ties break on
// declaration order, making the result a pure function of the definition.
// Returns an error if the selected subgraph has a cycle.
func (g *Graph) TopologicalOrder(include func(*Node) bool) ([]*Node, error) {
	selected := make(map[int]bool)
	for _, n := range g.Nodes {
		if include == nil || include(n) {
			selected[n.ID] = true
		}
	}

	// lift resolves an edge endpoint to its representative at this level:
	// a region member is represented by its owning control-flow node,
	// transitively for nested regions. Endpoints with no selected
	// representative do not constrain this level.
	lift := func(id int) (int, bool) {
		for !selected[id] {
			owner, ok := g.owner[id]
			if !ok {
				return 0, false
			}
			id = owner
		}
		return id, true
	}

	inDegree := make(map[int]int, len(selected))
	succ := make(map[int][]int, len(selected))
	for _, e := range g.Edges {
		from, fromOK := lift(e.From.Node)
		to, toOK := lift(e.To.Node)
		if !fromOK || !toOK || from == to {
			continue
		}
		inDegree[to]++
		succ[from] = append(succ[from], to)
	}

	order := make([]*Node, 0, len(selected))
	placed := make(map[int]bool, len(selected))
	for len(order) < len(selected) {
		next := (*Node)(nil)
		for _, n := range g.Nodes {
			if selected[n.ID] && !placed[n.ID] && inDegree[n.ID] == 0 {
				next = n
				break
			}
		}
		if next == nil {
			return nil, fmt.Errorf("graph has a cycle")
		}
		placed[next.ID] = true
		order = append(order, next)
		for _, to := range succ[next.ID] {
			if !placed[to] {
				inDegree[to]--
			}
		}
	}
	return order, nil
}
