package plan

import (
	"testing"

	"github.com/unicon/grader-go/internal/graph"
	"github.com/unicon/grader-go/pkg/types"
)

func intp(i int) *int { return &i }

func TestBuildNestsRegions(t *testing.T) {
	def := &types.GraphDefinition{
		Nodes: []types.NodeSpec{
			{ID: 1, Kind: types.NodeKindInput, Outputs: []types.SocketSpec{
				{ID: "seed", Type: types.SocketTypeBool, Data: true},
				{ID: "limit", Type: types.SocketTypeInt, Data: 10},
			}},
			{ID: 2, Kind: types.NodeKindLoop,
				Loop: &types.LoopConfig{
					Count: intp(2),
					Body:  []int{3},
					Carried: []types.CarriedBinding{
						{From: types.SocketRef{NodeID: 3, SocketID: "eq"}, To: "state"},
					},
				},
				Inputs:  []types.SocketSpec{{ID: "init", Type: types.SocketTypeBool}},
				Outputs: []types.SocketSpec{{ID: "state", Type: types.SocketTypeBool}},
			},
			{ID: 3, Kind: types.NodeKindCompare,
				Compare: &types.CompareConfig{Operator: types.CompareEqual},
				Inputs: []types.SocketSpec{
					{ID: "l", Type: types.SocketTypeBool},
					{ID: "r", Type: types.SocketTypeInt},
				},
				Outputs: []types.SocketSpec{{ID: "eq", Type: types.SocketTypeBool}},
			},
			{ID: 4, Kind: types.NodeKindOutput, Inputs: []types.SocketSpec{
				{ID: "res", Type: types.SocketTypeBool, Public: true},
			}},
		},
		Edges: []types.EdgeSpec{
			{ID: 1, FromNodeID: 1, FromSocketID: "seed", ToNodeID: 2, ToSocketID: "init"},
			{ID: 2, FromNodeID: 2, FromSocketID: "state", ToNodeID: 3, ToSocketID: "l"},
			{ID: 3, FromNodeID: 1, FromSocketID: "limit", ToNodeID: 3, ToSocketID: "r"},
			{ID: 4, FromNodeID: 2, FromSocketID: "state", ToNodeID: 4, ToSocketID: "res"},
		},
	}

	g, err := graph.Compile(def)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	p, err := Build(g)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// Top level excludes the loop body; the body hangs off the loop unit.
	wantTop := []int{1, 2, 4}
	if len(p.Units) != len(wantTop) {
		t.Fatalf("top level has %d units, want %d", len(p.Units), len(wantTop))
	}
	for i, u := range p.Units {
		if u.Node.ID != wantTop[i] {
			t.Fatalf("top[%d] = node %d, want %d", i, u.Node.ID, wantTop[i])
		}
	}
	loopUnit := p.Units[1]
	if len(loopUnit.Body) != 1 || loopUnit.Body[0].Node.ID != 3 {
		t.Fatalf("loop body plan = %+v, want [node 3]", loopUnit.Body)
	}
}

func TestBuildOrdersBranches(t *testing.T) {
	def := &types.GraphDefinition{
		Nodes: []types.NodeSpec{
			{ID: 1, Kind: types.NodeKindInput, Outputs: []types.SocketSpec{
				{ID: "cond", Type: types.SocketTypeBool, Data: true},
				{ID: "a", Type: types.SocketTypeInt, Data: 1},
			}},
			{ID: 2, Kind: types.NodeKindIfElse,
				IfElse: &types.IfElseConfig{Then: []int{3}, Else: []int{4}},
				Inputs: []types.SocketSpec{{ID: "cond", Type: types.SocketTypeBool}},
			},
			{ID: 3, Kind: types.NodeKindCompare,
				Compare: &types.CompareConfig{Operator: types.CompareEqual},
				Inputs: []types.SocketSpec{
					{ID: "l", Type: types.SocketTypeInt},
					{ID: "r", Type: types.SocketTypeInt},
				},
				Outputs: []types.SocketSpec{{ID: "eq", Type: types.SocketTypeBool}},
			},
			{ID: 4, Kind: types.NodeKindCompare,
				Compare: &types.CompareConfig{Operator: types.CompareNotEqual},
				Inputs: []types.SocketSpec{
					{ID: "l", Type: types.SocketTypeInt},
					{ID: "r", Type: types.SocketTypeInt},
				},
				Outputs: []types.SocketSpec{{ID: "ne", Type: types.SocketTypeBool}},
			},
			{ID: 5, Kind: types.NodeKindOutput, Inputs: []types.SocketSpec{
				{ID: "then_res", Type: types.SocketTypeBool},
				{ID: "else_res", Type: types.SocketTypeBool},
			}},
		},
		Edges: []types.EdgeSpec{
			{ID: 1, FromNodeID: 1, FromSocketID: "cond", ToNodeID: 2, ToSocketID: "cond"},
			{ID: 2, FromNodeID: 1, FromSocketID: "a", ToNodeID: 3, ToSocketID: "l"},
			{ID: 3, FromNodeID: 1, FromSocketID: "a", ToNodeID: 3, ToSocketID: "r"},
			{ID: 4, FromNodeID: 1, FromSocketID: "a", ToNodeID: 4, ToSocketID: "l"},
			{ID: 5, FromNodeID: 1, FromSocketID: "a", ToNodeID: 4, ToSocketID: "r"},
			{ID: 6, FromNodeID: 3, FromSocketID: "eq", ToNodeID: 5, ToSocketID: "then_res"},
			{ID: 7, FromNodeID: 4, FromSocketID: "ne", ToNodeID: 5, ToSocketID: "else_res"},
		},
	}

	g, err := graph.Compile(def)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	p, err := Build(g)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	var ifUnit *Unit
	for i := range p.Units {
		if p.Units[i].Node.ID == 2 {
			ifUnit = &p.Units[i]
		}
	}
	if ifUnit == nil {
		t.Fatalf("if unit missing from plan")
	}
	if len(ifUnit.Then) != 1 || ifUnit.Then[0].Node.ID != 3 {
		t.Fatalf("then branch = %+v, want [node 3]", ifUnit.Then)
	}
	if len(ifUnit.Else) != 1 || ifUnit.Else[0].Node.ID != 4 {
		t.Fatalf("else branch = %+v, want [node 4]", ifUnit.Else)
	}
}

func TestBuildOrdersConsumerAfterRegion(t *testing.T) {
	// Node 2 consumes a branch output but is declared before the IF_ELSE
	// producing it. Its dependency runs through the region node, so it must
	// still be scheduled after the region despite declaration order.
	def := &types.GraphDefinition{
		Nodes: []types.NodeSpec{
			{ID: 1, Kind: types.NodeKindInput, Outputs: []types.SocketSpec{
				{ID: "cond", Type: types.SocketTypeBool, Data: true},
				{ID: "a", Type: types.SocketTypeInt, Data: 1},
			}},
			{ID: 2, Kind: types.NodeKindCompare,
				Compare: &types.CompareConfig{Operator: types.CompareEqual},
				Inputs: []types.SocketSpec{
					{ID: "l", Type: types.SocketTypeBool},
					{ID: "r", Type: types.SocketTypeBool},
				},
				Outputs: []types.SocketSpec{{ID: "eq", Type: types.SocketTypeBool}},
			},
			{ID: 3, Kind: types.NodeKindIfElse,
				IfElse: &types.IfElseConfig{Then: []int{4}},
				Inputs: []types.SocketSpec{{ID: "cond", Type: types.SocketTypeBool}},
			},
			{ID: 4, Kind: types.NodeKindCompare,
				Compare: &types.CompareConfig{Operator: types.CompareEqual},
				Inputs: []types.SocketSpec{
					{ID: "l", Type: types.SocketTypeInt},
					{ID: "r", Type: types.SocketTypeInt},
				},
				Outputs: []types.SocketSpec{{ID: "eq", Type: types.SocketTypeBool}},
			},
			{ID: 5, Kind: types.NodeKindOutput, Inputs: []types.SocketSpec{
				{ID: "res", Type: types.SocketTypeBool, Public: true},
			}},
		},
		Edges: []types.EdgeSpec{
			{ID: 1, FromNodeID: 1, FromSocketID: "cond", ToNodeID: 3, ToSocketID: "cond"},
			{ID: 2, FromNodeID: 1, FromSocketID: "a", ToNodeID: 4, ToSocketID: "l"},
			{ID: 3, FromNodeID: 1, FromSocketID: "a", ToNodeID: 4, ToSocketID: "r"},
			{ID: 4, FromNodeID: 4, FromSocketID: "eq", ToNodeID: 2, ToSocketID: "l"},
			{ID: 5, FromNodeID: 1, FromSocketID: "cond", ToNodeID: 2, ToSocketID: "r"},
			{ID: 6, FromNodeID: 2, FromSocketID: "eq", ToNodeID: 5, ToSocketID: "res"},
		},
	}

	g, err := graph.Compile(def)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	p, err := Build(g)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	wantTop := []int{1, 3, 2, 5}
	if len(p.Units) != len(wantTop) {
		t.Fatalf("top level has %d units, want %d", len(p.Units), len(wantTop))
	}
	for i, u := range p.Units {
		if u.Node.ID != wantTop[i] {
			t.Fatalf("top[%d] = node %d, want %d", i, u.Node.ID, wantTop[i])
		}
	}
}
