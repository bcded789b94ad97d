// Package plan expands control-flow regions of a validated graph into a
// concrete, deterministic execution plan.
package plan

import (
	"fmt"

	"github.com/unicon/grader-go/internal/graph"
	"github.com/unicon/grader-go/pkg/types"
)

// Unit is one step of an execution plan: a plain node, or a control-flow
// region carrying its ordered sub-plans.
type Unit struct {
	Node *graph.Node

	// Then and Else are the branch sub-plans of an IF_ELSE region.
	Then []Unit
	Else []Unit

	// Body is the per-iteration sub-plan of a LOOP region.
	Body []Unit
}

// Plan is the ordered execution plan for one graph.
type Plan struct {
	Units []Unit
}

// Build resolves the plan for a validated graph. Sibling nodes with no
// data dependency are ordered by declaration position, so the plan is a
// pure function of the definition.
func Build(g *graph.Graph) (*Plan, error) {
	units, err := buildLevel(g, func(n *graph.Node) bool {
		_, owned := g.Owner(n.ID)
		return !owned
	})
	if err != nil {
		return nil, err
	}
	return &Plan{Units: units}, nil
}

func buildLevel(g *graph.Graph, include func(*graph.Node) bool) ([]Unit, error) {
	order, err := g.TopologicalOrder(include)
	if err != nil {
		return nil, err
	}

	units := make([]Unit, 0, len(order))
	for _, n := range order {
		unit := Unit{Node: n}
		switch n.Kind {
		case types.NodeKindIfElse:
			if unit.Then, err = buildMembers(g, n.ID, n.IfElse.Then); err != nil {
				return nil, err
			}
			if unit.Else, err = buildMembers(g, n.ID, n.IfElse.Else); err != nil {
				return nil, err
			}
		case types.NodeKindLoop:
			if unit.Body, err = buildMembers(g, n.ID, n.Loop.Body); err != nil {
				return nil, err
			}
		}
		units = append(units, unit)
	}
	return units, nil
}

func buildMembers(g *graph.Graph, regionID int, memberIDs []int) ([]Unit, error) {
	members := make(map[int]bool, len(memberIDs))
	for _, id := range memberIDs {
		members[id] = true
	}
	units, err := buildLevel(g, func(n *graph.Node) bool {
		return members[n.ID]
	})
	if err != nil {
		return nil, fmt.Errorf("region %d: %w", regionID, err)
	}
	return units, nil
}
