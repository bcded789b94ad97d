package executor

import (
	"context"
	"fmt"
	"math"
	"reflect"

	"github.com/unicon/grader-go/internal/graph"
	"github.com/unicon/grader-go/pkg/types"
)

// StringMatchExecutor compares the string forms of its two inputs and
// binds the boolean result to its single output socket.
type StringMatchExecutor struct{}

func (e *StringMatchExecutor) Execute(_ context.Context, n *graph.Node, in Inputs) (Outputs, error) {
	left, right := in[n.Inputs[0].ID], in[n.Inputs[1].ID]
	result := Stringify(left) == Stringify(right)
	return Outputs{n.Outputs[0].ID: result}, nil
}

// CompareExecutor applies its configured operator to two inputs. Ordering
// operators require numeric operands; equality falls back to deep
// equality for non-numeric values.
type CompareExecutor struct{}

func (e *CompareExecutor) Execute(_ context.Context, n *graph.Node, in Inputs) (Outputs, error) {
	left, right := in[n.Inputs[0].ID], in[n.Inputs[1].ID]
	cfg := n.Compare

	lf, lok := ToFloat(left)
	rf, rok := ToFloat(right)
	numeric := lok && rok

	var result bool
	switch cfg.Operator {
	case types.CompareEqual, types.CompareNotEqual:
		var equal bool
		if numeric {
			if cfg.Tolerance > 0 {
				equal = math.Abs(lf-rf) <= cfg.Tolerance
			} else {
				equal = lf == rf
			}
		} else {
			equal = reflect.DeepEqual(left, right)
		}
		result = equal == (cfg.Operator == types.CompareEqual)
	case types.CompareLess, types.CompareLessEqual,
		types.CompareGreater, types.CompareGreaterEqual:
		if !numeric {
			return nil, failf(n.ID, types.FailureTypeMismatch,
				"operator %s requires numeric operands, got %T and %T",
				cfg.Operator, left, right)
		}
		switch cfg.Operator {
		case types.CompareLess:
			result = lf < rf
		case types.CompareLessEqual:
			result = lf <= rf
		case types.CompareGreater:
			result = lf > rf
		case types.CompareGreaterEqual:
			result = lf >= rf
		}
	default:
		return nil, fmt.Errorf("unknown compare operator %q", cfg.Operator)
	}

	return Outputs{n.Outputs[0].ID: result}, nil
}

// Stringify renders a bus value the way it would appear to the submitter.
func Stringify(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ToFloat widens any numeric bus value to float64. JSON decoding yields
// float64, but literals authored in Go tests may carry int.
func ToFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
