package engine

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprEvaluator provides safe loop-predicate evaluation with caching.
// Expressions are compiled once and cached for reuse across iterations
// and testcases.
type ExprEvaluator struct {
	compiled map[string]*vm.Program
	mu       sync.RWMutex

	// MaxExpressionLength limits expression size for security (default: 4096)
	MaxExpressionLength int
}

// NewExprEvaluator creates a new expression evaluator.
func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{
		compiled:            make(map[string]*vm.Program),
		MaxExpressionLength: 4096,
	}
}

// Evaluate evaluates an expression against an environment. The
// environment maps the loop's output socket IDs to their carried values.
func (e *ExprEvaluator) Evaluate(expression string, env map[string]interface{}) (interface{}, error) {
	if len(expression) > e.MaxExpressionLength {
		return nil, fmt.Errorf("expression exceeds maximum length of %d characters", e.MaxExpressionLength)
	}

	e.mu.RLock()
	prog, ok := e.compiled[expression]
	e.mu.RUnlock()

	if !ok {
		// Compiled without a typed environment: the socket set differs
		// per definition.
		var err error
		prog, err = expr.Compile(expression)
		if err != nil {
			return nil, fmt.Errorf("compile expression %q: %w", expression, err)
		}

		e.mu.Lock()
		e.compiled[expression] = prog
		e.mu.Unlock()
	}

	result, err := expr.Run(prog, env)
	if err != nil {
		return nil, fmt.Errorf("evaluate expression %q: %w", expression, err)
	}

	return result, nil
}

// EvaluateBool evaluates an expression and requires a boolean result.
// Predicates are strict: a non-bool result is an error, never truthiness.
func (e *ExprEvaluator) EvaluateBool(expression string, env map[string]interface{}) (bool, error) {
	result, err := e.Evaluate(expression, env)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q returned %T, expected bool", expression, result)
	}
	return b, nil
}
