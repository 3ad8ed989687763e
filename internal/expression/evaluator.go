// Package expression evaluates workflow trigger conditions and renders
// message/context templates over a name-resolution context built from
// workflow state, session fields, and the current hook event.
//
// Conditions use a safe subset of expr-lang: arithmetic, comparison,
// boolean logic, membership, and attribute/index access, plus a small
// allowlist of custom functions (has, includes, length). No other
// function calls are reachable from a compiled expression. A failing
// expression evaluates to false rather than propagating; callers that
// want the error for debug logging get it as the second return value.
package expression

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	gobbyerrors "github.com/gobby-dev/gobby/pkg/errors"
)

// Evaluator compiles and caches condition expressions.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// New constructs an empty Evaluator.
func New() *Evaluator {
	return &Evaluator{cache: make(map[string]*vm.Program)}
}

// Evaluate compiles (or reuses a cached compile of) expression and runs it
// against ctx. An empty expression is treated as an unconditional match.
// Compile or runtime failures are reported via err but also collapse to a
// false result, matching the "errors evaluate to false" invariant callers
// rely on when they only check the bool.
func (e *Evaluator) Evaluate(expression string, ctx map[string]interface{}) (bool, error) {
	if expression == "" {
		return true, nil
	}

	program, err := e.compile(expression)
	if err != nil {
		return false, gobbyerrors.NewValidationError("expression", fmt.Sprintf("failed to compile expression: %s", err.Error()), "check expression syntax and ensure all referenced variables exist")
	}

	evalCtx := make(map[string]interface{}, len(ctx)+3)
	for k, v := range ctx {
		evalCtx[k] = v
	}
	evalCtx["has"] = containsFunc
	evalCtx["includes"] = containsFunc
	evalCtx["length"] = lenFunc

	result, err := expr.Run(program, evalCtx)
	if err != nil {
		return false, gobbyerrors.NewValidationError("expression", fmt.Sprintf("expression evaluation failed: %s", err.Error()), "verify that all referenced variables exist in the workflow context")
	}

	boolResult, ok := result.(bool)
	if !ok {
		return false, gobbyerrors.NewValidationError("expression", fmt.Sprintf("expression must return boolean, got %T (%v)", result, result), "use comparison operators (==, !=, <, >, etc.) or boolean functions")
	}
	return boolResult, nil
}

func (e *Evaluator) compile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if prog, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	env := map[string]interface{}{"has": containsFunc, "includes": containsFunc, "length": lenFunc}
	prog, err := expr.Compile(expression, expr.Env(env), expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = prog
	e.mu.Unlock()
	return prog, nil
}

// ClearCache drops every compiled program, forcing recompilation on next use.
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	e.cache = make(map[string]*vm.Program)
	e.mu.Unlock()
}

// CacheSize reports the number of compiled programs currently cached.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
