package triggers

import (
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/pedbender123/repforce-web-sub002/pkg/schema"
)

// RowFilter evaluates DB event filter expressions against the affected
// row's fields, which are exposed as top-level variables.
// Thread-safe: compiled *vm.Program objects are cached and reused.
type RowFilter struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewRowFilter creates a row filter evaluator.
func NewRowFilter() *RowFilter {
	return &RowFilter{
		cache: make(map[string]*vm.Program),
	}
}

// Match evaluates a filter expression against a row. The filter must
// produce a boolean; anything else is a configuration defect.
func (f *RowFilter) Match(expression string, row map[string]any) (bool, error) {
	if expression == "" {
		return true, nil // no filter means every row matches
	}

	prg, err := f.getOrCompile(expression)
	if err != nil {
		return false, err
	}

	env := row
	if env == nil {
		env = map[string]any{}
	}

	out, err := vm.Run(prg, env)
	if err != nil {
		return false, schema.NewErrorf(schema.ErrCodeTriggerRejected,
			"filter evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	matched, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"filter %q did not produce a boolean (got %T)", expression, out).
			WithDetails(map[string]any{"expression": expression})
	}
	return matched, nil
}

// getOrCompile returns a cached compiled program or compiles and caches a new one.
func (f *RowFilter) getOrCompile(expression string) (*vm.Program, error) {
	f.mu.RLock()
	if prg, ok := f.cache[expression]; ok {
		f.mu.RUnlock()
		return prg, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	// Double-check after acquiring write lock.
	if prg, ok := f.cache[expression]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(expression,
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"filter compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	f.cache[expression] = prg
	return prg, nil
}
