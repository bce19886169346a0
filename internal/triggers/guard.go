package triggers

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/pedbender123/repforce-web-sub002/pkg/schema"
)

// CELGuard evaluates webhook guard expressions. The environment exposes
// three top-level variables:
//   - body:    map(string, dyn) — parsed webhook body
//   - query:   map(string, dyn) — query parameters
//   - headers: map(string, dyn) — request headers
//
// Thread-safe: compiled programs are cached and reused across goroutines.
type CELGuard struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELGuard creates a guard evaluator with a sandboxed CEL environment.
func NewCELGuard() (*CELGuard, error) {
	mapType := cel.MapType(cel.StringType, cel.DynType)

	env, err := cel.NewEnv(
		cel.Variable("body", mapType),
		cel.Variable("query", mapType),
		cel.Variable("headers", mapType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &CELGuard{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

// Allow evaluates a guard expression against a webhook request. The guard
// must produce a boolean; anything else is a configuration defect.
func (g *CELGuard) Allow(expression string, body, query, headers map[string]any) (bool, error) {
	if expression == "" {
		return true, nil // no guard means every request passes
	}

	prg, err := g.getOrCompile(expression)
	if err != nil {
		return false, err
	}

	activation := map[string]any{
		"body":    orEmpty(body),
		"query":   orEmpty(query),
		"headers": orEmpty(headers),
	}

	out, _, err := prg.Eval(activation)
	if err != nil {
		return false, schema.NewErrorf(schema.ErrCodeTriggerRejected,
			"guard evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	allowed, ok := out.Value().(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"guard %q did not produce a boolean (got %T)", expression, out.Value()).
			WithDetails(map[string]any{"expression": expression})
	}
	return allowed, nil
}

// getOrCompile returns a cached compiled program or compiles and caches a new one.
func (g *CELGuard) getOrCompile(expression string) (cel.Program, error) {
	g.mu.RLock()
	if prg, ok := g.cache[expression]; ok {
		g.mu.RUnlock()
		return prg, nil
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	// Double-check after acquiring write lock.
	if prg, ok := g.cache[expression]; ok {
		return prg, nil
	}

	ast, issues := g.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"guard compile error in %q: %s", expression, issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"expression": expression})
	}

	prg, err := g.env.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"guard program error for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	g.cache[expression] = prg
	return prg, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
