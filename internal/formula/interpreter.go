// Package formula implements the trail expression language: formulas built
// from literals, bracketed column references and a fixed registry of builtin
// functions, evaluated against a read-only context.
//
// Evaluation is pure and reentrant: no I/O, no context mutation, no
// locking needed by callers. The same (formula, context) pair always yields
// the same value or the same error code, so live preview and real execution
// cannot diverge as long as they share one Interpreter.
package formula

import (
	"sync"

	"github.com/pedbender123/repforce-web-sub002/pkg/schema"
)

// Interpreter parses and evaluates formulas. Parsed ASTs are cached per
// formula string, so re-evaluating the same formula on every editor
// keystroke only pays the parse cost once. Thread-safe.
type Interpreter struct {
	mu    sync.RWMutex
	cache map[string]expr
}

// New creates an Interpreter with an empty AST cache.
func New() *Interpreter {
	return &Interpreter{cache: make(map[string]expr)}
}

// Evaluate parses (or retrieves from cache) the formula and evaluates it
// against context. Every failure is a typed *schema.TrailError value:
// PARSE_ERROR, UNKNOWN_REFERENCE, UNKNOWN_FUNCTION, TYPE_MISMATCH or
// ARITY_MISMATCH. Malformed input never panics.
func (in *Interpreter) Evaluate(src string, context map[string]any) (any, error) {
	root, err := in.getOrParse(src)
	if err != nil {
		return nil, err
	}
	val, evalErr := eval(root, context)
	if evalErr != nil {
		return nil, evalErr
	}
	return val, nil
}

// Parse parses without evaluating, for static checks. The AST is cached
// like in Evaluate.
func (in *Interpreter) Parse(src string) error {
	_, err := in.getOrParse(src)
	if err != nil {
		return err
	}
	return nil
}

// References returns the dotted symbol of every column reference in the
// formula, and the name of every called function, for static checking
// against the computed-variable list.
func (in *Interpreter) References(src string) (refs, funcs []string, err error) {
	root, perr := in.getOrParse(src)
	if perr != nil {
		return nil, nil, perr
	}
	collect(root, &refs, &funcs)
	return refs, funcs, nil
}

// getOrParse returns a cached AST or parses and caches a new one.
func (in *Interpreter) getOrParse(src string) (expr, *schema.TrailError) {
	in.mu.RLock()
	if root, ok := in.cache[src]; ok {
		in.mu.RUnlock()
		return root, nil
	}
	in.mu.RUnlock()

	in.mu.Lock()
	defer in.mu.Unlock()

	// Double-check after acquiring write lock.
	if root, ok := in.cache[src]; ok {
		return root, nil
	}

	root, err := parse(src)
	if err != nil {
		return nil, err
	}
	in.cache[src] = root
	return root, nil
}

func collect(e expr, refs, funcs *[]string) {
	switch x := e.(type) {
	case *refExpr:
		*refs = append(*refs, x.fullName())
	case *callExpr:
		*funcs = append(*funcs, x.name)
		for _, a := range x.args {
			collect(a, refs, funcs)
		}
	case *binaryExpr:
		collect(x.left, refs, funcs)
		collect(x.right, refs, funcs)
	case *unaryExpr:
		collect(x.operand, refs, funcs)
	}
}
