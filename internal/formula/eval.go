package formula

import (
	"strconv"

	"github.com/pedbender123/repforce-web-sub002/pkg/schema"
)

// eval walks the AST against the context. The context is never mutated.
func eval(e expr, context map[string]any) (any, *schema.TrailError) {
	switch x := e.(type) {
	case *numberLit:
		return x.val, nil
	case *stringLit:
		return x.val, nil
	case *boolLit:
		return x.val, nil
	case *refExpr:
		return evalRef(x, context)
	case *callExpr:
		return evalCall(x, context)
	case *unaryExpr:
		return evalUnary(x, context)
	case *binaryExpr:
		return evalBinary(x, context)
	}
	return nil, schema.NewError(schema.ErrCodeParse, "unknown expression node")
}

// evalRef resolves a column reference. Lookup is exact-match on the full
// dotted symbol first (the engine seeds namespaced keys like
// "CriarCliente.new_id" flat); when that misses, the base reference is
// looked up and the postfix path traversed through nested maps, which is
// how webhook payload fields ([trigger.body].customer) resolve.
func evalRef(ref *refExpr, context map[string]any) (any, *schema.TrailError) {
	full := ref.fullName()
	if v, ok := context[full]; ok {
		return v, nil
	}

	base, ok := context[ref.name]
	if !ok {
		return nil, unknownRef(ref.off, full, context)
	}
	current := base
	for _, seg := range ref.path {
		m, isMap := current.(map[string]any)
		if !isMap {
			return nil, schema.NewErrorf(schema.ErrCodeTypeMismatch,
				"cannot access field %q on %s value in [%s]", seg, typeName(current), full).
				WithDetails(map[string]any{"offset": ref.off})
		}
		v, found := m[seg]
		if !found {
			return nil, unknownRef(ref.off, full, context)
		}
		current = v
	}
	return current, nil
}

func unknownRef(off int, name string, context map[string]any) *schema.TrailError {
	available := make([]string, 0, len(context))
	for k := range context {
		available = append(available, k)
	}
	return schema.NewErrorf(schema.ErrCodeUnknownReference,
		"unknown column reference [%s]", name).
		WithDetails(map[string]any{"offset": off, "reference": name, "available": available})
}

// evalCall dispatches a function call against the builtin registry.
// IF, AND and OR short-circuit: untaken branches are never evaluated, so a
// guarded reference error does not poison preview of the other branch.
func evalCall(call *callExpr, context map[string]any) (any, *schema.TrailError) {
	spec, ok := builtins[call.name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeUnknownFunction,
			"unknown function %s", call.name).
			WithDetails(map[string]any{"offset": call.off, "function": call.name})
	}

	if len(call.args) < spec.minArgs || (spec.maxArgs >= 0 && len(call.args) > spec.maxArgs) {
		want := arityLabel(spec)
		return nil, schema.NewErrorf(schema.ErrCodeArityMismatch,
			"%s expects %s argument(s), got %d", call.name, want, len(call.args)).
			WithDetails(map[string]any{"offset": call.off, "function": call.name})
	}

	switch call.name {
	case "IF":
		cond, err := eval(call.args[0], context)
		if err != nil {
			return nil, err
		}
		if Truthy(cond) {
			return eval(call.args[1], context)
		}
		return eval(call.args[2], context)

	case "AND":
		for _, arg := range call.args {
			v, err := eval(arg, context)
			if err != nil {
				return nil, err
			}
			if !Truthy(v) {
				return false, nil
			}
		}
		return true, nil

	case "OR":
		for _, arg := range call.args {
			v, err := eval(arg, context)
			if err != nil {
				return nil, err
			}
			if Truthy(v) {
				return true, nil
			}
		}
		return false, nil
	}

	args := make([]any, len(call.args))
	for i, arg := range call.args {
		v, err := eval(arg, context)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return spec.fn(call.off, args)
}

func arityLabel(spec builtin) string {
	if spec.maxArgs < 0 {
		return "at least " + strconv.Itoa(spec.minArgs)
	}
	if spec.minArgs == spec.maxArgs {
		return strconv.Itoa(spec.minArgs)
	}
	return strconv.Itoa(spec.minArgs) + " to " + strconv.Itoa(spec.maxArgs)
}

func evalUnary(u *unaryExpr, context map[string]any) (any, *schema.TrailError) {
	v, err := eval(u.operand, context)
	if err != nil {
		return nil, err
	}
	n, ok := asNumber(v)
	if !ok {
		return nil, typeMismatchAt(u.off, "unary '-' needs a number, got %s", typeName(v))
	}
	return -n, nil
}

func evalBinary(b *binaryExpr, context map[string]any) (any, *schema.TrailError) {
	left, err := eval(b.left, context)
	if err != nil {
		return nil, err
	}
	right, err := eval(b.right, context)
	if err != nil {
		return nil, err
	}

	switch b.op {
	case tokPlus, tokMinus, tokStar, tokSlash:
		ln, lok := asNumber(left)
		rn, rok := asNumber(right)
		if !lok || !rok {
			bad := left
			if lok {
				bad = right
			}
			return nil, typeMismatchAt(b.off, "arithmetic on %s value", typeName(bad))
		}
		switch b.op {
		case tokPlus:
			return ln + rn, nil
		case tokMinus:
			return ln - rn, nil
		case tokStar:
			return ln * rn, nil
		default:
			// IEEE-754 division: x/0 is ±Inf, matching the double-precision
			// semantics the language promises.
			return ln / rn, nil
		}

	case tokEq:
		return valuesEqual(left, right), nil
	case tokNeq:
		return !valuesEqual(left, right), nil

	case tokLt, tokLte, tokGt, tokGte:
		return evalOrdering(b.off, b.op, left, right)
	}

	return nil, schema.NewError(schema.ErrCodeParse, "unknown binary operator")
}

// valuesEqual compares two values: numbers numerically, text and bools by
// identity, blanks to blanks. Values of different types are never equal —
// the result is deterministic, not an error.
func valuesEqual(a, b any) bool {
	if an, ok := asNumber(a); ok {
		bn, ok := asNumber(b)
		return ok && an == bn
	}
	if as, ok := asText(a); ok {
		bs, ok := asText(b)
		return ok && as == bs
	}
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ab == bb
	}
	return a == nil && b == nil
}

// evalOrdering compares two numbers or two text values. Mixing types is a
// TYPE_MISMATCH, unlike equality.
func evalOrdering(off int, op tokenKind, left, right any) (any, *schema.TrailError) {
	if ln, ok := asNumber(left); ok {
		rn, rok := asNumber(right)
		if !rok {
			return nil, typeMismatchAt(off, "cannot compare number with %s", typeName(right))
		}
		return applyOrdering(op, ln < rn, ln == rn), nil
	}
	if ls, ok := asText(left); ok {
		rs, rok := asText(right)
		if !rok {
			return nil, typeMismatchAt(off, "cannot compare text with %s", typeName(right))
		}
		return applyOrdering(op, ls < rs, ls == rs), nil
	}
	return nil, typeMismatchAt(off, "cannot order %s values", typeName(left))
}

func applyOrdering(op tokenKind, less, equal bool) bool {
	switch op {
	case tokLt:
		return less
	case tokLte:
		return less || equal
	case tokGt:
		return !less && !equal
	default: // tokGte
		return !less
	}
}
