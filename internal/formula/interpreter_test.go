package formula

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedbender123/repforce-web-sub002/pkg/schema"
)

func evalOK(t *testing.T, src string, ctx map[string]any) any {
	t.Helper()
	in := New()
	v, err := in.Evaluate(src, ctx)
	require.NoError(t, err, "formula %q", src)
	return v
}

func evalCode(t *testing.T, src string, ctx map[string]any) string {
	t.Helper()
	in := New()
	_, err := in.Evaluate(src, ctx)
	require.Error(t, err, "formula %q", src)
	var te *schema.TrailError
	require.True(t, errors.As(err, &te))
	return te.Code
}

func TestEvaluate_Literals(t *testing.T) {
	assert.Equal(t, 42.0, evalOK(t, "42", nil))
	assert.Equal(t, 3.5, evalOK(t, "3.5", nil))
	assert.Equal(t, "hello", evalOK(t, `"hello"`, nil))
	assert.Equal(t, "it's", evalOK(t, `"it's"`, nil))
	assert.Equal(t, "dquote", evalOK(t, `'dquote'`, nil))
	assert.Equal(t, true, evalOK(t, "TRUE", nil))
	assert.Equal(t, false, evalOK(t, "FALSE", nil))
}

func TestEvaluate_Arithmetic(t *testing.T) {
	assert.Equal(t, 2.0, evalOK(t, "1+1", nil))
	assert.Equal(t, 7.0, evalOK(t, "1 + 2 * 3", nil))
	assert.Equal(t, 9.0, evalOK(t, "(1 + 2) * 3", nil))
	assert.Equal(t, -4.0, evalOK(t, "-4", nil))
	assert.Equal(t, 2.5, evalOK(t, "5 / 2", nil))
	assert.Equal(t, 1.0, evalOK(t, "10 - 4 - 5", nil))
}

func TestEvaluate_References(t *testing.T) {
	ctx := map[string]any{"Status": "Active", "Total": 99.5}
	assert.Equal(t, "Active", evalOK(t, "[Status]", ctx))
	assert.Equal(t, 99.5, evalOK(t, "[Total]", ctx))
}

func TestEvaluate_UnknownReference(t *testing.T) {
	code := evalCode(t, "[DoesNotExist]", map[string]any{"Status": "Active"})
	assert.Equal(t, schema.ErrCodeUnknownReference, code)
}

func TestEvaluate_NamespacedReference(t *testing.T) {
	// Flat namespaced keys, the way the engine seeds node outputs.
	ctx := map[string]any{"CriarCliente.new_id": "row_777"}
	assert.Equal(t, "row_777", evalOK(t, "[CriarCliente].new_id", ctx))

	// Nested map traversal, the way webhook payloads resolve.
	ctx = map[string]any{
		"trigger.body": map[string]any{"customer": map[string]any{"name": "Ana"}},
	}
	assert.Equal(t, "Ana", evalOK(t, "[trigger.body].customer.name", ctx))
}

func TestEvaluate_IfSpecExample(t *testing.T) {
	src := `IF([Status] = "Active", 1, 0)`

	assert.Equal(t, 1.0, evalOK(t, src, map[string]any{"Status": "Active"}))
	assert.Equal(t, 0.0, evalOK(t, src, map[string]any{"Status": "Paused"}))
}

func TestEvaluate_IfShortCircuits(t *testing.T) {
	// The untaken branch references a missing column and must not be touched.
	v := evalOK(t, `IF(TRUE, "ok", [Missing])`, nil)
	assert.Equal(t, "ok", v)

	v = evalOK(t, `AND(FALSE, [Missing])`, nil)
	assert.Equal(t, false, v)

	v = evalOK(t, `OR(TRUE, [Missing])`, nil)
	assert.Equal(t, true, v)
}

func TestEvaluate_Comparisons(t *testing.T) {
	assert.Equal(t, true, evalOK(t, "2 > 1", nil))
	assert.Equal(t, false, evalOK(t, "2 < 1", nil))
	assert.Equal(t, true, evalOK(t, "2 >= 2", nil))
	assert.Equal(t, true, evalOK(t, `"a" < "b"`, nil))
	assert.Equal(t, true, evalOK(t, `1 <> 2`, nil))
	// Mixed-type equality is false, not an error.
	assert.Equal(t, false, evalOK(t, `1 = "1"`, nil))
	assert.Equal(t, true, evalOK(t, `1 <> "1"`, nil))
}

func TestEvaluate_TypeMismatch(t *testing.T) {
	assert.Equal(t, schema.ErrCodeTypeMismatch, evalCode(t, `"abc" + 1`, nil))
	assert.Equal(t, schema.ErrCodeTypeMismatch, evalCode(t, `1 < "abc"`, nil))
	assert.Equal(t, schema.ErrCodeTypeMismatch, evalCode(t, `-"abc"`, nil))
}

func TestEvaluate_UnknownFunction(t *testing.T) {
	assert.Equal(t, schema.ErrCodeUnknownFunction, evalCode(t, "NOPE(1)", nil))
}

func TestEvaluate_ArityMismatch(t *testing.T) {
	assert.Equal(t, schema.ErrCodeArityMismatch, evalCode(t, "IF(TRUE, 1)", nil))
	assert.Equal(t, schema.ErrCodeArityMismatch, evalCode(t, "UPPER()", nil))
	assert.Equal(t, schema.ErrCodeArityMismatch, evalCode(t, `CONTAINS("a")`, nil))
}

func TestEvaluate_TextFunctions(t *testing.T) {
	assert.Equal(t, "ABC", evalOK(t, `UPPER("abc")`, nil))
	assert.Equal(t, "abc", evalOK(t, `LOWER("ABC")`, nil))
	assert.Equal(t, "ab12", evalOK(t, `CONCATENATE("ab", 1, 2)`, nil))
	assert.Equal(t, 3.0, evalOK(t, `LEN("abc")`, nil))
	assert.Equal(t, true, evalOK(t, `CONTAINS("workflow", "flow")`, nil))
	assert.Equal(t, "wor", evalOK(t, `LEFT("workflow", 3)`, nil))
	assert.Equal(t, "low", evalOK(t, `RIGHT("workflow", 3)`, nil))
	assert.Equal(t, "carpet", evalOK(t, `SUBSTITUTE("market", "mar", "car")`, nil))
	assert.Equal(t, "x", evalOK(t, `TRIM("  x  ")`, nil))
	assert.Equal(t, "12.5", evalOK(t, `TEXT(12.5)`, nil))
}

func TestEvaluate_NumericFunctions(t *testing.T) {
	assert.Equal(t, 3.0, evalOK(t, "ROUND(2.6)", nil))
	assert.Equal(t, 2.0, evalOK(t, "FLOOR(2.6)", nil))
	assert.Equal(t, 3.0, evalOK(t, "CEILING(2.1)", nil))
	assert.Equal(t, 4.0, evalOK(t, "ABS(-4)", nil))
	assert.Equal(t, 8.0, evalOK(t, "POWER(2, 3)", nil))
	assert.Equal(t, 1.0, evalOK(t, "MOD(7, 3)", nil))
	assert.Equal(t, 1.0, evalOK(t, "MIN(3, 1, 2)", nil))
	assert.Equal(t, 3.0, evalOK(t, "MAX(3, 1, 2)", nil))
	assert.Equal(t, 42.5, evalOK(t, `NUMBER("42.5")`, nil))
}

func TestEvaluate_BlankChecks(t *testing.T) {
	ctx := map[string]any{"Empty": "", "Full": "x", "Nil": nil}
	assert.Equal(t, true, evalOK(t, "ISBLANK([Empty])", ctx))
	assert.Equal(t, true, evalOK(t, "ISBLANK([Nil])", ctx))
	assert.Equal(t, false, evalOK(t, "ISBLANK([Full])", ctx))
	assert.Equal(t, true, evalOK(t, "ISNOTBLANK([Full])", ctx))
}

func TestEvaluate_GeoFunctions(t *testing.T) {
	v := evalOK(t, "LATLONG(-23.55, -46.63)", nil)
	assert.Equal(t, "-23.55,-46.63", v)

	assert.Equal(t, -23.55, evalOK(t, `LAT("-23.55,-46.63")`, nil))
	assert.Equal(t, -46.63, evalOK(t, `LONG("-23.55,-46.63")`, nil))

	// São Paulo to Rio de Janeiro, roughly 360 km.
	d := evalOK(t, `DISTANCE("-23.55,-46.63", "-22.91,-43.17")`, nil)
	dist, ok := d.(float64)
	require.True(t, ok)
	assert.InDelta(t, 360, dist, 15)

	// Zero distance between identical points.
	assert.InDelta(t, 0, evalOK(t, `DISTANCE("1,1", "1,1")`, nil).(float64), 0.001)
}

func TestEvaluate_ParseErrors(t *testing.T) {
	cases := []string{
		"[Unclosed",
		`"unterminated`,
		"IF(1, 2",
		"1 +",
		"1 2",
		")",
		"",
	}
	in := New()
	for _, src := range cases {
		_, err := in.Evaluate(src, nil)
		require.Error(t, err, "formula %q", src)
		var te *schema.TrailError
		require.True(t, errors.As(err, &te), "formula %q", src)
		assert.Equal(t, schema.ErrCodeParse, te.Code, "formula %q", src)
		assert.Contains(t, te.Details, "offset", "formula %q", src)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	in := New()
	ctx := map[string]any{"Status": "Active", "Total": 10.0}
	src := `IF(AND([Status] = "Active", [Total] > 5), [Total] * 2, 0)`

	first, err := in.Evaluate(src, ctx)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		v, err := in.Evaluate(src, ctx)
		require.NoError(t, err)
		assert.Equal(t, first, v)
	}
}

func TestEvaluate_DoesNotMutateContext(t *testing.T) {
	in := New()
	ctx := map[string]any{"A": 1.0, "B": "x"}
	_, err := in.Evaluate(`CONCATENATE([A], [B])`, ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"A": 1.0, "B": "x"}, ctx)
}

func TestEvaluate_CacheReuse(t *testing.T) {
	in := New()
	for i := 0; i < 3; i++ {
		_, err := in.Evaluate("1+1", nil)
		require.NoError(t, err)
	}
	in.mu.RLock()
	defer in.mu.RUnlock()
	assert.Len(t, in.cache, 1)
}

func TestEvaluate_ConcurrentUse(t *testing.T) {
	in := New()
	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 100; i++ {
				v, err := in.Evaluate(`UPPER([Name])`, map[string]any{"Name": "ana"})
				if err != nil || v != "ANA" {
					t.Errorf("concurrent eval: v=%v err=%v", v, err)
					return
				}
			}
		}()
	}
	for g := 0; g < 8; g++ {
		<-done
	}
}

func TestReferences(t *testing.T) {
	in := New()
	refs, funcs, err := in.References(`IF([Status] = "Active", [CriarCliente].new_id, "")`)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Status", "CriarCliente.new_id"}, refs)
	assert.ElementsMatch(t, []string{"IF"}, funcs)
}

func TestDivisionByZero_IsInf(t *testing.T) {
	v := evalOK(t, "1 / 0", nil)
	n, ok := v.(float64)
	require.True(t, ok)
	assert.True(t, n > 0 && n*2 == n) // +Inf
}
