package formula

import (
	"math"
	"strconv"
	"strings"

	"github.com/pedbender123/repforce-web-sub002/pkg/schema"
)

// builtin describes one registered function. maxArgs of -1 means variadic.
// fn is nil for the lazily-evaluated forms (IF, AND, OR), which the
// evaluator handles itself so untaken branches are never evaluated.
type builtin struct {
	name    string
	minArgs int
	maxArgs int
	fn      func(off int, args []any) (any, *schema.TrailError)
}

// builtins is the fixed registry of formula functions. The set is closed:
// unknown names are UNKNOWN_FUNCTION errors, never dynamic lookups.
var builtins = map[string]builtin{
	// Logical. IF/AND/OR short-circuit in the evaluator.
	"IF":  {name: "IF", minArgs: 3, maxArgs: 3},
	"AND": {name: "AND", minArgs: 1, maxArgs: -1},
	"OR":  {name: "OR", minArgs: 1, maxArgs: -1},
	"NOT": {name: "NOT", minArgs: 1, maxArgs: 1, fn: fnNot},

	// Text.
	"CONCATENATE": {name: "CONCATENATE", minArgs: 1, maxArgs: -1, fn: fnConcatenate},
	"UPPER":       {name: "UPPER", minArgs: 1, maxArgs: 1, fn: textFn(strings.ToUpper)},
	"LOWER":       {name: "LOWER", minArgs: 1, maxArgs: 1, fn: textFn(strings.ToLower)},
	"TRIM":        {name: "TRIM", minArgs: 1, maxArgs: 1, fn: textFn(strings.TrimSpace)},
	"LEN":         {name: "LEN", minArgs: 1, maxArgs: 1, fn: fnLen},
	"CONTAINS":    {name: "CONTAINS", minArgs: 2, maxArgs: 2, fn: fnContains},
	"LEFT":        {name: "LEFT", minArgs: 2, maxArgs: 2, fn: fnLeft},
	"RIGHT":       {name: "RIGHT", minArgs: 2, maxArgs: 2, fn: fnRight},
	"SUBSTITUTE":  {name: "SUBSTITUTE", minArgs: 3, maxArgs: 3, fn: fnSubstitute},
	"TEXT":        {name: "TEXT", minArgs: 1, maxArgs: 1, fn: fnText},

	// Numeric.
	"NUMBER":  {name: "NUMBER", minArgs: 1, maxArgs: 1, fn: fnNumber},
	"ROUND":   {name: "ROUND", minArgs: 1, maxArgs: 1, fn: mathFn("ROUND", math.Round)},
	"FLOOR":   {name: "FLOOR", minArgs: 1, maxArgs: 1, fn: mathFn("FLOOR", math.Floor)},
	"CEILING": {name: "CEILING", minArgs: 1, maxArgs: 1, fn: mathFn("CEILING", math.Ceil)},
	"ABS":     {name: "ABS", minArgs: 1, maxArgs: 1, fn: mathFn("ABS", math.Abs)},
	"SQRT":    {name: "SQRT", minArgs: 1, maxArgs: 1, fn: mathFn("SQRT", math.Sqrt)},
	"POWER":   {name: "POWER", minArgs: 2, maxArgs: 2, fn: fnPower},
	"MOD":     {name: "MOD", minArgs: 2, maxArgs: 2, fn: fnMod},
	"MIN":     {name: "MIN", minArgs: 1, maxArgs: -1, fn: fnMin},
	"MAX":     {name: "MAX", minArgs: 1, maxArgs: -1, fn: fnMax},

	// Blank checks.
	"ISBLANK":    {name: "ISBLANK", minArgs: 1, maxArgs: 1, fn: fnIsBlank},
	"ISNOTBLANK": {name: "ISNOTBLANK", minArgs: 1, maxArgs: 1, fn: fnIsNotBlank},

	// Geo. Coordinates are "lat,long" text pairs (LATLONG builds them).
	"LATLONG":  {name: "LATLONG", minArgs: 2, maxArgs: 2, fn: fnLatLong},
	"LAT":      {name: "LAT", minArgs: 1, maxArgs: 1, fn: fnLat},
	"LONG":     {name: "LONG", minArgs: 1, maxArgs: 1, fn: fnLong},
	"DISTANCE": {name: "DISTANCE", minArgs: 2, maxArgs: 2, fn: fnDistance},
}

// KnownFunction reports whether name is a registered builtin. Used by the
// static checker so preview and execution agree on the function set.
func KnownFunction(name string) bool {
	_, ok := builtins[name]
	return ok
}

// FunctionNames returns all registered builtin names, for editor pickers.
func FunctionNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	return names
}

func typeMismatchAt(off int, format string, args ...any) *schema.TrailError {
	return schema.NewErrorf(schema.ErrCodeTypeMismatch, format, args...).
		WithDetails(map[string]any{"offset": off})
}

func needNumber(off int, fname string, pos int, v any) (float64, *schema.TrailError) {
	n, ok := asNumber(v)
	if !ok {
		return 0, typeMismatchAt(off, "%s: argument %d must be a number, got %s", fname, pos+1, typeName(v))
	}
	return n, nil
}

func needText(off int, fname string, pos int, v any) (string, *schema.TrailError) {
	s, ok := asText(v)
	if !ok {
		return "", typeMismatchAt(off, "%s: argument %d must be text, got %s", fname, pos+1, typeName(v))
	}
	return s, nil
}

// --- Logical ---

func fnNot(off int, args []any) (any, *schema.TrailError) {
	return !Truthy(args[0]), nil
}

// --- Text ---

func textFn(f func(string) string) func(int, []any) (any, *schema.TrailError) {
	return func(off int, args []any) (any, *schema.TrailError) {
		s, err := needText(off, "text function", 0, args[0])
		if err != nil {
			return nil, err
		}
		return f(s), nil
	}
}

func fnConcatenate(off int, args []any) (any, *schema.TrailError) {
	var b strings.Builder
	for _, a := range args {
		b.WriteString(toText(a))
	}
	return b.String(), nil
}

func fnLen(off int, args []any) (any, *schema.TrailError) {
	switch x := args[0].(type) {
	case string:
		return float64(len([]rune(x))), nil
	case []any:
		return float64(len(x)), nil
	default:
		return nil, typeMismatchAt(off, "LEN: argument must be text or a list, got %s", typeName(args[0]))
	}
}

func fnContains(off int, args []any) (any, *schema.TrailError) {
	haystack, err := needText(off, "CONTAINS", 0, args[0])
	if err != nil {
		return nil, err
	}
	needle, err := needText(off, "CONTAINS", 1, args[1])
	if err != nil {
		return nil, err
	}
	return strings.Contains(haystack, needle), nil
}

func fnLeft(off int, args []any) (any, *schema.TrailError) {
	s, err := needText(off, "LEFT", 0, args[0])
	if err != nil {
		return nil, err
	}
	n, err := needNumber(off, "LEFT", 1, args[1])
	if err != nil {
		return nil, err
	}
	runes := []rune(s)
	k := int(n)
	if k < 0 {
		k = 0
	}
	if k > len(runes) {
		k = len(runes)
	}
	return string(runes[:k]), nil
}

func fnRight(off int, args []any) (any, *schema.TrailError) {
	s, err := needText(off, "RIGHT", 0, args[0])
	if err != nil {
		return nil, err
	}
	n, err := needNumber(off, "RIGHT", 1, args[1])
	if err != nil {
		return nil, err
	}
	runes := []rune(s)
	k := int(n)
	if k < 0 {
		k = 0
	}
	if k > len(runes) {
		k = len(runes)
	}
	return string(runes[len(runes)-k:]), nil
}

func fnSubstitute(off int, args []any) (any, *schema.TrailError) {
	s, err := needText(off, "SUBSTITUTE", 0, args[0])
	if err != nil {
		return nil, err
	}
	old, err := needText(off, "SUBSTITUTE", 1, args[1])
	if err != nil {
		return nil, err
	}
	repl, err := needText(off, "SUBSTITUTE", 2, args[2])
	if err != nil {
		return nil, err
	}
	return strings.ReplaceAll(s, old, repl), nil
}

func fnText(off int, args []any) (any, *schema.TrailError) {
	return toText(args[0]), nil
}

// --- Numeric ---

func fnNumber(off int, args []any) (any, *schema.TrailError) {
	if n, ok := asNumber(args[0]); ok {
		return n, nil
	}
	s, ok := asText(args[0])
	if !ok {
		return nil, typeMismatchAt(off, "NUMBER: cannot convert %s to a number", typeName(args[0]))
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, typeMismatchAt(off, "NUMBER: %q is not numeric", s)
	}
	return n, nil
}

func mathFn(name string, f func(float64) float64) func(int, []any) (any, *schema.TrailError) {
	return func(off int, args []any) (any, *schema.TrailError) {
		n, err := needNumber(off, name, 0, args[0])
		if err != nil {
			return nil, err
		}
		return f(n), nil
	}
}

func fnPower(off int, args []any) (any, *schema.TrailError) {
	base, err := needNumber(off, "POWER", 0, args[0])
	if err != nil {
		return nil, err
	}
	exp, err := needNumber(off, "POWER", 1, args[1])
	if err != nil {
		return nil, err
	}
	return math.Pow(base, exp), nil
}

func fnMod(off int, args []any) (any, *schema.TrailError) {
	a, err := needNumber(off, "MOD", 0, args[0])
	if err != nil {
		return nil, err
	}
	b, err := needNumber(off, "MOD", 1, args[1])
	if err != nil {
		return nil, err
	}
	if b == 0 {
		return nil, typeMismatchAt(off, "MOD: division by zero")
	}
	return math.Mod(a, b), nil
}

func fnMin(off int, args []any) (any, *schema.TrailError) {
	best, err := needNumber(off, "MIN", 0, args[0])
	if err != nil {
		return nil, err
	}
	for i, a := range args[1:] {
		n, err := needNumber(off, "MIN", i+1, a)
		if err != nil {
			return nil, err
		}
		if n < best {
			best = n
		}
	}
	return best, nil
}

func fnMax(off int, args []any) (any, *schema.TrailError) {
	best, err := needNumber(off, "MAX", 0, args[0])
	if err != nil {
		return nil, err
	}
	for i, a := range args[1:] {
		n, err := needNumber(off, "MAX", i+1, a)
		if err != nil {
			return nil, err
		}
		if n > best {
			best = n
		}
	}
	return best, nil
}

// --- Blank checks ---

func fnIsBlank(off int, args []any) (any, *schema.TrailError) {
	return isBlank(args[0]), nil
}

func fnIsNotBlank(off int, args []any) (any, *schema.TrailError) {
	return !isBlank(args[0]), nil
}

func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	default:
		return false
	}
}

// --- Geo ---

func fnLatLong(off int, args []any) (any, *schema.TrailError) {
	lat, err := needNumber(off, "LATLONG", 0, args[0])
	if err != nil {
		return nil, err
	}
	long, err := needNumber(off, "LATLONG", 1, args[1])
	if err != nil {
		return nil, err
	}
	return toText(lat) + "," + toText(long), nil
}

func fnLat(off int, args []any) (any, *schema.TrailError) {
	lat, _, err := splitLatLong(off, "LAT", args[0])
	if err != nil {
		return nil, err
	}
	return lat, nil
}

func fnLong(off int, args []any) (any, *schema.TrailError) {
	_, long, err := splitLatLong(off, "LONG", args[0])
	if err != nil {
		return nil, err
	}
	return long, nil
}

// fnDistance computes the great-circle distance in kilometers between two
// "lat,long" pairs (haversine).
func fnDistance(off int, args []any) (any, *schema.TrailError) {
	lat1, long1, err := splitLatLong(off, "DISTANCE", args[0])
	if err != nil {
		return nil, err
	}
	lat2, long2, err := splitLatLong(off, "DISTANCE", args[1])
	if err != nil {
		return nil, err
	}

	const earthRadiusKm = 6371.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLong := toRad(long2 - long1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLong/2)*math.Sin(dLong/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a)), nil
}

func splitLatLong(off int, fname string, v any) (float64, float64, *schema.TrailError) {
	s, ok := asText(v)
	if !ok {
		return 0, 0, typeMismatchAt(off, "%s: expected \"lat,long\" text, got %s", fname, typeName(v))
	}
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return 0, 0, typeMismatchAt(off, "%s: malformed coordinate %q", fname, s)
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	long, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, typeMismatchAt(off, "%s: malformed coordinate %q", fname, s)
	}
	return lat, long, nil
}
