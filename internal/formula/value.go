package formula

import (
	"fmt"
	"strconv"
)

// Values flowing through the interpreter are restricted to float64, string,
// bool, nil, and — for trigger payloads — map[string]any and []any. The
// helpers below do the type discipline; evaluation never panics on an
// unexpected Go type.

// Truthy implements the decision-branch rule: non-zero number, non-empty
// string, or explicit boolean true.
func Truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case int:
		return x != 0
	case string:
		return x != ""
	default:
		return false
	}
}

// asNumber returns v as a float64 if it is a numeric value.
// JSON decoding produces float64; int covers values from Go callers.
func asNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

// asText returns v as a string if it is a text value.
func asText(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// toText renders any value as display text (the TEXT builtin and
// CONCATENATE coercion).
func toText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// typeName labels a value's type for TYPE_MISMATCH messages.
func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "blank"
	case string:
		return "text"
	case bool:
		return "bool"
	case float64, int, int64:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "list"
	default:
		return fmt.Sprintf("%T", v)
	}
}
