// Package actions defines the handler contract for side-effecting trail
// nodes and a thread-safe registry keyed by action type. Concrete CRM
// mutations (entity writes, file generation, notifications) live with the
// host application; this package ships reference handlers for the outbound
// webhook and arithmetic actions.
package actions

import (
	"context"
	"encoding/json"

	"github.com/pedbender123/repforce-web-sub002/pkg/schema"
)

// Handler executes one action type. Implementations must be safe for
// concurrent use: independent runs dispatch to the same handler instance.
type Handler interface {
	Type() schema.ActionType
	// Execute performs the side effect and returns the action's declared
	// outputs. Keys must match schema.ActionOutputs for the type.
	Execute(ctx context.Context, input Input) (map[string]any, error)
	// Validate checks a resolved config before execution.
	Validate(config map[string]any) error
}

// Input is what a handler receives at dispatch time: the node's config
// with every formula already evaluated, plus a read-only view of the run
// context.
type Input struct {
	TrailID string
	RunID   string
	NodeID  string
	Config  map[string]any
	Context map[string]any
}

// Param helpers shared by handler implementations.

func stringParam(m map[string]any, key, defaultVal string) string {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	s, ok := v.(string)
	if !ok {
		return defaultVal
	}
	return s
}

func numberParam(m map[string]any, key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
