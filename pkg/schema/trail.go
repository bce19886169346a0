package schema

import (
	"encoding/json"
	"time"
)

// TriggerType enumerates the events that can start a trail run.
type TriggerType string

const (
	TriggerManual    TriggerType = "MANUAL"
	TriggerWebhook   TriggerType = "WEBHOOK"
	TriggerDBEvent   TriggerType = "DB_EVENT"
	TriggerScheduler TriggerType = "SCHEDULER"
)

// NodeKind enumerates the node variants of a trail graph.
type NodeKind string

const (
	NodeKindTrigger  NodeKind = "trigger"
	NodeKindAction   NodeKind = "action"
	NodeKindDecision NodeKind = "decision"
)

// Trail is a saved automation definition: one trigger plus a DAG of
// action/decision nodes. Read-only at execution time — the engine never
// mutates a trail's definition.
type Trail struct {
	ID            string           `json:"id"`
	TenantID      string           `json:"tenant_id,omitempty"`
	Name          string           `json:"name"`
	TriggerType   TriggerType      `json:"trigger_type"`
	TriggerConfig TriggerConfig    `json:"trigger_config,omitempty"`
	Nodes         map[string]*Node `json:"nodes"`
	IsActive      bool             `json:"is_active"`
	CreatedAt     time.Time        `json:"created_at,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at,omitempty"`
}

// TriggerConfig holds trigger-type-specific configuration. Only the fields
// matching the trail's trigger type are meaningful; the validator rejects
// mismatches.
type TriggerConfig struct {
	// MANUAL: where the button lives. "LIST" exposes the clicked row's id.
	Context string `json:"context,omitempty"`

	// DB_EVENT: watched entity and event kind (created, updated, deleted),
	// plus an optional expr-lang row filter evaluated against the row payload.
	EntityID string `json:"entity_id,omitempty"`
	Event    string `json:"event,omitempty"`
	Filter   string `json:"filter,omitempty"`

	// WEBHOOK: optional CEL guard over body/query/headers, optional JSON
	// Schema for the body, and optional jq extraction paths whose results
	// become top-level context symbols.
	Guard      string            `json:"guard,omitempty"`
	BodySchema json.RawMessage   `json:"body_schema,omitempty"`
	Extract    map[string]string `json:"extract,omitempty"`

	// SCHEDULER: standard 5-field cron expression.
	Cron string `json:"cron,omitempty"`
}

// Node is one vertex of a trail graph: a tagged union over the trigger,
// action, and decision variants. Exactly one of Action/Decision is set for
// the corresponding kind; a trigger node carries no payload of its own
// (its configuration lives in Trail.TriggerConfig).
type Node struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Kind     NodeKind      `json:"kind"`
	Action   *ActionSpec   `json:"action,omitempty"`
	Decision *DecisionSpec `json:"decision,omitempty"`

	// Next is the trigger node's sole outgoing edge. Action and decision
	// nodes carry their edges inside their payloads instead.
	Next string `json:"next,omitempty"`
}

// ActionSpec configures an action node. Next is the sole outgoing edge;
// empty means the run stops after this node.
type ActionSpec struct {
	Type   ActionType             `json:"type"`
	Config map[string]ConfigValue `json:"config,omitempty"`
	Next   string                 `json:"next,omitempty"`
}

// DecisionSpec configures a decision node: a boolean-like formula and two
// labeled outgoing edges. An empty edge means "stop" on that branch. Both
// labels are always serialized — a decision with a missing branch label is
// a validation defect, not a default.
type DecisionSpec struct {
	Condition string `json:"condition"`
	NextTrue  string `json:"next_true"`
	NextFalse string `json:"next_false"`
}

// TriggerNode returns the trail's unique trigger node, or nil when absent.
// Uniqueness is a validation invariant, not assumed here.
func (t *Trail) TriggerNode() *Node {
	for _, n := range t.Nodes {
		if n != nil && n.Kind == NodeKindTrigger {
			return n
		}
	}
	return nil
}

// Successors returns the outgoing edge targets of a node, skipping empty
// ("stop") edges. Decision edges are returned true-branch first.
func (n *Node) Successors() []string {
	var out []string
	switch n.Kind {
	case NodeKindTrigger:
		if n.Next != "" {
			out = append(out, n.Next)
		}
	case NodeKindAction:
		if n.Action != nil && n.Action.Next != "" {
			out = append(out, n.Action.Next)
		}
	case NodeKindDecision:
		if n.Decision != nil {
			if n.Decision.NextTrue != "" {
				out = append(out, n.Decision.NextTrue)
			}
			if n.Decision.NextFalse != "" {
				out = append(out, n.Decision.NextFalse)
			}
		}
	}
	return out
}

// ConfigValue is one action config entry: either a literal value or a
// formula string evaluated against the run context at dispatch time. The
// engine never guesses — the variant is explicit in the serialized form.
type ConfigValue struct {
	formula   string
	literal   any
	isFormula bool
}

// Formula creates a ConfigValue holding a formula to evaluate at run time.
func Formula(expr string) ConfigValue {
	return ConfigValue{formula: expr, isFormula: true}
}

// Literal creates a ConfigValue holding an already-concrete value.
func Literal(v any) ConfigValue {
	return ConfigValue{literal: v}
}

// IsFormula reports whether the value is a formula.
func (c ConfigValue) IsFormula() bool { return c.isFormula }

// FormulaText returns the formula source, or "" for literals.
func (c ConfigValue) FormulaText() string { return c.formula }

// LiteralValue returns the literal value, or nil for formulas.
func (c ConfigValue) LiteralValue() any { return c.literal }

// configValueEnvelope is the serialized form of a formula ConfigValue.
// Literals serialize as their raw JSON value.
type configValueEnvelope struct {
	Formula string `json:"$formula"`
}

// MarshalJSON encodes formulas as {"$formula": "..."} and literals as their
// plain JSON value.
func (c ConfigValue) MarshalJSON() ([]byte, error) {
	if c.isFormula {
		return json.Marshal(configValueEnvelope{Formula: c.formula})
	}
	return json.Marshal(c.literal)
}

// UnmarshalJSON decodes {"$formula": "..."} objects as formulas and
// everything else as a literal.
func (c *ConfigValue) UnmarshalJSON(data []byte) error {
	var env configValueEnvelope
	if err := json.Unmarshal(data, &env); err == nil && env.Formula != "" {
		*c = Formula(env.Formula)
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = Literal(v)
	return nil
}
