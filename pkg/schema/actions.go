package schema

// ActionType is the closed enumeration of side-effecting operations an
// action node can perform.
type ActionType string

const (
	ActionDBCreate     ActionType = "DB_CREATE"
	ActionDBUpdate     ActionType = "DB_UPDATE"
	ActionDBDelete     ActionType = "DB_DELETE"
	ActionReadField    ActionType = "READ_FIELD"
	ActionMathOp       ActionType = "MATH_OP"
	ActionNavigate     ActionType = "NAVIGATE"
	ActionGenerateFile ActionType = "GENERATE_FILE"
	ActionNotify       ActionType = "NOTIFY"
	ActionWebhookOut   ActionType = "WEBHOOK_OUT"
	ActionCreateTask   ActionType = "CREATE_TASK"
	ActionOpenSubpage  ActionType = "OPEN_SUBPAGE"
)

// ValueType describes the scalar kind of a computed variable or declared
// output, for picker display and static formula checking.
type ValueType string

const (
	ValueNumber ValueType = "number"
	ValueText   ValueType = "text"
	ValueBool   ValueType = "bool"
	ValueObject ValueType = "object"
	ValueAny    ValueType = "any"
)

// OutputSpec declares one named output an action exposes to downstream
// formulas after it executes.
type OutputSpec struct {
	Name string    `json:"name"`
	Type ValueType `json:"type"`
}

// actionOutputs maps each action type to its declared outputs. The variable
// resolver and the engine's context construction both read this table, so
// picker symbols and runtime keys cannot drift apart.
var actionOutputs = map[ActionType][]OutputSpec{
	ActionDBCreate:     {{Name: "new_id", Type: ValueText}},
	ActionDBUpdate:     {{Name: "updated_id", Type: ValueText}},
	ActionDBDelete:     {{Name: "deleted_id", Type: ValueText}},
	ActionReadField:    {{Name: "value", Type: ValueAny}},
	ActionMathOp:       {{Name: "result", Type: ValueNumber}},
	ActionGenerateFile: {{Name: "file_url", Type: ValueText}},
	ActionWebhookOut:   {{Name: "response", Type: ValueObject}, {Name: "status", Type: ValueNumber}},
	ActionCreateTask:   {{Name: "task_id", Type: ValueText}},
	// NAVIGATE, NOTIFY and OPEN_SUBPAGE are fire-and-forget client commands.
	ActionNavigate:    nil,
	ActionNotify:      nil,
	ActionOpenSubpage: nil,
}

// requiredConfig maps each action type to the config keys the builder must
// provide. Missing keys are construction-time validation errors, not runtime
// nil dereferences.
var requiredConfig = map[ActionType][]string{
	ActionDBCreate:     {"table_id", "values"},
	ActionDBUpdate:     {"table_id", "row_id", "values"},
	ActionDBDelete:     {"table_id", "row_id"},
	ActionReadField:    {"table_id", "row_id", "field"},
	ActionMathOp:       {"operation", "left", "right"},
	ActionNavigate:     {"target"},
	ActionGenerateFile: {"format", "template_id"},
	ActionNotify:       {"recipient", "message"},
	ActionWebhookOut:   {"url", "method"},
	ActionCreateTask:   {"title"},
	ActionOpenSubpage:  {"page_id"},
}

// ActionOutputs returns the declared outputs of an action type.
func ActionOutputs(t ActionType) []OutputSpec {
	return actionOutputs[t]
}

// RequiredConfig returns the config keys an action type requires.
func RequiredConfig(t ActionType) []string {
	return requiredConfig[t]
}

// KnownActionType reports whether t is part of the closed enumeration.
func KnownActionType(t ActionType) bool {
	_, ok := requiredConfig[t]
	return ok
}

// KnownTriggerType reports whether t is a supported trigger type.
func KnownTriggerType(t TriggerType) bool {
	switch t {
	case TriggerManual, TriggerWebhook, TriggerDBEvent, TriggerScheduler:
		return true
	}
	return false
}
