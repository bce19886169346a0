package validation

import (
	"testing"

	"github.com/pedbender123/repforce-web-sub002/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linearTrail builds trigger -> step1 -> step2 with DB_CREATE actions.
func linearTrail() *schema.Trail {
	return &schema.Trail{
		ID:          "trail-1",
		Name:        "Onboard customer",
		TriggerType: schema.TriggerManual,
		TriggerConfig: schema.TriggerConfig{
			Context: "LIST",
		},
		Nodes: map[string]*schema.Node{
			"start": {ID: "start", Name: "Start", Kind: schema.NodeKindTrigger, Next: "step1"},
			"step1": {
				ID: "step1", Name: "CriarCliente", Kind: schema.NodeKindAction,
				Action: &schema.ActionSpec{
					Type: schema.ActionDBCreate,
					Config: map[string]schema.ConfigValue{
						"table_id": schema.Literal("customers"),
						"values":   schema.Formula("[id]"),
					},
					Next: "step2",
				},
			},
			"step2": {
				ID: "step2", Name: "Notify", Kind: schema.NodeKindAction,
				Action: &schema.ActionSpec{
					Type: schema.ActionNotify,
					Config: map[string]schema.ConfigValue{
						"recipient": schema.Literal("owner"),
						"message":   schema.Literal("done"),
					},
				},
			},
		},
	}
}

func errorCodes(result *schema.ValidationResult) []string {
	var codes []string
	for _, issue := range result.Errors {
		codes = append(codes, issue.Code)
	}
	return codes
}

func TestValidate_LinearTrail(t *testing.T) {
	result := ValidateTrail(linearTrail())
	assert.True(t, result.Valid(), "unexpected errors: %v", result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestValidate_NilTrail(t *testing.T) {
	result := ValidateTrail(nil)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, schema.ErrCodeValidation, result.Errors[0].Code)
}

func TestValidate_MissingTrigger(t *testing.T) {
	trail := linearTrail()
	delete(trail.Nodes, "start")

	result := ValidateTrail(trail)
	assert.Contains(t, errorCodes(result), schema.ErrCodeMissingTrigger)
}

func TestValidate_TwoTriggers(t *testing.T) {
	trail := linearTrail()
	trail.Nodes["start2"] = &schema.Node{ID: "start2", Name: "Also start", Kind: schema.NodeKindTrigger}

	result := ValidateTrail(trail)
	require.False(t, result.Valid())
	codes := errorCodes(result)
	assert.Contains(t, codes, schema.ErrCodeDuplicateTrigger)
	assert.NotContains(t, codes, schema.ErrCodeMissingTrigger)
}

func TestValidate_DuplicateNodeName(t *testing.T) {
	trail := linearTrail()
	// step1 and step2 both named "CriarCliente": step2's outputs would
	// silently shadow step1's under [CriarCliente] at runtime.
	trail.Nodes["step2"].Name = "CriarCliente"

	result := ValidateTrail(trail)
	require.False(t, result.Valid())
	require.Len(t, result.Errors, 1)
	assert.Equal(t, schema.ErrCodeValidation, result.Errors[0].Code)
	assert.Contains(t, result.Errors[0].Message, "CriarCliente")
	assert.Contains(t, result.Errors[0].Message, "step1")
	assert.Contains(t, result.Errors[0].Message, "step2")
}

func TestValidate_DecisionMissingBranchLabel(t *testing.T) {
	trail := linearTrail()
	trail.Nodes["gate"] = &schema.Node{
		ID: "gate", Name: "Gate", Kind: schema.NodeKindDecision,
	}

	result := ValidateTrail(trail)
	assert.Contains(t, errorCodes(result), schema.ErrCodeBranchArity)
}

func TestValidate_DanglingNext(t *testing.T) {
	trail := linearTrail()
	trail.Nodes["step2"].Action.Next = "does-not-exist"

	result := ValidateTrail(trail)
	codes := errorCodes(result)
	assert.Contains(t, codes, schema.ErrCodeDanglingEdge)
	assert.NotContains(t, codes, schema.ErrCodeCycleDetected)
}

func TestValidate_TwoNodeCycle(t *testing.T) {
	trail := linearTrail()
	trail.Nodes["step2"].Action.Next = "step1"

	result := ValidateTrail(trail)
	require.False(t, result.Valid())
	codes := errorCodes(result)
	assert.Contains(t, codes, schema.ErrCodeCycleDetected)

	for _, issue := range result.Errors {
		if issue.Code == schema.ErrCodeCycleDetected {
			assert.Contains(t, issue.Message, "step1")
			assert.Contains(t, issue.Message, "step2")
		}
	}
}

func TestValidate_SelfCycle(t *testing.T) {
	trail := linearTrail()
	trail.Nodes["step2"].Action.Next = "step2"

	result := ValidateTrail(trail)
	assert.Contains(t, errorCodes(result), schema.ErrCodeCycleDetected)
}

func TestValidate_DecisionDiamondIsAcyclic(t *testing.T) {
	trail := linearTrail()
	trail.Nodes["step1"].Action.Next = "gate"
	trail.Nodes["gate"] = &schema.Node{
		ID: "gate", Name: "Gate", Kind: schema.NodeKindDecision,
		Decision: &schema.DecisionSpec{
			Condition: "[CriarCliente].new_id <> ''",
			NextTrue:  "step2",
			NextFalse: "step2",
		},
	}

	result := ValidateTrail(trail)
	assert.True(t, result.Valid(), "unexpected errors: %v", result.Errors)
}

func TestValidate_EdgeIntoTrigger(t *testing.T) {
	trail := linearTrail()
	trail.Nodes["step2"].Action.Next = "start"

	result := ValidateTrail(trail)
	require.False(t, result.Valid())
}

func TestValidate_UnknownActionType(t *testing.T) {
	trail := linearTrail()
	trail.Nodes["step2"].Action.Type = "LAUNCH_ROCKET"

	result := ValidateTrail(trail)
	assert.Contains(t, errorCodes(result), schema.ErrCodeValidation)
}

func TestValidate_MissingRequiredConfig(t *testing.T) {
	trail := linearTrail()
	delete(trail.Nodes["step1"].Action.Config, "values")

	result := ValidateTrail(trail)
	require.False(t, result.Valid())
	found := false
	for _, issue := range result.Errors {
		if issue.Path == "nodes[step1].action.config.values" {
			found = true
		}
	}
	assert.True(t, found, "expected an issue for the missing values key, got %v", result.Errors)
}

func TestValidate_UnreachableNodeWarns(t *testing.T) {
	trail := linearTrail()
	trail.Nodes["orphan"] = &schema.Node{
		ID: "orphan", Name: "Orphan", Kind: schema.NodeKindAction,
		Action: &schema.ActionSpec{
			Type: schema.ActionNotify,
			Config: map[string]schema.ConfigValue{
				"recipient": schema.Literal("owner"),
				"message":   schema.Literal("never"),
			},
		},
	}

	result := ValidateTrail(trail)
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "nodes[orphan]", result.Warnings[0].Path)
}

func TestValidate_SchedulerRequiresCron(t *testing.T) {
	trail := linearTrail()
	trail.TriggerType = schema.TriggerScheduler
	trail.TriggerConfig = schema.TriggerConfig{}

	result := ValidateTrail(trail)
	require.False(t, result.Valid())
	assert.Equal(t, "trigger_config.cron", result.Errors[0].Path)
}

func TestValidate_DBEventRequiresEntityAndEvent(t *testing.T) {
	trail := linearTrail()
	trail.TriggerType = schema.TriggerDBEvent
	trail.TriggerConfig = schema.TriggerConfig{Event: "renamed"}

	result := ValidateTrail(trail)
	require.False(t, result.Valid())
	assert.Len(t, result.Errors, 2)
}
