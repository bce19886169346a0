package engine

import (
	"context"
	"testing"
	"time"

	"github.com/pedbender123/repforce-web-sub002/internal/actions"
	"github.com/pedbender123/repforce-web-sub002/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHandler is a scriptable actions.Handler for engine tests.
type fakeHandler struct {
	typ  schema.ActionType
	exec func(ctx context.Context, input actions.Input) (map[string]any, error)
}

func (f *fakeHandler) Type() schema.ActionType          { return f.typ }
func (f *fakeHandler) Validate(map[string]any) error    { return nil }
func (f *fakeHandler) Execute(ctx context.Context, input actions.Input) (map[string]any, error) {
	return f.exec(ctx, input)
}

func registryWith(t *testing.T, handlers ...*fakeHandler) *actions.Registry {
	t.Helper()
	r := actions.NewRegistry()
	for _, h := range handlers {
		require.NoError(t, r.Register(h))
	}
	return r
}

func createHandler() *fakeHandler {
	return &fakeHandler{
		typ: schema.ActionDBCreate,
		exec: func(ctx context.Context, input actions.Input) (map[string]any, error) {
			return map[string]any{"new_id": "cust-001"}, nil
		},
	}
}

// linearTrail: start -> create -> notify.
func linearTrail(notifyConfig map[string]schema.ConfigValue) *schema.Trail {
	return &schema.Trail{
		ID:          "trail-1",
		Name:        "Onboarding",
		TriggerType: schema.TriggerManual,
		IsActive:    true,
		TriggerConfig: schema.TriggerConfig{
			Context: "LIST",
		},
		Nodes: map[string]*schema.Node{
			"start": {ID: "start", Name: "Start", Kind: schema.NodeKindTrigger, Next: "create"},
			"create": {
				ID: "create", Name: "CriarCliente", Kind: schema.NodeKindAction,
				Action: &schema.ActionSpec{
					Type: schema.ActionDBCreate,
					Config: map[string]schema.ConfigValue{
						"table_id": schema.Literal("customers"),
						"values":   schema.Formula("[id]"),
					},
					Next: "notify",
				},
			},
			"notify": {
				ID: "notify", Name: "Avisar", Kind: schema.NodeKindAction,
				Action: &schema.ActionSpec{
					Type:   schema.ActionNotify,
					Config: notifyConfig,
				},
			},
		},
	}
}

func TestRun_LinearHappyPath(t *testing.T) {
	var notifiedWith map[string]any
	notify := &fakeHandler{
		typ: schema.ActionNotify,
		exec: func(ctx context.Context, input actions.Input) (map[string]any, error) {
			notifiedWith = input.Config
			return nil, nil
		},
	}
	r := NewRunner(registryWith(t, createHandler(), notify))

	trail := linearTrail(map[string]schema.ConfigValue{
		"recipient": schema.Literal("owner"),
		"message":   schema.Formula("CONCATENATE('created ', [CriarCliente].new_id)"),
	})

	trace := r.Run(context.Background(), trail, map[string]any{"id": "row-7"})
	require.Equal(t, schema.RunStatusCompleted, trace.Status)
	require.Nil(t, trace.Error)
	require.Len(t, trace.Entries, 2)

	assert.Equal(t, "create", trace.Entries[0].NodeID)
	assert.Equal(t, schema.NodeStatusOK, trace.Entries[0].Status)
	assert.Equal(t, map[string]any{"new_id": "cust-001"}, trace.Entries[0].Output)

	assert.Equal(t, "notify", trace.Entries[1].NodeID)
	assert.Equal(t, "created cust-001", notifiedWith["message"])
	assert.NotEmpty(t, trace.RunID)
	assert.False(t, trace.CompletedAt.Before(trace.StartedAt))
}

func TestRun_TimeoutHaltsRun(t *testing.T) {
	slow := &fakeHandler{
		typ: schema.ActionNotify,
		exec: func(ctx context.Context, input actions.Input) (map[string]any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	r := NewRunner(registryWith(t, createHandler(), slow), WithDispatchTimeout(20*time.Millisecond))

	trail := linearTrail(map[string]schema.ConfigValue{
		"recipient": schema.Literal("owner"),
		"message":   schema.Literal("hi"),
	})
	// A third node after notify must never execute.
	trail.Nodes["notify"].Action.Next = "after"
	trail.Nodes["after"] = &schema.Node{
		ID: "after", Name: "After", Kind: schema.NodeKindAction,
		Action: &schema.ActionSpec{Type: schema.ActionDBCreate},
	}

	trace := r.Run(context.Background(), trail, map[string]any{"id": "row-7"})
	require.Equal(t, schema.RunStatusFailed, trace.Status)
	require.Len(t, trace.Entries, 2)

	assert.Equal(t, schema.NodeStatusOK, trace.Entries[0].Status)
	assert.Equal(t, schema.NodeStatusError, trace.Entries[1].Status)
	require.NotNil(t, trace.Entries[1].Error)
	assert.Equal(t, schema.ErrCodeTimeout, trace.Entries[1].Error.Code)
	assert.Equal(t, schema.ErrCodeTimeout, trace.Error.Code)
}

func TestRun_ConfigEvaluationErrorHalts(t *testing.T) {
	notify := &fakeHandler{
		typ: schema.ActionNotify,
		exec: func(ctx context.Context, input actions.Input) (map[string]any, error) {
			t.Fatal("handler must not run when config resolution fails")
			return nil, nil
		},
	}
	r := NewRunner(registryWith(t, createHandler(), notify))

	trail := linearTrail(map[string]schema.ConfigValue{
		"recipient": schema.Literal("owner"),
		"message":   schema.Formula("[DoesNotExist]"),
	})

	trace := r.Run(context.Background(), trail, map[string]any{"id": "row-7"})
	require.Equal(t, schema.RunStatusFailed, trace.Status)
	require.Len(t, trace.Entries, 2)
	assert.Equal(t, schema.ErrCodeConfigEvaluation, trace.Entries[1].Error.Code)
	assert.Equal(t, "notify", trace.Entries[1].Error.NodeID)
}

func TestRun_DecisionBranching(t *testing.T) {
	executed := map[string]bool{}
	notify := &fakeHandler{
		typ: schema.ActionNotify,
		exec: func(ctx context.Context, input actions.Input) (map[string]any, error) {
			executed[input.NodeID] = true
			return nil, nil
		},
	}
	r := NewRunner(registryWith(t, createHandler(), notify))

	trail := &schema.Trail{
		ID: "trail-2", Name: "Branching", TriggerType: schema.TriggerManual,
		TriggerConfig: schema.TriggerConfig{Context: "LIST"},
		Nodes: map[string]*schema.Node{
			"start":  {ID: "start", Name: "Start", Kind: schema.NodeKindTrigger, Next: "create"},
			"create": {ID: "create", Name: "CriarCliente", Kind: schema.NodeKindAction, Action: &schema.ActionSpec{Type: schema.ActionDBCreate, Next: "gate"}},
			"gate": {
				ID: "gate", Name: "Gate", Kind: schema.NodeKindDecision,
				Decision: &schema.DecisionSpec{
					Condition: "[CriarCliente].new_id = 'cust-001'",
					NextTrue:  "yes",
					NextFalse: "no",
				},
			},
			"yes": {ID: "yes", Name: "Yes", Kind: schema.NodeKindAction, Action: &schema.ActionSpec{Type: schema.ActionNotify}},
			"no":  {ID: "no", Name: "No", Kind: schema.NodeKindAction, Action: &schema.ActionSpec{Type: schema.ActionNotify}},
		},
	}

	trace := r.Run(context.Background(), trail, map[string]any{"id": "row-1"})
	require.Equal(t, schema.RunStatusCompleted, trace.Status)

	assert.True(t, executed["yes"])
	assert.False(t, executed["no"])

	gateEntry := trace.Entries[1]
	assert.Equal(t, "gate", gateEntry.NodeID)
	assert.Equal(t, map[string]any{"condition_result": true}, gateEntry.Output)
}

func TestRun_DecisionEmptyBranchStops(t *testing.T) {
	r := NewRunner(registryWith(t, createHandler()))

	trail := &schema.Trail{
		ID: "trail-3", Name: "Stop on false", TriggerType: schema.TriggerManual,
		Nodes: map[string]*schema.Node{
			"start":  {ID: "start", Name: "Start", Kind: schema.NodeKindTrigger, Next: "create"},
			"create": {ID: "create", Name: "CriarCliente", Kind: schema.NodeKindAction, Action: &schema.ActionSpec{Type: schema.ActionDBCreate, Next: "gate"}},
			"gate": {
				ID: "gate", Name: "Gate", Kind: schema.NodeKindDecision,
				Decision: &schema.DecisionSpec{
					Condition: "FALSE",
					NextTrue:  "create",
					NextFalse: "",
				},
			},
		},
	}

	trace := r.Run(context.Background(), trail, nil)
	require.Equal(t, schema.RunStatusCompleted, trace.Status)
	assert.Len(t, trace.Entries, 2)
}

func TestRun_DanglingNextIsTerminalWarning(t *testing.T) {
	r := NewRunner(registryWith(t, createHandler()))

	trail := linearTrail(nil)
	trail.Nodes["create"].Action.Next = "ghost"
	delete(trail.Nodes, "notify")

	trace := r.Run(context.Background(), trail, map[string]any{"id": "row-7"})
	require.Equal(t, schema.RunStatusCompleted, trace.Status)
	require.Len(t, trace.Entries, 2)
	assert.Equal(t, "ghost", trace.Entries[1].NodeID)
	assert.Equal(t, schema.NodeStatusSkipped, trace.Entries[1].Status)
}

func TestRun_RuntimeCycleDetected(t *testing.T) {
	bounce := &fakeHandler{
		typ: schema.ActionNotify,
		exec: func(ctx context.Context, input actions.Input) (map[string]any, error) {
			return nil, nil
		},
	}
	r := NewRunner(registryWith(t, bounce))

	// A graph that bypassed validation: a <-> b.
	trail := &schema.Trail{
		ID: "trail-4", Name: "Cycle", TriggerType: schema.TriggerManual,
		Nodes: map[string]*schema.Node{
			"start": {ID: "start", Name: "Start", Kind: schema.NodeKindTrigger, Next: "a"},
			"a":     {ID: "a", Name: "A", Kind: schema.NodeKindAction, Action: &schema.ActionSpec{Type: schema.ActionNotify, Next: "b"}},
			"b":     {ID: "b", Name: "B", Kind: schema.NodeKindAction, Action: &schema.ActionSpec{Type: schema.ActionNotify, Next: "a"}},
		},
	}

	trace := r.Run(context.Background(), trail, nil)
	require.Equal(t, schema.RunStatusFailed, trace.Status)
	require.NotNil(t, trace.Error)
	assert.Equal(t, schema.ErrCodeRuntimeCycle, trace.Error.Code)
	assert.Len(t, trace.Entries, 2)
}

func TestRun_CancelledBetweenNodes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	first := &fakeHandler{
		typ: schema.ActionDBCreate,
		exec: func(ctx context.Context, input actions.Input) (map[string]any, error) {
			cancel() // cancel mid-run; the next transition must notice
			return map[string]any{"new_id": "x"}, nil
		},
	}
	r := NewRunner(registryWith(t, first))

	trail := linearTrail(nil)

	trace := r.Run(ctx, trail, map[string]any{"id": "row-7"})
	require.Equal(t, schema.RunStatusFailed, trace.Status)
	require.NotNil(t, trace.Error)
	assert.Equal(t, schema.ErrCodeCancelled, trace.Error.Code)
	assert.Len(t, trace.Entries, 1)
}

func TestRun_SeedNotMutated(t *testing.T) {
	r := NewRunner(registryWith(t, createHandler()))

	trail := linearTrail(nil)
	delete(trail.Nodes, "notify")
	trail.Nodes["create"].Action.Next = ""

	seed := map[string]any{"id": "row-7"}
	trace := r.Run(context.Background(), trail, seed)
	require.Equal(t, schema.RunStatusCompleted, trace.Status)
	assert.Equal(t, map[string]any{"id": "row-7"}, seed)
}

func TestRun_MissingHandler(t *testing.T) {
	r := NewRunner(actions.NewRegistry())

	trail := linearTrail(nil)

	trace := r.Run(context.Background(), trail, map[string]any{"id": "row-7"})
	require.Equal(t, schema.RunStatusFailed, trace.Status)
	assert.Equal(t, schema.ErrCodeExternalAction, trace.Error.Code)
}

func TestSkippedTrace(t *testing.T) {
	trail := linearTrail(nil)
	cause := schema.NewError(schema.ErrCodeTriggerRejected, "guard said no")

	trace := SkippedTrace(trail, cause)
	assert.Equal(t, schema.RunStatusSkipped, trace.Status)
	assert.Equal(t, trail.ID, trace.TrailID)
	assert.Empty(t, trace.Entries)
	assert.Equal(t, schema.ErrCodeTriggerRejected, trace.Error.Code)
	assert.NotEmpty(t, trace.RunID)
}
