// Package engine walks a validated trail graph for one triggering event:
// strictly sequential within a run, freely parallel across runs. The trail
// definition is read-only during execution; all mutable state lives in the
// per-run context map.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pedbender123/repforce-web-sub002/internal/actions"
	"github.com/pedbender123/repforce-web-sub002/internal/formula"
	"github.com/pedbender123/repforce-web-sub002/internal/logging"
	"github.com/pedbender123/repforce-web-sub002/pkg/schema"
)

const defaultDispatchTimeout = 60 * time.Second

// Runner executes trail runs. Safe for concurrent use: the formula cache
// and handler registry are shared, everything else is per-run.
type Runner struct {
	registry        *actions.Registry
	interp          *formula.Interpreter
	logger          *slog.Logger
	dispatchTimeout time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithDispatchTimeout bounds each action handler dispatch.
func WithDispatchTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.dispatchTimeout = d
		}
	}
}

// WithInterpreter shares a formula interpreter (and its parse cache) with
// other components, typically the preview service.
func WithInterpreter(in *formula.Interpreter) Option {
	return func(r *Runner) {
		if in != nil {
			r.interp = in
		}
	}
}

// NewRunner creates a Runner dispatching to the given handler registry.
func NewRunner(registry *actions.Registry, opts ...Option) *Runner {
	r := &Runner{
		registry:        registry,
		interp:          formula.New(),
		logger:          slog.Default(),
		dispatchTimeout: defaultDispatchTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run walks the trail for one triggering event. The seed is the initial
// context built by the trigger layer; it is copied, never mutated. The
// returned trace always carries every node visited before a failure —
// dispatched side effects are not rolled back.
func (r *Runner) Run(ctx context.Context, trail *schema.Trail, seed map[string]any) *schema.ExecutionTrace {
	trace := &schema.ExecutionTrace{
		RunID:     uuid.NewString(),
		TrailID:   trail.ID,
		Status:    schema.RunStatusCompleted,
		StartedAt: time.Now().UTC(),
	}
	defer func() { trace.CompletedAt = time.Now().UTC() }()

	ctx = logging.WithIDs(ctx, trail.ID, trace.RunID, "")
	log := logging.LogWith(ctx, r.logger)

	trigger := trail.TriggerNode()
	if trigger == nil {
		trace.Status = schema.RunStatusFailed
		trace.Error = schema.NewError(schema.ErrCodeValidation, "trail has no trigger node")
		return trace
	}

	runCtx := make(map[string]any, len(seed))
	for k, v := range seed {
		runCtx[k] = v
	}

	visited := map[string]bool{trigger.ID: true}
	current := trigger.Next

	log.InfoContext(ctx, "run started", slog.String("trigger_type", string(trail.TriggerType)))

	for current != "" {
		if err := ctx.Err(); err != nil {
			trace.Status = schema.RunStatusFailed
			trace.Error = schema.NewError(schema.ErrCodeCancelled, "run cancelled").WithCause(err)
			log.WarnContext(ctx, "run cancelled", slog.String("at_node", current))
			return trace
		}

		node, ok := trail.Nodes[current]
		if !ok || node == nil {
			// Dangling edge: terminal with a warning, not a crash.
			trace.Entries = append(trace.Entries, schema.TraceEntry{
				NodeID:    current,
				Status:    schema.NodeStatusSkipped,
				StartedAt: time.Now().UTC(),
			})
			log.WarnContext(ctx, "edge references missing node, stopping run",
				slog.String("node_id", current))
			return trace
		}

		if visited[current] {
			trace.Status = schema.RunStatusFailed
			trace.Error = schema.NewErrorf(schema.ErrCodeRuntimeCycle,
				"node %q revisited during run", current).WithNode(current)
			log.ErrorContext(ctx, "cycle detected at runtime", slog.String("node_id", current))
			return trace
		}
		visited[current] = true

		nodeCtx := logging.WithNodeID(ctx, node.ID)
		entry := schema.TraceEntry{
			NodeID:    node.ID,
			NodeName:  node.Name,
			Status:    schema.NodeStatusOK,
			StartedAt: time.Now().UTC(),
		}

		var next string
		var nodeErr *schema.TrailError

		switch node.Kind {
		case schema.NodeKindAction:
			entry.Output, next, nodeErr = r.runAction(nodeCtx, trail, trace.RunID, node, runCtx)
		case schema.NodeKindDecision:
			entry.Output, next, nodeErr = r.runDecision(node, runCtx)
		default:
			nodeErr = schema.NewErrorf(schema.ErrCodeValidation,
				"node %q has kind %q, which is not executable", node.ID, node.Kind).WithNode(node.ID)
		}

		entry.DurationMs = time.Since(entry.StartedAt).Milliseconds()

		if nodeErr != nil {
			entry.Status = schema.NodeStatusError
			entry.Error = nodeErr
			trace.Entries = append(trace.Entries, entry)
			trace.Status = schema.RunStatusFailed
			trace.Error = nodeErr
			logging.LogWith(nodeCtx, r.logger).ErrorContext(nodeCtx, "node failed",
				slog.String("code", nodeErr.Code), slog.String("error", nodeErr.Message))
			return trace
		}

		trace.Entries = append(trace.Entries, entry)
		current = next
	}

	log.InfoContext(ctx, "run completed", slog.Int("nodes_executed", len(trace.Entries)))
	return trace
}

// runAction resolves the node's config, dispatches it to the registered
// handler, and merges the declared outputs into the run context under the
// node's name.
func (r *Runner) runAction(ctx context.Context, trail *schema.Trail, runID string, node *schema.Node, runCtx map[string]any) (map[string]any, string, *schema.TrailError) {
	spec := node.Action
	if spec == nil {
		return nil, "", schema.NewErrorf(schema.ErrCodeValidation,
			"action node %q has no action payload", node.ID).WithNode(node.ID)
	}

	resolved, err := r.resolveConfig(node, spec.Config, runCtx)
	if err != nil {
		return nil, "", err
	}

	handler, herr := r.registry.Get(spec.Type)
	if herr != nil {
		return nil, "", asTrailError(herr).WithNode(node.ID)
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, r.dispatchTimeout)
	defer cancel()

	outputs, execErr := handler.Execute(dispatchCtx, actions.Input{
		TrailID: trail.ID,
		RunID:   runID,
		NodeID:  node.ID,
		Config:  resolved,
		Context: runCtx,
	})
	if execErr != nil {
		if dispatchCtx.Err() == context.DeadlineExceeded {
			return nil, "", schema.NewErrorf(schema.ErrCodeTimeout,
				"action %s timed out after %s", spec.Type, r.dispatchTimeout).
				WithCause(execErr).WithNode(node.ID)
		}
		return nil, "", asTrailError(execErr).WithNode(node.ID)
	}

	for k, v := range outputs {
		runCtx[node.Name+"."+k] = v
	}
	return outputs, spec.Next, nil
}

// runDecision evaluates the condition and selects a branch. Truthiness
// follows the formula language: explicit true, non-zero number, non-empty
// string.
func (r *Runner) runDecision(node *schema.Node, runCtx map[string]any) (map[string]any, string, *schema.TrailError) {
	spec := node.Decision
	if spec == nil {
		return nil, "", schema.NewErrorf(schema.ErrCodeValidation,
			"decision node %q has no decision payload", node.ID).WithNode(node.ID)
	}

	result, err := r.interp.Evaluate(spec.Condition, runCtx)
	if err != nil {
		return nil, "", schema.NewErrorf(schema.ErrCodeConfigEvaluation,
			"condition of node %q failed to evaluate", node.ID).
			WithCause(err).WithNode(node.ID).
			WithDetails(map[string]any{"condition": spec.Condition})
	}

	taken := formula.Truthy(result)
	output := map[string]any{"condition_result": taken}
	if taken {
		return output, spec.NextTrue, nil
	}
	return output, spec.NextFalse, nil
}

// resolveConfig evaluates every formula config entry against the run
// context, producing the fully-concrete map handed to the handler.
func (r *Runner) resolveConfig(node *schema.Node, config map[string]schema.ConfigValue, runCtx map[string]any) (map[string]any, *schema.TrailError) {
	resolved := make(map[string]any, len(config))

	keys := make([]string, 0, len(config))
	for k := range config {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		cv := config[key]
		if !cv.IsFormula() {
			resolved[key] = cv.LiteralValue()
			continue
		}
		val, err := r.interp.Evaluate(cv.FormulaText(), runCtx)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeConfigEvaluation,
				"config %q of node %q failed to evaluate", key, node.ID).
				WithCause(err).WithNode(node.ID).
				WithDetails(map[string]any{
					"config_key": key,
					"formula":    cv.FormulaText(),
				})
		}
		resolved[key] = val
	}
	return resolved, nil
}

// SkippedTrace builds the trace recorded for a trigger event that was
// rejected before any node executed.
func SkippedTrace(trail *schema.Trail, cause error) *schema.ExecutionTrace {
	now := time.Now().UTC()
	return &schema.ExecutionTrace{
		RunID:       uuid.NewString(),
		TrailID:     trail.ID,
		Status:      schema.RunStatusSkipped,
		Error:       asTrailError(cause),
		StartedAt:   now,
		CompletedAt: now,
	}
}

// asTrailError preserves structured errors and wraps everything else.
func asTrailError(err error) *schema.TrailError {
	var terr *schema.TrailError
	if errors.As(err, &terr) {
		return terr
	}
	return schema.NewError(schema.ErrCodeExternalAction, err.Error()).WithCause(err)
}
