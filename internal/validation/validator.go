// Package validation checks trail graphs for structural correctness before
// they are persisted or executed: unique trigger, edge integrity, branch
// arity, acyclicity. All defects found in one pass are reported together.
package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pedbender123/repforce-web-sub002/pkg/schema"
)

// ValidateTrail runs the full structural validation pipeline over a trail.
// Storage calls this inside save; the engine assumes it already ran and
// only keeps a visited-set of its own at runtime.
func ValidateTrail(trail *schema.Trail) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	if trail == nil {
		result.AddError("", schema.ErrCodeValidation, "trail is nil")
		return result
	}
	if trail.Name == "" {
		result.AddError("name", schema.ErrCodeValidation, "trail name is empty")
	}
	if !schema.KnownTriggerType(trail.TriggerType) {
		result.AddError("trigger_type", schema.ErrCodeValidation,
			fmt.Sprintf("unknown trigger type %q", trail.TriggerType))
	}
	validateTriggerConfig(trail, result)

	if len(trail.Nodes) == 0 {
		result.AddError("nodes", schema.ErrCodeMissingTrigger, "trail has no nodes; a trigger node is required")
		return result
	}

	validateNodes(trail, result)
	validateEdges(trail, result)

	// Cycle detection is meaningless over dangling edges; the DFS below
	// only follows edges that resolved.
	result.Merge(detectCycles(trail))
	result.Merge(checkReachability(trail))

	return result
}

// validateTriggerConfig checks the trigger-type-specific config fields.
func validateTriggerConfig(trail *schema.Trail, result *schema.ValidationResult) {
	cfg := trail.TriggerConfig
	switch trail.TriggerType {
	case schema.TriggerScheduler:
		if cfg.Cron == "" {
			result.AddError("trigger_config.cron", schema.ErrCodeValidation,
				"SCHEDULER trigger requires a cron expression")
		}
	case schema.TriggerDBEvent:
		if cfg.EntityID == "" {
			result.AddError("trigger_config.entity_id", schema.ErrCodeValidation,
				"DB_EVENT trigger requires a watched entity")
		}
		switch cfg.Event {
		case "created", "updated", "deleted":
		default:
			result.AddError("trigger_config.event", schema.ErrCodeValidation,
				fmt.Sprintf("DB_EVENT trigger event must be created, updated or deleted (got %q)", cfg.Event))
		}
	}
}

// validateNodes checks per-node invariants: ID consistency, unique trigger,
// kind/payload coherence, known action types, required config keys.
func validateNodes(trail *schema.Trail, result *schema.ValidationResult) {
	var triggerIDs []string

	for key, node := range trail.Nodes {
		if node != nil && node.ID != key {
			result.AddError(fmt.Sprintf("nodes[%s]", key), schema.ErrCodeValidation,
				fmt.Sprintf("node ID %q does not match its map key %q", node.ID, key))
		}
	}

	// Node names namespace outputs in formulas and the run context
	// ([Name].output), so a shared name makes the later node silently
	// shadow the earlier one's outputs.
	byName := make(map[string][]string)
	for _, node := range sortedNodes(trail) {
		if node.Name != "" {
			byName[node.Name] = append(byName[node.Name], node.ID)
		}
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if ids := byName[name]; len(ids) > 1 {
			result.AddError("nodes", schema.ErrCodeValidation,
				fmt.Sprintf("node name %q is shared by nodes %s; names must be unique",
					name, strings.Join(ids, ", ")))
		}
	}

	for _, node := range sortedNodes(trail) {
		path := fmt.Sprintf("nodes[%s]", node.ID)

		if node.Kind != schema.NodeKindTrigger && node.Next != "" {
			result.AddError(path+".next", schema.ErrCodeValidation,
				"only the trigger node carries a top-level next edge")
		}

		switch node.Kind {
		case schema.NodeKindTrigger:
			triggerIDs = append(triggerIDs, node.ID)
			if node.Action != nil || node.Decision != nil {
				result.AddError(path, schema.ErrCodeValidation, "trigger node carries an action or decision payload")
			}
			if node.Next == "" {
				result.AddWarning(path+".next", schema.ErrCodeValidation,
					"trigger has no outgoing edge; runs will stop immediately")
			}

		case schema.NodeKindAction:
			if node.Action == nil {
				result.AddError(path+".action", schema.ErrCodeValidation, "action node has no action payload")
				continue
			}
			if !schema.KnownActionType(node.Action.Type) {
				result.AddError(path+".action.type", schema.ErrCodeValidation,
					fmt.Sprintf("unknown action type %q", node.Action.Type))
				continue
			}
			for _, key := range schema.RequiredConfig(node.Action.Type) {
				if _, ok := node.Action.Config[key]; !ok {
					result.AddError(fmt.Sprintf("%s.action.config.%s", path, key),
						schema.ErrCodeValidation,
						fmt.Sprintf("%s requires config key %q", node.Action.Type, key))
				}
			}

		case schema.NodeKindDecision:
			if node.Decision == nil {
				result.AddError(path+".decision", schema.ErrCodeBranchArity,
					"decision node has no condition or branch labels")
				continue
			}
			if node.Decision.Condition == "" {
				result.AddError(path+".decision.condition", schema.ErrCodeValidation,
					"decision condition is empty")
			}

		default:
			result.AddError(path+".kind", schema.ErrCodeValidation,
				fmt.Sprintf("unknown node kind %q", node.Kind))
		}
	}

	switch len(triggerIDs) {
	case 0:
		result.AddError("nodes", schema.ErrCodeMissingTrigger, "trail has no trigger node")
	case 1:
	default:
		sort.Strings(triggerIDs)
		result.AddError("nodes", schema.ErrCodeDuplicateTrigger,
			fmt.Sprintf("trail has %d trigger nodes (%s); exactly one is required",
				len(triggerIDs), strings.Join(triggerIDs, ", ")))
	}
}

// validateEdges checks that every outgoing edge references an existing node
// and that no edge points at the trigger (it is the unique entry point).
func validateEdges(trail *schema.Trail, result *schema.ValidationResult) {
	check := func(path, target string) {
		if target == "" {
			return
		}
		dest, ok := trail.Nodes[target]
		if !ok {
			result.AddError(path, schema.ErrCodeDanglingEdge,
				fmt.Sprintf("edge references non-existent node %q", target))
			return
		}
		if dest != nil && dest.Kind == schema.NodeKindTrigger {
			result.AddError(path, schema.ErrCodeValidation,
				"edge points at the trigger node; the trigger has no incoming edges")
		}
	}

	for _, node := range sortedNodes(trail) {
		path := fmt.Sprintf("nodes[%s]", node.ID)
		switch node.Kind {
		case schema.NodeKindTrigger:
			check(path+".next", node.Next)
		case schema.NodeKindAction:
			if node.Action != nil {
				check(path+".action.next", node.Action.Next)
			}
		case schema.NodeKindDecision:
			if node.Decision != nil {
				check(path+".decision.next_true", node.Decision.NextTrue)
				check(path+".decision.next_false", node.Decision.NextFalse)
			}
		}
	}
}

// detectCycles runs a white/gray/black DFS over resolved edges from every
// node and reports the node list of the first cycle found from each root.
func detectCycles(trail *schema.Trail) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(trail.Nodes))
	var stack []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		stack = append(stack, id)
		node := trail.Nodes[id]
		if node != nil {
			for _, next := range node.Successors() {
				if _, exists := trail.Nodes[next]; !exists {
					continue // dangling edges already reported
				}
				switch color[next] {
				case gray:
					cycle := cycleFrom(stack, next)
					result.AddError("nodes", schema.ErrCodeCycleDetected,
						fmt.Sprintf("cycle detected: %s", strings.Join(cycle, " -> ")))
					return true
				case white:
					if visit(next) {
						return true
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, node := range sortedNodes(trail) {
		if color[node.ID] == white {
			stack = stack[:0]
			visit(node.ID)
		}
	}
	return result
}

// cycleFrom extracts the cycle's node list from the DFS stack, closing it
// back on the revisited node.
func cycleFrom(stack []string, start string) []string {
	for i, id := range stack {
		if id == start {
			cycle := append([]string{}, stack[i:]...)
			return append(cycle, start)
		}
	}
	return []string{start, start}
}

// checkReachability warns about nodes no run can ever visit. Unreachable
// nodes are legal (the builder may be mid-edit) but almost always a wiring
// mistake.
func checkReachability(trail *schema.Trail) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	trigger := trail.TriggerNode()
	if trigger == nil {
		return result // missing trigger already reported
	}

	reachable := map[string]bool{trigger.ID: true}
	queue := []string{trigger.ID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		node := trail.Nodes[id]
		if node == nil {
			continue
		}
		for _, next := range node.Successors() {
			if _, exists := trail.Nodes[next]; exists && !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	for _, node := range sortedNodes(trail) {
		if !reachable[node.ID] {
			result.AddWarning(fmt.Sprintf("nodes[%s]", node.ID), schema.ErrCodeValidation,
				fmt.Sprintf("node %q is unreachable from the trigger", node.ID))
		}
	}
	return result
}

// sortedNodes returns the trail's nodes ordered by ID for deterministic
// issue output.
func sortedNodes(trail *schema.Trail) []*schema.Node {
	nodes := make([]*schema.Node, 0, len(trail.Nodes))
	for _, n := range trail.Nodes {
		if n != nil {
			nodes = append(nodes, n)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}
