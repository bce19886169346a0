// Package variables resolves which symbols a formula at a given node may
// reference: trigger-derived values plus the declared outputs of every node
// guaranteed to have executed on any path reaching that node. The engine's
// context seeding follows the same naming scheme, so a formula that passes
// the static check here resolves at runtime too.
package variables

import (
	"fmt"
	"sort"

	"github.com/pedbender123/repforce-web-sub002/pkg/schema"
)

// Variable is one symbol available to a formula, as shown in the builder's
// variable picker.
type Variable struct {
	Name  string           `json:"name"`
	Label string           `json:"label"`
	Type  schema.ValueType `json:"value_type"`
}

// ComputedVariables lists the symbols a formula at atNode may legally
// reference. Node outputs are only included when the producing node is a
// strict dominator of atNode: present on every path from the trigger, so
// its outputs exist no matter which branches a run took.
func ComputedVariables(trail *schema.Trail, atNode string) ([]Variable, error) {
	if trail == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "trail is nil")
	}
	node, ok := trail.Nodes[atNode]
	if !ok || node == nil {
		return nil, schema.NewError(schema.ErrCodeNotFound,
			fmt.Sprintf("node %q not found in trail", atNode)).WithNode(atNode)
	}

	vars := TriggerVariables(trail)

	trigger := trail.TriggerNode()
	if trigger == nil || atNode == trigger.ID {
		return vars, nil
	}

	doms := dominators(trail, trigger.ID)
	for _, domID := range sortedIDs(doms[atNode]) {
		if domID == atNode {
			continue
		}
		dom := trail.Nodes[domID]
		if dom == nil || dom.Kind != schema.NodeKindAction || dom.Action == nil {
			continue
		}
		for _, out := range schema.ActionOutputs(dom.Action.Type) {
			vars = append(vars, Variable{
				Name:  fmt.Sprintf("[%s].%s", dom.Name, out.Name),
				Label: fmt.Sprintf("%s: %s", dom.Name, out.Name),
				Type:  out.Type,
			})
		}
	}
	return vars, nil
}

// TriggerVariables lists the symbols seeded from the trigger payload, by
// trigger type.
func TriggerVariables(trail *schema.Trail) []Variable {
	var vars []Variable
	switch trail.TriggerType {
	case schema.TriggerManual:
		if trail.TriggerConfig.Context == "LIST" {
			vars = append(vars, Variable{
				Name: "[id]", Label: "Clicked row ID", Type: schema.ValueText,
			})
		}
	case schema.TriggerDBEvent:
		vars = append(vars, Variable{
			Name: "[id]", Label: "Affected row ID", Type: schema.ValueText,
		})
	case schema.TriggerWebhook:
		vars = append(vars,
			Variable{Name: "[trigger.body]", Label: "Webhook body", Type: schema.ValueObject},
			Variable{Name: "[trigger.query]", Label: "Webhook query parameters", Type: schema.ValueObject},
		)
		for _, name := range sortedKeys(trail.TriggerConfig.Extract) {
			vars = append(vars, Variable{
				Name:  "[" + name + "]",
				Label: "Extracted: " + name,
				Type:  schema.ValueAny,
			})
		}
	case schema.TriggerScheduler:
		vars = append(vars, Variable{
			Name: "[fired_at]", Label: "Scheduled firing time", Type: schema.ValueText,
		})
	}
	return vars
}

// dominators computes the dominator sets of every node reachable from root
// using the classic iterative data-flow: dom(root) = {root}, dom(n) = {n} ∪
// the intersection of dom over n's predecessors, iterated to a fixpoint.
// Trail graphs are small, so the quadratic worst case is irrelevant.
func dominators(trail *schema.Trail, root string) map[string]map[string]bool {
	reachable := reachableFrom(trail, root)

	preds := make(map[string][]string, len(reachable))
	for id := range reachable {
		node := trail.Nodes[id]
		if node == nil {
			continue
		}
		for _, next := range node.Successors() {
			if reachable[next] {
				preds[next] = append(preds[next], id)
			}
		}
	}

	dom := make(map[string]map[string]bool, len(reachable))
	for id := range reachable {
		if id == root {
			dom[id] = map[string]bool{root: true}
			continue
		}
		all := make(map[string]bool, len(reachable))
		for r := range reachable {
			all[r] = true
		}
		dom[id] = all
	}

	order := sortedIDs(reachable)
	for changed := true; changed; {
		changed = false
		for _, id := range order {
			if id == root {
				continue
			}
			next := intersectDoms(dom, preds[id])
			next[id] = true
			if !sameSet(dom[id], next) {
				dom[id] = next
				changed = true
			}
		}
	}
	return dom
}

// intersectDoms intersects the dominator sets of a node's predecessors.
func intersectDoms(dom map[string]map[string]bool, preds []string) map[string]bool {
	if len(preds) == 0 {
		return map[string]bool{}
	}
	out := make(map[string]bool, len(dom[preds[0]]))
	for id := range dom[preds[0]] {
		out[id] = true
	}
	for _, p := range preds[1:] {
		for id := range out {
			if !dom[p][id] {
				delete(out, id)
			}
		}
	}
	return out
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if !b[id] {
			return false
		}
	}
	return true
}

// reachableFrom returns the set of node IDs reachable from root over
// resolved edges.
func reachableFrom(trail *schema.Trail, root string) map[string]bool {
	reachable := map[string]bool{root: true}
	queue := []string{root}
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
	return reachable
}

func sortedIDs(set map[string]bool) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
