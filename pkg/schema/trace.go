package schema

import "time"

// RunStatus is the terminal status of a trail run.
type RunStatus string

const (
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusSkipped   RunStatus = "SKIPPED" // trigger rejected, nothing executed
)

// NodeStatus is the per-node outcome recorded in the trace.
type NodeStatus string

const (
	NodeStatusOK      NodeStatus = "OK"
	NodeStatusError   NodeStatus = "ERROR"
	NodeStatusSkipped NodeStatus = "SKIPPED"
)

// ExecutionTrace records one run of a trail: one entry per visited node,
// in visit order. Partial progress before a failure stays in the trace —
// dispatched side effects are never rolled back.
type ExecutionTrace struct {
	RunID       string       `json:"run_id"`
	TrailID     string       `json:"trail_id"`
	Status      RunStatus    `json:"status"`
	Entries     []TraceEntry `json:"entries,omitempty"`
	Error       *TrailError  `json:"error,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt time.Time    `json:"completed_at"`
}

// TraceEntry is the structured record of one node visit.
type TraceEntry struct {
	NodeID     string         `json:"node_id"`
	NodeName   string         `json:"node_name,omitempty"`
	Status     NodeStatus     `json:"status"`
	Output     map[string]any `json:"output,omitempty"`
	Error      *TrailError    `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	DurationMs int64          `json:"duration_ms"`
}
