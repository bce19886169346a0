package store

import (
	"context"
	"time"

	"github.com/pedbender123/repforce-web-sub002/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Trails
	SaveTrail(ctx context.Context, trail *schema.Trail) error
	GetTrail(ctx context.Context, id string) (*schema.Trail, error)
	ListTrails(ctx context.Context, filter TrailFilter) ([]*schema.Trail, error)
	DeleteTrail(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) error
	ListScheduled(ctx context.Context) ([]*schema.Trail, error)

	// Runs
	SaveRun(ctx context.Context, trace *schema.ExecutionTrace) error
	GetRun(ctx context.Context, runID string) (*schema.ExecutionTrace, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*schema.ExecutionTrace, error)
}

// TrailFilter narrows ListTrails. Zero values mean "no constraint".
type TrailFilter struct {
	TenantID    string
	TriggerType schema.TriggerType
	ActiveOnly  bool
	Limit       int
	Offset      int
}

// RunFilter narrows ListRuns. Zero values mean "no constraint".
type RunFilter struct {
	TrailID string
	Status  schema.RunStatus
	Since   *time.Time
	Limit   int
	Offset  int
}
