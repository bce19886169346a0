// Package triggers turns external events into the initial run context of a
// trail. Each trigger type carries its own hardening at the boundary:
// webhook bodies pass a JSON Schema and a CEL guard, DB events pass an expr
// row filter, and only then does the engine see a run. A rejected event
// produces a TRIGGER_REJECTED error, which callers record as a skipped run
// rather than a failure.
package triggers

import (
	"context"
	"sort"
	"time"

	"github.com/pedbender123/repforce-web-sub002/internal/validation"
	"github.com/pedbender123/repforce-web-sub002/pkg/schema"
)

// ManualEvent is a builder-surface button click.
type ManualEvent struct {
	// RowID is the clicked row's identifier; set when the button lives on
	// a list row.
	RowID string
}

// DBEvent is a row mutation on a watched entity.
type DBEvent struct {
	EntityID string
	Event    string // created, updated, deleted
	RowID    string
	Row      map[string]any
}

// WebhookEvent is an inbound HTTP call to a trail's webhook endpoint.
type WebhookEvent struct {
	Body    map[string]any
	Query   map[string]any
	Headers map[string]any
}

// SchedulerEvent is a cron firing.
type SchedulerEvent struct {
	FiredAt time.Time
}

// Seeder builds the initial execution context for a run from a trigger
// event, applying the trail's trigger-level gates first. Safe for
// concurrent use; all expression caches are shared.
type Seeder struct {
	guard     *CELGuard
	filter    *RowFilter
	extractor *Extractor
	documents *validation.DocumentValidator
}

// NewSeeder creates a Seeder with fresh expression caches.
func NewSeeder() (*Seeder, error) {
	guard, err := NewCELGuard()
	if err != nil {
		return nil, err
	}
	documents, err := validation.NewDocumentValidator()
	if err != nil {
		return nil, err
	}
	return &Seeder{
		guard:     guard,
		filter:    NewRowFilter(),
		extractor: NewExtractor(),
		documents: documents,
	}, nil
}

// Seed gates the event against the trail's trigger config and returns the
// run's initial context. A TRIGGER_REJECTED error means the event did not
// qualify; any other error is a configuration defect.
func (s *Seeder) Seed(ctx context.Context, trail *schema.Trail, event any) (map[string]any, error) {
	if trail == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "trail is nil")
	}

	switch trail.TriggerType {
	case schema.TriggerManual:
		ev, ok := event.(ManualEvent)
		if !ok {
			return nil, wrongEvent(trail.TriggerType, event)
		}
		return s.seedManual(trail, ev)

	case schema.TriggerDBEvent:
		ev, ok := event.(DBEvent)
		if !ok {
			return nil, wrongEvent(trail.TriggerType, event)
		}
		return s.seedDBEvent(trail, ev)

	case schema.TriggerWebhook:
		ev, ok := event.(WebhookEvent)
		if !ok {
			return nil, wrongEvent(trail.TriggerType, event)
		}
		return s.seedWebhook(ctx, trail, ev)

	case schema.TriggerScheduler:
		ev, ok := event.(SchedulerEvent)
		if !ok {
			return nil, wrongEvent(trail.TriggerType, event)
		}
		return map[string]any{
			"fired_at": ev.FiredAt.UTC().Format(time.RFC3339),
		}, nil

	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown trigger type %q", trail.TriggerType)
	}
}

func (s *Seeder) seedManual(trail *schema.Trail, ev ManualEvent) (map[string]any, error) {
	seed := map[string]any{}
	if trail.TriggerConfig.Context == "LIST" {
		if ev.RowID == "" {
			return nil, schema.NewError(schema.ErrCodeTriggerRejected,
				"manual trigger on a list requires a clicked row ID")
		}
		seed["id"] = ev.RowID
	}
	return seed, nil
}

func (s *Seeder) seedDBEvent(trail *schema.Trail, ev DBEvent) (map[string]any, error) {
	cfg := trail.TriggerConfig
	if ev.EntityID != cfg.EntityID {
		return nil, schema.NewErrorf(schema.ErrCodeTriggerRejected,
			"event entity %q does not match watched entity %q", ev.EntityID, cfg.EntityID)
	}
	if ev.Event != cfg.Event {
		return nil, schema.NewErrorf(schema.ErrCodeTriggerRejected,
			"event kind %q does not match watched kind %q", ev.Event, cfg.Event)
	}

	matched, err := s.filter.Match(cfg.Filter, rowEnv(ev))
	if err != nil {
		return nil, err
	}
	if !matched {
		return nil, schema.NewErrorf(schema.ErrCodeTriggerRejected,
			"row %s did not match filter %q", ev.RowID, cfg.Filter)
	}

	return map[string]any{"id": ev.RowID}, nil
}

func (s *Seeder) seedWebhook(ctx context.Context, trail *schema.Trail, ev WebhookEvent) (map[string]any, error) {
	cfg := trail.TriggerConfig

	if err := s.documents.ValidateBody(ev.Body, cfg.BodySchema); err != nil {
		return nil, schema.NewError(schema.ErrCodeTriggerRejected,
			"webhook body failed schema validation").WithCause(err)
	}

	allowed, err := s.guard.Allow(cfg.Guard, ev.Body, ev.Query, ev.Headers)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, schema.NewErrorf(schema.ErrCodeTriggerRejected,
			"webhook rejected by guard %q", cfg.Guard)
	}

	seed := map[string]any{
		"trigger.body":  orEmpty(ev.Body),
		"trigger.query": orEmpty(ev.Query),
	}

	for _, name := range sortedKeys(cfg.Extract) {
		val, err := s.extractor.Extract(ctx, cfg.Extract[name], ev.Body)
		if err != nil {
			return nil, err
		}
		seed[name] = val
	}
	return seed, nil
}

// rowEnv exposes the row's fields as top-level filter variables, with the
// row ID always present as "id".
func rowEnv(ev DBEvent) map[string]any {
	env := make(map[string]any, len(ev.Row)+1)
	for k, v := range ev.Row {
		env[k] = v
	}
	env["id"] = ev.RowID
	return env
}

func wrongEvent(typ schema.TriggerType, event any) *schema.TrailError {
	return schema.NewErrorf(schema.ErrCodeValidation,
		"trigger type %s cannot accept a %T event", typ, event)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
