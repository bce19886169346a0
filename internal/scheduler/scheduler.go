// Package scheduler fires SCHEDULER trails on their cron expressions. It
// polls the trail source on a fixed tick, tracks the next due time per
// trail in memory, and dedups in-flight firings so a slow run never
// overlaps itself.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pedbender123/repforce-web-sub002/internal/triggers"
	"github.com/pedbender123/repforce-web-sub002/pkg/schema"
)

const defaultTick = 60 * time.Second

// TrailSource lists the trails the scheduler should consider. Satisfied by
// the store's ListScheduled.
type TrailSource interface {
	ListScheduled(ctx context.Context) ([]*schema.Trail, error)
}

// TrailRunner executes one run. Satisfied by the engine plus whatever
// persistence wrapper the host composes around it.
type TrailRunner interface {
	Run(ctx context.Context, trail *schema.Trail, seed map[string]any) *schema.ExecutionTrace
}

// Scheduler drives cron-triggered trails.
type Scheduler struct {
	source TrailSource
	runner TrailRunner
	seeder *triggers.Seeder
	parser cron.Parser
	logger *slog.Logger
	tick   time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	stateMu  sync.Mutex
	nextRuns map[string]time.Time // trail ID -> next due time
	inflight map[string]struct{}  // trail IDs currently executing (dedup)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTick overrides the polling interval.
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithLogger sets the scheduler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// New creates a Scheduler. The seeder builds each firing's run context.
func New(source TrailSource, runner TrailRunner, seeder *triggers.Seeder, opts ...Option) *Scheduler {
	s := &Scheduler{
		source:   source,
		runner:   runner,
		seeder:   seeder,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   slog.Default(),
		tick:     defaultTick,
		nextRuns: make(map[string]time.Time),
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.Duration("tick", s.tick))
	return nil
}

// Stop gracefully shuts down the scheduler, waiting for the loop to exit.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	// Run an initial tick immediately.
	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick checks every active scheduled trail and fires those that are due.
// Exported so hosts without a background loop can drive it themselves.
func (s *Scheduler) Tick(ctx context.Context) {
	trails, err := s.source.ListScheduled(ctx)
	if err != nil {
		s.logger.Error("failed to list scheduled trails", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	active := make(map[string]bool, len(trails))

	for _, trail := range trails {
		if trail == nil || trail.TriggerType != schema.TriggerScheduler || !trail.IsActive {
			continue
		}
		active[trail.ID] = true

		due, err := s.isDue(trail, now)
		if err != nil {
			s.logger.Error("invalid cron expression",
				slog.String("trail_id", trail.ID),
				slog.String("cron", trail.TriggerConfig.Cron),
				slog.String("error", err.Error()))
			continue
		}
		if !due {
			continue
		}
		if !s.tryAcquire(trail.ID) {
			continue // previous firing still running
		}
		s.fire(ctx, trail, now)
		s.release(trail.ID)
	}

	s.forget(active)
}

// isDue reports whether the trail's next due time has passed, seeding the
// schedule on first sight of a trail.
func (s *Scheduler) isDue(trail *schema.Trail, now time.Time) (bool, error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	next, seen := s.nextRuns[trail.ID]
	if !seen {
		schedule, err := s.parser.Parse(trail.TriggerConfig.Cron)
		if err != nil {
			return false, err
		}
		s.nextRuns[trail.ID] = schedule.Next(now)
		return false, nil
	}
	if now.Before(next) {
		return false, nil
	}

	schedule, err := s.parser.Parse(trail.TriggerConfig.Cron)
	if err != nil {
		return false, err
	}
	s.nextRuns[trail.ID] = schedule.Next(now)
	return true, nil
}

// fire runs one scheduled firing.
func (s *Scheduler) fire(ctx context.Context, trail *schema.Trail, now time.Time) {
	seed, err := s.seeder.Seed(ctx, trail, triggers.SchedulerEvent{FiredAt: now})
	if err != nil {
		s.logger.Error("scheduled firing rejected",
			slog.String("trail_id", trail.ID),
			slog.String("error", err.Error()))
		return
	}

	trace := s.runner.Run(ctx, trail, seed)
	if trace.Status == schema.RunStatusFailed {
		s.logger.Error("scheduled run failed",
			slog.String("trail_id", trail.ID),
			slog.String("run_id", trace.RunID),
			slog.String("error", trace.Error.Message))
		return
	}
	s.logger.Info("scheduled run completed",
		slog.String("trail_id", trail.ID),
		slog.String("run_id", trace.RunID),
		slog.Int("nodes_executed", len(trace.Entries)))
}

// tryAcquire returns true and marks the trail in-flight if it is not
// already running.
func (s *Scheduler) tryAcquire(trailID string) bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if _, ok := s.inflight[trailID]; ok {
		return false
	}
	s.inflight[trailID] = struct{}{}
	return true
}

// release removes the trail from the in-flight set.
func (s *Scheduler) release(trailID string) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	delete(s.inflight, trailID)
}

// forget drops schedule state for trails that disappeared or were
// deactivated, so a later reactivation starts a fresh schedule.
func (s *Scheduler) forget(active map[string]bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	for id := range s.nextRuns {
		if !active[id] {
			delete(s.nextRuns, id)
		}
	}
}

// NextRun computes the next firing time for a cron expression.
func (s *Scheduler) NextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}
