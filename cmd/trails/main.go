package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pedbender123/repforce-web-sub002/internal/actions"
	"github.com/pedbender123/repforce-web-sub002/internal/engine"
	"github.com/pedbender123/repforce-web-sub002/internal/logging"
	"github.com/pedbender123/repforce-web-sub002/internal/preview"
	"github.com/pedbender123/repforce-web-sub002/internal/scheduler"
	"github.com/pedbender123/repforce-web-sub002/internal/store"
	"github.com/pedbender123/repforce-web-sub002/internal/triggers"
	"github.com/pedbender123/repforce-web-sub002/internal/validation"
	"github.com/pedbender123/repforce-web-sub002/pkg/schema"
)

const usage = `trails - trail automation engine

Usage:
  trails validate <trail.json>              check a trail document
  trails save <trail.json>                  validate and store a trail
  trails list                               list stored trails
  trails run <trail-id> [-row <row-id>]     trigger a stored trail manually
  trails run-file <trail.json> [-row <id>]  run a trail document directly
  trails runs <trail-id>                    list run traces for a trail
  trails check <trail.json> <node-id> <formula>
                                            dry-check a formula at a node
  trails scheduler                          run the cron scheduler loop
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	a := &app{cfg: cfg, logger: logger}
	if err := a.dispatch(os.Args[1], os.Args[2:]); err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

type app struct {
	cfg    Config
	logger *slog.Logger
}

func (a *app) dispatch(command string, args []string) error {
	switch command {
	case "validate":
		return a.validate(args)
	case "save":
		return a.save(args)
	case "list":
		return a.list(args)
	case "run":
		return a.run(args)
	case "run-file":
		return a.runFile(args)
	case "runs":
		return a.runs(args)
	case "check":
		return a.check(args)
	case "scheduler":
		return a.scheduler(args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) openStore(ctx context.Context) (*store.LibSQLStore, error) {
	if err := os.MkdirAll(trailsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s, err := store.NewLibSQLStore("file:" + a.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	applied, err := s.Migrate(ctx)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	if len(applied) > 0 {
		a.logger.Info("migrations applied", "migrations", applied)
	}
	return s, nil
}

func (a *app) newRunner() *engine.Runner {
	registry := actions.NewRegistry()
	_ = registry.Register(actions.NewWebhookOut(actions.WebhookConfig{}))
	_ = registry.Register(actions.NewMathOp())
	return engine.NewRunner(registry,
		engine.WithLogger(a.logger),
		engine.WithDispatchTimeout(a.cfg.dispatchTimeout()),
	)
}

func loadTrailFile(path string) (*schema.Trail, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trail := &schema.Trail{}
	if err := json.Unmarshal(data, trail); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return trail, nil
}

func (a *app) validate(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: trails validate <trail.json>")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	documents, err := validation.NewDocumentValidator()
	if err != nil {
		return err
	}
	if err := documents.ValidateDocumentBytes(data); err != nil {
		return err
	}

	trail := &schema.Trail{}
	if err := json.Unmarshal(data, trail); err != nil {
		return err
	}
	result := validation.ValidateTrail(trail)
	for _, w := range result.Warnings {
		a.logger.Warn("validation warning", "path", w.Path, "code", w.Code, "message", w.Message)
	}
	if !result.Valid() {
		for _, e := range result.Errors {
			a.logger.Error("validation error", "path", e.Path, "code", e.Code, "message", e.Message)
		}
		return fmt.Errorf("%d validation error(s)", len(result.Errors))
	}
	fmt.Printf("trail %q is valid (%d nodes)\n", trail.Name, len(trail.Nodes))
	return nil
}

func (a *app) save(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: trails save <trail.json>")
	}
	trail, err := loadTrailFile(args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()
	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.SaveTrail(ctx, trail); err != nil {
		return err
	}
	fmt.Printf("saved trail %s (%s)\n", trail.ID, trail.Name)
	return nil
}

func (a *app) list(args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	tenant := fs.String("tenant", "", "filter by tenant id")
	activeOnly := fs.Bool("active", false, "only active trails")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	trails, err := s.ListTrails(ctx, store.TrailFilter{TenantID: *tenant, ActiveOnly: *activeOnly})
	if err != nil {
		return err
	}
	for _, trail := range trails {
		state := "inactive"
		if trail.IsActive {
			state = "active"
		}
		fmt.Printf("%s  %-10s %-8s %s\n", trail.ID, trail.TriggerType, state, trail.Name)
	}
	return nil
}

func (a *app) run(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	rowID := fs.String("row", "", "row id for LIST-context manual triggers")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: trails run <trail-id> [-row <row-id>]")
	}

	ctx := context.Background()
	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	trail, err := s.GetTrail(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	if !trail.IsActive {
		return schema.NewErrorf(schema.ErrCodeConflict, "trail %q is inactive", trail.ID)
	}
	trace, err := a.execute(ctx, trail, *rowID)
	if err != nil {
		return err
	}
	if err := s.SaveRun(ctx, trace); err != nil {
		return err
	}
	return printTrace(trace)
}

func (a *app) runFile(args []string) error {
	fs := flag.NewFlagSet("run-file", flag.ContinueOnError)
	rowID := fs.String("row", "", "row id for LIST-context manual triggers")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: trails run-file <trail.json> [-row <row-id>]")
	}

	trail, err := loadTrailFile(fs.Arg(0))
	if err != nil {
		return err
	}
	if result := validation.ValidateTrail(trail); !result.Valid() {
		return result.ToError()
	}
	trace, err := a.execute(context.Background(), trail, *rowID)
	if err != nil {
		return err
	}
	return printTrace(trace)
}

// execute seeds a manual trigger event and runs the trail. A rejected
// trigger yields a SKIPPED trace instead of an error.
func (a *app) execute(ctx context.Context, trail *schema.Trail, rowID string) (*schema.ExecutionTrace, error) {
	seeder, err := triggers.NewSeeder()
	if err != nil {
		return nil, err
	}
	seed, err := seeder.Seed(ctx, trail, triggers.ManualEvent{RowID: rowID})
	if err != nil {
		var trailErr *schema.TrailError
		if errors.As(err, &trailErr) && trailErr.Code == schema.ErrCodeTriggerRejected {
			return engine.SkippedTrace(trail, err), nil
		}
		return nil, err
	}
	return a.newRunner().Run(ctx, trail, seed), nil
}

func (a *app) runs(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: trails runs <trail-id>")
	}

	ctx := context.Background()
	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	traces, err := s.ListRuns(ctx, store.RunFilter{TrailID: args[0]})
	if err != nil {
		return err
	}
	for _, trace := range traces {
		fmt.Printf("%s  %-9s %s  %d node(s)\n",
			trace.RunID, trace.Status, trace.StartedAt.Format("2006-01-02 15:04:05"), len(trace.Entries))
	}
	return nil
}

func (a *app) check(args []string) error {
	if len(args) != 3 {
		return errors.New("usage: trails check <trail.json> <node-id> <formula>")
	}
	trail, err := loadTrailFile(args[0])
	if err != nil {
		return err
	}

	svc := preview.NewService(nil)
	vars, err := svc.Variables(trail, args[1])
	if err != nil {
		return err
	}
	result := svc.Check(trail, args[1], args[2])
	if result.Valid() {
		fmt.Println("formula ok")
	} else {
		for _, e := range result.Errors {
			fmt.Printf("error [%s] %s\n", e.Code, e.Message)
		}
	}
	fmt.Println("available variables:")
	for _, v := range vars {
		fmt.Printf("  %-30s %s\n", v.Name, v.Type)
	}
	if !result.Valid() {
		return fmt.Errorf("%d formula error(s)", len(result.Errors))
	}
	return nil
}

func (a *app) scheduler(args []string) error {
	if len(args) != 0 {
		return errors.New("usage: trails scheduler")
	}

	ctx := context.Background()
	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	seeder, err := triggers.NewSeeder()
	if err != nil {
		return err
	}
	runner := &persistingRunner{inner: a.newRunner(), store: s, logger: a.logger}
	sched := scheduler.New(s, runner, seeder,
		scheduler.WithTick(a.cfg.schedulerTick()),
		scheduler.WithLogger(a.logger),
	)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("scheduler started", "tick", a.cfg.schedulerTick())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	sched.Stop()
	a.logger.Info("scheduler stopped")
	return nil
}

// persistingRunner saves every scheduled run trace as it completes.
type persistingRunner struct {
	inner  *engine.Runner
	store  *store.LibSQLStore
	logger *slog.Logger
}

func (r *persistingRunner) Run(ctx context.Context, trail *schema.Trail, seed map[string]any) *schema.ExecutionTrace {
	trace := r.inner.Run(ctx, trail, seed)
	if err := r.store.SaveRun(ctx, trace); err != nil {
		r.logger.Error("persist run failed", "run_id", trace.RunID, "trail_id", trail.ID, "error", err)
	}
	return trace
}

func printTrace(trace *schema.ExecutionTrace) error {
	out, err := json.MarshalIndent(trace, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
