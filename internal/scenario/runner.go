package scenario

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/kuitang/admin-e2e/internal/artifacts"
	"github.com/kuitang/admin-e2e/internal/clock"
	"github.com/kuitang/admin-e2e/internal/config"
	"github.com/kuitang/admin-e2e/internal/errs"
	"github.com/kuitang/admin-e2e/internal/login"
	"github.com/kuitang/admin-e2e/internal/obs"
	"github.com/kuitang/admin-e2e/internal/report"
)

// Surface is one isolated UI session handed to a single scenario.
type Surface struct {
	Backend Backend
	// Screenshot captures the current page; nil disables failure screenshots.
	Screenshot func() ([]byte, error)
	Close      func() error
}

// Surfaces opens a fresh Surface per scenario.
type Surfaces interface {
	Open(ctx context.Context) (*Surface, error)
}

// Runner executes scenarios with bounded parallelism. Scenarios never share
// a Surface; a failing scenario does not stop the others.
type Runner struct {
	Config   *config.Config
	Surfaces Surfaces
	Codes    login.CodeFetcher
	// Store receives failure screenshots; nil keeps them off.
	Store artifacts.Store
	Clock clock.Clock
	RunID string
}

// Run executes list and returns a report with one entry per scenario in
// list order.
func (r *Runner) Run(ctx context.Context, list []Scenario) *report.Run {
	return r.withDefaults().run(ctx, list)
}

// withDefaults returns a copy of r with its clock and run ID resolved, so
// concurrent runs on one Runner never write to it.
func (r *Runner) withDefaults() *Runner {
	rr := *r
	if rr.Clock == nil {
		rr.Clock = clock.Real{}
	}
	if rr.RunID == "" {
		rr.RunID = obs.NewRunID()
	}
	return &rr
}

func (r *Runner) run(ctx context.Context, list []Scenario) *report.Run {
	ctx = obs.WithRunID(ctx, r.RunID)
	log := obs.From(ctx).With("pkg", "scenario")

	run := &report.Run{
		ID:        r.RunID,
		Target:    r.Config.LoginURL(),
		StartedAt: r.Clock.Now(),
		Scenarios: make([]report.Scenario, len(list)),
	}
	parallel := max(r.Config.Run.Parallel, 1)
	log.Info("run_start", "scenarios", len(list), "parallel", parallel)

	var g errgroup.Group
	g.SetLimit(parallel)
	for i, s := range list {
		g.Go(func() error {
			run.Scenarios[i] = r.runOne(ctx, s)
			return nil
		})
	}
	_ = g.Wait()

	run.FinishedAt = r.Clock.Now()
	counts := run.Counts()
	log.Info("run_finished",
		"passed", counts[report.StatusPass],
		"failed", counts[report.StatusFail],
		"skipped", counts[report.StatusSkip],
		"duration", run.FinishedAt.Sub(run.StartedAt),
	)
	return run
}

func (r *Runner) runOne(ctx context.Context, s Scenario) report.Scenario {
	ctx = obs.WithScenario(ctx, s.Name)
	log := obs.From(ctx).With("pkg", "scenario")
	res := report.Scenario{Name: s.Name}

	if ctx.Err() != nil {
		res.Status = report.StatusSkip
		res.Note = "run cancelled before start"
		return res
	}

	start := r.Clock.Now()
	if d := r.Config.Timing.ScenarioTimeout.Duration; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	log.Info("scenario_start")

	surface, err := r.Surfaces.Open(ctx)
	if err != nil {
		res.Status = report.StatusFail
		res.Code = errs.CodeOf(err)
		res.Message = err.Error()
		res.Duration = r.Clock.Now().Sub(start)
		log.Error("surface_open_failed", "error", err)
		return res
	}
	defer func() {
		if surface.Close == nil {
			return
		}
		if err := surface.Close(); err != nil {
			log.Warn("surface_close_failed", "error", err)
		}
	}()

	env := &Env{
		Backend: surface.Backend,
		Config:  r.Config,
		Codes:   r.Codes,
		Clock:   r.Clock,
		Today:   r.Clock.Now(),
	}
	err = protect(ctx, s, env)
	res.Duration = r.Clock.Now().Sub(start)
	res.Note = env.Notes()
	if err == nil {
		res.Status = report.StatusPass
		log.Info("scenario_passed", "duration", res.Duration, "note", res.Note)
		return res
	}

	res.Status = report.StatusFail
	res.Code = errs.CodeOf(err)
	res.Message = err.Error()
	log.Error("scenario_failed", "code", res.Code, "error", err, "duration", res.Duration)
	res.Screenshot = r.screenshot(ctx, s.Name, surface)
	return res
}

// protect turns a panicking scenario into an internal error.
func protect(ctx context.Context, s Scenario, env *Env) (err error) {
	defer func() {
		if p := recover(); p != nil {
			obs.From(ctx).With("pkg", "scenario").Error("scenario_panic", "panic", p, "stack", string(debug.Stack()))
			err = errs.New(errs.Internal, fmt.Sprintf("scenario panicked: %v", p))
		}
	}()
	return s.Run(ctx, env)
}

// screenshot stores a capture of the failing page and returns its location.
// Capture problems are logged and never change the scenario outcome.
func (r *Runner) screenshot(ctx context.Context, name string, surface *Surface) string {
	if r.Store == nil || surface.Screenshot == nil || !r.Config.Run.Screenshots {
		return ""
	}
	log := obs.From(ctx).With("pkg", "scenario")
	png, err := surface.Screenshot()
	if err != nil {
		log.Warn("screenshot_failed", "error", err)
		return ""
	}
	// The scenario context may already be past its deadline.
	location, err := r.Store.Put(context.WithoutCancel(ctx), artifacts.Key(r.RunID, name, "failure.png"), png, "image/png")
	if err != nil {
		log.Warn("screenshot_store_failed", "error", err)
		return ""
	}
	log.Info("screenshot_saved", "location", location)
	return location
}
