package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/kuitang/admin-e2e/internal/clock"
	"github.com/kuitang/admin-e2e/internal/config"
	"github.com/kuitang/admin-e2e/internal/mailbox"
	"github.com/kuitang/admin-e2e/internal/obs"
	"github.com/kuitang/admin-e2e/internal/report"
	"github.com/kuitang/admin-e2e/internal/scenario"
)

type runFlags struct {
	scenarios    []string
	parallel     int
	artifactsDir string
	screenshots  bool
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run scenarios and publish the report",
		Long: `Runs the selected scenarios (all by default) against the configured
application, stores failure screenshots and writes report.json, report.md
and report.html to the artifact store. Exits 1 when any scenario fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScenarios(cmd, g, f)
		},
	}
	fl := cmd.Flags()
	fl.StringSliceVarP(&f.scenarios, "scenario", "s", nil, "scenario name or glob, repeatable (e.g. users-*)")
	fl.IntVarP(&f.parallel, "parallel", "p", 0, "scenarios to run at once")
	fl.StringVar(&f.artifactsDir, "artifacts-dir", "", "local directory for screenshots and reports")
	fl.BoolVar(&f.screenshots, "screenshots", true, "capture a screenshot when a scenario fails")
	return cmd
}

func runScenarios(cmd *cobra.Command, g *globalFlags, f *runFlags) error {
	flags := cmd.Flags()
	cfg, err := g.load(cmd, func(c *config.Config) {
		if flags.Changed("scenario") {
			c.Run.Scenarios = f.scenarios
		}
		if flags.Changed("parallel") {
			c.Run.Parallel = f.parallel
		}
		if flags.Changed("artifacts-dir") {
			c.Run.ArtifactsDir = f.artifactsDir
		}
		if flags.Changed("screenshots") {
			c.Run.Screenshots = f.screenshots
		}
	})
	if err != nil {
		return err
	}
	list, err := scenario.Select(scenario.Catalogue(), cfg.Run.Scenarios)
	if err != nil {
		return err
	}
	cfg.PrintSummary()

	ctx := cmd.Context()
	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	session, err := launch(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			obs.Pkg("harness").Warn("browser_close_failed", "error", err)
		}
	}()

	clk := clock.Real{}
	runner := &scenario.Runner{
		Config:   cfg,
		Surfaces: &scenario.BrowserSurfaces{Session: session, Config: cfg, Clock: clk},
		Codes:    mailbox.NewPoller(newOpener(cfg, session), clk),
		Store:    store,
		Clock:    clk,
		RunID:    obs.NewRunID(),
	}
	run := runner.Run(ctx, list)

	out := cmd.OutOrStdout()
	fmt.Fprint(out, report.Markdown(run))
	locations, err := report.Publish(ctx, store, run)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(locations))
	for name := range locations {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(out)
	for _, name := range names {
		fmt.Fprintf(out, "%s: %s\n", name, locations[name])
	}

	if run.Failed() {
		return &exitError{code: 1, msg: fmt.Sprintf("%d of %d scenarios failed", run.Counts()[report.StatusFail], len(run.Scenarios))}
	}
	return nil
}
