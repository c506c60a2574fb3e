// Command harness drives end-to-end scenarios against the admin application.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kuitang/admin-e2e/internal/config"
	"github.com/kuitang/admin-e2e/internal/obs"
)

// exitError carries a process exit code without printing usage.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	baseURL    string
	mailSource string
	headless   bool
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "harness",
		Short:         "End-to-end harness for the admin console",
		Long:          `Signs in through the email verification code flow and checks the App Users view.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	g := bindGlobalFlags(root)
	root.AddCommand(
		newRunCmd(g),
		newListCmd(),
		newFetchCodeCmd(g),
		newServeFakeCmd(g),
	)
	return root
}

func bindGlobalFlags(root *cobra.Command) *globalFlags {
	g := &globalFlags{}
	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "TOML config file (default "+config.DefaultFile+" when present)")
	pf.StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&g.baseURL, "base-url", "", "application base URL")
	pf.StringVar(&g.mailSource, "mail-source", "", "web or imap")
	pf.BoolVar(&g.headless, "headless", true, "run Chromium headless")
	return g
}

// load resolves configuration with command line flags applied last.
func (g *globalFlags) load(cmd *cobra.Command, extra ...func(*config.Config)) (*config.Config, error) {
	flags := cmd.Flags()
	overrides := []func(*config.Config){func(c *config.Config) {
		if flags.Changed("log-level") {
			c.LogLevel = g.logLevel
		}
		if flags.Changed("base-url") {
			c.App.BaseURL = g.baseURL
		}
		if flags.Changed("mail-source") {
			c.Mail.Source = g.mailSource
		}
		if flags.Changed("headless") {
			c.Browser.Headless = g.headless
		}
	}}
	cfg, err := config.LoadWith(g.configPath, append(overrides, extra...)...)
	if err != nil {
		return nil, err
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cfg.LogLevel)); err == nil {
		obs.SetLevel(lvl)
	}
	return cfg, nil
}

func main() {
	obs.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err == nil {
		return
	}
	var exit *exitError
	if errors.As(err, &exit) {
		if exit.msg != "" {
			fmt.Fprintln(os.Stderr, exit.msg)
		}
		os.Exit(exit.code)
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(2)
}
