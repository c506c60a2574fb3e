package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/kuitang/admin-e2e/internal/config"
	"github.com/kuitang/admin-e2e/internal/email"
	"github.com/kuitang/admin-e2e/internal/fakeapp"
	"github.com/kuitang/admin-e2e/internal/obs"
)

const cleanupInterval = time.Minute

type serveFlags struct {
	addr    string
	latency time.Duration
	users   int
}

func newServeFakeCmd(g *globalFlags) *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve-fake",
		Short: "Serve the in-process stand-in application and inbox",
		Long: `Serves the stand-in admin application at / and its disposable inbox at /mail/.
Point --base-url and HARNESS_MAILBOX_BASE_URL at it to run every scenario
without staging. With RESEND_API_KEY set, codes are also mailed for real.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			cfg, err := g.load(cmd, func(c *config.Config) {
				if flags.Changed("addr") {
					c.FakeApp.ListenAddr = f.addr
				}
				if flags.Changed("latency") {
					c.FakeApp.MailLatency = config.Duration{Duration: f.latency}
				}
				if flags.Changed("users") {
					c.FakeApp.Users = f.users
				}
			})
			if err != nil {
				return err
			}
			return serveFake(cmd, cfg)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.addr, "addr", "", "listen address")
	fl.DurationVar(&f.latency, "latency", 0, "delay before a sent code shows in the inbox")
	fl.IntVar(&f.users, "users", 0, "size of the generated App Users directory")
	return cmd
}

// fakeAppConfig maps harness configuration onto the stand-in application.
func fakeAppConfig(cfg *config.Config) fakeapp.Config {
	fc := fakeapp.DefaultConfig()
	fc.Identities = []string{cfg.Accounts.Admin}
	fc.RejectCodes = []string{cfg.Accounts.WrongCode}
	fc.MailLatency = cfg.FakeApp.MailLatency.Duration
	if cfg.FakeApp.Users > 0 {
		fc.Users = cfg.FakeApp.Users
	}
	if cfg.FakeApp.SendRate > 0 {
		fc.SendRate = cfg.FakeApp.SendRate
	}
	if cfg.FakeApp.SendBurst > 0 {
		fc.SendBurst = cfg.FakeApp.SendBurst
	}
	if cfg.FakeApp.ResendFrom != "" {
		fc.From = cfg.FakeApp.ResendFrom
	}
	return fc
}

func relay(cfg *config.Config) email.Sender {
	if cfg.FakeApp.ResendAPIKey == "" {
		return email.LogSender{}
	}
	return email.Fanout{email.LogSender{}, email.NewResendSender(cfg.FakeApp.ResendAPIKey, cfg.FakeApp.ResendFrom)}
}

func serveFake(cmd *cobra.Command, cfg *config.Config) error {
	ctx := cmd.Context()
	logger := obs.Pkg("harness")

	app, err := fakeapp.New(fakeAppConfig(cfg), fakeapp.Options{Relay: relay(cfg)})
	if err != nil {
		return err
	}
	go app.RunCleanup(ctx, cleanupInterval)

	ln, err := net.Listen("tcp", cfg.FakeApp.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.FakeApp.ListenAddr, err)
	}
	server := &http.Server{
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	base := "http://" + ln.Addr().String()
	fmt.Fprintf(cmd.OutOrStdout(), "app:   %s/login\ninbox: %s/mail/\n", base, base)
	logger.Info("fakeapp_listening", "addr", ln.Addr().String(), "users", len(app.Users()))

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	logger.Info("fakeapp_stopping")
	return server.Shutdown(shutdownCtx)
}
