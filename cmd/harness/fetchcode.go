package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kuitang/admin-e2e/internal/browser"
	"github.com/kuitang/admin-e2e/internal/clock"
	"github.com/kuitang/admin-e2e/internal/mailbox"
	"github.com/kuitang/admin-e2e/internal/obs"
)

func newFetchCodeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch-code [identity]",
		Short: "Print the newest verification code in a mailbox",
		Long: `Polls the configured mailbox source for the identity's newest message and
prints the first six-digit code in it. The identity defaults to the admin account.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			identity := cfg.Accounts.Admin
			if len(args) == 1 {
				identity = args[0]
			}
			mailboxID, err := mailbox.MailboxID(identity)
			if err != nil {
				return err
			}

			var session *browser.Session
			if cfg.Mail.Source != "imap" {
				if session, err = launch(cfg); err != nil {
					return err
				}
				defer func() {
					if err := session.Close(); err != nil {
						obs.Pkg("harness").Warn("browser_close_failed", "error", err)
					}
				}()
			}

			poller := mailbox.NewPoller(newOpener(cfg, session), clock.Real{})
			code, err := poller.FetchCode(cmd.Context(), mailboxID, cfg.Mail.PollTries, cfg.Mail.PollInterval.Duration)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
			return nil
		},
	}
}
