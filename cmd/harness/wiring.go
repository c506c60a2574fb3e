package main

import (
	"context"

	"github.com/kuitang/admin-e2e/internal/artifacts"
	"github.com/kuitang/admin-e2e/internal/browser"
	"github.com/kuitang/admin-e2e/internal/config"
	"github.com/kuitang/admin-e2e/internal/mailbox"
)

func launch(cfg *config.Config) (*browser.Session, error) {
	return browser.Launch(browser.Options{
		Headless:      cfg.Browser.Headless,
		SlowMo:        cfg.Browser.SlowMo.Duration,
		ActionTimeout: cfg.Browser.ActionTimeout.Duration,
		Install:       cfg.Browser.Install,
	})
}

// newOpener picks the mailbox source. The web inbox shares the scenario
// browser but always reads from its own context.
func newOpener(cfg *config.Config, session *browser.Session) mailbox.Opener {
	if cfg.Mail.Source == "imap" {
		return mailbox.NewIMAPOpener(mailbox.IMAPConfig{
			Addr:     cfg.Mail.IMAP.Addr,
			Username: cfg.Mail.IMAP.Username,
			Password: cfg.Mail.IMAP.Password,
			TLS:      cfg.Mail.IMAP.TLS,
			Folder:   cfg.Mail.IMAP.Folder,
		})
	}
	return &mailbox.WebOpener{
		Browser: session.Browser(),
		BaseURL: cfg.Mail.BaseURL,
	}
}

func newStore(ctx context.Context, cfg *config.Config) (artifacts.Store, error) {
	if cfg.UseS3() {
		store, err := artifacts.NewS3(ctx, artifacts.S3Config{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			UsePathStyle:    cfg.S3.PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	store, err := artifacts.NewLocal(cfg.Run.ArtifactsDir)
	if err != nil {
		return nil, err
	}
	return store, nil
}
