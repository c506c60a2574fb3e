// Package mailbox polls a disposable inbox for the latest verification code.
package mailbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kuitang/admin-e2e/internal/clock"
	"github.com/kuitang/admin-e2e/internal/errs"
	"github.com/kuitang/admin-e2e/internal/logutil"
	"github.com/kuitang/admin-e2e/internal/obs"
	"github.com/kuitang/admin-e2e/internal/otp"
)

// Inbox is one open view of a mailbox. It is owned by a single FetchCode call.
type Inbox interface {
	// Reload refreshes the message list.
	Reload(ctx context.Context) error
	// LatestMessageText opens the newest message and returns its body as plain text.
	LatestMessageText(ctx context.Context) (string, error)
	Close() error
}

// Opener opens an isolated Inbox for a mailbox identifier.
type Opener interface {
	Open(ctx context.Context, mailboxID string) (Inbox, error)
}

// MailboxID returns the local part of an email-like identity.
func MailboxID(identity string) (string, error) {
	identity = strings.TrimSpace(identity)
	local, _, ok := strings.Cut(identity, "@")
	if !ok || local == "" {
		return "", errs.New(errs.InvalidArgument, fmt.Sprintf("identity %q has no local part", identity))
	}
	return local, nil
}

// Poller retrieves verification codes through an Opener.
type Poller struct {
	opener Opener
	clock  clock.Clock
}

// NewPoller creates a Poller. A nil clock means the wall clock.
func NewPoller(opener Opener, clk clock.Clock) *Poller {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Poller{opener: opener, clock: clk}
}

// FetchCode makes up to maxTries attempts to read a code from the newest message.
// Each attempt reloads the inbox, waits interval, then reads the newest body and
// takes the first standalone six-digit run. Attempt failures are swallowed; when
// the budget is spent the error has code not_found. The inbox is released on
// every exit path.
func (p *Poller) FetchCode(ctx context.Context, mailboxID string, maxTries int, interval time.Duration) (otp.Code, error) {
	if strings.TrimSpace(mailboxID) == "" {
		return "", errs.New(errs.InvalidArgument, "mailbox id is required")
	}
	if maxTries < 1 {
		return "", errs.New(errs.InvalidArgument, "max tries must be at least 1")
	}
	logger := obs.From(ctx).With("pkg", "mailbox", "mailbox", mailboxID)

	inbox, err := p.opener.Open(ctx, mailboxID)
	if err != nil {
		return "", errs.Wrap(errs.Unavailable, "open inbox", err)
	}
	defer func() {
		if cerr := inbox.Close(); cerr != nil {
			logger.Warn("inbox_close_failed", "error", cerr)
		}
	}()

	for attempt := 1; attempt <= maxTries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", errs.Wrap(errs.Timeout, "mailbox poll interrupted", err)
		}

		code, err := p.attempt(ctx, inbox, interval)
		switch {
		case err == nil && code != "":
			logger.Info("code_found", "attempt", attempt, "code", logutil.MaskCode(code.String()))
			return code, nil
		case ctx.Err() != nil:
			return "", errs.Wrap(errs.Timeout, "mailbox poll interrupted", ctx.Err())
		case err != nil:
			logger.Debug("poll_attempt_failed", "attempt", attempt, "error", err)
		default:
			logger.Debug("poll_attempt_no_code", "attempt", attempt)
		}
	}

	return "", errs.New(errs.NotFound, fmt.Sprintf("no verification code for %s after %d attempts", mailboxID, maxTries))
}

func (p *Poller) attempt(ctx context.Context, inbox Inbox, interval time.Duration) (otp.Code, error) {
	if err := inbox.Reload(ctx); err != nil {
		return "", fmt.Errorf("reload: %w", err)
	}
	if err := p.clock.Sleep(ctx, interval); err != nil {
		return "", err
	}
	body, err := inbox.LatestMessageText(ctx)
	if err != nil {
		return "", fmt.Errorf("read newest message: %w", err)
	}
	code, ok := otp.Extract(body)
	if !ok {
		return "", nil
	}
	return code, nil
}
