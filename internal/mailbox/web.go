package mailbox

import (
	"context"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/admin-e2e/internal/browser"
	"github.com/kuitang/admin-e2e/internal/urlutil"
)

// Frame and row selectors of the disposable-inbox web UI.
const (
	InboxFrame   = "#ifinbox"
	MessageFrame = "#ifmail"
	MessageRow   = "div.m"
)

const defaultWebWait = 5 * time.Second

// WebOpener reads mail through a yopmail-style web UI in its own browser context.
type WebOpener struct {
	Browser playwright.Browser
	BaseURL string
	// Wait bounds each locator wait inside one attempt.
	Wait time.Duration
}

// InboxURL returns the inbox page for mailboxID under base.
func InboxURL(base, mailboxID string) string {
	return urlutil.WithQuery(base, mailboxID)
}

func (o *WebOpener) Open(ctx context.Context, mailboxID string) (Inbox, error) {
	wait := o.Wait
	if wait <= 0 {
		wait = defaultWebWait
	}
	bctx, err := browser.NewContext(o.Browser, wait, nil)
	if err != nil {
		return nil, err
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, browser.Classify(err, "open inbox page")
	}
	return &webInbox{
		bctx: bctx,
		page: page,
		url:  InboxURL(o.BaseURL, mailboxID),
		wait: wait,
	}, nil
}

type webInbox struct {
	bctx   playwright.BrowserContext
	page   playwright.Page
	url    string
	wait   time.Duration
	loaded bool
}

func (w *webInbox) Reload(ctx context.Context) error {
	if !w.loaded {
		if err := browser.Goto(ctx, w.page, w.url, w.wait); err != nil {
			return err
		}
		w.loaded = true
		return nil
	}
	_, err := w.page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   browser.TimeoutMS(ctx, w.wait),
	})
	return browser.Classify(err, "reload inbox")
}

func (w *webInbox) LatestMessageText(ctx context.Context) (string, error) {
	newest := w.page.FrameLocator(InboxFrame).Locator(MessageRow).First()
	if err := browser.Click(ctx, newest, w.wait, "newest message"); err != nil {
		return "", err
	}
	body := w.page.FrameLocator(MessageFrame).Locator("body")
	if err := browser.WaitVisible(ctx, body, w.wait, "message body"); err != nil {
		return "", err
	}
	text, err := body.InnerText(playwright.LocatorInnerTextOptions{Timeout: browser.TimeoutMS(ctx, w.wait)})
	if err != nil {
		return "", browser.Classify(err, "read message body")
	}
	return text, nil
}

func (w *webInbox) Close() error {
	return w.bctx.Close()
}
