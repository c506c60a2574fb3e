// Package browser owns the Playwright driver lifecycle and the small set of
// wait/locate helpers every page driver in the harness shares.
package browser

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/admin-e2e/internal/errs"
	"github.com/kuitang/admin-e2e/internal/obs"
)

// Options configures browser launch and per-context defaults.
type Options struct {
	Headless      bool
	SlowMo        time.Duration
	ActionTimeout time.Duration
	// Install downloads the driver and Chromium before starting.
	Install  bool
	Viewport *playwright.Size
}

// Session is one Playwright driver plus one launched Chromium.
// Scenarios never share a BrowserContext; they share only the Session.
type Session struct {
	opts Options

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

// Launch starts Playwright and Chromium.
func Launch(opts Options) (*Session, error) {
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 60 * time.Second
	}
	if opts.Install {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, errs.Wrap(errs.Unavailable, "install playwright", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "start playwright", err)
	}

	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		SlowMo:   playwright.Float(float64(opts.SlowMo.Milliseconds())),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, errs.Wrap(errs.Unavailable, "launch chromium", err)
	}

	obs.Pkg("browser").Debug("browser_launched", "headless", opts.Headless, "slow_mo_ms", opts.SlowMo.Milliseconds())
	return &Session{opts: opts, pw: pw, browser: b}, nil
}

// Browser returns the launched browser.
func (s *Session) Browser() playwright.Browser {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.browser
}

// NewContext creates an isolated browser context with the session's default timeouts.
func (s *Session) NewContext() (playwright.BrowserContext, error) {
	return NewContext(s.Browser(), s.opts.ActionTimeout, s.opts.Viewport)
}

// NewContext creates an isolated context on b with default action and navigation timeouts.
func NewContext(b playwright.Browser, timeout time.Duration, viewport *playwright.Size) (playwright.BrowserContext, error) {
	if b == nil {
		return nil, errs.New(errs.Unavailable, "browser is not running")
	}
	options := playwright.BrowserNewContextOptions{}
	if viewport != nil {
		options.Viewport = viewport
	}
	bctx, err := b.NewContext(options)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "create browser context", err)
	}
	ms := float64(timeout.Milliseconds())
	bctx.SetDefaultTimeout(ms)
	bctx.SetDefaultNavigationTimeout(ms)
	return bctx, nil
}

// Close stops the browser and the driver.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errList []error
	if s.browser != nil {
		errList = append(errList, s.browser.Close())
		s.browser = nil
	}
	if s.pw != nil {
		errList = append(errList, s.pw.Stop())
		s.pw = nil
	}
	return errors.Join(errList...)
}

// TimeoutMS returns the smaller of d and the time left on ctx, in milliseconds,
// as the pointer Playwright option structs expect. It never returns less than 1ms
// so an expired context still produces a fast Playwright timeout.
func TimeoutMS(ctx context.Context, d time.Duration) *float64 {
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < d {
			d = left
		}
	}
	ms := math.Max(1, float64(d.Milliseconds()))
	return playwright.Float(ms)
}

// Classify maps a Playwright or context failure to a coded error.
func Classify(err error, what string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, playwright.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return errs.Wrap(errs.Timeout, what, err)
	default:
		return errs.Wrap(errs.Unavailable, what, err)
	}
}

// WaitVisible waits for the first element of loc to become visible.
func WaitVisible(ctx context.Context, loc playwright.Locator, d time.Duration, what string) error {
	if err := ctx.Err(); err != nil {
		return Classify(err, what)
	}
	err := loc.First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: TimeoutMS(ctx, d),
	})
	if err != nil {
		return Classify(err, fmt.Sprintf("wait for %s", what))
	}
	return nil
}

// Click clicks the first element of loc after waiting for it.
func Click(ctx context.Context, loc playwright.Locator, d time.Duration, what string) error {
	if err := WaitVisible(ctx, loc, d, what); err != nil {
		return err
	}
	if err := loc.First().Click(playwright.LocatorClickOptions{Timeout: TimeoutMS(ctx, d)}); err != nil {
		return Classify(err, fmt.Sprintf("click %s", what))
	}
	return nil
}

// Fill replaces the value of the first element of loc after waiting for it.
func Fill(ctx context.Context, loc playwright.Locator, value string, d time.Duration, what string) error {
	if err := WaitVisible(ctx, loc, d, what); err != nil {
		return err
	}
	if err := loc.First().Fill(value, playwright.LocatorFillOptions{Timeout: TimeoutMS(ctx, d)}); err != nil {
		return Classify(err, fmt.Sprintf("fill %s", what))
	}
	return nil
}

// Goto navigates page to url and waits for DOMContentLoaded.
func Goto(ctx context.Context, page playwright.Page, url string, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return Classify(err, "navigate")
	}
	_, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   TimeoutMS(ctx, d),
	})
	if err != nil {
		return Classify(err, fmt.Sprintf("navigate to %s", url))
	}
	return nil
}

// Diagnose logs what the page looked like when a wait failed.
func Diagnose(ctx context.Context, page playwright.Page, what string) {
	if page == nil {
		return
	}
	title, _ := page.Title()
	content, _ := page.Content()
	if len(content) > 500 {
		content = content[:500] + "..."
	}
	obs.From(ctx).With("pkg", "browser").Warn("page_diagnostics",
		"what", what,
		"url", page.URL(),
		"title", title,
		"content_preview", content,
	)
}

// WaitLoad waits for the page to reach state, bounded by d.
func WaitLoad(ctx context.Context, page playwright.Page, state *playwright.LoadState, d time.Duration) error {
	err := page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   state,
		Timeout: TimeoutMS(ctx, d),
	})
	return Classify(err, "wait for load state")
}

// PollInterval is how often Until re-evaluates its condition.
const PollInterval = 100 * time.Millisecond

// Until re-evaluates cond until it reports true, returns an error, or d elapses.
func Until(ctx context.Context, d time.Duration, what string, cond func() (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		ok, err := cond()
		if err != nil {
			return Classify(err, what)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return errs.Wrap(errs.Timeout, fmt.Sprintf("%s not reached within %s", what, d), ctx.Err())
		case <-ticker.C:
		}
	}
}
