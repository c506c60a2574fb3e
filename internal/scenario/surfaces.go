package scenario

import (
	"context"
	"regexp"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/admin-e2e/internal/browser"
	"github.com/kuitang/admin-e2e/internal/clock"
	"github.com/kuitang/admin-e2e/internal/config"
	"github.com/kuitang/admin-e2e/internal/errs"
	"github.com/kuitang/admin-e2e/internal/login"
	"github.com/kuitang/admin-e2e/internal/users"
)

// BrowserSurfaces gives every scenario its own BrowserContext on a shared
// Chromium.
type BrowserSurfaces struct {
	Session *browser.Session
	Config  *config.Config
	Clock   clock.Clock
}

func (b *BrowserSurfaces) Open(ctx context.Context) (*Surface, error) {
	menu, err := regexp.Compile(b.Config.App.ProfileMenu)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "profile menu pattern", err)
	}
	bctx, err := b.Session.NewContext()
	if err != nil {
		return nil, err
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, browser.Classify(err, "open page")
	}
	backend := &BrowserBackend{
		Page:        page,
		LoginURL:    b.Config.LoginURL(),
		ProfileMenu: menu,
		Clock:       b.Clock,
	}
	return &Surface{
		Backend: backend,
		Screenshot: func() ([]byte, error) {
			return page.Screenshot(playwright.PageScreenshotOptions{FullPage: playwright.Bool(true)})
		},
		Close: func() error { return bctx.Close() },
	}, nil
}

// BrowserBackend drives the real sign-in page and App Users view on one page.
type BrowserBackend struct {
	Page        playwright.Page
	LoginURL    string
	ProfileMenu *regexp.Regexp
	Clock       clock.Clock

	signIn *login.BrowserPage
}

func (b *BrowserBackend) loginPage() *login.BrowserPage {
	if b.signIn == nil {
		b.signIn = login.NewBrowserPage(b.Page, b.LoginURL, login.DefaultTimeouts())
	}
	return b.signIn
}

func (b *BrowserBackend) LoginPage() login.Page {
	return b.loginPage()
}

func (b *BrowserBackend) OpenUsers(ctx context.Context) (UsersView, error) {
	v, err := users.Open(ctx, b.Page, users.DefaultTimeouts(), b.Clock)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (b *BrowserBackend) SignOut(ctx context.Context) error {
	return b.loginPage().SignOut(ctx, b.ProfileMenu)
}
