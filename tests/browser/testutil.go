// Package browser runs the harness's page drivers against the in-process
// stand-in application with a real Chromium. Tests skip when Playwright is
// not installed.
package browser

import (
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/admin-e2e/internal/artifacts"
	hbrowser "github.com/kuitang/admin-e2e/internal/browser"
	"github.com/kuitang/admin-e2e/internal/clock"
	"github.com/kuitang/admin-e2e/internal/config"
	"github.com/kuitang/admin-e2e/internal/fakeapp"
	"github.com/kuitang/admin-e2e/internal/login"
	"github.com/kuitang/admin-e2e/internal/mailbox"
)

const (
	// Never introduce a larger timeout value for a single wait in tests/browser.
	browserMaxTimeout = 5 * time.Second

	testBucketName = "harness-test-bucket"
	testMailDelay  = 300 * time.Millisecond
)

var (
	fixtureMu     sync.Mutex
	sharedFixture *BrowserTestEnv
)

// BrowserTestEnv is the stand-in application plus a launched browser.
type BrowserTestEnv struct {
	Server  *httptest.Server
	BaseURL string
	App     *fakeapp.App
	Config  *config.Config

	session   *hbrowser.Session
	browserMu sync.Mutex
}

// SetupBrowserTestEnv returns the shared environment.
func SetupBrowserTestEnv(t *testing.T) *BrowserTestEnv {
	t.Helper()

	fixtureMu.Lock()
	defer fixtureMu.Unlock()
	if sharedFixture == nil {
		sharedFixture = createBrowserTestEnv(t)
	}
	return sharedFixture
}

func createBrowserTestEnv(t *testing.T) *BrowserTestEnv {
	t.Helper()

	fc := fakeapp.DefaultConfig()
	fc.MailLatency = testMailDelay
	// Parallel scenarios sign the same admin in many times.
	fc.SendRate = 1000
	fc.SendBurst = 1000
	app, err := fakeapp.New(fc, fakeapp.Options{})
	if err != nil {
		t.Fatalf("create fake app: %v", err)
	}
	server := httptest.NewServer(app.Handler())

	cfg := config.Default()
	cfg.App.BaseURL = server.URL
	cfg.Mail.BaseURL = server.URL + "/mail"
	cfg.Mail.PollTries = 10
	cfg.Mail.PollInterval = config.Duration{Duration: 500 * time.Millisecond}
	cfg.Browser.ActionTimeout = config.Duration{Duration: browserMaxTimeout}
	cfg.Timing.ScenarioTimeout = config.Duration{Duration: 60 * time.Second}
	cfg.Timing.ResendSettle = config.Duration{Duration: testMailDelay}
	cfg.Timing.ScrollSettle = config.Duration{Duration: 400 * time.Millisecond}
	cfg.Timing.FilterSettle = config.Duration{Duration: time.Second}
	cfg.Run.Parallel = 3
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config: %v", err)
	}

	return &BrowserTestEnv{
		Server:  server,
		BaseURL: server.URL,
		App:     app,
		Config:  &cfg,
	}
}

func cleanupSharedBrowserTestEnv() {
	fixtureMu.Lock()
	defer fixtureMu.Unlock()
	if sharedFixture == nil {
		return
	}
	if sharedFixture.session != nil {
		_ = sharedFixture.session.Close()
	}
	sharedFixture.Server.Close()
	sharedFixture = nil
}

func TestMain(m *testing.M) {
	code := m.Run()
	cleanupSharedBrowserTestEnv()
	os.Exit(code)
}

// InitBrowser launches Chromium once. Skips the test if Playwright is not available.
func (env *BrowserTestEnv) InitBrowser(t *testing.T) *hbrowser.Session {
	t.Helper()

	env.browserMu.Lock()
	defer env.browserMu.Unlock()
	if env.session != nil {
		return env.session
	}
	session, err := hbrowser.Launch(hbrowser.Options{
		Headless:      true,
		ActionTimeout: browserMaxTimeout,
	})
	if err != nil {
		t.Skip("Playwright not available:", err)
	}
	env.session = session
	return session
}

// NewPage opens a page in a fresh context that is closed with the test.
func (env *BrowserTestEnv) NewPage(t *testing.T) playwright.Page {
	t.Helper()

	session := env.InitBrowser(t)
	bctx, err := session.NewContext()
	if err != nil {
		t.Fatalf("could not create browser context: %v", err)
	}
	t.Cleanup(func() { _ = bctx.Close() })
	page, err := bctx.NewPage()
	if err != nil {
		t.Fatalf("could not create page: %v", err)
	}
	return page
}

// Poller reads codes from the stand-in inbox through the browser.
func (env *BrowserTestEnv) Poller(t *testing.T) *mailbox.Poller {
	t.Helper()
	session := env.InitBrowser(t)
	return mailbox.NewPoller(&mailbox.WebOpener{
		Browser: session.Browser(),
		BaseURL: env.Config.Mail.BaseURL,
		Wait:    browserMaxTimeout,
	}, clock.Real{})
}

// Machine wires a sign-in machine to page.
func (env *BrowserTestEnv) Machine(t *testing.T, page playwright.Page) *login.Machine {
	t.Helper()
	return login.New(
		login.NewBrowserPage(page, env.Config.LoginURL(), login.Timeouts{}),
		env.Poller(t),
		clock.Real{},
		login.Config{
			PollTries:    env.Config.Mail.PollTries,
			PollInterval: env.Config.Mail.PollInterval.Duration,
			ResendSettle: env.Config.Timing.ResendSettle.Duration,
		},
	)
}

// Store is an in-memory S3 artifact store scoped to the test.
func (env *BrowserTestEnv) Store(t *testing.T) *artifacts.S3 {
	t.Helper()
	return artifacts.TestS3(t, testBucketName, "runs")
}
