package login

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/admin-e2e/internal/browser"
	"github.com/kuitang/admin-e2e/internal/errs"
	"github.com/kuitang/admin-e2e/internal/obs"
	"github.com/kuitang/admin-e2e/internal/otpentry"
)

// Texts the application renders during sign-in.
const (
	MessageUnknownIdentity = "User not found with the provided email"
	MessageCodeSent        = "Please check your email for the verification code."
	MessageWrongCode       = "Wrong email or verification code."
	LandmarkLink           = "Activities"

	continueButton   = "Continue"
	resendButton     = "Resend Code"
	emailFieldName   = "Enter your email"
	codeInputsSelect = `input[type="text"]`
)

// Timeouts bounds each wait on the sign-in page.
type Timeouts struct {
	Navigation time.Duration
	Disclosure time.Duration
	Identity   time.Duration
	Submit     time.Duration
	Outcome    time.Duration
	CodeInputs time.Duration
	Landmark   time.Duration
}

// DefaultTimeouts are the per-step bounds used against staging.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Navigation: 60 * time.Second,
		Disclosure: 20 * time.Second,
		Identity:   15 * time.Second,
		Submit:     10 * time.Second,
		Outcome:    10 * time.Second,
		CodeInputs: 10 * time.Second,
		Landmark:   30 * time.Second,
	}
}

// BrowserPage is the Page implementation backed by a Playwright page.
type BrowserPage struct {
	page     playwright.Page
	loginURL string
	t        Timeouts
}

// NewBrowserPage binds a Playwright page to the sign-in URL.
func NewBrowserPage(page playwright.Page, loginURL string, t Timeouts) *BrowserPage {
	def := DefaultTimeouts()
	fill := func(d *time.Duration, v time.Duration) {
		if *d <= 0 {
			*d = v
		}
	}
	fill(&t.Navigation, def.Navigation)
	fill(&t.Disclosure, def.Disclosure)
	fill(&t.Identity, def.Identity)
	fill(&t.Submit, def.Submit)
	fill(&t.Outcome, def.Outcome)
	fill(&t.CodeInputs, def.CodeInputs)
	fill(&t.Landmark, def.Landmark)
	return &BrowserPage{page: page, loginURL: loginURL, t: t}
}

func (p *BrowserPage) button(name string) playwright.Locator {
	return p.page.GetByRole(*playwright.AriaRoleButton, playwright.PageGetByRoleOptions{Name: name, Exact: playwright.Bool(true)})
}

func (p *BrowserPage) emailField() playwright.Locator {
	return p.page.GetByRole(*playwright.AriaRoleTextbox, playwright.PageGetByRoleOptions{Name: emailFieldName})
}

func (p *BrowserPage) Navigate(ctx context.Context) error {
	return browser.Goto(ctx, p.page, p.loginURL, p.t.Navigation)
}

// ProbeDisclosure reports Absent when the email field is already showing,
// Present when the welcome Continue appears in time, Unknown otherwise.
func (p *BrowserPage) ProbeDisclosure(ctx context.Context) Presence {
	if visible, err := p.emailField().IsVisible(); err == nil && visible {
		return Absent
	}
	err := browser.WaitVisible(ctx, p.button(continueButton), p.t.Disclosure, "welcome continue")
	switch {
	case err == nil:
		return Present
	case errs.Is(err, errs.Timeout):
		return Unknown
	default:
		obs.From(ctx).With("pkg", "login").Warn("disclosure_probe_failed", "error", err)
		return Unknown
	}
}

func (p *BrowserPage) ClickDisclosure(ctx context.Context) error {
	return browser.Click(ctx, p.button(continueButton), p.t.Disclosure, "welcome continue")
}

func (p *BrowserPage) FillIdentity(ctx context.Context, identity string) error {
	return browser.Fill(ctx, p.emailField(), identity, p.t.Identity, "email field")
}

func (p *BrowserPage) Submit(ctx context.Context) error {
	return browser.Click(ctx, p.button(continueButton), p.t.Submit, "continue")
}

func (p *BrowserPage) AwaitIdentityOutcome(ctx context.Context) (Outcome, string, error) {
	accepted := p.page.GetByText(MessageCodeSent)
	rejected := p.page.GetByText(MessageUnknownIdentity)
	return p.awaitEither(ctx, accepted, rejected, p.t.Outcome, "sign-in response")
}

// ProbeResend is an instant visibility check; the button is rendered with the code form.
func (p *BrowserPage) ProbeResend(ctx context.Context) Presence {
	visible, err := p.button(resendButton).IsVisible()
	switch {
	case err != nil:
		obs.From(ctx).With("pkg", "login").Debug("resend_probe_failed", "error", err)
		return Unknown
	case visible:
		return Present
	default:
		return Absent
	}
}

func (p *BrowserPage) ClickResend(ctx context.Context) error {
	return browser.Click(ctx, p.button(resendButton), p.t.Submit, "resend code")
}

func (p *BrowserPage) CodeFields(ctx context.Context) ([]otpentry.Field, error) {
	inputs := p.page.Locator(codeInputsSelect)
	if err := browser.WaitVisible(ctx, inputs, p.t.CodeInputs, "code inputs"); err != nil {
		return nil, err
	}
	n, err := inputs.Count()
	if err != nil {
		return nil, browser.Classify(err, "count code inputs")
	}
	fields := make([]otpentry.Field, 0, n)
	for i := 0; i < n; i++ {
		loc := inputs.Nth(i)
		fields = append(fields, otpentry.FieldFunc(func(ctx context.Context, digit string) error {
			return browser.Fill(ctx, loc, digit, p.t.CodeInputs, "code input")
		}))
	}
	return fields, nil
}

func (p *BrowserPage) AwaitCodeOutcome(ctx context.Context) (Outcome, string, error) {
	landmark := p.page.GetByRole(*playwright.AriaRoleLink, playwright.PageGetByRoleOptions{Name: LandmarkLink})
	rejected := p.page.GetByText(MessageWrongCode)
	return p.awaitEither(ctx, landmark, rejected, p.t.Landmark, "code verification")
}

// awaitEither waits for whichever of accepted or rejected shows first.
func (p *BrowserPage) awaitEither(ctx context.Context, accepted, rejected playwright.Locator, d time.Duration, what string) (Outcome, string, error) {
	if err := browser.WaitVisible(ctx, accepted.Or(rejected), d, what); err != nil {
		browser.Diagnose(ctx, p.page, what)
		return 0, "", err
	}
	return readOutcome(ctx, accepted.First(), rejected.First(), d, what)
}

// outcomeText is the part of a locator readOutcome reads.
type outcomeText interface {
	IsVisible(options ...playwright.LocatorIsVisibleOptions) (bool, error)
	InnerText(options ...playwright.LocatorInnerTextOptions) (string, error)
}

// readOutcome reports which of accepted or rejected is showing, with its text.
func readOutcome(ctx context.Context, accepted, rejected outcomeText, d time.Duration, what string) (Outcome, string, error) {
	visible, err := rejected.IsVisible()
	if err != nil {
		return 0, "", browser.Classify(err, what+": check rejection")
	}
	outcome, loc := Accepted, accepted
	if visible {
		outcome, loc = Rejected, rejected
	}
	text, err := loc.InnerText(playwright.LocatorInnerTextOptions{Timeout: browser.TimeoutMS(ctx, d)})
	if err != nil {
		return 0, "", browser.Classify(err, what+": read outcome text")
	}
	return outcome, strings.TrimSpace(text), nil
}

// SignOut opens the profile menu named profileMenu, confirms sign-out and
// waits until the browser is back on the sign-in URL.
func (p *BrowserPage) SignOut(ctx context.Context, profileMenu *regexp.Regexp) error {
	menu := p.page.GetByRole(*playwright.AriaRoleButton, playwright.PageGetByRoleOptions{Name: profileMenu})
	if err := browser.Click(ctx, menu, p.t.Submit, "profile menu"); err != nil {
		return err
	}
	if err := browser.Click(ctx, p.button("Sign out"), p.t.Submit, "sign out"); err != nil {
		return err
	}
	if err := browser.Click(ctx, p.button("Sign Out"), p.t.Submit, "confirm sign out"); err != nil {
		return err
	}
	err := p.page.WaitForURL(p.loginURL, playwright.PageWaitForURLOptions{Timeout: browser.TimeoutMS(ctx, p.t.Navigation)})
	return browser.Classify(err, "return to sign-in page")
}
