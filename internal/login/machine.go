// Package login drives the passwordless email-code sign-in flow.
//
// The Machine owns the sequencing and the transition trace; a Page owns the
// DOM. Splitting them keeps the flow testable without a browser.
package login

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kuitang/admin-e2e/internal/clock"
	"github.com/kuitang/admin-e2e/internal/errs"
	"github.com/kuitang/admin-e2e/internal/logutil"
	"github.com/kuitang/admin-e2e/internal/mailbox"
	"github.com/kuitang/admin-e2e/internal/obs"
	"github.com/kuitang/admin-e2e/internal/otp"
	"github.com/kuitang/admin-e2e/internal/otpentry"
)

// State is a node of the sign-in flow.
type State string

const (
	Start            State = "start"
	EmailEntered     State = "email_entered"
	AwaitingCode     State = "awaiting_code"
	CodeVerified     State = "code_verified"
	RejectedIdentity State = "rejected_identity"
	RejectedCode     State = "rejected_code"
)

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == CodeVerified || s == RejectedIdentity || s == RejectedCode
}

// Presence is the result of probing for an optional control.
type Presence int

const (
	// Unknown means the probe could not decide within its bound.
	Unknown Presence = iota
	Present
	Absent
)

func (p Presence) String() string {
	switch p {
	case Present:
		return "present"
	case Absent:
		return "absent"
	default:
		return "unknown"
	}
}

// Outcome is what the page showed after a submission.
type Outcome int

const (
	Accepted Outcome = iota + 1
	Rejected
)

// Page is the sign-in screen as the Machine sees it. Every wait inside an
// implementation is bounded; a bound that expires returns an errs.Timeout.
type Page interface {
	Navigate(ctx context.Context) error
	// ProbeDisclosure looks for the welcome-screen control that reveals the email field.
	ProbeDisclosure(ctx context.Context) Presence
	ClickDisclosure(ctx context.Context) error
	FillIdentity(ctx context.Context, identity string) error
	Submit(ctx context.Context) error
	// AwaitIdentityOutcome waits for either the code-sent instruction or the
	// unknown-identity rejection and returns the message shown.
	AwaitIdentityOutcome(ctx context.Context) (Outcome, string, error)
	ProbeResend(ctx context.Context) Presence
	ClickResend(ctx context.Context) error
	CodeFields(ctx context.Context) ([]otpentry.Field, error)
	// AwaitCodeOutcome waits for either the post-login landmark or the wrong-code rejection.
	AwaitCodeOutcome(ctx context.Context) (Outcome, string, error)
}

// CodeFetcher retrieves the newest verification code for a mailbox.
type CodeFetcher interface {
	FetchCode(ctx context.Context, mailboxID string, maxTries int, interval time.Duration) (otp.Code, error)
}

// Credential is the identity a sign-in is attempted for.
type Credential struct {
	Identity string
}

// MailboxID is the local part of the identity.
func (c Credential) MailboxID() (string, error) {
	return mailbox.MailboxID(c.Identity)
}

// Config tunes the code-retrieval half of the flow.
type Config struct {
	PollTries    int
	PollInterval time.Duration
	// ResendSettle is waited after clicking resend and before polling.
	ResendSettle time.Duration
}

// DefaultConfig matches the delivery latency of the staging mail provider.
func DefaultConfig() Config {
	return Config{
		PollTries:    12,
		PollInterval: 3 * time.Second,
		ResendSettle: 3 * time.Second,
	}
}

// Transition is one recorded edge of the flow.
type Transition struct {
	From State
	To   State
	At   time.Time
	Note string
}

// Result summarizes a finished (or abandoned) sign-in.
type Result struct {
	State      State
	Trace      []Transition
	Disclosure Presence
	Resend     Presence
	// Message is the rejection or instruction text observed last.
	Message string
}

// Machine sequences one sign-in attempt on one Page. It is not reusable.
type Machine struct {
	page  Page
	codes CodeFetcher
	clock clock.Clock
	cfg   Config

	mu         sync.Mutex
	state      State
	trace      []Transition
	disclosure Presence
	resend     Presence
	message    string
}

// New creates a Machine in the Start state. A nil clock means the wall clock.
func New(page Page, codes CodeFetcher, clk clock.Clock, cfg Config) *Machine {
	if clk == nil {
		clk = clock.Real{}
	}
	def := DefaultConfig()
	if cfg.PollTries <= 0 {
		cfg.PollTries = def.PollTries
	}
	if cfg.PollInterval < 0 {
		cfg.PollInterval = 0
	}
	if cfg.ResendSettle < 0 {
		cfg.ResendSettle = 0
	}
	return &Machine{page: page, codes: codes, clock: clk, cfg: cfg, state: Start}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Result snapshots the current state and trace.
func (m *Machine) Result() Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Result{
		State:      m.state,
		Trace:      append([]Transition(nil), m.trace...),
		Disclosure: m.disclosure,
		Resend:     m.resend,
		Message:    m.message,
	}
}

func (m *Machine) transition(ctx context.Context, to State, note string) {
	m.mu.Lock()
	from := m.state
	m.state = to
	m.trace = append(m.trace, Transition{From: from, To: to, At: m.clock.Now(), Note: note})
	m.mu.Unlock()
	obs.From(ctx).With("pkg", "login").Info("login_transition", "from", from, "to", to, "note", note)
}

func (m *Machine) require(want State) error {
	if got := m.State(); got != want {
		return errs.New(errs.Internal, fmt.Sprintf("login step requires state %s, machine is in %s", want, got))
	}
	return nil
}

// Login runs the whole flow: identity, optional resend, polled code, entry.
// Terminal rejections are reported through Result.State with a nil error.
func (m *Machine) Login(ctx context.Context, cred Credential) (Result, error) {
	state, err := m.SubmitIdentity(ctx, cred)
	if err != nil || state.Terminal() {
		return m.Result(), err
	}
	code, err := m.ObtainCode(ctx, cred)
	if err != nil {
		return m.Result(), err
	}
	_, err = m.EnterCode(ctx, code)
	return m.Result(), err
}

// LoginWithCode submits identity then a caller-supplied code without
// polling the mailbox or pressing resend.
func (m *Machine) LoginWithCode(ctx context.Context, cred Credential, code otp.Code) (Result, error) {
	state, err := m.SubmitIdentity(ctx, cred)
	if err != nil || state.Terminal() {
		return m.Result(), err
	}
	_, err = m.EnterCode(ctx, code)
	return m.Result(), err
}

// SubmitIdentity moves Start to EmailEntered and then to AwaitingCode or RejectedIdentity.
func (m *Machine) SubmitIdentity(ctx context.Context, cred Credential) (State, error) {
	if err := m.require(Start); err != nil {
		return m.State(), err
	}
	if cred.Identity == "" {
		return Start, errs.New(errs.InvalidArgument, "identity is required")
	}
	logger := obs.From(ctx).With("pkg", "login")

	if err := m.page.Navigate(ctx); err != nil {
		return Start, err
	}

	presence := m.page.ProbeDisclosure(ctx)
	m.mu.Lock()
	m.disclosure = presence
	m.mu.Unlock()
	logger.Debug("disclosure_probe", "presence", presence.String())
	if presence == Present {
		if err := m.page.ClickDisclosure(ctx); err != nil {
			return Start, err
		}
	}

	if err := m.page.FillIdentity(ctx, cred.Identity); err != nil {
		return Start, err
	}
	if err := m.page.Submit(ctx); err != nil {
		return Start, err
	}
	m.transition(ctx, EmailEntered, "disclosure "+presence.String())

	outcome, message, err := m.page.AwaitIdentityOutcome(ctx)
	if err != nil {
		return EmailEntered, err
	}
	m.mu.Lock()
	m.message = message
	m.mu.Unlock()

	if outcome == Rejected {
		m.transition(ctx, RejectedIdentity, message)
		return RejectedIdentity, nil
	}
	m.transition(ctx, AwaitingCode, message)
	return AwaitingCode, nil
}

// ObtainCode presses resend when it is offered, settles, then polls the mailbox.
// Any code fetched before a resend is stale, so polling always happens after it.
func (m *Machine) ObtainCode(ctx context.Context, cred Credential) (otp.Code, error) {
	if err := m.require(AwaitingCode); err != nil {
		return "", err
	}
	if m.codes == nil {
		return "", errs.New(errs.InvalidArgument, "no code source configured")
	}
	mailboxID, err := cred.MailboxID()
	if err != nil {
		return "", err
	}

	presence := m.page.ProbeResend(ctx)
	m.mu.Lock()
	m.resend = presence
	m.mu.Unlock()
	if presence == Present {
		if err := m.page.ClickResend(ctx); err != nil {
			return "", err
		}
		m.transition(ctx, AwaitingCode, "resend")
		if err := m.clock.Sleep(ctx, m.cfg.ResendSettle); err != nil {
			return "", errs.Wrap(errs.Timeout, "resend settle interrupted", err)
		}
	} else {
		obs.From(ctx).With("pkg", "login").Debug("resend_skipped", "presence", presence.String())
	}

	return m.codes.FetchCode(ctx, mailboxID, m.cfg.PollTries, m.cfg.PollInterval)
}

// EnterCode types code into the digit inputs and waits for the verdict.
func (m *Machine) EnterCode(ctx context.Context, code otp.Code) (State, error) {
	if err := m.require(AwaitingCode); err != nil {
		return m.State(), err
	}
	fields, err := m.page.CodeFields(ctx)
	if err != nil {
		return AwaitingCode, err
	}
	obs.From(ctx).With("pkg", "login").Debug("entering_code", "code", logutil.MaskCode(code.String()), "inputs", len(fields))
	if err := otpentry.Enter(ctx, code, fields); err != nil {
		return AwaitingCode, err
	}

	outcome, message, err := m.page.AwaitCodeOutcome(ctx)
	if err != nil {
		return AwaitingCode, err
	}
	m.mu.Lock()
	m.message = message
	m.mu.Unlock()

	if outcome == Rejected {
		m.transition(ctx, RejectedCode, message)
		return RejectedCode, nil
	}
	m.transition(ctx, CodeVerified, message)
	return CodeVerified, nil
}
