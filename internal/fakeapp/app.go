// Package fakeapp is an in-process stand-in for the admin application and its
// disposable-mail inbox. It renders the same observable interface the page
// drivers target, so the whole harness can run without staging.
package fakeapp

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kuitang/admin-e2e/internal/clock"
	"github.com/kuitang/admin-e2e/internal/email"
	"github.com/kuitang/admin-e2e/internal/obs"
	"github.com/kuitang/admin-e2e/internal/ratelimit"
)

// Config describes the fake application's data and delivery behavior.
type Config struct {
	// Identities are the accounts allowed to sign in.
	Identities []string
	// Users is the size of the generated App Users directory.
	Users int
	// MailLatency delays visibility of each sent message in the inbox.
	MailLatency time.Duration
	SendRate    float64
	SendBurst   int
	From        string
	PageSize    int
	// CodeTTL bounds how long an issued code verifies.
	CodeTTL time.Duration
	// RejectCodes are never issued, so they always fail verification.
	RejectCodes []string
}

// DefaultConfig matches the staging accounts and directory size.
func DefaultConfig() Config {
	return Config{
		Identities:  []string{"admin.devrainyday@yopmail.com"},
		Users:       57,
		MailLatency: 2 * time.Second,
		SendRate:    1,
		SendBurst:   3,
		From:        "noreply@example.com",
		PageSize:    20,
		CodeTTL:     10 * time.Minute,
		RejectCodes: []string{"609271"},
	}
}

// Options carries the fake app's collaborators. Zero values get defaults.
type Options struct {
	Clock clock.Clock
	// Relay also receives every message, e.g. a Resend sender.
	Relay email.Sender
	// NewCode overrides random code generation.
	NewCode func() string
}

// maxLiveCodes is how many recent codes per identity stay valid, so
// concurrent sign-ins of one account do not invalidate each other.
const maxLiveCodes = 5

type issuedCode struct {
	code    string
	expires time.Time
}

// App is the fake application.
type App struct {
	cfg      Config
	clock    clock.Clock
	outbox   *email.Outbox
	sender   email.Sender
	limiter  *ratelimit.Limiter
	renderer *Renderer
	newCode  func() string
	users    []User

	mu       sync.Mutex
	known    map[string]bool
	codes    map[string][]issuedCode
	sessions map[string]string
}

// New builds the fake application.
func New(cfg Config, opts Options) (*App, error) {
	def := DefaultConfig()
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = def.CodeTTL
	}
	if cfg.SendRate <= 0 {
		cfg.SendRate = def.SendRate
	}
	if cfg.From == "" {
		cfg.From = def.From
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}

	outbox := email.NewOutbox(clk, cfg.MailLatency)
	var sender email.Sender = outbox
	if opts.Relay != nil {
		sender = email.Fanout{outbox, opts.Relay}
	}

	a := &App{
		cfg:      cfg,
		clock:    clk,
		outbox:   outbox,
		sender:   sender,
		limiter:  ratelimit.New(ratelimit.Config{Rate: cfg.SendRate, Burst: cfg.SendBurst, CleanupInterval: time.Hour}, clk),
		renderer: renderer,
		newCode:  opts.NewCode,
		users:    GenerateUsers(cfg.Users),
		known:    make(map[string]bool),
		codes:    make(map[string][]issuedCode),
		sessions: make(map[string]string),
	}
	if a.newCode == nil {
		a.newCode = randomCode
	}
	for _, id := range cfg.Identities {
		a.known[normalizeEmail(id)] = true
	}
	return a, nil
}

// Outbox exposes captured mail for tests.
func (a *App) Outbox() *email.Outbox {
	return a.outbox
}

// Users returns the generated directory.
func (a *App) Users() []User {
	return a.users
}

// Handler returns the application's routes wrapped in request logging.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /static/", staticHandler())
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	})

	limited := ratelimit.Middleware(a.limiter, func(r *http.Request) string {
		return normalizeEmail(r.FormValue("email"))
	})
	mux.HandleFunc("GET /login", a.HandleLoginPage)
	mux.Handle("POST /api/login/start", limited(http.HandlerFunc(a.HandleStart)))
	mux.Handle("POST /api/login/resend", limited(http.HandlerFunc(a.HandleResend)))
	mux.HandleFunc("POST /api/login/verify", a.HandleVerify)
	mux.HandleFunc("POST /logout", a.HandleLogout)

	mux.Handle("GET /activities", a.requireSession(http.HandlerFunc(a.HandleActivities)))
	mux.Handle("GET /users", a.requireSession(http.HandlerFunc(a.HandleUsersPage)))
	mux.Handle("GET /api/users", a.requireSession(http.HandlerFunc(a.HandleUsersAPI)))

	mux.HandleFunc("GET /mail/{$}", a.HandleMailbox)
	mux.HandleFunc("GET /mail/inbox", a.HandleInbox)
	mux.HandleFunc("GET /mail/message", a.HandleMessage)

	return obs.RequestContextMiddleware(obs.AccessLogMiddleware("fakeapp", mux))
}

// Cleanup drops idle send limiters. Run it periodically when serving long-lived.
func (a *App) Cleanup() {
	a.limiter.Cleanup()
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (a *App) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Cleanup()
		}
	}
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func randomCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return fmt.Sprintf("%06d", n.Int64())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

type messageResponse struct {
	Message  string `json:"message"`
	Redirect string `json:"redirect,omitempty"`
}
