package scenario

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kuitang/admin-e2e/internal/collector"
	"github.com/kuitang/admin-e2e/internal/errs"
	"github.com/kuitang/admin-e2e/internal/login"
	"github.com/kuitang/admin-e2e/internal/otp"
	"github.com/kuitang/admin-e2e/internal/otpentry"
	"github.com/kuitang/admin-e2e/internal/users"
)

const (
	adminEmail = "admin.devrainyday@yopmail.com"
	validCode  = "482913"
)

// fakePage is a sign-in screen that knows one admin and one valid code.
type fakePage struct {
	filled string
	typed  []string
}

func (p *fakePage) Navigate(context.Context) error { return nil }
func (p *fakePage) ProbeDisclosure(context.Context) login.Presence { return login.Present }
func (p *fakePage) ClickDisclosure(context.Context) error { return nil }
func (p *fakePage) Submit(context.Context) error { return nil }
func (p *fakePage) ProbeResend(context.Context) login.Presence { return login.Present }
func (p *fakePage) ClickResend(context.Context) error { return nil }
func (p *fakePage) FillIdentity(_ context.Context, id string) error { p.filled = id; return nil }
func (p *fakePage) AwaitIdentityOutcome(context.Context) (login.Outcome, string, error) {
	if p.filled == adminEmail {
		return login.Accepted, login.MessageCodeSent, nil
	}
	return login.Rejected, login.MessageUnknownIdentity, nil
}
func (p *fakePage) CodeFields(context.Context) ([]otpentry.Field, error) {
	fields := make([]otpentry.Field, otp.Length)
	for i := range fields {
		fields[i] = otpentry.FieldFunc(func(_ context.Context, v string) error {
			p.typed = append(p.typed, v)
			return nil
		})
	}
	return fields, nil
}
func (p *fakePage) AwaitCodeOutcome(context.Context) (login.Outcome, string, error) {
	if code, _ := otp.FromDigits(p.typed); string(code) == validCode {
		return login.Accepted, login.LandmarkLink, nil
	}
	return login.Rejected, login.MessageWrongCode, nil
}

type fixedCodes struct {
	code otp.Code
	err  error
}

func (f fixedCodes) FetchCode(context.Context, string, int, time.Duration) (otp.Code, error) {
	return f.code, f.err
}

// fakeUser is one directory row.
type fakeUser struct {
	name   string
	status users.Status
	joined time.Time
}

// fakeView filters an in-memory directory. Total is what the label claims;
// a negative value means "the filtered row count".
type fakeView struct {
	directory []fakeUser
	total     int

	search string
	status users.Status
	rng    *users.DateRange
}

func (v *fakeView) rows() []string {
	var out []string
	for _, u := range v.directory {
		if v.search != "" && !strings.Contains(strings.ToLower(u.name), strings.ToLower(v.search)) {
			continue
		}
		if v.status != "" && u.status != v.status {
			continue
		}
		if v.rng != nil && !v.rng.Contains(u.joined) {
			continue
		}
		out = append(out, u.name)
	}
	return out
}

func (v *fakeView) Search(_ context.Context, kw string) error { v.search = kw; return nil }
func (v *fakeView) SearchValue(context.Context) (string, error) {
	return v.search, nil
}
func (v *fakeView) SelectStatus(_ context.Context, s users.Status) error { v.status = s; return nil }
func (v *fakeView) SetDateRange(_ context.Context, r users.DateRange) error {
	v.rng = &r
	return nil
}
func (v *fakeView) ClearFilters(context.Context) error {
	v.search, v.status, v.rng = "", "", nil
	return nil
}
func (v *fakeView) Settle(context.Context, time.Duration) error { return nil }
func (v *fakeView) WaitFirstRow(context.Context) error {
	if len(v.rows()) == 0 {
		return errs.New(errs.Timeout, "no first row")
	}
	return nil
}
func (v *fakeView) RowCount(context.Context) (int, error) { return len(v.rows()), nil }
func (v *fakeView) RowKeys(context.Context) ([]string, error) { return v.rows(), nil }
func (v *fakeView) TotalText(context.Context) (string, error) {
	n := v.total
	if n < 0 {
		n = len(v.rows())
	}
	return "Total App Users: " + strconv.Itoa(n), nil
}
func (v *fakeView) CollectNames(context.Context, time.Duration, int) (collector.Result, error) {
	keys := collector.KeySet{}
	for _, name := range v.rows() {
		keys.Add(name)
	}
	return collector.Result{Keys: keys, Cycles: 1, Sizes: []int{len(keys)}}, nil
}

var joinedBase = time.Date(2025, 8, 30, 0, 0, 0, 0, time.UTC)

func sampleDirectory() []fakeUser {
	return []fakeUser{
		{"Finn Walker", users.Active, joinedBase},
		{"Ava Finley", users.Suspended, joinedBase.AddDate(0, 0, -1)},
		{"Noah Reed", users.Active, joinedBase.AddDate(0, 0, -2)},
		{"Mia Griffin", users.Banned, joinedBase.AddDate(0, 0, -20)},
		{"Liam Stone", users.Active, joinedBase.AddDate(0, 0, -40)},
	}
}

// fakeBackend hands out a fresh sign-in page per machine and one shared view.
type fakeBackend struct {
	mu        sync.Mutex
	view      *fakeView
	openErr   error
	signedOut bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{view: &fakeView{directory: sampleDirectory(), total: -1}}
}

func (b *fakeBackend) LoginPage() login.Page { return &fakePage{} }
func (b *fakeBackend) OpenUsers(context.Context) (UsersView, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	return b.view, nil
}
func (b *fakeBackend) SignOut(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signedOut = true
	return nil
}

// fakeSurfaces counts opens and closes.
type fakeSurfaces struct {
	mu      sync.Mutex
	opened  int
	closed  int
	openErr error
}

func (s *fakeSurfaces) Open(context.Context) (*Surface, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.opened++
	return &Surface{
		Backend:    newFakeBackend(),
		Screenshot: func() ([]byte, error) { return []byte("\x89PNG fake"), nil },
		Close: func() error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.closed++
			return nil
		},
	}, nil
}
