// Package scenario defines the harness's scenario catalogue and runs it.
package scenario

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/kuitang/admin-e2e/internal/clock"
	"github.com/kuitang/admin-e2e/internal/collector"
	"github.com/kuitang/admin-e2e/internal/config"
	"github.com/kuitang/admin-e2e/internal/errs"
	"github.com/kuitang/admin-e2e/internal/login"
	"github.com/kuitang/admin-e2e/internal/users"
)

// UsersView is the App Users screen as scenarios drive it.
type UsersView interface {
	Search(ctx context.Context, keyword string) error
	SearchValue(ctx context.Context) (string, error)
	SelectStatus(ctx context.Context, s users.Status) error
	SetDateRange(ctx context.Context, r users.DateRange) error
	ClearFilters(ctx context.Context) error
	Settle(ctx context.Context, d time.Duration) error
	WaitFirstRow(ctx context.Context) error
	RowCount(ctx context.Context) (int, error)
	RowKeys(ctx context.Context) ([]string, error)
	TotalText(ctx context.Context) (string, error)
	CollectNames(ctx context.Context, settle time.Duration, maxCycles int) (collector.Result, error)
}

// Backend binds scenarios to one isolated UI session.
type Backend interface {
	LoginPage() login.Page
	OpenUsers(ctx context.Context) (UsersView, error)
	SignOut(ctx context.Context) error
}

// Env is everything one scenario run may use.
type Env struct {
	Backend Backend
	Config  *config.Config
	Codes   login.CodeFetcher
	Clock   clock.Clock
	// Today anchors the joined-date fallback.
	Today time.Time

	mu    sync.Mutex
	notes []string
}

// Note records an informational outcome for the report.
func (e *Env) Note(format string, args ...any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notes = append(e.notes, fmt.Sprintf(format, args...))
}

// Notes returns the recorded notes joined with "; ".
func (e *Env) Notes() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return strings.Join(e.notes, "; ")
}

// Func is a scenario body. A nil return is a pass.
type Func func(ctx context.Context, env *Env) error

// Scenario is one named check.
type Scenario struct {
	Name        string
	Description string
	Run         Func
}

// Catalogue returns every scenario in run order.
func Catalogue() []Scenario {
	return []Scenario{
		{"login-invalid-email", "Unknown identity is rejected before the code step", LoginInvalidEmail},
		{"login-wrong-otp", "Known-wrong code is rejected", LoginWrongCode},
		{"login-success", "Freshly polled code reaches the post-login landmark", LoginSuccess},
		{"users-search", "Search by keyword returns rows", UsersSearch},
		{"users-status-active", "Status filter Active, all rows collected", StatusFilter(users.Active)},
		{"users-status-suspended", "Status filter Suspended, all rows collected", StatusFilter(users.Suspended)},
		{"users-status-banned", "Status filter Banned, all rows collected", StatusFilter(users.Banned)},
		{"users-date-range", "Joined date range filter", UsersDateRange},
		{"users-search-clear-filters", "Search then Clear Filters empties the search box", UsersSearchClear},
		{"users-reconcile-search", "Total label matches collected rows after search", ReconcileSearch},
		{"users-reconcile-suspended", "Total label matches collected rows for Suspended", ReconcileStatus(users.Suspended)},
		{"users-reconcile-banned", "Total label matches collected rows for Banned", ReconcileStatus(users.Banned)},
		{"logout", "Signed-in admin can sign out", Logout},
	}
}

// Select picks scenarios by exact name or glob (e.g. "users-*"), keeping
// catalogue order. No names selects everything.
func Select(all []Scenario, names []string) ([]Scenario, error) {
	if len(names) == 0 {
		return all, nil
	}
	picked := make(map[string]bool)
	for _, pattern := range names {
		pattern = strings.TrimSpace(pattern)
		matched := false
		for _, s := range all {
			ok, err := path.Match(pattern, s.Name)
			if err != nil {
				return nil, errs.Wrap(errs.InvalidArgument, fmt.Sprintf("bad scenario pattern %q", pattern), err)
			}
			if ok {
				picked[s.Name] = true
				matched = true
			}
		}
		if !matched {
			return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("no scenario matches %q", pattern))
		}
	}
	var out []Scenario
	for _, s := range all {
		if picked[s.Name] {
			out = append(out, s)
		}
	}
	return out, nil
}
