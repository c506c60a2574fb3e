package browser

import (
	"context"
	"testing"

	"github.com/kuitang/admin-e2e/internal/clock"
	"github.com/kuitang/admin-e2e/internal/fakeapp"
	"github.com/kuitang/admin-e2e/internal/login"
	"github.com/kuitang/admin-e2e/internal/reconcile"
	"github.com/kuitang/admin-e2e/internal/users"
)

func openUsersView(t *testing.T, env *BrowserTestEnv) *users.View {
	t.Helper()
	page := env.NewPage(t)
	res, err := env.Machine(t, page).Login(context.Background(), login.Credential{Identity: env.Config.Accounts.Admin})
	if err != nil || res.State != login.CodeVerified {
		t.Fatalf("sign in: state=%s err=%v", res.State, err)
	}
	v, err := users.Open(context.Background(), page, users.DefaultTimeouts(), clock.Real{})
	if err != nil {
		t.Fatalf("open users: %v", err)
	}
	return v
}

func expectedRows(env *BrowserTestEnv, f fakeapp.Filter) int {
	return len(f.Apply(env.App.Users()))
}

func TestUsers_CollectorWalksEveryPage(t *testing.T) {
	env := SetupBrowserTestEnv(t)
	v := openUsersView(t, env)
	ctx := context.Background()

	res, err := v.CollectNames(ctx, env.Config.Timing.ScrollSettle.Duration, env.Config.Timing.MaxScrollCycles)
	if err != nil {
		t.Fatalf("CollectNames: %v", err)
	}
	if got, want := len(res.Keys), len(env.App.Users()); got != want {
		t.Fatalf("collected %d names, directory has %d", got, want)
	}
	text, err := v.TotalText(ctx)
	if err != nil {
		t.Fatalf("TotalText: %v", err)
	}
	rec, err := reconcile.Reconcile(len(res.Keys), text)
	if err != nil || !rec.Pass() {
		t.Fatalf("reconcile %+v: %v", rec, err)
	}
}

func TestUsers_StatusFilterMatchesDirectory(t *testing.T) {
	env := SetupBrowserTestEnv(t)
	v := openUsersView(t, env)
	ctx := context.Background()

	if err := v.SelectStatus(ctx, users.Banned); err != nil {
		t.Fatalf("SelectStatus: %v", err)
	}
	if err := v.Settle(ctx, env.Config.Timing.FilterSettle.Duration); err != nil {
		t.Fatal(err)
	}
	res, err := v.CollectNames(ctx, env.Config.Timing.ScrollSettle.Duration, env.Config.Timing.MaxScrollCycles)
	if err != nil {
		t.Fatalf("CollectNames: %v", err)
	}
	if got, want := len(res.Keys), expectedRows(env, fakeapp.Filter{Status: users.Banned}); got != want {
		t.Fatalf("collected %d banned users, want %d", got, want)
	}
}

func TestUsers_SearchThenClearFilters(t *testing.T) {
	env := SetupBrowserTestEnv(t)
	v := openUsersView(t, env)
	ctx := context.Background()
	keyword := env.Config.Filters.SearchKeyword

	if err := v.Search(ctx, keyword); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if err := v.WaitFirstRow(ctx); err != nil {
		t.Fatalf("WaitFirstRow: %v", err)
	}
	if err := v.Settle(ctx, env.Config.Timing.FilterSettle.Duration); err != nil {
		t.Fatal(err)
	}
	n, err := v.RowCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want := expectedRows(env, fakeapp.Filter{Query: keyword}); n == 0 || n > want {
		t.Fatalf("search shows %d rows, directory matches %d", n, want)
	}

	if err := v.ClearFilters(ctx); err != nil {
		t.Fatalf("ClearFilters: %v", err)
	}
	value, err := v.SearchValue(ctx)
	if err != nil || value != "" {
		t.Fatalf("search box after clear = %q, %v", value, err)
	}
}

func TestUsers_DateRangeFilter(t *testing.T) {
	env := SetupBrowserTestEnv(t)
	v := openUsersView(t, env)
	ctx := context.Background()

	from, to, err := env.Config.DateRange()
	if err != nil {
		t.Fatal(err)
	}
	rng := users.DateRange{From: from, To: to}
	if err := v.SetDateRange(ctx, rng); err != nil {
		t.Fatalf("SetDateRange: %v", err)
	}
	if err := v.Settle(ctx, env.Config.Timing.FilterSettle.Duration); err != nil {
		t.Fatal(err)
	}
	n, err := v.RowCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want := expectedRows(env, fakeapp.Filter{Range: &rng}); n != want {
		t.Fatalf("date range shows %d rows, want %d", n, want)
	}
}
