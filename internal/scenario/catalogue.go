package scenario

import (
	"context"
	"fmt"

	"github.com/kuitang/admin-e2e/internal/errs"
	"github.com/kuitang/admin-e2e/internal/login"
	"github.com/kuitang/admin-e2e/internal/obs"
	"github.com/kuitang/admin-e2e/internal/otp"
	"github.com/kuitang/admin-e2e/internal/reconcile"
	"github.com/kuitang/admin-e2e/internal/users"
)

func (e *Env) machine() *login.Machine {
	return login.New(e.Backend.LoginPage(), e.Codes, e.Clock, login.Config{
		PollTries:    e.Config.Mail.PollTries,
		PollInterval: e.Config.Mail.PollInterval.Duration,
		ResendSettle: e.Config.Timing.ResendSettle.Duration,
	})
}

// expectState fails with a mismatch unless res ended in want with message.
func expectState(res login.Result, want login.State, message string) error {
	if res.State != want {
		return errs.New(errs.Mismatch, fmt.Sprintf("sign-in ended in %s, want %s (page said %q)", res.State, want, res.Message))
	}
	if message != "" && res.Message != message {
		return errs.New(errs.Mismatch, fmt.Sprintf("page said %q, want %q", res.Message, message))
	}
	return nil
}

// SignIn runs the full sign-in for the admin account and requires success.
func SignIn(ctx context.Context, env *Env) error {
	res, err := env.machine().Login(ctx, login.Credential{Identity: env.Config.Accounts.Admin})
	if err != nil {
		return err
	}
	return expectState(res, login.CodeVerified, "")
}

func LoginInvalidEmail(ctx context.Context, env *Env) error {
	m := env.machine()
	if _, err := m.SubmitIdentity(ctx, login.Credential{Identity: env.Config.Accounts.Unknown}); err != nil {
		return err
	}
	return expectState(m.Result(), login.RejectedIdentity, login.MessageUnknownIdentity)
}

func LoginWrongCode(ctx context.Context, env *Env) error {
	code, err := otp.Parse(env.Config.Accounts.WrongCode)
	if err != nil {
		return err
	}
	res, err := env.machine().LoginWithCode(ctx, login.Credential{Identity: env.Config.Accounts.Admin}, code)
	if err != nil {
		return err
	}
	return expectState(res, login.RejectedCode, login.MessageWrongCode)
}

func LoginSuccess(ctx context.Context, env *Env) error {
	return SignIn(ctx, env)
}

func Logout(ctx context.Context, env *Env) error {
	if err := SignIn(ctx, env); err != nil {
		return err
	}
	return env.Backend.SignOut(ctx)
}

// openUsers signs in and opens the App Users view.
func openUsers(ctx context.Context, env *Env) (UsersView, error) {
	if err := SignIn(ctx, env); err != nil {
		return nil, err
	}
	return env.Backend.OpenUsers(ctx)
}

func (e *Env) collect(ctx context.Context, v UsersView) (int, error) {
	res, err := v.CollectNames(ctx, e.Config.Timing.ScrollSettle.Duration, e.Config.Timing.MaxScrollCycles)
	if err != nil {
		return 0, err
	}
	obs.From(ctx).With("pkg", "scenario").Info("rows_collected", "rows", len(res.Keys), "cycles", res.Cycles)
	return len(res.Keys), nil
}

func UsersSearch(ctx context.Context, env *Env) error {
	v, err := openUsers(ctx, env)
	if err != nil {
		return err
	}
	keyword := env.Config.Filters.SearchKeyword
	if err := v.Search(ctx, keyword); err != nil {
		return err
	}
	if err := v.WaitFirstRow(ctx); err != nil {
		return err
	}
	if err := v.Settle(ctx, env.Config.Timing.FilterSettle.Duration); err != nil {
		return err
	}
	names, err := v.RowKeys(ctx)
	if err != nil {
		return err
	}
	env.Note("%d rows for %q", len(names), keyword)
	return nil
}

// StatusFilter selects one status and collects every matching row. An empty
// result after the filter settles is reported as "no users", not a failure.
func StatusFilter(status users.Status) Func {
	return func(ctx context.Context, env *Env) error {
		v, err := openUsers(ctx, env)
		if err != nil {
			return err
		}
		if err := v.SelectStatus(ctx, status); err != nil {
			return err
		}
		if err := v.Settle(ctx, env.Config.Timing.FilterSettle.Duration); err != nil {
			return err
		}
		n, err := v.RowCount(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			env.Note("no users")
			return nil
		}
		total, err := env.collect(ctx, v)
		if err != nil {
			return err
		}
		env.Note("%d %s users", total, status)
		return nil
	}
}

func UsersDateRange(ctx context.Context, env *Env) error {
	from, to, err := env.Config.DateRange()
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, "joined date range", err)
	}
	rng, fallback, err := users.ResolveRange(from, to, env.Today)
	if err != nil {
		return err
	}
	if fallback {
		env.Note("fixed range ends after today, used %s", rng)
	}

	v, err := openUsers(ctx, env)
	if err != nil {
		return err
	}
	if err := v.SetDateRange(ctx, rng); err != nil {
		return err
	}
	if err := v.Settle(ctx, env.Config.Timing.FilterSettle.Duration); err != nil {
		return err
	}
	n, err := v.RowCount(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		env.Note("no users")
		return nil
	}
	env.Note("%d rows joined %s", n, rng)
	return nil
}

func UsersSearchClear(ctx context.Context, env *Env) error {
	v, err := openUsers(ctx, env)
	if err != nil {
		return err
	}
	if err := v.Search(ctx, env.Config.Filters.SearchKeyword); err != nil {
		return err
	}
	if err := v.Settle(ctx, env.Config.Timing.FilterSettle.Duration); err != nil {
		return err
	}
	before, err := v.RowCount(ctx)
	if err != nil {
		return err
	}
	if err := v.ClearFilters(ctx); err != nil {
		return err
	}
	if err := v.Settle(ctx, env.Config.Timing.FilterSettle.Duration); err != nil {
		return err
	}
	after, err := v.RowCount(ctx)
	if err != nil {
		return err
	}
	if after == 0 {
		env.Note("no users")
		return nil
	}
	env.Note("%d rows searched, %d after clearing", before, after)
	return nil
}

// reconcileView collects every row and checks the total label against the tally.
func reconcileView(ctx context.Context, env *Env, v UsersView) error {
	observed, err := env.collect(ctx, v)
	if err != nil {
		return err
	}
	text, err := v.TotalText(ctx)
	if err != nil {
		return err
	}
	res, err := reconcile.Reconcile(observed, text)
	if err != nil {
		return err
	}
	env.Note("observed %d, reported %d", res.Observed, res.Reported)
	return res.Err()
}

func ReconcileSearch(ctx context.Context, env *Env) error {
	v, err := openUsers(ctx, env)
	if err != nil {
		return err
	}
	if err := v.Search(ctx, env.Config.Filters.SearchKeyword); err != nil {
		return err
	}
	if err := v.Settle(ctx, env.Config.Timing.FilterSettle.Duration); err != nil {
		return err
	}
	return reconcileView(ctx, env, v)
}

func ReconcileStatus(status users.Status) Func {
	return func(ctx context.Context, env *Env) error {
		v, err := openUsers(ctx, env)
		if err != nil {
			return err
		}
		if err := v.SelectStatus(ctx, status); err != nil {
			return err
		}
		if err := v.Settle(ctx, env.Config.Timing.FilterSettle.Duration); err != nil {
			return err
		}
		return reconcileView(ctx, env, v)
	}
}
