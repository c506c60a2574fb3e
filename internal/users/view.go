package users

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/admin-e2e/internal/browser"
	"github.com/kuitang/admin-e2e/internal/clock"
	"github.com/kuitang/admin-e2e/internal/collector"
	"github.com/kuitang/admin-e2e/internal/errs"
	"github.com/kuitang/admin-e2e/internal/obs"
)

// Selectors of the App Users view.
const (
	NavLink       = "App Users"
	TablePrimary  = ".rounded-lg.border .w-full.overflow-auto > table.w-full"
	TableFallback = "table.w-full"
	RowSelector   = "tbody tr"
	NameCells     = "tbody tr td:nth-child(2)"
	DateInput     = `input[placeholder="mm/dd/yyyy"]`
	StatusOption  = "div.cursor-pointer"
	ClearFilters  = "Clear Filters"
	TotalLabel    = "Total App Users:"
)

var (
	searchName   = regexp.MustCompile(`(?i)search`)
	statusButton = regexp.MustCompile(`(?i)select status`)
)

// Timeouts bounds each wait in the view.
type Timeouts struct {
	Table    time.Duration
	Fallback time.Duration
	Control  time.Duration
	Rows     time.Duration
}

// DefaultTimeouts mirror the waits that were stable against staging.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Table:    30 * time.Second,
		Fallback: 10 * time.Second,
		Control:  10 * time.Second,
		Rows:     10 * time.Second,
	}
}

// View is an opened App Users page.
type View struct {
	page  playwright.Page
	table playwright.Locator
	t     Timeouts
	clock clock.Clock
	// UsedFallback is set when only the generic table selector matched.
	UsedFallback bool
}

// Open follows the App Users link from any signed-in page and waits for the table.
func Open(ctx context.Context, page playwright.Page, t Timeouts, clk clock.Clock) (*View, error) {
	if clk == nil {
		clk = clock.Real{}
	}
	v := &View{page: page, t: t, clock: clk}
	link := page.GetByRole(*playwright.AriaRoleLink, playwright.PageGetByRoleOptions{Name: NavLink})
	if err := browser.Click(ctx, link, t.Control, "App Users link"); err != nil {
		return nil, err
	}
	if err := browser.WaitLoad(ctx, page, playwright.LoadStateNetworkidle, t.Table); err != nil {
		obs.From(ctx).With("pkg", "users").Debug("network_not_idle", "error", err)
	}
	if err := v.ensureTable(ctx); err != nil {
		browser.Diagnose(ctx, page, "users table")
		return nil, err
	}
	return v, nil
}

// ensureTable prefers the bordered scroll-container table and falls back to
// any full-width table.
func (v *View) ensureTable(ctx context.Context) error {
	primary := v.page.Locator(TablePrimary)
	if err := browser.WaitVisible(ctx, primary, v.t.Table, "users table"); err == nil {
		v.table = primary.First()
		return nil
	}
	fallback := v.page.Locator(TableFallback)
	if err := browser.WaitVisible(ctx, fallback, v.t.Fallback, "users table (fallback)"); err != nil {
		return err
	}
	v.table = fallback.First()
	v.UsedFallback = true
	obs.From(ctx).With("pkg", "users").Info("users_table_fallback")
	return nil
}

func (v *View) searchBox() playwright.Locator {
	return v.page.GetByRole(*playwright.AriaRoleTextbox, playwright.PageGetByRoleOptions{Name: searchName})
}

// Search types keyword into the search box.
func (v *View) Search(ctx context.Context, keyword string) error {
	return browser.Fill(ctx, v.searchBox(), keyword, v.t.Control, "search box")
}

// SearchValue returns the current search box contents.
func (v *View) SearchValue(ctx context.Context) (string, error) {
	val, err := v.searchBox().First().InputValue(playwright.LocatorInputValueOptions{Timeout: browser.TimeoutMS(ctx, v.t.Control)})
	return val, browser.Classify(err, "read search box")
}

// SelectStatus opens the status menu and picks exactly one option.
func (v *View) SelectStatus(ctx context.Context, s Status) error {
	dropdown := v.page.GetByRole(*playwright.AriaRoleButton, playwright.PageGetByRoleOptions{Name: statusButton})
	if err := browser.Click(ctx, dropdown, v.t.Control, "status dropdown"); err != nil {
		return err
	}
	option := v.page.Locator(StatusOption).Filter(playwright.LocatorFilterOptions{
		HasText: regexp.MustCompile(`^\s*` + regexp.QuoteMeta(string(s)) + `\s*$`),
	})
	return browser.Click(ctx, option, v.t.Control, "status option "+string(s))
}

// SetDateRange fills the two joined-date inputs.
func (v *View) SetDateRange(ctx context.Context, r DateRange) error {
	inputs := v.page.Locator(DateInput)
	if err := browser.Fill(ctx, inputs.Nth(0), FormatDate(r.From), v.t.Control, "start date"); err != nil {
		return err
	}
	return browser.Fill(ctx, inputs.Nth(1), FormatDate(r.To), v.t.Control, "end date")
}

// ClearFilters presses Clear Filters and waits for the search box to empty.
func (v *View) ClearFilters(ctx context.Context) error {
	btn := v.page.GetByText(ClearFilters, playwright.PageGetByTextOptions{Exact: playwright.Bool(true)})
	if err := browser.Click(ctx, btn, v.t.Control, "clear filters"); err != nil {
		return err
	}
	return browser.Until(ctx, v.t.Control, "search box cleared", func() (bool, error) {
		val, err := v.SearchValue(ctx)
		if err != nil {
			return false, err
		}
		return val == "", nil
	})
}

// Settle waits d for the table to refresh after a filter change.
func (v *View) Settle(ctx context.Context, d time.Duration) error {
	if err := v.clock.Sleep(ctx, d); err != nil {
		return errs.Wrap(errs.Timeout, "filter settle interrupted", err)
	}
	return nil
}

// WaitFirstRow waits for at least one data row.
func (v *View) WaitFirstRow(ctx context.Context) error {
	return browser.WaitVisible(ctx, v.table.Locator(RowSelector), v.t.Rows, "first user row")
}

// RowCount counts rendered data rows.
func (v *View) RowCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, browser.Classify(err, "count rows")
	}
	n, err := v.table.Locator(RowSelector).Count()
	return n, browser.Classify(err, "count rows")
}

// RowKeys returns the Name column of every rendered row.
func (v *View) RowKeys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, browser.Classify(err, "read names")
	}
	names, err := v.table.Locator(NameCells).AllTextContents()
	if err != nil {
		return nil, browser.Classify(err, "read names")
	}
	return names, nil
}

// ScrollMore scrolls the window one viewport down to trigger the next page.
func (v *View) ScrollMore(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return browser.Classify(err, "scroll")
	}
	_, err := v.page.Evaluate(`() => window.scrollBy(0, window.innerHeight)`)
	return browser.Classify(err, "scroll")
}

// TotalText returns the "Total App Users: N" label text.
func (v *View) TotalText(ctx context.Context) (string, error) {
	label := v.page.GetByText(TotalLabel)
	if err := browser.WaitVisible(ctx, label, v.t.Control, "total label"); err != nil {
		return "", err
	}
	text, err := label.First().InnerText(playwright.LocatorInnerTextOptions{Timeout: browser.TimeoutMS(ctx, v.t.Control)})
	return strings.TrimSpace(text), browser.Classify(err, "read total label")
}

// CollectNames scrolls until the set of names stops growing.
func (v *View) CollectNames(ctx context.Context, settle time.Duration, maxCycles int) (collector.Result, error) {
	return collector.CollectAll(ctx, v.RowKeys, v.ScrollMore, collector.Options{
		Settle:    settle,
		MaxCycles: maxCycles,
		Clock:     v.clock,
	})
}
