// Package users drives the App Users view: filters, the infinite-scroll
// table and the total label.
package users

import (
	"fmt"
	"strings"
	"time"

	"github.com/kuitang/admin-e2e/internal/errs"
)

// Status is an account status the view can filter on.
type Status string

const (
	Active    Status = "Active"
	Suspended Status = "Suspended"
	Banned    Status = "Banned"
)

// Statuses lists every filterable status in menu order.
var Statuses = []Status{Active, Suspended, Banned}

// ParseStatus matches s case-insensitively against the known statuses.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if strings.EqualFold(strings.TrimSpace(s), string(st)) {
			return st, nil
		}
	}
	return "", errs.New(errs.InvalidArgument, fmt.Sprintf("unknown status %q", s))
}

// DateLayout is the mm/dd/yyyy format of the joined-date inputs.
const DateLayout = "01/02/2006"

// FallbackDays is the width of the range used when the configured one ends in the future.
const FallbackDays = 7

// DateRange is an inclusive joined-date filter.
type DateRange struct {
	From time.Time
	To   time.Time
}

// FormatDate renders t as mm/dd/yyyy.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDay accepts yyyy-mm-dd or mm/dd/yyyy.
func ParseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.DateOnly, DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errs.New(errs.InvalidArgument, fmt.Sprintf("date %q is not yyyy-mm-dd or mm/dd/yyyy", s))
}

// ResolveRange returns [from, to] unless to is after today, in which case it
// falls back to the FallbackDays days ending today. The bool reports the fallback.
func ResolveRange(from, to, today time.Time) (DateRange, bool, error) {
	from, to, today = day(from), day(to), day(today)
	if to.Before(from) {
		return DateRange{}, false, errs.New(errs.InvalidArgument,
			fmt.Sprintf("date range ends (%s) before it starts (%s)", FormatDate(to), FormatDate(from)))
	}
	if to.After(today) {
		return DateRange{From: today.AddDate(0, 0, -FallbackDays), To: today}, true, nil
	}
	return DateRange{From: from, To: to}, false, nil
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Contains reports whether t falls on a day inside the range.
func (r DateRange) Contains(t time.Time) bool {
	d := day(t)
	return !d.Before(day(r.From)) && !d.After(day(r.To))
}

func (r DateRange) String() string {
	return FormatDate(r.From) + " - " + FormatDate(r.To)
}
