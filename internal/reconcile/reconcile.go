// Package reconcile checks an observed row count against the total the
// application reports in its "Total App Users: N" label.
package reconcile

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/kuitang/admin-e2e/internal/errs"
)

var totalPattern = regexp.MustCompile(`Total App Users:\s*(\d+)`)

// ParseTotal extracts N from text containing "Total App Users: N".
func ParseTotal(text string) (int, error) {
	m := totalPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, errs.New(errs.Parse, fmt.Sprintf("no total in %q", text))
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, errs.Wrap(errs.Parse, fmt.Sprintf("total %q out of range", m[1]), err)
	}
	return n, nil
}

// Result is a comparison between what was counted and what was reported.
type Result struct {
	Observed int
	Reported int
}

// Pass reports strict equality.
func (r Result) Pass() bool {
	return r.Observed == r.Reported
}

// Err returns a *MismatchError when the counts differ.
func (r Result) Err() error {
	if r.Pass() {
		return nil
	}
	return &MismatchError{Observed: r.Observed, Reported: r.Reported}
}

// Reconcile parses reportedText and compares it with observed.
func Reconcile(observed int, reportedText string) (Result, error) {
	if observed < 0 {
		return Result{}, errs.New(errs.InvalidArgument, "observed row count cannot be negative")
	}
	reported, err := ParseTotal(reportedText)
	if err != nil {
		return Result{}, err
	}
	return Result{Observed: observed, Reported: reported}, nil
}

// MismatchError carries both counts of a failed reconciliation.
type MismatchError struct {
	Observed int
	Reported int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("row count mismatch: observed %d, reported %d", e.Observed, e.Reported)
}

// Unwrap exposes a coded error so errs.CodeOf reports mismatch.
func (e *MismatchError) Unwrap() error {
	return errs.New(errs.Mismatch, e.Error())
}

// AsMismatch returns the *MismatchError in err's chain, if any.
func AsMismatch(err error) (*MismatchError, bool) {
	var m *MismatchError
	if errors.As(err, &m) {
		return m, true
	}
	return nil, false
}
