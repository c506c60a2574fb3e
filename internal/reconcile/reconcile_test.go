package reconcile

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/kuitang/admin-e2e/internal/errs"
)

func TestReconcile_EqualPasses(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 1_000_000).Draw(t, "n")
		res, err := Reconcile(n, fmt.Sprintf("Total App Users: %d", n))
		if err != nil {
			t.Fatalf("Reconcile(%d): %v", n, err)
		}
		if !res.Pass() || res.Err() != nil {
			t.Fatalf("expected pass for %d, got %+v", n, res)
		}
	})
}

func TestReconcile_DifferentIsMismatch(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 100_000).Draw(t, "n")
		m := rapid.IntRange(0, 100_000).Filter(func(m int) bool { return m != n }).Draw(t, "m")

		res, err := Reconcile(n, fmt.Sprintf("Total App Users: %d", m))
		if err != nil {
			t.Fatalf("Reconcile: %v", err)
		}
		mm, ok := AsMismatch(res.Err())
		if !ok {
			t.Fatalf("expected MismatchError, got %v", res.Err())
		}
		if mm.Observed != n || mm.Reported != m {
			t.Fatalf("mismatch carries %d/%d, want %d/%d", mm.Observed, mm.Reported, n, m)
		}
		if errs.CodeOf(res.Err()) != errs.Mismatch {
			t.Fatalf("code = %s", errs.CodeOf(res.Err()))
		}
	})
}

func TestReconcile_MalformedIsParseError(t *testing.T) {
	for _, text := range []string{
		"",
		"Total App Users:",
		"Total App Users: many",
		"total app users: 12",
		"Total Users: 12",
		"Total App Users: 99999999999999999999999",
	} {
		_, err := Reconcile(3, text)
		if errs.CodeOf(err) != errs.Parse {
			t.Errorf("Reconcile(%q) code = %s, want parse", text, errs.CodeOf(err))
		}
	}
}

func TestParseTotal_Surroundings(t *testing.T) {
	cases := map[string]int{
		"Total App Users: 42":                 42,
		"Total App Users:7":                   7,
		"  Showing rows\nTotal App Users:\t0": 0,
		"Total App Users: 15 (filtered)":      15,
	}
	for text, want := range cases {
		got, err := ParseTotal(text)
		if err != nil || got != want {
			t.Errorf("ParseTotal(%q) = %d, %v; want %d", text, got, err, want)
		}
	}
}

func TestReconcile_NegativeObserved(t *testing.T) {
	_, err := Reconcile(-1, "Total App Users: 0")
	if errs.CodeOf(err) != errs.InvalidArgument {
		t.Fatalf("code = %s", errs.CodeOf(err))
	}
}

func TestMismatchError_Message(t *testing.T) {
	err := Result{Observed: 12, Reported: 15}.Err()
	if err.Error() != "row count mismatch: observed 12, reported 15" {
		t.Fatalf("message = %q", err.Error())
	}
	if errs.MessageOf(err) != err.Error() {
		t.Fatalf("MessageOf = %q", errs.MessageOf(err))
	}
}
