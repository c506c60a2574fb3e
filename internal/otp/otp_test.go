package otp

import (
	"fmt"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/kuitang/admin-e2e/internal/errs"
)

func TestExtract_FirstMatchWins(t *testing.T) {
	t.Parallel()

	body := "Your code is 482913. Previous code 111111 has expired."
	code, ok := Extract(body)
	if !ok || code != "482913" {
		t.Fatalf("Extract = %q, %v; want 482913", code, ok)
	}
}

func TestExtract_IgnoresLongerDigitRuns(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"order 1234567 shipped":             "",
		"ref 12345 and code 654321":         "654321",
		"Verification code:\n\n  009871\n":  "009871",
		"phone 555-123456 call us":          "123456",
		"no digits here":                    "",
		"2025-08-28 login code 770011 sent": "770011",
	}
	for body, want := range cases {
		got, ok := Extract(body)
		if want == "" {
			if ok {
				t.Errorf("Extract(%q) = %q, want no match", body, got)
			}
			continue
		}
		if !ok || string(got) != want {
			t.Errorf("Extract(%q) = %q, %v; want %q", body, got, ok, want)
		}
	}
}

func TestExtract_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		code := rapid.StringMatching(`[0-9]{6}`).Draw(t, "code")
		prefix := rapid.StringMatching(`[A-Za-z ,.:]{0,40}`).Draw(t, "prefix")
		suffix := rapid.StringMatching(`[A-Za-z ,.:]{0,40}`).Draw(t, "suffix")
		other := rapid.StringMatching(`[0-9]{6}`).Draw(t, "other")

		body := fmt.Sprintf("%s %s %s %s", prefix, code, suffix, other)
		got, ok := Extract(body)
		if !ok {
			t.Fatalf("no code found in %q", body)
		}
		if string(got) != code {
			t.Fatalf("Extract = %q, want first code %q", got, code)
		}
		if !got.Valid() {
			t.Fatalf("extracted code %q is not valid", got)
		}
	})
}

func TestParse(t *testing.T) {
	t.Parallel()

	if c, err := Parse(" 609271 "); err != nil || c != "609271" {
		t.Fatalf("Parse = %q, %v", c, err)
	}
	for _, bad := range []string{"", "12345", "1234567", "12a456", "１２３４５６"} {
		if _, err := Parse(bad); !errs.Is(err, errs.InvalidArgument) {
			t.Errorf("Parse(%q) err = %v, want invalid_argument", bad, err)
		}
	}
}

func TestFromDigitsAndDigits_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.StringMatching(`[0-9]{6}`).Draw(t, "raw")
		digits := strings.Split(raw, "")

		code, err := FromDigits(digits)
		if err != nil {
			t.Fatalf("FromDigits(%v): %v", digits, err)
		}
		back := code.Digits()
		if len(back) != Length {
			t.Fatalf("Digits() length = %d", len(back))
		}
		for i := range digits {
			if back[i] != digits[i] {
				t.Fatalf("digit %d = %q, want %q", i, back[i], digits[i])
			}
		}
	})
}

func TestZeroCodeIsAbsent(t *testing.T) {
	t.Parallel()

	var c Code
	if c.Valid() {
		t.Fatal("zero Code must not be valid")
	}
	if len(c.Digits()) != 0 {
		t.Fatal("zero Code has digits")
	}
}
