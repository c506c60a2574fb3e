// Package otp models the six-digit verification code delivered by email.
package otp

import (
	"regexp"
	"strings"

	"github.com/kuitang/admin-e2e/internal/errs"
)

// Length is the number of digits in a verification code.
const Length = 6

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

// Code is a six-digit verification code. The zero value means "absent".
type Code string

// Parse validates s as a verification code.
func Parse(s string) (Code, error) {
	s = strings.TrimSpace(s)
	if len(s) != Length {
		return "", errs.New(errs.InvalidArgument, "verification code must have 6 digits")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return "", errs.New(errs.InvalidArgument, "verification code must be numeric")
		}
	}
	return Code(s), nil
}

// MustParse is Parse for constants known to be valid.
func MustParse(s string) Code {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// FromDigits joins single-character digits, e.g. {"6","0","9","2","7","1"}.
func FromDigits(digits []string) (Code, error) {
	return Parse(strings.Join(digits, ""))
}

// Extract returns the first standalone run of exactly six digits in text.
// Only the first match is considered; later codes in the same body are ignored.
func Extract(text string) (Code, bool) {
	m := codePattern.FindString(text)
	if m == "" {
		return "", false
	}
	return Code(m), true
}

// Valid reports whether c holds exactly six ASCII digits.
func (c Code) Valid() bool {
	_, err := Parse(string(c))
	return err == nil && len(c) == Length
}

// Digits splits the code into one-character strings, in order.
func (c Code) Digits() []string {
	out := make([]string, 0, len(c))
	for _, r := range string(c) {
		out = append(out, string(r))
	}
	return out
}

func (c Code) String() string {
	return string(c)
}
