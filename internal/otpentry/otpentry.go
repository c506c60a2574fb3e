// Package otpentry types a verification code into a row of single-digit inputs.
package otpentry

import (
	"context"
	"fmt"

	"github.com/kuitang/admin-e2e/internal/errs"
	"github.com/kuitang/admin-e2e/internal/otp"
)

// Field is one single-character input box.
type Field interface {
	Fill(ctx context.Context, value string) error
}

// FieldFunc adapts a function to Field.
type FieldFunc func(ctx context.Context, value string) error

func (f FieldFunc) Fill(ctx context.Context, value string) error { return f(ctx, value) }

// Enter fills fields[i] with digit i of code. Fields past the sixth are left alone.
// It never submits; the page is expected to verify once the last box is filled.
func Enter(ctx context.Context, code otp.Code, fields []Field) error {
	if !code.Valid() {
		return errs.New(errs.InvalidArgument, "verification code is missing or malformed")
	}
	if len(fields) < otp.Length {
		return errs.New(errs.InvalidArgument, fmt.Sprintf("need %d code inputs, found %d", otp.Length, len(fields)))
	}
	for i, digit := range code.Digits() {
		if err := ctx.Err(); err != nil {
			return errs.Wrap(errs.Timeout, "code entry interrupted", err)
		}
		if err := fields[i].Fill(ctx, digit); err != nil {
			return fmt.Errorf("fill code input %d: %w", i+1, err)
		}
	}
	return nil
}
