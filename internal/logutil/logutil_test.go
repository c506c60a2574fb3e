package logutil

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestIsSensitiveLogField(t *testing.T) {
	t.Parallel()

	sensitive := []string{"code", "otp_code", "verificationCode", "Authorization", "session_id", "X-Api-Key", "password", "set-cookie"}
	for _, key := range sensitive {
		if !IsSensitiveLogField(key) {
			t.Errorf("IsSensitiveLogField(%q) = false, want true", key)
		}
	}
	plain := []string{"email", "mailbox", "scenario", "attempt", "status"}
	for _, key := range plain {
		if IsSensitiveLogField(key) {
			t.Errorf("IsSensitiveLogField(%q) = true, want false", key)
		}
	}
}

func TestMaskCode_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		code := rapid.StringMatching(`[0-9]{6}`).Draw(t, "code")
		masked := MaskCode(code)
		if len(masked) != len(code) {
			t.Fatalf("masked length %d != %d", len(masked), len(code))
		}
		if masked[:2] != code[:2] {
			t.Fatalf("prefix not kept: %q -> %q", code, masked)
		}
		if strings.ContainsAny(masked[2:], "0123456789") {
			t.Fatalf("digits leaked: %q", masked)
		}
	})
}

func TestMaskCode_Short(t *testing.T) {
	t.Parallel()
	if got := MaskCode(""); got != "" {
		t.Fatalf("MaskCode(\"\") = %q", got)
	}
	if got := MaskCode("12"); got != "**" {
		t.Fatalf("MaskCode(\"12\") = %q", got)
	}
}

func TestTruncateForLog(t *testing.T) {
	t.Parallel()

	if got := TruncateForLog("  line1\nline2  ", 0); got != `line1\nline2` {
		t.Fatalf("got %q", got)
	}
	if got := TruncateForLog("abcdefgh", 3); got != "abc... [truncated]" {
		t.Fatalf("got %q", got)
	}
	if got := TruncateForLog("   ", 3); got != "" {
		t.Fatalf("got %q", got)
	}
}
