package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/kuitang/admin-e2e/internal/clock"
)

var epoch = time.Date(2025, 8, 29, 9, 0, 0, 0, time.UTC)

// =============================================================================
// Property: sends within the burst succeed, the next one is blocked
// =============================================================================

func testLimiter_BurstThenBlocked(t *rapid.T) {
	burst := rapid.IntRange(1, 20).Draw(t, "burst")
	l := New(Config{Rate: 0.5, Burst: burst, CleanupInterval: time.Hour}, clock.NewFake(epoch))
	key := rapid.StringMatching(`[a-z0-9.]{1,16}@yopmail\.com`).Draw(t, "key")

	for i := 0; i < burst; i++ {
		if !l.Allow(key) {
			t.Fatalf("send %d of %d blocked", i+1, burst)
		}
	}
	if l.Allow(key) {
		t.Fatalf("send beyond burst %d allowed", burst)
	}
}

func TestLimiter_BurstThenBlocked(t *testing.T) {
	rapid.Check(t, testLimiter_BurstThenBlocked)
}

func TestLimiter_Refills(t *testing.T) {
	clk := clock.NewFake(epoch)
	l := New(Config{Rate: 1, Burst: 1, CleanupInterval: time.Hour}, clk)

	if !l.Allow("a@x.com") || l.Allow("a@x.com") {
		t.Fatal("burst of one not enforced")
	}
	clk.Advance(time.Second)
	if !l.Allow("a@x.com") {
		t.Fatal("token not refilled after one second")
	}
}

func TestLimiter_KeysIndependentAndCaseInsensitive(t *testing.T) {
	l := New(Config{Rate: 0.1, Burst: 1, CleanupInterval: time.Hour}, clock.NewFake(epoch))
	if !l.Allow("Admin@X.com") {
		t.Fatal("first send blocked")
	}
	if l.Allow(" admin@x.com ") {
		t.Fatal("keys differing only in case must share a bucket")
	}
	if !l.Allow("other@x.com") {
		t.Fatal("other identity blocked")
	}
}

func TestLimiter_Cleanup(t *testing.T) {
	clk := clock.NewFake(epoch)
	l := New(Config{Rate: 1, Burst: 1, CleanupInterval: time.Minute}, clk)
	l.Allow("idle@x.com")
	clk.Advance(30 * time.Second)
	l.Allow("active@x.com")
	clk.Advance(45 * time.Second)

	l.Cleanup()
	if l.Len() != 1 {
		t.Fatalf("Len = %d, want 1", l.Len())
	}
}

func TestLimiter_ConcurrentAccess(t *testing.T) {
	l := New(Config{Rate: 0.001, Burst: 50, CleanupInterval: time.Hour}, clock.NewFake(epoch))
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared@x.com") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 50 {
		t.Fatalf("allowed = %d, want 50", allowed)
	}
}

func TestMiddleware(t *testing.T) {
	l := New(Config{Rate: 0.01, Burst: 2, CleanupInterval: time.Hour}, clock.NewFake(epoch))
	h := Middleware(l, func(r *http.Request) string { return r.FormValue("email") })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

	post := func(email string) *httptest.ResponseRecorder {
		form := url.Values{"email": {email}}
		req := httptest.NewRequest(http.MethodPost, "/api/login/resend", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := post("a@x.com"); rec.Code != http.StatusNoContent || rec.Header().Get("X-RateLimit-Remaining") != "1" {
		t.Fatalf("first: %d remaining=%q", rec.Code, rec.Header().Get("X-RateLimit-Remaining"))
	}
	post("a@x.com")
	rec := post("a@x.com")
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") != "1" {
		t.Fatalf("third: %d", rec.Code)
	}
	if rec := post(""); rec.Code != http.StatusNoContent {
		t.Fatalf("empty key: %d", rec.Code)
	}
}
