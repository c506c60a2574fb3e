package fakeapp

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/admin-e2e/internal/clock"
	"github.com/kuitang/admin-e2e/internal/login"
	"github.com/kuitang/admin-e2e/internal/otp"
)

const admin = "admin.devrainyday@yopmail.com"

type testEnv struct {
	app    *App
	clock  *clock.Fake
	server *httptest.Server
	client *http.Client
	codes  []string
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	env := &testEnv{clock: clock.NewFake(time.Date(2025, 8, 29, 9, 0, 0, 0, time.UTC))}
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	seq := []string{"604182", "739105", "118822", "455210", "902713"}
	app, err := New(cfg, Options{
		Clock: env.clock,
		NewCode: func() string {
			code := seq[len(env.codes)%len(seq)]
			env.codes = append(env.codes, code)
			return code
		},
	})
	require.NoError(t, err)
	env.app = app
	env.server = httptest.NewServer(app.Handler())
	t.Cleanup(env.server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	env.client = &http.Client{Jar: jar}
	return env
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) (*http.Response, messageResponse) {
	t.Helper()
	resp, err := e.client.PostForm(e.server.URL+path, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body messageResponse
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp, body
}

func (e *testEnv) getDoc(t *testing.T, path string) (*http.Response, *goquery.Document) {
	t.Helper()
	resp, err := e.client.Get(e.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)
	return resp, doc
}

func (e *testEnv) signIn(t *testing.T) {
	t.Helper()
	resp, _ := e.postForm(t, "/api/login/start", url.Values{"email": {admin}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body := e.postForm(t, "/api/login/verify", url.Values{"email": {admin}, "code": {e.codes[len(e.codes)-1]}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "/activities", body.Redirect)
}

func TestLoginPage_Structure(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, doc := env.getDoc(t, "/login")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "Continue", strings.TrimSpace(doc.Find("#welcome button").Text()))
	_, hidden := doc.Find("#email-form").Attr("hidden")
	assert.True(t, hidden, "email form starts hidden behind the welcome step")
	assert.Equal(t, "Enter your email", doc.Find("#email").AttrOr("placeholder", ""))
	assert.Equal(t, otp.Length, doc.Find(`input[type="text"]`).Length())
	assert.Equal(t, "Resend Code", strings.TrimSpace(doc.Find("#resend").Text()))
}

func TestStart_UnknownIdentity(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, body := env.postForm(t, "/api/login/start", url.Values{"email": {"admin.stage@yopmail.com"}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, login.MessageUnknownIdentity, body.Message)
	assert.Equal(t, 0, env.app.Outbox().Count())
}

func TestStart_SendsCodeAfterLatency(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, body := env.postForm(t, "/api/login/start", url.Values{"email": {"Admin.DevRainyday@yopmail.com"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, login.MessageCodeSent, body.Message)

	_, doc := env.getDoc(t, "/mail/inbox?login=admin.devrainyday")
	assert.Equal(t, 0, doc.Find("div.m").Length(), "mail must not show before the delivery latency")

	env.clock.Advance(2 * time.Second)
	_, doc = env.getDoc(t, "/mail/inbox?login=admin.devrainyday")
	require.Equal(t, 1, doc.Find("div.m").Length())

	href := doc.Find("div.m").First().AttrOr("data-href", "")
	_, msg := env.getDoc(t, href)
	code, ok := otp.Extract(msg.Find("body").Text())
	require.True(t, ok)
	assert.Equal(t, otp.Code("604182"), code)
}

func TestMailbox_FramesAndNewestFirst(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.MailLatency = 0 })
	env.postForm(t, "/api/login/start", url.Values{"email": {admin}})
	env.clock.Advance(time.Second)
	env.postForm(t, "/api/login/resend", url.Values{"email": {admin}})

	_, shell := env.getDoc(t, "/mail/?admin.devrainyday")
	assert.Equal(t, 1, shell.Find("iframe#ifinbox").Length())
	assert.Equal(t, 1, shell.Find("iframe#ifmail").Length())

	_, inbox := env.getDoc(t, shell.Find("#ifinbox").AttrOr("src", ""))
	rows := inbox.Find("div.m")
	require.Equal(t, 2, rows.Length())
	_, newest := env.getDoc(t, rows.First().AttrOr("data-href", ""))
	code, _ := otp.Extract(newest.Find("body").Text())
	assert.Equal(t, otp.Code("739105"), code, "the resent code is listed first")
	assert.Equal(t, 0, newest.Find("script, style").Length())
}

func TestVerify_WrongCodeThenRightCode(t *testing.T) {
	env := newTestEnv(t, nil)
	env.postForm(t, "/api/login/start", url.Values{"email": {admin}})

	resp, body := env.postForm(t, "/api/login/verify", url.Values{"email": {admin}, "code": {"609271"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, login.MessageWrongCode, body.Message)

	resp, body = env.postForm(t, "/api/login/verify", url.Values{"email": {admin}, "code": {"604182"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/activities", body.Redirect)

	resp, _ = env.postForm(t, "/api/login/verify", url.Values{"email": {admin}, "code": {"604182"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "codes are single use")
}

func TestVerify_ExpiredCode(t *testing.T) {
	env := newTestEnv(t, nil)
	env.postForm(t, "/api/login/start", url.Values{"email": {admin}})
	env.clock.Advance(11 * time.Minute)
	resp, _ := env.postForm(t, "/api/login/verify", url.Values{"email": {admin}, "code": {"604182"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIssue_NeverIssuesRejectCodes(t *testing.T) {
	calls := 0
	app, err := New(DefaultConfig(), Options{NewCode: func() string {
		calls++
		if calls == 1 {
			return "609271"
		}
		return "123456"
	}})
	require.NoError(t, err)
	assert.Equal(t, "123456", app.issue(admin))
}

func TestStart_RateLimited(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.SendBurst = 2 })
	for i := 0; i < 2; i++ {
		resp, _ := env.postForm(t, "/api/login/start", url.Values{"email": {admin}})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, _ := env.postForm(t, "/api/login/resend", url.Values{"email": {admin}})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	env.clock.Advance(time.Second)
	resp, _ = env.postForm(t, "/api/login/resend", url.Values{"email": {admin}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProtectedPages(t *testing.T) {
	env := newTestEnv(t, nil)
	env.client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	resp, err := env.client.Get(env.server.URL + "/users")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp, err = env.client.Get(env.server.URL + "/api/users")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSignedInChrome(t *testing.T) {
	env := newTestEnv(t, nil)
	env.signIn(t)

	resp, doc := env.getDoc(t, "/activities")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, doc.Find(`nav a:contains("Activities")`).Length())
	assert.Equal(t, 1, doc.Find(`nav a:contains("App Users")`).Length())
	assert.Equal(t, "Rainyday Parents", doc.Find("#profile-toggle").Text())
	assert.Equal(t, "Sign out", doc.Find("#sign-out-open").Text())
	assert.Equal(t, "Sign Out", doc.Find(`#sign-out-dialog button[type="submit"]`).Text())

	_, users := env.getDoc(t, "/users")
	assert.Equal(t, 1, users.Find(".rounded-lg.border .w-full.overflow-auto > table.w-full").Length())
	assert.Equal(t, 2, users.Find(`input[placeholder="mm/dd/yyyy"]`).Length())
	assert.Equal(t, "Select status", users.Find("#status-toggle").Text())
	assert.Equal(t, 4, users.Find("#status-menu div.cursor-pointer").Length())
	assert.Equal(t, "Total App Users: 57", strings.TrimSpace(users.Find("#total").Text()))
	assert.Equal(t, "Clear Filters", users.Find("#clear-filters").Text())
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, nil)
	env.signIn(t)
	env.client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	resp, err := env.client.PostForm(env.server.URL+"/logout", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp, err = env.client.Get(env.server.URL + "/activities")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func (e *testEnv) usersPage(t *testing.T, query url.Values) UsersPage {
	t.Helper()
	resp, err := e.client.Get(e.server.URL + "/api/users?" + query.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page UsersPage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	return page
}

func TestUsersAPI_PagingAndFilters(t *testing.T) {
	env := newTestEnv(t, nil)
	env.signIn(t)

	first := env.usersPage(t, url.Values{"offset": {"0"}, "limit": {"20"}})
	assert.Equal(t, 57, first.Total)
	assert.Len(t, first.Rows, 20)
	last := env.usersPage(t, url.Values{"offset": {"40"}, "limit": {"20"}})
	assert.Len(t, last.Rows, 17)
	past := env.usersPage(t, url.Values{"offset": {"80"}})
	assert.Empty(t, past.Rows)

	banned := env.usersPage(t, url.Values{"status": {"banned"}, "limit": {"100"}})
	assert.Equal(t, 5, banned.Total)
	for _, r := range banned.Rows {
		assert.Equal(t, "Banned", r.Status)
	}

	fin := env.usersPage(t, url.Values{"q": {"fin"}, "limit": {"100"}})
	assert.Positive(t, fin.Total)
	for _, r := range fin.Rows {
		assert.Contains(t, strings.ToLower(r.Name+r.Email), "fin")
	}

	ranged := env.usersPage(t, url.Values{"from": {"08/28/2025"}, "to": {"08/30/2025"}, "limit": {"100"}})
	assert.Equal(t, 3, ranged.Total)

	resp, err := env.client.Get(env.server.URL + "/api/users?status=deleted")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFormForLog_MasksCode(t *testing.T) {
	form := url.Values{"email": {admin}, "code": {"482913"}}
	req := httptest.NewRequest(http.MethodPost, "/login/verify", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	require.NoError(t, req.ParseForm())

	assert.Equal(t, []any{"form_code", "48****", "form_email", admin}, formForLog(req))
}
