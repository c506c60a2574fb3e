package fakeapp

import (
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/kuitang/admin-e2e/internal/email"
	"github.com/kuitang/admin-e2e/internal/login"
	"github.com/kuitang/admin-e2e/internal/logutil"
	"github.com/kuitang/admin-e2e/internal/obs"
	"github.com/kuitang/admin-e2e/internal/otp"
)

// SessionCookie names the fake app's session cookie.
const SessionCookie = "rdp_session"

type loginPageData struct {
	Title  string
	Digits []int
}

// HandleLoginPage handles GET /login.
func (a *App) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	data := loginPageData{Title: "Sign In"}
	for i := 1; i <= otp.Length; i++ {
		data.Digits = append(data.Digits, i)
	}
	if err := a.renderer.Render(w, "login.html", data); err != nil {
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}

// HandleStart handles POST /api/login/start: known identities get a code by email.
func (a *App) HandleStart(w http.ResponseWriter, r *http.Request) {
	a.sendCode(w, r, "code_sent")
}

// HandleResend handles POST /api/login/resend.
func (a *App) HandleResend(w http.ResponseWriter, r *http.Request) {
	a.sendCode(w, r, "code_resent")
}

func (a *App) sendCode(w http.ResponseWriter, r *http.Request, event string) {
	addr := normalizeEmail(r.FormValue("email"))
	a.mu.Lock()
	known := a.known[addr]
	a.mu.Unlock()
	if addr == "" || !known {
		writeJSON(w, http.StatusNotFound, messageResponse{Message: login.MessageUnknownIdentity})
		return
	}

	code := a.issue(addr)
	if err := a.sender.Send(r.Context(), email.VerificationCode(addr, a.cfg.From, code)); err != nil {
		// The outbox has the message even when the relay fails.
		obs.From(r.Context()).With("pkg", "fakeapp").Warn("code_relay_failed", "email", addr, "error", err)
	}
	obs.From(r.Context()).With("pkg", "fakeapp").Info(event, "email", addr, "code", logutil.MaskCode(code))
	writeJSON(w, http.StatusOK, messageResponse{Message: login.MessageCodeSent})
}

// issue stores a fresh code for addr and returns it.
func (a *App) issue(addr string) string {
	code := a.newCode()
	for slices.Contains(a.cfg.RejectCodes, code) {
		code = a.newCode()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	live := append(a.codes[addr], issuedCode{code: code, expires: a.clock.Now().Add(a.cfg.CodeTTL)})
	if len(live) > maxLiveCodes {
		live = live[len(live)-maxLiveCodes:]
	}
	a.codes[addr] = live
	return code
}

// redeem consumes code for addr if it is live.
func (a *App) redeem(addr, code string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock.Now()
	live := a.codes[addr]
	for i, c := range live {
		if c.code == code && now.Before(c.expires) {
			a.codes[addr] = slices.Delete(live, i, i+1)
			return true
		}
	}
	return false
}

// HandleVerify handles POST /api/login/verify.
func (a *App) HandleVerify(w http.ResponseWriter, r *http.Request) {
	addr := normalizeEmail(r.FormValue("email"))
	obs.From(r.Context()).With("pkg", "fakeapp").Debug("verify_form", formForLog(r)...)
	code, err := otp.Parse(r.FormValue("code"))
	if err != nil || !a.redeem(addr, string(code)) {
		obs.From(r.Context()).With("pkg", "fakeapp").Info("code_rejected", "email", addr)
		writeJSON(w, http.StatusUnauthorized, messageResponse{Message: login.MessageWrongCode})
		return
	}

	token := uuid.NewString()
	a.mu.Lock()
	a.sessions[token] = addr
	a.mu.Unlock()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, messageResponse{Message: "Signed in", Redirect: "/activities"})
}

// HandleLogout handles POST /logout.
func (a *App) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookie); err == nil {
		a.mu.Lock()
		delete(a.sessions, c.Value)
		a.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// sessionEmail returns the signed-in identity for r, if any.
func (a *App) sessionEmail(r *http.Request) (string, bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return "", false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	addr, ok := a.sessions[c.Value]
	return addr, ok
}

// requireSession sends anonymous page requests to /login and anonymous API requests a 401.
func (a *App) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := a.sessionEmail(r); !ok {
			if strings.HasPrefix(r.URL.Path, "/api/") {
				writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "Not signed in"})
				return
			}
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// formForLog returns r's form as slog attributes with sensitive values masked.
func formForLog(r *http.Request) []any {
	keys := make([]string, 0, len(r.PostForm))
	for k := range r.PostForm {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	attrs := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		v := r.PostForm.Get(k)
		if logutil.IsSensitiveLogField(k) {
			v = logutil.MaskCode(v)
		}
		attrs = append(attrs, "form_"+k, v)
	}
	return attrs
}
