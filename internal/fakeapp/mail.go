package fakeapp

import (
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/kuitang/admin-e2e/internal/email"
)

type mailboxPageData struct {
	Title    string
	Mailbox  string
	InboxURL string
}

type inboxRow struct {
	Href    string
	From    string
	Subject string
	SentAt  string
}

type inboxPageData struct {
	Title    string
	Messages []inboxRow
}

type messagePageData struct {
	Title   string
	Subject string
	Body    template.HTML
}

var mailPolicy = bluemonday.UGCPolicy()

// mailboxFromQuery reads the mailbox from a bare query (/mail/?name) or ?login=name.
func mailboxFromQuery(r *http.Request) string {
	if login := r.URL.Query().Get("login"); login != "" {
		return email.MailboxOf(login)
	}
	raw, err := url.QueryUnescape(r.URL.RawQuery)
	if err != nil {
		return ""
	}
	return email.MailboxOf(raw)
}

// HandleMailbox handles GET /mail/?{mailbox}: a two-frame inbox page.
func (a *App) HandleMailbox(w http.ResponseWriter, r *http.Request) {
	box := mailboxFromQuery(r)
	if box == "" {
		http.Error(w, "mailbox required", http.StatusBadRequest)
		return
	}
	data := mailboxPageData{
		Title:    "Inbox " + box,
		Mailbox:  box,
		InboxURL: "/mail/inbox?login=" + url.QueryEscape(box),
	}
	if err := a.renderer.Render(w, "mail/index.html", data); err != nil {
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}

// HandleInbox handles GET /mail/inbox?login=: delivered messages, newest first.
func (a *App) HandleInbox(w http.ResponseWriter, r *http.Request) {
	box := mailboxFromQuery(r)
	data := inboxPageData{Title: "Inbox"}
	for _, m := range a.outbox.Inbox(box) {
		data.Messages = append(data.Messages, inboxRow{
			Href:    "/mail/message?login=" + url.QueryEscape(box) + "&id=" + strconv.Itoa(m.ID),
			From:    m.From,
			Subject: m.Subject,
			SentAt:  m.SentAt.Format("15:04"),
		})
	}
	if err := a.renderer.Render(w, "mail/inbox.html", data); err != nil {
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}

// HandleMessage handles GET /mail/message?login=&id=.
func (a *App) HandleMessage(w http.ResponseWriter, r *http.Request) {
	box := mailboxFromQuery(r)
	id, err := strconv.Atoi(r.URL.Query().Get("id"))
	if err != nil {
		http.Error(w, "message id required", http.StatusBadRequest)
		return
	}
	m, ok := a.outbox.Message(box, id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	body := m.HTML
	if strings.TrimSpace(body) == "" {
		body = "<pre>" + template.HTMLEscapeString(m.Text) + "</pre>"
	}
	data := messagePageData{
		Title:   m.Subject,
		Subject: m.Subject,
		Body:    template.HTML(mailPolicy.Sanitize(body)),
	}
	if err := a.renderer.Render(w, "mail/message.html", data); err != nil {
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}
