// Package email delivers verification codes for the fake application. Mail is
// captured in an in-memory Outbox that backs the fake inbox UI, and can also be
// relayed through Resend when the fake app runs standalone.
package email

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/kuitang/admin-e2e/internal/clock"
	"github.com/kuitang/admin-e2e/internal/logutil"
	"github.com/kuitang/admin-e2e/internal/obs"
)

// Message is one sent email.
type Message struct {
	ID      int
	To      string
	From    string
	Subject string
	Text    string
	HTML    string
	SentAt  time.Time
}

// Sender sends a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Outbox captures messages per recipient and exposes them once the delivery
// latency has passed, like a real inbox that lags the send.
type Outbox struct {
	mu       sync.Mutex
	clock    clock.Clock
	latency  time.Duration
	seq      int
	messages map[string][]Message
}

// NewOutbox creates an empty outbox. A nil clock uses the wall clock.
func NewOutbox(clk clock.Clock, latency time.Duration) *Outbox {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Outbox{clock: clk, latency: latency, messages: make(map[string][]Message)}
}

// MailboxOf returns the local part of address, lowercased. Mailboxes are keyed
// by local part so any domain delivers into the same fake inbox.
func MailboxOf(address string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(address), "@")
	return strings.ToLower(local)
}

// Send captures msg.
func (o *Outbox) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	box := MailboxOf(msg.To)
	if box == "" {
		return errors.New("email: recipient required")
	}

	o.mu.Lock()
	o.seq++
	msg.ID = o.seq
	msg.SentAt = o.clock.Now()
	o.messages[box] = append(o.messages[box], msg)
	o.mu.Unlock()

	obs.Pkg("email").Debug("email_captured", "mailbox", box, "subject", msg.Subject, "id", msg.ID)
	return nil
}

// Inbox returns the delivered messages for mailbox, newest first.
func (o *Outbox) Inbox(mailbox string) []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.clock.Now()
	all := o.messages[strings.ToLower(mailbox)]
	out := make([]Message, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if !all[i].SentAt.Add(o.latency).After(now) {
			out = append(out, all[i])
		}
	}
	return out
}

// Message returns the delivered message with id from mailbox.
func (o *Outbox) Message(mailbox string, id int) (Message, bool) {
	for _, m := range o.Inbox(mailbox) {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// Count returns the number of captured messages, delivered or not.
func (o *Outbox) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, msgs := range o.messages {
		n += len(msgs)
	}
	return n
}

// Clear removes all captured messages.
func (o *Outbox) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = make(map[string][]Message)
}

// Fanout sends each message through every sender and joins their errors.
type Fanout []Sender

func (f Fanout) Send(ctx context.Context, msg Message) error {
	var errList []error
	for _, s := range f {
		if err := s.Send(ctx, msg); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

// LogSender logs a masked line for each message. Useful when serving the fake app by hand.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, msg Message) error {
	obs.From(ctx).With("pkg", "email").Info("email_sent",
		"to", msg.To,
		"subject", msg.Subject,
		"preview", logutil.TruncateForLog(maskDigits(msg.Text), 80),
	)
	return nil
}

// maskDigits hides every run of six digits so codes never reach the log.
func maskDigits(s string) string {
	b := []byte(s)
	run := 0
	for i := 0; i <= len(b); i++ {
		if i < len(b) && b[i] >= '0' && b[i] <= '9' {
			run++
			continue
		}
		if run == 6 {
			masked := logutil.MaskCode(string(b[i-6 : i]))
			copy(b[i-6:i], masked)
		}
		run = 0
	}
	return string(b)
}
