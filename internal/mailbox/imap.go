package mailbox

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/kuitang/admin-e2e/internal/errs"
)

type imapClient interface {
	Login(username, password string) commandWaiter
	Logout() commandWaiter
	Close() error
	Select(mailbox string, options *imap.SelectOptions) selectWaiter
	UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter
	Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter
}

type commandWaiter interface{ Wait() error }
type selectWaiter interface {
	Wait() (*imap.SelectData, error)
}
type searchWaiter interface {
	Wait() (*imap.SearchData, error)
}
type fetchWaiter interface {
	Collect() ([]*imapclient.FetchMessageBuffer, error)
}

// IMAPConfig describes the IMAP account that receives the harness mail.
type IMAPConfig struct {
	Addr     string
	Username string
	Password string
	TLS      bool
	// Folder defaults to INBOX.
	Folder      string
	DialTimeout time.Duration
}

// IMAPOpener reads mail over IMAP. Each Open dials a dedicated connection.
type IMAPOpener struct {
	Config IMAPConfig

	newClient func(IMAPConfig) (imapClient, error)
}

// NewIMAPOpener returns an opener for cfg.
func NewIMAPOpener(cfg IMAPConfig) *IMAPOpener {
	return &IMAPOpener{Config: cfg, newClient: dialIMAP}
}

func (o *IMAPOpener) Open(ctx context.Context, mailboxID string) (Inbox, error) {
	cfg := o.Config
	if cfg.Addr == "" {
		return nil, errs.New(errs.InvalidArgument, "imap address is required")
	}
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.Timeout, "imap connect", err)
	}

	newClient := o.newClient
	if newClient == nil {
		newClient = dialIMAP
	}
	client, err := newClient(cfg)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, fmt.Sprintf("imap connect %s", cfg.Addr), err)
	}
	login := client.Login(cfg.Username, cfg.Password)
	if _, err := await(ctx, "imap auth", func() { _ = client.Close() }, done(login)); err != nil {
		if errs.CodeOf(err) == errs.Timeout {
			return nil, err
		}
		_ = client.Close()
		return nil, errs.Wrap(errs.Unavailable, "imap auth", err)
	}
	return &imapInbox{client: client, folder: cfg.Folder, mailboxID: mailboxID, logoutTimeout: LogoutTimeout}, nil
}

// LogoutTimeout bounds the LOGOUT sent when an inbox is closed.
const LogoutTimeout = 5 * time.Second

// await waits for a pending command until ctx ends. On expiry it calls abort,
// which must close the connection so the command unblocks, and returns a
// timeout error.
func await[T any](ctx context.Context, what string, abort func(), wait func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := wait()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		abort()
		var zero T
		return zero, errs.Wrap(errs.Timeout, what, ctx.Err())
	}
}

func done(cmd commandWaiter) func() (struct{}, error) {
	return func() (struct{}, error) { return struct{}{}, cmd.Wait() }
}

func dialIMAP(cfg IMAPConfig) (imapClient, error) {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts := &imapclient.Options{Dialer: &net.Dialer{Timeout: timeout}}
	var (
		client *imapclient.Client
		err    error
	)
	if cfg.TLS {
		client, err = imapclient.DialTLS(cfg.Addr, opts)
	} else {
		client, err = imapclient.DialInsecure(cfg.Addr, opts)
	}
	if err != nil {
		return nil, err
	}
	return &imapClientWrapper{Client: client}, nil
}

type imapClientWrapper struct{ *imapclient.Client }

func (w *imapClientWrapper) Login(username, password string) commandWaiter {
	return w.Client.Login(username, password)
}
func (w *imapClientWrapper) Logout() commandWaiter { return w.Client.Logout() }
func (w *imapClientWrapper) Select(mailbox string, options *imap.SelectOptions) selectWaiter {
	return w.Client.Select(mailbox, options)
}
func (w *imapClientWrapper) UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter {
	return w.Client.UIDSearch(criteria, options)
}
func (w *imapClientWrapper) Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter {
	return w.Client.Fetch(numSet, options)
}

type imapInbox struct {
	client        imapClient
	folder        string
	mailboxID     string
	logoutTimeout time.Duration

	// aborted is set once a stalled command forced the connection closed.
	aborted bool
}

func (m *imapInbox) abort() {
	m.aborted = true
	_ = m.client.Close()
}

// Reload re-selects the folder so new arrivals become visible.
func (m *imapInbox) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := await(ctx, "imap select", m.abort, m.client.Select(m.folder, nil).Wait); err != nil {
		return fmt.Errorf("imap select %s: %w", m.folder, err)
	}
	return nil
}

func (m *imapInbox) LatestMessageText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	searchData, err := await(ctx, "imap search", m.abort, m.client.UIDSearch(recipientCriteria(m.mailboxID), nil).Wait)
	if err != nil {
		return "", fmt.Errorf("imap search: %w", err)
	}
	newest, ok := newestUID(searchData.AllUIDs())
	if !ok {
		return "", errs.New(errs.NotFound, "mailbox is empty")
	}

	fetch := m.client.Fetch(imap.UIDSetNum(newest), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{{}},
	})
	bufs, err := await(ctx, "imap fetch", m.abort, fetch.Collect)
	if err != nil {
		return "", fmt.Errorf("imap fetch uid %d: %w", newest, err)
	}
	for _, buf := range bufs {
		if body := buf.FindBodySection(&imap.FetchItemBodySection{}); body != nil {
			return MessageText(body)
		}
	}
	return "", errs.New(errs.NotFound, fmt.Sprintf("uid %d has no body", newest))
}

// Close logs out within logoutTimeout and closes the connection.
func (m *imapInbox) Close() error {
	if m.aborted {
		return nil
	}
	timeout := m.logoutTimeout
	if timeout <= 0 {
		timeout = LogoutTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, logoutErr := await(ctx, "imap logout", m.abort, done(m.client.Logout()))
	if m.aborted {
		return logoutErr
	}
	closeErr := m.client.Close()
	if logoutErr != nil {
		return fmt.Errorf("imap logout: %w", logoutErr)
	}
	return closeErr
}

// recipientCriteria matches messages whose To header mentions the mailbox.
func recipientCriteria(mailboxID string) *imap.SearchCriteria {
	return &imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{{Key: "To", Value: strings.TrimSpace(mailboxID)}},
	}
}

func newestUID(uids []imap.UID) (imap.UID, bool) {
	if len(uids) == 0 {
		return 0, false
	}
	return slices.Max(uids), true
}
