package retriever

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-sasl"

	"github.com/hickar/replybot/internal/app/auth"
	"github.com/hickar/replybot/internal/app/mailer"
)

const inbox = "INBOX"

var errMessageNotFound = errors.New("message not found")

type ImapDialer interface {
	DialTLS(ctx context.Context, address string, options *imapclient.Options) (*imapclient.Client, error)
}

type ImapDialerFunc func(context.Context, string, *imapclient.Options) (*imapclient.Client, error)

func (f ImapDialerFunc) DialTLS(ctx context.Context, address string, options *imapclient.Options) (*imapclient.Client, error) {
	return f(ctx, address, options)
}

// NewTLSDialer returns a dialer connecting over implicit TLS within timeout.
func NewTLSDialer(timeout time.Duration) ImapDialerFunc {
	return func(ctx context.Context, address string, options *imapclient.Options) (*imapclient.Client, error) {
		dialer := &tls.Dialer{NetDialer: &net.Dialer{Timeout: timeout}}

		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, err
		}

		return imapclient.New(conn, options), nil
	}
}

// IMAPMailbox opens authenticated sessions on the account inbox.
type IMAPMailbox struct {
	address string
	creds   auth.Credentials
	dialer  ImapDialer
	logger  *slog.Logger
}

func NewIMAPMailbox(address string, creds auth.Credentials, dialer ImapDialer, logger *slog.Logger) *IMAPMailbox {
	return &IMAPMailbox{
		address: address,
		creds:   creds,
		dialer:  dialer,
		logger:  logger,
	}
}

// Open connects to the server, authenticates and selects the inbox.
//
// SASL credentials are prepared before dialing, so that an interactive token
// acquisition never holds an idle connection open. A failed authentication is
// reported back to the credentials, so that a stale access token is not offered
// again on the next attempt.
func (m *IMAPMailbox) Open(ctx context.Context) (mailer.MailboxSession, error) {
	password, usesPassword := m.creds.(interface{ Password() string })

	var saslClient sasl.Client
	if !usesPassword {
		var err error
		if saslClient, err = m.creds.SASLClient(ctx); err != nil {
			return nil, fmt.Errorf("prepare authentication: %w", err)
		}
	}

	client, err := m.dialer.DialTLS(ctx, m.address, &imapclient.Options{
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
	})
	if err != nil {
		return nil, fmt.Errorf("dial TLS: %w", err)
	}

	if usesPassword {
		err = client.Login(m.creds.Username(), password.Password()).Wait()
		if err != nil {
			err = fmt.Errorf("login: %w", err)
		}
	} else if err = client.Authenticate(saslClient); err != nil {
		m.creds.Rejected(ctx)
		err = fmt.Errorf("authenticate: %w", err)
	}
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	if _, err = client.Select(inbox, nil).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("select %s: %w", inbox, err)
	}
	m.logger.DebugContext(ctx, "mailbox selected", slog.String("mailbox", inbox))

	return &imapSession{client: client, logger: m.logger}, nil
}

type imapSession struct {
	client *imapclient.Client
	logger *slog.Logger
}

func (s *imapSession) ListUnseen(context.Context) ([]mailer.MessageRef, error) {
	criteria := &imap.SearchCriteria{NotFlag: []imap.Flag{imap.FlagSeen}}

	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	return messageRefs(data.AllUIDs()), nil
}

// Fetch peeks the full message, leaving its flags untouched.
func (s *imapSession) Fetch(_ context.Context, ref mailer.MessageRef) (mailer.RawMessage, error) {
	section := &imap.FetchItemBodySection{Peek: true}
	options := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}

	msgs, err := s.client.Fetch(imap.UIDSetNum(imap.UID(ref.UID)), options).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ref, err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("fetch %s: %w", ref, errMessageNotFound)
	}

	body := msgs[0].FindBodySection(section)
	if body == nil {
		return nil, fmt.Errorf("fetch %s: body section is missing", ref)
	}

	return mailer.RawMessage(body), nil
}

func (s *imapSession) MarkSeen(_ context.Context, ref mailer.MessageRef) error {
	flags := &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}

	if err := s.client.Store(imap.UIDSetNum(imap.UID(ref.UID)), flags, nil).Close(); err != nil {
		return fmt.Errorf("store flags %s: %w", ref, err)
	}

	return nil
}

func (s *imapSession) Close() error {
	err := s.client.Logout().Wait()
	_ = s.client.Close()
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	return nil
}

func messageRefs(uids []imap.UID) []mailer.MessageRef {
	refs := make([]mailer.MessageRef, 0, len(uids))
	for _, uid := range uids {
		refs = append(refs, mailer.MessageRef{Mailbox: inbox, UID: uint32(uid)})
	}

	return refs
}
