package sender

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/hickar/replybot/internal/app/auth"
	"github.com/hickar/replybot/internal/app/mailer"
)

type smtpClient interface {
	Auth(sasl.Client) error
	SendMail(from string, to []string, r io.Reader) error
	Quit() error
	Close() error
}

type SMTPSender struct {
	address string
	creds   auth.Credentials
	dial    func(address string) (smtpClient, error)
	now     func() time.Time
	logger  *slog.Logger
}

// NewSMTPSender returns a sender submitting over STARTTLS, one connection per reply.
func NewSMTPSender(address string, creds auth.Credentials, logger *slog.Logger) *SMTPSender {
	return &SMTPSender{
		address: address,
		creds:   creds,
		dial:    dialStartTLS,
		now:     time.Now,
		logger:  logger,
	}
}

func dialStartTLS(address string) (smtpClient, error) {
	c, err := smtp.DialStartTLS(address, nil)
	if err != nil {
		return nil, err
	}

	return c, nil
}

func (s *SMTPSender) Send(ctx context.Context, reply mailer.ReplyMessage) error {
	raw, err := Compose(reply, s.now())
	if err != nil {
		return fmt.Errorf("compose: %w", err)
	}

	saslClient, err := s.creds.SASLClient(ctx)
	if err != nil {
		return fmt.Errorf("prepare authentication: %w", err)
	}

	c, err := s.dial(s.address)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() {
		_ = c.Close()
	}()

	if err = c.Auth(saslClient); err != nil {
		s.creds.Rejected(ctx)
		return fmt.Errorf("authenticate: %w", err)
	}

	if err = c.SendMail(reply.From, []string{reply.To}, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	if err = c.Quit(); err != nil {
		s.logger.DebugContext(ctx, "smtp quit failed", slog.Any("error", err))
	}

	return nil
}

// Compose renders reply as a plain text UTF-8 message.
func Compose(reply mailer.ReplyMessage, date time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{{Address: reply.From}})
	h.SetAddressList("To", []*mail.Address{{Address: reply.To}})
	h.SetSubject(reply.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}
	if reply.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{reply.InReplyTo})
		h.SetMsgIDList("References", []string{reply.InReplyTo})
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create writer: %w", err)
	}
	if _, err = io.WriteString(w, reply.Body); err != nil {
		return nil, fmt.Errorf("write body: %w", err)
	}
	if err = w.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}

	return buf.Bytes(), nil
}
