package sender

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hickar/replybot/internal/app/auth"
	"github.com/hickar/replybot/internal/app/mailer"
)

var reply = mailer.ReplyMessage{
	From:      "bot@example.com",
	To:        "alice@example.com",
	Subject:   "Re: 截止日期",
	Body:      "The deadline is next Friday. 下周五。",
	InReplyTo: "abc@example.com",
}

type fakeClient struct {
	authErr   error
	mechanism string
	from      string
	to        []string
	raw       []byte
	quit      bool
	closed    bool
}

func (c *fakeClient) Auth(client sasl.Client) error {
	c.mechanism, _, _ = client.Start()
	return c.authErr
}

func (c *fakeClient) SendMail(from string, to []string, r io.Reader) error {
	c.from, c.to = from, to
	raw, err := io.ReadAll(r)
	c.raw = raw
	return err
}

func (c *fakeClient) Quit() error {
	c.quit = true
	return nil
}

func (c *fakeClient) Close() error {
	c.closed = true
	return nil
}

type rejectingTokens struct {
	invalidated int
}

func (r *rejectingTokens) AccessToken(context.Context) (string, error) { return "expired", nil }

func (r *rejectingTokens) Invalidate(context.Context) error {
	r.invalidated++
	return nil
}

func newTestSender(creds auth.Credentials, client *fakeClient) *SMTPSender {
	s := NewSMTPSender("smtp.example.com:587", creds, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.dial = func(string) (smtpClient, error) { return client, nil }
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestComposeRoundTrip(t *testing.T) {
	raw, err := Compose(reply, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	to, err := mr.Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, "alice@example.com", to[0].Address)

	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Re: 截止日期", subject)

	inReplyTo, err := mr.Header.MsgIDList("In-Reply-To")
	require.NoError(t, err)
	assert.Equal(t, []string{"abc@example.com"}, inReplyTo)

	id, err := mr.Header.MessageID()
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	part, err := mr.NextPart()
	require.NoError(t, err)
	body, err := io.ReadAll(part.Body)
	require.NoError(t, err)
	assert.Equal(t, reply.Body, string(body))
}

func TestComposeWithoutInReplyTo(t *testing.T) {
	r := reply
	r.InReplyTo = ""

	raw, err := Compose(r, time.Now())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "In-Reply-To")
}

func TestSend(t *testing.T) {
	client := &fakeClient{}
	s := newTestSender(auth.NewPasswordCredentials("bot@example.com", "secret"), client)

	require.NoError(t, s.Send(context.Background(), reply))

	assert.Equal(t, "PLAIN", client.mechanism)
	assert.Equal(t, "bot@example.com", client.from)
	assert.Equal(t, []string{"alice@example.com"}, client.to)
	assert.Contains(t, string(client.raw), "Content-Type: text/plain")
	assert.True(t, client.quit)
	assert.True(t, client.closed)
}

func TestSendAuthRejected(t *testing.T) {
	tokens := &rejectingTokens{}
	creds := auth.NewTokenCredentials("bot@example.com", tokens, slog.New(slog.NewTextHandler(io.Discard, nil)))
	client := &fakeClient{authErr: errors.New("535 5.7.3 Authentication unsuccessful")}
	s := newTestSender(creds, client)

	err := s.Send(context.Background(), reply)
	require.Error(t, err)

	assert.Equal(t, "XOAUTH2", client.mechanism)
	assert.Equal(t, 1, tokens.invalidated)
	assert.Nil(t, client.raw)
	assert.True(t, client.closed)
}

func TestSendDialFailure(t *testing.T) {
	s := newTestSender(auth.NewPasswordCredentials("bot@example.com", "secret"), nil)
	s.dial = func(string) (smtpClient, error) { return nil, errors.New("connection refused") }

	assert.ErrorContains(t, s.Send(context.Background(), reply), "dial")
}
