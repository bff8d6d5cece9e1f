package mailer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crlf(s string) RawMessage {
	return RawMessage(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestReplySubject(t *testing.T) {
	tests := []struct {
		subject string
		want    string
	}{
		{subject: "Question", want: "Re: Question"},
		{subject: "Re: Question", want: "Re: Question"},
		{subject: "Re:Question", want: "Re:Question"},
		{subject: "RE: Question", want: "Re: RE: Question"},
		{subject: "re: Question", want: "Re: re: Question"},
		{subject: "Report", want: "Re: Report"},
		{subject: "", want: "Re: "},
		{subject: "Fwd: Question", want: "Re: Fwd: Question"},
	}

	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			assert.Equal(t, tt.want, ReplySubject(tt.subject))
		})
	}
}

func TestNewReply(t *testing.T) {
	in := InboundMessage{
		From:      "alice@example.com",
		Subject:   "Question",
		Body:      "When is the deadline?",
		MessageID: "abc@example.com",
	}

	reply := NewReply("bot@example.com", in, "The deadline is next Friday.")

	assert.Equal(t, ReplyMessage{
		From:      "bot@example.com",
		To:        "alice@example.com",
		Subject:   "Re: Question",
		Body:      "The deadline is next Friday.",
		InReplyTo: "abc@example.com",
	}, reply)
}

func TestDecodePlain(t *testing.T) {
	raw := crlf(`From: Alice <alice@example.com>
To: bot@example.com
Subject: Question
Message-ID: <abc@example.com>
Content-Type: text/plain; charset=utf-8

When is the deadline?
`)

	in, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", in.From)
	assert.Equal(t, "Question", in.Subject)
	assert.Equal(t, "When is the deadline?", in.Body)
	assert.Equal(t, "abc@example.com", in.MessageID)
}

func TestDecodeMultipartPrefersPlainText(t *testing.T) {
	raw := crlf(`From: alice@example.com
Subject: Question
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="b1"

--b1
Content-Type: text/html; charset=utf-8

<p>html version</p>
--b1
Content-Type: text/plain; charset=utf-8

plain version
--b1--
`)

	in, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "plain version", in.Body)
}

func TestDecodeHTMLOnly(t *testing.T) {
	raw := crlf(`From: alice@example.com
Subject: Question
MIME-Version: 1.0
Content-Type: text/html; charset=utf-8

<html><body><p>When is the deadline?</p></body></html>
`)

	in, err := Decode(raw)
	require.NoError(t, err)
	assert.Contains(t, in.Body, "When is the deadline?")
	assert.NotContains(t, in.Body, "<p>")
}

func TestDecodeEncodedHeaders(t *testing.T) {
	raw := crlf(`From: =?utf-8?q?J=C3=B6rg?= <jorg@example.com>
Subject: =?utf-8?b?5oSf6LCi?=
Content-Type: text/plain; charset=utf-8

body
`)

	in, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "jorg@example.com", in.From)
	assert.Equal(t, "感谢", in.Subject)
}

func TestDecodeMissingSubject(t *testing.T) {
	raw := crlf(`From: alice@example.com
Content-Type: text/plain

hello
`)

	in, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "(no subject)", in.Subject)
	assert.Equal(t, "Re: (no subject)", ReplySubject(in.Subject))
}

func TestDecodeWithoutSender(t *testing.T) {
	raw := crlf(`Subject: orphan
Content-Type: text/plain

hello
`)

	_, err := Decode(raw)
	assert.Error(t, err)
}
