package mailer

import (
	"fmt"
	"strings"
)

const noSubject = "(no subject)"

// MessageRef identifies one mailbox entry for the lifetime of a session.
type MessageRef struct {
	Mailbox string
	UID     uint32
}

func (r MessageRef) String() string {
	return fmt.Sprintf("%s/%d", r.Mailbox, r.UID)
}

// RawMessage is the complete RFC 5322 representation of a fetched message.
type RawMessage []byte

type InboundMessage struct {
	From      string
	Subject   string
	Body      string
	MessageID string
}

// ReplyMessage is built once per processed message and never modified afterwards.
type ReplyMessage struct {
	From      string
	To        string
	Subject   string
	Body      string
	InReplyTo string
}

func NewReply(from string, in InboundMessage, body string) ReplyMessage {
	return ReplyMessage{
		From:      from,
		To:        in.From,
		Subject:   ReplySubject(in.Subject),
		Body:      body,
		InReplyTo: in.MessageID,
	}
}

// ReplySubject prefixes subject with "Re: " unless it already starts with "Re:".
// The match is case-sensitive, so "RE:" and "re:" subjects are prefixed too.
func ReplySubject(subject string) string {
	if strings.HasPrefix(subject, "Re:") {
		return subject
	}

	return "Re: " + subject
}
