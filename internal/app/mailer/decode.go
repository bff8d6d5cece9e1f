package mailer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"jaytaylor.com/html2text"
)

// Decode extracts the reply relevant parts of a raw message.
//
// Header errors fail the decoding. Body errors do not: a message whose body can
// not be read is treated as having an empty body.
func Decode(raw RawMessage) (InboundMessage, error) {
	var in InboundMessage

	// Unknown charsets or encodings still yield a usable reader.
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if mr == nil {
		return in, fmt.Errorf("create reader: %w", err)
	}
	defer func() {
		_ = mr.Close()
	}()

	from, err := mr.Header.AddressList("From")
	if err != nil {
		return in, fmt.Errorf("parse 'From': %w", err)
	}
	if len(from) == 0 {
		return in, errors.New("message has no sender")
	}
	in.From = from[0].Address

	in.Subject, _ = mr.Header.Subject()
	in.Subject = strings.TrimSpace(in.Subject)
	if in.Subject == "" {
		in.Subject = noSubject
	}

	in.MessageID, _ = mr.Header.MessageID()
	in.Body = readBody(mr)

	return in, nil
}

// readBody prefers the first text/plain part and falls back to the first
// text/html part rendered as text.
func readBody(mr *mail.Reader) string {
	var plain, html string

	for plain == "" {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) || part == nil {
			break
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		mimeType, _, err := header.ContentType()
		if err != nil {
			mimeType = "text/plain"
		}

		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}

		switch {
		case mimeType == "text/plain":
			plain = string(body)
		case mimeType == "text/html" && html == "":
			html = string(body)
		}
	}

	if plain != "" {
		return strings.TrimSpace(plain)
	}
	if html == "" {
		return ""
	}

	text, err := html2text.FromString(html, html2text.Options{OmitLinks: true})
	if err != nil {
		return ""
	}

	return strings.TrimSpace(text)
}
