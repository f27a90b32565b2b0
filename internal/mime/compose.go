// Package mime builds outgoing MIME content and decodes provider-returned
// raw messages into the normalized model.
package mime

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"html"
	"net/mail"
	"regexp"
	"strings"

	"github.com/jhillyerd/enmime"

	"github.com/dray-supadev/api-gmail/internal/apperr"
	"github.com/dray-supadev/api-gmail/internal/email"
)

// ComposeRequest carries everything needed to build an outgoing message.
type ComposeRequest struct {
	From        string
	To          []string
	Cc          []string
	Subject     string
	HtmlBody    string
	Attachments []email.Attachment
	ThreadID    string
}

// Compose validates the request and produces a fully composed Outgoing
// message: HTML body, a plain-text alternative derived by stripping markup,
// and a fresh correlation identifier. Any invalid address fails the whole
// composition with a validation error naming the offending field; nothing
// partial is ever returned.
func Compose(req ComposeRequest) (*email.Outgoing, error) {
	if len(req.To) == 0 {
		return nil, apperr.Validation("to", "at least one recipient is required")
	}
	if req.From != "" {
		if _, err := mail.ParseAddress(req.From); err != nil {
			return nil, apperr.Validation("from", fmt.Sprintf("malformed address %q", req.From))
		}
	}
	for _, addr := range req.To {
		if _, err := mail.ParseAddress(addr); err != nil {
			return nil, apperr.Validation("to", fmt.Sprintf("malformed address %q", addr))
		}
	}
	for _, addr := range req.Cc {
		if _, err := mail.ParseAddress(addr); err != nil {
			return nil, apperr.Validation("cc", fmt.Sprintf("malformed address %q", addr))
		}
	}

	return &email.Outgoing{
		From:          req.From,
		To:            req.To,
		Cc:            req.Cc,
		Subject:       req.Subject,
		HtmlBody:      req.HtmlBody,
		TextBody:      HTMLToText(req.HtmlBody),
		Attachments:   req.Attachments,
		ThreadID:      req.ThreadID,
		CorrelationID: NewCorrelationID(),
	}, nil
}

// EncodeRaw serializes an Outgoing message into an RFC 5322 wire blob:
// multipart/alternative for the text and HTML bodies, wrapped in
// multipart/mixed with base64 attachment parts when attachments are present.
// The From address must be set; Gmail requires it on raw submissions.
func EncodeRaw(o *email.Outgoing) ([]byte, error) {
	if o.From == "" {
		return nil, &apperr.MimeError{Reason: "raw encoding requires a from address"}
	}

	builder := enmime.Builder().
		From("", o.From).
		ToAddrs(toAddressList(o.To)).
		Subject(o.Subject).
		Text([]byte(o.TextBody)).
		HTML([]byte(o.HtmlBody))

	if len(o.Cc) > 0 {
		builder = builder.CCAddrs(toAddressList(o.Cc))
	}
	for _, att := range o.Attachments {
		builder = builder.AddAttachment(att.Content, att.ContentType, att.Filename)
	}

	root, err := builder.Build()
	if err != nil {
		return nil, &apperr.MimeError{Reason: fmt.Sprintf("build message: %v", err)}
	}

	var buf bytes.Buffer
	if err := root.Encode(&buf); err != nil {
		return nil, &apperr.MimeError{Reason: fmt.Sprintf("encode message: %v", err)}
	}
	return buf.Bytes(), nil
}

// correlationAlphabet is the character set for correlation identifiers.
const correlationAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewCorrelationID returns a send correlation identifier of the form "DI"
// followed by four uppercase alphanumeric characters. It exists purely for
// downstream log correlation; collisions are acceptable.
func NewCorrelationID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand only fails when the OS entropy source is broken;
		// a fixed suffix is still a usable correlation id.
		return "DI0000"
	}
	for i := range b {
		b[i] = correlationAlphabet[int(b[i])%len(correlationAlphabet)]
	}
	return "DI" + string(b)
}

var (
	htmlHiddenRe = regexp.MustCompile(`(?is)<(style|script|head)[^>]*>.*?</(style|script|head)>`)
	htmlBreakRe  = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|tr|li|h[1-6]|table)>`)
	htmlTagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
	spacesRe     = regexp.MustCompile(`[ \t]+`)
)

// HTMLToText derives a plain-text rendering from HTML markup for the
// multipart/alternative fallback part. Block-level closers become line
// breaks; everything else is stripped and entity-decoded.
func HTMLToText(htmlBody string) string {
	text := htmlHiddenRe.ReplaceAllString(htmlBody, "")
	text = htmlBreakRe.ReplaceAllString(text, "\n")
	text = htmlTagRe.ReplaceAllString(text, "")
	text = html.UnescapeString(text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spacesRe.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// toAddressList converts bare address strings into mail.Address values.
// Addresses are validated before this point, so parse failures map to the
// bare string.
func toAddressList(addrs []string) []mail.Address {
	list := make([]mail.Address, 0, len(addrs))
	for _, a := range addrs {
		if parsed, err := mail.ParseAddress(a); err == nil {
			list = append(list, *parsed)
		} else {
			list = append(list, mail.Address{Address: a})
		}
	}
	return list
}
