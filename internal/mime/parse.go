package mime

import (
	"bytes"
	"fmt"
	"net/mail"
	"strings"

	"github.com/jhillyerd/enmime"

	"github.com/dray-supadev/api-gmail/internal/apperr"
	"github.com/dray-supadev/api-gmail/internal/email"
)

// Parse decodes a raw RFC 5322 message into the normalized model. The HTML
// part is preferred as the body with the plain-text part as fallback.
// Inline parts (multipart/related children such as embedded images) are part
// of the rendered body and are excluded from the attachment list; true
// attachments are listed by metadata only, never by content.
//
// Provider-specific fields (id, thread id, snippet, label set) are filled in
// by the calling provider.
func Parse(raw []byte) (*email.Message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, &apperr.MimeError{Reason: fmt.Sprintf("decode message: %v", err)}
	}

	msg := &email.Message{
		From:     normalizeAddress(env.GetHeader("From")),
		To:       normalizeAddressList(env, "To"),
		Cc:       normalizeAddressList(env, "Cc"),
		Subject:  env.GetHeader("Subject"),
		HtmlBody: env.HTML,
		TextBody: env.Text,
	}

	if date, err := mail.ParseDate(env.GetHeader("Date")); err == nil {
		msg.Date = date
	}

	for _, part := range env.Attachments {
		msg.Attachments = append(msg.Attachments, email.AttachmentRef{
			ID:          attachmentID(part),
			Filename:    attachmentName(part),
			ContentType: part.ContentType,
			Size:        int64(len(part.Content)),
		})
	}
	msg.HasAttachments = len(msg.Attachments) > 0

	return msg, nil
}

// ExtractAttachment decodes a raw message and returns the bytes of the
// attachment whose id (content id or filename) matches. Inline parts are not
// addressable; they belong to the rendered body.
func ExtractAttachment(raw []byte, attachmentID string) (*email.AttachmentData, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, &apperr.MimeError{Reason: fmt.Sprintf("decode message: %v", err)}
	}
	for _, part := range env.Attachments {
		if part.ContentID == attachmentID || attachmentName(part) == attachmentID {
			return &email.AttachmentData{
				Filename:    attachmentName(part),
				ContentType: part.ContentType,
				Content:     part.Content,
			}, nil
		}
	}
	return nil, apperr.NotFound("attachment " + attachmentID)
}

// normalizeAddress renders one address header value in a single canonical
// format regardless of how the backend spelled it.
func normalizeAddress(raw string) string {
	if raw == "" {
		return ""
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	if addr.Name == "" {
		return addr.Address
	}
	return addr.String()
}

// normalizeAddressList renders a recipient header as individual normalized
// addresses.
func normalizeAddressList(env *enmime.Envelope, key string) []string {
	addrs, err := env.AddressList(key)
	if err != nil || len(addrs) == 0 {
		return nil
	}
	result := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if addr.Name == "" {
			result = append(result, addr.Address)
		} else {
			result = append(result, addr.String())
		}
	}
	return result
}

// attachmentID prefers the MIME content id so bytes can be re-fetched, with
// the filename as fallback.
func attachmentID(part *enmime.Part) string {
	if part.ContentID != "" {
		return part.ContentID
	}
	return attachmentName(part)
}

// attachmentName returns the part filename, or a generated name derived from
// the content type when the part carries none.
func attachmentName(part *enmime.Part) string {
	if part.FileName != "" {
		return part.FileName
	}
	if idx := strings.Index(part.ContentType, "/"); idx > 0 && idx < len(part.ContentType)-1 {
		return "attachment." + part.ContentType[idx+1:]
	}
	return "attachment"
}
