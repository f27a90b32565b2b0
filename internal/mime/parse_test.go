package mime

import (
	"errors"
	"strings"
	"testing"

	"github.com/dray-supadev/api-gmail/internal/apperr"
)

const sampleMultipart = "From: Alice Sender <alice@example.com>\r\n" +
	"To: bob@example.com, Carol <carol@example.com>\r\n" +
	"Subject: Invoice attached\r\n" +
	"Date: Mon, 02 Jun 2025 10:30:00 +0000\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"outer\"\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: multipart/alternative; boundary=\"inner\"\r\n" +
	"\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain; charset=UTF-8\r\n" +
	"\r\n" +
	"See attachment.\r\n" +
	"--inner\r\n" +
	"Content-Type: text/html; charset=UTF-8\r\n" +
	"\r\n" +
	"<p>See attachment.</p>\r\n" +
	"--inner--\r\n" +
	"--outer\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"invoice.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQgZmFrZQ==\r\n" +
	"--outer--\r\n"

func TestParseMultipart(t *testing.T) {
	t.Parallel()

	msg, err := Parse([]byte(sampleMultipart))
	if err != nil {
		t.Fatalf("Parse() returned error: %v", err)
	}

	if msg.From != "\"Alice Sender\" <alice@example.com>" && msg.From != "Alice Sender <alice@example.com>" {
		t.Errorf("unexpected from %q", msg.From)
	}
	if len(msg.To) != 2 {
		t.Fatalf("to = %v, want two entries", msg.To)
	}
	if msg.To[0] != "bob@example.com" {
		t.Errorf("bare address should stay bare, got %q", msg.To[0])
	}
	if msg.Subject != "Invoice attached" {
		t.Errorf("subject = %q", msg.Subject)
	}
	if msg.Date.IsZero() {
		t.Error("date was not parsed")
	}
	if !strings.Contains(msg.HtmlBody, "<p>See attachment.</p>") {
		t.Errorf("html body = %q", msg.HtmlBody)
	}
	if !strings.Contains(msg.TextBody, "See attachment.") {
		t.Errorf("text body = %q", msg.TextBody)
	}
	if !msg.HasAttachments || len(msg.Attachments) != 1 {
		t.Fatalf("expected one attachment, got %v", msg.Attachments)
	}

	att := msg.Attachments[0]
	if att.Filename != "invoice.pdf" {
		t.Errorf("attachment name = %q", att.Filename)
	}
	if att.ContentType != "application/pdf" {
		t.Errorf("attachment type = %q", att.ContentType)
	}
	if att.Size == 0 {
		t.Error("attachment size not recorded")
	}
}

func TestParsePlainText(t *testing.T) {
	t.Parallel()

	raw := "From: a@example.com\r\nTo: b@example.com\r\nSubject: hi\r\n\r\nplain body\r\n"
	msg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse() returned error: %v", err)
	}
	if msg.HasAttachments {
		t.Error("plain message should have no attachments")
	}
	if !strings.Contains(msg.TextBody, "plain body") {
		t.Errorf("text body = %q", msg.TextBody)
	}
}

func TestExtractAttachment(t *testing.T) {
	t.Parallel()

	data, err := ExtractAttachment([]byte(sampleMultipart), "invoice.pdf")
	if err != nil {
		t.Fatalf("ExtractAttachment() returned error: %v", err)
	}
	if data.Filename != "invoice.pdf" {
		t.Errorf("filename = %q", data.Filename)
	}
	if string(data.Content) != "%PDF-1.4 fake" {
		t.Errorf("content = %q", data.Content)
	}
}

func TestExtractAttachmentMissing(t *testing.T) {
	t.Parallel()

	_, err := ExtractAttachment([]byte(sampleMultipart), "nope.pdf")
	var nf *apperr.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}
