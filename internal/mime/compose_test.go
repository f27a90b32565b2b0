package mime

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/dray-supadev/api-gmail/internal/apperr"
	"github.com/dray-supadev/api-gmail/internal/email"
)

func TestComposeRejectsEmptyRecipients(t *testing.T) {
	t.Parallel()

	_, err := Compose(ComposeRequest{Subject: "hi"})
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Field != "to" {
		t.Errorf("field = %q, want to", ve.Field)
	}
}

func TestComposeRejectsMalformedAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		req   ComposeRequest
		field string
	}{
		{
			name:  "bad to",
			req:   ComposeRequest{To: []string{"not-an-address"}},
			field: "to",
		},
		{
			name:  "bad cc",
			req:   ComposeRequest{To: []string{"a@example.com"}, Cc: []string{"nope"}},
			field: "cc",
		},
		{
			name:  "bad from",
			req:   ComposeRequest{From: "<<", To: []string{"a@example.com"}},
			field: "from",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Compose(tt.req)
			var ve *apperr.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestComposeDerivesTextBody(t *testing.T) {
	t.Parallel()

	out, err := Compose(ComposeRequest{
		To:       []string{"a@example.com"},
		Subject:  "Quote",
		HtmlBody: "<p>Hello &amp; welcome</p><p>Regards</p>",
	})
	if err != nil {
		t.Fatalf("Compose() returned error: %v", err)
	}

	if !strings.Contains(out.TextBody, "Hello & welcome") {
		t.Errorf("text body missing decoded content: %q", out.TextBody)
	}
	if strings.Contains(out.TextBody, "<p>") {
		t.Errorf("text body still contains markup: %q", out.TextBody)
	}
}

var correlationIDRe = regexp.MustCompile(`^DI[A-Z0-9]{4}$`)

func TestNewCorrelationIDFormat(t *testing.T) {
	t.Parallel()

	for i := 0; i < 100; i++ {
		id := NewCorrelationID()
		if !correlationIDRe.MatchString(id) {
			t.Fatalf("correlation id %q does not match expected format", id)
		}
	}
}

func TestComposeAssignsCorrelationID(t *testing.T) {
	t.Parallel()

	out, err := Compose(ComposeRequest{To: []string{"a@example.com"}})
	if err != nil {
		t.Fatalf("Compose() returned error: %v", err)
	}
	if !correlationIDRe.MatchString(out.CorrelationID) {
		t.Errorf("correlation id %q does not match expected format", out.CorrelationID)
	}
}

func TestHTMLToText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips style blocks",
			in:   "<style>body { color: red }</style><p>Visible</p>",
			want: "Visible",
		},
		{
			name: "breaks on block closers",
			in:   "<div>One</div><div>Two</div>",
			want: "One\nTwo",
		},
		{
			name: "decodes entities",
			in:   "Fish &amp; Chips &lt;fresh&gt;",
			want: "Fish & Chips <fresh>",
		},
		{
			name: "collapses whitespace",
			in:   "<p>Spaced      out</p>",
			want: "Spaced out",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := HTMLToText(tt.in); got != tt.want {
				t.Errorf("HTMLToText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncodeRawRequiresFrom(t *testing.T) {
	t.Parallel()

	_, err := EncodeRaw(&email.Outgoing{To: []string{"a@example.com"}})
	var me *apperr.MimeError
	if !errors.As(err, &me) {
		t.Fatalf("expected MimeError, got %v", err)
	}
}

func TestEncodeRawRoundTrip(t *testing.T) {
	t.Parallel()

	out := &email.Outgoing{
		From:     "sender@example.com",
		To:       []string{"alice@example.com", "bob@example.com"},
		Cc:       []string{"carol@example.com"},
		Subject:  "Quote Q-42",
		HtmlBody: "<p>Your quote is attached.</p>",
		TextBody: "Your quote is attached.",
		Attachments: []email.Attachment{
			{Filename: "quote.pdf", ContentType: "application/pdf", Content: []byte("%PDF-1.4 fake")},
		},
	}

	raw, err := EncodeRaw(out)
	if err != nil {
		t.Fatalf("EncodeRaw() returned error: %v", err)
	}

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() returned error: %v", err)
	}

	if msg.From != "sender@example.com" {
		t.Errorf("from = %q, want sender@example.com", msg.From)
	}
	if len(msg.To) != 2 {
		t.Errorf("to = %v, want two recipients", msg.To)
	}
	if len(msg.Cc) != 1 {
		t.Errorf("cc = %v, want one recipient", msg.Cc)
	}
	if msg.Subject != "Quote Q-42" {
		t.Errorf("subject = %q, want Quote Q-42", msg.Subject)
	}
	if !strings.Contains(msg.HtmlBody, "Your quote is attached.") {
		t.Errorf("html body lost in round trip: %q", msg.HtmlBody)
	}
	if !msg.HasAttachments || len(msg.Attachments) != 1 {
		t.Fatalf("expected one attachment, got %v", msg.Attachments)
	}
	if msg.Attachments[0].Filename != "quote.pdf" {
		t.Errorf("attachment name = %q, want quote.pdf", msg.Attachments[0].Filename)
	}
}
