// Package email defines the normalized mail data model shared by all
// backend providers.
package email

import "time"

// Message is the provider-neutral view of a mail message. List operations
// populate the summary fields only; TextBody, HtmlBody and Attachments are
// filled on a full fetch.
type Message struct {
	ID             string          `json:"id"`
	ThreadID       string          `json:"thread_id"`
	From           string          `json:"from,omitempty"`
	To             []string        `json:"to,omitempty"`
	Cc             []string        `json:"cc,omitempty"`
	Subject        string          `json:"subject,omitempty"`
	Snippet        string          `json:"snippet,omitempty"`
	Date           time.Time       `json:"date"`
	Unread         bool            `json:"unread"`
	HasAttachments bool            `json:"has_attachments"`
	LabelIDs       []string        `json:"label_ids,omitempty"`
	TextBody       string          `json:"body_text,omitempty"`
	HtmlBody       string          `json:"body_html,omitempty"`
	Attachments    []AttachmentRef `json:"attachments,omitempty"`
}

// Label is a mailbox grouping: a Gmail label or an Outlook mail folder
// mapped into the same shape.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"` // "system" or "user"
}

// Label types.
const (
	LabelTypeSystem = "system"
	LabelTypeUser   = "user"
)

// AttachmentRef describes an attachment by metadata only. The bytes are
// fetched lazily by ID, never embedded in a list or thread response.
type AttachmentRef struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Attachment is an attachment with its content, used on the outgoing path.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// AttachmentData is the result of a lazy attachment byte fetch.
type AttachmentData struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Profile is the account display identity behind a provider credential.
type Profile struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// Outgoing is a fully composed message ready for delivery. Providers either
// serialize it into a raw MIME blob (Gmail) or read the structured fields
// directly (Graph, SES).
type Outgoing struct {
	From        string
	To          []string
	Cc          []string
	Subject     string
	HtmlBody    string
	TextBody    string
	Attachments []Attachment
	ThreadID    string

	// CorrelationID ties log lines of one send together. It is not a
	// security token; collisions are acceptable.
	CorrelationID string
}
