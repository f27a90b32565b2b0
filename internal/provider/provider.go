// Package provider defines the closed interface over the mail backends the
// proxy unifies: the Gmail mailbox API, the Outlook mailbox API via
// Microsoft Graph, and the send-only AWS SES backend.
package provider

import (
	"context"
	"time"

	"github.com/dray-supadev/api-gmail/internal/apperr"
	"github.com/dray-supadev/api-gmail/internal/email"
)

// Kind identifies one backend variant. The enumeration is closed: adding a
// backend means adding a constant, a case in every switch, and an
// implementation package.
type Kind string

// The supported backends.
const (
	KindGmail   Kind = "gmail"
	KindOutlook Kind = "outlook"
	KindSES     Kind = "ses"
)

// ParseKind validates a caller-supplied provider selector. Any value outside
// the closed enumeration is a validation failure, never silently defaulted.
func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindGmail, KindOutlook, KindSES:
		return Kind(raw), nil
	}
	return "", apperr.Validation("provider", "must be one of gmail, outlook, ses")
}

// ListOptions narrows a message listing. Query is forwarded in Gmail's
// native query syntax; for Outlook it is translated to the nearest $search
// equivalent on a best-effort basis with no cross-backend equivalence
// guarantee.
type ListOptions struct {
	LabelID    string
	Query      string
	MaxResults int64
	PageToken  string
}

// ListResult is one page of a message listing, newest first.
type ListResult struct {
	Messages      []email.Message `json:"messages"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

// ModifyRequest is a batch label/folder mutation across a set of messages.
type ModifyRequest struct {
	IDs       []string
	AddIDs    []string
	RemoveIDs []string
}

// Client is the interface every backend variant implements. The send-only
// backend answers mailbox operations with a capability error distinct from
// an authentication failure.
type Client interface {
	// ListMessages returns a page of message summaries, newest first.
	ListMessages(ctx context.Context, opts ListOptions) (*ListResult, error)

	// GetMessage returns one message with its body populated.
	GetMessage(ctx context.Context, id string) (*email.Message, error)

	// GetThread returns all messages of a thread, oldest first, with
	// bodies populated.
	GetThread(ctx context.Context, id string) ([]email.Message, error)

	// ListLabels returns the account's labels or folders. The result
	// never contains duplicate ids.
	ListLabels(ctx context.Context) ([]email.Label, error)

	// ModifyLabels applies a batch label/folder mutation.
	ModifyLabels(ctx context.Context, req ModifyRequest) error

	// GetProfile returns the account display identity.
	GetProfile(ctx context.Context) (*email.Profile, error)

	// GetAttachment fetches one attachment's bytes by id.
	GetAttachment(ctx context.Context, messageID, attachmentID string) (*email.AttachmentData, error)

	// Send delivers a composed message and returns the backend message
	// id. Implementations never retry: at most one send per request.
	Send(ctx context.Context, out *email.Outgoing) (string, error)

	// Name returns the backend name used in logs and errors.
	Name() string
}

// Factory builds the backend client for one request's provider selection
// and forwarded bearer token. The token is used for the lifetime of the
// request only; it is never persisted and never logged.
type Factory func(ctx context.Context, kind Kind, token string) (Client, error)

// retryDelay is the fixed pause before the single permitted retry of a read
// or label-modify operation.
const retryDelay = 500 * time.Millisecond

// Once runs fn and, if it fails with a retryable error (network failure,
// timeout or backend 5xx), retries exactly once after a fixed short delay.
// Upstream 401 and 429 responses are never retried. Send operations must not
// go through Once.
func Once(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil || !apperr.Retryable(err) {
		return err
	}
	select {
	case <-ctx.Done():
		return err
	case <-time.After(retryDelay):
	}
	return fn()
}
