// Package gmail implements the mailbox Client backed by the Gmail API.
// The caller's bearer token is forwarded verbatim on every call; the proxy
// never acquires or refreshes tokens itself.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/dray-supadev/api-gmail/internal/apperr"
	"github.com/dray-supadev/api-gmail/internal/email"
	"github.com/dray-supadev/api-gmail/internal/labelmap"
	"github.com/dray-supadev/api-gmail/internal/mime"
	"github.com/dray-supadev/api-gmail/internal/provider"
)

// defaultMaxResults bounds listings when the caller does not ask for a size.
const defaultMaxResults = 20

// Client talks to the Gmail API on behalf of one request's bearer token.
type Client struct {
	users    *gmailapi.UsersService
	userinfo *oauth2api.UserinfoService
}

// New creates a Client that authenticates every call with the given bearer
// token.
func New(ctx context.Context, token string) (*Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})

	svc, err := gmailapi.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	userinfoSvc, err := oauth2api.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo service: %w", err)
	}

	return &Client{users: svc.Users, userinfo: userinfoSvc.Userinfo}, nil
}

// newWithServices wires pre-built services, used by tests to point the
// client at a fake API server.
func newWithServices(svc *gmailapi.Service, userinfoSvc *oauth2api.Service) *Client {
	c := &Client{users: svc.Users}
	if userinfoSvc != nil {
		c.userinfo = userinfoSvc.Userinfo
	}
	return c
}

// Name returns the backend name.
func (c *Client) Name() string {
	return "gmail"
}

// ListMessages lists message summaries, newest first. The free-text query is
// forwarded in Gmail's native query syntax.
func (c *Client) ListMessages(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	call := c.users.Messages.List("me").Context(ctx)
	if opts.LabelID != "" {
		call = call.LabelIds(opts.LabelID)
	}
	if opts.Query != "" {
		call = call.Q(opts.Query)
	}
	if opts.PageToken != "" {
		call = call.PageToken(opts.PageToken)
	}
	max := opts.MaxResults
	if max <= 0 {
		max = defaultMaxResults
	}
	call = call.MaxResults(max)

	var listResp *gmailapi.ListMessagesResponse
	err := provider.Once(ctx, func() error {
		var callErr error
		listResp, callErr = call.Do()
		return c.wrap(callErr)
	})
	if err != nil {
		return nil, err
	}

	result := &provider.ListResult{
		Messages:      make([]email.Message, 0, len(listResp.Messages)),
		NextPageToken: listResp.NextPageToken,
	}
	for _, ref := range listResp.Messages {
		summary, err := c.fetchSummary(ctx, ref.Id, ref.ThreadId)
		if err != nil {
			return nil, err
		}
		result.Messages = append(result.Messages, *summary)
	}
	return result, nil
}

// fetchSummary loads one message in metadata format and maps it onto the
// normalized summary shape.
func (c *Client) fetchSummary(ctx context.Context, id, threadID string) (*email.Message, error) {
	var raw *gmailapi.Message
	err := provider.Once(ctx, func() error {
		var callErr error
		raw, callErr = c.users.Messages.Get("me", id).
			Format("metadata").
			MetadataHeaders("Subject", "From", "To", "Cc", "Date").
			Context(ctx).
			Do()
		return c.wrap(callErr)
	})
	if err != nil {
		return nil, err
	}

	msg := &email.Message{
		ID:       id,
		ThreadID: threadID,
		Snippet:  raw.Snippet,
		LabelIDs: raw.LabelIds,
		Date:     time.UnixMilli(raw.InternalDate),
	}
	for _, label := range raw.LabelIds {
		if label == "UNREAD" {
			msg.Unread = true
			break
		}
	}
	if raw.Payload != nil {
		for _, h := range raw.Payload.Headers {
			switch h.Name {
			case "Subject":
				msg.Subject = h.Value
			case "From":
				msg.From = h.Value
			case "To":
				msg.To = splitAddresses(h.Value)
			case "Cc":
				msg.Cc = splitAddresses(h.Value)
			}
		}
		msg.HasAttachments = payloadHasAttachments(raw.Payload)
	}
	return msg, nil
}

// GetMessage fetches the raw message and decodes it into the normalized
// model with the body populated.
func (c *Client) GetMessage(ctx context.Context, id string) (*email.Message, error) {
	var raw *gmailapi.Message
	err := provider.Once(ctx, func() error {
		var callErr error
		raw, callErr = c.users.Messages.Get("me", id).Format("raw").Context(ctx).Do()
		return c.wrap(callErr)
	})
	if err != nil {
		return nil, err
	}
	return c.decodeRaw(raw)
}

// decodeRaw turns a raw-format Gmail message into the normalized model.
func (c *Client) decodeRaw(raw *gmailapi.Message) (*email.Message, error) {
	blob, err := decodeBase64URL(raw.Raw)
	if err != nil {
		return nil, &apperr.MimeError{Reason: fmt.Sprintf("decode raw message %s: %v", raw.Id, err)}
	}
	msg, err := mime.Parse(blob)
	if err != nil {
		return nil, err
	}
	msg.ID = raw.Id
	msg.ThreadID = raw.ThreadId
	msg.Snippet = raw.Snippet
	msg.LabelIDs = raw.LabelIds
	if raw.InternalDate > 0 {
		msg.Date = time.UnixMilli(raw.InternalDate)
	}
	for _, label := range raw.LabelIds {
		if label == "UNREAD" {
			msg.Unread = true
			break
		}
	}
	return msg, nil
}

// GetThread fetches every message of a thread in raw format and returns them
// in chronological order.
func (c *Client) GetThread(ctx context.Context, id string) ([]email.Message, error) {
	var thread *gmailapi.Thread
	err := provider.Once(ctx, func() error {
		var callErr error
		thread, callErr = c.users.Threads.Get("me", id).Format("minimal").Context(ctx).Do()
		return c.wrap(callErr)
	})
	if err != nil {
		return nil, err
	}

	messages := make([]email.Message, 0, len(thread.Messages))
	for _, ref := range thread.Messages {
		msg, err := c.GetMessage(ctx, ref.Id)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].Date.Before(messages[j].Date)
	})
	return messages, nil
}

// ListLabels returns the account's labels mapped onto the shared model.
func (c *Client) ListLabels(ctx context.Context) ([]email.Label, error) {
	var resp *gmailapi.ListLabelsResponse
	err := provider.Once(ctx, func() error {
		var callErr error
		resp, callErr = c.users.Labels.List("me").Context(ctx).Do()
		return c.wrap(callErr)
	})
	if err != nil {
		return nil, err
	}

	labels := make([]email.Label, 0, len(resp.Labels))
	seen := make(map[string]bool, len(resp.Labels))
	for _, l := range resp.Labels {
		if seen[l.Id] {
			continue
		}
		seen[l.Id] = true
		labels = append(labels, labelmap.FromGmailLabel(l.Id, l.Name, l.Type))
	}
	return labels, nil
}

// ModifyLabels applies a batch label mutation. Pseudo-labels are translated
// into Gmail's native semantics first: archive removes INBOX, delete adds
// TRASH. Retried once on a transient failure.
func (c *Client) ModifyLabels(ctx context.Context, req provider.ModifyRequest) error {
	add, remove := labelmap.GmailModify(req.AddIDs, req.RemoveIDs)
	return provider.Once(ctx, func() error {
		err := c.users.Messages.BatchModify("me", &gmailapi.BatchModifyMessagesRequest{
			Ids:            req.IDs,
			AddLabelIds:    add,
			RemoveLabelIds: remove,
		}).Context(ctx).Do()
		return c.wrap(err)
	})
}

// GetProfile returns the account identity. The OpenID userinfo endpoint
// supplies name and avatar; the Gmail profile is the fallback when the
// token lacks the userinfo scope.
func (c *Client) GetProfile(ctx context.Context) (*email.Profile, error) {
	if c.userinfo != nil {
		info, err := c.userinfo.Get().Context(ctx).Do()
		if err == nil {
			return &email.Profile{Email: info.Email, Name: info.Name, Picture: info.Picture}, nil
		}
	}

	var prof *gmailapi.Profile
	err := provider.Once(ctx, func() error {
		var callErr error
		prof, callErr = c.users.GetProfile("me").Context(ctx).Do()
		return c.wrap(callErr)
	})
	if err != nil {
		return nil, err
	}
	return &email.Profile{Email: prof.EmailAddress}, nil
}

// GetAttachment re-fetches the raw message and returns the named
// attachment's bytes.
func (c *Client) GetAttachment(ctx context.Context, messageID, attachmentID string) (*email.AttachmentData, error) {
	var raw *gmailapi.Message
	err := provider.Once(ctx, func() error {
		var callErr error
		raw, callErr = c.users.Messages.Get("me", messageID).Format("raw").Context(ctx).Do()
		return c.wrap(callErr)
	})
	if err != nil {
		return nil, err
	}

	blob, err := decodeBase64URL(raw.Raw)
	if err != nil {
		return nil, &apperr.MimeError{Reason: fmt.Sprintf("decode raw message %s: %v", messageID, err)}
	}
	data, err := mime.ExtractAttachment(blob, attachmentID)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Send delivers a composed message as a base64url-encoded raw blob. Never
// retried: at most one send per request. Gmail requires a From header on raw
// submissions, so an unset sender is resolved from the account profile.
func (c *Client) Send(ctx context.Context, out *email.Outgoing) (string, error) {
	if out.From == "" {
		prof, err := c.GetProfile(ctx)
		if err != nil {
			return "", err
		}
		out.From = prof.Email
	}

	blob, err := mime.EncodeRaw(out)
	if err != nil {
		return "", err
	}

	sent, err := c.users.Messages.Send("me", &gmailapi.Message{
		Raw:      base64.RawURLEncoding.EncodeToString(blob),
		ThreadId: out.ThreadID,
	}).Context(ctx).Do()
	if err != nil {
		return "", c.wrap(err)
	}
	return sent.Id, nil
}

// wrap classifies a Gmail API error into the shared taxonomy.
func (c *Client) wrap(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &apperr.UpstreamError{Backend: "gmail", StatusCode: gerr.Code, Message: gerr.Message}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &apperr.TimeoutError{Backend: "gmail"}
	}
	return &apperr.UpstreamError{Backend: "gmail", Message: err.Error()}
}

// decodeBase64URL decodes Gmail's base64url blobs, tolerating both padded
// and unpadded forms.
func decodeBase64URL(data string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
}

// payloadHasAttachments walks the payload tree looking for a part that
// carries a filename.
func payloadHasAttachments(payload *gmailapi.MessagePart) bool {
	if payload.Filename != "" {
		return true
	}
	for _, part := range payload.Parts {
		if payloadHasAttachments(part) {
			return true
		}
	}
	return false
}

// splitAddresses splits a raw recipient header into individual addresses.
func splitAddresses(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
