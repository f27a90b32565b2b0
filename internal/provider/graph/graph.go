package graph

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/dray-supadev/api-gmail/internal/apperr"
	"github.com/dray-supadev/api-gmail/internal/email"
	"github.com/dray-supadev/api-gmail/internal/labelmap"
	"github.com/dray-supadev/api-gmail/internal/provider"
)

// defaultBaseURL is the production Graph API endpoint.
const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// defaultMaxResults bounds listings when the caller does not ask for a size.
const defaultMaxResults = 20

// listSelect names the summary fields requested on listings.
const listSelect = "id,conversationId,subject,bodyPreview,receivedDateTime,isRead,hasAttachments,from,toRecipients,ccRecipients"

// getSelect extends the summary fields with the full body.
const getSelect = listSelect + ",body"

// Client talks to the Microsoft Graph API on behalf of one request's bearer
// token.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// New creates a Client that authenticates every call with the given bearer
// token.
func New(token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{token: token, baseURL: defaultBaseURL, httpClient: httpClient}
}

// newWithOverrides creates a Client with a custom base URL, used by tests to
// point the client at a fake API server.
func newWithOverrides(token, baseURL string, httpClient *http.Client) *Client {
	c := New(token, httpClient)
	c.baseURL = baseURL
	return c
}

// Name returns the backend name.
func (c *Client) Name() string {
	return "outlook"
}

// ListMessages lists message summaries, newest first. A free-text query is
// translated to Graph's $search on a best-effort basis; $search imposes its
// own relevance order, so explicit ordering is requested only without a
// query. The page token is the opaque continuation URL Graph returned with
// the previous page.
func (c *Client) ListMessages(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	endpoint := opts.PageToken
	if endpoint == "" {
		max := opts.MaxResults
		if max <= 0 {
			max = defaultMaxResults
		}
		params := url.Values{}
		params.Set("$select", listSelect)
		params.Set("$top", strconv.FormatInt(max, 10))
		if opts.Query != "" {
			params.Set("$search", strconv.Quote(opts.Query))
		} else {
			params.Set("$orderby", "receivedDateTime desc")
		}

		path := "/me/messages"
		if opts.LabelID != "" {
			path = "/me/mailFolders/" + url.PathEscape(opts.LabelID) + "/messages"
		}
		endpoint = c.baseURL + path + "?" + params.Encode()
	}

	var resp graphListResponse
	err := provider.Once(ctx, func() error {
		return c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	})
	if err != nil {
		return nil, err
	}

	result := &provider.ListResult{
		Messages:      make([]email.Message, 0, len(resp.Value)),
		NextPageToken: resp.NextLink,
	}
	for i := range resp.Value {
		result.Messages = append(result.Messages, resp.Value[i].toMessage())
	}
	return result, nil
}

// GetMessage fetches one message with its body and attachment metadata.
func (c *Client) GetMessage(ctx context.Context, id string) (*email.Message, error) {
	endpoint := c.baseURL + "/me/messages/" + url.PathEscape(id) + "?$select=" + url.QueryEscape(getSelect)

	var raw graphMessage
	err := provider.Once(ctx, func() error {
		return c.do(ctx, http.MethodGet, endpoint, nil, &raw)
	})
	if err != nil {
		return nil, err
	}

	msg := raw.toMessage()
	if msg.HasAttachments {
		refs, err := c.listAttachmentRefs(ctx, id)
		if err != nil {
			return nil, err
		}
		msg.Attachments = refs
		msg.HasAttachments = len(refs) > 0
	}
	return &msg, nil
}

// listAttachmentRefs returns the metadata of a message's true attachments.
// Inline parts belong to the rendered body and are excluded.
func (c *Client) listAttachmentRefs(ctx context.Context, messageID string) ([]email.AttachmentRef, error) {
	endpoint := c.baseURL + "/me/messages/" + url.PathEscape(messageID) +
		"/attachments?$select=" + url.QueryEscape("id,name,contentType,size,isInline")

	var resp graphAttachmentList
	err := provider.Once(ctx, func() error {
		return c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	})
	if err != nil {
		return nil, err
	}

	refs := make([]email.AttachmentRef, 0, len(resp.Value))
	for _, att := range resp.Value {
		if att.IsInline {
			continue
		}
		refs = append(refs, email.AttachmentRef{
			ID:          att.ID,
			Filename:    att.Name,
			ContentType: att.ContentType,
			Size:        att.Size,
		})
	}
	return refs, nil
}

// GetThread fetches every message of a conversation in chronological order.
func (c *Client) GetThread(ctx context.Context, id string) ([]email.Message, error) {
	params := url.Values{}
	params.Set("$select", "id")
	params.Set("$filter", fmt.Sprintf("conversationId eq '%s'", strings.ReplaceAll(id, "'", "''")))
	endpoint := c.baseURL + "/me/messages?" + params.Encode()

	var resp graphListResponse
	err := provider.Once(ctx, func() error {
		return c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	})
	if err != nil {
		return nil, err
	}

	messages := make([]email.Message, 0, len(resp.Value))
	for _, ref := range resp.Value {
		msg, err := c.GetMessage(ctx, ref.ID)
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

// ListLabels returns the account's mail folders mapped onto the shared Label
// model, following continuation links until the listing is complete.
func (c *Client) ListLabels(ctx context.Context) ([]email.Label, error) {
	endpoint := c.baseURL + "/me/mailFolders?$top=100"

	var labels []email.Label
	seen := make(map[string]bool)
	for endpoint != "" {
		var page graphFolderList
		err := provider.Once(ctx, func() error {
			return c.do(ctx, http.MethodGet, endpoint, nil, &page)
		})
		if err != nil {
			return nil, err
		}
		for _, f := range page.Value {
			if seen[f.ID] {
				continue
			}
			seen[f.ID] = true
			labels = append(labels, labelmap.FromGraphFolder(f.ID, f.DisplayName, false))
		}
		endpoint = page.NextLink
	}
	return labels, nil
}

// ModifyLabels applies a batch mutation by translating pseudo-labels into
// Outlook's native operations. Archive and delete become folder moves, which
// requires the destination folder to exist; when it does not, the whole
// request fails with NotFound before any message is touched. Read-state
// labels become isRead patches.
func (c *Client) ModifyLabels(ctx context.Context, req provider.ModifyRequest) error {
	var destinations []string
	markUnread := false
	for _, addID := range req.AddIDs {
		if addID == "UNREAD" {
			markUnread = true
			continue
		}
		folders, err := c.ListLabels(ctx)
		if err != nil {
			return err
		}
		dest, err := labelmap.ResolveGraphDestination(folders, addID)
		if err != nil {
			return err
		}
		destinations = append(destinations, dest)
	}

	markRead := false
	for _, removeID := range req.RemoveIDs {
		if removeID == "UNREAD" {
			markRead = true
		}
	}

	for _, id := range req.IDs {
		if markRead || markUnread {
			endpoint := c.baseURL + "/me/messages/" + url.PathEscape(id)
			body := patchReadRequest{IsRead: markRead}
			err := provider.Once(ctx, func() error {
				return c.do(ctx, http.MethodPatch, endpoint, body, nil)
			})
			if err != nil {
				return err
			}
		}
		for _, dest := range destinations {
			endpoint := c.baseURL + "/me/messages/" + url.PathEscape(id) + "/move"
			body := moveRequest{DestinationID: dest}
			err := provider.Once(ctx, func() error {
				return c.do(ctx, http.MethodPost, endpoint, body, nil)
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// GetProfile returns the signed-in account identity.
func (c *Client) GetProfile(ctx context.Context) (*email.Profile, error) {
	endpoint := c.baseURL + "/me?$select=" + url.QueryEscape("displayName,mail,userPrincipalName")

	var raw graphProfile
	err := provider.Once(ctx, func() error {
		return c.do(ctx, http.MethodGet, endpoint, nil, &raw)
	})
	if err != nil {
		return nil, err
	}

	address := raw.Mail
	if address == "" {
		address = raw.UserPrincipalName
	}
	return &email.Profile{Email: address, Name: raw.DisplayName}, nil
}

// GetAttachment fetches one attachment's bytes.
func (c *Client) GetAttachment(ctx context.Context, messageID, attachmentID string) (*email.AttachmentData, error) {
	endpoint := c.baseURL + "/me/messages/" + url.PathEscape(messageID) +
		"/attachments/" + url.PathEscape(attachmentID)

	var raw graphAttachmentItem
	err := provider.Once(ctx, func() error {
		return c.do(ctx, http.MethodGet, endpoint, nil, &raw)
	})
	if err != nil {
		return nil, err
	}

	content, err := base64.StdEncoding.DecodeString(raw.ContentBytes)
	if err != nil {
		return nil, &apperr.MimeError{Reason: fmt.Sprintf("decode attachment %s: %v", attachmentID, err)}
	}
	return &email.AttachmentData{
		Filename:    raw.Name,
		ContentType: raw.ContentType,
		Content:     content,
	}, nil
}

// Send delivers a composed message via the sendMail endpoint. Never retried:
// at most one send per request. Graph assigns no retrievable message id on
// this endpoint, so the returned id is empty.
func (c *Client) Send(ctx context.Context, out *email.Outgoing) (string, error) {
	endpoint := c.baseURL + "/me/sendMail"
	err := c.do(ctx, http.MethodPost, endpoint, buildSendMailRequest(out), nil)
	if err != nil {
		return "", err
	}
	return "", nil
}

// do performs one Graph API call with the forwarded bearer token and decodes
// the JSON response into out when out is non-nil. Errors are classified into
// the shared taxonomy.
func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &apperr.TimeoutError{Backend: "outlook"}
		}
		return &apperr.UpstreamError{Backend: "outlook", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return classifyError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &apperr.UpstreamError{
			Backend: "outlook",
			Message: fmt.Sprintf("malformed response: %v", err),
		}
	}
	return nil
}

// classifyError turns a Graph error response into an UpstreamError carrying
// the upstream status and message.
func classifyError(resp *http.Response) error {
	payload, _ := io.ReadAll(resp.Body)

	message := strings.TrimSpace(string(payload))
	var graphErrResp graphErrorResponse
	if err := json.Unmarshal(payload, &graphErrResp); err == nil && graphErrResp.Error.Message != "" {
		message = graphErrResp.Error.Message
	}

	return &apperr.UpstreamError{
		Backend:    "outlook",
		StatusCode: resp.StatusCode,
		Message:    message,
	}
}
