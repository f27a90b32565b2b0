// Package workflow is the client for the external quote workflow engine. The
// engine renders quote previews and records sent notifications; this proxy
// authenticates to it with a server-side token, never with a caller's bearer
// token.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dray-supadev/api-gmail/internal/apperr"
)

// Client calls the workflow engine's HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a Client for the given engine endpoint.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// Preview is the rendered quote returned by the engine: the HTML email body
// plus an optional PDF reference, either embedded as base64 or as a URL to
// fetch.
type Preview struct {
	HTML      string `json:"html"`
	Subject   string `json:"subject"`
	PDFBase64 string `json:"pdf_base64"`
	PDFURL    string `json:"pdf_url"`
}

// previewRequest is the body of a preview call.
type previewRequest struct {
	QuoteID        string          `json:"quote_id"`
	Version        string          `json:"version,omitempty"`
	ExportSettings json.RawMessage `json:"export_settings,omitempty"`
}

// previewResponse wraps the engine's workflow response envelope.
type previewResponse struct {
	Response Preview `json:"response"`
}

// notifyRequest is the body of a sent-notification call.
type notifyRequest struct {
	QuoteID string `json:"quote_id"`
	Version string `json:"version,omitempty"`
}

// Preview renders a quote into an HTML email body. Never retried; the caller
// decides how a failure affects the larger operation.
func (c *Client) Preview(ctx context.Context, quoteID, version string, exportSettings json.RawMessage) (*Preview, error) {
	var resp previewResponse
	err := c.post(ctx, "/wf/quote-preview", previewRequest{
		QuoteID:        quoteID,
		Version:        version,
		ExportSettings: exportSettings,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Response.HTML == "" {
		return nil, &apperr.UpstreamError{Backend: "workflow", Message: "preview returned no html body"}
	}
	return &resp.Response, nil
}

// Notify records that a quote was sent. Never retried: the send already
// happened, and a duplicate notification is worse than a missing one that
// the caller can surface as a warning.
func (c *Client) Notify(ctx context.Context, quoteID, version string) error {
	return c.post(ctx, "/wf/quote-sent", notifyRequest{QuoteID: quoteID, Version: version}, nil)
}

// post performs one engine call and decodes the JSON response into out when
// out is non-nil.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &apperr.TimeoutError{Backend: "workflow"}
		}
		return &apperr.UpstreamError{Backend: "workflow", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return &apperr.UpstreamError{
			Backend:    "workflow",
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(raw)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &apperr.UpstreamError{Backend: "workflow", Message: fmt.Sprintf("malformed response: %v", err)}
	}
	return nil
}
