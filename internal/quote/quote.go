// Package quote orchestrates the quote-send pipeline: render the quote with
// the workflow engine, merge the sender's comment, attach the PDF, deliver
// through the selected mail backend and notify the engine afterwards. The
// pipeline guarantees at most one send per request: every step before the
// send fails the whole operation without sending, and nothing after the
// send can trigger a second one.
package quote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/dray-supadev/api-gmail/internal/apperr"
	"github.com/dray-supadev/api-gmail/internal/email"
	"github.com/dray-supadev/api-gmail/internal/mime"
	"github.com/dray-supadev/api-gmail/internal/provider"
	"github.com/dray-supadev/api-gmail/internal/workflow"
)

// Pipeline step names, reported on failure so the caller can reason about
// duplicate-send risk: a failure at or before DELIVER means nothing was
// sent, a failure at SEND means the send itself did not complete.
const (
	StepPreview = "PREVIEW"
	StepCompose = "COMPOSE"
	StepDeliver = "DELIVER"
	StepSend    = "SEND"
	StepNotify  = "NOTIFY"
)

// Outcomes of a pipeline run.
const (
	OutcomeSent             = "sent"
	OutcomeSentNotifyFailed = "sent_notify_failed"
	OutcomeFailed           = "failed"
)

// Request carries one quote-send invocation. When HtmlBody is set the
// preview step is skipped; this is the re-entry path for callers that
// already rendered the quote.
type Request struct {
	QuoteID        string          `json:"quote_id"`
	Version        string          `json:"version"`
	From           string          `json:"from"`
	To             []string        `json:"to"`
	Cc             []string        `json:"cc"`
	Subject        string          `json:"subject"`
	Comment        string          `json:"comment"`
	HtmlBody       string          `json:"html_body"`
	PDFBase64      string          `json:"pdf_base64"`
	PDFURL         string          `json:"pdf_url"`
	PDFFilename    string          `json:"pdf_filename"`
	ExportSettings json.RawMessage `json:"export_settings"`
}

// Result is the outcome of one pipeline run. FailedStep is set only when
// Outcome is failed; Warning carries the notify failure detail when Outcome
// is sent_notify_failed.
type Result struct {
	Outcome           string `json:"outcome"`
	FailedStep        string `json:"failed_step,omitempty"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	CorrelationID     string `json:"correlation_id,omitempty"`
	Warning           string `json:"warning,omitempty"`
}

// Orchestrator runs the quote-send pipeline.
type Orchestrator struct {
	workflow   *workflow.Client
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates an Orchestrator. The workflow client may be nil when no engine
// is configured; preview-dependent requests then fail at PREVIEW.
func New(wf *workflow.Client, httpClient *http.Client, logger *slog.Logger) *Orchestrator {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{workflow: wf, httpClient: httpClient, logger: logger}
}

// Send runs the full pipeline against the given backend client. A non-nil
// error always comes with a failed Result naming the step; a sent message
// with a failed notification is not an error, it is the sent_notify_failed
// outcome with a warning.
func (o *Orchestrator) Send(ctx context.Context, client provider.Client, req Request) (*Result, error) {
	if len(req.To) == 0 {
		return o.fail(StepCompose, apperr.Validation("to", "at least one recipient is required"))
	}

	// PREVIEW
	htmlBody := req.HtmlBody
	subject := req.Subject
	if htmlBody == "" {
		if req.QuoteID == "" {
			return o.fail(StepPreview, apperr.Validation("quote_id", "required when html_body is not supplied"))
		}
		if o.workflow == nil {
			return o.fail(StepPreview, &apperr.UpstreamError{Backend: "workflow", Message: "no workflow engine configured"})
		}
		preview, err := o.workflow.Preview(ctx, req.QuoteID, req.Version, req.ExportSettings)
		if err != nil {
			return o.fail(StepPreview, err)
		}
		htmlBody = preview.HTML
		if subject == "" {
			subject = preview.Subject
		}
		if req.PDFBase64 == "" && req.PDFURL == "" {
			req.PDFBase64 = preview.PDFBase64
			req.PDFURL = preview.PDFURL
		}
	}

	// COMPOSE
	out, err := mime.Compose(mime.ComposeRequest{
		From:     req.From,
		To:       req.To,
		Cc:       req.Cc,
		Subject:  subject,
		HtmlBody: MergeComment(htmlBody, req.Comment),
	})
	if err != nil {
		return o.fail(StepCompose, err)
	}

	// DELIVER
	attachment, err := o.resolvePDF(ctx, req)
	if err != nil {
		return o.fail(StepDeliver, err)
	}
	if attachment != nil {
		out.Attachments = append(out.Attachments, *attachment)
	}

	logger := o.logger.With(
		"quote_id", req.QuoteID,
		"correlation_id", out.CorrelationID,
		"provider", client.Name(),
	)

	// SEND runs on a detached context: once the pipeline commits to
	// sending, a caller disconnect must not abort the send mid-flight and
	// leave the delivery state unknown.
	sendCtx := context.WithoutCancel(ctx)
	messageID, err := client.Send(sendCtx, out)
	if err != nil {
		logger.Error("quote send failed", "error", err)
		return o.fail(StepSend, err)
	}
	logger.Info("quote sent", "provider_message_id", messageID)

	result := &Result{
		Outcome:           OutcomeSent,
		ProviderMessageID: messageID,
		CorrelationID:     out.CorrelationID,
	}

	// NOTIFY failure never unsends the message, so it degrades the
	// outcome instead of failing the request.
	if o.workflow != nil && req.QuoteID != "" {
		if err := o.workflow.Notify(sendCtx, req.QuoteID, req.Version); err != nil {
			logger.Warn("sent notification failed", "error", err)
			result.Outcome = OutcomeSentNotifyFailed
			result.Warning = fmt.Sprintf("message sent but notification failed: %v", err)
		}
	}
	return result, nil
}

// fail builds the failed Result and its OrchestrationError.
func (o *Orchestrator) fail(step string, cause error) (*Result, error) {
	return &Result{Outcome: OutcomeFailed, FailedStep: step},
		&apperr.OrchestrationError{Step: step, Cause: cause}
}

// commentPlaceholderRe matches the comment placeholder in rendered quote
// HTML.
var commentPlaceholderRe = regexp.MustCompile(`\{\{\s*comment\s*\}\}`)

// MergeComment substitutes the sender's comment into the rendered quote
// body. The comment is HTML-escaped with line breaks preserved; an absent
// comment removes the placeholder so it can never leak into a sent message.
func MergeComment(htmlBody, comment string) string {
	if !commentPlaceholderRe.MatchString(htmlBody) {
		return htmlBody
	}
	if strings.TrimSpace(comment) == "" {
		return commentPlaceholderRe.ReplaceAllString(htmlBody, "")
	}
	escaped := strings.ReplaceAll(html.EscapeString(comment), "\n", "<br>")
	return commentPlaceholderRe.ReplaceAllString(htmlBody, escaped)
}

// defaultPDFName names the quote attachment when the caller does not.
const defaultPDFName = "quote.pdf"

// maxPDFBytes caps a fetched quote PDF.
const maxPDFBytes = 25 << 20

// resolvePDF materializes the quote PDF attachment from whichever source the
// request carries: embedded base64 (a data URI is tolerated) or a URL.
// Returns nil when the request has no PDF.
func (o *Orchestrator) resolvePDF(ctx context.Context, req Request) (*email.Attachment, error) {
	name := req.PDFFilename
	if name == "" {
		name = defaultPDFName
	}

	switch {
	case req.PDFBase64 != "":
		content, err := decodePDFBase64(req.PDFBase64)
		if err != nil {
			return nil, apperr.Validation("pdf_base64", err.Error())
		}
		return &email.Attachment{Filename: name, ContentType: "application/pdf", Content: content}, nil

	case req.PDFURL != "":
		content, err := o.fetchPDF(ctx, req.PDFURL)
		if err != nil {
			return nil, err
		}
		return &email.Attachment{Filename: name, ContentType: "application/pdf", Content: content}, nil
	}
	return nil, nil
}

// decodePDFBase64 decodes embedded PDF content, stripping a data-URI prefix
// when one is present.
func decodePDFBase64(data string) ([]byte, error) {
	if strings.HasPrefix(data, "data:") {
		idx := strings.Index(data, ";base64,")
		if idx < 0 {
			return nil, errors.New("data uri is not base64 encoded")
		}
		data = data[idx+len(";base64,"):]
	}
	content, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return nil, fmt.Errorf("malformed base64 content: %v", err)
	}
	return content, nil
}

// fetchPDF downloads the quote PDF. Scheme-relative URLs (the workflow
// engine emits these) are upgraded to https.
func (o *Orchestrator) fetchPDF(ctx context.Context, pdfURL string) ([]byte, error) {
	if strings.HasPrefix(pdfURL, "//") {
		pdfURL = "https:" + pdfURL
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return nil, apperr.Validation("pdf_url", fmt.Sprintf("malformed url: %v", err))
	}

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &apperr.TimeoutError{Backend: "pdf"}
		}
		return nil, &apperr.UpstreamError{Backend: "pdf", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &apperr.UpstreamError{
			Backend:    "pdf",
			StatusCode: resp.StatusCode,
			Message:    "pdf fetch failed",
		}
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes+1))
	if err != nil {
		return nil, &apperr.UpstreamError{Backend: "pdf", Message: err.Error()}
	}
	if len(content) > maxPDFBytes {
		return nil, apperr.Validation("pdf_url", "pdf exceeds the size limit")
	}
	return content, nil
}
