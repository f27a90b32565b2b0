package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dray-supadev/api-gmail/internal/apperr"
	"github.com/dray-supadev/api-gmail/internal/provider"
	"github.com/dray-supadev/api-gmail/internal/quote"
)

// previewRequest is the body of POST /api/quote/preview.
type previewRequest struct {
	QuoteID        string          `json:"quote_id"`
	Version        string          `json:"version"`
	ExportSettings json.RawMessage `json:"export_settings"`
}

// handleQuotePreview serves POST /api/quote/preview. Available to the
// read-only capability so the widget can show the rendered quote before an
// admin sends it.
func (s *Server) handleQuotePreview(c *gin.Context) {
	if s.workflow == nil {
		s.renderError(c, &apperr.UpstreamError{Backend: "workflow", Message: "no workflow engine configured"})
		return
	}

	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, apperr.Validation("body", err.Error()))
		return
	}
	if req.QuoteID == "" {
		s.renderError(c, apperr.Validation("quote_id", "required"))
		return
	}

	preview, err := s.workflow.Preview(c.Request.Context(), req.QuoteID, req.Version, req.ExportSettings)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

// handleQuoteSend serves POST /api/quote/send: the full preview, compose,
// attach, send, notify pipeline against the caller's selected backend.
func (s *Server) handleQuoteSend(c *gin.Context) {
	var req quote.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, apperr.Validation("body", err.Error()))
		return
	}

	client, err := s.backend(c)
	if err != nil {
		s.renderError(c, err)
		return
	}

	s.runQuoteSend(c, client, req)
}

// reminderPayload is the body the workflow engine posts to the reminder
// webhook. It keeps the engine's field names and authenticates through the
// keys field instead of the api-key header.
type reminderPayload struct {
	Keys          string   `json:"keys"`
	Platform      string   `json:"platform"`
	Content       string   `json:"content"`
	Subject       string   `json:"subject"`
	Recipients    []string `json:"recipients"`
	Cc            []string `json:"cc"`
	File          string   `json:"file"`
	FileName      string   `json:"file_name"`
	Identificator string   `json:"identificator"`
}

// handleReminderWebhook serves POST /api/webhook/reminder: a re-entry into
// the pipeline with pre-rendered content, so it starts at COMPOSE. Reminders
// run without a signed-in account; the platform defaults to the
// transactional backend.
func (s *Server) handleReminderWebhook(c *gin.Context) {
	var payload reminderPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		s.renderError(c, apperr.Validation("body", err.Error()))
		return
	}
	if !secretEqual(payload.Keys, s.cfg.Auth.AdminKey) {
		s.renderError(c, apperr.Unauthorized("invalid webhook key"))
		return
	}

	kind := provider.KindSES
	if payload.Platform != "" {
		parsed, err := provider.ParseKind(payload.Platform)
		if err != nil {
			s.renderError(c, err)
			return
		}
		kind = parsed
	}
	client, err := s.newClient(c.Request.Context(), kind, bearerToken(c))
	if err != nil {
		s.renderError(c, err)
		return
	}

	req := quote.Request{
		To:          payload.Recipients,
		Cc:          payload.Cc,
		Subject:     payload.Subject,
		HtmlBody:    payload.Content,
		PDFFilename: payload.FileName,
	}
	// The file reference is either a URL or embedded base64 content.
	if strings.HasPrefix(payload.File, "http") || strings.HasPrefix(payload.File, "//") {
		req.PDFURL = payload.File
	} else {
		req.PDFBase64 = payload.File
	}

	s.logger.Info("reminder webhook accepted",
		"identificator", payload.Identificator,
		"platform", string(kind),
	)
	s.runQuoteSend(c, client, req)
}

// runQuoteSend executes the pipeline and renders its result. A failed run
// reports both the taxonomy error and the step it failed at, so callers can
// tell "nothing was sent" from "sent but not recorded".
func (s *Server) runQuoteSend(c *gin.Context, client provider.Client, req quote.Request) {
	result, err := s.orchestrator.Send(c.Request.Context(), client, req)
	if err != nil {
		var oe *apperr.OrchestrationError
		if errors.As(err, &oe) {
			c.JSON(apperr.HTTPStatus(err), gin.H{
				"error":       err.Error(),
				"code":        apperr.Code(oe.Cause),
				"outcome":     result.Outcome,
				"failed_step": result.FailedStep,
			})
			return
		}
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
