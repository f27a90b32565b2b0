package api

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dray-supadev/api-gmail/internal/apperr"
	"github.com/dray-supadev/api-gmail/internal/email"
	"github.com/dray-supadev/api-gmail/internal/mime"
	"github.com/dray-supadev/api-gmail/internal/provider"
)

// handleListMessages serves GET /api/messages.
func (s *Server) handleListMessages(c *gin.Context) {
	client, err := s.backend(c)
	if err != nil {
		s.renderError(c, err)
		return
	}

	opts := provider.ListOptions{
		LabelID:   c.Query("label"),
		Query:     c.Query("q"),
		PageToken: c.Query("page_token"),
	}
	if raw := c.Query("max_results"); raw != "" {
		max, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || max <= 0 {
			s.renderError(c, apperr.Validation("max_results", "must be a positive integer"))
			return
		}
		opts.MaxResults = max
	}

	result, err := client.ListMessages(c.Request.Context(), opts)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleGetMessage serves GET /api/messages/:id.
func (s *Server) handleGetMessage(c *gin.Context) {
	client, err := s.backend(c)
	if err != nil {
		s.renderError(c, err)
		return
	}

	msg, err := client.GetMessage(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// handleGetThread serves GET /api/threads/:id.
func (s *Server) handleGetThread(c *gin.Context) {
	client, err := s.backend(c)
	if err != nil {
		s.renderError(c, err)
		return
	}

	messages, err := client.GetThread(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "messages": messages})
}

// handleListLabels serves GET /api/labels.
func (s *Server) handleListLabels(c *gin.Context) {
	client, err := s.backend(c)
	if err != nil {
		s.renderError(c, err)
		return
	}

	labels, err := client.ListLabels(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"labels": labels})
}

// handleProfile serves GET /api/profile.
func (s *Server) handleProfile(c *gin.Context) {
	client, err := s.backend(c)
	if err != nil {
		s.renderError(c, err)
		return
	}

	profile, err := client.GetProfile(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// handleGetAttachment serves GET /api/messages/:id/attachments/:attachmentID,
// streaming the attachment bytes.
func (s *Server) handleGetAttachment(c *gin.Context) {
	client, err := s.backend(c)
	if err != nil {
		s.renderError(c, err)
		return
	}

	data, err := client.GetAttachment(c.Request.Context(), c.Param("id"), c.Param("attachmentID"))
	if err != nil {
		s.renderError(c, err)
		return
	}

	contentType := data.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", data.Filename))
	c.Data(http.StatusOK, contentType, data.Content)
}

// sendRequest is the body of POST /api/messages/send.
type sendRequest struct {
	From        string           `json:"from"`
	To          []string         `json:"to"`
	Cc          []string         `json:"cc"`
	Subject     string           `json:"subject"`
	HtmlBody    string           `json:"html_body"`
	ThreadID    string           `json:"thread_id"`
	Attachments []sendAttachment `json:"attachments"`
}

// sendAttachment carries one attachment with base64 content.
type sendAttachment struct {
	Filename      string `json:"filename"`
	ContentType   string `json:"content_type"`
	ContentBase64 string `json:"content_base64"`
}

// handleSend serves POST /api/messages/send. The send is attempted exactly
// once; any failure is surfaced without retry.
func (s *Server) handleSend(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, apperr.Validation("body", err.Error()))
		return
	}

	client, err := s.backend(c)
	if err != nil {
		s.renderError(c, err)
		return
	}

	attachments := make([]email.Attachment, 0, len(req.Attachments))
	for i, att := range req.Attachments {
		content, err := base64.StdEncoding.DecodeString(att.ContentBase64)
		if err != nil {
			s.renderError(c, apperr.Validation(
				fmt.Sprintf("attachments[%d].content_base64", i), "malformed base64 content"))
			return
		}
		attachments = append(attachments, email.Attachment{
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Content:     content,
		})
	}

	out, err := mime.Compose(mime.ComposeRequest{
		From:        req.From,
		To:          req.To,
		Cc:          req.Cc,
		Subject:     req.Subject,
		HtmlBody:    req.HtmlBody,
		Attachments: attachments,
		ThreadID:    req.ThreadID,
	})
	if err != nil {
		s.renderError(c, err)
		return
	}

	messageID, err := client.Send(c.Request.Context(), out)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message_id":     messageID,
		"correlation_id": out.CorrelationID,
	})
}

// batchModifyRequest is the body of POST /api/labels/batch-modify.
type batchModifyRequest struct {
	IDs            []string `json:"ids"`
	AddLabelIDs    []string `json:"add_label_ids"`
	RemoveLabelIDs []string `json:"remove_label_ids"`
}

// handleBatchModify serves POST /api/labels/batch-modify.
func (s *Server) handleBatchModify(c *gin.Context) {
	var req batchModifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, apperr.Validation("body", err.Error()))
		return
	}
	if len(req.IDs) == 0 {
		s.renderError(c, apperr.Validation("ids", "at least one message id is required"))
		return
	}
	if len(req.AddLabelIDs) == 0 && len(req.RemoveLabelIDs) == 0 {
		s.renderError(c, apperr.Validation("add_label_ids", "nothing to modify"))
		return
	}

	client, err := s.backend(c)
	if err != nil {
		s.renderError(c, err)
		return
	}

	err = client.ModifyLabels(c.Request.Context(), provider.ModifyRequest{
		IDs:       req.IDs,
		AddIDs:    req.AddLabelIDs,
		RemoveIDs: req.RemoveLabelIDs,
	})
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"modified": len(req.IDs)})
}
