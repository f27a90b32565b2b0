// Package api is the HTTP surface of the mail proxy: the unified mailbox
// routes, the quote pipeline routes and the reminder webhook.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dray-supadev/api-gmail/internal/config"
	"github.com/dray-supadev/api-gmail/internal/provider"
	"github.com/dray-supadev/api-gmail/internal/quote"
	"github.com/dray-supadev/api-gmail/internal/workflow"
)

// Server wires the HTTP routes to the providers and the quote pipeline.
type Server struct {
	cfg          *config.Config
	logger       *slog.Logger
	newClient    provider.Factory
	orchestrator *quote.Orchestrator
	workflow     *workflow.Client
}

// New creates a Server. The workflow client may be nil when no engine is
// configured; the quote routes then answer accordingly.
func New(cfg *config.Config, logger *slog.Logger, factory provider.Factory, orchestrator *quote.Orchestrator, wf *workflow.Client) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:          cfg,
		logger:       logger,
		newClient:    factory,
		orchestrator: orchestrator,
		workflow:     wf,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), s.cors())

	r.GET("/health", s.handleHealth)

	// The reminder webhook authenticates through its payload, not the
	// api-key header, so it sits outside the authenticated group.
	r.POST("/api/webhook/reminder", s.handleReminderWebhook)

	api := r.Group("/api", s.apiKeyAuth())
	{
		api.GET("/config", s.handleClientConfig)
		api.GET("/profile", s.handleProfile)
		api.GET("/messages", s.handleListMessages)
		api.GET("/messages/:id", s.handleGetMessage)
		api.GET("/messages/:id/attachments/:attachmentID", s.handleGetAttachment)
		api.GET("/threads/:id", s.handleGetThread)
		api.GET("/labels", s.handleListLabels)
		api.POST("/quote/preview", s.handleQuotePreview)

		admin := api.Group("", s.requireAdmin())
		{
			admin.POST("/messages/send", s.handleSend)
			admin.POST("/labels/batch-modify", s.handleBatchModify)
			admin.POST("/quote/send", s.handleQuoteSend)
		}
	}

	return r
}

// handleHealth answers liveness probes.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleClientConfig exposes the OAuth client identifiers the embedded
// widget needs to start a token flow. The proxy itself never takes part in
// that flow.
func (s *Server) handleClientConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"gmail_client_id": s.cfg.OAuth.GmailClientID,
		"graph_client_id": s.cfg.OAuth.GraphClientID,
	})
}
