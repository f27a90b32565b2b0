package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dray-supadev/api-gmail/internal/apperr"
	"github.com/dray-supadev/api-gmail/internal/provider"
)

// Capabilities granted by the two proxy secrets. The admin key covers every
// route; the widget key is handed to browsers and grants reads only.
const (
	capabilityAdmin    = "admin"
	capabilityReadOnly = "read_only"
)

// contextKeyCapability stores the request capability in the gin context.
const contextKeyCapability = "capability"

// requestLogger assigns each request an id and logs method, path, status and
// duration on completion. Authorization material is never logged.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := uuid.NewString()
		c.Writer.Header().Set("X-Request-Id", requestID)

		c.Next()

		s.logger.Info("http request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// cors enforces the configured origin allow-list and short-circuits
// preflight requests.
func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && s.cfg.OriginAllowed(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Api-Key, X-Provider")
			c.Header("Access-Control-Max-Age", "600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// apiKeyAuth resolves the X-Api-Key header to a capability. The admin and
// widget keys are compared in constant time; an unknown or missing key
// rejects the request before any handler runs.
func (s *Server) apiKeyAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-Api-Key")
		switch {
		case key == "":
			s.abortWithError(c, apperr.Unauthorized("missing api key"))
		case secretEqual(key, s.cfg.Auth.AdminKey):
			c.Set(contextKeyCapability, capabilityAdmin)
			c.Next()
		case secretEqual(key, s.cfg.Auth.WidgetKey):
			c.Set(contextKeyCapability, capabilityReadOnly)
			c.Next()
		default:
			s.abortWithError(c, apperr.Unauthorized("unknown api key"))
		}
	}
}

// requireAdmin rejects requests whose key granted read-only capability.
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(contextKeyCapability) != capabilityAdmin {
			s.abortWithError(c, apperr.Forbidden("admin key required"))
			return
		}
		c.Next()
	}
}

// secretEqual compares a candidate against a configured secret in constant
// time. An empty configured secret never matches.
func secretEqual(candidate, secret string) bool {
	if secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(secret)) == 1
}

// backend resolves the request's provider selection and bearer token into a
// backend client. The token lives only for this request.
func (s *Server) backend(c *gin.Context) (provider.Client, error) {
	raw := c.Query("provider")
	if raw == "" {
		raw = c.GetHeader("X-Provider")
	}
	kind, err := provider.ParseKind(raw)
	if err != nil {
		return nil, err
	}

	token := bearerToken(c)
	if token == "" && kind != provider.KindSES {
		return nil, apperr.Unauthorized("no account connected")
	}
	return s.newClient(c.Request.Context(), kind, token)
}

// bearerToken extracts the forwarded OAuth token from the Authorization
// header.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// renderError maps a taxonomy error onto the JSON error shape.
func (s *Server) renderError(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), gin.H{
		"error": err.Error(),
		"code":  apperr.Code(err),
	})
}

// abortWithError renders the error and stops the handler chain.
func (s *Server) abortWithError(c *gin.Context, err error) {
	s.renderError(c, err)
	c.Abort()
}
