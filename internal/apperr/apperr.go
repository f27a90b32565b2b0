// Package apperr defines the error taxonomy shared across the proxy.
// Errors carry enough structure for the HTTP layer to pick a status code
// and for callers to distinguish safe-to-retry from must-not-retry failures.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// AuthError is a proxy-level authentication or authorization failure.
type AuthError struct {
	// Forbidden is true when the key was valid but the capability was
	// insufficient; false means the request was not authenticated at all.
	Forbidden bool
	Reason    string
}

func (e *AuthError) Error() string {
	if e.Forbidden {
		return "forbidden: " + e.Reason
	}
	return "unauthorized: " + e.Reason
}

// Unauthorized returns an AuthError for a request that failed authentication.
func Unauthorized(reason string) *AuthError {
	return &AuthError{Reason: reason}
}

// Forbidden returns an AuthError for an authenticated request without the
// required capability.
func Forbidden(reason string) *AuthError {
	return &AuthError{Forbidden: true, Reason: reason}
}

// ValidationError reports a malformed request field. It is always a caller
// mistake and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validation returns a ValidationError for the named field.
func Validation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError reports a missing resource, such as an archive folder that
// does not exist in the account's folder list.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

// NotFound returns a NotFoundError for the named resource.
func NotFound(resource string) *NotFoundError {
	return &NotFoundError{Resource: resource}
}

// CapabilityError reports an operation the selected backend cannot perform,
// e.g. listing messages on the send-only backend. Distinct from AuthError:
// the caller is allowed, the backend just has no such operation.
type CapabilityError struct {
	Provider string
	Op       string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s does not support %s", e.Provider, e.Op)
}

// MimeError reports a local composition or decoding failure. Never retried.
type MimeError struct {
	Reason string
}

func (e *MimeError) Error() string {
	return "mime: " + e.Reason
}

// TimeoutError reports an external call that exceeded the configured
// per-call timeout, distinct from an upstream-reported error.
type TimeoutError struct {
	Backend string
}

func (e *TimeoutError) Error() string {
	return e.Backend + " call timed out"
}

// UpstreamError reports a failure from a backend API. StatusCode zero means
// the backend was never reached (network failure).
type UpstreamError struct {
	Backend    string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s unreachable: %s", e.Backend, e.Message)
	}
	return fmt.Sprintf("%s error (HTTP %d): %s", e.Backend, e.StatusCode, e.Message)
}

// AuthExpired reports whether the backend rejected the forwarded bearer
// token. Retrying cannot fix this.
func (e *UpstreamError) AuthExpired() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// RateLimited reports backend throttling. Never auto-retried, to avoid
// amplifying the throttle.
func (e *UpstreamError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// OrchestrationError names the exact quote-workflow step that failed so the
// caller can reason about duplicate-send risk.
type OrchestrationError struct {
	Step  string
	Cause error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Cause)
}

func (e *OrchestrationError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether one retry is permitted for read-style
// operations: transient network failures, timeouts and backend 5xx only.
// Upstream 401 and 429 are explicitly not retryable.
func Retryable(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.StatusCode == 0 || ue.StatusCode >= 500
	}
	var te *TimeoutError
	return errors.As(err, &te)
}

// HTTPStatus maps an error from the taxonomy onto an HTTP response status.
func HTTPStatus(err error) int {
	var (
		ae *AuthError
		ve *ValidationError
		ne *NotFoundError
		ce *CapabilityError
		me *MimeError
		te *TimeoutError
		ue *UpstreamError
		oe *OrchestrationError
	)
	switch {
	case errors.As(err, &ae):
		if ae.Forbidden {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case errors.As(err, &ve), errors.As(err, &me):
		return http.StatusBadRequest
	case errors.As(err, &ne):
		return http.StatusNotFound
	case errors.As(err, &ce):
		return http.StatusUnprocessableEntity
	case errors.As(err, &te):
		return http.StatusGatewayTimeout
	case errors.As(err, &ue):
		switch {
		case ue.AuthExpired():
			return http.StatusUnauthorized
		case ue.RateLimited():
			return http.StatusTooManyRequests
		case ue.StatusCode == 0 || ue.StatusCode >= 500:
			return http.StatusBadGateway
		default:
			return ue.StatusCode
		}
	case errors.As(err, &oe):
		return HTTPStatus(oe.Cause)
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the stable machine-readable code for an error, used in JSON
// error bodies.
func Code(err error) string {
	var (
		ae *AuthError
		ve *ValidationError
		ne *NotFoundError
		ce *CapabilityError
		me *MimeError
		te *TimeoutError
		ue *UpstreamError
		oe *OrchestrationError
	)
	switch {
	case errors.As(err, &ae):
		if ae.Forbidden {
			return "forbidden"
		}
		return "unauthorized"
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &ne):
		return "not_found"
	case errors.As(err, &ce):
		return "capability"
	case errors.As(err, &me):
		return "mime"
	case errors.As(err, &te):
		return "timeout"
	case errors.As(err, &ue):
		switch {
		case ue.AuthExpired():
			return "upstream_auth"
		case ue.RateLimited():
			return "rate_limited"
		case ue.StatusCode == 0 || ue.StatusCode >= 500:
			return "upstream_unavailable"
		default:
			return "upstream"
		}
	case errors.As(err, &oe):
		return "orchestration"
	default:
		return "internal"
	}
}
