// Package errors provides a unified error model for the WAF engine,
// giving every phase boundary and the admin API a common structured
// error shape.
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of failure.
type ErrorCode string

const (
	// Policy denials.
	ErrCodeIPBlocked      ErrorCode = "POLICY_IP_BLOCKED"
	ErrCodeRateLimited    ErrorCode = "POLICY_RATE_LIMITED"
	ErrCodeBotBlocked     ErrorCode = "POLICY_BOT_BLOCKED"
	ErrCodeWAFBlocked     ErrorCode = "POLICY_WAF_BLOCKED"
	ErrCodeRouteNotFound  ErrorCode = "POLICY_ROUTE_NOT_FOUND"
	ErrCodeBodyTooLarge   ErrorCode = "CLIENT_BODY_TOO_LARGE"
	ErrCodeInvalidRequest ErrorCode = "CLIENT_INVALID_REQUEST"

	// Upstream errors.
	ErrCodeNoUpstream      ErrorCode = "UPSTREAM_UNAVAILABLE"
	ErrCodeUpstreamTimeout ErrorCode = "UPSTREAM_TIMEOUT"

	// Configuration errors.
	ErrCodeInvalidConfig ErrorCode = "CONFIG_INVALID"

	// Internal/engine errors.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// ServiceError is a structured error carrying an HTTP status and optional
// detail fields, used uniformly across the pipeline and the admin API.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails attaches a key/value pair and returns the same error for
// chaining.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New builds a ServiceError.
func New(code ErrorCode, message string, status int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status}
}

// Wrap builds a ServiceError around an underlying cause.
func Wrap(code ErrorCode, message string, status int, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// IPBlocked reports a reputation-engine block.
func IPBlocked(ip string) *ServiceError {
	return New(ErrCodeIPBlocked, "client IP is on the reputation blocklist", http.StatusForbidden).
		WithDetails("client_ip", ip).WithDetails("reason", "ip_blocked")
}

// RateLimited reports a rate-limit denial.
func RateLimited(key string, retryAfterSecs int) *ServiceError {
	return New(ErrCodeRateLimited, "rate limit exceeded", http.StatusTooManyRequests).
		WithDetails("key", key).WithDetails("reason", "rate_limited").
		WithDetails("retry_after_secs", retryAfterSecs)
}

// BotBlocked reports a bot-detector block.
func BotBlocked(score float64) *ServiceError {
	return New(ErrCodeBotBlocked, "request classified as bot traffic", http.StatusForbidden).
		WithDetails("score", score).WithDetails("reason", "bot")
}

// WAFBlocked reports a WAF interruption.
func WAFBlocked(status int, ruleID string) *ServiceError {
	if status <= 0 {
		status = http.StatusForbidden
	}
	e := New(ErrCodeWAFBlocked, "request blocked by WAF rule", status).
		WithDetails("reason", "waf_blocked")
	if ruleID != "" {
		e = e.WithDetails("rule_id", ruleID)
	}
	return e
}

// RouteNotFound reports no route match.
func RouteNotFound(host, path string) *ServiceError {
	return New(ErrCodeRouteNotFound, "no route matches the request", http.StatusNotFound).
		WithDetails("host", host).WithDetails("path", path)
}

// BodyTooLarge reports a request body exceeding the configured limit.
func BodyTooLarge(limit int64) *ServiceError {
	return New(ErrCodeBodyTooLarge, "request body exceeds configured limit", http.StatusRequestEntityTooLarge).
		WithDetails("limit_bytes", limit)
}

// NoUpstream reports an upstream with no viable server.
func NoUpstream(name string) *ServiceError {
	return New(ErrCodeNoUpstream, "no viable upstream server", http.StatusBadGateway).
		WithDetails("upstream", name).WithDetails("reason", "upstream_unavailable")
}

// UpstreamTimeout reports an upstream connect/read timeout.
func UpstreamTimeout(name string) *ServiceError {
	return New(ErrCodeUpstreamTimeout, "upstream request timed out", http.StatusGatewayTimeout).
		WithDetails("upstream", name).WithDetails("reason", "upstream_timeout")
}

// InvalidConfig reports a rejected configuration reload.
func InvalidConfig(reason string) *ServiceError {
	return New(ErrCodeInvalidConfig, "configuration rejected", http.StatusBadRequest).
		WithDetails("reason", reason)
}

// Internal reports an unexpected internal failure as a 500 with reason
// "internal".
func Internal(err error) *ServiceError {
	return Wrap(ErrCodeInternal, "internal error", http.StatusInternalServerError, err).
		WithDetails("reason", "internal")
}
