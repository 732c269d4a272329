package models

import (
	"net/http"
	"time"
)

// EndpointClass partitions the request budget. Reads and writes are
// counted against separate windows so a polling client cannot starve its
// own commitments.
type EndpointClass string

const (
	ClassRead  EndpointClass = "read"
	ClassWrite EndpointClass = "write"
)

// ClassOf classifies a request by method.
func ClassOf(method string) EndpointClass {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ClassRead
	default:
		return ClassWrite
	}
}

// Limit is a sliding-window budget.
type Limit struct {
	RequestsPerWindow int
	Window            time.Duration
}

// RateLimitResult represents the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	// RetryAfter is in seconds and only set when not allowed.
	RetryAfter int `json:"retry_after,omitempty"`
}

type RateLimitExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}

// NewPrincipalKey builds the bucket key for a principal's class budget.
func NewPrincipalKey(principal string, class EndpointClass) string {
	return "ratelimit:principal:" + principal + ":" + string(class)
}
