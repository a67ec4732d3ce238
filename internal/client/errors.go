package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies transport faults at the API boundary.
type ErrorKind string

const (
	// KindNetwork means no response was received; retryable.
	KindNetwork ErrorKind = "network_error"
	// KindAPI means the server responded with an error status; retryable
	// only for 502/503/504.
	KindAPI ErrorKind = "api_error"
	// KindParse means a response or push message could not be decoded.
	KindParse ErrorKind = "parse_error"
	// KindTimeout means the absolute polling ceiling was exceeded.
	KindTimeout ErrorKind = "timeout_error"
	// KindSessionNotFound is a terminal 404 on status/results.
	KindSessionNotFound ErrorKind = "session_not_found"
	// KindReconnectExhausted means the push channel gave up reconnecting;
	// non-fatal because polling remains authoritative.
	KindReconnectExhausted ErrorKind = "reconnect_exhausted"
)

// Error is the classified form of every fault surfaced by this package.
type Error struct {
	Kind    ErrorKind
	Status  int // HTTP status when Kind is KindAPI or KindSessionNotFound
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the fault is worth retrying internally.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork:
		return true
	case KindAPI:
		return e.Status == http.StatusBadGateway ||
			e.Status == http.StatusServiceUnavailable ||
			e.Status == http.StatusGatewayTimeout
	default:
		return false
	}
}

// IsSessionNotFound reports whether err is the terminal not-found signal.
func IsSessionNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindSessionNotFound
}

// statusMessage maps well-known statuses to user-facing messages; falls back
// to whatever the server said.
func statusMessage(status int, serverMsg string) string {
	switch status {
	case http.StatusInternalServerError:
		return "Server error occurred while processing your request"
	case http.StatusBadGateway:
		return "Server is temporarily unavailable"
	case http.StatusServiceUnavailable:
		return "Service temporarily unavailable"
	case http.StatusGatewayTimeout:
		return "Request timed out on the server"
	case http.StatusTooManyRequests:
		return "Too many requests. Please wait a moment before trying again"
	case http.StatusRequestEntityTooLarge:
		return "File too large. Please upload a smaller file"
	}
	if serverMsg != "" {
		return serverMsg
	}
	return "An error occurred"
}
