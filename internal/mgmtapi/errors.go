package mgmtapi

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrClientClosed is returned by every request issued after Close.
var ErrClientClosed = errors.New("mgmtapi: client closed")

// ErrorKind distinguishes why a remote call failed.
type ErrorKind int

const (
	// KindStatus means the server answered with an HTTP error status.
	KindStatus ErrorKind = iota
	// KindNetwork means the request never completed at the transport level.
	KindNetwork
	// KindTimeout means the per-request timeout or the caller's deadline expired.
	KindTimeout
	// KindCanceled means the caller cancelled the context.
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// APIError is a remote call failure after the client's bounded recovery.
// Message is always one of a fixed set of strings; server response bodies
// are never copied into it.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("%s (Status: %d)", e.Message, e.StatusCode)
	}
	return e.Message
}

func newStatusError(code int) *APIError {
	return &APIError{Kind: KindStatus, StatusCode: code, Message: statusMessage(code)}
}

func newKindError(kind ErrorKind) *APIError {
	switch kind {
	case KindNetwork:
		return &APIError{Kind: kind, Message: "Network connection failed"}
	case KindTimeout:
		return &APIError{Kind: kind, Message: "Request timeout"}
	case KindCanceled:
		return &APIError{Kind: kind, Message: "Request cancelled"}
	default:
		return &APIError{Kind: kind, Message: "Request failed"}
	}
}

// statusMessage maps an HTTP status to a caller-safe message.
func statusMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "Bad request - invalid parameters"
	case http.StatusUnauthorized:
		return "Authentication failed"
	case http.StatusForbidden:
		return "Access denied - insufficient permissions"
	case http.StatusNotFound:
		return "Resource not found"
	case http.StatusConflict:
		return "Conflict - resource already exists"
	case http.StatusUnprocessableEntity:
		return "Validation error"
	case http.StatusTooManyRequests:
		return "Rate limit exceeded"
	case http.StatusInternalServerError:
		return "Internal server error"
	case http.StatusBadGateway:
		return "Bad gateway"
	case http.StatusServiceUnavailable:
		return "Service unavailable"
	default:
		return "Request failed"
	}
}

func asAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsTimeout reports whether err is a request timeout.
func IsTimeout(err error) bool {
	e, ok := asAPIError(err)
	return ok && e.Kind == KindTimeout
}

// IsNetwork reports whether err is a transport-level connection failure.
func IsNetwork(err error) bool {
	e, ok := asAPIError(err)
	return ok && e.Kind == KindNetwork
}

// IsCanceled reports whether err stems from caller cancellation.
func IsCanceled(err error) bool {
	e, ok := asAPIError(err)
	return ok && e.Kind == KindCanceled
}

// IsRateLimited reports whether the server kept throttling after the retry.
func IsRateLimited(err error) bool {
	e, ok := asAPIError(err)
	return ok && e.Kind == KindStatus && e.StatusCode == http.StatusTooManyRequests
}

// IsRetriable reports whether a caller may reasonably try the same call
// again later: network failures, timeouts, throttling and 5xx responses.
func IsRetriable(err error) bool {
	e, ok := asAPIError(err)
	if !ok {
		return false
	}
	switch e.Kind {
	case KindNetwork, KindTimeout:
		return true
	case KindStatus:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
	default:
		return false
	}
}
