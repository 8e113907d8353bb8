package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind identifies the failure class of a provider call. Kinds are
// stable strings so they can travel inside stream error events.
type ErrorKind string

const (
	ErrAuthenticationFailure ErrorKind = "authentication_failure"
	ErrRateLimitOrQuota      ErrorKind = "rate_limit_or_quota"
	ErrNetworkOrTimeout      ErrorKind = "network_or_timeout"
	ErrMalformedResponse     ErrorKind = "malformed_response"
	ErrPromptNotFound        ErrorKind = "prompt_not_found"
)

// ProviderError is the structured error surfaced by every provider
// client. Message is safe to show to callers: it never contains
// credentials or raw response bodies.
type ProviderError struct {
	Kind       ErrorKind
	Message    string
	Code       string
	HTTPStatus int
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewProviderError builds a ProviderError with the given kind and message.
func NewProviderError(kind ErrorKind, message string) *ProviderError {
	return &ProviderError{Kind: kind, Message: message}
}

// AsProviderError unwraps err into a *ProviderError if one is present.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// ClassifyHTTPStatus maps an upstream HTTP status to the error taxonomy.
// The provider name is included in the message so callers can tell which
// backend failed; the upstream body is deliberately not included.
func ClassifyHTTPStatus(provider string, status int) *ProviderError {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &ProviderError{
			Kind:       ErrAuthenticationFailure,
			Message:    fmt.Sprintf("%s rejected the configured credentials", provider),
			HTTPStatus: status,
		}
	case status == http.StatusTooManyRequests || status == http.StatusPaymentRequired:
		return &ProviderError{
			Kind:       ErrRateLimitOrQuota,
			Message:    fmt.Sprintf("%s signaled throttling or exhausted quota", provider),
			HTTPStatus: status,
		}
	case status >= 500:
		return &ProviderError{
			Kind:       ErrNetworkOrTimeout,
			Message:    fmt.Sprintf("%s returned server error %d", provider, status),
			HTTPStatus: status,
		}
	default:
		return &ProviderError{
			Kind:       ErrMalformedResponse,
			Message:    fmt.Sprintf("%s returned unexpected status %d", provider, status),
			HTTPStatus: status,
		}
	}
}

// ClassifyTransportError maps a transport-level failure (no HTTP response
// at all) to the error taxonomy.
func ClassifyTransportError(provider string, err error) *ProviderError {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ProviderError{
			Kind:    ErrNetworkOrTimeout,
			Message: fmt.Sprintf("%s call exceeded its timeout", provider),
		}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &ProviderError{
			Kind:    ErrNetworkOrTimeout,
			Message: fmt.Sprintf("%s call timed out", provider),
		}
	default:
		return &ProviderError{
			Kind:    ErrNetworkOrTimeout,
			Message: fmt.Sprintf("no response received from %s", provider),
		}
	}
}
