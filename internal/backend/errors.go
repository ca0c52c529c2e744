package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Error codes carried by ClientError. The HTTP surface maps these back onto
// response status codes; mid-stream they travel inside error frames.
const (
	CodeBadRequest      = "bad_request"
	CodeUnauthorized    = "unauthorized"
	CodeNotFound        = "not_found"
	CodeContentTooLarge = "content_too_large"
	CodeRateLimited     = "rate_limited"
	CodeUpstreamError   = "upstream_error"
)

// ClientError is a backend rejection that should surface to the caller with
// its own status code rather than as an opaque internal failure.
type ClientError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("backend error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// NewClientError builds a ClientError with the canonical code for the status.
func NewClientError(status int, message string) *ClientError {
	return &ClientError{StatusCode: status, Code: codeForStatus(status), Message: message}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return CodeBadRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return CodeUnauthorized
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusRequestEntityTooLarge:
		return CodeContentTooLarge
	case http.StatusTooManyRequests:
		return CodeRateLimited
	default:
		return CodeUpstreamError
	}
}

// providerError covers the error body shapes of both families:
// {"error":{"message":...,"type":...}} with type either a string (OpenAI)
// or nested under an Anthropic error object.
type providerError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// statusError converts a non-2xx backend response body into a ClientError,
// extracting the provider's error message when the body parses.
func statusError(status int, body []byte) *ClientError {
	message := strings.TrimSpace(string(body))
	var parsed providerError
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		message = parsed.Error.Message
	}
	if message == "" {
		message = http.StatusText(status)
	}

	ce := NewClientError(status, message)
	if parsed.Error.Type != "" {
		ce.Details = map[string]any{"type": parsed.Error.Type}
	}
	return ce
}
