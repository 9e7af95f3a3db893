package quillsign

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors for errors.Is() checks.
var (
	// ErrCircuitOpen is returned when a call is rejected by an open circuit
	// breaker before any network I/O is attempted.
	ErrCircuitOpen = errors.New("quillsign: circuit open")

	// ErrSessionExpired is returned when the credential session is terminally
	// expired or revoked; the caller must re-authenticate (new login, or a new
	// signing URL for signer sessions).
	ErrSessionExpired = errors.New("quillsign: session expired, re-authenticate")

	// ErrNotAuthenticated is returned when no credentials were configured.
	ErrNotAuthenticated = errors.New("quillsign: no credentials configured")
)

// ErrorKind is the discrete classification of an API failure. Every failure
// the SDK surfaces carries exactly one kind; downstream components never
// re-inspect raw HTTP status codes.
type ErrorKind string

const (
	ErrorKindValidation     ErrorKind = "validation"
	ErrorKindAuthentication ErrorKind = "authentication"
	ErrorKindAuthorization  ErrorKind = "authorization"
	ErrorKindNotFound       ErrorKind = "not_found"
	ErrorKindRateLimit      ErrorKind = "rate_limit"
	ErrorKindServer         ErrorKind = "server"
	ErrorKindNetwork        ErrorKind = "network"
	ErrorKindUnknown        ErrorKind = "unknown"
)

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RateLimitInfo carries the server-declared rate limit state parsed from
// the response headers of a 429.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	// Reset is the instant the current window ends. Zero when the server did
	// not declare one.
	Reset time.Time
}

// APIError is the structured error produced for every transport or
// HTTP-level failure. Immutable once constructed.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Code       string
	Message    string
	Fields     []FieldError
	RateLimit  *RateLimitInfo
	Method     string
	Path       string
	Cause      error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("quillsign: %s: %s", e.Kind, e.Message)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Method != "" && e.Path != "" {
		msg = fmt.Sprintf("%s [%s %s]", msg, e.Method, e.Path)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches APIErrors by kind for errors.Is.
func (e *APIError) Is(target error) bool {
	if e == nil {
		return false
	}
	if t, ok := target.(*APIError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Retryable reports whether the failure is transient. It is a pure function
// of the kind and is the single retry gate used by the retry policy.
func (e *APIError) Retryable() bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case ErrorKindNetwork, ErrorKindServer, ErrorKindRateLimit:
		return true
	default:
		return false
	}
}

// kindForStatus maps an HTTP status to an error kind.
func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return ErrorKindValidation
	case status == http.StatusUnauthorized:
		return ErrorKindAuthentication
	case status == http.StatusForbidden:
		return ErrorKindAuthorization
	case status == http.StatusNotFound:
		return ErrorKindNotFound
	case status == http.StatusTooManyRequests:
		return ErrorKindRateLimit
	case status >= 500 && status <= 599:
		return ErrorKindServer
	default:
		return ErrorKindUnknown
	}
}

// errorBody is the wire shape of QuillSign error responses.
type errorBody struct {
	Code    string       `json:"code"`
	Error   string       `json:"error"`
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors"`
}

// classify converts a transport error or a non-2xx response into exactly one
// APIError. Either resp or err must be non-nil.
func classify(method, path string, resp *http.Response, body []byte, err error) *APIError {
	if err != nil {
		return &APIError{
			Kind:    ErrorKindNetwork,
			Message: "request failed",
			Method:  method,
			Path:    path,
			Cause:   err,
		}
	}

	apiErr := &APIError{
		Kind:       kindForStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
		Method:     method,
		Path:       path,
	}

	var wire errorBody
	if len(body) > 0 && json.Unmarshal(body, &wire) == nil {
		switch {
		case wire.Message != "":
			apiErr.Message = wire.Message
		case wire.Error != "":
			apiErr.Message = wire.Error
		}
		apiErr.Code = wire.Code
		if apiErr.Kind == ErrorKindValidation {
			apiErr.Fields = wire.Errors
		}
	}

	if apiErr.Kind == ErrorKindRateLimit {
		apiErr.RateLimit = parseRateLimit(resp.Header, time.Now())
	}

	return apiErr
}

// parseRateLimit extracts numeric rate limit values from response headers.
// Header names are server-defined; X-RateLimit-* (reset as epoch seconds) is
// the primary form, with Retry-After (delta seconds) as a fallback for the
// reset instant.
func parseRateLimit(h http.Header, now time.Time) *RateLimitInfo {
	info := &RateLimitInfo{}

	if v := h.Get("X-RateLimit-Limit"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			info.Limit = n
		}
	}
	if v := h.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			info.Remaining = n
		}
	}
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if epoch, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && epoch > 0 {
			info.Reset = time.Unix(epoch, 0)
		}
	}

	if info.Reset.IsZero() {
		if v := h.Get("Retry-After"); v != "" {
			if seconds, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && seconds > 0 {
				info.Reset = now.Add(time.Duration(seconds) * time.Second)
			}
		}
	}

	return info
}
