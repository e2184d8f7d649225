package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error taxonomy shared by the session, the cache and the orchestrator.
// Callers test with errors.Is; the concrete types below carry the details.
var (
	ErrConfigMissing  = errors.New("trello key and token are not configured")
	ErrNotFound       = errors.New("not found")
	ErrRemoteRejected = errors.New("request rejected by remote")
	ErrTransport      = errors.New("transport failure")
	ErrEmptyResponse  = errors.New("no data")
)

// ErrorWithSuggestion wraps an error with a user-friendly suggestion.
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface.
func (e *ErrorWithSuggestion) Error() string {
	return fmt.Sprintf("%s\n\nSuggestion: %s", e.Err.Error(), e.Suggestion)
}

// GetSuggestion returns the suggestion text.
func (e *ErrorWithSuggestion) GetSuggestion() string {
	return e.Suggestion
}

// Unwrap returns the underlying error for error chain support.
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// WrapWithSuggestion wraps an existing error with a suggestion.
func WrapWithSuggestion(err error, suggestion string) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// NotFoundError reports a friendly ID that is absent from the current cache generation.
type NotFoundError struct {
	Level string
	ID    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("cannot find %s with ID: %s", e.Level, e.ID)
}

// Is makes errors.Is(err, ErrNotFound) hold.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ErrItemNotFound returns the lookup-miss error for level/id.
func ErrItemNotFound(level, id string) error {
	return &NotFoundError{Level: level, ID: id}
}

// RemoteError is a non-2xx reply from the API.
type RemoteError struct {
	StatusCode int
	Reason     string
	Body       string
	RetryAfter *time.Duration // set when the server sent Retry-After
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("request failed: %d %s", e.StatusCode, e.Reason)
	if body := strings.TrimSpace(e.Body); body != "" && len(body) <= 200 && !strings.Contains(body, "\n") {
		msg += ": " + body
	}
	if e.RetryAfter != nil {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter.Round(time.Second))
	}
	return msg
}

// Is makes errors.Is(err, ErrRemoteRejected) hold.
func (e *RemoteError) Is(target error) bool {
	return target == ErrRemoteRejected
}

// TransportError is a resolve, connect, handshake or I/O failure.
type TransportError struct {
	Op  string // "resolve", "connect", "handshake", "write", "read"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrTransport) hold.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// ErrCredentialsNotFound returns an error when the key or token is missing.
func ErrCredentialsNotFound() error {
	return &ErrorWithSuggestion{
		Err:        ErrConfigMissing,
		Suggestion: "Run 'iroha credentials set', add trello.key and trello.token to your config file, or export IROHA_TRELLO_KEY and IROHA_TRELLO_TOKEN",
	}
}

// ErrHostUnreachable returns a transport error with a suggestion derived from the reason.
func ErrHostUnreachable(host string, err error) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("cannot reach %s: %w", host, err),
		Suggestion: getSmartSuggestion(err.Error()),
	}
}

// getSmartSuggestion returns a context-aware suggestion based on the error reason.
func getSmartSuggestion(reason string) string {
	lowerReason := strings.ToLower(reason)

	if strings.Contains(lowerReason, "no such host") || strings.Contains(lowerReason, "dns") {
		return "Check your DNS settings and internet connection"
	}

	if strings.Contains(lowerReason, "connection refused") {
		return "Check if the server is running and accessible"
	}

	if strings.Contains(lowerReason, "certificate") || strings.Contains(lowerReason, "x509") {
		return "The server certificate could not be verified. Check the api.host setting and your system CA store"
	}

	if strings.Contains(lowerReason, "timeout") || strings.Contains(lowerReason, "i/o timeout") {
		return "The server may be slow or unreachable. Try again later"
	}

	return "Check your internet connection and try again"
}

// ErrInvalidID returns an error for an operator-typed ID that is not board, list or card shaped.
func ErrInvalidID(id string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid ID: %s", id),
		Suggestion: "IDs look like 3 (board), 3-1 (list) or 3-1-2 (card); use 'view' to list them",
	}
}
