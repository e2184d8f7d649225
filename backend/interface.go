package backend

import (
	"context"
	"net/http"
	"strings"
)

// Response is one complete reply read from the remote API.
type Response struct {
	StatusCode int
	Reason     string // Reason phrase from the status line, e.g. "Not Found"
	Header     http.Header
	Body       []byte
}

// OK reports whether the status code is in the 2xx range.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Empty reports whether the body holds nothing but whitespace.
func (r *Response) Empty() bool {
	return strings.TrimSpace(string(r.Body)) == ""
}

// Exchanger sends one request and waits for its response. Implementations are
// not safe for concurrent use; callers issue one exchange at a time.
type Exchanger interface {
	// Exchange sends method + target (path and query, without credentials)
	// and blocks until the full response has been read.
	Exchange(ctx context.Context, method, target string) (*Response, error)

	// Close releases the underlying connection.
	Close() error
}
