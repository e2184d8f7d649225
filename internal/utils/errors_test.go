package utils

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"
)

func TestErrorWithSuggestionError(t *testing.T) {
	err := &ErrorWithSuggestion{
		Err:        errors.New("something went wrong"),
		Suggestion: "Try doing X",
	}

	want := "something went wrong\n\nSuggestion: Try doing X"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if err.GetSuggestion() != "Try doing X" {
		t.Errorf("GetSuggestion() = %q", err.GetSuggestion())
	}
}

func TestErrorWithSuggestionUnwrap(t *testing.T) {
	base := errors.New("base")
	err := WrapWithSuggestion(base, "hint")

	if !errors.Is(err, base) {
		t.Error("errors.Is should find the wrapped error")
	}
	var ews *ErrorWithSuggestion
	if !errors.As(err, &ews) {
		t.Fatal("errors.As should find ErrorWithSuggestion")
	}
	if ews.Suggestion != "hint" {
		t.Errorf("Suggestion = %q", ews.Suggestion)
	}
}

func TestNotFoundError(t *testing.T) {
	err := ErrItemNotFound("list", "2-5")

	if err.Error() != "cannot find list with ID: 2-5" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("lookup miss should match ErrNotFound")
	}
	if errors.Is(err, ErrRemoteRejected) {
		t.Error("lookup miss should not match ErrRemoteRejected")
	}

	wrapped := fmt.Errorf("close: %w", err)
	var nf *NotFoundError
	if !errors.As(wrapped, &nf) || nf.Level != "list" || nf.ID != "2-5" {
		t.Errorf("errors.As through wrap failed: %+v", nf)
	}
}

func TestRemoteErrorMessage(t *testing.T) {
	retry := 2 * time.Second
	tests := []struct {
		name string
		err  *RemoteError
		want string
	}{
		{
			name: "status only",
			err:  &RemoteError{StatusCode: 500, Reason: "Internal Server Error"},
			want: "request failed: 500 Internal Server Error",
		},
		{
			name: "short body included",
			err:  &RemoteError{StatusCode: 400, Reason: "Bad Request", Body: "invalid id\n"},
			want: "request failed: 400 Bad Request: invalid id",
		},
		{
			name: "multi-line body dropped",
			err:  &RemoteError{StatusCode: 400, Reason: "Bad Request", Body: "<html>\n<body>oops</body>"},
			want: "request failed: 400 Bad Request",
		},
		{
			name: "long body dropped",
			err:  &RemoteError{StatusCode: 400, Reason: "Bad Request", Body: strings.Repeat("x", 201)},
			want: "request failed: 400 Bad Request",
		},
		{
			name: "retry after",
			err:  &RemoteError{StatusCode: 429, Reason: "Too Many Requests", RetryAfter: &retry},
			want: "request failed: 429 Too Many Requests (retry after 2s)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
			if !errors.Is(tt.err, ErrRemoteRejected) {
				t.Error("should match ErrRemoteRejected")
			}
		})
	}
}

func TestTransportError(t *testing.T) {
	err := &TransportError{Op: "read", Err: net.ErrClosed}

	if !strings.HasPrefix(err.Error(), "read failed: ") {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, ErrTransport) {
		t.Error("should match ErrTransport")
	}
	if !errors.Is(err, net.ErrClosed) {
		t.Error("should unwrap to the cause")
	}
}

func TestErrCredentialsNotFound(t *testing.T) {
	err := ErrCredentialsNotFound()

	if !errors.Is(err, ErrConfigMissing) {
		t.Error("should match ErrConfigMissing")
	}
	if !strings.Contains(err.Error(), "iroha credentials set") {
		t.Errorf("suggestion should name the credentials command: %s", err)
	}
}

func TestErrInvalidID(t *testing.T) {
	err := ErrInvalidID("3-x")
	if !strings.HasPrefix(err.Error(), "invalid ID: 3-x") {
		t.Errorf("Error() = %q", err.Error())
	}
	if !strings.Contains(err.Error(), "3-1-2 (card)") {
		t.Errorf("suggestion should show the ID shapes: %s", err)
	}
}

func TestErrHostUnreachableSuggestions(t *testing.T) {
	tests := []struct {
		reason string
		want   string
	}{
		{"lookup api.trello.com: no such host", "DNS"},
		{"dial tcp: connection refused", "server is running"},
		{"x509: certificate signed by unknown authority", "certificate"},
		{"dial tcp: i/o timeout", "Try again later"},
		{"something else", "internet connection"},
	}
	for _, tt := range tests {
		err := ErrHostUnreachable("api.trello.com", errors.New(tt.reason))
		if !strings.Contains(err.Error(), "cannot reach api.trello.com") {
			t.Errorf("missing host in %q", err)
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("reason %q: suggestion %q missing %q", tt.reason, err, tt.want)
		}
	}
}
