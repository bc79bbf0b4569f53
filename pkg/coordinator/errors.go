package coordinator

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	"github.com/go-go-golems/rephrase/pkg/frames"
)

// ErrBusy is returned when a cycle is already in flight. Submissions are not queued.
var ErrBusy = errors.New("a rewrite is already in progress")

const (
	msgCannotConnect = "Cannot connect to the backend server. Please ensure the backend is running at "
	msgAuth          = "Authentication error. Please check the API key configuration."
	msgRateLimited   = "Rate limit exceeded. Please wait a moment before trying again."
	msgUnavailable   = "Service temporarily unavailable. Please try again in a few moments."
	msgServerError   = "Server error (HTTP error! status: %d). Please try selecting a different model or try again later."
	msgDefault       = "Failed to generate response."
)

// TransportError is a failure to obtain or read the response stream.
// StatusCode is set for non-2xx responses. Connect marks failures that
// happened before any response arrived.
type TransportError struct {
	StatusCode int
	Connect    bool
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("backend returned status %d: %v", e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	case e.Connect:
		return fmt.Sprintf("connect to backend: %v", e.Err)
	default:
		return fmt.Sprintf("read response stream: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// BackendError is an error frame sent by the backend inside a 2xx stream.
type BackendError struct {
	Message string
	Code    string
}

func (e *BackendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error %s: %s", e.Code, e.Message)
	}
	return "backend error: " + e.Message
}

// UserMessage picks the text shown in place of a failed rewrite.
func UserMessage(err error, backendURL string) string {
	if err == nil {
		return msgDefault
	}
	var be *BackendError
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	if errors.Is(err, context.Canceled) {
		return msgDefault
	}
	var te *TransportError
	if !errors.As(err, &te) {
		return msgDefault
	}
	switch te.StatusCode {
	case 0:
		if te.Connect {
			return msgCannotConnect + backendURL
		}
		return msgDefault
	case http.StatusUnauthorized:
		return msgAuth
	case http.StatusTooManyRequests:
		return msgRateLimited
	case http.StatusServiceUnavailable:
		return msgUnavailable
	default:
		return fmt.Sprintf(msgServerError, te.StatusCode)
	}
}

func fromFrameError(err error) error {
	var fe *frames.TransportError
	if errors.As(err, &fe) {
		return &TransportError{Err: fe.Err}
	}
	return &TransportError{Err: err}
}
