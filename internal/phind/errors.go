package phind

import (
	"errors"
	"fmt"
)

var (
	// ErrSeedsNotFound means the landing page carried no usable challenge seeds.
	ErrSeedsNotFound = errors.New("phind: challenge seeds not found")
	// ErrBackend is reported when the stream carries the backend error marker.
	ErrBackend = errors.New("phind: backend error")
	// ErrNoQuestion means the chat does not end with a user message.
	ErrNoQuestion = errors.New("phind: chat must end with a user message")
	// ErrStatus is wrapped by StatusError for non-2xx responses.
	ErrStatus = errors.New("phind: unexpected status")
)

// StreamError aborts a stream and keeps whatever text had been delivered.
type StreamError struct {
	Partial string
	Err     error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream aborted after %d bytes: %v", len(e.Partial), e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// StatusError carries the status and a body excerpt of a failed request.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrStatus }
