package harvest

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrRateLimited      = errors.New("rate limited")
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrUnexpectedShape  = errors.New("unexpected response shape")
	ErrTransport        = errors.New("transport failure")
	ErrIO               = errors.New("io failure")
	ErrCycle            = errors.New("hierarchy cycle")
)

// HTTPError is a response with a non-2xx status.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrPayloadTooLarge:
		return e.StatusCode == http.StatusRequestEntityTooLarge
	}
	return false
}

// TransportError is a request that never produced a response.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// RetriesExhaustedError is returned once every attempt was rate limited.
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Last
}

func (e *RetriesExhaustedError) Is(target error) bool {
	return target == ErrRetriesExhausted
}

// ShapeError is a response that decoded fine but was not the expected schema.
type ShapeError struct {
	Path     Path
	Observed string
	Detail   string
}

func (e *ShapeError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: got %s", e.Path, e.Observed)
	}
	return fmt.Sprintf("%s: got %s: %s", e.Path, e.Observed, e.Detail)
}

func (e *ShapeError) Is(target error) bool {
	return target == ErrUnexpectedShape
}

// IOError is a local filesystem failure while writing an artifact.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("write: %v", e.Err)
	}
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func (e *IOError) Is(target error) bool {
	return target == ErrIO
}
