// Package backend holds the result status and error taxonomy shared by recognition, synthesis,
// and generation engines.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Status is the outcome of one engine call. Engines never return errors across their
// boundary; they return a neutral value with a non-OK Status.
type Status int

const (
	StatusOK Status = iota
	StatusNotInitialized
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotInitialized:
		return "not_initialized"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ErrNotInitialized marks an engine whose model or credentials are missing.
var ErrNotInitialized = errors.New("engine not initialized")

// Info describes an engine for status reports.
type Info struct {
	Name        string `json:"name"`
	ServiceType string `json:"service_type"`
	Variant     string `json:"variant"`
	Ready       bool   `json:"ready"`
	Detail      string `json:"detail,omitempty"`
}

// ExternalServiceError is a non-success response or timeout from an online backend.
// Callers fall back to another variant and must not track usage for the failed call.
type ExternalServiceError struct {
	Service    string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *ExternalServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Service, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// IsExternal reports whether err wraps an ExternalServiceError.
func IsExternal(err error) bool {
	var ext *ExternalServiceError
	return errors.As(err, &ext)
}

// FromHTTP classifies a non-2xx HTTP response. 429 and 5xx are retryable.
func FromHTTP(service string, code int, body string) error {
	msg := http.StatusText(code)
	if body != "" {
		msg = body
	}
	return &ExternalServiceError{
		Service:    service,
		StatusCode: code,
		Retryable:  code == http.StatusTooManyRequests || code >= http.StatusInternalServerError,
		Err:        errors.New(msg),
	}
}

// FromTransport wraps a transport-level failure such as a refused connection or timeout.
func FromTransport(service string, err error) error {
	if err == nil {
		return nil
	}
	return &ExternalServiceError{
		Service:   service,
		Retryable: !errors.Is(err, context.Canceled),
		Err:       err,
	}
}

// FromGRPC classifies a gRPC error by status code.
func FromGRPC(service string, err error) error {
	if err == nil {
		return nil
	}
	code := status.Code(err)
	switch code {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s: %v", ErrNotInitialized, service, err)
	}
	return &ExternalServiceError{
		Service:   service,
		Retryable: retryableGRPC(code),
		Err:       err,
	}
}

func retryableGRPC(code codes.Code) bool {
	switch code {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted, codes.Internal:
		return true
	default:
		return false
	}
}

// StatusOf maps an engine error to a Status.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrNotInitialized):
		return StatusNotInitialized
	default:
		return StatusFailed
	}
}
