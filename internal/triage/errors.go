package triage

import (
	"errors"
	"fmt"
)

// ErrBackendUnavailable marks a transient reasoning-backend failure
// (network, timeout, 5xx). Callers may retry; the backend itself never does.
var ErrBackendUnavailable = errors.New("reasoning backend unavailable")

// BackendFormatError reports backend output that could not be parsed into a
// Verdict. It is not retryable: the pipeline treats it as a missing verdict
// and routes the incident to the escalate path, never to close.
type BackendFormatError struct {
	Reason string
	Raw    string
}

func (e *BackendFormatError) Error() string {
	return fmt.Sprintf("unparseable backend response: %s", e.Reason)
}

// TransportError is a retryable failure talking to the case-management
// system (connection errors, 5xx, throttling).
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transport error (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError is a non-retryable rejection from the case-management
// system (4xx, incident not found). The incident is recorded as failed.
type ValidationError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: rejected (status %d): %s", e.Op, e.StatusCode, e.Message)
}
