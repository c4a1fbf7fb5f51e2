package llm

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an invocation failure.
type ErrorKind string

const (
	// Transient kinds: the coordinator retries these with backoff.
	KindRateLimited ErrorKind = "rate_limited"
	KindUnavailable ErrorKind = "unavailable"
	KindTimeout     ErrorKind = "timeout"

	// Fatal kinds: these abort the stage and the run.
	KindAuth       ErrorKind = "auth"
	KindRefused    ErrorKind = "refused"
	KindBadRequest ErrorKind = "bad_request"
)

// InvocationError is a failed call to the model capability. The adapter
// classifies it; the caller decides what to do with it.
type InvocationError struct {
	Kind       ErrorKind
	Backend    string
	StatusCode int
	Message    string
	Err        error
}

func (e *InvocationError) Error() string {
	msg := fmt.Sprintf("%s invocation failed (%s", e.Backend, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(", status %d", e.StatusCode)
	}
	msg += ")"
	if e.Message != "" {
		msg += ": " + truncate(e.Message, 200)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvocationError) Unwrap() error { return e.Err }

// Transient reports whether the failure is worth retrying.
func (e *InvocationError) Transient() bool {
	switch e.Kind {
	case KindRateLimited, KindUnavailable, KindTimeout:
		return true
	}
	return false
}

// IsTransient reports whether err is a retryable invocation failure.
func IsTransient(err error) bool {
	var invErr *InvocationError
	return errors.As(err, &invErr) && invErr.Transient()
}

// kindForStatus maps an HTTP status to an error kind. Used by both backend
// adapters; refusals are detected from response bodies, not statuses.
func kindForStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 408:
		return KindTimeout
	case status == 429:
		return KindRateLimited
	case status >= 500:
		return KindUnavailable
	default:
		return KindBadRequest
	}
}
