package conductor

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors used across the orchestrator. Typed errors below wrap
// these so callers can branch with errors.Is while still carrying detail.
var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrLockTimeout     = errors.New("lock timeout")
	ErrTransport       = errors.New("transport error")
	ErrToolFailure     = errors.New("tool failure")
	ErrContextOverflow = errors.New("context overflow")
	ErrProtocol        = errors.New("protocol error")
	ErrFatal           = errors.New("fatal error")
)

// NotFoundError reports a missing entity such as a session or tool.
type NotFoundError struct {
	Kind string // "session", "tool", "turn", "cache", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFoundError returns a NotFoundError for the given entity.
func NewNotFoundError(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// ValidationError reports invalid user or model supplied input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Reason)
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError returns a ValidationError for the given field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// LockTimeoutError reports a failure to acquire a session lock in time.
type LockTimeoutError struct {
	Path   string
	Waited time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for lock %s", e.Waited, e.Path)
}

func (e *LockTimeoutError) Unwrap() error { return ErrLockTimeout }

// TransportError reports a language model transport failure.
type TransportError struct {
	Cause     error
	Retryable bool
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Cause)
}

func (e *TransportError) Unwrap() error { return ErrTransport }

// NewTransportError wraps a transport failure. Retryable failures are
// retried by the caller with backoff.
func NewTransportError(cause error, retryable bool) error {
	return &TransportError{Cause: cause, Retryable: retryable}
}

// ToolFailureError reports a tool that ran but failed.
type ToolFailureError struct {
	Tool  string
	Cause error
}

func (e *ToolFailureError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Cause)
}

func (e *ToolFailureError) Unwrap() error { return ErrToolFailure }

// ContextOverflowError reports a prompt that exceeds the model context
// window. Runs abort rather than send a request that cannot succeed.
type ContextOverflowError struct {
	Tokens int
	Limit  int
}

func (e *ContextOverflowError) Error() string {
	return fmt.Sprintf("prompt of ~%d tokens exceeds context limit %d", e.Tokens, e.Limit)
}

func (e *ContextOverflowError) Unwrap() error { return ErrContextOverflow }

// ProtocolError reports a JSON-RPC protocol level failure.
type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error %d: %s", e.Code, e.Message)
}

func (e *ProtocolError) Unwrap() error { return ErrProtocol }

// FatalError wraps an unexpected internal failure.
type FatalError struct {
	Cause error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %v", e.Cause)
}

func (e *FatalError) Unwrap() error { return ErrFatal }

// NewFatalError wraps err as fatal.
func NewFatalError(err error) error {
	return &FatalError{Cause: err}
}

// IsRetryable reports whether err is a transport failure worth retrying.
func IsRetryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return false
}
