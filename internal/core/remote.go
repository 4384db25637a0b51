package core

import (
	"context"
	"errors"
	"fmt"
)

// Completer is the remote model behind the assistant. The production
// implementation is GeminiClient; tests substitute fakes.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
	Insights(ctx context.Context, profile string) ([]Insight, error)
}

// CompletionRequest carries everything one remote chat call needs.
type CompletionRequest struct {
	Message string
	Intent  Intent
	Context BoundedContext
}

// CompletionResult is a successful remote answer.
type CompletionResult struct {
	Text       string
	Model      string
	TokensUsed int
}

// ErrorKind classifies remote failures. All kinds except BadRequest count
// against the circuit breaker; BadRequest means we sent something the
// backend rightly refused, which says nothing about its health.
type ErrorKind string

const (
	ErrKindRateLimited  ErrorKind = "rate_limited"
	ErrKindAuthInvalid  ErrorKind = "auth_invalid"
	ErrKindBadRequest   ErrorKind = "bad_request"
	ErrKindTimeout      ErrorKind = "timeout"
	ErrKindNetwork      ErrorKind = "network_unavailable"
	ErrKindUnrecognized ErrorKind = "unrecognized"
)

// RemoteError wraps a remote failure with its taxonomy kind.
type RemoteError struct {
	Kind ErrorKind
	Err  error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote model %s: %v", e.Kind, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// KindOf extracts the ErrorKind from err, defaulting to Unrecognized for
// errors that did not come through the taxonomy.
func KindOf(err error) ErrorKind {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ErrKindUnrecognized
}
