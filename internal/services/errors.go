package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// FailureKind classifies a failure for retry decisions.
type FailureKind string

const (
	FailureTransient   FailureKind = "transient"
	FailureFatal       FailureKind = "fatal"
	FailureInterrupted FailureKind = "interrupted"
)

// Retryable reports whether automatic retry may pick up a failure of this kind.
func (k FailureKind) Retryable() bool {
	return k == FailureTransient || k == FailureInterrupted
}

// Marker is a sentinel error carrying a failure classification.
type Marker struct {
	name string
	kind FailureKind
	hint string
}

func (m *Marker) Error() string { return m.name }

// Kind returns the classification attached to the marker.
func (m *Marker) Kind() FailureKind { return m.kind }

var (
	ErrTransient     = &Marker{name: "transient failure", kind: FailureTransient, hint: "retry later"}
	ErrNetwork       = &Marker{name: "network error", kind: FailureTransient, hint: "check connectivity to the remote host; the task is retried on the next cycle"}
	ErrFatal         = &Marker{name: "fatal failure", kind: FailureFatal, hint: "inspect the task error before resetting"}
	ErrSourceGone    = &Marker{name: "source gone", kind: FailureFatal, hint: "the media was removed upstream; resetting will not help"}
	ErrAuth          = &Marker{name: "authentication failed", kind: FailureFatal, hint: "check upload credentials and share permissions"}
	ErrInterrupted   = &Marker{name: "interrupted", kind: FailureInterrupted, hint: "transfer stopped mid-flight; the task is retried on the next cycle"}
	ErrValidation    = &Marker{name: "validation error", kind: FailureFatal, hint: "check the transferred file"}
	ErrConfiguration = &Marker{name: "configuration error", kind: FailureFatal, hint: "fix the configuration and restart the daemon"}
	ErrNotFound      = &Marker{name: "not found", kind: FailureFatal, hint: "verify the referenced resource exists"}
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker *Marker, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorDetails summarizes a failure for logging and persistence.
type ErrorDetails struct {
	Kind    FailureKind
	Code    string
	Hint    string
	Message string
}

// Details classifies err. Cancellation counts as an interruption; deadline
// expiry and unmarked errors count as transient.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Message: strings.TrimSpace(err.Error())}
	var marker *Marker
	switch {
	case errors.As(err, &marker):
		details.Kind = marker.kind
		details.Code = marker.name
		details.Hint = marker.hint
	case errors.Is(err, context.Canceled):
		details.Kind = FailureInterrupted
		details.Code = ErrInterrupted.name
		details.Hint = ErrInterrupted.hint
		details.Message = ErrInterrupted.name + ": " + details.Message
	default:
		details.Kind = FailureTransient
		details.Code = ErrTransient.name
		details.Hint = ErrTransient.hint
	}
	return details
}

// Classify returns only the failure kind of err.
func Classify(err error) FailureKind {
	return Details(err).Kind
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
