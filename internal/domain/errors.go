package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidPrompt     = errors.New("invalid prompt")
	ErrProviderFailure   = errors.New("provider failure")
	ErrMissingCredential = errors.New("missing provider credential")
	ErrOperationNotFound = errors.New("operation not found")
	ErrCancelled         = errors.New("cancelled")
)

// ValidationError is caller fixable: a parameter failed an enumeration or
// compatibility check. It is never retried.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s: %s (%q)", e.Field, e.Reason, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// InvalidTransitionError signals a lifecycle contract violation inside the
// registry. Correct callers never trigger it.
type InvalidTransitionError struct {
	JobID string
	From  JobStatus
	To    JobStatus
	Why   string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("job %s: invalid transition %s -> %s", e.JobID, e.From, e.To)
	if e.Why != "" {
		msg += ": " + e.Why
	}
	return msg
}

// ErrorCause classifies why a job failed.
type ErrorCause string

const (
	CauseSubmissionPermanent ErrorCause = "submission_permanent"
	CauseSubmissionTransient ErrorCause = "submission_transient"
	CausePollingFatal        ErrorCause = "polling_fatal"
	CauseTimeoutExceeded     ErrorCause = "timeout_exceeded"
	CauseCancelled           ErrorCause = "cancelled"
	CauseStorage             ErrorCause = "storage"
)

// JobError is the structured cause recorded on a failed job.
type JobError struct {
	Cause   ErrorCause `json:"cause"`
	Message string     `json:"message"`
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s: %s", e.Cause, e.Message)
}

// NewJobError builds a JobError from an underlying error.
func NewJobError(cause ErrorCause, err error) *JobError {
	msg := string(cause)
	if err != nil {
		msg = err.Error()
	}
	return &JobError{Cause: cause, Message: msg}
}

// ProviderErrorKind classifies provider failures for retry decisions.
type ProviderErrorKind string

const (
	// ProviderPermanent will not change outcome on retry (credentials, unknown model).
	ProviderPermanent ProviderErrorKind = "permanent"
	// ProviderTransient may succeed on retry (network, throttling, 5xx).
	ProviderTransient ProviderErrorKind = "transient"
	// ProviderUnsupported means the call path is not available for this model or
	// request shape; another path may still work.
	ProviderUnsupported ProviderErrorKind = "unsupported"
)

// ProviderError wraps provider specific failures with context.
type ProviderError struct {
	// Op is the operation that failed (e.g., "submit", "poll", "download").
	Op string

	// Provider is the provider name (e.g., "gemini").
	Provider string

	Kind ProviderErrorKind

	// StatusCode is the upstream HTTP status, if any.
	StatusCode int

	Err error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s (%s, status %d): %v", e.Provider, e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s (%s): %v", e.Provider, e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ProviderErrorKindOf extracts the classification of err. Unclassified errors are
// treated as transient, matching how network failures behave.
func ProviderErrorKindOf(err error) ProviderErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Kind != "" {
		return pe.Kind
	}
	if errors.Is(err, ErrMissingCredential) || errors.Is(err, ErrOperationNotFound) {
		return ProviderPermanent
	}
	return ProviderTransient
}

// IsPermanent reports whether err will not change outcome on retry.
func IsPermanent(err error) bool {
	return ProviderErrorKindOf(err) == ProviderPermanent
}
