package domain

import "context"

// OperationHandle is an opaque reference to an in-progress provider computation.
// Only the provider that issued it interprets the name.
type OperationHandle struct {
	name string
}

// NewOperationHandle wraps a provider issued operation reference.
func NewOperationHandle(name string) OperationHandle {
	return OperationHandle{name: name}
}

// Name returns the provider reference.
func (h OperationHandle) Name() string {
	return h.name
}

// IsZero reports whether the handle was never assigned.
func (h OperationHandle) IsZero() bool {
	return h.name == ""
}

func (h OperationHandle) String() string {
	return h.name
}

// SubmitRequest is what a provider receives for one submission attempt.
type SubmitRequest struct {
	JobID       string
	Kind        JobKind
	Model       string
	Prompt      string
	Duration    int
	Resolution  string
	AspectRatio string
}

// ResultRef points at a finished provider artifact.
type ResultRef struct {
	URI         string
	ContentType string
	// Inline carries the artifact bytes when the provider returned them directly.
	Inline []byte
}

// PollState is the closed set of provider status outcomes.
type PollState int

const (
	PollPending PollState = iota
	PollDone
	PollFailed
)

func (s PollState) String() string {
	switch s {
	case PollPending:
		return "pending"
	case PollDone:
		return "done"
	case PollFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PollResult is the normalized provider status. Exactly one branch is meaningful:
// Pending carries an optional hint, Done carries Result, Failed carries Message.
// A Failed result is final for the job; Permanent only tells whether a fresh
// submission could succeed.
type PollResult struct {
	State PollState
	// ProgressHint is the provider reported percentage, or -1 when absent.
	ProgressHint int
	Result       ResultRef
	Permanent    bool
	Message      string
}

// Pending builds a pending result. hint < 0 means no hint.
func Pending(hint int) PollResult {
	return PollResult{State: PollPending, ProgressHint: hint}
}

// Done builds a completed result.
func Done(ref ResultRef) PollResult {
	return PollResult{State: PollDone, ProgressHint: -1, Result: ref}
}

// Failed builds a provider reported failure.
func Failed(permanent bool, msg string) PollResult {
	return PollResult{State: PollFailed, ProgressHint: -1, Permanent: permanent, Message: msg}
}

// Submitter starts a provider computation.
type Submitter interface {
	Submit(ctx context.Context, req SubmitRequest) (OperationHandle, error)
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, req SubmitRequest) (OperationHandle, error)

// Submit calls f(ctx, req).
func (f SubmitterFunc) Submit(ctx context.Context, req SubmitRequest) (OperationHandle, error) {
	return f(ctx, req)
}

// StatusChecker queries a provider computation.
type StatusChecker interface {
	Poll(ctx context.Context, handle OperationHandle) (PollResult, error)
}

// Fetcher downloads finished artifacts.
type Fetcher interface {
	Download(ctx context.Context, ref ResultRef) ([]byte, string, error)
}

// Provider is the full external contract the orchestrator consumes.
type Provider interface {
	Name() string
	Primary() Submitter
	// Secondary returns the alternate submission path, or nil when none exists.
	Secondary() Submitter
	StatusChecker
	Fetcher
}
