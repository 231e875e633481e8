package domain

import "time"

// JobKind enumerates supported generation job categories.
type JobKind string

const (
	JobKindImage JobKind = "image"
	JobKindVideo JobKind = "video"
)

// ParseJobKind maps free-form input onto a supported kind.
func ParseJobKind(v string) (JobKind, bool) {
	switch JobKind(v) {
	case JobKindImage, JobKindVideo:
		return JobKind(v), true
	default:
		return "", false
	}
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusSubmitting JobStatus = "submitting"
	JobStatusPolling    JobStatus = "polling"
	JobStatusComplete   JobStatus = "complete"
	JobStatusFailed     JobStatus = "failed"
	JobStatusFallback   JobStatus = "fallback"
)

// Terminal reports whether no further work is scheduled for the job.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusComplete, JobStatusFailed, JobStatusFallback:
		return true
	default:
		return false
	}
}

// HasResult reports whether a job in this status carries a result URI.
func (s JobStatus) HasResult() bool {
	return s == JobStatusComplete || s == JobStatusFallback
}

var allowedTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:     {JobStatusSubmitting, JobStatusFailed},
	JobStatusSubmitting: {JobStatusPolling, JobStatusFailed},
	JobStatusPolling:    {JobStatusPolling, JobStatusComplete, JobStatusFailed},
	JobStatusFailed:     {JobStatusFallback},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to JobStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SubmitPath identifies which provider submission path produced the handle.
type SubmitPath string

const (
	SubmitPathPrimary   SubmitPath = "primary"
	SubmitPathSecondary SubmitPath = "secondary"
)

// Job encapsulates the lifecycle of one image/video generation request.
type Job struct {
	ID             string
	Kind           JobKind
	Status         JobStatus
	Provider       string
	Model          string
	Params         Params
	Handle         OperationHandle
	SubmitPath     SubmitPath
	Progress       int
	AttemptCount   int
	ResultURI      string
	Error          *JobError
	FallbackReason ErrorCause
	CreatedAt      time.Time
	UpdatedAt      time.Time
	SubmittedAt    time.Time
}

// Deadline returns the wall-clock instant after which a polling job times out.
// The clock starts at submission; jobs that never submitted use CreatedAt.
func (j Job) Deadline(timeout time.Duration) time.Time {
	start := j.SubmittedAt
	if start.IsZero() {
		start = j.CreatedAt
	}
	return start.Add(timeout)
}

// ModelChoice is the value produced by model selection and consumed by submission.
type ModelChoice struct {
	Provider string
	Model    string
	Family   string
	Tier     QualityTier
	Reason   string
}
