package orchestrator

import (
	"context"
	"errors"
	"testing"

	"mediagen/internal/domain"
)

func TestDispatcherPrimarySuccess(t *testing.T) {
	h := newHarness(t, &fakeProvider{}, PollerOptions{})
	job := h.submitted(t, "j1")
	if job.SubmitPath != domain.SubmitPathPrimary || job.Handle.Name() != "operations/primary-j1" {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.SubmittedAt.IsZero() {
		t.Fatalf("expected SubmittedAt to be set")
	}
	if h.provider.secCalls != 0 {
		t.Fatalf("secondary should not be called")
	}
}

func TestDispatcherFallsThroughToSecondary(t *testing.T) {
	for name, primary := range map[string]error{
		"transient":   transientErr("503 upstream"),
		"unsupported": unsupportedErr("predictLongRunning not supported"),
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, &fakeProvider{primaryErr: primary}, PollerOptions{})
			job := h.submitted(t, "j1")
			if job.SubmitPath != domain.SubmitPathSecondary {
				t.Fatalf("expected secondary path, got %s", job.SubmitPath)
			}
			if h.provider.primaryCalls != 1 || h.provider.secCalls != 1 {
				t.Fatalf("expected one call per path, got %d/%d", h.provider.primaryCalls, h.provider.secCalls)
			}
		})
	}
}

func TestDispatcherPermanentPrimaryDoesNotRetry(t *testing.T) {
	h := newHarness(t, &fakeProvider{primaryErr: permanentErr("invalid key")}, PollerOptions{})
	h.queue(t, "j1", domain.JobKindImage)
	job, err := h.dispatcher.Submit(context.Background(), "j1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Status != domain.JobStatusFailed || job.Error.Cause != domain.CauseSubmissionPermanent {
		t.Fatalf("unexpected job %+v", job)
	}
	if h.provider.secCalls != 0 {
		t.Fatalf("secondary must not be tried after a permanent error")
	}
}

func TestDispatcherBothPathsFail(t *testing.T) {
	tests := []struct {
		name      string
		secondary error
		noSec     bool
		want      domain.ErrorCause
	}{
		{name: "secondary transient", secondary: transientErr("timeout"), want: domain.CauseSubmissionTransient},
		{name: "secondary permanent", secondary: permanentErr("model not found"), want: domain.CauseSubmissionPermanent},
		{name: "no secondary", noSec: true, want: domain.CauseSubmissionTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := &fakeProvider{primaryErr: transientErr("503"), secondaryErr: tt.secondary, noSecondary: tt.noSec}
			h := newHarness(t, fp, PollerOptions{})
			h.queue(t, "j1", domain.JobKindVideo)
			job, err := h.dispatcher.Submit(context.Background(), "j1")
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			if job.Status != domain.JobStatusFailed || job.Error.Cause != tt.want {
				t.Fatalf("expected failed/%s, got %s/%+v", tt.want, job.Status, job.Error)
			}
		})
	}
}

func TestDispatcherMissingCredentialIsPermanent(t *testing.T) {
	h := newHarness(t, &fakeProvider{primaryErr: domain.ErrMissingCredential}, PollerOptions{})
	h.queue(t, "j1", domain.JobKindImage)
	job, _ := h.dispatcher.Submit(context.Background(), "j1")
	if job.Error == nil || job.Error.Cause != domain.CauseSubmissionPermanent {
		t.Fatalf("expected permanent submission failure, got %+v", job.Error)
	}
}

func TestDispatcherHonoursCancelFlag(t *testing.T) {
	h := newHarness(t, &fakeProvider{}, PollerOptions{})
	h.queue(t, "j1", domain.JobKindImage)
	h.jobs.RequestCancel("j1")
	job, err := h.dispatcher.Submit(context.Background(), "j1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Error == nil || job.Error.Cause != domain.CauseCancelled {
		t.Fatalf("expected cancelled, got %+v", job)
	}
	if h.provider.primaryCalls != 0 {
		t.Fatalf("provider must not be called for a cancelled job")
	}
}

type failingGate struct{ err error }

func (g failingGate) Wait(ctx context.Context) error { return g.err }

func TestDispatcherGateErrorIsTransient(t *testing.T) {
	h := newHarness(t, &fakeProvider{}, PollerOptions{})
	h.dispatcher.gate = failingGate{err: errors.New("redis down")}
	h.queue(t, "j1", domain.JobKindImage)
	job, _ := h.dispatcher.Submit(context.Background(), "j1")
	if job.Error == nil || job.Error.Cause != domain.CauseSubmissionTransient {
		t.Fatalf("expected transient failure, got %+v", job.Error)
	}
	if h.provider.primaryCalls != 0 {
		t.Fatalf("provider must not be called when the gate fails")
	}
}

func TestDispatcherRejectsNonQueuedJob(t *testing.T) {
	h := newHarness(t, &fakeProvider{}, PollerOptions{})
	h.submitted(t, "j1")
	_, err := h.dispatcher.Submit(context.Background(), "j1")
	var ite *domain.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}
