package orchestrator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/constraint"
	"mediagen/internal/domain"
	"mediagen/internal/fallback"
	"mediagen/internal/selector"
)

func newTestService(t *testing.T, fp *fakeProvider, cfg Config) (*Service, *harness) {
	t.Helper()
	h := newHarness(t, fp, PollerOptions{Interval: time.Millisecond})
	svc := NewService(Deps{
		Validator:  constraint.NewValidator(nil),
		Selector:   selector.New(selector.DefaultCatalog()),
		Jobs:       h.jobs,
		Dispatcher: h.dispatcher,
		Poller:     h.poller,
		Fallback:   fallback.New(h.store, zerolog.Nop()),
		Store:      h.store,
		Logger:     zerolog.Nop(),
	}, cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		svc.Shutdown(ctx)
	})
	return svc, h
}

func waitFor(t *testing.T, svc *Service, id string) StatusView {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Wait(ctx, id); err != nil {
		t.Fatalf("Wait(%s): %v", id, err)
	}
	view, err := svc.Status(id)
	if err != nil {
		t.Fatalf("Status(%s): %v", id, err)
	}
	return view
}

func waitStatus(t *testing.T, svc *Service, id string, want domain.JobStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		view, _ := svc.Status(id)
		if view.Status == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s never reached %s (last %s)", id, want, view.Status)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestServiceSubmitCompletes(t *testing.T) {
	fp := &fakeProvider{steps: []pollStep{{res: domain.Done(domain.ResultRef{URI: "https://files/v.mp4"})}}}
	svc, _ := newTestService(t, fp, Config{MaxConcurrent: 2, FallbackEnabled: true})

	res, err := svc.SubmitJob(context.Background(), SubmitRequest{
		Kind:   "video",
		Params: domain.RawParams{Prompt: "a comet", Resolution: "1080p", Duration: 6, Purpose: "cinematic"},
	})
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	if res.Reused || res.Job.Status != domain.JobStatusQueued {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Job.Params.Duration != 8 || res.Job.Model != "veo-3.1-generate-preview" {
		t.Fatalf("validation or selection not applied: %+v", res.Job)
	}

	view := waitFor(t, svc, res.Job.ID)
	if view.Status != domain.JobStatusComplete || view.Progress != 100 || view.ResultURI == "" {
		t.Fatalf("unexpected view %+v", view)
	}
	if len(view.Coercions) != 1 {
		t.Fatalf("expected coercion in view, got %+v", view.Coercions)
	}
	if view.Metadata.Duration != 8 || view.Metadata.Resolution != "1080p" || view.Metadata.Purpose != domain.PurposeCinematic {
		t.Fatalf("unexpected metadata %+v", view.Metadata)
	}
}

func TestServiceReusesLiveJob(t *testing.T) {
	fp := &fakeProvider{blockPoll: make(chan struct{})}
	svc, _ := newTestService(t, fp, Config{MaxConcurrent: 1})
	req := SubmitRequest{Kind: "video", ExistingJobID: "x", Params: domain.RawParams{Prompt: "a comet"}}

	first, err := svc.SubmitJob(context.Background(), req)
	if err != nil {
		t.Fatalf("first SubmitJob: %v", err)
	}
	second, err := svc.SubmitJob(context.Background(), req)
	if err != nil {
		t.Fatalf("second SubmitJob: %v", err)
	}
	if first.Job.ID != "x" || second.Job.ID != "x" || !second.Reused {
		t.Fatalf("expected same job x, got %+v / %+v", first, second)
	}
	if primary, _ := fp.submitCalls(); primary > 1 {
		t.Fatalf("job submitted twice")
	}
}

func TestServiceValidationError(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{}, Config{MaxConcurrent: 1})
	_, err := svc.SubmitJob(context.Background(), SubmitRequest{Kind: "video", Params: domain.RawParams{Prompt: "x", Resolution: "4K"}})
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = svc.SubmitJob(context.Background(), SubmitRequest{Kind: "audio", Params: domain.RawParams{Prompt: "x"}})
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error for kind, got %v", err)
	}
}

func TestServiceFallsBackOnSubmissionFailure(t *testing.T) {
	fp := &fakeProvider{primaryErr: permanentErr("api key missing")}
	svc, h := newTestService(t, fp, Config{MaxConcurrent: 1, FallbackEnabled: true})

	res, err := svc.SubmitJob(context.Background(), SubmitRequest{Kind: "image", Params: domain.RawParams{Prompt: "a fox", AspectRatio: "1:1"}})
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	view := waitFor(t, svc, res.Job.ID)
	if view.Status != domain.JobStatusFallback || view.Error != nil {
		t.Fatalf("expected fallback, got %+v", view)
	}
	if view.FallbackReason != domain.CauseSubmissionPermanent {
		t.Fatalf("unexpected fallback reason %s", view.FallbackReason)
	}
	if !strings.HasPrefix(view.ResultURI, "artifact://fallback/images/") {
		t.Fatalf("unexpected uri %q", view.ResultURI)
	}
	art, err := h.store.Read(context.Background(), view.ResultURI)
	if err != nil {
		t.Fatalf("read fallback: %v", err)
	}
	if _, err := fallback.Decode(art.Data); err != nil {
		t.Fatalf("fallback artifact lacks seed: %v", err)
	}
}

func TestServiceFallbackDisabled(t *testing.T) {
	fp := &fakeProvider{primaryErr: permanentErr("denied")}
	svc, _ := newTestService(t, fp, Config{MaxConcurrent: 1, FallbackEnabled: false})
	res, _ := svc.SubmitJob(context.Background(), SubmitRequest{Kind: "image", Params: domain.RawParams{Prompt: "a fox"}})
	view := waitFor(t, svc, res.Job.ID)
	if view.Status != domain.JobStatusFailed || view.ResultURI != "" {
		t.Fatalf("expected plain failure, got %+v", view)
	}
}

func TestServiceCancelPollingJobSkipsFallback(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{}, Config{MaxConcurrent: 1, FallbackEnabled: true})
	res, _ := svc.SubmitJob(context.Background(), SubmitRequest{Kind: "video", Params: domain.RawParams{Prompt: "a comet"}})

	waitStatus(t, svc, res.Job.ID, domain.JobStatusPolling)
	if _, err := svc.Cancel(res.Job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	view := waitFor(t, svc, res.Job.ID)
	if view.Status != domain.JobStatusFailed || view.Error.Cause != domain.CauseCancelled {
		t.Fatalf("expected cancelled failure, got %+v", view)
	}
}

func TestServiceCancelQueuedJob(t *testing.T) {
	blocker := &fakeProvider{blockPoll: make(chan struct{})}
	svc, _ := newTestService(t, blocker, Config{MaxConcurrent: 1, FallbackEnabled: true})

	first, _ := svc.SubmitJob(context.Background(), SubmitRequest{Kind: "video", Params: domain.RawParams{Prompt: "holds the slot"}})
	waitStatus(t, svc, first.Job.ID, domain.JobStatusPolling)
	second, _ := svc.SubmitJob(context.Background(), SubmitRequest{Kind: "video", Params: domain.RawParams{Prompt: "waits"}})

	if _, err := svc.Cancel(second.Job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	view := waitFor(t, svc, second.Job.ID)
	if view.Status != domain.JobStatusFailed || view.Error.Cause != domain.CauseCancelled {
		t.Fatalf("expected cancelled, got %+v", view)
	}
	if v, _ := svc.Status(first.Job.ID); v.Status.Terminal() {
		t.Fatalf("first job should still be running, got %s", v.Status)
	}
}

func TestServiceShutdownCancelsJobs(t *testing.T) {
	fp := &fakeProvider{blockPoll: make(chan struct{})}
	svc, _ := newTestService(t, fp, Config{MaxConcurrent: 1, FallbackEnabled: true})
	res, _ := svc.SubmitJob(context.Background(), SubmitRequest{Kind: "video", Params: domain.RawParams{Prompt: "a comet"}})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	view, _ := svc.Status(res.Job.ID)
	if view.Status != domain.JobStatusFailed || view.Error.Cause != domain.CauseCancelled {
		t.Fatalf("expected cancelled after shutdown, got %+v", view)
	}
	if _, err := svc.SubmitJob(context.Background(), SubmitRequest{Kind: "video", Params: domain.RawParams{Prompt: "late"}}); err != nil {
		t.Fatalf("SubmitJob after shutdown: %v", err)
	}
}

func TestServiceSweep(t *testing.T) {
	fp := &fakeProvider{primaryErr: permanentErr("denied")}
	svc, h := newTestService(t, fp, Config{MaxConcurrent: 1, JobRetention: time.Hour})
	res, _ := svc.SubmitJob(context.Background(), SubmitRequest{Kind: "image", Params: domain.RawParams{Prompt: "a fox"}})
	waitFor(t, svc, res.Job.ID)

	h.clock.Advance(2 * time.Hour)
	svc.Sweep(context.Background())
	if _, err := svc.Status(res.Job.ID); err == nil {
		t.Fatalf("expected job to be swept")
	}
}
