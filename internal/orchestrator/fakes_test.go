package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/domain"
	"mediagen/internal/registry"
	"mediagen/internal/storage"
)

type pollStep struct {
	res domain.PollResult
	err error
}

type fakeProvider struct {
	mu           sync.Mutex
	primaryErr   error
	secondaryErr error
	noSecondary  bool
	primaryCalls int
	secCalls     int
	steps        []pollStep
	pollCalls    int
	downloadErr  error
	blockPoll    chan struct{}
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) submitCalls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.primaryCalls, f.secCalls
}

func (f *fakeProvider) Primary() domain.Submitter {
	return domain.SubmitterFunc(func(ctx context.Context, req domain.SubmitRequest) (domain.OperationHandle, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.primaryCalls++
		if f.primaryErr != nil {
			return domain.OperationHandle{}, f.primaryErr
		}
		return domain.NewOperationHandle("operations/primary-" + req.JobID), nil
	})
}

func (f *fakeProvider) Secondary() domain.Submitter {
	if f.noSecondary {
		return nil
	}
	return domain.SubmitterFunc(func(ctx context.Context, req domain.SubmitRequest) (domain.OperationHandle, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.secCalls++
		if f.secondaryErr != nil {
			return domain.OperationHandle{}, f.secondaryErr
		}
		return domain.NewOperationHandle("operations/secondary-" + req.JobID), nil
	})
}

func (f *fakeProvider) Poll(ctx context.Context, h domain.OperationHandle) (domain.PollResult, error) {
	if f.blockPoll != nil {
		select {
		case <-f.blockPoll:
		case <-ctx.Done():
			return domain.PollResult{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollCalls++
	if len(f.steps) == 0 {
		return domain.Pending(-1), nil
	}
	step := f.steps[0]
	if len(f.steps) > 1 {
		f.steps = f.steps[1:]
	}
	return step.res, step.err
}

func (f *fakeProvider) Download(ctx context.Context, ref domain.ResultRef) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.downloadErr != nil {
		return nil, "", f.downloadErr
	}
	return []byte("video-bytes"), "video/mp4", nil
}

func transientErr(msg string) error {
	return &domain.ProviderError{Op: "poll", Provider: "fake", Kind: domain.ProviderTransient, StatusCode: 503, Err: errors.New(msg)}
}

func permanentErr(msg string) error {
	return &domain.ProviderError{Op: "submit", Provider: "fake", Kind: domain.ProviderPermanent, StatusCode: 403, Err: errors.New(msg)}
}

func unsupportedErr(msg string) error {
	return &domain.ProviderError{Op: "submit", Provider: "fake", Kind: domain.ProviderUnsupported, StatusCode: 400, Err: errors.New(msg)}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	jobs       *registry.Registry
	provider   *fakeProvider
	store      *storage.FileStore
	dispatcher *Dispatcher
	poller     *Poller
	clock      *testClock
}

func newHarness(t *testing.T, fp *fakeProvider, opts PollerOptions) *harness {
	t.Helper()
	clock := newTestClock()
	jobs := registry.New(registry.Options{Logger: zerolog.Nop(), Now: clock.Now})
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if opts.Now == nil {
		opts.Now = clock.Now
	}
	d := NewDispatcher(jobs, fp, nil, zerolog.Nop())
	d.now = clock.Now
	return &harness{
		jobs:       jobs,
		provider:   fp,
		store:      store,
		dispatcher: d,
		poller:     NewPoller(jobs, fp, store, zerolog.Nop(), opts),
		clock:      clock,
	}
}

func (h *harness) queue(t *testing.T, id string, kind domain.JobKind) domain.Job {
	t.Helper()
	job, _, err := h.jobs.CreateOrReuse(id, kind, domain.Params{Prompt: "a kite", Resolution: "720p", Duration: 8, AspectRatio: "16:9"}, domain.ModelChoice{Provider: "fake", Model: "veo-test"})
	if err != nil {
		t.Fatalf("CreateOrReuse: %v", err)
	}
	return job
}

func (h *harness) submitted(t *testing.T, id string) domain.Job {
	t.Helper()
	h.queue(t, id, domain.JobKindVideo)
	job, err := h.dispatcher.Submit(context.Background(), id)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Status != domain.JobStatusPolling {
		t.Fatalf("expected polling, got %s", job.Status)
	}
	return job
}
