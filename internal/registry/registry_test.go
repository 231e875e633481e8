package registry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/domain"
)

type recordingObserver struct {
	mu   sync.Mutex
	seen []domain.Job
}

func (o *recordingObserver) JobChanged(job domain.Job) {
	o.mu.Lock()
	o.seen = append(o.seen, job)
	o.mu.Unlock()
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRegistry(obs domain.JobObserver) (*Registry, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	return New(Options{Logger: zerolog.Nop(), Observer: obs, Now: clock.Now}), clock
}

func testParams() domain.Params {
	return domain.Params{Prompt: "a lighthouse", Resolution: "720p", Duration: 8, AspectRatio: "16:9"}
}

func testChoice() domain.ModelChoice {
	return domain.ModelChoice{Provider: "gemini", Model: "veo-3.1-generate-preview"}
}

func moveToPolling(t *testing.T, r *Registry, id string) {
	t.Helper()
	if _, err := r.Transition(id, domain.JobStatusSubmitting, Update{}); err != nil {
		t.Fatalf("submitting: %v", err)
	}
	h := domain.NewOperationHandle("operations/abc")
	if _, err := r.Transition(id, domain.JobStatusPolling, Update{Handle: &h}); err != nil {
		t.Fatalf("polling: %v", err)
	}
}

func TestCreateOrReuseSameID(t *testing.T) {
	r, _ := newTestRegistry(nil)
	first, created, err := r.CreateOrReuse("x", domain.JobKindVideo, testParams(), testChoice())
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}
	second, created, err := r.CreateOrReuse("x", domain.JobKindVideo, testParams(), testChoice())
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created {
		t.Fatalf("expected reuse of live job")
	}
	if first.ID != "x" || second.ID != "x" || second.CreatedAt != first.CreatedAt {
		t.Fatalf("expected same job, got %+v and %+v", first, second)
	}
	if got := len(r.List(Filter{})); got != 1 {
		t.Fatalf("expected a single job, got %d", got)
	}
}

func TestCreateOrReuseReplacesTerminal(t *testing.T) {
	r, clock := newTestRegistry(nil)
	if _, _, err := r.CreateOrReuse("x", domain.JobKindImage, testParams(), testChoice()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := r.Transition("x", domain.JobStatusFailed, Update{Error: &domain.JobError{Cause: domain.CauseSubmissionPermanent, Message: "boom"}}); err != nil {
		t.Fatalf("fail: %v", err)
	}
	clock.Advance(time.Minute)
	job, created, err := r.CreateOrReuse("x", domain.JobKindImage, testParams(), testChoice())
	if err != nil || !created {
		t.Fatalf("expected replacement, created=%v err=%v", created, err)
	}
	if job.Status != domain.JobStatusQueued || job.Error != nil {
		t.Fatalf("expected fresh queued job, got %+v", job)
	}
}

func TestCreateGeneratesID(t *testing.T) {
	r, _ := newTestRegistry(nil)
	job, _, err := r.CreateOrReuse("", domain.JobKindImage, testParams(), testChoice())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(job.ID) != 36 {
		t.Fatalf("expected uuid id, got %q", job.ID)
	}
}

func TestGetNotFound(t *testing.T) {
	r, _ := newTestRegistry(nil)
	if _, err := r.Get("missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := r.Transition("missing", domain.JobStatusSubmitting, Update{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransitionRejectsIllegalSteps(t *testing.T) {
	r, _ := newTestRegistry(nil)
	r.CreateOrReuse("j", domain.JobKindVideo, testParams(), testChoice())

	tests := []struct {
		name string
		to   domain.JobStatus
		u    Update
	}{
		{name: "skip submitting", to: domain.JobStatusPolling, u: Update{Handle: Ptr(domain.NewOperationHandle("op"))}},
		{name: "complete from queued", to: domain.JobStatusComplete, u: Update{ResultURI: Ptr("artifact://x")}},
		{name: "failed without error", to: domain.JobStatusFailed},
		{name: "fallback from queued", to: domain.JobStatusFallback, u: Update{ResultURI: Ptr("artifact://x")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Transition("j", tt.to, tt.u)
			var ite *domain.InvalidTransitionError
			if !errors.As(err, &ite) {
				t.Fatalf("expected InvalidTransitionError, got %v", err)
			}
			job, _ := r.Get("j")
			if job.Status != domain.JobStatusQueued {
				t.Fatalf("job mutated by rejected transition: %s", job.Status)
			}
		})
	}
}

func TestTransitionPollingNeedsHandle(t *testing.T) {
	r, _ := newTestRegistry(nil)
	r.CreateOrReuse("j", domain.JobKindVideo, testParams(), testChoice())
	r.Transition("j", domain.JobStatusSubmitting, Update{})
	var ite *domain.InvalidTransitionError
	if _, err := r.Transition("j", domain.JobStatusPolling, Update{}); !errors.As(err, &ite) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	r, _ := newTestRegistry(nil)
	r.CreateOrReuse("j", domain.JobKindVideo, testParams(), testChoice())
	moveToPolling(t, r, "j")

	for _, p := range []int{10, 40, 25, 0, 55, 200} {
		if _, err := r.Transition("j", domain.JobStatusPolling, Update{Progress: Ptr(p)}); err != nil {
			t.Fatalf("progress %d: %v", p, err)
		}
	}
	job, _ := r.Get("j")
	if job.Progress != 100 {
		t.Fatalf("expected clamp to 100, got %d", job.Progress)
	}

	r.CreateOrReuse("k", domain.JobKindVideo, testParams(), testChoice())
	moveToPolling(t, r, "k")
	prev := 0
	for _, p := range []int{30, 20, 31} {
		job, _ := r.Transition("k", domain.JobStatusPolling, Update{Progress: Ptr(p)})
		if job.Progress < prev {
			t.Fatalf("progress decreased from %d to %d", prev, job.Progress)
		}
		prev = job.Progress
	}
	if prev != 31 {
		t.Fatalf("expected 31, got %d", prev)
	}
}

func TestResultURIInvariant(t *testing.T) {
	r, _ := newTestRegistry(nil)
	r.CreateOrReuse("j", domain.JobKindVideo, testParams(), testChoice())
	moveToPolling(t, r, "j")

	var ite *domain.InvalidTransitionError
	if _, err := r.Transition("j", domain.JobStatusComplete, Update{}); !errors.As(err, &ite) {
		t.Fatalf("expected rejection without uri, got %v", err)
	}
	if _, err := r.Transition("j", domain.JobStatusPolling, Update{ResultURI: Ptr("artifact://early")}); !errors.As(err, &ite) {
		t.Fatalf("expected rejection of uri while polling, got %v", err)
	}
	job, err := r.Transition("j", domain.JobStatusComplete, Update{ResultURI: Ptr("artifact://generated/videos/a.mp4")})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if job.Progress != 100 || job.ResultURI == "" {
		t.Fatalf("unexpected complete job %+v", job)
	}
	if _, err := r.Transition("j", domain.JobStatusFailed, Update{Error: &domain.JobError{Cause: domain.CausePollingFatal}}); !errors.As(err, &ite) {
		t.Fatalf("complete must be final, got %v", err)
	}
}

func TestFallbackClearsError(t *testing.T) {
	r, _ := newTestRegistry(nil)
	r.CreateOrReuse("j", domain.JobKindImage, testParams(), testChoice())
	r.Transition("j", domain.JobStatusFailed, Update{Error: &domain.JobError{Cause: domain.CauseSubmissionPermanent, Message: "no key"}})
	job, err := r.Transition("j", domain.JobStatusFallback, Update{ResultURI: Ptr("artifact://fallback/images/a.png")})
	if err != nil {
		t.Fatalf("fallback: %v", err)
	}
	if job.Error != nil || job.FallbackReason != domain.CauseSubmissionPermanent {
		t.Fatalf("unexpected fallback job %+v", job)
	}
}

func TestCancelFlag(t *testing.T) {
	r, _ := newTestRegistry(nil)
	r.CreateOrReuse("j", domain.JobKindImage, testParams(), testChoice())
	if r.CancelRequested("j") {
		t.Fatalf("flag set before request")
	}
	if _, err := r.RequestCancel("j"); err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	if !r.CancelRequested("j") {
		t.Fatalf("expected flag after request")
	}
	if _, err := r.RequestCancel("nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSweep(t *testing.T) {
	r, clock := newTestRegistry(nil)
	r.CreateOrReuse("old", domain.JobKindImage, testParams(), testChoice())
	r.Transition("old", domain.JobStatusFailed, Update{Error: &domain.JobError{Cause: domain.CauseStorage}})
	r.CreateOrReuse("live", domain.JobKindImage, testParams(), testChoice())

	clock.Advance(2 * time.Hour)
	r.CreateOrReuse("recent", domain.JobKindImage, testParams(), testChoice())
	r.Transition("recent", domain.JobStatusFailed, Update{Error: &domain.JobError{Cause: domain.CauseStorage}})

	if n := r.Sweep(time.Hour); n != 1 {
		t.Fatalf("expected 1 swept, got %d", n)
	}
	if _, err := r.Get("old"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("old job still present: %v", err)
	}
	for _, id := range []string{"live", "recent"} {
		if _, err := r.Get(id); err != nil {
			t.Fatalf("%s should remain: %v", id, err)
		}
	}
	// freed slot is reused
	r.CreateOrReuse("next", domain.JobKindImage, testParams(), testChoice())
	if got := len(r.arena); got != 3 {
		t.Fatalf("expected arena slot reuse, arena=%d", got)
	}
}

func TestObserverSeesEveryCommit(t *testing.T) {
	obs := &recordingObserver{}
	r, _ := newTestRegistry(obs)
	r.CreateOrReuse("j", domain.JobKindVideo, testParams(), testChoice())
	moveToPolling(t, r, "j")
	r.Transition("j", domain.JobStatusComplete, Update{}) // rejected, not observed

	want := []domain.JobStatus{domain.JobStatusQueued, domain.JobStatusSubmitting, domain.JobStatusPolling}
	if len(obs.seen) != len(want) {
		t.Fatalf("expected %d notifications, got %d", len(want), len(obs.seen))
	}
	for i, st := range want {
		if obs.seen[i].Status != st {
			t.Fatalf("notification %d: expected %s, got %s", i, st, obs.seen[i].Status)
		}
	}
}

func TestConcurrentTransitions(t *testing.T) {
	r, _ := newTestRegistry(nil)
	r.CreateOrReuse("j", domain.JobKindVideo, testParams(), testChoice())
	moveToPolling(t, r, "j")

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			r.Transition("j", domain.JobStatusPolling, Update{Progress: Ptr(p)})
			r.Get("j")
		}(i)
	}
	wg.Wait()
	job, _ := r.Get("j")
	if job.Progress != 50 {
		t.Fatalf("expected max progress 50, got %d", job.Progress)
	}
}

func TestObserversFanOut(t *testing.T) {
	a, b := &recordingObserver{}, &recordingObserver{}
	r, _ := newTestRegistry(Observers{a, nil, b})
	r.CreateOrReuse("j", domain.JobKindImage, testParams(), testChoice())
	if len(a.seen) != 1 || len(b.seen) != 1 {
		t.Fatalf("expected one notification each, got %d and %d", len(a.seen), len(b.seen))
	}
}
