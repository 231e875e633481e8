package registry

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mediagen/internal/domain"
)

// Update carries the optional field changes applied with a transition. Nil
// fields are left untouched.
type Update struct {
	Handle         *domain.OperationHandle
	SubmitPath     *domain.SubmitPath
	Progress       *int
	AttemptCount   *int
	ResultURI      *string
	Error          *domain.JobError
	FallbackReason *domain.ErrorCause
	SubmittedAt    *time.Time
}

// Ptr returns a pointer to v; it keeps Update literals short.
func Ptr[T any](v T) *T {
	return &v
}

// Filter narrows List output. Zero fields match everything.
type Filter struct {
	Status domain.JobStatus
	Kind   domain.JobKind
	Limit  int
}

// Options configures a Registry.
type Options struct {
	Logger   zerolog.Logger
	Observer domain.JobObserver
	Now      func() time.Time
}

type record struct {
	mu      sync.Mutex
	job     domain.Job
	cancel  bool
	removed bool
}

// Registry owns every Job. Records live in an arena addressed through an id
// index; each record serializes its own mutations.
type Registry struct {
	mu    sync.RWMutex
	arena []*record
	free  []int
	index map[string]int

	log      zerolog.Logger
	observer domain.JobObserver
	now      func() time.Time
}

// New builds an empty registry.
func New(opts Options) *Registry {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{
		index:    make(map[string]int),
		log:      opts.Logger,
		observer: opts.Observer,
		now:      now,
	}
}

// CreateOrReuse registers a queued job. A non-terminal job with the same id is
// returned unchanged with created=false; a terminal one is replaced in place.
func (r *Registry) CreateOrReuse(id string, kind domain.JobKind, params domain.Params, choice domain.ModelChoice) (domain.Job, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	fresh := domain.Job{
		ID:        id,
		Kind:      kind,
		Status:    domain.JobStatusQueued,
		Provider:  choice.Provider,
		Model:     choice.Model,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if slot, ok := r.index[id]; ok {
		rec := r.arena[slot]
		rec.mu.Lock()
		defer rec.mu.Unlock()
		if !rec.job.Status.Terminal() {
			return rec.job, false, nil
		}
		r.log.Info().Str("job_id", id).Str("previous_status", string(rec.job.Status)).Msg("registry: replacing terminal job")
		rec.job = fresh
		rec.cancel = false
		r.notify(rec.job)
		return rec.job, true, nil
	}

	rec := &record{job: fresh}
	if n := len(r.free); n > 0 {
		slot := r.free[n-1]
		r.free = r.free[:n-1]
		r.arena[slot] = rec
		r.index[id] = slot
	} else {
		r.arena = append(r.arena, rec)
		r.index[id] = len(r.arena) - 1
	}
	rec.mu.Lock()
	r.notify(rec.job)
	rec.mu.Unlock()
	return fresh, true, nil
}

// Get returns a snapshot of the job.
func (r *Registry) Get(id string) (domain.Job, error) {
	rec, err := r.lookup(id)
	if err != nil {
		return domain.Job{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.removed {
		return domain.Job{}, domain.ErrNotFound
	}
	return rec.job, nil
}

// Transition moves the job to status to and applies u atomically. Illegal
// steps and updates that would break a job invariant return
// *domain.InvalidTransitionError and leave the job untouched.
func (r *Registry) Transition(id string, to domain.JobStatus, u Update) (domain.Job, error) {
	rec, err := r.lookup(id)
	if err != nil {
		return domain.Job{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.removed {
		return domain.Job{}, domain.ErrNotFound
	}

	next, err := apply(rec.job, to, u)
	if err != nil {
		r.log.Error().Err(err).Str("job_id", id).Str("from", string(rec.job.Status)).Str("to", string(to)).Msg("registry: rejected transition")
		return rec.job, err
	}
	next.UpdatedAt = r.now().UTC()
	rec.job = next
	r.notify(rec.job)
	return rec.job, nil
}

func apply(job domain.Job, to domain.JobStatus, u Update) (domain.Job, error) {
	from := job.Status
	reject := func(why string) (domain.Job, error) {
		return job, &domain.InvalidTransitionError{JobID: job.ID, From: from, To: to, Why: why}
	}
	if !domain.CanTransition(from, to) {
		return reject("")
	}

	next := job
	next.Status = to
	if u.Handle != nil {
		next.Handle = *u.Handle
	}
	if u.SubmitPath != nil {
		next.SubmitPath = *u.SubmitPath
	}
	if u.SubmittedAt != nil {
		next.SubmittedAt = u.SubmittedAt.UTC()
	}
	if u.AttemptCount != nil {
		if *u.AttemptCount < 0 {
			return reject("negative attempt count")
		}
		next.AttemptCount = *u.AttemptCount
	}
	if u.Progress != nil {
		p := *u.Progress
		if p > 100 {
			p = 100
		}
		if p > next.Progress {
			next.Progress = p
		}
	}

	if to == domain.JobStatusPolling && next.Handle.IsZero() {
		return reject("polling requires an operation handle")
	}

	switch {
	case to.HasResult():
		uri := next.ResultURI
		if u.ResultURI != nil {
			uri = strings.TrimSpace(*u.ResultURI)
		}
		if uri == "" {
			return reject("result uri required")
		}
		next.ResultURI = uri
		if to == domain.JobStatusComplete {
			next.Progress = 100
		}
	case u.ResultURI != nil && *u.ResultURI != "":
		return reject("result uri only allowed on complete or fallback")
	}

	switch to {
	case domain.JobStatusFailed:
		if u.Error == nil {
			return reject("error required")
		}
		e := *u.Error
		next.Error = &e
	case domain.JobStatusFallback:
		cause := domain.ErrorCause("")
		if job.Error != nil {
			cause = job.Error.Cause
		}
		if u.FallbackReason != nil {
			cause = *u.FallbackReason
		}
		next.FallbackReason = cause
		next.Error = nil
	default:
		if u.Error != nil {
			return reject("error only allowed on failed")
		}
	}
	return next, nil
}

// RequestCancel flags the job for cooperative cancellation. Terminal jobs are
// returned unchanged.
func (r *Registry) RequestCancel(id string) (domain.Job, error) {
	rec, err := r.lookup(id)
	if err != nil {
		return domain.Job{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.removed {
		return domain.Job{}, domain.ErrNotFound
	}
	if !rec.job.Status.Terminal() {
		rec.cancel = true
	}
	return rec.job, nil
}

// CancelRequested reports whether RequestCancel was called for a live job.
func (r *Registry) CancelRequested(id string) bool {
	rec, err := r.lookup(id)
	if err != nil {
		return false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.cancel && !rec.removed
}

// Sweep drops terminal jobs last updated more than retention ago and returns
// how many were removed.
func (r *Registry) Sweep(retention time.Duration) int {
	cutoff := r.now().UTC().Add(-retention)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, slot := range r.index {
		rec := r.arena[slot]
		rec.mu.Lock()
		if rec.job.Status.Terminal() && rec.job.UpdatedAt.Before(cutoff) {
			rec.removed = true
			delete(r.index, id)
			r.arena[slot] = nil
			r.free = append(r.free, slot)
			removed++
		}
		rec.mu.Unlock()
	}
	if removed > 0 {
		r.log.Info().Int("removed", removed).Dur("retention", retention).Msg("registry: swept terminal jobs")
	}
	return removed
}

// List returns snapshots matching f, newest first.
func (r *Registry) List(f Filter) []domain.Job {
	r.mu.RLock()
	recs := make([]*record, 0, len(r.index))
	for _, slot := range r.index {
		recs = append(recs, r.arena[slot])
	}
	r.mu.RUnlock()

	out := make([]domain.Job, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		job, removed := rec.job, rec.removed
		rec.mu.Unlock()
		if removed {
			continue
		}
		if f.Status != "" && job.Status != f.Status {
			continue
		}
		if f.Kind != "" && job.Kind != f.Kind {
			continue
		}
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// Counts tallies live jobs per status.
func (r *Registry) Counts() map[domain.JobStatus]int {
	counts := make(map[domain.JobStatus]int)
	for _, job := range r.List(Filter{}) {
		counts[job.Status]++
	}
	return counts
}

func (r *Registry) lookup(id string) (*record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slot, ok := r.index[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.arena[slot], nil
}

// notify must run with the record lock held so observers see per-job order.
func (r *Registry) notify(job domain.Job) {
	if r.observer != nil {
		r.observer.JobChanged(job)
	}
}
