package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/constraint"
	"mediagen/internal/domain"
	"mediagen/internal/fallback"
	"mediagen/internal/registry"
	"mediagen/internal/selector"
	"mediagen/internal/storage"
	"mediagen/internal/telemetry"
)

// Config holds the orchestration knobs loaded from the environment.
type Config struct {
	MaxConcurrent     int
	JobRetention      time.Duration
	ArtifactRetention time.Duration
	SweepInterval     time.Duration
	FallbackEnabled   bool
}

// SubmitRequest is the caller facing submission.
type SubmitRequest struct {
	Kind          string
	Params        domain.RawParams
	ExistingJobID string
}

// SubmitResult reports the job that will serve a request.
type SubmitResult struct {
	Job    domain.Job
	Reused bool
}

// StatusView is the read model returned to callers.
type StatusView struct {
	JobID          string            `json:"job_id"`
	Kind           domain.JobKind    `json:"kind"`
	Status         domain.JobStatus  `json:"status"`
	Progress       int               `json:"progress"`
	ResultURI      string            `json:"result_uri,omitempty"`
	Error          *domain.JobError  `json:"error,omitempty"`
	FallbackReason domain.ErrorCause `json:"fallback_reason,omitempty"`
	Provider       string            `json:"provider"`
	Model          string            `json:"model"`
	SubmitPath     domain.SubmitPath `json:"submit_path,omitempty"`
	Attempts       int               `json:"attempt_count"`
	Coercions      []domain.Coercion `json:"coercions,omitempty"`
	Metadata       JobMetadata       `json:"metadata"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// JobMetadata echoes the normalized generation parameters of a job.
type JobMetadata struct {
	Duration    int                `json:"duration,omitempty"`
	Resolution  string             `json:"resolution,omitempty"`
	AspectRatio string             `json:"aspect_ratio,omitempty"`
	Purpose     domain.Purpose     `json:"purpose,omitempty"`
	QualityTier domain.QualityTier `json:"quality_tier,omitempty"`
}

// Deps wires the collaborators of a Service.
type Deps struct {
	Validator  *constraint.Validator
	Selector   *selector.Selector
	Jobs       *registry.Registry
	Dispatcher *Dispatcher
	Poller     *Poller
	Fallback   *fallback.Generator
	Store      storage.Store
	Logger     zerolog.Logger
}

// Service is the entry point of the orchestrator: it validates requests,
// schedules job tasks and applies the fallback policy.
type Service struct {
	validator  *constraint.Validator
	selector   *selector.Selector
	jobs       *registry.Registry
	dispatcher *Dispatcher
	poller     *Poller
	fallback   *fallback.Generator
	store      storage.Store
	pool       *Pool
	log        zerolog.Logger
	cfg        Config
}

// NewService builds a service and its worker pool.
func NewService(deps Deps, cfg Config) *Service {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 10 * time.Minute
	}
	return &Service{
		validator:  deps.Validator,
		selector:   deps.Selector,
		jobs:       deps.Jobs,
		dispatcher: deps.Dispatcher,
		poller:     deps.Poller,
		fallback:   deps.Fallback,
		store:      deps.Store,
		pool:       NewPool(cfg.MaxConcurrent),
		log:        deps.Logger,
		cfg:        cfg,
	}
}

// SubmitJob validates the request, registers the job and schedules it. A live
// job with the same id is returned as is.
func (s *Service) SubmitJob(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	kind, ok := domain.ParseJobKind(strings.ToLower(strings.TrimSpace(req.Kind)))
	if !ok {
		return SubmitResult{}, &domain.ValidationError{Field: "kind", Value: req.Kind, Reason: "unsupported kind"}
	}
	params, err := s.validator.Validate(kind, req.Params)
	if err != nil {
		return SubmitResult{}, err
	}
	choice := s.selector.Select(kind, params.Purpose, params.QualityTier, params.NeedsEditing, params.SpeedPriority)

	job, created, err := s.jobs.CreateOrReuse(req.ExistingJobID, kind, params, choice)
	if err != nil {
		return SubmitResult{}, err
	}
	if !created {
		return SubmitResult{Job: job, Reused: true}, nil
	}

	if err := s.schedule(ctx, job.ID); err != nil {
		failed, terr := s.jobs.Transition(job.ID, domain.JobStatusFailed, registry.Update{Error: domain.NewJobError(domain.CauseCancelled, err)})
		if terr != nil {
			return SubmitResult{}, fmt.Errorf("schedule job: %w", errors.Join(err, terr))
		}
		return SubmitResult{Job: failed}, nil
	}
	s.log.Info().Str("job_id", job.ID).Str("kind", string(kind)).Str("model", choice.Model).Str("reason", choice.Reason).Msg("service: job accepted")
	return SubmitResult{Job: job}, nil
}

// schedule starts the task for id. A replaced terminal job may still have its
// previous task unwinding; that one is joined first.
func (s *Service) schedule(ctx context.Context, id string) error {
	for i := 0; i < 2; i++ {
		started, err := s.pool.Go(id, s.runTask(id))
		if err != nil || started {
			return err
		}
		if err := s.pool.Wait(ctx, id); err != nil {
			return err
		}
	}
	return fmt.Errorf("job %s: previous task still running", id)
}

func (s *Service) runTask(id string) Task {
	return func(ctx context.Context, acquire func() error) {
		telemetry.InFlightGauge.Inc()
		defer telemetry.InFlightGauge.Dec()

		job, err := s.execute(ctx, id, acquire)
		if err != nil {
			s.log.Error().Err(err).Str("job_id", id).Msg("service: job task error")
		}
		if job.Status == domain.JobStatusFailed {
			s.applyFallback(ctx, job)
		}
	}
}

func (s *Service) execute(ctx context.Context, id string, acquire func() error) (domain.Job, error) {
	if err := acquire(); err != nil {
		return s.jobs.Transition(id, domain.JobStatusFailed, registry.Update{Error: domain.NewJobError(domain.CauseCancelled, err)})
	}
	job, err := s.dispatcher.Submit(ctx, id)
	if err != nil || job.Status != domain.JobStatusPolling {
		return job, err
	}
	return s.poller.Run(ctx, id)
}

// applyFallback replaces a failed job's outcome with a placeholder artifact.
// Cancelled jobs keep their failure.
func (s *Service) applyFallback(ctx context.Context, job domain.Job) {
	if !s.cfg.FallbackEnabled || s.fallback == nil || job.Error == nil {
		return
	}
	if job.Error.Cause == domain.CauseCancelled {
		return
	}
	uri, err := s.fallback.Generate(context.WithoutCancel(ctx), job.Kind, job.Params)
	if err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("service: fallback generation failed")
		return
	}
	cause := job.Error.Cause
	if _, err := s.jobs.Transition(job.ID, domain.JobStatusFallback, registry.Update{ResultURI: &uri, FallbackReason: &cause}); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("service: record fallback failed")
		return
	}
	s.log.Info().Str("job_id", job.ID).Str("cause", string(cause)).Str("uri", uri).Msg("service: served fallback artifact")
}

// Status returns the current view of a job without side effects.
func (s *Service) Status(id string) (StatusView, error) {
	job, err := s.jobs.Get(id)
	if err != nil {
		return StatusView{}, err
	}
	return ViewOf(job), nil
}

// List returns views matching f, newest first.
func (s *Service) List(f registry.Filter) []StatusView {
	jobs := s.jobs.List(f)
	out := make([]StatusView, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, ViewOf(job))
	}
	return out
}

// Cancel requests cooperative cancellation. A job still waiting for a slot is
// woken right away; a polling job stops at its next tick.
func (s *Service) Cancel(id string) (StatusView, error) {
	job, err := s.jobs.RequestCancel(id)
	if err != nil {
		return StatusView{}, err
	}
	if job.Status == domain.JobStatusQueued {
		s.pool.Cancel(id)
	}
	s.log.Info().Str("job_id", id).Str("status", string(job.Status)).Msg("service: cancel requested")
	return ViewOf(job), nil
}

// Counts reports how many registered jobs are in each status.
func (s *Service) Counts() map[domain.JobStatus]int {
	return s.jobs.Counts()
}

// Active reports the number of running job tasks.
func (s *Service) Active() int {
	return s.pool.Active()
}

// Wait blocks until the task for id finishes.
func (s *Service) Wait(ctx context.Context, id string) error {
	return s.pool.Wait(ctx, id)
}

// Sweep runs one retention pass over jobs and artifacts.
func (s *Service) Sweep(ctx context.Context) {
	if s.cfg.JobRetention > 0 {
		n := s.jobs.Sweep(s.cfg.JobRetention)
		telemetry.JobsSwept.Add(float64(n))
	}
	if s.cfg.ArtifactRetention > 0 && s.store != nil {
		n, err := s.store.Cleanup(ctx, s.cfg.ArtifactRetention)
		telemetry.ArtifactsSwept.Add(float64(n))
		if err != nil {
			s.log.Error().Err(err).Msg("service: artifact cleanup failed")
		} else if n > 0 {
			s.log.Info().Int("removed", n).Msg("service: artifacts cleaned")
		}
	}
}

// RunSweeper calls Sweep every SweepInterval until ctx ends.
func (s *Service) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Shutdown cancels every job task and waits for them to record their outcome.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.pool.Shutdown(ctx)
}

// ViewOf projects a job snapshot onto the caller facing read model.
func ViewOf(job domain.Job) StatusView {
	return StatusView{
		JobID:          job.ID,
		Kind:           job.Kind,
		Status:         job.Status,
		Progress:       job.Progress,
		ResultURI:      job.ResultURI,
		Error:          job.Error,
		FallbackReason: job.FallbackReason,
		Provider:       job.Provider,
		Model:          job.Model,
		SubmitPath:     job.SubmitPath,
		Attempts:       job.AttemptCount,
		Coercions:      job.Params.Coercions,
		Metadata: JobMetadata{
			Duration:    job.Params.Duration,
			Resolution:  job.Params.Resolution,
			AspectRatio: job.Params.AspectRatio,
			Purpose:     job.Params.Purpose,
			QualityTier: job.Params.QualityTier,
		},
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
}
