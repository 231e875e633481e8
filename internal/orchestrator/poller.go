package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"mediagen/internal/domain"
	"mediagen/internal/registry"
	"mediagen/internal/storage"
	"mediagen/internal/telemetry"
)

// PollerOptions tunes the polling loop.
type PollerOptions struct {
	Interval    time.Duration
	Timeout     time.Duration
	MaxAttempts int
	// Limiter is shared by every job so status queries stay under the
	// provider's request quota. Nil disables it.
	Limiter   *rate.Limiter
	Estimator Estimator
	Now       func() time.Time
}

// Poller watches a submitted job until it completes, fails, times out or is
// cancelled.
type Poller struct {
	jobs     *registry.Registry
	provider domain.Provider
	store    storage.Store
	log      zerolog.Logger
	opts     PollerOptions
}

// NewPoller fills unset options with defaults.
func NewPoller(jobs *registry.Registry, provider domain.Provider, store storage.Store, logger zerolog.Logger, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 600 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Estimator.Cap == 0 {
		opts.Estimator = DefaultEstimator()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Poller{jobs: jobs, provider: provider, store: store, log: logger, opts: opts}
}

// Run ticks until the job leaves polling. When ctx ends first the job is
// failed with the cancelled cause.
func (p *Poller) Run(ctx context.Context, id string) (domain.Job, error) {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()
	for {
		job, done, err := p.Tick(ctx, id)
		if done {
			return job, err
		}
		if err != nil && ctx.Err() == nil {
			return job, err
		}
		select {
		case <-ctx.Done():
			return p.fail(id, domain.CauseCancelled, fmt.Errorf("poller stopped: %w", ctx.Err()))
		case <-ticker.C:
		}
	}
}

// Tick performs one polling step. done reports whether the job left polling.
func (p *Poller) Tick(ctx context.Context, id string) (domain.Job, bool, error) {
	job, err := p.jobs.Get(id)
	if err != nil {
		return job, true, err
	}
	if job.Status != domain.JobStatusPolling {
		return job, true, nil
	}

	if p.jobs.CancelRequested(id) {
		job, err := p.fail(id, domain.CauseCancelled, domain.ErrCancelled)
		return job, true, err
	}
	if now := p.opts.Now(); !now.Before(job.Deadline(p.opts.Timeout)) {
		job, err := p.fail(id, domain.CauseTimeoutExceeded, fmt.Errorf("no result within %s", p.opts.Timeout))
		return job, true, err
	}
	if p.opts.Limiter != nil {
		if err := p.opts.Limiter.Wait(ctx); err != nil {
			return job, false, err
		}
	}

	start := time.Now()
	res, err := p.provider.Poll(ctx, job.Handle)
	telemetry.ProviderLatency.WithLabelValues("poll").Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return job, false, ctx.Err()
		}
		return p.queryFailed(ctx, job, err)
	}

	switch res.State {
	case domain.PollPending:
		elapsed := p.opts.Now().Sub(job.SubmittedAt)
		progress := p.opts.Estimator.merge(p.opts.Estimator.Estimate(job.Kind, elapsed), res.ProgressHint)
		job, err := p.jobs.Transition(id, domain.JobStatusPolling, registry.Update{
			Progress:     &progress,
			AttemptCount: registry.Ptr(0),
		})
		return job, false, err
	case domain.PollFailed:
		// The provider finished the computation with an error; polling again
		// cannot change that.
		job, err := p.fail(id, domain.CausePollingFatal, fmt.Errorf("%w: %s", domain.ErrProviderFailure, res.Message))
		return job, true, err
	case domain.PollDone:
		return p.complete(ctx, job, res.Result)
	default:
		job, err := p.fail(id, domain.CausePollingFatal, fmt.Errorf("unknown poll state %d", res.State))
		return job, true, err
	}
}

// queryFailed counts a failed status query. Transient errors are retried on the
// next tick until MaxAttempts consecutive failures.
func (p *Poller) queryFailed(ctx context.Context, job domain.Job, err error) (domain.Job, bool, error) {
	telemetry.PollErrors.WithLabelValues(string(job.Kind)).Inc()
	if domain.IsPermanent(err) {
		next, ferr := p.fail(job.ID, domain.CausePollingFatal, err)
		return next, true, ferr
	}
	attempts := job.AttemptCount + 1
	if attempts >= p.opts.MaxAttempts {
		next, ferr := p.failWith(job.ID, registry.Update{
			AttemptCount: &attempts,
			Error:        domain.NewJobError(domain.CausePollingFatal, fmt.Errorf("%d consecutive poll failures, last: %w", attempts, err)),
		})
		return next, true, ferr
	}
	p.log.Warn().Err(err).Str("job_id", job.ID).Int("attempt", attempts).Int("max_attempts", p.opts.MaxAttempts).Msg("poller: transient status error")
	next, terr := p.jobs.Transition(job.ID, domain.JobStatusPolling, registry.Update{AttemptCount: &attempts})
	return next, false, terr
}

func (p *Poller) complete(ctx context.Context, job domain.Job, ref domain.ResultRef) (domain.Job, bool, error) {
	data, contentType := ref.Inline, ref.ContentType
	if len(data) == 0 {
		start := time.Now()
		var err error
		data, contentType, err = p.provider.Download(ctx, ref)
		telemetry.ProviderLatency.WithLabelValues("download").Observe(time.Since(start).Seconds())
		if err != nil {
			if ctx.Err() != nil {
				return job, false, ctx.Err()
			}
			return p.queryFailed(ctx, job, fmt.Errorf("download result: %w", err))
		}
	}
	if contentType == "" {
		contentType = ref.ContentType
	}

	uri, err := p.store.Write(ctx, domain.Artifact{
		Kind:        job.Kind,
		Tag:         domain.ArtifactGenerated,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return job, false, ctx.Err()
		}
		next, ferr := p.fail(job.ID, domain.CauseStorage, err)
		return next, true, ferr
	}
	next, err := p.jobs.Transition(job.ID, domain.JobStatusComplete, registry.Update{ResultURI: &uri})
	if err != nil {
		return next, true, err
	}
	p.log.Info().Str("job_id", job.ID).Str("uri", uri).Int("bytes", len(data)).Msg("poller: job complete")
	return next, true, nil
}

func (p *Poller) fail(id string, cause domain.ErrorCause, err error) (domain.Job, error) {
	return p.failWith(id, registry.Update{Error: domain.NewJobError(cause, err)})
}

// failWith moves the job to failed; u must carry the Error.
func (p *Poller) failWith(id string, u registry.Update) (domain.Job, error) {
	job, terr := p.jobs.Transition(id, domain.JobStatusFailed, u)
	if terr != nil {
		return job, fmt.Errorf("record poll failure: %w", terr)
	}
	p.log.Warn().Str("job_id", id).Str("cause", string(job.Error.Cause)).Int("attempts", job.AttemptCount).Str("error", job.Error.Message).Msg("poller: job failed")
	return job, nil
}
