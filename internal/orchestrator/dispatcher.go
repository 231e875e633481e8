package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/domain"
	"mediagen/internal/registry"
	"mediagen/internal/telemetry"
)

// Gate throttles outbound provider submissions.
type Gate interface {
	Wait(ctx context.Context) error
}

// Dispatcher performs the submission phase of a job: queued, submitting, then
// polling or failed.
type Dispatcher struct {
	jobs     *registry.Registry
	provider domain.Provider
	gate     Gate
	log      zerolog.Logger
	now      func() time.Time
}

// NewDispatcher builds a dispatcher. gate may be nil.
func NewDispatcher(jobs *registry.Registry, provider domain.Provider, gate Gate, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		jobs:     jobs,
		provider: provider,
		gate:     gate,
		log:      logger,
		now:      time.Now,
	}
}

// Submit drives a queued job through submission. Provider failures are recorded
// on the job; the returned error is reserved for registry failures.
func (d *Dispatcher) Submit(ctx context.Context, id string) (domain.Job, error) {
	if d.jobs.CancelRequested(id) {
		return d.fail(id, domain.CauseCancelled, domain.ErrCancelled)
	}
	job, err := d.jobs.Transition(id, domain.JobStatusSubmitting, registry.Update{})
	if err != nil {
		return job, err
	}

	req := domain.SubmitRequest{
		JobID:       job.ID,
		Kind:        job.Kind,
		Model:       job.Model,
		Prompt:      job.Params.Prompt,
		Duration:    job.Params.Duration,
		Resolution:  job.Params.Resolution,
		AspectRatio: job.Params.AspectRatio,
	}

	handle, err := d.attempt(ctx, d.provider.Primary(), domain.SubmitPathPrimary, req)
	if err == nil {
		return d.accepted(id, handle, domain.SubmitPathPrimary)
	}
	if ctx.Err() != nil {
		return d.fail(id, domain.CauseCancelled, ctx.Err())
	}
	kind := domain.ProviderErrorKindOf(err)
	if kind == domain.ProviderPermanent {
		d.log.Warn().Err(err).Str("job_id", id).Msg("dispatcher: primary submission rejected")
		return d.fail(id, domain.CauseSubmissionPermanent, err)
	}

	secondary := d.provider.Secondary()
	if secondary == nil {
		return d.fail(id, causeFor(kind), err)
	}
	d.log.Info().Err(err).Str("job_id", id).Str("kind", string(kind)).Msg("dispatcher: primary path unavailable, trying secondary")

	handle, err = d.attempt(ctx, secondary, domain.SubmitPathSecondary, req)
	if err == nil {
		return d.accepted(id, handle, domain.SubmitPathSecondary)
	}
	if ctx.Err() != nil {
		return d.fail(id, domain.CauseCancelled, ctx.Err())
	}
	d.log.Warn().Err(err).Str("job_id", id).Msg("dispatcher: secondary submission failed")
	return d.fail(id, causeFor(domain.ProviderErrorKindOf(err)), err)
}

func (d *Dispatcher) attempt(ctx context.Context, sub domain.Submitter, path domain.SubmitPath, req domain.SubmitRequest) (domain.OperationHandle, error) {
	if d.gate != nil {
		if err := d.gate.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return domain.OperationHandle{}, err
			}
			// limiter backend trouble should not turn into a permanent failure
			return domain.OperationHandle{}, &domain.ProviderError{Op: "throttle", Provider: d.provider.Name(), Kind: domain.ProviderTransient, Err: err}
		}
	}
	start := time.Now()
	handle, err := sub.Submit(ctx, req)
	telemetry.ProviderLatency.WithLabelValues("submit").Observe(time.Since(start).Seconds())
	outcome := "accepted"
	if err != nil {
		outcome = string(domain.ProviderErrorKindOf(err))
	} else if handle.IsZero() {
		err = &domain.ProviderError{Op: "submit", Provider: d.provider.Name(), Kind: domain.ProviderTransient, Err: errors.New("empty operation handle")}
		outcome = string(domain.ProviderTransient)
	}
	telemetry.SubmitAttempts.WithLabelValues(string(path), outcome).Inc()
	return handle, err
}

func (d *Dispatcher) accepted(id string, handle domain.OperationHandle, path domain.SubmitPath) (domain.Job, error) {
	submitted := d.now()
	job, err := d.jobs.Transition(id, domain.JobStatusPolling, registry.Update{
		Handle:      &handle,
		SubmitPath:  &path,
		SubmittedAt: &submitted,
	})
	if err != nil {
		return job, err
	}
	d.log.Info().Str("job_id", id).Str("model", job.Model).Str("path", string(path)).Str("operation", handle.Name()).Msg("dispatcher: submitted")
	return job, nil
}

func (d *Dispatcher) fail(id string, cause domain.ErrorCause, err error) (domain.Job, error) {
	job, terr := d.jobs.Transition(id, domain.JobStatusFailed, registry.Update{Error: domain.NewJobError(cause, err)})
	if terr != nil {
		return job, fmt.Errorf("record submission failure: %w", terr)
	}
	return job, nil
}

func causeFor(kind domain.ProviderErrorKind) domain.ErrorCause {
	if kind == domain.ProviderTransient {
		return domain.CauseSubmissionTransient
	}
	return domain.CauseSubmissionPermanent
}
