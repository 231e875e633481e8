package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
	"mediagen/internal/sqlinline"
)

const defaultJournalBuffer = 256

var (
	_ domain.JobJournal  = (*JobJournal)(nil)
	_ domain.JobObserver = (*JobJournal)(nil)
)

// JobJournal persists job snapshots to PostgreSQL. As an observer it queues
// snapshots and writes them from a single goroutine; a full queue drops the
// snapshot since a later one for the same job supersedes it.
type JobJournal struct {
	sql infra.SQLExecutor
	log zerolog.Logger

	queue   chan domain.Job
	done    chan struct{}
	started bool

	mu      sync.Mutex
	closed  bool
	dropped int64
}

// NewJobJournal builds a journal. Call Start before registering it as an observer.
func NewJobJournal(sql infra.SQLExecutor, logger zerolog.Logger, buffer int) *JobJournal {
	if buffer <= 0 {
		buffer = defaultJournalBuffer
	}
	return &JobJournal{
		sql:   sql,
		log:   logger,
		queue: make(chan domain.Job, buffer),
		done:  make(chan struct{}),
	}
}

// EnsureSchema creates the journal tables when missing.
func (j *JobJournal) EnsureSchema(ctx context.Context) error {
	if _, err := j.sql.Exec(ctx, sqlinline.QEnsureJobJournalSchema); err != nil {
		return fmt.Errorf("ensure journal schema: %w", err)
	}
	return nil
}

// Start drains the queue until Close.
func (j *JobJournal) Start() {
	j.started = true
	go func() {
		defer close(j.done)
		for job := range j.queue {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := j.Record(ctx, job); err != nil {
				j.log.Error().Err(err).Str("job_id", job.ID).Str("status", string(job.Status)).Msg("journal: record failed")
			}
			cancel()
		}
	}()
}

// JobChanged enqueues a snapshot without blocking the registry.
func (j *JobJournal) JobChanged(job domain.Job) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	select {
	case j.queue <- job:
	default:
		j.dropped++
		j.log.Warn().Str("job_id", job.ID).Msg("journal: queue full, snapshot dropped")
	}
}

// Dropped reports how many snapshots were discarded on a full queue.
func (j *JobJournal) Dropped() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

// Close stops accepting snapshots and waits for queued ones to be written.
func (j *JobJournal) Close(ctx context.Context) error {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.queue)
	}
	j.mu.Unlock()
	if !j.started {
		return nil
	}
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type paramsRecord struct {
	Prompt        string            `json:"prompt"`
	Duration      int               `json:"duration,omitempty"`
	Resolution    string            `json:"resolution,omitempty"`
	AspectRatio   string            `json:"aspect_ratio,omitempty"`
	Purpose       string            `json:"purpose,omitempty"`
	QualityTier   string            `json:"quality_tier,omitempty"`
	NeedsEditing  bool              `json:"needs_editing,omitempty"`
	SpeedPriority bool              `json:"speed_priority,omitempty"`
	Coercions     []domain.Coercion `json:"coercions,omitempty"`
}

// Record upserts the snapshot; an older snapshot never overwrites a newer one.
func (j *JobJournal) Record(ctx context.Context, job domain.Job) error {
	p := job.Params
	raw, err := json.Marshal(paramsRecord{
		Prompt:        p.Prompt,
		Duration:      p.Duration,
		Resolution:    p.Resolution,
		AspectRatio:   p.AspectRatio,
		Purpose:       string(p.Purpose),
		QualityTier:   string(p.QualityTier),
		NeedsEditing:  p.NeedsEditing,
		SpeedPriority: p.SpeedPriority,
		Coercions:     p.Coercions,
	})
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}

	var cause, message string
	if job.Error != nil {
		cause, message = string(job.Error.Cause), job.Error.Message
	}
	var submittedAt *time.Time
	if !job.SubmittedAt.IsZero() {
		submittedAt = &job.SubmittedAt
	}

	_, err = j.sql.Exec(ctx, sqlinline.QUpsertJobSnapshot,
		job.ID,
		string(job.Kind),
		string(job.Status),
		job.Provider,
		job.Model,
		raw,
		job.Handle.Name(),
		string(job.SubmitPath),
		job.Progress,
		job.AttemptCount,
		job.ResultURI,
		cause,
		message,
		string(job.FallbackReason),
		job.CreatedAt,
		job.UpdatedAt,
		submittedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert job %s: %w", job.ID, err)
	}
	return nil
}

// Lookup returns the last journaled snapshot, or domain.ErrNotFound.
func (j *JobJournal) Lookup(ctx context.Context, id string) (domain.Job, error) {
	row := j.sql.QueryRow(ctx, sqlinline.QSelectJobSnapshot, id)
	var (
		job                            domain.Job
		kind, status, operation, path  string
		raw                            []byte
		cause, message, fallbackReason string
		submittedAt                    *time.Time
	)
	if err := row.Scan(
		&job.ID,
		&kind,
		&status,
		&job.Provider,
		&job.Model,
		&raw,
		&operation,
		&path,
		&job.Progress,
		&job.AttemptCount,
		&job.ResultURI,
		&cause,
		&message,
		&fallbackReason,
		&job.CreatedAt,
		&job.UpdatedAt,
		&submittedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return domain.Job{}, domain.ErrNotFound
		}
		return domain.Job{}, fmt.Errorf("select job %s: %w", id, err)
	}

	var p paramsRecord
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return domain.Job{}, fmt.Errorf("decode params: %w", err)
		}
	}
	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	job.Handle = domain.NewOperationHandle(operation)
	job.SubmitPath = domain.SubmitPath(path)
	job.FallbackReason = domain.ErrorCause(fallbackReason)
	job.Params = domain.Params{
		Prompt:        p.Prompt,
		Duration:      p.Duration,
		Resolution:    p.Resolution,
		AspectRatio:   p.AspectRatio,
		Purpose:       domain.Purpose(p.Purpose),
		QualityTier:   domain.QualityTier(p.QualityTier),
		NeedsEditing:  p.NeedsEditing,
		SpeedPriority: p.SpeedPriority,
		Coercions:     p.Coercions,
	}
	if cause != "" {
		job.Error = &domain.JobError{Cause: domain.ErrorCause(cause), Message: message}
	}
	if submittedAt != nil {
		job.SubmittedAt = *submittedAt
	}
	return job, nil
}

// PurgeTerminal deletes terminal snapshots last updated before olderThan.
func (j *JobJournal) PurgeTerminal(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := j.sql.Exec(ctx, sqlinline.QPurgeTerminalJobs, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge terminal jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}
