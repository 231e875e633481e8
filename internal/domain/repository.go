package domain

import (
	"context"
	"time"
)

// JobObserver receives a snapshot after every committed job mutation. Calls for
// one job arrive in commit order; implementations must not block.
type JobObserver interface {
	JobChanged(job Job)
}

// JobJournal persists job snapshots for audit.
type JobJournal interface {
	Record(ctx context.Context, job Job) error
	PurgeTerminal(ctx context.Context, olderThan time.Time) (int64, error)
}

// CredentialSource resolves provider API keys.
type CredentialSource interface {
	Token(ctx context.Context, provider string) (string, error)
}
