package sqlinline

const QEnsureJobJournalSchema = `--sql afecbd23-7d2a-4396-9d18-03da4a6092e0
create table if not exists media_jobs (
    id text primary key,
    kind text not null,
    status text not null,
    provider text not null default '',
    model text not null default '',
    params jsonb not null default '{}'::jsonb,
    operation text not null default '',
    submit_path text not null default '',
    progress int not null default 0,
    attempt_count int not null default 0,
    result_uri text not null default '',
    error_cause text not null default '',
    error_message text not null default '',
    fallback_reason text not null default '',
    created_at timestamptz not null,
    updated_at timestamptz not null,
    submitted_at timestamptz
);
create index if not exists media_jobs_status_updated_idx on media_jobs (status, updated_at);
create table if not exists integration_tokens (
    id uuid primary key,
    provider text not null unique,
    token text not null,
    properties jsonb not null default '{}'::jsonb,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
`

const QUpsertJobSnapshot = `--sql b04ad023-04b1-4975-984a-1e8f9924ed7b
insert into media_jobs (
    id, kind, status, provider, model, params, operation, submit_path, progress,
    attempt_count, result_uri, error_cause, error_message, fallback_reason,
    created_at, updated_at, submitted_at
)
values ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
on conflict (id) do update set
    kind = excluded.kind,
    status = excluded.status,
    provider = excluded.provider,
    model = excluded.model,
    params = excluded.params,
    operation = excluded.operation,
    submit_path = excluded.submit_path,
    progress = excluded.progress,
    attempt_count = excluded.attempt_count,
    result_uri = excluded.result_uri,
    error_cause = excluded.error_cause,
    error_message = excluded.error_message,
    fallback_reason = excluded.fallback_reason,
    created_at = excluded.created_at,
    updated_at = excluded.updated_at,
    submitted_at = excluded.submitted_at
where media_jobs.updated_at <= excluded.updated_at;
`

const QSelectJobSnapshot = `--sql f6dfecca-9913-4520-b24f-0ce0f65cc41b
select id, kind, status, provider, model, params, operation, submit_path, progress,
       attempt_count, result_uri, error_cause, error_message, fallback_reason,
       created_at, updated_at, submitted_at
from media_jobs
where id = $1;
`

const QPurgeTerminalJobs = `--sql ca22e06f-9ab2-4156-bd8a-31ce479e1637
delete from media_jobs
where status in ('complete', 'failed', 'fallback')
  and updated_at < $1;
`
