package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type stubExecutor struct {
	token   string
	err     error
	queries int
	exec    struct {
		query string
		args  []any
	}
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.exec.query = query
	s.exec.args = args
	return pgconn.CommandTag{}, s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.queries++
	return stubRow{token: s.token, err: s.err}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	token string
	err   error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) == 0 {
		return errors.New("no dest")
	}
	ptr, ok := dest[0].(*string)
	if !ok {
		return errors.New("invalid dest")
	}
	*ptr = r.token
	return nil
}

func TestToken(t *testing.T) {
	store := NewStore(&stubExecutor{token: " abc123 "}, 0)
	key, err := store.Token(context.Background(), ProviderGemini)
	if err != nil {
		t.Fatalf("Token error: %v", err)
	}
	if key != "abc123" {
		t.Fatalf("expected abc123, got %q", key)
	}
}

func TestToken_NoRows(t *testing.T) {
	store := NewStore(&stubExecutor{err: pgx.ErrNoRows}, 0)
	key, err := store.Token(context.Background(), ProviderGemini)
	if err != nil {
		t.Fatalf("Token error: %v", err)
	}
	if key != "" {
		t.Fatalf("expected empty key, got %q", key)
	}
}

func TestToken_QueryError(t *testing.T) {
	store := NewStore(&stubExecutor{err: errors.New("connection refused")}, 0)
	if _, err := store.Token(context.Background(), ProviderGemini); err == nil {
		t.Fatal("expected error")
	}
}

func TestTokenCached(t *testing.T) {
	exec := &stubExecutor{token: "abc"}
	store := NewStore(exec, time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if _, err := store.Token(context.Background(), "Gemini"); err != nil {
			t.Fatalf("Token error: %v", err)
		}
	}
	if exec.queries != 1 {
		t.Fatalf("expected 1 query, got %d", exec.queries)
	}
	now = now.Add(2 * time.Minute)
	_, _ = store.Token(context.Background(), ProviderGemini)
	if exec.queries != 2 {
		t.Fatalf("expected refresh after ttl, got %d queries", exec.queries)
	}
}

func TestSet(t *testing.T) {
	exec := &stubExecutor{token: "old"}
	store := NewStore(exec, time.Hour)
	_, _ = store.Token(context.Background(), ProviderGemini)

	if err := store.Set(context.Background(), ProviderGemini, "secret", nil); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if len(exec.exec.args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(exec.exec.args))
	}
	if v, ok := exec.exec.args[1].(string); !ok || v != "secret" {
		t.Fatalf("expected secret argument, got %T %v", exec.exec.args[1], exec.exec.args[1])
	}
	_, _ = store.Token(context.Background(), ProviderGemini)
	if exec.queries != 2 {
		t.Fatalf("Set should invalidate the cache, got %d queries", exec.queries)
	}
}

func TestSetEmpty(t *testing.T) {
	store := NewStore(&stubExecutor{}, 0)
	if err := store.Set(context.Background(), ProviderGemini, " ", nil); err == nil {
		t.Fatal("expected error for empty key")
	}
	if err := store.Set(context.Background(), "", "secret", nil); err == nil {
		t.Fatal("expected error for empty provider")
	}
}
