package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
	"mediagen/internal/sqlinline"
)

const (
	ProviderGemini = "gemini"
)

var _ domain.CredentialSource = (*Store)(nil)

// Store keeps provider API keys in the integration_tokens table. Lookups are
// cached for ttl so the provider adapter can resolve a key on every request.
type Store struct {
	sql infra.SQLExecutor
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	cache map[string]cachedToken
}

type cachedToken struct {
	token   string
	fetched time.Time
}

func NewStore(sql infra.SQLExecutor, ttl time.Duration) *Store {
	return &Store{sql: sql, ttl: ttl, now: time.Now, cache: make(map[string]cachedToken)}
}

// Token returns the stored key for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if s.ttl > 0 {
		s.mu.Lock()
		c, ok := s.cache[provider]
		s.mu.Unlock()
		if ok && s.now().Sub(c.fetched) < s.ttl {
			return c.token, nil
		}
	}

	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if !infra.IsNoRows(err) {
			return "", fmt.Errorf("select %s token: %w", provider, err)
		}
	}
	token = strings.TrimSpace(token)

	if s.ttl > 0 {
		s.mu.Lock()
		s.cache[provider] = cachedToken{token: token, fetched: s.now()}
		s.mu.Unlock()
	}
	return token, nil
}

// Set stores or replaces the key for provider.
func (s *Store) Set(ctx context.Context, provider, token string, props map[string]any) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	token = strings.TrimSpace(token)
	if provider == "" {
		return errors.New("provider is required")
	}
	if token == "" {
		return fmt.Errorf("%s api key is required", provider)
	}
	if err := s.upsert(ctx, provider, token, props); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.cache, provider)
	s.mu.Unlock()
	return nil
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}
