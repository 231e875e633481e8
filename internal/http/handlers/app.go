package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"mediagen/internal/domain"
	"mediagen/internal/orchestrator"
	"mediagen/internal/registry"
	"mediagen/internal/storage"
)

// JobService is the orchestrator surface the HTTP layer drives.
type JobService interface {
	SubmitJob(ctx context.Context, req orchestrator.SubmitRequest) (orchestrator.SubmitResult, error)
	Status(id string) (orchestrator.StatusView, error)
	List(f registry.Filter) []orchestrator.StatusView
	Cancel(id string) (orchestrator.StatusView, error)
	Counts() map[domain.JobStatus]int
	Active() int
}

// JobHistory serves jobs that were swept from memory but are still journaled.
type JobHistory interface {
	Lookup(ctx context.Context, id string) (domain.Job, error)
}

type App struct {
	Jobs    JobService
	History JobHistory
	Store   storage.Store
	// ArtifactBaseURL prefixes result_url in job views.
	ArtifactBaseURL string
	Logger          zerolog.Logger
}

func NewApp(jobs JobService, store storage.Store, artifactBaseURL string, logger zerolog.Logger) *App {
	return &App{Jobs: jobs, Store: store, ArtifactBaseURL: artifactBaseURL, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, code int, kind, msg string) {
	a.json(w, code, map[string]errorBody{"error": {Code: kind, Message: msg}})
}

// fail maps domain errors onto HTTP responses.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		a.json(w, http.StatusBadRequest, map[string]errorBody{"error": {Code: "validation", Field: ve.Field, Message: ve.Error()}})
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "job not found")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("http: request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
