package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"mediagen/internal/domain"
	"mediagen/internal/orchestrator"
	"mediagen/internal/registry"
	"mediagen/internal/storage"
)

const maxSubmitBody = 64 << 10

type submitJobRequest struct {
	Kind          string `json:"kind"`
	Prompt        string `json:"prompt"`
	Duration      int    `json:"duration"`
	Resolution    string `json:"resolution"`
	AspectRatio   string `json:"aspect_ratio"`
	Purpose       string `json:"purpose"`
	QualityTier   string `json:"quality_tier"`
	NeedsEditing  bool   `json:"needs_editing"`
	SpeedPriority bool   `json:"speed_priority"`
	ExistingJobID string `json:"existing_job_id"`
}

type submitJobResponse struct {
	JobID     string            `json:"job_id"`
	Status    domain.JobStatus  `json:"status"`
	Reused    bool              `json:"reused"`
	Model     string            `json:"model"`
	Coercions []domain.Coercion `json:"coercions,omitempty"`
}

type jobView struct {
	orchestrator.StatusView
	ResultURL string `json:"result_url,omitempty"`
}

// SubmitJob handles POST /v1/jobs.
func (a *App) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var body submitJobRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBody))
	if err := dec.Decode(&body); err != nil {
		a.error(w, http.StatusBadRequest, "invalid_request", "request body must be a JSON object")
		return
	}

	res, err := a.Jobs.SubmitJob(r.Context(), orchestrator.SubmitRequest{
		Kind: body.Kind,
		Params: domain.RawParams{
			Prompt:        body.Prompt,
			Duration:      body.Duration,
			Resolution:    body.Resolution,
			AspectRatio:   body.AspectRatio,
			Purpose:       body.Purpose,
			QualityTier:   body.QualityTier,
			NeedsEditing:  body.NeedsEditing,
			SpeedPriority: body.SpeedPriority,
		},
		ExistingJobID: strings.TrimSpace(body.ExistingJobID),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}

	zerolog.Ctx(r.Context()).Info().
		Str("job_id", res.Job.ID).
		Str("kind", string(res.Job.Kind)).
		Str("model", res.Job.Model).
		Bool("reused", res.Reused).
		Msg("jobs: submitted")

	w.Header().Set("Location", "/v1/jobs/"+res.Job.ID)
	a.json(w, http.StatusAccepted, submitJobResponse{
		JobID:     res.Job.ID,
		Status:    res.Job.Status,
		Reused:    res.Reused,
		Model:     res.Job.Model,
		Coercions: res.Job.Params.Coercions,
	})
}

// GetJob handles GET /v1/jobs/{job_id}. Jobs swept from memory are served from
// the journal when one is configured.
func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")
	view, err := a.Jobs.Status(id)
	if errors.Is(err, domain.ErrNotFound) && a.History != nil {
		var job domain.Job
		job, err = a.History.Lookup(r.Context(), id)
		if err == nil {
			view = orchestrator.ViewOf(job)
		}
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.present(view))
}

// ListJobs handles GET /v1/jobs?status=&kind=&limit=.
func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := registry.Filter{
		Status: domain.JobStatus(strings.ToLower(q.Get("status"))),
		Kind:   domain.JobKind(strings.ToLower(q.Get("kind"))),
		Limit:  50,
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			a.json(w, http.StatusBadRequest, map[string]errorBody{"error": {Code: "validation", Field: "limit", Message: "limit must be within 1..500"}})
			return
		}
		f.Limit = n
	}
	views := a.Jobs.List(f)
	out := make([]jobView, 0, len(views))
	for _, v := range views {
		out = append(out, a.present(v))
	}
	a.json(w, http.StatusOK, map[string]any{"jobs": out})
}

// CancelJob handles POST /v1/jobs/{job_id}/cancel.
func (a *App) CancelJob(w http.ResponseWriter, r *http.Request) {
	view, err := a.Jobs.Cancel(chi.URLParam(r, "job_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, a.present(view))
}

func (a *App) present(v orchestrator.StatusView) jobView {
	out := jobView{StatusView: v}
	if v.ResultURI != "" && a.ArtifactBaseURL != "" {
		out.ResultURL = storage.PublicURL(a.ArtifactBaseURL, v.ResultURI)
	}
	return out
}
