package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"mediagen/internal/http/handlers"
	"mediagen/internal/middleware"
)

// Options tunes the router's middleware stack.
type Options struct {
	Logger             zerolog.Logger
	CORSAllowedOrigins []string
	// SubmitPerMinute bounds job submissions per client IP; 0 disables the limit.
	SubmitPerMinute int
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.CORSAllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Method(http.MethodGet, "/metrics", handlers.Metrics())
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	r.Route("/v1/jobs", func(r chi.Router) {
		r.With(middleware.RateLimit(opts.SubmitPerMinute)).Post("/", app.SubmitJob)
		r.Get("/", app.ListJobs)
		r.Get("/{job_id}", app.GetJob)
		r.Post("/{job_id}/cancel", app.CancelJob)
	})

	r.Get("/v1/artifacts/*", app.GetArtifact)

	return r
}
