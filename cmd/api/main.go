package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"mediagen/internal/adapter/repo"
	"mediagen/internal/constraint"
	"mediagen/internal/domain"
	"mediagen/internal/fallback"
	"mediagen/internal/http/handlers"
	httpapi "mediagen/internal/http/httpapi"
	"mediagen/internal/infra"
	"mediagen/internal/infra/credentials"
	"mediagen/internal/orchestrator"
	"mediagen/internal/providers/genai"
	"mediagen/internal/ratelimit"
	"mediagen/internal/registry"
	"mediagen/internal/selector"
	"mediagen/internal/telemetry"
)

const (
	submitBucketKey = "gemini:submit"
	credentialTTL   = time.Minute
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	if dbpool != nil {
		defer dbpool.Close()
	}

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	if rdb != nil {
		defer rdb.Close()
	}

	store, err := infra.NewArtifactStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure artifact storage")
	}

	var (
		journal *repo.JobJournal
		creds   domain.CredentialSource
	)
	if dbpool != nil {
		journal, creds = openJournal(ctx, dbpool, logger)
	} else {
		logger.Warn().Msg("DATABASE_URL not set, job journal and stored credentials disabled")
	}

	provider, err := genai.NewClient(genai.Options{
		APIKey:      cfg.GeminiAPIKey,
		BaseURL:     cfg.GeminiBaseURL,
		Credentials: creds,
		HTTPClient:  &http.Client{Timeout: 60 * time.Second},
		Logger:      &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure gemini client")
	}

	rules := constraint.DefaultRules()
	table, err := constraint.ParseDurationTable(cfg.VideoDurationTable)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid VIDEO_DURATION_TABLE")
	}
	rules = rules.WithVideoDurations(table, "")

	observers := registry.Observers{telemetry.Observer{}}
	if journal != nil {
		observers = append(observers, journal)
	}
	jobs := registry.New(registry.Options{
		Logger:   infra.Component(logger, "registry"),
		Observer: observers,
	})

	svc := orchestrator.NewService(orchestrator.Deps{
		Validator:  constraint.NewValidator(rules),
		Selector:   selector.New(selector.DefaultCatalog()),
		Jobs:       jobs,
		Dispatcher: orchestrator.NewDispatcher(jobs, provider, submitGate(cfg, rdb), infra.Component(logger, "dispatcher")),
		Poller: orchestrator.NewPoller(jobs, provider, store, infra.Component(logger, "poller"), orchestrator.PollerOptions{
			Interval:    cfg.PollInterval,
			Timeout:     cfg.JobTimeout,
			MaxAttempts: cfg.MaxPollAttempts,
			Limiter:     pollLimiter(cfg.PollQPS),
			Estimator: orchestrator.Estimator{
				Cap: cfg.ProgressCap,
				Tau: map[domain.JobKind]time.Duration{
					domain.JobKindImage: cfg.ProgressTauImage,
					domain.JobKindVideo: cfg.ProgressTauVideo,
				},
			},
		}),
		Fallback: fallback.New(store, infra.Component(logger, "fallback")),
		Store:    store,
		Logger:   infra.Component(logger, "service"),
	}, orchestrator.Config{
		MaxConcurrent:     cfg.MaxConcurrentJobs,
		JobRetention:      cfg.JobRetention,
		ArtifactRetention: cfg.ArtifactRetention,
		SweepInterval:     cfg.SweepInterval,
		FallbackEnabled:   cfg.FallbackEnabled,
	})

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	go svc.RunSweeper(sweepCtx)

	app := handlers.NewApp(svc, store, cfg.StorageBaseURL, logger)
	if journal != nil {
		app.History = journal
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:             logger,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		SubmitPerMinute:    cfg.RateLimitPerMin,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Str("storage", cfg.StorageBackend).Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	stopSweeper()
	if err := svc.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error().Err(err).Msg("failed to drain jobs")
	}
	if journal != nil {
		if err := journal.Close(shutdownCtx); err != nil {
			logger.Error().Err(err).Int64("dropped", journal.Dropped()).Msg("journal did not drain")
		}
	}
	logger.Info().Msg("server stopped")
}

// openJournal prepares the snapshot journal and the credential store on the
// shared pool. A schema failure leaves the service running without a journal.
func openJournal(ctx context.Context, pool *pgxpool.Pool, logger infra.Logger) (*repo.JobJournal, domain.CredentialSource) {
	runner := infra.NewSQLRunner(pool, logger)
	journal := repo.NewJobJournal(runner, infra.Component(logger, "journal"), 0)
	schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := journal.EnsureSchema(schemaCtx); err != nil {
		logger.Error().Err(err).Msg("journal schema unavailable, journal disabled")
		return nil, credentials.NewStore(runner, credentialTTL)
	}
	journal.Start()
	return journal, credentials.NewStore(runner, credentialTTL)
}

// submitGate returns the shared submission bucket, or nil without Redis.
func submitGate(cfg *infra.Config, rdb *redis.Client) orchestrator.Gate {
	if rdb == nil || cfg.SubmitRateCapacity <= 0 {
		return nil
	}
	bucket := ratelimit.NewTokenBucket(rdb, cfg.SubmitRateCapacity, cfg.SubmitRateRefill, time.Hour)
	return bucket.Gate(submitBucketKey)
}

func pollLimiter(qps float64) *rate.Limiter {
	if qps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(qps), max(1, int(qps)))
}
