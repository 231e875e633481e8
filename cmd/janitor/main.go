package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mediagen/internal/adapter/repo"
	"mediagen/internal/infra"
	"mediagen/internal/storage"
)

// janitor purges journaled jobs past JOB_RETENTION and artifacts past
// ARTIFACT_RETENTION. With -interval it keeps running until signalled.
type janitor struct {
	journal *repo.JobJournal
	store   storage.Store
	cfg     *infra.Config
	logger  infra.Logger
	now     func() time.Time
}

func main() {
	interval := flag.Duration("interval", 0, "repeat the sweep at this interval (0 runs once)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.Component(infra.NewLogger(cfg.AppEnv), "janitor")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("janitor: db connection failed")
	}
	var journal *repo.JobJournal
	if pool != nil {
		defer pool.Close()
		journal = repo.NewJobJournal(infra.NewSQLRunner(pool, logger), logger, 0)
	} else {
		logger.Warn().Msg("janitor: DATABASE_URL not set, skipping journal purge")
	}

	store, err := infra.NewArtifactStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("janitor: failed to configure storage")
	}

	j := &janitor{journal: journal, store: store, cfg: cfg, logger: logger, now: time.Now}
	if *interval <= 0 {
		j.sweep(ctx)
		return
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	logger.Info().Dur("interval", *interval).Msg("janitor: started")
	for {
		j.sweep(ctx)
		select {
		case <-ctx.Done():
			logger.Info().Msg("janitor: stopped")
			return
		case <-ticker.C:
		}
	}
}

func (j *janitor) sweep(ctx context.Context) {
	if j.journal != nil {
		cutoff := j.now().Add(-j.cfg.JobRetention)
		n, err := j.journal.PurgeTerminal(ctx, cutoff)
		if err != nil {
			j.logger.Error().Err(err).Msg("janitor: purge journal failed")
		} else {
			j.logger.Info().Int64("rows", n).Time("cutoff", cutoff).Msg("janitor: journal purged")
		}
	}
	n, err := j.store.Cleanup(ctx, j.cfg.ArtifactRetention)
	if err != nil {
		j.logger.Error().Err(err).Msg("janitor: artifact cleanup failed")
		return
	}
	j.logger.Info().Int("artifacts", n).Dur("max_age", j.cfg.ArtifactRetention).Msg("janitor: artifacts removed")
}
