package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"marketing_sync/internal/adapters/observability"
	redisad "marketing_sync/internal/adapters/redis"
	"marketing_sync/internal/app"
	"marketing_sync/internal/shared"
	mysqlrepo "marketing_sync/internal/storage/mysql"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg(".env not loaded")
	}
	cfg := shared.Load()

	// initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	only := flag.String("pipelines", "", "comma separated pipelines to run (overrides INGEST_PIPELINES)")
	flag.Parse()
	if *only != "" {
		cfg.Pipelines = strings.Split(*only, ",")
	}
	if err := validatePipelines(cfg.Pipelines); err != nil {
		log.Fatal().Err(err).Msg("bad pipeline selection")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	observability.Serve(cfg.MetricsAddr)

	log.Info().
		Strs("pipelines", cfg.Pipelines).
		Int("workers", cfg.Workers).
		Dur("poll_interval", cfg.Poll.Interval).
		Dur("poll_max_wait", cfg.Poll.MaxWait).
		Msg("ingestor starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")
	repo := mysqlrepo.New(db)

	pc, err := pipelineConfig(cfg, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("invalid pipeline config")
	}
	deps, cleanup, err := buildDeps(ctx, cfg, repo)
	defer cleanup()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize clients")
	}
	ing := app.NewIngestionService(deps, pc)

	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cache.Close()

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup
	var failed atomic.Int32

	for _, name := range cfg.Pipelines {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Warn().Err(err).Str("pipeline", name).Msg("not started")
			failed.Add(1)
			continue
		}

		wg.Add(1)
		go func(pipeline string) {
			defer wg.Done()
			defer sem.Release(1)

			if err := ing.Run(ctx, pipeline); err != nil {
				failed.Add(1)
				return
			}
			if pipeline == app.PipelineReviews {
				// the status API serves the latest summary from cache
				if err := cache.Del(context.WithoutCancel(ctx), "summary:latest"); err != nil {
					log.Warn().Err(err).Msg("summary cache not invalidated")
				}
			}
		}(name)
	}

	wg.Wait()
	if n := failed.Load(); n > 0 {
		log.Error().Int32("failed", n).Msg("ingestion finished with failures")
		os.Exit(1)
	}
	log.Info().Msg("ingestion completed")
}
