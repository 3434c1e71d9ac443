package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oggyb/scene-match/internal/app"
	"github.com/oggyb/scene-match/internal/cache"
	"github.com/oggyb/scene-match/internal/config"
	"github.com/oggyb/scene-match/internal/db"
	"github.com/oggyb/scene-match/internal/logger"
	"github.com/oggyb/scene-match/internal/match"
	"github.com/oggyb/scene-match/internal/metrics"
	"github.com/oggyb/scene-match/internal/recommend"
	"github.com/oggyb/scene-match/internal/repository"
	"github.com/oggyb/scene-match/internal/scheduler"
	"github.com/oggyb/scene-match/internal/seed"
	"github.com/oggyb/scene-match/internal/server"
	"github.com/oggyb/scene-match/internal/service/matchmaking"
	"github.com/oggyb/scene-match/internal/stats"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L() // slog.Logger pointer

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		return
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(ctx); err != nil {
		log.Error("failed to connect to redis", "err", err)
		return
	}
	defer redisCache.Close()

	m := metrics.New()
	appCtx := app.New(database, redisCache, log, app.WithConfig(cfg), app.WithMetrics(m))

	matches := match.NewService(appCtx)
	recs, err := recommend.NewService(appCtx)
	if err != nil {
		log.Error("failed to init recommendations", "err", err)
		return
	}
	sceneStats := stats.NewService(appCtx)

	if cfg.App.ENV == "development" {
		if _, err := seed.Demo(ctx, appCtx, matches); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	jobLog := logger.Component("jobs")
	sched, err := scheduler.New(appCtx,
		scheduler.NewBulkGeneration(repository.NewProfileRepository(database), recs, cfg, jobLog),
		scheduler.NewCleanup(repository.NewActionRepository(database), repository.NewMatchRepository(database),
			recs, appCtx.Clock, cfg, jobLog),
		scheduler.NewStatisticsRefresh(sceneStats, cfg),
	)
	if err != nil {
		log.Error("failed to init scheduler", "err", err)
		return
	}
	if err := sched.Start(ctx); err != nil {
		log.Error("failed to start scheduler", "err", err)
		return
	}
	defer func() {
		if err := sched.Stop(); err != nil {
			log.Error("scheduler shutdown", "err", err)
		}
	}()

	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsMux(m), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("serving metrics", "addr", cfg.Metrics.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "err", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	registrars := []server.Registrar{
		matchmaking.NewRegistrar(matchmaking.NewService(appCtx, matches, recs, sceneStats, sched)),
	}

	addr := cfg.GRPC.Host + ":" + cfg.GRPC.Port
	log.Info("starting gRPC server", "addr", addr)

	if err := server.StartGRPCServer(ctx, cfg, logger.Component("grpc"), registrars...); err != nil {
		log.Error("failed to start gRPC server", "err", err)
	}
}

func metricsMux(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
