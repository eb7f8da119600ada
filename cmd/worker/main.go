package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	zlog "github.com/rs/zerolog/log"

	"github.com/gerrot/api/internal/bootstrap"
	"github.com/gerrot/api/internal/config"
	"github.com/gerrot/api/internal/logger"
	"github.com/gerrot/api/internal/notify"
	"github.com/gerrot/api/internal/queue"
	"github.com/gerrot/api/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.New(cfg.Server.Env, cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queueClient := queue.NewClient(cfg.Redis, queue.OptionsFromConfig(cfg.Queue), log)
	defer queueClient.Close()

	store, err := bootstrap.NewStore(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open repositories")
	}
	defer store.Close()

	artifacts, err := bootstrap.NewArtifactStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open artifact storage")
	}
	pipeline := bootstrap.NewPipeline(cfg.Render, store, artifacts, log)

	renderWorker := worker.NewRenderWorker(
		queueClient.Jobs(),
		pipeline,
		notify.NewRedisChannel(queueClient.Redis()),
		log,
	)

	srv := worker.NewServer(queue.RedisOpt(cfg.Redis), cfg.Queue, cfg.Server.LogLevel, renderWorker, log)
	if err := srv.Start(worker.NewServeMux(renderWorker)); err != nil {
		log.Fatal().Err(err).Msg("failed to start worker")
	}
	log.Info().
		Str("queue", cfg.Queue.Name).
		Int("concurrency", cfg.Queue.Concurrency).
		Str("storage", artifacts.Provider()).
		Msg("render worker started")

	<-ctx.Done()
	log.Info().Msg("shutting down worker")
	srv.Shutdown()
}
