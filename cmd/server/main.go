package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/gerrot/api/internal/auth"
	"github.com/gerrot/api/internal/bootstrap"
	"github.com/gerrot/api/internal/config"
	"github.com/gerrot/api/internal/handler"
	"github.com/gerrot/api/internal/logger"
	"github.com/gerrot/api/internal/middleware"
	"github.com/gerrot/api/internal/notify"
	"github.com/gerrot/api/internal/queue"
	"github.com/gerrot/api/internal/service"
	"github.com/gerrot/api/internal/worker"
	ws "github.com/gerrot/api/internal/websocket"
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
	if !queueClient.Probe(ctx) {
		log.Warn().Str("addr", cfg.Redis.Addr).Msg("redis not available, renders will run in process")
	}

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

	degraded := service.NewDegradedExecutor(pipeline, service.DegradedOptions{
		Timeout:     cfg.Render.SyncTimeout,
		Concurrency: cfg.Render.SyncConcurrency,
	}, log)
	renderService := service.NewRenderService(queueClient, degraded, log)

	hub := ws.NewHub(log)
	go hub.Run()
	go notify.NewRelay(queueClient.Redis(), hub, log).Run(ctx)

	// Identity provider verification is optional; HMAC tokens remain a fallback
	var verifier auth.TokenVerifier
	if cfg.OIDC.Issuer != "" {
		oidc, err := auth.NewOIDCVerifier(ctx, cfg.OIDC, logger.Component(log, "auth"))
		if err != nil {
			log.Warn().Err(err).Msg("OIDC verifier not initialized")
		} else {
			verifier = oidc
		}
	}
	authenticator := auth.NewAuthenticator(verifier, cfg.JWT.Secret)

	authMiddleware := middleware.Authenticate(authenticator)
	if cfg.Gateway.Enabled {
		log.Info().Msg("gateway mode enabled, using header-based auth")
		authMiddleware = middleware.GatewayAuth()
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handler.ErrorHandler,
		BodyLimit:    1 * 1024 * 1024,
		ReadTimeout:  15 * time.Second,
		// Degraded renders answer inside the request.
		WriteTimeout: cfg.Render.SyncTimeout + 10*time.Second,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	logFormat := "[${time}] ${locals:requestid} ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${locals:requestid} ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
	}
	app.Use(fiberlogger.New(fiberlogger.Config{Format: logFormat}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowMethods:  "GET,POST,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept,Authorization",
		ExposeHeaders: "Content-Disposition,X-Render-Mode,X-Artifact-Path",
	}))

	handler.Register(app, handler.Routes{
		Auth:         authMiddleware,
		RateLimiter:  middleware.NewRateLimiter(queueClient.Redis(), log),
		RenderLimit:  cfg.RateLimit.RenderPerHour,
		Render:       handler.NewRenderHandler(renderService, validator.New(), log),
		Artifacts:    handler.NewArtifactHandler(artifacts),
		PublicPrefix: artifacts.PublicPrefix(),
		Health:       handler.NewHealthHandler(queueClient, artifacts.Provider(), authenticator.Configured()),
		AuthVerify:   handler.NewAuthHandler(authenticator),
		Hub:          hub,
	})

	if cfg.Server.EmbeddedWorker {
		renderWorker := worker.NewRenderWorker(queueClient.Jobs(), pipeline, notify.NewRedisChannel(queueClient.Redis()), log)
		go startWorkerServer(ctx, cfg, renderWorker, log)
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Info().Str("addr", addr).Str("storage", artifacts.Provider()).Msg("server starting")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

// startWorkerServer consumes the render queue in this process until ctx ends.
func startWorkerServer(ctx context.Context, cfg *config.Config, w *worker.RenderWorker, log zerolog.Logger) {
	srv := worker.NewServer(queue.RedisOpt(cfg.Redis), cfg.Queue, cfg.Server.LogLevel, w, log)
	if err := srv.Start(worker.NewServeMux(w)); err != nil {
		log.Error().Err(err).Msg("asynq worker error")
		return
	}
	<-ctx.Done()
	srv.Shutdown()
}
