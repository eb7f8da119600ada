// Package bootstrap wires the pieces shared by the API and worker binaries.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gerrot/api/internal/config"
	"github.com/gerrot/api/internal/document"
	"github.com/gerrot/api/internal/logger"
	"github.com/gerrot/api/internal/repository"
	"github.com/gerrot/api/internal/service"
	"github.com/gerrot/api/internal/storage"
)

// NewStore opens Postgres when a database URL is set, otherwise an in-memory
// store, seeded when a seed file is configured.
func NewStore(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (repository.Store, error) {
	log = logger.Component(log, "repository")
	if cfg.URL != "" {
		pg, err := repository.NewPostgres(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		log.Info().Msg("using postgres repositories")
		return pg, nil
	}

	if cfg.SeedFile != "" {
		mem, err := repository.LoadSeed(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		log.Info().Str("seed", cfg.SeedFile).Msg("using seeded in-memory repositories")
		return mem, nil
	}

	log.Warn().Msg("no database configured, using empty in-memory repositories")
	return repository.NewMemory(), nil
}

// NewArtifactStore opens the configured storage backend.
func NewArtifactStore(ctx context.Context, cfg config.StorageConfig) (*storage.ArtifactStore, error) {
	provider, err := storage.NewProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	return storage.NewArtifactStore(provider, cfg.PublicPrefix), nil
}

// NewPipeline builds the render pipeline on top of store and artifacts.
func NewPipeline(cfg config.RenderConfig, store repository.Store, artifacts *storage.ArtifactStore, log zerolog.Logger) *service.Pipeline {
	logos := storage.NewLogoResolver(cfg.UploadsDir, cfg.LogoFetchTimeout)
	renderer := document.NewRenderer(logos, document.Options{
		MinVisibleChars: cfg.MinVisibleChars,
		DebugDir:        cfg.DebugDir,
	}, log)
	return service.NewPipeline(store, renderer, artifacts, service.PipelineOptions{
		MaxContentBytes: cfg.MaxContentBytes,
	}, log)
}
