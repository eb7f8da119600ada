package storage

import (
	"context"
	"fmt"

	"github.com/gerrot/api/internal/config"
)

// NewProvider selects the backend named by cfg.Provider.
func NewProvider(ctx context.Context, cfg config.StorageConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "localfs":
		return NewLocalFS(cfg.LocalRoot)
	case "s3", "r2":
		return NewS3(ctx, cfg.S3)
	case "gdrive":
		return NewGDrive(ctx, cfg.GDrive)
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}
