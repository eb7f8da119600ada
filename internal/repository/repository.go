package repository

import (
	"context"
	"errors"

	"github.com/gerrot/api/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("repository: not found")

// Store reads the project data a render needs and records produced
// artifacts on the script version.
type Store interface {
	GetProject(ctx context.Context, id string) (*model.Project, error)
	GetVersion(ctx context.Context, id string) (*model.ScriptVersion, error)
	GetClient(ctx context.Context, id string) (*model.Client, error)
	// AttachArtifact stores the public path of the latest PDF for a version.
	AttachArtifact(ctx context.Context, versionID, path string) error
	Close()
}
