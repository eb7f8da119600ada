package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gerrot/api/internal/apperr"
	"github.com/gerrot/api/internal/document"
	"github.com/gerrot/api/internal/model"
	"github.com/gerrot/api/internal/repository"
	"github.com/gerrot/api/internal/storage"
)

// Artifact is the outcome of one render: the stored reference plus the bytes
// for callers that stream them back directly.
type Artifact struct {
	Bytes    []byte
	Ref      model.ArtifactRef
	FileName string
}

// ProgressFunc receives progress checkpoints. It may be nil.
type ProgressFunc func(progress int)

// Runner executes the shared render steps.
type Runner interface {
	Run(ctx context.Context, req model.RenderRequest, progress ProgressFunc) (*Artifact, error)
}

type PipelineOptions struct {
	// MaxContentBytes rejects larger scripts with InvalidInput. Zero disables
	// the check.
	MaxContentBytes int
}

// Pipeline resolves collaborator data, lays out and renders the document,
// stores it and records it on the script version. The worker and the
// degraded executor both run it.
type Pipeline struct {
	store     repository.Store
	renderer  *document.Renderer
	artifacts *storage.ArtifactStore
	opts      PipelineOptions
	now       func() time.Time
	log       zerolog.Logger
}

func NewPipeline(store repository.Store, renderer *document.Renderer, artifacts *storage.ArtifactStore, opts PipelineOptions, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:     store,
		renderer:  renderer,
		artifacts: artifacts,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log.With().Str("component", "pipeline").Logger(),
	}
}

func (p *Pipeline) Run(ctx context.Context, req model.RenderRequest, progress ProgressFunc) (*Artifact, error) {
	report := func(v int) {
		if progress != nil {
			progress(v)
		}
	}

	in, err := p.ResolveInput(ctx, req)
	if err != nil {
		return nil, err
	}
	report(model.ProgressLayout)

	layout, err := document.GenerateLayout(*in)
	if err != nil {
		return nil, err
	}
	report(model.ProgressRender)

	data, err := p.renderer.RenderArtifact(ctx, layout)
	if err != nil {
		return nil, err
	}
	report(model.ProgressRendered)

	ref, err := p.artifacts.Save(ctx, data, storage.ArtifactKey(in.VersionID, in.GeneratedAt))
	if err != nil {
		return nil, err
	}
	if err := p.store.AttachArtifact(ctx, in.VersionID, ref.Path); err != nil {
		return nil, collaboratorError("script version", in.VersionID, err)
	}
	report(model.ProgressStored)

	p.log.Info().
		Str("version_id", in.VersionID).
		Str("key", ref.Key).
		Int64("bytes", ref.SizeBytes).
		Msg("artifact stored")

	return &Artifact{
		Bytes:    data,
		Ref:      ref,
		FileName: DownloadFileName(in.ProjectTitle, in.VersionNumber),
	}, nil
}

// ResolveInput gathers the project, version and client for req. Missing
// records are InvalidInput; other lookup failures are RenderFailure.
func (p *Pipeline) ResolveInput(ctx context.Context, req model.RenderRequest) (*model.RenderInput, error) {
	if msg := req.Validate(); msg != "" {
		return nil, apperr.InvalidInput("pipeline.resolve", msg)
	}

	version, err := p.store.GetVersion(ctx, req.VersionID)
	if err != nil {
		return nil, collaboratorError("script version", req.VersionID, err)
	}
	if version.ProjectID != req.ProjectID {
		return nil, apperr.InvalidInput("pipeline.resolve", "script version does not belong to project")
	}
	if p.opts.MaxContentBytes > 0 && len(version.Content) > p.opts.MaxContentBytes {
		return nil, apperr.Newf(apperr.CodeInvalidInput, "pipeline.resolve",
			"script content too large: %d bytes, maximum is %d", len(version.Content), p.opts.MaxContentBytes)
	}

	project, err := p.store.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, collaboratorError("project", req.ProjectID, err)
	}

	in := &model.RenderInput{
		ProjectTitle:  project.Title,
		ScriptType:    project.ScriptType,
		OwnerName:     ownerName(project),
		OwnerLogoRef:  project.OwnerLogoURL,
		VersionID:     version.ID,
		VersionNumber: version.VersionNumber,
		Content:       version.Content,
		GeneratedAt:   p.now(),
	}

	if project.ClientID != "" {
		client, err := p.store.GetClient(ctx, project.ClientID)
		if err != nil {
			return nil, collaboratorError("client", project.ClientID, err)
		}
		in.ClientName = client.Name
		in.ClientLogoRef = client.LogoURL
	}
	return in, nil
}

func ownerName(p *model.Project) string {
	if name := strings.TrimSpace(p.OwnerName); name != "" {
		return name
	}
	return strings.TrimSpace(p.OwnerEmail)
}

func collaboratorError(resource, id string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.Newf(apperr.CodeInvalidInput, "pipeline.resolve", "%s not found: %s", resource, id)
	}
	return apperr.WrapWithCode(err, apperr.CodeRenderFailure, "pipeline.resolve", "could not load "+resource)
}
