package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gerrot/api/internal/apperr"
	"github.com/gerrot/api/internal/model"
)

const mimeTypePDF = "application/pdf"

// ArtifactKey derives the storage key of a rendered version. Distinct
// renders of one version get distinct keys, so a retry never overwrites an
// earlier artifact.
func ArtifactKey(versionID string, generatedAt time.Time) string {
	return fmt.Sprintf("roteiro-%s-%d.pdf", versionID, generatedAt.UnixMilli())
}

// ArtifactStore persists rendered documents and maps them to public paths.
type ArtifactStore struct {
	provider     Provider
	publicPrefix string
}

func NewArtifactStore(provider Provider, publicPrefix string) *ArtifactStore {
	prefix := "/" + strings.Trim(publicPrefix, "/")
	if prefix == "/" {
		prefix = "/pdfs"
	}
	return &ArtifactStore{provider: provider, publicPrefix: prefix}
}

// Provider returns the backend name.
func (s *ArtifactStore) Provider() string { return s.provider.Provider() }

// PublicPrefix is the fixed path prefix artifacts are served under.
func (s *ArtifactStore) PublicPrefix() string { return s.publicPrefix }

// Save writes data once and returns its reference.
func (s *ArtifactStore) Save(ctx context.Context, data []byte, keyHint string) (model.ArtifactRef, error) {
	if len(data) == 0 {
		return model.ArtifactRef{}, apperr.New(apperr.CodeRenderFailure, "storage.save", "empty artifact")
	}

	out, err := s.provider.PutObject(ctx, PutObjectInput{
		ObjectKey:   keyHint,
		ContentType: mimeTypePDF,
		Reader:      bytes.NewReader(data),
		Size:        int64(len(data)),
	})
	if err != nil {
		return model.ArtifactRef{}, apperr.WrapWithCode(err, apperr.CodeRenderFailure, "storage.save", "could not store artifact")
	}

	ref := model.ArtifactRef{
		Key:       out.ObjectKey,
		SizeBytes: int64(len(data)),
		MimeType:  mimeTypePDF,
	}
	ref.Path = s.PublicPath(ref)
	return ref, nil
}

// PublicPath returns the path an artifact is served from.
func (s *ArtifactStore) PublicPath(ref model.ArtifactRef) string {
	return s.publicPrefix + "/" + strings.TrimLeft(ref.Key, "/")
}

// Open streams a stored artifact by key. Keys that could never have been
// saved resolve to NotFound, like keys that were never written.
func (s *ArtifactStore) Open(ctx context.Context, key string) (io.ReadCloser, string, int64, error) {
	if _, err := sanitizeKey(key); err != nil {
		return nil, "", 0, apperr.NotFound("artifact", key)
	}
	rc, contentType, size, err := s.provider.GetObject(ctx, key)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) || errors.Is(err, ErrInvalidKey) {
			return nil, "", 0, apperr.NotFound("artifact", key)
		}
		return nil, "", 0, apperr.WrapWithCode(err, apperr.CodeRenderFailure, "storage.open", "could not read artifact")
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimeTypePDF
	}
	return rc, contentType, size, nil
}
