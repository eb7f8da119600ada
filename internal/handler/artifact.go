package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gerrot/api/internal/storage"
	"github.com/gerrot/api/pkg/response"
)

// ArtifactHandler serves stored PDFs under the public prefix.
type ArtifactHandler struct {
	store *storage.ArtifactStore
}

func NewArtifactHandler(store *storage.ArtifactStore) *ArtifactHandler {
	return &ArtifactHandler{store: store}
}

// Serve handles GET <prefix>/*
func (h *ArtifactHandler) Serve(c *fiber.Ctx) error {
	key := c.Params("*")
	if key == "" {
		return response.NotFound(c, "Artifact not found")
	}

	rc, contentType, size, err := h.store.Open(c.Context(), key)
	if err != nil {
		return respondError(c, err)
	}

	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderCacheControl, "public, max-age=31536000, immutable")
	// The body stream is closed by fasthttp once written.
	return c.SendStream(rc, int(size))
}
