package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/gerrot/api/internal/middleware"
	"github.com/gerrot/api/internal/model"
	"github.com/gerrot/api/internal/service"
	"github.com/gerrot/api/pkg/response"
)

const acceptedMessage = "PDF generation started. You will be notified when it is ready."

type RenderHandler struct {
	service   *service.RenderService
	validator *validator.Validate
	log       zerolog.Logger
}

func NewRenderHandler(svc *service.RenderService, v *validator.Validate, log zerolog.Logger) *RenderHandler {
	return &RenderHandler{
		service:   svc,
		validator: v,
		log:       log.With().Str("component", "render_handler").Logger(),
	}
}

// Create handles POST /render-requests.
// Responds 202 with a job id, or 200 with the PDF when rendered in process.
func (h *RenderHandler) Create(c *fiber.Ctx) error {
	var body model.RenderRequestBody
	if err := c.BodyParser(&body); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&body); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}
	return h.request(c, body)
}

// ExportPDF handles GET|POST /projects/:projectId/versions/:versionId/export-pdf.
func (h *RenderHandler) ExportPDF(c *fiber.Ctx) error {
	body := model.RenderRequestBody{
		ProjectID: c.Params("projectId"),
		VersionID: c.Params("versionId"),
	}
	if err := h.validator.Struct(&body); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}
	return h.request(c, body)
}

func (h *RenderHandler) request(c *fiber.Ctx, body model.RenderRequestBody) error {
	req := model.RenderRequest{
		ProjectID:        body.ProjectID,
		VersionID:        body.VersionID,
		RequestingUserID: middleware.GetUserID(c),
	}

	out, err := h.service.Request(c.Context(), req)
	if err != nil {
		h.log.Warn().Err(err).Str("version_id", req.VersionID).Msg("render request failed")
		return respondError(c, err)
	}

	if out.Mode == service.ModeEnqueued {
		return response.Accepted(c, model.RenderAcceptedResponse{
			Status:  model.JobStatePending,
			Message: acceptedMessage,
			JobID:   out.JobID,
		})
	}

	c.Set("X-Render-Mode", string(out.Mode))
	c.Set("X-Artifact-Path", out.Artifact.Ref.Path)
	return response.PDF(c, out.Artifact.Bytes, out.Artifact.FileName)
}

// Status handles GET /render-requests/:jobId
func (h *RenderHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.Status(c.Context(), jobID)
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, job.StatusResponse())
}
