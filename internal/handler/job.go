package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/pageforge/api/internal/factory"
	"github.com/pageforge/api/internal/model"
	"github.com/pageforge/api/internal/registry"
	"github.com/pageforge/api/internal/service"
	"github.com/pageforge/api/pkg/response"
)

type JobHandler struct {
	service   *service.GenerationService
	validator *validator.Validate
}

func NewJobHandler(svc *service.GenerationService, v *validator.Validate) *JobHandler {
	return &JobHandler{
		service:   svc,
		validator: v,
	}
}

// Create handles POST /api/jobs
// @Summary      Submit content
// @Description  Record a new content submission as a draft job
// @Tags         Jobs
// @Accept       json
// @Produce      json
// @Param        request body model.JobCreateRequest true "Content submission"
// @Success      201 {object} model.JobCreateResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/jobs [post]
func (h *JobHandler) Create(c *fiber.Ctx) error {
	var req model.JobCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.CreateJob(c.Context(), &req)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, result)
}

// Generate handles POST /api/jobs/:jobId/generate
// @Summary      Start generation
// @Description  Start the asynchronous generation pipeline for a job
// @Tags         Jobs
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      202 {object} model.GenerateResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/jobs/{jobId}/generate [post]
func (h *JobHandler) Generate(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.StartGeneration(c.Context(), jobID)
	if err != nil {
		return h.mapError(c, err)
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/jobs/:jobId
// @Summary      Get job status
// @Description  Get a job's lifecycle status, failure reason, and audit trail
// @Tags         Jobs
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.JobStatusResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/jobs/{jobId} [get]
func (h *JobHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), jobID)
	if err != nil {
		return h.mapError(c, err)
	}

	return response.OK(c, result)
}

// Artifact handles GET /api/jobs/:jobId/artifact
// @Summary      Get generated artifact
// @Description  Get the artifact and scorecard of the job's last pipeline run
// @Tags         Jobs
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.ArtifactResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/jobs/{jobId}/artifact [get]
func (h *JobHandler) Artifact(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetArtifact(c.Context(), jobID)
	if err != nil {
		return h.mapError(c, err)
	}

	return response.OK(c, result)
}

// Review handles POST /api/jobs/:jobId/review
// @Summary      Review a job
// @Description  Approve or reject a job awaiting review (approver only)
// @Tags         Jobs
// @Accept       json
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Param        request body model.ReviewRequest true "Review decision"
// @Success      200 {object} model.ReviewResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/jobs/{jobId}/review [post]
func (h *JobHandler) Review(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	var req model.ReviewRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Review(c.Context(), jobID, req.Decision, req.Note)
	if err != nil {
		return h.mapError(c, err)
	}

	return response.OK(c, result)
}

// Revision handles POST /api/jobs/:jobId/revision
// @Summary      Request a revision
// @Description  Send a job back to the pipeline with free-text instructions (approver only)
// @Tags         Jobs
// @Accept       json
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Param        request body model.RevisionRequest true "Revision instructions"
// @Success      202 {object} model.RevisionResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/jobs/{jobId}/revision [post]
func (h *JobHandler) Revision(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	var req model.RevisionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.RequestRevision(c.Context(), jobID, req.Instructions)
	if err != nil {
		return h.mapError(c, err)
	}

	return response.Accepted(c, result)
}

func (h *JobHandler) mapError(c *fiber.Ctx, err error) error {
	var conflict *factory.ConflictError
	var transition *factory.TransitionError

	switch {
	case errors.Is(err, registry.ErrNotFound):
		return response.NotFound(c, "Job not found")
	case errors.As(err, &conflict):
		return response.Conflict(c, conflict.Error())
	case errors.As(err, &transition):
		return response.Conflict(c, transition.Error())
	default:
		return response.ServiceError(c, err.Error())
	}
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
