package handler

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/clipforge/api/internal/middleware"
	"github.com/clipforge/api/internal/model"
	"github.com/clipforge/api/internal/service"
	"github.com/clipforge/api/internal/store"
	"github.com/clipforge/api/pkg/response"
)

type VideoHandler struct {
	service   *service.ProcessService
	validator *validator.Validate
}

func NewVideoHandler(svc *service.ProcessService, v *validator.Validate) *VideoHandler {
	return &VideoHandler{
		service:   svc,
		validator: v,
	}
}

// Process handles POST /api/videos/process — submits a video for transform.
func (h *VideoHandler) Process(c *fiber.Ctx) error {
	var req model.ProcessRequest

	// Strict decode: unknown operation fields are a validation failure, not
	// something to silently drop on the queue.
	dec := json.NewDecoder(bytes.NewReader(c.Body()))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Submit(c.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		return mapServiceError(c, err)
	}

	return response.Accepted(c, result)
}

// GetJob handles GET /api/jobs/:jobId
func (h *VideoHandler) GetJob(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.GetJob(c.Context(), middleware.GetUserID(c), jobID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return response.OK(c, job)
}

// ListJobs handles GET /api/videos/:videoId/jobs — job history, newest first.
func (h *VideoHandler) ListJobs(c *fiber.Ctx) error {
	videoID := c.Params("videoId")
	if videoID == "" {
		return response.ValidationError(c, "Video ID is required", nil)
	}

	jobs, err := h.service.ListVideoJobs(c.Context(), middleware.GetUserID(c), videoID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return response.OK(c, jobs)
}

// GetVideo handles GET /api/videos/:videoId
func (h *VideoHandler) GetVideo(c *fiber.Ctx) error {
	videoID := c.Params("videoId")
	if videoID == "" {
		return response.ValidationError(c, "Video ID is required", nil)
	}

	video, err := h.service.GetVideo(c.Context(), middleware.GetUserID(c), videoID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return response.OK(c, video)
}

// mapServiceError translates service sentinels into the API error envelope.
func mapServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrNotOwner):
		return response.Forbidden(c, "You do not own this resource")
	case errors.Is(err, service.ErrValidation):
		return response.ValidationError(c, err.Error(), nil)
	case errors.Is(err, store.ErrJobNotFound):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, store.ErrVideoNotFound):
		return response.NotFound(c, "Video not found")
	case errors.Is(err, store.ErrProjectNotFound):
		return response.NotFound(c, "Project not found")
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
