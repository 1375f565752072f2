package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/clipforge/api/internal/middleware"
	"github.com/clipforge/api/internal/model"
	"github.com/clipforge/api/internal/service"
	"github.com/clipforge/api/pkg/response"
)

type UploadHandler struct {
	service   *service.UploadService
	validator *validator.Validate
}

func NewUploadHandler(svc *service.UploadService, v *validator.Validate) *UploadHandler {
	return &UploadHandler{
		service:   svc,
		validator: v,
	}
}

// CreateUploadURL handles POST /api/videos/upload — issues a presigned PUT
// URL and registers the video record.
func (h *UploadHandler) CreateUploadURL(c *fiber.Ctx) error {
	var req model.UploadURLRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.CreateUploadURL(c.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		return mapServiceError(c, err)
	}

	return response.Created(c, result)
}

// CreateDownloadURL handles GET /api/videos/:videoId/download — issues a
// presigned read URL for the processed artifact.
func (h *UploadHandler) CreateDownloadURL(c *fiber.Ctx) error {
	videoID := c.Params("videoId")
	if videoID == "" {
		return response.ValidationError(c, "Video ID is required", nil)
	}

	result, err := h.service.CreateDownloadURL(c.Context(), middleware.GetUserID(c), videoID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return response.OK(c, result)
}
