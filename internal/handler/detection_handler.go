package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/drivesense-api/internal/middleware"
	"github.com/noah-isme/drivesense-api/internal/service"
	"github.com/noah-isme/drivesense-api/internal/utils"
)

// DetectionHandler accepts image and video submissions.
type DetectionHandler struct {
	service service.DetectionService
	logger  zerolog.Logger
}

// NewDetectionHandler constructs a detection handler.
func NewDetectionHandler(service service.DetectionService, logger zerolog.Logger) *DetectionHandler {
	return &DetectionHandler{
		service: service,
		logger:  logger.With().Str("component", "detection_handler").Logger(),
	}
}

// Register wires submission routes. Callers mount it behind authentication.
func (h *DetectionHandler) Register(router fiber.Router) {
	router.Post("/image", h.submitImage)
	router.Post("/video", h.submitVideo)
}

func (h *DetectionHandler) submitImage(c *fiber.Ctx) error {
	upload, closeUpload, err := formUpload(c)
	if err != nil {
		return h.intakeError(c, err)
	}
	defer closeUpload()

	resp, err := h.service.SubmitImage(c.UserContext(), middleware.UserID(c), upload)
	if err != nil {
		var submissionErr *service.SubmissionError
		if errors.As(err, &submissionErr) {
			logger := middleware.RequestLogger(h.logger, c)
			logger.Error().Err(err).Uint("detection_id", submissionErr.DetectionID).Str("state", string(submissionErr.State)).Msg("image detection failed")
			return utils.Fail(c, fiber.StatusInternalServerError, "detection failed", fiber.Map{"detectionId": submissionErr.DetectionID})
		}
		return h.intakeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *DetectionHandler) submitVideo(c *fiber.Ctx) error {
	upload, closeUpload, err := formUpload(c)
	if err != nil {
		return h.intakeError(c, err)
	}
	defer closeUpload()

	resp, err := h.service.SubmitVideo(c.UserContext(), middleware.UserID(c), upload)
	if err != nil {
		return h.intakeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *DetectionHandler) intakeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrFileRequired):
		return utils.Fail(c, fiber.StatusBadRequest, "no file uploaded", nil)
	case errors.Is(err, service.ErrUploadTypeNotAllowed):
		return utils.Fail(c, fiber.StatusBadRequest, "file type not allowed", nil)
	case errors.Is(err, service.ErrUploadTooLarge):
		return utils.Fail(c, fiber.StatusRequestEntityTooLarge, "file exceeds maximum allowed size", nil)
	default:
		logger := middleware.RequestLogger(h.logger, c)
		logger.Error().Err(err).Msg("submission failed")
		return utils.Fail(c, fiber.StatusInternalServerError, "upload failed", nil)
	}
}
