package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/drivesense-api/internal/middleware"
	"github.com/noah-isme/drivesense-api/internal/service"
	"github.com/noah-isme/drivesense-api/internal/utils"
)

// HistoryHandler serves the read-only detection queries.
type HistoryHandler struct {
	service service.QueryService
	logger  zerolog.Logger
}

// NewHistoryHandler constructs a history handler.
func NewHistoryHandler(service service.QueryService, logger zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{
		service: service,
		logger:  logger.With().Str("component", "history_handler").Logger(),
	}
}

// Register wires query routes. Callers mount it behind authentication.
func (h *HistoryHandler) Register(router fiber.Router) {
	router.Get("/history", h.history)
	router.Get("/detection/:id", h.detail)
	router.Get("/alerts", h.alerts)
	router.Get("/stats", h.stats)
}

func (h *HistoryHandler) history(c *fiber.Ctx) error {
	limit, err := parseOptionalLimit(c)
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	items, err := h.service.History(c.UserContext(), middleware.UserID(c), limit)
	if err != nil {
		return h.queryError(c, err, "failed to fetch history")
	}

	return c.JSON(fiber.Map{"success": true, "data": items})
}

func (h *HistoryHandler) detail(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.Fail(c, fiber.StatusNotFound, "detection not found", nil)
	}

	detail, err := h.service.Detail(c.UserContext(), middleware.UserID(c), id)
	if err != nil {
		return h.queryError(c, err, "failed to fetch details")
	}

	return c.JSON(fiber.Map{"success": true, "data": detail})
}

func (h *HistoryHandler) alerts(c *fiber.Ctx) error {
	limit, err := parseOptionalLimit(c)
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	items, err := h.service.Alerts(c.UserContext(), middleware.UserID(c), limit)
	if err != nil {
		return h.queryError(c, err, "failed to fetch alerts")
	}

	return c.JSON(fiber.Map{"success": true, "data": items})
}

func (h *HistoryHandler) stats(c *fiber.Ctx) error {
	summary, err := h.service.Summary(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return h.queryError(c, err, "failed to fetch stats")
	}

	return c.JSON(fiber.Map{"success": true, "data": summary})
}

func (h *HistoryHandler) queryError(c *fiber.Ctx, err error, message string) error {
	switch {
	case errors.Is(err, service.ErrDetectionNotFound):
		return utils.Fail(c, fiber.StatusNotFound, "detection not found", nil)
	case errors.Is(err, service.ErrInvalidLimit):
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	default:
		logger := middleware.RequestLogger(h.logger, c)
		logger.Error().Err(err).Msg(message)
		return utils.Fail(c, fiber.StatusInternalServerError, message, nil)
	}
}
