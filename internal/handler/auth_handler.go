package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/drivesense-api/internal/dto"
	"github.com/noah-isme/drivesense-api/internal/middleware"
	"github.com/noah-isme/drivesense-api/internal/service"
	"github.com/noah-isme/drivesense-api/internal/utils"
)

// AuthHandler exposes registration and login.
type AuthHandler struct {
	service service.CredentialService
	logger  zerolog.Logger
}

// NewAuthHandler constructs an auth handler.
func NewAuthHandler(service service.CredentialService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger.With().Str("component", "auth_handler").Logger(),
	}
}

// Register wires auth routes.
func (h *AuthHandler) Register(router fiber.Router) {
	router.Post("/register", h.register)
	router.Post("/login", h.login)
}

func (h *AuthHandler) register(c *fiber.Ctx) error {
	var payload dto.RegisterRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid request body", nil)
	}

	resp, err := h.service.Register(c.UserContext(), payload)
	if err != nil {
		switch {
		case isValidationError(err):
			return utils.Fail(c, fiber.StatusBadRequest, "missing or invalid fields", validationDetails(err))
		case errors.Is(err, service.ErrDuplicateUser):
			return utils.Fail(c, fiber.StatusBadRequest, "username or email already registered", nil)
		default:
			logger := middleware.RequestLogger(h.logger, c)
			logger.Error().Err(err).Msg("registration failed")
			return utils.Fail(c, fiber.StatusInternalServerError, "registration failed", nil)
		}
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *AuthHandler) login(c *fiber.Ctx) error {
	var payload dto.LoginRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid request body", nil)
	}

	resp, err := h.service.Authenticate(c.UserContext(), payload)
	if err != nil {
		switch {
		case isValidationError(err):
			return utils.Fail(c, fiber.StatusBadRequest, "missing or invalid fields", validationDetails(err))
		case errors.Is(err, service.ErrInvalidCredentials):
			return utils.Fail(c, fiber.StatusUnauthorized, "invalid email or password", nil)
		default:
			logger := middleware.RequestLogger(h.logger, c)
			logger.Error().Err(err).Msg("login failed")
			return utils.Fail(c, fiber.StatusInternalServerError, "login failed", nil)
		}
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}
