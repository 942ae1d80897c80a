package handler

import (
	"errors"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/drivesense-api/internal/service"
)

const uploadField = "file"

// parseOptionalLimit returns nil when the limit query is absent.
func parseOptionalLimit(c *fiber.Ctx) (*int, error) {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return nil, service.ErrInvalidLimit
	}
	return &parsed, nil
}

func parseIDParam(c *fiber.Ctx, key string) (uint, error) {
	parsed, err := strconv.ParseUint(strings.TrimSpace(c.Params(key)), 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(parsed), nil
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// validationDetails maps each failing field to the rule it broke.
func validationDetails(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}

	details := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		details[lowerFirst(fieldErr.Field())] = fieldErr.Tag()
	}
	return details
}

func lowerFirst(value string) string {
	if value == "" {
		return value
	}
	return strings.ToLower(value[:1]) + value[1:]
}

// formUpload opens the multipart artifact. The returned closer must be called.
func formUpload(c *fiber.Ctx) (service.Upload, func(), error) {
	header, err := c.FormFile(uploadField)
	if err != nil || header == nil {
		return service.Upload{}, func() {}, service.ErrFileRequired
	}

	return openUpload(header)
}

func openUpload(header *multipart.FileHeader) (service.Upload, func(), error) {
	file, err := header.Open()
	if err != nil {
		return service.Upload{}, func() {}, err
	}

	upload := service.Upload{
		Reader:   file,
		FileName: header.Filename,
		MimeType: header.Header.Get(fiber.HeaderContentType),
		Size:     header.Size,
	}

	return upload, func() { _ = file.Close() }, nil
}
