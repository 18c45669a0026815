// Package apierror writes the JSON error bodies shared by handlers and
// middleware.
package apierror

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/platform-factory/backend/pkg/logger"
)

const (
	CodeUnauthorized     = "unauthorized"
	CodeForbidden        = "forbidden"
	CodeRateLimited      = "rate_limited"
	CodeValidation       = "validation_error"
	CodeNotFound         = "not_found"
	CodeConflict         = "conflict"
	CodeUnsupportedMedia = "unsupported_media_type"
	CodeUnavailable      = "unavailable"
	CodeInternal         = "internal_error"
)

type Body struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

func Respond(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(Body{Error: message, Code: code})
}

func BadRequest(c *fiber.Ctx, message string) error {
	return Respond(c, fiber.StatusBadRequest, CodeValidation, message)
}

func NotFound(c *fiber.Ctx, message string) error {
	return Respond(c, fiber.StatusNotFound, CodeNotFound, message)
}

func Conflict(c *fiber.Ctx, message string) error {
	return Respond(c, fiber.StatusConflict, CodeConflict, message)
}

func Internal(c *fiber.Ctx, message string) error {
	return Respond(c, fiber.StatusInternalServerError, CodeInternal, message)
}

// Handler is the app-level fiber error handler. Fiber errors keep their
// status; anything else is logged and reported as a 500.
func Handler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return Respond(c, fe.Code, codeFor(fe.Code), fe.Message)
	}

	logger.Error("Unhandled request error",
		zap.String("path", c.Path()),
		zap.String("method", c.Method()),
		zap.Error(err),
	)
	return Internal(c, "Internal server error")
}

func codeFor(status int) string {
	switch status {
	case fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge:
		return CodeValidation
	case fiber.StatusUnauthorized:
		return CodeUnauthorized
	case fiber.StatusForbidden:
		return CodeForbidden
	case fiber.StatusNotFound:
		return CodeNotFound
	case fiber.StatusConflict:
		return CodeConflict
	case fiber.StatusTooManyRequests:
		return CodeRateLimited
	case fiber.StatusUnsupportedMediaType:
		return CodeUnsupportedMedia
	case fiber.StatusServiceUnavailable:
		return CodeUnavailable
	default:
		return CodeInternal
	}
}
