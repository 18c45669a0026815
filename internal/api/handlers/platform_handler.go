package handlers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/platform-factory/backend/internal/api/apierror"
	"github.com/platform-factory/backend/internal/build"
	"github.com/platform-factory/backend/internal/codegen"
	"github.com/platform-factory/backend/internal/metrics"
	"github.com/platform-factory/backend/internal/middleware/trace"
	"github.com/platform-factory/backend/pkg/logger"
)

type PlatformHandler struct {
	builder *build.Builder
}

func NewPlatformHandler(builder *build.Builder) *PlatformHandler {
	return &PlatformHandler{
		builder: builder,
	}
}

// Build generates a scaffold from the posted spec. Generation problems such
// as an invalid spec are reported on the returned build with status error.
func (h *PlatformHandler) Build(c *fiber.Ctx) error {
	var spec codegen.PlatformSpec
	if err := c.BodyParser(&spec); err != nil {
		logger.Debug("Failed to parse platform spec", zap.Error(err))
		return apierror.BadRequest(c, "Invalid platform spec")
	}

	result, err := h.builder.Start(c.UserContext(), spec)
	if err != nil {
		logger.Error("Failed to start build", zap.String("trace_id", trace.ID(c)), zap.Error(err))
		return apierror.Internal(c, "Failed to start build")
	}
	trace.AuditFrom(c).Build(result.ID)

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *PlatformHandler) GetBuild(c *fiber.Ctx) error {
	result, err := h.builder.Store().Get(c.UserContext(), c.Params("buildId"))
	if err != nil {
		return h.storeError(c, err)
	}
	return c.JSON(result)
}

func (h *PlatformHandler) Download(c *fiber.Ctx) error {
	result, err := h.builder.Store().Get(c.UserContext(), c.Params("buildId"))
	if err != nil {
		return h.storeError(c, err)
	}

	archive, err := build.Package(result)
	if errors.Is(err, build.ErrNotComplete) {
		return apierror.Conflict(c, fmt.Sprintf("Build is %s", result.Status))
	}
	if err != nil {
		logger.Error("Failed to package build", zap.String("build_id", result.ID), zap.Error(err))
		return apierror.Internal(c, "Failed to package build")
	}

	metrics.ArchiveBytes.Observe(float64(len(archive)))

	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="platform-%s.zip"`, result.ID))
	return c.Send(archive)
}

func (h *PlatformHandler) storeError(c *fiber.Ctx, err error) error {
	if errors.Is(err, build.ErrNotFound) {
		return apierror.NotFound(c, "Build not found")
	}
	logger.Error("Failed to read build", zap.String("build_id", c.Params("buildId")), zap.Error(err))
	return apierror.Internal(c, "Failed to read build")
}
