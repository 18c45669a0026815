package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/platform-factory/backend/internal/analysis"
	"github.com/platform-factory/backend/internal/api/apierror"
	"github.com/platform-factory/backend/internal/language"
	"github.com/platform-factory/backend/internal/middleware/trace"
	"github.com/platform-factory/backend/internal/middleware/validation"
	"github.com/platform-factory/backend/internal/pipeline"
	"github.com/platform-factory/backend/internal/storage/models"
	"github.com/platform-factory/backend/pkg/logger"
)

// AuditLog reads back the audit trail.
type AuditLog interface {
	Summary(ctx context.Context, since time.Time) (*models.AuditSummary, error)
	RecentRequests(ctx context.Context, callerID string, limit int) ([]models.PipelineRequest, error)
}

type AnalysisHandler struct {
	pipeline     *pipeline.Pipeline
	capabilities Capabilities
	auditLog     AuditLog
}

// NewAnalysisHandler serves the /nlp routes. auditLog may be nil when the
// audit trail is disabled.
func NewAnalysisHandler(p *pipeline.Pipeline, capabilities Capabilities, auditLog AuditLog) *AnalysisHandler {
	return &AnalysisHandler{
		pipeline:     p,
		capabilities: capabilities,
		auditLog:     auditLog,
	}
}

type analyzeResponse struct {
	analysis.Result
	Provenance pipeline.StageProvenance `json:"provenance"`
}

func (h *AnalysisHandler) Analyze(c *fiber.Ctx) error {
	text, audit, ok := h.input(c)
	if !ok {
		return apierror.BadRequest(c, "Text is required")
	}

	res := h.pipeline.Analyze(c.UserContext(), text)
	audit.Stage(string(pipeline.StageAnalysis), string(res.Provenance), string(res.Outcome))

	return c.JSON(analyzeResponse{
		Result:     res.Value,
		Provenance: pipeline.StageProvenance{Provenance: res.Provenance, Outcome: res.Outcome},
	})
}

func (h *AnalysisHandler) SectorContext(c *fiber.Ctx) error {
	text, audit, ok := h.input(c)
	if !ok {
		return apierror.BadRequest(c, "Text is required")
	}

	sc := h.pipeline.Classify(text)
	audit.Sector(string(sc.Sector))

	return c.JSON(sc)
}

func (h *AnalysisHandler) GenerateSpecification(c *fiber.Ctx) error {
	text, audit, ok := h.input(c)
	if !ok {
		return apierror.BadRequest(c, "Text is required")
	}

	report := h.pipeline.Specify(c.UserContext(), text, nil)
	auditReport(audit, report)

	return c.JSON(fiber.Map{
		"analysis":      report.Analysis,
		"sectorContext": report.SectorContext,
		"specification": report.Specification,
		"provenance":    report.Provenance,
	})
}

func (h *AnalysisHandler) FullAnalysis(c *fiber.Ctx) error {
	text, audit, ok := h.input(c)
	if !ok {
		return apierror.BadRequest(c, "Text is required")
	}

	var req struct {
		Options pipeline.Options `json:"options"`
	}
	if err := c.BodyParser(&req); err != nil {
		return apierror.BadRequest(c, "Invalid options")
	}

	report, err := h.pipeline.Run(c.UserContext(), text, req.Options, nil)
	if err != nil {
		if errors.Is(err, pipeline.ErrScaffoldUnavailable) {
			return apierror.Respond(c, fiber.StatusServiceUnavailable, apierror.CodeUnavailable, "Scaffold generation is not available")
		}
		logger.Error("Full analysis failed", zap.String("trace_id", trace.ID(c)), zap.Error(err))
		return apierror.Internal(c, "Failed to complete analysis")
	}
	auditReport(audit, report)

	return c.JSON(report)
}

func (h *AnalysisHandler) Sectors(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"sectors": h.pipeline.Catalog().Descriptors(),
	})
}

func (h *AnalysisHandler) Capabilities(c *fiber.Ctx) error {
	return c.JSON(h.capabilities)
}

// Audit summarises the trail over ?hours= (default 24) and lists the latest
// ?limit= requests (default 20, at most 200).
func (h *AnalysisHandler) Audit(c *fiber.Ctx) error {
	if h.auditLog == nil {
		return apierror.Respond(c, fiber.StatusServiceUnavailable, apierror.CodeUnavailable, "Audit trail is disabled")
	}

	hours := c.QueryInt("hours", 24)
	limit := c.QueryInt("limit", 20)
	if hours <= 0 || limit <= 0 || limit > 200 {
		return apierror.BadRequest(c, "hours must be positive and limit between 1 and 200")
	}

	ctx := c.UserContext()
	summary, err := h.auditLog.Summary(ctx, time.Now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		logger.Error("Failed to summarise audit trail", zap.Error(err))
		return apierror.Internal(c, "Failed to read audit trail")
	}
	recent, err := h.auditLog.RecentRequests(ctx, c.Query("caller"), limit)
	if err != nil {
		logger.Error("Failed to list audit trail", zap.Error(err))
		return apierror.Internal(c, "Failed to read audit trail")
	}

	return c.JSON(fiber.Map{
		"summary": summary,
		"recent":  recent,
	})
}

// input returns the text cleaned by the validation middleware and marks the
// request as a pipeline request.
func (h *AnalysisHandler) input(c *fiber.Ctx) (string, *trace.Audit, bool) {
	text, ok := validation.Text(c)
	if !ok {
		return "", nil, false
	}
	audit := trace.AuditFrom(c)
	audit.Input(text, string(language.Detect(text)))
	return text, audit, true
}

func auditReport(audit *trace.Audit, report *pipeline.Report) {
	audit.Sector(string(report.SectorContext.Sector))
	audit.Stage(string(pipeline.StageAnalysis),
		string(report.Provenance.Analysis.Provenance), string(report.Provenance.Analysis.Outcome))
	if sp := report.Provenance.Specification; sp != nil {
		audit.Stage(string(pipeline.StageSpecification), string(sp.Provenance), string(sp.Outcome))
	}
	if report.Build != nil {
		audit.Build(report.Build.ID)
	}
}
