// Package trace assigns request trace ids and audits pipeline requests.
package trace

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/platform-factory/backend/internal/metrics"
	"github.com/platform-factory/backend/internal/middleware/auth"
	"github.com/platform-factory/backend/internal/storage/models"
	"github.com/platform-factory/backend/pkg/logger"
	"github.com/platform-factory/backend/pkg/utils"
)

const (
	HeaderTraceID = "X-Trace-ID"
	traceKey      = "trace_id"
	auditKey      = "audit"
	maxTraceIDLen = 64
)

// Recorder persists audited requests.
type Recorder interface {
	RecordRequest(ctx context.Context, req *models.PipelineRequest) error
}

// Audit collects what a handler learned about a pipeline request.
type Audit struct {
	TraceID  string
	Endpoint string
	CallerID string
	Start    time.Time

	mu              sync.Mutex
	touched         bool
	textFingerprint string
	language        string
	sector          string
	buildID         string
	stages          []models.StageRecord
}

func NewAudit(traceID, endpoint, callerID string) *Audit {
	return &Audit{TraceID: traceID, Endpoint: endpoint, CallerID: callerID, Start: time.Now()}
}

// Input marks the request as touching the pipeline.
func (a *Audit) Input(text, language string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.touched = true
	a.textFingerprint = utils.TextFingerprint(text)
	a.language = language
}

func (a *Audit) Sector(name string) {
	a.mu.Lock()
	a.sector = name
	a.mu.Unlock()
}

func (a *Audit) Build(id string) {
	a.mu.Lock()
	a.touched = true
	a.buildID = id
	a.mu.Unlock()
}

func (a *Audit) Stage(stage, provenance, outcome string) {
	a.mu.Lock()
	a.stages = append(a.stages, models.StageRecord{Stage: stage, Provenance: provenance, Outcome: outcome})
	a.mu.Unlock()
}

func (a *Audit) record(status int, latency time.Duration) (*models.PipelineRequest, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.touched {
		return nil, false
	}
	return &models.PipelineRequest{
		TraceID:         a.TraceID,
		Endpoint:        a.Endpoint,
		CallerID:        a.CallerID,
		TextFingerprint: a.textFingerprint,
		Language:        a.language,
		Sector:          a.sector,
		BuildID:         a.buildID,
		StatusCode:      status,
		LatencyMS:       latency.Milliseconds(),
		CreatedAt:       a.Start.UTC(),
		Stages:          append([]models.StageRecord(nil), a.stages...),
	}, true
}

type Auditor struct {
	recorder Recorder
}

// NewAuditor returns an auditor; recorder may be nil to only log.
func NewAuditor(recorder Recorder) *Auditor {
	return &Auditor{recorder: recorder}
}

// Middleware assigns the trace id, exposes an Audit to handlers and, once the
// handler chain returns, logs and records the request if it touched the
// pipeline.
func (au *Auditor) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		traceID := c.Get(HeaderTraceID)
		if traceID == "" || len(traceID) > maxTraceIDLen {
			traceID = uuid.New().String()
		}
		c.Locals(traceKey, traceID)
		c.Set(HeaderTraceID, traceID)

		audit := NewAudit(traceID, c.Path(), "")
		c.Locals(auditKey, audit)

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		audit.CallerID = auth.CallerKey(c)
		au.Finish(c.UserContext(), audit, status)

		return err
	}
}

// Finish logs and records a completed pipeline request.
func (au *Auditor) Finish(ctx context.Context, a *Audit, status int) {
	rec, ok := a.record(status, time.Since(a.Start))
	if !ok {
		return
	}

	metrics.RequestTotal.WithLabelValues(rec.Endpoint, strconv.Itoa(status)).Inc()

	fields := []zap.Field{
		zap.Time("timestamp", rec.CreatedAt),
		zap.Int("status", status),
		zap.Int64("latency_ms", rec.LatencyMS),
		zap.String("text_fingerprint", rec.TextFingerprint),
		zap.String("language", rec.Language),
	}
	if rec.Sector != "" {
		fields = append(fields, zap.String("sector", rec.Sector))
	}
	if rec.BuildID != "" {
		fields = append(fields, zap.String("build_id", rec.BuildID))
	}
	for _, s := range rec.Stages {
		fields = append(fields,
			zap.String(s.Stage+"_provenance", s.Provenance),
			zap.String(s.Stage+"_outcome", s.Outcome),
		)
	}
	log := logger.WithTrace(rec.TraceID, rec.Endpoint, rec.CallerID)
	log.Info("Pipeline request", fields...)

	if au.recorder == nil {
		return
	}
	if err := au.recorder.RecordRequest(ctx, rec); err != nil {
		log.Error("Failed to record audit trail", zap.Error(err))
	}
}

func ID(c *fiber.Ctx) string {
	id, _ := c.Locals(traceKey).(string)
	return id
}

// AuditFrom returns the request's Audit. Outside the middleware it returns a
// detached Audit so handlers never need a nil check.
func AuditFrom(c *fiber.Ctx) *Audit {
	if a, ok := c.Locals(auditKey).(*Audit); ok {
		return a
	}
	return NewAudit(ID(c), c.Path(), "")
}
