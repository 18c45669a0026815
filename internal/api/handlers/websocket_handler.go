package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/platform-factory/backend/internal/api/apierror"
	"github.com/platform-factory/backend/internal/language"
	"github.com/platform-factory/backend/internal/middleware/auth"
	"github.com/platform-factory/backend/internal/middleware/trace"
	"github.com/platform-factory/backend/internal/middleware/validation"
	"github.com/platform-factory/backend/internal/pipeline"
	"github.com/platform-factory/backend/pkg/logger"
)

const (
	callerKey      = "ws_caller"
	streamEndpoint = "/api/v1/nlp/stream"
)

// Limiter admits or rejects work for a caller, returning seconds to wait.
type Limiter interface {
	Allow(key string) (bool, int)
}

type WebSocketHandler struct {
	pipeline      *pipeline.Pipeline
	auditor       *trace.Auditor
	limiter       Limiter
	maxTextLength int
}

func NewWebSocketHandler(p *pipeline.Pipeline, auditor *trace.Auditor, limiter Limiter, maxTextLength int) *WebSocketHandler {
	return &WebSocketHandler{
		pipeline:      p,
		auditor:       auditor,
		limiter:       limiter,
		maxTextLength: maxTextLength,
	}
}

// Upgrade only lets websocket handshakes through and remembers who the
// caller is, since fiber context values are gone after the upgrade.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return apierror.Respond(c, fiber.StatusUpgradeRequired, apierror.CodeValidation, "Websocket upgrade required")
	}
	c.Locals(callerKey, auth.CallerKey(c))
	return c.Next()
}

type streamRequest struct {
	Type    string           `json:"type"`
	Text    string           `json:"text"`
	Options pipeline.Options `json:"options"`
}

type streamMessage struct {
	Type       string           `json:"type"`
	TraceID    string           `json:"traceId,omitempty"`
	Event      *pipeline.Event  `json:"event,omitempty"`
	Result     *pipeline.Report `json:"result,omitempty"`
	Error      string           `json:"error,omitempty"`
	Code       string           `json:"code,omitempty"`
	RetryAfter int              `json:"retryAfter,omitempty"`
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	caller, _ := c.Locals(callerKey).(string)
	logger.Info("WebSocket connection established", zap.String("caller_id", caller))

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.Close()
		logger.Info("WebSocket connection closed", zap.String("caller_id", caller))
	}()

	for {
		var msg streamRequest
		if err := c.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("Failed to read WebSocket message", zap.Error(err))
			}
			return
		}

		if msg.Type != "analyze" {
			h.sendError(c, apierror.CodeValidation, "Unknown message type", 0)
			continue
		}

		if err := h.stream(ctx, c, caller, msg); err != nil {
			logger.Error("Failed to stream analysis", zap.Error(err))
			return
		}
	}
}

func (h *WebSocketHandler) stream(ctx context.Context, c *websocket.Conn, caller string, msg streamRequest) error {
	if ok, retryAfter := h.limiter.Allow(caller); !ok {
		return h.sendError(c, apierror.CodeRateLimited, "Rate limit exceeded. Please try again later.", retryAfter)
	}

	text, err := validation.Clean(msg.Text, h.maxTextLength)
	if err != nil {
		return h.sendError(c, apierror.CodeValidation, err.Error(), 0)
	}

	audit := trace.NewAudit(uuid.New().String(), streamEndpoint, caller)
	audit.Input(text, string(language.Detect(text)))

	// A failed write stops further events; the pipeline still finishes.
	var writeErr error
	observe := func(e pipeline.Event) {
		if writeErr != nil {
			return
		}
		writeErr = c.WriteJSON(streamMessage{Type: "progress", TraceID: audit.TraceID, Event: &e})
	}

	report, err := h.pipeline.Run(ctx, text, msg.Options, observe)
	if err != nil {
		if errors.Is(err, pipeline.ErrScaffoldUnavailable) {
			h.auditor.Finish(ctx, audit, fiber.StatusServiceUnavailable)
			return h.sendError(c, apierror.CodeUnavailable, "Scaffold generation is not available", 0)
		}
		h.auditor.Finish(ctx, audit, fiber.StatusInternalServerError)
		return h.sendError(c, apierror.CodeInternal, "Failed to complete analysis", 0)
	}
	auditReport(audit, report)
	h.auditor.Finish(ctx, audit, fiber.StatusOK)

	if writeErr != nil {
		return writeErr
	}
	return c.WriteJSON(streamMessage{Type: "complete", TraceID: audit.TraceID, Result: report})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, code, message string, retryAfter int) error {
	return c.WriteJSON(streamMessage{
		Type:       "error",
		Error:      message,
		Code:       code,
		RetryAfter: retryAfter,
	})
}
