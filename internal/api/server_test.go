package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	fasthttpws "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platform-factory/backend/internal/analysis"
	"github.com/platform-factory/backend/internal/api/apierror"
	"github.com/platform-factory/backend/internal/build"
	"github.com/platform-factory/backend/internal/middleware/auth"
	"github.com/platform-factory/backend/internal/middleware/ratelimit"
	"github.com/platform-factory/backend/internal/middleware/trace"
	"github.com/platform-factory/backend/internal/pipeline"
	"github.com/platform-factory/backend/internal/sector"
	"github.com/platform-factory/backend/internal/storage/sqlite"
	"github.com/platform-factory/backend/internal/synthesis"
	"github.com/platform-factory/backend/pkg/config"
)

const (
	ownerID      = "owner-1"
	hospitalText = "Build a hospital patient record system"
)

var jwtSecret = []byte("api-test-secret")

type testServer struct {
	app   *fiber.App
	audit *sqlite.Client
	store *build.MemoryStore
}

func testConfig() *config.Config {
	return &config.Config{
		Server:     config.ServerConfig{ReadTimeout: 5, WriteTimeout: 5, BodyLimit: 1 << 20, Development: true},
		Pipeline:   config.PipelineConfig{LLMTimeoutSec: 1},
		RateLimit:  config.RateLimitConfig{MaxRequests: 30, WindowSec: 60},
		Validation: config.ValidationConfig{MaxTextLength: 10000},
		Metrics:    config.MetricsConfig{Enabled: true},
	}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := testConfig()

	auditStore, err := sqlite.NewClient(":memory:")
	require.NoError(t, err)
	require.NoError(t, auditStore.InitSchema())
	t.Cleanup(func() { auditStore.Close() })

	store := build.NewMemoryStore(64, time.Hour)
	builder := build.NewBuilder(store, basePath+"/platforms/download/")
	p := pipeline.New(
		sector.NewClassifier(nil),
		analysis.NewAnalyzer(nil, time.Second),
		synthesis.NewSynthesizer(nil, time.Second),
		builder,
	)

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequests: cfg.RateLimit.MaxRequests,
		Window:      time.Duration(cfg.RateLimit.WindowSec) * time.Second,
	})
	t.Cleanup(limiter.Stop)

	app := NewApp(Dependencies{
		Config:        cfg,
		Pipeline:      p,
		Builder:       builder,
		Authenticator: auth.New(auth.Config{Secret: jwtSecret, OwnerUserID: ownerID}),
		RateLimiter:   limiter,
		Auditor:       trace.NewAuditor(auditStore),
		AuditLog:      auditStore,
		ProviderName:  "none",
		Checks:        []Check{{Name: "sqlite", Probe: auditStore.Ping}},
	})
	return &testServer{app: app, audit: auditStore, store: store}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwtSecret)
	require.NoError(t, err)
	return signed
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r response) decode(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.body, v), string(r.body))
}

func (s *testServer) do(t *testing.T, method, path, user string, body any) response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, user))
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return response{status: resp.StatusCode, header: resp.Header, body: data}
}

func text(s string) map[string]any {
	return map[string]any{"text": s}
}

func TestHealthAndReadinessNeedNoSession(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, fiber.StatusOK, s.do(t, fiber.MethodGet, "/health", "", nil).status)

	ready := s.do(t, fiber.MethodGet, "/ready", "", nil)
	assert.Equal(t, fiber.StatusOK, ready.status)
	assert.JSONEq(t, `{"status": "ready", "checks": {"sqlite": "ok"}}`, string(ready.body))

	metrics := s.do(t, fiber.MethodGet, "/metrics", "", nil)
	assert.Equal(t, fiber.StatusOK, metrics.status)
}

func TestAnalysisRoutesRequireSessionAndOwner(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, fiber.MethodPost, "/api/v1/nlp/analyze", "", text(hospitalText))
	assert.Equal(t, fiber.StatusUnauthorized, resp.status)

	resp = s.do(t, fiber.MethodPost, "/api/v1/nlp/analyze", "someone-else", text(hospitalText))
	assert.Equal(t, fiber.StatusForbidden, resp.status)
	var e apierror.Body
	resp.decode(t, &e)
	assert.Equal(t, apierror.CodeForbidden, e.Code)

	resp = s.do(t, fiber.MethodGet, "/api/v1/nlp/sectors", "someone-else", nil)
	assert.Equal(t, fiber.StatusForbidden, resp.status)
}

func TestAnalyzeFallsBackWithoutProvider(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, fiber.MethodPost, "/api/v1/nlp/analyze", ownerID, text(hospitalText))
	require.Equal(t, fiber.StatusOK, resp.status, string(resp.body))

	var out struct {
		analysis.Result
		Provenance pipeline.StageProvenance `json:"provenance"`
	}
	resp.decode(t, &out)

	assert.Equal(t, "heuristic", string(out.Provenance.Provenance))
	assert.Equal(t, "unavailable", string(out.Provenance.Outcome))
	require.Len(t, out.Intents, 1)
	assert.Equal(t, analysis.ActionCreate, out.Intents[0].Action)
	assert.Equal(t, hospitalText, out.Summary)
	assert.Subset(t, out.Keywords, []string{"hospital", "patient", "record", "system"})
	assert.Empty(t, out.Entities.Entities)

	traceID := resp.header.Get(trace.HeaderTraceID)
	require.NotEmpty(t, traceID)
	audited, err := s.audit.GetRequest(context.Background(), traceID)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/nlp/analyze", audited.Endpoint)
	assert.Equal(t, "user:"+ownerID, audited.CallerID)
	assert.Equal(t, "en", audited.Language)
	require.Len(t, audited.Stages, 1)
	assert.Equal(t, "heuristic", audited.Stages[0].Provenance)
}

func TestInvalidTextIsRejectedBeforeThePipeline(t *testing.T) {
	s := newTestServer(t)

	for _, body := range []any{text("   "), map[string]any{"text": 7}, map[string]any{}} {
		resp := s.do(t, fiber.MethodPost, "/api/v1/nlp/analyze", ownerID, body)
		assert.Equal(t, fiber.StatusBadRequest, resp.status)
		var e apierror.Body
		resp.decode(t, &e)
		assert.Equal(t, apierror.CodeValidation, e.Code)
	}

	summary, err := s.audit.Summary(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Zero(t, summary.Requests)
}

func TestSectorContext(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, fiber.MethodPost, "/api/v1/nlp/sector-context", ownerID, text(hospitalText))
	require.Equal(t, fiber.StatusOK, resp.status)

	var sc sector.Context
	resp.decode(t, &sc)
	assert.Equal(t, sector.Healthcare, sc.Sector)
	assert.Contains(t, sc.ComplianceRequirements, "HIPAA")
}

func TestGenerateSpecification(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, fiber.MethodPost, "/api/v1/nlp/generate-specification", ownerID, text(hospitalText))
	require.Equal(t, fiber.StatusOK, resp.status)

	var out struct {
		Analysis      analysis.Result                  `json:"analysis"`
		SectorContext sector.Context                   `json:"sectorContext"`
		Specification synthesis.TechnicalSpecification `json:"specification"`
	}
	resp.decode(t, &out)

	assert.Equal(t, sector.Healthcare, out.SectorContext.Sector)
	assert.Subset(t, out.Specification.Platform.Compliance, out.SectorContext.ComplianceRequirements)
	assert.Equal(t, out.SectorContext.SecurityLevel, out.Specification.Architecture.Security.Level)
	assert.Len(t, out.Specification.Features, len(out.Analysis.SuggestedActions))
}

func TestFullAnalysisWithScaffoldThenDownload(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, fiber.MethodPost, "/api/v1/nlp/full-analysis", ownerID, map[string]any{
		"text":    hospitalText,
		"options": map[string]any{"generateScaffold": true},
	})
	require.Equal(t, fiber.StatusOK, resp.status, string(resp.body))

	var report pipeline.Report
	resp.decode(t, &report)
	require.NotNil(t, report.Build)
	assert.Equal(t, build.StatusComplete, report.Build.Status)
	assert.GreaterOrEqual(t, report.ProcessingTimeMS, int64(0))
	require.NotNil(t, report.Specification)

	status := s.do(t, fiber.MethodGet, "/api/v1/platforms/builds/"+report.Build.ID, "member-7", nil)
	assert.Equal(t, fiber.StatusOK, status.status)

	dl := s.do(t, fiber.MethodGet, report.Build.DownloadURL, "member-7", nil)
	require.Equal(t, fiber.StatusOK, dl.status)
	assert.Equal(t, "application/zip", dl.header.Get("Content-Type"))
	assert.Contains(t, dl.header.Get("Content-Disposition"), report.Build.ID)

	zr, err := zip.NewReader(bytes.NewReader(dl.body), int64(len(dl.body)))
	require.NoError(t, err)
	assert.Len(t, zr.File, len(report.Build.Files))

	audited, err := s.audit.GetRequest(context.Background(), resp.header.Get(trace.HeaderTraceID))
	require.NoError(t, err)
	assert.Equal(t, report.Build.ID, audited.BuildID)
	assert.Equal(t, "healthcare", audited.Sector)
	assert.Len(t, audited.Stages, 2)
}

func TestFullAnalysisWithoutOptions(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, fiber.MethodPost, "/api/v1/nlp/full-analysis", ownerID, text(hospitalText))
	require.Equal(t, fiber.StatusOK, resp.status)

	var report map[string]any
	resp.decode(t, &report)
	assert.NotContains(t, report, "build")
	assert.Contains(t, report, "processingTimeMs")
}

func TestBuildLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, fiber.MethodPost, "/api/v1/platforms/build", "member-7", map[string]any{
		"name":        "Storefront",
		"sector":      "commercial",
		"features":    []string{"Catalog"},
		"hasAuth":     true,
		"hasPayments": true,
	})
	require.Equal(t, fiber.StatusCreated, resp.status, string(resp.body))

	var result build.Result
	resp.decode(t, &result)
	assert.Equal(t, build.StatusComplete, result.Status)
	assert.Equal(t, "/api/v1/platforms/download/"+result.ID, result.DownloadURL)

	failed := s.do(t, fiber.MethodPost, "/api/v1/platforms/build", "member-7", map[string]any{"name": ""})
	require.Equal(t, fiber.StatusCreated, failed.status)
	var failedResult build.Result
	failed.decode(t, &failedResult)
	assert.Equal(t, build.StatusError, failedResult.Status)
	assert.NotEmpty(t, failedResult.Error)

	conflict := s.do(t, fiber.MethodGet, "/api/v1/platforms/download/"+failedResult.ID, "member-7", nil)
	assert.Equal(t, fiber.StatusConflict, conflict.status)
}

func TestUnknownBuildIsNotFound(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/v1/platforms/download/nope", "/api/v1/platforms/builds/nope"} {
		resp := s.do(t, fiber.MethodGet, path, "member-7", nil)
		assert.Equal(t, fiber.StatusNotFound, resp.status)
		var e apierror.Body
		resp.decode(t, &e)
		assert.Equal(t, apierror.CodeNotFound, e.Code)
	}
}

func TestBuildNeedsSession(t *testing.T) {
	s := newTestServer(t)
	resp := s.do(t, fiber.MethodPost, "/api/v1/platforms/build", "", map[string]any{"name": "x"})
	assert.Equal(t, fiber.StatusUnauthorized, resp.status)
}

func TestThirtyFirstRequestIsRateLimited(t *testing.T) {
	s := newTestServer(t)

	for i := 0; i < 30; i++ {
		resp := s.do(t, fiber.MethodGet, "/api/v1/nlp/sectors", ownerID, nil)
		require.Equal(t, fiber.StatusOK, resp.status, "request %d", i+1)
	}

	resp := s.do(t, fiber.MethodGet, "/api/v1/nlp/sectors", ownerID, nil)
	require.Equal(t, fiber.StatusTooManyRequests, resp.status)

	var e apierror.Body
	resp.decode(t, &e)
	assert.Equal(t, apierror.CodeRateLimited, e.Code)
	assert.GreaterOrEqual(t, e.RetryAfter, 1)
	assert.LessOrEqual(t, e.RetryAfter, 60)
	assert.NotEmpty(t, resp.header.Get("Retry-After"))

	// Another caller has its own window.
	assert.Equal(t, fiber.StatusForbidden, s.do(t, fiber.MethodGet, "/api/v1/nlp/sectors", "member-7", nil).status)
}

func TestSectorsAndCapabilities(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, fiber.MethodGet, "/api/v1/nlp/sectors", ownerID, nil)
	require.Equal(t, fiber.StatusOK, resp.status)
	var sectors struct {
		Sectors []sector.Descriptor `json:"sectors"`
	}
	resp.decode(t, &sectors)
	assert.Len(t, sectors.Sectors, 6)

	resp = s.do(t, fiber.MethodGet, "/api/v1/nlp/capabilities", ownerID, nil)
	require.Equal(t, fiber.StatusOK, resp.status)
	var caps map[string]any
	resp.decode(t, &caps)
	assert.Equal(t, "none", caps["provider"])
	assert.Len(t, caps["sectors"], 6)
}

func TestAuditEndpointSummarisesRequests(t *testing.T) {
	s := newTestServer(t)

	s.do(t, fiber.MethodPost, "/api/v1/nlp/analyze", ownerID, text(hospitalText))
	s.do(t, fiber.MethodPost, "/api/v1/nlp/sector-context", ownerID, text("Online store with payments"))

	resp := s.do(t, fiber.MethodGet, "/api/v1/nlp/audit?hours=1&limit=5", ownerID, nil)
	require.Equal(t, fiber.StatusOK, resp.status, string(resp.body))

	var out struct {
		Summary struct {
			Requests int `json:"requests"`
		} `json:"summary"`
		Recent []map[string]any `json:"recent"`
	}
	resp.decode(t, &out)
	assert.Equal(t, 2, out.Summary.Requests)
	assert.Len(t, out.Recent, 2)

	bad := s.do(t, fiber.MethodGet, "/api/v1/nlp/audit?limit=0", ownerID, nil)
	assert.Equal(t, fiber.StatusBadRequest, bad.status)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)
	resp := s.do(t, fiber.MethodGet, "/nope", "", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.status)
}

func TestStreamRequiresUpgrade(t *testing.T) {
	s := newTestServer(t)
	resp := s.do(t, fiber.MethodGet, "/api/v1/nlp/stream", ownerID, nil)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.status)
}

func TestStreamReportsEveryStage(t *testing.T) {
	s := newTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.app.Listener(ln)
	t.Cleanup(func() { s.app.Shutdown() })

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token(t, ownerID))
	conn, _, err := fasthttpws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/api/v1/nlp/stream", header)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":    "analyze",
		"text":    hospitalText,
		"options": map[string]any{"generateScaffold": true},
	}))

	var completed []string
	for {
		var msg struct {
			Type   string           `json:"type"`
			Event  *pipeline.Event  `json:"event"`
			Result *pipeline.Report `json:"result"`
			Error  string           `json:"error"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		require.NotEqual(t, "error", msg.Type, msg.Error)

		if msg.Type == "progress" && msg.Event.Status == pipeline.EventCompleted {
			completed = append(completed, string(msg.Event.Stage))
		}
		if msg.Type == "complete" {
			require.NotNil(t, msg.Result)
			require.NotNil(t, msg.Result.Build)
			assert.Equal(t, build.StatusComplete, msg.Result.Build.Status)
			break
		}
	}

	assert.ElementsMatch(t, []string{"classification", "analysis", "specification", "scaffold"}, completed)
	assert.Equal(t, "scaffold", completed[len(completed)-1])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "analyze", "text": "  "}))
	var rejected struct {
		Type string `json:"type"`
		Code string `json:"code"`
	}
	require.NoError(t, conn.ReadJSON(&rejected))
	assert.Equal(t, "error", rejected.Type)
	assert.Equal(t, apierror.CodeValidation, rejected.Code)

}
