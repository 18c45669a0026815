package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platform-factory/backend/internal/analysis"
	"github.com/platform-factory/backend/internal/build"
	"github.com/platform-factory/backend/internal/generative"
	"github.com/platform-factory/backend/internal/llm"
	"github.com/platform-factory/backend/internal/sector"
	"github.com/platform-factory/backend/internal/synthesis"
)

const hospitalText = "Build a hospital patient record system"

const analysisJSON = `{"intents": [{"action": "create", "target": "hospital records", "confidence": 0.8}], "sentiment": "neutral", "urgency": "high", "complexity": "complex", "summary": "Hospital record system", "suggestedActions": ["Patient records", "Online payments"]}`

// scriptedCompleter answers per operation name.
type scriptedCompleter struct {
	respond func(ctx context.Context, req llm.CompletionRequest) (string, error)
}

func (s *scriptedCompleter) Name() string { return "scripted" }

func (s *scriptedCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	content, err := s.respond(ctx, req)
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Content: content}, nil
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) observe(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) completed() []Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stages []Stage
	for _, e := range r.events {
		if e.Status == EventCompleted {
			stages = append(stages, e.Stage)
		}
	}
	return stages
}

func newPipeline(completer llm.Completer, builder *build.Builder) *Pipeline {
	return New(
		sector.NewClassifier(nil),
		analysis.NewAnalyzer(completer, time.Second),
		synthesis.NewSynthesizer(completer, time.Second),
		builder,
	)
}

func TestSpecifyWithoutProviderFallsBackEverywhere(t *testing.T) {
	rec := &recorder{}
	report := newPipeline(nil, nil).Specify(context.Background(), hospitalText, rec.observe)

	assert.Equal(t, sector.Healthcare, report.SectorContext.Sector)
	assert.Equal(t, generative.Heuristic, report.Provenance.Analysis.Provenance)
	assert.Equal(t, llm.OutcomeUnavailable, report.Provenance.Analysis.Outcome)
	require.NotNil(t, report.Provenance.Specification)
	assert.Equal(t, generative.Heuristic, report.Provenance.Specification.Provenance)

	require.NotNil(t, report.Specification)
	assert.Contains(t, report.Specification.Platform.Compliance, "HIPAA")
	assert.Equal(t, sector.Healthcare, report.Specification.Platform.Sector)
	assert.Nil(t, report.Build)
	assert.GreaterOrEqual(t, report.ProcessingTimeMS, int64(0))

	assert.ElementsMatch(t, []Stage{StageClassification, StageAnalysis, StageSpecification}, rec.completed())
	assert.Equal(t, StageSpecification, rec.events[len(rec.events)-1].Stage)
}

func TestClassificationRunsWhileAnalysisIsInFlight(t *testing.T) {
	classified := make(chan struct{})
	var once sync.Once

	completer := &scriptedCompleter{respond: func(ctx context.Context, req llm.CompletionRequest) (string, error) {
		if req.Operation != "requirement_analysis" {
			return "", errors.New("no specification model")
		}
		// Answer only once classification has finished on its own goroutine.
		select {
		case <-classified:
			return analysisJSON, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}}

	observe := func(e Event) {
		if e.Stage == StageClassification && e.Status == EventCompleted {
			once.Do(func() { close(classified) })
		}
	}

	report := newPipeline(completer, nil).Specify(context.Background(), hospitalText, observe)

	assert.Equal(t, generative.Generated, report.Provenance.Analysis.Provenance)
	assert.Equal(t, "Hospital record system", report.Analysis.Summary)
	assert.Equal(t, generative.Heuristic, report.Provenance.Specification.Provenance)
}

func TestSynthesisSeesBothAnalysisAndSector(t *testing.T) {
	completer := &scriptedCompleter{respond: func(_ context.Context, req llm.CompletionRequest) (string, error) {
		if req.Operation == "requirement_analysis" {
			return analysisJSON, nil
		}
		return "", errors.New("no specification model")
	}}

	report := newPipeline(completer, nil).Specify(context.Background(), hospitalText, nil)

	features := report.Specification.Features
	require.Len(t, features, 2)
	assert.Equal(t, "Patient records", features[0].Name)
	assert.Equal(t, "Healthcare Platform", report.Specification.Platform.Name)
}

func TestAnalysisTimeoutFallsBack(t *testing.T) {
	completer := &scriptedCompleter{respond: func(ctx context.Context, _ llm.CompletionRequest) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	p := New(
		sector.NewClassifier(nil),
		analysis.NewAnalyzer(completer, 20*time.Millisecond),
		synthesis.NewSynthesizer(completer, 20*time.Millisecond),
		nil,
	)

	report := p.Specify(context.Background(), hospitalText, nil)

	assert.Equal(t, generative.Heuristic, report.Provenance.Analysis.Provenance)
	assert.Equal(t, generative.Heuristic, report.Provenance.Specification.Provenance)
	assert.Subset(t, report.Analysis.Keywords, []string{"hospital", "patient"})
}

func TestRunGeneratesScaffold(t *testing.T) {
	store := build.NewMemoryStore(8, time.Hour)
	rec := &recorder{}
	p := newPipeline(nil, build.NewBuilder(store, "/api/v1/platforms/download/"))

	report, err := p.Run(context.Background(), hospitalText, Options{GenerateScaffold: true}, rec.observe)
	require.NoError(t, err)

	require.NotNil(t, report.Build)
	assert.Equal(t, build.StatusComplete, report.Build.Status)
	assert.NotEmpty(t, report.Build.Files)
	assert.Equal(t, "/api/v1/platforms/download/"+report.Build.ID, report.Build.DownloadURL)
	assert.Equal(t, sector.Healthcare, report.Build.Spec.Sector)

	stored, err := store.Get(context.Background(), report.Build.ID)
	require.NoError(t, err)
	assert.Equal(t, build.StatusComplete, stored.Status)

	last := rec.events[len(rec.events)-1]
	assert.Equal(t, StageScaffold, last.Stage)
	assert.Equal(t, EventCompleted, last.Status)
	summary, ok := last.Data.(buildSummary)
	require.True(t, ok)
	assert.Equal(t, len(report.Build.Files), summary.Files)
}

func TestRunWithoutScaffoldOption(t *testing.T) {
	p := newPipeline(nil, build.NewBuilder(build.NewMemoryStore(8, time.Hour), "/dl/"))

	report, err := p.Run(context.Background(), hospitalText, Options{}, nil)
	require.NoError(t, err)
	assert.Nil(t, report.Build)
}

func TestRunScaffoldWithoutBuilder(t *testing.T) {
	_, err := newPipeline(nil, nil).Run(context.Background(), hospitalText, Options{GenerateScaffold: true}, nil)
	assert.ErrorIs(t, err, ErrScaffoldUnavailable)
}
