// Package pipeline runs requirement text through classification, analysis,
// specification and, on request, scaffolding.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/platform-factory/backend/internal/analysis"
	"github.com/platform-factory/backend/internal/build"
	"github.com/platform-factory/backend/internal/codegen"
	"github.com/platform-factory/backend/internal/generative"
	"github.com/platform-factory/backend/internal/llm"
	"github.com/platform-factory/backend/internal/metrics"
	"github.com/platform-factory/backend/internal/sector"
	"github.com/platform-factory/backend/internal/synthesis"
	"github.com/platform-factory/backend/pkg/logger"
)

var ErrScaffoldUnavailable = errors.New("scaffold generation is not configured")

type Stage string

const (
	StageClassification Stage = "classification"
	StageAnalysis       Stage = "analysis"
	StageSpecification  Stage = "specification"
	StageScaffold       Stage = "scaffold"
)

type EventStatus string

const (
	EventStarted   EventStatus = "started"
	EventCompleted EventStatus = "completed"
	EventFailed    EventStatus = "failed"
)

// Event reports stage progress to an Observer.
type Event struct {
	Stage      Stage                 `json:"stage"`
	Status     EventStatus           `json:"status"`
	Provenance generative.Provenance `json:"provenance,omitempty"`
	Outcome    llm.Outcome           `json:"outcome,omitempty"`
	ElapsedMS  int64                 `json:"elapsedMs"`
	Data       any                   `json:"data,omitempty"`
}

// Observer receives events one at a time, never concurrently.
type Observer func(Event)

type Options struct {
	GenerateScaffold bool `json:"generateScaffold"`
}

type StageProvenance struct {
	Provenance generative.Provenance `json:"provenance"`
	Outcome    llm.Outcome           `json:"outcome"`
}

type Provenances struct {
	Analysis      StageProvenance  `json:"analysis"`
	Specification *StageProvenance `json:"specification,omitempty"`
}

type Report struct {
	Analysis         analysis.Result                   `json:"analysis"`
	SectorContext    sector.Context                    `json:"sectorContext"`
	Specification    *synthesis.TechnicalSpecification `json:"specification,omitempty"`
	Provenance       Provenances                       `json:"provenance"`
	Build            *build.Result                     `json:"build,omitempty"`
	ProcessingTimeMS int64                             `json:"processingTimeMs"`
}

type Pipeline struct {
	classifier  *sector.Classifier
	analyzer    *analysis.Analyzer
	synthesizer *synthesis.Synthesizer
	builder     *build.Builder
	now         func() time.Time
}

// New wires the stages. builder may be nil when scaffolding is not offered.
func New(classifier *sector.Classifier, analyzer *analysis.Analyzer, synthesizer *synthesis.Synthesizer, builder *build.Builder) *Pipeline {
	return &Pipeline{
		classifier:  classifier,
		analyzer:    analyzer,
		synthesizer: synthesizer,
		builder:     builder,
		now:         time.Now,
	}
}

func (p *Pipeline) Catalog() *sector.Catalog {
	return p.classifier.Catalog()
}

func (p *Pipeline) Classify(text string) sector.Context {
	start := p.now()
	sc := p.classifier.Classify(text)

	metrics.SectorClassified.WithLabelValues(string(sc.Sector)).Inc()
	metrics.ConfidenceScore.WithLabelValues("sector").Observe(sc.Confidence)
	metrics.RequestDuration.WithLabelValues(string(StageClassification)).Observe(p.now().Sub(start).Seconds())
	return sc
}

func (p *Pipeline) Analyze(ctx context.Context, text string) generative.Result[analysis.Result] {
	start := p.now()
	res := p.analyzer.Analyze(ctx, text)
	metrics.RequestDuration.WithLabelValues(string(StageAnalysis)).Observe(p.now().Sub(start).Seconds())
	return res
}

// Specify classifies and analyses text concurrently, then synthesizes a
// specification from both. It cannot fail: every stage has a fallback.
func (p *Pipeline) Specify(ctx context.Context, text string, observe Observer) *Report {
	start := p.now()
	emit := serialize(observe)
	elapsed := func() int64 { return p.now().Sub(start).Milliseconds() }

	sectorCh := make(chan sector.Context, 1)
	emit(Event{Stage: StageClassification, Status: EventStarted})
	go func() {
		sc := p.Classify(text)
		emit(Event{Stage: StageClassification, Status: EventCompleted, ElapsedMS: elapsed(), Data: sc})
		sectorCh <- sc
	}()

	emit(Event{Stage: StageAnalysis, Status: EventStarted})
	ar := p.Analyze(ctx, text)
	emit(Event{
		Stage:      StageAnalysis,
		Status:     EventCompleted,
		Provenance: ar.Provenance,
		Outcome:    ar.Outcome,
		ElapsedMS:  elapsed(),
		Data:       ar.Value,
	})

	sc := <-sectorCh

	emit(Event{Stage: StageSpecification, Status: EventStarted})
	synthStart := p.now()
	sr := p.synthesizer.Synthesize(ctx, ar.Value, sc)
	metrics.RequestDuration.WithLabelValues(string(StageSpecification)).Observe(p.now().Sub(synthStart).Seconds())
	emit(Event{
		Stage:      StageSpecification,
		Status:     EventCompleted,
		Provenance: sr.Provenance,
		Outcome:    sr.Outcome,
		ElapsedMS:  elapsed(),
		Data:       sr.Value,
	})

	spec := sr.Value
	return &Report{
		Analysis:      ar.Value,
		SectorContext: sc,
		Specification: &spec,
		Provenance: Provenances{
			Analysis:      StageProvenance{Provenance: ar.Provenance, Outcome: ar.Outcome},
			Specification: &StageProvenance{Provenance: sr.Provenance, Outcome: sr.Outcome},
		},
		ProcessingTimeMS: elapsed(),
	}
}

// Run is Specify plus an optional scaffold build from the specification. A
// failed generation is reported on the build record; the returned error only
// covers a missing builder or a build store failure.
func (p *Pipeline) Run(ctx context.Context, text string, opts Options, observe Observer) (*Report, error) {
	start := p.now()
	emit := serialize(observe)

	report := p.Specify(ctx, text, emit)

	if opts.GenerateScaffold {
		if p.builder == nil {
			return nil, ErrScaffoldUnavailable
		}
		emit(Event{Stage: StageScaffold, Status: EventStarted})
		result, err := p.builder.Start(ctx, codegen.FromSpecification(*report.Specification))
		if err != nil {
			emit(Event{Stage: StageScaffold, Status: EventFailed, ElapsedMS: p.now().Sub(start).Milliseconds()})
			return nil, fmt.Errorf("start scaffold build: %w", err)
		}
		report.Build = result
		emit(Event{
			Stage:     StageScaffold,
			Status:    EventCompleted,
			ElapsedMS: p.now().Sub(start).Milliseconds(),
			Data:      summarizeBuild(result),
		})
	}

	report.ProcessingTimeMS = p.now().Sub(start).Milliseconds()

	logger.Info("Full analysis complete",
		zap.String("sector", string(report.SectorContext.Sector)),
		zap.String("analysis_provenance", string(report.Provenance.Analysis.Provenance)),
		zap.String("specification_provenance", string(report.Provenance.Specification.Provenance)),
		zap.Bool("scaffold", report.Build != nil),
		zap.Int64("processing_time_ms", report.ProcessingTimeMS),
	)
	return report, nil
}

// buildSummary keeps the file contents out of progress events.
type buildSummary struct {
	ID          string       `json:"id"`
	Status      build.Status `json:"status"`
	Files       int          `json:"files"`
	DownloadURL string       `json:"downloadUrl,omitempty"`
	Error       string       `json:"error,omitempty"`
}

func summarizeBuild(r *build.Result) buildSummary {
	return buildSummary{
		ID:          r.ID,
		Status:      r.Status,
		Files:       len(r.Files),
		DownloadURL: r.DownloadURL,
		Error:       r.Error,
	}
}

func serialize(observe Observer) Observer {
	if observe == nil {
		return func(Event) {}
	}
	var mu sync.Mutex
	return func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		observe(e)
	}
}
