// Package analysis turns free-form requirement text into structured intents,
// entities and keywords.
package analysis

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/platform-factory/backend/internal/generative"
	"github.com/platform-factory/backend/internal/language"
	"github.com/platform-factory/backend/internal/llm"
	"github.com/platform-factory/backend/internal/metrics"
	"github.com/platform-factory/backend/pkg/logger"
)

const (
	operation         = "requirement_analysis"
	summaryMaxRunes   = 200
	minKeywordRunes   = 4
	fallbackConfident = 0.5
)

var fallbackSuggestedActions = []string{
	"Define the core user roles and permissions",
	"Design the data model",
	"Set up authentication",
	"Build the primary user workflows",
	"Prepare the deployment environment",
}

type Analyzer struct {
	completer llm.Completer
	timeout   time.Duration
}

// NewAnalyzer returns an analyzer backed by completer. A nil completer makes
// every analysis take the heuristic path.
func NewAnalyzer(completer llm.Completer, timeout time.Duration) *Analyzer {
	return &Analyzer{completer: completer, timeout: timeout}
}

// Analyze always returns a usable result. Provider failures, timeouts and
// unusable model output are absorbed by the heuristic reading of the text.
func (a *Analyzer) Analyze(ctx context.Context, text string) generative.Result[Result] {
	lang := language.Detect(text)

	var gen func(context.Context) (Result, error)
	if a.completer != nil {
		gen = func(ctx context.Context) (Result, error) {
			return a.generate(ctx, text, lang)
		}
	}

	res := generative.Attempt(ctx, operation, a.timeout, gen, func() Result {
		return Heuristic(text)
	})

	if len(res.Value.Intents) > 0 {
		metrics.ConfidenceScore.WithLabelValues("analysis").Observe(res.Value.Intents[0].Confidence)
	}
	logger.Debug("Requirement analysis finished",
		zap.String("language", string(lang)),
		zap.String("provenance", string(res.Provenance)),
		zap.Int("intents", len(res.Value.Intents)),
		zap.Int("keywords", len(res.Value.Keywords)),
	)
	return res
}

func (a *Analyzer) generate(ctx context.Context, text string, lang language.Code) (Result, error) {
	resp, err := a.completer.Complete(ctx, llm.CompletionRequest{
		Operation:    operation,
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt(text, lang),
		Temperature:  0.2,
		JSONOutput:   true,
	})
	if err != nil {
		return Result{}, err
	}

	out, err := llm.Decode(resp.Content, (*modelOutput).validate)
	if err != nil {
		return Result{}, err
	}

	return Result{
		OriginalText:     text,
		Language:         lang,
		Intents:          normalizeIntents(out.Intents),
		Entities:         normalizeEntities(out.Entities),
		Sentiment:        out.Sentiment,
		Urgency:          out.Urgency,
		Complexity:       out.Complexity,
		Keywords:         nonNil(out.Keywords),
		Summary:          out.Summary,
		SuggestedActions: nonNil(out.SuggestedActions),
	}, nil
}

// Heuristic reads text without a model: whitespace tokens longer than three
// characters become keywords and the intent is a generic platform creation.
func Heuristic(text string) Result {
	return Result{
		OriginalText: text,
		Language:     language.Detect(text),
		Intents: []UserIntent{{
			Action:     ActionCreate,
			Target:     "platform",
			Parameters: map[string]any{},
			Confidence: fallbackConfident,
			Context:    []string{},
		}},
		Entities: EntityExtraction{
			Entities:      []Entity{},
			Relationships: []Relationship{},
		},
		Sentiment:        SentimentNeutral,
		Urgency:          UrgencyMedium,
		Complexity:       ComplexityModerate,
		Keywords:         Keywords(text),
		Summary:          truncateRunes(strings.TrimSpace(text), summaryMaxRunes),
		SuggestedActions: append([]string(nil), fallbackSuggestedActions...),
	}
}

// Keywords lowercases the whitespace-separated tokens of text, trims
// surrounding punctuation and keeps distinct tokens longer than three characters
// in order of first appearance.
func Keywords(text string) []string {
	keywords := []string{}
	seen := make(map[string]struct{})
	for _, field := range strings.Fields(text) {
		token := strings.ToLower(strings.TrimFunc(field, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		}))
		if utf8.RuneCountInString(token) < minKeywordRunes {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		keywords = append(keywords, token)
	}
	return keywords
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

func normalizeIntents(intents []UserIntent) []UserIntent {
	out := make([]UserIntent, len(intents))
	for i, intent := range intents {
		if intent.Parameters == nil {
			intent.Parameters = map[string]any{}
		}
		intent.Context = nonNil(intent.Context)
		out[i] = intent
	}
	return out
}

func normalizeEntities(e EntityExtraction) EntityExtraction {
	if e.Entities == nil {
		e.Entities = []Entity{}
	}
	if e.Relationships == nil {
		e.Relationships = []Relationship{}
	}
	return e
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
