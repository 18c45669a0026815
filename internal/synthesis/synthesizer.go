// Package synthesis builds a technical specification from a requirement
// analysis and its sector context.
package synthesis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/platform-factory/backend/internal/analysis"
	"github.com/platform-factory/backend/internal/generative"
	"github.com/platform-factory/backend/internal/llm"
	"github.com/platform-factory/backend/internal/sector"
	"github.com/platform-factory/backend/pkg/logger"
)

const (
	operation   = "specification_synthesis"
	specVersion = "1.0.0"
)

var (
	defaultFrontend = Component{
		Name:     "React + TypeScript",
		Features: []string{"Responsive layout", "Right-to-left support", "Accessible components"},
	}
	defaultBackend = Component{
		Name:     "Node.js + Express",
		Features: []string{"REST API", "Input validation", "Structured logging"},
	}
	defaultDatabase = Component{
		Name:     "PostgreSQL",
		Features: []string{"Automated backups", "Point-in-time recovery"},
	}
	defaultInfrastructure = Component{
		Name:     "Docker + Kubernetes",
		Features: []string{"Container orchestration", "Horizontal autoscaling", "Health checks"},
	}
)

// Fallback plan figures.
const (
	fallbackFeatureComplexity = 5
	fallbackFeatureHours      = 40
	fallbackDevelopment       = 50000
	fallbackInfrastructure    = 12000
	fallbackMaintenance       = 10000
	fallbackCurrency          = "USD"
	fallbackPlatformType      = "web_application"
)

var fallbackPhases = []Phase{
	{Name: "Design", DurationWeeks: 2, Deliverables: []string{"Requirements document", "Architecture design", "UI wireframes"}},
	{Name: "Build", DurationWeeks: 6, Deliverables: []string{"Core features", "Integrations", "Admin dashboard"}},
	{Name: "Test", DurationWeeks: 2, Deliverables: []string{"Test reports", "Security review", "Production deployment"}},
}

type Synthesizer struct {
	completer llm.Completer
	timeout   time.Duration
	now       func() time.Time
	newID     func() string
}

// NewSynthesizer returns a synthesizer backed by completer. A nil completer
// makes every synthesis use the deterministic plan.
func NewSynthesizer(completer llm.Completer, timeout time.Duration) *Synthesizer {
	return &Synthesizer{
		completer: completer,
		timeout:   timeout,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// Synthesize always returns a usable specification. Whatever path produced
// it, sector-mandated compliance, the sector security level and the security
// baseline are enforced on the result.
func (s *Synthesizer) Synthesize(ctx context.Context, a analysis.Result, sc sector.Context) generative.Result[TechnicalSpecification] {
	var gen func(context.Context) (TechnicalSpecification, error)
	if s.completer != nil {
		gen = func(ctx context.Context) (TechnicalSpecification, error) {
			return s.generate(ctx, a, sc)
		}
	}

	res := generative.Attempt(ctx, operation, s.timeout, gen, func() TechnicalSpecification {
		return Fallback(a, sc)
	})

	res.Value.ID = s.newID()
	res.Value.Version = specVersion
	res.Value.CreatedAt = s.now().UTC()
	res.Value = Enforce(res.Value, sc)

	logger.Debug("Specification synthesized",
		zap.String("spec_id", res.Value.ID),
		zap.String("sector", string(sc.Sector)),
		zap.String("provenance", string(res.Provenance)),
		zap.Int("features", len(res.Value.Features)),
	)
	return res
}

func (s *Synthesizer) generate(ctx context.Context, a analysis.Result, sc sector.Context) (TechnicalSpecification, error) {
	prompt, err := userPrompt(a, sc)
	if err != nil {
		return TechnicalSpecification{}, err
	}

	resp, err := s.completer.Complete(ctx, llm.CompletionRequest{
		Operation:    operation,
		SystemPrompt: systemPrompt,
		UserPrompt:   prompt,
		Temperature:  0.3,
		JSONOutput:   true,
	})
	if err != nil {
		return TechnicalSpecification{}, err
	}

	m, err := llm.Decode(resp.Content, (*modelSpec).validate)
	if err != nil {
		return TechnicalSpecification{}, err
	}

	return TechnicalSpecification{
		Platform: Platform{
			Name:       m.Platform.Name,
			Type:       m.Platform.Type,
			Compliance: m.Platform.Compliance,
		},
		Architecture: Architecture{
			Frontend:       m.Architecture.Frontend,
			Backend:        m.Architecture.Backend,
			Database:       m.Architecture.Database,
			Security:       Security{Features: m.Architecture.Security.Features},
			Infrastructure: m.Architecture.Infrastructure,
		},
		Features:     m.Features,
		Integrations: m.Integrations,
		Timeline:     m.Timeline,
		Budget:       m.Budget,
	}, nil
}

// Fallback is the deterministic plan: one feature per suggested action, a
// fixed three-phase timeline and fixed budget figures.
func Fallback(a analysis.Result, sc sector.Context) TechnicalSpecification {
	features := make([]Feature, 0, len(a.SuggestedActions))
	for i, action := range a.SuggestedActions {
		features = append(features, Feature{
			ID:             fmt.Sprintf("feature-%d", i+1),
			Name:           action,
			Description:    action,
			Priority:       PriorityMust,
			Complexity:     fallbackFeatureComplexity,
			EstimatedHours: fallbackFeatureHours,
			Dependencies:   []string{},
		})
	}

	phases := make([]Phase, len(fallbackPhases))
	for i, p := range fallbackPhases {
		phases[i] = Phase{
			Name:          p.Name,
			DurationWeeks: p.DurationWeeks,
			Deliverables:  append([]string(nil), p.Deliverables...),
		}
	}

	return TechnicalSpecification{
		Platform: Platform{
			Name: fallbackPlatformName(sc.Sector),
			Type: fallbackPlatformType,
		},
		Features:     features,
		Integrations: []Integration{},
		Timeline:     Timeline{Phases: phases},
		Budget: Budget{
			Development:    fallbackDevelopment,
			Infrastructure: fallbackInfrastructure,
			Maintenance:    fallbackMaintenance,
			Currency:       fallbackCurrency,
		},
	}
}

// Enforce applies the sector rules to spec: mandated compliance is unioned in,
// the security level is the sector's, the security baseline for that level is
// unioned into the security features, empty architecture layers get defaults
// and the timeline total is recomputed from its phases.
func Enforce(spec TechnicalSpecification, sc sector.Context) TechnicalSpecification {
	spec.Platform.Sector = sc.Sector
	spec.Platform.Compliance = union(sc.ComplianceRequirements, spec.Platform.Compliance)
	if strings.TrimSpace(spec.Platform.Name) == "" {
		spec.Platform.Name = fallbackPlatformName(sc.Sector)
	}
	if strings.TrimSpace(spec.Platform.Type) == "" {
		spec.Platform.Type = fallbackPlatformType
	}

	spec.Architecture.Frontend = withDefault(spec.Architecture.Frontend, defaultFrontend)
	spec.Architecture.Backend = withDefault(spec.Architecture.Backend, defaultBackend)
	spec.Architecture.Database = withDefault(spec.Architecture.Database, defaultDatabase)
	spec.Architecture.Infrastructure = withDefault(spec.Architecture.Infrastructure, defaultInfrastructure)
	spec.Architecture.Security = Security{
		Level:    sc.SecurityLevel,
		Features: union(sector.BaselineSecurityFeatures(sc.SecurityLevel), spec.Architecture.Security.Features),
	}

	if spec.Features == nil {
		spec.Features = []Feature{}
	}
	for i := range spec.Features {
		if spec.Features[i].Dependencies == nil {
			spec.Features[i].Dependencies = []string{}
		}
	}
	if spec.Integrations == nil {
		spec.Integrations = []Integration{}
	}

	total := 0
	for _, p := range spec.Timeline.Phases {
		total += p.DurationWeeks
	}
	spec.Timeline.TotalWeeks = total
	if spec.Budget.Currency == "" {
		spec.Budget.Currency = fallbackCurrency
	}
	return spec
}

func withDefault(c, def Component) Component {
	if strings.TrimSpace(c.Name) == "" {
		return Component{Name: def.Name, Features: append([]string(nil), def.Features...)}
	}
	if c.Features == nil {
		c.Features = []string{}
	}
	return c
}

// union keeps the order of first appearance and drops blanks and repeats
// (case-insensitive).
func union(lists ...[]string) []string {
	out := []string{}
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, item := range list {
			item = strings.TrimSpace(item)
			key := strings.ToLower(item)
			if item == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}

func fallbackPlatformName(s sector.Sector) string {
	name := string(s)
	if name == "" {
		return "Custom Platform"
	}
	return strings.ToUpper(name[:1]) + name[1:] + " Platform"
}
