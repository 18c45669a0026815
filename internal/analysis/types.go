package analysis

import (
	"fmt"

	"github.com/platform-factory/backend/internal/language"
)

type Action string

const (
	ActionCreate    Action = "create"
	ActionModify    Action = "modify"
	ActionDelete    Action = "delete"
	ActionQuery     Action = "query"
	ActionAnalyze   Action = "analyze"
	ActionDeploy    Action = "deploy"
	ActionConfigure Action = "configure"
)

var actions = []Action{ActionCreate, ActionModify, ActionDelete, ActionQuery, ActionAnalyze, ActionDeploy, ActionConfigure}

type EntityType string

const (
	EntityPlatform    EntityType = "platform"
	EntityFeature     EntityType = "feature"
	EntityUser        EntityType = "user"
	EntityData        EntityType = "data"
	EntityWorkflow    EntityType = "workflow"
	EntityIntegration EntityType = "integration"
	EntitySecurity    EntityType = "security"
)

var entityTypes = []EntityType{EntityPlatform, EntityFeature, EntityUser, EntityData, EntityWorkflow, EntityIntegration, EntitySecurity}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

type Complexity string

const (
	ComplexitySimple     Complexity = "simple"
	ComplexityModerate   Complexity = "moderate"
	ComplexityComplex    Complexity = "complex"
	ComplexityEnterprise Complexity = "enterprise"
)

type UserIntent struct {
	Action     Action         `json:"action"`
	Target     string         `json:"target"`
	Parameters map[string]any `json:"parameters"`
	Confidence float64        `json:"confidence"`
	Context    []string       `json:"context"`
}

// Span is a rune offset range into the original text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type Entity struct {
	ID         string     `json:"id"`
	Type       EntityType `json:"type"`
	Value      string     `json:"value"`
	Confidence float64    `json:"confidence"`
	Span       Span       `json:"span"`
}

type Relationship struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

type EntityExtraction struct {
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
}

// Result is the structured reading of one requirement text.
type Result struct {
	OriginalText     string           `json:"originalText"`
	Language         language.Code    `json:"language"`
	Intents          []UserIntent     `json:"intents"`
	Entities         EntityExtraction `json:"entities"`
	Sentiment        Sentiment        `json:"sentiment"`
	Urgency          Urgency          `json:"urgency"`
	Complexity       Complexity       `json:"complexity"`
	Keywords         []string         `json:"keywords"`
	Summary          string           `json:"summary"`
	SuggestedActions []string         `json:"suggestedActions"`
}

// modelOutput is the JSON object the model is asked to return. Text and
// language are filled in locally and never taken from the model.
type modelOutput struct {
	Intents          []UserIntent     `json:"intents"`
	Entities         EntityExtraction `json:"entities"`
	Sentiment        Sentiment        `json:"sentiment"`
	Urgency          Urgency          `json:"urgency"`
	Complexity       Complexity       `json:"complexity"`
	Keywords         []string         `json:"keywords"`
	Summary          string           `json:"summary"`
	SuggestedActions []string         `json:"suggestedActions"`
}

func (m *modelOutput) validate() error {
	if len(m.Intents) == 0 {
		return fmt.Errorf("no intents")
	}
	for i, intent := range m.Intents {
		if !contains(actions, intent.Action) {
			return fmt.Errorf("intent %d: unknown action %q", i, intent.Action)
		}
		if intent.Target == "" {
			return fmt.Errorf("intent %d: empty target", i)
		}
		if !unitInterval(intent.Confidence) {
			return fmt.Errorf("intent %d: confidence %v out of range", i, intent.Confidence)
		}
	}

	ids := make(map[string]struct{}, len(m.Entities.Entities))
	for i, e := range m.Entities.Entities {
		if e.ID == "" {
			return fmt.Errorf("entity %d: empty id", i)
		}
		if _, dup := ids[e.ID]; dup {
			return fmt.Errorf("entity %d: duplicate id %q", i, e.ID)
		}
		ids[e.ID] = struct{}{}
		if !contains(entityTypes, e.Type) {
			return fmt.Errorf("entity %d: unknown type %q", i, e.Type)
		}
		if !unitInterval(e.Confidence) {
			return fmt.Errorf("entity %d: confidence %v out of range", i, e.Confidence)
		}
		if e.Span.Start < 0 || e.Span.End < e.Span.Start {
			return fmt.Errorf("entity %d: bad span", i)
		}
	}
	for i, r := range m.Entities.Relationships {
		if _, ok := ids[r.Source]; !ok {
			return fmt.Errorf("relationship %d: unknown source %q", i, r.Source)
		}
		if _, ok := ids[r.Target]; !ok {
			return fmt.Errorf("relationship %d: unknown target %q", i, r.Target)
		}
	}

	switch m.Sentiment {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
	default:
		return fmt.Errorf("unknown sentiment %q", m.Sentiment)
	}
	switch m.Urgency {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
	default:
		return fmt.Errorf("unknown urgency %q", m.Urgency)
	}
	switch m.Complexity {
	case ComplexitySimple, ComplexityModerate, ComplexityComplex, ComplexityEnterprise:
	default:
		return fmt.Errorf("unknown complexity %q", m.Complexity)
	}
	if m.Summary == "" {
		return fmt.Errorf("empty summary")
	}
	return nil
}

func contains[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func unitInterval(v float64) bool {
	return v >= 0 && v <= 1
}
