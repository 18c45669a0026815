package handlers

import (
	"github.com/platform-factory/backend/internal/language"
	"github.com/platform-factory/backend/internal/sector"
)

type Capabilities struct {
	Version    string             `json:"version"`
	Provider   string             `json:"provider"`
	Languages  []language.Code    `json:"languages"`
	Sectors    []sector.Sector    `json:"sectors"`
	Analysis   []string           `json:"analysis"`
	Generation GenerationManifest `json:"generation"`
	Limits     Limits             `json:"limits"`
}

type GenerationManifest struct {
	Stack    []string `json:"stack"`
	Features []string `json:"features"`
	Archive  string   `json:"archive"`
}

type Limits struct {
	MaxTextLength       int `json:"maxTextLength"`
	RequestsPerWindow   int `json:"requestsPerWindow"`
	WindowSeconds       int `json:"windowSeconds"`
	LLMTimeoutSeconds   int `json:"llmTimeoutSeconds"`
	MaxFeaturesPerBuild int `json:"maxFeaturesPerBuild"`
}

// NewCapabilities describes what this deployment can do. provider is the
// name of the configured model, or "none" for heuristic-only operation.
func NewCapabilities(provider string, limits Limits) Capabilities {
	if provider == "" {
		provider = "none"
	}
	return Capabilities{
		Version:   "1.0.0",
		Provider:  provider,
		Languages: []language.Code{language.English, language.Arabic, language.Mixed},
		Sectors:   append([]sector.Sector(nil), sector.All...),
		Analysis: []string{
			"intent_recognition",
			"entity_extraction",
			"relationship_extraction",
			"sentiment",
			"urgency",
			"complexity",
			"keyword_extraction",
			"summarization",
			"sector_classification",
			"specification_synthesis",
		},
		Generation: GenerationManifest{
			Stack:    []string{"Node.js", "Express", "TypeScript", "Drizzle ORM", "PostgreSQL", "React", "Vite", "Docker"},
			Features: []string{"auth", "payments", "subscriptions", "cms", "analytics", "rtl"},
			Archive:  "zip",
		},
		Limits: limits,
	}
}
