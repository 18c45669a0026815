package synthesis

import (
	"fmt"
	"time"

	"github.com/platform-factory/backend/internal/sector"
)

type Priority string

const (
	PriorityMust   Priority = "must"
	PriorityShould Priority = "should"
	PriorityCould  Priority = "could"
	PriorityWont   Priority = "wont"
)

// TechnicalSpecification is the full build plan derived from an analysis and
// its sector context.
type TechnicalSpecification struct {
	ID           string        `json:"id"`
	Version      string        `json:"version"`
	CreatedAt    time.Time     `json:"createdAt"`
	Platform     Platform      `json:"platform"`
	Architecture Architecture  `json:"architecture"`
	Features     []Feature     `json:"features"`
	Integrations []Integration `json:"integrations"`
	Timeline     Timeline      `json:"timeline"`
	Budget       Budget        `json:"budget"`
}

type Platform struct {
	Name       string        `json:"name"`
	Type       string        `json:"type"`
	Sector     sector.Sector `json:"sector"`
	Compliance []string      `json:"compliance"`
}

type Architecture struct {
	Frontend       Component `json:"frontend"`
	Backend        Component `json:"backend"`
	Database       Component `json:"database"`
	Security       Security  `json:"security"`
	Infrastructure Component `json:"infrastructure"`
}

// Component names the framework or provider of one architecture layer.
type Component struct {
	Name     string   `json:"name"`
	Features []string `json:"features"`
}

type Security struct {
	Level    sector.SecurityLevel `json:"level"`
	Features []string             `json:"features"`
}

type Feature struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Priority       Priority `json:"priority"`
	Complexity     int      `json:"complexity"`
	EstimatedHours int      `json:"estimatedHours"`
	Dependencies   []string `json:"dependencies"`
}

type Integration struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

type Phase struct {
	Name          string   `json:"name"`
	DurationWeeks int      `json:"durationWeeks"`
	Deliverables  []string `json:"deliverables"`
}

type Timeline struct {
	Phases     []Phase `json:"phases"`
	TotalWeeks int     `json:"totalWeeks"`
}

type Budget struct {
	Development    float64 `json:"development"`
	Infrastructure float64 `json:"infrastructure"`
	Maintenance    float64 `json:"maintenance"`
	Currency       string  `json:"currency"`
}

// modelSpec is the part of a specification the model is asked to produce.
// Identity fields are always assigned locally.
type modelSpec struct {
	Platform struct {
		Name       string   `json:"name"`
		Type       string   `json:"type"`
		Compliance []string `json:"compliance"`
	} `json:"platform"`
	Architecture struct {
		Frontend       Component `json:"frontend"`
		Backend        Component `json:"backend"`
		Database       Component `json:"database"`
		Security       Component `json:"security"`
		Infrastructure Component `json:"infrastructure"`
	} `json:"architecture"`
	Features     []Feature     `json:"features"`
	Integrations []Integration `json:"integrations"`
	Timeline     Timeline      `json:"timeline"`
	Budget       Budget        `json:"budget"`
}

func (m *modelSpec) validate() error {
	if len(m.Features) == 0 {
		return fmt.Errorf("no features")
	}
	ids := make(map[string]struct{}, len(m.Features))
	for i, f := range m.Features {
		if f.ID == "" || f.Name == "" {
			return fmt.Errorf("feature %d: id and name are required", i)
		}
		if _, dup := ids[f.ID]; dup {
			return fmt.Errorf("feature %d: duplicate id %q", i, f.ID)
		}
		ids[f.ID] = struct{}{}
		switch f.Priority {
		case PriorityMust, PriorityShould, PriorityCould, PriorityWont:
		default:
			return fmt.Errorf("feature %q: unknown priority %q", f.ID, f.Priority)
		}
		if f.Complexity < 1 || f.Complexity > 10 {
			return fmt.Errorf("feature %q: complexity %d out of range", f.ID, f.Complexity)
		}
		if f.EstimatedHours <= 0 {
			return fmt.Errorf("feature %q: estimated hours must be positive", f.ID)
		}
	}
	for _, f := range m.Features {
		for _, dep := range f.Dependencies {
			if _, ok := ids[dep]; !ok {
				return fmt.Errorf("feature %q: unknown dependency %q", f.ID, dep)
			}
		}
	}
	for i, integration := range m.Integrations {
		if integration.Name == "" {
			return fmt.Errorf("integration %d: empty name", i)
		}
	}
	if len(m.Timeline.Phases) == 0 {
		return fmt.Errorf("timeline has no phases")
	}
	for i, p := range m.Timeline.Phases {
		if p.Name == "" || p.DurationWeeks <= 0 {
			return fmt.Errorf("phase %d: name and positive duration are required", i)
		}
	}
	if m.Budget.Development < 0 || m.Budget.Infrastructure < 0 || m.Budget.Maintenance < 0 {
		return fmt.Errorf("negative budget figure")
	}
	return nil
}
