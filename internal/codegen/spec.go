// Package codegen turns a platform spec into the files of a buildable
// Node/Express + React project. Generation is a pure function of the spec.
package codegen

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/platform-factory/backend/internal/sector"
)

var ErrInvalidSpec = errors.New("invalid platform spec")

type Category string

const (
	CategoryConfig         Category = "config"
	CategoryShared         Category = "shared"
	CategoryBackend        Category = "backend"
	CategoryFrontend       Category = "frontend"
	CategoryInfrastructure Category = "infrastructure"
	CategoryDocs           Category = "docs"
)

type BrandColors struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
	Accent    string `json:"accent"`
}

// PlatformSpec is the caller-facing description of the project to generate.
type PlatformSpec struct {
	Name                 string        `json:"name"`
	LocalizedName        string        `json:"nameAr,omitempty"`
	Description          string        `json:"description"`
	LocalizedDescription string        `json:"descriptionAr,omitempty"`
	Sector               sector.Sector `json:"sector"`
	Features             []string      `json:"features"`
	HasAuth              bool          `json:"hasAuth"`
	HasPayments          bool          `json:"hasPayments"`
	HasSubscriptions     bool          `json:"hasSubscriptions"`
	HasCMS               bool          `json:"hasCms"`
	HasAnalytics         bool          `json:"hasAnalytics"`
	BrandColors          BrandColors   `json:"brandColors"`
}

// GeneratedFile is one file of a generated project.
type GeneratedFile struct {
	FileName string   `json:"fileName"`
	FilePath string   `json:"filePath"`
	Content  string   `json:"content"`
	Language string   `json:"language"`
	Category Category `json:"category"`
}

var (
	hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

	defaultColors = BrandColors{Primary: "#1E40AF", Secondary: "#0F172A", Accent: "#F59E0B"}
)

// MaxFeatures is the most features a single build accepts.
const MaxFeatures = 50

const (
	maxNameRunes    = 120
	maxFeatureRunes = 200
)

// Validate reports why spec cannot be generated. Empty colours and sector are
// allowed and take defaults.
func Validate(spec PlatformSpec) error {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSpec)
	}
	if len([]rune(name)) > maxNameRunes {
		return fmt.Errorf("%w: name longer than %d characters", ErrInvalidSpec, maxNameRunes)
	}
	if spec.Sector != "" && !isSector(spec.Sector) {
		return fmt.Errorf("%w: unknown sector %q", ErrInvalidSpec, spec.Sector)
	}
	if len(spec.Features) > MaxFeatures {
		return fmt.Errorf("%w: more than %d features", ErrInvalidSpec, MaxFeatures)
	}
	for i, f := range spec.Features {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("%w: feature %d is blank", ErrInvalidSpec, i)
		}
		if len([]rune(f)) > maxFeatureRunes {
			return fmt.Errorf("%w: feature %d longer than %d characters", ErrInvalidSpec, i, maxFeatureRunes)
		}
	}
	colors := []struct{ label, value string }{
		{"primary", spec.BrandColors.Primary},
		{"secondary", spec.BrandColors.Secondary},
		{"accent", spec.BrandColors.Accent},
	}
	for _, c := range colors {
		if c.value != "" && !hexColor.MatchString(c.value) {
			return fmt.Errorf("%w: %s colour %q is not #RRGGBB", ErrInvalidSpec, c.label, c.value)
		}
	}
	return nil
}

func isSector(s sector.Sector) bool {
	for _, known := range sector.All {
		if s == known {
			return true
		}
	}
	return false
}

func withDefaults(spec PlatformSpec) PlatformSpec {
	spec.Name = strings.TrimSpace(spec.Name)
	spec.LocalizedName = strings.TrimSpace(spec.LocalizedName)
	if spec.Sector == "" {
		spec.Sector = sector.Commercial
	}
	if spec.BrandColors.Primary == "" {
		spec.BrandColors.Primary = defaultColors.Primary
	}
	if spec.BrandColors.Secondary == "" {
		spec.BrandColors.Secondary = defaultColors.Secondary
	}
	if spec.BrandColors.Accent == "" {
		spec.BrandColors.Accent = defaultColors.Accent
	}
	// Features key list items in the generated client, so repeats are dropped.
	features := make([]string, 0, len(spec.Features))
	seen := make(map[string]struct{}, len(spec.Features))
	for _, f := range spec.Features {
		f = strings.TrimSpace(f)
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		features = append(features, f)
	}
	spec.Features = features
	return spec
}
