package codegen

import (
	"strings"

	"github.com/platform-factory/backend/internal/language"
	"github.com/platform-factory/backend/internal/sector"
	"github.com/platform-factory/backend/internal/synthesis"
)

var sectorPalettes = map[sector.Sector]BrandColors{
	sector.Healthcare: {Primary: "#0E7490", Secondary: "#164E63", Accent: "#22C55E"},
	sector.Military:   {Primary: "#3F6212", Secondary: "#1C1917", Accent: "#A16207"},
	sector.Government: {Primary: "#1E3A8A", Secondary: "#111827", Accent: "#B45309"},
	sector.Commercial: {Primary: "#7C3AED", Secondary: "#1F2937", Accent: "#F97316"},
	sector.Education:  {Primary: "#2563EB", Secondary: "#1E293B", Accent: "#FACC15"},
	sector.Financial:  {Primary: "#065F46", Secondary: "#0F172A", Accent: "#D4AF37"},
}

// capabilityHints are matched against feature and integration text to decide
// which optional capabilities a synthesized plan needs.
var capabilityHints = struct {
	payments, subscriptions, cms, analytics []string
}{
	payments:      []string{"payment", "checkout", "stripe", "billing", "invoice", "دفع", "مدفوعات"},
	subscriptions: []string{"subscription", "membership", "recurring", "pricing plan", "اشتراك"},
	cms:           []string{"content", "cms", "blog", "article", "page", "محتوى", "مقال"},
	analytics:     []string{"analytics", "report", "dashboard", "metric", "insight", "تحليل", "تقارير"},
}

// FromSpecification derives the generator input from a synthesized
// specification. Authentication is always on; the other capabilities are
// enabled when a planned feature or integration mentions them. Features with
// priority "wont" are ignored entirely.
func FromSpecification(spec synthesis.TechnicalSpecification) PlatformSpec {
	var (
		features []string
		corpus   []string
	)
	for _, f := range spec.Features {
		if f.Priority == synthesis.PriorityWont || strings.TrimSpace(f.Name) == "" {
			continue
		}
		corpus = append(corpus, f.Name, f.Description)
		if len(features) < MaxFeatures {
			features = append(features, truncate(strings.TrimSpace(f.Name), maxFeatureRunes))
		}
	}
	for _, i := range spec.Integrations {
		corpus = append(corpus, i.Name, i.Type)
	}
	text := strings.ToLower(strings.Join(corpus, " "))

	out := PlatformSpec{
		Name:             truncate(strings.TrimSpace(spec.Platform.Name), maxNameRunes),
		Description:      describe(spec),
		Sector:           spec.Platform.Sector,
		Features:         features,
		HasAuth:          true,
		HasPayments:      mentionsAny(text, capabilityHints.payments),
		HasSubscriptions: mentionsAny(text, capabilityHints.subscriptions),
		HasCMS:           mentionsAny(text, capabilityHints.cms),
		HasAnalytics:     mentionsAny(text, capabilityHints.analytics),
		BrandColors:      sectorPalettes[spec.Platform.Sector],
	}
	if out.Features == nil {
		out.Features = []string{}
	}

	if language.Detect(out.Name) != language.English {
		out.LocalizedName = out.Name
		out.Name = fallbackName(spec.Platform.Sector)
	}
	if out.Name == "" {
		out.Name = fallbackName(spec.Platform.Sector)
	}
	return out
}

func describe(spec synthesis.TechnicalSpecification) string {
	parts := []string{}
	if spec.Platform.Type != "" {
		parts = append(parts, strings.ReplaceAll(spec.Platform.Type, "_", " "))
	}
	if spec.Platform.Sector != "" {
		parts = append(parts, "for the "+string(spec.Platform.Sector)+" sector")
	}
	if len(spec.Platform.Compliance) > 0 {
		parts = append(parts, "aligned with "+strings.Join(spec.Platform.Compliance, ", "))
	}
	return strings.Join(parts, " ")
}

func mentionsAny(text string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(text, h) {
			return true
		}
	}
	return false
}

func fallbackName(s sector.Sector) string {
	if s == "" {
		return "Platform"
	}
	name := string(s)
	return strings.ToUpper(name[:1]) + name[1:] + " Platform"
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
