package sector

import (
	"math"
	"strings"
)

// Context is the classification outcome attached to an analysis request.
type Context struct {
	Sector                  Sector             `json:"sector"`
	Confidence              float64            `json:"confidence"`
	Regulations             []string           `json:"regulations"`
	SecurityLevel           SecurityLevel      `json:"securityLevel"`
	ComplianceRequirements  []string           `json:"complianceRequirements"`
	DataClassification      DataClassification `json:"dataClassification"`
	SpecialRequirements     []string           `json:"specialRequirements"`
	RiskFactors             []string           `json:"riskFactors"`
	RecommendedArchitecture []string           `json:"recommendedArchitecture"`
}

const (
	// hitsForFullConfidence keyword hits saturate confidence at 1.
	hitsForFullConfidence = 5
	defaultConfidence     = 0.5
)

type Classifier struct {
	catalog *Catalog
}

func NewClassifier(catalog *Catalog) *Classifier {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Classifier{catalog: catalog}
}

func (c *Classifier) Catalog() *Catalog {
	return c.catalog
}

// Scores counts, per sector, how many distinct profile keywords occur in text.
func (c *Classifier) Scores(text string) map[Sector]int {
	lower := strings.ToLower(text)
	scores := make(map[Sector]int, len(c.catalog.profiles))
	for id, p := range c.catalog.profiles {
		n := 0
		for _, kw := range p.normalized {
			if strings.Contains(lower, kw) {
				n++
			}
		}
		scores[id] = n
	}
	return scores
}

// Classify picks the highest scoring sector. Ties go to the sector listed
// first in the catalog tie-break order; no hits at all means commercial at 0.5.
func (c *Classifier) Classify(text string) Context {
	scores := c.Scores(text)

	best := Commercial
	bestScore := 0
	for _, s := range c.catalog.tieBreak {
		if scores[s] > bestScore {
			best = s
			bestScore = scores[s]
		}
	}

	confidence := defaultConfidence
	if bestScore > 0 {
		confidence = math.Min(float64(bestScore)/hitsForFullConfidence, 1)
	}

	return c.contextFor(best, confidence)
}

func (c *Classifier) contextFor(s Sector, confidence float64) Context {
	p := c.catalog.profiles[s]
	insights := c.catalog.Insights(s)
	return Context{
		Sector:                  s,
		Confidence:              confidence,
		Regulations:             cloneStrings(p.Regulations),
		SecurityLevel:           p.SecurityLevel,
		ComplianceRequirements:  cloneStrings(p.ComplianceRequirements),
		DataClassification:      p.DataClassification,
		SpecialRequirements:     cloneStrings(insights.SpecialRequirements),
		RiskFactors:             cloneStrings(insights.RiskFactors),
		RecommendedArchitecture: cloneStrings(insights.RecommendedArchitecture),
	}
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
