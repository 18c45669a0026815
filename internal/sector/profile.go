// Package sector holds the industry sector profiles and the keyword-based
// classifier that maps free requirement text onto one of them.
package sector

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type Sector string

const (
	Healthcare Sector = "healthcare"
	Military   Sector = "military"
	Government Sector = "government"
	Commercial Sector = "commercial"
	Education  Sector = "education"
	Financial  Sector = "financial"
)

// All lists the sectors in their canonical display order.
var All = []Sector{Healthcare, Military, Government, Commercial, Education, Financial}

type SecurityLevel string

const (
	SecurityStandard SecurityLevel = "standard"
	SecurityEnhanced SecurityLevel = "enhanced"
	SecurityHigh     SecurityLevel = "high"
	SecurityMilitary SecurityLevel = "military"
)

var securityRanks = map[SecurityLevel]int{
	SecurityStandard: 0,
	SecurityEnhanced: 1,
	SecurityHigh:     2,
	SecurityMilitary: 3,
}

// Rank orders levels; unknown levels rank as -1.
func (l SecurityLevel) Rank() int {
	if r, ok := securityRanks[l]; ok {
		return r
	}
	return -1
}

type DataClassification string

const (
	DataPublic       DataClassification = "public"
	DataInternal     DataClassification = "internal"
	DataConfidential DataClassification = "confidential"
	DataSecret       DataClassification = "secret"
	DataTopSecret    DataClassification = "top_secret"
)

var dataRanks = map[DataClassification]int{
	DataPublic:       0,
	DataInternal:     1,
	DataConfidential: 2,
	DataSecret:       3,
	DataTopSecret:    4,
}

func (d DataClassification) Rank() int {
	if r, ok := dataRanks[d]; ok {
		return r
	}
	return -1
}

type Profile struct {
	ID                     Sector              `yaml:"id"`
	DisplayName            map[string]string   `yaml:"displayName"`
	Keywords               map[string][]string `yaml:"keywords"`
	Regulations            []string            `yaml:"regulations"`
	SecurityLevel          SecurityLevel       `yaml:"securityLevel"`
	ComplianceRequirements []string            `yaml:"complianceRequirements"`
	DataClassification     DataClassification  `yaml:"dataClassification"`

	// normalized holds the lowercased, de-duplicated keywords of every locale.
	normalized []string
}

type Insights struct {
	SpecialRequirements     []string `yaml:"specialRequirements"`
	RiskFactors             []string `yaml:"riskFactors"`
	RecommendedArchitecture []string `yaml:"recommendedArchitecture"`
}

type catalogFile struct {
	Version  string              `yaml:"version"`
	TieBreak []Sector            `yaml:"tieBreak"`
	Sectors  []*Profile          `yaml:"sectors"`
	Insights map[Sector]Insights `yaml:"insights"`
}

// Catalog is the immutable set of sector profiles used for classification.
type Catalog struct {
	Version  string
	tieBreak []Sector
	order    []Sector
	profiles map[Sector]*Profile
	insights map[Sector]Insights
}

//go:embed profiles.yaml
var embeddedProfiles []byte

// DefaultCatalog parses the profile data compiled into the binary.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(embeddedProfiles)
	if err != nil {
		panic(fmt.Sprintf("sector: embedded profiles are invalid: %v", err))
	}
	return c
}

// LoadCatalog reads profile data from path, or the embedded data when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return ParseCatalog(embeddedProfiles)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sector profiles: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse sector profiles: %w", err)
	}

	c := &Catalog{
		Version:  file.Version,
		profiles: make(map[Sector]*Profile, len(file.Sectors)),
		insights: file.Insights,
	}

	for _, p := range file.Sectors {
		if p == nil {
			continue
		}
		if _, dup := c.profiles[p.ID]; dup {
			return nil, fmt.Errorf("sector %q defined twice", p.ID)
		}
		if p.SecurityLevel.Rank() < 0 {
			return nil, fmt.Errorf("sector %q: unknown security level %q", p.ID, p.SecurityLevel)
		}
		if p.DataClassification.Rank() < 0 {
			return nil, fmt.Errorf("sector %q: unknown data classification %q", p.ID, p.DataClassification)
		}
		p.normalized = normalizeKeywords(p.Keywords)
		c.profiles[p.ID] = p
		c.order = append(c.order, p.ID)
	}

	for _, s := range All {
		if _, ok := c.profiles[s]; !ok {
			return nil, fmt.Errorf("sector %q missing from profiles", s)
		}
	}
	if len(c.profiles) != len(All) {
		return nil, fmt.Errorf("expected %d sectors, found %d", len(All), len(c.profiles))
	}

	seen := make(map[Sector]bool, len(file.TieBreak))
	for _, s := range file.TieBreak {
		if _, ok := c.profiles[s]; !ok || seen[s] {
			return nil, fmt.Errorf("tie-break order has invalid or repeated sector %q", s)
		}
		seen[s] = true
	}
	if len(seen) != len(All) {
		return nil, fmt.Errorf("tie-break order must list all %d sectors", len(All))
	}
	c.tieBreak = file.TieBreak

	return c, nil
}

func normalizeKeywords(byLocale map[string][]string) []string {
	var extra []string
	for loc := range byLocale {
		if loc != "en" && loc != "ar" {
			extra = append(extra, loc)
		}
	}
	sort.Strings(extra)
	locales := append([]string{"en", "ar"}, extra...)

	seen := make(map[string]bool)
	var out []string
	for _, loc := range locales {
		for _, kw := range byLocale[loc] {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" || seen[kw] {
				continue
			}
			seen[kw] = true
			out = append(out, kw)
		}
	}
	return out
}

func (c *Catalog) Profile(s Sector) (*Profile, bool) {
	p, ok := c.profiles[s]
	return p, ok
}

func (c *Catalog) Insights(s Sector) Insights {
	return c.insights[s]
}

// Descriptor is the public summary of a sector served by the API.
type Descriptor struct {
	ID                     Sector             `json:"id"`
	Name                   map[string]string  `json:"name"`
	SecurityLevel          SecurityLevel      `json:"securityLevel"`
	DataClassification     DataClassification `json:"dataClassification"`
	Regulations            []string           `json:"regulations"`
	ComplianceRequirements []string           `json:"complianceRequirements"`
	KeywordCount           int                `json:"keywordCount"`
}

func (c *Catalog) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(c.order))
	for _, id := range c.order {
		p := c.profiles[id]
		out = append(out, Descriptor{
			ID:                     p.ID,
			Name:                   p.DisplayName,
			SecurityLevel:          p.SecurityLevel,
			DataClassification:     p.DataClassification,
			Regulations:            p.Regulations,
			ComplianceRequirements: p.ComplianceRequirements,
			KeywordCount:           len(p.normalized),
		})
	}
	return out
}
