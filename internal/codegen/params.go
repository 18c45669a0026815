package codegen

import (
	"strings"
	"unicode"
)

// router is one optional express router of the generated server.
type router struct {
	File  string
	Var   string
	Mount string
}

// params is the typed view of a spec that every template renders from.
type params struct {
	Name                 string
	LocalizedName        string
	Description          string
	LocalizedDescription string
	Slug                 string
	DBName               string
	Sector               string
	Features             []string
	Capabilities         []string

	Auth          bool
	Payments      bool
	Subscriptions bool
	CMS           bool
	Analytics     bool

	Colors BrandColors
	Lang   string
	Dir    string
	Title  string

	Routers       []router
	SchemaImports []string
	WebhookTables []string
}

func newParams(spec PlatformSpec) params {
	p := params{
		Name:                 spec.Name,
		LocalizedName:        spec.LocalizedName,
		Description:          spec.Description,
		LocalizedDescription: spec.LocalizedDescription,
		Slug:                 slugify(spec.Name),
		Sector:               string(spec.Sector),
		Features:             spec.Features,
		Auth:                 spec.HasAuth,
		Payments:             spec.HasPayments,
		Subscriptions:        spec.HasSubscriptions,
		CMS:                  spec.HasCMS,
		Analytics:            spec.HasAnalytics,
		Colors:               spec.BrandColors,
		Lang:                 "en",
		Dir:                  "ltr",
		Title:                spec.Name,
	}
	p.DBName = strings.ReplaceAll(p.Slug, "-", "_")

	if spec.LocalizedName != "" {
		p.Lang = "ar"
		p.Dir = "rtl"
		p.Title = spec.LocalizedName
	}

	p.Capabilities = []string{}
	if p.Auth {
		p.Capabilities = append(p.Capabilities, "Authentication")
		p.Routers = append(p.Routers, router{File: "auth", Var: "authRouter", Mount: "/api/auth"})
	}
	if p.Subscriptions {
		p.Capabilities = append(p.Capabilities, "Subscriptions")
		p.Routers = append(p.Routers, router{File: "subscriptions", Var: "subscriptionsRouter", Mount: "/api/subscriptions"})
	}
	if p.Payments {
		p.Capabilities = append(p.Capabilities, "Payments")
		p.Routers = append(p.Routers, router{File: "webhooks", Var: "webhooksRouter", Mount: "/api/webhooks"})
	}
	if p.CMS {
		p.Capabilities = append(p.Capabilities, "Content management")
		p.Routers = append(p.Routers, router{File: "content", Var: "contentRouter", Mount: "/api/content"})
	}
	if p.Analytics {
		p.Capabilities = append(p.Capabilities, "Analytics")
		p.Routers = append(p.Routers, router{File: "analytics", Var: "analyticsRouter", Mount: "/api/analytics"})
	}

	p.SchemaImports = schemaImports(p)
	p.WebhookTables = []string{"payments"}
	if p.Subscriptions {
		p.WebhookTables = append(p.WebhookTables, "subscriptions")
	}
	return p
}

// schemaImports lists exactly the drizzle column builders the schema uses.
func schemaImports(p params) []string {
	imports := []string{"pgTable", "serial", "text", "varchar", "timestamp"}
	if p.Subscriptions || p.CMS {
		imports = append(imports, "boolean")
	}
	if p.Subscriptions || p.Payments || p.Analytics {
		imports = append(imports, "integer")
	}
	if p.Analytics {
		imports = append(imports, "jsonb")
	}
	return imports
}

// slugify keeps ASCII letters and digits and collapses everything else into
// single hyphens. Names without any ASCII alphanumerics become "platform".
func slugify(name string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(name) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	slug := b.String()
	if slug == "" {
		return "platform"
	}
	if len(slug) > 64 {
		slug = strings.TrimRight(slug[:64], "-")
	}
	return slug
}
