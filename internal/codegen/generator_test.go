package codegen

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platform-factory/backend/internal/sector"
	"github.com/platform-factory/backend/internal/synthesis"
)

func baseSpec() PlatformSpec {
	return PlatformSpec{
		Name:        "Clinic Connect",
		Description: "Appointments and records for small clinics",
		Sector:      sector.Healthcare,
		Features:    []string{"Appointment booking", "Patient records"},
		BrandColors: BrandColors{Primary: "#0E7490"},
	}
}

// flagCombinations enumerates every on/off assignment of the five capability flags.
func flagCombinations() []PlatformSpec {
	var out []PlatformSpec
	for mask := 0; mask < 32; mask++ {
		spec := baseSpec()
		spec.HasAuth = mask&1 != 0
		spec.HasPayments = mask&2 != 0
		spec.HasSubscriptions = mask&4 != 0
		spec.HasCMS = mask&8 != 0
		spec.HasAnalytics = mask&16 != 0
		out = append(out, spec)
	}
	return out
}

func byPath(files []GeneratedFile) map[string]GeneratedFile {
	out := make(map[string]GeneratedFile, len(files))
	for _, f := range files {
		out[f.FilePath] = f
	}
	return out
}

func label(spec PlatformSpec) string {
	return fmt.Sprintf("auth=%t payments=%t subs=%t cms=%t analytics=%t",
		spec.HasAuth, spec.HasPayments, spec.HasSubscriptions, spec.HasCMS, spec.HasAnalytics)
}

func TestGenerateIsPure(t *testing.T) {
	for _, spec := range flagCombinations() {
		first, err := Generate(spec)
		require.NoError(t, err)
		second, err := Generate(spec)
		require.NoError(t, err)
		assert.Equal(t, first, second, label(spec))
	}
}

func TestGeneratePathsAreUnique(t *testing.T) {
	for _, spec := range flagCombinations() {
		files, err := Generate(spec)
		require.NoError(t, err)
		assert.Len(t, byPath(files), len(files), label(spec))
		for _, f := range files {
			assert.NotEmpty(t, f.Content, f.FilePath)
			assert.True(t, strings.HasSuffix(f.FilePath, f.FileName), f.FilePath)
		}
	}
}

func TestPaymentsFlagControlsWebhooksAndSDK(t *testing.T) {
	for _, spec := range flagCombinations() {
		files, err := Generate(spec)
		require.NoError(t, err)
		all := byPath(files)

		var manifest packageManifest
		require.NoError(t, json.Unmarshal([]byte(all["package.json"].Content), &manifest))
		_, hasSDK := manifest.Dependencies[paymentSDK]
		_, hasWebhooks := all["server/routes/webhooks.ts"]

		assert.Equal(t, spec.HasPayments, hasSDK, label(spec))
		assert.Equal(t, spec.HasPayments, hasWebhooks, label(spec))
		assert.Equal(t, spec.HasPayments, strings.Contains(all["shared/schema.ts"].Content, `pgTable("payments"`), label(spec))
		assert.Equal(t, spec.HasPayments, strings.Contains(all[".env.example"].Content, "STRIPE_SECRET_KEY"), label(spec))
		assert.Equal(t, spec.HasPayments, strings.Contains(all["server/index.ts"].Content, "webhooksRouter"), label(spec))
	}
}

func TestSubscriptionsFlagControlsSchemaAndRouter(t *testing.T) {
	for _, spec := range flagCombinations() {
		files, err := Generate(spec)
		require.NoError(t, err)
		all := byPath(files)
		schema := all["shared/schema.ts"].Content
		server := all["server/index.ts"].Content
		_, hasRoutes := all["server/routes/subscriptions.ts"]

		assert.Equal(t, spec.HasSubscriptions, strings.Contains(schema, `pgTable("subscriptions"`), label(spec))
		assert.Equal(t, spec.HasSubscriptions, strings.Contains(schema, `pgTable("plans"`), label(spec))
		assert.Equal(t, spec.HasSubscriptions, strings.Contains(server, `from "./routes/subscriptions"`), label(spec))
		assert.Equal(t, spec.HasSubscriptions, hasRoutes, label(spec))
	}
}

var (
	routerImport = regexp.MustCompile(`import \{ (\w+) \} from "\./routes/(\w+)";`)
	schemaImport = regexp.MustCompile(`import \{ ([\w, ]+) \} from "\.\./\.\./shared/schema";`)
	builderList  = regexp.MustCompile(`import \{ ([\w, ]+) \} from "drizzle-orm/pg-core";`)
)

func TestCrossFileReferencesResolve(t *testing.T) {
	for _, spec := range flagCombinations() {
		files, err := Generate(spec)
		require.NoError(t, err)
		all := byPath(files)
		schema := all["shared/schema.ts"].Content
		server := all["server/index.ts"].Content

		imports := routerImport.FindAllStringSubmatch(server, -1)
		for _, m := range imports {
			route, ok := all["server/routes/"+m[2]+".ts"]
			require.True(t, ok, "%s imports missing route %s", label(spec), m[2])
			assert.Contains(t, route.Content, "export const "+m[1]+" = Router();")
			assert.Regexp(t, `app\.use\("/api/\w+", `+m[1]+`\);`, server)
		}
		routeFiles := 0
		for path := range all {
			if strings.HasPrefix(path, "server/routes/") {
				routeFiles++
			}
		}
		assert.Equal(t, routeFiles, len(imports), "every route file is registered: %s", label(spec))

		for path, f := range all {
			for _, m := range schemaImport.FindAllStringSubmatch(f.Content, -1) {
				for _, name := range strings.Split(m[1], ", ") {
					assert.Contains(t, schema, "export const "+name+" = pgTable(", "%s: %s imports %s", label(spec), path, name)
				}
			}
		}

		builders := builderList.FindStringSubmatch(schema)
		require.NotNil(t, builders)
		body := strings.SplitN(schema, "\n", 2)[1]
		for _, name := range strings.Split(builders[1], ", ") {
			assert.Contains(t, body, name+"(", "%s: unused import %s", label(spec), name)
		}
	}
}

func TestGeneratedJSONIsWellFormed(t *testing.T) {
	files, err := Generate(baseSpec())
	require.NoError(t, err)
	all := byPath(files)

	assert.True(t, json.Valid([]byte(all["package.json"].Content)))
	assert.True(t, json.Valid([]byte(all["tsconfig.json"].Content)))
}

func TestGenerateLocalizedFrontendIsRightToLeft(t *testing.T) {
	spec := baseSpec()
	spec.LocalizedName = "عيادتي"

	files, err := Generate(spec)
	require.NoError(t, err)
	all := byPath(files)

	assert.Contains(t, all["client/index.html"].Content, `<html lang="ar" dir="rtl">`)
	assert.Contains(t, all["client/index.html"].Content, "<title>عيادتي</title>")
	assert.Contains(t, all["client/src/theme.css"].Content, "direction: rtl;")

	plain, err := Generate(baseSpec())
	require.NoError(t, err)
	assert.Contains(t, byPath(plain)["client/index.html"].Content, `<html lang="en" dir="ltr">`)
}

func TestGenerateEscapesUserText(t *testing.T) {
	spec := baseSpec()
	spec.Name = `Acme "Quote" </title><script>`
	spec.Features = []string{"line\nbreak", `back\slash`}

	files, err := Generate(spec)
	require.NoError(t, err)
	all := byPath(files)

	assert.NotContains(t, all["client/index.html"].Content, "<script>alert")
	assert.Contains(t, all["client/index.html"].Content, "&lt;/title&gt;")
	assert.Contains(t, all["client/src/App.tsx"].Content, `name: "Acme \"Quote\" </title><script>",`)
	assert.Contains(t, all["client/src/App.tsx"].Content, `["line\nbreak","back\\slash"]`)
	assert.Equal(t, "acme-quote-title-script", newParams(withDefaults(spec)).Slug)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*PlatformSpec)
	}{
		{name: "blank name", mutate: func(s *PlatformSpec) { s.Name = "  " }},
		{name: "bad colour", mutate: func(s *PlatformSpec) { s.BrandColors.Accent = "orange" }},
		{name: "unknown sector", mutate: func(s *PlatformSpec) { s.Sector = "space" }},
		{name: "blank feature", mutate: func(s *PlatformSpec) { s.Features = []string{"ok", ""} }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec := baseSpec()
			tc.mutate(&spec)

			files, err := Generate(spec)
			assert.Nil(t, files)
			assert.True(t, errors.Is(err, ErrInvalidSpec), "got %v", err)
		})
	}
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "clinic-connect", slugify("Clinic Connect"))
	assert.Equal(t, "shop-2-go", slugify("  Shop 2 -- Go! "))
	assert.Equal(t, "platform", slugify("منصة تعليمية"))
}

func TestFromSpecification(t *testing.T) {
	spec := synthesis.TechnicalSpecification{
		Platform: synthesis.Platform{
			Name:       "BankFlow",
			Type:       "web_application",
			Sector:     sector.Financial,
			Compliance: []string{"PCI DSS"},
		},
		Features: []synthesis.Feature{
			{ID: "f1", Name: "Online checkout", Priority: synthesis.PriorityMust},
			{ID: "f2", Name: "Monthly reports dashboard", Priority: synthesis.PriorityShould},
			{ID: "f3", Name: "Blog", Priority: synthesis.PriorityWont},
		},
	}

	got := FromSpecification(spec)

	assert.Equal(t, "BankFlow", got.Name)
	assert.Equal(t, sector.Financial, got.Sector)
	assert.Equal(t, []string{"Online checkout", "Monthly reports dashboard"}, got.Features)
	assert.True(t, got.HasAuth)
	assert.True(t, got.HasPayments)
	assert.True(t, got.HasAnalytics)
	assert.False(t, got.HasSubscriptions)
	assert.False(t, got.HasCMS)
	assert.Equal(t, "#065F46", got.BrandColors.Primary)
	assert.Contains(t, got.Description, "financial sector")

	_, err := Generate(got)
	require.NoError(t, err)
}

func TestFromSpecificationArabicName(t *testing.T) {
	got := FromSpecification(synthesis.TechnicalSpecification{
		Platform: synthesis.Platform{Name: "منصة التعليم", Sector: sector.Education},
	})

	assert.Equal(t, "منصة التعليم", got.LocalizedName)
	assert.Equal(t, "Education Platform", got.Name)
	assert.NotNil(t, got.Features)
	require.NoError(t, Validate(got))
}

func TestGenerateDropsRepeatedFeatures(t *testing.T) {
	spec := baseSpec()
	spec.Features = []string{"Patient records", "Billing", " Patient records ", "Billing"}

	files, err := Generate(spec)
	require.NoError(t, err)

	app := byPath(files)["client/src/App.tsx"].Content
	assert.Contains(t, app, `features: ["Patient records","Billing"] as string[]`)
	assert.Equal(t, 1, strings.Count(byPath(files)["README.md"].Content, "Billing"))
}
