package codegen

import (
	"bytes"
	"fmt"
	"path"
	"text/template"
)

// generator renders one file when its condition holds for the spec.
type generator struct {
	path     string
	language string
	category Category
	when     func(params) bool
	render   func(params) (string, error)
}

func always(params) bool { return true }

func fromTemplate(t *template.Template) func(params) (string, error) {
	return func(p params) (string, error) {
		var buf bytes.Buffer
		if err := t.Execute(&buf, p); err != nil {
			return "", err
		}
		return buf.String(), nil
	}
}

// generators is the ordered list that makes up a project.
var generators = []generator{
	{path: "package.json", language: "json", category: CategoryConfig, when: always, render: renderPackageJSON},
	{path: "tsconfig.json", language: "json", category: CategoryConfig, when: always, render: renderTSConfig},
	{path: ".env.example", language: "dotenv", category: CategoryConfig, when: always, render: fromTemplate(envTemplate)},
	{path: "vite.config.ts", language: "typescript", category: CategoryConfig, when: always, render: fromTemplate(viteConfigTemplate)},
	{path: "drizzle.config.ts", language: "typescript", category: CategoryConfig, when: always, render: fromTemplate(drizzleConfigTemplate)},
	{path: "shared/schema.ts", language: "typescript", category: CategoryShared, when: always, render: fromTemplate(schemaTemplate)},
	{path: "server/db.ts", language: "typescript", category: CategoryBackend, when: always, render: fromTemplate(dbTemplate)},
	{path: "server/index.ts", language: "typescript", category: CategoryBackend, when: always, render: fromTemplate(serverTemplate)},
	{path: "server/routes/auth.ts", language: "typescript", category: CategoryBackend,
		when: func(p params) bool { return p.Auth }, render: fromTemplate(authRoutesTemplate)},
	{path: "server/routes/subscriptions.ts", language: "typescript", category: CategoryBackend,
		when: func(p params) bool { return p.Subscriptions }, render: fromTemplate(subscriptionRoutesTemplate)},
	{path: "server/routes/webhooks.ts", language: "typescript", category: CategoryBackend,
		when: func(p params) bool { return p.Payments }, render: fromTemplate(webhookRoutesTemplate)},
	{path: "server/routes/content.ts", language: "typescript", category: CategoryBackend,
		when: func(p params) bool { return p.CMS }, render: fromTemplate(contentRoutesTemplate)},
	{path: "server/routes/analytics.ts", language: "typescript", category: CategoryBackend,
		when: func(p params) bool { return p.Analytics }, render: fromTemplate(analyticsRoutesTemplate)},
	{path: "Dockerfile", language: "dockerfile", category: CategoryInfrastructure, when: always, render: fromTemplate(dockerfileTemplate)},
	{path: "docker-compose.yml", language: "yaml", category: CategoryInfrastructure, when: always, render: fromTemplate(composeTemplate)},
	{path: ".dockerignore", language: "text", category: CategoryInfrastructure, when: always, render: fromTemplate(dockerignoreTemplate)},
	{path: "client/index.html", language: "html", category: CategoryFrontend, when: always, render: fromTemplate(indexHTMLTemplate)},
	{path: "client/src/main.tsx", language: "tsx", category: CategoryFrontend, when: always, render: fromTemplate(mainTSXTemplate)},
	{path: "client/src/App.tsx", language: "tsx", category: CategoryFrontend, when: always, render: fromTemplate(appTSXTemplate)},
	{path: "client/src/theme.css", language: "css", category: CategoryFrontend, when: always, render: fromTemplate(themeTemplate)},
	{path: "README.md", language: "markdown", category: CategoryDocs, when: always, render: fromTemplate(readmeTemplate)},
}

// Generate validates spec and renders the project files in a fixed order.
// The same spec always yields identical output.
func Generate(spec PlatformSpec) ([]GeneratedFile, error) {
	if err := Validate(spec); err != nil {
		return nil, err
	}
	p := newParams(withDefaults(spec))

	files := make([]GeneratedFile, 0, len(generators))
	seen := make(map[string]struct{}, len(generators))
	for _, g := range generators {
		if !g.when(p) {
			continue
		}
		if _, dup := seen[g.path]; dup {
			return nil, fmt.Errorf("duplicate generated path %q", g.path)
		}
		seen[g.path] = struct{}{}

		content, err := g.render(p)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", g.path, err)
		}
		files = append(files, GeneratedFile{
			FileName: path.Base(g.path),
			FilePath: g.path,
			Content:  content,
			Language: g.language,
			Category: g.category,
		})
	}
	return files, nil
}
