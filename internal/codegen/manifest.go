package codegen

import (
	"bytes"
	"encoding/json"
)

const paymentSDK = "stripe"

type packageManifest struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Private         bool              `json:"private"`
	Type            string            `json:"type"`
	Description     string            `json:"description,omitempty"`
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

type tsConfig struct {
	CompilerOptions tsCompilerOptions `json:"compilerOptions"`
	Include         []string          `json:"include"`
	Exclude         []string          `json:"exclude"`
}

type tsCompilerOptions struct {
	Target           string   `json:"target"`
	Module           string   `json:"module"`
	ModuleResolution string   `json:"moduleResolution"`
	JSX              string   `json:"jsx"`
	Lib              []string `json:"lib"`
	Types            []string `json:"types"`
	Strict           bool     `json:"strict"`
	ESModuleInterop  bool     `json:"esModuleInterop"`
	SkipLibCheck     bool     `json:"skipLibCheck"`
	NoEmit           bool     `json:"noEmit"`
	AllowImportingTs bool     `json:"allowImportingTsExtensions"`
	IsolatedModules  bool     `json:"isolatedModules"`
}

func dependencies(p params) (map[string]string, map[string]string) {
	deps := map[string]string{
		"dotenv":      "^16.4.5",
		"drizzle-orm": "^0.36.4",
		"express":     "^4.21.1",
		"pg":          "^8.13.1",
		"react":       "^18.3.1",
		"react-dom":   "^18.3.1",
		"tsx":         "^4.19.2",
		"zod":         "^3.23.8",
	}
	dev := map[string]string{
		"@types/express":       "^4.17.21",
		"@types/node":          "^20.17.6",
		"@types/pg":            "^8.11.10",
		"@types/react":         "^18.3.12",
		"@types/react-dom":     "^18.3.1",
		"@vitejs/plugin-react": "^4.3.3",
		"drizzle-kit":          "^0.28.1",
		"typescript":           "^5.6.3",
		"vite":                 "^5.4.11",
	}
	if p.Auth {
		deps["bcryptjs"] = "^2.4.3"
		deps["jsonwebtoken"] = "^9.0.2"
		dev["@types/bcryptjs"] = "^2.4.6"
		dev["@types/jsonwebtoken"] = "^9.0.7"
	}
	if p.Payments {
		deps[paymentSDK] = "^17.3.1"
	}
	return deps, dev
}

func renderPackageJSON(p params) (string, error) {
	deps, dev := dependencies(p)
	return marshalIndent(packageManifest{
		Name:        p.Slug,
		Version:     "0.1.0",
		Private:     true,
		Type:        "module",
		Description: p.Description,
		Scripts: map[string]string{
			"dev":        "tsx watch server/index.ts",
			"dev:client": "vite",
			"build":      "vite build",
			"start":      "NODE_ENV=production tsx server/index.ts",
			"check":      "tsc --noEmit",
			"db:push":    "drizzle-kit push",
		},
		Dependencies:    deps,
		DevDependencies: dev,
	})
}

func renderTSConfig(params) (string, error) {
	return marshalIndent(tsConfig{
		CompilerOptions: tsCompilerOptions{
			Target:           "ES2022",
			Module:           "ESNext",
			ModuleResolution: "bundler",
			JSX:              "react-jsx",
			Lib:              []string{"ES2022", "DOM", "DOM.Iterable"},
			Types:            []string{"node", "vite/client"},
			Strict:           true,
			ESModuleInterop:  true,
			SkipLibCheck:     true,
			NoEmit:           true,
			AllowImportingTs: false,
			IsolatedModules:  true,
		},
		Include: []string{"client/src", "server", "shared", "vite.config.ts", "drizzle.config.ts"},
		Exclude: []string{"node_modules", "dist"},
	})
}

func marshalIndent(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return buf.String(), nil
}
