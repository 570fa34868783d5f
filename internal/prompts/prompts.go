// Package prompts renders the instruction, user-message and fallback-script
// templates used to ask a model for a Manim scene.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Template names.
const (
	System   = "system"
	User     = "user"
	Fallback = "fallback"
)

// Vars are the values substituted into every template.
type Vars struct {
	Prompt string
	Scene  string
}

// Library holds parsed templates.
type Library struct {
	templates map[string]*template.Template
}

// Load parses the embedded templates.
func Load() (*Library, error) {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}

	lib := &Library{templates: make(map[string]*template.Template, len(entries))}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tmpl") {
			continue
		}
		content, err := templateFS.ReadFile("templates/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", entry.Name(), err)
		}
		name := strings.TrimSuffix(entry.Name(), ".tmpl")
		tmpl, err := template.New(name).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		lib.templates[name] = tmpl
	}
	for _, name := range []string{System, User, Fallback} {
		if _, ok := lib.templates[name]; !ok {
			return nil, fmt.Errorf("prompt template %q missing", name)
		}
	}
	return lib, nil
}

// Render executes the named template with vars.
func (l *Library) Render(name string, vars Vars) (string, error) {
	tmpl, ok := l.templates[name]
	if !ok {
		return "", fmt.Errorf("prompt template %q not found", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return buf.String(), nil
}
