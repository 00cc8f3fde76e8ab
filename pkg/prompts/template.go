// Package prompts renders prompt templates and holds prompt messages.
package prompts

import (
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
)

// Template is a text/template with sprig functions.
// Missing inputs are reported as errors.
type Template struct {
	text string
	tmpl *template.Template
}

// NewTemplate parses the template text
func NewTemplate(name, text string) (*Template, error) {
	tmpl, err := template.New(name).
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(text)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to parse %s template", name)
	}
	return &Template{text: text, tmpl: tmpl}, nil
}

// Format renders the template with inputs
func (t *Template) Format(inputs map[string]any) (string, error) {
	var sb strings.Builder
	if err := t.tmpl.Execute(&sb, inputs); err != nil {
		return "", errors.WithMessagef(err, "failed to format %s template", t.tmpl.Name())
	}
	return strings.TrimSpace(sb.String()), nil
}

// Text returns the template source
func (t *Template) Text() string {
	return t.text
}
