// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package prompt renders canonical project records into model prompts.
// Rendering is deterministic: the same record, cross-reference, template and
// schema always produce byte-identical text and therefore the same hash.
package prompt

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/pdiddy/project-catalogue/pkg/types"
)

// Prompt is the rendered text sent to the model and its SHA-256 hash.
type Prompt struct {
	Text string
	Hash string
}

// Column is the template view of a schema column.
type Column struct {
	Name        string
	Header      string
	Description string
	Type        string
	Required    bool
	Allowed     []string
}

// Vocabulary is the sorted allowed-value list of one enumerated column.
type Vocabulary struct {
	Name   string
	Values []string
}

// Data is the value the template executes against.
type Data struct {
	Project      types.Project
	Publications []types.Publication
	Columns      []Column
	Vocabularies []Vocabulary
	Header       string
	Delimiter    string
}

// Generator renders prompts from a parsed template and a result schema.
type Generator struct {
	tmpl    *template.Template
	schema  types.ResultSchema
	columns []Column
	vocabs  []Vocabulary
}

// funcs are the helpers available to prompt templates.
var funcs = template.FuncMap{
	"join":    strings.Join,
	"add":     func(a, b int) int { return a + b },
	"upper":   func(v any) string { return strings.ToUpper(fmt.Sprint(v)) },
	"lower":   func(v any) string { return strings.ToLower(fmt.Sprint(v)) },
	"oneline": func(v any) string { return strings.Join(strings.Fields(fmt.Sprint(v)), " ") },
	"default": func(def string, v any) string {
		s := ""
		if v != nil {
			s = fmt.Sprint(v)
		}
		if strings.TrimSpace(s) == "" {
			return def
		}
		return s
	},
}

// New parses text as a text/template. Parse failures, an invalid schema or a
// template that references unknown fields are ConfigurationErrors.
func New(text string, schema types.ResultSchema) (*Generator, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &types.ConfigurationError{Field: "prompt", Reason: "template is empty"}
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	tmpl, err := template.New("prompt").Option("missingkey=error").Funcs(funcs).Parse(text)
	if err != nil {
		return nil, &types.ConfigurationError{Field: "prompt", Reason: "parsing template", Cause: err}
	}

	g := &Generator{tmpl: tmpl, schema: schema}
	for _, c := range schema.Columns {
		g.columns = append(g.columns, Column{
			Name:        c.Name,
			Header:      c.Header,
			Description: c.Description,
			Type:        string(c.Type),
			Required:    c.Required,
			Allowed:     append([]string(nil), c.Allowed...),
		})
		if c.Type.IsEnumerated() {
			values := append([]string(nil), c.Allowed...)
			sort.Strings(values)
			g.vocabs = append(g.vocabs, Vocabulary{Name: c.Name, Values: values})
		}
	}
	sort.Slice(g.vocabs, func(i, j int) bool { return g.vocabs[i].Name < g.vocabs[j].Name })

	// A dry run against an empty record surfaces references to missing fields
	// at construction rather than per project.
	if _, err := g.render(Data{}); err != nil {
		return nil, &types.ConfigurationError{Field: "prompt", Reason: "executing template", Cause: err}
	}
	return g, nil
}

// Generate renders the prompt for record with its cross-referenced
// publications.
func (g *Generator) Generate(record types.Project, xref types.CrossReference) (Prompt, error) {
	text, err := g.render(Data{
		Project:      record,
		Publications: xref.Publications,
	})
	if err != nil {
		return Prompt{}, fmt.Errorf("rendering prompt for project %s: %w", record.ID, err)
	}
	return Prompt{Text: text, Hash: Hash(text)}, nil
}

func (g *Generator) render(d Data) (string, error) {
	d.Columns = g.columns
	d.Vocabularies = g.vocabs
	d.Header = g.schema.HeaderLine()
	d.Delimiter = string(g.schema.DelimiterRune())

	var buf bytes.Buffer
	if err := g.tmpl.Execute(&buf, d); err != nil {
		return "", err
	}
	return tidy(buf.String()), nil
}

// tidy trims trailing whitespace from every line and ends the text with
// exactly one newline.
func tidy(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n") + "\n"
}

// Hash returns the hex SHA-256 of text.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
