// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package validate checks model replies against the result schema and
// coerces every cell to its declared type.
//
// A reply is a delimited table: one header row naming the schema columns and
// exactly one data row. Shape problems are ParseErrors and stop validation;
// content problems are collected into a single SchemaViolationError.
package validate

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"

	"github.com/pdiddy/project-catalogue/internal/normalize"
	"github.com/pdiddy/project-catalogue/pkg/types"
)

// emptyMarkers are cell values treated as "no value".
var emptyMarkers = map[string]bool{
	"-":    true,
	"n/a":  true,
	"na":   true,
	"none": true,
	"null": true,
}

// Validator validates replies against one schema.
type Validator struct {
	schema types.ResultSchema
	delim  string
}

// New returns a Validator for schema. An invalid schema is a ConfigurationError.
func New(schema types.ResultSchema) (*Validator, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return &Validator{schema: schema, delim: string(schema.DelimiterRune())}, nil
}

// Validate parses response and checks its data row against the schema. The
// identity column, if any, must equal id.
func (v *Validator) Validate(id types.ProjectID, response string) (types.ValidatedResult, error) {
	cells, err := v.Parse(response)
	if err != nil {
		return types.ValidatedResult{}, err
	}
	return v.Check(id, cells)
}

// Parse extracts the data row of response. It returns a *types.ParseError
// when the reply is not a header row followed by exactly one data row with
// one cell per column.
func (v *Validator) Parse(response string) ([]string, error) {
	lines := v.clean(response)
	if len(lines) == 0 {
		return nil, &types.ParseError{Reason: "empty response"}
	}

	header := v.split(lines[0].text)
	want := v.schema.Headers()
	if len(header) != len(want) {
		return nil, &types.ParseError{Line: lines[0].num, Reason: fmt.Sprintf("header has %d columns, expected %d", len(header), len(want))}
	}
	for i, h := range header {
		if !sameHeader(h, want[i]) {
			return nil, &types.ParseError{Line: lines[0].num, Reason: fmt.Sprintf("header column %d is %q, expected %q", i+1, h, want[i])}
		}
	}

	switch rows := len(lines) - 1; {
	case rows == 0:
		return nil, &types.ParseError{Line: lines[0].num, Reason: "no data row after header"}
	case rows > 1:
		return nil, &types.ParseError{Line: lines[2].num, Reason: fmt.Sprintf("expected exactly one data row, got %d", rows)}
	}

	cells := v.split(lines[1].text)
	if len(cells) != len(want) {
		return nil, &types.ParseError{Line: lines[1].num, Reason: fmt.Sprintf("data row has %d fields, expected %d", len(cells), len(want))}
	}
	return cells, nil
}

// Check coerces cells, one per schema column, into a ValidatedResult. Every
// problem found is reported in one *types.SchemaViolationError.
func (v *Validator) Check(id types.ProjectID, cells []string) (types.ValidatedResult, error) {
	if len(cells) != len(v.schema.Columns) {
		return types.ValidatedResult{}, &types.ParseError{Reason: fmt.Sprintf("got %d fields, expected %d", len(cells), len(v.schema.Columns))}
	}

	result := types.ValidatedResult{ProjectID: id, Fields: make([]types.FieldValue, 0, len(cells))}
	var problems []string
	for i, col := range v.schema.Columns {
		raw := cells[i]
		if isEmpty(raw) {
			if col.Required {
				problems = append(problems, fmt.Sprintf("%s: required field is empty", col.Name))
			}
			result.Fields = append(result.Fields, types.FieldValue{Name: col.Name, Type: col.Type, Value: zero(col.Type)})
			continue
		}

		value, errs := coerce(col, raw)
		problems = append(problems, errs...)
		if col.Identity {
			if got := types.NewProjectID(raw); got != id {
				problems = append(problems, fmt.Sprintf("%s: reply is for project %q, expected %q", col.Name, got, id))
			}
		}
		result.Fields = append(result.Fields, types.FieldValue{Name: col.Name, Type: col.Type, Value: value})
	}

	if len(problems) > 0 {
		return types.ValidatedResult{}, &types.SchemaViolationError{Problems: problems}
	}
	return result, nil
}

type line struct {
	num  int
	text string
}

// clean applies the pre-parse rules: code fence lines, blank lines and
// Markdown separator rows are dropped. When the first remaining line (the
// header) is wrapped in delimiters on both ends the reply is a Markdown table
// and every wrapped line loses its outer delimiters; otherwise lines are kept
// as they are, so empty first and last cells survive.
func (v *Validator) clean(response string) []line {
	var out []line
	markdown := false
	for i, l := range strings.Split(strings.ReplaceAll(response, "\r\n", "\n"), "\n") {
		t := strings.TrimSpace(l)
		if t == "" || strings.HasPrefix(t, "```") || isSeparatorRow(t, v.delim) {
			continue
		}
		if len(out) == 0 {
			markdown = v.wrapped(t)
		}
		if markdown && v.wrapped(t) {
			t = strings.TrimSpace(t[len(v.delim) : len(t)-len(v.delim)])
		}
		out = append(out, line{num: i + 1, text: t})
	}
	return out
}

func (v *Validator) wrapped(s string) bool {
	return len(s) >= 2*len(v.delim) && strings.HasPrefix(s, v.delim) && strings.HasSuffix(s, v.delim)
}

func (v *Validator) split(s string) []string {
	cells := strings.Split(s, v.delim)
	for i, c := range cells {
		cells[i] = strings.TrimSpace(c)
	}
	return cells
}

// isSeparatorRow reports whether s is a Markdown table rule such as "---|:--:".
func isSeparatorRow(s, delim string) bool {
	if !strings.Contains(s, "--") {
		return false
	}
	for _, r := range s {
		if r != '-' && r != ':' && !unicode.IsSpace(r) && string(r) != delim {
			return false
		}
	}
	return true
}

func sameHeader(got, want string) bool {
	return strings.EqualFold(strings.Join(strings.Fields(got), " "), strings.Join(strings.Fields(want), " "))
}

func isEmpty(cell string) bool {
	c := strings.ToLower(strings.TrimSpace(cell))
	return c == "" || emptyMarkers[c]
}

func zero(t types.FieldType) any {
	switch t {
	case types.FieldList, types.FieldEnumList:
		return []string{}
	case types.FieldString, types.FieldURL, types.FieldEnum:
		return ""
	case types.FieldDate:
		return types.Date{}
	default:
		return nil
	}
}

// coerce converts a non-empty cell to the column's Go type. It returns the
// problems found instead of failing fast so that every bad cell is reported.
func coerce(col types.Column, raw string) (any, []string) {
	bad := func(format string, args ...any) []string {
		return []string{col.Name + ": " + fmt.Sprintf(format, args...)}
	}

	switch col.Type {
	case types.FieldString:
		return raw, nil

	case types.FieldInt:
		n, err := strconv.ParseInt(strings.ReplaceAll(raw, " ", ""), 10, 64)
		if err != nil {
			return nil, bad("%q is not an integer", raw)
		}
		return n, nil

	case types.FieldFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, bad("%q is not a number", raw)
		}
		return f, nil

	case types.FieldBool:
		switch strings.ToLower(raw) {
		case "true", "yes", "y", "1":
			return true, nil
		case "false", "no", "n", "0":
			return false, nil
		}
		return nil, bad("%q is not a boolean", raw)

	case types.FieldDate:
		d, ok := normalize.ParseDate(raw)
		if !ok {
			return types.Date{}, bad("%q is not a date", raw)
		}
		return d, nil

	case types.FieldURL:
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "", bad("%q is not an http(s) URL", raw)
		}
		return raw, nil

	case types.FieldEnum:
		canon, problem := match(col, raw)
		if problem != "" {
			return "", bad("%s", problem)
		}
		return canon, nil

	case types.FieldList:
		return splitList(raw), nil

	case types.FieldEnumList:
		items := splitList(raw)
		out := make([]string, 0, len(items))
		var problems []string
		seen := make(map[string]bool)
		for _, item := range items {
			canon, problem := match(col, item)
			if problem != "" {
				problems = append(problems, col.Name+": "+problem)
				continue
			}
			if !seen[canon] {
				seen[canon] = true
				out = append(out, canon)
			}
		}
		return out, problems
	}
	return nil, bad("unsupported type %q", col.Type)
}

// splitList splits a list cell on the list separator, dropping empty items
// and repeats.
func splitList(raw string) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, item := range strings.Split(raw, types.ListSeparator) {
		item = strings.TrimSpace(item)
		if isEmpty(item) || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

// match resolves value against the column vocabulary using its match policy
// and returns the canonical spelling, or a problem description.
func match(col types.Column, value string) (string, string) {
	for _, a := range col.Allowed {
		if a == value {
			return a, ""
		}
	}
	if col.Match == types.MatchExact || col.Match == "" {
		return "", fmt.Sprintf("%q is not one of %s", value, strings.Join(col.Allowed, ", "))
	}

	for _, a := range col.Allowed {
		if strings.EqualFold(a, value) {
			return a, ""
		}
	}
	if col.Match == types.MatchCaseInsensitive {
		return "", fmt.Sprintf("%q is not one of %s", value, strings.Join(col.Allowed, ", "))
	}

	key := fold(value)
	maxDist := col.MaxDistance
	if maxDist <= 0 {
		maxDist = 2
	}
	best, bestDist, tie := "", maxDist+1, false
	for _, a := range col.Allowed {
		d := levenshtein.ComputeDistance(key, fold(a))
		switch {
		case d < bestDist:
			best, bestDist, tie = a, d, false
		case d == bestDist:
			tie = true
		}
	}
	switch {
	case best == "":
		return "", fmt.Sprintf("%q is not close to any of %s", value, strings.Join(col.Allowed, ", "))
	case tie:
		return "", fmt.Sprintf("%q is ambiguous within %s", value, strings.Join(col.Allowed, ", "))
	}
	return best, ""
}

// fold lowercases s and drops punctuation, keeping letters, digits and single
// spaces.
func fold(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '_':
			space = true
		}
	}
	return b.String()
}
