// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// FieldType is the declared type of a result column.
type FieldType string

const (
	FieldString   FieldType = "string"
	FieldInt      FieldType = "int"
	FieldFloat    FieldType = "float"
	FieldBool     FieldType = "bool"
	FieldDate     FieldType = "date"
	FieldURL      FieldType = "url"
	FieldEnum     FieldType = "enum"
	FieldList     FieldType = "list"
	FieldEnumList FieldType = "enum_list"
)

var knownFieldTypes = map[FieldType]bool{
	FieldString: true, FieldInt: true, FieldFloat: true, FieldBool: true,
	FieldDate: true, FieldURL: true, FieldEnum: true, FieldList: true, FieldEnumList: true,
}

// IsEnumerated reports whether values of this type are constrained to a vocabulary.
func (t FieldType) IsEnumerated() bool { return t == FieldEnum || t == FieldEnumList }

// IsList reports whether cells of this type hold several values.
func (t FieldType) IsList() bool { return t == FieldList || t == FieldEnumList }

// MatchPolicy decides how an enumerated value is matched against its vocabulary.
type MatchPolicy string

const (
	// MatchExact accepts only byte-identical vocabulary entries.
	MatchExact MatchPolicy = "exact"
	// MatchCaseInsensitive accepts entries equal under Unicode case folding.
	MatchCaseInsensitive MatchPolicy = "case-insensitive"
	// MatchFuzzy additionally ignores punctuation and accepts the unique
	// nearest entry within MaxDistance edits.
	MatchFuzzy MatchPolicy = "fuzzy"
)

// Column declares one field of the result schema.
type Column struct {
	// Name is the machine name used in output files (e.g. "tool_names").
	Name string `json:"name" yaml:"name"`

	// Header is the column title the model must reproduce in its header row.
	Header string `json:"header" yaml:"header"`

	// Description tells the model what to put in the column.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Type     FieldType `json:"type" yaml:"type"`
	Required bool      `json:"required,omitempty" yaml:"required,omitempty"`

	// Identity marks a column whose value must equal the requested project ID.
	Identity bool `json:"identity,omitempty" yaml:"identity,omitempty"`

	// Allowed is the controlled vocabulary of enum and enum_list columns.
	Allowed []string `json:"allowed,omitempty" yaml:"allowed,omitempty"`

	// Match selects the vocabulary match policy (default exact).
	Match MatchPolicy `json:"match,omitempty" yaml:"match,omitempty"`

	// MaxDistance bounds fuzzy matches (default 2).
	MaxDistance int `json:"max_distance,omitempty" yaml:"max_distance,omitempty"`
}

// ResultSchema declares the table a model response must conform to.
type ResultSchema struct {
	// Delimiter separates cells in the model response (default "|").
	Delimiter string   `json:"delimiter" yaml:"delimiter"`
	Columns   []Column `json:"columns" yaml:"columns"`
}

// DefaultDelimiter is the cell delimiter used when the schema names none.
const DefaultDelimiter = "|"

// DelimiterRune returns the delimiter as a rune.
func (s ResultSchema) DelimiterRune() rune {
	d := s.Delimiter
	if d == "" {
		d = DefaultDelimiter
	}
	r, _ := utf8.DecodeRuneInString(d)
	return r
}

// Headers returns the column headers in order.
func (s ResultSchema) Headers() []string {
	headers := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		headers[i] = c.Header
	}
	return headers
}

// HeaderLine returns the header row the model must reproduce.
func (s ResultSchema) HeaderLine() string {
	return strings.Join(s.Headers(), string(s.DelimiterRune()))
}

// OutputColumns returns the columns written to output files. Identity columns
// are omitted because every output row already carries the project ID.
func (s ResultSchema) OutputColumns() []Column {
	var cols []Column
	for _, c := range s.Columns {
		if !c.Identity {
			cols = append(cols, c)
		}
	}
	return cols
}

// Validate checks the schema for internal consistency.
func (s ResultSchema) Validate() error {
	if len(s.Columns) == 0 {
		return &ConfigurationError{Field: "schema.columns", Reason: "schema declares no columns"}
	}
	if utf8.RuneCountInString(s.Delimiter) > 1 {
		return &ConfigurationError{Field: "schema.delimiter", Reason: fmt.Sprintf("delimiter %q must be a single character", s.Delimiter)}
	}
	delim := string(s.DelimiterRune())
	if delim == `"` || delim == "\n" || delim == "\r" {
		return &ConfigurationError{Field: "schema.delimiter", Reason: fmt.Sprintf("delimiter %q is not allowed", delim)}
	}

	names := make(map[string]bool)
	headers := make(map[string]bool)
	for i, c := range s.Columns {
		field := fmt.Sprintf("schema.columns[%d]", i)
		if c.Name == "" || c.Header == "" {
			return &ConfigurationError{Field: field, Reason: "column needs both name and header"}
		}
		if names[c.Name] {
			return &ConfigurationError{Field: field, Reason: fmt.Sprintf("duplicate column name %q", c.Name)}
		}
		names[c.Name] = true
		h := strings.ToLower(strings.TrimSpace(c.Header))
		if headers[h] {
			return &ConfigurationError{Field: field, Reason: fmt.Sprintf("duplicate column header %q", c.Header)}
		}
		headers[h] = true
		if strings.Contains(c.Header, delim) {
			return &ConfigurationError{Field: field, Reason: fmt.Sprintf("header %q contains the delimiter", c.Header)}
		}
		if !knownFieldTypes[c.Type] {
			return &ConfigurationError{Field: field, Reason: fmt.Sprintf("unknown type %q", c.Type)}
		}
		switch c.Match {
		case "", MatchExact, MatchCaseInsensitive, MatchFuzzy:
		default:
			return &ConfigurationError{Field: field, Reason: fmt.Sprintf("unknown match policy %q", c.Match)}
		}
		if c.Type.IsEnumerated() && len(c.Allowed) == 0 {
			return &ConfigurationError{Field: field, Reason: fmt.Sprintf("column %q is %s but declares no allowed values", c.Name, c.Type)}
		}
		if !c.Type.IsEnumerated() && len(c.Allowed) > 0 {
			return &ConfigurationError{Field: field, Reason: fmt.Sprintf("column %q declares allowed values but is %s", c.Name, c.Type)}
		}
		if c.Identity && c.Type != FieldString {
			return &ConfigurationError{Field: field, Reason: "identity column must be a string"}
		}
	}
	return nil
}
