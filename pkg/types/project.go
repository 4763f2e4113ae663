// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the project-catalogue pipeline:
// project identifiers and programmes, the canonical project record, cross-reference
// publications, validated results, batch entries, configuration and the error taxonomy.
package types

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ProjectID is the registry identifier of a research project (e.g. "101000123").
// It is opaque: the pipeline never interprets it beyond trimming whitespace.
type ProjectID string

// String returns the identifier as a plain string.
func (id ProjectID) String() string { return string(id) }

// NewProjectID trims the raw identifier. Numeric identifiers exported by
// spreadsheets as floats ("101000123.0") are reduced to their integer form.
func NewProjectID(raw string) ProjectID {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, '.'); i > 0 && strings.Trim(s[i+1:], "0") == "" && isDigits(s[:i]) {
		s = s[:i]
	}
	return ProjectID(s)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Programme identifies a funding-programme family. Each family publishes project
// metadata in its own schema.
type Programme string

const (
	ProgrammeFP7   Programme = "fp7"
	ProgrammeH2020 Programme = "h2020"
	ProgrammeHEU   Programme = "heu"
)

// KnownProgrammes lists the supported programmes from legacy to current.
var KnownProgrammes = []Programme{ProgrammeFP7, ProgrammeH2020, ProgrammeHEU}

// IsKnown reports whether p is one of the supported programmes.
func (p Programme) IsKnown() bool {
	for _, k := range KnownProgrammes {
		if p == k {
			return true
		}
	}
	return false
}

var programmeAliases = map[string]Programme{
	"fp7":            ProgrammeFP7,
	"h2020":          ProgrammeH2020,
	"horizon 2020":   ProgrammeH2020,
	"heu":            ProgrammeHEU,
	"he":             ProgrammeHEU,
	"horizon":        ProgrammeHEU,
	"horizon europe": ProgrammeHEU,
}

// ParseProgramme resolves a programme tag or one of its common aliases,
// case-insensitively. An empty string yields an empty Programme and no error.
func ParseProgramme(s string) (Programme, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return "", nil
	}
	if p, ok := programmeAliases[key]; ok {
		return p, nil
	}
	return "", &ConfigurationError{Field: "programme", Reason: fmt.Sprintf("unknown programme %q", s)}
}

const dateLayout = "2006-01-02"

// Date is a calendar date. The zero value means the date is unknown.
type Date struct {
	t time.Time
}

// NewDate returns the Date for the given calendar day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	y, m, d := t.UTC().Date()
	return NewDate(y, m, d)
}

// IsZero reports whether the date is unknown.
func (d Date) IsZero() bool { return d.t.IsZero() }

// Time returns the date as midnight UTC.
func (d Date) Time() time.Time { return d.t }

// String renders the date as YYYY-MM-DD, or "" when unknown.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(dateLayout)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for YYYY-MM-DD values.
func (d *Date) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		*d = Date{}
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	*d = DateOf(t)
	return nil
}

// RawRecord is a project record as fetched from the registry. Well-formed
// records are map[string]any trees: repeated elements become []any,
// attributes are stored under "@name" keys and element text under "#text"
// when the element also carries attributes or children.
type RawRecord any

// Project is the canonical, programme-independent project record. Every field
// is always present; absent source data maps to "", an empty slice or a zero Date.
type Project struct {
	ID            ProjectID `json:"id" yaml:"id"`
	Programme     Programme `json:"programme" yaml:"programme"`
	Acronym       string    `json:"acronym" yaml:"acronym"`
	Title         string    `json:"title" yaml:"title"`
	Abstract      string    `json:"abstract" yaml:"abstract"`
	Participants  []string  `json:"participants" yaml:"participants"`
	Coordinator   string    `json:"coordinator" yaml:"coordinator"`
	StartDate     Date      `json:"start_date" yaml:"start_date"`
	EndDate       Date      `json:"end_date" yaml:"end_date"`
	SignatureDate Date      `json:"signature_date" yaml:"signature_date"`
	Topic         string    `json:"topic" yaml:"topic"`
	FundingScheme string    `json:"funding_scheme" yaml:"funding_scheme"`
	GrantDOI      string    `json:"grant_doi" yaml:"grant_doi"`
	Publications  []string  `json:"publications" yaml:"publications"`

	// Warnings records non-fatal coercion problems (e.g. an unparseable date).
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Publication is a paper linked to a project through a cross-reference table.
type Publication struct {
	Title     string    `json:"title" yaml:"title"`
	DOI       string    `json:"doi,omitempty" yaml:"doi,omitempty"`
	Authors   string    `json:"authors,omitempty" yaml:"authors,omitempty"`
	Journal   string    `json:"journal,omitempty" yaml:"journal,omitempty"`
	Abstract  string    `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Programme Programme `json:"programme,omitempty" yaml:"programme,omitempty"`
}

// Key returns the de-duplication key of the publication: the lowercased DOI
// when present, otherwise the normalised title.
func (p Publication) Key() string {
	if doi := strings.ToLower(strings.TrimSpace(p.DOI)); doi != "" {
		return "doi:" + strings.TrimPrefix(doi, "https://doi.org/")
	}
	return "title:" + strings.Join(strings.Fields(strings.ToLower(p.Title)), " ")
}

// CrossReference holds the publications joined to one project.
type CrossReference struct {
	ProjectID    ProjectID     `json:"project_id" yaml:"project_id"`
	Publications []Publication `json:"publications" yaml:"publications"`

	// Sources lists the programme tables that contributed, in lookup order.
	Sources []Programme `json:"sources,omitempty" yaml:"sources,omitempty"`
}

// IsEmpty reports whether no publications are linked.
func (x CrossReference) IsEmpty() bool { return len(x.Publications) == 0 }

// SortedKeys returns the keys of m in lexicographic order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
