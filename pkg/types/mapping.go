// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"sort"
	"strings"
)

// CanonicalField names a field of the canonical Project record.
type CanonicalField string

const (
	FieldID            CanonicalField = "id"
	FieldAcronym       CanonicalField = "acronym"
	FieldTitle         CanonicalField = "title"
	FieldAbstract      CanonicalField = "abstract"
	FieldParticipants  CanonicalField = "participants"
	FieldCoordinator   CanonicalField = "coordinator"
	FieldStartDate     CanonicalField = "start_date"
	FieldEndDate       CanonicalField = "end_date"
	FieldSignatureDate CanonicalField = "signature_date"
	FieldTopic         CanonicalField = "topic"
	FieldFundingScheme CanonicalField = "funding_scheme"
	FieldGrantDOI      CanonicalField = "grant_doi"
	FieldPublications  CanonicalField = "publications"
)

// CanonicalFields lists every canonical field in record order.
var CanonicalFields = []CanonicalField{
	FieldID, FieldAcronym, FieldTitle, FieldAbstract, FieldParticipants,
	FieldCoordinator, FieldStartDate, FieldEndDate, FieldSignatureDate,
	FieldTopic, FieldFundingScheme, FieldGrantDOI, FieldPublications,
}

// IsList reports whether the canonical field holds a list of strings.
func (f CanonicalField) IsList() bool {
	return f == FieldParticipants || f == FieldPublications
}

// IsDate reports whether the canonical field holds a Date.
func (f CanonicalField) IsDate() bool {
	return f == FieldStartDate || f == FieldEndDate || f == FieldSignatureDate
}

func (f CanonicalField) isKnown() bool {
	for _, k := range CanonicalFields {
		if f == k {
			return true
		}
	}
	return false
}

// ProgrammeMapping maps canonical fields to ordered lists of source paths in
// one programme's record schema. The first path yielding a value wins.
type ProgrammeMapping struct {
	Label  string                      `json:"label" yaml:"label"`
	Fields map[CanonicalField][]string `json:"fields" yaml:"fields"`
}

// DetectRule identifies a record's programme from its own content.
type DetectRule struct {
	// Paths are looked up in order; the first non-empty value is matched.
	Paths []string `json:"paths" yaml:"paths"`

	// Values maps lowercase source values (or prefixes ending in "*") to programmes.
	Values map[string]Programme `json:"values" yaml:"values"`
}

// MappingTable is the declarative field mapping for all programmes.
type MappingTable struct {
	Detect     DetectRule                     `json:"detect" yaml:"detect"`
	Programmes map[Programme]ProgrammeMapping `json:"programmes" yaml:"programmes"`
}

// Validate checks that every known programme is mapped and that only known
// programmes and canonical fields appear.
func (t MappingTable) Validate() error {
	for _, p := range KnownProgrammes {
		if _, ok := t.Programmes[p]; !ok {
			return &ConfigurationError{Field: "mappings.programmes", Reason: fmt.Sprintf("no mapping for programme %q", p)}
		}
	}
	progs := make([]string, 0, len(t.Programmes))
	for p := range t.Programmes {
		progs = append(progs, string(p))
	}
	sort.Strings(progs)
	for _, ps := range progs {
		p := Programme(ps)
		if !p.IsKnown() {
			return &ConfigurationError{Field: "mappings.programmes", Reason: fmt.Sprintf("unknown programme %q", p)}
		}
		for f, paths := range t.Programmes[p].Fields {
			if !f.isKnown() {
				return &ConfigurationError{Field: "mappings.programmes." + ps, Reason: fmt.Sprintf("unknown canonical field %q", f)}
			}
			for _, path := range paths {
				if strings.TrimSpace(path) == "" {
					return &ConfigurationError{Field: fmt.Sprintf("mappings.programmes.%s.%s", ps, f), Reason: "empty source path"}
				}
			}
		}
	}
	for v, p := range t.Detect.Values {
		if !p.IsKnown() {
			return &ConfigurationError{Field: "mappings.detect.values", Reason: fmt.Sprintf("value %q maps to unknown programme %q", v, p)}
		}
	}
	return nil
}
