// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize converts raw registry records, whose field names and
// shapes differ per funding programme, into the canonical project record.
// All programme differences live in a declarative mapping table; this
// package only interprets it.
package normalize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pdiddy/project-catalogue/pkg/types"
)

// Normalizer applies a compiled mapping table. It is immutable after New and
// safe for concurrent use.
type Normalizer struct {
	fields map[types.Programme]map[types.CanonicalField][]Path
	detect []Path
	values map[string]types.Programme
	prefix []string
}

// New compiles every source path in table. A path that does not parse is a
// ConfigurationError.
func New(table types.MappingTable) (*Normalizer, error) {
	n := &Normalizer{
		fields: make(map[types.Programme]map[types.CanonicalField][]Path),
		values: make(map[string]types.Programme),
	}
	for programme, mapping := range table.Programmes {
		compiled := make(map[types.CanonicalField][]Path, len(mapping.Fields))
		for field, raws := range mapping.Fields {
			for _, raw := range raws {
				p, err := CompilePath(raw)
				if err != nil {
					return nil, &types.ConfigurationError{
						Field:  fmt.Sprintf("mappings.programmes.%s.%s", programme, field),
						Reason: "invalid source path",
						Cause:  err,
					}
				}
				compiled[field] = append(compiled[field], p)
			}
		}
		n.fields[programme] = compiled
	}

	for _, raw := range table.Detect.Paths {
		p, err := CompilePath(raw)
		if err != nil {
			return nil, &types.ConfigurationError{Field: "mappings.detect.paths", Reason: "invalid source path", Cause: err}
		}
		n.detect = append(n.detect, p)
	}
	for k, v := range table.Detect.Values {
		key := strings.ToLower(strings.TrimSpace(k))
		if strings.HasSuffix(key, "*") {
			n.prefix = append(n.prefix, key)
		}
		n.values[key] = v
	}
	// Longest prefix first, then lexicographic, so detection is deterministic.
	sort.Slice(n.prefix, func(i, j int) bool {
		if len(n.prefix[i]) != len(n.prefix[j]) {
			return len(n.prefix[i]) > len(n.prefix[j])
		}
		return n.prefix[i] < n.prefix[j]
	})
	return n, nil
}

// Normalize is a convenience wrapper that compiles table and normalizes one
// record.
func Normalize(raw types.RawRecord, programme types.Programme, table types.MappingTable) (types.Project, error) {
	n, err := New(table)
	if err != nil {
		return types.Project{}, err
	}
	return n.Normalize(raw, programme)
}

// Normalize maps raw onto the canonical record of programme. Fields absent
// from the source become "", an empty list or a zero date; an unparseable
// date becomes a zero date and a warning. An unknown programme is a
// ConfigurationError; a record that is not a map is a MalformedRecordError.
func (n *Normalizer) Normalize(raw types.RawRecord, programme types.Programme) (types.Project, error) {
	fields, ok := n.fields[programme]
	if !ok || !programme.IsKnown() {
		return types.Project{}, &types.ConfigurationError{Field: "programme", Reason: fmt.Sprintf("no mapping for programme %q", programme)}
	}
	tree, err := asTree(raw)
	if err != nil {
		return types.Project{}, err
	}

	p := types.Project{
		Programme:    programme,
		Participants: []string{},
		Publications: []string{},
	}
	for _, field := range types.CanonicalFields {
		paths := fields[field]
		switch {
		case field.IsList():
			setList(&p, field, collectAll(tree, paths))
		case field.IsDate():
			s := firstValue(tree, paths)
			if s == "" {
				continue
			}
			d, ok := ParseDate(s)
			if !ok {
				p.Warnings = append(p.Warnings, fmt.Sprintf("%s: unparseable date %q", field, s))
				continue
			}
			setDate(&p, field, d)
		default:
			setString(&p, field, firstValue(tree, paths))
		}
	}
	return p, nil
}

// DetectProgramme identifies the programme of raw from the table's detect
// rule. A record without a recognisable programme marker is a
// MalformedRecordError.
func (n *Normalizer) DetectProgramme(raw types.RawRecord) (types.Programme, error) {
	tree, err := asTree(raw)
	if err != nil {
		return "", err
	}
	for _, path := range n.detect {
		for _, v := range path.Lookup(tree) {
			key := strings.ToLower(CleanText(v))
			if key == "" {
				continue
			}
			if p, ok := n.match(key); ok {
				return p, nil
			}
			return "", &types.MalformedRecordError{Reason: fmt.Sprintf("unrecognised programme marker %q", v)}
		}
	}
	return "", &types.MalformedRecordError{Reason: "record carries no programme marker"}
}

// DetectProgramme is a convenience wrapper around Normalizer.DetectProgramme.
func DetectProgramme(raw types.RawRecord, table types.MappingTable) (types.Programme, error) {
	n, err := New(table)
	if err != nil {
		return "", err
	}
	return n.DetectProgramme(raw)
}

func (n *Normalizer) match(key string) (types.Programme, bool) {
	if p, ok := n.values[key]; ok {
		return p, true
	}
	for _, pattern := range n.prefix {
		if strings.HasPrefix(key, strings.TrimSuffix(pattern, "*")) {
			return n.values[pattern], true
		}
	}
	if p, err := types.ParseProgramme(key); err == nil && p != "" {
		return p, true
	}
	return "", false
}

func asTree(raw types.RawRecord) (map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, &types.MalformedRecordError{Reason: "record is empty"}
	case map[string]any:
		return v, nil
	default:
		return nil, &types.MalformedRecordError{Reason: fmt.Sprintf("record is a %T, not a map", raw)}
	}
}

func firstValue(tree map[string]any, paths []Path) string {
	for _, p := range paths {
		for _, v := range p.Lookup(tree) {
			if s := CleanText(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func collectAll(tree map[string]any, paths []Path) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, p := range paths {
		for _, v := range p.Lookup(tree) {
			s := CleanText(v)
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func setString(p *types.Project, field types.CanonicalField, v string) {
	switch field {
	case types.FieldID:
		p.ID = types.NewProjectID(v)
	case types.FieldAcronym:
		p.Acronym = v
	case types.FieldTitle:
		p.Title = v
	case types.FieldAbstract:
		p.Abstract = v
	case types.FieldCoordinator:
		p.Coordinator = v
	case types.FieldTopic:
		p.Topic = v
	case types.FieldFundingScheme:
		p.FundingScheme = v
	case types.FieldGrantDOI:
		p.GrantDOI = v
	}
}

func setList(p *types.Project, field types.CanonicalField, v []string) {
	switch field {
	case types.FieldParticipants:
		p.Participants = v
	case types.FieldPublications:
		p.Publications = v
	}
}

func setDate(p *types.Project, field types.CanonicalField, d types.Date) {
	switch field {
	case types.FieldStartDate:
		p.StartDate = d
	case types.FieldEndDate:
		p.EndDate = d
	case types.FieldSignatureDate:
		p.SignatureDate = d
	}
}
