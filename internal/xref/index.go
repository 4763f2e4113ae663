// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package xref

import (
	"github.com/pdiddy/project-catalogue/pkg/types"
)

// Index looks projects up across the publication tables in priority order.
// It is immutable after NewIndex and safe for concurrent use.
type Index struct {
	policy types.XrefPolicy
	tables []*Table
}

// NewIndex returns an index over tables, which are searched in the order
// given. An empty policy means first-match.
func NewIndex(policy types.XrefPolicy, tables ...*Table) *Index {
	if policy == "" {
		policy = types.XrefFirstMatch
	}
	return &Index{policy: policy, tables: tables}
}

// Lookup returns the publications linked to id. A project listed in no
// table yields an empty cross-reference, never an error.
//
//   - first-match: the first table with a non-empty list wins.
//   - own: only the table of programme is consulted.
//   - merge: all tables are unioned in priority order, de-duplicated by DOI
//     or normalised title; the first occurrence is kept.
func (x *Index) Lookup(id types.ProjectID, programme types.Programme) types.CrossReference {
	ref := types.CrossReference{ProjectID: id, Publications: []types.Publication{}}
	if x == nil {
		return ref
	}

	switch x.policy {
	case types.XrefOwn:
		for _, t := range x.tables {
			if t.Programme == programme {
				if pubs := t.Publications(id); len(pubs) > 0 {
					ref.Publications = append(ref.Publications, pubs...)
					ref.Sources = []types.Programme{t.Programme}
				}
				break
			}
		}

	case types.XrefMerge:
		seen := make(map[string]bool)
		for _, t := range x.tables {
			contributed := false
			for _, pub := range t.Publications(id) {
				if seen[pub.Key()] {
					continue
				}
				seen[pub.Key()] = true
				ref.Publications = append(ref.Publications, pub)
				contributed = true
			}
			if contributed {
				ref.Sources = append(ref.Sources, t.Programme)
			}
		}

	default:
		for _, t := range x.tables {
			if pubs := t.Publications(id); len(pubs) > 0 {
				ref.Publications = append(ref.Publications, pubs...)
				ref.Sources = []types.Programme{t.Programme}
				break
			}
		}
	}
	return ref
}

// Tables returns the number of tables in the index.
func (x *Index) Tables() int {
	if x == nil {
		return 0
	}
	return len(x.tables)
}
