// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package xref joins projects to the publications listed for them in the
// per-programme publication tables, with optional CrossRef abstract
// enrichment and an OpenAlex fallback for projects no table lists.
package xref

import (
	"fmt"
	"strings"

	"github.com/pdiddy/project-catalogue/internal/tabular"
	"github.com/pdiddy/project-catalogue/pkg/types"
)

// Table holds the publications of one programme's table, keyed by project.
// Rows are kept in file order and de-duplicated per project.
type Table struct {
	Programme types.Programme
	Path      string
	rows      map[types.ProjectID][]types.Publication
}

// NewTable returns an empty table for programme. Add fills it.
func NewTable(programme types.Programme) *Table {
	return &Table{Programme: programme, rows: make(map[types.ProjectID][]types.Publication)}
}

// Add links pub to every id, skipping publications already listed for that id.
func (t *Table) Add(pub types.Publication, ids ...types.ProjectID) {
	pub.Programme = t.Programme
	key := pub.Key()
	for _, id := range ids {
		dup := false
		for _, existing := range t.rows[id] {
			if existing.Key() == key {
				dup = true
				break
			}
		}
		if !dup {
			t.rows[id] = append(t.rows[id], pub)
		}
	}
}

// Publications returns the publications listed for id.
func (t *Table) Publications(id types.ProjectID) []types.Publication {
	if t == nil {
		return nil
	}
	return t.rows[id]
}

// Projects returns the number of distinct projects in the table.
func (t *Table) Projects() int { return len(t.rows) }

// column names recognised in publication tables, lowercased.
const (
	colProjectID = "projectid"
	colTitle     = "title"
	colDOI       = "doi"
	colAuthors   = "authors"
	colJournal   = "journaltitle"
	colAbstract  = "abstract"
)

// LoadTable reads a publication table from a CSV (comma or semicolon
// separated, detected from the header) or XLSX file. Column names are
// matched case-insensitively; projectID and title are required. A
// projectID cell may list several projects separated by ";" or ",".
func LoadTable(path string, programme types.Programme) (*Table, error) {
	rows, err := tabular.ReadRows(path)
	if err != nil {
		return nil, &types.ConfigurationError{Field: "xref.tables", Reason: fmt.Sprintf("reading %s", path), Cause: err}
	}
	if len(rows) == 0 {
		return nil, &types.ConfigurationError{Field: "xref.tables", Reason: fmt.Sprintf("%s has no header row", path)}
	}

	cols := tabular.HeaderIndex(rows[0])
	for _, required := range []string{colProjectID, colTitle} {
		if _, ok := cols[required]; !ok {
			return nil, &types.ConfigurationError{Field: "xref.tables", Reason: fmt.Sprintf("%s has no %q column", path, required)}
		}
	}

	t := NewTable(programme)
	t.Path = path
	for _, row := range rows[1:] {
		cell := func(name string) string {
			i, ok := cols[name]
			if !ok {
				return ""
			}
			return tabular.Cell(row, i)
		}
		ids := SplitIDs(cell(colProjectID))
		if len(ids) == 0 {
			continue
		}
		pub := types.Publication{
			Title:    cell(colTitle),
			DOI:      cell(colDOI),
			Authors:  cell(colAuthors),
			Journal:  cell(colJournal),
			Abstract: cell(colAbstract),
		}
		if pub.Title == "" && pub.DOI == "" {
			continue
		}
		t.Add(pub, ids...)
	}
	return t, nil
}

// SplitIDs splits a projectID cell listing one or more projects.
func SplitIDs(cell string) []types.ProjectID {
	var ids []types.ProjectID
	for _, part := range strings.FieldsFunc(cell, func(r rune) bool { return r == ';' || r == ',' }) {
		if id := types.NewProjectID(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
