// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package tabular reads identifier lists and publication tables from CSV or
// XLSX files and writes result batches as CSV, pipe-delimited text, XLSX,
// JSON or YAML.
package tabular

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/pdiddy/project-catalogue/pkg/types"
)

// ReadRows returns the rows of a CSV or XLSX file, header first. CSV files may
// be comma or semicolon separated; the separator is detected from the header.
// XLSX files are read from their first sheet.
func ReadRows(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return readXLSX(path)
	default:
		return readCSV(path)
	}
}

// HeaderIndex maps lowercased, trimmed header names to their column index.
// The first of two equal names wins.
func HeaderIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	return cols
}

// Cell returns the trimmed cell of row at index i, or "" when the row is short.
func Cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Identifier is one row of the identifier table. Programme is the raw hint
// cell, possibly empty.
type Identifier struct {
	ID        types.ProjectID
	Programme string
}

// ReadIdentifiers reads the project identifiers listed in idColumn of the
// table at path, with the optional programme hint from programmeColumn.
// Rows with a blank identifier are skipped; repeated identifiers are kept.
func ReadIdentifiers(path, idColumn, programmeColumn string) ([]Identifier, error) {
	rows, err := ReadRows(path)
	if err != nil {
		return nil, &types.ConfigurationError{Field: "input", Reason: fmt.Sprintf("reading %s", path), Cause: err}
	}
	if len(rows) == 0 {
		return nil, &types.ConfigurationError{Field: "input", Reason: fmt.Sprintf("%s has no header row", path)}
	}

	cols := HeaderIndex(rows[0])
	idIdx, ok := cols[strings.ToLower(strings.TrimSpace(idColumn))]
	if !ok {
		return nil, &types.ConfigurationError{Field: "input.id_column", Reason: fmt.Sprintf("%s has no %q column", path, idColumn)}
	}
	progIdx := -1
	if programmeColumn != "" {
		if i, ok := cols[strings.ToLower(strings.TrimSpace(programmeColumn))]; ok {
			progIdx = i
		}
	}

	var ids []Identifier
	for _, row := range rows[1:] {
		id := types.NewProjectID(Cell(row, idIdx))
		if id == "" {
			continue
		}
		ids = append(ids, Identifier{ID: id, Programme: Cell(row, progIdx)})
	}
	return ids, nil
}

func readCSV(path string) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = detectComma(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
}

// detectComma picks ';' when the header line has more semicolons than commas.
func detectComma(data []byte) rune {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	if !sc.Scan() {
		return ','
	}
	header := sc.Text()
	if strings.Count(header, ";") > strings.Count(header, ",") {
		return ';'
	}
	return ','
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}
