// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tabular

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/xuri/excelize/v2"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/project-catalogue/internal/aggregate"
	"github.com/pdiddy/project-catalogue/pkg/types"
)

// Format is an output file format, selected by file extension.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatPSV  Format = "psv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatMD   Format = "md"
)

// FormatFor returns the format of path from its extension. Unknown extensions
// are ConfigurationErrors.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".psv", ".txt":
		return FormatPSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".md":
		return FormatMD, nil
	}
	return "", &types.ConfigurationError{Field: "output.files", Reason: fmt.Sprintf("unsupported output format %q", filepath.Ext(path))}
}

// Fixed columns around the schema fields.
const (
	colProjectID = "project_id"
	colProgramme = "programme"
	colStatus    = "status"
	colReason    = "reason"
	colError     = "error"
)

// Columns returns the output column names for schema: project_id and
// programme, the non-identity schema fields, then status, reason and error.
func Columns(schema types.ResultSchema) []string {
	cols := []string{colProjectID, colProgramme}
	for _, c := range schema.OutputColumns() {
		cols = append(cols, c.Name)
	}
	return append(cols, colStatus, colReason, colError)
}

// Rows renders batch as table rows matching Columns(schema), header excluded.
func Rows(batch aggregate.Batch, schema types.ResultSchema) [][]string {
	out := schema.OutputColumns()
	rows := make([][]string, 0, len(batch.Entries))
	for _, e := range batch.Entries {
		row := []string{string(e.ProjectID), string(e.Programme)}
		for _, c := range out {
			cell := ""
			if e.Result != nil {
				if f, ok := e.Result.Field(c.Name); ok {
					cell = f.Cell()
				}
			}
			row = append(row, cell)
		}
		reason, msg := "", ""
		if e.Failure != nil {
			reason, msg = e.Failure.Reason(), e.Failure.Message
		}
		rows = append(rows, append(row, string(e.Status), reason, msg))
	}
	return rows
}

// Document is the structured JSON and YAML form of a batch.
type Document struct {
	Columns []string      `json:"columns" yaml:"columns"`
	Entries []DocumentRow `json:"entries" yaml:"entries"`
}

// DocumentRow is one entry of a Document. Fields maps column names to typed
// values.
type DocumentRow struct {
	ProjectID types.ProjectID `json:"project_id" yaml:"project_id"`
	Programme types.Programme `json:"programme" yaml:"programme"`
	Status    types.Status    `json:"status" yaml:"status"`
	Reason    string          `json:"reason,omitempty" yaml:"reason,omitempty"`
	Error     string          `json:"error,omitempty" yaml:"error,omitempty"`
	Problems  []string        `json:"problems,omitempty" yaml:"problems,omitempty"`
	Fields    map[string]any  `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// NewDocument builds the structured form of batch.
func NewDocument(batch aggregate.Batch, schema types.ResultSchema) Document {
	doc := Document{Columns: Columns(schema), Entries: make([]DocumentRow, 0, len(batch.Entries))}
	for _, e := range batch.Entries {
		row := DocumentRow{ProjectID: e.ProjectID, Programme: e.Programme, Status: e.Status}
		if e.Failure != nil {
			row.Reason = e.Failure.Reason()
			row.Error = e.Failure.Message
			row.Problems = e.Failure.Problems
		}
		if e.Result != nil {
			row.Fields = make(map[string]any)
			for _, c := range schema.OutputColumns() {
				if f, ok := e.Result.Field(c.Name); ok {
					row.Fields[c.Name] = docValue(f.Value)
				}
			}
		}
		doc.Entries = append(doc.Entries, row)
	}
	return doc
}

// docValue renders dates as strings so JSON and YAML agree.
func docValue(v any) any {
	if d, ok := v.(types.Date); ok {
		return d.String()
	}
	return v
}

// Write writes batch to path in the format selected by its extension. The
// file is written to a temporary name in the same directory and renamed into
// place.
func Write(path string, batch aggregate.Batch, schema types.ResultSchema) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	switch format {
	case FormatCSV:
		err = writeDelimited(&buf, ',', batch, schema)
	case FormatPSV:
		err = writeDelimited(&buf, '|', batch, schema)
	case FormatXLSX:
		err = writeXLSX(&buf, batch, schema)
	case FormatMD:
		err = writeMarkdown(&buf, batch, schema)
	case FormatJSON:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		err = enc.Encode(NewDocument(batch, schema))
	case FormatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err = enc.Encode(NewDocument(batch, schema)); err == nil {
			err = enc.Close()
		}
	}
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return writeFileAtomic(path, buf.Bytes())
}

// WriteAll writes batch to every path, checking all formats first.
func WriteAll(paths []string, batch aggregate.Batch, schema types.ResultSchema) error {
	for _, p := range paths {
		if _, err := FormatFor(p); err != nil {
			return err
		}
	}
	for _, p := range paths {
		if err := Write(p, batch, schema); err != nil {
			return err
		}
	}
	return nil
}

func writeDelimited(w io.Writer, comma rune, batch aggregate.Batch, schema types.ResultSchema) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	if err := cw.Write(Columns(schema)); err != nil {
		return err
	}
	if err := cw.WriteAll(Rows(batch, schema)); err != nil {
		return err
	}
	return cw.Error()
}

// writeMarkdown renders the batch as a Markdown table padded to the display
// width of each column, so wide characters stay aligned.
func writeMarkdown(w io.Writer, batch aggregate.Batch, schema types.ResultSchema) error {
	rows := append([][]string{Columns(schema)}, Rows(batch, schema)...)
	widths := make([]int, len(rows[0]))
	for i, row := range rows {
		for j, cell := range row {
			cell = escapeMarkdown(cell)
			rows[i][j] = cell
			widths[j] = max(widths[j], runewidth.StringWidth(cell), 3)
		}
	}

	var sb strings.Builder
	line := func(cells []string, sep bool) {
		sb.WriteString("|")
		for j, width := range widths {
			sb.WriteString(" ")
			if sep {
				sb.WriteString(strings.Repeat("-", width))
			} else {
				sb.WriteString(cells[j])
				sb.WriteString(strings.Repeat(" ", width-runewidth.StringWidth(cells[j])))
			}
			sb.WriteString(" |")
		}
		sb.WriteString("\n")
	}
	line(rows[0], false)
	line(nil, true)
	for _, row := range rows[1:] {
		line(row, false)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

var markdownEscaper = strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ")

func escapeMarkdown(s string) string { return markdownEscaper.Replace(s) }

const sheetName = "Results"

func writeXLSX(w io.Writer, batch aggregate.Batch, schema types.ResultSchema) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return err
	}
	rows := append([][]string{Columns(schema)}, Rows(batch, schema)...)
	for i, row := range rows {
		cells := make([]any, len(row))
		for j, c := range row {
			cells[j] = c
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &cells); err != nil {
			return err
		}
	}
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}
	return f.Write(w)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting permissions on %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	return nil
}
