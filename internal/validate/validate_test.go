// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package validate

import (
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/project-catalogue/internal/config"
	"github.com/pdiddy/project-catalogue/pkg/types"
)

func testSchema() types.ResultSchema {
	return types.ResultSchema{
		Delimiter: "|",
		Columns: []types.Column{
			{Name: "project_id", Header: "Project ID", Type: types.FieldString, Identity: true, Required: true},
			{Name: "tools", Header: "Tool Names", Type: types.FieldList, Required: true},
			{Name: "kinds", Header: "Tool Types", Type: types.FieldEnumList, Allowed: []string{"software", "dataset", "model"}, Match: types.MatchFuzzy, MaxDistance: 2},
			{Name: "area", Header: "Thematic area", Type: types.FieldEnum, Allowed: []string{"water-quality", "drought"}, Match: types.MatchCaseInsensitive, Required: true},
			{Name: "demo", Header: "Demo", Type: types.FieldURL},
			{Name: "partners", Header: "Partners", Type: types.FieldInt},
			{Name: "score", Header: "Score", Type: types.FieldFloat},
			{Name: "open", Header: "Open", Type: types.FieldBool},
			{Name: "released", Header: "Released", Type: types.FieldDate},
		},
	}
}

const header = "Project ID|Tool Names|Tool Types|Thematic area|Demo|Partners|Score|Open|Released"

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New(testSchema())
	require.NoError(t, err)
	return v
}

func TestValidate_WellFormed(t *testing.T) {
	v := newValidator(t)
	reply := header + "\n" +
		"776692|HydroSim; AquaMap; HydroSim|Softwre; data-set|WATER-QUALITY|https://example.org/demo|12|0.5|yes|2021-06-30\n"

	got, err := v.Validate("776692", reply)
	require.NoError(t, err)

	want := types.ValidatedResult{
		ProjectID: "776692",
		Fields: []types.FieldValue{
			{Name: "project_id", Type: types.FieldString, Value: "776692"},
			{Name: "tools", Type: types.FieldList, Value: []string{"HydroSim", "AquaMap"}},
			{Name: "kinds", Type: types.FieldEnumList, Value: []string{"software", "dataset"}},
			{Name: "area", Type: types.FieldEnum, Value: "water-quality"},
			{Name: "demo", Type: types.FieldURL, Value: "https://example.org/demo"},
			{Name: "partners", Type: types.FieldInt, Value: int64(12)},
			{Name: "score", Type: types.FieldFloat, Value: 0.5},
			{Name: "open", Type: types.FieldBool, Value: true},
			{Name: "released", Type: types.FieldDate, Value: types.NewDate(2021, time.June, 30)},
		},
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(types.Date{})); diff != "" {
		t.Errorf("Validate() mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_OptionalFieldsEmpty(t *testing.T) {
	v := newValidator(t)
	got, err := v.Validate("1", header+"\n1|Tool||drought|N/A||-||\n")
	require.NoError(t, err)

	kinds, _ := got.Field("kinds")
	assert.Equal(t, []string{}, kinds.Value)
	demo, _ := got.Field("demo")
	assert.Equal(t, "", demo.Value)
	partners, _ := got.Field("partners")
	assert.Nil(t, partners.Value)
	assert.Equal(t, "", partners.Cell())
}

func TestValidate_PreClean(t *testing.T) {
	v := newValidator(t)
	tests := []struct {
		name  string
		reply string
	}{
		{"code fences", "```\n" + header + "\n1|T||drought|||||\n```"},
		{"fenced with language", "```text\n" + header + "\n1|T||drought|||||\n```\n"},
		{"markdown table", "| " + header + " |\n|---|---|---|---|---|---|---|---|---|\n| 1 | T | | drought | | | | | |\n"},
		{"blank lines and CRLF", "\r\n\r\n" + header + "\r\n\r\n1|T||drought|||||\r\n\r\n"},
		{"header case and spacing", strings.ToUpper(header) + "\n1|T||drought|||||"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Validate("1", tt.reply)
			require.NoError(t, err)
			tools, _ := got.Field("tools")
			assert.Equal(t, []string{"T"}, tools.Value)
		})
	}
}

func TestValidate_ParseErrors(t *testing.T) {
	v := newValidator(t)
	tests := []struct {
		name   string
		reply  string
		reason string
	}{
		{"empty", "", "empty response"},
		{"only fences", "```\n```", "empty response"},
		{"wrong header", strings.Replace(header, "Demo", "Video", 1) + "\n1|T||drought|||||", `header column 5 is "Video"`},
		{"short header", "Project ID|Tool Names\n1|T", "header has 2 columns, expected 9"},
		{"no data row", header, "no data row"},
		{"two data rows", header + "\n1|T||drought|||||\n2|T||drought|||||", "exactly one data row, got 2"},
		{"short row", header + "\n1|T|drought", "data row has 3 fields, expected 9"},
		{"long row", header + "\n1|T||drought||||||extra", "data row has 10 fields, expected 9"},
		{"prose instead of table", "I could not find any tools for this project.", "header has 1 columns"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate("1", tt.reply)
			var parseErr *types.ParseError
			require.True(t, errors.As(err, &parseErr), "got %T: %v", err, err)
			assert.Contains(t, parseErr.Reason, tt.reason)
			assert.Equal(t, types.KindParse, types.KindOf(err))
		})
	}
}

func TestValidate_SchemaViolationsAccumulate(t *testing.T) {
	v := newValidator(t)
	reply := header + "\n" + "999||spreadsheet; model|floods|ftp://x|many|high|maybe|someday\n"

	_, err := v.Validate("1", reply)
	var schemaErr *types.SchemaViolationError
	require.True(t, errors.As(err, &schemaErr), "got %T: %v", err, err)

	want := []string{
		`project_id: reply is for project "999", expected "1"`,
		"tools: required field is empty",
		`kinds: "spreadsheet" is not close to any of software, dataset, model`,
		`area: "floods" is not one of water-quality, drought`,
		`demo: "ftp://x" is not an http(s) URL`,
		`partners: "many" is not an integer`,
		`score: "high" is not a number`,
		`open: "maybe" is not a boolean`,
		`released: "someday" is not a date`,
	}
	assert.Equal(t, want, schemaErr.Problems)
	assert.Equal(t, types.KindSchemaViolation, types.KindOf(err))
}

func TestValidate_EmptyOuterCells(t *testing.T) {
	v := newValidator(t)
	tests := []struct {
		name  string
		reply string
	}{
		{"plain row", header + "\n|T||drought|||||\n"},
		{"markdown row", "| " + header + " |\n|   | T | | drought | | | | | |\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate("1", tt.reply)
			var schemaErr *types.SchemaViolationError
			require.True(t, errors.As(err, &schemaErr), "got %T: %v", err, err)
			assert.Equal(t, []string{"project_id: required field is empty"}, schemaErr.Problems)
		})
	}
}

func TestValidate_IdentityAcceptsFloatForm(t *testing.T) {
	v := newValidator(t)
	_, err := v.Validate("101000123", header+"\n101000123.0|T||drought|||||")
	require.NoError(t, err)
}

func TestMatch(t *testing.T) {
	allowed := []string{"software", "dataset", "model", "modem"}
	tests := []struct {
		name    string
		policy  types.MatchPolicy
		value   string
		want    string
		problem bool
	}{
		{"exact hit", types.MatchExact, "software", "software", false},
		{"exact rejects case", types.MatchExact, "Software", "", true},
		{"case-insensitive", types.MatchCaseInsensitive, "DATASET", "dataset", false},
		{"case-insensitive rejects typo", types.MatchCaseInsensitive, "datset", "", true},
		{"fuzzy typo", types.MatchFuzzy, "Sofware", "software", false},
		{"fuzzy punctuation", types.MatchFuzzy, "data-set.", "dataset", false},
		{"fuzzy too far", types.MatchFuzzy, "web portal", "", true},
		{"fuzzy tie is ambiguous", types.MatchFuzzy, "mode", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col := types.Column{Name: "c", Allowed: allowed, Match: tt.policy, MaxDistance: 2}
			got, problem := match(col, tt.value)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.problem, problem != "", problem)
		})
	}
}

func TestValidate_DefaultSchema(t *testing.T) {
	b, err := config.Resolve(types.Config{})
	require.NoError(t, err)
	v, err := New(b.Schema)
	require.NoError(t, err)

	reply := b.Schema.HeaderLine() + "\n" +
		"776692|AQUA|HydroSim|software|Python; GIS|Sentinel-2||https://example.org/video|10.1/abc|Flood maps for the Danube.|flood-risk|prototype|Forecasting service\n"
	got, err := v.Validate("776692", reply)
	require.NoError(t, err)
	assert.Len(t, got.Fields, len(b.Schema.Columns))
}

func TestNew_InvalidSchema(t *testing.T) {
	_, err := New(types.ResultSchema{})
	assert.True(t, types.IsConfiguration(err))
}

// TestValidate_NeverPanics feeds random mixtures of delimiters, separators,
// fences and text through the validator.
func TestValidate_NeverPanics(t *testing.T) {
	v := newValidator(t)
	pieces := []string{"|", "||", "\n", "\r\n", "```", "---", ":", " ", ";", "-", "N/A", "1", "T",
		"drought", header, "é", "\x00", "�", "|---|", "https://x", "2021-01-01"}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		var b strings.Builder
		for n := rng.Intn(30); n > 0; n-- {
			b.WriteString(pieces[rng.Intn(len(pieces))])
		}
		reply := b.String()
		assert.NotPanics(t, func() {
			_, err := v.Validate("1", reply)
			if err != nil {
				kind := types.KindOf(err)
				assert.Contains(t, []types.Kind{types.KindParse, types.KindSchemaViolation}, kind, reply)
			}
		})
	}
}

func FuzzValidate(f *testing.F) {
	f.Add(header + "\n1|T||drought|||||")
	f.Add("")
	f.Add("|\n|")
	f.Add("```\n|---|\n```")
	v, err := New(testSchema())
	require.NoError(f, err)
	f.Fuzz(func(t *testing.T, reply string) {
		_, _ = v.Validate("1", reply)
	})
}
