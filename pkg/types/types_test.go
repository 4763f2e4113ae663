// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProjectID(t *testing.T) {
	for raw, want := range map[string]ProjectID{
		" 776692 ":    "776692",
		"101000123.0": "101000123",
		"101000123.5": "101000123.5",
		"1.00":        "1",
		"ABC.0":       "ABC.0",
		".0":          ".0",
		"":            "",
	} {
		assert.Equal(t, want, NewProjectID(raw), raw)
	}
}

func TestParseProgramme(t *testing.T) {
	for raw, want := range map[string]Programme{
		"FP7": ProgrammeFP7, "h2020": ProgrammeH2020, "Horizon 2020": ProgrammeH2020,
		"HE": ProgrammeHEU, " Horizon Europe ": ProgrammeHEU, "": "",
	} {
		got, err := ParseProgramme(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := ParseProgramme("fp6")
	assert.True(t, IsConfiguration(err))
}

func TestDate_Text(t *testing.T) {
	d := NewDate(2021, time.June, 30)
	b, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2021-06-30", string(b))

	var back Date
	require.NoError(t, back.UnmarshalText(b))
	assert.Equal(t, d.String(), back.String())

	require.NoError(t, back.UnmarshalText(nil))
	assert.True(t, back.IsZero())
	assert.Error(t, back.UnmarshalText([]byte("30/06/2021")))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{&ConfigurationError{Field: "x"}, KindConfiguration},
		{&FetchError{ProjectID: "1", NotFound: true}, KindNotFound},
		{fmt.Errorf("step: %w", &FetchError{ProjectID: "1", Cause: errors.New("reset")}), KindFetch},
		{&MalformedRecordError{Reason: "list"}, KindMalformedRecord},
		{&InvocationError{Backend: "gemini", StatusCode: 429}, KindInvocation},
		{&ParseError{Reason: "no rows"}, KindParse},
		{&SchemaViolationError{Problems: []string{"a"}}, KindSchemaViolation},
		{context.Canceled, KindCanceled},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), KindCanceled},
		{errors.New("boom"), KindUnknown},
		{nil, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "%v", tt.err)
	}
}

func TestFailureFrom(t *testing.T) {
	f := FailureFrom(&SchemaViolationError{Problems: []string{"a: required field is empty", "b: bad"}}, 2)
	assert.Equal(t, KindSchemaViolation, f.Kind)
	assert.Equal(t, "schema_violation", f.Reason())
	assert.Equal(t, "schema violation: a: required field is empty; b: bad", f.Message)
	assert.Equal(t, []string{"a: required field is empty", "b: bad"}, f.Problems)
	assert.Equal(t, 2, f.Attempts)
}

func TestFieldValue_Cell(t *testing.T) {
	tests := []struct {
		value any
		want  string
	}{
		{nil, ""},
		{"text", "text"},
		{[]string{"a", "b"}, "a; b"},
		{[]string{}, ""},
		{int64(42), "42"},
		{1.5, "1.5"},
		{true, "true"},
		{NewDate(2020, time.January, 2), "2020-01-02"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FieldValue{Value: tt.value}.Cell(), "%v", tt.value)
	}
}

func TestEntry(t *testing.T) {
	ok := Succeeded(ProgrammeHEU, ValidatedResult{ProjectID: "1"}, "h")
	assert.True(t, ok.OK())
	assert.Equal(t, ProjectID("1"), ok.ProjectID)

	failed := Failed("2", "", &Failure{Kind: KindParse})
	assert.False(t, failed.OK())
	assert.Equal(t, StatusFailed, failed.Status)
}

func TestResultSchema_Validate(t *testing.T) {
	valid := ResultSchema{Columns: []Column{
		{Name: "project_id", Header: "Project ID", Type: FieldString, Identity: true},
		{Name: "area", Header: "Area", Type: FieldEnum, Allowed: []string{"a"}},
	}}
	require.NoError(t, valid.Validate())
	assert.Equal(t, "Project ID|Area", valid.HeaderLine())
	assert.Len(t, valid.OutputColumns(), 1)

	tests := []struct {
		name   string
		mutate func(s *ResultSchema)
	}{
		{"no columns", func(s *ResultSchema) { s.Columns = nil }},
		{"long delimiter", func(s *ResultSchema) { s.Delimiter = "||" }},
		{"quote delimiter", func(s *ResultSchema) { s.Delimiter = `"` }},
		{"duplicate name", func(s *ResultSchema) { s.Columns[1].Name = "project_id" }},
		{"duplicate header", func(s *ResultSchema) { s.Columns[1].Header = "project id" }},
		{"header with delimiter", func(s *ResultSchema) { s.Columns[1].Header = "A|B" }},
		{"unknown type", func(s *ResultSchema) { s.Columns[1].Type = "money" }},
		{"enum without vocabulary", func(s *ResultSchema) { s.Columns[1].Allowed = nil }},
		{"vocabulary on string", func(s *ResultSchema) { s.Columns[0].Allowed = []string{"x"} }},
		{"unknown match", func(s *ResultSchema) { s.Columns[1].Match = "regex" }},
		{"non-string identity", func(s *ResultSchema) { s.Columns[0].Type = FieldInt }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ResultSchema{Columns: append([]Column(nil), valid.Columns...)}
			tt.mutate(&s)
			assert.True(t, IsConfiguration(s.Validate()))
		})
	}
}
