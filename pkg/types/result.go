// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"strconv"
	"strings"
)

// Status distinguishes successful from failed batch entries.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// FieldValue is one typed field of a validated result. Value holds a string,
// []string, int64, float64, bool or Date according to Type.
type FieldValue struct {
	Name  string    `json:"name" yaml:"name"`
	Type  FieldType `json:"type" yaml:"type"`
	Value any       `json:"value" yaml:"value"`
}

// ListSeparator separates items inside a list-typed cell.
const ListSeparator = ";"

// Cell renders the value as a single table cell.
func (f FieldValue) Cell() string {
	switch v := f.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, ListSeparator+" ")
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case Date:
		return v.String()
	default:
		return ""
	}
}

// ValidatedResult is a model response that passed schema validation, with
// every field coerced to its declared type, in schema column order.
type ValidatedResult struct {
	ProjectID ProjectID    `json:"project_id" yaml:"project_id"`
	Fields    []FieldValue `json:"fields" yaml:"fields"`
}

// Field returns the named field and whether it exists.
func (r ValidatedResult) Field(name string) (FieldValue, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldValue{}, false
}

// Failure records why a project produced no validated result.
type Failure struct {
	Kind     Kind     `json:"kind" yaml:"kind"`
	Message  string   `json:"message" yaml:"message"`
	Problems []string `json:"problems,omitempty" yaml:"problems,omitempty"`
	Attempts int      `json:"attempts,omitempty" yaml:"attempts,omitempty"`
}

// Reason returns the stable reason code written to output tables.
func (f Failure) Reason() string { return string(f.Kind) }

// FailureFrom converts a per-project error into a Failure.
func FailureFrom(err error, attempts int) *Failure {
	f := &Failure{
		Kind:     KindOf(err),
		Message:  err.Error(),
		Attempts: attempts,
	}
	var schemaErr *SchemaViolationError
	if errors.As(err, &schemaErr) {
		f.Problems = append([]string(nil), schemaErr.Problems...)
	}
	return f
}

// Entry is the outcome for one project identifier within a batch: exactly one
// of Result or Failure is set.
type Entry struct {
	ProjectID  ProjectID        `json:"project_id" yaml:"project_id"`
	Programme  Programme        `json:"programme,omitempty" yaml:"programme,omitempty"`
	Status     Status           `json:"status" yaml:"status"`
	Result     *ValidatedResult `json:"result,omitempty" yaml:"result,omitempty"`
	Failure    *Failure         `json:"failure,omitempty" yaml:"failure,omitempty"`
	PromptHash string           `json:"prompt_hash,omitempty" yaml:"prompt_hash,omitempty"`
}

// Succeeded returns an ok entry for result.
func Succeeded(programme Programme, result ValidatedResult, promptHash string) Entry {
	return Entry{
		ProjectID:  result.ProjectID,
		Programme:  programme,
		Status:     StatusOK,
		Result:     &result,
		PromptHash: promptHash,
	}
}

// Failed returns a failed entry for id.
func Failed(id ProjectID, programme Programme, failure *Failure) Entry {
	return Entry{
		ProjectID: id,
		Programme: programme,
		Status:    StatusFailed,
		Failure:   failure,
	}
}

// OK reports whether the entry holds a validated result.
func (e Entry) OK() bool { return e.Status == StatusOK && e.Result != nil }
