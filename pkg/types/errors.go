// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a pipeline error. Retry policy and failure reason codes are
// keyed by Kind.
type Kind string

const (
	KindConfiguration   Kind = "configuration"
	KindNotFound        Kind = "not_found"
	KindFetch           Kind = "fetch_error"
	KindMalformedRecord Kind = "malformed_record"
	KindInvocation      Kind = "invocation_error"
	KindParse           Kind = "parse_error"
	KindSchemaViolation Kind = "schema_violation"
	KindCanceled        Kind = "canceled"
	KindNotProcessed    Kind = "not_processed"
	KindUnknown         Kind = "internal_error"
)

// ConfigurationError reports bad or missing static configuration. It is the
// only error kind that aborts a whole run.
type ConfigurationError struct {
	Field  string
	Reason string
	Cause  error
}

func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration error in %s: %s: %v", e.Field, e.Reason, e.Cause)
	}
	return fmt.Sprintf("configuration error in %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Cause }

// FetchError reports that a project record could not be retrieved.
type FetchError struct {
	ProjectID ProjectID
	NotFound  bool
	Cause     error
}

func (e *FetchError) Error() string {
	if e.NotFound {
		return fmt.Sprintf("project %s not found in registry", e.ProjectID)
	}
	return fmt.Sprintf("fetching project %s: %v", e.ProjectID, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// MalformedRecordError reports a fetched record that is not shaped like a
// project record at all.
type MalformedRecordError struct {
	ProjectID ProjectID
	Reason    string
	Cause     error
}

func (e *MalformedRecordError) Error() string {
	msg := "malformed record"
	if e.ProjectID != "" {
		msg += " for project " + string(e.ProjectID)
	}
	msg += ": " + e.Reason
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *MalformedRecordError) Unwrap() error { return e.Cause }

// InvocationError reports a failed model call: authentication, rate limiting,
// timeouts or an unusable transport response.
type InvocationError struct {
	Backend    string
	StatusCode int
	Cause      error
}

func (e *InvocationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("invoking %s: HTTP %d: %v", e.Backend, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("invoking %s: %v", e.Backend, e.Cause)
}

func (e *InvocationError) Unwrap() error { return e.Cause }

// ParseError reports a model response that is not shaped like the expected
// delimited table.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Reason)
	}
	return "parse error: " + e.Reason
}

// SchemaViolationError lists every schema problem found in a parsed response.
type SchemaViolationError struct {
	Problems []string
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("schema violation: %s", strings.Join(e.Problems, "; "))
}

// KindOf classifies err by walking its wrap chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var (
		cfgErr    *ConfigurationError
		fetchErr  *FetchError
		malErr    *MalformedRecordError
		invErr    *InvocationError
		parseErr  *ParseError
		schemaErr *SchemaViolationError
	)
	switch {
	case errors.As(err, &cfgErr):
		return KindConfiguration
	case errors.As(err, &malErr):
		return KindMalformedRecord
	case errors.As(err, &fetchErr):
		if fetchErr.NotFound {
			return KindNotFound
		}
		return KindFetch
	case errors.As(err, &invErr):
		return KindInvocation
	case errors.As(err, &parseErr):
		return KindParse
	case errors.As(err, &schemaErr):
		return KindSchemaViolation
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindUnknown
	}
}

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
