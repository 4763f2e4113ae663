// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package config loads pipeline configuration: run settings from viper
// (config file and PROJECT_CATALOGUE_* environment), plus the field mapping
// table, result schema and prompt template. The last three are embedded as
// defaults and may each be replaced by a file path.
//
// Every problem found here is a *types.ConfigurationError and aborts the run
// before any project is processed.
package config

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/project-catalogue/pkg/types"
)

//go:embed defaults/mappings.yaml defaults/schema.yaml defaults/prompt.tmpl
var defaultFS embed.FS

// EnvPrefix is the environment variable prefix for configuration keys.
const EnvPrefix = "PROJECT_CATALOGUE"

const (
	DefaultWorkers         = 4
	DefaultIDColumn        = "Project_ID"
	DefaultProgrammeColumn = "Programme"
	DefaultOutputDir       = "output"
	DefaultRegistryURL     = "https://cordis.europa.eu"
	DefaultUserAgent       = "project-catalogue/0.1"
	DefaultTimeout         = 60 * time.Second
	DefaultGeminiModel     = "gemini-2.0-flash"
	DefaultClaudeModel     = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens       = 4096
	DefaultModelTimeout    = 120 * time.Second
)

// DefaultRetryPolicy returns the retry table used for kinds the
// configuration leaves out. Parse errors and schema violations are not
// retried: a new model call on identical input is not expected to comply.
func DefaultRetryPolicy() map[types.Kind]types.RetryRule {
	return map[types.Kind]types.RetryRule{
		types.KindFetch:           {MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second},
		types.KindInvocation:      {MaxAttempts: 4, BaseDelay: 5 * time.Second, MaxDelay: 2 * time.Minute},
		types.KindParse:           {MaxAttempts: 1},
		types.KindSchemaViolation: {MaxAttempts: 1},
		types.KindMalformedRecord: {MaxAttempts: 1},
		types.KindNotFound:        {MaxAttempts: 1},
	}
}

// SetDefaults registers default values on v. Keys with defaults are also
// bound to PROJECT_CATALOGUE_<KEY> environment variables, with "." in the
// key replaced by "_".
func SetDefaults(v *viper.Viper) {
	v.SetDefault("workers", DefaultWorkers)
	v.SetDefault("resume", false)
	v.SetDefault("mappings", "")
	v.SetDefault("schema", "")
	v.SetDefault("prompt", "")

	v.SetDefault("input.id_column", DefaultIDColumn)
	v.SetDefault("input.programme_column", DefaultProgrammeColumn)

	v.SetDefault("output.dir", DefaultOutputDir)
	v.SetDefault("output.files", []string{"results.csv", "results.json"})
	v.SetDefault("output.duplicates", string(types.DuplicateLastWins))

	v.SetDefault("registry.base_url", DefaultRegistryURL)
	v.SetDefault("registry.records_dir", "")
	v.SetDefault("registry.timeout", DefaultTimeout)
	v.SetDefault("registry.user_agent", DefaultUserAgent)
	v.SetDefault("registry.max_retries", 5)

	v.SetDefault("xref.policy", string(types.XrefFirstMatch))
	v.SetDefault("xref.enrich", false)
	v.SetDefault("xref.openalex", false)
	v.SetDefault("xref.mailto", "")
	v.SetDefault("xref.max_publications", 0)
	v.SetDefault("xref.timeout", DefaultTimeout)
	v.SetDefault("xref.user_agent", DefaultUserAgent)
	v.SetDefault("xref.max_retries", 5)

	v.SetDefault("model.backend", string(types.BackendGemini))
	v.SetDefault("model.model", "")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.max_tokens", DefaultMaxTokens)
	v.SetDefault("model.timeout", DefaultModelTimeout)
	v.SetDefault("model.cache", true)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes the run configuration from v, fills in defaults that viper
// cannot express and validates the result.
func Load(v *viper.Viper) (types.Config, error) {
	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, &types.ConfigurationError{Field: "config", Reason: "decoding configuration", Cause: err}
	}
	applyFallbacks(&cfg)
	if err := Validate(cfg); err != nil {
		return types.Config{}, err
	}
	return cfg, nil
}

func applyFallbacks(cfg *types.Config) {
	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Input.IDColumn == "" {
		cfg.Input.IDColumn = DefaultIDColumn
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = DefaultOutputDir
	}
	if cfg.Output.Duplicates == "" {
		cfg.Output.Duplicates = types.DuplicateLastWins
	}
	if cfg.Xref.Policy == "" {
		cfg.Xref.Policy = types.XrefFirstMatch
	}
	if cfg.Model.Backend == "" {
		cfg.Model.Backend = types.BackendGemini
	}
	if cfg.Model.Model == "" {
		switch cfg.Model.Backend {
		case types.BackendClaude:
			cfg.Model.Model = DefaultClaudeModel
		default:
			cfg.Model.Model = DefaultGeminiModel
		}
	}
	if cfg.Registry.BaseURL == "" {
		cfg.Registry.BaseURL = DefaultRegistryURL
	}
	if cfg.Registry.UserAgent == "" {
		cfg.Registry.UserAgent = DefaultUserAgent
	}
	if cfg.Xref.UserAgent == "" {
		cfg.Xref.UserAgent = DefaultUserAgent
	}
	for i, t := range cfg.Xref.Tables {
		if p, err := types.ParseProgramme(string(t.Programme)); err == nil && p != "" {
			cfg.Xref.Tables[i].Programme = p
		}
	}

	merged := DefaultRetryPolicy()
	for kind, rule := range cfg.Retry {
		merged[kind] = rule
	}
	cfg.Retry = merged
}

// Validate checks cfg for values no run could succeed with.
func Validate(cfg types.Config) error {
	if cfg.Workers < 1 {
		return &types.ConfigurationError{Field: "workers", Reason: fmt.Sprintf("must be at least 1, got %d", cfg.Workers)}
	}
	if strings.TrimSpace(cfg.Input.IDColumn) == "" {
		return &types.ConfigurationError{Field: "input.id_column", Reason: "must not be empty"}
	}

	switch cfg.Output.Duplicates {
	case types.DuplicateLastWins, types.DuplicateFirstWins:
	default:
		return &types.ConfigurationError{Field: "output.duplicates", Reason: fmt.Sprintf("unknown policy %q", cfg.Output.Duplicates)}
	}

	switch cfg.Model.Backend {
	case types.BackendGemini, types.BackendClaude:
	default:
		return &types.ConfigurationError{Field: "model.backend", Reason: fmt.Sprintf("unknown backend %q", cfg.Model.Backend)}
	}

	switch cfg.Xref.Policy {
	case types.XrefFirstMatch, types.XrefOwn, types.XrefMerge:
	default:
		return &types.ConfigurationError{Field: "xref.policy", Reason: fmt.Sprintf("unknown policy %q", cfg.Xref.Policy)}
	}
	seen := make(map[types.Programme]bool)
	for i, t := range cfg.Xref.Tables {
		field := fmt.Sprintf("xref.tables[%d]", i)
		p, err := types.ParseProgramme(string(t.Programme))
		if err != nil || p == "" {
			return &types.ConfigurationError{Field: field, Reason: fmt.Sprintf("unknown programme %q", t.Programme)}
		}
		if seen[p] {
			return &types.ConfigurationError{Field: field, Reason: fmt.Sprintf("programme %q listed twice", p)}
		}
		seen[p] = true
		if strings.TrimSpace(t.Path) == "" {
			return &types.ConfigurationError{Field: field, Reason: "path must not be empty"}
		}
	}

	for kind, rule := range cfg.Retry {
		if !retryableKinds[kind] {
			return &types.ConfigurationError{Field: "retry." + string(kind), Reason: "unknown error kind"}
		}
		if rule.MaxAttempts < 1 {
			return &types.ConfigurationError{Field: "retry." + string(kind), Reason: "max_attempts must be at least 1"}
		}
		if rule.MaxDelay > 0 && rule.MaxDelay < rule.BaseDelay {
			return &types.ConfigurationError{Field: "retry." + string(kind), Reason: "max_delay is shorter than base_delay"}
		}
	}
	return nil
}

var retryableKinds = map[types.Kind]bool{
	types.KindFetch:           true,
	types.KindNotFound:        true,
	types.KindMalformedRecord: true,
	types.KindInvocation:      true,
	types.KindParse:           true,
	types.KindSchemaViolation: true,
}

// LoadMappings reads the field mapping table from path, or the embedded
// default when path is empty.
func LoadMappings(path string) (types.MappingTable, error) {
	data, err := readSource(path, "defaults/mappings.yaml", "mappings")
	if err != nil {
		return types.MappingTable{}, err
	}
	var table types.MappingTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return types.MappingTable{}, &types.ConfigurationError{Field: "mappings", Reason: "parsing mapping table", Cause: err}
	}
	lowerDetectValues(&table)
	if err := table.Validate(); err != nil {
		return types.MappingTable{}, err
	}
	return table, nil
}

func lowerDetectValues(table *types.MappingTable) {
	if len(table.Detect.Values) == 0 {
		return
	}
	lowered := make(map[string]types.Programme, len(table.Detect.Values))
	for k, p := range table.Detect.Values {
		lowered[strings.ToLower(strings.TrimSpace(k))] = p
	}
	table.Detect.Values = lowered
}

// LoadSchema reads the result schema from path, or the embedded default
// when path is empty.
func LoadSchema(path string) (types.ResultSchema, error) {
	data, err := readSource(path, "defaults/schema.yaml", "schema")
	if err != nil {
		return types.ResultSchema{}, err
	}
	var schema types.ResultSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return types.ResultSchema{}, &types.ConfigurationError{Field: "schema", Reason: "parsing result schema", Cause: err}
	}
	if schema.Delimiter == "" {
		schema.Delimiter = types.DefaultDelimiter
	}
	for i := range schema.Columns {
		c := &schema.Columns[i]
		if c.Match == "" {
			c.Match = types.MatchExact
		}
		if c.Match == types.MatchFuzzy && c.MaxDistance == 0 {
			c.MaxDistance = 2
		}
	}
	if err := schema.Validate(); err != nil {
		return types.ResultSchema{}, err
	}
	return schema, nil
}

// LoadPromptTemplate reads the prompt template text from path, or the
// embedded default when path is empty. The text is parsed later by the
// prompt generator.
func LoadPromptTemplate(path string) (string, error) {
	data, err := readSource(path, "defaults/prompt.tmpl", "prompt")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", &types.ConfigurationError{Field: "prompt", Reason: "template is empty"}
	}
	return string(data), nil
}

func readSource(path, embedded, field string) ([]byte, error) {
	if path == "" {
		data, err := defaultFS.ReadFile(embedded)
		if err != nil {
			return nil, &types.ConfigurationError{Field: field, Reason: "reading embedded default", Cause: err}
		}
		return data, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, &types.ConfigurationError{Field: field, Reason: fmt.Sprintf("reading %s", path), Cause: err}
	}
	return data, nil
}

// Bundle is the complete, validated configuration of a run. It is built
// once at startup and never mutated.
type Bundle struct {
	Config   types.Config
	Mappings types.MappingTable
	Schema   types.ResultSchema
	Template string
}

// Resolve loads the mapping table, schema and prompt template named by cfg.
func Resolve(cfg types.Config) (Bundle, error) {
	mappings, err := LoadMappings(cfg.Mappings)
	if err != nil {
		return Bundle{}, err
	}
	schema, err := LoadSchema(cfg.Schema)
	if err != nil {
		return Bundle{}, err
	}
	tmpl, err := LoadPromptTemplate(cfg.Prompt)
	if err != nil {
		return Bundle{}, err
	}
	return Bundle{Config: cfg, Mappings: mappings, Schema: schema, Template: tmpl}, nil
}
