package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "project-catalogue/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// MaxRetries bounds retries on HTTP 429 and 503 responses (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// RegistryConfig holds settings for fetching project records.
type RegistryConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// BaseURL is the registry API root (default "https://cordis.europa.eu").
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// RecordsDir, when set, reads records from local files instead of the registry.
	RecordsDir string `json:"records_dir,omitempty" yaml:"records_dir,omitempty" mapstructure:"records_dir"`
}

// XrefPolicy decides how publication tables are combined when a project
// appears in more than one of them.
type XrefPolicy string

const (
	// XrefFirstMatch uses the first table in priority order with a non-empty list.
	XrefFirstMatch XrefPolicy = "first-match"
	// XrefOwn uses only the table of the project's own programme.
	XrefOwn XrefPolicy = "own"
	// XrefMerge unions every table in priority order, de-duplicated.
	XrefMerge XrefPolicy = "merge"
)

// XrefTable names one programme's publication table.
type XrefTable struct {
	Programme Programme `json:"programme" yaml:"programme" mapstructure:"programme"`
	Path      string    `json:"path" yaml:"path" mapstructure:"path"`
}

// XrefConfig holds settings for the publication cross-reference.
type XrefConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Tables lists publication tables in lookup priority order.
	Tables []XrefTable `json:"tables" yaml:"tables" mapstructure:"tables"`

	Policy XrefPolicy `json:"policy" yaml:"policy" mapstructure:"policy"`

	// Enrich fills missing abstracts from CrossRef.
	Enrich bool `json:"enrich" yaml:"enrich" mapstructure:"enrich"`

	// OpenAlex queries OpenAlex when no table lists the project.
	OpenAlex bool `json:"openalex" yaml:"openalex" mapstructure:"openalex"`

	// Mailto is sent to CrossRef and OpenAlex for their polite pools.
	Mailto string `json:"mailto,omitempty" yaml:"mailto,omitempty" mapstructure:"mailto"`

	// MaxPublications caps the publications rendered into a prompt (0 = all).
	MaxPublications int `json:"max_publications" yaml:"max_publications" mapstructure:"max_publications"`
}

// ModelBackend identifies the generative model provider.
type ModelBackend string

const (
	BackendGemini ModelBackend = "gemini"
	BackendClaude ModelBackend = "claude"
)

// ModelConfig holds settings for the model invoker.
type ModelConfig struct {
	Backend ModelBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Model is the model identifier (e.g. "gemini-2.0-flash").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key; usually supplied from .secrets/ or env.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxTokens bounds the reply length for backends that require it.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// Timeout bounds a single model call.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// Cache re-uses stored replies for identical prompts.
	Cache bool `json:"cache" yaml:"cache" mapstructure:"cache"`
}

// RetryRule bounds attempts for one error kind.
type RetryRule struct {
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay" yaml:"base_delay" mapstructure:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay" yaml:"max_delay" mapstructure:"max_delay"`
}

// DuplicatePolicy decides which entry wins when an identifier completes twice.
type DuplicatePolicy string

const (
	DuplicateLastWins  DuplicatePolicy = "last-write-wins"
	DuplicateFirstWins DuplicatePolicy = "first-write-wins"
)

// InputConfig names the columns of the identifier table.
type InputConfig struct {
	IDColumn        string `json:"id_column" yaml:"id_column" mapstructure:"id_column"`
	ProgrammeColumn string `json:"programme_column" yaml:"programme_column" mapstructure:"programme_column"`
}

// OutputConfig holds settings for result persistence.
type OutputConfig struct {
	// Dir holds the SQLite journal and relative output files (default "output").
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// Files are the batch files written at the end of a run; the extension
	// selects the format (.csv, .psv, .txt, .xlsx, .json, .yaml, .md).
	Files []string `json:"files" yaml:"files" mapstructure:"files"`

	Duplicates DuplicatePolicy `json:"duplicates" yaml:"duplicates" mapstructure:"duplicates"`
}

// Config groups all pipeline settings.
type Config struct {
	// Workers is the size of the worker pool (default 4).
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`

	// Resume re-uses stored successful entries instead of reprocessing them.
	Resume bool `json:"resume" yaml:"resume" mapstructure:"resume"`

	// Mappings, Schema and Prompt are file paths overriding the embedded defaults.
	Mappings string `json:"mappings,omitempty" yaml:"mappings,omitempty" mapstructure:"mappings"`
	Schema   string `json:"schema,omitempty" yaml:"schema,omitempty" mapstructure:"schema"`
	Prompt   string `json:"prompt,omitempty" yaml:"prompt,omitempty" mapstructure:"prompt"`

	Input    InputConfig        `json:"input" yaml:"input" mapstructure:"input"`
	Output   OutputConfig       `json:"output" yaml:"output" mapstructure:"output"`
	Registry RegistryConfig     `json:"registry" yaml:"registry" mapstructure:"registry"`
	Xref     XrefConfig         `json:"xref" yaml:"xref" mapstructure:"xref"`
	Model    ModelConfig        `json:"model" yaml:"model" mapstructure:"model"`
	Retry    map[Kind]RetryRule `json:"retry" yaml:"retry" mapstructure:"retry"`
}
