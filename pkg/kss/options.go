package kss

import (
	"context"
	"log/slog"
	"text/template"
	"time"

	"github.com/onehub/kss/pkg/kss/encoding"
	"github.com/onehub/kss/pkg/kss/language"
	tpl "github.com/onehub/kss/pkg/kss/template"
)

// FrontMatterOptions defines the configuration for generating front matter
// on rendered styleguide pages.
type FrontMatterOptions struct {
	Enabled bool                   `mapstructure:"enabled"`
	Format  FrontMatterFormat      `mapstructure:"format"`
	Static  map[string]interface{} `mapstructure:"static"`
	Include []string               `mapstructure:"include"`
}

// PluginConfig defines the configuration for a single external plugin.
type PluginConfig struct {
	Name      string                 `mapstructure:"name"`
	Stage     string                 `mapstructure:"stage"`
	Enabled   bool                   `mapstructure:"enabled"`
	Command   []string               `mapstructure:"command"`
	AppliesTo []string               `mapstructure:"appliesTo"`
	Config    map[string]interface{} `mapstructure:"config"`
}

// PluginInput defines the structure sent TO a plugin via JSON stdin.
type PluginInput struct {
	SchemaVersion string                 `json:"$schemaVersion"`
	Stage         string                 `json:"stage"`
	FilePath      string                 `json:"filePath"`
	Content       string                 `json:"content"`
	Sections      []SectionSummary       `json:"sections,omitempty"`
	Metadata      map[string]interface{} `json:"metadata"`
	Config        map[string]interface{} `json:"config"`
}

// PluginOutput defines the structure expected FROM a plugin via JSON stdout.
type PluginOutput struct {
	SchemaVersion string                 `json:"$schemaVersion"`
	Error         string                 `json:"error,omitempty"`
	Content       string                 `json:"content,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Output        string                 `json:"output,omitempty"`
}

// Hooks defines callbacks for status updates during a generation run.
// Implementations MUST be thread-safe as methods are called concurrently
// from the walker and worker goroutines.
type Hooks interface {
	OnFileDiscovered(path string) error
	OnFileStatusUpdate(path string, status Status, message string, duration time.Duration) error
	OnRunComplete(report Report) error
}

// NoOpHooks provides a default, do-nothing implementation of the Hooks
// interface.
type NoOpHooks struct{}

// OnFileDiscovered implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnFileDiscovered(path string) error { return nil }

// OnFileStatusUpdate implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnFileStatusUpdate(path string, status Status, message string, duration time.Duration) error {
	return nil
}

// OnRunComplete implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnRunComplete(report Report) error { return nil }

// CacheManager defines methods for interacting with the incremental cache.
// Besides the usual hash bookkeeping, entries carry the section summaries
// extracted from the file so a cache hit can still populate the overview
// index without re-parsing.
type CacheManager interface {
	Load(cachePath string) error
	Check(filePath string, modTime time.Time, contentHash string, configHash string) (isHit bool, outputHash string, sections []SectionSummary)
	Update(filePath string, modTime time.Time, sourceHash string, configHash string, outputHash string, sections []SectionSummary) error
	Persist(cachePath string) error
}

// NoOpCacheManager provides a default, do-nothing implementation of the
// CacheManager interface. Used when caching is disabled.
type NoOpCacheManager struct{}

// Load implements CacheManager, performs no action.
func (c *NoOpCacheManager) Load(cachePath string) error { return nil }

// Check implements CacheManager, always returns a cache miss.
func (c *NoOpCacheManager) Check(filePath string, modTime time.Time, contentHash string, configHash string) (bool, string, []SectionSummary) {
	return false, "", nil
}

// Update implements CacheManager, performs no action.
func (c *NoOpCacheManager) Update(filePath string, modTime time.Time, sourceHash string, configHash string, outputHash string, sections []SectionSummary) error {
	return nil
}

// Persist implements CacheManager, performs no action.
func (c *NoOpCacheManager) Persist(cachePath string) error { return nil }

// GitMetadataProvider defines the lookup used to enrich rendered pages with
// last-commit information when GitMetadataEnabled is set.
type GitMetadataProvider interface {
	GetFileMetadata(repoPath, filePath string) (map[string]string, error)
}

// PluginRunner defines the method for running external plugins.
type PluginRunner interface {
	Run(ctx context.Context, stage string, pluginConfig PluginConfig, input PluginInput) (PluginOutput, error)
}

// Options holds all configuration for a GenerateStyleguide run.
type Options struct {
	// --- Core Paths ---
	InputPath  string `mapstructure:"inputPath"`  // Required: absolute path to the stylesheet tree
	OutputPath string `mapstructure:"outputPath"` // Required: absolute path to the output directory

	// --- Application Info ---
	AppVersion string `mapstructure:"-"` // Populated by the caller; part of cache validation

	// --- Behavior & Control ---
	ConfigFilePath string      `mapstructure:"-"`              // Path of the loaded config file (reporting only)
	ForceOverwrite bool        `mapstructure:"forceOverwrite"` // Skip the non-empty output dir safety check
	Verbose        bool        `mapstructure:"verbose"`        // Enable debug logging
	TuiEnabled     bool        `mapstructure:"tuiEnabled"`     // Hint for the CLI to use the TUI (ignored if Verbose)
	OnErrorMode    OnErrorMode `mapstructure:"onError"`        // Behavior on file processing error
	ProfileName    string      `mapstructure:"-"`              // Name of the profile used (reporting only)

	// --- Performance & Caching ---
	Concurrency     int    `mapstructure:"concurrency"` // Number of workers (0 = NumCPU)
	CacheEnabled    bool   `mapstructure:"cache"`       // Enable cache read/write
	IgnoreCacheRead bool   `mapstructure:"-"`           // Force cache misses (set by --no-cache)
	ClearCache      bool   `mapstructure:"-"`           // Delete cache file before run (set by --clear-cache)
	CacheFilePath   string `mapstructure:"-"`           // Resolved path to the cache file

	// --- File Handling & Filtering ---
	IgnorePatterns                       []string          `mapstructure:"ignore"`     // Patterns from config/flags, aggregated with .kssignore files
	BinaryMode                           BinaryMode        `mapstructure:"binaryMode"` // ("skip", "error")
	LargeFileThresholdMB                 int64             `mapstructure:"largeFileThresholdMB"`
	LargeFileThreshold                   int64             `mapstructure:"-"`             // Derived threshold in bytes
	LargeFileMode                        LargeFileMode     `mapstructure:"largeFileMode"` // ("skip", "error")
	DefaultEncoding                      string            `mapstructure:"defaultEncoding"`
	StylesheetExtensions                 []string          `mapstructure:"extensions"`       // Extensions always treated as stylesheet source
	LanguageMappingsOverride             map[string]string `mapstructure:"languageMappings"` // extension -> language overrides
	LanguageDetectionConfidenceThreshold float64           `mapstructure:"languageDetectionConfidenceThreshold"`

	// --- Comment Parsing ---
	PreserveWhitespace bool `mapstructure:"preserveWhitespace"` // Disable comment block normalization

	// --- Output & Formatting ---
	Template          *template.Template `mapstructure:"-"`            // Parsed page template (nil for embedded default)
	TemplatePath      string             `mapstructure:"templateFile"` // Path to a custom page template
	OutputFormat      OutputFormat       `mapstructure:"outputFormat"` // ("text", "json") for the final report
	FrontMatterConfig FrontMatterOptions `mapstructure:"frontMatter"`

	// --- Git Integration ---
	GitMetadataEnabled bool `mapstructure:"gitMetadata"`

	// --- Extensibility ---
	PluginConfigs []PluginConfig `mapstructure:"plugins"`

	// --- Injected Dependencies & Internal State ---
	EventHooks            Hooks                     `mapstructure:"-"` // Required: callback interface
	Logger                slog.Handler              `mapstructure:"-"` // Required: logging backend
	GitMetadataProvider   GitMetadataProvider       `mapstructure:"-"` // Optional: Git lookup implementation
	PluginRunner          PluginRunner              `mapstructure:"-"` // Optional: plugin execution implementation
	CacheManager          CacheManager              `mapstructure:"-"` // Optional: cache implementation
	LanguageDetector      language.LanguageDetector `mapstructure:"-"` // Optional: language detection implementation
	EncodingHandler       encoding.EncodingHandler  `mapstructure:"-"` // Optional: encoding handling implementation
	TemplateExecutor      tpl.TemplateExecutor      `mapstructure:"-"` // Optional: template execution implementation
	ProcessorFactory      ProcessorFactory          `mapstructure:"-"` // Optional: FileProcessor factory (testing)
	WalkerFactory         WalkerFactory             `mapstructure:"-"` // Optional: Walker factory (testing)
	DispatchWarnThreshold time.Duration             `mapstructure:"-"` // Internal: threshold for logging slow worker dispatch
}
