package kss

// Constants defining default values for configuration options. These are
// mirrored into the Viper defaults during configuration loading.
const (
	// DefaultConcurrency determines the default number of workers. 0 means runtime.NumCPU().
	DefaultConcurrency = 0
	// DefaultCacheEnabled is the default state for caching.
	DefaultCacheEnabled = true
	// DefaultTuiEnabled is the default state for the Terminal UI.
	DefaultTuiEnabled = true
	// DefaultOnErrorMode is the default behavior on non-fatal file errors.
	DefaultOnErrorMode = OnErrorContinue
	// DefaultLargeFileThresholdMB is the default size limit in MB. Stylesheets
	// beyond this are almost always generated or vendored bundles.
	DefaultLargeFileThresholdMB = 10
	// DefaultLargeFileMode is the default handling for large files.
	DefaultLargeFileMode = LargeFileSkip
	// DefaultBinaryMode is the default handling for binary files.
	DefaultBinaryMode = BinarySkip
	// DefaultGitMetadataEnabled is the default state for fetching Git metadata.
	DefaultGitMetadataEnabled = false
	// DefaultOutputFormat is the default format for the final summary report.
	DefaultOutputFormat = OutputFormatText
	// DefaultPreserveWhitespace is the default for comment block normalization.
	DefaultPreserveWhitespace = false
	// DefaultFrontMatterEnabled is the default state for front matter generation.
	DefaultFrontMatterEnabled = false
	// DefaultFrontMatterFormat is the default serialization for front matter.
	DefaultFrontMatterFormat = FrontMatterYAML
	// DefaultLanguageDetectionConfidenceThreshold is the minimum score for
	// content-based language detection.
	DefaultLanguageDetectionConfidenceThreshold = 0.75
	// DefaultVerbose is the default state for verbose logging.
	DefaultVerbose = false
	// DefaultForceOverwrite is the default state for overwriting output.
	DefaultForceOverwrite = false
)

// Constants related to the cache mechanism.
const (
	// CacheFileName is the standard name for the cache index file, created
	// inside the output directory.
	CacheFileName = ".kss.cache"
	// CacheSchemaVersion represents the current version of the cache file
	// structure. Increment on incompatible CacheEntry or serialization
	// changes.
	CacheSchemaVersion = "1.0"
)

// IgnoreFileName is the per-directory ignore file honored by the walker, in
// gitignore syntax.
const IgnoreFileName = ".kssignore"

// PluginSchemaVersion indicates the version of the plugin communication
// protocol spoken over stdin/stdout.
const PluginSchemaVersion = "1.0"

// ReportSchemaVersion indicates the version of the JSON report structure.
const ReportSchemaVersion = "1.0"

// IndexFileName is the name of the aggregated overview page generated at the
// root of the output directory.
const IndexFileName = "index.md"

// Constants defining plugin stages.
const (
	PluginStagePreprocessor  = "preprocessor"
	PluginStagePostprocessor = "postprocessor"
	PluginStageFormatter     = "formatter"
)

// Constants defining cache status strings used in the Report.
const (
	CacheStatusHit      = "hit"
	CacheStatusMiss     = "miss"
	CacheStatusDisabled = "disabled"
)

// Constants defining skip reasons used in the Report. Paths excluded by
// ignore patterns never reach the processor and are reported through the
// event hooks instead.
const (
	SkipReasonBinary        = "binary_file"
	SkipReasonLarge         = "large_file"
	SkipReasonNotStylesheet = "not_stylesheet"
	SkipReasonNoSections    = "no_styleguide_sections"
)
