package kss

// Status defines the possible processing states of a file during a
// styleguide generation run.
type Status string

// Constants representing the defined file processing statuses.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
	StatusCached     Status = "cached"
)

// OnErrorMode defines the behavior when a non-fatal error occurs during file
// processing.
type OnErrorMode string

const (
	OnErrorContinue OnErrorMode = "continue"
	OnErrorStop     OnErrorMode = "stop"
)

// BinaryMode defines how detected binary files should be handled.
type BinaryMode string

const (
	BinarySkip  BinaryMode = "skip"
	BinaryError BinaryMode = "error"
)

// LargeFileMode defines how files exceeding the configured size threshold
// should be handled. Truncation is deliberately not offered: a cut-off
// stylesheet could leave a comment block unterminated and corrupt parsing.
type LargeFileMode string

const (
	LargeFileSkip  LargeFileMode = "skip"
	LargeFileError LargeFileMode = "error"
)

// OutputFormat defines the format for the final summary report printed to
// standard output when the TUI is disabled.
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// FrontMatterFormat defines the serialization used for generated front
// matter.
type FrontMatterFormat string

const (
	FrontMatterYAML FrontMatterFormat = "yaml"
	FrontMatterTOML FrontMatterFormat = "toml"
	FrontMatterJSON FrontMatterFormat = "json"
)

// SectionSummary is the lightweight projection of a parsed section carried
// through the cache and the final report: enough to rebuild the overview
// index without re-parsing the source file.
type SectionSummary struct {
	Reference   string `json:"reference"`
	Description string `json:"description"`
}
