package kss

import "errors"

// Error categories returned by GenerateStyleguide or surfaced through
// Report.Errors. Library users can check against these using errors.Is.

var (
	// ErrReadFailed indicates a failure to read a source file from the
	// filesystem, due to permissions, deletion after discovery, or other I/O
	// issues.
	ErrReadFailed = errors.New("failed to read file")

	// ErrStatFailed indicates a failure to obtain file statistics via
	// os.Stat.
	ErrStatFailed = errors.New("failed to get file stats")

	// ErrBinaryFile indicates that a file was detected as binary and the
	// configured BinaryMode is "error".
	ErrBinaryFile = errors.New("binary file encountered")

	// ErrLargeFile indicates that a file exceeded the configured size
	// threshold and the configured LargeFileMode is "error".
	ErrLargeFile = errors.New("large file encountered")

	// ErrCommentExtraction indicates the comment parser could not scan a
	// source file, typically because a single line exceeded the scanner
	// buffer cap.
	ErrCommentExtraction = errors.New("comment extraction failed")

	// ErrPluginExecution indicates a general failure during the execution of
	// an external plugin. Use errors.Is against this for the broad category,
	// or against ErrPluginTimeout, ErrPluginNonZeroExit or ErrPluginBadOutput
	// for specific causes; those also match this one.
	ErrPluginExecution = errors.New("plugin execution failed")

	// ErrPluginTimeout indicates that a plugin process exceeded the execution
	// deadline of the context passed to the PluginRunner.
	ErrPluginTimeout = errors.New("plugin execution timed out")

	// ErrPluginNonZeroExit indicates that a plugin process exited with a
	// non-zero status code.
	ErrPluginNonZeroExit = errors.New("plugin exited non-zero")

	// ErrPluginBadOutput indicates that the plugin produced stdout that did
	// not satisfy the plugin output schema, or reported an error of its own
	// in the "error" field.
	ErrPluginBadOutput = errors.New("plugin returned invalid output or reported error")

	// ErrFrontMatterGen indicates a failure marshalling front matter, e.g.
	// unencodable values among the configured static fields.
	ErrFrontMatterGen = errors.New("failed to generate front matter")

	// ErrTemplateExecution indicates an error during execution of the page or
	// index template.
	ErrTemplateExecution = errors.New("template execution failed")

	// ErrMkdirFailed indicates a failure to create an output subdirectory.
	ErrMkdirFailed = errors.New("failed to create output directory")

	// ErrWriteFailed indicates a failure to write generated content to an
	// output file.
	ErrWriteFailed = errors.New("failed to write output file")

	// ErrConfigValidation indicates that the provided Options failed the
	// validation checks performed at the beginning of GenerateStyleguide.
	// Always fatal.
	ErrConfigValidation = errors.New("invalid configuration options provided")

	// ErrCacheLoad indicates an error loading or decoding the cache index
	// file. Treated as a cache miss and logged, never fatal.
	ErrCacheLoad = errors.New("failed to load cache index")

	// ErrCachePersist indicates an error persisting the cache index file.
	// Logged; the run itself may still succeed.
	ErrCachePersist = errors.New("failed to persist cache index")

	// ErrGitOperation indicates a failure during a Git lookup performed via
	// the GitMetadataProvider. Non-fatal; the affected file renders without
	// Git metadata.
	ErrGitOperation = errors.New("git operation failed")
)
