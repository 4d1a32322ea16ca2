package kss

import "time"

// Report summarizes the result of a single GenerateStyleguide run.
type Report struct {
	Summary        ReportSummary `json:"summary"`
	ProcessedFiles []FileInfo    `json:"processedFiles"`
	SkippedFiles   []SkippedInfo `json:"skippedFiles"`
	Errors         []ErrorInfo   `json:"errors"`
}

// ReportSummary contains aggregated statistics for a run.
type ReportSummary struct {
	RunID              string    `json:"runId"`
	InputPath          string    `json:"inputPath"`
	OutputPath         string    `json:"outputPath"`
	ProfileUsed        string    `json:"profileUsed,omitempty"`
	ConfigFilePath     string    `json:"configFilePath,omitempty"`
	TotalFilesScanned  int       `json:"totalFilesScanned"`
	ProcessedCount     int       `json:"processedCount"`
	CachedCount        int       `json:"cachedCount"`
	SkippedCount       int       `json:"skippedCount"`
	ErrorCount         int       `json:"errorCount"`
	SectionCount       int       `json:"sectionCount"`
	FatalErrorOccurred bool      `json:"fatalError"`
	DurationSeconds    float64   `json:"durationSeconds"`
	CacheEnabled       bool      `json:"cacheEnabled"`
	Concurrency        int       `json:"concurrency"`
	Timestamp          time.Time `json:"timestamp"`
	SchemaVersion      string    `json:"schemaVersion,omitempty"`
}

// FileInfo details a single file that produced a styleguide page, whether
// freshly rendered or served from cache.
type FileInfo struct {
	Path               string           `json:"path"`
	OutputPath         string           `json:"outputPath"`
	Language           string           `json:"language"`
	LanguageConfidence float64          `json:"languageConfidence"`
	SizeBytes          int64            `json:"sizeBytes"`
	ModTime            time.Time        `json:"modTime"`
	CacheStatus        string           `json:"cacheStatus"`
	DurationMs         int64            `json:"durationMs"`
	Sections           []SectionSummary `json:"sections,omitempty"`
	FrontMatter        bool             `json:"frontMatter"`
	PluginsRun         []string         `json:"pluginsRun,omitempty"`
}

// SkippedInfo details a file that was intentionally skipped.
type SkippedInfo struct {
	Path    string `json:"path"`
	Reason  string `json:"reason"`
	Details string `json:"details"`
}

// ErrorInfo details an error encountered while processing a specific file.
type ErrorInfo struct {
	Path    string `json:"path"`
	Error   string `json:"error"`
	IsFatal bool   `json:"isFatal"`
}
