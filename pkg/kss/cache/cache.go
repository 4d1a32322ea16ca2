// Package cache provides the file-backed incremental cache used to skip
// re-rendering styleguide pages for unchanged stylesheets.
package cache

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/onehub/kss/pkg/kss"
)

const (
	// DefaultCacheFormat specifies the default serialization format.
	DefaultCacheFormat = "gob"
	// CacheFormatGob represents the gob serialization format.
	CacheFormatGob = "gob"
	// CacheFormatJSON represents the JSON serialization format.
	CacheFormatJSON = "json"
)

// CacheEntry represents the stored state for a single cached file: the
// hashes and timestamps needed for validation, plus the section summaries
// extracted from the file so a hit can still feed the overview index.
type CacheEntry struct {
	SourceModTime time.Time            `json:"sourceModTime"`
	SourceHash    string               `json:"sourceHash"`
	ConfigHash    string               `json:"configHash"`
	OutputHash    string               `json:"outputHash"`
	Sections      []kss.SectionSummary `json:"sections,omitempty"`
	SchemaVersion string               `json:"schemaVersion"`
	AppVersion    string               `json:"appVersion"`
}

// CacheFileHeader holds metadata about the cache file itself, written ahead
// of the index and validated during Load.
type CacheFileHeader struct {
	SchemaVersion string `json:"schemaVersion"`
	AppVersion    string `json:"appVersion"`
}

// jsonCacheFile is the combined on-disk layout used by the JSON format.
type jsonCacheFile struct {
	Header CacheFileHeader       `json:"header"`
	Index  map[string]CacheEntry `json:"index"`
}

// fileCacheManager implements kss.CacheManager using a local file. The index
// lives in memory and persists in the configured format (gob or JSON).
// A sync.RWMutex makes concurrent worker updates safe.
type fileCacheManager struct {
	index         map[string]CacheEntry
	mu            sync.RWMutex
	logger        *slog.Logger
	schemaVersion string
	appVersion    string
	format        string
}

// NewFileCacheManager creates a file-backed cache manager. schemaVersion and
// appVersion are recorded on entries and validated during Load; cacheFormat
// selects "gob" or "json" serialization, defaulting to gob.
func NewFileCacheManager(loggerHandler slog.Handler, schemaVersion, appVersion, cacheFormat string) kss.CacheManager {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	format := strings.ToLower(cacheFormat)
	if format != CacheFormatJSON && format != CacheFormatGob {
		format = DefaultCacheFormat
	}
	logger := slog.New(loggerHandler).With(
		slog.String("component", "cacheManager"),
		slog.String("format", format),
	)

	if schemaVersion == "" {
		schemaVersion = kss.CacheSchemaVersion
	}
	if appVersion == "" {
		appVersion = "dev"
	}

	return &fileCacheManager{
		index:         make(map[string]CacheEntry),
		logger:        logger,
		schemaVersion: schemaVersion,
		appVersion:    appVersion,
		format:        format,
	}
}

// Load implements kss.CacheManager. A missing file, corruption, or a version
// mismatch leaves an empty index and returns nil; only critical I/O errors
// (e.g. permissions) are returned, wrapping kss.ErrCacheLoad.
func (c *fileCacheManager) Load(cachePath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.index = make(map[string]CacheEntry)

	file, err := os.Open(cachePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.logger.Info("Cache file not found, starting with empty index", "path", cachePath)
			return nil
		}
		c.logger.Error("Critical cache load error", "path", cachePath, "error", err.Error())
		return fmt.Errorf("%w: open cache file %s: %w", kss.ErrCacheLoad, cachePath, err)
	}
	defer file.Close()

	var header CacheFileHeader
	var loadedIndex map[string]CacheEntry
	var headerErr, indexErr error

	if c.format == CacheFormatJSON {
		var cacheData jsonCacheFile
		if decodeErr := json.NewDecoder(file).Decode(&cacheData); decodeErr != nil {
			headerErr = decodeErr
		} else {
			header = cacheData.Header
			loadedIndex = cacheData.Index
		}
	} else {
		decoder := gob.NewDecoder(file)
		headerErr = decoder.Decode(&header)
		if headerErr == nil {
			indexErr = decoder.Decode(&loadedIndex)
		}
	}

	if headerErr != nil {
		if errors.Is(headerErr, io.EOF) || errors.Is(headerErr, io.ErrUnexpectedEOF) {
			c.logger.Warn("Cache file empty or header incomplete, treating as miss", "path", cachePath)
			return nil
		}
		c.logger.Warn("Failed to decode cache file header, treating as miss",
			"path", cachePath, "format", c.format, "error", headerErr.Error())
		return nil
	}

	if header.SchemaVersion != c.schemaVersion {
		c.logger.Warn("Cache schema version mismatch, invalidating cache",
			"path", cachePath, "file_schema", header.SchemaVersion, "expected_schema", c.schemaVersion)
		return nil
	}
	if !versionsCompatible(header.AppVersion, c.appVersion) {
		c.logger.Warn("Cache app version mismatch, invalidating cache",
			"path", cachePath, "file_version", header.AppVersion, "expected_version", c.appVersion)
		return nil
	}

	if indexErr != nil {
		if errors.Is(indexErr, io.EOF) {
			c.logger.Info("Cache file has a header but no index data, loaded empty cache", "path", cachePath)
			return nil
		}
		c.logger.Warn("Failed to decode cache index data, treating as miss", "path", cachePath, "error", indexErr.Error())
		c.index = make(map[string]CacheEntry)
		return nil
	}

	if loadedIndex == nil {
		loadedIndex = make(map[string]CacheEntry)
	}
	c.index = loadedIndex
	c.logger.Info("Cache loaded", "path", cachePath, "entries", len(c.index))
	return nil
}

// Check implements kss.CacheManager. Safe for concurrent reads once Load has
// completed.
func (c *fileCacheManager) Check(filePath string, modTime time.Time, contentHash string, configHash string) (bool, string, []kss.SectionSummary) {
	c.mu.RLock()
	entry, found := c.index[filePath]
	c.mu.RUnlock()

	logArgs := []any{
		slog.String("path", filePath),
		slog.Time("check_modTime", modTime),
		slog.String("check_contentHash", contentHash),
		slog.String("check_configHash", configHash),
	}

	if !found {
		c.logger.Debug("Cache check: miss (entry not found)", logArgs...)
		return false, "", nil
	}

	if entry.SchemaVersion != c.schemaVersion || !versionsCompatible(entry.AppVersion, c.appVersion) {
		c.logger.Debug("Cache check: miss (version mismatch in entry)", logArgs...)
		return false, "", nil
	}
	if !entry.SourceModTime.Equal(modTime) {
		c.logger.Debug("Cache check: miss (modTime mismatch)", logArgs...)
		return false, "", nil
	}
	if entry.SourceHash != contentHash {
		c.logger.Debug("Cache check: miss (contentHash mismatch)", logArgs...)
		return false, "", nil
	}
	if entry.ConfigHash != configHash {
		c.logger.Debug("Cache check: miss (configHash mismatch)", logArgs...)
		return false, "", nil
	}

	c.logger.Debug("Cache check: hit", append(logArgs, slog.String("outputHash", entry.OutputHash))...)
	return true, entry.OutputHash, entry.Sections
}

// Update implements kss.CacheManager. Safe for concurrent calls from worker
// goroutines.
func (c *fileCacheManager) Update(filePath string, modTime time.Time, sourceHash string, configHash string, outputHash string, sections []kss.SectionSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.index == nil {
		c.index = make(map[string]CacheEntry)
	}
	c.index[filePath] = CacheEntry{
		SourceModTime: modTime,
		SourceHash:    sourceHash,
		ConfigHash:    configHash,
		OutputHash:    outputHash,
		Sections:      sections,
		SchemaVersion: c.schemaVersion,
		AppVersion:    c.appVersion,
	}

	c.logger.Debug("Cache index updated in memory", slog.String("path", filePath))
	return nil
}

// Persist implements kss.CacheManager. The index is written to a temp file in
// the target directory and renamed into place; an empty index removes the
// cache file instead.
func (c *fileCacheManager) Persist(cachePath string) error {
	c.mu.RLock()
	indexCopy := make(map[string]CacheEntry, len(c.index))
	for k, v := range c.index {
		indexCopy[k] = v
	}
	c.mu.RUnlock()

	if len(indexCopy) == 0 {
		c.logger.Debug("Skipping cache persist, index is empty", "path", cachePath)
		if err := os.Remove(cachePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("Failed to remove empty cache file", "path", cachePath, "error", err.Error())
		}
		return nil
	}

	cacheDir := filepath.Dir(cachePath)
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		c.logger.Error("Cache persist error", "path", cachePath, "error", err.Error())
		return fmt.Errorf("%w: ensure cache directory %s: %w", kss.ErrCachePersist, cacheDir, err)
	}

	tempFile, err := os.CreateTemp(cacheDir, filepath.Base(cachePath)+".tmp-*")
	if err != nil {
		c.logger.Error("Cache persist error", "path", cachePath, "error", err.Error())
		return fmt.Errorf("%w: create temporary cache file in %s: %w", kss.ErrCachePersist, cacheDir, err)
	}
	tempFilePath := tempFile.Name()

	closed := false
	defer func() {
		if !closed {
			_ = tempFile.Close()
		}
		if _, statErr := os.Stat(tempFilePath); statErr == nil {
			_ = os.Remove(tempFilePath)
		}
	}()

	header := CacheFileHeader{SchemaVersion: c.schemaVersion, AppVersion: c.appVersion}
	var encodeErr error
	if c.format == CacheFormatJSON {
		encoder := json.NewEncoder(tempFile)
		encoder.SetIndent("", "  ")
		encodeErr = encoder.Encode(jsonCacheFile{Header: header, Index: indexCopy})
	} else {
		encoder := gob.NewEncoder(tempFile)
		if encodeErr = encoder.Encode(header); encodeErr == nil {
			encodeErr = encoder.Encode(indexCopy)
		}
	}
	if encodeErr != nil {
		c.logger.Error("Cache persist encoding error", "path", cachePath, "error", encodeErr.Error())
		return fmt.Errorf("%w: encode cache (%s) to %s: %w", kss.ErrCachePersist, c.format, tempFilePath, encodeErr)
	}

	if err := tempFile.Close(); err != nil {
		closed = true
		return fmt.Errorf("%w: close temporary cache file %s: %w", kss.ErrCachePersist, tempFilePath, err)
	}
	closed = true

	if err := os.Rename(tempFilePath, cachePath); err != nil {
		c.logger.Error("Cache persist rename error", "path", cachePath, "error", err.Error())
		return fmt.Errorf("%w: rename %s to %s: %w", kss.ErrCachePersist, tempFilePath, cachePath, err)
	}

	c.logger.Info("Cache persisted", "path", cachePath, "format", c.format, "entries", len(indexCopy))
	return nil
}

// versionsCompatible treats "dev" builds as compatible with anything so a
// development binary never churns a released cache and vice versa.
func versionsCompatible(entryVersion, currentVersion string) bool {
	if entryVersion == "dev" || currentVersion == "dev" {
		return true
	}
	return entryVersion == currentVersion
}
