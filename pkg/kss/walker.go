package kss

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/onehub/kss/pkg/util"
)

// Walker traverses the input directory, applies ignore rules, and dispatches
// eligible file paths to the worker pool.
type Walker struct {
	opts                 *Options
	workerChan           chan<- string
	hooks                Hooks
	logger               *slog.Logger
	ignores              *ignoreMatcher
	absOutputPath        string
	absCachePath         string
	dispatchWarnDuration time.Duration
}

// NewWalker creates a Walker for the configured input tree.
func NewWalker(opts *Options, workerChan chan<- string, loggerHandler slog.Handler) (*Walker, error) {
	logger := slog.New(loggerHandler).With(slog.String("component", "walker"))

	ignores, err := newIgnoreMatcher(opts.InputPath, opts.IgnorePatterns, logger)
	if err != nil {
		logger.Error("Failed to initialize ignore pattern matcher", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to initialize ignore patterns: %w", err)
	}
	logger.Debug("Ignore patterns loaded", slog.Int("count", ignores.patternCount()))

	// The output tree and the cache index must never be treated as input,
	// even when they live inside the input directory.
	absOutputPath, err := filepath.Abs(opts.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output path %q: %w", opts.OutputPath, err)
	}
	absCachePath := ""
	if opts.CacheFilePath != "" {
		if absCachePath, err = filepath.Abs(opts.CacheFilePath); err != nil {
			absCachePath = ""
		}
	}

	dispatchWarnDuration := opts.DispatchWarnThreshold
	if dispatchWarnDuration <= 0 {
		dispatchWarnDuration = 1 * time.Second
	}

	hooks := opts.EventHooks
	if hooks == nil {
		hooks = &NoOpHooks{}
	}

	return &Walker{
		opts:                 opts,
		workerChan:           workerChan,
		hooks:                hooks,
		logger:               logger,
		ignores:              ignores,
		absOutputPath:        absOutputPath,
		absCachePath:         absCachePath,
		dispatchWarnDuration: dispatchWarnDuration,
	}, nil
}

// StartWalk begins the directory traversal and closes the worker channel when
// traversal ends, regardless of outcome.
func (w *Walker) StartWalk(ctx context.Context) error {
	w.logger.Info("Starting directory walk", slog.String("path", w.opts.InputPath))
	walkErr := filepath.WalkDir(w.opts.InputPath, w.walkFunc(ctx))
	close(w.workerChan)
	w.logger.Debug("Worker channel closed")
	if walkErr != nil {
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			w.logger.Info("Directory walk cancelled", slog.String("reason", walkErr.Error()))
			return walkErr
		}
		w.logger.Error("Directory walk encountered an error during traversal", slog.String("error", walkErr.Error()))
		return fmt.Errorf("directory walk failed: %w", walkErr)
	}
	w.logger.Info("Directory walk completed")
	return nil
}

// walkFunc returns the WalkDirFunc used by filepath.WalkDir.
func (w *Walker) walkFunc(ctx context.Context) fs.WalkDirFunc {
	return func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("Error accessing path during walk", slog.String("path", path), slog.String("error", err.Error()))
			if path == w.opts.InputPath && os.IsPermission(err) {
				return fmt.Errorf("permission denied reading input directory %q: %w", path, err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if d.Type()&fs.ModeSymlink != 0 {
			w.logger.Debug("Skipping symbolic link", slog.String("path", path))
			return nil
		}

		absPath, err := filepath.Abs(path)
		if err != nil {
			w.logger.Warn("Could not get absolute path", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		relativePath, err := filepath.Rel(w.opts.InputPath, absPath)
		if err != nil {
			w.logger.Warn("Could not calculate relative path", slog.String("path", absPath), slog.String("input", w.opts.InputPath), slog.String("error", err.Error()))
			return nil
		}
		relativePath = filepath.ToSlash(relativePath)
		if relativePath == "." {
			return nil
		}

		isDir := d.IsDir()
		if isDir && absPath == w.absOutputPath {
			w.logger.Debug("Skipping output directory inside input tree", slog.String("path", relativePath))
			return filepath.SkipDir
		}
		if !isDir && absPath == w.absCachePath {
			w.logger.Debug("Skipping cache index file", slog.String("path", relativePath))
			return nil
		}

		if hookErr := w.hooks.OnFileDiscovered(relativePath); hookErr != nil {
			w.logger.Warn("Event hook OnFileDiscovered failed", slog.String("path", relativePath), slog.String("error", hookErr.Error()))
		}

		if ignored, pattern := w.ignores.match(relativePath, isDir); ignored {
			w.logger.Debug("Path ignored", slog.String("path", relativePath), slog.Bool("isDir", isDir), slog.String("pattern", pattern))
			statusMsg := fmt.Sprintf("Ignored by pattern: %s", pattern)
			if hookErr := w.hooks.OnFileStatusUpdate(relativePath, StatusSkipped, statusMsg, 0); hookErr != nil {
				w.logger.Warn("Event hook OnFileStatusUpdate (ignored) failed", slog.String("path", relativePath), slog.String("error", hookErr.Error()))
			}
			if isDir {
				return filepath.SkipDir
			}
			return nil
		}

		if isDir {
			// Entered directories contribute their own ignore file before any
			// of their children are matched.
			w.ignores.loadDirPatterns(absPath)
			return nil
		}

		w.logger.Debug("Dispatching file to worker channel", slog.String("path", relativePath))
		timer := time.NewTimer(w.dispatchWarnDuration)
		defer timer.Stop()
		select {
		case w.workerChan <- absPath:
		case <-timer.C:
			w.logger.Warn("Worker channel dispatch blocked, workers might be busy or pool too small", slog.String("path", relativePath), slog.Duration("threshold", w.dispatchWarnDuration))
			select {
			case w.workerChan <- absPath:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}
}

// --- ignoreMatcher ---

type ignoreMatcher struct {
	patterns []ignorePattern
	basePath string // Absolute path to the input directory
	logger   *slog.Logger
}

type ignorePattern struct {
	pattern     string // Cleaned pattern for matching, '/' separated
	orig        string // Original pattern string for reporting
	negated     bool
	dirOnly     bool
	rooted      bool   // Pattern started with '/' relative to its base
	baseAbsPath string // Directory the pattern is scoped to
}

// newIgnoreMatcher loads the nearest ignore file at or above the input path
// plus the configured patterns. Additional per-directory ignore files are
// picked up during the walk via loadDirPatterns.
func newIgnoreMatcher(inputPath string, configPatterns []string, logger *slog.Logger) (*ignoreMatcher, error) {
	absInputPath, err := filepath.Abs(inputPath)
	if err != nil {
		return nil, fmt.Errorf("could not get absolute path for input: %w", err)
	}
	matcher := &ignoreMatcher{
		basePath: absInputPath,
		logger:   logger.With(slog.String("component", "ignoreMatcher")),
	}

	ignoreFilePath, err := findIgnoreFile(absInputPath)
	if err != nil {
		matcher.logger.Warn("Error searching for ignore file", slog.String("error", err.Error()))
	}
	if ignoreFilePath != "" {
		filePatterns, err := loadPatternsFromFile(ignoreFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load ignore file %s: %w", ignoreFilePath, err)
		}
		matcher.addPatterns(filePatterns, filepath.Dir(ignoreFilePath))
		matcher.logger.Debug("Loaded patterns from ignore file", slog.String("path", ignoreFilePath), slog.Int("count", len(filePatterns)))
	}

	matcher.addPatterns(configPatterns, absInputPath)
	matcher.logger.Debug("Total processed ignore patterns", slog.Int("count", matcher.patternCount()))
	return matcher, nil
}

// loadDirPatterns appends patterns from absDir's ignore file, scoped to that
// directory. Missing or unreadable files are skipped; the walker already
// reported access problems for the directory itself.
func (m *ignoreMatcher) loadDirPatterns(absDir string) {
	if absDir == m.basePath {
		return // Covered by the constructor's upward search
	}
	ignoreFilePath := filepath.Join(absDir, IgnoreFileName)
	if _, err := os.Stat(ignoreFilePath); err != nil {
		return
	}
	filePatterns, err := loadPatternsFromFile(ignoreFilePath)
	if err != nil {
		m.logger.Warn("Failed to load directory ignore file", slog.String("path", ignoreFilePath), slog.String("error", err.Error()))
		return
	}
	m.addPatterns(filePatterns, absDir)
	m.logger.Debug("Loaded patterns from directory ignore file", slog.String("path", ignoreFilePath), slog.Int("count", len(filePatterns)))
}

// findIgnoreFile walks up from absStartPath looking for an ignore file.
func findIgnoreFile(absStartPath string) (string, error) {
	currentPath := absStartPath
	for {
		potentialPath := filepath.Join(currentPath, IgnoreFileName)
		if _, err := os.Stat(potentialPath); err == nil {
			return potentialPath, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("error checking for ignore file at %s: %w", potentialPath, err)
		}
		parent := filepath.Dir(currentPath)
		if parent == currentPath || parent == "" {
			break
		}
		currentPath = parent
	}
	return "", nil
}

// loadPatternsFromFile reads an ignore file, dropping blanks and comments.
func loadPatternsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open ignore file %s: %w", filePath, err)
	}
	defer file.Close()

	var patterns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			patterns = append(patterns, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ignore file %s: %w", filePath, err)
	}
	return patterns, nil
}

// addPatterns processes raw gitignore-style pattern strings.
func (m *ignoreMatcher) addPatterns(rawPatterns []string, baseAbsPath string) {
	for _, rawPattern := range rawPatterns {
		p := ignorePattern{orig: rawPattern, baseAbsPath: baseAbsPath}
		trimmed := rawPattern
		if strings.HasPrefix(trimmed, "!") {
			p.negated = true
			trimmed = trimmed[1:]
		}
		trimmed = strings.TrimSpace(trimmed)
		if strings.HasPrefix(trimmed, "/") {
			p.rooted = true
			trimmed = strings.TrimPrefix(trimmed, "/")
		}
		if strings.HasSuffix(trimmed, "/") {
			p.dirOnly = true
			trimmed = strings.TrimSuffix(trimmed, "/")
		}
		p.pattern = filepath.ToSlash(trimmed)
		if p.pattern == "" {
			continue
		}
		m.patterns = append(m.patterns, p)
	}
}

// match reports whether relativePath is ignored and, when it is, the original
// pattern that made the final decision. Later patterns override earlier ones,
// so negations work the way .gitignore users expect.
func (m *ignoreMatcher) match(relativePath string, isDir bool) (bool, string) {
	ignored := false
	decidedBy := ""
	for _, p := range m.patterns {
		if !util.MatchesGitignore(p.pattern, p.baseAbsPath, m.basePath, relativePath, p.rooted) {
			continue
		}
		if p.dirOnly && !isDir {
			continue
		}
		ignored = !p.negated
		decidedBy = p.orig
	}
	if !ignored {
		return false, ""
	}
	return true, decidedBy
}

func (m *ignoreMatcher) patternCount() int {
	return len(m.patterns)
}
