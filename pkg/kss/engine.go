package kss

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/onehub/kss/pkg/kss/encoding"
	"github.com/onehub/kss/pkg/kss/language"
	tpl "github.com/onehub/kss/pkg/kss/template"
)

// ProcessorFactory creates the FileProcessor shared by all workers. Tests
// substitute it through Options.ProcessorFactory.
type ProcessorFactory func(
	opts *Options,
	loggerHandler slog.Handler,
	cacheManager CacheManager,
	langDetector language.LanguageDetector,
	encodingHandler encoding.EncodingHandler,
	gitProvider GitMetadataProvider,
	pluginRunner PluginRunner,
	templateExecutor tpl.TemplateExecutor,
) *FileProcessor

// WalkerFactory creates the Walker that feeds the worker channel.
type WalkerFactory func(
	opts *Options,
	workerChan chan<- string,
	loggerHandler slog.Handler,
) (*Walker, error)

// Engine orchestrates a styleguide generation run: the directory walk,
// concurrent per-file processing, result aggregation, cache persistence, and
// the overview index written after all pages are rendered.
type Engine struct {
	opts             *Options
	logger           *slog.Logger
	cacheManager     CacheManager
	processorFactory ProcessorFactory
	walkerFactory    WalkerFactory
	processor        *FileProcessor
	walker           *Walker
	aggregator       *reportAggregator
	ctx              context.Context
	cancelFunc       context.CancelFunc
	concurrency      int
	totalScanned     atomic.Int64
	fatalOccurred    atomic.Bool
}

// NewEngine validates the options, resolves collaborator defaults, and
// prepares an Engine. The options are copied; later mutation by the caller has
// no effect on the run.
func NewEngine(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Logger == nil {
		return nil, fmt.Errorf("%w: Logger (slog.Handler) must not be nil", ErrConfigValidation)
	}
	if opts.EventHooks == nil {
		opts.EventHooks = &NoOpHooks{}
	}

	logger := slog.New(opts.Logger).With(slog.String("component", "engine"))

	if opts.InputPath == "" {
		return nil, fmt.Errorf("%w: input path must not be empty", ErrConfigValidation)
	}
	inputInfo, err := os.Stat(opts.InputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot access input path %q: %w", ErrConfigValidation, opts.InputPath, err)
	}
	if !inputInfo.IsDir() {
		return nil, fmt.Errorf("%w: input path %q is not a directory", ErrConfigValidation, opts.InputPath)
	}
	if opts.OutputPath == "" {
		return nil, fmt.Errorf("%w: output path must not be empty", ErrConfigValidation)
	}
	if err := os.MkdirAll(opts.OutputPath, 0o755); err != nil {
		return nil, fmt.Errorf("%w: cannot create output directory %q: %w", ErrConfigValidation, opts.OutputPath, err)
	}

	if opts.LargeFileThreshold <= 0 && opts.LargeFileThresholdMB > 0 {
		opts.LargeFileThreshold = opts.LargeFileThresholdMB * 1024 * 1024
	}

	if opts.CacheEnabled && opts.CacheFilePath == "" {
		opts.CacheFilePath = filepath.Join(opts.OutputPath, CacheFileName)
		logger.Debug("Cache file path not set, defaulting", slog.String("path", opts.CacheFilePath))
	}
	if opts.ClearCache && opts.CacheFilePath != "" {
		if removeErr := os.Remove(opts.CacheFilePath); removeErr == nil {
			logger.Info("Cache file removed", slog.String("path", opts.CacheFilePath))
		} else if !errors.Is(removeErr, os.ErrNotExist) {
			logger.Warn("Failed to remove cache file", slog.String("path", opts.CacheFilePath), slog.String("error", removeErr.Error()))
		}
	}

	// The cache package depends on this one, so the engine never constructs a
	// file-backed manager itself; callers inject one (the CLI does) or caching
	// stays off.
	var cacheMgr CacheManager = &NoOpCacheManager{}
	if !opts.CacheEnabled {
		logger.Debug("Cache disabled, using no-op cache manager")
	} else if opts.CacheManager == nil {
		logger.Warn("Cache enabled but no CacheManager provided, caching disabled for this run")
		opts.CacheEnabled = false
	} else {
		cacheMgr = opts.CacheManager
		if loadErr := cacheMgr.Load(opts.CacheFilePath); loadErr != nil {
			// Load treats missing or corrupt files as an empty index, so an
			// error here means the file itself was inaccessible.
			logger.Warn("Cache file could not be loaded, every file will be a cache miss",
				slog.String("path", opts.CacheFilePath), slog.String("error", loadErr.Error()))
		} else {
			logger.Debug("Cache index loaded", slog.String("path", opts.CacheFilePath))
		}
	}
	opts.CacheManager = cacheMgr

	if opts.LanguageDetector == nil {
		opts.LanguageDetector = language.NewGoEnryDetector(opts.LanguageDetectionConfidenceThreshold, opts.LanguageMappingsOverride)
	}
	if opts.EncodingHandler == nil {
		opts.EncodingHandler = encoding.NewGoCharsetEncodingHandler(opts.DefaultEncoding)
	}
	if opts.TemplateExecutor == nil {
		opts.TemplateExecutor = tpl.NewGoTemplateExecutor()
	}
	if opts.GitMetadataEnabled && opts.GitMetadataProvider == nil {
		logger.Warn("Git metadata enabled but no provider configured, disabling for this run")
		opts.GitMetadataEnabled = false
	}

	anyPluginsEnabled := false
	for _, p := range opts.PluginConfigs {
		if p.Enabled {
			anyPluginsEnabled = true
			break
		}
	}
	if anyPluginsEnabled && opts.PluginRunner == nil {
		return nil, fmt.Errorf("%w: PluginRunner required when plugins are enabled", ErrConfigValidation)
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
		opts.Concurrency = concurrency
		logger.Debug("Concurrency auto-detected", slog.Int("count", concurrency))
	}

	processorFactory := opts.ProcessorFactory
	if processorFactory == nil {
		processorFactory = NewFileProcessor
	}
	walkerFactory := opts.WalkerFactory
	if walkerFactory == nil {
		walkerFactory = NewWalker
	}

	engineCtx, cancelFunc := context.WithCancel(ctx)

	return &Engine{
		opts:             &opts,
		logger:           logger,
		cacheManager:     cacheMgr,
		processorFactory: processorFactory,
		walkerFactory:    walkerFactory,
		aggregator:       newReportAggregator(),
		ctx:              engineCtx,
		cancelFunc:       cancelFunc,
		concurrency:      concurrency,
	}, nil
}

// Run executes the generation and blocks until the walk, every worker, and
// result aggregation have finished or the context is cancelled. The cache is
// persisted and OnRunComplete fires even when the run fails partway.
func (e *Engine) Run() (report Report, runErr error) {
	startTime := time.Now()
	runID := uuid.NewString()
	e.logger.Info("Starting styleguide generation run",
		slog.String("runId", runID),
		slog.String("input", e.opts.InputPath),
		slog.String("output", e.opts.OutputPath),
		slog.Int("concurrency", e.concurrency),
		slog.Bool("cacheEnabled", e.opts.CacheEnabled),
	)

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Panic recovered during engine run", slog.Any("panicValue", r))
			e.fatalOccurred.Store(true)
			if runErr == nil {
				runErr = fmt.Errorf("panic during styleguide generation: %v", r)
			}
		}

		e.cancelFunc()

		if e.opts.CacheEnabled {
			if persistErr := e.cacheManager.Persist(e.opts.CacheFilePath); persistErr != nil {
				e.logger.Error("Failed to persist cache index", slog.String("path", e.opts.CacheFilePath), slog.String("error", persistErr.Error()))
				if runErr == nil {
					runErr = fmt.Errorf("persist cache index: %w", persistErr)
				}
			} else {
				e.logger.Debug("Cache index persisted", slog.String("path", e.opts.CacheFilePath))
			}
		}

		report = e.aggregator.getReport(e.opts, runID, startTime, e.totalScanned.Load(), e.fatalOccurred.Load())
		e.logger.Info("Styleguide generation run finished",
			slog.Duration("duration", time.Since(startTime)),
			slog.Int("processed", report.Summary.ProcessedCount),
			slog.Int("cached", report.Summary.CachedCount),
			slog.Int("skipped", report.Summary.SkippedCount),
			slog.Int("errors", report.Summary.ErrorCount),
			slog.Int("sections", report.Summary.SectionCount),
			slog.Bool("fatal", report.Summary.FatalErrorOccurred),
		)

		if hookErr := e.opts.EventHooks.OnRunComplete(report); hookErr != nil {
			e.logger.Warn("OnRunComplete hook returned an error", slog.String("error", hookErr.Error()))
		}
	}()

	e.processor = e.processorFactory(
		e.opts, e.opts.Logger, e.cacheManager, e.opts.LanguageDetector,
		e.opts.EncodingHandler, e.opts.GitMetadataProvider,
		e.opts.PluginRunner, e.opts.TemplateExecutor,
	)

	workerChan := make(chan string, e.concurrency)
	resultsChan := make(chan interface{}, e.concurrency)
	var wg sync.WaitGroup

	e.startWorkers(&wg, workerChan, resultsChan)

	aggregatorDone := make(chan struct{})
	go e.aggregateResults(resultsChan, aggregatorDone)

	walker, walkInitErr := e.walkerFactory(e.opts, workerChan, e.opts.Logger)
	if walkInitErr != nil {
		e.logger.Error("Failed to initialize directory walker", slog.String("error", walkInitErr.Error()))
		e.fatalOccurred.Store(true)
		close(workerChan)
		wg.Wait()
		close(resultsChan)
		<-aggregatorDone
		runErr = fmt.Errorf("walker initialization failed: %w", walkInitErr)
		return report, runErr
	}
	e.walker = walker

	// The walker closes workerChan when the traversal ends, which in turn
	// shuts the workers down once the queue drains.
	walkerDone := make(chan error, 1)
	go func() {
		defer close(walkerDone)
		walkErr := e.walker.StartWalk(e.ctx)
		if walkErr != nil && !errors.Is(walkErr, context.Canceled) && !errors.Is(walkErr, context.DeadlineExceeded) {
			walkerDone <- walkErr
			if !e.fatalOccurred.Load() {
				e.fatalOccurred.Store(true)
				e.cancelFunc()
			}
		}
	}()

	finalWalkErr := <-walkerDone
	wg.Wait()
	close(resultsChan)
	<-aggregatorDone

	switch {
	case finalWalkErr != nil:
		runErr = fmt.Errorf("directory walk failed: %w", finalWalkErr)
	case e.fatalOccurred.Load():
		if firstFatal := e.aggregator.getFirstFatalError(); firstFatal != nil {
			runErr = fmt.Errorf("processing stopped: %w", firstFatal)
		} else if ctxErr := e.ctx.Err(); ctxErr != nil {
			runErr = ctxErr
		} else {
			runErr = errors.New("processing stopped due to a fatal error")
		}
	case e.ctx.Err() != nil:
		e.logger.Info("Run cancelled", slog.String("reason", e.ctx.Err().Error()))
		e.fatalOccurred.Store(true)
		runErr = e.ctx.Err()
	}

	if runErr == nil {
		if indexErr := e.writeIndex(); indexErr != nil {
			e.logger.Error("Failed to write styleguide index", slog.String("error", indexErr.Error()))
			runErr = indexErr
		}
	}

	return report, runErr
}

// startWorkers launches the worker pool reading from workerChan.
func (e *Engine) startWorkers(wg *sync.WaitGroup, workerChan <-chan string, resultsChan chan<- interface{}) {
	e.logger.Debug("Starting worker pool", slog.Int("count", e.concurrency))
	for i := 0; i < e.concurrency; i++ {
		wg.Add(1)
		go e.processFilesWorker(wg, i, workerChan, resultsChan)
	}
}

// processFilesWorker consumes file paths until the channel closes or the run
// is cancelled. A panic in the processor is contained to the file that caused
// it and reported as a fatal error.
func (e *Engine) processFilesWorker(wg *sync.WaitGroup, workerID int, workerChan <-chan string, resultsChan chan<- interface{}) {
	wLogger := e.logger.With(slog.Int("workerID", workerID))
	currentPath := "unknown"

	defer func() {
		if r := recover(); r != nil {
			wLogger.Error("Panic recovered in worker", slog.Any("panicValue", r), slog.String("path", currentPath))
			resultsChan <- ErrorInfo{Path: currentPath, Error: fmt.Sprintf("panic: %v", r), IsFatal: true}
			if !e.fatalOccurred.Load() {
				e.fatalOccurred.Store(true)
				e.cancelFunc()
			}
		}
		wg.Done()
	}()

	wLogger.Debug("Worker started")
	for {
		select {
		case absPath, ok := <-workerChan:
			if !ok {
				wLogger.Debug("Worker shutting down, channel closed")
				return
			}
			currentPath = workerRelPath(e.opts.InputPath, absPath)
			e.handleFile(wLogger, absPath, currentPath, resultsChan)
		case <-e.ctx.Done():
			wLogger.Debug("Worker shutting down, context cancelled")
			return
		}
	}
}

// handleFile runs one file through the processor, forwards the result to the
// aggregator, and surrounds the work with status hook updates.
func (e *Engine) handleFile(wLogger *slog.Logger, absPath, relPath string, resultsChan chan<- interface{}) {
	if hookErr := e.opts.EventHooks.OnFileStatusUpdate(relPath, StatusProcessing, "", 0); hookErr != nil {
		wLogger.Warn("Event hook OnFileStatusUpdate (processing) failed", slog.String("path", relPath), slog.String("error", hookErr.Error()))
	}

	procStart := time.Now()
	result, status, procErr := e.processor.ProcessFile(e.ctx, absPath)
	elapsed := time.Since(procStart)

	var message string
	switch r := result.(type) {
	case FileInfo:
		resultsChan <- r
	case SkippedInfo:
		message = r.Details
		resultsChan <- r
	case ErrorInfo:
		message = r.Error
		resultsChan <- r
		if r.IsFatal && !e.fatalOccurred.Load() {
			wLogger.Info("Fatal error reported, stopping run", slog.String("path", relPath), slog.String("error", r.Error))
			e.fatalOccurred.Store(true)
			e.cancelFunc()
		}
	default:
		// A substituted processor may return a type the aggregator cannot
		// classify; surface it as a per-file error rather than dropping it.
		errMsg := fmt.Sprintf("internal error: processor returned %T without error", result)
		if procErr != nil {
			errMsg = procErr.Error()
		}
		isFatal := e.opts.OnErrorMode == OnErrorStop
		status = StatusFailed
		message = errMsg
		resultsChan <- ErrorInfo{Path: relPath, Error: errMsg, IsFatal: isFatal}
		if isFatal && !e.fatalOccurred.Load() {
			e.fatalOccurred.Store(true)
			e.cancelFunc()
		}
	}

	if hookErr := e.opts.EventHooks.OnFileStatusUpdate(relPath, status, message, elapsed); hookErr != nil {
		wLogger.Warn("Event hook OnFileStatusUpdate failed", slog.String("path", relPath), slog.String("error", hookErr.Error()))
	}
}

// workerRelPath converts an absolute dispatched path back to the slashed
// input-relative form used in hooks and reports.
func workerRelPath(inputPath, absPath string) string {
	relPath, err := filepath.Rel(inputPath, absPath)
	if err != nil || relPath == "" || relPath == "." {
		relPath = filepath.Base(absPath)
	}
	return filepath.ToSlash(relPath)
}

// aggregateResults drains resultsChan into the report aggregator and records
// the total number of results received.
func (e *Engine) aggregateResults(resultsChan <-chan interface{}, done chan<- struct{}) {
	defer close(done)
	e.logger.Debug("Result aggregator started")
	scanned := int64(0)
	for result := range resultsChan {
		scanned++
		switch r := result.(type) {
		case FileInfo:
			e.aggregator.addProcessed(r)
		case SkippedInfo:
			e.aggregator.addSkipped(r)
		case ErrorInfo:
			e.aggregator.addError(r)
		default:
			e.logger.Warn("Aggregator received unknown result type", slog.String("type", fmt.Sprintf("%T", result)))
		}
	}
	e.totalScanned.Store(scanned)
	e.logger.Debug("Result aggregator finished", slog.Int64("results", scanned))
}

// writeIndex renders the overview page linking every section produced by the
// run, including sections replayed from cache hits.
func (e *Engine) writeIndex() error {
	fileCount, entries := e.aggregator.indexEntries()
	slices.SortFunc(entries, func(a, b tpl.IndexEntry) int {
		if c := CompareReferences(a.Reference, b.Reference); c != 0 {
			return c
		}
		return strings.Compare(a.Page, b.Page)
	})

	indexTmpl, err := tpl.LoadIndexTemplate()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTemplateExecution, err)
	}
	var buf bytes.Buffer
	meta := &tpl.IndexMetadata{
		InputPath:    e.opts.InputPath,
		GeneratedAt:  time.Now().UTC(),
		AppVersion:   e.opts.AppVersion,
		FileCount:    fileCount,
		SectionCount: len(entries),
		Entries:      entries,
	}
	if err := e.opts.TemplateExecutor.Execute(&buf, indexTmpl, meta); err != nil {
		return fmt.Errorf("%w: overview index: %w", ErrTemplateExecution, err)
	}

	indexPath := filepath.Join(e.opts.OutputPath, IndexFileName)
	if err := atomicWriteFile(indexPath, buf.Bytes()); err != nil {
		return fmt.Errorf("%w: overview index %q: %w", ErrWriteFailed, indexPath, err)
	}
	e.logger.Info("Styleguide index written", slog.String("path", indexPath), slog.Int("sections", len(entries)))
	return nil
}

// --- reportAggregator ---

// reportAggregator collects per-file results across workers.
type reportAggregator struct {
	mu             sync.Mutex
	processedFiles []FileInfo
	skippedFiles   []SkippedInfo
	errors         []ErrorInfo
	cachedCount    int
}

func newReportAggregator() *reportAggregator {
	return &reportAggregator{
		processedFiles: make([]FileInfo, 0, 256),
		skippedFiles:   make([]SkippedInfo, 0, 64),
		errors:         make([]ErrorInfo, 0, 16),
	}
}

func (a *reportAggregator) addProcessed(info FileInfo) {
	a.mu.Lock()
	a.processedFiles = append(a.processedFiles, info)
	if info.CacheStatus == CacheStatusHit {
		a.cachedCount++
	}
	a.mu.Unlock()
}

func (a *reportAggregator) addSkipped(info SkippedInfo) {
	a.mu.Lock()
	a.skippedFiles = append(a.skippedFiles, info)
	a.mu.Unlock()
}

func (a *reportAggregator) addError(info ErrorInfo) {
	a.mu.Lock()
	a.errors = append(a.errors, info)
	a.mu.Unlock()
}

// getFirstFatalError returns the earliest error flagged fatal, in arrival
// order, or nil when none was recorded.
func (a *reportAggregator) getFirstFatalError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, ei := range a.errors {
		if ei.IsFatal {
			return fmt.Errorf("fatal error processing %q: %s", ei.Path, ei.Error)
		}
	}
	return nil
}

// indexEntries flattens every processed file's sections into index rows. The
// page count comes back alongside so the caller can report files and sections
// from one snapshot.
func (a *reportAggregator) indexEntries() (int, []tpl.IndexEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entries := make([]tpl.IndexEntry, 0, len(a.processedFiles)*2)
	for _, fi := range a.processedFiles {
		for _, s := range fi.Sections {
			entries = append(entries, tpl.IndexEntry{
				Reference:   s.Reference,
				Description: s.Description,
				Page:        fi.OutputPath,
			})
		}
	}
	return len(a.processedFiles), entries
}

// getReport compiles the final Report from a locked snapshot. Detail lists are
// sorted by path so runs over the same tree produce comparable reports no
// matter how workers interleaved.
func (a *reportAggregator) getReport(opts *Options, runID string, startTime time.Time, totalScanned int64, fatalOccurred bool) Report {
	a.mu.Lock()
	processed := make([]FileInfo, len(a.processedFiles))
	copy(processed, a.processedFiles)
	skipped := make([]SkippedInfo, len(a.skippedFiles))
	copy(skipped, a.skippedFiles)
	errorsList := make([]ErrorInfo, len(a.errors))
	copy(errorsList, a.errors)
	cachedCount := a.cachedCount
	a.mu.Unlock()

	slices.SortFunc(processed, func(x, y FileInfo) int { return strings.Compare(x.Path, y.Path) })
	slices.SortFunc(skipped, func(x, y SkippedInfo) int { return strings.Compare(x.Path, y.Path) })
	slices.SortFunc(errorsList, func(x, y ErrorInfo) int { return strings.Compare(x.Path, y.Path) })

	sectionCount := 0
	for _, fi := range processed {
		sectionCount += len(fi.Sections)
	}

	return Report{
		Summary: ReportSummary{
			RunID:              runID,
			InputPath:          opts.InputPath,
			OutputPath:         opts.OutputPath,
			ProfileUsed:        opts.ProfileName,
			ConfigFilePath:     opts.ConfigFilePath,
			TotalFilesScanned:  int(totalScanned),
			ProcessedCount:     len(processed),
			CachedCount:        cachedCount,
			SkippedCount:       len(skipped),
			ErrorCount:         len(errorsList),
			SectionCount:       sectionCount,
			FatalErrorOccurred: fatalOccurred,
			DurationSeconds:    time.Since(startTime).Seconds(),
			CacheEnabled:       opts.CacheEnabled,
			Concurrency:        opts.Concurrency,
			Timestamp:          time.Now().UTC(),
			SchemaVersion:      ReportSchemaVersion,
		},
		ProcessedFiles: processed,
		SkippedFiles:   skipped,
		Errors:         errorsList,
	}
}
