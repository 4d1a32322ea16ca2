package kss

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/onehub/kss/pkg/kss/comment"
	"github.com/onehub/kss/pkg/kss/encoding"
	"github.com/onehub/kss/pkg/kss/language"
	tpl "github.com/onehub/kss/pkg/kss/template"
)

// FileProcessor runs the full pipeline for a single stylesheet file: size and
// binary guards, encoding conversion, the cache check, comment extraction,
// section parsing, plugin stages, page rendering, and the final write.
//
// One FileProcessor is shared by all workers of a run; it holds no per-file
// state and its methods are safe for concurrent use as long as the injected
// collaborators are.
type FileProcessor struct {
	opts             *Options
	logger           *slog.Logger
	cacheManager     CacheManager
	langDetector     language.LanguageDetector
	encodingHandler  encoding.EncodingHandler
	gitProvider      GitMetadataProvider
	pluginRunner     PluginRunner
	templateExecutor tpl.TemplateExecutor
	configHash       string
}

// NewFileProcessor creates a processor bound to one generation run. Nil
// collaborators fall back to the default implementations, except the git
// provider and plugin runner, which stay optional and are guarded at use.
// The configuration hash used for cache validation is computed once here.
func NewFileProcessor(
	opts *Options,
	loggerHandler slog.Handler,
	cacheManager CacheManager,
	langDetector language.LanguageDetector,
	encodingHandler encoding.EncodingHandler,
	gitProvider GitMetadataProvider,
	pluginRunner PluginRunner,
	templateExecutor tpl.TemplateExecutor,
) *FileProcessor {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	logger := slog.New(loggerHandler).With(slog.String("component", "processor"))

	if cacheManager == nil {
		cacheManager = &NoOpCacheManager{}
	}
	if langDetector == nil {
		langDetector = language.NewGoEnryDetector(opts.LanguageDetectionConfidenceThreshold, opts.LanguageMappingsOverride)
	}
	if encodingHandler == nil {
		encodingHandler = encoding.NewGoCharsetEncodingHandler(opts.DefaultEncoding)
	}
	if templateExecutor == nil {
		templateExecutor = tpl.NewGoTemplateExecutor()
	}

	p := &FileProcessor{
		opts:             opts,
		logger:           logger,
		cacheManager:     cacheManager,
		langDetector:     langDetector,
		encodingHandler:  encodingHandler,
		gitProvider:      gitProvider,
		pluginRunner:     pluginRunner,
		templateExecutor: templateExecutor,
	}
	if opts.CacheEnabled {
		p.configHash = calculateConfigHash(opts, logger)
		logger.Debug("Calculated config hash", slog.String("hash", p.configHash))
	}
	return p
}

// ProcessFile processes one file identified by its absolute path. The result
// is a FileInfo for processed and cached files, a SkippedInfo for files the
// guards excluded, or an ErrorInfo describing the failure; status tells the
// three apart. err is non-nil only for failures and matches one of the
// package sentinels via errors.Is.
func (p *FileProcessor) ProcessFile(ctx context.Context, absFilePath string) (result interface{}, status Status, err error) {
	startTime := time.Now()
	status = StatusProcessing

	relPath, relErr := filepath.Rel(p.opts.InputPath, absFilePath)
	if relErr != nil {
		return p.fail(absFilePath, fmt.Errorf("%w: calculating relative path for %q: %w", ErrConfigValidation, absFilePath, relErr))
	}
	relPath = filepath.ToSlash(relPath)

	logArgs := []any{slog.String("path", relPath)}
	p.logger.Debug("Processing file", logArgs...)

	defer func() {
		level := slog.LevelDebug
		if status == StatusFailed {
			level = slog.LevelError
		}
		finishArgs := append(logArgs,
			slog.String("status", string(status)),
			slog.Duration("duration", time.Since(startTime)))
		if err != nil {
			finishArgs = append(finishArgs, slog.String("error", err.Error()))
		}
		p.logger.Log(ctx, level, "File processing finished", finishArgs...)
	}()

	select {
	case <-ctx.Done():
		return p.fail(relPath, ctx.Err())
	default:
	}

	fileStat, statErr := os.Stat(absFilePath)
	if statErr != nil {
		return p.fail(relPath, fmt.Errorf("%w: %w", ErrStatFailed, statErr))
	}
	modTime := fileStat.ModTime()
	fileSize := fileStat.Size()

	if p.opts.LargeFileThreshold > 0 && fileSize > p.opts.LargeFileThreshold {
		if p.opts.LargeFileMode == LargeFileError {
			return p.fail(relPath, fmt.Errorf("%w: size %d bytes exceeds threshold %d bytes", ErrLargeFile, fileSize, p.opts.LargeFileThreshold))
		}
		return p.skip(relPath, SkipReasonLarge,
			fmt.Sprintf("File size %d bytes exceeds threshold %d bytes", fileSize, p.opts.LargeFileThreshold), logArgs)
	}

	sourceBytes, readErr := os.ReadFile(absFilePath)
	if readErr != nil {
		return p.fail(relPath, fmt.Errorf("%w: %w", ErrReadFailed, readErr))
	}

	if p.encodingHandler.IsBinary(sourceBytes) {
		if p.opts.BinaryMode == BinaryError {
			return p.fail(relPath, fmt.Errorf("%w: %s", ErrBinaryFile, relPath))
		}
		return p.skip(relPath, SkipReasonBinary, "Binary content detected", logArgs)
	}

	utf8Bytes, detectedEncoding, _, encErr := p.encodingHandler.DetectAndDecode(sourceBytes)
	if encErr != nil {
		p.logger.Warn("Encoding conversion failed, using raw content",
			append(logArgs, slog.String("encoding", detectedEncoding), slog.String("error", encErr.Error()))...)
	}
	textContent := string(utf8Bytes)

	languageName, confidence, detectErr := p.langDetector.Detect(utf8Bytes, relPath)
	if detectErr != nil {
		p.logger.Warn("Language detection failed", append(logArgs, slog.String("error", detectErr.Error()))...)
		languageName, confidence = "plaintext", 0.0
	}
	logArgs = append(logArgs, slog.String("language", languageName))

	if !p.isStylesheetSource(languageName, relPath) {
		return p.skip(relPath, SkipReasonNotStylesheet,
			fmt.Sprintf("Detected language %q is not a stylesheet dialect", languageName), logArgs)
	}

	currentSourceHash := fmt.Sprintf("%x", sha256.Sum256(sourceBytes))

	cacheStatus := CacheStatusDisabled
	if p.opts.CacheEnabled {
		cacheStatus = CacheStatusMiss
		if !p.opts.IgnoreCacheRead && p.configHash != "" {
			if hit, outputHash, cachedSections := p.cacheManager.Check(relPath, modTime, currentSourceHash, p.configHash); hit {
				p.logger.Debug("Cache hit", append(logArgs, slog.String("outputHash", outputHash))...)
				return FileInfo{
					Path:               relPath,
					OutputPath:         generateOutputPath(relPath),
					Language:           languageName,
					LanguageConfidence: confidence,
					SizeBytes:          fileSize,
					ModTime:            modTime,
					CacheStatus:        CacheStatusHit,
					DurationMs:         time.Since(startTime).Milliseconds(),
					Sections:           cachedSections,
				}, StatusCached, nil
			}
			p.logger.Debug("Cache miss", logArgs...)
		}
	}

	metadataMap := baseMetadataMap(relPath, languageName, confidence, fileSize, modTime, currentSourceHash, detectedEncoding)

	// Preprocessors rewrite the stylesheet text before comment extraction, so
	// generated or transpiled comments are visible to the parser.
	var pluginsRun []string
	textContent, err = p.runContentPlugins(ctx, PluginStagePreprocessor, relPath, textContent, nil, metadataMap, &pluginsRun)
	if err != nil {
		return p.fail(relPath, err)
	}

	parser := comment.NewParser(comment.TextSource(textContent), comment.Config{PreserveWhitespace: p.opts.PreserveWhitespace})
	blocks, parseErr := parser.Blocks()
	if parseErr != nil {
		return p.fail(relPath, fmt.Errorf("%w: %w", ErrCommentExtraction, parseErr))
	}

	var sections []Section
	for _, block := range blocks {
		if IsStyleguideBlock(block) {
			sections = append(sections, NewSection(block, relPath))
		}
	}
	if len(sections) == 0 {
		return p.skip(relPath, SkipReasonNoSections,
			fmt.Sprintf("No styleguide sections among %d comment blocks", len(blocks)), logArgs)
	}
	summaries := sectionSummaries(sections)
	metadataMap["SectionCount"] = len(sections)
	logArgs = append(logArgs, slog.Int("sections", len(sections)))

	var gitInfo *tpl.GitInfo
	if p.opts.GitMetadataEnabled && p.gitProvider != nil {
		gitMap, gitErr := p.gitProvider.GetFileMetadata(p.opts.InputPath, absFilePath)
		if gitErr != nil {
			p.logger.Warn("Git metadata lookup failed, continuing without it",
				append(logArgs, slog.String("error", gitErr.Error()))...)
		} else if len(gitMap) > 0 {
			gitInfo = &tpl.GitInfo{
				Commit:      gitMap["commit"],
				Author:      gitMap["author"],
				AuthorEmail: gitMap["authorEmail"],
				DateISO:     gitMap["dateISO"],
			}
			metadataMap["GitCommit"] = gitInfo.Commit
			metadataMap["GitAuthor"] = gitInfo.Author
			metadataMap["GitAuthorEmail"] = gitInfo.AuthorEmail
			metadataMap["GitDateISO"] = gitInfo.DateISO
		}
	}

	metadata := tpl.TemplateMetadata{
		FilePath:           relPath,
		FileName:           path.Base(relPath),
		OutputPath:         generateOutputPath(relPath),
		Content:            textContent,
		DetectedLanguage:   languageName,
		LanguageConfidence: confidence,
		SizeBytes:          fileSize,
		ModTime:            modTime,
		ContentHash:        currentSourceHash,
		Sections:           sectionDataList(sections),
		GitInfo:            gitInfo,
		FrontMatter:        map[string]interface{}{},
	}

	// A formatter plugin replaces the whole rendering stage: its output is
	// written verbatim, without front matter or postprocessors.
	var finalContent string
	formatted := false
	for _, cfg := range p.opts.PluginConfigs {
		if !cfg.Enabled || cfg.Stage != PluginStageFormatter || !pluginApplies(cfg, relPath) {
			continue
		}
		if p.pluginRunner == nil {
			return p.fail(relPath, fmt.Errorf("%w: plugin %q enabled but no PluginRunner provided", ErrConfigValidation, cfg.Name))
		}
		output, runErr := p.pluginRunner.Run(ctx, PluginStageFormatter, cfg, PluginInput{
			SchemaVersion: PluginSchemaVersion,
			Stage:         PluginStageFormatter,
			FilePath:      relPath,
			Content:       textContent,
			Sections:      summaries,
			Metadata:      metadataMap,
			Config:        cfg.Config,
		})
		if runErr != nil {
			return p.fail(relPath, fmt.Errorf("formatter plugin %q: %w", cfg.Name, runErr))
		}
		pluginsRun = append(pluginsRun, cfg.Name)
		if output.Output == "" {
			p.logger.Warn("Formatter plugin produced no output, trying next formatter",
				append(logArgs, slog.String("plugin", cfg.Name))...)
			continue
		}
		finalContent = output.Output
		formatted = true
		break
	}

	hasFrontMatter := false
	if !formatted {
		frontMatterBlock := ""
		if p.opts.FrontMatterConfig.Enabled {
			fmData := buildFrontMatterData(p.opts.FrontMatterConfig, metadataMap)
			if len(fmData) > 0 {
				fmBytes, fmErr := generateFrontMatter(fmData, p.opts.FrontMatterConfig.Format)
				if fmErr != nil {
					return p.fail(relPath, fmt.Errorf("%w: %w", ErrFrontMatterGen, fmErr))
				}
				frontMatterBlock = string(fmBytes)
				hasFrontMatter = true
				metadata.FrontMatter = fmData
			}
		}

		var rendered bytes.Buffer
		if tplErr := p.templateExecutor.Execute(&rendered, p.opts.Template, &metadata); tplErr != nil {
			return p.fail(relPath, fmt.Errorf("%w: %w", ErrTemplateExecution, tplErr))
		}

		outputContent, postErr := p.runContentPlugins(ctx, PluginStagePostprocessor, relPath, rendered.String(), summaries, metadataMap, &pluginsRun)
		if postErr != nil {
			return p.fail(relPath, postErr)
		}
		finalContent = frontMatterBlock + outputContent
	}

	outputRelPath := metadata.OutputPath
	absOutputPath := filepath.Join(p.opts.OutputPath, filepath.FromSlash(outputRelPath))
	if mkdirErr := os.MkdirAll(filepath.Dir(absOutputPath), 0o755); mkdirErr != nil {
		return p.fail(relPath, fmt.Errorf("%w: %w", ErrMkdirFailed, mkdirErr))
	}
	outputBytes := []byte(finalContent)
	if writeErr := atomicWriteFile(absOutputPath, outputBytes); writeErr != nil {
		return p.fail(relPath, fmt.Errorf("%w: %w", ErrWriteFailed, writeErr))
	}
	outputHash := fmt.Sprintf("%x", sha256.Sum256(outputBytes))

	if p.opts.CacheEnabled && p.configHash != "" {
		if updateErr := p.cacheManager.Update(relPath, modTime, currentSourceHash, p.configHash, outputHash, summaries); updateErr != nil {
			p.logger.Warn("Cache update failed", append(logArgs, slog.String("error", updateErr.Error()))...)
		}
	}

	return FileInfo{
		Path:               relPath,
		OutputPath:         outputRelPath,
		Language:           languageName,
		LanguageConfidence: confidence,
		SizeBytes:          fileSize,
		ModTime:            modTime,
		CacheStatus:        cacheStatus,
		DurationMs:         time.Since(startTime).Milliseconds(),
		Sections:           summaries,
		FrontMatter:        hasFrontMatter,
		PluginsRun:         pluginsRun,
	}, StatusSuccess, nil
}

// fail builds the error triple for a failed file. Fatality follows the
// configured OnErrorMode; context cancellation and configuration errors are
// always fatal.
func (p *FileProcessor) fail(relPath string, failErr error) (interface{}, Status, error) {
	isFatal := p.opts.OnErrorMode == OnErrorStop ||
		errors.Is(failErr, ErrConfigValidation) ||
		errors.Is(failErr, context.Canceled) ||
		errors.Is(failErr, context.DeadlineExceeded)
	return ErrorInfo{Path: relPath, Error: failErr.Error(), IsFatal: isFatal}, StatusFailed, failErr
}

// skip builds the result triple for a file excluded by one of the guards.
func (p *FileProcessor) skip(relPath, reason, details string, logArgs []any) (interface{}, Status, error) {
	p.logger.Info("Skipping file", append(logArgs, slog.String("reason", reason), slog.String("details", details))...)
	return SkippedInfo{Path: relPath, Reason: reason, Details: details}, StatusSkipped, nil
}

// runContentPlugins executes the enabled plugins of a content-rewriting stage
// in declared order, feeding each plugin's content output to the next.
// Metadata returned by plugins is merged into metadataMap.
func (p *FileProcessor) runContentPlugins(ctx context.Context, stage, relPath, content string, summaries []SectionSummary, metadataMap map[string]interface{}, pluginsRun *[]string) (string, error) {
	for _, cfg := range p.opts.PluginConfigs {
		if !cfg.Enabled || cfg.Stage != stage || !pluginApplies(cfg, relPath) {
			continue
		}
		if p.pluginRunner == nil {
			return "", fmt.Errorf("%w: plugin %q enabled but no PluginRunner provided", ErrConfigValidation, cfg.Name)
		}
		output, runErr := p.pluginRunner.Run(ctx, stage, cfg, PluginInput{
			SchemaVersion: PluginSchemaVersion,
			Stage:         stage,
			FilePath:      relPath,
			Content:       content,
			Sections:      summaries,
			Metadata:      metadataMap,
			Config:        cfg.Config,
		})
		if runErr != nil {
			return "", fmt.Errorf("%s plugin %q: %w", stage, cfg.Name, runErr)
		}
		*pluginsRun = append(*pluginsRun, cfg.Name)
		if output.Content != "" {
			content = output.Content
		}
		mergePluginMetadata(metadataMap, output.Metadata)
	}
	return content, nil
}

// isStylesheetSource reports whether a file should be treated as stylesheet
// input: either the detected language is a stylesheet dialect, or the file
// extension appears in the configured extension list.
func (p *FileProcessor) isStylesheetSource(languageName, relPath string) bool {
	if language.IsStylesheet(languageName) {
		return true
	}
	ext := strings.ToLower(path.Ext(relPath))
	for _, allowed := range p.opts.StylesheetExtensions {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == "" {
			continue
		}
		if !strings.HasPrefix(allowed, ".") {
			allowed = "." + allowed
		}
		if ext == allowed {
			return true
		}
	}
	return false
}

// sectionSummaries projects parsed sections onto the lightweight form carried
// through the cache and the report.
func sectionSummaries(sections []Section) []SectionSummary {
	summaries := make([]SectionSummary, 0, len(sections))
	for _, s := range sections {
		summaries = append(summaries, SectionSummary{
			Reference:   s.Reference(),
			Description: summaryDescription(s.Description()),
		})
	}
	return summaries
}

// summaryDescription reduces a section description to its first line, so
// cache entries and overview index table cells stay single-line.
func summaryDescription(description string) string {
	if i := strings.IndexByte(description, '\n'); i >= 0 {
		description = description[:i]
	}
	return strings.TrimSpace(description)
}

// sectionDataList converts parsed sections into the template-facing form.
func sectionDataList(sections []Section) []tpl.SectionData {
	data := make([]tpl.SectionData, 0, len(sections))
	for _, s := range sections {
		modifiers := s.Modifiers()
		modifierData := make([]tpl.ModifierData, 0, len(modifiers))
		for _, m := range modifiers {
			modifierData = append(modifierData, tpl.ModifierData{
				Name:        m.Name,
				ClassName:   m.ClassName(),
				Description: m.Description,
			})
		}
		data = append(data, tpl.SectionData{
			Reference:   s.Reference(),
			Description: s.Description(),
			Markup:      s.Markup(),
			Modifiers:   modifierData,
		})
	}
	return data
}

// baseMetadataMap assembles the metadata exposed to plugins and available to
// front matter includes. The raw stylesheet content is deliberately not part
// of the map; plugins receive it through the content field instead.
func baseMetadataMap(relPath, languageName string, confidence float64, fileSize int64, modTime time.Time, contentHash, detectedEncoding string) map[string]interface{} {
	return map[string]interface{}{
		"FilePath":           relPath,
		"FileName":           path.Base(relPath),
		"OutputPath":         generateOutputPath(relPath),
		"DetectedLanguage":   languageName,
		"LanguageConfidence": confidence,
		"SizeBytes":          fileSize,
		"ModTime":            modTime.UTC().Format(time.RFC3339),
		"ContentHash":        contentHash,
		"DetectedEncoding":   detectedEncoding,
	}
}

// mergePluginMetadata folds metadata returned by a plugin into the shared
// map, overwriting existing keys.
func mergePluginMetadata(target, source map[string]interface{}) {
	for key, value := range source {
		target[key] = value
	}
}

// pluginApplies reports whether a plugin's appliesTo patterns match the file.
// An empty list matches every file. Patterns without a slash also match
// against the bare file name, so "*.scss" covers files in subdirectories.
func pluginApplies(cfg PluginConfig, relPath string) bool {
	if len(cfg.AppliesTo) == 0 {
		return true
	}
	base := path.Base(relPath)
	for _, pattern := range cfg.AppliesTo {
		pattern = filepath.ToSlash(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		if matched, _ := path.Match(pattern, relPath); matched {
			return true
		}
		if !strings.Contains(pattern, "/") {
			if matched, _ := path.Match(pattern, base); matched {
				return true
			}
		}
	}
	return false
}

// buildFrontMatterData resolves the front matter fields for one page: static
// fields first, then included metadata fields. Static values win on key
// collisions.
func buildFrontMatterData(cfg FrontMatterOptions, metadataMap map[string]interface{}) map[string]interface{} {
	data := make(map[string]interface{}, len(cfg.Static)+len(cfg.Include))
	for key, value := range cfg.Static {
		data[key] = value
	}
	for _, field := range cfg.Include {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if _, exists := data[field]; exists {
			continue
		}
		if value, ok := metadataMap[field]; ok {
			data[field] = value
		}
	}
	return data
}

// generateFrontMatter marshals the resolved fields in the configured format,
// wrapped in the conventional delimiters and followed by a blank line.
func generateFrontMatter(data map[string]interface{}, format FrontMatterFormat) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FrontMatterYAML, "":
		buf.WriteString("---\n")
		marshalled, err := yaml.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshalling yaml front matter: %w", err)
		}
		buf.Write(marshalled)
		buf.WriteString("---\n\n")
	case FrontMatterTOML:
		buf.WriteString("+++\n")
		if err := toml.NewEncoder(&buf).Encode(data); err != nil {
			return nil, fmt.Errorf("marshalling toml front matter: %w", err)
		}
		buf.WriteString("+++\n\n")
	case FrontMatterJSON:
		marshalled, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshalling json front matter: %w", err)
		}
		buf.Write(marshalled)
		buf.WriteString("\n\n")
	default:
		return nil, fmt.Errorf("unsupported front matter format %q", format)
	}
	return buf.Bytes(), nil
}

// generateOutputPath maps a source path onto its page path by appending the
// markdown extension. The source extension stays in the name so sibling
// stylesheets like button.css and button.scss cannot collide on one page.
func generateOutputPath(relPath string) string {
	if relPath == "" || relPath == "." {
		return ""
	}
	return relPath + ".md"
}

// atomicWriteFile writes data to path via a temporary file in the same
// directory and a rename, so concurrent readers and aborted runs never see a
// half-written page.
func atomicWriteFile(outputPath string, data []byte) error {
	dir, base := filepath.Split(outputPath)
	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	closed := false
	defer func() {
		if !closed {
			tmp.Close()
		}
		os.Remove(tmpName)
	}()
	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	closed = true
	return os.Rename(tmpName, outputPath)
}

// calculateConfigHash produces a stable digest over every option that
// influences rendered output. A changed digest invalidates all cache entries
// from earlier runs.
func calculateConfigHash(opts *Options, logger *slog.Logger) string {
	hasher := sha256.New()
	add := func(key, value string) {
		hasher.Write([]byte(key))
		hasher.Write([]byte{':'})
		hasher.Write([]byte(value))
		hasher.Write([]byte{';'})
	}
	addBool := func(key string, value bool) {
		add(key, strconv.FormatBool(value))
	}

	version := opts.AppVersion
	if version == "" {
		version = "dev"
	}
	add("appVersion", version)

	switch {
	case opts.TemplatePath != "":
		content, err := os.ReadFile(opts.TemplatePath)
		if err != nil {
			logger.Warn("Could not read template file for config hash, hashing its path only",
				slog.String("path", opts.TemplatePath), slog.String("error", err.Error()))
			add("templatePath", opts.TemplatePath)
		} else {
			add("templateContent", fmt.Sprintf("%x", sha256.Sum256(content)))
		}
	case opts.Template != nil:
		add("template", "custom:"+opts.Template.Name())
	default:
		add("template", "embedded-default")
	}

	addBool("preserveWhitespace", opts.PreserveWhitespace)
	add("binaryMode", string(opts.BinaryMode))
	add("largeFileMode", string(opts.LargeFileMode))
	addBool("gitMetadata", opts.GitMetadataEnabled)
	add("defaultEncoding", opts.DefaultEncoding)

	addBool("frontMatterEnabled", opts.FrontMatterConfig.Enabled)
	add("frontMatterFormat", string(opts.FrontMatterConfig.Format))
	staticKeys := make([]string, 0, len(opts.FrontMatterConfig.Static))
	for key := range opts.FrontMatterConfig.Static {
		staticKeys = append(staticKeys, key)
	}
	sort.Strings(staticKeys)
	for _, key := range staticKeys {
		add("frontMatterStatic."+key, fmt.Sprintf("%v", opts.FrontMatterConfig.Static[key]))
	}
	includes := append([]string(nil), opts.FrontMatterConfig.Include...)
	sort.Strings(includes)
	add("frontMatterInclude", strings.Join(includes, ","))

	overrideExts := make([]string, 0, len(opts.LanguageMappingsOverride))
	for ext := range opts.LanguageMappingsOverride {
		overrideExts = append(overrideExts, ext)
	}
	sort.Strings(overrideExts)
	for _, ext := range overrideExts {
		add("languageOverride."+ext, opts.LanguageMappingsOverride[ext])
	}

	// Declared plugin order is significant for the rewriting stages, so the
	// enabled plugins are hashed in that order.
	for _, cfg := range opts.PluginConfigs {
		if !cfg.Enabled {
			continue
		}
		prefix := "plugin." + cfg.Stage + "." + cfg.Name
		add(prefix+".command", strings.Join(cfg.Command, " "))
		add(prefix+".appliesTo", strings.Join(cfg.AppliesTo, ","))
		configKeys := make([]string, 0, len(cfg.Config))
		for key := range cfg.Config {
			configKeys = append(configKeys, key)
		}
		sort.Strings(configKeys)
		for _, key := range configKeys {
			add(prefix+".config."+key, fmt.Sprintf("%v", cfg.Config[key]))
		}
	}

	return fmt.Sprintf("%x", hasher.Sum(nil))
}
