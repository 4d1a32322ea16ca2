package kss_test

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"text/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/onehub/kss/internal/testutil"
	"github.com/onehub/kss/pkg/kss"
)

const buttonsSource = `// A button suitable for any form.
//
// :hover - Highlights the button.
// .primary - The call to action.
//
// Markup:
// <button class="btn {{modifier_class}}">Press</button>
//
// Styleguide 1.1

.btn { color: red; }
`

type processorSuite struct {
	opts      *kss.Options
	cacheMgr  *testutil.MockCacheManager
	gitProv   *testutil.MockGitMetadataProvider
	plugins   *testutil.MockPluginRunner
	inputDir  string
	outputDir string
	logBuf    *strings.Builder
	handler   slog.Handler
}

func newProcessorSuite(t *testing.T) *processorSuite {
	t.Helper()
	s := &processorSuite{
		cacheMgr:  new(testutil.MockCacheManager),
		gitProv:   new(testutil.MockGitMetadataProvider),
		plugins:   new(testutil.MockPluginRunner),
		inputDir:  t.TempDir(),
		outputDir: t.TempDir(),
		logBuf:    &strings.Builder{},
	}
	s.handler = slog.NewTextHandler(s.logBuf, &slog.HandlerOptions{Level: slog.LevelDebug})
	s.opts = &kss.Options{
		InputPath:                            s.inputDir,
		OutputPath:                           s.outputDir,
		OnErrorMode:                          kss.OnErrorContinue,
		BinaryMode:                           kss.BinarySkip,
		LargeFileMode:                        kss.LargeFileSkip,
		LargeFileThreshold:                   10 * 1024 * 1024,
		CacheEnabled:                         true,
		StylesheetExtensions:                 kss.DefaultStylesheetExtensions,
		LanguageDetectionConfidenceThreshold: kss.DefaultLanguageDetectionConfidenceThreshold,
		Logger:                               s.handler,
	}
	return s
}

// build constructs the processor after a test has finished mutating opts, so
// the config hash reflects the final configuration.
func (s *processorSuite) build() *kss.FileProcessor {
	return kss.NewFileProcessor(s.opts, s.handler, s.cacheMgr, nil, nil, s.gitProv, s.plugins, nil)
}

func (s *processorSuite) write(t *testing.T, relPath, content string) string {
	t.Helper()
	absPath := filepath.Join(s.inputDir, filepath.FromSlash(relPath))
	testutil.WriteFile(t, absPath, content)
	return absPath
}

func (s *processorSuite) readOutput(t *testing.T, relPath string) string {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(s.outputDir, filepath.FromSlash(relPath)))
	require.NoError(t, err)
	return string(content)
}

func expectCacheMiss(s *processorSuite) {
	s.cacheMgr.On("Check", mock.AnythingOfType("string"), mock.AnythingOfType("time.Time"),
		mock.AnythingOfType("string"), mock.AnythingOfType("string")).Return(false, "", nil)
	s.cacheMgr.On("Update", mock.AnythingOfType("string"), mock.AnythingOfType("time.Time"),
		mock.AnythingOfType("string"), mock.AnythingOfType("string"), mock.AnythingOfType("string"),
		mock.Anything).Return(nil)
}

func TestFileProcessor_ProcessFile_RendersStyleguidePage(t *testing.T) {
	s := newProcessorSuite(t)
	absPath := s.write(t, "buttons.scss", buttonsSource)
	sourceHash := fmt.Sprintf("%x", sha256.Sum256([]byte(buttonsSource)))
	proc := s.build()

	s.cacheMgr.On("Check", "buttons.scss", mock.AnythingOfType("time.Time"), sourceHash,
		mock.AnythingOfType("string")).Return(false, "", nil).Once()
	s.cacheMgr.On("Update", "buttons.scss", mock.AnythingOfType("time.Time"), sourceHash,
		mock.AnythingOfType("string"), mock.AnythingOfType("string"),
		mock.MatchedBy(func(sections []kss.SectionSummary) bool {
			return len(sections) == 1 && sections[0].Reference == "1.1" &&
				sections[0].Description == "A button suitable for any form."
		})).Return(nil).Once()

	result, status, err := proc.ProcessFile(context.Background(), absPath)

	require.NoError(t, err)
	assert.Equal(t, kss.StatusSuccess, status)
	fi, ok := result.(kss.FileInfo)
	require.True(t, ok, "result should be a FileInfo, got %T", result)
	assert.Equal(t, "buttons.scss", fi.Path)
	assert.Equal(t, "buttons.scss.md", fi.OutputPath)
	assert.Equal(t, "scss", fi.Language)
	assert.Equal(t, kss.CacheStatusMiss, fi.CacheStatus)
	assert.False(t, fi.FrontMatter)
	assert.Empty(t, fi.PluginsRun)
	assert.GreaterOrEqual(t, fi.DurationMs, int64(0))
	require.Len(t, fi.Sections, 1)
	assert.Equal(t, "1.1", fi.Sections[0].Reference)

	page := s.readOutput(t, "buttons.scss.md")
	assert.Contains(t, page, "# buttons.scss")
	assert.Contains(t, page, "## Section 1.1")
	assert.Contains(t, page, "A button suitable for any form.")
	assert.Contains(t, page, "```html")
	assert.Contains(t, page, `<button class="btn {{modifier_class}}">Press</button>`)
	assert.Contains(t, page, "| `:hover` | `pseudo-class-hover` | Highlights the button. |")
	assert.Contains(t, page, "| `.primary` | `primary` | The call to action. |")

	s.cacheMgr.AssertExpectations(t)
}

func TestFileProcessor_ProcessFile_CacheHit(t *testing.T) {
	s := newProcessorSuite(t)
	absPath := s.write(t, "buttons.scss", buttonsSource)
	proc := s.build()

	cached := []kss.SectionSummary{{Reference: "1.1", Description: "A button suitable for any form."}}
	s.cacheMgr.On("Check", "buttons.scss", mock.AnythingOfType("time.Time"),
		mock.AnythingOfType("string"), mock.AnythingOfType("string")).Return(true, "feedc0de", cached).Once()

	result, status, err := proc.ProcessFile(context.Background(), absPath)

	require.NoError(t, err)
	assert.Equal(t, kss.StatusCached, status)
	fi, ok := result.(kss.FileInfo)
	require.True(t, ok)
	assert.Equal(t, kss.CacheStatusHit, fi.CacheStatus)
	assert.Equal(t, "scss", fi.Language, "cache hits keep the freshly detected language")
	assert.Equal(t, cached, fi.Sections)

	assert.NoFileExists(t, filepath.Join(s.outputDir, "buttons.scss.md"))
	s.cacheMgr.AssertNotCalled(t, "Update",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFileProcessor_ProcessFile_IgnoreCacheReadForcesMiss(t *testing.T) {
	s := newProcessorSuite(t)
	s.opts.IgnoreCacheRead = true
	absPath := s.write(t, "buttons.scss", buttonsSource)
	proc := s.build()

	s.cacheMgr.On("Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, mock.Anything).Return(nil).Once()

	_, status, err := proc.ProcessFile(context.Background(), absPath)

	require.NoError(t, err)
	assert.Equal(t, kss.StatusSuccess, status)
	s.cacheMgr.AssertNotCalled(t, "Check", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFileProcessor_ProcessFile_SkipsNonStylesheet(t *testing.T) {
	s := newProcessorSuite(t)
	absPath := s.write(t, "notes.txt", "Just some notes.\n")
	proc := s.build()

	result, status, err := proc.ProcessFile(context.Background(), absPath)

	require.NoError(t, err)
	assert.Equal(t, kss.StatusSkipped, status)
	si, ok := result.(kss.SkippedInfo)
	require.True(t, ok, "result should be a SkippedInfo, got %T", result)
	assert.Equal(t, "notes.txt", si.Path)
	assert.Equal(t, kss.SkipReasonNotStylesheet, si.Reason)
	s.cacheMgr.AssertNotCalled(t, "Check", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFileProcessor_ProcessFile_ExtensionListAdmitsUnknownDialect(t *testing.T) {
	s := newProcessorSuite(t)
	s.opts.StylesheetExtensions = append([]string{".weird"}, kss.DefaultStylesheetExtensions...)
	absPath := s.write(t, "theme.weird", "// Base layout.\n//\n// Styleguide 2.1\n\nbody { margin: 0 }\n")
	proc := s.build()
	expectCacheMiss(s)

	_, status, err := proc.ProcessFile(context.Background(), absPath)

	require.NoError(t, err)
	assert.Equal(t, kss.StatusSuccess, status)
	assert.FileExists(t, filepath.Join(s.outputDir, "theme.weird.md"))
}

func TestFileProcessor_ProcessFile_SkipsStylesheetWithoutSections(t *testing.T) {
	s := newProcessorSuite(t)
	absPath := s.write(t, "plain.css", "/* Reset */\nbody { margin: 0; }\n")
	proc := s.build()

	s.cacheMgr.On("Check", "plain.css", mock.AnythingOfType("time.Time"),
		mock.AnythingOfType("string"), mock.AnythingOfType("string")).Return(false, "", nil).Once()

	result, status, err := proc.ProcessFile(context.Background(), absPath)

	require.NoError(t, err)
	assert.Equal(t, kss.StatusSkipped, status)
	si := result.(kss.SkippedInfo)
	assert.Equal(t, kss.SkipReasonNoSections, si.Reason)
	assert.Contains(t, si.Details, "1 comment block")
	assert.NoFileExists(t, filepath.Join(s.outputDir, "plain.css.md"))
}

func TestFileProcessor_ProcessFile_BinaryHandling(t *testing.T) {
	binaryContent := strings.Repeat("\x00\x01\x02\x03", 64)

	t.Run("SkipMode", func(t *testing.T) {
		s := newProcessorSuite(t)
		absPath := s.write(t, "sprite.bin", binaryContent)
		proc := s.build()

		result, status, err := proc.ProcessFile(context.Background(), absPath)

		require.NoError(t, err)
		assert.Equal(t, kss.StatusSkipped, status)
		si := result.(kss.SkippedInfo)
		assert.Equal(t, kss.SkipReasonBinary, si.Reason)
	})

	t.Run("ErrorMode", func(t *testing.T) {
		s := newProcessorSuite(t)
		s.opts.BinaryMode = kss.BinaryError
		absPath := s.write(t, "sprite.bin", binaryContent)
		proc := s.build()

		result, status, err := proc.ProcessFile(context.Background(), absPath)

		require.Error(t, err)
		assert.ErrorIs(t, err, kss.ErrBinaryFile)
		assert.Equal(t, kss.StatusFailed, status)
		ei := result.(kss.ErrorInfo)
		assert.Equal(t, "sprite.bin", ei.Path)
		assert.False(t, ei.IsFatal, "continue mode keeps binary errors non-fatal")
	})
}

func TestFileProcessor_ProcessFile_LargeFileHandling(t *testing.T) {
	t.Run("SkipMode", func(t *testing.T) {
		s := newProcessorSuite(t)
		s.opts.LargeFileThreshold = 16
		absPath := s.write(t, "huge.css", strings.Repeat("body { margin: 0 }\n", 8))
		proc := s.build()

		result, status, err := proc.ProcessFile(context.Background(), absPath)

		require.NoError(t, err)
		assert.Equal(t, kss.StatusSkipped, status)
		si := result.(kss.SkippedInfo)
		assert.Equal(t, kss.SkipReasonLarge, si.Reason)
		assert.Contains(t, si.Details, "exceeds threshold")
	})

	t.Run("ErrorModeStopIsFatal", func(t *testing.T) {
		s := newProcessorSuite(t)
		s.opts.LargeFileThreshold = 16
		s.opts.LargeFileMode = kss.LargeFileError
		s.opts.OnErrorMode = kss.OnErrorStop
		absPath := s.write(t, "huge.css", strings.Repeat("body { margin: 0 }\n", 8))
		proc := s.build()

		result, status, err := proc.ProcessFile(context.Background(), absPath)

		require.Error(t, err)
		assert.ErrorIs(t, err, kss.ErrLargeFile)
		assert.Equal(t, kss.StatusFailed, status)
		assert.True(t, result.(kss.ErrorInfo).IsFatal)
	})
}

func TestFileProcessor_ProcessFile_StatFailure(t *testing.T) {
	s := newProcessorSuite(t)
	proc := s.build()

	result, status, err := proc.ProcessFile(context.Background(), filepath.Join(s.inputDir, "missing.scss"))

	require.Error(t, err)
	assert.ErrorIs(t, err, kss.ErrStatFailed)
	assert.Equal(t, kss.StatusFailed, status)
	assert.Equal(t, "missing.scss", result.(kss.ErrorInfo).Path)
}

func TestFileProcessor_ProcessFile_CanceledContextIsFatal(t *testing.T) {
	s := newProcessorSuite(t)
	absPath := s.write(t, "buttons.scss", buttonsSource)
	proc := s.build()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, status, err := proc.ProcessFile(ctx, absPath)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, kss.StatusFailed, status)
	assert.True(t, result.(kss.ErrorInfo).IsFatal)
}

func TestFileProcessor_ProcessFile_PreprocessorRunsBeforeParsing(t *testing.T) {
	s := newProcessorSuite(t)
	s.opts.PluginConfigs = []kss.PluginConfig{
		{Name: "annotator", Stage: kss.PluginStagePreprocessor, Enabled: true, Command: []string{"annotate"}},
	}
	source := ".btn { color: red; }\n"
	rewritten := "// Injected by the annotator.\n//\n// Styleguide 9.1\n\n" + source
	absPath := s.write(t, "buttons.scss", source)
	proc := s.build()
	expectCacheMiss(s)

	s.plugins.On("Run", mock.Anything, kss.PluginStagePreprocessor,
		mock.AnythingOfType("kss.PluginConfig"),
		mock.MatchedBy(func(input kss.PluginInput) bool {
			return input.Stage == kss.PluginStagePreprocessor &&
				input.FilePath == "buttons.scss" &&
				input.Content == source &&
				input.Sections == nil
		})).Return(kss.PluginOutput{SchemaVersion: kss.PluginSchemaVersion, Content: rewritten}, nil).Once()

	result, status, err := proc.ProcessFile(context.Background(), absPath)

	require.NoError(t, err)
	assert.Equal(t, kss.StatusSuccess, status)
	fi := result.(kss.FileInfo)
	assert.Equal(t, []string{"annotator"}, fi.PluginsRun)
	require.Len(t, fi.Sections, 1)
	assert.Equal(t, "9.1", fi.Sections[0].Reference, "sections come from the preprocessed content")

	page := s.readOutput(t, "buttons.scss.md")
	assert.Contains(t, page, "## Section 9.1")
	s.plugins.AssertExpectations(t)
}

func TestFileProcessor_ProcessFile_PostprocessorRewritesPage(t *testing.T) {
	s := newProcessorSuite(t)
	s.opts.PluginConfigs = []kss.PluginConfig{
		{Name: "footer", Stage: kss.PluginStagePostprocessor, Enabled: true, Command: []string{"footer"}},
	}
	absPath := s.write(t, "buttons.scss", buttonsSource)
	proc := s.build()
	expectCacheMiss(s)

	s.plugins.On("Run", mock.Anything, kss.PluginStagePostprocessor,
		mock.AnythingOfType("kss.PluginConfig"),
		mock.MatchedBy(func(input kss.PluginInput) bool {
			return input.Stage == kss.PluginStagePostprocessor &&
				strings.Contains(input.Content, "# buttons.scss") &&
				len(input.Sections) == 1
		})).Return(kss.PluginOutput{SchemaVersion: kss.PluginSchemaVersion, Content: "REWRITTEN PAGE\n"}, nil).Once()

	result, status, err := proc.ProcessFile(context.Background(), absPath)

	require.NoError(t, err)
	assert.Equal(t, kss.StatusSuccess, status)
	assert.Equal(t, []string{"footer"}, result.(kss.FileInfo).PluginsRun)
	assert.Equal(t, "REWRITTEN PAGE\n", s.readOutput(t, "buttons.scss.md"))
	s.plugins.AssertExpectations(t)
}

func TestFileProcessor_ProcessFile_FormatterShortCircuits(t *testing.T) {
	s := newProcessorSuite(t)
	s.opts.FrontMatterConfig = kss.FrontMatterOptions{Enabled: true, Format: kss.FrontMatterYAML, Static: map[string]interface{}{"layout": "styleguide"}}
	s.opts.PluginConfigs = []kss.PluginConfig{
		{Name: "htmlizer", Stage: kss.PluginStageFormatter, Enabled: true, Command: []string{"htmlize"}},
		{Name: "footer", Stage: kss.PluginStagePostprocessor, Enabled: true, Command: []string{"footer"}},
	}
	absPath := s.write(t, "buttons.scss", buttonsSource)
	proc := s.build()
	expectCacheMiss(s)

	s.plugins.On("Run", mock.Anything, kss.PluginStageFormatter,
		mock.AnythingOfType("kss.PluginConfig"), mock.AnythingOfType("kss.PluginInput")).
		Return(kss.PluginOutput{SchemaVersion: kss.PluginSchemaVersion, Output: "<html>custom</html>"}, nil).Once()

	result, status, err := proc.ProcessFile(context.Background(), absPath)

	require.NoError(t, err)
	assert.Equal(t, kss.StatusSuccess, status)
	fi := result.(kss.FileInfo)
	assert.False(t, fi.FrontMatter, "formatter output carries no front matter")
	assert.Equal(t, "<html>custom</html>", s.readOutput(t, "buttons.scss.md"))
	s.plugins.AssertNotCalled(t, "Run", mock.Anything, kss.PluginStagePostprocessor, mock.Anything, mock.Anything)
}

func TestFileProcessor_ProcessFile_PluginFailure(t *testing.T) {
	s := newProcessorSuite(t)
	s.opts.PluginConfigs = []kss.PluginConfig{
		{Name: "annotator", Stage: kss.PluginStagePreprocessor, Enabled: true, Command: []string{"annotate"}},
	}
	absPath := s.write(t, "buttons.scss", buttonsSource)
	proc := s.build()

	// The cache is consulted before plugins run; the failure happens before
	// any Update, so only the miss needs stubbing.
	s.cacheMgr.On("Check", mock.AnythingOfType("string"), mock.AnythingOfType("time.Time"),
		mock.AnythingOfType("string"), mock.AnythingOfType("string")).Return(false, "", nil).Once()
	s.plugins.On("Run", mock.Anything, kss.PluginStagePreprocessor, mock.Anything, mock.Anything).
		Return(kss.PluginOutput{}, fmt.Errorf("%w: plugin 'annotator' exploded", kss.ErrPluginExecution)).Once()

	result, status, err := proc.ProcessFile(context.Background(), absPath)

	require.Error(t, err)
	assert.ErrorIs(t, err, kss.ErrPluginExecution)
	assert.Equal(t, kss.StatusFailed, status)
	assert.Contains(t, result.(kss.ErrorInfo).Error, "annotator")
}

func TestFileProcessor_ProcessFile_AppliesToFiltersPlugins(t *testing.T) {
	s := newProcessorSuite(t)
	s.opts.PluginConfigs = []kss.PluginConfig{
		{Name: "less-only", Stage: kss.PluginStagePreprocessor, Enabled: true, Command: []string{"x"}, AppliesTo: []string{"*.less"}},
	}
	absPath := s.write(t, "nested/buttons.scss", buttonsSource)
	proc := s.build()
	expectCacheMiss(s)

	_, status, err := proc.ProcessFile(context.Background(), absPath)

	require.NoError(t, err)
	assert.Equal(t, kss.StatusSuccess, status)
	s.plugins.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFileProcessor_ProcessFile_FrontMatter(t *testing.T) {
	t.Run("YAML", func(t *testing.T) {
		s := newProcessorSuite(t)
		s.opts.FrontMatterConfig = kss.FrontMatterOptions{
			Enabled: true,
			Format:  kss.FrontMatterYAML,
			Static:  map[string]interface{}{"layout": "styleguide"},
			Include: []string{"FilePath", "SectionCount"},
		}
		absPath := s.write(t, "buttons.scss", buttonsSource)
		proc := s.build()
		expectCacheMiss(s)

		result, status, err := proc.ProcessFile(context.Background(), absPath)

		require.NoError(t, err)
		assert.Equal(t, kss.StatusSuccess, status)
		assert.True(t, result.(kss.FileInfo).FrontMatter)

		page := s.readOutput(t, "buttons.scss.md")
		assert.True(t, strings.HasPrefix(page, "---\n"), "front matter should open the page")
		assert.Contains(t, page, "layout: styleguide")
		assert.Contains(t, page, "FilePath: buttons.scss")
		assert.Contains(t, page, "SectionCount: 1")
		assert.Contains(t, page, "---\n\n# buttons.scss", "page body should follow the closing delimiter")
	})

	t.Run("TOML", func(t *testing.T) {
		s := newProcessorSuite(t)
		s.opts.FrontMatterConfig = kss.FrontMatterOptions{
			Enabled: true,
			Format:  kss.FrontMatterTOML,
			Static:  map[string]interface{}{"layout": "styleguide"},
		}
		absPath := s.write(t, "buttons.scss", buttonsSource)
		proc := s.build()
		expectCacheMiss(s)

		_, status, err := proc.ProcessFile(context.Background(), absPath)

		require.NoError(t, err)
		assert.Equal(t, kss.StatusSuccess, status)
		page := s.readOutput(t, "buttons.scss.md")
		assert.True(t, strings.HasPrefix(page, "+++\n"))
		assert.Contains(t, page, `layout = "styleguide"`)
	})

	t.Run("JSON", func(t *testing.T) {
		s := newProcessorSuite(t)
		s.opts.FrontMatterConfig = kss.FrontMatterOptions{
			Enabled: true,
			Format:  kss.FrontMatterJSON,
			Static:  map[string]interface{}{"layout": "styleguide"},
		}
		absPath := s.write(t, "buttons.scss", buttonsSource)
		proc := s.build()
		expectCacheMiss(s)

		_, status, err := proc.ProcessFile(context.Background(), absPath)

		require.NoError(t, err)
		assert.Equal(t, kss.StatusSuccess, status)
		page := s.readOutput(t, "buttons.scss.md")
		assert.True(t, strings.HasPrefix(page, "{"))
		assert.Contains(t, page, `"layout": "styleguide"`)
	})
}

func TestFileProcessor_ProcessFile_GitMetadata(t *testing.T) {
	t.Run("RendersLastChange", func(t *testing.T) {
		s := newProcessorSuite(t)
		s.opts.GitMetadataEnabled = true
		absPath := s.write(t, "buttons.scss", buttonsSource)
		proc := s.build()
		expectCacheMiss(s)

		s.gitProv.On("GetFileMetadata", s.inputDir, absPath).Return(map[string]string{
			"commit":      "a1b2c3d4",
			"author":      "Jane Doe",
			"authorEmail": "jane@example.com",
			"dateISO":     "2026-03-14T09:30:00Z",
		}, nil).Once()

		_, status, err := proc.ProcessFile(context.Background(), absPath)

		require.NoError(t, err)
		assert.Equal(t, kss.StatusSuccess, status)
		page := s.readOutput(t, "buttons.scss.md")
		assert.Contains(t, page, "Last change: a1b2c3d4 (Jane Doe, 2026-03-14T09:30:00Z)")
		s.gitProv.AssertExpectations(t)
	})

	t.Run("LookupFailureIsNonFatal", func(t *testing.T) {
		s := newProcessorSuite(t)
		s.opts.GitMetadataEnabled = true
		absPath := s.write(t, "buttons.scss", buttonsSource)
		proc := s.build()
		expectCacheMiss(s)

		s.gitProv.On("GetFileMetadata", s.inputDir, absPath).
			Return(nil, errors.New("repository exploded")).Once()

		_, status, err := proc.ProcessFile(context.Background(), absPath)

		require.NoError(t, err)
		assert.Equal(t, kss.StatusSuccess, status)
		assert.NotContains(t, s.readOutput(t, "buttons.scss.md"), "Last change:")
	})

	t.Run("DisabledNeverCallsProvider", func(t *testing.T) {
		s := newProcessorSuite(t)
		absPath := s.write(t, "buttons.scss", buttonsSource)
		proc := s.build()
		expectCacheMiss(s)

		_, _, err := proc.ProcessFile(context.Background(), absPath)

		require.NoError(t, err)
		s.gitProv.AssertNotCalled(t, "GetFileMetadata", mock.Anything, mock.Anything)
	})
}

func TestFileProcessor_ProcessFile_TemplateFailure(t *testing.T) {
	s := newProcessorSuite(t)
	s.opts.Template = template.Must(template.New("broken").Parse("{{ .NoSuchField }}"))
	absPath := s.write(t, "buttons.scss", buttonsSource)
	proc := s.build()

	s.cacheMgr.On("Check", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(false, "", nil).Once()

	result, status, err := proc.ProcessFile(context.Background(), absPath)

	require.Error(t, err)
	assert.ErrorIs(t, err, kss.ErrTemplateExecution)
	assert.Equal(t, kss.StatusFailed, status)
	assert.Equal(t, "buttons.scss", result.(kss.ErrorInfo).Path)
	s.cacheMgr.AssertNotCalled(t, "Update",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFileProcessor_ProcessFile_CacheDisabled(t *testing.T) {
	s := newProcessorSuite(t)
	s.opts.CacheEnabled = false
	absPath := s.write(t, "buttons.scss", buttonsSource)
	proc := s.build()

	result, status, err := proc.ProcessFile(context.Background(), absPath)

	require.NoError(t, err)
	assert.Equal(t, kss.StatusSuccess, status)
	assert.Equal(t, kss.CacheStatusDisabled, result.(kss.FileInfo).CacheStatus)
	s.cacheMgr.AssertNotCalled(t, "Check", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	s.cacheMgr.AssertNotCalled(t, "Update",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCalculateConfigHash(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	baseOpts := func() *kss.Options {
		return &kss.Options{
			AppVersion:    "1.2.3",
			BinaryMode:    kss.BinarySkip,
			LargeFileMode: kss.LargeFileSkip,
		}
	}

	t.Run("StableForEqualOptions", func(t *testing.T) {
		a := kss.CalculateConfigHash(baseOpts(), logger)
		b := kss.CalculateConfigHash(baseOpts(), logger)
		assert.Equal(t, a, b)
	})

	t.Run("PreserveWhitespaceChangesHash", func(t *testing.T) {
		opts := baseOpts()
		before := kss.CalculateConfigHash(opts, logger)
		opts.PreserveWhitespace = true
		assert.NotEqual(t, before, kss.CalculateConfigHash(opts, logger),
			"whitespace handling changes parse output and must invalidate the cache")
	})

	t.Run("EnabledPluginChangesHash", func(t *testing.T) {
		opts := baseOpts()
		before := kss.CalculateConfigHash(opts, logger)
		opts.PluginConfigs = []kss.PluginConfig{
			{Name: "p1", Stage: kss.PluginStagePostprocessor, Enabled: true, Command: []string{"cmd"}},
		}
		assert.NotEqual(t, before, kss.CalculateConfigHash(opts, logger))
	})

	t.Run("DisabledPluginDoesNotChangeHash", func(t *testing.T) {
		opts := baseOpts()
		before := kss.CalculateConfigHash(opts, logger)
		opts.PluginConfigs = []kss.PluginConfig{
			{Name: "p1", Stage: kss.PluginStagePostprocessor, Enabled: false, Command: []string{"cmd"}},
		}
		assert.Equal(t, before, kss.CalculateConfigHash(opts, logger))
	})

	t.Run("IncludeOrderDoesNotChangeHash", func(t *testing.T) {
		a := baseOpts()
		a.FrontMatterConfig.Include = []string{"FilePath", "SectionCount"}
		b := baseOpts()
		b.FrontMatterConfig.Include = []string{"SectionCount", "FilePath"}
		assert.Equal(t, kss.CalculateConfigHash(a, logger), kss.CalculateConfigHash(b, logger))
	})

	t.Run("TemplateContentChangesHash", func(t *testing.T) {
		dir := t.TempDir()
		tplPath := filepath.Join(dir, "page.tmpl")
		testutil.WriteFile(t, tplPath, "{{ .FilePath }}")
		opts := baseOpts()
		opts.TemplatePath = tplPath
		before := kss.CalculateConfigHash(opts, logger)

		testutil.WriteFile(t, tplPath, "changed {{ .FilePath }}")
		assert.NotEqual(t, before, kss.CalculateConfigHash(opts, logger))
	})
}

func TestGenerateOutputPath(t *testing.T) {
	cases := []struct {
		relPath string
		want    string
	}{
		{"buttons.scss", "buttons.scss.md"},
		{"base/type.css", "base/type.css.md"},
		{".hidden.scss", ".hidden.scss.md"},
		{"README", "README.md"},
		{"", ""},
		{".", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, kss.GenerateOutputPath(tc.relPath), "input %q", tc.relPath)
	}
}

func TestSummaryDescription(t *testing.T) {
	assert.Equal(t, "First line.", kss.SummaryDescription("First line.\nSecond line."))
	assert.Equal(t, "Only line.", kss.SummaryDescription("Only line."))
	assert.Equal(t, "", kss.SummaryDescription(""))
	assert.Equal(t, "Trimmed.", kss.SummaryDescription("Trimmed.  \nrest"))
}

func TestPluginApplies(t *testing.T) {
	cases := []struct {
		name     string
		patterns []string
		relPath  string
		want     bool
	}{
		{"EmptyMatchesAll", nil, "base/type.scss", true},
		{"BareGlobMatchesNested", []string{"*.scss"}, "base/type.scss", true},
		{"BareGlobRespectsExtension", []string{"*.less"}, "base/type.scss", false},
		{"PathGlob", []string{"base/*.scss"}, "base/type.scss", true},
		{"PathGlobWrongDir", []string{"base/*.scss"}, "components/nav.scss", false},
		{"ExactName", []string{"buttons.scss"}, "buttons.scss", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := kss.PluginConfig{AppliesTo: tc.patterns}
			assert.Equal(t, tc.want, kss.PluginApplies(cfg, tc.relPath))
		})
	}
}

func TestGenerateFrontMatter_UnsupportedFormat(t *testing.T) {
	_, err := kss.GenerateFrontMatter(map[string]interface{}{"a": 1}, kss.FrontMatterFormat("ini"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported front matter format")
}
