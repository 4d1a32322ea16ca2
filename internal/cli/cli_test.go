package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onehub/kss/pkg/kss"
)

func testReport() kss.Report {
	return kss.Report{
		Summary: kss.ReportSummary{
			RunID:             "run-1",
			InputPath:         "/in",
			OutputPath:        "/out/styleguide",
			TotalFilesScanned: 10,
			ProcessedCount:    7,
			CachedCount:       2,
			SkippedCount:      3,
			SectionCount:      24,
			DurationSeconds:   1.25,
			Concurrency:       4,
		},
	}
}

func TestClassifyRunError(t *testing.T) {
	t.Run("clean run", func(t *testing.T) {
		assert.NoError(t, classifyRunError(testReport(), nil))
	})

	t.Run("file errors map to the sentinel", func(t *testing.T) {
		report := testReport()
		report.Summary.ErrorCount = 3
		err := classifyRunError(report, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRunCompletedWithErrors)
		assert.Contains(t, err.Error(), "3 of 10 files failed")
	})

	t.Run("fatal errors pass through unchanged", func(t *testing.T) {
		fatal := errors.New("walker initialization failed")
		report := testReport()
		report.Summary.ErrorCount = 1
		err := classifyRunError(report, fatal)
		assert.ErrorIs(t, err, fatal)
		assert.NotErrorIs(t, err, ErrRunCompletedWithErrors)
	})
}

func TestRenderReportText(t *testing.T) {
	report := testReport()
	report.Summary.ErrorCount = 1
	report.Errors = []kss.ErrorInfo{{Path: "broken.css", Error: "comment extraction failed"}}

	var buf bytes.Buffer
	require.NoError(t, renderReport(&buf, report, kss.OutputFormatText))
	out := buf.String()

	assert.Contains(t, out, "Styleguide written to /out/styleguide")
	assert.Contains(t, out, "7 processed (2 from cache)")
	assert.Contains(t, out, "3 skipped")
	assert.Contains(t, out, "1 failed (of 10 scanned)")
	assert.Contains(t, out, "Sections: 24")
	assert.Contains(t, out, "Duration: 1.25s")
	assert.Contains(t, out, "broken.css: comment extraction failed")
}

func TestRenderReportJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderReport(&buf, testReport(), kss.OutputFormatJSON))

	var decoded kss.Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded.Summary.RunID)
	assert.Equal(t, 7, decoded.Summary.ProcessedCount)
	assert.Equal(t, 24, decoded.Summary.SectionCount)
	assert.InDelta(t, 1.25, decoded.Summary.DurationSeconds, 0.001)
}

func TestConfirmOverwrite(t *testing.T) {
	// Stdin is not a terminal under go test, so the interactive prompt is
	// never reached; a directory that needs confirmation yields an error.

	t.Run("missing directory", func(t *testing.T) {
		opts := kss.Options{OutputPath: filepath.Join(t.TempDir(), "missing")}
		assert.NoError(t, confirmOverwrite(opts))
	})

	t.Run("empty directory", func(t *testing.T) {
		opts := kss.Options{OutputPath: t.TempDir()}
		assert.NoError(t, confirmOverwrite(opts))
	})

	t.Run("unrelated content requires force", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep me"), 0o644))
		err := confirmOverwrite(kss.Options{OutputPath: dir})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--force")
	})

	t.Run("overview page marks directory as ours", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, kss.IndexFileName), []byte("# Styleguide"), 0o644))
		assert.NoError(t, confirmOverwrite(kss.Options{OutputPath: dir}))
	})

	t.Run("cache file marks directory as ours", func(t *testing.T) {
		dir := t.TempDir()
		cachePath := filepath.Join(dir, kss.CacheFileName)
		require.NoError(t, os.WriteFile(cachePath, []byte("cache"), 0o644))
		opts := kss.Options{OutputPath: dir, CacheFilePath: cachePath}
		assert.NoError(t, confirmOverwrite(opts))
	})
}

func TestWireCollaborators(t *testing.T) {
	handler := slog.NewTextHandler(io.Discard, nil)

	t.Run("cache manager injected when caching enabled", func(t *testing.T) {
		opts := kss.Options{CacheEnabled: true, Logger: handler, AppVersion: "1.0.0"}
		wireCollaborators(&opts)
		assert.NotNil(t, opts.CacheManager)
	})

	t.Run("no cache manager when caching disabled", func(t *testing.T) {
		opts := kss.Options{CacheEnabled: false, Logger: handler}
		wireCollaborators(&opts)
		assert.Nil(t, opts.CacheManager)
	})

	t.Run("git provider injected when metadata enabled", func(t *testing.T) {
		opts := kss.Options{GitMetadataEnabled: true, Logger: handler}
		wireCollaborators(&opts)
		assert.NotNil(t, opts.GitMetadataProvider)
	})

	t.Run("plugin runner only for enabled plugins", func(t *testing.T) {
		opts := kss.Options{
			Logger: handler,
			PluginConfigs: []kss.PluginConfig{
				{Name: "fmt", Stage: "formatter", Enabled: false, Command: []string{"fmt"}},
			},
		}
		wireCollaborators(&opts)
		assert.Nil(t, opts.PluginRunner)

		opts.PluginConfigs[0].Enabled = true
		wireCollaborators(&opts)
		assert.NotNil(t, opts.PluginRunner)
	})

	t.Run("existing collaborators are kept", func(t *testing.T) {
		custom := &kss.NoOpCacheManager{}
		opts := kss.Options{CacheEnabled: true, Logger: handler, CacheManager: custom}
		wireCollaborators(&opts)
		assert.Same(t, custom, opts.CacheManager)
	})
}
