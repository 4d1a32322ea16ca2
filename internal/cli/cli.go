// Package cli orchestrates a styleguide generation run for the command line:
// it wires the concrete collaborators into the engine options, guards the
// output directory, selects the presentation mode, and renders the final
// report.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/onehub/kss/internal/cli/git"
	"github.com/onehub/kss/internal/cli/hooks"
	"github.com/onehub/kss/internal/cli/runner"
	"github.com/onehub/kss/internal/cli/ui"
	"github.com/onehub/kss/pkg/kss"
	"github.com/onehub/kss/pkg/kss/cache"
)

// ErrRunCompletedWithErrors marks a run that finished but recorded per-file
// failures. The command maps it to its own exit code so scripts can tell
// partial failures from configuration or fatal errors.
var ErrRunCompletedWithErrors = errors.New("run completed with file errors")

// Run executes one styleguide generation with already validated options. It
// owns everything after configuration loading: default collaborators, the
// non-empty output directory check, presentation mode selection, and the
// final report on stdout.
func Run(ctx context.Context, opts kss.Options, logger *slog.Logger) error {
	wireCollaborators(&opts)

	if !opts.ForceOverwrite {
		if err := confirmOverwrite(opts); err != nil {
			return err
		}
	}

	var (
		report kss.Report
		runErr error
	)
	if opts.TuiEnabled && term.IsTerminal(int(os.Stderr.Fd())) {
		report, runErr = runWithTUI(ctx, opts, logger)
	} else {
		report, runErr = runHeadless(ctx, opts, logger)
	}

	if renderErr := renderReport(os.Stdout, report, opts.OutputFormat); renderErr != nil {
		logger.Error("Failed to render final report", slog.String("error", renderErr.Error()))
		if runErr == nil {
			runErr = renderErr
		}
	}

	return classifyRunError(report, runErr)
}

// wireCollaborators fills in the default implementations for the injectable
// collaborators that are still nil. The engine treats a missing cache manager
// or git provider as "feature disabled", so the concrete ones must be set
// here.
func wireCollaborators(opts *kss.Options) {
	if opts.CacheEnabled && opts.CacheManager == nil {
		opts.CacheManager = cache.NewFileCacheManager(opts.Logger, kss.CacheSchemaVersion, opts.AppVersion, cache.DefaultCacheFormat)
	}
	if opts.GitMetadataEnabled && opts.GitMetadataProvider == nil {
		opts.GitMetadataProvider = git.NewGoGitProvider(opts.Logger)
	}
	if opts.PluginRunner == nil && anyPluginEnabled(opts.PluginConfigs) {
		opts.PluginRunner = runner.NewExecPluginRunner(opts.Logger)
	}
}

func anyPluginEnabled(plugins []kss.PluginConfig) bool {
	for _, p := range plugins {
		if p.Enabled {
			return true
		}
	}
	return false
}

// confirmOverwrite guards non-empty output directories that do not look like
// an earlier styleguide run. A cache index or overview page marks the
// directory as ours, so repeat runs proceed without prompting.
func confirmOverwrite(opts kss.Options) error {
	entries, err := os.ReadDir(opts.OutputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("cannot inspect output directory %q: %w", opts.OutputPath, err)
	}
	if len(entries) == 0 {
		return nil
	}
	if hasPriorRunMarkers(opts) {
		return nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("output directory %q is not empty; re-run with --force to overwrite", opts.OutputPath)
	}

	fmt.Fprintf(os.Stderr, "Output directory %q is not empty. Overwrite? [y/N]: ", opts.OutputPath)
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer != "y" && answer != "yes" {
		return fmt.Errorf("aborted; output directory %q left untouched", opts.OutputPath)
	}
	return nil
}

// hasPriorRunMarkers reports whether the output directory contains artifacts
// of a previous run.
func hasPriorRunMarkers(opts kss.Options) bool {
	if opts.CacheFilePath != "" {
		if _, err := os.Stat(opts.CacheFilePath); err == nil {
			return true
		}
	}
	if _, err := os.Stat(filepath.Join(opts.OutputPath, kss.IndexFileName)); err == nil {
		return true
	}
	return false
}

// programSender adapts *tea.Program to the hooks.TUIProgram interface.
type programSender struct {
	prog *tea.Program
}

func (s programSender) Send(msg interface{}) { s.prog.Send(msg) }

// runWithTUI drives the engine behind the Bubble Tea view. The engine runs in
// a separate goroutine and reports through the hooks; the model quits itself
// when the final report arrives. If the user quits first, the engine context
// is cancelled and the partial result is collected.
func runWithTUI(ctx context.Context, opts kss.Options, logger *slog.Logger) (kss.Report, error) {
	model := ui.NewModel(opts.AppVersion)
	prog := tea.NewProgram(&model, tea.WithOutput(os.Stderr), tea.WithContext(ctx))

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	opts.EventHooks = hooks.NewCLIHooks(logger, true, false, programSender{prog: prog}, nil)

	type runResult struct {
		report kss.Report
		err    error
	}
	resCh := make(chan runResult, 1)
	go func() {
		report, err := kss.GenerateStyleguide(runCtx, opts)
		resCh <- runResult{report: report, err: err}
	}()

	if _, tuiErr := prog.Run(); tuiErr != nil {
		logger.Warn("Interactive view ended abnormally", slog.String("error", tuiErr.Error()))
	}

	cancelRun()
	res := <-resCh
	return res.report, res.err
}

// runHeadless drives the engine without the TUI: a spinner-style progress bar
// on interactive terminals, per-file logs in verbose mode, plain logs
// otherwise.
func runHeadless(ctx context.Context, opts kss.Options, logger *slog.Logger) (kss.Report, error) {
	var bar hooks.ProgressBar
	if !opts.Verbose && term.IsTerminal(int(os.Stderr.Fd())) {
		// Total file count is unknown up front, so the bar runs in
		// indeterminate spinner mode.
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Generating styleguide"),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(65*time.Millisecond),
		)
	}
	opts.EventHooks = hooks.NewCLIHooks(logger, false, opts.Verbose, nil, bar)
	return kss.GenerateStyleguide(ctx, opts)
}

// classifyRunError decides the error returned to the command layer. Fatal run
// errors pass through unchanged; a clean run with per-file failures maps to
// ErrRunCompletedWithErrors.
func classifyRunError(report kss.Report, runErr error) error {
	if runErr != nil {
		return runErr
	}
	if report.Summary.ErrorCount > 0 {
		return fmt.Errorf("%w: %d of %d files failed", ErrRunCompletedWithErrors,
			report.Summary.ErrorCount, report.Summary.TotalFilesScanned)
	}
	return nil
}

// renderReport writes the final run report to w in the configured format.
func renderReport(w io.Writer, report kss.Report, format kss.OutputFormat) error {
	if format == kss.OutputFormatJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report to JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	s := report.Summary
	fmt.Fprintf(w, "Styleguide written to %s\n", s.OutputPath)
	fmt.Fprintf(w, "  Files: %d processed (%d from cache), %d skipped, %d failed (of %d scanned)\n",
		s.ProcessedCount, s.CachedCount, s.SkippedCount, s.ErrorCount, s.TotalFilesScanned)
	fmt.Fprintf(w, "  Sections: %d\n", s.SectionCount)
	fmt.Fprintf(w, "  Duration: %.2fs\n", s.DurationSeconds)
	if len(report.Errors) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, e := range report.Errors {
			fmt.Fprintf(w, "  %s: %s\n", e.Path, e.Error)
		}
	}
	return nil
}
