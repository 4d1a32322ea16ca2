// Package hooks bridges engine events to the CLI's presentation layer. One
// CLIHooks instance serves whichever mode the run selected: forwarding
// messages to the Bubble Tea program, streaming leveled logs in verbose mode,
// or ticking a progress bar.
package hooks

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/onehub/kss/pkg/kss"
)

// FileDiscoveredMsg signals that the walker found a file or directory.
type FileDiscoveredMsg struct{ Path string }

// FileStatusUpdateMsg signals a change in a file's processing status.
type FileStatusUpdateMsg struct {
	Path     string
	Status   kss.Status
	Message  string
	Duration time.Duration
}

// RunCompleteMsg signals the completion of the whole styleguide run.
type RunCompleteMsg struct{ Report kss.Report }

// TUIProgram is the slice of the Bubble Tea program the hooks need.
type TUIProgram interface {
	Send(msg interface{})
}

// ProgressBar is the slice of the progress bar the hooks need.
type ProgressBar interface {
	Add(num int) error
	Close() error
}

// NoOpTUIProgram discards messages.
type NoOpTUIProgram struct{}

// Send implements TUIProgram.
func (n *NoOpTUIProgram) Send(msg interface{}) {}

// NoOpProgressBar discards progress updates.
type NoOpProgressBar struct{}

// Add implements ProgressBar.
func (n *NoOpProgressBar) Add(num int) error { return nil }

// Close implements ProgressBar.
func (n *NoOpProgressBar) Close() error { return nil }

// CLIHooks implements kss.Hooks, routing engine events to the active UI mode.
// Status updates arrive from concurrent workers, so bar access is serialized.
type CLIHooks struct {
	logger         *slog.Logger
	tuiEnabled     bool
	verboseEnabled bool
	tuiProgram     TUIProgram
	progressBar    ProgressBar
	barActive      bool
	mu             sync.Mutex
}

// NewCLIHooks creates hooks for one run. Pass nil for tuiProgram or
// progressBar when the mode does not use them; without a bar, non-verbose mode
// still logs failures to the logger.
func NewCLIHooks(logger *slog.Logger, tuiEnabled, verboseEnabled bool, tuiProg TUIProgram, progBar ProgressBar) kss.Hooks {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if tuiProg == nil {
		tuiProg = &NoOpTUIProgram{}
	}
	barActive := progBar != nil
	if progBar == nil {
		progBar = &NoOpProgressBar{}
	}
	return &CLIHooks{
		logger:         logger,
		tuiEnabled:     tuiEnabled,
		verboseEnabled: verboseEnabled,
		tuiProgram:     tuiProg,
		progressBar:    progBar,
		barActive:      barActive,
	}
}

// OnFileDiscovered handles a walker discovery event.
func (h *CLIHooks) OnFileDiscovered(path string) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(FileDiscoveredMsg{Path: path})
	} else if h.verboseEnabled {
		h.logger.Debug("File discovered", slog.String("path", path))
	}
	return nil
}

// OnFileStatusUpdate handles a per-file status change. Safe for concurrent use.
func (h *CLIHooks) OnFileStatusUpdate(path string, status kss.Status, message string, duration time.Duration) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(FileStatusUpdateMsg{
			Path:     path,
			Status:   status,
			Message:  message,
			Duration: duration,
		})
		return nil
	}

	if h.verboseEnabled {
		logLevel := slog.LevelDebug
		logMsg := "File status updated"
		attrs := []any{
			slog.String("path", path),
			slog.String("status", string(status)),
		}
		// String form rather than slog.Duration: the JSON handler would render
		// raw nanoseconds, which is useless in a streamed per-file log.
		if duration > 0 {
			attrs = append(attrs, slog.String("duration", duration.String()))
		}
		if message != "" {
			logKey := "message"
			if status == kss.StatusFailed {
				logKey = "error"
			}
			attrs = append(attrs, slog.String(logKey, message))
		}

		switch status {
		case kss.StatusSuccess, kss.StatusCached, kss.StatusSkipped:
			logLevel = slog.LevelInfo
		case kss.StatusFailed:
			logLevel = slog.LevelError
			logMsg = "File processing failed"
		}
		h.logger.Log(nil, logLevel, logMsg, attrs...)
		return nil
	}

	// Progress bar or plain mode: tick the bar on terminal states and keep
	// failures visible either way.
	h.mu.Lock()
	defer h.mu.Unlock()
	if isFinalStatus(status) {
		_ = h.progressBar.Add(1)
	}
	if status == kss.StatusFailed {
		h.logger.Error("File processing failed", slog.String("path", path), slog.String("error", message))
	}
	return nil
}

// OnRunComplete handles the end of the run. The final report is rendered by
// the CLI itself; this only delivers it to the TUI or retires the bar.
func (h *CLIHooks) OnRunComplete(report kss.Report) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(RunCompleteMsg{Report: report})
		return nil
	}
	if h.barActive {
		h.mu.Lock()
		_ = h.progressBar.Close()
		h.mu.Unlock()
		// Newline after the bar so the summary does not overprint it.
		_, _ = fmt.Fprintf(os.Stderr, "\n")
	}
	if h.verboseEnabled {
		h.logger.Info("Run complete",
			slog.Int("processed", report.Summary.ProcessedCount),
			slog.Int("cached", report.Summary.CachedCount),
			slog.Int("skipped", report.Summary.SkippedCount),
			slog.Int("errors", report.Summary.ErrorCount),
			slog.Int("sections", report.Summary.SectionCount),
		)
	}
	return nil
}

func isFinalStatus(status kss.Status) bool {
	return status == kss.StatusSuccess ||
		status == kss.StatusFailed ||
		status == kss.StatusSkipped ||
		status == kss.StatusCached
}
