package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/onehub/kss/internal/cli/hooks"
	"github.com/onehub/kss/pkg/kss"
)

// listHeightMargin reserves rows for the header, footer and fatal error line.
const listHeightMargin = 4

// listRefreshInterval caps how often item churn is flushed into the list
// component. Rapid status updates mutate fileItems immediately but the
// visible list is rebuilt at most once per interval.
const listRefreshInterval = 50 * time.Millisecond

// Model is the bubbletea state for the interactive progress view. All
// mutation happens inside Update, which bubbletea invokes from a single
// goroutine, so no locking is required.
type Model struct {
	list    list.Model
	spinner spinner.Model

	// version is shown in the header, normally injected from build metadata.
	version string

	width       int
	height      int
	initialized bool

	// fileItems is the source of truth for list rows; itemMap indexes it by
	// path for O(1) status updates.
	fileItems []listItem
	itemMap   map[string]int

	// processTime records when a file entered the processing state so a
	// duration can be derived when the engine does not report one.
	processTime map[string]time.Time

	summary      Summary
	phaseMessage string
	fatalError   string

	// completed is set when the final report arrives; finalElapsed freezes
	// the footer clock at the engine's measured duration.
	completed    bool
	finalElapsed time.Duration

	// quitting is set only on user-initiated exit (q or ctrl+c).
	quitting bool

	// refreshPending is true while an UpdateListMsg tick is outstanding.
	refreshPending bool
}

// listItem is a single file row in the progress list.
type listItem struct {
	path     string
	status   kss.Status
	message  string
	duration time.Duration
}

// Summary holds the aggregated counts displayed in the footer.
type Summary struct {
	TotalFilesScanned int
	ProcessedCount    int
	CachedCount       int
	SkippedCount      int
	ErrorCount        int
	SectionCount      int
	StartTime         time.Time
}

// NewModel builds the initial TUI state. The version string appears in the
// header next to the program name.
func NewModel(version string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	delegate := list.NewDefaultDelegate()
	delegate.SetSpacing(0)
	delegate.ShowDescription = true
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(ColorSelectedFg).
		Background(ColorSelectedBg).
		Bold(true).
		Padding(0, 0, 0, 1)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(ColorSelectedDescFg).
		Background(ColorSelectedBg).
		Padding(0, 0, 0, 1)
	delegate.Styles.NormalTitle = delegate.Styles.NormalTitle.
		Foreground(ColorNormalFg).Padding(0, 0, 0, 1)
	delegate.Styles.NormalDesc = delegate.Styles.NormalDesc.
		Foreground(ColorNormalDescFg).Padding(0, 0, 0, 1)

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetShowTitle(false)
	l.SetShowFilter(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	return Model{
		list:         l,
		spinner:      s,
		version:      version,
		summary:      Summary{StartTime: time.Now()},
		phaseMessage: "Initializing...",
		fileItems:    make([]listItem, 0, 256),
		itemMap:      make(map[string]int),
		processTime:  make(map[string]time.Time),
	}
}

// Init starts the spinner animation.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles terminal events and the messages forwarded by the engine
// hooks.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		listHeight := m.height - listHeightMargin
		if listHeight < 1 {
			listHeight = 1
		}
		m.list.SetSize(m.width, listHeight)
		m.initialized = true

	case tea.KeyMsg:
		if m.quitting {
			return m, nil
		}
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
		var listCmd tea.Cmd
		m.list, listCmd = m.list.Update(msg)
		if listCmd != nil {
			cmds = append(cmds, listCmd)
		}

	case spinner.TickMsg:
		if m.quitting || m.completed {
			return m, nil
		}
		var spinnerCmd tea.Cmd
		m.spinner, spinnerCmd = m.spinner.Update(msg)
		if spinnerCmd != nil {
			cmds = append(cmds, spinnerCmd)
		}

	case hooks.FileDiscoveredMsg:
		if _, exists := m.itemMap[msg.Path]; !exists {
			m.fileItems = append(m.fileItems, listItem{path: msg.Path, status: kss.StatusPending})
			m.itemMap[msg.Path] = len(m.fileItems) - 1
			m.summary.TotalFilesScanned++
			if cmd := m.scheduleListRefresh(); cmd != nil {
				cmds = append(cmds, cmd)
			}
		}
		if !m.quitting && (m.phaseMessage == "" || m.phaseMessage == "Initializing...") {
			m.phaseMessage = "Scanning..."
		}

	case hooks.FileStatusUpdateMsg:
		if idx, ok := m.itemMap[msg.Path]; ok && idx < len(m.fileItems) {
			item := &m.fileItems[idx]

			if isFinalStatus(msg.Status) {
				// Prefer the engine's measured duration; fall back to wall
				// time since the processing transition.
				if msg.Duration > 0 {
					item.duration = msg.Duration
					delete(m.processTime, msg.Path)
				} else if item.status == kss.StatusProcessing {
					if start, found := m.processTime[msg.Path]; found {
						item.duration = time.Since(start)
						delete(m.processTime, msg.Path)
					}
				}
			} else if msg.Status == kss.StatusProcessing {
				m.processTime[msg.Path] = time.Now()
				item.duration = 0
			}

			wasFinal := isFinalStatus(item.status)
			nowFinal := isFinalStatus(msg.Status)
			if nowFinal && !wasFinal {
				m.incrementSummaryCount(msg.Status)
			} else if !nowFinal && wasFinal {
				m.decrementSummaryCount(item.status)
			}

			item.status = msg.Status
			item.message = msg.Message
			if cmd := m.scheduleListRefresh(); cmd != nil {
				cmds = append(cmds, cmd)
			}
		} else {
			// A status update can arrive for a path that was never announced,
			// for example when discovery and processing race at startup.
			m.fileItems = append(m.fileItems, listItem{path: msg.Path, status: msg.Status, message: msg.Message, duration: msg.Duration})
			m.itemMap[msg.Path] = len(m.fileItems) - 1
			m.summary.TotalFilesScanned++
			m.incrementSummaryCount(msg.Status)
			if cmd := m.scheduleListRefresh(); cmd != nil {
				cmds = append(cmds, cmd)
			}
		}

		if !m.quitting && m.phaseMessage != "Processing..." && msg.Status == kss.StatusProcessing {
			m.phaseMessage = "Processing..."
		}

	case hooks.RunCompleteMsg:
		m.phaseMessage = "Complete"
		m.completed = true
		m.summary.ProcessedCount = msg.Report.Summary.ProcessedCount
		m.summary.CachedCount = msg.Report.Summary.CachedCount
		m.summary.SkippedCount = msg.Report.Summary.SkippedCount
		m.summary.ErrorCount = msg.Report.Summary.ErrorCount
		m.summary.SectionCount = msg.Report.Summary.SectionCount
		m.finalElapsed = time.Duration(msg.Report.Summary.DurationSeconds * float64(time.Second))
		if msg.Report.Summary.FatalErrorOccurred {
			m.fatalError = "Run halted due to fatal error."
			for _, e := range msg.Report.Errors {
				if e.IsFatal {
					m.fatalError = fmt.Sprintf("Fatal Error: %s (%s)", e.Error, e.Path)
					break
				}
			}
		}
		// Flush pending item state so the final frame shows terminal
		// statuses, then quit. The inline renderer leaves the frame on
		// screen.
		if cmd := m.syncListItems(); cmd != nil {
			cmds = append(cmds, cmd)
		}
		cmds = append(cmds, tea.Quit)

	case UpdateListMsg:
		if cmd := m.syncListItems(); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

// View renders the header, file list, optional fatal error line and summary
// footer.
func (m *Model) View() string {
	if m.quitting {
		return "Exiting...\n"
	}
	if !m.initialized {
		return "Initializing..."
	}

	headerLeft := fmt.Sprintf("kss v%s", m.version)
	headerRight := m.phaseMessage
	if !m.completed && m.phaseMessage != "Initializing..." {
		headerRight = m.spinner.View() + " " + m.phaseMessage
	}
	headerCenter := ""
	// The joined content must fit inside the style's padding or it wraps.
	headerInner := m.width - HeaderStyle.GetHorizontalFrameSize()
	headerWidth := headerInner - lipgloss.Width(headerLeft) - lipgloss.Width(headerRight)
	if headerWidth > 0 {
		headerCenter = lipgloss.PlaceHorizontal(headerWidth, lipgloss.Center, " ")
	}
	header := HeaderStyle.Width(m.width).Render(lipgloss.JoinHorizontal(lipgloss.Top, headerLeft, headerCenter, headerRight))

	elapsed := m.finalElapsed
	if elapsed == 0 {
		elapsed = time.Since(m.summary.StartTime)
	}
	summaryText := fmt.Sprintf(
		"Processed: %d (Cached: %d) | Skipped: %d | Failed: %d | Sections: %d | Total Scanned: %d | Elapsed: %s",
		m.summary.ProcessedCount,
		m.summary.CachedCount,
		m.summary.SkippedCount,
		m.summary.ErrorCount,
		m.summary.SectionCount,
		m.summary.TotalFilesScanned,
		elapsed.Round(time.Millisecond),
	)
	footerLeft := summaryText
	footerRight := "q: quit"
	footerCenter := ""
	footerInner := m.width - FooterStyle.GetHorizontalFrameSize()
	footerWidth := footerInner - lipgloss.Width(footerLeft) - lipgloss.Width(footerRight)
	if footerWidth > 0 {
		footerCenter = lipgloss.PlaceHorizontal(footerWidth, lipgloss.Center, " ")
	}
	footer := FooterStyle.Width(m.width).Render(lipgloss.JoinHorizontal(lipgloss.Bottom, footerLeft, footerCenter, footerRight))

	blocks := []string{header, m.list.View()}
	if m.fatalError != "" {
		blocks = append(blocks, StatusStyleFailed.Render(m.fatalError))
	}
	blocks = append(blocks, footer)

	return lipgloss.JoinVertical(lipgloss.Left, blocks...)
}

// UpdateListMsg asks the model to rebuild the list component from fileItems.
type UpdateListMsg struct{}

// scheduleListRefresh arranges for an UpdateListMsg after the refresh
// interval. At most one tick is outstanding at any time; while one is
// pending, further mutations accumulate and are picked up when it fires.
func (m *Model) scheduleListRefresh() tea.Cmd {
	if m.refreshPending {
		return nil
	}
	m.refreshPending = true
	return tea.Tick(listRefreshInterval, func(time.Time) tea.Msg {
		return UpdateListMsg{}
	})
}

// syncListItems pushes the current fileItems snapshot into the list component
// and clears the pending refresh flag.
func (m *Model) syncListItems() tea.Cmd {
	m.refreshPending = false
	items := make([]list.Item, len(m.fileItems))
	for i, item := range m.fileItems {
		items[i] = item
	}
	return m.list.SetItems(items)
}

// isFinalStatus reports whether a status is terminal for a file.
func isFinalStatus(status kss.Status) bool {
	return status == kss.StatusSuccess ||
		status == kss.StatusFailed ||
		status == kss.StatusSkipped ||
		status == kss.StatusCached
}

// incrementSummaryCount updates the footer counts for a file entering a final
// status. Cached files count as processed too.
func (m *Model) incrementSummaryCount(status kss.Status) {
	switch status {
	case kss.StatusSuccess:
		m.summary.ProcessedCount++
	case kss.StatusCached:
		m.summary.ProcessedCount++
		m.summary.CachedCount++
	case kss.StatusSkipped:
		m.summary.SkippedCount++
	case kss.StatusFailed:
		m.summary.ErrorCount++
	}
}

// decrementSummaryCount reverses incrementSummaryCount when a file leaves a
// final status again.
func (m *Model) decrementSummaryCount(status kss.Status) {
	switch status {
	case kss.StatusSuccess:
		m.summary.ProcessedCount--
	case kss.StatusCached:
		m.summary.ProcessedCount--
		m.summary.CachedCount--
	case kss.StatusSkipped:
		m.summary.SkippedCount--
	case kss.StatusFailed:
		m.summary.ErrorCount--
	}
}

// FilterValue implements list.Item.
func (i listItem) FilterValue() string { return i.path }

// Title implements list.Item.
func (i listItem) Title() string { return i.path }

// Description implements list.Item. It renders a colored status icon plus a
// short detail: the error for failures, the skip reason for skips, and the
// processing duration for successes.
func (i listItem) Description() string {
	var statusStyle lipgloss.Style
	statusIcon := " "
	switch i.status {
	case kss.StatusSuccess:
		statusStyle = StatusStyleSuccess
		statusIcon = "✓"
	case kss.StatusFailed:
		statusStyle = StatusStyleFailed
		statusIcon = "✗"
	case kss.StatusSkipped:
		statusStyle = StatusStyleSkipped
		statusIcon = "S"
	case kss.StatusCached:
		statusStyle = StatusStyleCached
		statusIcon = "C"
	case kss.StatusProcessing:
		statusStyle = StatusStyleProcessing
		statusIcon = "…"
	default:
		statusStyle = StatusStylePending
	}

	statusStr := statusStyle.Render(fmt.Sprintf("[%s]", statusIcon))
	details := ""
	switch i.status {
	case kss.StatusFailed:
		details = i.message
	case kss.StatusSkipped:
		// Skip messages follow a "reason: details" shape; show the reason.
		parts := strings.SplitN(i.message, ":", 2)
		if len(parts) > 0 {
			details = strings.TrimSpace(parts[0])
		} else {
			details = i.message
		}
	case kss.StatusSuccess, kss.StatusCached:
		if i.duration > 0 {
			details = formatDuration(i.duration)
		}
	}
	return fmt.Sprintf("%s %s", statusStr, details)
}

// formatDuration renders a duration compactly for list rows.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		if d == 0 {
			return ""
		}
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// Color palette for the progress view.
const (
	ColorHeaderFg = lipgloss.Color("252")
	ColorHeaderBg = lipgloss.Color("62")

	ColorFooterFg = lipgloss.Color("252")
	ColorFooterBg = lipgloss.Color("56")

	ColorNormalFg     = lipgloss.Color("250")
	ColorNormalDescFg = lipgloss.Color("244")

	ColorSelectedFg     = lipgloss.Color("255")
	ColorSelectedBg     = lipgloss.Color("56")
	ColorSelectedDescFg = lipgloss.Color("248")

	ColorStatusSuccess    = lipgloss.Color("40")
	ColorStatusFailed     = lipgloss.Color("196")
	ColorStatusSkipped    = lipgloss.Color("214")
	ColorStatusCached     = lipgloss.Color("39")
	ColorStatusPending    = lipgloss.Color("244")
	ColorStatusProcessing = lipgloss.Color("205")
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorHeaderFg).
			Background(ColorHeaderBg).
			Padding(0, 1)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorFooterFg).
			Background(ColorFooterBg).
			Padding(0, 1)

	StatusStyleSuccess    = lipgloss.NewStyle().Foreground(ColorStatusSuccess)
	StatusStyleFailed     = lipgloss.NewStyle().Foreground(ColorStatusFailed)
	StatusStyleSkipped    = lipgloss.NewStyle().Foreground(ColorStatusSkipped)
	StatusStyleCached     = lipgloss.NewStyle().Foreground(ColorStatusCached)
	StatusStylePending    = lipgloss.NewStyle().Foreground(ColorStatusPending)
	StatusStyleProcessing = lipgloss.NewStyle().Foreground(ColorStatusProcessing)
)
