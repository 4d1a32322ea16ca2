package hooks

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/onehub/kss/pkg/kss"
)

type MockTUIProgram struct {
	mock.Mock
}

func (m *MockTUIProgram) Send(msg interface{}) {
	m.Called(msg)
}

type MockProgressBar struct {
	mock.Mock
}

func (m *MockProgressBar) Add(num int) error {
	args := m.Called(num)
	return args.Error(0)
}

func (m *MockProgressBar) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestCLIHooks_OnFileDiscovered(t *testing.T) {
	testPath := "base/buttons.scss"

	t.Run("TUI enabled", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		mockTUI.On("Send", mock.AnythingOfType("FileDiscoveredMsg")).Run(func(args mock.Arguments) {
			msg := args.Get(0).(FileDiscoveredMsg)
			assert.Equal(t, testPath, msg.Path)
		}).Once()

		logBuf := &bytes.Buffer{}
		logger := slog.New(slog.NewTextHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		hooks := NewCLIHooks(logger, true, false, mockTUI, nil)
		require.NoError(t, hooks.OnFileDiscovered(testPath))
		mockTUI.AssertExpectations(t)
		assert.Empty(t, logBuf.String())
	})

	t.Run("verbose enabled", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		logBuf := &bytes.Buffer{}
		logger := slog.New(slog.NewJSONHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		hooks := NewCLIHooks(logger, false, true, mockTUI, nil)
		require.NoError(t, hooks.OnFileDiscovered(testPath))

		mockTUI.AssertNotCalled(t, "Send", mock.Anything)
		logOutput := logBuf.String()
		assert.Contains(t, logOutput, `"level":"DEBUG"`)
		assert.Contains(t, logOutput, `"msg":"File discovered"`)
		assert.Contains(t, logOutput, `"path":"`+testPath+`"`)
	})

	t.Run("neither TUI nor verbose", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		logBuf := &bytes.Buffer{}
		logger := slog.New(slog.NewTextHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		hooks := NewCLIHooks(logger, false, false, mockTUI, nil)
		require.NoError(t, hooks.OnFileDiscovered(testPath))

		mockTUI.AssertNotCalled(t, "Send", mock.Anything)
		assert.Empty(t, logBuf.String())
	})
}

func TestCLIHooks_OnFileStatusUpdate(t *testing.T) {
	testPath := "themes/dark.css"
	testDuration := 50 * time.Millisecond

	t.Run("TUI enabled", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		mockTUI.On("Send", mock.MatchedBy(func(msg FileStatusUpdateMsg) bool {
			return msg.Path == testPath &&
				msg.Status == kss.StatusProcessing &&
				msg.Message == "Parsing" &&
				msg.Duration == testDuration
		})).Once()

		logBuf := &bytes.Buffer{}
		logger := slog.New(slog.NewTextHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		hooks := NewCLIHooks(logger, true, false, mockTUI, nil)
		require.NoError(t, hooks.OnFileStatusUpdate(testPath, kss.StatusProcessing, "Parsing", testDuration))
		mockTUI.AssertExpectations(t)
		assert.Empty(t, logBuf.String())
	})

	t.Run("verbose enabled", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		logBuf := &bytes.Buffer{}
		logger := slog.New(slog.NewJSONHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		hooks := NewCLIHooks(logger, false, true, mockTUI, nil)

		testCases := []struct {
			status        kss.Status
			message       string
			expectedLevel string
			expectedMsg   string
			checkKey      string
		}{
			{kss.StatusProcessing, "Starting", "DEBUG", "File status updated", "message"},
			{kss.StatusSuccess, "OK", "INFO", "File status updated", "message"},
			{kss.StatusCached, "Hit", "INFO", "File status updated", "message"},
			{kss.StatusSkipped, "Ignored", "INFO", "File status updated", "message"},
			{kss.StatusFailed, "Unterminated comment", "ERROR", "File processing failed", "error"},
		}

		for _, tc := range testCases {
			logBuf.Reset()
			require.NoError(t, hooks.OnFileStatusUpdate(testPath, tc.status, tc.message, testDuration))
			logOutput := logBuf.String()

			durationRegex := regexp.QuoteMeta(fmt.Sprintf(`"duration":"%s"`, testDuration.String()))
			assert.Regexp(t, durationRegex, logOutput)
			assert.Contains(t, logOutput, `"level":"`+tc.expectedLevel+`"`)
			assert.Contains(t, logOutput, `"msg":"`+tc.expectedMsg+`"`)
			assert.Contains(t, logOutput, `"path":"`+testPath+`"`)
			assert.Contains(t, logOutput, `"status":"`+string(tc.status)+`"`)
			assert.Contains(t, logOutput, `"`+tc.checkKey+`":"`+tc.message+`"`)
		}
		mockTUI.AssertNotCalled(t, "Send", mock.Anything)
	})

	t.Run("progress bar ticks on final states only", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		mockProgress := new(MockProgressBar)
		logBuf := &bytes.Buffer{}
		logger := slog.New(slog.NewJSONHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelError}))
		hooks := NewCLIHooks(logger, false, false, mockTUI, mockProgress)

		mockProgress.On("Add", 1).Return(nil).Times(4)

		require.NoError(t, hooks.OnFileStatusUpdate(testPath, kss.StatusProcessing, "Starting", 0))
		assert.Empty(t, logBuf.String())

		require.NoError(t, hooks.OnFileStatusUpdate(testPath, kss.StatusSuccess, "OK", testDuration))
		require.NoError(t, hooks.OnFileStatusUpdate(testPath, kss.StatusCached, "Hit", 0))
		require.NoError(t, hooks.OnFileStatusUpdate(testPath, kss.StatusSkipped, "Ignored", 0))
		assert.Empty(t, logBuf.String())

		require.NoError(t, hooks.OnFileStatusUpdate(testPath, kss.StatusFailed, "walk error", testDuration))
		logOutput := logBuf.String()
		assert.Contains(t, logOutput, `"level":"ERROR"`)
		assert.Contains(t, logOutput, `"msg":"File processing failed"`)
		assert.Contains(t, logOutput, `"path":"`+testPath+`"`)
		assert.Contains(t, logOutput, `"error":"walk error"`)

		mockTUI.AssertNotCalled(t, "Send", mock.Anything)
		mockProgress.AssertExpectations(t)
	})

	t.Run("plain mode logs failures only", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		logBuf := &bytes.Buffer{}
		logger := slog.New(slog.NewJSONHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelInfo}))
		hooks := NewCLIHooks(logger, false, false, mockTUI, nil)

		require.NoError(t, hooks.OnFileStatusUpdate(testPath, kss.StatusProcessing, "Starting", 0))
		require.NoError(t, hooks.OnFileStatusUpdate(testPath, kss.StatusSuccess, "OK", testDuration))
		require.NoError(t, hooks.OnFileStatusUpdate(testPath, kss.StatusCached, "Hit", 0))
		require.NoError(t, hooks.OnFileStatusUpdate(testPath, kss.StatusSkipped, "Ignored", 0))
		assert.Empty(t, logBuf.String())

		require.NoError(t, hooks.OnFileStatusUpdate(testPath, kss.StatusFailed, "decode error", testDuration))
		logOutput := logBuf.String()
		assert.Contains(t, logOutput, `"level":"ERROR"`)
		assert.Contains(t, logOutput, `"msg":"File processing failed"`)
		assert.Contains(t, logOutput, `"error":"decode error"`)

		mockTUI.AssertNotCalled(t, "Send", mock.Anything)
	})
}

func TestCLIHooks_OnRunComplete(t *testing.T) {
	finalReport := kss.Report{
		Summary: kss.ReportSummary{ProcessedCount: 10, SectionCount: 24},
	}

	t.Run("TUI enabled", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		mockTUI.On("Send", mock.MatchedBy(func(msg RunCompleteMsg) bool {
			return msg.Report.Summary.ProcessedCount == 10
		})).Once()
		mockProgress := new(MockProgressBar)

		logBuf := &bytes.Buffer{}
		logger := slog.New(slog.NewTextHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		hooks := NewCLIHooks(logger, true, false, mockTUI, mockProgress)
		require.NoError(t, hooks.OnRunComplete(finalReport))
		mockTUI.AssertExpectations(t)
		mockProgress.AssertNotCalled(t, "Close")
		assert.Empty(t, logBuf.String())
	})

	t.Run("progress bar closed", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		mockProgress := new(MockProgressBar)
		mockProgress.On("Close").Return(nil).Once()

		oldStderr := os.Stderr
		r, w, _ := os.Pipe()
		os.Stderr = w

		logBuf := &bytes.Buffer{}
		logger := slog.New(slog.NewTextHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelInfo}))
		hooks := NewCLIHooks(logger, false, false, mockTUI, mockProgress)

		err := hooks.OnRunComplete(finalReport)

		w.Close()
		_, _ = io.ReadAll(r)
		os.Stderr = oldStderr

		require.NoError(t, err)
		mockTUI.AssertNotCalled(t, "Send", mock.Anything)
		mockProgress.AssertExpectations(t)
	})

	t.Run("plain mode does nothing", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		mockProgress := new(MockProgressBar)
		logBuf := &bytes.Buffer{}
		logger := slog.New(slog.NewJSONHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelInfo}))
		hooks := NewCLIHooks(logger, false, false, mockTUI, nil)

		require.NoError(t, hooks.OnRunComplete(finalReport))

		mockTUI.AssertNotCalled(t, "Send", mock.Anything)
		mockProgress.AssertNotCalled(t, "Close")
		assert.Empty(t, logBuf.String())
	})

	t.Run("verbose mode logs summary", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		logBuf := &bytes.Buffer{}
		logger := slog.New(slog.NewJSONHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		hooks := NewCLIHooks(logger, false, true, mockTUI, nil)

		require.NoError(t, hooks.OnRunComplete(finalReport))

		mockTUI.AssertNotCalled(t, "Send", mock.Anything)
		logOutput := logBuf.String()
		assert.Contains(t, logOutput, `"msg":"Run complete"`)
		assert.Contains(t, logOutput, `"processed":10`)
		assert.Contains(t, logOutput, `"sections":24`)
	})
}
