// Package testutil provides shared testify mocks for the collaborator
// interfaces of the kss library, plus small filesystem helpers for building
// test fixtures.
package testutil

import (
	"context"
	"io"
	"text/template"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/onehub/kss/pkg/kss"
	"github.com/onehub/kss/pkg/kss/encoding"
	"github.com/onehub/kss/pkg/kss/language"
	tpl "github.com/onehub/kss/pkg/kss/template"
)

// MockCacheManager is a testify mock for kss.CacheManager.
type MockCacheManager struct {
	mock.Mock
}

func (m *MockCacheManager) Load(cachePath string) error {
	args := m.Called(cachePath)
	return args.Error(0)
}

func (m *MockCacheManager) Check(filePath string, modTime time.Time, contentHash string, configHash string) (bool, string, []kss.SectionSummary) {
	args := m.Called(filePath, modTime, contentHash, configHash)
	isHit, _ := args.Get(0).(bool)
	outputHash, _ := args.Get(1).(string)
	sections, _ := args.Get(2).([]kss.SectionSummary)
	return isHit, outputHash, sections
}

func (m *MockCacheManager) Update(filePath string, modTime time.Time, sourceHash string, configHash string, outputHash string, sections []kss.SectionSummary) error {
	args := m.Called(filePath, modTime, sourceHash, configHash, outputHash, sections)
	return args.Error(0)
}

func (m *MockCacheManager) Persist(cachePath string) error {
	args := m.Called(cachePath)
	return args.Error(0)
}

// MockLanguageDetector is a testify mock for language.LanguageDetector.
type MockLanguageDetector struct {
	mock.Mock
}

func (m *MockLanguageDetector) Detect(content []byte, filePath string) (string, float64, error) {
	args := m.Called(content, filePath)
	lang, _ := args.Get(0).(string)
	confidence, _ := args.Get(1).(float64)
	return lang, confidence, args.Error(2)
}

// MockEncodingHandler is a testify mock for encoding.EncodingHandler.
type MockEncodingHandler struct {
	mock.Mock
}

func (m *MockEncodingHandler) DetectAndDecode(content []byte) ([]byte, string, bool, error) {
	args := m.Called(content)
	utf8Content, _ := args.Get(0).([]byte)
	detectedEncoding, _ := args.Get(1).(string)
	certainty, _ := args.Get(2).(bool)
	return utf8Content, detectedEncoding, certainty, args.Error(3)
}

func (m *MockEncodingHandler) IsBinary(content []byte) bool {
	args := m.Called(content)
	isBinary, _ := args.Get(0).(bool)
	return isBinary
}

// MockGitMetadataProvider is a testify mock for kss.GitMetadataProvider.
type MockGitMetadataProvider struct {
	mock.Mock
}

func (m *MockGitMetadataProvider) GetFileMetadata(repoPath, filePath string) (map[string]string, error) {
	args := m.Called(repoPath, filePath)
	metadata, _ := args.Get(0).(map[string]string)
	return metadata, args.Error(1)
}

// MockPluginRunner is a testify mock for kss.PluginRunner.
type MockPluginRunner struct {
	mock.Mock
}

func (m *MockPluginRunner) Run(ctx context.Context, stage string, pluginConfig kss.PluginConfig, input kss.PluginInput) (kss.PluginOutput, error) {
	args := m.Called(ctx, stage, pluginConfig, input)
	output, _ := args.Get(0).(kss.PluginOutput)
	return output, args.Error(1)
}

// MockTemplateExecutor is a testify mock for template.TemplateExecutor.
type MockTemplateExecutor struct {
	mock.Mock
}

func (m *MockTemplateExecutor) Execute(writer io.Writer, tmpl *template.Template, data any) error {
	args := m.Called(writer, tmpl, data)
	return args.Error(0)
}

// MockHooks is a testify mock for kss.Hooks. Hook methods are invoked
// concurrently from walker and worker goroutines; testify's call recording is
// safe for that, but any extra state a test attaches must be synchronized by
// the test itself.
type MockHooks struct {
	mock.Mock
}

func (m *MockHooks) OnFileDiscovered(path string) error {
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockHooks) OnFileStatusUpdate(path string, status kss.Status, message string, duration time.Duration) error {
	args := m.Called(path, status, message, duration)
	return args.Error(0)
}

func (m *MockHooks) OnRunComplete(report kss.Report) error {
	args := m.Called(report)
	return args.Error(0)
}

var (
	_ kss.CacheManager          = (*MockCacheManager)(nil)
	_ kss.GitMetadataProvider   = (*MockGitMetadataProvider)(nil)
	_ kss.PluginRunner          = (*MockPluginRunner)(nil)
	_ kss.Hooks                 = (*MockHooks)(nil)
	_ language.LanguageDetector = (*MockLanguageDetector)(nil)
	_ encoding.EncodingHandler  = (*MockEncodingHandler)(nil)
	_ tpl.TemplateExecutor      = (*MockTemplateExecutor)(nil)
)
