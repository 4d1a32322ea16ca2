package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteFile writes a test fixture file, creating parent directories as
// needed.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	fullPath := filepath.Clean(path)
	require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0o755),
		"creating directory for fixture %s", fullPath)
	require.NoError(t, os.WriteFile(fullPath, []byte(content), 0o644),
		"writing fixture %s", fullPath)
}

// MkDir ensures a directory exists, creating parents as needed.
func MkDir(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Clean(path), 0o755),
		"creating fixture directory %s", path)
}
