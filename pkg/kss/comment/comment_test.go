package comment_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onehub/kss/pkg/kss/comment"
)

// TestClassifier verifies the three line predicates, including the degenerate
// near-miss inputs where the two start patterns could be confused.
func TestClassifier(t *testing.T) {
	testCases := []struct {
		name        string
		line        string
		singleLine  bool
		startsMulti bool
		endsMulti   bool
	}{
		{name: "Empty", line: "", singleLine: false, startsMulti: false, endsMulti: false},
		{name: "Whitespace only", line: "   \t", singleLine: false, startsMulti: false, endsMulti: false},
		{name: "Plain code", line: "width: 10px;", singleLine: false, startsMulti: false, endsMulti: false},
		{name: "Single-line comment", line: "// hello", singleLine: true, startsMulti: false, endsMulti: false},
		{name: "Indented single-line comment", line: "   // hello", singleLine: true, startsMulti: false, endsMulti: false},
		{name: "Multi-line start", line: "/* hello", singleLine: false, startsMulti: true, endsMulti: false},
		{name: "Indented multi-line start", line: "\t/* hello", singleLine: false, startsMulti: true, endsMulti: false},
		{name: "Multi-line start and end", line: "/* hello */", singleLine: false, startsMulti: true, endsMulti: true},
		{name: "Multi-line end on code line", line: "foo */", singleLine: false, startsMulti: false, endsMulti: true},
		{name: "Bare end marker", line: "*/", singleLine: false, startsMulti: false, endsMulti: true},
		// A single-line comment can never also end a multi-line comment.
		{name: "Single-line comment containing end marker", line: "// has */ inside", singleLine: true, startsMulti: false, endsMulti: false},
		// Degenerate near-misses: the two start patterns are mutually exclusive.
		{name: "Slash slash star", line: "//*", singleLine: true, startsMulti: false, endsMulti: false},
		// "/*/" is not a single-line comment and contains "*/", so the end
		// predicate holds even though the same characters opened the comment.
		{name: "Slash star slash", line: "/*/", singleLine: false, startsMulti: true, endsMulti: true},
		{name: "Space between slashes", line: "/ /*", singleLine: false, startsMulti: false, endsMulti: false},
		{name: "Inline trailing comment is not a comment line", line: "width: 10px; // note", singleLine: false, startsMulti: false, endsMulti: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.singleLine, comment.IsSingleLineComment(tc.line), "IsSingleLineComment mismatch")
			assert.Equal(t, tc.startsMulti, comment.StartsMultiLineComment(tc.line), "StartsMultiLineComment mismatch")
			assert.Equal(t, tc.endsMulti, comment.EndsMultiLineComment(tc.line), "EndsMultiLineComment mismatch")
			if tc.singleLine {
				assert.False(t, comment.StartsMultiLineComment(tc.line), "single-line and multi-line starts must be mutually exclusive")
			}
		})
	}
}

// TestStripSingleLineMarker verifies marker removal and trailing-whitespace
// trimming for single-line comments.
func TestStripSingleLineMarker(t *testing.T) {
	testCases := []struct {
		name     string
		line     string
		expected string
	}{
		{name: "Basic", line: "// hello", expected: " hello"},
		{name: "Indented", line: "   // hello", expected: " hello"},
		{name: "Trailing whitespace trimmed", line: "// hello   \t", expected: " hello"},
		{name: "Bare marker", line: "//", expected: ""},
		{name: "No marker", line: "plain text  ", expected: "plain text"},
		{name: "Marker mid-line", line: "code // note", expected: "code note"},
		{name: "Only first occurrence removed", line: "// a // b", expected: " a // b"},
		{name: "Empty", line: "", expected: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, comment.StripSingleLineMarker(tc.line))
		})
	}
}

// TestStripMultiLineMarkers verifies that the opening and closing markers are
// removed independently.
func TestStripMultiLineMarkers(t *testing.T) {
	testCases := []struct {
		name     string
		line     string
		expected string
	}{
		{name: "Open only", line: "/* hello", expected: " hello"},
		{name: "Close only", line: "hello */", expected: "hello"},
		{name: "Open and close", line: "/* hello */", expected: " hello"},
		// Each removal is exact: the space before "*/" and the one after it
		// both survive, so two spaces remain between "a" and "b".
		{name: "Close with trailing content", line: "/* a */ b", expected: " a  b"},
		{name: "Indented open", line: "  /* hello", expected: " hello"},
		{name: "Neither marker", line: "hello   ", expected: "hello"},
		{name: "Bare close", line: "*/", expected: ""},
		{name: "Continuation line untouched", line: " * body", expected: " * body"},
		{name: "Empty", line: "", expected: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, comment.StripMultiLineMarkers(tc.line))
		})
	}
}

// TestParserBlocks drives the accumulator end to end over raw text sources.
func TestParserBlocks(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "Empty input",
			input:    "",
			expected: nil,
		},
		{
			name:     "No comments",
			input:    "a { color: red; }\nb { color: blue; }",
			expected: nil,
		},
		{
			name:     "Consecutive single-line comments form one block",
			input:    "// This comment\n// is awesome.",
			expected: []string{"This comment\nis awesome."},
		},
		{
			name:     "Code line splits single-line runs",
			input:    "// A\na { }\n// B",
			expected: []string{"A", "B"},
		},
		{
			name:     "Blank line splits single-line runs",
			input:    "// A\n\n// B",
			expected: []string{"A", "B"},
		},
		{
			name:     "Multi-line comment",
			input:    "/* line1\nline2 */",
			expected: []string{"line1\nline2"},
		},
		{
			name:     "Multi-line comment with closing marker on own line",
			input:    "/* This is a multi-line comment\n   that spans multiple lines\n*/",
			expected: []string{"This is a multi-line comment\n  that spans multiple lines"},
		},
		{
			name:     "Star continuation markers are stripped",
			input:    "/* Multi-line comments with stars\n * should continue to work\n */",
			expected: []string{"Multi-line comments with stars\nshould continue to work"},
		},
		{
			name:     "One-line multi comment with trailing code",
			input:    "/* a */ b",
			expected: []string{"a  b"},
		},
		{
			name:     "Unterminated multi-line comment flushes at end of input",
			input:    "/* open\nstill open",
			expected: []string{"open\nstill open"},
		},
		{
			name:     "Bare single-line marker yields one empty block",
			input:    "//",
			expected: []string{""},
		},
		{
			name:     "Inline comments on code lines are ignored",
			input:    "a { width: 1px; } // note\nb { } /* inline */",
			expected: nil,
		},
		{
			name:     "Mixed runs in order",
			input:    "// first\n\n/* second\nparagraph */\n\n// third",
			expected: []string{"first", "second\nparagraph", "third"},
		},
		{
			name:     "Windows line endings",
			input:    "// A\r\n// B\r\n",
			expected: []string{"A\nB"},
		},
		{
			name: "Single-line comment inside an open multi-line run defers to the multi-line run",
			// Step one clobbers the open block, step two then continues the
			// multi-line run over the same line; the run ends normally.
			input:    "/* start\n// weird\nend */",
			expected: []string{"weird\n// weird\nend"},
		},
		{
			name:     "Multi-line start directly after a single-line run supersedes the open block",
			input:    "// single\n/* multi */",
			expected: []string{"multi"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := comment.NewParser(comment.TextSource(tc.input), comment.Config{})
			blocks, err := p.Blocks()
			require.NoError(t, err)
			if tc.expected == nil {
				assert.Empty(t, blocks, "expected no blocks")
			} else {
				assert.Equal(t, tc.expected, blocks)
			}
		})
	}
}

// TestParserPreserveWhitespace verifies that the option bypasses
// normalization entirely while marker stripping still applies.
func TestParserPreserveWhitespace(t *testing.T) {
	input := "//    foo\n//    bar"

	normalized, err := comment.NewParser(comment.TextSource(input), comment.Config{}).Blocks()
	require.NoError(t, err)
	assert.Equal(t, []string{"foo\nbar"}, normalized)

	preserved, err := comment.NewParser(comment.TextSource(input), comment.Config{PreserveWhitespace: true}).Blocks()
	require.NoError(t, err)
	assert.Equal(t, []string{"    foo\n    bar"}, preserved)
}

// TestParserIndentHeuristic pins the first-line reference-width behavior:
// deeper lines keep their surplus indent and shallower lines pass through.
func TestParserIndentHeuristic(t *testing.T) {
	blocks, err := comment.NewParser(comment.TextSource("//  two\n//   three\n// one"), comment.Config{}).Blocks()
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	// First line's two-space indent is the reference: the three-space line
	// keeps one space, the one-space line is too shallow to touch.
	assert.Equal(t, "two\n three\n one", blocks[0])
}

// TestParserIdempotence covers both repeated access on one parser and
// independent parses over the same input.
func TestParserIdempotence(t *testing.T) {
	input := "// A\n// B\n\n/* C */"

	p := comment.NewParser(comment.TextSource(input), comment.Config{})
	first, err := p.Blocks()
	require.NoError(t, err)
	second, err := p.Blocks()
	require.NoError(t, err)
	assert.Equal(t, first, second, "repeated Blocks calls must return identical sequences")

	other, err := comment.NewParser(comment.TextSource(input), comment.Config{}).Blocks()
	require.NoError(t, err)
	assert.Equal(t, first, other, "independent parses of the same input must agree")
}

// TestParserFileSource exercises the file-backed input path.
func TestParserFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "buttons.css")
	content := "// A button.\n//\n// Styleguide 1.1\n.button { color: red; }\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	blocks, err := comment.NewParser(comment.FileSource(path), comment.Config{}).Blocks()
	require.NoError(t, err)
	assert.Equal(t, []string{"A button.\n\nStyleguide 1.1"}, blocks)
}

func TestParserFileSourceMissing(t *testing.T) {
	p := comment.NewParser(comment.FileSource(filepath.Join(t.TempDir(), "absent.css")), comment.Config{})
	blocks, err := p.Blocks()
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Nil(t, blocks)

	// The failure is cached like a successful parse would be.
	_, err2 := p.Blocks()
	assert.Equal(t, err, err2)
}

// TestTextSourceNeverTouchesFilesystem pins the discriminated-input contract:
// text that happens to name an existing file is still parsed as text.
func TestTextSourceNeverTouchesFilesystem(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "real.css")
	require.NoError(t, os.WriteFile(path, []byte("// from the file\n"), 0o644))

	blocks, err := comment.NewParser(comment.TextSource(path), comment.Config{}).Blocks()
	require.NoError(t, err)
	assert.Empty(t, blocks, "a path-shaped text source must be parsed literally, not opened")
}

func TestSourceName(t *testing.T) {
	assert.Equal(t, "a/b.css", comment.FileSource("a/b.css").Name())
	assert.Equal(t, "<text>", comment.TextSource("// x").Name())
}
