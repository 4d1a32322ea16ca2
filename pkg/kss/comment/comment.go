// Package comment extracts documentation comment blocks from stylesheet
// source text.
//
// The parser scans its input line by line, recognizes single-line (//) and
// multi-line (/* */) comment syntax, strips the markers, folds consecutive
// comment lines into blocks, and normalizes each block's leading indentation.
// Matching is purely lexical: there is no awareness of string literals or
// nested comments, and no comment delimiters beyond the two C-style forms are
// recognized. The result is an ordered sequence of plain-text blocks suitable
// for styleguide parsing (see the parent kss package).
package comment

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// maxLineBytes caps the scanner's token size. Minified stylesheets routinely
// put hundreds of kilobytes on a single line, far past bufio's default.
const maxLineBytes = 10 * 1024 * 1024

var (
	reSingleLine = regexp.MustCompile(`^\s*//`)
	reMultiStart = regexp.MustCompile(`^\s*/\*`)

	reSingleMarker     = regexp.MustCompile(`\s*//`)
	reMultiStartMarker = regexp.MustCompile(`\s*/\*`)
	reMultiEndMarker   = regexp.MustCompile(`\*/`)

	reContinuation = regexp.MustCompile(`(?m)^\s*\*+`)
	reLeadingSpace = regexp.MustCompile(`^\s*`)
)

// IsSingleLineComment reports whether the line, ignoring leading whitespace,
// begins with //.
func IsSingleLineComment(line string) bool {
	return reSingleLine.MatchString(line)
}

// StartsMultiLineComment reports whether the line, ignoring leading
// whitespace, begins with /*.
func StartsMultiLineComment(line string) bool {
	return reMultiStart.MatchString(line)
}

// EndsMultiLineComment reports whether the line contains a closing */ marker.
// A line that is itself a single-line comment never ends a multi-line
// comment; single-line classification takes precedence here.
func EndsMultiLineComment(line string) bool {
	if IsSingleLineComment(line) {
		return false
	}
	return strings.Contains(line, "*/")
}

// StripSingleLineMarker removes the first occurrence of optional whitespace
// followed by // and trims trailing whitespace. Lines without the marker come
// back unchanged apart from the trailing trim.
func StripSingleLineMarker(line string) string {
	return trimTrailing(stripFirst(line, reSingleMarker))
}

// StripMultiLineMarkers removes the first occurrence of optional whitespace
// followed by /*, then the first */ in what remains, and trims trailing
// whitespace. The two removals are independent, so lines carrying only one of
// the markers are handled the same way.
func StripMultiLineMarkers(line string) string {
	line = stripFirst(line, reMultiStartMarker)
	line = stripFirst(line, reMultiEndMarker)
	return trimTrailing(line)
}

func stripFirst(line string, re *regexp.Regexp) string {
	if loc := re.FindStringIndex(line); loc != nil {
		return line[:loc[0]] + line[loc[1]:]
	}
	return line
}

func trimTrailing(line string) string {
	return strings.TrimRightFunc(line, unicode.IsSpace)
}

// Config holds the recognized parse options.
type Config struct {
	// PreserveWhitespace disables block normalization entirely: no
	// continuation-marker stripping, no indent removal, no trimming.
	PreserveWhitespace bool
}

// Source identifies one parse input. Whether the input is a file on disk or a
// literal chunk of text is declared by the caller up front; the parser never
// probes the filesystem to guess, so text that happens to look like an
// existing path is still treated as text. Construct with FileSource or
// TextSource; the zero value is an empty text source.
type Source struct {
	path     string
	text     string
	fromFile bool
}

// FileSource declares the input to be the file at path. The file is opened
// lazily, once, when the parse runs.
func FileSource(path string) Source {
	return Source{path: path, fromFile: true}
}

// TextSource declares the input to be the literal text itself.
func TextSource(text string) Source {
	return Source{text: text}
}

// Name returns the file path for file sources and a fixed placeholder for
// text sources, for use in error and log messages.
func (s Source) Name() string {
	if s.fromFile {
		return s.path
	}
	return "<text>"
}

func (s Source) open() (io.ReadCloser, error) {
	if s.fromFile {
		f, err := os.Open(s.path)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	return io.NopCloser(strings.NewReader(s.text)), nil
}

// Parser extracts comment blocks from a single Source. The parse runs once,
// on the first Blocks call, and the result is cached: repeated access returns
// the identical sequence without re-reading the input. Distinct Parsers are
// fully independent and may run concurrently.
type Parser struct {
	source Source
	config Config

	once   sync.Once
	blocks []string
	err    error
}

// NewParser returns a Parser over source. Nothing is read until Blocks is
// called.
func NewParser(source Source, config Config) *Parser {
	return &Parser{source: source, config: config}
}

// Blocks returns the normalized comment blocks in source order. A file source
// that cannot be opened or read fails the parse atomically; the error is
// cached along with the (empty) result. The returned slice is shared between
// calls and must not be modified.
func (p *Parser) Blocks() ([]string, error) {
	p.once.Do(func() {
		p.blocks, p.err = p.parse()
	})
	return p.blocks, p.err
}

func (p *Parser) parse() ([]string, error) {
	in, err := p.source.open()
	if err != nil {
		return nil, fmt.Errorf("comment: open %s: %w", p.source.Name(), err)
	}
	defer in.Close()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var blocks []string
	st := parseState{}
	for scanner.Scan() {
		var flushed string
		var ok bool
		st, flushed, ok = advanceLine(st, scanner.Text())
		if ok {
			blocks = append(blocks, normalizeBlock(flushed, p.config.PreserveWhitespace))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("comment: read %s: %w", p.source.Name(), err)
	}
	// End of input acts as an implicit non-comment line: whatever is still
	// open flushes now, unterminated multi-line comments included.
	if flushed, ok := finishParse(st); ok {
		blocks = append(blocks, normalizeBlock(flushed, p.config.PreserveWhitespace))
	}
	return blocks, nil
}

// parseState is the accumulator state threaded through advanceLine, passed
// and returned by value. Between lines the machine is conceptually in one of
// three states: idle (open false), in a single-line run, or in a multi-line
// run; when both run flags are momentarily set, the multi-line run is the
// effective state. An open block with empty text is still an open block: a
// bare "//" line produces one empty block.
type parseState struct {
	block     string
	open      bool
	singleRun bool
	multiRun  bool
}

// advanceLine feeds one line through the four transition steps in their fixed
// order and returns the next state plus the raw flushed block, if this line
// closed one. Normalization is the caller's job.
func advanceLine(st parseState, line string) (parseState, string, bool) {
	single := IsSingleLineComment(line)

	if single {
		stripped := StripSingleLineMarker(line)
		if st.singleRun {
			st.block += "\n" + stripped
		} else {
			st.block = stripped
			st.open = true
			st.singleRun = true
		}
	}

	// An active multi-line run swallows every line until its closing marker,
	// so this step also fires for lines step one already claimed; running
	// second makes the multi-line run supersede.
	if StartsMultiLineComment(line) || st.multiRun {
		stripped := StripMultiLineMarkers(line)
		if st.multiRun {
			st.block += "\n" + stripped
		} else {
			st.block = stripped
			st.open = true
			st.multiRun = true
		}
	}

	if EndsMultiLineComment(line) {
		st.multiRun = false
	}

	if !single && !st.multiRun && st.open {
		flushed := st.block
		st.block = ""
		st.open = false
		st.singleRun = false
		return st, flushed, true
	}
	return st, "", false
}

// finishParse flushes a block left open by the final input line.
func finishParse(st parseState) (string, bool) {
	if !st.open {
		return "", false
	}
	return st.block, true
}

// normalizeBlock strips leading continuation markers (whitespace followed by
// asterisks) from every line, removes the indent measured on the block's
// first line from lines at least that deep, and trims the block as a whole.
// Using only the first line as the reference width is a deliberate
// simplification, not a minimal-indent computation: lines with shallower
// indents pass through untouched.
func normalizeBlock(text string, preserveWhitespace bool) string {
	if preserveWhitespace {
		return text
	}
	text = reContinuation.ReplaceAllString(text, "")

	lines := strings.Split(text, "\n")
	indent := -1
	for i, line := range lines {
		leading := len(reLeadingSpace.FindString(line))
		if indent < 0 {
			indent = leading
		}
		if line != "" && indent > 0 && leading >= indent {
			lines[i] = line[indent:]
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
