// Package language identifies the language of source files and gates which
// of them count as stylesheet input for styleguide generation.
package language

import (
	"path/filepath"
	"strings"

	"github.com/go-enry/go-enry/v2"
)

// LanguageDetector defines the interface for determining the language of a
// file based on its content and/or filename.
type LanguageDetector interface {
	// Detect attempts to identify the language of the given content, using
	// the file path as a hint or fallback.
	//
	// The returned language identifier is always lowercase ("css", "scss",
	// "plaintext", ...). The confidence score is indicative: 1.0 for user
	// overrides, 0.8 for content-based detection, 0.5 for extension or
	// filename fallback, 0.0 for unknown/plaintext. Errors are rare since
	// detection failures fall back to "plaintext".
	Detect(content []byte, filePath string) (language string, confidence float64, err error)
}

// Indicative confidence scores returned by Detect.
const (
	confidenceOverride  = 1.0
	confidenceContent   = 0.8
	confidenceExtension = 0.5
)

// stylesheetLanguages holds the lowercase identifiers accepted as stylesheet
// source.
var stylesheetLanguages = map[string]struct{}{
	"css":    {},
	"scss":   {},
	"sass":   {},
	"less":   {},
	"stylus": {},
}

// IsStylesheet reports whether a detected language identifier names a
// stylesheet dialect.
func IsStylesheet(lang string) bool {
	_, ok := stylesheetLanguages[strings.ToLower(lang)]
	return ok
}

// goEnryDetector implements LanguageDetector using the go-enry library,
// honoring user extension overrides before any heuristic. Content-based
// detection is only trusted when its score meets confidenceThreshold;
// otherwise extension and filename mapping decide.
type goEnryDetector struct {
	confidenceThreshold float64
	overrides           map[string]string // extension -> language identifier
}

// NewGoEnryDetector creates a language detector backed by go-enry.
// Overrides are normalized to a lowercase extension with leading dot mapping
// to a lowercase language identifier; blank entries are dropped.
func NewGoEnryDetector(confidenceThreshold float64, overrides map[string]string) LanguageDetector {
	normalized := make(map[string]string)
	for ext, lang := range overrides {
		ext = strings.ToLower(strings.TrimSpace(ext))
		lang = strings.ToLower(strings.TrimSpace(lang))
		if ext == "" || ext == "." || lang == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized[ext] = lang
	}
	return &goEnryDetector{
		confidenceThreshold: confidenceThreshold,
		overrides:           normalized,
	}
}

// Detect implements LanguageDetector. Priority: user overrides, then
// combined content/filename analysis, then extension, then special
// filenames, then the plaintext fallback.
func (d *goEnryDetector) Detect(content []byte, filePath string) (string, float64, error) {
	if len(content) == 0 {
		return "unknown", 0.0, nil
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	filename := filepath.Base(filePath)

	if lang, ok := d.overrides[ext]; ok {
		return lang, confidenceOverride, nil
	}

	if lang := enry.GetLanguage(filename, content); lang != "" && lang != "Text" {
		if confidenceContent >= d.confidenceThreshold {
			return strings.ToLower(lang), confidenceContent, nil
		}
	}

	if lang, safe := enry.GetLanguageByExtension(filePath); safe && lang != "" && lang != "Text" {
		return strings.ToLower(lang), confidenceExtension, nil
	}

	if lang, safe := enry.GetLanguageByFilename(filePath); safe && lang != "" && lang != "Text" {
		return strings.ToLower(lang), confidenceExtension, nil
	}

	return "plaintext", 0.0, nil
}
