// Package template renders styleguide pages and the overview index from
// parsed section data using Go's text/template engine.
package template

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/template"
	"time"
)

//go:embed styleguide.md
var pageTemplateContent string

//go:embed index.md
var indexTemplateContent string

// TemplateMetadata holds the data passed to the template engine when
// rendering the documentation page for a single stylesheet.
type TemplateMetadata struct {
	FilePath           string
	FileName           string
	OutputPath         string
	Content            string
	DetectedLanguage   string
	LanguageConfidence float64
	SizeBytes          int64
	ModTime            time.Time
	ContentHash        string
	Sections           []SectionData
	GitInfo            *GitInfo
	FrontMatter        map[string]interface{}
}

// SectionData is the template-facing view of one styleguide section.
type SectionData struct {
	Reference   string
	Description string
	Markup      string
	Modifiers   []ModifierData
}

// ModifierData is the template-facing view of one section modifier. ClassName
// carries the corresponding CSS class with pseudo-classes rewritten so markup
// examples can render every state as a plain class.
type ModifierData struct {
	Name        string
	ClassName   string
	Description string
}

// GitInfo holds metadata retrieved from Git for the source file.
type GitInfo struct {
	Commit      string
	Author      string
	AuthorEmail string
	DateISO     string
}

// IndexMetadata holds the data passed to the template engine when rendering
// the overview index that links every section across the run.
type IndexMetadata struct {
	InputPath    string
	GeneratedAt  time.Time
	AppVersion   string
	FileCount    int
	SectionCount int
	Entries      []IndexEntry
}

// IndexEntry is one row of the overview index, ordered by section reference.
type IndexEntry struct {
	Reference   string
	Description string
	Page        string
}

// TemplateExecutor defines the interface for executing a Go template.
//
// Stability: Public Stable API. Implementations can be provided externally.
type TemplateExecutor interface {
	// Execute renders the provided template with the given data, writing the
	// output to the writer. data is *TemplateMetadata for styleguide pages
	// and *IndexMetadata for the overview index. Implementations must handle
	// a nil template by falling back to the default page template.
	Execute(writer io.Writer, template *template.Template, data any) error
}

// GoTemplateExecutor implements TemplateExecutor using text/template. This is
// the default implementation.
type GoTemplateExecutor struct{}

// NewGoTemplateExecutor creates a new GoTemplateExecutor.
func NewGoTemplateExecutor() *GoTemplateExecutor {
	return &GoTemplateExecutor{}
}

// Execute runs the template, using the default page template if tmpl is nil.
func (e *GoTemplateExecutor) Execute(writer io.Writer, tmpl *template.Template, data any) error {
	if tmpl == nil {
		defaultTmpl, err := LoadDefaultTemplate()
		if err != nil {
			basicTmpl, parseErr := template.New("basic").Parse(
				"# {{ .FileName }}\n\n{{ range .Sections }}## Section {{ .Reference }}\n\n{{ .Description }}\n\n{{ end }}")
			if parseErr != nil {
				return fmt.Errorf("failed to parse basic fallback template after default load failed: %w (default load error: %v)", parseErr, err)
			}
			tmpl = basicTmpl
		} else {
			tmpl = defaultTmpl
		}
	}
	if err := tmpl.Execute(writer, data); err != nil {
		return fmt.Errorf("template execution failed for %q: %w", tmpl.Name(), err)
	}
	return nil
}

// customTemplateFuncs defines the custom functions available within both the
// embedded templates and any user-supplied template file.
var customTemplateFuncs = template.FuncMap{
	// relLink computes a relative markdown link from the page generated for
	// currentSourcePath to the page generated for targetSourcePath. Pages keep
	// the full source name, so "base/type.scss" links as "base/type.scss.md".
	"relLink": func(targetSourcePath string, currentSourcePath string) (string, error) {
		currentDir := filepath.Dir(currentSourcePath)
		relative, err := filepath.Rel(currentDir, targetSourcePath+".md")
		if err != nil {
			return "", fmt.Errorf("failed to calculate relative link from %q to %q: %w", currentSourcePath, targetSourcePath, err)
		}
		return filepath.ToSlash(relative), nil
	},
	// formatDate renders t using Go's time.Format syntax. The layout comes
	// first so the function composes in pipelines:
	//
	//	{{ .ModTime | formatDate "Jan 2, 2006" }}
	"formatDate": func(layout string, t time.Time) string {
		if layout == "" {
			layout = time.RFC3339
		}
		return t.Format(layout)
	},
}

// LoadDefaultTemplate parses the embedded styleguide page template and
// registers the custom functions.
func LoadDefaultTemplate() (*template.Template, error) {
	if pageTemplateContent == "" {
		return nil, fmt.Errorf("embedded styleguide template content is empty (likely missing styleguide.md file)")
	}
	tmpl, err := template.New("styleguide").Funcs(customTemplateFuncs).Parse(pageTemplateContent)
	if err != nil {
		return nil, fmt.Errorf("failed to parse styleguide template: %w", err)
	}
	return tmpl, nil
}

// LoadTemplateFile parses a user-supplied template file and registers the same
// custom functions the embedded templates use, so custom pages can call
// relLink and formatDate too. The template is named after the file's base name.
func LoadTemplateFile(path string) (*template.Template, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file %q: %w", path, err)
	}
	tmpl, err := template.New(filepath.Base(path)).Funcs(customTemplateFuncs).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template file %q: %w", path, err)
	}
	return tmpl, nil
}

// LoadIndexTemplate parses the embedded overview index template and registers
// the custom functions.
func LoadIndexTemplate() (*template.Template, error) {
	if indexTemplateContent == "" {
		return nil, fmt.Errorf("embedded index template content is empty (likely missing index.md file)")
	}
	tmpl, err := template.New("index").Funcs(customTemplateFuncs).Parse(indexTemplateContent)
	if err != nil {
		return nil, fmt.Errorf("failed to parse index template: %w", err)
	}
	return tmpl, nil
}
