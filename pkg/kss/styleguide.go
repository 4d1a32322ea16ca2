package kss

import (
	"cmp"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/onehub/kss/pkg/kss/comment"
)

// DefaultStylesheetExtensions lists the file extensions ParseStyleguide
// treats as stylesheet source when walking directories.
var DefaultStylesheetExtensions = []string{".css", ".scss", ".sass", ".less", ".styl", ".stylus"}

// Styleguide aggregates parsed sections across any number of source files,
// indexed by styleguide reference. The zero value is not usable; construct
// with NewStyleguide.
type Styleguide struct {
	sections map[string]Section
	order    []string
}

// NewStyleguide returns an empty styleguide.
func NewStyleguide() *Styleguide {
	return &Styleguide{sections: make(map[string]Section)}
}

// Add stores a section under its reference. Adding a section whose reference
// is already present replaces the earlier one.
func (g *Styleguide) Add(section Section) {
	ref := section.Reference()
	if _, exists := g.sections[ref]; !exists {
		g.order = append(g.order, ref)
	}
	g.sections[ref] = section
}

// Section returns the section registered under the given reference.
func (g *Styleguide) Section(reference string) (Section, bool) {
	s, ok := g.sections[reference]
	return s, ok
}

// Len returns the number of distinct references held.
func (g *Styleguide) Len() int {
	return len(g.sections)
}

// References returns every known reference ordered numerically segment by
// segment, so "2.1.10" sorts after "2.1.9" rather than before "2.1.2".
func (g *Styleguide) References() []string {
	refs := slices.Clone(g.order)
	slices.SortFunc(refs, CompareReferences)
	return refs
}

// Sections returns all sections in reference order.
func (g *Styleguide) Sections() []Section {
	refs := g.References()
	out := make([]Section, 0, len(refs))
	for _, ref := range refs {
		out = append(out, g.sections[ref])
	}
	return out
}

// ParseFile extracts comments from one stylesheet file and adds every
// styleguide block found to the guide.
func (g *Styleguide) ParseFile(path string) error {
	return g.parseSource(comment.FileSource(path), filepath.Base(path))
}

// ParseText extracts comments from raw stylesheet text and adds every
// styleguide block found to the guide. The filename is recorded on resulting
// sections for reporting and may be empty.
func (g *Styleguide) ParseText(text, filename string) error {
	return g.parseSource(comment.TextSource(text), filename)
}

func (g *Styleguide) parseSource(src comment.Source, filename string) error {
	blocks, err := comment.NewParser(src, comment.Config{}).Blocks()
	if err != nil {
		return fmt.Errorf("extract comments from %s: %w", src.Name(), err)
	}
	for _, block := range blocks {
		if IsStyleguideBlock(block) {
			g.Add(NewSection(block, filename))
		}
	}
	return nil
}

// ParseStyleguide walks the given files and directories sequentially and
// aggregates every styleguide block found in stylesheet sources. Directories
// are walked recursively, visiting files whose extension appears in
// DefaultStylesheetExtensions; paths naming a file directly are parsed
// regardless of extension. This is the small-scale library entry point; the
// Engine provides the concurrent, cached equivalent.
func ParseStyleguide(paths ...string) (*Styleguide, error) {
	guide := NewStyleguide()
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("styleguide path %s: %w", path, err)
		}
		if !info.IsDir() {
			if err := guide.ParseFile(path); err != nil {
				return nil, err
			}
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() || !hasStylesheetExtension(p) {
				return nil
			}
			return guide.ParseFile(p)
		})
		if err != nil {
			return nil, fmt.Errorf("walk styleguide path %s: %w", path, err)
		}
	}
	return guide, nil
}

func hasStylesheetExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return slices.Contains(DefaultStylesheetExtensions, ext)
}

// CompareReferences orders two styleguide references for display. References
// compare segment by segment on "." boundaries; numeric segments compare by
// value and sort before non-numeric ones, non-numeric segments compare
// lexicographically. When one reference is a prefix of the other, the
// shorter sorts first.
func CompareReferences(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aErr := strconv.Atoi(as[i])
		bn, bErr := strconv.Atoi(bs[i])
		switch {
		case aErr == nil && bErr == nil:
			if an != bn {
				return cmp.Compare(an, bn)
			}
		case aErr == nil:
			return -1
		case bErr == nil:
			return 1
		default:
			if c := strings.Compare(as[i], bs[i]); c != 0 {
				return c
			}
		}
	}
	return cmp.Compare(len(as), len(bs))
}
