package kss

import (
	"regexp"
	"strings"
)

// Paragraphs within a cleaned comment block are separated by one blank line.
const paragraphSeparator = "\n\n"

var (
	// styleguideRefPattern captures the reference portion of a styleguide
	// declaration, e.g. "Styleguide 2.1.3." captures "2.1.3.". The capture
	// runs to the end of the declaration line.
	styleguideRefPattern = regexp.MustCompile(`(?i)Styleguide (.+)`)

	// styleguideBlockPattern recognizes a declaration whose reference starts
	// with a digit; only such blocks belong in the styleguide.
	styleguideBlockPattern = regexp.MustCompile(`(?i)Styleguide \d`)

	// markupLabelPattern matches the label introducing an example markup
	// paragraph, e.g. "Markup: <button>...".
	markupLabelPattern = regexp.MustCompile(`(?i)^\s*Markup:\s*`)
)

// IsStyleguideBlock reports whether a cleaned comment block documents a
// styleguide section. A block qualifies when its final paragraph contains a
// "Styleguide X" declaration (case-insensitive) whose reference starts with
// a digit.
func IsStyleguideBlock(block string) bool {
	paragraphs := strings.Split(block, paragraphSeparator)
	return styleguideBlockPattern.MatchString(paragraphs[len(paragraphs)-1])
}

// Section represents one documented styleguide entry: the description,
// example markup, modifiers and reference parsed from a single comment
// block. Sections are immutable once created.
type Section struct {
	raw      string
	filename string

	reference   string
	description string
	markup      string
	modifiers   []Modifier
}

// NewSection parses a cleaned comment block into a Section. The filename is
// recorded for reporting only and may be empty. Parsing never fails; a block
// without a recognizable declaration yields a Section with an empty
// reference.
func NewSection(raw, filename string) Section {
	s := Section{raw: raw, filename: filename}
	s.parse()
	return s
}

// Raw returns the comment block text the section was parsed from.
func (s Section) Raw() string { return s.raw }

// Filename returns the name of the file the section was found in.
func (s Section) Filename() string { return s.filename }

// Reference returns the styleguide reference, e.g. "2.1.3". A trailing
// period on the declaration is not part of the reference.
func (s Section) Reference() string { return s.reference }

// Description returns the descriptive paragraphs of the block joined by
// blank lines, excluding the modifiers, markup and reference paragraphs.
func (s Section) Description() string { return s.description }

// Markup returns the example markup paragraph with its "Markup:" label
// stripped, or an empty string when the block has none.
func (s Section) Markup() string { return s.markup }

// Modifiers returns the modifiers documented by the block in source order.
func (s Section) Modifiers() []Modifier { return s.modifiers }

func (s *Section) parse() {
	paragraphs := strings.Split(s.raw, paragraphSeparator)

	refParagraph := referenceParagraph(paragraphs)
	modParagraph := modifiersParagraph(paragraphs, refParagraph)

	var descParts []string
	for _, p := range paragraphs {
		switch {
		case p == refParagraph || p == modParagraph:
		case markupLabelPattern.MatchString(p):
			if s.markup == "" {
				s.markup = markupLabelPattern.ReplaceAllString(p, "")
			}
		default:
			descParts = append(descParts, p)
		}
	}
	s.description = strings.Join(descParts, paragraphSeparator)

	for _, p := range paragraphs {
		if m := styleguideRefPattern.FindStringSubmatch(p); m != nil {
			s.reference = strings.TrimSuffix(m[1], ".")
		}
	}

	if modParagraph != "" {
		s.modifiers = parseModifiers(modParagraph)
	}
}

// referenceParagraph returns the first paragraph carrying the styleguide
// declaration, or "" when the block has none.
func referenceParagraph(paragraphs []string) string {
	for _, p := range paragraphs {
		if strings.Contains(strings.ToLower(p), "styleguide") {
			return p
		}
	}
	return ""
}

// modifiersParagraph returns the paragraph holding the modifier list: the
// last paragraph after the first that is neither the reference declaration
// nor example markup.
func modifiersParagraph(paragraphs []string, refParagraph string) string {
	for i := len(paragraphs) - 1; i >= 1; i-- {
		p := paragraphs[i]
		if p == refParagraph || markupLabelPattern.MatchString(p) {
			continue
		}
		return p
	}
	return ""
}

// parseModifiers splits a modifiers paragraph into Modifier values. Each
// non-blank line splits on the first " - " into name and description; a line
// indented deeper than the previous one continues the previous modifier's
// description. Lines without the separator are ignored.
func parseModifiers(paragraph string) []Modifier {
	var mods []Modifier
	lastIndent := -1

	for _, line := range strings.Split(paragraph, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := len(line) - len(strings.TrimLeft(line, " \t"))

		if lastIndent >= 0 && indent > lastIndent && len(mods) > 0 {
			mods[len(mods)-1].Description += squeezeSpaces(line)
		} else if parts := strings.Split(line, " - "); len(parts) >= 2 {
			mods = append(mods, Modifier{
				Name:        strings.TrimSpace(parts[0]),
				Description: strings.TrimSpace(parts[1]),
			})
		}
		lastIndent = indent
	}
	return mods
}

// squeezeSpaces collapses every run of spaces in s into a single space, so a
// continuation line contributes exactly one separating space.
func squeezeSpaces(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inRun := false
	for _, r := range s {
		if r == ' ' {
			if inRun {
				continue
			}
			inRun = true
		} else {
			inRun = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
