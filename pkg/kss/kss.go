// Package kss implements a KSS ("Knyle Style Sheets") styleguide toolchain:
// it extracts documentation comments from stylesheet source, parses blocks
// that follow the KSS convention into styleguide sections, and renders a
// Markdown styleguide tree mirroring the input directory.
//
// Small-scale callers can parse in memory with ParseStyleguide or the comment
// subpackage. GenerateStyleguide drives the full concurrent engine with
// caching, plugins, git metadata, and templated output.
package kss

import "context"

// GenerateStyleguide runs one full generation pass: it walks opts.InputPath,
// renders a page per stylesheet with styleguide sections, and writes the tree
// plus an overview index under opts.OutputPath. The returned Report is
// populated even when the run fails partway. Callers needing to reuse
// validated options across runs can construct an Engine directly.
func GenerateStyleguide(ctx context.Context, opts Options) (Report, error) {
	engine, err := NewEngine(ctx, opts)
	if err != nil {
		return Report{}, err
	}
	return engine.Run()
}
