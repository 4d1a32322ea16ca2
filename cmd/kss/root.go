package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/onehub/kss/internal/cli"
	"github.com/onehub/kss/internal/cli/config"
	"github.com/onehub/kss/pkg/kss"
)

var (
	// Populated at build time via -ldflags.
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// newRootCmd builds the root command. Every call returns an independent
// command with its own flag state; kss takes the input directory as a
// positional argument and everything else as flags.
func newRootCmd() *cobra.Command {
	var (
		cfgFile     string
		profileName string
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "kss [<input>]",
		Short: "Generates a Markdown styleguide from KSS comments in stylesheets.",
		Long: `kss scans a stylesheet tree for documentation comments written in the KSS
convention ("Knyle Style Sheets"), parses them into styleguide sections, and
renders a Markdown styleguide mirroring the input directory.

It features:
  - Parallel processing with content-based incremental caching.
  - Nested .kssignore files in gitignore syntax.
  - Customizable page output via Go templates and front matter.
  - Extensibility via external plugins.
  - An interactive terminal UI for monitoring progress.

The input directory can be passed as the positional argument or through the
"inputPath" configuration key.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			inputArg := ""
			if len(args) > 0 {
				inputArg = args[0]
			}

			opts, logger, err := config.LoadAndValidate(inputArg, cfgFile, profileName, version, verbose, cmd.Flags())
			if err != nil {
				return err
			}

			return cli.Run(ctx, opts, logger)
		},
	}
	cmd.SetVersionTemplate(`{{.Name}} version {{.Version}}` + "\n")

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file path (default searches ., ~/.config/kss, ~/.kss)")
	cmd.PersistentFlags().StringVar(&profileName, "profile", "", "Configuration profile to apply")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose (debug) logging; disables the terminal UI")

	cmd.Flags().StringP("output", "o", "styleguide", "Output directory for the generated styleguide")
	cmd.Flags().BoolP("force", "f", false, "Overwrite a non-empty output directory without confirmation")
	cmd.Flags().Bool("no-tui", false, "Disable the terminal UI even on a TTY")
	cmd.Flags().StringArray("ignore", []string{}, "Glob pattern to ignore (repeatable)")
	cmd.Flags().String("onError", string(kss.DefaultOnErrorMode), `Behavior on file errors ("continue" or "stop")`)
	cmd.Flags().Int("concurrency", kss.DefaultConcurrency, "Number of parallel workers (0 = CPU count)")
	cmd.Flags().Bool("no-cache", false, "Ignore cache reads and reprocess everything (still writes the cache)")
	cmd.Flags().Bool("clear-cache", false, "Delete the cache index before running")
	cmd.Flags().Bool("git-metadata", kss.DefaultGitMetadataEnabled, "Include last-commit metadata on rendered pages")
	cmd.Flags().String("output-format", string(kss.DefaultOutputFormat), `Final report format ("text" or "json")`)
	cmd.Flags().String("template", "", "Path to a custom Go template for styleguide pages")
	cmd.Flags().Int64("large-file-threshold", kss.DefaultLargeFileThresholdMB, "Size threshold in MB for large file handling")
	cmd.Flags().String("large-file-mode", string(kss.DefaultLargeFileMode), `Handling for large files ("skip" or "error")`)
	cmd.Flags().String("binary-mode", string(kss.DefaultBinaryMode), `Handling for binary files ("skip" or "error")`)
	cmd.Flags().StringSlice("extensions", kss.DefaultStylesheetExtensions, "File extensions treated as stylesheets")
	cmd.Flags().Bool("preserve-whitespace", kss.DefaultPreserveWhitespace, "Keep raw comment indentation instead of normalizing it")
	cmd.Flags().String("default-encoding", "", `Fallback encoding for source files (e.g. "latin-1")`)
	cmd.Flags().Bool("front-matter", kss.DefaultFrontMatterEnabled, "Emit front matter on generated pages")

	return cmd
}

// Execute runs a freshly built root command and returns its error so main can
// map it to an exit code.
func Execute() error {
	return newRootCmd().Execute()
}
