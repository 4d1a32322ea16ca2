// Package config merges styleguide generator settings from defaults, an
// optional kss.yaml file, a named profile, KSS_* environment variables, and
// command-line flags, then validates the result into a kss.Options ready for
// the engine. Precedence from highest to lowest: flags, environment, profile,
// config file, defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/onehub/kss/pkg/kss"
	tpl "github.com/onehub/kss/pkg/kss/template"
)

const (
	// EnvPrefix is the prefix for environment variable overrides, so the key
	// "concurrency" is read from KSS_CONCURRENCY.
	EnvPrefix = "KSS"
	// DefaultConfigName is the config file base name searched for when no
	// --config flag is given (kss.yaml and friends).
	DefaultConfigName = "kss"

	defaultOutputDirName = "styleguide"
)

// flagBindings maps viper configuration keys to the flag names defined in
// cmd/kss. Binding each flag to the key its Options field unmarshals from
// keeps a single canonical key per setting across file, env, and flags.
var flagBindings = map[string]string{
	"outputPath":           "output",
	"forceOverwrite":       "force",
	"verbose":              "verbose",
	"ignore":               "ignore",
	"onError":              "onError",
	"concurrency":          "concurrency",
	"gitMetadata":          "git-metadata",
	"outputFormat":         "output-format",
	"templateFile":         "template",
	"largeFileThresholdMB": "large-file-threshold",
	"largeFileMode":        "large-file-mode",
	"binaryMode":           "binary-mode",
	"extensions":           "extensions",
	"preserveWhitespace":   "preserve-whitespace",
	"defaultEncoding":      "default-encoding",
	"frontMatter.enabled":  "front-matter",
}

// LoadAndValidate loads configuration from all sources, validates the merged
// result, derives paths and thresholds, loads the page template, and sets up
// the logger. inputArg is the positional <input> argument and, when non-empty,
// overrides any inputPath from config or environment. Interface collaborators
// (cache manager, git provider, plugin runner) are not wired here; the CLI
// layer injects them after loading.
func LoadAndValidate(inputArg, cfgFile, profileName, appVersion string, verbose bool, flags *pflag.FlagSet) (kss.Options, *slog.Logger, error) {
	var opts kss.Options
	v := viper.New()

	// Basic logger for errors raised before verbosity is known.
	tempLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		home, err := os.UserHomeDir()
		if err != nil {
			tempLogger.Debug("Could not resolve user home directory, skipping home config paths", slog.Any("error", err))
		} else {
			v.AddConfigPath(filepath.Join(home, ".config", DefaultConfigName))
			v.AddConfigPath(filepath.Join(home, "."+DefaultConfigName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && cfgFile == "" {
			tempLogger.Debug("No configuration file found, using defaults/env/flags")
		} else {
			configFileUsed := cfgFile
			if configFileUsed == "" {
				configFileUsed = fmt.Sprintf("searched locations for %s.yaml", DefaultConfigName)
			}
			tempLogger.Error("Error reading configuration file", slog.String("path", configFileUsed), slog.Any("error", err))
			return opts, tempLogger, fmt.Errorf("error reading config file '%s': %w", configFileUsed, err)
		}
	} else {
		opts.ConfigFilePath = v.ConfigFileUsed()
		tempLogger.Debug("Using configuration file", slog.String("path", opts.ConfigFilePath))
	}

	opts.ProfileName = profileName
	if profileName != "" {
		profileKey := "profiles." + profileName
		if !v.IsSet(profileKey) {
			configPath := v.ConfigFileUsed()
			if configPath == "" {
				configPath = "(no config file found)"
			}
			err := fmt.Errorf("profile '%s' not found in config file '%s'", profileName, configPath)
			tempLogger.Error(err.Error())
			return opts, tempLogger, err
		}
		profileSettings := v.Sub(profileKey)
		if profileSettings == nil {
			err := fmt.Errorf("failed to load profile '%s' settings from config file '%s'", profileName, v.ConfigFileUsed())
			tempLogger.Error(err.Error())
			return opts, tempLogger, err
		}
		if err := v.MergeConfigMap(profileSettings.AllSettings()); err != nil {
			tempLogger.Error("Error merging profile", slog.String("profile", profileName), slog.Any("error", err))
			return opts, tempLogger, fmt.Errorf("error merging profile '%s': %w", profileName, err)
		}
		tempLogger.Debug("Applied configuration profile", slog.String("profile", profileName))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for key, flagName := range flagBindings {
		flag := flags.Lookup(flagName)
		if flag == nil {
			tempLogger.Debug("Flag lookup failed during binding", slog.String("flag", flagName))
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			tempLogger.Error("Error binding flag", slog.String("flag", flagName), slog.Any("error", err))
			return opts, tempLogger, fmt.Errorf("error binding flag '--%s': %w", flagName, err)
		}
	}

	opts.AppVersion = appVersion

	if err := v.Unmarshal(&opts); err != nil {
		tempLogger.Error("Error unmarshalling configuration", slog.Any("error", err))
		return opts, tempLogger, fmt.Errorf("error unmarshalling configuration: %w", err)
	}

	// The positional argument beats any inputPath from file or environment.
	if inputArg != "" {
		opts.InputPath = inputArg
		tempLogger.Debug("Input path set from positional argument", slog.String("path", opts.InputPath))
	}
	if verbose {
		opts.Verbose = true
	}

	// Flags without a direct Options key: inverse toggles and cache controls.
	if flags.Changed("no-tui") {
		if noTui, _ := flags.GetBool("no-tui"); noTui {
			opts.TuiEnabled = false
		}
	}
	if flags.Changed("no-cache") {
		opts.IgnoreCacheRead, _ = flags.GetBool("no-cache")
	}
	if flags.Changed("clear-cache") {
		opts.ClearCache, _ = flags.GetBool("clear-cache")
	}

	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logHandler)
	opts.Logger = logHandler

	if opts.TemplatePath != "" {
		absTplPath, pathErr := filepath.Abs(opts.TemplatePath)
		if pathErr != nil {
			err := fmt.Errorf("%w: cannot resolve absolute path for template file '%s': %w", kss.ErrConfigValidation, opts.TemplatePath, pathErr)
			logger.Error(err.Error(), slog.String("key", "templateFile"))
			return opts, logger, err
		}
		opts.TemplatePath = absTplPath

		tplInfo, statErr := os.Stat(opts.TemplatePath)
		if statErr != nil {
			err := fmt.Errorf("%w: template file specified via 'templateFile' or --template ('%s') does not exist or cannot be accessed: %w",
				kss.ErrConfigValidation, opts.TemplatePath, statErr)
			logger.Error(err.Error(), slog.String("key", "templateFile"))
			return opts, logger, err
		}
		if tplInfo.IsDir() {
			err := fmt.Errorf("%w: template path specified ('%s') is a directory, not a file", kss.ErrConfigValidation, opts.TemplatePath)
			logger.Error(err.Error(), slog.String("key", "templateFile"))
			return opts, logger, err
		}

		customTmpl, loadErr := tpl.LoadTemplateFile(opts.TemplatePath)
		if loadErr != nil {
			err := fmt.Errorf("%w: %w", kss.ErrConfigValidation, loadErr)
			logger.Error("Failed to load custom template file", slog.String("path", opts.TemplatePath), slog.String("error", loadErr.Error()))
			return opts, logger, err
		}
		opts.Template = customTmpl
		logger.Debug("Loaded custom template", slog.String("path", opts.TemplatePath))
	} else {
		defaultTmpl, err := tpl.LoadDefaultTemplate()
		if err != nil {
			logger.Error("Critical: failed to load embedded default template", slog.String("error", err.Error()))
			return opts, logger, fmt.Errorf("critical internal error: failed to load default template: %w", err)
		}
		opts.Template = defaultTmpl
		logger.Debug("Using embedded default template")
	}

	if err := validateAndDeriveOptions(&opts, logger, flags); err != nil {
		return opts, logger, err
	}

	logger.Debug("Configuration loading and validation complete",
		slog.String("configFile", opts.ConfigFilePath),
		slog.String("profile", opts.ProfileName),
		slog.Bool("verbose", opts.Verbose),
		slog.String("logLevel", logLevel.String()),
	)

	return opts, logger, nil
}

// setDefaults establishes the default value for every configuration key so
// environment overrides are visible to Unmarshal even without a config file.
func setDefaults(v *viper.Viper) {
	// Behavior and control.
	v.SetDefault("inputPath", "")
	v.SetDefault("outputPath", defaultOutputDirName)
	v.SetDefault("forceOverwrite", kss.DefaultForceOverwrite)
	v.SetDefault("verbose", kss.DefaultVerbose)
	v.SetDefault("tuiEnabled", kss.DefaultTuiEnabled)
	v.SetDefault("onError", string(kss.DefaultOnErrorMode))

	// Performance and caching.
	v.SetDefault("concurrency", kss.DefaultConcurrency)
	v.SetDefault("cache", kss.DefaultCacheEnabled)

	// File handling.
	v.SetDefault("ignore", []string{})
	v.SetDefault("binaryMode", string(kss.DefaultBinaryMode))
	v.SetDefault("largeFileThresholdMB", kss.DefaultLargeFileThresholdMB)
	v.SetDefault("largeFileMode", string(kss.DefaultLargeFileMode))
	v.SetDefault("defaultEncoding", "")
	v.SetDefault("extensions", kss.DefaultStylesheetExtensions)

	// Language detection and parsing.
	v.SetDefault("languageMappings", map[string]string{})
	v.SetDefault("languageDetectionConfidenceThreshold", kss.DefaultLanguageDetectionConfidenceThreshold)
	v.SetDefault("preserveWhitespace", kss.DefaultPreserveWhitespace)

	// Output and formatting.
	v.SetDefault("templateFile", "")
	v.SetDefault("outputFormat", string(kss.DefaultOutputFormat))
	v.SetDefault("frontMatter.enabled", kss.DefaultFrontMatterEnabled)
	v.SetDefault("frontMatter.format", string(kss.DefaultFrontMatterFormat))
	v.SetDefault("frontMatter.static", map[string]interface{}{})
	v.SetDefault("frontMatter.include", []string{})

	// Metadata and extensibility.
	v.SetDefault("gitMetadata", kss.DefaultGitMetadataEnabled)
	v.SetDefault("plugins", []map[string]interface{}{})
}

// isValidEnumValue checks if a value is present in the allowed enum values.
// Comparison is case-sensitive.
func isValidEnumValue[T ~string](value T, allowedValues []T) bool {
	return slices.Contains(allowedValues, value)
}

// validateAndDeriveOptions performs semantic validation on the populated
// Options and calculates derived fields. Validation errors wrap
// kss.ErrConfigValidation.
func validateAndDeriveOptions(opts *kss.Options, logger *slog.Logger, flags *pflag.FlagSet) error {
	if opts.InputPath == "" {
		err := fmt.Errorf("%w: input path is required (pass the <input> argument or set 'inputPath')", kss.ErrConfigValidation)
		logger.Error(err.Error(), slog.String("key", "InputPath"))
		return err
	}
	absInput, err := filepath.Abs(opts.InputPath)
	if err != nil {
		err = fmt.Errorf("%w: cannot resolve absolute input path '%s': %w", kss.ErrConfigValidation, opts.InputPath, err)
		logger.Error(err.Error(), slog.String("key", "InputPath"))
		return err
	}
	opts.InputPath = absInput
	info, err := os.Stat(opts.InputPath)
	if err != nil {
		if os.IsNotExist(err) {
			err = fmt.Errorf("%w: input path '%s' does not exist", kss.ErrConfigValidation, opts.InputPath)
		} else {
			err = fmt.Errorf("%w: cannot access input path '%s': %w", kss.ErrConfigValidation, opts.InputPath, err)
		}
		logger.Error(err.Error(), slog.String("key", "InputPath"), slog.String("value", opts.InputPath))
		return err
	}
	if !info.IsDir() {
		err = fmt.Errorf("%w: input path '%s' is not a directory", kss.ErrConfigValidation, opts.InputPath)
		logger.Error(err.Error(), slog.String("key", "InputPath"), slog.String("value", opts.InputPath))
		return err
	}
	logger.Debug("Validated input path", slog.String("path", opts.InputPath))

	if opts.OutputPath == "" {
		err := fmt.Errorf("%w: output path is required (-o, --output)", kss.ErrConfigValidation)
		logger.Error(err.Error(), slog.String("key", "OutputPath"))
		return err
	}
	absOutput, err := filepath.Abs(opts.OutputPath)
	if err != nil {
		err = fmt.Errorf("%w: cannot resolve absolute output path '%s': %w", kss.ErrConfigValidation, opts.OutputPath, err)
		logger.Error(err.Error(), slog.String("key", "OutputPath"))
		return err
	}
	opts.OutputPath = absOutput
	// Create the output directory now to surface permission problems early.
	if mkdirErr := os.MkdirAll(opts.OutputPath, 0o755); mkdirErr != nil {
		err := fmt.Errorf("%w: cannot create or access output directory '%s': %w", kss.ErrConfigValidation, opts.OutputPath, mkdirErr)
		logger.Error(err.Error(), slog.String("key", "OutputPath"), slog.String("value", opts.OutputPath))
		return err
	}
	logger.Debug("Resolved and verified output path", slog.String("path", opts.OutputPath))

	allowedOnError := []kss.OnErrorMode{kss.OnErrorContinue, kss.OnErrorStop}
	if !isValidEnumValue(opts.OnErrorMode, allowedOnError) {
		err := fmt.Errorf("%w: invalid value '%s' for key 'onError' (flag --onError). Allowed: %v", kss.ErrConfigValidation, opts.OnErrorMode, allowedOnError)
		logger.Error(err.Error(), slog.String("key", "onError"), slog.String("value", string(opts.OnErrorMode)))
		return err
	}
	allowedBinaryMode := []kss.BinaryMode{kss.BinarySkip, kss.BinaryError}
	if !isValidEnumValue(opts.BinaryMode, allowedBinaryMode) {
		err := fmt.Errorf("%w: invalid value '%s' for key 'binaryMode' (flag --binary-mode). Allowed: %v", kss.ErrConfigValidation, opts.BinaryMode, allowedBinaryMode)
		logger.Error(err.Error(), slog.String("key", "binaryMode"), slog.String("value", string(opts.BinaryMode)))
		return err
	}
	allowedLargeFileMode := []kss.LargeFileMode{kss.LargeFileSkip, kss.LargeFileError}
	if !isValidEnumValue(opts.LargeFileMode, allowedLargeFileMode) {
		err := fmt.Errorf("%w: invalid value '%s' for key 'largeFileMode' (flag --large-file-mode). Allowed: %v", kss.ErrConfigValidation, opts.LargeFileMode, allowedLargeFileMode)
		logger.Error(err.Error(), slog.String("key", "largeFileMode"), slog.String("value", string(opts.LargeFileMode)))
		return err
	}
	allowedOutputFormat := []kss.OutputFormat{kss.OutputFormatText, kss.OutputFormatJSON}
	if !isValidEnumValue(opts.OutputFormat, allowedOutputFormat) {
		err := fmt.Errorf("%w: invalid value '%s' for key 'outputFormat' (flag --output-format). Allowed: %v", kss.ErrConfigValidation, opts.OutputFormat, allowedOutputFormat)
		logger.Error(err.Error(), slog.String("key", "outputFormat"), slog.String("value", string(opts.OutputFormat)))
		return err
	}
	if opts.FrontMatterConfig.Enabled {
		allowedFrontMatterFormat := []kss.FrontMatterFormat{kss.FrontMatterYAML, kss.FrontMatterTOML, kss.FrontMatterJSON}
		if !isValidEnumValue(opts.FrontMatterConfig.Format, allowedFrontMatterFormat) {
			err := fmt.Errorf("%w: invalid value '%s' for key 'frontMatter.format'. Allowed: %v", kss.ErrConfigValidation, opts.FrontMatterConfig.Format, allowedFrontMatterFormat)
			logger.Error(err.Error(), slog.String("key", "frontMatter.format"), slog.String("value", string(opts.FrontMatterConfig.Format)))
			return err
		}
	}

	if opts.Concurrency < 0 {
		err := fmt.Errorf("%w: invalid value '%d' for key 'concurrency' (flag --concurrency). Must be >= 0", kss.ErrConfigValidation, opts.Concurrency)
		logger.Error(err.Error(), slog.String("key", "concurrency"), slog.Int("value", opts.Concurrency))
		return err
	}
	if opts.LargeFileThresholdMB < 0 {
		err := fmt.Errorf("%w: invalid value '%d' for key 'largeFileThresholdMB' (flag --large-file-threshold). Must be >= 0", kss.ErrConfigValidation, opts.LargeFileThresholdMB)
		logger.Error(err.Error(), slog.String("key", "largeFileThresholdMB"), slog.Int64("value", opts.LargeFileThresholdMB))
		return err
	}
	if opts.LanguageDetectionConfidenceThreshold < 0.0 || opts.LanguageDetectionConfidenceThreshold > 1.0 {
		err := fmt.Errorf("%w: invalid value '%f' for key 'languageDetectionConfidenceThreshold'. Must be between 0.0 and 1.0", kss.ErrConfigValidation, opts.LanguageDetectionConfidenceThreshold)
		logger.Error(err.Error(), slog.String("key", "languageDetectionConfidenceThreshold"), slog.Float64("value", opts.LanguageDetectionConfidenceThreshold))
		return err
	}

	if len(opts.StylesheetExtensions) == 0 {
		err := fmt.Errorf("%w: key 'extensions' (flag --extensions) must list at least one stylesheet extension", kss.ErrConfigValidation)
		logger.Error(err.Error(), slog.String("key", "extensions"))
		return err
	}
	normalized := make([]string, 0, len(opts.StylesheetExtensions))
	for _, ext := range opts.StylesheetExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	opts.StylesheetExtensions = normalized

	allowedStages := []string{kss.PluginStagePreprocessor, kss.PluginStagePostprocessor, kss.PluginStageFormatter}
	for _, p := range opts.PluginConfigs {
		if !p.Enabled {
			continue
		}
		if len(p.Command) == 0 {
			err := fmt.Errorf("%w: plugin '%s' is enabled but has no command", kss.ErrConfigValidation, p.Name)
			logger.Error(err.Error(), slog.String("key", "plugins"), slog.String("plugin", p.Name))
			return err
		}
		if !isValidEnumValue(p.Stage, allowedStages) {
			err := fmt.Errorf("%w: invalid stage '%s' for plugin '%s'. Allowed: %v", kss.ErrConfigValidation, p.Stage, p.Name, allowedStages)
			logger.Error(err.Error(), slog.String("key", "plugins"), slog.String("plugin", p.Name))
			return err
		}
	}

	if opts.EventHooks == nil {
		opts.EventHooks = &kss.NoOpHooks{}
	}
	if opts.FrontMatterConfig.Static == nil {
		opts.FrontMatterConfig.Static = map[string]interface{}{}
	}
	if opts.FrontMatterConfig.Include == nil {
		opts.FrontMatterConfig.Include = []string{}
	}

	if opts.Concurrency == 0 {
		opts.Concurrency = runtime.NumCPU()
		logger.Debug("Concurrency not set, defaulting to number of CPUs", slog.Int("concurrency", opts.Concurrency))
	}
	opts.LargeFileThreshold = opts.LargeFileThresholdMB * 1024 * 1024
	if opts.CacheFilePath == "" {
		opts.CacheFilePath = filepath.Join(opts.OutputPath, kss.CacheFileName)
	}

	// Verbose streams per-file logs to stderr, which the TUI would fight over.
	if opts.Verbose {
		if opts.TuiEnabled && !flags.Changed("no-tui") {
			logger.Debug("Verbose mode enabled, TUI disabled")
		}
		opts.TuiEnabled = false
	}

	logger.Debug("Final derived settings validated",
		slog.Int("concurrency", opts.Concurrency),
		slog.Int64("largeFileThresholdBytes", opts.LargeFileThreshold),
		slog.String("cacheFilePath", opts.CacheFilePath),
		slog.Bool("tuiEnabledEffective", opts.TuiEnabled),
	)

	return nil
}
