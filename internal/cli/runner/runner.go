// Package runner executes external plugins as child processes, speaking the
// JSON stdio protocol documented in docs/plugin_schema.md.
package runner

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"

	"github.com/onehub/kss/pkg/kss"
)

const (
	// maxLogOutputBytes limits the size of stdout captured in logs on JSON errors.
	maxLogOutputBytes = 1024
	// maxPluginReadBytes caps stdout/stderr capture to guard against runaway plugins.
	maxPluginReadBytes = 10 * 1024 * 1024
)

//go:embed plugin_output.schema.json
var pluginOutputSchemaJSON string

// execPluginRunner implements the kss.PluginRunner interface using os/exec.
type execPluginRunner struct {
	logger       *slog.Logger
	outputSchema *gojsonschema.Schema
}

// NewExecPluginRunner creates a plugin runner that executes plugins as
// external processes and validates their stdout against the embedded plugin
// output schema.
func NewExecPluginRunner(loggerHandler slog.Handler) kss.PluginRunner {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	logger := slog.New(loggerHandler).With(slog.String("component", "pluginRunner"))

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(pluginOutputSchemaJSON))
	if err != nil {
		logger.Warn("Failed to compile plugin output schema, structural validation disabled", "error", err.Error())
		schema = nil
	}
	return &execPluginRunner{logger: logger, outputSchema: schema}
}

func pluginErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{kss.ErrPluginExecution}, args...)...)
}

func wrapPluginError(specificError error, format string, args ...interface{}) error {
	baseMsg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%w: %s: %w", kss.ErrPluginExecution, baseMsg, specificError)
}

// Run executes the specified plugin process.
func (r *execPluginRunner) Run(ctx context.Context, stage string, pluginCfg kss.PluginConfig, input kss.PluginInput) (kss.PluginOutput, error) {
	logArgs := []any{
		slog.String("plugin", pluginCfg.Name),
		slog.String("stage", stage),
		slog.String("path", input.FilePath),
	}

	if len(pluginCfg.Command) == 0 {
		err := fmt.Errorf("plugin command cannot be empty")
		r.logger.Error("Plugin configuration error", append(logArgs, slog.Any("error", err))...)
		return kss.PluginOutput{}, pluginErrorf("plugin configuration error for '%s': %w", pluginCfg.Name, err)
	}

	input.SchemaVersion = kss.PluginSchemaVersion

	inputJSON, marshalErr := json.Marshal(input)
	if marshalErr != nil {
		r.logger.Error("Failed to marshal plugin input JSON", append(logArgs, slog.Any("error", marshalErr))...)
		return kss.PluginOutput{}, wrapPluginError(kss.ErrPluginBadOutput, "failed to marshal input for plugin '%s': %v", pluginCfg.Name, marshalErr)
	}

	// command[0] runs directly with command[1:] as arguments, no shell
	// interpretation.
	cmd := exec.CommandContext(ctx, pluginCfg.Command[0], pluginCfg.Command[1:]...)

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		r.logger.Error("Failed to create stdin pipe for plugin", append(logArgs, slog.Any("error", err))...)
		return kss.PluginOutput{}, pluginErrorf("failed to create stdin pipe for plugin '%s': %w", pluginCfg.Name, err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		r.logger.Error("Failed to create stdout pipe for plugin", append(logArgs, slog.Any("error", err))...)
		return kss.PluginOutput{}, pluginErrorf("failed to create stdout pipe for plugin '%s': %w", pluginCfg.Name, err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		r.logger.Error("Failed to create stderr pipe for plugin", append(logArgs, slog.Any("error", err))...)
		return kss.PluginOutput{}, pluginErrorf("failed to create stderr pipe for plugin '%s': %w", pluginCfg.Name, err)
	}

	if startErr := cmd.Start(); startErr != nil {
		r.logger.Error("Failed to start plugin process", append(logArgs, slog.String("command", strings.Join(pluginCfg.Command, " ")), slog.Any("error", startErr))...)
		return kss.PluginOutput{}, pluginErrorf("failed to start plugin '%s' command '%s': %w", pluginCfg.Name, pluginCfg.Command[0], startErr)
	}

	r.logger.Debug("Plugin process started", logArgs...)

	var wg sync.WaitGroup
	var writeErr error
	var stdoutData, stderrData []byte
	var readStdoutErr, readStderrErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if closeErr := stdinPipe.Close(); closeErr != nil && !errors.Is(closeErr, syscall.EPIPE) && !errors.Is(closeErr, os.ErrClosed) && !strings.Contains(closeErr.Error(), "file already closed") {
				r.logger.Warn("Error closing plugin stdin pipe", append(logArgs, slog.Any("error", closeErr))...)
			}
		}()
		_, writeErr = stdinPipe.Write(inputJSON)
		if writeErr != nil {
			r.logger.Warn("Error writing to plugin stdin", append(logArgs, slog.Any("error", writeErr))...)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		var stdoutBuf bytes.Buffer
		lr := io.LimitReader(stdoutPipe, maxPluginReadBytes)
		bytesRead, copyErr := io.Copy(&stdoutBuf, lr)
		readStdoutErr = copyErr
		stdoutData = stdoutBuf.Bytes()

		if readStdoutErr == nil && bytesRead >= maxPluginReadBytes {
			readStdoutErr = fmt.Errorf("plugin stdout exceeded limit of %d bytes", maxPluginReadBytes)
			r.logger.Warn("Plugin stdout truncated", append(logArgs, slog.Int64("limit_bytes", maxPluginReadBytes))...)
			// Drain the rest so the process can exit cleanly.
			_, _ = io.Copy(io.Discard, stdoutPipe)
		} else if readStdoutErr != nil && !errors.Is(readStdoutErr, io.ErrClosedPipe) && !errors.Is(readStdoutErr, io.EOF) {
			r.logger.Warn("Error reading plugin stdout", append(logArgs, slog.Any("error", readStdoutErr))...)
		} else {
			readStdoutErr = nil
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		var stderrBuf bytes.Buffer
		lr := io.LimitReader(stderrPipe, maxPluginReadBytes)
		bytesRead, copyErr := io.Copy(&stderrBuf, lr)
		readStderrErr = copyErr
		stderrData = stderrBuf.Bytes()
		if readStderrErr == nil && bytesRead >= maxPluginReadBytes {
			r.logger.Warn("Plugin stderr truncated", append(logArgs, slog.Int64("limit_bytes", maxPluginReadBytes))...)
			_, _ = io.Copy(io.Discard, stderrPipe)
			readStderrErr = nil
		} else if readStderrErr != nil && !errors.Is(readStderrErr, io.ErrClosedPipe) && !errors.Is(readStderrErr, io.EOF) {
			r.logger.Warn("Error reading plugin stderr", append(logArgs, slog.Any("error", readStderrErr))...)
		} else {
			readStderrErr = nil
		}
	}()

	// All pipe reads must finish before Wait, which closes the pipes.
	wg.Wait()
	waitErr := cmd.Wait()
	stderrString := strings.TrimSpace(string(stderrData))

	if ctx.Err() != nil {
		if len(stderrString) > 0 {
			logArgs = append(logArgs, slog.String("plugin_stderr", stderrString))
		}
		r.logger.Error("Plugin execution cancelled or timed out", append(logArgs, slog.Any("error", ctx.Err()))...)
		return kss.PluginOutput{}, wrapPluginError(kss.ErrPluginTimeout, "plugin '%s' execution cancelled or timed out: %v", pluginCfg.Name, ctx.Err())
	}

	if writeErr != nil && !errors.Is(writeErr, syscall.EPIPE) && !errors.Is(writeErr, os.ErrClosed) {
		if len(stderrString) > 0 {
			logArgs = append(logArgs, slog.String("plugin_stderr", stderrString))
		}
		r.logger.Error("Plugin failed due to stdin write error", append(logArgs, slog.Any("error", writeErr))...)
		return kss.PluginOutput{}, wrapPluginError(kss.ErrPluginExecution, "failed writing input to plugin '%s': %v", pluginCfg.Name, writeErr)
	}

	if waitErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		logArgs = append(logArgs, slog.Int("exitCode", exitCode), slog.Any("error", waitErr))
		if len(stderrString) > 0 {
			logArgs = append(logArgs, slog.String("plugin_stderr", stderrString))
		}
		r.logger.Error("Plugin execution failed", logArgs...)
		return kss.PluginOutput{}, wrapPluginError(kss.ErrPluginNonZeroExit, "plugin '%s' execution failed with exit code %d: %v", pluginCfg.Name, exitCode, waitErr)
	}

	if readStdoutErr != nil {
		if len(stderrString) > 0 {
			logArgs = append(logArgs, slog.String("plugin_stderr", stderrString))
		}
		r.logger.Error("Plugin execution succeeded but failed to read stdout", append(logArgs, slog.Any("error", readStdoutErr))...)
		if strings.Contains(readStdoutErr.Error(), "stdout exceeded limit") {
			return kss.PluginOutput{}, wrapPluginError(kss.ErrPluginBadOutput, "plugin '%s' stdout exceeded read limit (%d bytes)", pluginCfg.Name, maxPluginReadBytes)
		}
		return kss.PluginOutput{}, wrapPluginError(kss.ErrPluginBadOutput, "error reading stdout from plugin '%s': %v", pluginCfg.Name, readStdoutErr)
	}
	if readStderrErr != nil {
		r.logger.Warn("Error occurred while reading plugin stderr after process exit", append(logArgs, slog.Any("error", readStderrErr))...)
	}

	if len(stdoutData) == 0 {
		if len(stderrString) > 0 {
			logArgs = append(logArgs, slog.String("plugin_stderr", stderrString))
		}
		r.logger.Error("Plugin returned empty output", logArgs...)
		return kss.PluginOutput{}, wrapPluginError(kss.ErrPluginBadOutput, "plugin '%s' returned empty stdout", pluginCfg.Name)
	}

	return r.decodeOutput(pluginCfg, stdoutData, stderrString, logArgs)
}

// decodeOutput validates the captured stdout and unmarshals it into a
// kss.PluginOutput. The schema version is peeked with gjson before the full
// structural validation so a stale plugin fails with a precise message.
func (r *execPluginRunner) decodeOutput(pluginCfg kss.PluginConfig, stdoutData []byte, stderrString string, logArgs []any) (kss.PluginOutput, error) {
	appendStderr := func(args []any) []any {
		if len(stderrString) > 0 {
			return append(args, slog.String("plugin_stderr", stderrString))
		}
		return args
	}

	if !gjson.ValidBytes(stdoutData) {
		logStdout := string(stdoutData)
		if len(logStdout) > maxLogOutputBytes {
			logStdout = logStdout[:maxLogOutputBytes] + "... (truncated)"
		}
		r.logger.Error("Plugin stdout is not valid JSON", appendStderr(append(logArgs, slog.String("stdout_prefix", logStdout)))...)
		return kss.PluginOutput{}, wrapPluginError(kss.ErrPluginBadOutput, "plugin '%s' produced invalid JSON on stdout", pluginCfg.Name)
	}

	schemaVersion := gjson.GetBytes(stdoutData, "$schemaVersion").String()
	if schemaVersion != kss.PluginSchemaVersion {
		r.logger.Error("Plugin schema version mismatch", appendStderr(append(logArgs,
			slog.String("expected_schema", kss.PluginSchemaVersion),
			slog.String("plugin_schema", schemaVersion)))...)
		return kss.PluginOutput{}, wrapPluginError(kss.ErrPluginBadOutput, "plugin '%s' uses incompatible schema version '%s', expected '%s'", pluginCfg.Name, schemaVersion, kss.PluginSchemaVersion)
	}

	if r.outputSchema != nil {
		result, validateErr := r.outputSchema.Validate(gojsonschema.NewBytesLoader(stdoutData))
		if validateErr != nil {
			r.logger.Error("Plugin output schema validation errored", appendStderr(append(logArgs, slog.Any("error", validateErr)))...)
			return kss.PluginOutput{}, wrapPluginError(kss.ErrPluginBadOutput, "failed to validate output of plugin '%s': %v", pluginCfg.Name, validateErr)
		}
		if !result.Valid() {
			details := make([]string, 0, len(result.Errors()))
			for _, desc := range result.Errors() {
				details = append(details, desc.String())
			}
			detail := strings.Join(details, "; ")
			r.logger.Error("Plugin output failed schema validation", appendStderr(append(logArgs, slog.String("violations", detail)))...)
			return kss.PluginOutput{}, wrapPluginError(kss.ErrPluginBadOutput, "output of plugin '%s' failed schema validation: %s", pluginCfg.Name, detail)
		}
	}

	var output kss.PluginOutput
	if unmarshalErr := json.Unmarshal(stdoutData, &output); unmarshalErr != nil {
		r.logger.Error("Failed to unmarshal plugin output JSON", appendStderr(append(logArgs, slog.Any("error", unmarshalErr)))...)
		return kss.PluginOutput{}, wrapPluginError(kss.ErrPluginBadOutput, "failed to unmarshal JSON output from plugin '%s': %v", pluginCfg.Name, unmarshalErr)
	}

	if output.Error != "" {
		r.logger.Error("Plugin reported functional error", appendStderr(append(logArgs, slog.String("plugin_error", output.Error)))...)
		return kss.PluginOutput{}, wrapPluginError(kss.ErrPluginBadOutput, "plugin '%s' reported error: %s", pluginCfg.Name, output.Error)
	}

	if len(stderrString) > 0 {
		r.logger.Debug("Plugin stderr output (on success)", append(logArgs, slog.String("plugin_stderr", stderrString))...)
	}
	r.logger.Debug("Plugin finished successfully", logArgs...)
	return output, nil
}
