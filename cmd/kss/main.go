package main

import (
	"errors"
	"os"

	"github.com/onehub/kss/internal/cli"
)

// Exit codes: 0 on success, 1 when the run finished but some files failed,
// 2 for configuration errors and fatal run failures.
const (
	exitOK         = 0
	exitFileErrors = 1
	exitFailure    = 2
)

func main() {
	os.Exit(exitCode(Execute()))
}

// exitCode maps the error returned by the root command to the process exit
// code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, cli.ErrRunCompletedWithErrors):
		return exitFileErrors
	default:
		return exitFailure
	}
}
