package cmd

import (
	"errors"

	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
)

// Exit codes for the apiregress CLI. Per-case failures never change the exit
// code; only errors that abort a run do.
const (
	// ExitSuccess indicates the run completed
	ExitSuccess = 0

	// ExitRunError indicates a run error without a more specific code
	ExitRunError = 1

	// ExitInputError indicates the input produced no runnable test cases
	ExitInputError = 2

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitAuthError indicates the pre-flight authentication failed
	ExitAuthError = 4

	// ExitRunnerUnavailable indicates the collection runner could not be started
	ExitRunnerUnavailable = 5

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)

type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// exitCode maps an error returned by a command to the process exit code
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		usageErr  *usageError
		cfgErr    *model.ConfigError
		authErr   *model.AuthError
		runnerErr *model.RunnerUnavailableError
		noCases   *model.NoTestCasesError
		specErr   *model.SpecParseError
	)
	switch {
	case errors.As(err, &usageErr):
		return ExitUsageError
	case errors.As(err, &cfgErr):
		return ExitConfigError
	case errors.As(err, &authErr):
		return ExitAuthError
	case errors.As(err, &runnerErr):
		return ExitRunnerUnavailable
	case errors.As(err, &noCases):
		return ExitInputError
	case errors.As(err, &specErr) && specErr.Total():
		return ExitInputError
	default:
		return ExitRunError
	}
}
