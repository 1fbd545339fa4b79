package model

import (
	"errors"
	"fmt"
)

// SpecParseError reports a malformed API specification. When Operation is
// empty the whole document is unusable.
type SpecParseError struct {
	Source    string
	Operation string
	Err       error
}

func (e *SpecParseError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("invalid operation %s in %s: %v", e.Operation, e.Source, e.Err)
	}
	return fmt.Sprintf("invalid API specification %s: %v", e.Source, e.Err)
}

func (e *SpecParseError) Unwrap() error { return e.Err }

// Total reports whether the error invalidates the whole document
func (e *SpecParseError) Total() bool {
	return e.Operation == ""
}

// MissingFieldError reports a test-case record without a required field
type MissingFieldError struct {
	Sheet string
	Row   int
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s row %d: missing required field %q", e.Sheet, e.Row, e.Field)
}

// NoTestCasesError means normalization produced nothing to run
type NoTestCasesError struct {
	Source  string
	Skipped int
}

func (e *NoTestCasesError) Error() string {
	if e.Skipped > 0 {
		return fmt.Sprintf("no valid test cases in %s (%d records skipped)", e.Source, e.Skipped)
	}
	return fmt.Sprintf("no test cases found in %s", e.Source)
}

// AuthError means the pre-flight token call failed
type AuthError struct {
	Reason     string
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	msg := "authentication failed: " + e.Reason
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// BuildError means a single test case could not be turned into a request
type BuildError struct {
	CaseID string
	Reason string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed for %s: %s", e.CaseID, e.Reason)
}

// RunnerUnavailableError means the collection runner could not be started
type RunnerUnavailableError struct {
	Command string
	Err     error
}

func (e *RunnerUnavailableError) Error() string {
	return fmt.Sprintf("collection runner %q unavailable: %v", e.Command, e.Err)
}

func (e *RunnerUnavailableError) Unwrap() error { return e.Err }

// ConfigError is a startup validation failure
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// IsFatal reports whether err must abort the run
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var specErr *SpecParseError
	if errors.As(err, &specErr) {
		return specErr.Total()
	}
	var (
		noCases *NoTestCasesError
		authErr *AuthError
		runErr  *RunnerUnavailableError
		cfgErr  *ConfigError
	)
	return errors.As(err, &noCases) ||
		errors.As(err, &authErr) ||
		errors.As(err, &runErr) ||
		errors.As(err, &cfgErr)
}
