package cli

import (
	"errors"
	"fmt"
)

// Exit codes for CLI commands.
const (
	ExitSuccess = 0
	// ExitFailure signals a pipeline outcome failure: failed requests,
	// reconciliation errors, in-flight executions at report time.
	ExitFailure = 1
	// ExitCommandError signals a usage or environment problem: bad
	// flags, unreadable configs, missing state.
	ExitCommandError = 2
)

// ExitError carries an exit code alongside the error message so main
// can translate command failures into meaningful process codes.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

func failure(message string, err error) *ExitError {
	return &ExitError{Code: ExitFailure, Message: message, Err: err}
}

func usage(message string, err error) *ExitError {
	return &ExitError{Code: ExitCommandError, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error, defaulting to
// ExitFailure for plain errors.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}
