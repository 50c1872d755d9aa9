package cli

import (
	"errors"
	"fmt"

	"github.com/mkoziy/crmsync/internal/apperrors"
)

// Exit codes for CLI commands.
const (
	ExitSuccess     = 0 // Run completed, including runs with no changes
	ExitFailure     = 1 // Run failed (source, warehouse or merge error)
	ExitConfigError = 2 // Missing or invalid configuration
)

// ExitError represents an error with a specific exit code.
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

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Configuration errors map to
// ExitConfigError; anything else that is not an ExitError is ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, apperrors.ErrConfig) {
		return ExitConfigError
	}
	return ExitFailure
}
