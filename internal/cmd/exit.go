package cmd

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"

	"github.com/3leaps/gobucket/pkg/provider"
)

// exitFailure is the generic failure code for store-side rejections.
const exitFailure = 1

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &ExitError{Code: code, Message: message, Err: err}
}

// ExitCode returns the exit code for an error returned by Execute.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return exitCodeFor(err)
}

// exitCodeFor maps an operation error to an exit code by its kind.
// File operations by the side of a transfer they belong to. Downloads
// create their target through os.CreateTemp and os.Rename.
var (
	writeOps = map[string]bool{"createtemp": true, "write": true, "chmod": true, "close": true, "sync": true}
	readOps  = map[string]bool{"open": true, "read": true, "stat": true, "seek": true}
)

func exitCodeFor(err error) int {
	switch provider.Classify(err) {
	case provider.KindConfiguration:
		return foundry.ExitInvalidArgument
	case provider.KindTransport:
		return foundry.ExitExternalServiceUnavailable
	case provider.KindCanceled:
		if errors.Is(err, context.Canceled) {
			return foundry.ExitSignalInt
		}
		return foundry.ExitExternalServiceUnavailable
	case provider.KindIO:
		var pathErr *fs.PathError
		var linkErr *os.LinkError
		switch {
		case errors.As(err, &linkErr), errors.As(err, &pathErr) && writeOps[pathErr.Op]:
			// A missing target directory is a write failure, not a missing input.
			return foundry.ExitFileWriteError
		case errors.Is(err, fs.ErrNotExist):
			return foundry.ExitFileNotFound
		case errors.As(err, &pathErr) && readOps[pathErr.Op]:
			return foundry.ExitFileReadError
		default:
			return foundry.ExitFileWriteError
		}
	default:
		if provider.IsProviderUnavailable(err) {
			return foundry.ExitExternalServiceUnavailable
		}
		return exitFailure
	}
}
