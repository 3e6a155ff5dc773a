package cli

import (
	"fmt"
	"os"

	"github.com/pyscout/core/errors"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
	}
}

// Handle provides user-friendly error messages based on error type
func (h *ErrorHandler) Handle(err error) error {
	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(os.Stderr, "❌ No pyscout.yml found. Discovery will use default locations; create one to customize search paths.\n")
		return err

	case errors.ErrCodeWorkerSpawnFailed:
		fmt.Fprintf(os.Stderr, "❌ Could not start the discovery worker. Make sure 'pyscout-worker' is on your PATH or set worker_path in pyscout.yml.\n")
		return err

	case errors.ErrCodeWorkerExited:
		fmt.Fprintf(os.Stderr, "❌ The discovery worker exited unexpectedly.\n")
		fmt.Fprintf(os.Stderr, "Run with --verbose or check 'pyscout logs' for the worker's output.\n")
		return err

	case errors.ErrCodeEnvNotFound:
		if scoutErr, ok := err.(*errors.ScoutError); ok {
			fmt.Fprintf(os.Stderr, "❌ No Python environment found at '%v'\n", scoutErr.Details["path"])
			fmt.Fprintf(os.Stderr, "Run 'pyscout list' to see the environments that were discovered.\n")
		}
		return err

	case errors.ErrCodeRequestTimeout:
		if scoutErr, ok := err.(*errors.ScoutError); ok {
			fmt.Fprintf(os.Stderr, "❌ The worker did not answer a '%v' request in time\n", scoutErr.Details["method"])
		}
		fmt.Fprintf(os.Stderr, "The worker may still be scanning; try again or increase --timeout.\n")
		return err

	case errors.ErrCodeConfigValidation:
		fmt.Fprintf(os.Stderr, "❌ pyscout.yml failed validation: %v\n", err)
		fmt.Fprintf(os.Stderr, "Run 'pyscout config schema' to see the expected structure.\n")
		return err

	default:
		fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)

		if h.Verbose {
			if scoutErr, ok := err.(*errors.ScoutError); ok {
				fmt.Fprintf(os.Stderr, "\nError details:\n%s\n", scoutErr.ToJSON())
			}
		}
		return err
	}
}
