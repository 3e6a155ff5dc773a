package errors

import (
	"fmt"
)

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *ScoutError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *ScoutError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// WorkerSpawnFailed creates an error for a worker process that could not start
func WorkerSpawnFailed(executable string, err error) *ScoutError {
	return Wrap(err, ErrCodeWorkerSpawnFailed, fmt.Sprintf("failed to start discovery worker: %s", executable)).
		WithDetail("executable", executable)
}

// WorkerExited creates an error for a worker process that terminated
func WorkerExited(err error) *ScoutError {
	return Wrap(err, ErrCodeWorkerExited, "discovery worker exited")
}

// ChannelClosed creates an error for an operation attempted on a closed channel
func ChannelClosed() *ScoutError {
	return New(ErrCodeChannelClosed, "worker channel is closed")
}

// RequestFailed creates an error for a request rejected by the worker
func RequestFailed(method string, code int, message string) *ScoutError {
	return New(ErrCodeRequestFailed, fmt.Sprintf("%s request failed: %s", method, message)).
		WithDetail("method", method).
		WithDetail("worker_code", code)
}

// RequestTimeout creates an error for a request that exceeded its deadline
func RequestTimeout(method string) *ScoutError {
	return New(ErrCodeRequestTimeout, fmt.Sprintf("%s request timed out", method)).
		WithDetail("method", method)
}

// RecordInvalid creates an error for a discovered record that cannot be normalized
func RecordInvalid(reason string) *ScoutError {
	return New(ErrCodeRecordInvalid, fmt.Sprintf("invalid environment record: %s", reason))
}

// EnvNotFound creates an error for a path that resolved to no environment
func EnvNotFound(path string) *ScoutError {
	return New(ErrCodeEnvNotFound, fmt.Sprintf("no Python environment found at: %s", path)).
		WithDetail("path", path)
}
