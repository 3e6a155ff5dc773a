package errors

import (
	"fmt"
	"testing"
)

func TestScoutError(t *testing.T) {
	// Test basic error creation
	err := New(ErrCodeEnvNotFound, "environment not found")
	if err.Code != ErrCodeEnvNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeEnvNotFound, err.Code)
	}

	// Test error wrapping
	cause := fmt.Errorf("underlying error")
	wrapped := Wrap(cause, ErrCodeWorkerExited, "worker exited")

	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	// Test Is function
	if !Is(wrapped, ErrCodeWorkerExited) {
		t.Error("Is should return true for matching code")
	}

	if Is(wrapped, ErrCodeEnvNotFound) {
		t.Error("Is should return false for non-matching code")
	}

	// Test WithDetail
	detailed := err.WithDetail("path", "/usr/bin/python3").WithDetail("attempts", 2)
	if detailed.Details["path"] != "/usr/bin/python3" {
		t.Error("WithDetail should add details")
	}
}

func TestErrorConstructors(t *testing.T) {
	// Test EnvNotFound
	err := EnvNotFound("/opt/py/bin/python")
	if err.Code != ErrCodeEnvNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeEnvNotFound, err.Code)
	}
	if err.Details["path"] != "/opt/py/bin/python" {
		t.Error("EnvNotFound should include path detail")
	}

	// Test RequestFailed
	err = RequestFailed("resolve", -32602, "invalid params")
	if err.Code != ErrCodeRequestFailed {
		t.Errorf("expected code %s, got %s", ErrCodeRequestFailed, err.Code)
	}
	if err.Details["worker_code"] != -32602 {
		t.Error("RequestFailed should include the worker error code detail")
	}

	// Test WorkerSpawnFailed
	err = WorkerSpawnFailed("pyscout-worker", fmt.Errorf("no such file"))
	if !Is(err, ErrCodeWorkerSpawnFailed) {
		t.Error("WorkerSpawnFailed should carry its code")
	}
}
