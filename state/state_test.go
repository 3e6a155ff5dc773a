package state

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStateOperations(t *testing.T) {
	tmpDir := t.TempDir()

	oldWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	defer os.Chdir(oldWd)

	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}

	t.Run("Load empty state", func(t *testing.T) {
		state, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if state == nil {
			t.Fatal("Load() returned nil state")
		}
		if len(state) != 0 {
			t.Errorf("Load() returned non-empty state: %v", state)
		}
	})

	t.Run("Set and Get string value", func(t *testing.T) {
		key := "test.key"
		value := "test-value"

		if err := Set(key, value); err != nil {
			t.Fatalf("Set() error = %v", err)
		}

		got, err := GetString(key)
		if err != nil {
			t.Fatalf("GetString() error = %v", err)
		}
		if got != value {
			t.Errorf("GetString() = %v, want %v", got, value)
		}
	})

	t.Run("Get non-existent key", func(t *testing.T) {
		got, ok, err := Get("non.existent")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if ok {
			t.Error("Get() returned ok=true for non-existent key")
		}
		if got != nil {
			t.Errorf("Get() = %v, want nil", got)
		}
	})

	t.Run("Delete key", func(t *testing.T) {
		key := "test.delete"

		if err := Set(key, "to-be-deleted"); err != nil {
			t.Fatalf("Set() error = %v", err)
		}

		if err := Delete(key); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}

		_, ok, err := Get(key)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if ok {
			t.Error("Get() returned ok=true after Delete()")
		}
	})

	t.Run("State file lands in .pyscout", func(t *testing.T) {
		if err := Set("any", "value"); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if _, err := os.Stat(filepath.Join(tmpDir, ".pyscout", "state.yml")); err != nil {
			t.Errorf("state file not found: %v", err)
		}
	})
}

func TestActiveEnvironment(t *testing.T) {
	tmpDir := t.TempDir()

	oldWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	defer os.Chdir(oldWd)

	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}

	got, err := ActiveEnvironment()
	if err != nil {
		t.Fatalf("ActiveEnvironment() error = %v", err)
	}
	if got != "" {
		t.Errorf("ActiveEnvironment() = %q, want empty", got)
	}

	if err := SetActiveEnvironment("/home/user/.venvs/ml/bin/python"); err != nil {
		t.Fatalf("SetActiveEnvironment() error = %v", err)
	}

	got, err = ActiveEnvironment()
	if err != nil {
		t.Fatalf("ActiveEnvironment() error = %v", err)
	}
	if got != "/home/user/.venvs/ml/bin/python" {
		t.Errorf("ActiveEnvironment() = %q", got)
	}

	if err := ClearActiveEnvironment(); err != nil {
		t.Fatalf("ClearActiveEnvironment() error = %v", err)
	}

	got, err = ActiveEnvironment()
	if err != nil {
		t.Fatalf("ActiveEnvironment() error = %v", err)
	}
	if got != "" {
		t.Errorf("ActiveEnvironment() = %q after clear, want empty", got)
	}
}
