// Package testutil provides helpers for building fake Python environment
// layouts on disk in tests.
package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// RandomString generates a random string of the specified length
func RandomString(length int) string {
	bytes := make([]byte, length/2+1)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return hex.EncodeToString(bytes)[:length]
}

// BinDir returns the interpreter directory name for the current platform.
func BinDir() string {
	if runtime.GOOS == "windows" {
		return "Scripts"
	}
	return "bin"
}

// CreateVenv lays out a minimal virtual environment under root/name:
// a pyvenv.cfg and an executable stub in bin/ (Scripts/ on Windows).
// Returns the path to the interpreter.
func CreateVenv(t *testing.T, root, name string) string {
	t.Helper()

	venvDir := filepath.Join(root, name)
	binDir := filepath.Join(venvDir, BinDir())
	require.NoError(t, os.MkdirAll(binDir, 0755))

	cfg := "home = /usr/bin\nversion = 3.12.1\n"
	require.NoError(t, os.WriteFile(filepath.Join(venvDir, "pyvenv.cfg"), []byte(cfg), 0644))

	exe := filepath.Join(binDir, "python")
	if runtime.GOOS == "windows" {
		exe = filepath.Join(binDir, "python.exe")
	}
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0755))
	return exe
}

// CreateCondaEnv lays out a conda-style environment directory: conda-meta/
// with a history file, without an interpreter.
func CreateCondaEnv(t *testing.T, root, name string) string {
	t.Helper()

	envDir := filepath.Join(root, name)
	metaDir := filepath.Join(envDir, "conda-meta")
	require.NoError(t, os.MkdirAll(metaDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(metaDir, "history"), nil, 0644))
	return envDir
}

// RemoveEnv deletes an environment directory created by CreateVenv or
// CreateCondaEnv.
func RemoveEnv(t *testing.T, root, name string) {
	t.Helper()
	require.NoError(t, os.RemoveAll(filepath.Join(root, name)))
}

// WaitFor polls cond until it returns true or the timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}
