package collection

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyscout/core/testutil"
)

func TestIsInterpreterPath(t *testing.T) {
	assert.True(t, isInterpreterPath("/envs/ml/pyvenv.cfg"))
	assert.True(t, isInterpreterPath("/envs/ml/conda-meta"))
	assert.True(t, isInterpreterPath("/envs/ml/bin"))
	assert.True(t, isInterpreterPath(`C:\envs\ml\Scripts`))
	assert.True(t, isInterpreterPath("/envs/ml/bin/python3.12"))
	assert.False(t, isInterpreterPath("/envs/ml/lib"))
	assert.False(t, isInterpreterPath("/envs/ml/README.md"))
}

func TestNewDirWatcherSkipsMissingDirs(t *testing.T) {
	tmp := t.TempDir()

	w, err := NewDirWatcher([]string{tmp, filepath.Join(tmp, "does-not-exist")}, 1, nil, testLogger())
	require.NoError(t, err)
	defer w.Close()
}

func TestDirWatcherFiresOnInterpreterChange(t *testing.T) {
	tmp := t.TempDir()
	testutil.CreateVenv(t, tmp, "ml")
	venvDir := filepath.Join(tmp, "ml")

	var fired atomic.Int32
	w, err := NewDirWatcher([]string{venvDir}, 1, func(dir string) {
		fired.Add(1)
	}, testLogger())
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	require.NoError(t, os.Remove(filepath.Join(venvDir, "pyvenv.cfg")))

	testutil.WaitFor(t, 2*time.Second, func() bool {
		return fired.Load() > 0
	}, "watcher did not report the removed pyvenv.cfg")
}

func TestDirWatcherIgnoresUnrelatedFiles(t *testing.T) {
	tmp := t.TempDir()

	var fired atomic.Int32
	w, err := NewDirWatcher([]string{tmp}, 1, func(dir string) {
		fired.Add(1)
	}, testLogger())
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(tmp, "notes.txt"), []byte("hi"), 0644))

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestDirWatcherDebouncesBursts(t *testing.T) {
	tmp := t.TempDir()

	var fired atomic.Int32
	w, err := NewDirWatcher([]string{tmp}, 60000, func(dir string) {
		fired.Add(1)
	}, testLogger())
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(tmp, "pyvenv.cfg"), []byte("v\n"), 0644))
		time.Sleep(20 * time.Millisecond)
	}

	testutil.WaitFor(t, 2*time.Second, func() bool {
		return fired.Load() > 0
	}, "watcher never fired")
	assert.Equal(t, int32(1), fired.Load())
}
