package collection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyscout/core/errors"
	"github.com/pyscout/core/protocol"
)

func TestAddEnvCreatedThenChanged(t *testing.T) {
	c := New(nil, testLogger())

	var got []ChangeEvent
	remove := c.OnChange(func(ev ChangeEvent) {
		got = append(got, ev)
	})
	defer remove()

	c.AddEnv(&protocol.EnvironmentRecord{
		Executable: "/usr/bin/python3",
		Prefix:     "/usr",
		Version:    "3.10",
		Kind:       "LinuxGlobal",
	})
	c.AddEnv(&protocol.EnvironmentRecord{
		Executable: "/usr/bin/python3",
		Prefix:     "/usr",
		Version:    "3.10.4",
		Kind:       "LinuxGlobal",
	})

	require.Len(t, got, 2)
	assert.Equal(t, Created, got[0].Kind)
	assert.Nil(t, got[0].Old)
	assert.Equal(t, Changed, got[1].Kind)
	require.NotNil(t, got[1].Old)
	assert.Equal(t, "3.10", got[1].Old.Version.Raw)
	assert.Equal(t, "3.10.4", got[1].New.Version.Raw)

	// Duplicate executable path replaced in place, not appended.
	envs := c.GetEnvs()
	require.Len(t, envs, 1)
	assert.Equal(t, "Python 3.10.4", envs[0].DisplayName)
}

func TestGetEnvsPreservesInsertionOrder(t *testing.T) {
	c := New(nil, testLogger())

	for i := 0; i < 5; i++ {
		c.AddEnv(&protocol.EnvironmentRecord{
			Executable: fmt.Sprintf("/opt/py%d/bin/python", i),
			Prefix:     fmt.Sprintf("/opt/py%d", i),
			Kind:       "GlobalPaths",
		})
	}
	// Re-adding an early entry must not move it.
	c.AddEnv(&protocol.EnvironmentRecord{
		Executable: "/opt/py1/bin/python",
		Prefix:     "/opt/py1",
		Version:    "3.9.7",
		Kind:       "GlobalPaths",
	})

	envs := c.GetEnvs()
	require.Len(t, envs, 5)
	for i, env := range envs {
		assert.Equal(t, fmt.Sprintf("/opt/py%d/bin/python", i), env.Executable.Path)
	}
	assert.Equal(t, "3.9.7", envs[1].Version.Raw)
}

func TestGetEnvsReturnsSnapshot(t *testing.T) {
	c := New(nil, testLogger())
	c.AddEnv(&protocol.EnvironmentRecord{
		Executable: "/usr/bin/python3",
		Prefix:     "/usr",
		Kind:       "LinuxGlobal",
	})

	snap := c.GetEnvs()
	snap[0].DisplayName = "mutated"

	assert.NotEqual(t, "mutated", c.GetEnvs()[0].DisplayName)
}

func TestAddEnvDropsInvalidRecord(t *testing.T) {
	c := New(nil, testLogger())

	fired := 0
	remove := c.OnChange(func(ChangeEvent) { fired++ })
	defer remove()

	c.AddEnv(&protocol.EnvironmentRecord{Version: "3.12.0"})

	assert.Zero(t, c.Len())
	assert.Zero(t, fired)
}

func TestAddRecordRoutesUnion(t *testing.T) {
	c := New(nil, testLogger())

	envRaw, err := protocol.DecodeRawRecord(json.RawMessage(
		`{"executable":"/usr/bin/python3","prefix":"/usr","kind":"LinuxGlobal"}`))
	require.NoError(t, err)
	mgrRaw, err := protocol.DecodeRawRecord(json.RawMessage(
		`{"tool":"conda","executable":"/opt/conda/bin/conda","version":"24.1.0"}`))
	require.NoError(t, err)

	c.AddRecord(envRaw)
	c.AddRecord(mgrRaw)

	assert.Equal(t, 1, c.Len())
	mgrs := c.GetManagers()
	require.Len(t, mgrs, 1)
	assert.Equal(t, "conda", mgrs[0].Tool)
}

func TestCondaDirKeyedByLocation(t *testing.T) {
	c := New(nil, testLogger())

	c.AddEnv(&protocol.EnvironmentRecord{Prefix: "/opt/conda/envs/bare", Kind: "Conda"})
	c.AddEnv(&protocol.EnvironmentRecord{Prefix: "/opt/conda/envs/bare", Kind: "Conda", Name: "bare"})

	envs := c.GetEnvs()
	require.Len(t, envs, 1)
	assert.Equal(t, "bare", envs[0].Name)
}

func TestSubscribeDuringEmit(t *testing.T) {
	c := New(nil, testLogger())

	lateFired := 0
	remove := c.OnChange(func(ChangeEvent) {
		c.OnChange(func(ChangeEvent) { lateFired++ })
	})
	defer remove()

	c.AddEnv(&protocol.EnvironmentRecord{
		Executable: "/usr/bin/python3", Prefix: "/usr", Kind: "LinuxGlobal",
	})
	// The late subscriber sees only emissions after its registration.
	assert.Zero(t, lateFired)

	c.AddEnv(&protocol.EnvironmentRecord{
		Executable: "/usr/bin/python3.12", Prefix: "/usr", Kind: "LinuxGlobal",
	})
	assert.Equal(t, 1, lateFired)
}

func TestResolveEnvMergesAndCaches(t *testing.T) {
	var calls atomic.Int64
	resolver := func(ctx context.Context, path string) (*protocol.EnvironmentRecord, error) {
		calls.Add(1)
		return &protocol.EnvironmentRecord{
			Executable: path,
			Prefix:     "/home/u/proj/.venv",
			Version:    "3.12.1",
			Kind:       "Venv",
		}, nil
	}
	c := New(resolver, testLogger())

	env, err := c.ResolveEnv(context.Background(), "/home/u/proj/.venv/bin/python")
	require.NoError(t, err)
	assert.Equal(t, "Python 3.12.1 (Venv)", env.DisplayName)
	assert.Equal(t, 1, c.Len())

	// Second call inside the cache window must not hit the worker.
	_, err = c.ResolveEnv(context.Background(), "/home/u/proj/.venv/bin/python")
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load())

	// A different path does.
	_, err = c.ResolveEnv(context.Background(), "/usr/bin/python3")
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}

func TestResolveEnvCachesFailures(t *testing.T) {
	var calls atomic.Int64
	resolver := func(ctx context.Context, path string) (*protocol.EnvironmentRecord, error) {
		calls.Add(1)
		return nil, errors.EnvNotFound(path)
	}
	c := New(resolver, testLogger())

	_, err := c.ResolveEnv(context.Background(), "/nope/python")
	require.Error(t, err)
	_, err = c.ResolveEnv(context.Background(), "/nope/python")
	require.Error(t, err)

	assert.True(t, errors.Is(err, errors.ErrCodeEnvNotFound))
	assert.Equal(t, int64(1), calls.Load())
	assert.Zero(t, c.Len())
}

func TestResolveEnvWithoutResolver(t *testing.T) {
	c := New(nil, testLogger())

	_, err := c.ResolveEnv(context.Background(), "/usr/bin/python3")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeEnvNotFound))
}
