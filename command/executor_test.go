package command

import (
	"io"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartPipedRoundTrip(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires cat")
	}

	proc, err := StartPiped(&RealExecutor{}, "cat")
	require.NoError(t, err)

	_, err = io.WriteString(proc.Stdin, "ping\n")
	require.NoError(t, err)
	require.NoError(t, proc.Stdin.Close())

	out, err := io.ReadAll(proc.Stdout)
	require.NoError(t, err)
	assert.Equal(t, "ping\n", string(out))

	require.NoError(t, proc.Wait())
}

func TestStartPipedMissingBinary(t *testing.T) {
	_, err := StartPiped(&RealExecutor{}, "pyscout-no-such-worker")
	require.Error(t, err)
}
