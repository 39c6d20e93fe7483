package invoker_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oblq/qnapec/modules/call"
	"github.com/oblq/qnapec/modules/control"
	"github.com/oblq/qnapec/modules/invoker"
	"github.com/oblq/qnapec/modules/invoker/invokertest"
)

// buildHelper compiles qnap-ec-helper into dir.
func buildHelper(t *testing.T, dir string) string {
	t.Helper()

	goTool, err := exec.LookPath("go")
	if err != nil {
		t.Skip("go tool not available")
	}

	path := filepath.Join(dir, "qnap-ec-helper")
	out, err := exec.Command(goTool, "build", "-o", path, "github.com/oblq/qnapec/cmd/qnap-ec-helper").CombinedOutput()
	require.NoError(t, err, string(out))
	return path
}

func TestProcessLauncherRunsHelper(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the helper binary")
	}

	helperPath := buildHelper(t, t.TempDir())

	// keep the socket path short, t.TempDir can exceed the sun_path limit
	socketDir, err := os.MkdirTemp("", "qnapec")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(socketDir) })
	socketPath := filepath.Join(socketDir, "control.sock")

	channel := &control.Channel{}
	server := control.NewServer(channel, socketPath, invokertest.Logger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	require.Eventually(t, func() bool {
		_, err := os.Stat(socketPath)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	launcher := invoker.ProcessLauncher{
		Env: []string{
			"PATH=/usr/bin:/bin",
			"QNAP_EC_CONTROL_SOCKET=" + socketPath,
			"QNAP_EC_LIBRARY=simulated",
		},
		Logger: invokertest.Logger(),
	}
	paths := []string{filepath.Join(socketDir, "missing-helper"), helperPath}
	inv := invoker.New(channel, launcher, paths, 10*time.Second, invokertest.Logger())

	result, err := inv.Invoke(context.Background(), call.NewUint32Out("ec_sys_get_fan_speed", 33), true)
	require.NoError(t, err)
	require.Equal(t, uint32(4976), result.Argument2Uint32)

	result, err = inv.Invoke(context.Background(), call.NewDoubleOut("ec_sys_get_temperature", 7), true)
	require.NoError(t, err)
	require.Equal(t, int64(30000), result.Argument2Int64)

	var callErr *invoker.CallError

	_, err = inv.Invoke(context.Background(), call.NewUint32Out("ec_sys_get_fan_speed", 10), true)
	require.ErrorIs(t, err, invoker.ErrHelperFailed)
	require.True(t, errors.As(err, &callErr))
	require.Equal(t, 6, callErr.Code)

	_, err = inv.Invoke(context.Background(), call.NewUint32Out("ec_sys_get_fan_speed", 99), true)
	require.ErrorIs(t, err, invoker.ErrLibrary)
	require.True(t, errors.As(err, &callErr))
	require.Equal(t, -1, callErr.Code)

	require.False(t, channel.Awaiting())
}
