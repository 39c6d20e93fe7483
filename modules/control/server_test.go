package control

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oblq/qnapec/modules/call"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startServer serves ch on a socket in a temp dir and waits until it
// accepts connections.
func startServer(t *testing.T, ch *Channel, configure func(*Server)) string {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "control.sock")
	server := NewServer(ch, socketPath, testLogger())
	if configure != nil {
		configure(server)
	}

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

	return socketPath
}

func dialContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSocketRoundTrip(t *testing.T) {
	var ch Channel
	socketPath := startServer(t, &ch, nil)

	pending := call.NewDoubleOut("ec_sys_get_temperature", 7)
	ch.Expect(pending)

	client, err := Dial(dialContext(t), socketPath)
	require.NoError(t, err)

	got, err := client.Fetch()
	require.NoError(t, err)
	require.Equal(t, pending, got)

	got.Argument2Int64 = call.ToFixed(30)
	got.ReturnValue = 0
	require.NoError(t, client.Submit(got))
	require.NoError(t, client.Close())

	require.Eventually(t, func() bool {
		s, err := ch.OpenSession()
		if err != nil {
			return false
		}
		s.Close()
		return true
	}, 2*time.Second, 5*time.Millisecond)

	result := ch.Withdraw()
	require.Equal(t, int64(30000), result.Argument2Int64)
	require.True(t, result.Returned())
}

func TestSocketRejectsUnsolicitedHelper(t *testing.T) {
	var ch Channel
	socketPath := startServer(t, &ch, nil)

	_, err := Dial(dialContext(t), socketPath)
	require.ErrorIs(t, err, ErrBusy)
}

func TestSocketRejectsSecondHelper(t *testing.T) {
	var ch Channel
	socketPath := startServer(t, &ch, nil)
	ch.Expect(call.NewUint32Out("ec_sys_get_fan_speed", 0))

	first, err := Dial(dialContext(t), socketPath)
	require.NoError(t, err)
	defer first.Close()

	_, err = Dial(dialContext(t), socketPath)
	require.ErrorIs(t, err, ErrBusy)
}

func TestSocketPeerCredentials(t *testing.T) {
	var ch Channel
	socketPath := startServer(t, &ch, func(s *Server) {
		s.AllowUID(os.Getuid() + 1)
	})
	ch.Expect(call.NewUint32Out("ec_sys_get_fan_speed", 0))

	_, err := Dial(dialContext(t), socketPath)
	require.ErrorIs(t, err, ErrDenied)

	// the rejected peer never held the conversation lock
	session, err := ch.OpenSession()
	require.NoError(t, err)
	require.NoError(t, session.Close())
}

func TestSocketPeerCredentialsAllowed(t *testing.T) {
	var ch Channel
	socketPath := startServer(t, &ch, func(s *Server) {
		s.AllowUID(os.Getuid())
	})
	ch.Expect(call.NewUint32Out("ec_sys_get_fan_speed", 0))

	client, err := Dial(dialContext(t), socketPath)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Fetch()
	require.NoError(t, err)
}
