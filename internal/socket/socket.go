// Package socket runs the accept loop shared by the daemon's Unix socket
// servers.
package socket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
)

// HandlerFunc serves one accepted connection. The connection is closed
// when it returns.
type HandlerFunc func(ctx context.Context, conn net.Conn)

// Listener describes one Unix socket server.
type Listener struct {
	// Path of the socket file. A stale file is removed before listening and
	// the file is removed again on return.
	Path string

	// Mode, when not zero, is applied to the socket file.
	Mode os.FileMode

	// Name identifies the socket in log messages.
	Name string

	Logger *slog.Logger
}

// Serve accepts connections and hands each one to handle in its own
// goroutine until ctx is cancelled, then waits for the connections in
// progress.
func (l Listener) Serve(ctx context.Context, handle HandlerFunc) error {
	if err := os.Remove(l.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", l.Path, err)
	}

	listener, err := net.Listen("unix", l.Path)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", l.Path, err)
	}
	defer func() {
		listener.Close()
		os.Remove(l.Path)
	}()

	if l.Mode != 0 {
		if err := os.Chmod(l.Path, l.Mode); err != nil {
			return fmt.Errorf("chmod %s: %w", l.Path, err)
		}
	}

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	l.Logger.Info("socket listening", "socket", l.Name, "path", l.Path)

	var active sync.WaitGroup
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			l.Logger.Error("accept failed", "socket", l.Name, "error", err)
			continue
		}

		active.Add(1)
		go func() {
			defer active.Done()
			defer conn.Close()
			handle(ctx, conn)
		}()
	}

	active.Wait()
	return nil
}
