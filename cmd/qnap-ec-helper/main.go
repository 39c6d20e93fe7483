// qnap-ec-helper performs one vendor library call on behalf of the qnap-ec
// daemon and exits. It takes no arguments: the call is fetched from the
// daemon's control socket and the result is submitted back to it.
//
// Environment:
//
//	QNAP_EC_CONTROL_SOCKET  control socket path (default /run/qnap-ec/control.sock)
//	QNAP_EC_LIBRARY         vendor library path or "simulated"
//	                        (default /usr/lib/libuLinux_hal.so)
//	QNAP_EC_DEBUG           any value enables debug logging
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/oblq/qnapec/modules/control"
	"github.com/oblq/qnapec/modules/hal"
	"github.com/oblq/qnapec/modules/helper"
)

const (
	defaultControlSocket = "/run/qnap-ec/control.sock"
	defaultLibrary       = "/usr/lib/libuLinux_hal.so"

	sessionTimeout = 10 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	logLevel := slog.LevelInfo
	if os.Getenv("QNAP_EC_DEBUG") != "" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	socketPath := getenv("QNAP_EC_CONTROL_SOCKET", defaultControlSocket)
	libraryPath := getenv("QNAP_EC_LIBRARY", defaultLibrary)

	ctx, cancel := context.WithTimeout(context.Background(), sessionTimeout)
	defer cancel()

	conn, err := control.Dial(ctx, socketPath)
	if err != nil {
		logger.Error("connecting to control socket", "path", socketPath, "error", err)
		return helper.ExitConnect
	}

	library, err := hal.Open(libraryPath)
	if err != nil {
		conn.Close()
		logger.Error("loading vendor library", "error", err)
		return helper.ExitCode(err)
	}
	defer library.Close()

	return helper.Run(conn, hal.NewProxy(library), logger)
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
