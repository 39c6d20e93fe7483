// Package helper is the unprivileged side of the bridge: fetch the pending
// call, invoke it in the vendor library, submit the result, exit.
package helper

import (
	"errors"
	"log/slog"

	"github.com/oblq/qnapec/modules/call"
	"github.com/oblq/qnapec/modules/control"
	"github.com/oblq/qnapec/modules/hal"
)

// Exit codes of the helper process. A library call that ran and failed is
// not an exit failure, it travels back in the call's return value.
const (
	ExitOK                  = 0
	ExitConnect             = 1
	ExitTransport           = 2
	ExitSymbolNotFound      = 3
	ExitLibraryLoad         = 4
	ExitUnknownFunctionType = 5
	ExitInvoke              = 6
)

// Conn is an open control channel session, control.Client over the socket
// or a control.Session in process.
type Conn interface {
	Fetch() (call.Call, error)
	Submit(call.Call) error
	Close() error
}

// Run performs exactly one fetch/invoke/submit cycle and returns the exit
// code. conn is closed on return.
func Run(conn Conn, proxy *hal.Proxy, logger *slog.Logger) int {
	defer conn.Close()

	pending, err := conn.Fetch()
	if err != nil {
		logger.Error("fetching pending call", "error", err)
		return ExitTransport
	}

	result, err := proxy.Invoke(pending)
	if err != nil {
		logger.Error("invoking library function",
			"function", pending.FunctionName,
			"channel", pending.Argument1Uint8,
			"error", err)
		return ExitCode(err)
	}

	if err := conn.Submit(result); err != nil {
		logger.Error("submitting result", "function", pending.FunctionName, "error", err)
		return ExitTransport
	}
	return ExitOK
}

// ExitCode maps an error to the helper exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, control.ErrBusy), errors.Is(err, control.ErrDenied):
		return ExitConnect
	case errors.Is(err, hal.ErrSymbolNotFound):
		return ExitSymbolNotFound
	case errors.Is(err, hal.ErrLibraryLoad):
		return ExitLibraryLoad
	case errors.Is(err, hal.ErrUnknownFunctionType):
		return ExitUnknownFunctionType
	default:
		return ExitInvoke
	}
}
