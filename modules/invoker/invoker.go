// Package invoker runs vendor library calls through the helper process:
// it fills the control channel slot, launches the helper, waits for it and
// classifies the outcome.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"syscall"
	"time"

	"github.com/oblq/qnapec/internal/exec"
	"github.com/oblq/qnapec/modules/call"
	"github.com/oblq/qnapec/modules/control"
)

// Launcher starts the helper at path and waits for it. An error wrapping
// exec.ErrStart means the path could not be started and the next one is
// tried; any other error means the helper started and did not exit on its
// own.
type Launcher interface {
	Launch(ctx context.Context, path string) (exitCode int, err error)
}

// ProcessLauncher spawns the helper as a child process.
type ProcessLauncher struct {
	Env        []string
	Credential *syscall.Credential
	Logger     *slog.Logger
}

func (l ProcessLauncher) Launch(ctx context.Context, path string) (int, error) {
	code, stderr, err := exec.Run(ctx, path, exec.Options{
		Env:        l.Env,
		Credential: l.Credential,
	})
	if stderr != "" && l.Logger != nil {
		l.Logger.Debug("helper stderr", "path", path, "exit_code", code, "stderr", stderr)
	}
	return code, err
}

// Invoker owns the call lock: one call at a time, from filling the slot to
// reading the result back.
type Invoker struct {
	channel  *control.Channel
	launcher Launcher
	paths    []string
	timeout  time.Duration
	logger   *slog.Logger

	mutex sync.Mutex
}

// New returns an Invoker trying paths in order. A zero timeout waits for
// the helper forever.
func New(channel *control.Channel, launcher Launcher, paths []string, timeout time.Duration, logger *slog.Logger) *Invoker {
	return &Invoker{
		channel:  channel,
		launcher: launcher,
		paths:    paths,
		timeout:  timeout,
		logger:   logger,
	}
}

// Conversation holds the call lock for a sequence of dependent calls.
type Conversation struct {
	invoker *Invoker

	once sync.Once
}

// Acquire takes the call lock, blocking until it is available. Release the
// returned Conversation on every path.
func (inv *Invoker) Acquire() *Conversation {
	inv.mutex.Lock()
	return &Conversation{invoker: inv}
}

// Release gives the call lock back. Further calls are a no-op.
func (c *Conversation) Release() {
	c.once.Do(c.invoker.mutex.Unlock)
}

// Invoke performs one call while holding the lock.
func (c *Conversation) Invoke(ctx context.Context, pending call.Call, logFailure bool) (call.Call, error) {
	return c.invoker.invoke(ctx, pending, logFailure)
}

// Invoke acquires the call lock for a single call.
func (inv *Invoker) Invoke(ctx context.Context, pending call.Call, logFailure bool) (call.Call, error) {
	conversation := inv.Acquire()
	defer conversation.Release()

	return conversation.Invoke(ctx, pending, logFailure)
}

// errNoHelper is the launch outcome when every path failed to start.
var errNoHelper = errors.New("no helper path could be started")

func (inv *Invoker) invoke(ctx context.Context, pending call.Call, logFailure bool) (call.Call, error) {
	if err := pending.Validate(); err != nil {
		return pending, err
	}

	result, code, err := inv.run(ctx, pending)

	callErr := &CallError{
		Function: pending.FunctionName,
		Channel:  pending.Argument1Uint8,
	}
	switch {
	case errors.Is(err, errNoHelper):
		callErr.Kind, callErr.Err = ErrHelperNotFound, err
		inv.logger.Error("unable to launch helper", "function", pending.FunctionName, "paths", inv.paths, "error", err)
		return pending, callErr

	case err != nil:
		callErr.Kind, callErr.Code, callErr.Err = ErrHelperFailed, code, err

	case code != 0:
		callErr.Kind, callErr.Code = ErrHelperFailed, code

	case !result.Returned():
		callErr.Kind = ErrNoData

	case result.ReturnValue != 0:
		callErr.Kind, callErr.Code = ErrLibrary, int(result.ReturnValue)

	case !result.OutputWritten():
		callErr.Kind = ErrNoData

	default:
		return result, nil
	}

	if logFailure {
		inv.logger.Warn("library call failed",
			"function", pending.FunctionName,
			"channel", pending.Argument1Uint8,
			"kind", callErr.Kind,
			"code", callErr.Code,
			"error", callErr.Err)
	}
	return pending, callErr
}

// run opens the control channel for pending, launches the helper and closes
// the channel again before returning, whatever happened.
func (inv *Invoker) run(ctx context.Context, pending call.Call) (result call.Call, code int, err error) {
	inv.channel.Expect(pending)
	defer func() {
		result = inv.channel.Withdraw()
	}()

	if inv.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}

	var startErrs []error
	for _, path := range inv.paths {
		if err = ctx.Err(); err != nil {
			return result, -1, err
		}
		code, err = inv.launcher.Launch(ctx, path)
		if errors.Is(err, exec.ErrStart) {
			startErrs = append(startErrs, err)
			continue
		}
		return
	}

	return result, -1, fmt.Errorf("%w: %w", errNoHelper, errors.Join(startErrs...))
}
