package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// ErrStart wraps every failure to spawn a process, as opposed to a process
// that started and then failed.
var ErrStart = errors.New("unable to start")

// waitDelay bounds how long Wait keeps reading a killed process' pipes.
const waitDelay = time.Second

// Options describe how a helper executable is spawned.
type Options struct {
	// Env replaces the environment, nil means an empty one.
	Env []string

	// Credential drops to another uid/gid, nil inherits the caller's.
	Credential *syscall.Credential
}

// Run starts path with no arguments beyond the program name and waits for
// it to exit. The exit code is returned with a nil error for any process
// that started and exited on its own, ErrStart is wrapped when it could not
// be started and ctx.Err() is returned when it was killed.
func Run(ctx context.Context, path string, opts Options) (exitCode int, stderr string, err error) {
	cmd := exec.CommandContext(ctx, path)
	cmd.Env = opts.Env
	if cmd.Env == nil {
		cmd.Env = []string{}
	}
	cmd.WaitDelay = waitDelay
	if opts.Credential != nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{Credential: opts.Credential}
	}

	var errBuf bytes.Buffer
	cmd.Stderr = &errBuf

	if err := cmd.Start(); err != nil {
		return -1, "", fmt.Errorf("%w %s: %v", ErrStart, path, err)
	}

	err = cmd.Wait()
	stderr = strings.TrimSuffix(errBuf.String(), "\n")

	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, stderr, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), stderr, nil
	}
	if err != nil {
		return -1, stderr, err
	}
	return 0, stderr, nil
}

// CommandPipe runs cmdString through bash and returns its trimmed stdout.
func CommandPipe(ctx context.Context, cmdString string) (string, error) {
	cmd := exec.CommandContext(ctx, "bash", "-c", cmdString)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	var stout bytes.Buffer
	cmd.Stdout = &stout

	err := cmd.Run()
	if err != nil {
		return "", fmt.Errorf("%v: %s", err, stderr.String())
	}

	out := strings.TrimSuffix(stout.String(), "\n")
	return out, nil
}
