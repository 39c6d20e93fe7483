// Package invokertest provides an in-process helper launcher and a
// scriptable vendor library for tests of the packages built on the invoker.
package invokertest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/oblq/qnapec/internal/exec"
	"github.com/oblq/qnapec/modules/control"
	"github.com/oblq/qnapec/modules/hal"
	"github.com/oblq/qnapec/modules/helper"
	"github.com/oblq/qnapec/modules/invoker"
)

// HelperPath is the single helper path used by New.
const HelperPath = "/usr/local/sbin/qnap-ec-helper"

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Launcher runs the helper logic in the calling goroutine against Channel
// instead of spawning a process.
type Launcher struct {
	Channel *control.Channel
	Library hal.Library

	// Installed lists the paths that can be started, nil means all of them.
	Installed []string

	mutex    sync.Mutex
	launches []string
}

func (l *Launcher) Launch(ctx context.Context, path string) (int, error) {
	l.mutex.Lock()
	l.launches = append(l.launches, path)
	l.mutex.Unlock()

	if !l.installed(path) {
		return -1, fmt.Errorf("%w %s: no such file or directory", exec.ErrStart, path)
	}

	session, err := l.Channel.OpenSession()
	if err != nil {
		return helper.ExitCode(err), nil
	}
	return helper.Run(session, hal.NewProxy(l.Library), Logger()), nil
}

func (l *Launcher) installed(path string) bool {
	if l.Installed == nil {
		return true
	}
	for _, p := range l.Installed {
		if p == path {
			return true
		}
	}
	return false
}

// Launches returns the paths launched so far, in order.
func (l *Launcher) Launches() []string {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return append([]string(nil), l.launches...)
}

// New returns an invoker wired to an in-process launcher over library.
func New(library hal.Library) (*invoker.Invoker, *Launcher) {
	channel := &control.Channel{}
	launcher := &Launcher{Channel: channel, Library: library}
	inv := invoker.New(channel, launcher, []string{HelperPath}, time.Second, Logger())
	return inv, launcher
}
