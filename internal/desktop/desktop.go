// Package desktop drives a GUI application through the platform's automation
// surface: spawning it, attaching to its process, waiting for its main window and
// injecting keystrokes.
package desktop

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"time"

	"github.com/mpataki/elecsyn/internal/models"
)

// ErrTimeout is returned when a bounded wait expires.
var ErrTimeout = errors.New("timed out")

// Desktop is a platform automation backend.
type Desktop interface {
	// Spawn starts exe detached and returns without waiting for it.
	Spawn(exe string, args ...string) (*models.ProcessHandle, error)
	// Attach waits up to timeout for a running process whose image is exe.
	Attach(ctx context.Context, exe string, timeout time.Duration) (App, error)
}

// App is an attached application.
type App interface {
	PIDs() []int
	// WaitWindow waits up to timeout for a top-level window whose title matches
	// pattern to be visible and accepting input.
	WaitWindow(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) (Window, error)
}

// Window is a ready top-level window.
type Window interface {
	Title() string
	Focus() error
	SendKeys(keys string) error
}

// New returns the backend for the current platform.
func New() Desktop {
	return newPlatform()
}

// spawn starts exe detached. The returned handle is released immediately; the
// caller never waits on the process.
func spawn(exe string, args []string, configure func(*exec.Cmd)) (*models.ProcessHandle, error) {
	cmd := exec.Command(exe, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if configure != nil {
		configure(cmd)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", exe, err)
	}

	handle := &models.ProcessHandle{
		PID:       cmd.Process.Pid,
		Exe:       exe,
		Args:      append([]string{}, args...),
		StartedAt: time.Now(),
	}
	// Release drops our reference; the process keeps running independently.
	_ = cmd.Process.Release()
	return handle, nil
}

// Poll calls check every interval until it reports done or timeout elapses. Check
// errors do not stop polling; expiry returns ErrTimeout wrapping the last one.
func Poll(ctx context.Context, timeout, interval time.Duration, check func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		done, err := check()
		if done {
			return nil
		}
		if err != nil {
			lastErr = err
		}

		if !time.Now().Before(deadline) {
			if lastErr != nil {
				return fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, lastErr)
			}
			return fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}

		wait := interval
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
