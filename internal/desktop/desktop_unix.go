//go:build !windows

package desktop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mpataki/elecsyn/internal/models"
)

const pollInterval = 250 * time.Millisecond

// x11Desktop finds processes through /proc and drives windows with xdotool.
type x11Desktop struct {
	procRoot string
	run      func(name string, args ...string) ([]byte, error)
}

func newPlatform() Desktop {
	return &x11Desktop{procRoot: "/proc", run: runCommand}
}

func runCommand(name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.Command(name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return out, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

func (d *x11Desktop) Spawn(exe string, args ...string) (*models.ProcessHandle, error) {
	return spawn(exe, args, func(cmd *exec.Cmd) {
		// own session so the application outlives our terminal
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	})
}

func (d *x11Desktop) Attach(ctx context.Context, exe string, timeout time.Duration) (App, error) {
	want := resolveExe(exe)

	var pids []int
	err := Poll(ctx, timeout, pollInterval, func() (bool, error) {
		found, err := d.findPIDs(want)
		if err != nil {
			return false, err
		}
		pids = found
		return len(found) > 0, nil
	})
	if err != nil {
		return nil, fmt.Errorf("no process running %s: %w", want, err)
	}

	logrus.WithFields(logrus.Fields{"exe": want, "pids": pids}).Debug("attached to application")
	return &x11App{desktop: d, pids: pids}, nil
}

// resolveExe turns a bare command name into the canonical path /proc reports.
func resolveExe(exe string) string {
	path := exe
	if !strings.ContainsRune(exe, filepath.Separator) {
		if p, err := exec.LookPath(exe); err == nil {
			path = p
		}
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	return path
}

func (d *x11Desktop) findPIDs(exe string) ([]int, error) {
	entries, err := os.ReadDir(d.procRoot)
	if err != nil {
		return nil, fmt.Errorf("process scan unsupported: %w", err)
	}

	var pids []int
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		target, err := os.Readlink(filepath.Join(d.procRoot, entry.Name(), "exe"))
		if err != nil {
			continue
		}
		// a replaced binary reads as "<path> (deleted)"
		target = strings.TrimSuffix(target, " (deleted)")
		if target == exe {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

type x11App struct {
	desktop *x11Desktop
	pids    []int
}

func (a *x11App) PIDs() []int {
	return append([]int{}, a.pids...)
}

func (a *x11App) WaitWindow(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) (Window, error) {
	var win *x11Window
	err := Poll(ctx, timeout, pollInterval, func() (bool, error) {
		w, ok, err := a.findWindow(pattern)
		if ok {
			win = w
		}
		return ok, err
	})
	if err != nil {
		return nil, fmt.Errorf("no visible window matching %q: %w", pattern.String(), err)
	}
	return win, nil
}

// findWindow lists the visible windows of the attached processes. Unmapped windows,
// which includes minimised ones under most window managers, never show up in an
// --onlyvisible search; matches the window manager flags as hidden are not ready.
func (a *x11App) findWindow(pattern *regexp.Regexp) (*x11Window, bool, error) {
	var found []*x11Window
	for _, pid := range a.pids {
		out, err := a.desktop.run("xdotool", "search", "--onlyvisible", "--pid", strconv.Itoa(pid))
		if err != nil {
			var exitErr *exec.ExitError
			// xdotool search exits 1 when nothing matches
			if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
				continue
			}
			return nil, false, err
		}
		for _, id := range strings.Fields(string(out)) {
			name, err := a.desktop.run("xdotool", "getwindowname", id)
			if err != nil {
				continue
			}
			w := &x11Window{desktop: a.desktop, id: id, title: strings.TrimSpace(string(name))}
			if pattern.MatchString(w.title) {
				w.hidden = a.desktop.hidden(id)
			}
			found = append(found, w)
		}
	}
	return selectWindow(found, pattern)
}

// hidden reports whether the window manager marks the window as minimised. Without
// xprop there is no state to read and the window counts as shown.
func (d *x11Desktop) hidden(id string) bool {
	out, err := d.run("xprop", "-id", id, "_NET_WM_STATE")
	if err != nil {
		logrus.WithError(err).WithField("window", id).Debug("window state unavailable")
		return false
	}
	return strings.Contains(string(out), "_NET_WM_STATE_HIDDEN")
}

type x11Window struct {
	desktop *x11Desktop
	id      string
	title   string
	hidden  bool
}

var _ candidate = (*x11Window)(nil)

func (w *x11Window) Title() string {
	return w.title
}

func (w *x11Window) ready() bool {
	return !w.hidden
}

func (w *x11Window) Focus() error {
	_, err := w.desktop.run("xdotool", "windowactivate", "--sync", w.id)
	return err
}

var xdotoolKeysyms = map[string]string{
	"ENTER":     "Return",
	"ESC":       "Escape",
	"TAB":       "Tab",
	"SPACE":     "space",
	"BACKSPACE": "BackSpace",
}

func (w *x11Window) SendKeys(keys string) error {
	parsed, err := ParseKeys(keys)
	if err != nil {
		return err
	}
	for _, k := range parsed {
		if k.Name == "" {
			if _, err := w.desktop.run("xdotool", "type", "--window", w.id, "--", string(k.Char)); err != nil {
				return err
			}
			continue
		}
		sym := k.Name
		if s, ok := xdotoolKeysyms[k.Name]; ok {
			sym = s
		}
		if _, err := w.desktop.run("xdotool", "key", "--clearmodifiers", sym); err != nil {
			return err
		}
	}
	return nil
}
