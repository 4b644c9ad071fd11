//go:build !windows

package desktop

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeXdotool struct {
	calls   []string
	windows map[string]string // pid -> window ids
	names   map[string]string // window id -> title
	states  map[string]string // window id -> _NET_WM_STATE atoms
}

func (f *fakeXdotool) run(name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	if name == "xprop" {
		return []byte("_NET_WM_STATE(ATOM) = " + f.states[args[1]] + "\n"), nil
	}
	switch args[0] {
	case "search":
		return []byte(f.windows[args[len(args)-1]]), nil
	case "getwindowname":
		return []byte(f.names[args[1]] + "\n"), nil
	}
	return nil, nil
}

func fakeProc(t *testing.T, exe string, pids ...string) string {
	t.Helper()
	root := t.TempDir()
	other := filepath.Join(t.TempDir(), "other")
	require.NoError(t, os.WriteFile(other, nil, 0755))

	require.NoError(t, os.MkdirAll(filepath.Join(root, "self"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "1"), 0755))
	require.NoError(t, os.Symlink(other, filepath.Join(root, "1", "exe")))
	for _, pid := range pids {
		require.NoError(t, os.MkdirAll(filepath.Join(root, pid), 0755))
		require.NoError(t, os.Symlink(exe, filepath.Join(root, pid, "exe")))
	}
	return root
}

func testExe(t *testing.T) string {
	t.Helper()
	exe := filepath.Join(t.TempDir(), "cad")
	require.NoError(t, os.WriteFile(exe, nil, 0755))
	return resolveExe(exe)
}

func TestX11_AttachAndDrive(t *testing.T) {
	exe := testExe(t)
	x := &fakeXdotool{
		windows: map[string]string{"4242": "77\n78\n"},
		names:   map[string]string{"77": "Splash", "78": "Design1 - Multisim - [Design1]"},
	}
	d := &x11Desktop{procRoot: fakeProc(t, exe, "4242"), run: x.run}

	app, err := d.Attach(context.Background(), exe, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []int{4242}, app.PIDs())

	win, err := app.WaitWindow(context.Background(), regexp.MustCompile("Multisim"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "Design1 - Multisim - [Design1]", win.Title())

	require.NoError(t, win.Focus())
	require.NoError(t, win.SendKeys("{F5}"))

	assert.Contains(t, x.calls, "xdotool windowactivate --sync 78")
	assert.Equal(t, "xdotool key --clearmodifiers F5", x.calls[len(x.calls)-1])
}

func TestX11_AttachTimeout(t *testing.T) {
	exe := testExe(t)
	d := &x11Desktop{procRoot: fakeProc(t, exe), run: (&fakeXdotool{}).run}

	_, err := d.Attach(context.Background(), exe, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestX11_WaitWindowTimeout(t *testing.T) {
	x := &fakeXdotool{
		windows: map[string]string{"7": "90\n"},
		names:   map[string]string{"90": "Starting..."},
	}
	app := &x11App{desktop: &x11Desktop{run: x.run}, pids: []int{7}}

	_, err := app.WaitWindow(context.Background(), regexp.MustCompile("Multisim"), 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestX11_SendKeysMapsNames(t *testing.T) {
	x := &fakeXdotool{}
	w := &x11Window{desktop: &x11Desktop{run: x.run}, id: "5"}

	require.NoError(t, w.SendKeys("a{ENTER}"))
	assert.Equal(t, []string{
		"xdotool type --window 5 -- a",
		"xdotool key --clearmodifiers Return",
	}, x.calls)

	assert.Error(t, w.SendKeys("{F99}"))
}

func TestX11_WaitWindowSkipsHiddenMatch(t *testing.T) {
	x := &fakeXdotool{
		windows: map[string]string{"7": "90\n91\n"},
		names:   map[string]string{"90": "Multisim", "91": "Design1 - Multisim"},
		states:  map[string]string{"90": "_NET_WM_STATE_HIDDEN"},
	}
	app := &x11App{desktop: &x11Desktop{run: x.run}, pids: []int{7}}

	win, err := app.WaitWindow(context.Background(), regexp.MustCompile("Multisim"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "Design1 - Multisim", win.Title())
}

func TestX11_WaitWindowHiddenOnlyTimesOut(t *testing.T) {
	x := &fakeXdotool{
		windows: map[string]string{"7": "90\n"},
		names:   map[string]string{"90": "Design1 - Multisim"},
		states:  map[string]string{"90": "_NET_WM_STATE_HIDDEN, _NET_WM_STATE_SKIP_TASKBAR"},
	}
	app := &x11App{desktop: &x11Desktop{run: x.run}, pids: []int{7}}

	_, err := app.WaitWindow(context.Background(), regexp.MustCompile("Multisim"), 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorContains(t, err, "is not ready")
}

func TestX11_StateUnavailableCountsAsShown(t *testing.T) {
	x := &fakeXdotool{}
	d := &x11Desktop{run: func(name string, args ...string) ([]byte, error) {
		if name == "xprop" {
			return nil, errors.New("xprop: not found")
		}
		return x.run(name, args...)
	}}
	assert.False(t, d.hidden("90"))
}
