//go:build windows

package desktop

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/windows"

	"github.com/mpataki/elecsyn/internal/models"
)

const pollInterval = 250 * time.Millisecond

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procSetForegroundWindow = user32.NewProc("SetForegroundWindow")
	procIsWindowEnabled     = user32.NewProc("IsWindowEnabled")
	procIsHungAppWindow     = user32.NewProc("IsHungAppWindow")
	procIsIconic            = user32.NewProc("IsIconic")
	procShowWindow          = user32.NewProc("ShowWindow")
	procSendInput           = user32.NewProc("SendInput")
	procGetWindowTextW      = user32.NewProc("GetWindowTextW")
)

const swRestore = 9

// win32Desktop finds processes with a Toolhelp snapshot and drives windows
// through user32.
type win32Desktop struct{}

func newPlatform() Desktop {
	return win32Desktop{}
}

func (win32Desktop) Spawn(exe string, args ...string) (*models.ProcessHandle, error) {
	return spawn(exe, args, func(cmd *exec.Cmd) {
		cmd.SysProcAttr = &syscall.SysProcAttr{
			CreationFlags: windows.CREATE_NEW_PROCESS_GROUP | windows.DETACHED_PROCESS,
		}
	})
}

func (win32Desktop) Attach(ctx context.Context, exe string, timeout time.Duration) (App, error) {
	want := filepath.Clean(exe)

	var pids []uint32
	err := Poll(ctx, timeout, pollInterval, func() (bool, error) {
		found, err := findPIDs(want)
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
	return &win32App{pids: pids}, nil
}

func findPIDs(exe string) ([]uint32, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, fmt.Errorf("process snapshot: %w", err)
	}
	defer windows.CloseHandle(snapshot)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	if err := windows.Process32First(snapshot, &entry); err != nil {
		return nil, fmt.Errorf("process snapshot: %w", err)
	}

	base := filepath.Base(exe)
	var pids []uint32
	for {
		// cheap name filter before opening the process
		if strings.EqualFold(windows.UTF16ToString(entry.ExeFile[:]), base) {
			if path, err := imagePath(entry.ProcessID); err == nil && strings.EqualFold(filepath.Clean(path), exe) {
				pids = append(pids, entry.ProcessID)
			}
		}
		if err := windows.Process32Next(snapshot, &entry); err != nil {
			if errors.Is(err, windows.ERROR_NO_MORE_FILES) {
				break
			}
			return nil, fmt.Errorf("process snapshot: %w", err)
		}
	}
	return pids, nil
}

func imagePath(pid uint32) (string, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return "", err
	}
	defer windows.CloseHandle(h)

	buf := make([]uint16, windows.MAX_LONG_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return "", err
	}
	return windows.UTF16ToString(buf[:size]), nil
}

type win32App struct {
	pids []uint32
}

func (a *win32App) PIDs() []int {
	out := make([]int, len(a.pids))
	for i, p := range a.pids {
		out[i] = int(p)
	}
	return out
}

func (a *win32App) WaitWindow(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) (Window, error) {
	var win *win32Window
	err := Poll(ctx, timeout, pollInterval, func() (bool, error) {
		w, ok, err := selectWindow(topLevelWindows(a.pids), pattern)
		if ok {
			win = w
		}
		return ok, err
	})
	if err != nil {
		return nil, fmt.Errorf("no ready window matching %q: %w", pattern.String(), err)
	}
	return win, nil
}

// EnumWindows needs a callback; NewCallback slots are never freed, so one is
// shared and results go through enumState.
var (
	enumOnce     sync.Once
	enumCallback uintptr
	enumMu       sync.Mutex
	enumState    struct {
		pids    map[uint32]bool
		windows []*win32Window
	}
)

func topLevelWindows(pids []uint32) []*win32Window {
	enumOnce.Do(func() {
		enumCallback = windows.NewCallback(func(hwnd windows.HWND, _ uintptr) uintptr {
			var pid uint32
			if _, err := windows.GetWindowThreadProcessId(hwnd, &pid); err != nil {
				return 1
			}
			if !enumState.pids[pid] || !windows.IsWindowVisible(hwnd) {
				return 1
			}
			buf := make([]uint16, 512)
			n, _, _ := procGetWindowTextW.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
			enumState.windows = append(enumState.windows, &win32Window{
				hwnd:  hwnd,
				title: windows.UTF16ToString(buf[:n]),
			})
			return 1
		})
	})

	enumMu.Lock()
	defer enumMu.Unlock()
	enumState.pids = make(map[uint32]bool, len(pids))
	for _, p := range pids {
		enumState.pids[p] = true
	}
	enumState.windows = nil
	_ = windows.EnumWindows(enumCallback, nil)
	return enumState.windows
}

type win32Window struct {
	hwnd  windows.HWND
	title string
}

var _ candidate = (*win32Window)(nil)

func (w *win32Window) Title() string {
	return w.title
}

func (w *win32Window) ready() bool {
	if !windows.IsWindowVisible(w.hwnd) {
		return false
	}
	enabled, _, _ := procIsWindowEnabled.Call(uintptr(w.hwnd))
	hung, _, _ := procIsHungAppWindow.Call(uintptr(w.hwnd))
	return enabled != 0 && hung == 0
}

func (w *win32Window) Focus() error {
	if iconic, _, _ := procIsIconic.Call(uintptr(w.hwnd)); iconic != 0 {
		procShowWindow.Call(uintptr(w.hwnd), swRestore)
	}
	ok, _, err := procSetForegroundWindow.Call(uintptr(w.hwnd))
	if ok == 0 {
		return fmt.Errorf("SetForegroundWindow(%q): %w", w.title, err)
	}
	return nil
}

func (w *win32Window) SendKeys(keys string) error {
	parsed, err := ParseKeys(keys)
	if err != nil {
		return err
	}

	inputs, err := keyboardInputs(parsed)
	if err != nil {
		return err
	}

	sent, _, err := procSendInput.Call(
		uintptr(len(inputs)),
		uintptr(unsafe.Pointer(&inputs[0])),
		unsafe.Sizeof(inputs[0]),
	)
	if int(sent) != len(inputs) {
		return fmt.Errorf("SendInput sent %d of %d events: %w", sent, len(inputs), err)
	}
	return nil
}
