package launcher

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mpataki/elecsyn/internal/desktop"
	"github.com/mpataki/elecsyn/internal/models"
	"github.com/mpataki/elecsyn/internal/script"
)

// TroubleshootingTips accompany every automation failure.
var TroubleshootingTips = []string{
	"Ensure the CAD application is installed correctly and the executable path is accurate.",
	"Check for lingering startup dialogs that might be blocking the main window.",
}

type Config struct {
	SettleDelay   time.Duration
	AttachTimeout time.Duration
	ReadyTimeout  time.Duration
	// ScriptPath, when set, names a Lua automation script run instead of the
	// built-in sequence.
	ScriptPath string
}

// SleepFunc blocks for d.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Launcher struct {
	cfg     Config
	desktop desktop.Desktop
	sleep   SleepFunc
	log     logrus.FieldLogger
}

type Option func(*Launcher)

func WithSleep(fn SleepFunc) Option {
	return func(l *Launcher) { l.sleep = fn }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Launcher) { l.log = log }
}

func New(cfg Config, d desktop.Desktop, opts ...Option) *Launcher {
	l := &Launcher{
		cfg:     cfg,
		desktop: d,
		sleep:   sleep,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Launch opens artifactPath in the target application and presses its run key.
//
// The returned handle identifies the spawned application. It is returned even when a
// later step fails: the application is left running and is not this package's to
// manage.
func (l *Launcher) Launch(ctx context.Context, artifactPath string, target models.AutomationTarget) (*models.ProcessHandle, error) {
	pattern, err := regexp.Compile(target.WindowTitle)
	if err != nil {
		return nil, l.fail(models.Wrap(err, models.KindAutomationFailed, "invalid window title pattern"))
	}

	s := &Session{
		launcher: l,
		path:     artifactPath,
		target:   target,
		pattern:  pattern,
	}

	if l.cfg.ScriptPath != "" {
		l.log.WithField("script", l.cfg.ScriptPath).Info("running automation script")
		err = script.NewRuntime(s, l.log).Execute(ctx, l.cfg.ScriptPath)
	} else {
		err = s.runBuiltin(ctx)
	}
	if err != nil {
		return s.handle, l.fail(err)
	}

	if s.window != nil {
		l.log.WithField("window", s.window.Title()).Info("automation complete")
	}
	return s.handle, nil
}

// fail classifies err and attaches the troubleshooting tips. Typed step errors
// keep their kind; anything else is an automation failure.
func (l *Launcher) fail(err error) error {
	var typed *models.Error
	if !errors.As(err, &typed) {
		typed = models.Wrap(err, models.KindAutomationFailed, "automation failed")
	}
	typed.WithRemediation(TroubleshootingTips...)
	l.log.WithError(err).WithField("kind", typed.Kind).Error("automation failed")
	return typed
}

// Session is one pass over the target application. Each step records what it
// found for the steps after it.
type Session struct {
	launcher *Launcher
	path     string
	target   models.AutomationTarget
	pattern  *regexp.Regexp

	handle *models.ProcessHandle
	app    desktop.App
	window desktop.Window
}

func (s *Session) runBuiltin(ctx context.Context) error {
	if _, err := s.Spawn(ctx); err != nil {
		return err
	}
	if err := s.Settle(ctx, s.launcher.cfg.SettleDelay); err != nil {
		return err
	}
	if err := s.Attach(ctx); err != nil {
		return err
	}
	if _, err := s.WaitWindow(ctx); err != nil {
		return err
	}
	if err := s.Focus(ctx); err != nil {
		return err
	}
	return s.SendKeys(ctx, s.target.RunKey)
}

// Spawn starts the application with the netlist path as its argument.
func (s *Session) Spawn(ctx context.Context) (int, error) {
	handle, err := s.launcher.desktop.Spawn(s.target.ExePath, s.path)
	if err != nil {
		return 0, models.Wrap(err, models.KindAutomationFailed, "failed to launch application")
	}
	s.handle = handle
	s.launcher.log.WithFields(logrus.Fields{"pid": handle.PID, "exe": handle.Exe, "netlist": s.path}).
		Info("launched application with netlist")
	return handle.PID, nil
}

// Settle waits for the application to start up.
func (s *Session) Settle(ctx context.Context, d time.Duration) error {
	s.launcher.log.WithField("delay", d).Debug("waiting for application startup")
	if err := s.launcher.sleep(ctx, d); err != nil {
		return models.Wrap(err, models.KindAutomationFailed, "interrupted while waiting for startup")
	}
	return nil
}

// Attach connects to the running application by executable path.
func (s *Session) Attach(ctx context.Context) error {
	app, err := s.launcher.desktop.Attach(ctx, s.target.ExePath, s.launcher.cfg.AttachTimeout)
	if err != nil {
		return models.Wrap(err, models.KindAttachTimeout, "failed to attach to application")
	}
	s.app = app
	return nil
}

// WaitWindow waits for the main window to be visible and ready.
func (s *Session) WaitWindow(ctx context.Context) (string, error) {
	if s.app == nil {
		return "", models.NewError(models.KindAutomationFailed, "wait_window called before attach")
	}
	win, err := s.app.WaitWindow(ctx, s.pattern, s.launcher.cfg.ReadyTimeout)
	if err != nil {
		return "", models.Wrap(err, models.KindWindowNotReady, "main window not ready")
	}
	s.window = win
	s.launcher.log.WithField("window", win.Title()).Info("connected to main window")
	return win.Title(), nil
}

// Focus brings the main window to the foreground.
func (s *Session) Focus(ctx context.Context) error {
	if s.window == nil {
		return models.NewError(models.KindAutomationFailed, "focus called before wait_window")
	}
	if err := s.window.Focus(); err != nil {
		return models.Wrap(err, models.KindAutomationFailed, "failed to focus main window")
	}
	return nil
}

// SendKeys types keys into the main window.
func (s *Session) SendKeys(ctx context.Context, keys string) error {
	if s.window == nil {
		return models.NewError(models.KindAutomationFailed, "send_keys called before wait_window")
	}
	if err := s.window.SendKeys(keys); err != nil {
		return models.Wrap(err, models.KindAutomationFailed, fmt.Sprintf("failed to send %s", keys))
	}
	return nil
}

func (s *Session) Target() models.AutomationTarget {
	return s.target
}

func (s *Session) NetlistPath() string {
	return s.path
}

func (s *Session) DefaultSettleDelay() time.Duration {
	return s.launcher.cfg.SettleDelay
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
