package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"

	"github.com/mpataki/elecsyn/internal/models"
)

// Steps are the automation primitives a script can call.
type Steps interface {
	Spawn(ctx context.Context) (int, error)
	Settle(ctx context.Context, d time.Duration) error
	Attach(ctx context.Context) error
	WaitWindow(ctx context.Context) (string, error)
	Focus(ctx context.Context) error
	SendKeys(ctx context.Context, keys string) error
	Target() models.AutomationTarget
	NetlistPath() string
	DefaultSettleDelay() time.Duration
}

// Runtime executes an automation script in a sandboxed Lua state
type Runtime struct {
	steps Steps
	log   logrus.FieldLogger
	ctx   context.Context
}

const stepErrorType = "step_error"

// NewRuntime creates a runtime bound to one automation session
func NewRuntime(steps Steps, log logrus.FieldLogger) *Runtime {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runtime{steps: steps, log: log}
}

// Execute runs the script's automate(netlist) function
func (r *Runtime) Execute(ctx context.Context, scriptPath string) error {
	src, err := os.ReadFile(scriptPath)
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}
	return r.ExecuteString(ctx, string(src))
}

// ExecuteString runs automate(netlist) from script source
func (r *Runtime) ExecuteString(ctx context.Context, src string) error {
	r.ctx = ctx

	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})
	defer L.Close()
	L.SetContext(ctx)

	r.openSafeLibs(L)
	r.registerAPI(L)

	if err := L.DoString(src); err != nil {
		return fmt.Errorf("failed to load script: %w", err)
	}

	automate := L.GetGlobal("automate")
	if automate.Type() != lua.LTFunction {
		return fmt.Errorf("script must define an 'automate' function")
	}

	L.Push(automate)
	L.Push(lua.LString(r.steps.NetlistPath()))
	if err := L.PCall(1, 0, nil); err != nil {
		if stepErr := unwrapStepError(err); stepErr != nil {
			return stepErr
		}
		return fmt.Errorf("automation script failed: %w", err)
	}
	return nil
}

// openSafeLibs loads only the safe standard libraries
func (r *Runtime) openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)

	// Remove functions that reach outside the sandbox
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)
	L.SetGlobal("require", lua.LNil)
	L.SetGlobal("module", lua.LNil)
	L.SetGlobal("print", lua.LNil) // Use log() instead

	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	math := L.GetGlobal("math")
	if tbl, ok := math.(*lua.LTable); ok {
		L.SetField(tbl, "random", lua.LNil)
		L.SetField(tbl, "randomseed", lua.LNil)
	}
}

func (r *Runtime) registerAPI(L *lua.LState) {
	mt := L.NewTypeMetatable(stepErrorType)
	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		ud := L.CheckUserData(1)
		if err, ok := ud.Value.(error); ok {
			L.Push(lua.LString(err.Error()))
		} else {
			L.Push(lua.LString(stepErrorType))
		}
		return 1
	}))

	L.SetGlobal("launch", L.NewFunction(r.luaLaunch))
	L.SetGlobal("settle", L.NewFunction(r.luaSettle))
	L.SetGlobal("attach", L.NewFunction(r.luaAttach))
	L.SetGlobal("wait_window", L.NewFunction(r.luaWaitWindow))
	L.SetGlobal("focus", L.NewFunction(r.luaFocus))
	L.SetGlobal("send_keys", L.NewFunction(r.luaSendKeys))
	L.SetGlobal("context", L.NewFunction(r.luaContext))
	L.SetGlobal("log", L.NewFunction(r.luaLog))
}

// raise unwinds the script with err as the Lua error value. A script that catches
// it with pcall sees a value whose tostring is the step's message; one that lets it
// escape has it returned from ExecuteString with its kind intact.
func (r *Runtime) raise(L *lua.LState, step string, err error) int {
	ud := L.NewUserData()
	ud.Value = fmt.Errorf("%s: %w", step, err)
	L.SetMetatable(ud, L.GetTypeMetatable(stepErrorType))
	L.Error(ud, 1)
	return 0
}

// unwrapStepError returns the step error carried by a script failure, or nil when
// the script failed on its own.
func unwrapStepError(err error) error {
	var apiErr *lua.ApiError
	if !errors.As(err, &apiErr) {
		return nil
	}
	ud, ok := apiErr.Object.(*lua.LUserData)
	if !ok {
		return nil
	}
	stepErr, _ := ud.Value.(error)
	return stepErr
}

// luaLaunch implements launch() -> pid
func (r *Runtime) luaLaunch(L *lua.LState) int {
	pid, err := r.steps.Spawn(r.ctx)
	if err != nil {
		return r.raise(L, "launch", err)
	}
	L.Push(lua.LNumber(pid))
	return 1
}

// luaSettle implements settle(seconds?)
func (r *Runtime) luaSettle(L *lua.LState) int {
	d := r.steps.DefaultSettleDelay()
	if L.GetTop() >= 1 {
		d = time.Duration(float64(L.CheckNumber(1)) * float64(time.Second))
	}
	if err := r.steps.Settle(r.ctx, d); err != nil {
		return r.raise(L, "settle", err)
	}
	return 0
}

func (r *Runtime) luaAttach(L *lua.LState) int {
	if err := r.steps.Attach(r.ctx); err != nil {
		return r.raise(L, "attach", err)
	}
	return 0
}

// luaWaitWindow implements wait_window() -> title
func (r *Runtime) luaWaitWindow(L *lua.LState) int {
	title, err := r.steps.WaitWindow(r.ctx)
	if err != nil {
		return r.raise(L, "wait_window", err)
	}
	L.Push(lua.LString(title))
	return 1
}

func (r *Runtime) luaFocus(L *lua.LState) int {
	if err := r.steps.Focus(r.ctx); err != nil {
		return r.raise(L, "focus", err)
	}
	return 0
}

// luaSendKeys implements send_keys(keys?), defaulting to the run key
func (r *Runtime) luaSendKeys(L *lua.LState) int {
	keys := L.OptString(1, r.steps.Target().RunKey)
	if err := r.steps.SendKeys(r.ctx, keys); err != nil {
		return r.raise(L, "send_keys", err)
	}
	return 0
}

// luaContext implements context()
func (r *Runtime) luaContext(L *lua.LState) int {
	target := r.steps.Target()
	tbl := L.NewTable()
	L.SetField(tbl, "netlist", lua.LString(r.steps.NetlistPath()))
	L.SetField(tbl, "netlist_name", lua.LString(filepath.Base(r.steps.NetlistPath())))
	L.SetField(tbl, "exe", lua.LString(target.ExePath))
	L.SetField(tbl, "window_title", lua.LString(target.WindowTitle))
	L.SetField(tbl, "run_key", lua.LString(target.RunKey))
	L.Push(tbl)
	return 1
}

// luaLog implements log(message)
func (r *Runtime) luaLog(L *lua.LState) int {
	r.log.WithField("source", "script").Info(L.CheckString(1))
	return 0
}
