package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mpataki/elecsyn/internal/models"
	"github.com/mpataki/elecsyn/internal/tui"
	"github.com/mpataki/elecsyn/internal/workspace"
)

const (
	CancelledMessage = "Operation cancelled: No prompt entered."
	FinishedTitle    = "Automation Process Finished"
)

type NetlistGenerator interface {
	Generate(ctx context.Context, request models.CircuitRequest) (string, error)
}

type SimulationLauncher interface {
	Launch(ctx context.Context, artifactPath string, target models.AutomationTarget) (*models.ProcessHandle, error)
}

type Orchestrator struct {
	generator NetlistGenerator
	launcher  SimulationLauncher
	target    models.AutomationTarget
	console   *tui.Console
	noLaunch  bool
	log       logrus.FieldLogger
}

type Option func(*Orchestrator)

// WithoutLaunch stops a run once the netlist is written.
func WithoutLaunch(skip bool) Option {
	return func(o *Orchestrator) { o.noLaunch = skip }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(o *Orchestrator) { o.log = log }
}

func New(gen NetlistGenerator, launcher SimulationLauncher, target models.AutomationTarget, console *tui.Console, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		generator: gen,
		launcher:  launcher,
		target:    target,
		console:   console,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type RunResult struct {
	NetlistPath string
	Process     *models.ProcessHandle // nil when launch was skipped or never spawned
	Launched    bool
}

// Run generates a netlist for request and opens it in the CAD application.
// A blank request is cancelled before anything runs, so no footer is printed.
func (o *Orchestrator) Run(ctx context.Context, request models.CircuitRequest) (*RunResult, error) {
	if request.Blank() {
		o.console.Info(CancelledMessage)
		return nil, models.ErrCancelled
	}
	defer o.console.Footer(FinishedTitle)

	path, err := o.generate(ctx, request)
	if err != nil {
		return nil, err
	}
	result := &RunResult{NetlistPath: path}

	if o.noLaunch {
		o.log.WithField("path", path).Debug("launch skipped")
		o.console.Info("Launch skipped. Open %s in the CAD application to simulate.", path)
		return result, nil
	}

	handle, err := o.launch(ctx, path)
	result.Process = handle
	if err != nil {
		return result, err
	}
	result.Launched = true
	return result, nil
}

// Generate runs only the generation stage.
func (o *Orchestrator) Generate(ctx context.Context, request models.CircuitRequest) (*RunResult, error) {
	if request.Blank() {
		o.console.Info(CancelledMessage)
		return nil, models.ErrCancelled
	}
	defer o.console.Footer(FinishedTitle)

	path, err := o.generate(ctx, request)
	if err != nil {
		return nil, err
	}
	return &RunResult{NetlistPath: path}, nil
}

// Launch runs only the launch stage against an existing netlist.
func (o *Orchestrator) Launch(ctx context.Context, netlistPath string) (*RunResult, error) {
	defer o.console.Footer(FinishedTitle)

	ws, err := workspace.Open(netlistPath)
	if err != nil {
		return nil, models.Wrap(err, models.KindConfig, "invalid netlist path")
	}
	artifact, err := ws.ReadNetlist()
	if err != nil {
		return nil, models.Wrap(err, models.KindConfig, "cannot launch")
	}
	if strings.TrimSpace(artifact.Content) == "" {
		err := models.NewError(models.KindEmptyGeneration, fmt.Sprintf("netlist %s is empty", artifact.Path))
		o.console.Error("ERROR", err)
		return nil, err
	}

	result := &RunResult{NetlistPath: artifact.Path}
	handle, err := o.launch(ctx, artifact.Path)
	result.Process = handle
	if err != nil {
		return result, err
	}
	result.Launched = true
	return result, nil
}

func (o *Orchestrator) generate(ctx context.Context, request models.CircuitRequest) (string, error) {
	o.console.Stage(1, "Starting AI Netlist Generation")

	path, err := o.generator.Generate(ctx, request)
	if err != nil {
		o.console.Error(generationFailurePrefix(err), err)
		return "", err
	}

	o.console.Success("Netlist saved successfully to: %s", path)
	return path, nil
}

func (o *Orchestrator) launch(ctx context.Context, path string) (*models.ProcessHandle, error) {
	o.console.Stage(2, "Starting CAD Launch & Automation")

	handle, err := o.launcher.Launch(ctx, path, o.target)
	if err != nil {
		o.console.Error("Automation Failed", err)
		return handle, err
	}

	if handle != nil {
		o.console.Success("Launched %s with netlist (pid %d).", handle.Exe, handle.PID)
	}
	o.console.Success("%s sent. Simulation should now be running.", o.target.RunKey)
	return handle, nil
}

func generationFailurePrefix(err error) string {
	if models.KindOf(err) == models.KindMissingCredential {
		return "ERROR"
	}
	return "ERROR in AI Generation"
}
