package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpataki/elecsyn/internal/models"
	"github.com/mpataki/elecsyn/internal/tui"
)

type fakeGenerator struct {
	path     string
	err      error
	requests []models.CircuitRequest
}

func (g *fakeGenerator) Generate(_ context.Context, req models.CircuitRequest) (string, error) {
	g.requests = append(g.requests, req)
	return g.path, g.err
}

type fakeLauncher struct {
	handle *models.ProcessHandle
	err    error
	paths  []string
	target models.AutomationTarget
}

func (l *fakeLauncher) Launch(_ context.Context, path string, target models.AutomationTarget) (*models.ProcessHandle, error) {
	l.paths = append(l.paths, path)
	l.target = target
	return l.handle, l.err
}

var target = models.AutomationTarget{ExePath: "/opt/cad/multisim", WindowTitle: ".*Multisim.*", RunKey: "{F5}"}

type harness struct {
	gen    *fakeGenerator
	launch *fakeLauncher
	out    *bytes.Buffer
	orch   *Orchestrator
}

func newHarness(opts ...Option) *harness {
	logger, _ := test.NewNullLogger()
	h := &harness{
		gen:    &fakeGenerator{path: "/work/ai_generated_circuit.cir"},
		launch: &fakeLauncher{handle: &models.ProcessHandle{PID: 99, Exe: "/opt/cad/multisim"}},
		out:    &bytes.Buffer{},
	}
	h.orch = New(h.gen, h.launch, target, tui.NewConsole(h.out), append([]Option{WithLogger(logger)}, opts...)...)
	return h
}

func (h *harness) assertFooter(t *testing.T) {
	t.Helper()
	assert.True(t, strings.HasSuffix(h.out.String(), "--- "+FinishedTitle+" ---\n"), h.out.String())
}

func TestRun_Success(t *testing.T) {
	h := newHarness()

	result, err := h.orch.Run(context.Background(), "an RC low-pass filter")
	require.NoError(t, err)

	assert.Equal(t, "/work/ai_generated_circuit.cir", result.NetlistPath)
	assert.True(t, result.Launched)
	assert.Equal(t, 99, result.Process.PID)
	assert.Equal(t, []string{"/work/ai_generated_circuit.cir"}, h.launch.paths)
	assert.Equal(t, target, h.launch.target)

	out := h.out.String()
	assert.Contains(t, out, "--- 1. Starting AI Netlist Generation ---")
	assert.Contains(t, out, "Netlist saved successfully to: /work/ai_generated_circuit.cir")
	assert.Contains(t, out, "--- 2. Starting CAD Launch & Automation ---")
	assert.Contains(t, out, "{F5} sent.")
	h.assertFooter(t)
}

func TestRun_BlankRequestCancels(t *testing.T) {
	h := newHarness()

	result, err := h.orch.Run(context.Background(), "   ")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, models.ErrCancelled)
	assert.Equal(t, 0, models.ExitCode(err))
	assert.Empty(t, h.gen.requests)
	assert.Empty(t, h.launch.paths)
	assert.Equal(t, CancelledMessage+"\n", h.out.String())
}

func TestGenerate_BlankRequestCancelsWithoutFooter(t *testing.T) {
	h := newHarness()

	_, err := h.orch.Generate(context.Background(), "")

	assert.ErrorIs(t, err, models.ErrCancelled)
	assert.Empty(t, h.gen.requests)
	assert.NotContains(t, h.out.String(), FinishedTitle)
}

func TestRun_GenerationFailureHalts(t *testing.T) {
	h := newHarness()
	h.gen.err = models.NewError(models.KindMissingCredential, "GEMINI_API_KEY environment variable not set")

	result, err := h.orch.Run(context.Background(), "a buck converter")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, models.ErrMissingCredential)
	assert.Empty(t, h.launch.paths)
	assert.Contains(t, h.out.String(), "❌ ERROR: GEMINI_API_KEY environment variable not set")
	assert.NotContains(t, h.out.String(), "2. Starting")
	h.assertFooter(t)
}

func TestRun_GenerationFailedPrefix(t *testing.T) {
	h := newHarness()
	h.gen.err = models.Wrap(errors.New("503 UNAVAILABLE. overloaded"), models.KindGenerationFailed, "netlist generation failed").WithAttempts(4)

	_, err := h.orch.Run(context.Background(), "a buck converter")

	assert.Equal(t, 4, models.ExitCode(err))
	assert.Contains(t, h.out.String(), "❌ ERROR in AI Generation: netlist generation failed after 4 attempts: 503 UNAVAILABLE")
}

func TestRun_LaunchFailureKeepsHandle(t *testing.T) {
	h := newHarness()
	h.launch.err = models.NewError(models.KindWindowNotReady, "main window not ready").
		WithRemediation("check for startup dialogs")

	result, err := h.orch.Run(context.Background(), "a 555 timer")

	assert.ErrorIs(t, err, models.ErrWindowNotReady)
	require.NotNil(t, result)
	assert.False(t, result.Launched)
	assert.Equal(t, 99, result.Process.PID)
	assert.Equal(t, "/work/ai_generated_circuit.cir", result.NetlistPath)
	assert.Contains(t, h.out.String(), "❌ Automation Failed: main window not ready")
	assert.Contains(t, h.out.String(), "TROUBLESHOOTING TIP")
	assert.NotContains(t, h.out.String(), "sent.")
	h.assertFooter(t)
}

func TestRun_WithoutLaunch(t *testing.T) {
	h := newHarness(WithoutLaunch(true))

	result, err := h.orch.Run(context.Background(), "a 555 timer")

	require.NoError(t, err)
	assert.False(t, result.Launched)
	assert.Nil(t, result.Process)
	assert.Empty(t, h.launch.paths)
	assert.Contains(t, h.out.String(), "Launch skipped.")
	h.assertFooter(t)
}

func TestGenerate_DoesNotLaunch(t *testing.T) {
	h := newHarness()

	result, err := h.orch.Generate(context.Background(), "a 555 timer")

	require.NoError(t, err)
	assert.Equal(t, "/work/ai_generated_circuit.cir", result.NetlistPath)
	assert.Empty(t, h.launch.paths)
	h.assertFooter(t)
}

func TestLaunch_ExistingNetlist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filter.cir")
	require.NoError(t, os.WriteFile(path, []byte("* rc\nR1 1 2 1k\n.END\n"), 0o644))
	h := newHarness()

	result, err := h.orch.Launch(context.Background(), path)

	require.NoError(t, err)
	assert.True(t, result.Launched)
	assert.Equal(t, []string{path}, h.launch.paths)
	assert.Empty(t, h.gen.requests)
	h.assertFooter(t)
}

func TestLaunch_MissingOrEmptyNetlist(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.cir")
	require.NoError(t, os.WriteFile(empty, []byte(" \n"), 0o644))

	h := newHarness()
	_, err := h.orch.Launch(context.Background(), filepath.Join(dir, "missing.cir"))
	assert.Equal(t, models.KindConfig, models.KindOf(err))

	_, err = h.orch.Launch(context.Background(), empty)
	assert.ErrorIs(t, err, models.ErrEmptyGeneration)

	assert.Empty(t, h.launch.paths)
}
