package tui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/mpataki/elecsyn/internal/models"
)

const promptLabel = "Enter your circuit design prompt: "

// App is the interactive prompt. Enter submits, Esc or Ctrl+C cancels.
type App struct {
	input     textinput.Model
	submitted bool
	cancelled bool
}

func NewApp() *App {
	ti := textinput.New()
	ti.Placeholder = "e.g. a 5V regulated supply from a 12V battery with an LED indicator"
	ti.Prompt = titleStyle.Render("› ")
	ti.CharLimit = 4096
	ti.Width = 72
	ti.Focus()
	return &App{input: ti}
}

func (a *App) Init() tea.Cmd {
	return textinput.Blink
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEnter:
			a.submitted = true
			return a, tea.Quit
		case tea.KeyEsc, tea.KeyCtrlC:
			a.cancelled = true
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		if msg.Width > 4 {
			a.input.Width = msg.Width - 4
		}
		return a, nil
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a *App) View() string {
	if a.submitted || a.cancelled {
		return ""
	}
	s := labelStyle.Render(promptLabel) + "\n"
	s += a.input.View() + "\n"
	s += helpStyle.Render("[enter] generate  [esc] cancel") + "\n"
	return s
}

// Request returns what was entered. A cancelled prompt yields a blank request.
func (a *App) Request() models.CircuitRequest {
	if a.cancelled {
		return ""
	}
	return models.CircuitRequest(a.input.Value())
}

// ReadPrompt reads one circuit request. On a terminal it runs the interactive
// prompt; otherwise it reads a single line from in.
func ReadPrompt(in io.Reader, out io.Writer) (models.CircuitRequest, error) {
	if f, ok := in.(*os.File); ok && isTerminal(f) {
		return runPrompt(f, out)
	}
	return readLine(in, out)
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func runPrompt(in io.Reader, out io.Writer) (models.CircuitRequest, error) {
	p := tea.NewProgram(NewApp(), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("prompt failed: %w", err)
	}
	app, ok := final.(*App)
	if !ok {
		return "", fmt.Errorf("prompt returned unexpected model %T", final)
	}
	if req := app.Request(); !req.Blank() {
		fmt.Fprintln(out, promptLabel+string(req))
		return req, nil
	}
	return "", nil
}

func readLine(in io.Reader, out io.Writer) (models.CircuitRequest, error) {
	fmt.Fprint(out, promptLabel)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read prompt: %w", err)
	}
	return models.CircuitRequest(strings.TrimRight(line, "\r\n")), nil
}
