package tui

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mpataki/elecsyn/internal/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

const rule = "------------------------------------------------------------------"

// Console prints the user-facing progress of a pipeline run. Styling is dropped
// when out is not a terminal.
type Console struct {
	out io.Writer

	banner  lipgloss.Style
	stage   lipgloss.Style
	success lipgloss.Style
	warn    lipgloss.Style
	failure lipgloss.Style
	dim     lipgloss.Style
}

func NewConsole(out io.Writer) *Console {
	r := lipgloss.NewRenderer(out)
	return &Console{
		out:     out,
		banner:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("46")),
		stage:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		success: r.NewStyle().Foreground(lipgloss.Color("46")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("220")),
		failure: r.NewStyle().Foreground(lipgloss.Color("196")),
		dim:     r.NewStyle().Foreground(lipgloss.Color("243")),
	}
}

func (c *Console) Writer() io.Writer {
	return c.out
}

// Banner prints the ready banner shown before the prompt.
func (c *Console) Banner(title string) {
	fmt.Fprintln(c.out, rule)
	fmt.Fprintln(c.out, c.banner.Render("🟢 "+title))
	fmt.Fprintln(c.out, rule)
}

// Stage opens a numbered pipeline stage.
func (c *Console) Stage(n int, title string) {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, c.stage.Render(fmt.Sprintf("--- %d. %s ---", n, title)))
}

func (c *Console) Info(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *Console) Success(format string, args ...any) {
	fmt.Fprintln(c.out, c.success.Render("✅ "+fmt.Sprintf(format, args...)))
}

func (c *Console) Warn(format string, args ...any) {
	fmt.Fprintln(c.out, c.warn.Render("⚠️ "+fmt.Sprintf(format, args...)))
}

// RetryNotice announces that generation will be retried after delay.
func (c *Console) RetryNotice(nextAttempt, maxAttempts int, delay time.Duration) {
	c.Warn("Server overload (503). Retrying in %g seconds (Attempt %d/%d).", delay.Seconds(), nextAttempt, maxAttempts)
}

// Error prints err and any troubleshooting tips it carries.
func (c *Console) Error(prefix string, err error) {
	fmt.Fprintln(c.out, c.failure.Render(fmt.Sprintf("❌ %s: %v", prefix, err)))

	var typed *models.Error
	if !errors.As(err, &typed) || len(typed.Remediation) == 0 {
		return
	}
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, c.warn.Render("*** TROUBLESHOOTING TIP ***"))
	for _, tip := range typed.Remediation {
		fmt.Fprintln(c.out, c.dim.Render("  • "+tip))
	}
}

// Footer closes a run.
func (c *Console) Footer(title string) {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, c.dim.Render(fmt.Sprintf("--- %s ---", title)))
}
