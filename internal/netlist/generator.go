package netlist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mpataki/elecsyn/internal/genai"
	"github.com/mpataki/elecsyn/internal/models"
	"github.com/mpataki/elecsyn/internal/workspace"
)

// SystemInstruction constrains the model to emit a bare netlist.
const SystemInstruction = "You are an expert circuit engineer specializing in SPICE netlist generation. " +
	"Your output must be the raw, executable SPICE Netlist (.cir format) only. " +
	"CRITICAL: Always include all necessary analysis commands (.AC, .TRAN, .OP) " +
	"and correct component model definitions for the circuit requested. " +
	"Use standard SPICE conventions and '.END' as the final line. " +
	"DO NOT include any explanation or markdown code fences (```)."

// OverloadMarker identifies a transient "service unavailable" failure.
const OverloadMarker = "503 UNAVAILABLE"

// ContentGenerator is the part of the Gemini client the generator needs.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, req genai.Request) (*genai.Response, error)
}

// ClientFactory builds a client once the credential is known.
type ClientFactory func(apiKey string) ContentGenerator

// SleepFunc blocks for d.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryFunc is told about a retry before its backoff delay starts.
type RetryFunc func(nextAttempt, maxAttempts int, delay time.Duration)

type Config struct {
	OutputPath  string
	Model       string
	APIKeyEnv   string
	MaxAttempts int
	BaseDelay   time.Duration
}

type Generator struct {
	cfg       Config
	newClient ClientFactory
	lookupEnv func(string) (string, bool)
	sleep     SleepFunc
	onRetry   RetryFunc
	log       logrus.FieldLogger
}

type Option func(*Generator)

// WithLookupEnv replaces os.LookupEnv for the credential read.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(g *Generator) { g.lookupEnv = fn }
}

// WithSleep replaces the backoff delay.
func WithSleep(fn SleepFunc) Option {
	return func(g *Generator) { g.sleep = fn }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(g *Generator) { g.log = log }
}

// WithRetryNotice reports each retry to fn, e.g. for the console.
func WithRetryNotice(fn RetryFunc) Option {
	return func(g *Generator) { g.onRetry = fn }
}

func NewGenerator(cfg Config, newClient ClientFactory, opts ...Option) *Generator {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	g := &Generator{
		cfg:       cfg,
		newClient: newClient,
		lookupEnv: os.LookupEnv,
		sleep:     Sleep,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate asks the model for a netlist and writes it to the output path,
// returning the file's absolute path.
func (g *Generator) Generate(ctx context.Context, request models.CircuitRequest) (string, error) {
	if request.Blank() {
		return "", models.ErrCancelled
	}

	apiKey, ok := g.lookupEnv(g.cfg.APIKeyEnv)
	if !ok || apiKey == "" {
		return "", models.NewError(models.KindMissingCredential,
			fmt.Sprintf("%s environment variable not set", g.cfg.APIKeyEnv)).
			WithRemediation("Set it in your shell or in a .env file in the working directory.")
	}

	ws, err := workspace.Open(g.cfg.OutputPath)
	if err != nil {
		return "", models.Wrap(err, models.KindGenerationFailed, "netlist generation failed")
	}

	client := g.newClient(apiKey)
	req := genai.Request{
		Model:             g.cfg.Model,
		SystemInstruction: SystemInstruction,
		Prompt:            request.String(),
	}

	var lastErr error
	var attempt int
	for attempt = 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		log := g.log.WithFields(logrus.Fields{"attempt": attempt, "max_attempts": g.cfg.MaxAttempts, "model": g.cfg.Model})
		log.Debug("requesting netlist")

		resp, err := client.GenerateContent(ctx, req)
		if err == nil {
			return g.persist(ws, resp, attempt)
		}
		lastErr = err

		if !IsTransient(err) || attempt == g.cfg.MaxAttempts {
			log.WithError(err).Debug("generation attempt failed")
			break
		}

		delay := Backoff(g.cfg.BaseDelay, attempt)
		log.WithError(err).WithField("delay", delay).
			Warnf("server overloaded, retrying in %s (attempt %d/%d)", delay, attempt+1, g.cfg.MaxAttempts)
		if g.onRetry != nil {
			g.onRetry(attempt+1, g.cfg.MaxAttempts, delay)
		}
		if err := g.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	// every path out of the loop breaks, so attempt is the last one made
	return "", models.Wrap(lastErr, models.KindGenerationFailed, "netlist generation failed").WithAttempts(attempt)
}

func (g *Generator) persist(ws *workspace.Workspace, resp *genai.Response, attempt int) (string, error) {
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", models.NewError(models.KindEmptyGeneration, "AI returned an empty netlist").WithAttempts(attempt)
	}

	artifact, err := ws.WriteNetlist(text)
	if err != nil {
		return "", models.Wrap(err, models.KindGenerationFailed, "netlist generation failed").WithAttempts(attempt)
	}

	g.log.WithFields(logrus.Fields{
		"path":    artifact.Path,
		"bytes":   len(text),
		"attempt": attempt,
		"tokens":  resp.Usage.TotalTokens,
	}).Info("netlist saved")
	return artifact.Path, nil
}

// IsTransient reports whether err is the service's "temporarily unavailable" signal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == 503 {
		return true
	}
	return strings.Contains(err.Error(), OverloadMarker)
}

// Backoff returns base * 2^(attempt-1): 1, 2, 4, ... units for attempts 1, 2, 3.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
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
