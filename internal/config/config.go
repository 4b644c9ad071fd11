package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mpataki/elecsyn/internal/models"
)

const (
	DefaultOutputFile  = "ai_generated_circuit.cir"
	DefaultModel       = "gemini-2.5-pro"
	DefaultAPIKeyEnv   = "GEMINI_API_KEY"
	DefaultWindowTitle = "Multisim"
	DefaultRunKey      = "{F5}"
	ProjectConfigFile  = ".elecsyn.yaml"
)

// DefaultWindowsExe is where Multisim 14.3 installs on Windows.
const DefaultWindowsExe = `C:\Program Files (x86)\National Instruments\Circuit Design Suite 14.3\multisim.exe`

type Config struct {
	DataDir          string        `yaml:"-"`
	OutputPath       string        `yaml:"output"`
	Model            string        `yaml:"model"`
	APIKeyEnv        string        `yaml:"api_key_env"`
	APIBaseURL       string        `yaml:"api_base_url,omitempty"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	MaxAttempts      int           `yaml:"max_attempts"`
	BaseDelay        time.Duration `yaml:"base_delay"`
	CAD              CAD           `yaml:"cad"`
	AutomationScript string        `yaml:"automation_script,omitempty"`
}

// CAD configures the application the launcher drives.
type CAD struct {
	Exe           string        `yaml:"exe"`
	WindowTitle   string        `yaml:"window_title"`
	RunKey        string        `yaml:"run_key"`
	SettleDelay   time.Duration `yaml:"settle_delay"`
	AttachTimeout time.Duration `yaml:"attach_timeout"`
	ReadyTimeout  time.Duration `yaml:"ready_timeout"`
}

// New returns the defaults with ELECSYN_* environment overrides applied.
func New() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	c := Default()
	c.DataDir = getEnv("ELECSYN_DATA_DIR", filepath.Join(homeDir, ".elecsyn"))

	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	return c, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	exe := DefaultWindowsExe
	if runtime.GOOS != "windows" {
		exe = "multisim"
	}
	return &Config{
		OutputPath:     DefaultOutputFile,
		Model:          DefaultModel,
		APIKeyEnv:      DefaultAPIKeyEnv,
		RequestTimeout: 5 * time.Minute,
		MaxAttempts:    4,
		BaseDelay:      time.Second,
		CAD: CAD{
			Exe:           exe,
			WindowTitle:   DefaultWindowTitle,
			RunKey:        DefaultRunKey,
			SettleDelay:   10 * time.Second,
			AttachTimeout: 15 * time.Second,
			ReadyTimeout:  10 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, the first config file found and the
// environment, in that order. An explicit path must exist.
func Load(explicitPath string) (*Config, error) {
	c, err := New()
	if err != nil {
		return nil, err
	}

	path := explicitPath
	if path == "" {
		path = c.findConfigFile()
	}
	if path != "" {
		if err := c.MergeFile(path); err != nil {
			return nil, err
		}
		// env wins over the file
		if err := c.applyEnv(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Config) findConfigFile() string {
	candidates := []string{ProjectConfigFile}
	if c.DataDir != "" {
		candidates = append(candidates, filepath.Join(c.DataDir, "config.yaml"))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// MergeFile overlays the YAML file at path. Keys absent from the file keep their values.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config YAML %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.OutputPath = getEnv("ELECSYN_OUTPUT", c.OutputPath)
	c.Model = getEnv("ELECSYN_MODEL", c.Model)
	c.APIKeyEnv = getEnv("ELECSYN_API_KEY_ENV", c.APIKeyEnv)
	c.APIBaseURL = getEnv("ELECSYN_API_BASE_URL", c.APIBaseURL)
	c.CAD.Exe = getEnv("ELECSYN_CAD_EXE", c.CAD.Exe)
	c.CAD.WindowTitle = getEnv("ELECSYN_CAD_WINDOW_TITLE", c.CAD.WindowTitle)
	c.CAD.RunKey = getEnv("ELECSYN_CAD_RUN_KEY", c.CAD.RunKey)
	c.AutomationScript = getEnv("ELECSYN_AUTOMATION_SCRIPT", c.AutomationScript)

	if v, ok := os.LookupEnv("ELECSYN_MAX_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ELECSYN_MAX_ATTEMPTS %q: %w", v, err)
		}
		c.MaxAttempts = n
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"ELECSYN_BASE_DELAY", &c.BaseDelay},
		{"ELECSYN_REQUEST_TIMEOUT", &c.RequestTimeout},
		{"ELECSYN_CAD_SETTLE_DELAY", &c.CAD.SettleDelay},
		{"ELECSYN_CAD_ATTACH_TIMEOUT", &c.CAD.AttachTimeout},
		{"ELECSYN_CAD_READY_TIMEOUT", &c.CAD.ReadyTimeout},
	}
	for _, d := range durations {
		v, ok := os.LookupEnv(d.key)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.key, v, err)
		}
		*d.dst = parsed
	}
	return nil
}

// Validate reports every invalid setting in one config-kind error.
func (c *Config) Validate() error {
	var problems []error
	if c.OutputPath == "" {
		problems = append(problems, errors.New("output path must not be empty"))
	}
	if c.Model == "" {
		problems = append(problems, errors.New("model must not be empty"))
	}
	if c.APIKeyEnv == "" {
		problems = append(problems, errors.New("api_key_env must not be empty"))
	}
	if c.MaxAttempts < 1 {
		problems = append(problems, fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts))
	}
	if c.CAD.Exe == "" {
		problems = append(problems, errors.New("cad.exe must not be empty"))
	}
	if _, err := regexp.Compile(c.CAD.WindowTitle); err != nil {
		problems = append(problems, fmt.Errorf("cad.window_title is not a valid pattern: %w", err))
	}
	if c.CAD.RunKey == "" {
		problems = append(problems, errors.New("cad.run_key must not be empty"))
	}
	for name, d := range map[string]time.Duration{
		"base_delay":         c.BaseDelay,
		"request_timeout":    c.RequestTimeout,
		"cad.settle_delay":   c.CAD.SettleDelay,
		"cad.attach_timeout": c.CAD.AttachTimeout,
		"cad.ready_timeout":  c.CAD.ReadyTimeout,
	} {
		if d < 0 {
			problems = append(problems, fmt.Errorf("%s must not be negative", name))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return models.Wrap(errors.Join(problems...), models.KindConfig, "invalid configuration")
}

// Target returns the automation target described by the CAD section.
func (c *Config) Target() models.AutomationTarget {
	return models.AutomationTarget{
		ExePath:     c.CAD.Exe,
		WindowTitle: c.CAD.WindowTitle,
		RunKey:      c.CAD.RunKey,
	}
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
