package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mpataki/elecsyn/internal/config"
	"github.com/mpataki/elecsyn/internal/desktop"
	"github.com/mpataki/elecsyn/internal/genai"
	"github.com/mpataki/elecsyn/internal/launcher"
	"github.com/mpataki/elecsyn/internal/models"
	"github.com/mpataki/elecsyn/internal/netlist"
	"github.com/mpataki/elecsyn/internal/orchestrator"
	"github.com/mpataki/elecsyn/internal/tui"
)

const readyTitle = "AI Multisim Agent Ready"

type globalFlags struct {
	configPath string
	logLevel   string
	output     string
	noLaunch   bool
}

func main() {
	err := newRootCommand(os.Stdin, os.Stdout).Execute()
	if err != nil {
		// pipeline failures were already reported on the console
		switch models.KindOf(err) {
		case models.KindUnknown, models.KindConfig:
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	os.Exit(models.ExitCode(err))
}

func newRootCommand(in io.Reader, out io.Writer) *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "elecsyn",
		Short: "Generate SPICE netlists with Gemini and simulate them in Multisim",
		Long: "elecsyn turns a natural-language circuit description into a SPICE netlist,\n" +
			"saves it, and opens it in the circuit simulator with the simulation started.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(flags)
			if err != nil {
				return err
			}

			console := tui.NewConsole(out)
			console.Banner(readyTitle)

			request, err := tui.ReadPrompt(in, out)
			if err != nil {
				return err
			}

			orch := newOrchestrator(cfg, console, flags.noLaunch)
			_, err = orch.Run(cmd.Context(), request)
			return err
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file (default: ./.elecsyn.yaml, then ~/.elecsyn/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&flags.output, "output", "o", "", "Netlist output path (default: ai_generated_circuit.cir)")
	rootCmd.Flags().BoolVar(&flags.noLaunch, "no-launch", false, "Generate the netlist but don't open the simulator")

	rootCmd.AddCommand(newGenerateCommand(flags, in, out))
	rootCmd.AddCommand(newLaunchCommand(flags, out))
	rootCmd.AddCommand(newConfigCommand(flags, out))

	rootCmd.SetIn(in)
	rootCmd.SetOut(out)
	rootCmd.SetContext(context.Background())
	return rootCmd
}

func newGenerateCommand(flags *globalFlags, in io.Reader, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "generate [prompt...]",
		Short: "Generate a netlist without launching the simulator",
		Long:  "Generate a netlist from the prompt given as arguments, or read one interactively.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(flags)
			if err != nil {
				return err
			}

			console := tui.NewConsole(out)
			request := models.CircuitRequest(strings.Join(args, " "))
			if len(args) == 0 {
				if request, err = tui.ReadPrompt(in, out); err != nil {
					return err
				}
			}

			_, err = newOrchestrator(cfg, console, true).Generate(cmd.Context(), request)
			return err
		},
	}
}

func newLaunchCommand(flags *globalFlags, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "launch <netlist>",
		Short: "Open an existing netlist in the simulator and start the simulation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(flags)
			if err != nil {
				return err
			}

			_, err = newOrchestrator(cfg, tui.NewConsole(out), false).Launch(cmd.Context(), args[0])
			return err
		},
	}
}

func newConfigCommand(flags *globalFlags, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(flags)
			if err != nil {
				return err
			}

			data, err := cfg.YAML()
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			_, err = out.Write(data)
			return err
		},
	}
}

// setup loads .env, configures logging and builds the validated configuration.
func setup(flags *globalFlags) (*config.Config, error) {
	level, err := logrus.ParseLevel(flags.logLevel)
	if err != nil {
		return nil, models.Wrap(err, models.KindConfig, "invalid log level")
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// existing environment variables take precedence over .env
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logrus.WithError(err).Warn("failed to load .env")
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, models.Wrap(err, models.KindConfig, "failed to load config")
	}
	if flags.output != "" {
		cfg.OutputPath = flags.output
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"output": cfg.OutputPath,
		"model":  cfg.Model,
		"exe":    cfg.CAD.Exe,
	}).Debug("configuration loaded")
	return cfg, nil
}

func newOrchestrator(cfg *config.Config, console *tui.Console, noLaunch bool) *orchestrator.Orchestrator {
	gen := netlist.NewGenerator(netlist.Config{
		OutputPath:  cfg.OutputPath,
		Model:       cfg.Model,
		APIKeyEnv:   cfg.APIKeyEnv,
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
	}, func(apiKey string) netlist.ContentGenerator {
		return genai.NewClient(apiKey, cfg.APIBaseURL, cfg.RequestTimeout)
	}, netlist.WithRetryNotice(console.RetryNotice))

	launch := launcher.New(launcher.Config{
		SettleDelay:   cfg.CAD.SettleDelay,
		AttachTimeout: cfg.CAD.AttachTimeout,
		ReadyTimeout:  cfg.CAD.ReadyTimeout,
		ScriptPath:    cfg.AutomationScript,
	}, desktop.New())

	return orchestrator.New(gen, launch, cfg.Target(), console, orchestrator.WithoutLaunch(noLaunch))
}
