package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Jinrix-labs/prompt-forge-sub000/internal/logging"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configFile string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "promptforge",
		Short: "Run multi-step LLM prompt workflows",
		Long: `promptforge executes authored workflows: ordered prompt_generation,
text_transform, text_combine and variable_extract steps that pass their
outputs forward through a shared context.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default ./promptforge.yaml or ~/.promptforge/promptforge.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(
		newServeCmd(opts),
		newMCPCmd(opts),
		newRunCmd(opts),
		newCreditsCmd(opts),
		newVersionCmd(),
	)
	return root
}

// load reads configuration and applies flag overrides.
func (o *rootOptions) load() (*Config, error) {
	cfg, err := loadConfig(o.configFile)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg, nil
}

// textLogger logs to stderr; stdout is reserved for command output.
func textLogger(cfg *Config) *slog.Logger {
	return logging.New(os.Stderr, cfg.LogLevel, false)
}
