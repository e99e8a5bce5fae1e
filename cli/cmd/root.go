package cmd

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/BDNK1/agentflow/cli/internal/builder"
	"github.com/BDNK1/agentflow/cli/internal/config"
	"github.com/BDNK1/agentflow/cli/internal/telemetry"
)

var (
	configPath    string
	workflowsPath string
)

var rootCmd = &cobra.Command{
	Use:   "agentflow",
	Short: "agentflow - automation workflow engine",
	Long: `agentflow runs user-defined workflows: ordered steps that extract content,
send email and SMS, create calendar events, ask chat models, call HTTP APIs,
wait, and branch on conditions.

Configuration is read from agentflow.yaml (or --config) and AGENTFLOW_*
environment variables.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ./agentflow.yaml)")
	rootCmd.PersistentFlags().StringVar(&workflowsPath, "workflows", "", "Workflow definitions directory (overrides engine.workflows_dir)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}

// loadConfig reads the config and applies flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if workflowsPath != "" {
		cfg.Engine.WorkflowsDir = workflowsPath
	}
	return cfg, nil
}

// newLogger builds the command logger and starts telemetry export when it
// is enabled. The returned func flushes the exporters.
func newLogger(ctx context.Context, cfg *config.Config, w io.Writer) (*slog.Logger, func(), error) {
	base := builder.NewLogger(cfg.Log, w)
	provider, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, nil, err
	}
	l := slog.New(provider.Handler(base.Handler()))
	return l, func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			base.Error("Telemetry shutdown failed", "error", err)
		}
	}, nil
}
