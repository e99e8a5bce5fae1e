package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/BDNK1/agentflow/cli/internal/builder"
	"github.com/BDNK1/agentflow/runtime"
	"github.com/BDNK1/agentflow/runtime/engine/yaml"
)

var triggerPath string

var runCmd = &cobra.Command{
	Use:   "run <workflow-id>",
	Short: "Run one workflow to completion and print the result",
	Long: `Run executes a single workflow in process and prints the run result as
JSON. Trigger data is read from --trigger (a JSON file, or - for stdin).

Example:
  agentflow run daily-digest --trigger ./trigger.json
  echo '{"userId":"u1"}' | agentflow run daily-digest --trigger -
`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflow,
}

func init() {
	runCmd.Flags().StringVar(&triggerPath, "trigger", "", "JSON file with trigger data, - for stdin")
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	l, flush, err := newLogger(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer flush()

	trigger, err := readTriggerFile(cmd.InOrStdin(), triggerPath)
	if err != nil {
		return err
	}

	app, err := builder.Build(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer shutdownContainer(app, l)

	if _, err := app.LoadWorkflows(ctx, yaml.NewFlowLoader(), cfg.Engine.WorkflowsDir); err != nil {
		return fmt.Errorf("failed to load workflows: %w", err)
	}

	execution, err := app.Executor.Execute(ctx, args[0], trigger)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(execution.Result()); err != nil {
		return err
	}
	if execution.Status == runtime.StatusFailed {
		return fmt.Errorf("workflow %s failed: %s", args[0], execution.Error.Message)
	}
	return nil
}

func readTriggerFile(stdin io.Reader, path string) (map[string]any, error) {
	var (
		data []byte
		err  error
	)
	switch path {
	case "":
		return map[string]any{}, nil
	case "-":
		data, err = io.ReadAll(stdin)
	default:
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read trigger data: %w", err)
	}

	trigger := map[string]any{}
	if len(data) == 0 {
		return trigger, nil
	}
	if err := json.Unmarshal(data, &trigger); err != nil {
		return nil, fmt.Errorf("trigger data must be a JSON object: %w", err)
	}
	if trigger == nil {
		trigger = map[string]any{}
	}
	return trigger, nil
}
