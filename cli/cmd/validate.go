package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BDNK1/agentflow/cli/internal/graph"
	"github.com/BDNK1/agentflow/runtime"
	"github.com/BDNK1/agentflow/runtime/engine/yaml"
)

var validateCmd = &cobra.Command{
	Use:   "validate [workflows-dir]",
	Short: "Check workflow definitions without running them",
	Long: `Validate loads every workflow file in the directory and reports structural
problems: unknown step types, duplicate ids, dangling next references.
Valid workflows are also checked for unreachable steps and endless loops,
which are reported as warnings.

Example:
  agentflow validate ./workflows
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	dir := workflowsPath
	if len(args) == 1 {
		dir = args[0]
	}
	if dir == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir = cfg.Engine.WorkflowsDir
	}

	workflows, err := runtime.LoadWorkflowDir(yaml.NewFlowLoader(), dir)
	for _, wf := range workflows {
		fmt.Fprintf(cmd.OutOrStdout(), "ok  %s (%d steps)\n", wf.ID, len(wf.Steps))

		g, graphErr := graph.BuildGraph(&wf)
		if graphErr != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "warn  %s: %v\n", wf.ID, graphErr)
			continue
		}
		for _, w := range g.Lint() {
			fmt.Fprintf(cmd.OutOrStdout(), "warn  %s: %s\n", wf.ID, w)
		}
	}
	if err != nil {
		return fmt.Errorf("invalid workflows in %s:\n%w", dir, err)
	}
	if len(workflows) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no workflow files found in %s\n", dir)
	}
	return nil
}
