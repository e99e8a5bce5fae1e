package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"
)

// EngineConfig tunes the step runner.
type EngineConfig struct {
	StepTimeout  time.Duration `yaml:"step_timeout" default:"0s" validate:"gte=0"`
	WorkflowsDir string        `yaml:"workflows_dir" default:"workflows"`
}

// Stores groups the persistence contracts an App needs.
type Stores struct {
	Workflows  WorkflowRegistry
	Executions ExecutionStore
	StepLogs   StepLogStore
}

type App struct {
	Container  *Container
	Workflows  WorkflowRegistry
	Executions ExecutionStore
	StepLogs   StepLogStore
	Executor   *Executor
	l          *slog.Logger
}

func NewApp(l *slog.Logger, cfg EngineConfig, container *Container, stores Stores) *App {
	stepExecutor := NewStepExecutor(container, SafeEvaluator{}, l)
	runner := NewStepRunner(l, stepExecutor, stores.Executions, stores.StepLogs, WithStepTimeout(cfg.StepTimeout))

	return &App{
		Container:  container,
		Workflows:  stores.Workflows,
		Executions: stores.Executions,
		StepLogs:   stores.StepLogs,
		Executor:   NewExecutor(l, stores.Workflows, stores.Executions, runner),
		l:          l,
	}
}

// LoadWorkflows reads every definition in dir and saves it to the registry.
func (a *App) LoadWorkflows(ctx context.Context, loader FlowLoader, dir string) (int, error) {
	workflows, err := LoadWorkflowDir(loader, dir)
	if err != nil {
		return 0, err
	}

	for _, wf := range workflows {
		if err := a.Workflows.SaveWorkflow(ctx, wf); err != nil {
			return 0, fmt.Errorf("save workflow %s: %w", wf.ID, err)
		}
		a.l.InfoContext(ctx, fmt.Sprintf("Registered workflow: %s", wf.ID), "steps", len(wf.Steps))
	}
	return len(workflows), nil
}

// LoadWorkflowDir loads and validates every file in dir matching the
// loader's extensions. All problems are reported together.
func LoadWorkflowDir(loader FlowLoader, dir string) ([]Workflow, error) {
	var files []string
	for _, pattern := range loader.Extensions() {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("error reading directory: %w", err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	var (
		workflows []Workflow
		errs      []error
		seen      = make(map[string]string)
	)
	for _, file := range files {
		wf, err := loader.Load(file)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", file, err))
			continue
		}
		if err := wf.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", file, err))
			continue
		}
		if other, dup := seen[wf.ID]; dup {
			errs = append(errs, fmt.Errorf("%s: workflow id %q already defined in %s", file, wf.ID, other))
			continue
		}
		seen[wf.ID] = file
		workflows = append(workflows, wf)
	}

	return workflows, errors.Join(errs...)
}
