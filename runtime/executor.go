package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrExecutorClosed is returned by Execute once Shutdown has been called.
var ErrExecutorClosed = errors.New("executor is shutting down")

// Executor starts workflow runs. Each Execute call is an independent run
// with its own data bag; runs may proceed concurrently.
type Executor struct {
	l          *slog.Logger
	workflows  WorkflowStore
	executions ExecutionStore
	runner     *StepRunner

	mu      sync.Mutex
	running map[string]context.CancelFunc
	closed  bool
	runs    sync.WaitGroup
}

func NewExecutor(l *slog.Logger, workflows WorkflowStore, executions ExecutionStore, runner *StepRunner) *Executor {
	return &Executor{
		l:          l,
		workflows:  workflows,
		executions: executions,
		runner:     runner,
		running:    make(map[string]context.CancelFunc),
	}
}

// Execute runs the workflow to completion or failure. An error is returned
// only when the run could not be started; a run that started always comes
// back as an execution in a terminal state, with failures recorded on it.
func (e *Executor) Execute(ctx context.Context, workflowID string, trigger map[string]any) (*Execution, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrExecutorClosed
	}
	e.runs.Add(1)
	e.mu.Unlock()
	defer e.runs.Done()

	wf, err := e.workflows.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow %s: %w", workflowID, err)
	}

	record, err := e.executions.CreateExecution(ctx, wf.ID, trigger)
	if err != nil {
		return nil, fmt.Errorf("create execution for %s: %w", wf.ID, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.track(record.ID, cancel)
	defer e.untrack(record.ID)

	execution := NewExecution(runCtx, record, trigger)
	e.l.InfoContext(execution, fmt.Sprintf("Starting execution: %s", execution.ID), "workflow", wf.ID)

	first, ok := wf.FirstStep()
	if !ok {
		e.runner.fail(execution, &RunError{Kind: ErrorKindDefinition, Message: "workflow has no steps"})
		return execution, nil
	}

	return e.runner.Run(execution, wf, first.ID), nil
}

// Cancel stops a run in progress. It reports whether a run with that id
// was found.
func (e *Executor) Cancel(executionID string) bool {
	e.mu.Lock()
	cancel, ok := e.running[executionID]
	e.mu.Unlock()

	if ok {
		e.l.Info(fmt.Sprintf("Cancelling execution: %s", executionID))
		cancel()
	}
	return ok
}

// Running returns the ids of runs in progress, sorted.
func (e *Executor) Running() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.running))
	for id := range e.running {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown refuses new runs, cancels the ones in progress and waits until
// each has recorded its terminal state, or until ctx is done.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	cancels := make(map[string]context.CancelFunc, len(e.running))
	for id, cancel := range e.running {
		cancels[id] = cancel
	}
	e.mu.Unlock()

	for id, cancel := range cancels {
		e.l.InfoContext(ctx, fmt.Sprintf("Cancelling execution on shutdown: %s", id))
		cancel()
	}

	done := make(chan struct{})
	go func() {
		e.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%d executions still running: %w", len(e.Running()), ctx.Err())
	}
}

// track registers a run. A run that registers after Shutdown started is
// cancelled straight away.
func (e *Executor) track(id string, cancel context.CancelFunc) {
	e.mu.Lock()
	e.running[id] = cancel
	if e.closed {
		cancel()
	}
	e.mu.Unlock()
}

func (e *Executor) untrack(id string) {
	e.mu.Lock()
	delete(e.running, id)
	e.mu.Unlock()
}
