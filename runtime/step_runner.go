package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/BDNK1/agentflow/runtime"

// StepRunner walks a workflow from a given step until it runs out of steps
// or a step fails. It records a step log entry per attempted step and
// persists the terminal state of the run.
type StepRunner struct {
	l            *slog.Logger
	stepExecutor *StepExecutor
	executions   ExecutionStore
	stepLogs     StepLogStore
	stepTimeout  time.Duration
	tracer       trace.Tracer
	meter        metric.Meter
	now          func() time.Time

	stepCount    metric.Int64Counter
	stepDuration metric.Float64Histogram
	runCount     metric.Int64Counter
}

type RunnerOption func(*StepRunner)

// WithStepTimeout bounds every step that does not set timeoutMs.
// wait steps are only bounded by their own timeoutMs.
func WithStepTimeout(d time.Duration) RunnerOption {
	return func(r *StepRunner) { r.stepTimeout = d }
}

func WithClock(now func() time.Time) RunnerOption {
	return func(r *StepRunner) { r.now = now }
}

func WithTracer(t trace.Tracer) RunnerOption {
	return func(r *StepRunner) { r.tracer = t }
}

func WithMeter(m metric.Meter) RunnerOption {
	return func(r *StepRunner) { r.meter = m }
}

func NewStepRunner(l *slog.Logger, stepExecutor *StepExecutor, executions ExecutionStore, stepLogs StepLogStore, opts ...RunnerOption) *StepRunner {
	r := &StepRunner{
		l:            l,
		stepExecutor: stepExecutor,
		executions:   executions,
		stepLogs:     stepLogs,
		tracer:       otel.Tracer(tracerName),
		meter:        otel.Meter(tracerName),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	// Names are constant, so instrument creation does not fail.
	r.stepCount, _ = r.meter.Int64Counter("agentflow.step.count",
		metric.WithDescription("Steps attempted, by kind and outcome"))
	r.stepDuration, _ = r.meter.Float64Histogram("agentflow.step.duration",
		metric.WithDescription("Step duration"),
		metric.WithUnit("ms"))
	r.runCount, _ = r.meter.Int64Counter("agentflow.run.count",
		metric.WithDescription("Finished runs, by workflow and status"))
	return r
}

// Run executes steps starting at stepID. The returned execution is in a
// terminal state.
func (r *StepRunner) Run(execution *Execution, wf *Workflow, stepID string) *Execution {
	for stepID != "" {
		step, ok := wf.Step(stepID)
		if !ok {
			r.l.ErrorContext(execution, fmt.Sprintf("Step not found: %s", stepID))
			r.fail(execution, stepNotFound(stepID))
			return execution
		}
		execution.CurrentStepID = step.ID

		if err := execution.Err(); err != nil {
			r.fail(execution, classifyStepError(execution, execution, step.ID, err))
			return execution
		}

		next, err := r.runStep(execution, step)
		if err != nil {
			return execution
		}
		stepID = next
	}

	r.complete(execution)
	return execution
}

func (r *StepRunner) runStep(execution *Execution, step *Step) (string, error) {
	started := r.now()
	ctx, span := r.tracer.Start(execution, "step "+string(step.Kind), trace.WithAttributes(
		attribute.String("agentflow.execution_id", execution.ID),
		attribute.String("agentflow.workflow_id", execution.WorkflowID),
		attribute.String("agentflow.step_id", step.ID),
	))
	defer span.End()

	r.l.InfoContext(execution, fmt.Sprintf("Executing step: %s", step.ID), "type", step.Kind)

	next, err := r.execute(ctx, execution, step)
	if err != nil {
		runErr := classifyStepError(execution, ctx, step.ID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, runErr.Message)

		attrs := []any{"step", step.ID, "kind", runErr.Kind, "error", err}
		if ce := asCollaboratorError(err); ce != nil {
			attrs = append(attrs, "metadata", ce.Metadata)
		}
		r.l.ErrorContext(execution, fmt.Sprintf("Step failed: %s", step.ID), attrs...)

		r.recordStep(execution, step, StatusFailed, runErr.Message, started)
		r.fail(execution, runErr)
		return "", runErr
	}

	r.recordStep(execution, step, StatusCompleted, "", started)
	return next, nil
}

// execute resolves the step config, applies the step deadline and hands
// off to the step executor.
func (r *StepRunner) execute(ctx context.Context, execution *Execution, step *Step) (string, error) {
	raw := step.Config
	if step.Kind != KindCondition {
		raw = ResolveMap(step.Config, execution.Data)
	}

	cfg, err := DecodeStepConfig(step.Kind, raw)
	if err != nil {
		return "", err
	}

	timeout := r.stepTimeout
	if step.Kind == KindWait {
		timeout = 0
	}
	if t := cfg.options().timeout(); t > 0 {
		timeout = t
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	next, err := r.stepExecutor.ExecuteStep(ctx, execution, step, cfg)
	if err == nil && ctx.Err() != nil {
		// The collaborator returned after the deadline without noticing it.
		err = ctx.Err()
	}
	if err != nil {
		// Classified while the step deadline is still observable.
		return "", classifyStepError(execution, ctx, step.ID, err)
	}
	return next, nil
}

// recordStep emits step metrics and appends the step log entry.
func (r *StepRunner) recordStep(execution *Execution, step *Step, status Status, message string, started time.Time) {
	elapsed := r.now().Sub(started)
	attrs := metric.WithAttributes(
		attribute.String("kind", string(step.Kind)),
		attribute.String("status", string(status)),
	)
	r.stepCount.Add(context.WithoutCancel(execution), 1, attrs)
	r.stepDuration.Record(context.WithoutCancel(execution), float64(elapsed.Microseconds())/1000, attrs)

	if r.stepLogs == nil {
		return
	}
	entry := StepLogEntry{
		ExecutionID: execution.ID,
		StepID:      step.ID,
		Kind:        step.Kind,
		Status:      status,
		Error:       message,
		DurationMs:  elapsed.Milliseconds(),
		Timestamp:   r.now(),
	}
	if err := r.stepLogs.AppendStepLog(context.WithoutCancel(execution), entry); err != nil {
		r.l.WarnContext(execution, "failed to append step log", "step", step.ID, "error", err)
	}
}

func (r *StepRunner) complete(execution *Execution) {
	execution.markCompleted(r.now())
	r.l.InfoContext(execution, fmt.Sprintf("Execution completed: %s", execution.ID))
	r.persist(execution)
}

func (r *StepRunner) fail(execution *Execution, err *RunError) {
	execution.markFailed(err, r.now())
	r.l.InfoContext(execution, fmt.Sprintf("Execution failed: %s", execution.ID), "kind", err.Kind, "error", err.Message)
	r.persist(execution)
}

// persist writes the terminal state. It runs even when the run was
// cancelled, so it uses a context that ignores cancellation.
func (r *StepRunner) persist(execution *Execution) {
	r.runCount.Add(context.WithoutCancel(execution), 1, metric.WithAttributes(
		attribute.String("workflow", execution.WorkflowID),
		attribute.String("status", string(execution.Status)),
	))

	if r.executions == nil {
		return
	}
	update := ExecutionUpdate{
		ExecutionID: execution.ID,
		Status:      execution.Status,
		CompletedAt: execution.CompletedAt,
		ResultData:  execution.Data,
	}
	if execution.Error != nil {
		update.Error = execution.Error.Message
		update.ErrorKind = execution.Error.Kind
	}
	if err := r.executions.UpdateExecution(context.WithoutCancel(execution), update); err != nil {
		r.l.ErrorContext(execution, "failed to persist execution state", "status", execution.Status, "error", err)
	}
}
