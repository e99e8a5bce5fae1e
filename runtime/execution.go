package runtime

import (
	"context"
	"maps"
	"time"
)

var _ context.Context = &Execution{}

// Status of a run or of a single step log entry.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Execution is the mutable state of one run. It is owned by a single
// runner goroutine and is never shared between runs.
type Execution struct {
	ID            string
	WorkflowID    string
	Data          map[string]any
	CurrentStepID string
	Status        Status
	StartedAt     time.Time
	CompletedAt   *time.Time
	Error         *RunError
	ctx           context.Context // run context carrying cancellation
}

// context.Context implementation, delegates to the run context so slog
// calls made with the execution carry cancellation and trace state.

func (e *Execution) Deadline() (deadline time.Time, ok bool) {
	return e.ctx.Deadline()
}

func (e *Execution) Done() <-chan struct{} {
	return e.ctx.Done()
}

func (e *Execution) Err() error {
	return e.ctx.Err()
}

func (e *Execution) Value(key any) any {
	return e.ctx.Value(key)
}

// NewExecution starts a run in the running state with a shallow copy of the
// trigger payload as its data bag.
func NewExecution(ctx context.Context, record *ExecutionRecord, trigger map[string]any) *Execution {
	if ctx == nil {
		ctx = context.Background()
	}
	data := maps.Clone(trigger)
	if data == nil {
		data = make(map[string]any)
	}
	return &Execution{
		ID:         record.ID,
		WorkflowID: record.WorkflowID,
		Data:       data,
		Status:     StatusRunning,
		StartedAt:  record.StartedAt,
		ctx:        ctx,
	}
}

// Set writes a value into the data bag.
func (e *Execution) Set(key string, value any) {
	e.Data[key] = value
}

// Lookup reads a dotted path from the data bag.
func (e *Execution) Lookup(path string) (any, bool) {
	return lookupPath(e.Data, path)
}

// UserID is the identity collaborators act on behalf of.
func (e *Execution) UserID() string {
	v, ok := e.Data["userId"]
	if !ok {
		return ""
	}
	return Stringify(v)
}

func (e *Execution) markCompleted(at time.Time) {
	e.Status = StatusCompleted
	e.CompletedAt = &at
}

func (e *Execution) markFailed(err *RunError, at time.Time) {
	e.Status = StatusFailed
	e.Error = err
	e.CompletedAt = &at
}

// RunResult is the caller facing summary of a finished run.
type RunResult struct {
	ExecutionID   string         `json:"executionId"`
	WorkflowID    string         `json:"workflowId"`
	Status        Status         `json:"status"`
	CurrentStepID string         `json:"currentStepId,omitempty"`
	Data          map[string]any `json:"data"`
	Error         string         `json:"error,omitempty"`
	ErrorKind     ErrorKind      `json:"errorKind,omitempty"`
	StartedAt     time.Time      `json:"startedAt"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty"`
}

func (e *Execution) Result() RunResult {
	r := RunResult{
		ExecutionID:   e.ID,
		WorkflowID:    e.WorkflowID,
		Status:        e.Status,
		CurrentStepID: e.CurrentStepID,
		Data:          e.Data,
		StartedAt:     e.StartedAt,
		CompletedAt:   e.CompletedAt,
	}
	if e.Error != nil {
		r.Error = e.Error.Message
		r.ErrorKind = e.Error.Kind
	}
	return r
}
