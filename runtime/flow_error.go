package runtime

import (
	"context"
	"errors"
)

// ErrorKind classifies why a run ended in the failed state.
type ErrorKind string

const (
	// ErrorKindDefinition signals a broken workflow, e.g. a dangling step reference.
	ErrorKindDefinition ErrorKind = "definition"
	// ErrorKindValidation signals a step config that could not be decoded or validated.
	ErrorKindValidation ErrorKind = "validation"
	// ErrorKindStep signals a step or its collaborator returned an error.
	ErrorKindStep ErrorKind = "step"
	// ErrorKindTimeout signals a step exceeded its deadline.
	ErrorKindTimeout ErrorKind = "timeout"
	// ErrorKindCancelled signals the run was cancelled from outside.
	ErrorKindCancelled ErrorKind = "cancelled"
)

// RunError is the terminal error recorded on a failed execution.
// Message is what lands in the execution's error field.
type RunError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Step    string    `json:"step,omitempty"`
	Cause   error     `json:"-"`
}

func (e *RunError) Error() string {
	return e.Message
}

func (e *RunError) Unwrap() error {
	return e.Cause
}

func stepNotFound(id string) *RunError {
	return &RunError{
		Kind:    ErrorKindDefinition,
		Message: "step not found: " + id,
		Step:    id,
	}
}

// classifyStepError maps an error returned while running a step onto a
// RunError. parent is the run context, stepCtx the (possibly deadline bound)
// context the step ran under.
func classifyStepError(parent, stepCtx context.Context, stepID string, err error) *RunError {
	var runErr *RunError
	if errors.As(err, &runErr) {
		if runErr.Step == "" {
			runErr.Step = stepID
		}
		return runErr
	}

	switch {
	case parent.Err() != nil:
		return &RunError{Kind: ErrorKindCancelled, Message: "execution cancelled", Step: stepID, Cause: err}
	case errors.Is(stepCtx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return &RunError{Kind: ErrorKindTimeout, Message: "step " + stepID + " timed out", Step: stepID, Cause: err}
	}

	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return &RunError{Kind: ErrorKindValidation, Message: err.Error(), Step: stepID, Cause: err}
	}

	return &RunError{Kind: ErrorKindStep, Message: err.Error(), Step: stepID, Cause: err}
}
