package plugin

import (
	"github.com/BDNK1/agentflow/runtime"
)

type (
	URLContent   = runtime.URLContent
	FileContent  = runtime.FileContent
	EmailMessage = runtime.EmailMessage
	EmailResult  = runtime.EmailResult
	EventDetails = runtime.EventDetails
	SMSMessage   = runtime.SMSMessage
	SMSResult    = runtime.SMSResult
	ChatMessage  = runtime.ChatMessage
	ChatRequest  = runtime.ChatRequest
	ChatResponse = runtime.ChatResponse
	ChatUsage    = runtime.ChatUsage
	HTTPRequest  = runtime.HTTPRequest
	HTTPResponse = runtime.HTTPResponse
)

type (
	Workflow        = runtime.Workflow
	Step            = runtime.Step
	StepKind        = runtime.StepKind
	Status          = runtime.Status
	ErrorKind       = runtime.ErrorKind
	ExecutionRecord = runtime.ExecutionRecord
	ExecutionUpdate = runtime.ExecutionUpdate
	StepLogEntry    = runtime.StepLogEntry
)

const (
	StatusRunning   = runtime.StatusRunning
	StatusCompleted = runtime.StatusCompleted
	StatusFailed    = runtime.StatusFailed
)

var (
	ErrWorkflowNotFound  = runtime.ErrWorkflowNotFound
	ErrExecutionNotFound = runtime.ErrExecutionNotFound
)

// CollaboratorError carries remote failure metadata alongside the error.
//
//	return nil, plugin.NewCollaboratorError(fmt.Errorf("send failed: %s", resp.Status())).
//	    WithStatus(resp.StatusCode()).
//	    WithRetryHint(resp.StatusCode() >= 500, "")
type CollaboratorError = runtime.CollaboratorError

var NewCollaboratorError = runtime.NewCollaboratorError

// RegisterValidator adds a validation tag usable in plugin Config structs.
// Register from an init function, before any config is initialized.
var RegisterValidator = runtime.RegisterCustomValidator
