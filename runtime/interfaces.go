package runtime

import (
	"context"
	"errors"
	"time"
)

var (
	ErrWorkflowNotFound  = errors.New("workflow not found")
	ErrExecutionNotFound = errors.New("execution not found")
)

// Lifecycle allows plugins to acquire and release resources.
// Initialize is called once at container startup with config already set on
// the plugin struct; Shutdown is called in reverse registration order.
type Lifecycle interface {
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// FlowLoader loads workflow definitions from files.
type FlowLoader interface {
	Extensions() []string
	Load(filePath string) (Workflow, error)
}

// WorkflowStore resolves workflow definitions by id.
type WorkflowStore interface {
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
}

// WorkflowRegistry is a WorkflowStore that can also be written to.
type WorkflowRegistry interface {
	WorkflowStore
	SaveWorkflow(ctx context.Context, wf Workflow) error
	ListWorkflows(ctx context.Context) ([]Workflow, error)
}

// ExecutionStore persists the lifecycle of each run.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, workflowID string, trigger map[string]any) (*ExecutionRecord, error)
	UpdateExecution(ctx context.Context, update ExecutionUpdate) error
	GetExecution(ctx context.Context, id string) (*ExecutionRecord, error)
}

// StepLogStore records one entry per attempted step.
type StepLogStore interface {
	AppendStepLog(ctx context.Context, entry StepLogEntry) error
	ListStepLogs(ctx context.Context, executionID string) ([]StepLogEntry, error)
}

type ExecutionRecord struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflowId"`
	Status      Status         `json:"status"`
	TriggerData map[string]any `json:"triggerData,omitempty"`
	ResultData  map[string]any `json:"resultData,omitempty"`
	Error       string         `json:"error,omitempty"`
	ErrorKind   ErrorKind      `json:"errorKind,omitempty"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

type ExecutionUpdate struct {
	ExecutionID string
	Status      Status
	CompletedAt *time.Time
	ResultData  map[string]any
	Error       string
	ErrorKind   ErrorKind
}

type StepLogEntry struct {
	ExecutionID string    `json:"executionId"`
	StepID      string    `json:"stepId"`
	Kind        StepKind  `json:"type"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	DurationMs  int64     `json:"durationMs"`
	Timestamp   time.Time `json:"timestamp"`
}

// ContentExtractor fetches and parses content for extract_url and extract_file.
type ContentExtractor interface {
	ExtractFromURL(ctx context.Context, url string) (*URLContent, error)
	ExtractFromFile(ctx context.Context, path string) (*FileContent, error)
}

type URLContent struct {
	URL      string         `json:"url"`
	Title    string         `json:"title"`
	Content  string         `json:"content"`
	Links    []string       `json:"links"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type FileContent struct {
	Path     string         `json:"path"`
	Type     string         `json:"type"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TokenSource returns an access token for a user on a provider such as
// "google" or "microsoft".
type TokenSource interface {
	Token(ctx context.Context, userID, provider string) (string, error)
}

type EmailMessage struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type EmailResult struct {
	MessageID string `json:"messageId"`
	ThreadID  string `json:"threadId,omitempty"`
}

type EmailSender interface {
	Send(ctx context.Context, userID string, msg EmailMessage) (*EmailResult, error)
}

type EventDetails struct {
	Summary     string
	Location    string
	Description string
	Start       string
	End         string
	TimeZone    string
	Attendees   []string
}

type Calendar interface {
	CreateEvent(ctx context.Context, userID, provider string, details EventDetails) (map[string]any, error)
}

type SMSMessage struct {
	To      string
	Message string
	From    string
}

type SMSResult struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status,omitempty"`
}

type SMSSender interface {
	SendSMS(ctx context.Context, msg SMSMessage) (*SMSResult, error)
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Messages    []ChatMessage
	Model       string
	Temperature *float64
	UserID      string
}

type ChatUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

type ChatResponse struct {
	Response string    `json:"response"`
	Model    string    `json:"model,omitempty"`
	Usage    ChatUsage `json:"usage"`
}

// ChatCompleter generates a reply from a chat completion model.
type ChatCompleter interface {
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// BotConversation posts a message into an existing bot conversation and
// returns the bot's reply.
type BotConversation interface {
	SendMessage(ctx context.Context, conversationID, text string) (string, error)
}

type HTTPRequest struct {
	Method      string
	URL         string
	Headers     map[string]string
	Body        any
	FailOnError bool
}

type HTTPResponse struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    any               `json:"body"`
}

type HTTPClient interface {
	Request(ctx context.Context, req HTTPRequest) (*HTTPResponse, error)
}
