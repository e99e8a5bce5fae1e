package plugin

import (
	"github.com/BDNK1/agentflow/runtime"
)

// Lifecycle is implemented by plugins that acquire resources.
// If Initialize returns an error the application fails to start.
type Lifecycle = runtime.Lifecycle

type (
	ContentExtractor = runtime.ContentExtractor
	EmailSender      = runtime.EmailSender
	Calendar         = runtime.Calendar
	SMSSender        = runtime.SMSSender
	ChatCompleter    = runtime.ChatCompleter
	BotConversation  = runtime.BotConversation
	HTTPClient       = runtime.HTTPClient
	TokenSource      = runtime.TokenSource
)

type (
	WorkflowStore    = runtime.WorkflowStore
	WorkflowRegistry = runtime.WorkflowRegistry
	ExecutionStore   = runtime.ExecutionStore
	StepLogStore     = runtime.StepLogStore
)
