// Package plugin is the surface plugin authors build against.
//
// Plugins import only this package, never the parent "runtime" package:
//
//	import "github.com/BDNK1/agentflow/runtime/plugin"
//
// # Plugin Structure
//
// A plugin is a struct with an exported Config field and methods that
// satisfy one or more collaborator contracts. Registering it with the
// container binds every contract it satisfies:
//
//	ContentExtractor  extract_url, extract_file
//	EmailSender       send_email
//	Calendar          create_event
//	SMSSender         send_sms
//	ChatCompleter     chat_response (completion models)
//	BotConversation   chat_response (conversation bots)
//	HTTPClient        http_call
//
// Storage plugins implement WorkflowRegistry, ExecutionStore and
// StepLogStore instead; they are wired by the CLI, not by the container.
//
// # Configuration
//
// Config structs carry declarative tags:
//
//	type Config struct {
//	    BaseURL string        `yaml:"base_url" default:"https://api.example.com" validate:"required,url_format"`
//	    Timeout time.Duration `yaml:"timeout" default:"30s" validate:"gte=1s"`
//	}
//
// The framework applies defaults, merges the plugin's section of the config
// file (with ${ENV} and ${ENV:default} resolved) and validates the result
// before Initialize is called. Plugin code never calls those steps itself.
// Besides the validator's built-in tags, hostname_port, url_format, dsn and
// timezone are available. RegisterValidator adds more.
//
// # Lifecycle Management
//
// Plugins that hold clients or connections implement Lifecycle:
//
//	func (p *SMSPlugin) Initialize(ctx context.Context) error {
//	    p.client = resty.New().SetTimeout(p.Config.Timeout)
//	    return nil
//	}
//
//	func (p *SMSPlugin) Shutdown(ctx context.Context) error {
//	    return nil
//	}
//
// Initialize runs in registration order and a failure aborts startup.
// Shutdown runs in reverse order.
//
// # Errors
//
// Collaborators return plain errors, or a *CollaboratorError when the
// remote side reported something worth keeping (status code, retry hint).
// The step runner logs the metadata with the failure and the run fails.
package plugin
