package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var errNoCollaborator = errors.New("no collaborator configured")

// StepExecutor performs the side effect of a single step and reports which
// step should run next.
type StepExecutor struct {
	container *Container
	evaluator ConditionEvaluator
	l         *slog.Logger
}

func NewStepExecutor(container *Container, evaluator ConditionEvaluator, l *slog.Logger) *StepExecutor {
	if evaluator == nil {
		evaluator = SafeEvaluator{}
	}
	return &StepExecutor{
		container: container,
		evaluator: evaluator,
		l:         l,
	}
}

// ExecuteStep dispatches on the typed config. ctx carries the step deadline
// and run cancellation; execution carries the data bag.
func (e *StepExecutor) ExecuteStep(ctx context.Context, execution *Execution, step *Step, cfg StepConfig) (string, error) {
	switch c := cfg.(type) {
	case *ExtractURLConfig:
		return step.Next, e.handleExtractURL(ctx, execution, c)
	case *ExtractFileConfig:
		return step.Next, e.handleExtractFile(ctx, execution, c)
	case *SendEmailConfig:
		return step.Next, e.handleSendEmail(ctx, execution, c)
	case *CreateEventConfig:
		return step.Next, e.handleCreateEvent(ctx, execution, c)
	case *SendSMSConfig:
		return step.Next, e.handleSendSMS(ctx, execution, c)
	case *ChatResponseConfig:
		return step.Next, e.handleChatResponse(ctx, execution, c)
	case *WaitConfig:
		return step.Next, e.handleWait(ctx, c)
	case *ConditionConfig:
		return e.handleCondition(execution, step, c), nil
	case *HTTPCallConfig:
		return step.Next, e.handleHTTPCall(ctx, execution, c)
	default:
		return "", &RunError{Kind: ErrorKindDefinition, Message: fmt.Sprintf("unknown step type %q", step.Kind), Step: step.ID}
	}
}

func (e *StepExecutor) handleExtractURL(ctx context.Context, execution *Execution, cfg *ExtractURLConfig) error {
	if e.container.Extractor == nil {
		return fmt.Errorf("extract_url: %w", errNoCollaborator)
	}
	content, err := e.container.Extractor.ExtractFromURL(ctx, cfg.URL)
	if err != nil {
		return fmt.Errorf("extract %s: %w", cfg.URL, err)
	}
	return storeResult(execution, cfg, content)
}

func (e *StepExecutor) handleExtractFile(ctx context.Context, execution *Execution, cfg *ExtractFileConfig) error {
	if e.container.Extractor == nil {
		return fmt.Errorf("extract_file: %w", errNoCollaborator)
	}
	content, err := e.container.Extractor.ExtractFromFile(ctx, cfg.FilePath)
	if err != nil {
		return fmt.Errorf("extract %s: %w", cfg.FilePath, err)
	}
	return storeResult(execution, cfg, content)
}

func (e *StepExecutor) handleSendEmail(ctx context.Context, execution *Execution, cfg *SendEmailConfig) error {
	if e.container.Email == nil {
		return fmt.Errorf("send_email: %w", errNoCollaborator)
	}
	result, err := e.container.Email.Send(ctx, execution.UserID(), EmailMessage{
		To:      cfg.To,
		Subject: cfg.Subject,
		Text:    cfg.Text,
		HTML:    cfg.HTML,
	})
	if err != nil {
		return fmt.Errorf("send email to %s: %w", cfg.To, err)
	}
	e.l.InfoContext(execution, fmt.Sprintf("Email sent to %s", cfg.To), "message_id", result.MessageID)
	return storeResult(execution, cfg, result)
}

func (e *StepExecutor) handleCreateEvent(ctx context.Context, execution *Execution, cfg *CreateEventConfig) error {
	if e.container.Calendar == nil {
		return fmt.Errorf("create_event: %w", errNoCollaborator)
	}
	event, err := e.container.Calendar.CreateEvent(ctx, execution.UserID(), cfg.Provider, EventDetails{
		Summary:     cfg.Summary,
		Location:    cfg.Location,
		Description: cfg.Description,
		Start:       cfg.Start,
		End:         cfg.End,
		TimeZone:    cfg.TimeZone,
		Attendees:   cfg.Attendees,
	})
	if err != nil {
		return fmt.Errorf("create %s event: %w", cfg.Provider, err)
	}
	execution.Set(outputKey(cfg), event)
	return nil
}

func (e *StepExecutor) handleSendSMS(ctx context.Context, execution *Execution, cfg *SendSMSConfig) error {
	if e.container.SMS == nil {
		return fmt.Errorf("send_sms: %w", errNoCollaborator)
	}
	result, err := e.container.SMS.SendSMS(ctx, SMSMessage{To: cfg.To, Message: cfg.Message, From: cfg.From})
	if err != nil {
		return fmt.Errorf("send sms to %s: %w", cfg.To, err)
	}
	return storeResult(execution, cfg, result)
}

// handleChatResponse talks to a conversation bot when the step names one,
// otherwise to the completion model.
func (e *StepExecutor) handleChatResponse(ctx context.Context, execution *Execution, cfg *ChatResponseConfig) error {
	useBot := cfg.Provider == "bot" || (cfg.Provider == "" && cfg.ConversationID != "")
	if useBot {
		if e.container.Bot == nil {
			return fmt.Errorf("chat_response: %w", errNoCollaborator)
		}
		if cfg.ConversationID == "" {
			return &ConfigError{Type: "chat_response config", Err: errors.New("conversationId is required for bot conversations")}
		}
		reply, err := e.container.Bot.SendMessage(ctx, cfg.ConversationID, cfg.UserMessage)
		if err != nil {
			return fmt.Errorf("bot conversation %s: %w", cfg.ConversationID, err)
		}
		execution.Set(outputKey(cfg), map[string]any{
			"response":       reply,
			"conversationId": cfg.ConversationID,
		})
		return nil
	}

	if e.container.Chat == nil {
		return fmt.Errorf("chat_response: %w", errNoCollaborator)
	}
	var messages []ChatMessage
	if cfg.SystemPrompt != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: cfg.SystemPrompt})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: cfg.UserMessage})

	resp, err := e.container.Chat.Complete(ctx, ChatRequest{
		Messages:    messages,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		UserID:      execution.UserID(),
	})
	if err != nil {
		return fmt.Errorf("chat completion: %w", err)
	}
	return storeResult(execution, cfg, resp)
}

func (e *StepExecutor) handleWait(ctx context.Context, cfg *WaitConfig) error {
	if cfg.Duration <= 0 {
		return nil
	}
	timer := time.NewTimer(time.Duration(cfg.Duration) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// handleCondition never fails: an expression that cannot be evaluated
// counts as false.
func (e *StepExecutor) handleCondition(execution *Execution, step *Step, cfg *ConditionConfig) string {
	result, err := e.evaluator.Evaluate(cfg.Condition, execution.Data)
	if err != nil {
		e.l.WarnContext(execution, "condition evaluation failed",
			"step", step.ID,
			"condition", cfg.Condition,
			"error", err)
		result = false
	}
	execution.Set(outputKey(cfg), result)

	if result {
		e.l.InfoContext(execution, fmt.Sprintf("Resolving condition: %s is true", step.ID))
		return step.NextIfTrue
	}
	e.l.InfoContext(execution, fmt.Sprintf("Resolving condition: %s is false", step.ID))
	return step.NextIfFalse
}

func (e *StepExecutor) handleHTTPCall(ctx context.Context, execution *Execution, cfg *HTTPCallConfig) error {
	if e.container.HTTP == nil {
		return fmt.Errorf("http_call: %w", errNoCollaborator)
	}
	resp, err := e.container.HTTP.Request(ctx, HTTPRequest{
		Method:      cfg.Method,
		URL:         cfg.URL,
		Headers:     cfg.Headers,
		Body:        cfg.Body,
		FailOnError: cfg.FailOnError,
	})
	if err != nil {
		return fmt.Errorf("%s %s: %w", cfg.Method, cfg.URL, err)
	}
	return storeResult(execution, cfg, resp)
}

// storeResult writes a collaborator result into the data bag as a plain
// map so later templates can address its fields.
func storeResult(execution *Execution, cfg StepConfig, result any) error {
	m, err := structToMap(result)
	if err != nil {
		return fmt.Errorf("store %s result: %w", cfg.Kind(), err)
	}
	execution.Set(outputKey(cfg), m)
	return nil
}
