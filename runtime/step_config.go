package runtime

import (
	"fmt"
	"strings"
	"time"
)

// StepConfig is the typed configuration of one step kind. The set of
// implementations is closed: each kind has exactly one config struct below.
type StepConfig interface {
	Kind() StepKind
	options() StepOptions
}

// StepOptions holds the keys every step kind accepts.
type StepOptions struct {
	OutputKey string `json:"outputKey"`
	TimeoutMs int64  `json:"timeoutMs" validate:"gte=0"`
}

func (o StepOptions) options() StepOptions { return o }

func (o StepOptions) timeout() time.Duration {
	return time.Duration(o.TimeoutMs) * time.Millisecond
}

type ExtractURLConfig struct {
	StepOptions
	URL string `json:"url" validate:"required"`
}

type ExtractFileConfig struct {
	StepOptions
	FilePath string `json:"filePath" validate:"required"`
}

type SendEmailConfig struct {
	StepOptions
	To      string `json:"to" validate:"required"`
	Subject string `json:"subject" validate:"required"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

type CreateEventConfig struct {
	StepOptions
	Summary     string   `json:"summary" validate:"required"`
	Location    string   `json:"location"`
	Description string   `json:"description"`
	Start       string   `json:"start" validate:"required"`
	End         string   `json:"end" validate:"required"`
	TimeZone    string   `json:"timeZone" validate:"omitempty,timezone"`
	Attendees   []string `json:"attendees" validate:"omitempty,dive,required"`
	Provider    string   `json:"provider" default:"google" validate:"oneof=google microsoft"`
}

type SendSMSConfig struct {
	StepOptions
	To      string `json:"to" validate:"required"`
	Message string `json:"message" validate:"required"`
	From    string `json:"from"`
}

type ChatResponseConfig struct {
	StepOptions
	UserMessage    string   `json:"userMessage" validate:"required"`
	SystemPrompt   string   `json:"systemPrompt"`
	Model          string   `json:"model"`
	Temperature    *float64 `json:"temperature" validate:"omitempty,gte=0,lte=2"`
	Provider       string   `json:"provider" validate:"omitempty,oneof=completion bot"`
	ConversationID string   `json:"conversationId"`
}

// WaitConfig pauses the run for Duration milliseconds.
type WaitConfig struct {
	StepOptions
	Duration int64 `json:"duration" validate:"gte=0"`
}

// ConditionConfig is decoded from the raw config; the expression is
// resolved by the evaluator, not beforehand.
type ConditionConfig struct {
	StepOptions
	Condition string `json:"condition" validate:"required"`
}

type HTTPCallConfig struct {
	StepOptions
	Method      string            `json:"method" default:"GET" validate:"oneof=GET POST PUT PATCH DELETE HEAD OPTIONS"`
	URL         string            `json:"url" validate:"required"`
	Headers     map[string]string `json:"headers"`
	Body        any               `json:"body"`
	FailOnError bool              `json:"failOnError"`
}

func (*ExtractURLConfig) Kind() StepKind   { return KindExtractURL }
func (*ExtractFileConfig) Kind() StepKind  { return KindExtractFile }
func (*SendEmailConfig) Kind() StepKind    { return KindSendEmail }
func (*CreateEventConfig) Kind() StepKind  { return KindCreateEvent }
func (*SendSMSConfig) Kind() StepKind      { return KindSendSMS }
func (*ChatResponseConfig) Kind() StepKind { return KindChatResponse }
func (*WaitConfig) Kind() StepKind         { return KindWait }
func (*ConditionConfig) Kind() StepKind    { return KindCondition }
func (*HTTPCallConfig) Kind() StepKind     { return KindHTTPCall }

// defaultOutputKeys names the data bag key each kind writes to when the
// step does not set outputKey.
var defaultOutputKeys = map[StepKind]string{
	KindExtractURL:   "urlContent",
	KindExtractFile:  "fileContent",
	KindSendEmail:    "emailResult",
	KindCreateEvent:  "eventResult",
	KindSendSMS:      "smsResult",
	KindChatResponse: "botResponse",
	KindCondition:    "conditionResult",
	KindHTTPCall:     "httpResult",
}

func outputKey(cfg StepConfig) string {
	if key := cfg.options().OutputKey; key != "" {
		return key
	}
	return defaultOutputKeys[cfg.Kind()]
}

// DecodeStepConfig turns a step's (already resolved) config map into the
// typed config of its kind: defaults, then values, then validation.
func DecodeStepConfig(kind StepKind, raw map[string]any) (StepConfig, error) {
	var cfg StepConfig
	switch kind {
	case KindExtractURL:
		cfg = &ExtractURLConfig{}
	case KindExtractFile:
		cfg = &ExtractFileConfig{}
	case KindSendEmail:
		cfg = &SendEmailConfig{}
	case KindCreateEvent:
		cfg = &CreateEventConfig{}
	case KindSendSMS:
		cfg = &SendSMSConfig{}
	case KindChatResponse:
		cfg = &ChatResponseConfig{}
	case KindWait:
		cfg = &WaitConfig{}
	case KindCondition:
		cfg = &ConditionConfig{}
	case KindHTTPCall:
		cfg = &HTTPCallConfig{}
	default:
		return nil, &RunError{Kind: ErrorKindDefinition, Message: fmt.Sprintf("unknown step type %q", kind)}
	}

	typeName := fmt.Sprintf("%s config", kind)
	if err := ApplyDefaults(cfg); err != nil {
		return nil, &ConfigError{Type: typeName, Err: err}
	}
	if len(raw) > 0 {
		if err := mapToStruct(raw, cfg); err != nil {
			return nil, &ConfigError{Type: typeName, Err: fmt.Errorf("invalid %s: %w", typeName, err)}
		}
	}

	if c, ok := cfg.(*HTTPCallConfig); ok {
		c.Method = strings.ToUpper(strings.TrimSpace(c.Method))
		if c.Method == "" {
			c.Method = "GET"
		}
	}
	if c, ok := cfg.(*CreateEventConfig); ok {
		c.Attendees = trimAll(c.Attendees)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, &ConfigError{Type: typeName, Err: fmt.Errorf("invalid %s: %w", typeName, err)}
	}
	return cfg, nil
}

func trimAll(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
