// Package chat talks to chat completion models and to conversational bots.
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/go-resty/resty/v2"

	"github.com/BDNK1/agentflow/runtime/plugin"
)

// Config holds the chat completion endpoint configuration
type Config struct {
	BaseURL      string        `yaml:"base_url" default:"https://api.openai.com/v1" validate:"required,url_format"`
	APIKey       string        `yaml:"api_key" validate:"required"`
	DefaultModel string        `yaml:"default_model" default:"gpt-4o-mini"`
	Timeout      time.Duration `yaml:"timeout" default:"60s" validate:"gte=1s"`
}

// ChatPlugin calls an OpenAI compatible /chat/completions endpoint.
type ChatPlugin struct {
	Config Config
	client *resty.Client
}

var (
	_ plugin.ChatCompleter = (*ChatPlugin)(nil)
	_ plugin.Lifecycle     = (*ChatPlugin)(nil)
)

func (p *ChatPlugin) Initialize(ctx context.Context) error {
	p.client = resty.New().
		SetTimeout(p.Config.Timeout).
		SetAuthToken(p.Config.APIKey).
		SetHeader("Content-Type", "application/json")
	return nil
}

func (p *ChatPlugin) Shutdown(ctx context.Context) error {
	p.client = nil
	return nil
}

func (p *ChatPlugin) Complete(ctx context.Context, req plugin.ChatRequest) (*plugin.ChatResponse, error) {
	if p.client == nil {
		return nil, fmt.Errorf("chat plugin is not initialized")
	}
	model := req.Model
	if model == "" {
		model = p.Config.DefaultModel
	}

	body := map[string]any{
		"model":    model,
		"messages": req.Messages,
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.UserID != "" {
		body["user"] = req.UserID
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(p.Config.BaseURL + "/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("chat completion request failed: %w", err)
	}
	if resp.IsError() {
		return nil, remoteError("chat completion", resp)
	}

	parsed, err := gabs.ParseJSON(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("chat completion response: %w", err)
	}
	content, ok := parsed.Path("choices.0.message.content").Data().(string)
	if !ok {
		return nil, fmt.Errorf("chat completion response has no message content")
	}

	out := &plugin.ChatResponse{Response: content, Model: model}
	if m, ok := parsed.Path("model").Data().(string); ok {
		out.Model = m
	}
	out.Usage.PromptTokens = intAt(parsed, "usage.prompt_tokens")
	out.Usage.CompletionTokens = intAt(parsed, "usage.completion_tokens")
	out.Usage.TotalTokens = intAt(parsed, "usage.total_tokens")
	return out, nil
}

func intAt(c *gabs.Container, path string) int {
	if f, ok := c.Path(path).Data().(float64); ok {
		return int(f)
	}
	return 0
}

func remoteError(what string, resp *resty.Response) error {
	msg := resp.Status()
	if parsed, err := gabs.ParseJSON(resp.Body()); err == nil {
		if m, ok := parsed.Path("error.message").Data().(string); ok {
			msg = m
		} else if m, ok := parsed.Path("error").Data().(string); ok {
			msg = m
		}
	}
	ce := plugin.NewCollaboratorError(fmt.Errorf("%s failed: %s", what, msg)).
		WithStatus(resp.StatusCode()).
		WithRetryHint(resp.StatusCode() >= 500 || resp.StatusCode() == 429, resp.Header().Get("Retry-After"))
	if resp.StatusCode() == 401 || resp.StatusCode() == 403 {
		ce.WithType("auth")
	}
	return ce
}
