package chat

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/go-resty/resty/v2"

	"github.com/BDNK1/agentflow/runtime/plugin"
)

// BotConfig points at a conversational bot service
type BotConfig struct {
	BaseURL string        `yaml:"base_url" validate:"required,url_format"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout" default:"60s" validate:"gte=1s"`
}

// BotPlugin posts messages into bot conversations and returns the reply.
type BotPlugin struct {
	Config BotConfig
	client *resty.Client
}

var (
	_ plugin.BotConversation = (*BotPlugin)(nil)
	_ plugin.Lifecycle       = (*BotPlugin)(nil)
)

func (p *BotPlugin) Initialize(ctx context.Context) error {
	p.client = resty.New().
		SetTimeout(p.Config.Timeout).
		SetHeader("Content-Type", "application/json")
	if p.Config.APIKey != "" {
		p.client.SetAuthToken(p.Config.APIKey)
	}
	return nil
}

func (p *BotPlugin) Shutdown(ctx context.Context) error {
	p.client = nil
	return nil
}

func (p *BotPlugin) SendMessage(ctx context.Context, conversationID, text string) (string, error) {
	if p.client == nil {
		return "", fmt.Errorf("bot plugin is not initialized")
	}
	if conversationID == "" {
		return "", fmt.Errorf("bot message needs a conversation id")
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"text": text}).
		Post(fmt.Sprintf("%s/conversations/%s/messages", p.Config.BaseURL, url.PathEscape(conversationID)))
	if err != nil {
		return "", fmt.Errorf("bot request failed: %w", err)
	}
	if resp.IsError() {
		return "", remoteError("bot conversation", resp)
	}

	parsed, err := gabs.ParseJSON(resp.Body())
	if err != nil {
		return "", fmt.Errorf("bot response: %w", err)
	}
	for _, key := range []string{"response", "text", "message"} {
		if reply, ok := parsed.Path(key).Data().(string); ok {
			return reply, nil
		}
	}
	return "", fmt.Errorf("bot response has no reply text")
}
