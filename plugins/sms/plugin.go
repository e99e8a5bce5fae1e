package sms

import (
	"context"
	"fmt"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/go-resty/resty/v2"

	"github.com/BDNK1/agentflow/runtime/plugin"
)

// Config holds the Twilio account used for outgoing messages
type Config struct {
	AccountSID string        `yaml:"account_sid" validate:"required"`
	AuthToken  string        `yaml:"auth_token" validate:"required"`
	From       string        `yaml:"from"`
	BaseURL    string        `yaml:"base_url" default:"https://api.twilio.com/2010-04-01" validate:"required,url_format"`
	Timeout    time.Duration `yaml:"timeout" default:"15s" validate:"gte=1s"`
}

// SMSPlugin sends text messages through the Twilio Messages API.
type SMSPlugin struct {
	Config Config
	client *resty.Client
}

var (
	_ plugin.SMSSender = (*SMSPlugin)(nil)
	_ plugin.Lifecycle = (*SMSPlugin)(nil)
)

func (p *SMSPlugin) Initialize(ctx context.Context) error {
	p.client = resty.New().
		SetTimeout(p.Config.Timeout).
		SetBasicAuth(p.Config.AccountSID, p.Config.AuthToken).
		SetHeader("Accept", "application/json")
	return nil
}

func (p *SMSPlugin) Shutdown(ctx context.Context) error {
	p.client = nil
	return nil
}

func (p *SMSPlugin) SendSMS(ctx context.Context, msg plugin.SMSMessage) (*plugin.SMSResult, error) {
	if p.client == nil {
		return nil, fmt.Errorf("sms plugin is not initialized")
	}
	from := msg.From
	if from == "" {
		from = p.Config.From
	}
	if from == "" {
		return nil, fmt.Errorf("sms needs a sender number")
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"To":   msg.To,
			"From": from,
			"Body": msg.Message,
		}).
		Post(fmt.Sprintf("%s/Accounts/%s/Messages.json", p.Config.BaseURL, p.Config.AccountSID))
	if err != nil {
		return nil, fmt.Errorf("twilio request failed: %w", err)
	}

	parsed, parseErr := gabs.ParseJSON(resp.Body())
	if resp.IsError() {
		reason := resp.Status()
		if parseErr == nil {
			if m, ok := parsed.Path("message").Data().(string); ok {
				reason = m
			}
		}
		return nil, plugin.NewCollaboratorError(fmt.Errorf("twilio rejected the message: %s", reason)).
			WithStatus(resp.StatusCode()).
			WithRetryHint(resp.StatusCode() >= 500 || resp.StatusCode() == 429, resp.Header().Get("Retry-After"))
	}
	if parseErr != nil {
		return nil, fmt.Errorf("twilio response: %w", parseErr)
	}

	sid, _ := parsed.Path("sid").Data().(string)
	status, _ := parsed.Path("status").Data().(string)
	return &plugin.SMSResult{MessageID: sid, Status: status}, nil
}
