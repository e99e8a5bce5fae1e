package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/go-resty/resty/v2"

	"github.com/BDNK1/agentflow/runtime/plugin"
)

const (
	ProviderGoogle    = "google"
	ProviderMicrosoft = "microsoft"
)

// Config holds the calendar plugin configuration
type Config struct {
	GoogleURL       string        `yaml:"google_url" default:"https://www.googleapis.com/calendar/v3" validate:"required,url_format"`
	MicrosoftURL    string        `yaml:"microsoft_url" default:"https://graph.microsoft.com/v1.0" validate:"required,url_format"`
	DefaultTimeZone string        `yaml:"default_time_zone" default:"UTC" validate:"timezone"`
	Timeout         time.Duration `yaml:"timeout" default:"30s" validate:"gte=1s"`
}

// CalendarPlugin creates events in the user's Google or Microsoft calendar.
type CalendarPlugin struct {
	Config Config
	Tokens plugin.TokenSource
	client *resty.Client
}

var (
	_ plugin.Calendar  = (*CalendarPlugin)(nil)
	_ plugin.Lifecycle = (*CalendarPlugin)(nil)
)

func (p *CalendarPlugin) Initialize(ctx context.Context) error {
	if p.Tokens == nil {
		return fmt.Errorf("calendar plugin needs a token source")
	}
	p.client = resty.New().
		SetTimeout(p.Config.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	return nil
}

func (p *CalendarPlugin) Shutdown(ctx context.Context) error {
	p.client = nil
	return nil
}

// CreateEvent returns the provider's event resource as a map.
func (p *CalendarPlugin) CreateEvent(ctx context.Context, userID, provider string, details plugin.EventDetails) (map[string]any, error) {
	if p.client == nil {
		return nil, fmt.Errorf("calendar plugin is not initialized")
	}
	if provider == "" {
		provider = ProviderGoogle
	}
	if details.TimeZone == "" {
		details.TimeZone = p.Config.DefaultTimeZone
	}

	var (
		url  string
		body *gabs.Container
	)
	switch provider {
	case ProviderGoogle:
		url, body = p.Config.GoogleURL+"/calendars/primary/events", googleEvent(details)
	case ProviderMicrosoft:
		url, body = p.Config.MicrosoftURL+"/me/events", graphEvent(details)
	default:
		return nil, fmt.Errorf("unsupported calendar provider: %s", provider)
	}

	token, err := p.Tokens.Token(ctx, userID, provider)
	if err != nil {
		return nil, plugin.NewCollaboratorError(err).WithType("auth")
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(body.Bytes()).
		Post(url)
	if err != nil {
		return nil, fmt.Errorf("%s calendar request failed: %w", provider, err)
	}
	if resp.IsError() {
		return nil, providerError(provider, resp)
	}

	parsed, err := gabs.ParseJSON(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("%s calendar response: %w", provider, err)
	}
	event, ok := parsed.Data().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s calendar response is not an object", provider)
	}
	return event, nil
}

func googleEvent(d plugin.EventDetails) *gabs.Container {
	body := gabs.New()
	body.Set(d.Summary, "summary")
	if d.Location != "" {
		body.Set(d.Location, "location")
	}
	if d.Description != "" {
		body.Set(d.Description, "description")
	}
	body.Set(d.Start, "start", "dateTime")
	body.Set(d.TimeZone, "start", "timeZone")
	body.Set(d.End, "end", "dateTime")
	body.Set(d.TimeZone, "end", "timeZone")
	if len(d.Attendees) > 0 {
		body.Array("attendees")
		for _, email := range d.Attendees {
			body.ArrayAppend(map[string]any{"email": email}, "attendees")
		}
	}
	return body
}

func graphEvent(d plugin.EventDetails) *gabs.Container {
	body := gabs.New()
	body.Set(d.Summary, "subject")
	if d.Description != "" {
		body.Set("text", "body", "contentType")
		body.Set(d.Description, "body", "content")
	}
	body.Set(d.Start, "start", "dateTime")
	body.Set(d.TimeZone, "start", "timeZone")
	body.Set(d.End, "end", "dateTime")
	body.Set(d.TimeZone, "end", "timeZone")
	if d.Location != "" {
		body.Set(d.Location, "location", "displayName")
	}
	if len(d.Attendees) > 0 {
		body.Array("attendees")
		for _, email := range d.Attendees {
			body.ArrayAppend(map[string]any{
				"emailAddress": map[string]any{"address": email},
				"type":         "required",
			}, "attendees")
		}
	}
	return body
}

func providerError(provider string, resp *resty.Response) error {
	msg := resp.Status()
	if parsed, err := gabs.ParseJSON(resp.Body()); err == nil {
		if m, ok := parsed.Path("error.message").Data().(string); ok {
			msg = m
		}
	}
	ce := plugin.NewCollaboratorError(fmt.Errorf("%s calendar rejected the event: %s", provider, msg)).
		WithStatus(resp.StatusCode()).
		WithRetryHint(resp.StatusCode() >= 500 || resp.StatusCode() == 429, resp.Header().Get("Retry-After"))
	if resp.StatusCode() == 401 || resp.StatusCode() == 403 {
		ce.WithType("auth")
	}
	return ce
}
