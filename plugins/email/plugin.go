package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/BDNK1/agentflow/runtime/plugin"
)

const (
	ProviderGoogle    = "google"
	ProviderMicrosoft = "microsoft"
)

// Config holds the email plugin configuration
type Config struct {
	Provider string        `yaml:"provider" default:"google" validate:"oneof=google microsoft"`
	GmailURL string        `yaml:"gmail_url" default:"https://gmail.googleapis.com/gmail/v1" validate:"required,url_format"`
	GraphURL string        `yaml:"graph_url" default:"https://graph.microsoft.com/v1.0" validate:"required,url_format"`
	From     string        `yaml:"from" validate:"omitempty,email"`
	Timeout  time.Duration `yaml:"timeout" default:"30s" validate:"gte=1s"`
}

// EmailPlugin sends mail through the user's mailbox provider using an
// OAuth access token obtained from Tokens.
type EmailPlugin struct {
	Config Config
	Tokens plugin.TokenSource
	client *resty.Client
}

var (
	_ plugin.EmailSender = (*EmailPlugin)(nil)
	_ plugin.Lifecycle   = (*EmailPlugin)(nil)
)

func (p *EmailPlugin) Initialize(ctx context.Context) error {
	if p.Tokens == nil {
		return fmt.Errorf("email plugin needs a token source")
	}
	p.client = resty.New().
		SetTimeout(p.Config.Timeout).
		SetHeader("Accept", "application/json")
	return nil
}

func (p *EmailPlugin) Shutdown(ctx context.Context) error {
	p.client = nil
	return nil
}

func (p *EmailPlugin) Send(ctx context.Context, userID string, msg plugin.EmailMessage) (*plugin.EmailResult, error) {
	if p.client == nil {
		return nil, fmt.Errorf("email plugin is not initialized")
	}
	if msg.Text == "" && msg.HTML == "" {
		return nil, fmt.Errorf("email needs a text or html body")
	}
	to, err := parseRecipients(msg.To)
	if err != nil {
		return nil, err
	}

	token, err := p.Tokens.Token(ctx, userID, p.Config.Provider)
	if err != nil {
		return nil, plugin.NewCollaboratorError(err).WithType("auth")
	}

	if p.Config.Provider == ProviderMicrosoft {
		return p.sendGraph(ctx, token, to, msg)
	}
	return p.sendGmail(ctx, token, to, msg)
}

func (p *EmailPlugin) sendGmail(ctx context.Context, token string, to []*mail.Address, msg plugin.EmailMessage) (*plugin.EmailResult, error) {
	raw, err := buildMIME(p.Config.From, to, msg)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(map[string]string{"raw": base64.RawURLEncoding.EncodeToString(raw)}).
		Post(p.Config.GmailURL + "/users/me/messages/send")
	if err != nil {
		return nil, fmt.Errorf("gmail request failed: %w", err)
	}
	if resp.IsError() {
		return nil, providerError("gmail", resp)
	}

	parsed, err := gabs.ParseJSON(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("gmail response: %w", err)
	}
	id, _ := parsed.Path("id").Data().(string)
	threadID, _ := parsed.Path("threadId").Data().(string)
	if id == "" {
		return nil, fmt.Errorf("gmail response has no message id")
	}
	return &plugin.EmailResult{MessageID: id, ThreadID: threadID}, nil
}

// sendGraph uses Microsoft Graph sendMail, which answers 202 without a body,
// so the message id is generated locally.
func (p *EmailPlugin) sendGraph(ctx context.Context, token string, to []*mail.Address, msg plugin.EmailMessage) (*plugin.EmailResult, error) {
	body := gabs.New()
	body.Set(msg.Subject, "message", "subject")
	if msg.HTML != "" {
		body.Set("HTML", "message", "body", "contentType")
		body.Set(msg.HTML, "message", "body", "content")
	} else {
		body.Set("Text", "message", "body", "contentType")
		body.Set(msg.Text, "message", "body", "content")
	}
	body.Array("message", "toRecipients")
	for _, addr := range to {
		recipient := gabs.New()
		recipient.Set(addr.Address, "emailAddress", "address")
		if addr.Name != "" {
			recipient.Set(addr.Name, "emailAddress", "name")
		}
		body.ArrayAppend(recipient.Data(), "message", "toRecipients")
	}
	messageID := uuid.New().String()
	body.Set([]any{map[string]any{"name": "X-Agentflow-Id", "value": messageID}}, "message", "internetMessageHeaders")
	body.Set(true, "saveToSentItems")

	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetBody(body.Bytes()).
		Post(p.Config.GraphURL + "/me/sendMail")
	if err != nil {
		return nil, fmt.Errorf("graph request failed: %w", err)
	}
	if resp.IsError() {
		return nil, providerError("graph", resp)
	}
	return &plugin.EmailResult{MessageID: messageID}, nil
}

// buildMIME renders an RFC 5322 message; with both bodies it is
// multipart/alternative.
func buildMIME(from string, to []*mail.Address, msg plugin.EmailMessage) ([]byte, error) {
	var buf bytes.Buffer
	if from != "" {
		fmt.Fprintf(&buf, "From: %s\r\n", from)
	}
	fmt.Fprintf(&buf, "To: %s\r\n", formatAddresses(to))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")

	if msg.Text == "" || msg.HTML == "" {
		contentType, content := "text/plain", msg.Text
		if msg.HTML != "" {
			contentType, content = "text/html", msg.HTML
		}
		fmt.Fprintf(&buf, "Content-Type: %s; charset=\"UTF-8\"\r\n\r\n%s", contentType, content)
		return buf.Bytes(), nil
	}

	var parts bytes.Buffer
	w := multipart.NewWriter(&parts)
	for _, part := range []struct{ contentType, content string }{
		{"text/plain", msg.Text},
		{"text/html", msg.HTML},
	} {
		pw, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {part.contentType + `; charset="UTF-8"`}})
		if err != nil {
			return nil, fmt.Errorf("build message: %w", err)
		}
		if _, err := pw.Write([]byte(part.content)); err != nil {
			return nil, fmt.Errorf("build message: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("build message: %w", err)
	}

	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", w.Boundary())
	buf.Write(parts.Bytes())
	return buf.Bytes(), nil
}

// parseRecipients reads a comma or semicolon separated recipient list.
// Line breaks are refused outright: the list ends up in a header block.
func parseRecipients(to string) ([]*mail.Address, error) {
	if strings.ContainsAny(to, "\r\n") {
		return nil, fmt.Errorf("invalid recipient list: line break in %q", to)
	}
	list := strings.Trim(strings.ReplaceAll(to, ";", ","), ", ")
	if list == "" {
		return nil, fmt.Errorf("email needs at least one recipient")
	}
	addrs, err := mail.ParseAddressList(list)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient list %q: %w", to, err)
	}
	return addrs, nil
}

func formatAddresses(addrs []*mail.Address) string {
	out := make([]string, len(addrs))
	for i, addr := range addrs {
		if addr.Name == "" {
			out[i] = addr.Address
		} else {
			out[i] = addr.String()
		}
	}
	return strings.Join(out, ", ")
}

func providerError(provider string, resp *resty.Response) error {
	msg := resp.Status()
	if parsed, err := gabs.ParseJSON(resp.Body()); err == nil {
		if m, ok := parsed.Path("error.message").Data().(string); ok {
			msg = m
		}
	}
	ce := plugin.NewCollaboratorError(fmt.Errorf("%s rejected the message: %s", provider, msg)).
		WithStatus(resp.StatusCode()).
		WithRetryHint(resp.StatusCode() >= 500 || resp.StatusCode() == 429, resp.Header().Get("Retry-After"))
	if resp.StatusCode() == 401 || resp.StatusCode() == 403 {
		ce.WithType("auth")
	}
	return ce
}
