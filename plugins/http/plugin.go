package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/BDNK1/agentflow/runtime/plugin"
)

// Config holds the HTTP plugin configuration with declarative tags
type Config struct {
	Timeout     time.Duration `yaml:"timeout" default:"30s" validate:"gte=1s"`
	MaxRetries  int           `yaml:"max_retries" default:"0" validate:"gte=0,lte=10"`
	Debug       bool          `yaml:"debug" default:"false"`
	RetryWaitMS int           `yaml:"retry_wait_ms" default:"100" validate:"gte=0,lte=10000"`
	UserAgent   string        `yaml:"user_agent" default:"agentflow/1.0"`
}

// HTTPPlugin serves http_call steps
type HTTPPlugin struct {
	Config Config // Exported so CLI can set it during initialization
	client *resty.Client
}

var (
	_ plugin.HTTPClient = (*HTTPPlugin)(nil)
	_ plugin.Lifecycle  = (*HTTPPlugin)(nil)
)

// Initialize implements plugin.Lifecycle
// Config is already validated by the framework before this is called
func (h *HTTPPlugin) Initialize(ctx context.Context) error {
	h.client = resty.New().
		SetTimeout(h.Config.Timeout).
		SetRetryCount(h.Config.MaxRetries).
		SetRetryWaitTime(time.Duration(h.Config.RetryWaitMS) * time.Millisecond).
		SetHeader("User-Agent", h.Config.UserAgent).
		SetDebug(h.Config.Debug)

	return nil
}

// Request performs the call. Non-2xx responses are returned as data unless
// FailOnError is set.
func (h *HTTPPlugin) Request(ctx context.Context, req plugin.HTTPRequest) (*plugin.HTTPResponse, error) {
	if h.client == nil {
		return nil, fmt.Errorf("http plugin is not initialized")
	}

	r := h.client.R().
		SetContext(ctx).
		SetHeaders(req.Headers)

	if req.Body != nil {
		if body, ok := req.Body.(map[string]any); ok && isFormRequest(req.Headers) {
			r.SetFormData(flattenToFormData(body, ""))
		} else {
			r.SetBody(req.Body)
		}
	}

	resp, err := r.Execute(req.Method, req.URL)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	if req.FailOnError && resp.IsError() {
		return nil, plugin.NewCollaboratorError(fmt.Errorf("HTTP request returned %s", resp.Status())).
			WithStatus(resp.StatusCode()).
			WithRetryHint(resp.StatusCode() >= 500 || resp.StatusCode() == 429, resp.Header().Get("Retry-After")).
			WithMetadata("body", string(resp.Body()))
	}

	return &plugin.HTTPResponse{
		Status:  resp.StatusCode(),
		Headers: flattenHeaders(resp.Header()),
		Body:    decodeBody(resp.Body(), resp.Header().Get("Content-Type")),
	}, nil
}

// Shutdown implements plugin.Lifecycle
func (h *HTTPPlugin) Shutdown(ctx context.Context) error {
	h.client = nil
	return nil
}

func isFormRequest(headers map[string]string) bool {
	for k, v := range headers {
		if strings.EqualFold(k, "Content-Type") {
			return strings.HasPrefix(strings.ToLower(v), "application/x-www-form-urlencoded")
		}
	}
	return false
}

// decodeBody parses JSON bodies and returns everything else as text.
func decodeBody(body []byte, contentType string) any {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}
	looksJSON := trimmed[0] == '{' || trimmed[0] == '['
	if strings.Contains(contentType, "json") || looksJSON {
		var parsed any
		if err := json.Unmarshal(trimmed, &parsed); err == nil {
			return parsed
		}
	}
	return string(body)
}

func flattenHeaders(h map[string][]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}

// flattenToFormData encodes nested maps and lists using bracket notation,
// e.g. metadata[order_id]=1 and items[0]=a.
func flattenToFormData(data map[string]any, prefix string) map[string]string {
	result := make(map[string]string)

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		key := k
		if prefix != "" {
			key = fmt.Sprintf("%s[%s]", prefix, k)
		}
		flattenValue(result, key, data[k])
	}
	return result
}

func flattenValue(result map[string]string, key string, value any) {
	switch v := value.(type) {
	case map[string]any:
		for nk, nv := range flattenToFormData(v, key) {
			result[nk] = nv
		}
	case []any:
		for i, item := range v {
			flattenValue(result, fmt.Sprintf("%s[%d]", key, i), item)
		}
	case nil:
		result[key] = ""
	default:
		result[key] = fmt.Sprintf("%v", v)
	}
}
