package runtime

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestDecodeStepConfig(t *testing.T) {
	tests := []struct {
		name  string
		kind  StepKind
		raw   map[string]any
		check func(t *testing.T, cfg StepConfig)
	}{
		{
			name: "extract_url",
			kind: KindExtractURL,
			raw:  map[string]any{"url": "https://example.com", "outputKey": "page"},
			check: func(t *testing.T, cfg StepConfig) {
				c := cfg.(*ExtractURLConfig)
				if c.URL != "https://example.com" || c.OutputKey != "page" {
					t.Errorf("got %+v", c)
				}
			},
		},
		{
			name: "http_call defaults to GET",
			kind: KindHTTPCall,
			raw:  map[string]any{"url": "https://api.example.com"},
			check: func(t *testing.T, cfg StepConfig) {
				if c := cfg.(*HTTPCallConfig); c.Method != "GET" {
					t.Errorf("method: got %q", c.Method)
				}
			},
		},
		{
			name: "http_call method is upper cased",
			kind: KindHTTPCall,
			raw: map[string]any{
				"url":         "https://api.example.com",
				"method":      " post ",
				"headers":     map[string]any{"X-Retry": 2},
				"body":        map[string]any{"a": 1},
				"failOnError": "true",
			},
			check: func(t *testing.T, cfg StepConfig) {
				c := cfg.(*HTTPCallConfig)
				if c.Method != "POST" || c.Headers["X-Retry"] != "2" || !c.FailOnError {
					t.Errorf("got %+v", c)
				}
				if !reflect.DeepEqual(c.Body, map[string]any{"a": 1}) {
					t.Errorf("body: got %#v", c.Body)
				}
			},
		},
		{
			name: "create_event defaults and attendees",
			kind: KindCreateEvent,
			raw: map[string]any{
				"summary":   "Sync",
				"start":     "2026-01-10T10:00:00Z",
				"end":       "2026-01-10T11:00:00Z",
				"attendees": "a@example.com, b@example.com,",
			},
			check: func(t *testing.T, cfg StepConfig) {
				c := cfg.(*CreateEventConfig)
				if c.Provider != "google" {
					t.Errorf("provider: got %q", c.Provider)
				}
				want := []string{"a@example.com", "b@example.com"}
				if !reflect.DeepEqual(c.Attendees, want) {
					t.Errorf("attendees: got %q, want %q", c.Attendees, want)
				}
			},
		},
		{
			name: "wait takes numeric strings",
			kind: KindWait,
			raw:  map[string]any{"duration": "1500", "timeoutMs": 2000},
			check: func(t *testing.T, cfg StepConfig) {
				c := cfg.(*WaitConfig)
				if c.Duration != 1500 {
					t.Errorf("duration: got %d", c.Duration)
				}
				if c.options().timeout() != 2*time.Second {
					t.Errorf("timeout: got %v", c.options().timeout())
				}
			},
		},
		{
			name: "wait without config",
			kind: KindWait,
			raw:  nil,
			check: func(t *testing.T, cfg StepConfig) {
				if c := cfg.(*WaitConfig); c.Duration != 0 {
					t.Errorf("duration: got %d", c.Duration)
				}
			},
		},
		{
			name: "chat_response temperature",
			kind: KindChatResponse,
			raw:  map[string]any{"userMessage": "hi", "temperature": 0.2},
			check: func(t *testing.T, cfg StepConfig) {
				c := cfg.(*ChatResponseConfig)
				if c.Temperature == nil || *c.Temperature != 0.2 {
					t.Errorf("temperature: got %v", c.Temperature)
				}
			},
		},
		{
			name: "condition literal true",
			kind: KindCondition,
			raw:  map[string]any{"condition": true},
			check: func(t *testing.T, cfg StepConfig) {
				if c := cfg.(*ConditionConfig); c.Condition != "true" {
					t.Errorf("condition: got %q, want %q", c.Condition, "true")
				}
			},
		},
		{
			name: "condition literal false",
			kind: KindCondition,
			raw:  map[string]any{"condition": false},
			check: func(t *testing.T, cfg StepConfig) {
				if c := cfg.(*ConditionConfig); c.Condition != "false" {
					t.Errorf("condition: got %q, want %q", c.Condition, "false")
				}
			},
		},
		{
			name: "bool into a string field",
			kind: KindSendSMS,
			raw:  map[string]any{"to": "+15550001", "message": true},
			check: func(t *testing.T, cfg StepConfig) {
				if c := cfg.(*SendSMSConfig); c.Message != "true" {
					t.Errorf("message: got %q", c.Message)
				}
			},
		},
		{
			name: "send_sms",
			kind: KindSendSMS,
			raw:  map[string]any{"to": "+15550001", "message": "hello"},
			check: func(t *testing.T, cfg StepConfig) {
				if c := cfg.(*SendSMSConfig); c.To != "+15550001" || c.From != "" {
					t.Errorf("got %+v", c)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := DecodeStepConfig(tt.kind, tt.raw)
			if err != nil {
				t.Fatalf("DecodeStepConfig failed: %v", err)
			}
			if cfg.Kind() != tt.kind {
				t.Errorf("Kind(): got %s, want %s", cfg.Kind(), tt.kind)
			}
			tt.check(t, cfg)
		})
	}
}

func TestDecodeStepConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		kind StepKind
		raw  map[string]any
	}{
		{"extract_url without url", KindExtractURL, map[string]any{}},
		{"extract_file without path", KindExtractFile, nil},
		{"send_email without subject", KindSendEmail, map[string]any{"to": "a@example.com"}},
		{"create_event unknown provider", KindCreateEvent, map[string]any{
			"summary": "x", "start": "s", "end": "e", "provider": "yahoo",
		}},
		{"create_event bad time zone", KindCreateEvent, map[string]any{
			"summary": "x", "start": "s", "end": "e", "timeZone": "Mars/Olympus",
		}},
		{"send_sms without message", KindSendSMS, map[string]any{"to": "+1"}},
		{"chat_response bad provider", KindChatResponse, map[string]any{"userMessage": "hi", "provider": "fax"}},
		{"chat_response temperature out of range", KindChatResponse, map[string]any{"userMessage": "hi", "temperature": 3}},
		{"wait negative", KindWait, map[string]any{"duration": -5}},
		{"wait not a number", KindWait, map[string]any{"duration": "soon"}},
		{"condition without expression", KindCondition, map[string]any{}},
		{"http_call unknown method", KindHTTPCall, map[string]any{"url": "https://x", "method": "FETCH"}},
		{"negative timeout", KindHTTPCall, map[string]any{"url": "https://x", "timeoutMs": -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeStepConfig(tt.kind, tt.raw)
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cfgErr.Type != string(tt.kind)+" config" {
				t.Errorf("type: got %q", cfgErr.Type)
			}
		})
	}
}

func TestDecodeStepConfig_UnknownKind(t *testing.T) {
	_, err := DecodeStepConfig("teleport", map[string]any{})

	var runErr *RunError
	if !errors.As(err, &runErr) || runErr.Kind != ErrorKindDefinition {
		t.Fatalf("expected definition error, got %v", err)
	}
}

func TestOutputKey(t *testing.T) {
	for _, kind := range StepKinds {
		if kind == KindWait {
			continue
		}
		if defaultOutputKeys[kind] == "" {
			t.Errorf("%s has no default output key", kind)
		}
	}

	tests := []struct {
		cfg  StepConfig
		want string
	}{
		{&ExtractURLConfig{}, "urlContent"},
		{&ExtractFileConfig{}, "fileContent"},
		{&SendEmailConfig{}, "emailResult"},
		{&CreateEventConfig{}, "eventResult"},
		{&SendSMSConfig{}, "smsResult"},
		{&ChatResponseConfig{}, "botResponse"},
		{&ConditionConfig{}, "conditionResult"},
		{&HTTPCallConfig{}, "httpResult"},
		{&HTTPCallConfig{StepOptions: StepOptions{OutputKey: "weather"}}, "weather"},
	}
	for _, tt := range tests {
		if got := outputKey(tt.cfg); got != tt.want {
			t.Errorf("outputKey(%s) = %q, want %q", tt.cfg.Kind(), got, tt.want)
		}
	}
}
