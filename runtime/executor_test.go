package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

func digestWorkflow() Workflow {
	return Workflow{
		ID: "digest",
		Steps: []Step{
			{ID: "fetch", Kind: KindExtractURL, Config: map[string]any{"url": "${url}"}, Next: "summarize"},
			{ID: "summarize", Kind: KindChatResponse, Config: map[string]any{
				"systemPrompt": "Be brief",
				"userMessage":  "${urlContent.title}",
				"outputKey":    "summary",
			}, Next: "mail"},
			{ID: "mail", Kind: KindSendEmail, Config: map[string]any{
				"to":      "${email}",
				"subject": "Digest: ${urlContent.title}",
				"text":    "${summary.response}",
			}},
		},
	}
}

func TestExecutor_LinearWorkflow(t *testing.T) {
	fakes := &fakeCollaborators{}
	store := newMemStore(digestWorkflow())
	app := newTestApp(fakes, store, EngineConfig{})

	execution, err := app.Executor.Execute(context.Background(), "digest", map[string]any{
		"url":    "https://example.com",
		"email":  "ada@example.com",
		"userId": "u1",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if execution.Status != StatusCompleted {
		t.Fatalf("status: got %s (%v)", execution.Status, execution.Error)
	}
	if execution.CompletedAt == nil || execution.CurrentStepID != "mail" {
		t.Errorf("terminal state: %+v", execution)
	}

	want := []string{"ExtractFromURL", "Complete", "Send:u1"}
	if got := fakes.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls: got %v, want %v", got, want)
	}

	mail := fakes.emails[0]
	if mail.To != "ada@example.com" || mail.Subject != "Digest: Example Domain" || mail.Text != "summary of: Example Domain" {
		t.Errorf("email: got %+v", mail)
	}
	if len(fakes.chats[0].Messages) != 2 || fakes.chats[0].Messages[0].Role != "system" {
		t.Errorf("chat messages: got %+v", fakes.chats[0].Messages)
	}

	for _, key := range []string{"urlContent", "summary", "emailResult"} {
		if _, ok := execution.Data[key]; !ok {
			t.Errorf("data bag is missing %s", key)
		}
	}

	logs, _ := store.ListStepLogs(context.Background(), execution.ID)
	if len(logs) != 3 {
		t.Fatalf("step logs: got %d", len(logs))
	}
	for i, id := range []string{"fetch", "summarize", "mail"} {
		if logs[i].StepID != id || logs[i].Status != StatusCompleted {
			t.Errorf("log %d: got %+v", i, logs[i])
		}
	}

	record, _ := store.GetExecution(context.Background(), execution.ID)
	if record.Status != StatusCompleted || record.ResultData["summary"] == nil {
		t.Errorf("persisted record: got %+v", record)
	}
}

func branchWorkflow() Workflow {
	return Workflow{
		ID: "triage",
		Steps: []Step{
			{ID: "check", Kind: KindCondition, Config: map[string]any{"condition": "${priority} === 'high'"},
				NextIfTrue: "page", NextIfFalse: "log"},
			{ID: "page", Kind: KindSendSMS, Config: map[string]any{"to": "${phone}", "message": "urgent: ${title}"}},
			{ID: "log", Kind: KindHTTPCall, Config: map[string]any{
				"url":    "https://hooks.example.com/log",
				"method": "post",
				"body":   map[string]any{"title": "${title}"},
			}},
		},
	}
}

func TestExecutor_Branching(t *testing.T) {
	tests := []struct {
		name       string
		priority   any
		wantCalls  []string
		wantResult bool
	}{
		{"true branch", "high", []string{"SendSMS"}, true},
		{"false branch", "low", []string{"Request"}, false},
		{"missing value takes false branch", nil, []string{"Request"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakes := &fakeCollaborators{}
			app := newTestApp(fakes, newMemStore(branchWorkflow()), EngineConfig{})

			trigger := map[string]any{"phone": "+15550001", "title": "disk full"}
			if tt.priority != nil {
				trigger["priority"] = tt.priority
			}
			execution, err := app.Executor.Execute(context.Background(), "triage", trigger)
			if err != nil {
				t.Fatal(err)
			}
			if execution.Status != StatusCompleted {
				t.Fatalf("status: got %s (%v)", execution.Status, execution.Error)
			}
			if got := fakes.Calls(); !reflect.DeepEqual(got, tt.wantCalls) {
				t.Errorf("calls: got %v, want %v", got, tt.wantCalls)
			}
			if execution.Data["conditionResult"] != tt.wantResult {
				t.Errorf("conditionResult: got %v", execution.Data["conditionResult"])
			}
		})
	}
}

func TestExecutor_BranchPayloads(t *testing.T) {
	fakes := &fakeCollaborators{}
	app := newTestApp(fakes, newMemStore(branchWorkflow()), EngineConfig{})

	if _, err := app.Executor.Execute(context.Background(), "triage", map[string]any{"priority": "low", "title": "cpu"}); err != nil {
		t.Fatal(err)
	}
	req := fakes.requests[0]
	if req.Method != "POST" || !reflect.DeepEqual(req.Body, map[string]any{"title": "cpu"}) {
		t.Errorf("request: got %+v", req)
	}

	if _, err := app.Executor.Execute(context.Background(), "triage", map[string]any{"priority": "high", "title": "cpu", "phone": "+1"}); err != nil {
		t.Fatal(err)
	}
	if msg := fakes.sms[0]; msg.To != "+1" || msg.Message != "urgent: cpu" {
		t.Errorf("sms: got %+v", msg)
	}
}

func TestExecutor_ConditionWithoutTargetCompletes(t *testing.T) {
	wf := Workflow{
		ID: "gate",
		Steps: []Step{
			{ID: "check", Kind: KindCondition, Config: map[string]any{"condition": "${n} > 1"}, NextIfTrue: "ping"},
			{ID: "ping", Kind: KindHTTPCall, Config: map[string]any{"url": "https://x"}},
		},
	}
	fakes := &fakeCollaborators{}
	app := newTestApp(fakes, newMemStore(wf), EngineConfig{})

	execution, err := app.Executor.Execute(context.Background(), "gate", map[string]any{"n": 0})
	if err != nil {
		t.Fatal(err)
	}
	if execution.Status != StatusCompleted || len(fakes.Calls()) != 0 {
		t.Errorf("expected completion without calls, got %s %v", execution.Status, fakes.Calls())
	}
}

func TestExecutor_UnparsableConditionIsFalse(t *testing.T) {
	wf := branchWorkflow()
	wf.Steps[0].Config = map[string]any{"condition": "${priority} ==="}

	fakes := &fakeCollaborators{}
	app := newTestApp(fakes, newMemStore(wf), EngineConfig{})

	execution, err := app.Executor.Execute(context.Background(), "triage", map[string]any{"priority": "high"})
	if err != nil {
		t.Fatal(err)
	}
	if execution.Status != StatusCompleted || execution.Data["conditionResult"] != false {
		t.Errorf("got %s, conditionResult=%v", execution.Status, execution.Data["conditionResult"])
	}
}

func TestExecutor_LiteralBoolCondition(t *testing.T) {
	tests := []struct {
		name      string
		condition any
		wantCalls []string
	}{
		{"true", true, []string{"SendSMS"}},
		{"false", false, []string{"Request"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := branchWorkflow()
			wf.Steps[0].Config = map[string]any{"condition": tt.condition}

			fakes := &fakeCollaborators{}
			app := newTestApp(fakes, newMemStore(wf), EngineConfig{})

			execution, err := app.Executor.Execute(context.Background(), "triage", map[string]any{"phone": "+1"})
			if err != nil {
				t.Fatal(err)
			}
			if execution.Status != StatusCompleted {
				t.Fatalf("status: got %s (%v)", execution.Status, execution.Error)
			}
			if got := fakes.Calls(); !reflect.DeepEqual(got, tt.wantCalls) {
				t.Errorf("calls: got %v, want %v", got, tt.wantCalls)
			}
			if execution.Data["conditionResult"] != tt.condition {
				t.Errorf("conditionResult: got %v", execution.Data["conditionResult"])
			}
		})
	}
}

func TestExecutor_ConditionFailureWarns(t *testing.T) {
	tests := []struct {
		name      string
		condition string
		wantWarn  bool
	}{
		{"unparsable", "${priority} ===", true},
		{"not a boolean", "${priority}", true},
		{"plain false", "${priority} === 'high'", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := branchWorkflow()
			wf.Steps[0].Config = map[string]any{"condition": tt.condition}

			var buf bytes.Buffer
			l := slog.New(slog.NewJSONHandler(&buf, nil))
			container := NewContainer()
			container.RegisterPlugin("fakes", &fakeCollaborators{})
			store := newMemStore(wf)
			app := NewApp(l, EngineConfig{}, container, Stores{Workflows: store, Executions: store, StepLogs: store})

			execution, err := app.Executor.Execute(context.Background(), "triage", map[string]any{"priority": "low"})
			if err != nil {
				t.Fatal(err)
			}
			if execution.Data["conditionResult"] != false {
				t.Fatalf("conditionResult: got %v", execution.Data["conditionResult"])
			}

			var warned bool
			dec := json.NewDecoder(&buf)
			for dec.More() {
				var rec map[string]any
				if err := dec.Decode(&rec); err != nil {
					t.Fatalf("log line: %v", err)
				}
				if rec["level"] == "WARN" && rec["msg"] == "condition evaluation failed" {
					if rec["condition"] != tt.condition || rec["step"] != "check" {
						t.Errorf("warn attributes: got %v", rec)
					}
					warned = true
				}
			}
			if warned != tt.wantWarn {
				t.Errorf("warned = %v, want %v", warned, tt.wantWarn)
			}
		})
	}
}

func TestExecutor_HaltsOnStepFailure(t *testing.T) {
	wf := Workflow{
		ID: "notify",
		Steps: []Step{
			{ID: "sms", Kind: KindSendSMS, Config: map[string]any{"to": "+1", "message": "hi"}, Next: "after"},
			{ID: "after", Kind: KindHTTPCall, Config: map[string]any{"url": "https://x"}},
		},
	}
	fakes := &fakeCollaborators{
		sendSMS: func(context.Context, SMSMessage) (*SMSResult, error) {
			return nil, NewCollaboratorError(errors.New("twilio rejected the message: invalid number")).WithStatus(400)
		},
	}
	store := newMemStore(wf)
	app := newTestApp(fakes, store, EngineConfig{})

	execution, err := app.Executor.Execute(context.Background(), "notify", map[string]any{"seed": 1})
	if err != nil {
		t.Fatal(err)
	}

	if execution.Status != StatusFailed || execution.Error.Kind != ErrorKindStep {
		t.Fatalf("got %s %+v", execution.Status, execution.Error)
	}
	if !strings.Contains(execution.Error.Message, "invalid number") || execution.Error.Step != "sms" {
		t.Errorf("error: got %+v", execution.Error)
	}
	if got := fakes.Calls(); !reflect.DeepEqual(got, []string{"SendSMS"}) {
		t.Errorf("later steps ran: %v", got)
	}
	if execution.Data["seed"] != 1 {
		t.Error("data bag should be kept on failure")
	}

	logs, _ := store.ListStepLogs(context.Background(), execution.ID)
	if len(logs) != 1 || logs[0].Status != StatusFailed || logs[0].Error == "" {
		t.Errorf("step logs: got %+v", logs)
	}

	record, _ := store.GetExecution(context.Background(), execution.ID)
	if record.Status != StatusFailed || record.ErrorKind != ErrorKindStep || record.Error != execution.Error.Message {
		t.Errorf("persisted record: got %+v", record)
	}

	result := execution.Result()
	if result.Status != StatusFailed || result.ErrorKind != ErrorKindStep || result.CurrentStepID != "sms" {
		t.Errorf("result: got %+v", result)
	}
}

func TestExecutor_FailureKinds(t *testing.T) {
	tests := []struct {
		name     string
		steps    []Step
		prepare  func(app *App)
		wantKind ErrorKind
		wantMsg  string
	}{
		{
			name:     "dangling next",
			steps:    []Step{{ID: "a", Kind: KindWait, Next: "ghost"}},
			wantKind: ErrorKindDefinition,
			wantMsg:  "step not found: ghost",
		},
		{
			name:     "unknown kind",
			steps:    []Step{{ID: "a", Kind: "teleport"}},
			wantKind: ErrorKindDefinition,
		},
		{
			name:     "invalid config after resolution",
			steps:    []Step{{ID: "a", Kind: KindSendEmail, Config: map[string]any{"to": "x@example.com"}}},
			wantKind: ErrorKindValidation,
		},
		{
			name:     "missing collaborator",
			steps:    []Step{{ID: "a", Kind: KindSendSMS, Config: map[string]any{"to": "+1", "message": "m"}}},
			prepare:  func(app *App) { app.Container.SMS = nil },
			wantKind: ErrorKindStep,
			wantMsg:  "send_sms: no collaborator configured",
		},
		{
			name:     "bot without conversation",
			steps:    []Step{{ID: "a", Kind: KindChatResponse, Config: map[string]any{"userMessage": "hi", "provider": "bot"}}},
			wantKind: ErrorKindValidation,
		},
		{
			name:     "no steps",
			steps:    nil,
			wantKind: ErrorKindDefinition,
			wantMsg:  "workflow has no steps",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(&fakeCollaborators{}, newMemStore(Workflow{ID: "wf", Steps: tt.steps}), EngineConfig{})
			if tt.prepare != nil {
				tt.prepare(app)
			}

			execution, err := app.Executor.Execute(context.Background(), "wf", nil)
			if err != nil {
				t.Fatal(err)
			}
			if execution.Status != StatusFailed {
				t.Fatalf("status: got %s", execution.Status)
			}
			if execution.Error.Kind != tt.wantKind {
				t.Errorf("kind: got %s, want %s (%s)", execution.Error.Kind, tt.wantKind, execution.Error.Message)
			}
			if tt.wantMsg != "" && execution.Error.Message != tt.wantMsg {
				t.Errorf("message: got %q, want %q", execution.Error.Message, tt.wantMsg)
			}
		})
	}
}

func TestExecutor_WorkflowNotFound(t *testing.T) {
	app := newTestApp(&fakeCollaborators{}, newMemStore(), EngineConfig{})

	_, err := app.Executor.Execute(context.Background(), "nope", nil)
	if !errors.Is(err, ErrWorkflowNotFound) {
		t.Errorf("expected ErrWorkflowNotFound, got %v", err)
	}
}

func TestExecutor_StepTimeout(t *testing.T) {
	wf := Workflow{
		ID: "slow",
		Steps: []Step{
			{ID: "call", Kind: KindHTTPCall, Config: map[string]any{"url": "https://slow", "timeoutMs": 20}},
		},
	}
	fakes := &fakeCollaborators{
		request: func(ctx context.Context, _ HTTPRequest) (*HTTPResponse, error) {
			return nil, blockUntilDone(ctx)
		},
	}
	app := newTestApp(fakes, newMemStore(wf), EngineConfig{})

	execution, err := app.Executor.Execute(context.Background(), "slow", nil)
	if err != nil {
		t.Fatal(err)
	}
	if execution.Status != StatusFailed || execution.Error.Kind != ErrorKindTimeout {
		t.Fatalf("got %s %+v", execution.Status, execution.Error)
	}
	if execution.Error.Message != "step call timed out" {
		t.Errorf("message: got %q", execution.Error.Message)
	}
}

func TestExecutor_DefaultTimeoutSkipsWait(t *testing.T) {
	wf := Workflow{
		ID: "pause",
		Steps: []Step{
			{ID: "wait", Kind: KindWait, Config: map[string]any{"duration": 40}, Next: "call"},
			{ID: "call", Kind: KindHTTPCall, Config: map[string]any{"url": "https://slow"}},
		},
	}
	fakes := &fakeCollaborators{
		request: func(ctx context.Context, _ HTTPRequest) (*HTTPResponse, error) {
			return nil, blockUntilDone(ctx)
		},
	}
	app := newTestApp(fakes, newMemStore(wf), EngineConfig{StepTimeout: 10 * time.Millisecond})

	execution, err := app.Executor.Execute(context.Background(), "pause", nil)
	if err != nil {
		t.Fatal(err)
	}
	if execution.Error == nil || execution.Error.Step != "call" || execution.Error.Kind != ErrorKindTimeout {
		t.Fatalf("expected the http call to time out after the wait, got %+v", execution.Error)
	}
}

func TestExecutor_WaitHonoursOwnTimeout(t *testing.T) {
	wf := Workflow{
		ID:    "pause",
		Steps: []Step{{ID: "wait", Kind: KindWait, Config: map[string]any{"duration": 5000, "timeoutMs": 10}}},
	}
	app := newTestApp(&fakeCollaborators{}, newMemStore(wf), EngineConfig{})

	start := time.Now()
	execution, err := app.Executor.Execute(context.Background(), "pause", nil)
	if err != nil {
		t.Fatal(err)
	}
	if execution.Error == nil || execution.Error.Kind != ErrorKindTimeout {
		t.Fatalf("expected timeout, got %+v", execution.Error)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("wait was not interrupted by its timeout")
	}
}

func TestExecutor_Cancel(t *testing.T) {
	wf := Workflow{
		ID:    "hang",
		Steps: []Step{{ID: "call", Kind: KindHTTPCall, Config: map[string]any{"url": "https://slow"}}},
	}
	started := make(chan struct{})
	fakes := &fakeCollaborators{
		request: func(ctx context.Context, _ HTTPRequest) (*HTTPResponse, error) {
			close(started)
			return nil, blockUntilDone(ctx)
		},
	}
	app := newTestApp(fakes, newMemStore(wf), EngineConfig{})

	done := make(chan *Execution, 1)
	go func() {
		execution, _ := app.Executor.Execute(context.Background(), "hang", nil)
		done <- execution
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("step never started")
	}

	running := app.Executor.Running()
	if len(running) != 1 {
		t.Fatalf("running: got %v", running)
	}
	if !app.Executor.Cancel(running[0]) {
		t.Fatal("Cancel did not find the run")
	}

	select {
	case execution := <-done:
		if execution.Status != StatusFailed || execution.Error.Kind != ErrorKindCancelled {
			t.Errorf("got %s %+v", execution.Status, execution.Error)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled run did not finish")
	}

	if len(app.Executor.Running()) != 0 {
		t.Error("finished run is still tracked")
	}
	if app.Executor.Cancel("exec-unknown") {
		t.Error("Cancel reported an unknown run")
	}
}

func TestExecutor_CollaboratorCancelIsStepFailure(t *testing.T) {
	wf := Workflow{
		ID:    "flaky",
		Steps: []Step{{ID: "call", Kind: KindHTTPCall, Config: map[string]any{"url": "https://flaky"}}},
	}
	fakes := &fakeCollaborators{
		request: func(context.Context, HTTPRequest) (*HTTPResponse, error) {
			return nil, fmt.Errorf("stream reset: %w", context.Canceled)
		},
	}
	app := newTestApp(fakes, newMemStore(wf), EngineConfig{})

	execution, err := app.Executor.Execute(context.Background(), "flaky", nil)
	if err != nil {
		t.Fatal(err)
	}
	if execution.Status != StatusFailed || execution.Error.Kind != ErrorKindStep {
		t.Errorf("got %s %+v", execution.Status, execution.Error)
	}
}

func TestExecutor_Shutdown(t *testing.T) {
	wf := Workflow{
		ID:    "hang",
		Steps: []Step{{ID: "pause", Kind: KindWait, Config: map[string]any{"duration": 60000}}},
	}
	store := newMemStore(wf)
	app := newTestApp(&fakeCollaborators{}, store, EngineConfig{})

	const runs = 3
	done := make(chan *Execution, runs)
	for i := 0; i < runs; i++ {
		go func() {
			execution, _ := app.Executor.Execute(context.Background(), "hang", nil)
			done <- execution
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(app.Executor.Running()) < runs {
		if time.Now().After(deadline) {
			t.Fatalf("runs never started: %v", app.Executor.Running())
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := app.Executor.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	for i := 0; i < runs; i++ {
		execution := <-done
		if execution.Status != StatusFailed || execution.Error.Kind != ErrorKindCancelled {
			t.Errorf("run %s: got %s %+v", execution.ID, execution.Status, execution.Error)
		}
		persisted, err := store.GetExecution(context.Background(), execution.ID)
		if err != nil {
			t.Fatal(err)
		}
		if persisted.Status != StatusFailed || persisted.ErrorKind != ErrorKindCancelled {
			t.Errorf("run %s was not persisted as cancelled: %+v", execution.ID, persisted)
		}
	}

	if _, err := app.Executor.Execute(context.Background(), "hang", nil); !errors.Is(err, ErrExecutorClosed) {
		t.Errorf("Execute after Shutdown: got %v", err)
	}
}

func TestExecutor_ShutdownTimeout(t *testing.T) {
	wf := Workflow{
		ID:    "stubborn",
		Steps: []Step{{ID: "call", Kind: KindHTTPCall, Config: map[string]any{"url": "https://slow"}}},
	}
	release := make(chan struct{})
	started := make(chan struct{})
	fakes := &fakeCollaborators{
		request: func(context.Context, HTTPRequest) (*HTTPResponse, error) {
			close(started)
			<-release
			return &HTTPResponse{Status: 200}, nil
		},
	}
	app := newTestApp(fakes, newMemStore(wf), EngineConfig{})

	go app.Executor.Execute(context.Background(), "stubborn", nil)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := app.Executor.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown: got %v", err)
	}
	close(release)
}

func TestExecutor_ConcurrentRunsAreIndependent(t *testing.T) {
	wf := Workflow{
		ID: "echo",
		Steps: []Step{
			{ID: "wait", Kind: KindWait, Config: map[string]any{"duration": 5}, Next: "call"},
			{ID: "call", Kind: KindHTTPCall, Config: map[string]any{
				"url":       "https://echo/${n}",
				"outputKey": "echo",
			}},
		},
	}
	fakes := &fakeCollaborators{
		request: func(_ context.Context, req HTTPRequest) (*HTTPResponse, error) {
			return &HTTPResponse{Status: 200, Body: req.URL}, nil
		},
	}
	app := newTestApp(fakes, newMemStore(wf), EngineConfig{})

	const runs = 20
	var wg sync.WaitGroup
	results := make([]*Execution, runs)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			execution, err := app.Executor.Execute(context.Background(), "echo", map[string]any{"n": i})
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = execution
		}(i)
	}
	wg.Wait()

	ids := make(map[string]bool)
	for i, execution := range results {
		if execution == nil {
			continue
		}
		if execution.Status != StatusCompleted {
			t.Errorf("run %d: status %s", i, execution.Status)
			continue
		}
		echo := execution.Data["echo"].(map[string]any)
		if want := fmt.Sprintf("https://echo/%d", i); echo["body"] != want {
			t.Errorf("run %d: got body %v, want %s", i, echo["body"], want)
		}
		if ids[execution.ID] {
			t.Errorf("duplicate execution id %s", execution.ID)
		}
		ids[execution.ID] = true
	}
}

func TestExecutor_TriggerIsNotMutated(t *testing.T) {
	app := newTestApp(&fakeCollaborators{}, newMemStore(digestWorkflow()), EngineConfig{})

	trigger := map[string]any{"url": "https://example.com", "email": "a@example.com"}
	if _, err := app.Executor.Execute(context.Background(), "digest", trigger); err != nil {
		t.Fatal(err)
	}
	if len(trigger) != 2 {
		t.Errorf("trigger was modified: %v", trigger)
	}
}

func TestExecutor_ChatBotAndCalendar(t *testing.T) {
	wf := Workflow{
		ID: "assistant",
		Steps: []Step{
			{ID: "reply", Kind: KindChatResponse, Config: map[string]any{
				"userMessage":    "${text}",
				"conversationId": "${conversation}",
			}, Next: "event"},
			{ID: "event", Kind: KindCreateEvent, Config: map[string]any{
				"summary":   "Follow up",
				"start":     "2026-03-01T09:00:00Z",
				"end":       "2026-03-01T09:30:00Z",
				"provider":  "microsoft",
				"attendees": "${people}",
			}, Next: "file"},
			{ID: "file", Kind: KindExtractFile, Config: map[string]any{"filePath": "notes.txt"}},
		},
	}
	fakes := &fakeCollaborators{}
	app := newTestApp(fakes, newMemStore(wf), EngineConfig{})

	execution, err := app.Executor.Execute(context.Background(), "assistant", map[string]any{
		"text":         "hello",
		"conversation": "c-42",
		"people":       []any{"a@example.com", "b@example.com"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if execution.Status != StatusCompleted {
		t.Fatalf("status: got %s (%v)", execution.Status, execution.Error)
	}

	want := []string{"SendMessage:c-42", "CreateEvent:microsoft", "ExtractFromFile"}
	if got := fakes.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls: got %v, want %v", got, want)
	}

	bot := execution.Data["botResponse"].(map[string]any)
	if bot["response"] != "bot says hello" || bot["conversationId"] != "c-42" {
		t.Errorf("botResponse: got %v", bot)
	}
	event := execution.Data["eventResult"].(map[string]any)
	if event["attendees"] != 2 {
		t.Errorf("eventResult: got %v", event)
	}
	if execution.Data["fileContent"].(map[string]any)["content"] != "file body" {
		t.Errorf("fileContent: got %v", execution.Data["fileContent"])
	}
}
