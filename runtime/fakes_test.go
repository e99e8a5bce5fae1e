package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sync"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-process WorkflowRegistry, ExecutionStore and
// StepLogStore for runner tests.
type memStore struct {
	mu         sync.Mutex
	seq        int
	workflows  map[string]Workflow
	executions map[string]*ExecutionRecord
	logs       map[string][]StepLogEntry
}

func newMemStore(workflows ...Workflow) *memStore {
	s := &memStore{
		workflows:  make(map[string]Workflow),
		executions: make(map[string]*ExecutionRecord),
		logs:       make(map[string][]StepLogEntry),
	}
	for _, wf := range workflows {
		s.workflows[wf.ID] = wf
	}
	return s
}

func (s *memStore) GetWorkflow(_ context.Context, id string) (*Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	return &wf, nil
}

func (s *memStore) SaveWorkflow(_ context.Context, wf Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[wf.ID] = wf
	return nil
}

func (s *memStore) ListWorkflows(_ context.Context) ([]Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Workflow
	for _, wf := range s.workflows {
		out = append(out, wf)
	}
	return out, nil
}

func (s *memStore) CreateExecution(_ context.Context, workflowID string, trigger map[string]any) (*ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	record := &ExecutionRecord{
		ID:          fmt.Sprintf("exec-%d", s.seq),
		WorkflowID:  workflowID,
		Status:      StatusRunning,
		TriggerData: maps.Clone(trigger),
		StartedAt:   time.Now(),
	}
	s.executions[record.ID] = record
	copied := *record
	return &copied, nil
}

func (s *memStore) UpdateExecution(_ context.Context, update ExecutionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.executions[update.ExecutionID]
	if !ok {
		return ErrExecutionNotFound
	}
	record.Status = update.Status
	record.CompletedAt = update.CompletedAt
	record.ResultData = maps.Clone(update.ResultData)
	record.Error = update.Error
	record.ErrorKind = update.ErrorKind
	return nil
}

func (s *memStore) GetExecution(_ context.Context, id string) (*ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.executions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	copied := *record
	return &copied, nil
}

func (s *memStore) AppendStepLog(_ context.Context, entry StepLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[entry.ExecutionID] = append(s.logs[entry.ExecutionID], entry)
	return nil
}

func (s *memStore) ListStepLogs(_ context.Context, executionID string) ([]StepLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StepLogEntry(nil), s.logs[executionID]...), nil
}

// fakeCollaborators implements every collaborator contract. Nil hooks
// return canned results; calls are recorded by method name.
type fakeCollaborators struct {
	mu    sync.Mutex
	calls []string

	emails   []EmailMessage
	sms      []SMSMessage
	chats    []ChatRequest
	requests []HTTPRequest

	extractURL func(ctx context.Context, url string) (*URLContent, error)
	sendSMS    func(ctx context.Context, msg SMSMessage) (*SMSResult, error)
	request    func(ctx context.Context, req HTTPRequest) (*HTTPResponse, error)
}

func (f *fakeCollaborators) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeCollaborators) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCollaborators) ExtractFromURL(ctx context.Context, url string) (*URLContent, error) {
	f.record("ExtractFromURL")
	if f.extractURL != nil {
		return f.extractURL(ctx, url)
	}
	return &URLContent{URL: url, Title: "Example Domain", Content: "This domain is for examples."}, nil
}

func (f *fakeCollaborators) ExtractFromFile(_ context.Context, path string) (*FileContent, error) {
	f.record("ExtractFromFile")
	return &FileContent{Path: path, Type: "text", Content: "file body"}, nil
}

func (f *fakeCollaborators) Send(_ context.Context, userID string, msg EmailMessage) (*EmailResult, error) {
	f.record("Send:" + userID)
	f.mu.Lock()
	f.emails = append(f.emails, msg)
	f.mu.Unlock()
	return &EmailResult{MessageID: "msg-1"}, nil
}

func (f *fakeCollaborators) CreateEvent(_ context.Context, userID, provider string, details EventDetails) (map[string]any, error) {
	f.record("CreateEvent:" + provider)
	return map[string]any{"id": "evt-1", "summary": details.Summary, "attendees": len(details.Attendees)}, nil
}

func (f *fakeCollaborators) SendSMS(ctx context.Context, msg SMSMessage) (*SMSResult, error) {
	f.record("SendSMS")
	f.mu.Lock()
	f.sms = append(f.sms, msg)
	f.mu.Unlock()
	if f.sendSMS != nil {
		return f.sendSMS(ctx, msg)
	}
	return &SMSResult{MessageID: "SM1", Status: "queued"}, nil
}

func (f *fakeCollaborators) Complete(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	f.record("Complete")
	f.mu.Lock()
	f.chats = append(f.chats, req)
	f.mu.Unlock()
	last := req.Messages[len(req.Messages)-1].Content
	return &ChatResponse{Response: "summary of: " + last, Model: "test-model"}, nil
}

func (f *fakeCollaborators) SendMessage(_ context.Context, conversationID, text string) (string, error) {
	f.record("SendMessage:" + conversationID)
	return "bot says " + text, nil
}

func (f *fakeCollaborators) Request(ctx context.Context, req HTTPRequest) (*HTTPResponse, error) {
	f.record("Request")
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.request != nil {
		return f.request(ctx, req)
	}
	return &HTTPResponse{Status: 200, Body: map[string]any{"ok": true}}, nil
}

// blockUntilDone waits for ctx and returns its error.
func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// newTestApp wires an App over fakes.
func newTestApp(fakes *fakeCollaborators, store *memStore, cfg EngineConfig) *App {
	container := NewContainer()
	if err := container.RegisterPlugin("fakes", fakes); err != nil {
		panic(err)
	}
	return NewApp(discardLogger(), cfg, container, Stores{
		Workflows:  store,
		Executions: store,
		StepLogs:   store,
	})
}
