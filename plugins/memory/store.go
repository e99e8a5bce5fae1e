// Package memory keeps workflows, executions and step logs in process.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BDNK1/agentflow/runtime/plugin"
)

// Store implements the workflow, execution and step log contracts on maps.
// It is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	workflows  map[string]plugin.Workflow
	executions map[string]plugin.ExecutionRecord
	stepLogs   map[string][]plugin.StepLogEntry
	now        func() time.Time
}

var (
	_ plugin.WorkflowRegistry = (*Store)(nil)
	_ plugin.ExecutionStore   = (*Store)(nil)
	_ plugin.StepLogStore     = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		workflows:  make(map[string]plugin.Workflow),
		executions: make(map[string]plugin.ExecutionRecord),
		stepLogs:   make(map[string][]plugin.StepLogEntry),
		now:        time.Now,
	}
}

func (s *Store) GetWorkflow(ctx context.Context, id string) (*plugin.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", plugin.ErrWorkflowNotFound, id)
	}
	return &wf, nil
}

func (s *Store) SaveWorkflow(ctx context.Context, wf plugin.Workflow) error {
	if err := wf.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[wf.ID] = wf
	return nil
}

func (s *Store) ListWorkflows(ctx context.Context) ([]plugin.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]plugin.Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		out = append(out, wf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateExecution(ctx context.Context, workflowID string, trigger map[string]any) (*plugin.ExecutionRecord, error) {
	record := plugin.ExecutionRecord{
		ID:          uuid.New().String(),
		WorkflowID:  workflowID,
		Status:      plugin.StatusRunning,
		TriggerData: maps.Clone(trigger),
		StartedAt:   s.now().UTC(),
	}

	s.mu.Lock()
	s.executions[record.ID] = record
	s.mu.Unlock()

	return &record, nil
}

func (s *Store) UpdateExecution(ctx context.Context, update plugin.ExecutionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.executions[update.ExecutionID]
	if !ok {
		return fmt.Errorf("%w: %s", plugin.ErrExecutionNotFound, update.ExecutionID)
	}
	record.Status = update.Status
	record.CompletedAt = update.CompletedAt
	record.ResultData = maps.Clone(update.ResultData)
	record.Error = update.Error
	record.ErrorKind = update.ErrorKind
	s.executions[record.ID] = record
	return nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (*plugin.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.executions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", plugin.ErrExecutionNotFound, id)
	}
	return &record, nil
}

func (s *Store) AppendStepLog(ctx context.Context, entry plugin.StepLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepLogs[entry.ExecutionID] = append(s.stepLogs[entry.ExecutionID], entry)
	return nil
}

func (s *Store) ListStepLogs(ctx context.Context, executionID string) ([]plugin.StepLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]plugin.StepLogEntry(nil), s.stepLogs[executionID]...), nil
}
