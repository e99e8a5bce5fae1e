package memory

import (
	"context"
	"time"

	c "github.com/patrickmn/go-cache"

	"github.com/BDNK1/agentflow/runtime/plugin"
)

// CachedWorkflowStore fronts a slower registry (postgres) with an in-process
// cache of definitions. Saves go to the backing registry and refresh the cache.
type CachedWorkflowStore struct {
	backing plugin.WorkflowRegistry
	cache   *c.Cache
}

var _ plugin.WorkflowRegistry = (*CachedWorkflowStore)(nil)

func NewCachedWorkflowStore(backing plugin.WorkflowRegistry, ttl time.Duration) *CachedWorkflowStore {
	return &CachedWorkflowStore{
		backing: backing,
		cache:   c.New(ttl, 2*ttl),
	}
}

func (s *CachedWorkflowStore) GetWorkflow(ctx context.Context, id string) (*plugin.Workflow, error) {
	if cached, found := s.cache.Get(id); found {
		wf := cached.(plugin.Workflow)
		return &wf, nil
	}

	wf, err := s.backing.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(id, *wf, c.DefaultExpiration)
	return wf, nil
}

func (s *CachedWorkflowStore) SaveWorkflow(ctx context.Context, wf plugin.Workflow) error {
	if err := s.backing.SaveWorkflow(ctx, wf); err != nil {
		return err
	}
	s.cache.Set(wf.ID, wf, c.DefaultExpiration)
	return nil
}

func (s *CachedWorkflowStore) ListWorkflows(ctx context.Context) ([]plugin.Workflow, error) {
	return s.backing.ListWorkflows(ctx)
}

// Invalidate drops a cached definition so the next read hits the backing store.
func (s *CachedWorkflowStore) Invalidate(id string) {
	s.cache.Delete(id)
}
