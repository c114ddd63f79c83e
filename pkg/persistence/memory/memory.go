// Package memory provides an in-process persistence implementation. Contents
// are lost when the process exits.
package memory

import (
	"context"
	"sync"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
)

// Persistence keeps workflows in a map guarded by a read-write mutex.
type Persistence struct {
	mu        sync.RWMutex
	workflows map[string]*models.Workflow
}

// NewPersistence creates an empty in-memory store.
func NewPersistence() *Persistence {
	return &Persistence{workflows: make(map[string]*models.Workflow)}
}

func (p *Persistence) Workflows(_ context.Context) ([]*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	workflows := make([]*models.Workflow, 0, len(p.workflows))
	for _, workflow := range p.workflows {
		workflows = append(workflows, workflow.Clone())
	}

	persistence.SortWorkflows(workflows)

	return workflows, nil
}

func (p *Persistence) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.workflows[id].Clone(), nil
}

func (p *Persistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	if workflow == nil || workflow.ID == "" {
		return persistence.NewWorkflowError("save", "", persistence.ErrInvalidWorkflowID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.workflows[workflow.ID] = workflow.Clone()

	return nil
}

func (p *Persistence) DeleteWorkflow(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.workflows, id)

	return nil
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}
