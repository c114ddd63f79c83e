// Package persistence provides the storage abstraction for workflow definitions.
package persistence

import (
	"context"
	"sort"
	"time"

	"github.com/dukex/ruleflow/pkg/models"
)

// Persistence stores workflows keyed by ID. Implementations must be safe for
// concurrent use and must hand out copies, so callers never share state with
// the store.
type Persistence interface {
	// Workflows returns every stored workflow ordered by creation time.
	Workflows(ctx context.Context) ([]*models.Workflow, error)
	// WorkflowByID returns nil and no error when the workflow does not exist.
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	// SaveWorkflow inserts or replaces the workflow under its ID.
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	// DeleteWorkflow is a no-op for unknown IDs.
	DeleteWorkflow(ctx context.Context, id string) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

const (
	// DefaultNamespace prefixes keys, tables rows and directories of durable backends.
	DefaultNamespace = "ruleflow"
	// DefaultTimeout bounds every call a remote backend makes.
	DefaultTimeout = 5 * time.Second
)

// Options configures durable backends.
type Options struct {
	Namespace string
	Timeout   time.Duration
}

// WithDefaults fills unset fields.
func (o Options) WithDefaults() Options {
	if o.Namespace == "" {
		o.Namespace = DefaultNamespace
	}

	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}

	return o
}

// SortWorkflows orders workflows by creation time, then ID.
func SortWorkflows(workflows []*models.Workflow) {
	sort.SliceStable(workflows, func(i, j int) bool {
		if !workflows[i].CreatedAt.Equal(workflows[j].CreatedAt) {
			return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
		}

		return workflows[i].ID < workflows[j].ID
	})
}
