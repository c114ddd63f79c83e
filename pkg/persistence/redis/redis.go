// Package redis provides Redis persistence for workflows. All workflows of a
// namespace live in one hash, "<namespace>:workflows", as JSON values keyed
// by workflow ID.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
	goredis "github.com/redis/go-redis/v9"
)

// Persistence implements persistence.Persistence on a Redis hash. When Redis
// cannot be reached it degrades: reads return nothing and writes are logged
// and dropped.
type Persistence struct {
	client  goredis.UniversalClient
	key     string
	timeout time.Duration
	logger  *slog.Logger
}

// NewPersistenceFromURL connects to the server named by a redis:// or
// rediss:// URL.
func NewPersistenceFromURL(ctx context.Context, logger *slog.Logger, url string, opts persistence.Options) (*Persistence, error) {
	clientOpts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	opts = opts.WithDefaults()
	clientOpts.DialTimeout = opts.Timeout

	return NewPersistence(ctx, logger, goredis.NewClient(clientOpts), opts), nil
}

// NewPersistence wraps an existing client. An unreachable server is logged
// once here; later calls keep trying.
func NewPersistence(ctx context.Context, logger *slog.Logger, client goredis.UniversalClient, opts persistence.Options) *Persistence {
	opts = opts.WithDefaults()

	p := &Persistence{
		client:  client,
		key:     opts.Namespace + ":workflows",
		timeout: opts.Timeout,
		logger:  logger.With("module", "redis_persistence", "key", opts.Namespace+":workflows"),
	}

	if err := p.HealthCheck(ctx); err != nil {
		p.logger.WarnContext(ctx, "Redis unavailable, workflow store is degraded until it recovers", "error", err)
	} else {
		p.logger.InfoContext(ctx, "Connected to Redis")
	}

	return p
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}

// Workflows returns every workflow in the hash. Values that no longer decode
// are logged and skipped.
func (p *Persistence) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	values, err := p.client.HGetAll(ctx, p.key).Result()
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to list workflows", "error", err)

		return []*models.Workflow{}, nil
	}

	workflows := make([]*models.Workflow, 0, len(values))

	for id, value := range values {
		workflow, err := decode(value)
		if err != nil {
			p.logger.WarnContext(ctx, "Skipping corrupt workflow record", "workflow_id", id, "error", err)

			continue
		}

		workflows = append(workflows, workflow)
	}

	persistence.SortWorkflows(workflows)

	return workflows, nil
}

// WorkflowByID returns nil when the workflow is absent, corrupt or Redis is
// unavailable.
func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	value, err := p.client.HGet(ctx, p.key, id).Result()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			p.logger.ErrorContext(ctx, "Failed to read workflow", "workflow_id", id, "error", err)
		}

		return nil, nil
	}

	workflow, err := decode(value)
	if err != nil {
		p.logger.WarnContext(ctx, "Ignoring corrupt workflow record", "workflow_id", id, "error", err)

		return nil, nil
	}

	return workflow, nil
}

func (p *Persistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	if workflow == nil || workflow.ID == "" {
		return persistence.NewWorkflowError("save", "", persistence.ErrInvalidWorkflowID)
	}

	data, err := json.Marshal(workflow)
	if err != nil {
		return persistence.NewWorkflowError("save", workflow.ID, fmt.Errorf("failed to marshal workflow: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.client.HSet(ctx, p.key, workflow.ID, data).Err(); err != nil {
		p.logger.ErrorContext(ctx, "Dropping workflow write", "workflow_id", workflow.ID, "error", err)
	}

	return nil
}

func (p *Persistence) DeleteWorkflow(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.client.HDel(ctx, p.key, id).Err(); err != nil {
		p.logger.ErrorContext(ctx, "Dropping workflow delete", "workflow_id", id, "error", err)
	}

	return nil
}

func decode(value string) (*models.Workflow, error) {
	var workflow models.Workflow

	if err := json.Unmarshal([]byte(value), &workflow); err != nil {
		return nil, err
	}

	return &workflow, nil
}
