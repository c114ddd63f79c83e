// Package postgresql provides PostgreSQL persistence for workflows. Workflows
// are stored as JSONB documents keyed by (namespace, id).
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/dukex/ruleflow/pkg/persistence/sqlbase"

	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL. When the
// database cannot be reached it degrades: reads return nothing and writes
// are logged and dropped.
type Persistence struct {
	db         *sql.DB
	logger     *slog.Logger
	namespace  string
	timeout    time.Duration
	migrations *sqlbase.MigrationManager

	schemaMu    sync.Mutex
	schemaReady bool
}

// NewPersistence creates a new PostgreSQL persistence layer. Only a malformed
// database URL is an error; an unreachable server is logged once and the
// schema is created on first successful use.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string, opts persistence.Options) (*Persistence, error) {
	opts = opts.WithDefaults()

	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	logger = logger.With("module", "postgres_persistence", "namespace", opts.Namespace)

	postgres := &Persistence{
		db:         database,
		logger:     logger,
		namespace:  opts.Namespace,
		timeout:    opts.Timeout,
		migrations: sqlbase.NewMigrationManager(logger, database, migrationsTable, migrations()),
	}

	pingCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	if err := postgres.ensureSchema(pingCtx); err != nil {
		logger.WarnContext(ctx, "PostgreSQL unavailable, workflow store is degraded until it recovers", "error", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Workflows returns all workflows of the namespace. Rows that no longer
// decode are logged and skipped.
func (p *Persistence) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.ensureSchema(ctx); err != nil {
		p.logger.ErrorContext(ctx, "Listing workflows from degraded store", "error", err)

		return []*models.Workflow{}, nil
	}

	rows, err := p.db.QueryContext(ctx, `SELECT id, data FROM workflow_store WHERE namespace = $1`, p.namespace)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to query workflows", "error", err)

		return []*models.Workflow{}, nil
	}

	defer func() {
		if err := rows.Close(); err != nil {
			p.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		var (
			id   string
			data []byte
		)

		if err := rows.Scan(&id, &data); err != nil {
			return nil, persistence.NewWorkflowError("list", "", fmt.Errorf("failed to scan workflow: %w", err))
		}

		workflow, err := decode(data)
		if err != nil {
			p.logger.WarnContext(ctx, "Skipping corrupt workflow record", "workflow_id", id, "error", err)

			continue
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		p.logger.ErrorContext(ctx, "Failed to iterate workflows", "error", err)

		return []*models.Workflow{}, nil
	}

	persistence.SortWorkflows(workflows)

	return workflows, nil
}

// WorkflowByID returns a workflow by its ID, or nil when it does not exist,
// cannot be decoded or the database is unavailable.
func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.ensureSchema(ctx); err != nil {
		p.logger.ErrorContext(ctx, "Reading workflow from degraded store", "workflow_id", id, "error", err)

		return nil, nil
	}

	var data []byte

	err := p.db.QueryRowContext(ctx,
		`SELECT data FROM workflow_store WHERE namespace = $1 AND id = $2`,
		p.namespace, id,
	).Scan(&data)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			p.logger.ErrorContext(ctx, "Failed to query workflow", "workflow_id", id, "error", err)
		}

		return nil, nil
	}

	workflow, err := decode(data)
	if err != nil {
		p.logger.WarnContext(ctx, "Ignoring corrupt workflow record", "workflow_id", id, "error", err)

		return nil, nil
	}

	return workflow, nil
}

// SaveWorkflow upserts the workflow document.
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

	if err := p.ensureSchema(ctx); err != nil {
		p.logger.ErrorContext(ctx, "Dropping workflow write on degraded store", "workflow_id", workflow.ID, "error", err)

		return nil
	}

	query := `
		INSERT INTO workflow_store (namespace, id, data, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (namespace, id)
		DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := p.db.ExecContext(ctx, query, p.namespace, workflow.ID, data); err != nil {
		p.logger.ErrorContext(ctx, "Dropping workflow write", "workflow_id", workflow.ID, "error", err)
	}

	return nil
}

// DeleteWorkflow removes the workflow document; unknown IDs are ignored.
func (p *Persistence) DeleteWorkflow(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.ensureSchema(ctx); err != nil {
		p.logger.ErrorContext(ctx, "Dropping workflow delete on degraded store", "workflow_id", id, "error", err)

		return nil
	}

	_, err := p.db.ExecContext(ctx, `DELETE FROM workflow_store WHERE namespace = $1 AND id = $2`, p.namespace, id)
	if err != nil {
		p.logger.ErrorContext(ctx, "Dropping workflow delete", "workflow_id", id, "error", err)
	}

	return nil
}

// ensureSchema runs pending migrations once per process, retrying on later
// calls while the database is unreachable.
func (p *Persistence) ensureSchema(ctx context.Context) error {
	p.schemaMu.Lock()
	defer p.schemaMu.Unlock()

	if p.schemaReady {
		return nil
	}

	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err := p.migrations.RunMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	p.schemaReady = true

	return nil
}

func decode(data []byte) (*models.Workflow, error) {
	var workflow models.Workflow

	if err := json.Unmarshal(data, &workflow); err != nil {
		return nil, err
	}

	return &workflow, nil
}
