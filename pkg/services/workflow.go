package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/otelhelper"
	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Runner evaluates an event against a set of workflows.
type Runner interface {
	Run(workflows []*models.Workflow, event *models.WorkflowEvent) []models.MatchResult
}

// Scheduler is informed of every workflow write.
type Scheduler interface {
	RefreshWorkflow(ctx context.Context, workflow *models.Workflow) error
	StopWorkflow(id string)
}

// Match is a workflow selected by an event, with the fields its extractors
// pulled from the event.
type Match struct {
	Workflow  *models.Workflow  `json:"workflow"`
	Extracted map[string]string `json:"extracted"`
}

// Workflow orchestrates persistence, matching and scheduling. Writes always
// reach persistence before the scheduler, and writes to the same workflow ID
// are serialized.
type Workflow struct {
	persistence persistence.Persistence
	engine      Runner
	scheduler   Scheduler
	logger      *slog.Logger
	tracer      trace.Tracer
	locks       *keyedMutex
	now         func() time.Time
}

// Option configures a Workflow service.
type Option func(*Workflow)

// WithTracer records spans for event handling.
func WithTracer(tracer trace.Tracer) Option {
	return func(w *Workflow) {
		w.tracer = tracer
	}
}

// NewWorkflow creates a new workflow service. scheduler may be nil when
// schedules are not run by this process.
func NewWorkflow(persistence persistence.Persistence, engine Runner, scheduler Scheduler, logger *slog.Logger, opts ...Option) *Workflow {
	w := &Workflow{
		persistence: persistence,
		engine:      engine,
		scheduler:   scheduler,
		logger:      logger.With("module", "workflow_service"),
		tracer:      otelhelper.NoopTracer(),
		locks:       newKeyedMutex(),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflows returns every stored workflow.
func (w *Workflow) ListWorkflows(ctx context.Context) ([]*models.Workflow, error) {
	workflows, err := w.persistence.Workflows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	if strings.TrimSpace(id) == "" {
		return nil, NewValidationError("FetchByID", "INVALID_ID", "workflow id is required", ErrInvalidRequest)
	}

	workflow, err := w.persistence.WorkflowByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	return workflow, nil
}

// Create stores a new workflow under a fresh ID and arms its schedule. When
// only arming fails the stored workflow is returned with a *ScheduleWarning.
func (w *Workflow) Create(ctx context.Context, input *models.Workflow) (*models.Workflow, error) {
	if input == nil {
		return nil, ErrWorkflowNil
	}

	now := w.now().UTC()
	workflow := input.Clone()
	workflow.ID = uuid.New().String()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	unlock := w.locks.Lock(workflow.ID)
	defer unlock()

	err := w.persistence.SaveWorkflow(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Workflow created", "workflow_id", workflow.ID, "trigger_type", workflow.Trigger.Type)

	return workflow, w.refresh(ctx, workflow)
}

// Update replaces the workflow stored under workflowID, keeping its ID and
// creation time, and re-arms its schedule.
func (w *Workflow) Update(ctx context.Context, workflowID string, input *models.Workflow) (*models.Workflow, error) {
	if input == nil {
		return nil, ErrWorkflowNil
	}

	unlock := w.locks.Lock(workflowID)
	defer unlock()

	existing, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	workflow := input.Clone()
	workflow.ID = workflowID
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = w.now().UTC()

	err = w.persistence.SaveWorkflow(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Workflow updated", "workflow_id", workflow.ID)

	return workflow, w.refresh(ctx, workflow)
}

// Delete removes a workflow by its ID and disarms its schedule. The timer
// is disarmed even when the store has no readable record for the ID, since
// a degraded store may have dropped the write that armed it.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	if strings.TrimSpace(workflowID) == "" {
		return NewValidationError("Delete", "INVALID_ID", "workflow id is required", ErrInvalidRequest)
	}

	unlock := w.locks.Lock(workflowID)
	defer unlock()

	_, lookupErr := w.FetchByID(ctx, workflowID)
	if lookupErr != nil && !errors.Is(lookupErr, ErrWorkflowNotFound) {
		w.stop(workflowID)

		return lookupErr
	}

	err := w.persistence.DeleteWorkflow(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	w.stop(workflowID)

	if lookupErr != nil {
		w.logger.WarnContext(ctx, "Disarmed workflow without stored record", "workflow_id", workflowID)

		return lookupErr
	}

	w.logger.InfoContext(ctx, "Workflow deleted", "workflow_id", workflowID)

	return nil
}

func (w *Workflow) stop(workflowID string) {
	if w.scheduler != nil {
		w.scheduler.StopWorkflow(workflowID)
	}
}

// HandleEvent matches an externally sourced event against every stored
// workflow and returns the matched ones in store order. Executing their
// actions is up to the caller.
func (w *Workflow) HandleEvent(ctx context.Context, event *models.WorkflowEvent) ([]Match, error) {
	if event == nil {
		return nil, ErrEventNil
	}

	if event.Type == models.TriggerTypeSchedule {
		return nil, ErrScheduleEventExternal
	}

	if !event.Type.Valid() {
		return nil, NewValidationError("HandleEvent", "INVALID_EVENT_TYPE",
			fmt.Sprintf("unknown event type %q", event.Type), ErrInvalidRequest)
	}

	received := *event
	if received.ID == "" {
		received.ID = uuid.New().String()
	}

	if received.ReceivedAt.IsZero() {
		received.ReceivedAt = w.now().UTC()
	}

	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "workflow.handle_event",
		attribute.String(otelhelper.EventIDKey, received.ID),
		attribute.String(otelhelper.TriggerTypeKey, string(received.Type)),
	)
	defer span.End()

	workflows, err := w.persistence.Workflows(ctx)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	results := w.engine.Run(workflows, &received)
	matches := make([]Match, 0)

	for i, result := range results {
		if result.Matched {
			matches = append(matches, Match{Workflow: workflows[i], Extracted: result.Extracted})
		}
	}

	span.SetAttributes(attribute.Int(otelhelper.MatchCountKey, len(matches)))
	w.logger.DebugContext(ctx, "Event handled",
		"event_id", received.ID,
		"event_type", received.Type,
		"workflows", len(workflows),
		"matched", len(matches))

	return matches, nil
}

func (w *Workflow) refresh(ctx context.Context, workflow *models.Workflow) error {
	if w.scheduler == nil {
		return nil
	}

	if err := w.scheduler.RefreshWorkflow(ctx, workflow); err != nil {
		w.logger.WarnContext(ctx, "Workflow saved but not scheduled", "workflow_id", workflow.ID, "error", err)

		return &ScheduleWarning{WorkflowID: workflow.ID, Err: err}
	}

	return nil
}
