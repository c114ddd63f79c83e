package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/ruleflow/pkg/events"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/template"
)

// ErrWorkflowNil is returned when Dispatch is called without a workflow.
var ErrWorkflowNil = errors.New("workflow is nil")

// Dispatcher renders the actions of a matched workflow and publishes them as
// a workflow.matched event. Actions whose templates fail to render are still
// published with their raw text.
type Dispatcher struct {
	bus    EventPublisher
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewDispatcher creates a dispatcher publishing on bus. IDs come from bus
// when it can generate them.
func NewDispatcher(bus EventPublisher, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		bus:    bus,
		logger: logger.With("module", "dispatcher"),
		now:    time.Now,
		newID:  func() string { return "" },
	}

	if generator, ok := bus.(interface{ GenerateID() string }); ok {
		d.newID = generator.GenerateID
	}

	return d
}

func (d *Dispatcher) Dispatch(ctx context.Context, workflow *models.Workflow, event *models.WorkflowEvent, extracted map[string]string) error {
	if workflow == nil {
		return ErrWorkflowNil
	}

	if event == nil {
		event = &models.WorkflowEvent{}
	}

	if extracted == nil {
		extracted = map[string]string{}
	}

	actions, err := template.ResolveActions(workflow.Actions, template.NewData(workflow, event, extracted))
	if err != nil {
		d.logger.WarnContext(ctx, "Some action templates failed to render",
			"workflow_id", workflow.ID,
			"event_id", event.ID,
			"error", err)
	}

	matched := events.WorkflowMatched{
		BaseEvent: events.BaseEvent{
			ID:         d.newID(),
			Type:       events.WorkflowMatchedEvent,
			Timestamp:  d.now().UTC(),
			WorkflowID: workflow.ID,
		},
		WorkflowName: workflow.Name,
		Event:        *event,
		Extracted:    extracted,
		Actions:      actions,
	}

	if err := d.bus.Publish(ctx, workflow.ID, matched); err != nil {
		return fmt.Errorf("failed to publish match for workflow %s: %w", workflow.ID, err)
	}

	d.logger.InfoContext(ctx, "Workflow matched",
		"workflow_id", workflow.ID,
		"event_id", event.ID,
		"event_type", event.Type,
		"actions", len(actions))

	return nil
}
