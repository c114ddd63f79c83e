package web

import (
	"time"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/services"
)

// WorkflowRequest is the body of POST /workflows and PUT /workflows/:id.
type WorkflowRequest struct {
	Name    string               `json:"name"    validate:"required,min=1"`
	Enabled *bool                `json:"enabled"`
	Trigger models.TriggerConfig `json:"trigger"`
	Actions models.ActionList    `json:"actions"`
}

// Workflow converts the request into a model. Workflows are enabled unless
// the request says otherwise.
func (r WorkflowRequest) Workflow() *models.Workflow {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}

	return &models.Workflow{
		Name:    r.Name,
		Enabled: enabled,
		Trigger: r.Trigger,
		Actions: r.Actions,
	}
}

// WorkflowResponse is a stored workflow plus an optional scheduling warning.
type WorkflowResponse struct {
	*models.Workflow

	Warning string `json:"warning,omitempty"`
}

// EventRequest is the body of POST /events.
type EventRequest struct {
	ID          string              `json:"id"`
	Type        models.TriggerType  `json:"type"        validate:"required,oneof=email form_submit deal_close webhook schedule"`
	Payload     map[string]any      `json:"payload"`
	Metadata    map[string]any      `json:"metadata,omitempty"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

// EventResponse lists the workflows an event matched and any dispatch failures.
type EventResponse struct {
	EventID        string           `json:"event_id"`
	Matches        []services.Match `json:"matches"`
	DispatchErrors []string         `json:"dispatch_errors,omitempty"`
}

// ScheduleResponse describes the timer of a workflow.
type ScheduleResponse struct {
	WorkflowID string     `json:"workflow_id"`
	Armed      bool       `json:"armed"`
	NextRun    *time.Time `json:"next_run,omitempty"`
	Skipped    uint64     `json:"skipped"`
}
