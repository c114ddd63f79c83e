// Package events defines the messages ruleflow publishes for matched workflows.
package events

import (
	"time"

	"github.com/dukex/ruleflow/pkg/models"
)

type EventType string

// Topic carries every ruleflow event.
const Topic = "ruleflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// WorkflowMatchedEvent is published once per workflow an event matched.
	WorkflowMatchedEvent EventType = "workflow.matched"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// WorkflowMatched asks the action runner to execute Actions, in order. Action
// inputs are already rendered against the triggering event.
type WorkflowMatched struct {
	BaseEvent

	WorkflowName string               `json:"workflow_name"`
	Event        models.WorkflowEvent `json:"event"`
	Extracted    map[string]string    `json:"extracted"`
	Actions      models.ActionList    `json:"actions"`
}

func (w WorkflowMatched) GetType() EventType {
	return WorkflowMatchedEvent
}
