package models

import "time"

// WorkflowEvent is the immutable input to the engine. External callers build
// it from chat messages, webhooks, form submissions or deal notifications;
// the scheduler synthesizes schedule events.
type WorkflowEvent struct {
	ID          string         `json:"id"`
	Type        TriggerType    `json:"type"`
	Payload     map[string]any `json:"payload"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Attachments []Attachment   `json:"attachments,omitempty"`
	ReceivedAt  time.Time      `json:"received_at"`
}

// Attachment is a file carried by an event.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	URL         string `json:"url,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// MatchResult is the engine verdict for one workflow.
type MatchResult struct {
	WorkflowID string            `json:"workflow_id"`
	Matched    bool              `json:"matched"`
	Extracted  map[string]string `json:"extracted"`
}
