package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowMatched_Wire(t *testing.T) {
	t.Parallel()

	event := WorkflowMatched{
		BaseEvent: BaseEvent{
			ID:         "msg-1",
			Type:       WorkflowMatchedEvent,
			Timestamp:  time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC),
			WorkflowID: "wf-1",
		},
		WorkflowName: "Tickets",
		Event:        models.WorkflowEvent{ID: "evt-1", Type: models.TriggerTypeEmail},
		Extracted:    map[string]string{"ticketId": "482"},
		Actions:      models.ActionList{&models.SlackMessageAction{Channel: "#support", Text: "Ticket 482"}},
	}

	assert.Equal(t, WorkflowMatchedEvent, event.GetType())

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))

	assert.Equal(t, "workflow.matched", wire["type"])
	assert.Equal(t, "wf-1", wire["workflow_id"])
	assert.Equal(t, []any{map[string]any{"type": "slack_message", "channel": "#support", "text": "Ticket 482"}}, wire["actions"])
}
