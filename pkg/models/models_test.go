package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validWebhookWorkflow() *Workflow {
	return &Workflow{
		ID:      "wf-1",
		Name:    "Closed deals",
		Enabled: true,
		Trigger: TriggerConfig{
			Type: TriggerTypeWebhook,
			Conditions: &ConditionGroup{
				Op: GroupOpAll,
				Conditions: []Condition{
					{Path: "status", Operator: OperatorEquals, Value: "closed"},
				},
			},
		},
		Actions: ActionList{
			&SlackMessageAction{Channel: "#sales", Text: "Deal closed"},
		},
	}
}

func TestWorkflow_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(w *Workflow)
		wantErr error
	}{
		{
			name:   "valid webhook workflow",
			mutate: func(_ *Workflow) {},
		},
		{
			name:   "empty action list is valid",
			mutate: func(w *Workflow) { w.Actions = nil },
		},
		{
			name:    "missing name",
			mutate:  func(w *Workflow) { w.Name = "" },
			wantErr: ErrInvalidWorkflow,
		},
		{
			name:    "unknown trigger type",
			mutate:  func(w *Workflow) { w.Trigger.Type = "sms" },
			wantErr: ErrUnknownTriggerType,
		},
		{
			name: "schedule trigger without schedule",
			mutate: func(w *Workflow) {
				w.Trigger.Type = TriggerTypeSchedule
			},
			wantErr: ErrScheduleRequired,
		},
		{
			name: "schedule on webhook trigger",
			mutate: func(w *Workflow) {
				w.Trigger.Schedule = &ScheduleConfig{Cron: "* * * * *"}
			},
			wantErr: ErrScheduleNotAllowed,
		},
		{
			name: "unparsable cron",
			mutate: func(w *Workflow) {
				w.Trigger = TriggerConfig{Type: TriggerTypeSchedule, Schedule: &ScheduleConfig{Cron: "every day"}}
			},
			wantErr: ErrInvalidSchedule,
		},
		{
			name: "unknown operator",
			mutate: func(w *Workflow) {
				w.Trigger.Conditions.Conditions[0].Operator = "matches"
			},
			wantErr: ErrUnknownOperator,
		},
		{
			name: "unknown group op",
			mutate: func(w *Workflow) {
				w.Trigger.Conditions.Op = "none"
			},
			wantErr: ErrUnknownGroupOp,
		},
		{
			name: "action missing required field",
			mutate: func(w *Workflow) {
				w.Actions = ActionList{&IntegrationToolAction{ToolRef: ToolRef{IntegrationID: "jira"}}}
			},
			wantErr: ErrInvalidWorkflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			workflow := validWebhookWorkflow()
			tt.mutate(workflow)

			err := workflow.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestActionList_JSON(t *testing.T) {
	t.Parallel()

	actions := ActionList{
		&SlackMessageAction{Channel: "#ops", Text: "hello"},
		&IntegrationToolAction{ToolRef: ToolRef{IntegrationID: "jira", ToolName: "create_issue", Input: map[string]any{"summary": "x"}}},
		&DataSyncAction{
			Source:       ToolRef{IntegrationID: "hubspot", ToolName: "get_deal"},
			Target:       ToolRef{IntegrationID: "sheets", ToolName: "append_row"},
			FieldMapping: map[string]string{"amount": "Amount"},
		},
		&FileTransferAction{
			Download:   ToolRef{IntegrationID: "gmail", ToolName: "download"},
			Upload:     ToolRef{IntegrationID: "drive", ToolName: "upload"},
			FileFields: []string{"attachments"},
		},
		&RouteAttachmentsAction{Target: ToolRef{IntegrationID: "drive", ToolName: "upload"}},
		&StripeUpdateAction{ToolName: "update_customer", Input: map[string]any{"id": "cus_1"}},
	}

	encoded, err := json.Marshal(actions)
	require.NoError(t, err)

	var flat []map[string]any
	require.NoError(t, json.Unmarshal(encoded, &flat))
	require.Len(t, flat, len(actions))
	assert.Equal(t, "slack_message", flat[0]["type"])
	assert.Equal(t, "#ops", flat[0]["channel"])
	assert.Equal(t, "integration_tool", flat[1]["type"])
	assert.Equal(t, "jira", flat[1]["integration_id"], "tool ref fields are flattened")
	assert.Equal(t, "stripe_update", flat[5]["type"])

	var decoded ActionList
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, actions, decoded)
}

func TestActionList_UnmarshalUnknownType(t *testing.T) {
	t.Parallel()

	var actions ActionList

	err := json.Unmarshal([]byte(`[{"type":"send_fax","number":"1"}]`), &actions)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownActionType)
}

func TestActionList_EmptyMarshalsAsArray(t *testing.T) {
	t.Parallel()

	encoded, err := json.Marshal(&Workflow{Name: "noop"})
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"actions":[]`)
}

func TestWorkflowAction_ToolRefs(t *testing.T) {
	t.Parallel()

	assert.Empty(t, (&SlackMessageAction{Channel: "#a", Text: "b"}).ToolRefs())

	refs := (&StripeUpdateAction{ToolName: "refund", Input: map[string]any{"charge": "ch_1"}}).ToolRefs()
	require.Len(t, refs, 1)
	assert.Equal(t, StripeIntegrationID, refs[0].IntegrationID)
	assert.Equal(t, "refund", refs[0].ToolName)

	sync := &DataSyncAction{
		Source: ToolRef{IntegrationID: "a", ToolName: "read"},
		Target: ToolRef{IntegrationID: "b", ToolName: "write"},
	}
	assert.Equal(t, []ToolRef{sync.Source, sync.Target}, sync.ToolRefs())
}

func TestWorkflow_CloneIsIndependent(t *testing.T) {
	t.Parallel()

	original := validWebhookWorkflow()
	original.Trigger.Keywords = []string{"deal"}
	original.Actions = append(original.Actions, &IntegrationToolAction{
		ToolRef: ToolRef{IntegrationID: "jira", ToolName: "comment", Input: map[string]any{"body": "x"}},
	})

	clone := original.Clone()
	require.Equal(t, original, clone)

	clone.Trigger.Keywords[0] = "changed"
	clone.Trigger.Conditions.Conditions[0].Value = "open"
	clone.Actions[0].(*SlackMessageAction).Text = "changed"
	clone.Actions[1].(*IntegrationToolAction).Input["body"] = "changed"

	assert.Equal(t, "deal", original.Trigger.Keywords[0])
	assert.Equal(t, "closed", original.Trigger.Conditions.Conditions[0].Value)
	assert.Equal(t, "Deal closed", original.Actions[0].(*SlackMessageAction).Text)
	assert.Equal(t, "x", original.Actions[1].(*IntegrationToolAction).Input["body"])
}

func TestWorkflow_IsScheduled(t *testing.T) {
	t.Parallel()

	scheduled := &Workflow{Enabled: true, Trigger: TriggerConfig{Type: TriggerTypeSchedule}}
	assert.True(t, scheduled.IsScheduled())

	scheduled.Enabled = false
	assert.False(t, scheduled.IsScheduled())

	assert.False(t, validWebhookWorkflow().IsScheduled())
	assert.False(t, (*Workflow)(nil).IsScheduled())
}

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	from := time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		schedule ScheduleConfig
		next     time.Time
		wantErr  bool
	}{
		{
			name:     "daily at nine utc",
			schedule: ScheduleConfig{Cron: "0 9 * * *"},
			next:     time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "every fifteen minutes",
			schedule: ScheduleConfig{Cron: "*/15 * * * *"},
			next:     time.Date(2025, 3, 10, 8, 45, 0, 0, time.UTC),
		},
		{
			name:     "descriptor",
			schedule: ScheduleConfig{Cron: "@hourly"},
			next:     time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "timezone shifts activation",
			schedule: ScheduleConfig{Cron: "0 9 * * *", Timezone: "America/New_York"},
			next:     time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC),
		},
		{name: "empty", schedule: ScheduleConfig{}, wantErr: true},
		{name: "garbage", schedule: ScheduleConfig{Cron: "not a cron"}, wantErr: true},
		{name: "six fields", schedule: ScheduleConfig{Cron: "0 0 9 * * *"}, wantErr: true},
		{name: "unknown timezone", schedule: ScheduleConfig{Cron: "0 9 * * *", Timezone: "Mars/Olympus"}, wantErr: true},
		{name: "inline tz prefix", schedule: ScheduleConfig{Cron: "CRON_TZ=UTC 0 9 * * *"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			next, err := NextRun(tt.schedule, from)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidSchedule)

				return
			}

			require.NoError(t, err)
			assert.True(t, tt.next.Equal(next), "expected %s, got %s", tt.next, next)
		})
	}
}
