package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukex/ruleflow/pkg/events"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, key string, event Event) error {
	args := m.Called(ctx, key, event)

	return args.Error(0)
}

func (m *mockPublisher) GenerateID() string {
	args := m.Called()

	return args.String(0)
}

func ticketWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:      "wf-tickets",
		Name:    "Tickets",
		Enabled: true,
		Trigger: models.TriggerConfig{Type: models.TriggerTypeEmail},
		Actions: models.ActionList{
			&models.SlackMessageAction{Channel: "#support", Text: "Ticket {{ .extracted.ticketId }} from {{ .payload.from }}"},
			&models.SlackMessageAction{Channel: "#support", Text: "{{ .extracted.missing }}"},
		},
	}
}

func TestDispatcher_Dispatch(t *testing.T) {
	t.Parallel()

	bus := &mockPublisher{}
	bus.On("GenerateID").Return("msg-1")
	bus.On("Publish", mock.Anything, "wf-tickets", mock.AnythingOfType("events.WorkflowMatched")).Return(nil)

	dispatcher := NewDispatcher(bus, testLogger())
	dispatcher.now = func() time.Time { return time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC) }

	workflow := ticketWorkflow()
	event := &models.WorkflowEvent{
		ID:      "evt-1",
		Type:    models.TriggerTypeEmail,
		Payload: map[string]any{"from": "ana@example.com"},
	}

	err := dispatcher.Dispatch(context.Background(), workflow, event, map[string]string{"ticketId": "482"})
	require.NoError(t, err)

	bus.AssertExpectations(t)

	published := bus.Calls[len(bus.Calls)-1].Arguments.Get(2).(events.WorkflowMatched)
	assert.Equal(t, "msg-1", published.ID)
	assert.Equal(t, events.WorkflowMatchedEvent, published.Type)
	assert.Equal(t, time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC), published.Timestamp)
	assert.Equal(t, "Tickets", published.WorkflowName)
	assert.Equal(t, "evt-1", published.Event.ID)
	require.Len(t, published.Actions, 2)
	assert.Equal(t, "Ticket 482 from ana@example.com", published.Actions[0].(*models.SlackMessageAction).Text)
	assert.Equal(t, "{{ .extracted.missing }}", published.Actions[1].(*models.SlackMessageAction).Text)

	assert.Equal(t, "Ticket {{ .extracted.ticketId }} from {{ .payload.from }}",
		workflow.Actions[0].(*models.SlackMessageAction).Text, "stored workflow is not rewritten")
}

func TestDispatcher_PublishError(t *testing.T) {
	t.Parallel()

	bus := &mockPublisher{}
	bus.On("GenerateID").Return("msg-1")
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	err := NewDispatcher(bus, testLogger()).Dispatch(context.Background(), ticketWorkflow(), &models.WorkflowEvent{ID: "evt"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestDispatcher_NilWorkflow(t *testing.T) {
	t.Parallel()

	err := NewDispatcher(&mockPublisher{}, testLogger()).Dispatch(context.Background(), nil, nil, nil)
	assert.ErrorIs(t, err, ErrWorkflowNil)
}

func TestDispatcher_ThroughBus(t *testing.T) {
	t.Parallel()

	bus := newTestBus(t)
	received := make(chan *events.WorkflowMatched, 1)

	require.NoError(t, bus.Handle(events.WorkflowMatchedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.WorkflowMatched)

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, bus.Subscribe(ctx))

	event := &models.WorkflowEvent{ID: "evt-9", Type: models.TriggerTypeEmail, Payload: map[string]any{"from": "bo@example.com"}}
	require.NoError(t, NewDispatcher(bus, testLogger()).Dispatch(ctx, ticketWorkflow(), event, map[string]string{"ticketId": "7"}))

	select {
	case got := <-received:
		assert.NotEmpty(t, got.ID)
		assert.Equal(t, "wf-tickets", got.WorkflowID)
		assert.Equal(t, "Ticket 7 from bo@example.com", got.Actions[0].(*models.SlackMessageAction).Text)
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch was not delivered")
	}
}
