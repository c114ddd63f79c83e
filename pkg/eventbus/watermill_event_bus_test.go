package eventbus

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/ruleflow/pkg/channels/gochannel"
	"github.com/dukex/ruleflow/pkg/events"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestBus(t *testing.T) *WatermillEventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{}, false)
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub, testLogger())
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
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

	published := events.WorkflowMatched{
		BaseEvent: events.BaseEvent{ID: bus.GenerateID(), Type: events.WorkflowMatchedEvent, WorkflowID: "wf-1"},
		Extracted: map[string]string{"ticketId": "482"},
		Actions:   models.ActionList{&models.SlackMessageAction{Channel: "#ops", Text: "hi"}},
	}
	require.NoError(t, bus.Publish(ctx, "wf-1", published))

	select {
	case got := <-received:
		assert.Equal(t, "wf-1", got.WorkflowID)
		assert.Equal(t, map[string]string{"ticketId": "482"}, got.Extracted)
		require.Len(t, got.Actions, 1)
		assert.Equal(t, &models.SlackMessageAction{Channel: "#ops", Text: "hi"}, got.Actions[0])
	case <-time.After(5 * time.Second):
		t.Fatal("workflow.matched event was not delivered")
	}
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	t.Parallel()

	bus := newTestBus(t)

	first, second := bus.GenerateID(), bus.GenerateID()
	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
