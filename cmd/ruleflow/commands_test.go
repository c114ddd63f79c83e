package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/ruleflow/pkg/config"
	"github.com/dukex/ruleflow/pkg/eventbus"
	"github.com/dukex/ruleflow/pkg/events"
	"github.com/dukex/ruleflow/pkg/mocks"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

const ticketsYAML = `
id: support-tickets
name: Support tickets
enabled: true
trigger:
  type: email
  keywords: [ticket]
  extractors:
    - field: ticketId
      source: subject
      pattern: 'TICKET-(\d+)'
actions:
  - type: slack_message
    channel: "#support"
    text: "Ticket {{ .extracted.ticketId }} from {{ .payload.from }}"
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out

	err := app.Run(context.Background(), append([]string{"ruleflow"}, args...))

	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "tickets.yaml", ticketsYAML)

	out, err := runApp(t, "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "ok\tsupport-tickets\tSupport tickets (email)")

	broken := writeFile(t, t.TempDir(), "broken.yaml", "id: broken\nname: Broken\ntrigger: {type: schedule}")

	out, err = runApp(t, "validate", broken)
	require.ErrorIs(t, err, ErrInvalidDefinitions)
	assert.Contains(t, out, "error\t"+broken)
}

func TestMatchCommand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "tickets.yaml", ticketsYAML)

	event := writeFile(t, t.TempDir(), "event.json", `{
  "type": "email",
  "payload": {"subject": "Re: TICKET-482", "body": "new ticket", "from": "ana@example.com"}
}`)

	out, err := runApp(t, "match", "--workflows-path", dir, "--event", event)
	require.NoError(t, err)

	var matches []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &matches), out)
	require.Len(t, matches, 1)
	assert.Equal(t, "support-tickets", matches[0]["workflow_id"])
	assert.Equal(t, map[string]any{"ticketId": "482"}, matches[0]["extracted"])
	assert.Equal(t, []any{map[string]any{
		"type":    "slack_message",
		"channel": "#support",
		"text":    "Ticket 482 from ana@example.com",
	}}, matches[0]["actions"])

	miss := writeFile(t, t.TempDir(), "miss.json", `{"type": "email", "payload": {"subject": "lunch?"}}`)
	out, err = runApp(t, "match", "--workflows-path", dir, "--event", miss)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestMatchCommand_InvalidEvent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "tickets.yaml", ticketsYAML)

	event := writeFile(t, t.TempDir(), "event.json", `{"type": "sms"}`)

	_, err := runApp(t, "match", "--workflows-path", dir, "--event", event)
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	file := writeFile(t, t.TempDir(), "ruleflow.yaml", `
port: 8080
store:
  url: redis://localhost:6379/0
  timeout: 2s
log:
  level: debug
`)

	var cfg config.Config

	command := NewRunCommand()
	command.Action = func(_ context.Context, c *cli.Command) error {
		var err error
		cfg, err = loadConfig(c)

		return err
	}

	err := command.Run(context.Background(), []string{
		"run",
		"--config", file,
		"--port", "9999",
		"--event-bus", "kafka",
		"--kafka-brokers", "k1:9092, k2:9092",
		"--store-namespace", "tenant-a",
	})
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Port, "flags win over the file")
	assert.Equal(t, "redis://localhost:6379/0", cfg.Store.URL)
	assert.Equal(t, "tenant-a", cfg.Store.Namespace)
	assert.Equal(t, 2*time.Second, cfg.Store.Timeout)
	assert.Equal(t, config.EventBusConfig{Type: "kafka", KafkaBrokers: []string{"k1:9092", "k2:9092"}}, cfg.EventBus)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_InvalidEventBus(t *testing.T) {
	t.Parallel()

	command := NewRunCommand()
	command.Action = func(_ context.Context, c *cli.Command) error {
		_, err := loadConfig(c)

		return err
	}

	err := command.Run(context.Background(), []string{"run", "--event-bus", "nats"})
	assert.Error(t, err)
}

func TestSubscribeMatches(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	bus := &mocks.MockEventBus{}

	var handler eventbus.EventHandler

	bus.On("Handle", events.WorkflowMatchedEvent, mock.AnythingOfType("eventbus.EventHandler")).
		Run(func(args mock.Arguments) { handler = args.Get(1).(eventbus.EventHandler) }).
		Return(nil).Once()
	bus.On("Subscribe", ctx).Return(nil).Once()

	require.NoError(t, subscribeMatches(ctx, bus, logger))
	bus.AssertExpectations(t)
	require.NotNil(t, handler)

	matched := &events.WorkflowMatched{
		BaseEvent: events.BaseEvent{WorkflowID: "wf-1", Type: events.WorkflowMatchedEvent},
		Event:     models.WorkflowEvent{ID: "evt-1", Type: models.TriggerTypeEmail},
	}

	assert.NoError(t, handler(ctx, matched))
	assert.Error(t, handler(ctx, "not an event"))
}

func TestSubscribeMatches_HandleError(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	bus := &mocks.MockEventBus{}

	bus.On("Handle", events.WorkflowMatchedEvent, mock.Anything).Return(errors.New("closed")).Once()

	err := subscribeMatches(context.Background(), bus, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to register match handler")
	bus.AssertNotCalled(t, "Subscribe", mock.Anything)
}
