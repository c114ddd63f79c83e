package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dukex/ruleflow/pkg/engine"
	"github.com/dukex/ruleflow/pkg/log"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/template"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
)

// MatchOutput is one matched workflow with its rendered actions.
type MatchOutput struct {
	WorkflowID string            `json:"workflow_id"`
	Name       string            `json:"name"`
	Extracted  map[string]string `json:"extracted"`
	Actions    models.ActionList `json:"actions"`
	Errors     string            `json:"template_errors,omitempty"`
}

func NewMatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "match",
		Usage: "Evaluate an event file against workflow definitions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "workflows-path",
				Usage:    "Directory or file of workflow definitions",
				Required: true,
				Sources:  cli.EnvVars("WORKFLOWS_PATH"),
			},
			&cli.StringFlag{
				Name:     "event",
				Aliases:  []string{"e"},
				Usage:    "JSON file holding the event",
				Required: true,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			workflows, err := loadDefinitions(command.String("workflows-path"))
			if err != nil && len(workflows) == 0 {
				return err
			}

			event, err := readEvent(command.String("event"))
			if err != nil {
				return err
			}

			matches := matchEvent(workflows, event)

			encoder := json.NewEncoder(command.Root().Writer)
			encoder.SetIndent("", "  ")

			return encoder.Encode(matches)
		},
	}
}

func readEvent(path string) (*models.WorkflowEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read event: %w", err)
	}

	var event models.WorkflowEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}

	if !event.Type.Valid() {
		return nil, fmt.Errorf("unknown event type %q", event.Type)
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}

	return &event, nil
}

func matchEvent(workflows []*models.Workflow, event *models.WorkflowEvent) []MatchOutput {
	results := engine.New(log.WithModule("match")).Run(workflows, event)
	matches := make([]MatchOutput, 0)

	for i, result := range results {
		if !result.Matched {
			continue
		}

		workflow := workflows[i]
		output := MatchOutput{WorkflowID: workflow.ID, Name: workflow.Name, Extracted: result.Extracted}

		actions, err := template.ResolveActions(workflow.Actions, template.NewData(workflow, event, result.Extracted))
		if err != nil {
			output.Errors = err.Error()
		}

		output.Actions = actions
		matches = append(matches, output)
	}

	return matches
}
