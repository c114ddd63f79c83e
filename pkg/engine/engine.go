// Package engine matches workflow events against workflow triggers.
package engine

import (
	"log/slog"
	"sync"

	"github.com/dukex/ruleflow/pkg/models"
)

// Engine evaluates workflows against a single event. Results depend only on
// the inputs and no I/O is performed, so one instance can serve any number
// of concurrent callers. Extractor patterns are compiled once and cached.
type Engine struct {
	logger   *slog.Logger
	patterns sync.Map
}

// New creates an engine. Rejections are reported at debug level.
func New(logger *slog.Logger) *Engine {
	return &Engine{
		logger: logger.With("module", "engine"),
	}
}

// Run evaluates every workflow against event and returns one result per
// workflow, in input order.
func (e *Engine) Run(workflows []*models.Workflow, event *models.WorkflowEvent) []models.MatchResult {
	results := make([]models.MatchResult, 0, len(workflows))

	for _, workflow := range workflows {
		results = append(results, e.match(workflow, event))
	}

	if event != nil {
		e.logger.Debug("Completed trigger matching",
			"event_id", event.ID,
			"event_type", event.Type,
			"workflows_count", len(workflows),
			"matches_found", countMatched(results))
	}

	return results
}

// Match evaluates a single workflow against event.
func (e *Engine) Match(workflow *models.Workflow, event *models.WorkflowEvent) models.MatchResult {
	return e.match(workflow, event)
}

func (e *Engine) match(workflow *models.Workflow, event *models.WorkflowEvent) models.MatchResult {
	result := models.MatchResult{Extracted: map[string]string{}}

	if workflow == nil {
		return result
	}

	result.WorkflowID = workflow.ID

	if reason, ok := e.eligible(workflow, event); !ok {
		e.logger.Debug("Workflow rejected", "workflow_id", workflow.ID, "reason", reason)

		return result
	}

	result.Matched = true

	for _, extractor := range workflow.Trigger.Extractors {
		value, ok := e.extract(extractor, event.Payload)
		if !ok {
			e.logger.Debug("Extractor found no value",
				"workflow_id", workflow.ID,
				"field", extractor.Field,
				"source", extractor.Source)

			continue
		}

		result.Extracted[extractor.Field] = value
	}

	return result
}

// eligible runs the ordered checks: enabled flag, trigger type, keyword and
// sender prefilters, then the condition group.
func (e *Engine) eligible(workflow *models.Workflow, event *models.WorkflowEvent) (string, bool) {
	trigger := workflow.Trigger

	switch {
	case event == nil:
		return "no event", false
	case !workflow.Enabled:
		return "disabled", false
	case trigger.Type != event.Type:
		return "trigger type mismatch", false
	case len(trigger.Keywords) > 0 && !matchKeywords(trigger.Keywords, event.Payload):
		return "no keyword found", false
	case len(trigger.Senders) > 0 && !matchSenders(trigger.Senders, event.Payload):
		return "sender not allowed", false
	case trigger.Conditions != nil && !EvaluateGroup(*trigger.Conditions, event.Payload):
		return "conditions not satisfied", false
	}

	return "", true
}

func countMatched(results []models.MatchResult) int {
	matched := 0

	for _, result := range results {
		if result.Matched {
			matched++
		}
	}

	return matched
}
