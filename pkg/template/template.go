// Package template renders action inputs from event data and extracted fields.
package template

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/ruleflow/pkg/models"
)

var funcs = template.FuncMap{
	"now": func() string {
		return time.Now().UTC().Format(time.RFC3339)
	},
	"lower": strings.ToLower,
	"upper": strings.ToUpper,
	"trim":  strings.TrimSpace,
	"default": func(fallback, value any) any {
		if value == nil {
			return fallback
		}

		if s, ok := value.(string); ok && s == "" {
			return fallback
		}

		return value
	},
}

// NewData builds the template context for one matched workflow:
// .extracted, .payload, .event and .workflow.
func NewData(workflow *models.Workflow, event *models.WorkflowEvent, extracted map[string]string) map[string]any {
	data := map[string]any{
		"extracted": map[string]any{},
		"payload":   map[string]any{},
		"event":     map[string]any{},
		"workflow":  map[string]any{},
	}

	fields := make(map[string]any, len(extracted))
	for key, value := range extracted {
		fields[key] = value
	}

	data["extracted"] = fields

	if event != nil {
		if event.Payload != nil {
			data["payload"] = event.Payload
		}

		data["event"] = map[string]any{
			"id":          event.ID,
			"type":        string(event.Type),
			"received_at": event.ReceivedAt.UTC().Format(time.RFC3339),
			"metadata":    event.Metadata,
			"attachments": event.Attachments,
		}
	}

	if workflow != nil {
		data["workflow"] = map[string]any{
			"id":   workflow.ID,
			"name": workflow.Name,
		}
	}

	return data
}

// RenderString executes templateStr against data. Strings without template
// actions are returned unchanged. Referencing a missing key is an error.
func RenderString(templateStr string, data any) (string, error) {
	if !strings.Contains(templateStr, "{{") {
		return templateStr, nil
	}

	tmpl, err := template.
		New("action").
		Option("missingkey=error").
		Funcs(funcs).
		Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return buf.String(), nil
}

// Render executes templateStr and converts the output to a JSON object or
// array, a canonical finite number, or a literal true/false, so tool inputs
// keep their types. Anything else stays a string.
func Render(templateStr string, data any) (any, error) {
	if !strings.Contains(templateStr, "{{") {
		return templateStr, nil
	}

	rendered, err := RenderString(templateStr, data)
	if err != nil {
		return nil, err
	}

	result := strings.TrimSpace(rendered)
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		if err := json.Unmarshal([]byte(result), &jsonResult); err == nil {
			return jsonResult, nil
		}

		return rendered, nil
	}

	if num, ok := parseNumber(result); ok {
		return num, nil
	}

	switch result {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}

	return rendered, nil
}

// parseNumber accepts only canonical finite numbers, so identifiers such as
// "0042", "1e3" or "NaN" stay strings.
func parseNumber(s string) (float64, bool) {
	num, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(num) || math.IsInf(num, 0) {
		return 0, false
	}

	if strconv.FormatFloat(num, 'f', -1, 64) != s {
		return 0, false
	}

	return num, true
}
