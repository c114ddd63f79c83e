package template

import (
	"errors"
	"fmt"

	"github.com/dukex/ruleflow/pkg/models"
)

// ResolveActions returns a copy of actions with every templated string
// rendered against data. A value that fails to render keeps its original
// text; all failures are returned joined, one per offending action.
func ResolveActions(actions models.ActionList, data map[string]any) (models.ActionList, error) {
	resolved := actions.Clone()

	var errs []error

	for i, action := range resolved {
		if action == nil {
			continue
		}

		r := &resolver{data: data}

		switch a := action.(type) {
		case *models.SlackMessageAction:
			a.Channel = r.text(a.Channel)
			a.Text = r.text(a.Text)
		case *models.IntegrationToolAction:
			a.ToolRef = r.toolRef(a.ToolRef)
		case *models.DataSyncAction:
			a.Source = r.toolRef(a.Source)
			a.Target = r.toolRef(a.Target)

			for field, target := range a.FieldMapping {
				a.FieldMapping[field] = r.text(target)
			}
		case *models.FileTransferAction:
			a.Download = r.toolRef(a.Download)
			a.Upload = r.toolRef(a.Upload)

			for j, field := range a.FileFields {
				a.FileFields[j] = r.text(field)
			}
		case *models.RouteAttachmentsAction:
			a.Target = r.toolRef(a.Target)
		case *models.StripeUpdateAction:
			a.ToolName = r.text(a.ToolName)
			a.Input = r.input(a.Input)
		}

		if err := errors.Join(r.errs...); err != nil {
			errs = append(errs, fmt.Errorf("action %d (%s): %w", i, action.Type(), err))
		}
	}

	return resolved, errors.Join(errs...)
}

type resolver struct {
	data map[string]any
	errs []error
}

func (r *resolver) text(s string) string {
	rendered, err := RenderString(s, r.data)
	if err != nil {
		r.errs = append(r.errs, err)

		return s
	}

	return rendered
}

func (r *resolver) toolRef(ref models.ToolRef) models.ToolRef {
	ref.IntegrationID = r.text(ref.IntegrationID)
	ref.ToolName = r.text(ref.ToolName)
	ref.Input = r.input(ref.Input)

	return ref
}

func (r *resolver) input(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}

	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = r.value(value)
	}

	return out
}

func (r *resolver) value(value any) any {
	switch v := value.(type) {
	case string:
		rendered, err := Render(v, r.data)
		if err != nil {
			r.errs = append(r.errs, err)

			return v
		}

		return rendered
	case map[string]any:
		return r.input(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = r.value(item)
		}

		return out
	default:
		return value
	}
}
