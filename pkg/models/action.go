package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
)

// ActionType discriminates the WorkflowAction variants.
type ActionType string

const (
	ActionTypeSlackMessage     ActionType = "slack_message"
	ActionTypeIntegrationTool  ActionType = "integration_tool"
	ActionTypeDataSync         ActionType = "data_sync"
	ActionTypeFileTransfer     ActionType = "file_transfer"
	ActionTypeRouteAttachments ActionType = "route_attachments"
	ActionTypeStripeUpdate     ActionType = "stripe_update"
)

// StripeIntegrationID is the integration a stripe_update action is routed to.
const StripeIntegrationID = "stripe"

// ErrUnknownActionType is returned when decoding an action with an unsupported type.
var ErrUnknownActionType = errors.New("unknown action type")

// ToolRef names an integration operation and its input. The caller resolves
// it against the integration collaborators; this module never invokes it.
type ToolRef struct {
	IntegrationID string         `json:"integration_id" validate:"required"`
	ToolName      string         `json:"tool_name"      validate:"required"`
	Input         map[string]any `json:"input,omitempty"`
}

// WorkflowAction is one step of a workflow. The set of implementations is
// closed: callers switch over the concrete types below.
type WorkflowAction interface {
	Type() ActionType
	// ToolRefs lists the integration operations the action targets, in order.
	ToolRefs() []ToolRef

	cloneAction() WorkflowAction
}

// SlackMessageAction posts Text to a chat channel.
type SlackMessageAction struct {
	Channel string `json:"channel" validate:"required"`
	Text    string `json:"text"    validate:"required"`
}

// IntegrationToolAction invokes a single integration tool.
type IntegrationToolAction struct {
	ToolRef
}

// DataSyncAction reads from Source and writes to Target, renaming fields
// according to FieldMapping (source field -> target field).
type DataSyncAction struct {
	Source       ToolRef           `json:"source"`
	Target       ToolRef           `json:"target"`
	FieldMapping map[string]string `json:"field_mapping,omitempty"`
}

// FileTransferAction downloads files with Download and uploads them with
// Upload. FileFields selects which result fields hold file references.
type FileTransferAction struct {
	Download   ToolRef  `json:"download"`
	Upload     ToolRef  `json:"upload"`
	FileFields []string `json:"file_fields,omitempty"`
}

// RouteAttachmentsAction forwards the event attachments to Target.
type RouteAttachmentsAction struct {
	Target ToolRef `json:"target"`
}

// StripeUpdateAction calls a payment platform tool.
type StripeUpdateAction struct {
	ToolName string         `json:"tool_name"       validate:"required"`
	Input    map[string]any `json:"input,omitempty"`
}

func (a *SlackMessageAction) Type() ActionType     { return ActionTypeSlackMessage }
func (a *IntegrationToolAction) Type() ActionType  { return ActionTypeIntegrationTool }
func (a *DataSyncAction) Type() ActionType         { return ActionTypeDataSync }
func (a *FileTransferAction) Type() ActionType     { return ActionTypeFileTransfer }
func (a *RouteAttachmentsAction) Type() ActionType { return ActionTypeRouteAttachments }
func (a *StripeUpdateAction) Type() ActionType     { return ActionTypeStripeUpdate }

func (a *SlackMessageAction) ToolRefs() []ToolRef     { return nil }
func (a *IntegrationToolAction) ToolRefs() []ToolRef  { return []ToolRef{a.ToolRef} }
func (a *DataSyncAction) ToolRefs() []ToolRef         { return []ToolRef{a.Source, a.Target} }
func (a *FileTransferAction) ToolRefs() []ToolRef     { return []ToolRef{a.Download, a.Upload} }
func (a *RouteAttachmentsAction) ToolRefs() []ToolRef { return []ToolRef{a.Target} }

func (a *StripeUpdateAction) ToolRefs() []ToolRef {
	return []ToolRef{{IntegrationID: StripeIntegrationID, ToolName: a.ToolName, Input: a.Input}}
}

func (a *SlackMessageAction) cloneAction() WorkflowAction {
	clone := *a

	return &clone
}

func (a *IntegrationToolAction) cloneAction() WorkflowAction {
	return &IntegrationToolAction{ToolRef: a.ToolRef.Clone()}
}

func (a *DataSyncAction) cloneAction() WorkflowAction {
	return &DataSyncAction{
		Source:       a.Source.Clone(),
		Target:       a.Target.Clone(),
		FieldMapping: maps.Clone(a.FieldMapping),
	}
}

func (a *FileTransferAction) cloneAction() WorkflowAction {
	return &FileTransferAction{
		Download:   a.Download.Clone(),
		Upload:     a.Upload.Clone(),
		FileFields: slices.Clone(a.FileFields),
	}
}

func (a *RouteAttachmentsAction) cloneAction() WorkflowAction {
	return &RouteAttachmentsAction{Target: a.Target.Clone()}
}

func (a *StripeUpdateAction) cloneAction() WorkflowAction {
	return &StripeUpdateAction{ToolName: a.ToolName, Input: cloneMap(a.Input)}
}

// Clone copies the ref and its top-level input map.
func (r ToolRef) Clone() ToolRef {
	r.Input = cloneMap(r.Input)

	return r
}

// NewAction returns an empty action of the given type.
func NewAction(actionType ActionType) (WorkflowAction, error) {
	switch actionType {
	case ActionTypeSlackMessage:
		return &SlackMessageAction{}, nil
	case ActionTypeIntegrationTool:
		return &IntegrationToolAction{}, nil
	case ActionTypeDataSync:
		return &DataSyncAction{}, nil
	case ActionTypeFileTransfer:
		return &FileTransferAction{}, nil
	case ActionTypeRouteAttachments:
		return &RouteAttachmentsAction{}, nil
	case ActionTypeStripeUpdate:
		return &StripeUpdateAction{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, actionType)
	}
}

// ActionList is the ordered action sequence of a workflow. Its JSON form is
// a list of flat objects carrying a "type" discriminator.
type ActionList []WorkflowAction

// Clone deep-copies every action.
func (l ActionList) Clone() ActionList {
	if l == nil {
		return nil
	}

	clone := make(ActionList, len(l))
	for i, action := range l {
		if action != nil {
			clone[i] = action.cloneAction()
		}
	}

	return clone
}

func (l ActionList) MarshalJSON() ([]byte, error) {
	items := make([]json.RawMessage, 0, len(l))

	for i, action := range l {
		raw, err := marshalAction(action)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}

		items = append(items, raw)
	}

	return json.Marshal(items)
}

func (l *ActionList) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}

	if items == nil {
		*l = nil

		return nil
	}

	actions := make(ActionList, 0, len(items))

	for i, raw := range items {
		var head struct {
			Type ActionType `json:"type"`
		}

		if err := json.Unmarshal(raw, &head); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}

		action, err := NewAction(head.Type)
		if err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}

		if err := json.Unmarshal(raw, action); err != nil {
			return fmt.Errorf("action %d (%s): %w", i, head.Type, err)
		}

		actions = append(actions, action)
	}

	*l = actions

	return nil
}

func marshalAction(action WorkflowAction) ([]byte, error) {
	switch v := action.(type) {
	case *SlackMessageAction:
		return json.Marshal(struct {
			Type ActionType `json:"type"`
			*SlackMessageAction
		}{v.Type(), v})
	case *IntegrationToolAction:
		return json.Marshal(struct {
			Type ActionType `json:"type"`
			*IntegrationToolAction
		}{v.Type(), v})
	case *DataSyncAction:
		return json.Marshal(struct {
			Type ActionType `json:"type"`
			*DataSyncAction
		}{v.Type(), v})
	case *FileTransferAction:
		return json.Marshal(struct {
			Type ActionType `json:"type"`
			*FileTransferAction
		}{v.Type(), v})
	case *RouteAttachmentsAction:
		return json.Marshal(struct {
			Type ActionType `json:"type"`
			*RouteAttachmentsAction
		}{v.Type(), v})
	case *StripeUpdateAction:
		return json.Marshal(struct {
			Type ActionType `json:"type"`
			*StripeUpdateAction
		}{v.Type(), v})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownActionType, action)
	}
}
