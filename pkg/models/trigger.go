package models

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// TriggerType is the class of event a workflow reacts to.
type TriggerType string

const (
	TriggerTypeEmail      TriggerType = "email"
	TriggerTypeFormSubmit TriggerType = "form_submit"
	TriggerTypeDealClose  TriggerType = "deal_close"
	TriggerTypeWebhook    TriggerType = "webhook"
	TriggerTypeSchedule   TriggerType = "schedule" // only produced by the scheduler
)

// TriggerTypes lists every supported trigger type.
var TriggerTypes = []TriggerType{
	TriggerTypeEmail,
	TriggerTypeFormSubmit,
	TriggerTypeDealClose,
	TriggerTypeWebhook,
	TriggerTypeSchedule,
}

// Valid reports whether t is one of the supported trigger types.
func (t TriggerType) Valid() bool {
	return slices.Contains(TriggerTypes, t)
}

var (
	// ErrUnknownTriggerType is returned for trigger types outside TriggerTypes.
	ErrUnknownTriggerType = errors.New("unknown trigger type")

	// ErrScheduleRequired is returned when a schedule trigger has no schedule.
	ErrScheduleRequired = errors.New("schedule trigger requires a schedule")

	// ErrScheduleNotAllowed is returned when a non-schedule trigger carries a schedule.
	ErrScheduleNotAllowed = errors.New("schedule is only allowed on schedule triggers")
)

// TriggerConfig describes when a workflow is eligible to fire.
type TriggerConfig struct {
	Type       TriggerType      `json:"type"`
	Keywords   []string         `json:"keywords,omitempty"`
	Senders    []string         `json:"senders,omitempty"`
	Conditions *ConditionGroup  `json:"conditions,omitempty"`
	Extractors []EmailExtractor `json:"extractors,omitempty"`
	Schedule   *ScheduleConfig  `json:"schedule,omitempty"`
}

// EmailExtractor pulls a named field out of free text with a capture-group pattern.
type EmailExtractor struct {
	Field   string `json:"field"   validate:"required"`
	Source  string `json:"source"  validate:"required"`
	Pattern string `json:"pattern" validate:"required"`
}

// ScheduleConfig is the cron expression of a schedule trigger.
type ScheduleConfig struct {
	Cron     string `json:"cron"               validate:"required"`
	Timezone string `json:"timezone,omitempty"`
}

// Validate checks the trigger type, schedule exclusivity and nested configuration.
func (t TriggerConfig) Validate() error {
	if !t.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTriggerType, t.Type)
	}

	switch {
	case t.Type == TriggerTypeSchedule && t.Schedule == nil:
		return ErrScheduleRequired
	case t.Type != TriggerTypeSchedule && t.Schedule != nil:
		return ErrScheduleNotAllowed
	}

	if t.Schedule != nil {
		if err := validate.Struct(t.Schedule); err != nil {
			return err
		}

		if _, err := ParseSchedule(*t.Schedule); err != nil {
			return err
		}
	}

	if t.Conditions != nil {
		if err := t.Conditions.Validate(); err != nil {
			return err
		}
	}

	for i, extractor := range t.Extractors {
		if err := validate.Struct(extractor); err != nil {
			return fmt.Errorf("extractor %d: %w", i, err)
		}
	}

	return nil
}

func (t TriggerConfig) clone() TriggerConfig {
	clone := t
	clone.Keywords = slices.Clone(t.Keywords)
	clone.Senders = slices.Clone(t.Senders)
	clone.Extractors = slices.Clone(t.Extractors)

	if t.Schedule != nil {
		schedule := *t.Schedule
		clone.Schedule = &schedule
	}

	if t.Conditions != nil {
		group := *t.Conditions
		group.Conditions = slices.Clone(t.Conditions.Conditions)
		clone.Conditions = &group
	}

	return clone
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	return maps.Clone(m)
}
