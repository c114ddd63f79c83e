// Package models defines the core domain models for rule-based workflow automation
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidWorkflow is returned when workflow validation fails.
	ErrInvalidWorkflow = errors.New("invalid workflow")

	validate = validator.New(validator.WithRequiredStructEnabled())
)

// Workflow is a named, enable-flagged automation rule: one trigger and an
// ordered list of actions to run when the trigger matches.
type Workflow struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"     validate:"required"`
	Enabled   bool          `json:"enabled"`
	Trigger   TriggerConfig `json:"trigger"`
	Actions   ActionList    `json:"actions"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// IsScheduled reports whether the workflow should own an armed schedule timer.
func (w *Workflow) IsScheduled() bool {
	return w != nil && w.Enabled && w.Trigger.Type == TriggerTypeSchedule
}

// Validate checks structural invariants: a known trigger type, a schedule
// present exactly when the trigger is schedule-typed, known operators and
// action variants.
func (w *Workflow) Validate() error {
	if w == nil {
		return fmt.Errorf("%w: workflow is nil", ErrInvalidWorkflow)
	}

	if err := validate.Struct(w); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidWorkflow, err)
	}

	if err := w.Trigger.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidWorkflow, err)
	}

	for i, action := range w.Actions {
		if action == nil {
			return fmt.Errorf("%w: action %d is empty", ErrInvalidWorkflow, i)
		}

		if err := validate.Struct(action); err != nil {
			return fmt.Errorf("%w: action %d (%s): %w", ErrInvalidWorkflow, i, action.Type(), err)
		}
	}

	return nil
}

// Clone returns a deep copy of the workflow so callers can hand it across
// goroutines without sharing mutable maps or slices.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}

	clone := *w
	clone.Trigger = w.Trigger.clone()
	clone.Actions = w.Actions.Clone()

	return &clone
}
