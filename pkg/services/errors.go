// Package services provides the workflow service and its error types.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/dukex/ruleflow/pkg/scheduler"
)

var (
	// ErrWorkflowNotFound is returned when a workflow is not found.
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

	// Validation Errors (400 Bad Request).
	ErrInvalidRequest = errors.New("invalid request")
	ErrWorkflowNil    = errors.New("workflow cannot be nil")
	ErrEventNil       = errors.New("event cannot be nil")

	// ErrScheduleEventExternal is returned when a caller submits a schedule
	// event. Schedule events are only produced by the scheduler.
	ErrScheduleEventExternal = errors.New("schedule events cannot be submitted externally")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrEventNil) ||
		errors.Is(err, ErrScheduleEventExternal) ||
		errors.Is(err, persistence.ErrInvalidWorkflowID)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ScheduleWarning reports a workflow that was persisted but could not be
// armed. It accompanies the saved workflow; the write is not rolled back.
type ScheduleWarning struct {
	WorkflowID string
	Err        error
}

func (w *ScheduleWarning) Error() string {
	return fmt.Sprintf("workflow %s saved but not scheduled: %v", w.WorkflowID, w.Err)
}

func (w *ScheduleWarning) Unwrap() error {
	return w.Err
}

// IsScheduleWarning reports whether err is only a schedule diagnostic.
func IsScheduleWarning(err error) bool {
	var warning *ScheduleWarning

	return errors.As(err, &warning) && errors.Is(err, scheduler.ErrInvalidSchedule)
}
