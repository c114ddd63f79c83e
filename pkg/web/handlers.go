// Package web provides the HTTP management API for workflows and events.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// ScheduleInspector reports the timer state of a workflow.
type ScheduleInspector interface {
	Armed(id string) bool
	NextRun(id string) (time.Time, bool)
	Skipped(id string) uint64
}

// Dispatcher hands a matched workflow to the action runner.
type Dispatcher interface {
	Dispatch(ctx context.Context, workflow *models.Workflow, event *models.WorkflowEvent, extracted map[string]string) error
}

type APIHandlers struct {
	workflowService *services.Workflow
	schedules       ScheduleInspector
	dispatcher      Dispatcher
	validator       *validator.Validate
	logger          *slog.Logger
	now             func() time.Time
}

// NewAPIHandlers creates the handlers. schedules and dispatcher may be nil:
// the schedule endpoint then reports every workflow as unarmed and events
// are only matched.
func NewAPIHandlers(
	workflowService *services.Workflow,
	schedules ScheduleInspector,
	dispatcher Dispatcher,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		schedules:       schedules,
		dispatcher:      dispatcher,
		validator:       validator,
		logger:          logger.With("module", "api"),
		now:             time.Now,
	}
}

// Register mounts the workflow, event and health routes on router.
func (h *APIHandlers) Register(router fiber.Router) {
	w := router.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Put("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Get("/:id/schedule", h.GetWorkflowSchedule)

	router.Post("/events", h.PostEvent)
	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflowService.ListWorkflows(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":   workflows,
		"total_count": len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	workflow, err := h.bindWorkflow(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflowService.Create(c.Context(), workflow)

	return h.writeWorkflow(c, fiber.StatusCreated, created, err)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	workflow, err := h.bindWorkflow(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.workflowService.Update(c.Context(), c.Params("id"), workflow)

	return h.writeWorkflow(c, fiber.StatusOK, updated, err)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	err := h.workflowService.Delete(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetWorkflowSchedule(c fiber.Ctx) error {
	workflow, err := h.workflowService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	response := ScheduleResponse{WorkflowID: workflow.ID}

	if h.schedules != nil {
		response.Armed = h.schedules.Armed(workflow.ID)
		response.Skipped = h.schedules.Skipped(workflow.ID)

		if next, ok := h.schedules.NextRun(workflow.ID); ok {
			response.NextRun = &next
		}
	}

	return c.JSON(response)
}

// PostEvent matches an inbound event and dispatches every match. Dispatch
// failures are reported in the response; the match itself still succeeds.
func (h *APIHandlers) PostEvent(c fiber.Ctx) error {
	var req EventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	event := &models.WorkflowEvent{
		ID:          req.ID,
		Type:        req.Type,
		Payload:     req.Payload,
		Metadata:    req.Metadata,
		Attachments: req.Attachments,
		ReceivedAt:  h.now().UTC(),
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	if event.Payload == nil {
		event.Payload = map[string]any{}
	}

	matches, err := h.workflowService.HandleEvent(c.Context(), event)
	if err != nil {
		return handleServiceError(c, err)
	}

	response := EventResponse{EventID: event.ID, Matches: matches}

	if h.dispatcher != nil {
		for _, match := range matches {
			if err := h.dispatcher.Dispatch(c.Context(), match.Workflow, event, match.Extracted); err != nil {
				h.logger.ErrorContext(c.Context(), "Failed to dispatch match",
					"workflow_id", match.Workflow.ID,
					"event_id", event.ID,
					"error", err)
				response.DispatchErrors = append(response.DispatchErrors, err.Error())
			}
		}
	}

	return c.JSON(response)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	persistenceCheck, ok := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Ruleflow API is unhealthy"
	httpStatus := http.StatusServiceUnavailable

	if ok {
		status = "healthy"
		message = "Ruleflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"persistence": persistenceCheck,
		},
		"timestamp": h.now().UTC(),
	})
}

func (h *APIHandlers) bindWorkflow(c fiber.Ctx) (*models.Workflow, error) {
	var req WorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	if err := h.validator.Struct(req); err != nil {
		return nil, err
	}

	workflow := req.Workflow()
	if err := workflow.Validate(); err != nil {
		return nil, err
	}

	return workflow, nil
}

func (h *APIHandlers) writeWorkflow(c fiber.Ctx, status int, workflow *models.Workflow, err error) error {
	var warning *services.ScheduleWarning

	switch {
	case err == nil:
		return c.Status(status).JSON(WorkflowResponse{Workflow: workflow})
	case errors.As(err, &warning) && workflow != nil:
		return c.Status(status).JSON(WorkflowResponse{Workflow: workflow, Warning: warning.Error()})
	default:
		return handleServiceError(c, err)
	}
}
