// Package scheduler keeps exactly one cron timer per enabled schedule-triggered
// workflow and routes each tick through the engine.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/otelhelper"
	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrInvalidSchedule is returned when a workflow's cron expression or
// timezone cannot be parsed. The workflow stays unarmed.
var ErrInvalidSchedule = models.ErrInvalidSchedule

// Matcher evaluates one workflow against one event.
type Matcher interface {
	Match(workflow *models.Workflow, event *models.WorkflowEvent) models.MatchResult
}

// Dispatcher receives matched schedule firings. It is the same path that
// externally sourced matches take.
type Dispatcher interface {
	Dispatch(ctx context.Context, workflow *models.Workflow, event *models.WorkflowEvent, extracted map[string]string) error
}

type entry struct {
	entryID    cron.EntryID
	generation uint64
	schedule   cron.Schedule
	workflow   *models.Workflow
	state      *fireState
}

// fireState outlives re-arming, so a firing still in flight from a replaced
// timer blocks the first tick of its successor.
type fireState struct {
	running atomic.Bool
	skipped atomic.Uint64
}

// Scheduler owns a single cron runner with at most one entry per workflow.
type Scheduler struct {
	persistence persistence.Persistence
	matcher     Matcher
	dispatcher  Dispatcher
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time

	cron       *cron.Cron
	mu         sync.Mutex
	entries    map[string]*entry
	states     map[string]*fireState
	generation uint64

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTracer records a span per firing.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Scheduler) {
		s.tracer = tracer
	}
}

// New creates a stopped scheduler.
func New(persistence persistence.Persistence, matcher Matcher, dispatcher Dispatcher, logger *slog.Logger, opts ...Option) *Scheduler {
	logger = logger.With("module", "scheduler")
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		persistence: persistence,
		matcher:     matcher,
		dispatcher:  dispatcher,
		logger:      logger,
		tracer:      otelhelper.NoopTracer(),
		now:         time.Now,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLogger{logger: logger})),
		),
		entries: make(map[string]*entry),
		states:  make(map[string]*fireState),
		ctx:     ctx,
		cancel:  cancel,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start arms every eligible stored workflow and starts the cron runner. A
// workflow whose schedule does not parse is logged and skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Starting scheduler")

	workflows, err := s.persistence.Workflows(ctx)
	if err != nil {
		s.cron.Start()

		return fmt.Errorf("failed to load workflows: %w", err)
	}

	armed := 0

	for _, workflow := range workflows {
		if err := s.RefreshWorkflow(ctx, workflow); err != nil {
			s.logger.WarnContext(ctx, "Skipping workflow with invalid schedule", "workflow_id", workflow.ID, "error", err)

			continue
		}

		if s.Armed(workflow.ID) {
			armed++
		}
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Scheduler started", "workflows", len(workflows), "armed", armed)

	return nil
}

// Stop halts the cron runner and waits for in-flight firings, up to ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stopping scheduler")

	done := s.cron.Stop()
	defer s.cancel()

	select {
	case <-done.Done():
		s.logger.InfoContext(ctx, "Scheduler stopped")

		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight firings: %w", ctx.Err())
	}
}

// RefreshWorkflow reconciles the timer for the workflow's ID: any existing
// timer is disarmed, then a new one is armed when the workflow is enabled
// and schedule-triggered.
func (s *Scheduler) RefreshWorkflow(ctx context.Context, workflow *models.Workflow) error {
	if workflow == nil || workflow.ID == "" {
		return errors.New("workflow id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.disarm(workflow.ID)

	if !workflow.IsScheduled() {
		return nil
	}

	if workflow.Trigger.Schedule == nil {
		return fmt.Errorf("%w: workflow %s has no schedule", ErrInvalidSchedule, workflow.ID)
	}

	schedule, err := models.ParseSchedule(*workflow.Trigger.Schedule)
	if err != nil {
		return fmt.Errorf("workflow %s: %w", workflow.ID, err)
	}

	s.generation++

	state, ok := s.states[workflow.ID]
	if !ok {
		state = &fireState{}
		s.states[workflow.ID] = state
	}

	armed := &entry{
		generation: s.generation,
		schedule:   schedule,
		workflow:   workflow.Clone(),
		state:      state,
	}

	id, generation := workflow.ID, armed.generation
	armed.entryID = s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.fire(id, generation)
	}))

	s.entries[workflow.ID] = armed

	s.logger.DebugContext(ctx, "Workflow armed",
		"workflow_id", workflow.ID,
		"cron", workflow.Trigger.Schedule.Cron,
		"next_run", schedule.Next(s.now()))

	return nil
}

// StopWorkflow disarms the workflow's timer and forgets its skip count.
// Unknown IDs are ignored.
func (s *Scheduler) StopWorkflow(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disarm(id)

	if state, ok := s.states[id]; ok && !state.running.Load() {
		delete(s.states, id)
	}
}

// Armed reports whether a timer is armed for id.
func (s *Scheduler) Armed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[id]

	return ok
}

// NextRun returns when the armed timer for id fires next.
func (s *Scheduler) NextRun(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	armed, ok := s.entries[id]
	if !ok {
		return time.Time{}, false
	}

	return armed.schedule.Next(s.now()), true
}

// Skipped returns how many firings for id were dropped because the previous
// firing was still running.
func (s *Scheduler) Skipped(id string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.states[id]; ok {
		return state.skipped.Load()
	}

	return 0
}

// Len returns the number of armed timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// disarm must be called with s.mu held.
func (s *Scheduler) disarm(id string) {
	armed, ok := s.entries[id]
	if !ok {
		return
	}

	s.cron.Remove(armed.entryID)
	delete(s.entries, id)

	s.logger.Debug("Workflow disarmed", "workflow_id", id)
}

// release clears the in-flight flag and drops the state of a workflow that
// was disarmed while this firing ran.
func (s *Scheduler) release(id string, state *fireState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state.running.Store(false)

	if _, armed := s.entries[id]; !armed && s.states[id] == state {
		delete(s.states, id)
	}
}

// fire runs one tick. Ticks from a disarmed or replaced timer are dropped, as
// are ticks that arrive while the previous firing of the same workflow is
// still running.
func (s *Scheduler) fire(id string, generation uint64) {
	s.mu.Lock()
	armed, ok := s.entries[id]
	s.mu.Unlock()

	if !ok || armed.generation != generation {
		s.logger.Debug("Dropping tick from stale timer", "workflow_id", id)

		return
	}

	logger := s.logger.With("workflow_id", id)

	if !armed.state.running.CompareAndSwap(false, true) {
		skipped := armed.state.skipped.Add(1)
		logger.Warn("Skipping firing, previous firing still running", "skipped", skipped)

		return
	}
	defer s.release(id, armed.state)

	workflow := armed.workflow
	now := s.now().UTC()

	ctx, span := otelhelper.StartSpan(s.ctx, s.tracer, "scheduler.fire",
		attribute.String(otelhelper.WorkflowIDKey, id),
		attribute.String(otelhelper.CronKey, workflow.Trigger.Schedule.Cron),
	)
	defer span.End()

	event := &models.WorkflowEvent{
		ID:   uuid.NewString(),
		Type: models.TriggerTypeSchedule,
		Payload: map[string]any{
			"timestamp":  now.Format(time.RFC3339),
			"workflowId": id,
			"cron":       workflow.Trigger.Schedule.Cron,
		},
		ReceivedAt: now,
	}

	result := s.matcher.Match(workflow, event)
	if !result.Matched {
		logger.DebugContext(ctx, "Schedule fired without match")

		return
	}

	logger.InfoContext(ctx, "Schedule fired", "event_id", event.ID)

	if err := s.dispatcher.Dispatch(ctx, workflow, event, result.Extracted); err != nil {
		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Failed to dispatch scheduled workflow", "event_id", event.ID, "error", err)
	}
}
