package mocks

import (
	"context"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockScheduler is a mock implementation of services.Scheduler interface.
type MockScheduler struct {
	mock.Mock
}

func (m *MockScheduler) RefreshWorkflow(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockScheduler) StopWorkflow(id string) {
	m.Called(id)
}

// MockDispatcher is a mock implementation of scheduler.Dispatcher interface.
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, workflow *models.Workflow, event *models.WorkflowEvent, extracted map[string]string) error {
	args := m.Called(ctx, workflow, event, extracted)

	return args.Error(0)
}
