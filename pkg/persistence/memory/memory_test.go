package memory_test

import (
	"context"
	"testing"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/dukex/ruleflow/pkg/persistence/memory"
	"github.com/dukex/ruleflow/pkg/persistence/persistencetest"
	"github.com/stretchr/testify/assert"
)

func TestPersistence(t *testing.T) {
	t.Parallel()

	persistencetest.Run(t, func(_ *testing.T) persistence.Persistence {
		return memory.NewPersistence()
	})
}

func TestPersistence_SaveWithoutID(t *testing.T) {
	t.Parallel()

	store := memory.NewPersistence()

	err := store.SaveWorkflow(context.Background(), &models.Workflow{Name: "no id"})
	assert.ErrorIs(t, err, persistence.ErrInvalidWorkflowID)

	err = store.SaveWorkflow(context.Background(), nil)
	assert.ErrorIs(t, err, persistence.ErrInvalidWorkflowID)
}
