// Package persistencetest provides a behavioural test suite shared by every
// persistence backend.
package persistencetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store for a single subtest.
type Factory func(t *testing.T) persistence.Persistence

// NewWorkflow returns a fully populated workflow whose JSON form round-trips
// without loss.
func NewWorkflow(id string, createdAt time.Time) *models.Workflow {
	return &models.Workflow{
		ID:      id,
		Name:    "Closed deals " + id,
		Enabled: true,
		Trigger: models.TriggerConfig{
			Type:     models.TriggerTypeWebhook,
			Keywords: []string{"deal"},
			Conditions: &models.ConditionGroup{
				Op: models.GroupOpAll,
				Conditions: []models.Condition{
					{Path: "status", Operator: models.OperatorEquals, Value: "closed"},
					{Path: "amount", Operator: models.OperatorGte, Value: float64(100)},
				},
			},
		},
		Actions: models.ActionList{
			&models.SlackMessageAction{Channel: "#sales", Text: "Deal {{.payload.name}} closed"},
			&models.StripeUpdateAction{ToolName: "create_invoice", Input: map[string]any{"customer": "{{.payload.customer}}"}},
		},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// Run exercises the Persistence contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	base := time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)

	t.Run("missing workflow is nil", func(t *testing.T) {
		store := newStore(t)

		workflow, err := store.WorkflowByID(context.Background(), "missing")
		require.NoError(t, err)
		assert.Nil(t, workflow)
	})

	t.Run("save then get", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		workflow := NewWorkflow("wf-1", base)

		require.NoError(t, store.SaveWorkflow(ctx, workflow))

		got, err := store.WorkflowByID(ctx, "wf-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, workflow, got)
	})

	t.Run("stored workflow is isolated from callers", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		workflow := NewWorkflow("wf-1", base)

		require.NoError(t, store.SaveWorkflow(ctx, workflow))

		workflow.Name = "mutated after save"
		workflow.Trigger.Keywords[0] = "mutated"

		got, err := store.WorkflowByID(ctx, "wf-1")
		require.NoError(t, err)
		assert.Equal(t, "Closed deals wf-1", got.Name)
		assert.Equal(t, []string{"deal"}, got.Trigger.Keywords)

		got.Trigger.Conditions.Conditions[0].Value = "open"

		again, err := store.WorkflowByID(ctx, "wf-1")
		require.NoError(t, err)
		assert.Equal(t, "closed", again.Trigger.Conditions.Conditions[0].Value)
	})

	t.Run("save replaces existing", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.SaveWorkflow(ctx, NewWorkflow("wf-1", base)))

		replacement := NewWorkflow("wf-1", base)
		replacement.Name = "Renamed"
		replacement.Enabled = false
		require.NoError(t, store.SaveWorkflow(ctx, replacement))

		got, err := store.WorkflowByID(ctx, "wf-1")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Name)
		assert.False(t, got.Enabled)

		all, err := store.Workflows(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("delete", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.SaveWorkflow(ctx, NewWorkflow("wf-1", base)))
		require.NoError(t, store.DeleteWorkflow(ctx, "wf-1"))

		got, err := store.WorkflowByID(ctx, "wf-1")
		require.NoError(t, err)
		assert.Nil(t, got)

		require.NoError(t, store.DeleteWorkflow(ctx, "wf-1"))
		require.NoError(t, store.DeleteWorkflow(ctx, "never-existed"))
	})

	t.Run("list is ordered by creation", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		all, err := store.Workflows(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)

		require.NoError(t, store.SaveWorkflow(ctx, NewWorkflow("wf-late", base.Add(2*time.Hour))))
		require.NoError(t, store.SaveWorkflow(ctx, NewWorkflow("wf-early", base)))
		require.NoError(t, store.SaveWorkflow(ctx, NewWorkflow("wf-mid", base.Add(time.Hour))))

		all, err = store.Workflows(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "wf-early", all[0].ID)
		assert.Equal(t, "wf-mid", all[1].ID)
		assert.Equal(t, "wf-late", all[2].ID)
	})

	t.Run("concurrent saves", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup

		for i := range 20 {
			wg.Add(1)

			go func(i int) {
				defer wg.Done()

				assert.NoError(t, store.SaveWorkflow(ctx, NewWorkflow(fmt.Sprintf("wf-%02d", i), base)))
			}(i)
		}

		wg.Wait()

		all, err := store.Workflows(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 20)
	})

	t.Run("health check", func(t *testing.T) {
		store := newStore(t)

		assert.NoError(t, store.HealthCheck(context.Background()))
	})
}
