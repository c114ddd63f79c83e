package file_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/dukex/ruleflow/pkg/persistence/file"
	"github.com/dukex/ruleflow/pkg/persistence/persistencetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestPersistence(t *testing.T) {
	t.Parallel()

	persistencetest.Run(t, func(t *testing.T) persistence.Persistence {
		return file.NewPersistence(testLogger(), t.TempDir(), "ruleflow")
	})
}

func TestPersistence_Layout(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := file.NewPersistence(testLogger(), "file://"+root, "tenant-a")

	err := store.SaveWorkflow(context.Background(), persistencetest.NewWorkflow("wf-1", time.Now().UTC()))
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(root, "tenant-a", "wf-1.json"))

	matches, err := filepath.Glob(filepath.Join(root, "tenant-a", "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestPersistence_NamespacesAreIsolated(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	ctx := context.Background()
	tenantA := file.NewPersistence(testLogger(), root, "tenant-a")
	tenantB := file.NewPersistence(testLogger(), root, "tenant-b")

	require.NoError(t, tenantA.SaveWorkflow(ctx, persistencetest.NewWorkflow("wf-1", time.Now().UTC())))

	got, err := tenantB.WorkflowByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPersistence_CorruptFileIsSkipped(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	ctx := context.Background()
	store := file.NewPersistence(testLogger(), root, "ruleflow")

	require.NoError(t, store.SaveWorkflow(ctx, persistencetest.NewWorkflow("wf-good", time.Now().UTC())))
	require.NoError(t, os.WriteFile(filepath.Join(root, "ruleflow", "wf-bad.json"), []byte("{not json"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "ruleflow", "notes.txt"), []byte("ignored"), 0o600))

	workflows, err := store.Workflows(ctx)
	require.NoError(t, err)
	require.Len(t, workflows, 1)
	assert.Equal(t, "wf-good", workflows[0].ID)

	bad, err := store.WorkflowByID(ctx, "wf-bad")
	require.NoError(t, err)
	assert.Nil(t, bad, "corrupt document reads as absent")

	require.NoError(t, store.DeleteWorkflow(ctx, "wf-bad"))
	_, err = os.Stat(filepath.Join(root, "ruleflow", "wf-bad.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestPersistence_RejectsUnsafeIDs(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(testLogger(), t.TempDir(), "ruleflow")
	ctx := context.Background()

	for _, id := range []string{"", "..", "../escape", "a/b", `a\b`, ".hidden"} {
		workflow := persistencetest.NewWorkflow(id, time.Now().UTC())

		err := store.SaveWorkflow(ctx, workflow)
		assert.ErrorIs(t, err, persistence.ErrInvalidWorkflowID, "id %q", id)
	}
}

func TestPersistence_HealthCheck(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(testLogger(), filepath.Join(t.TempDir(), "missing"), "ruleflow")

	assert.Error(t, store.HealthCheck(context.Background()))
}
