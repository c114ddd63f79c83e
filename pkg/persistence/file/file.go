// Package file provides file-based persistence for workflows. Each workflow is
// one JSON document at <root>/<namespace>/<id>.json.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	root   string
	dir    string
	logger *slog.Logger
}

// NewPersistence creates a file store rooted at root. A "file://" prefix is
// accepted and stripped.
func NewPersistence(logger *slog.Logger, root, namespace string) *Persistence {
	cleanRoot := strings.TrimPrefix(root, "file://")

	return &Persistence{
		root:   cleanRoot,
		dir:    filepath.Join(cleanRoot, namespace),
		logger: logger.With("module", "file_persistence"),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); err != nil {
		return fmt.Errorf("file store root unavailable: %w", err)
	}

	return nil
}

// Workflows reads every document in the namespace directory. Documents that
// cannot be decoded are logged and skipped.
func (fp *Persistence) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	entries, err := os.ReadDir(fp.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []*models.Workflow{}, nil
		}

		return nil, persistence.NewWorkflowError("list", "", err)
	}

	workflows := make([]*models.Workflow, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		body, err := os.ReadFile(filepath.Join(fp.dir, entry.Name()))
		if err != nil {
			fp.logger.WarnContext(ctx, "Skipping unreadable workflow file", "file", entry.Name(), "error", err)

			continue
		}

		var workflow models.Workflow
		if err := json.Unmarshal(body, &workflow); err != nil {
			fp.logger.WarnContext(ctx, "Skipping corrupt workflow file", "file", entry.Name(), "error", err)

			continue
		}

		workflows = append(workflows, &workflow)
	}

	persistence.SortWorkflows(workflows)

	return workflows, nil
}

// WorkflowByID retrieves a workflow by its ID from the file system. A
// document that no longer decodes is logged and treated as absent.
func (fp *Persistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	filePath, err := fp.path(id)
	if err != nil {
		return nil, persistence.NewWorkflowError("get", id, err)
	}

	body, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, persistence.NewWorkflowError("get", id, err)
	}

	var workflow models.Workflow

	if err := json.Unmarshal(body, &workflow); err != nil {
		fp.logger.WarnContext(ctx, "Ignoring corrupt workflow file", "workflow_id", id, "error", err)

		return nil, nil
	}

	return &workflow, nil
}

// SaveWorkflow writes the document to a temporary file and renames it into
// place, so readers never observe a partial write.
func (fp *Persistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	if workflow == nil {
		return persistence.NewWorkflowError("save", "", persistence.ErrInvalidWorkflowID)
	}

	filePath, err := fp.path(workflow.ID)
	if err != nil {
		return persistence.NewWorkflowError("save", workflow.ID, err)
	}

	if err := os.MkdirAll(fp.dir, 0o750); err != nil {
		return persistence.NewWorkflowError("save", workflow.ID, fmt.Errorf("failed to create workflows directory: %w", err))
	}

	data, err := json.MarshalIndent(workflow, "", "  ")
	if err != nil {
		return persistence.NewWorkflowError("save", workflow.ID, fmt.Errorf("failed to marshal workflow: %w", err))
	}

	tmp, err := os.CreateTemp(fp.dir, "."+workflow.ID+"-*.tmp")
	if err != nil {
		return persistence.NewWorkflowError("save", workflow.ID, err)
	}

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()

	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(tmp.Name())

		return persistence.NewWorkflowError("save", workflow.ID, err)
	}

	if err := os.Rename(tmp.Name(), filePath); err != nil {
		_ = os.Remove(tmp.Name())

		return persistence.NewWorkflowError("save", workflow.ID, err)
	}

	return nil
}

// DeleteWorkflow removes a workflow by its ID.
func (fp *Persistence) DeleteWorkflow(_ context.Context, id string) error {
	filePath, err := fp.path(id)
	if err != nil {
		return persistence.NewWorkflowError("delete", id, err)
	}

	err = os.Remove(filePath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return persistence.NewWorkflowError("delete", id, err)
	}

	return nil
}

// path maps an ID to its document, rejecting IDs that would escape the
// namespace directory.
func (fp *Persistence) path(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return "", persistence.ErrInvalidWorkflowID
	}

	return filepath.Join(fp.dir, id+".json"), nil
}
