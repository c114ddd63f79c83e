// Package definitions loads workflow definitions from YAML or JSON files.
package definitions

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

var schema = gojsonschema.NewBytesLoader(schemaJSON)

var (
	// ErrSchemaViolation is returned when a file does not match the workflow schema.
	ErrSchemaViolation = errors.New("workflow does not match schema")

	// ErrDuplicateID is returned when two files define the same workflow ID.
	ErrDuplicateID = errors.New("duplicate workflow id")
)

// FileError ties a load failure to the file that caused it.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Load reads every *.yaml, *.yml and *.json file directly under dir. Files
// are processed in name order; valid workflows are returned even when other
// files fail, and the failures are joined into the returned error.
func Load(dir string) ([]*models.Workflow, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions directory: %w", err)
	}

	workflows := make([]*models.Workflow, 0)
	seen := make(map[string]string)

	var errs []error

	for _, entry := range entries {
		if entry.IsDir() || !isDefinitionFile(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())

		workflow, err := LoadFile(path)
		if err != nil {
			errs = append(errs, err)

			continue
		}

		if first, ok := seen[workflow.ID]; ok {
			errs = append(errs, &FileError{Path: path, Err: fmt.Errorf("%w %q, first defined in %s", ErrDuplicateID, workflow.ID, first)})

			continue
		}

		seen[workflow.ID] = path
		workflows = append(workflows, workflow)
	}

	return workflows, errors.Join(errs...)
}

// LoadFile reads and validates a single definition file.
func LoadFile(path string) (*models.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FileError{Path: path, Err: err}
	}

	workflow, err := Parse(data)
	if err != nil {
		return nil, &FileError{Path: path, Err: err}
	}

	return workflow, nil
}

// Parse decodes a YAML or JSON document, checks it against the workflow
// schema and then against the model invariants.
func Parse(data []byte) (*models.Workflow, error) {
	var document any
	if err := yaml.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("failed to parse definition: %w", err)
	}

	raw, err := json.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("failed to convert definition: %w", err)
	}

	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to validate definition: %w", err)
	}

	if !result.Valid() {
		violations := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			violations = append(violations, desc.String())
		}

		return nil, fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(violations, "; "))
	}

	var workflow models.Workflow
	if err := json.Unmarshal(raw, &workflow); err != nil {
		return nil, fmt.Errorf("failed to decode workflow: %w", err)
	}

	if err := workflow.Validate(); err != nil {
		return nil, err
	}

	return &workflow, nil
}

// Seed saves the workflows whose ID is not stored yet and returns how many
// were written. Stored workflows always win over files.
func Seed(ctx context.Context, store persistence.Persistence, workflows []*models.Workflow, now time.Time) (int, error) {
	seeded := 0

	for _, workflow := range workflows {
		existing, err := store.WorkflowByID(ctx, workflow.ID)
		if err != nil {
			return seeded, fmt.Errorf("failed to look up workflow %s: %w", workflow.ID, err)
		}

		if existing != nil {
			continue
		}

		seed := workflow.Clone()
		if seed.CreatedAt.IsZero() {
			seed.CreatedAt = now.UTC()
		}

		seed.UpdatedAt = now.UTC()

		if err := store.SaveWorkflow(ctx, seed); err != nil {
			return seeded, fmt.Errorf("failed to seed workflow %s: %w", workflow.ID, err)
		}

		seeded++
	}

	return seeded, nil
}

func isDefinitionFile(name string) bool {
	return slices.Contains([]string{".yaml", ".yml", ".json"}, strings.ToLower(filepath.Ext(name)))
}
