package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dukex/ruleflow/pkg/definitions"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/urfave/cli/v3"
)

// ErrInvalidDefinitions is returned when at least one definition fails to load.
var ErrInvalidDefinitions = errors.New("invalid workflow definitions")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate workflow definition files",
		ArgsUsage: "<directory|file>...",
		Action: func(_ context.Context, command *cli.Command) error {
			if command.NArg() == 0 {
				return errors.New("at least one directory or file is required")
			}

			out := command.Root().Writer
			failed := false

			for _, path := range command.Args().Slice() {
				workflows, err := loadDefinitions(path)

				for _, workflow := range workflows {
					fmt.Fprintf(out, "ok\t%s\t%s (%s)\n", workflow.ID, workflow.Name, workflow.Trigger.Type)
				}

				if err != nil {
					failed = true

					fmt.Fprintf(out, "error\t%s\n", err)
				}
			}

			if failed {
				return ErrInvalidDefinitions
			}

			return nil
		},
	}
}

// loadDefinitions loads a directory of definitions or a single file.
func loadDefinitions(path string) ([]*models.Workflow, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		return definitions.Load(path)
	}

	workflow, err := definitions.LoadFile(path)
	if err != nil {
		return nil, err
	}

	return []*models.Workflow{workflow}, nil
}
