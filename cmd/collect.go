// Package cmd defines and implements the CLI commands for the collector
// executable.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dataforge/collector/internal/app"
	"github.com/dataforge/collector/internal/collector"
)

// newCollectCmd creates the 'collect' subcommand: a one-shot collection run
// for a single source requirement.
func newCollectCmd() *cobra.Command {
	var (
		name        string
		description string
		reqFile     string
		reqInline   string
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Runs one collection for a source requirement",
		Long: `Creates a dataset, collects data according to the requirement (a JSON
object describing the source), and stores the resulting payload. The
requirement may be passed inline or as a file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			requirement, err := loadRequirement(reqFile, reqInline)
			if err != nil {
				return err
			}
			return runCollect(cmd.Context(), appInstance, name, description, requirement)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "dataset name (generated when empty)")
	cmd.Flags().StringVar(&description, "description", "", "dataset description")
	cmd.Flags().StringVar(&reqFile, "requirement-file", "", "path to a JSON requirement file")
	cmd.Flags().StringVar(&reqInline, "requirement", "", "inline JSON requirement")

	return cmd
}

func loadRequirement(file, inline string) (map[string]any, error) {
	var data []byte
	switch {
	case file != "" && inline != "":
		return nil, errors.New("pass either --requirement or --requirement-file, not both")
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read requirement file: %w", err)
		}
		data = b
	case inline != "":
		data = []byte(inline)
	default:
		return nil, errors.New("a requirement is required (--requirement or --requirement-file)")
	}

	var requirement map[string]any
	if err := json.Unmarshal(data, &requirement); err != nil {
		return nil, fmt.Errorf("parse requirement JSON: %w", err)
	}
	return requirement, nil
}

func runCollect(ctx context.Context, a *app.App, name, description string, requirement map[string]any) error {
	logger := a.Logger()

	id, err := a.IDs().NewID()
	if err != nil {
		return fmt.Errorf("generate dataset id: %w", err)
	}
	if name == "" {
		name = "dataset-" + id[:8]
	}

	ds := collector.Dataset{
		ID:          id,
		Name:        name,
		Description: description,
		Status:      collector.DatasetStatusPending,
		CreatedAt:   a.Clock().Now(),
	}
	if err := a.Store().CreateDataset(ctx, ds); err != nil {
		return fmt.Errorf("create dataset: %w", err)
	}
	logger.Info("dataset created", zap.String("dataset_id", id), zap.String("name", name))

	if err := a.Runner().Run(ctx, id, requirement); err != nil {
		return fmt.Errorf("collection failed: %w", err)
	}

	final, err := a.Store().GetDataset(ctx, id)
	if err != nil {
		return err
	}
	logger.Info("collection completed",
		zap.String("dataset_id", final.ID),
		zap.Int("records", final.Size))
	return nil
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
