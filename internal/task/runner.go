// Package task orchestrates a single collection run against a dataset:
// status transitions, fetch dispatch, cleaning, persistence, and the
// completion event.
package task

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dataforge/collector/internal/collector"
	"github.com/dataforge/collector/internal/metrics"
	"github.com/dataforge/collector/internal/source"
)

// CompletionTopic is the event topic for finished collections.
const CompletionTopic = "dataset.collected"

// Runner drives a dataset through pending -> processing -> completed or
// failed. A failure is recorded on the dataset and then re-raised to the
// caller.
type Runner struct {
	store      collector.DatasetStore
	storage    collector.DatasetStorage
	publisher  collector.Publisher
	dispatcher *source.Dispatcher
	clock      collector.Clock
	logger     *zap.Logger
}

// NewRunner builds a Runner. All collaborators are required except the
// publisher, which may be nil when no event bus is configured.
func NewRunner(
	store collector.DatasetStore,
	storage collector.DatasetStorage,
	publisher collector.Publisher,
	dispatcher *source.Dispatcher,
	clock collector.Clock,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		store:      store,
		storage:    storage,
		publisher:  publisher,
		dispatcher: dispatcher,
		clock:      clock,
		logger:     logger,
	}
}

// Run collects data for the dataset according to the requirement and
// persists the outcome. The dataset must exist and be in a state that can
// move to processing.
func (r *Runner) Run(ctx context.Context, datasetID string, requirement map[string]any) error {
	started := r.clock.Now()

	ds, err := r.store.GetDataset(ctx, datasetID)
	if err != nil {
		return fmt.Errorf("load dataset %s: %w", datasetID, err)
	}

	if err := r.store.SetStatus(ctx, ds.ID, collector.DatasetStatusProcessing, ""); err != nil {
		return fmt.Errorf("mark dataset %s processing: %w", ds.ID, err)
	}

	if err := r.collect(ctx, ds, requirement); err != nil {
		if stErr := r.store.SetStatus(ctx, ds.ID, collector.DatasetStatusFailed, err.Error()); stErr != nil {
			r.logger.Error("record collection failure",
				zap.String("dataset_id", ds.ID),
				zap.Error(stErr))
		}
		metrics.ObserveCollection("failed", time.Since(started))
		return err
	}

	if err := r.store.SetStatus(ctx, ds.ID, collector.DatasetStatusCompleted, ""); err != nil {
		return fmt.Errorf("mark dataset %s completed: %w", ds.ID, err)
	}
	metrics.ObserveCollection("completed", time.Since(started))
	return nil
}

func (r *Runner) collect(ctx context.Context, ds collector.Dataset, requirement map[string]any) error {
	cfg, err := source.ParseConfig(requirement)
	if err != nil {
		return err
	}

	records, err := r.dispatcher.Collect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("collect %s source: %w", string(cfg.Type), err)
	}

	records = source.Clean(records, cfg.Fields)
	if !source.ValidatePrivacy(records) {
		r.logger.Warn("collected records contain sensitive fields",
			zap.String("dataset_id", ds.ID),
			zap.String("source_type", string(cfg.Type)))
	}

	metrics.AddRecords(string(cfg.Type), len(records))

	if err := r.store.SetSize(ctx, ds.ID, len(records)); err != nil {
		return fmt.Errorf("record dataset size: %w", err)
	}

	payload := collector.Payload{
		Data: records,
		Metadata: collector.Metadata{
			SourceType:  string(cfg.Type),
			SourceURL:   cfg.URL,
			CollectedAt: r.clock.Now(),
		},
	}
	location, err := r.storage.Save(ctx, ds, payload)
	if err != nil {
		return fmt.Errorf("persist dataset payload: %w", err)
	}

	r.logger.Info("collection finished",
		zap.String("dataset_id", ds.ID),
		zap.String("source_type", string(cfg.Type)),
		zap.Int("records", len(records)),
		zap.String("location", location))

	if r.publisher != nil {
		event := map[string]any{
			"dataset_id":  ds.ID,
			"source_type": string(cfg.Type),
			"records":     len(records),
			"location":    location,
		}
		if _, err := r.publisher.Publish(ctx, CompletionTopic, event); err != nil {
			r.logger.Error("publish completion event",
				zap.String("dataset_id", ds.ID),
				zap.Error(err))
		}
	}
	return nil
}
