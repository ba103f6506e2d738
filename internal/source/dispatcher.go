package source

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/dataforge/collector/internal/collector"
	"github.com/dataforge/collector/internal/metrics"
)

// Dispatcher routes a source configuration to its fetch strategy. The api
// and stream strategies suspend on network I/O and run inline; the database
// and web strategies block, so they are offloaded onto a bounded worker
// pool to keep a slow query from stalling concurrent collections.
type Dispatcher struct {
	api      *APISource
	database *DatabaseSource
	web      *WebSource
	stream   *StreamSource

	throttle *Throttle
	blocking *semaphore.Weighted
	logger   *zap.Logger
}

// Config controls dispatcher behavior.
type Config struct {
	GlobalRatePerMinute int
	BlockingWorkers     int64
}

// NewDispatcher wires the four strategies.
func NewDispatcher(
	api *APISource,
	database *DatabaseSource,
	web *WebSource,
	stream *StreamSource,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	if cfg.BlockingWorkers <= 0 {
		cfg.BlockingWorkers = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		api:      api,
		database: database,
		web:      web,
		stream:   stream,
		throttle: NewThrottle(cfg.GlobalRatePerMinute),
		blocking: semaphore.NewWeighted(cfg.BlockingWorkers),
		logger:   logger,
	}
}

// Collect runs one fetch for the configuration and returns the raw records.
// Strategy-specific cleaning and privacy checks are the caller's concern.
func (d *Dispatcher) Collect(ctx context.Context, cfg collector.SourceConfig) ([]collector.Record, error) {
	if err := d.throttle.Wait(ctx); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case collector.SourceTypeAPI:
		return d.api.Collect(ctx, cfg)
	case collector.SourceTypeDatabase:
		return d.offload(ctx, cfg, d.database)
	case collector.SourceTypeWeb:
		return d.offload(ctx, cfg, d.web)
	case collector.SourceTypeStream:
		return d.stream.Collect(ctx, cfg)
	default:
		return nil, collector.NewConfigError("type", "unsupported source type %q", string(cfg.Type))
	}
}

// CollectStream runs the stream strategy with a caller-supplied handler.
// It blocks until the stream ends or errors.
func (d *Dispatcher) CollectStream(ctx context.Context, cfg collector.SourceConfig, handler collector.StreamHandler) error {
	if cfg.Type != collector.SourceTypeStream {
		return collector.NewConfigError("type", "handler streaming requires a stream source, got %q", string(cfg.Type))
	}
	if err := d.throttle.Wait(ctx); err != nil {
		return err
	}
	return d.stream.Consume(ctx, cfg, handler)
}

// offload runs a blocking strategy on the bounded pool and bridges the
// result back over a channel.
func (d *Dispatcher) offload(ctx context.Context, cfg collector.SourceConfig, src Source) ([]collector.Record, error) {
	if err := d.blocking.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire blocking worker: %w", err)
	}

	type outcome struct {
		records []collector.Record
		err     error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer d.blocking.Release(1)
		metrics.WorkerStarted()
		defer metrics.WorkerFinished()
		records, err := src.Collect(ctx, cfg)
		ch <- outcome{records: records, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("collect canceled: %w", ctx.Err())
	case out := <-ch:
		return out.records, out.err
	}
}
