// Package postgres provides a Postgres-backed dataset store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dataforge/collector/internal/collector"
)

// ErrNotFound is returned when a dataset ID is unknown.
var ErrNotFound = errors.New("dataset not found")

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// DatasetStore persists datasets in the datasets table.
type DatasetStore struct {
	pool querier
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// NewDatasetStore connects a pool and wraps it in a DatasetStore.
func NewDatasetStore(ctx context.Context, cfg Config) (*DatasetStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &DatasetStore{pool: pool}, nil
}

// NewDatasetStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewDatasetStoreWithPool(pool querier) (*DatasetStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &DatasetStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *DatasetStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateDataset inserts a new dataset row.
func (s *DatasetStore) CreateDataset(ctx context.Context, ds collector.Dataset) error {
	if ds.ID == "" {
		return fmt.Errorf("dataset id is required")
	}
	if ds.Status == "" {
		ds.Status = collector.DatasetStatusPending
	}
	now := time.Now().UTC()
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = now
	}
	query := `
		INSERT INTO datasets (id, name, description, status, size, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`
	_, err := s.pool.Exec(ctx, query,
		ds.ID, ds.Name, ds.Description, string(ds.Status), ds.Size, ds.ErrorMessage, ds.CreatedAt, now)
	if err != nil {
		return fmt.Errorf("insert dataset: %w", err)
	}
	return nil
}

// GetDataset fetches a dataset by ID.
func (s *DatasetStore) GetDataset(ctx context.Context, id string) (collector.Dataset, error) {
	query := `
		SELECT id, name, description, status, size, error_message, created_at, updated_at
		FROM datasets
		WHERE id = $1;
	`
	var (
		ds     collector.Dataset
		status string
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&ds.ID,
		&ds.Name,
		&ds.Description,
		&status,
		&ds.Size,
		&ds.ErrorMessage,
		&ds.CreatedAt,
		&ds.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return collector.Dataset{}, ErrNotFound
		}
		return collector.Dataset{}, fmt.Errorf("get dataset: %w", err)
	}
	ds.Status = collector.DatasetStatus(status)
	return ds, nil
}

// SetStatus advances the dataset status. The WHERE clause enforces the
// forward-only transition rule at the database, so concurrent runners
// cannot race a dataset backward.
func (s *DatasetStore) SetStatus(ctx context.Context, id string, status collector.DatasetStatus, errText string) error {
	query := `
		UPDATE datasets
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4 AND status = ANY($5);
	`
	from := allowedFrom(status)
	res, err := s.pool.Exec(ctx, query, string(status), errText, time.Now().UTC(), id, from)
	if err != nil {
		return fmt.Errorf("update dataset status: %w", err)
	}
	if res.RowsAffected() == 0 {
		current, getErr := s.GetDataset(ctx, id)
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("invalid status transition %s -> %s", current.Status, status)
	}
	return nil
}

// SetSize records the number of collected records.
func (s *DatasetStore) SetSize(ctx context.Context, id string, size int) error {
	query := `
		UPDATE datasets
		SET size = $1, updated_at = $2
		WHERE id = $3;
	`
	res, err := s.pool.Exec(ctx, query, size, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update dataset size: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// allowedFrom lists the statuses a dataset may hold immediately before
// moving to the target status.
func allowedFrom(target collector.DatasetStatus) []string {
	switch target {
	case collector.DatasetStatusProcessing:
		return []string{string(collector.DatasetStatusPending)}
	case collector.DatasetStatusCompleted, collector.DatasetStatusFailed:
		return []string{string(collector.DatasetStatusProcessing)}
	default:
		return []string{}
	}
}
