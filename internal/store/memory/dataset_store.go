// Package memory provides an in-memory dataset store for development and
// testing.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dataforge/collector/internal/collector"
)

// ErrNotFound is returned when a dataset ID is unknown.
var ErrNotFound = errors.New("dataset not found")

// DatasetStore keeps datasets in a map guarded by a mutex.
type DatasetStore struct {
	mu       sync.RWMutex
	datasets map[string]collector.Dataset
}

// NewDatasetStore constructs an empty DatasetStore.
func NewDatasetStore() *DatasetStore {
	return &DatasetStore{
		datasets: make(map[string]collector.Dataset),
	}
}

// CreateDataset stores a new dataset. The caller sets the initial status.
func (s *DatasetStore) CreateDataset(_ context.Context, ds collector.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.datasets[ds.ID]; exists {
		return errors.New("dataset already exists")
	}
	if ds.Status == "" {
		ds.Status = collector.DatasetStatusPending
	}
	now := time.Now().UTC()
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = now
	}
	ds.UpdatedAt = now
	s.datasets[ds.ID] = ds
	return nil
}

// GetDataset fetches a dataset by ID.
func (s *DatasetStore) GetDataset(_ context.Context, id string) (collector.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.datasets[id]
	if !ok {
		return collector.Dataset{}, ErrNotFound
	}
	return ds, nil
}

// SetStatus advances the dataset status. Backward or repeated transitions
// are rejected.
func (s *DatasetStore) SetStatus(_ context.Context, id string, status collector.DatasetStatus, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.datasets[id]
	if !ok {
		return ErrNotFound
	}
	if !ds.Status.CanTransition(status) {
		return fmt.Errorf("invalid status transition %s -> %s", ds.Status, status)
	}
	ds.Status = status
	ds.ErrorMessage = errText
	ds.UpdatedAt = time.Now().UTC()
	s.datasets[id] = ds
	return nil
}

// SetSize records the number of collected records.
func (s *DatasetStore) SetSize(_ context.Context, id string, size int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.datasets[id]
	if !ok {
		return ErrNotFound
	}
	ds.Size = size
	ds.UpdatedAt = time.Now().UTC()
	s.datasets[id] = ds
	return nil
}
