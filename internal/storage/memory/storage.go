// Package memory stores dataset payloads in-memory for development.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dataforge/collector/internal/collector"
)

// ErrNotFound is returned when no payload exists for a dataset.
var ErrNotFound = errors.New("payload not found")

// Storage keeps payloads in a map and returns pseudo URIs.
type Storage struct {
	mu       sync.RWMutex
	payloads map[string]collector.Payload
}

// NewStorage creates an empty in-memory payload store.
func NewStorage() *Storage {
	return &Storage{
		payloads: make(map[string]collector.Payload),
	}
}

// Save persists the payload and returns a memory:// URI.
func (s *Storage) Save(_ context.Context, ds collector.Dataset, payload collector.Payload) (string, error) {
	if ds.ID == "" {
		return "", fmt.Errorf("dataset id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads[ds.ID] = payload
	return fmt.Sprintf("memory://%s", ds.ID), nil
}

// Load returns a previously saved payload.
func (s *Storage) Load(_ context.Context, ds collector.Dataset) (collector.Payload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.payloads[ds.ID]
	if !ok {
		return collector.Payload{}, ErrNotFound
	}
	return payload, nil
}

// Delete removes the payload for a dataset.
func (s *Storage) Delete(_ context.Context, ds collector.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.payloads, ds.ID)
	return nil
}
