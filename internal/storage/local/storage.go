// Package local implements dataset payload storage on the local filesystem.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dataforge/collector/internal/collector"
)

// Config captures the parameters for the local payload store.
type Config struct {
	// BaseDir is the root directory where payloads will be stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Storage writes one JSON file per dataset under a base directory.
type Storage struct {
	baseDir string
}

// New creates a filesystem-backed payload store.
func New(cfg Config) (*Storage, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
				return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
			}
		} else {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}
	return &Storage{baseDir: cfg.BaseDir}, nil
}

// Save writes the payload as pretty-printed JSON and returns a file:// URI.
func (s *Storage) Save(_ context.Context, ds collector.Dataset, payload collector.Payload) (string, error) {
	path, err := s.payloadPath(ds)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write payload: %w", err)
	}
	return fmt.Sprintf("file://%s", path), nil
}

// Load reads a previously saved payload.
func (s *Storage) Load(_ context.Context, ds collector.Dataset) (collector.Payload, error) {
	path, err := s.payloadPath(ds)
	if err != nil {
		return collector.Payload{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return collector.Payload{}, fmt.Errorf("failed to read payload: %w", err)
	}
	var payload collector.Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return collector.Payload{}, fmt.Errorf("unmarshal payload: %w", err)
	}
	return payload, nil
}

// Delete removes the payload file. Deleting a missing payload is not an
// error.
func (s *Storage) Delete(_ context.Context, ds collector.Dataset) error {
	path, err := s.payloadPath(ds)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete payload: %w", err)
	}
	return nil
}

func (s *Storage) payloadPath(ds collector.Dataset) (string, error) {
	if strings.TrimSpace(ds.ID) == "" {
		return "", fmt.Errorf("dataset id is required")
	}
	fullPath := filepath.Join(s.baseDir, ds.ID+".json")

	// Reject IDs that would escape the base directory.
	cleanBase := filepath.Clean(s.baseDir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}
