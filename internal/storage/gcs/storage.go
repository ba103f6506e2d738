// Package gcs stores dataset payloads in Google Cloud Storage.
package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/dataforge/collector/internal/collector"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

// Storage writes one JSON object per dataset into a configured bucket.
type Storage struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed payload store.
func New(client *storage.Client, cfg Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Storage{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Save uploads the payload and returns a gs:// URI.
func (s *Storage) Save(ctx context.Context, ds collector.Dataset, payload collector.Payload) (string, error) {
	objectPath, err := s.objectPath(ds)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	writer := s.client.Bucket(s.bucket).Object(objectPath).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, objectPath), nil
}

// Load fetches a previously saved payload.
func (s *Storage) Load(ctx context.Context, ds collector.Dataset) (collector.Payload, error) {
	objectPath, err := s.objectPath(ds)
	if err != nil {
		return collector.Payload{}, err
	}
	reader, err := s.client.Bucket(s.bucket).Object(objectPath).NewReader(ctx)
	if err != nil {
		return collector.Payload{}, fmt.Errorf("open object: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return collector.Payload{}, fmt.Errorf("read object: %w", err)
	}
	var payload collector.Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return collector.Payload{}, fmt.Errorf("unmarshal payload: %w", err)
	}
	return payload, nil
}

// Delete removes the payload object. A missing object is not an error.
func (s *Storage) Delete(ctx context.Context, ds collector.Dataset) error {
	objectPath, err := s.objectPath(ds)
	if err != nil {
		return err
	}
	err = s.client.Bucket(s.bucket).Object(objectPath).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (s *Storage) objectPath(ds collector.Dataset) (string, error) {
	if strings.TrimSpace(ds.ID) == "" {
		return "", fmt.Errorf("dataset id is required")
	}
	if s.prefix == "" {
		return ds.ID + ".json", nil
	}
	return path.Join(s.prefix, ds.ID+".json"), nil
}
