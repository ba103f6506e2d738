package collector

import (
	"context"
	"time"
)

// DatasetStore persists dataset handles and their status transitions.
type DatasetStore interface {
	CreateDataset(ctx context.Context, ds Dataset) error
	GetDataset(ctx context.Context, id string) (Dataset, error)
	SetStatus(ctx context.Context, id string, status DatasetStatus, errText string) error
	SetSize(ctx context.Context, id string, size int) error
}

// DatasetStorage writes collected payloads and returns their location.
type DatasetStorage interface {
	Save(ctx context.Context, ds Dataset, payload Payload) (string, error)
	Load(ctx context.Context, ds Dataset) (Payload, error)
	Delete(ctx context.Context, ds Dataset) error
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// StreamHandler receives one decoded frame from a stream source.
type StreamHandler func(ctx context.Context, record Record) error

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces dataset IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
