package memory

import (
	"context"
	"testing"

	"github.com/dataforge/collector/internal/collector"
)

func TestDatasetLifecycle(t *testing.T) {
	t.Parallel()

	store := NewDatasetStore()
	ctx := context.Background()
	ds := collector.Dataset{ID: "ds-1", Name: "products"}

	if err := store.CreateDataset(ctx, ds); err != nil {
		t.Fatalf("CreateDataset() error = %v", err)
	}
	if err := store.CreateDataset(ctx, ds); err == nil {
		t.Fatal("expected duplicate dataset error")
	}

	got, err := store.GetDataset(ctx, "ds-1")
	if err != nil {
		t.Fatalf("GetDataset() error = %v", err)
	}
	if got.Status != collector.DatasetStatusPending {
		t.Fatalf("expected pending initial status, got %s", got.Status)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}

	if err := store.SetStatus(ctx, "ds-1", collector.DatasetStatusProcessing, ""); err != nil {
		t.Fatalf("SetStatus processing error = %v", err)
	}
	if err := store.SetSize(ctx, "ds-1", 42); err != nil {
		t.Fatalf("SetSize() error = %v", err)
	}
	if err := store.SetStatus(ctx, "ds-1", collector.DatasetStatusFailed, "boom"); err != nil {
		t.Fatalf("SetStatus failed error = %v", err)
	}

	final, err := store.GetDataset(ctx, "ds-1")
	if err != nil {
		t.Fatalf("GetDataset() error = %v", err)
	}
	if final.Status != collector.DatasetStatusFailed || final.ErrorMessage != "boom" || final.Size != 42 {
		t.Fatalf("unexpected final dataset: %+v", final)
	}
}

func TestStatusTransitionsAreForwardOnly(t *testing.T) {
	t.Parallel()

	store := NewDatasetStore()
	ctx := context.Background()
	if err := store.CreateDataset(ctx, collector.Dataset{ID: "ds-1"}); err != nil {
		t.Fatalf("CreateDataset() error = %v", err)
	}

	// pending cannot jump straight to a terminal status.
	if err := store.SetStatus(ctx, "ds-1", collector.DatasetStatusCompleted, ""); err == nil {
		t.Fatal("expected pending -> completed to be rejected")
	}
	if err := store.SetStatus(ctx, "ds-1", collector.DatasetStatusProcessing, ""); err != nil {
		t.Fatalf("SetStatus processing error = %v", err)
	}
	if err := store.SetStatus(ctx, "ds-1", collector.DatasetStatusPending, ""); err == nil {
		t.Fatal("expected processing -> pending to be rejected")
	}
	if err := store.SetStatus(ctx, "ds-1", collector.DatasetStatusCompleted, ""); err != nil {
		t.Fatalf("SetStatus completed error = %v", err)
	}
	// Terminal statuses never change.
	if err := store.SetStatus(ctx, "ds-1", collector.DatasetStatusFailed, ""); err == nil {
		t.Fatal("expected completed -> failed to be rejected")
	}
}

func TestUnknownDataset(t *testing.T) {
	t.Parallel()

	store := NewDatasetStore()
	ctx := context.Background()

	if _, err := store.GetDataset(ctx, "nope"); err != ErrNotFound {
		t.Fatalf("GetDataset() error = %v, want ErrNotFound", err)
	}
	if err := store.SetStatus(ctx, "nope", collector.DatasetStatusProcessing, ""); err != ErrNotFound {
		t.Fatalf("SetStatus() error = %v, want ErrNotFound", err)
	}
	if err := store.SetSize(ctx, "nope", 1); err != ErrNotFound {
		t.Fatalf("SetSize() error = %v, want ErrNotFound", err)
	}
}
