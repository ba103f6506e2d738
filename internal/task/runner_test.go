package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dataforge/collector/internal/collector"
	publishermemory "github.com/dataforge/collector/internal/publisher/memory"
	"github.com/dataforge/collector/internal/source"
	storememory "github.com/dataforge/collector/internal/store/memory"
	storagememory "github.com/dataforge/collector/internal/storage/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeFetcher struct {
	result collector.FetchResult
	err    error
}

func (f *fakeFetcher) Execute(context.Context, string, string, map[string]string, map[string]string) (collector.FetchResult, error) {
	return f.result, f.err
}

type fixture struct {
	runner    *Runner
	store     *storememory.DatasetStore
	storage   *storagememory.Storage
	publisher *publishermemory.Publisher
	clock     fixedClock
}

func newFixture(t *testing.T, fetcher source.Fetcher) fixture {
	t.Helper()
	store := storememory.NewDatasetStore()
	storage := storagememory.NewStorage()
	publisher := publishermemory.NewPublisher()
	clock := fixedClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}

	dispatcher := source.NewDispatcher(
		source.NewAPISource(fetcher),
		source.NewDatabaseSource(),
		source.NewWebSource(fetcher, nil, nil, nil),
		source.NewStreamSource(nil),
		source.Config{BlockingWorkers: 2},
		nil,
	)
	return fixture{
		runner:    NewRunner(store, storage, publisher, dispatcher, clock, nil),
		store:     store,
		storage:   storage,
		publisher: publisher,
		clock:     clock,
	}
}

func seedDataset(t *testing.T, store *storememory.DatasetStore, id string) collector.Dataset {
	t.Helper()
	ds := collector.Dataset{ID: id, Name: "test", Status: collector.DatasetStatusPending}
	require.NoError(t, store.CreateDataset(context.Background(), ds))
	return ds
}

func TestRunCompletesAndPersists(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{result: collector.FetchResult{
		Kind: collector.ResultJSON,
		JSON: map[string]any{"data": []any{
			map[string]any{"id": float64(1)},
			map[string]any{"id": float64(2)},
		}},
	}}
	f := newFixture(t, fetcher)
	ctx := context.Background()
	seedDataset(t, f.store, "ds-1")

	err := f.runner.Run(ctx, "ds-1", map[string]any{
		"type": "api",
		"url":  "https://api.example.com/items",
	})
	require.NoError(t, err)

	ds, err := f.store.GetDataset(ctx, "ds-1")
	require.NoError(t, err)
	require.Equal(t, collector.DatasetStatusCompleted, ds.Status)
	require.Equal(t, 2, ds.Size)
	require.Empty(t, ds.ErrorMessage)

	payload, err := f.storage.Load(ctx, ds)
	require.NoError(t, err)
	require.Len(t, payload.Data, 2)
	require.Equal(t, "api", payload.Metadata.SourceType)
	require.Equal(t, "https://api.example.com/items", payload.Metadata.SourceURL)
	require.Equal(t, f.clock.now, payload.Metadata.CollectedAt)

	events := f.publisher.Events()
	require.Len(t, events, 1)
	require.Equal(t, CompletionTopic, events[0].Topic)
}

func TestRunFailureRecordsAndReRaises(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeFetcher{})
	ctx := context.Background()
	seedDataset(t, f.store, "ds-1")

	err := f.runner.Run(ctx, "ds-1", map[string]any{
		"type": "ftp",
		"url":  "ftp://example.com/dump",
	})
	require.Error(t, err)

	ds, getErr := f.store.GetDataset(ctx, "ds-1")
	require.NoError(t, getErr)
	require.Equal(t, collector.DatasetStatusFailed, ds.Status)
	require.NotEmpty(t, ds.ErrorMessage)
	require.Empty(t, f.publisher.Events())
}

func TestRunUnknownDataset(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeFetcher{})
	err := f.runner.Run(context.Background(), "missing", map[string]any{
		"type": "api",
		"url":  "https://api.example.com",
	})
	require.Error(t, err)
}

func TestRunAppliesFieldProjection(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{result: collector.FetchResult{
		Kind: collector.ResultJSON,
		JSON: []any{
			map[string]any{"name": "a", "secret": "x"},
			map[string]any{"name": "a", "secret": "y"},
		},
	}}
	f := newFixture(t, fetcher)
	ctx := context.Background()
	seedDataset(t, f.store, "ds-1")

	err := f.runner.Run(ctx, "ds-1", map[string]any{
		"type":   "api",
		"url":    "https://api.example.com/items",
		"fields": []string{"name"},
	})
	require.NoError(t, err)

	ds, err := f.store.GetDataset(ctx, "ds-1")
	require.NoError(t, err)
	require.Equal(t, 1, ds.Size, "projection should collapse duplicates")

	payload, err := f.storage.Load(ctx, ds)
	require.NoError(t, err)
	require.NotContains(t, payload.Data[0], "secret")
}

func TestRunWithoutPublisher(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{result: collector.FetchResult{Kind: collector.ResultEmpty}}
	store := storememory.NewDatasetStore()
	storage := storagememory.NewStorage()
	dispatcher := source.NewDispatcher(
		source.NewAPISource(fetcher),
		source.NewDatabaseSource(),
		source.NewWebSource(fetcher, nil, nil, nil),
		source.NewStreamSource(nil),
		source.Config{},
		nil,
	)
	runner := NewRunner(store, storage, nil, dispatcher, fixedClock{now: time.Now()}, nil)

	ctx := context.Background()
	seedDataset(t, store, "ds-1")
	require.NoError(t, runner.Run(ctx, "ds-1", map[string]any{
		"type": "api",
		"url":  "https://api.example.com/items",
	}))

	ds, err := store.GetDataset(ctx, "ds-1")
	require.NoError(t, err)
	require.Equal(t, collector.DatasetStatusCompleted, ds.Status)
	require.Equal(t, 0, ds.Size)
}
