package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dataforge/collector/internal/collector"
)

func apiConfig(format collector.DataFormat) collector.SourceConfig {
	return collector.SourceConfig{
		Type:   collector.SourceTypeAPI,
		URL:    "https://api.example.com/items",
		Method: "GET",
		Format: format,
	}
}

func TestAPICollectDataKeyEnvelope(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{result: collector.FetchResult{
		Kind: collector.ResultJSON,
		JSON: map[string]any{"data": []any{
			map[string]any{"id": float64(1)},
			map[string]any{"id": float64(2)},
		}},
	}}
	src := NewAPISource(fetcher)

	records, err := src.Collect(context.Background(), apiConfig(collector.FormatJSON))
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, float64(1), records[0]["id"])
}

func TestAPICollectDataKeyNonListUnwrapped(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{result: collector.FetchResult{
		Kind: collector.ResultJSON,
		JSON: map[string]any{"data": map[string]any{"id": float64(7)}},
	}}
	src := NewAPISource(fetcher)

	records, err := src.Collect(context.Background(), apiConfig(collector.FormatJSON))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, float64(7), records[0]["id"])
	require.NotContains(t, records[0], "data", "envelope key must be stripped")
}

func TestAPICollectBareList(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{result: collector.FetchResult{
		Kind: collector.ResultJSON,
		JSON: []any{
			map[string]any{"name": "a"},
			"loose string",
		},
	}}
	src := NewAPISource(fetcher)

	records, err := src.Collect(context.Background(), apiConfig(collector.FormatJSON))
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "a", records[0]["name"])
	require.Equal(t, "loose string", records[1]["value"])
}

func TestAPICollectBareObjectWrapped(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{result: collector.FetchResult{
		Kind: collector.ResultJSON,
		JSON: map[string]any{"id": float64(7), "name": "solo"},
	}}
	src := NewAPISource(fetcher)

	records, err := src.Collect(context.Background(), apiConfig(collector.FormatJSON))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "solo", records[0]["name"])
}

func TestAPICollectEmptyResponse(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{result: collector.FetchResult{Kind: collector.ResultEmpty}}
	src := NewAPISource(fetcher)

	records, err := src.Collect(context.Background(), apiConfig(collector.FormatJSON))
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestAPICollectCSV(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{result: collector.FetchResult{
		Kind: collector.ResultText,
		Text: "name,price\nwidget,9.5\ngadget,\n",
	}}
	src := NewAPISource(fetcher)

	records, err := src.Collect(context.Background(), apiConfig(collector.FormatCSV))
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "widget", records[0]["name"])
	require.Equal(t, 9.5, records[0]["price"])
	require.Nil(t, records[1]["price"])
}

func TestAPICollectRejectsNonGET(t *testing.T) {
	t.Parallel()

	src := NewAPISource(&fakeFetcher{})
	cfg := apiConfig(collector.FormatJSON)
	cfg.Method = "POST"

	_, err := src.Collect(context.Background(), cfg)
	require.Error(t, err)
	require.True(t, collector.IsConfigError(err))
}

func TestAPICollectForwardsAuthHeader(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{result: collector.FetchResult{Kind: collector.ResultEmpty}}
	src := NewAPISource(fetcher)
	cfg := apiConfig(collector.FormatJSON)
	cfg.Auth = "tok"
	cfg.Params = map[string]string{"page": "1"}

	_, err := src.Collect(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, "Bearer tok", fetcher.headers["Authorization"])
	require.Equal(t, "1", fetcher.params["page"])
}
