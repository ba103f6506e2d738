package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishRecordsEvents(t *testing.T) {
	t.Parallel()

	publisher := NewPublisher()
	ctx := context.Background()

	id, err := publisher.Publish(ctx, "dataset.collected", map[string]any{"dataset_id": "ds-1"})
	require.NoError(t, err)
	require.Equal(t, "msg-1", id)

	id, err = publisher.Publish(ctx, "dataset.collected", map[string]any{"dataset_id": "ds-2"})
	require.NoError(t, err)
	require.Equal(t, "msg-2", id)

	events := publisher.Events()
	require.Len(t, events, 2)
	require.Equal(t, "dataset.collected", events[0].Topic)

	// Events returns a copy.
	events[0].Topic = "mutated"
	require.Equal(t, "dataset.collected", publisher.Events()[0].Topic)
}
