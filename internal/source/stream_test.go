package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/dataforge/collector/internal/collector"
)

var testUpgrader = websocket.Upgrader{}

func streamConfig(url string) collector.SourceConfig {
	return collector.SourceConfig{
		Type:   collector.SourceTypeStream,
		URL:    url,
		Stream: collector.StreamConfig{Type: "websocket"},
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newStreamServer(t *testing.T, frames [][]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStreamCollectBuffersFrames(t *testing.T) {
	t.Parallel()

	srv := newStreamServer(t, [][]byte{
		[]byte(`{"symbol":"ABC","price":10.5}`),
		[]byte(`not json at all`),
		[]byte(`{"symbol":"DEF","price":11}`),
	})

	src := NewStreamSource(nil)
	records, err := src.Collect(context.Background(), streamConfig(wsURL(srv)))
	require.NoError(t, err)
	require.Len(t, records, 2, "undecodable frames should be skipped")
	require.Equal(t, "ABC", records[0]["symbol"])
	require.Equal(t, "DEF", records[1]["symbol"])
}

func TestStreamConsumeHandlerErrorTerminates(t *testing.T) {
	t.Parallel()

	srv := newStreamServer(t, [][]byte{
		[]byte(`{"n":1}`),
		[]byte(`{"n":2}`),
	})

	src := NewStreamSource(nil)
	var seen int
	err := src.Consume(context.Background(), streamConfig(wsURL(srv)),
		func(context.Context, collector.Record) error {
			seen++
			return errors.New("sink full")
		})
	require.Error(t, err)
	require.Equal(t, 1, seen)
}

func TestStreamConsumeRespectsCancellation(t *testing.T) {
	t.Parallel()

	// A server that keeps the connection open without sending anything.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(5 * time.Second)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	src := NewStreamSource(nil)
	start := time.Now()
	err := src.Consume(ctx, streamConfig(wsURL(srv)),
		func(context.Context, collector.Record) error { return nil })
	require.Error(t, err)
	require.Less(t, time.Since(start), 3*time.Second)
}

func TestStreamRejectsUnknownStreamType(t *testing.T) {
	t.Parallel()

	src := NewStreamSource(nil)
	cfg := streamConfig("ws://example.com/feed")
	cfg.Stream.Type = "sse"

	err := src.Consume(context.Background(), cfg,
		func(context.Context, collector.Record) error { return nil })
	require.Error(t, err)
	require.True(t, collector.IsConfigError(err))
}

func TestStreamRequiresHandler(t *testing.T) {
	t.Parallel()

	src := NewStreamSource(nil)
	err := src.Consume(context.Background(), streamConfig("ws://example.com/feed"), nil)
	require.Error(t, err)
}
