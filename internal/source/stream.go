package source

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dataforge/collector/internal/collector"
	"github.com/dataforge/collector/internal/metrics"
)

// StreamSource consumes a persistent websocket stream, decoding each text
// frame and handing it to the caller's handler. The call does not return
// until the stream ends, errors, or the context finishes.
type StreamSource struct {
	dialer *websocket.Dialer
	logger *zap.Logger
}

// NewStreamSource builds a StreamSource.
func NewStreamSource(logger *zap.Logger) *StreamSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamSource{dialer: websocket.DefaultDialer, logger: logger}
}

// Collect buffers the stream into records until it ends. Used when a stream
// source is dispatched without a caller-supplied handler.
func (s *StreamSource) Collect(ctx context.Context, cfg collector.SourceConfig) ([]collector.Record, error) {
	var records []collector.Record
	err := s.Consume(ctx, cfg, func(_ context.Context, record collector.Record) error {
		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Consume opens the websocket connection and invokes handler for every text
// frame until close, error, or context cancellation. A handler error
// terminates the loop.
func (s *StreamSource) Consume(ctx context.Context, cfg collector.SourceConfig, handler collector.StreamHandler) error {
	if cfg.Stream.Type != "websocket" {
		return collector.NewConfigError("stream_config.type", "unsupported stream type %q", cfg.Stream.Type)
	}
	if handler == nil {
		return fmt.Errorf("stream handler is required")
	}

	conn, resp, err := s.dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial websocket %s: %w", cfg.URL, err)
	}
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	defer conn.Close()

	// Unblock ReadMessage when the caller cancels.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("stream canceled: %w", ctx.Err())
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			metrics.ObserveStreamFrame("error")
			return fmt.Errorf("read stream frame: %w", err)
		}
		if msgType != websocket.TextMessage {
			metrics.ObserveStreamFrame("skipped")
			continue
		}

		var record collector.Record
		if err := json.Unmarshal(payload, &record); err != nil {
			metrics.ObserveStreamFrame("decode_error")
			s.logger.Warn("undecodable stream frame", zap.Error(err))
			continue
		}
		metrics.ObserveStreamFrame("ok")
		if err := handler(ctx, record); err != nil {
			return fmt.Errorf("stream handler: %w", err)
		}
	}
}
