package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dataforge/collector/internal/collector"
)

// APISource fetches records from an HTTP API through the request executor.
type APISource struct {
	fetcher Fetcher
}

// NewAPISource builds an APISource.
func NewAPISource(fetcher Fetcher) *APISource {
	return &APISource{fetcher: fetcher}
}

// Collect performs a GET against the configured URL and normalizes the
// response into records. Non-GET methods are rejected.
func (s *APISource) Collect(ctx context.Context, cfg collector.SourceConfig) ([]collector.Record, error) {
	if !strings.EqualFold(cfg.Method, "GET") {
		return nil, collector.NewConfigError("method", "unsupported request method %q", cfg.Method)
	}

	result, err := s.fetcher.Execute(ctx, cfg.URL, "GET", cfg.Params, authHeaders(cfg))
	if err != nil {
		return nil, err
	}

	if cfg.Format == collector.FormatCSV {
		return parseCSV(strings.NewReader(result.Text))
	}
	return NormalizeJSON(result)
}

// NormalizeJSON coerces any JSON response shape into a flat record list: a
// dict with a "data" key yields that value (wrapped as one element when it
// is not a list), a bare list yields itself, and a bare object is wrapped
// as a one-element list.
func NormalizeJSON(result collector.FetchResult) ([]collector.Record, error) {
	if result.IsEmpty() {
		return nil, nil
	}
	if result.Kind == collector.ResultText {
		// Some APIs serve JSON without the content type; try to keep the raw
		// text as a single record rather than failing.
		return []collector.Record{{"value": result.Text}}, nil
	}

	switch v := result.JSON.(type) {
	case map[string]any:
		if inner, ok := v["data"]; ok {
			if list, ok := inner.([]any); ok {
				return coerceRecords(list), nil
			}
			// Unwrap a non-list "data" value and treat it as the single
			// payload element.
			return coerceRecords([]any{inner}), nil
		}
		return []collector.Record{collector.Record(v)}, nil
	case []any:
		return coerceRecords(v), nil
	case nil:
		return nil, nil
	default:
		return []collector.Record{{"value": v}}, nil
	}
}

func coerceRecords(items []any) []collector.Record {
	records := make([]collector.Record, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			records = append(records, collector.Record(m))
			continue
		}
		records = append(records, collector.Record{"value": item})
	}
	return records
}

// parseCSV reads a header row plus data rows into records, converting
// numeric-looking cells to float64.
func parseCSV(r io.Reader) ([]collector.Record, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var records []collector.Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		record := make(collector.Record, len(header))
		for i, col := range header {
			if i >= len(row) {
				record[col] = nil
				continue
			}
			record[col] = coerceCell(row[i])
		}
		records = append(records, record)
	}
	return records, nil
}

func coerceCell(cell string) any {
	trimmed := strings.TrimSpace(cell)
	if trimmed == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	return trimmed
}
