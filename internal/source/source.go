// Package source routes a normalized source configuration to one of the four
// fetch strategies and post-processes the collected records.
package source

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dataforge/collector/internal/collector"
)

// Fetcher is the request path used by the network strategies. The executor
// satisfies it; tests substitute fakes.
type Fetcher interface {
	Execute(ctx context.Context, url, method string, params, headers map[string]string) (collector.FetchResult, error)
}

// Source is one fetch strategy. The set is closed: api, database, web,
// stream.
type Source interface {
	Collect(ctx context.Context, cfg collector.SourceConfig) ([]collector.Record, error)
}

// ParseConfig builds an immutable SourceConfig from a raw requirement map,
// validating the fields each strategy requires.
func ParseConfig(raw map[string]any) (collector.SourceConfig, error) {
	normalized := normalizeAliases(raw)

	buf, err := json.Marshal(normalized)
	if err != nil {
		return collector.SourceConfig{}, fmt.Errorf("encode source config: %w", err)
	}
	var cfg collector.SourceConfig
	if err := json.Unmarshal(buf, &cfg); err != nil {
		return collector.SourceConfig{}, fmt.Errorf("decode source config: %w", err)
	}

	if cfg.Type == "" {
		cfg.Type = collector.SourceTypeAPI
	}
	if cfg.Method == "" {
		cfg.Method = "GET"
	}
	if cfg.Format == "" {
		cfg.Format = collector.FormatJSON
	}

	if err := validate(cfg); err != nil {
		return collector.SourceConfig{}, err
	}
	return cfg, nil
}

func normalizeAliases(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	if _, ok := out["type"]; !ok {
		if v, ok := out["source_type"]; ok {
			out["type"] = v
		}
	}
	if _, ok := out["url"]; !ok {
		if v, ok := out["api_url"]; ok {
			out["url"] = v
		}
	}
	if _, ok := out["auth"]; !ok {
		if v, ok := out["api_key"]; ok {
			out["auth"] = v
		}
	}
	return out
}

func validate(cfg collector.SourceConfig) error {
	switch cfg.Type {
	case collector.SourceTypeAPI, collector.SourceTypeWeb, collector.SourceTypeStream:
		if cfg.URL == "" {
			return collector.NewConfigError("url", "required for %s sources", cfg.Type)
		}
	case collector.SourceTypeDatabase:
		if cfg.DB.Type == "" {
			return collector.NewConfigError("db_config.type", "required for database sources")
		}
	default:
		return collector.NewConfigError("type", "unsupported source type %q", string(cfg.Type))
	}

	switch cfg.Format {
	case collector.FormatJSON, collector.FormatCSV:
	default:
		return collector.NewConfigError("format", "unsupported data format %q", string(cfg.Format))
	}
	return nil
}

// authHeaders merges configured headers with a bearer token when auth is
// set.
func authHeaders(cfg collector.SourceConfig) map[string]string {
	headers := make(map[string]string, len(cfg.Headers)+1)
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	if cfg.Auth != "" {
		headers["Authorization"] = "Bearer " + cfg.Auth
	}
	return headers
}
