// Package collector defines core types shared across subsystems.
package collector

import (
	"time"
)

// DatasetStatus represents the lifecycle state of a collection attempt.
type DatasetStatus string

// Dataset status values persisted in the dataset store. Transitions are
// strictly forward: pending -> processing -> {completed, failed}.
const (
	DatasetStatusPending    DatasetStatus = "pending"
	DatasetStatusProcessing DatasetStatus = "processing"
	DatasetStatusCompleted  DatasetStatus = "completed"
	DatasetStatusFailed     DatasetStatus = "failed"
)

// IsTerminal reports whether the status is final.
func (s DatasetStatus) IsTerminal() bool {
	switch s {
	case DatasetStatusCompleted, DatasetStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a dataset may move from s to next.
// Transitions only move forward; terminal statuses never change.
func (s DatasetStatus) CanTransition(next DatasetStatus) bool {
	switch s {
	case DatasetStatusPending:
		return next == DatasetStatusProcessing
	case DatasetStatusProcessing:
		return next == DatasetStatusCompleted || next == DatasetStatusFailed
	default:
		return false
	}
}

// Dataset is the handle tracked through a collection run.
type Dataset struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Status       DatasetStatus `json:"status"`
	Size         int           `json:"size"`
	ErrorMessage string        `json:"error_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Record is one row of collected data.
type Record map[string]any

// SourceType identifies the fetch strategy for a source.
type SourceType string

// Supported source types.
const (
	SourceTypeAPI      SourceType = "api"
	SourceTypeDatabase SourceType = "database"
	SourceTypeWeb      SourceType = "web"
	SourceTypeStream   SourceType = "stream"
)

// DataFormat identifies how an API response body is decoded.
type DataFormat string

// Supported response formats.
const (
	FormatJSON DataFormat = "json"
	FormatCSV  DataFormat = "csv"
)

// DBConfig carries the database branch of a source configuration.
type DBConfig struct {
	Type             string `json:"type" mapstructure:"type"`
	ConnectionString string `json:"connection_string" mapstructure:"connection_string"`
	DatabasePath     string `json:"database_path" mapstructure:"database_path"`
	Database         string `json:"database" mapstructure:"database"`
	Collection       string `json:"collection" mapstructure:"collection"`
	Query            string `json:"query" mapstructure:"query"`
}

// CrawlerConfig carries the web-scrape branch of a source configuration.
type CrawlerConfig struct {
	Selector string            `json:"selector" mapstructure:"selector"`
	Fields   map[string]string `json:"fields" mapstructure:"fields"`
	Render   bool              `json:"render" mapstructure:"render"`
}

// StreamConfig carries the stream branch of a source configuration.
type StreamConfig struct {
	Type string `json:"type" mapstructure:"type"`
}

// SourceConfig is the normalized description of where and how to fetch
// data. It is constructed once per collection attempt and immutable after
// construction.
type SourceConfig struct {
	Type    SourceType        `json:"type"`
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Params  map[string]string `json:"params"`
	Auth    string            `json:"auth"`
	Format  DataFormat        `json:"format"`
	DB      DBConfig          `json:"db_config"`
	Crawler CrawlerConfig     `json:"crawler_config"`
	Stream  StreamConfig      `json:"stream_config"`
	Fields  []string          `json:"fields"`
}

// Metadata describes the provenance of a saved payload.
type Metadata struct {
	SourceType  string    `json:"source_type"`
	SourceURL   string    `json:"source_url"`
	CollectedAt time.Time `json:"collected_at"`
}

// Payload is the content handed to the dataset storage collaborator.
type Payload struct {
	Data     []Record `json:"data"`
	Metadata Metadata `json:"metadata"`
}
