package source

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Drivers for the relational branches.
	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dataforge/collector/internal/collector"
)

// DatabaseSource executes a query against a relational or document store
// and returns the rows as records. This is a blocking strategy; the
// dispatcher offloads it onto the bounded worker pool.
type DatabaseSource struct {
	// openSQL and connectMongo are swappable for tests.
	openSQL      func(driver, dsn string) (*sql.DB, error)
	connectMongo func(ctx context.Context, uri string) (*mongo.Client, error)
}

// NewDatabaseSource builds a DatabaseSource with real drivers.
func NewDatabaseSource() *DatabaseSource {
	return &DatabaseSource{
		openSQL: sql.Open,
		connectMongo: func(ctx context.Context, uri string) (*mongo.Client, error) {
			return mongo.Connect(ctx, options.Client().ApplyURI(uri))
		},
	}
}

// Collect branches on db_config.type.
func (s *DatabaseSource) Collect(ctx context.Context, cfg collector.SourceConfig) ([]collector.Record, error) {
	switch cfg.DB.Type {
	case "mysql":
		return s.collectSQL(ctx, "mysql", cfg.DB.ConnectionString, cfg.DB.Query)
	case "sqlite":
		return s.collectSQL(ctx, "sqlite", cfg.DB.DatabasePath, cfg.DB.Query)
	case "mongodb":
		return s.collectMongo(ctx, cfg.DB)
	default:
		return nil, collector.NewConfigError("db_config.type", "unsupported database type %q", cfg.DB.Type)
	}
}

func (s *DatabaseSource) collectSQL(ctx context.Context, driver, dsn, query string) ([]collector.Record, error) {
	if dsn == "" {
		return nil, collector.NewConfigError("db_config", "connection target required for %s sources", driver)
	}
	if query == "" {
		return nil, collector.NewConfigError("db_config.query", "required for %s sources", driver)
	}

	db, err := s.openSQL(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]collector.Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var records []collector.Record
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		record := make(collector.Record, len(columns))
		for i, col := range columns {
			record[col] = normalizeSQLValue(values[i])
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return records, nil
}

func normalizeSQLValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case int64:
		return float64(val)
	default:
		return val
	}
}

func (s *DatabaseSource) collectMongo(ctx context.Context, db collector.DBConfig) ([]collector.Record, error) {
	if db.ConnectionString == "" {
		return nil, collector.NewConfigError("db_config.connection_string", "required for mongodb sources")
	}
	if db.Database == "" || db.Collection == "" {
		return nil, collector.NewConfigError("db_config", "database and collection required for mongodb sources")
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := s.connectMongo(connectCtx, db.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	defer func() {
		_ = client.Disconnect(ctx)
	}()

	filter := bson.M{}
	if db.Query != "" {
		if err := bson.UnmarshalExtJSON([]byte(db.Query), true, &filter); err != nil {
			return nil, collector.NewConfigError("db_config.query", "invalid mongodb query document: %v", err)
		}
	}

	cursor, err := client.Database(db.Database).Collection(db.Collection).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("mongodb find: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodb decode: %w", err)
	}

	records := make([]collector.Record, 0, len(docs))
	for _, doc := range docs {
		records = append(records, collector.Record(doc))
	}
	return records, nil
}
