// Package datasource provides adapters for project databases. Each adapter
// owns schema introspection and query execution for one database dialect.
package datasource

import "context"

// MaxQueryLimit is the hard cap on rows returned by Query.
// Protects against unbounded result sets from generated SQL.
const MaxQueryLimit = 1000

// Column describes one column of a datasource table.
type Column struct {
	Name       string `json:"name"`
	DataType   string `json:"data_type"`
	IsNullable bool   `json:"is_nullable"`
}

// QueryResult contains the results of executing a statement.
type QueryResult struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// Connector is the dialect-specific access layer for a project datasource.
// Implementations own their connection and must be closed when evicted.
type Connector interface {
	// ListTables returns the names of all base tables visible to the
	// connection, sorted by name.
	ListTables(ctx context.Context) ([]string, error)

	// GetColumns returns the columns of a table in ordinal position order.
	GetColumns(ctx context.Context, table string) ([]Column, error)

	// SampleRow returns one arbitrary row from the table, or nil when the
	// table is empty.
	SampleRow(ctx context.Context, table string) (map[string]any, error)

	// Query executes a statement and returns its results. SELECT-shaped
	// statements are wrapped with a dialect-specific row cap of
	// MaxQueryLimit; other allowed statements run unmodified.
	Query(ctx context.Context, sqlQuery string) (*QueryResult, error)

	// Ping verifies the connection is healthy.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
