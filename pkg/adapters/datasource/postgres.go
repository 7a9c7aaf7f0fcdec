package datasource

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/datachat-engine/pkg/apperrors"
	"github.com/ekaya-inc/datachat-engine/pkg/models"
)

// postgresConnector implements Connector for PostgreSQL datasources.
type postgresConnector struct {
	pool *pgxpool.Pool
}

var _ Connector = (*postgresConnector)(nil)

func newPostgresConnector(ctx context.Context, cfg *models.DBConfig, maxConns int32) (*postgresConnector, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=prefer",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, apperrors.NewDatabaseConnectionError(err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, apperrors.NewDatabaseConnectionError(err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperrors.NewDatabaseConnectionError(err)
	}

	return &postgresConnector{pool: pool}, nil
}

func (c *postgresConnector) ListTables(ctx context.Context) ([]string, error) {
	const query = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
		  AND table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		ORDER BY table_name
	`

	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return nil, apperrors.NewSchemaRetrievalError(fmt.Errorf("query tables: %w", err))
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperrors.NewSchemaRetrievalError(fmt.Errorf("scan table: %w", err))
		}
		tables = append(tables, name)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.NewSchemaRetrievalError(fmt.Errorf("iterate tables: %w", err))
	}

	return tables, nil
}

func (c *postgresConnector) GetColumns(ctx context.Context, table string) ([]Column, error) {
	const query = `
		SELECT column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_name = $1
		ORDER BY ordinal_position
	`

	rows, err := c.pool.Query(ctx, query, table)
	if err != nil {
		return nil, apperrors.NewSchemaRetrievalError(fmt.Errorf("query columns for %s: %w", table, err))
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.Name, &col.DataType, &col.IsNullable); err != nil {
			return nil, apperrors.NewSchemaRetrievalError(fmt.Errorf("scan column: %w", err))
		}
		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.NewSchemaRetrievalError(fmt.Errorf("iterate columns: %w", err))
	}

	return columns, nil
}

func (c *postgresConnector) SampleRow(ctx context.Context, table string) (map[string]any, error) {
	query := fmt.Sprintf("SELECT * FROM %s LIMIT 1", pgx.Identifier{table}.Sanitize())

	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	values, err := rows.Values()
	if err != nil {
		return nil, fmt.Errorf("read sample values: %w", err)
	}

	fieldDescs := rows.FieldDescriptions()
	sample := make(map[string]any, len(fieldDescs))
	for i, fd := range fieldDescs {
		sample[string(fd.Name)] = values[i]
	}

	return sample, nil
}

func (c *postgresConnector) Query(ctx context.Context, sqlQuery string) (*QueryResult, error) {
	queryToRun := sqlQuery
	if isSelectShaped(sqlQuery) {
		queryToRun = fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", sqlQuery, MaxQueryLimit)
	}

	rows, err := c.pool.Query(ctx, queryToRun)
	if err != nil {
		return nil, apperrors.NewQueryExecutionError(sqlQuery, err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = string(fd.Name)
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, apperrors.NewQueryExecutionError(sqlQuery, fmt.Errorf("read row values: %w", err))
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col] = values[i]
		}
		resultRows = append(resultRows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionError(sqlQuery, err)
	}

	return &QueryResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

func (c *postgresConnector) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

func (c *postgresConnector) Close() error {
	c.pool.Close()
	return nil
}

// isSelectShaped reports whether a statement can be wrapped in a row-limiting
// subquery. SHOW/DESCRIBE/EXPLAIN and DML must run unmodified.
func isSelectShaped(sqlQuery string) bool {
	trimmed := strings.ToUpper(strings.TrimSpace(sqlQuery))
	return strings.HasPrefix(trimmed, "SELECT") || strings.HasPrefix(trimmed, "WITH")
}
