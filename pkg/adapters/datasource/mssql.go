package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/ekaya-inc/datachat-engine/pkg/apperrors"
	"github.com/ekaya-inc/datachat-engine/pkg/models"
)

// mssqlConnector implements Connector for SQL Server datasources.
type mssqlConnector struct {
	db *sql.DB
}

var _ Connector = (*mssqlConnector)(nil)

func newMSSQLConnector(ctx context.Context, cfg *models.DBConfig, maxConns int32) (*mssqlConnector, error) {
	u := &url.URL{
		Scheme: "sqlserver",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	}
	q := url.Values{}
	q.Set("database", cfg.Database)
	u.RawQuery = q.Encode()

	db, err := sql.Open("sqlserver", u.String())
	if err != nil {
		return nil, apperrors.NewDatabaseConnectionError(err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(int(maxConns))
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperrors.NewDatabaseConnectionError(err)
	}

	return &mssqlConnector{db: db}, nil
}

func (c *mssqlConnector) ListTables(ctx context.Context) ([]string, error) {
	const query = `
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME
	`

	rows, err := c.db.QueryContext(ctx, query)
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

func (c *mssqlConnector) GetColumns(ctx context.Context, table string) ([]Column, error) {
	const query = `
		SELECT COLUMN_NAME, DATA_TYPE,
		       CASE WHEN IS_NULLABLE = 'YES' THEN 1 ELSE 0 END
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_NAME = @p1
		ORDER BY ORDINAL_POSITION
	`

	rows, err := c.db.QueryContext(ctx, query, sql.Named("p1", table))
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

func (c *mssqlConnector) SampleRow(ctx context.Context, table string) (map[string]any, error) {
	query := fmt.Sprintf("SELECT TOP 1 * FROM %s", quoteMSSQLIdentifier(table))

	result, err := c.scanRows(ctx, query)
	if err != nil {
		return nil, err
	}
	if result.RowCount == 0 {
		return nil, nil
	}
	return result.Rows[0], nil
}

func (c *mssqlConnector) Query(ctx context.Context, sqlQuery string) (*QueryResult, error) {
	queryToRun := sqlQuery
	if isSelectShaped(sqlQuery) {
		queryToRun = fmt.Sprintf("SELECT TOP (%d) * FROM (%s) AS _limited", MaxQueryLimit, sqlQuery)
	}

	result, err := c.scanRows(ctx, queryToRun)
	if err != nil {
		return nil, apperrors.NewQueryExecutionError(sqlQuery, err)
	}
	return result, nil
}

// scanRows runs a statement and collects all rows into maps, converting
// []byte values of string-typed columns to Go strings.
func (c *mssqlConnector) scanRows(ctx context.Context, query string) (*QueryResult, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columnNames, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("get column types: %w", err)
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columnNames))
		valuePtrs := make([]any, len(columnNames))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		rowMap := make(map[string]any, len(columnNames))
		for i, col := range columnNames {
			val := values[i]
			if b, ok := val.([]byte); ok && isMSSQLStringType(columnTypes[i].DatabaseTypeName()) {
				val = string(b)
			}
			rowMap[col] = val
		}
		resultRows = append(resultRows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &QueryResult{
		Columns:  columnNames,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

func (c *mssqlConnector) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *mssqlConnector) Close() error {
	return c.db.Close()
}

// quoteMSSQLIdentifier quotes an identifier with brackets, doubling any
// closing brackets inside the name.
func quoteMSSQLIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func isMSSQLStringType(dbType string) bool {
	switch strings.ToUpper(dbType) {
	case "CHAR", "VARCHAR", "NCHAR", "NVARCHAR", "TEXT", "NTEXT":
		return true
	default:
		return false
	}
}
