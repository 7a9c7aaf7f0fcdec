// Package assistant implements the natural-language-to-SQL pipeline:
// context evaluation, schema retrieval, SQL generation and execution,
// response composition, and the orchestrator that sequences them.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datachat-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/datachat-engine/pkg/apperrors"
	"github.com/ekaya-inc/datachat-engine/pkg/cache"
)

// isCacheMiss distinguishes an ordinary miss from a cache backend failure.
func isCacheMiss(err error) bool {
	return errors.Is(err, apperrors.ErrNotFound)
}

// schemaCSVHeader is the first line of every schema snapshot.
const schemaCSVHeader = "Table_Name,Column_Name,Type,Nullable,Sample_Content"

// SchemaProvider builds and memoizes the CSV schema snapshot given to the
// model as grounding. The cache is advisory: any cache failure falls back
// to live retrieval.
type SchemaProvider struct {
	connector datasource.Connector
	cache     cache.Cache
	projectID uuid.UUID
	schemaTTL time.Duration
	tablesTTL time.Duration
	logger    *zap.Logger
}

// NewSchemaProvider creates a schema provider for one project datasource.
func NewSchemaProvider(connector datasource.Connector, c cache.Cache, projectID uuid.UUID, schemaTTL, tablesTTL time.Duration, logger *zap.Logger) *SchemaProvider {
	return &SchemaProvider{
		connector: connector,
		cache:     c,
		projectID: projectID,
		schemaTTL: schemaTTL,
		tablesTTL: tablesTTL,
		logger:    logger.Named("schema"),
	}
}

// GetSchemaCSV returns the schema snapshot for the requested tables: one
// header line, then one line per (table, column) in table-then-ordinal
// order, with one sample value per column when a probe row exists.
// Requested tables missing from the live database are skipped with a
// warning rather than failing the call.
func (p *SchemaProvider) GetSchemaCSV(ctx context.Context, tableNames []string) (string, error) {
	key := cache.SchemaKey(p.projectID, tableNames)

	if cached, err := p.cache.Get(ctx, key); err == nil {
		return cached, nil
	} else if !isCacheMiss(err) {
		p.logger.Warn("schema cache read failed, retrieving live", zap.Error(err))
	}

	available, err := p.GetAvailableTables(ctx)
	if err != nil {
		return "", err
	}
	availableSet := make(map[string]bool, len(available))
	for _, name := range available {
		availableSet[name] = true
	}

	var b strings.Builder
	b.WriteString(schemaCSVHeader)
	b.WriteString("\n")

	for _, table := range tableNames {
		if !availableSet[table] {
			p.logger.Warn("configured table not found in datasource, skipping",
				zap.String("table", table))
			continue
		}

		columns, err := p.connector.GetColumns(ctx, table)
		if err != nil {
			return "", err
		}

		// A failed sample probe leaves the table in the snapshot with
		// empty sample values.
		sample, err := p.connector.SampleRow(ctx, table)
		if err != nil {
			p.logger.Debug("sample row probe failed",
				zap.String("table", table), zap.Error(err))
			sample = nil
		}

		for _, col := range columns {
			nullable := "NO"
			if col.IsNullable {
				nullable = "YES"
			}

			sampleValue := ""
			if sample != nil {
				if v, ok := sample[col.Name]; ok && v != nil {
					sampleValue = sanitizeSampleValue(v)
				}
			}

			b.WriteString(strings.Join([]string{table, col.Name, col.DataType, nullable, sampleValue}, ","))
			b.WriteString("\n")
		}
	}

	result := b.String()

	if err := p.cache.SetWithTTL(ctx, key, result, p.schemaTTL); err != nil {
		p.logger.Warn("schema cache write failed", zap.Error(err))
	}

	return result, nil
}

// GetAvailableTables returns the live table list, cached under its own TTL.
func (p *SchemaProvider) GetAvailableTables(ctx context.Context) ([]string, error) {
	key := cache.TablesKey(p.projectID)

	if cached, err := p.cache.Get(ctx, key); err == nil {
		if cached == "" {
			return nil, nil
		}
		return strings.Split(cached, "\n"), nil
	} else if !isCacheMiss(err) {
		p.logger.Warn("tables cache read failed, listing live", zap.Error(err))
	}

	tables, err := p.connector.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	if err := p.cache.SetWithTTL(ctx, key, strings.Join(tables, "\n"), p.tablesTTL); err != nil {
		p.logger.Warn("tables cache write failed", zap.Error(err))
	}

	return tables, nil
}

// InvalidateSchema drops all cached snapshots and the table list for the
// project. Used by the disconnect endpoint.
func (p *SchemaProvider) InvalidateSchema(ctx context.Context) {
	if err := p.cache.DeletePattern(ctx, cache.SchemaKeyPattern(p.projectID)); err != nil {
		p.logger.Warn("schema cache invalidation failed", zap.Error(err))
	}
	if err := p.cache.Delete(ctx, cache.TablesKey(p.projectID)); err != nil {
		p.logger.Warn("tables cache invalidation failed", zap.Error(err))
	}
}

// sanitizeSampleValue renders a sample value for the CSV snapshot. Commas
// become semicolons so the value cannot break the row format.
func sanitizeSampleValue(v any) string {
	s := fmt.Sprint(v)
	s = strings.ReplaceAll(s, ",", ";")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
