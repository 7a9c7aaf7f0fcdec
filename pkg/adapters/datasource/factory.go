package datasource

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/datachat-engine/pkg/models"
)

// NewConnector creates a Connector for the configured datasource type.
// Unsupported types fail at construction.
func NewConnector(ctx context.Context, cfg *models.DBConfig, maxConns int32) (Connector, error) {
	switch cfg.EffectiveType() {
	case models.DatasourceTypePostgres:
		return newPostgresConnector(ctx, cfg, maxConns)
	case models.DatasourceTypeMSSQL:
		return newMSSQLConnector(ctx, cfg, maxConns)
	default:
		return nil, fmt.Errorf("unsupported datasource type %q (supported: postgres, mssql)", cfg.Type)
	}
}
