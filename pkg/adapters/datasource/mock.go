package datasource

import (
	"context"
)

// MockConnector is a configurable mock for testing schema retrieval and
// query execution. Set the function fields to control behavior in tests.
type MockConnector struct {
	ListTablesFunc func(ctx context.Context) ([]string, error)
	GetColumnsFunc func(ctx context.Context, table string) ([]Column, error)
	SampleRowFunc  func(ctx context.Context, table string) (map[string]any, error)
	QueryFunc      func(ctx context.Context, sqlQuery string) (*QueryResult, error)
	PingFunc       func(ctx context.Context) error

	// Call tracking for verification
	ListTablesCalls int
	GetColumnsCalls int
	SampleRowCalls  int
	QueryCalls      int
	CloseCalls      int

	// Queries records every statement passed to Query, in order.
	Queries []string
}

var _ Connector = (*MockConnector)(nil)

// NewMockConnector creates a new mock connector.
func NewMockConnector() *MockConnector {
	return &MockConnector{}
}

func (m *MockConnector) ListTables(ctx context.Context) ([]string, error) {
	m.ListTablesCalls++
	if m.ListTablesFunc != nil {
		return m.ListTablesFunc(ctx)
	}
	return nil, nil
}

func (m *MockConnector) GetColumns(ctx context.Context, table string) ([]Column, error) {
	m.GetColumnsCalls++
	if m.GetColumnsFunc != nil {
		return m.GetColumnsFunc(ctx, table)
	}
	return nil, nil
}

func (m *MockConnector) SampleRow(ctx context.Context, table string) (map[string]any, error) {
	m.SampleRowCalls++
	if m.SampleRowFunc != nil {
		return m.SampleRowFunc(ctx, table)
	}
	return nil, nil
}

func (m *MockConnector) Query(ctx context.Context, sqlQuery string) (*QueryResult, error) {
	m.QueryCalls++
	m.Queries = append(m.Queries, sqlQuery)
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, sqlQuery)
	}
	return &QueryResult{Rows: []map[string]any{}}, nil
}

func (m *MockConnector) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

func (m *MockConnector) Close() error {
	m.CloseCalls++
	return nil
}
