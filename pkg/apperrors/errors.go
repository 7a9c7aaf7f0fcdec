// Package apperrors defines the typed error taxonomy for datachat-engine.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// DatabaseConnectionError indicates a project datasource could not be reached.
type DatabaseConnectionError struct {
	Cause error
}

func (e *DatabaseConnectionError) Error() string {
	return fmt.Sprintf("database connection failed: %v", e.Cause)
}

func (e *DatabaseConnectionError) Unwrap() error { return e.Cause }

// NewDatabaseConnectionError wraps err as a connection failure.
func NewDatabaseConnectionError(err error) *DatabaseConnectionError {
	return &DatabaseConnectionError{Cause: err}
}

// SchemaRetrievalError indicates table or column metadata could not be fetched.
type SchemaRetrievalError struct {
	Cause error
}

func (e *SchemaRetrievalError) Error() string {
	return fmt.Sprintf("schema retrieval failed: %v", e.Cause)
}

func (e *SchemaRetrievalError) Unwrap() error { return e.Cause }

// NewSchemaRetrievalError wraps err as a schema retrieval failure.
func NewSchemaRetrievalError(err error) *SchemaRetrievalError {
	return &SchemaRetrievalError{Cause: err}
}

// QueryExecutionError indicates a generated statement was rejected or failed
// to run. SQL carries the offending statement for self-correction prompts and
// for the query log.
type QueryExecutionError struct {
	SQL   string
	Cause error
}

func (e *QueryExecutionError) Error() string {
	if e.SQL != "" {
		return fmt.Sprintf("query execution failed: %v (query: %s)", e.Cause, e.SQL)
	}
	return fmt.Sprintf("query execution failed: %v", e.Cause)
}

func (e *QueryExecutionError) Unwrap() error { return e.Cause }

// NewQueryExecutionError wraps err as an execution failure carrying the statement.
func NewQueryExecutionError(sql string, err error) *QueryExecutionError {
	return &QueryExecutionError{SQL: sql, Cause: err}
}

// AIServiceError indicates a language-model gateway could not be constructed
// or a model call failed.
type AIServiceError struct {
	Provider string
	Cause    error
}

func (e *AIServiceError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("AI service error (%s): %v", e.Provider, e.Cause)
	}
	return fmt.Sprintf("AI service error: %v", e.Cause)
}

func (e *AIServiceError) Unwrap() error { return e.Cause }

// NewAIServiceError wraps err as a gateway failure.
func NewAIServiceError(provider string, err error) *AIServiceError {
	return &AIServiceError{Provider: provider, Cause: err}
}

// CacheError indicates a cache backend round trip failed. It is absorbed by
// the providers, which fall back to live computation; it never reaches a caller.
type CacheError struct {
	Op    string
	Key   string
	Cause error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %q: %v", e.Op, e.Key, e.Cause)
}

func (e *CacheError) Unwrap() error { return e.Cause }

// NewCacheError wraps err as a cache backend failure.
func NewCacheError(op, key string, err error) *CacheError {
	return &CacheError{Op: op, Key: key, Cause: err}
}

// IsDomainError reports whether err is one of the four typed failures the
// orchestrator converts to a user-facing "Error: ..." message. Cache errors
// are deliberately excluded; they must never propagate this far.
func IsDomainError(err error) bool {
	var connErr *DatabaseConnectionError
	var schemaErr *SchemaRetrievalError
	var queryErr *QueryExecutionError
	var aiErr *AIServiceError
	return errors.As(err, &connErr) ||
		errors.As(err, &schemaErr) ||
		errors.As(err, &queryErr) ||
		errors.As(err, &aiErr)
}
