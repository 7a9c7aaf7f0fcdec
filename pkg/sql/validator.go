// Package sql provides validation for model-generated SQL.
package sql

import (
	"errors"
	"strings"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")

	// ErrDisallowedStatement indicates the query does not start with an
	// allowed SQL keyword.
	ErrDisallowedStatement = errors.New("statement type not allowed")
)

// allowedPrefixes are the statement keywords a generated query may start
// with. Anything else is rejected before execution.
var allowedPrefixes = []string{
	"SELECT", "INSERT", "UPDATE", "DELETE", "WITH", "SHOW", "DESCRIBE", "EXPLAIN",
}

// ValidationResult contains the normalized SQL and any validation error.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize prepares model-generated SQL for execution:
//
// 1. Strip trailing semicolon and whitespace (normalize)
// 2. Reject multiple statements (any remaining semicolons outside string literals)
// 3. Reject statements that do not start with an allowed keyword
func ValidateAndNormalize(sqlQuery string) ValidationResult {
	sqlQuery = strings.TrimSpace(sqlQuery)

	if sqlQuery == "" {
		return ValidationResult{NormalizedSQL: sqlQuery}
	}

	normalized := stripTrailingSemicolon(sqlQuery)

	if hasSemicolonOutsideStrings(normalized) {
		return ValidationResult{Error: ErrMultipleStatements}
	}

	if !hasAllowedPrefix(normalized) {
		return ValidationResult{Error: ErrDisallowedStatement}
	}

	return ValidationResult{NormalizedSQL: normalized}
}

// hasAllowedPrefix reports whether the statement starts with one of the
// allowed keywords, case-insensitively.
func hasAllowedPrefix(sqlQuery string) bool {
	upper := strings.ToUpper(strings.TrimSpace(sqlQuery))
	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(upper, prefix) {
			rest := upper[len(prefix):]
			// Keyword must be a complete word, not a prefix of an
			// identifier like SELECTION_LOG.
			if rest == "" || strings.ContainsRune(" \t\n\r(", rune(rest[0])) {
				return true
			}
		}
	}
	return false
}

// hasSemicolonOutsideStrings returns true if the SQL contains any semicolon
// outside of string literals.
func hasSemicolonOutsideStrings(sqlQuery string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)

	state := stateNormal
	prevChar := rune(0)

	for _, char := range sqlQuery {
		switch state {
		case stateNormal:
			switch char {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			// Handle both backslash escape (\') and SQL standard escape ('').
			// A doubled quote exits and immediately re-enters the string,
			// which keeps the scan correct.
			if char == '\'' && prevChar != '\\' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if char == '"' && prevChar != '\\' {
				state = stateNormal
			}
		}
		prevChar = char
	}

	return false
}

// stripTrailingSemicolon removes a trailing semicolon and surrounding whitespace.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")

	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimSuffix(sqlQuery, ";")
		sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	}

	return sqlQuery
}
