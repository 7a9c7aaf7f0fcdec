// Package logging provides helpers for safe log output.
package logging

import (
	"regexp"
)

const (
	// MaxQueryLogLength is the maximum length of a query to log.
	MaxQueryLogLength = 200
	// RedactedText is the replacement text for sensitive data.
	RedactedText = "[REDACTED]"
)

var (
	// Matches password=xxx, pwd=xxx, pass=xxx (until next delimiter).
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Matches potential API keys.
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{20,}`)

	// Matches connection string credentials (user:pass@host format).
	connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)
)

// SanitizeConnectionString removes sensitive data from connection strings.
// Use this before logging any connection string.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizeError sanitizes error messages that might contain sensitive data.
// Use this before logging any error from database operations.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// TruncateQuery shortens a SQL statement for log output.
func TruncateQuery(query string) string {
	if len(query) <= MaxQueryLogLength {
		return query
	}
	return query[:MaxQueryLogLength] + "..."
}
