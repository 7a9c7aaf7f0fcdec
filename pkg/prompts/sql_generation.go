// Package prompts builds the model prompts used by the assistant pipeline.
package prompts

import (
	"fmt"
	"strings"
)

// NoRelevantDataSentinel is the marker the SQL generation model returns when
// no configured table is relevant to the question. Distinct from a query
// that runs but returns zero rows.
const NoRelevantDataSentinel = "NO_RELEVANT_DATA"

// SQLGenerationSystemInstruction returns the system instruction for SQL
// generation. dialect names the target database ("PostgreSQL" or
// "SQL Server"); businessRules is an optional pre-formatted rules block
// appended verbatim.
func SQLGenerationSystemInstruction(dialect, businessRules string) string {
	var b strings.Builder

	b.WriteString("Required Output: SQL Query String\n\n")
	b.WriteString("Instructions:\n")
	fmt.Fprintf(&b, "1. Generate a %s query that answers the user's question based on the provided schema\n", dialect)
	b.WriteString("2. Retrieve all relevant information to provide complete context\n")
	b.WriteString("3. Return ONLY the SQL query with no titles, explanations, or markdown\n")
	b.WriteString("4. For text field comparisons, use LOWER() function and wildcards: LOWER(field) LIKE '%value%'\n")
	b.WriteString("5. Quote table and column names when they collide with reserved words\n")
	fmt.Fprintf(&b, "6. If the question is unrelated to the schema, respond with: %q\n", NoRelevantDataSentinel)
	b.WriteString("7. Optimize for readability with proper formatting\n")
	b.WriteString("8. Use JOINs where appropriate if relationships are evident\n")

	if businessRules != "" {
		b.WriteString("\n")
		b.WriteString(businessRules)
		b.WriteString("\n")
	}

	return b.String()
}

// BuildSQLGenerationPrompt assembles the user prompt for SQL generation.
// When lastFailedSQL is non-empty the previously failed statement and its
// error are included so the model can self-correct.
func BuildSQLGenerationPrompt(tableNames []string, schema, chatHistory, question, lastFailedSQL, lastError string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Table Names: %s\n\n", strings.Join(tableNames, ", "))
	fmt.Fprintf(&b, "Schema:\n%s\n", schema)
	fmt.Fprintf(&b, "\nChat History:\n%s\n", chatHistory)

	if lastFailedSQL != "" {
		b.WriteString("\nThe previous attempt failed. Generate a corrected query.\n")
		fmt.Fprintf(&b, "Failed Query:\n%s\n", lastFailedSQL)
		fmt.Fprintf(&b, "Error:\n%s\n", lastError)
	}

	fmt.Fprintf(&b, "\nQuestion: %s", question)

	return b.String()
}
