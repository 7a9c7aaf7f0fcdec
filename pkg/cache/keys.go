package cache

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// SchemaKey returns the cache key for a project's schema snapshot. Table
// names are sorted so that the same set of tables always maps to the same
// key regardless of configuration order.
func SchemaKey(projectID uuid.UUID, tableNames []string) string {
	sorted := make([]string, len(tableNames))
	copy(sorted, tableNames)
	sort.Strings(sorted)
	return fmt.Sprintf("schema:%s:%s", projectID, strings.Join(sorted, ","))
}

// SchemaKeyPattern matches every schema snapshot key for a project.
func SchemaKeyPattern(projectID uuid.UUID) string {
	return fmt.Sprintf("schema:%s:*", projectID)
}

// BusinessRuleKey returns the cache key for a project's business rule.
func BusinessRuleKey(projectID uuid.UUID) string {
	return fmt.Sprintf("business-rule:%s", projectID)
}

// TablesKey returns the cache key for a project's live table list.
func TablesKey(projectID uuid.UUID) string {
	return fmt.Sprintf("tables:%s", projectID)
}
