package sql

import (
	"errors"
	"testing"
)

func TestValidateAndNormalize_StripsTrailingSemicolon(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no semicolon", "SELECT * FROM orders", "SELECT * FROM orders"},
		{"trailing semicolon", "SELECT * FROM orders;", "SELECT * FROM orders"},
		{"semicolon with whitespace", "SELECT * FROM orders ;  \n", "SELECT * FROM orders"},
		{"empty", "", ""},
		{"whitespace only", "   \n\t", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateAndNormalize(tt.input)
			if result.Error != nil {
				t.Fatalf("unexpected error: %v", result.Error)
			}
			if result.NormalizedSQL != tt.want {
				t.Errorf("got %q, want %q", result.NormalizedSQL, tt.want)
			}
		})
	}
}

func TestValidateAndNormalize_RejectsMultipleStatements(t *testing.T) {
	tests := []string{
		"SELECT 1; SELECT 2",
		"SELECT 1; DROP TABLE orders",
		"SELECT 1;\nDELETE FROM orders;",
	}

	for _, input := range tests {
		result := ValidateAndNormalize(input)
		if !errors.Is(result.Error, ErrMultipleStatements) {
			t.Errorf("ValidateAndNormalize(%q) error = %v, want ErrMultipleStatements", input, result.Error)
		}
	}
}

func TestValidateAndNormalize_SemicolonsInsideStringsAllowed(t *testing.T) {
	tests := []string{
		`SELECT * FROM orders WHERE note = 'a;b'`,
		`SELECT * FROM orders WHERE note = 'it''s; fine'`,
		`SELECT "weird;column" FROM orders`,
	}

	for _, input := range tests {
		result := ValidateAndNormalize(input)
		if result.Error != nil {
			t.Errorf("ValidateAndNormalize(%q) unexpected error: %v", input, result.Error)
		}
	}
}

func TestValidateAndNormalize_StatementAllowlist(t *testing.T) {
	allowed := []string{
		"SELECT * FROM orders",
		"select count(*) from orders",
		"WITH t AS (SELECT 1) SELECT * FROM t",
		"SHOW TABLES",
		"EXPLAIN SELECT 1",
		"DESCRIBE orders",
		"INSERT INTO audit VALUES (1)",
		"UPDATE orders SET status = 'done'",
		"DELETE FROM orders WHERE id = 1",
	}
	for _, input := range allowed {
		result := ValidateAndNormalize(input)
		if result.Error != nil {
			t.Errorf("ValidateAndNormalize(%q) unexpected error: %v", input, result.Error)
		}
	}

	rejected := []string{
		"DROP TABLE orders",
		"TRUNCATE orders",
		"GRANT ALL ON orders TO public",
		"CREATE TABLE t (id int)",
		"SELECTION_LOG FROM x",
	}
	for _, input := range rejected {
		result := ValidateAndNormalize(input)
		if !errors.Is(result.Error, ErrDisallowedStatement) {
			t.Errorf("ValidateAndNormalize(%q) error = %v, want ErrDisallowedStatement", input, result.Error)
		}
	}
}

func TestCheckQuestionForInjection(t *testing.T) {
	if result := CheckQuestionForInjection("How many orders were placed last month?"); result != nil {
		t.Errorf("expected clean question, got %+v", result)
	}

	result := CheckQuestionForInjection("' OR 1=1 --")
	if result == nil || !result.IsSQLi {
		t.Error("expected injection pattern to be detected")
	}
	if result != nil && result.Fingerprint == "" {
		t.Error("expected non-empty fingerprint")
	}
}
