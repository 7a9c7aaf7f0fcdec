// Package jsonutil tolerates the loosely typed JSON that language models
// produce in tool-call arguments.
package jsonutil

import (
	"encoding/json"
	"fmt"
)

// FlexibleString converts a json.RawMessage to a string, handling cases
// where models return numbers or booleans instead of strings. Returns empty
// string for null/empty.
func FlexibleString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return fmt.Sprintf("%d", int64(numVal))
		}
		return fmt.Sprintf("%g", numVal)
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return fmt.Sprintf("%t", boolVal)
	}

	return string(raw)
}

// FlexibleStringSlice converts a json.RawMessage holding either an array of
// strings or a single bare string into a slice. Models asked for an array
// sometimes answer with a lone value.
func FlexibleStringSlice(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		values := make([]string, 0, len(items))
		for _, item := range items {
			if v := FlexibleString(item); v != "" {
				values = append(values, v)
			}
		}
		return values
	}

	if v := FlexibleString(raw); v != "" {
		return []string{v}
	}
	return nil
}
