package main

import (
	"fmt"
	"strings"
)

// OutputFormatter renders query results for a given output style
type OutputFormatter interface {
	FormatValue(value Value) string
	FormatRow(parts []string) string
	FormatCount(count int) string
}

// ConsoleFormatter formats output for console display: projected values
// joined by "|", one row per line.
type ConsoleFormatter struct{}

// NewConsoleFormatter creates a new console formatter
func NewConsoleFormatter() *ConsoleFormatter {
	return &ConsoleFormatter{}
}

// FormatValue formats a single value
func (cf *ConsoleFormatter) FormatValue(value Value) string {
	if value == nil {
		return ""
	}
	return value.String()
}

// FormatRow joins projected values with the column separator
func (cf *ConsoleFormatter) FormatRow(parts []string) string {
	return strings.Join(parts, "|")
}

// FormatCount formats a count result
func (cf *ConsoleFormatter) FormatCount(count int) string {
	return fmt.Sprintf("%d", count)
}

// JSONFormatter formats output as JSON arrays
type JSONFormatter struct{}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// FormatValue formats a single value as a JSON scalar
func (jf *JSONFormatter) FormatValue(value Value) string {
	if value == nil || value.IsNull() {
		return "null"
	}
	switch value.Type() {
	case ValueTypeText, ValueTypeBlob:
		return fmt.Sprintf(`"%s"`, strings.ReplaceAll(value.String(), `"`, `\"`))
	default:
		return value.String()
	}
}

// FormatRow formats projected values as a JSON array
func (jf *JSONFormatter) FormatRow(parts []string) string {
	quoted := make([]string, len(parts))
	for i, part := range parts {
		quoted[i] = fmt.Sprintf(`"%s"`, strings.ReplaceAll(part, `"`, `\"`))
	}
	return fmt.Sprintf("[%s]", strings.Join(quoted, ", "))
}

// FormatCount formats a count result as JSON
func (jf *JSONFormatter) FormatCount(count int) string {
	return fmt.Sprintf(`{"count": %d}`, count)
}
