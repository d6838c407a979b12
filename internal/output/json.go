package output

import (
	"encoding/json"
	"fmt"
)

// JSONFormatter formats domain listings as JSON.
type JSONFormatter struct{}

// FormatDomain formats a single domain as JSON.
func (f *JSONFormatter) FormatDomain(row Row) (string, error) {
	data, err := json.MarshalIndent(row, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal domain to JSON: %w", err)
	}

	return string(data) + "\n", nil
}

// FormatDomainList formats a list of domains as a JSON array.
func (f *JSONFormatter) FormatDomainList(rows []Row) (string, error) {
	if len(rows) == 0 {
		return "[]\n", nil
	}

	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal domains to JSON: %w", err)
	}

	return string(data) + "\n", nil
}
