package output

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter formats domain listings as YAML.
type YAMLFormatter struct{}

// FormatDomain formats a single domain as YAML.
func (f *YAMLFormatter) FormatDomain(row Row) (string, error) {
	data, err := yaml.Marshal(row)
	if err != nil {
		return "", fmt.Errorf("failed to marshal domain to YAML: %w", err)
	}

	return string(data), nil
}

// FormatDomainList formats a list of domains as a YAML stream
// (multiple documents separated by ---).
func (f *YAMLFormatter) FormatDomainList(rows []Row) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}

	var buf bytes.Buffer

	for i, row := range rows {
		data, err := yaml.Marshal(row)
		if err != nil {
			return "", fmt.Errorf("failed to marshal domain %s to YAML: %w", row.Name, err)
		}

		// Add document separator between domains (but not before the
		// first one)
		if i > 0 {
			buf.WriteString("---\n")
		}

		buf.Write(data)
	}

	return buf.String(), nil
}
