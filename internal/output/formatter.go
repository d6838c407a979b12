// Package output provides formatters for the non-interactive listing
// commands (table, YAML, JSON).
package output

import (
	"fmt"
)

// Format represents an output format type.
type Format string

const (
	// FormatTable is a human-readable table format.
	FormatTable Format = "table"
	// FormatYAML is a YAML format for scripting.
	FormatYAML Format = "yaml"
	// FormatJSON is a JSON format for machine consumption.
	FormatJSON Format = "json"
)

// Row is one domain's listing entry: libvirt identity, lifecycle
// state, and the organization overlay.
type Row struct {
	Name   string   `json:"name" yaml:"name"`
	UUID   string   `json:"uuid" yaml:"uuid"`
	State  string   `json:"state" yaml:"state"`
	Path   string   `json:"path" yaml:"path"`
	Labels []string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// Formatter formats domain listings for output.
type Formatter interface {
	// FormatDomain formats a single domain row.
	FormatDomain(row Row) (string, error)

	// FormatDomainList formats a list of domain rows.
	FormatDomainList(rows []Row) (string, error)
}

// Options contains options for formatting output.
type Options struct {
	// Format specifies the output format.
	Format Format
	// NoHeaders omits headers in table format.
	NoHeaders bool
}

// NewFormatter creates a new Formatter based on the specified format.
func NewFormatter(opts Options) (Formatter, error) {
	switch opts.Format {
	case FormatTable:
		return &TableFormatter{NoHeaders: opts.NoHeaders}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, yaml, json)", opts.Format)
	}
}

// ValidateFormat checks if a format string is valid.
func ValidateFormat(format string) error {
	switch Format(format) {
	case FormatTable, FormatYAML, FormatJSON:
		return nil
	default:
		return fmt.Errorf("invalid format: %s (valid formats: table, yaml, json)", format)
	}
}
