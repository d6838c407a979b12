package output

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"
)

// TableFormatter formats domain listings as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatDomain formats a single domain as a table row.
func (f *TableFormatter) FormatDomain(row Row) (string, error) {
	return f.FormatDomainList([]Row{row})
}

// FormatDomainList formats a list of domains as a table.
func (f *TableFormatter) FormatDomainList(rows []Row) (string, error) {
	if len(rows) == 0 {
		return "No domains found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	// Write header unless NoHeaders is set
	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tSTATE\tPATH\tLABELS")
	}

	for _, row := range rows {
		state := row.State
		if state == "" {
			state = "-"
		}

		labels := "-"
		if len(row.Labels) > 0 {
			labels = strings.Join(row.Labels, ",")
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			row.Name, state, row.Path, labels)
	}

	_ = w.Flush()
	return buf.String(), nil
}
