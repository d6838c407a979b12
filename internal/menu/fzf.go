package menu

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Fzf is a Provider that shells out to fzf for selection and to
// notify-send for notifications.
type Fzf struct {
	// NotifyCommand is the argv prefix for notifications. Defaults to
	// ["notify-send", "Virtual Machine Manager"].
	NotifyCommand []string
}

// NewFzf creates an fzf-backed menu provider.
func NewFzf() *Fzf {
	return &Fzf{
		NotifyCommand: []string{"notify-send", "Virtual Machine Manager"},
	}
}

// ANSI bold escapes; fzf is run with --ansi so they render and are
// stripped from the selection it prints.
const (
	boldOn  = "\x1b[1m"
	boldOff = "\x1b[0m"
)

// renderItem produces the display line for an item.
func renderItem(item Item) string {
	if item.Bold {
		return boldOn + item.Text + boldOff
	}
	return item.Text
}

// Choose runs fzf over the item labels and maps the selected line back
// to its item. Duplicate labels resolve to the first matching item.
func (f *Fzf) Choose(prompt string, items []Item) (Item, bool, error) {
	if len(items) == 0 {
		return Item{}, false, nil
	}

	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = renderItem(item)
	}

	selected, ok, err := runFzf(prompt, lines, false)
	if err != nil || !ok {
		return Item{}, false, err
	}

	for _, item := range items {
		if item.Text == selected {
			return item, true, nil
		}
	}
	return Item{}, false, fmt.Errorf("selection %q does not match any item", selected)
}

// Ask runs fzf in print-query mode so the operator can pick a
// suggestion or type a new value.
func (f *Fzf) Ask(prompt string, suggestions []Item) (string, bool, error) {
	lines := make([]string, len(suggestions))
	for i, item := range suggestions {
		lines[i] = item.Text
	}

	return runFzf(prompt, lines, true)
}

// Notify runs the notify command; a missing notifier only logs.
func (f *Fzf) Notify(message string) {
	argv := f.NotifyCommand
	if len(argv) == 0 {
		log.Info(message)
		return
	}

	cmd := exec.Command(argv[0], append(argv[1:], message)...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = nil, nil, nil
	if err := cmd.Run(); err != nil {
		log.Infof("%s (notify failed: %v)", message, err)
	}
}

// runFzf feeds the lines to fzf on stdin and returns the selection.
// With printQuery set, the typed query wins over the highlighted line
// so free-text answers are possible.
func runFzf(prompt string, lines []string, printQuery bool) (string, bool, error) {
	args := []string{"--ansi", "--prompt", prompt}
	if printQuery {
		args = append(args, "--print-query")
	}

	cmd := exec.Command("fzf", args...)
	cmd.Stdin = strings.NewReader(strings.Join(lines, "\n"))
	cmd.Stderr = os.Stderr

	var out bytes.Buffer
	cmd.Stdout = &out

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			switch exitErr.ExitCode() {
			case 1:
				// No match: with --print-query the typed text is still
				// on the first output line.
				if printQuery {
					if query := firstLine(out.String()); query != "" {
						return query, true, nil
					}
				}
				return "", false, nil
			case 130:
				// Aborted by the operator.
				return "", false, nil
			}
		}
		return "", false, fmt.Errorf("failed to run fzf: %w", err)
	}

	output := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if printQuery {
		// Output is "query\nselection"; prefer the selection, fall
		// back to the query.
		if len(output) > 1 && output[1] != "" {
			return output[1], true, nil
		}
		if output[0] != "" {
			return output[0], true, nil
		}
		return "", false, nil
	}

	if output[0] == "" {
		return "", false, nil
	}
	return output[0], true, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
