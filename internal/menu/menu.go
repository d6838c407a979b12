// Package menu abstracts the interactive selection surface. The core
// only supplies label strings and receives selections; which menu
// program renders them is the provider's business.
package menu

// Item is one selectable entry. Value carries whatever the caller
// needs to identify the selection; identity never rides the label
// text, which may collide (e.g. duplicate domain names).
type Item struct {
	Text  string
	Bold  bool
	Value any
}

// Provider presents choices and free-text prompts to the operator.
//
// Choose and Ask return ok=false when the operator aborts without
// selecting; an abort is not an error.
type Provider interface {
	// Choose presents the items and returns the selected one.
	Choose(prompt string, items []Item) (Item, bool, error)

	// Ask prompts for free text, offering the items as suggestions.
	// The returned text may be one of the suggestions or anything the
	// operator typed.
	Ask(prompt string, suggestions []Item) (string, bool, error)

	// Notify reports a completed action out of band; failures to
	// notify are swallowed, never surfaced to the action loop.
	Notify(message string)
}
