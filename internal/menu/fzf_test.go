package menu

import "testing"

func TestChooseEmptyItems(t *testing.T) {
	f := NewFzf()

	// No items means nothing to select; must not spawn anything.
	_, ok, err := f.Choose("> ", nil)
	if err != nil {
		t.Fatalf("Choose() error: %v", err)
	}
	if ok {
		t.Error("Choose() reported a selection with no items")
	}
}

func TestRenderItem(t *testing.T) {
	tests := []struct {
		name string
		item Item
		want string
	}{
		{"plain", Item{Text: "alpha"}, "alpha"},
		{"bold", Item{Text: "lab/", Bold: true}, "\x1b[1mlab/\x1b[0m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := renderItem(tt.item); got != tt.want {
				t.Errorf("renderItem(%+v) = %q, want %q", tt.item, got, tt.want)
			}
		})
	}
}

func TestFirstLine(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"abc", "abc"},
		{"abc\n", "abc"},
		{"abc\ndef", "abc"},
	}

	for _, tt := range tests {
		if got := firstLine(tt.in); got != tt.want {
			t.Errorf("firstLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
