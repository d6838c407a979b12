package overlay

import (
	"strings"
	"testing"
)

func TestDecodeAbsent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty string", ""},
		{"whitespace only", "  \n\t"},
		{"garbage", "not xml at all"},
		{"truncated element", "<vmm><path>/a"},
		{"wrong root element", "<other><path>/a</path></other>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.raw)
			if got.Path != RootPath {
				t.Errorf("Decode(%q).Path = %q, want %q", tt.raw, got.Path, RootPath)
			}
			if len(got.Labels) != 0 {
				t.Errorf("Decode(%q).Labels = %v, want empty", tt.raw, got.Labels)
			}
		})
	}
}

func TestDecodeValid(t *testing.T) {
	raw := `<vmm xmlns="http://calebstew.art/xmlns/vmm"><path>/lab/windows</path><label>dc</label><label>ad</label></vmm>`

	got := Decode(raw)
	if got.Path != "/lab/windows" {
		t.Errorf("Path = %q, want /lab/windows", got.Path)
	}
	if len(got.Labels) != 2 || got.Labels[0] != "ad" || got.Labels[1] != "dc" {
		t.Errorf("Labels = %v, want [ad dc]", got.Labels)
	}
}

func TestDecodeMissingPath(t *testing.T) {
	raw := `<vmm xmlns="http://calebstew.art/xmlns/vmm"><label>x</label></vmm>`

	got := Decode(raw)
	if got.Path != RootPath {
		t.Errorf("Path = %q, want root when element is absent", got.Path)
	}
	if len(got.Labels) != 1 || got.Labels[0] != "x" {
		t.Errorf("Labels = %v, want [x]", got.Labels)
	}
}

func TestDecodeCollapsesDuplicateLabels(t *testing.T) {
	raw := `<vmm><label>a</label><label>a</label><label></label><label>b</label></vmm>`

	got := Decode(raw)
	if len(got.Labels) != 2 || got.Labels[0] != "a" || got.Labels[1] != "b" {
		t.Errorf("Labels = %v, want [a b]", got.Labels)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		meta Metadata
	}{
		{"default", Default()},
		{"nested path", Metadata{Path: "/lab/windows"}},
		{"labels only", Metadata{Path: "/", Labels: []string{"a", "b"}}},
		{"path and labels", Metadata{Path: "/x/y/z", Labels: []string{"dc", "lab", "win"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := tt.meta.Encode()
			if err != nil {
				t.Fatalf("Encode() error: %v", err)
			}

			got := Decode(encoded)
			if !got.Equal(tt.meta) {
				t.Errorf("round trip mismatch: encoded %q, decoded %+v, want %+v", encoded, got, tt.meta)
			}
		})
	}
}

func TestEncodeDeterministic(t *testing.T) {
	a := Metadata{Path: "/x", Labels: []string{"b", "a"}}
	b := Metadata{Path: "/x", Labels: []string{"a", "b", "a"}}

	ea, err := a.Encode()
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	eb, err := b.Encode()
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if ea != eb {
		t.Errorf("equivalent overlays encoded differently:\n%s\n%s", ea, eb)
	}
	if !strings.Contains(ea, Namespace) {
		t.Errorf("encoded overlay missing namespace: %s", ea)
	}
}

func TestDisplayPath(t *testing.T) {
	tests := []struct {
		path string
		name string
		want string
	}{
		{"/", "web01", "/web01"},
		{"/lab", "web01", "/lab/web01"},
		{"", "web01", "/web01"},
		{"lab/nested", "web01", "/lab/nested/web01"},
	}

	for _, tt := range tests {
		m := Metadata{Path: tt.path}
		if got := m.DisplayPath(tt.name); got != tt.want {
			t.Errorf("DisplayPath(%q, %q) = %q, want %q", tt.path, tt.name, got, tt.want)
		}
	}
}

func TestLabelMutationRoundTrip(t *testing.T) {
	orig := Metadata{Path: "/a", Labels: []string{"keep"}}

	mutated := orig.WithLabel("extra")
	if !mutated.HasLabel("extra") || !mutated.HasLabel("keep") {
		t.Fatalf("WithLabel result missing labels: %v", mutated.Labels)
	}

	restored := mutated.WithoutLabel("extra")
	if !restored.Equal(orig) {
		t.Errorf("add/remove round trip changed overlay: %+v, want %+v", restored, orig)
	}

	// The original must not have been mutated through shared backing arrays.
	if len(orig.Labels) != 1 || orig.Labels[0] != "keep" {
		t.Errorf("original overlay mutated: %v", orig.Labels)
	}
}

func TestWithLabelIdempotent(t *testing.T) {
	m := Metadata{Path: "/"}.WithLabel("x").WithLabel("x")
	if len(m.Labels) != 1 {
		t.Errorf("duplicate label not collapsed: %v", m.Labels)
	}
}

func TestCleanPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"/a/b/", "/a/b"},
		{"a/b", "/a/b"},
		{"/a//b/./c", "/a/b/c"},
	}

	for _, tt := range tests {
		if got := CleanPath(tt.in); got != tt.want {
			t.Errorf("CleanPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
