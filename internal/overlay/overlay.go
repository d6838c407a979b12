// Package overlay provides the folder-path and label metadata that vmm
// layers onto libvirt domains. Domains have no native notion of folders
// or tags, so the overlay is persisted as a custom XML element in the
// domain's metadata under a private namespace.
package overlay

import (
	"encoding/xml"
	"path"
	"sort"
	"strings"
)

const (
	// Namespace is the XML namespace for vmm overlay metadata.
	Namespace = "http://calebstew.art/xmlns/vmm"

	// Key is the key used to store/retrieve the overlay element from libvirt.
	Key = "vmm"

	// RootPath is the default folder for domains with no overlay.
	RootPath = "/"
)

// Metadata is the organization overlay for a single domain: a
// slash-separated folder path and a set of free-form labels.
//
// Labels are a set: duplicates collapse and order is not significant.
// Encode emits them sorted so serialization is deterministic.
type Metadata struct {
	Path   string
	Labels []string
}

// wireMetadata is the XML wire form of the overlay element:
//
//	<vmm xmlns="http://calebstew.art/xmlns/vmm">
//	  <path>/lab/windows</path>
//	  <label>dc</label>
//	</vmm>
type wireMetadata struct {
	XMLName xml.Name `xml:"vmm"`
	Xmlns   string   `xml:"xmlns,attr"`
	Path    string   `xml:"path,omitempty"`
	Labels  []string `xml:"label"`
}

// Default returns the overlay for a domain with no stored metadata:
// filed at the root, no labels.
func Default() Metadata {
	return Metadata{Path: RootPath}
}

// Decode parses a stored overlay element. It never fails: a missing,
// empty, or unparseable payload yields the default overlay so that
// domains without prior metadata degrade to "unfiled, unlabeled"
// instead of aborting enumeration.
func Decode(raw string) Metadata {
	if strings.TrimSpace(raw) == "" {
		return Default()
	}

	var wire wireMetadata
	if err := xml.Unmarshal([]byte(raw), &wire); err != nil {
		return Default()
	}

	return Metadata{
		Path:   CleanPath(wire.Path),
		Labels: dedupeLabels(wire.Labels),
	}.normalized()
}

// Encode serializes the overlay to its XML element. The output is
// deterministic: labels are emitted sorted and the path is cleaned, so
// Decode(Encode(m)) == m for any normalized m.
func (m Metadata) Encode() (string, error) {
	norm := m.normalized()

	wire := wireMetadata{
		Xmlns:  Namespace,
		Path:   norm.Path,
		Labels: norm.Labels,
	}

	data, err := xml.Marshal(wire)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// DisplayPath is the domain's full location: its folder path joined
// with its name. The name is computed here, never stored in the path.
func (m Metadata) DisplayPath(name string) string {
	return path.Join(CleanPath(m.Path), name)
}

// HasLabel reports whether the overlay contains the given label.
func (m Metadata) HasLabel(label string) bool {
	for _, l := range m.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// WithLabel returns a copy of the overlay with the label added.
// Adding a label that is already present is a no-op.
func (m Metadata) WithLabel(label string) Metadata {
	out := m.clone()
	if label == "" || out.HasLabel(label) {
		return out
	}
	out.Labels = append(out.Labels, label)
	sort.Strings(out.Labels)
	return out
}

// WithoutLabel returns a copy of the overlay with the label removed.
func (m Metadata) WithoutLabel(label string) Metadata {
	out := m.clone()
	labels := out.Labels[:0:0]
	for _, l := range out.Labels {
		if l != label {
			labels = append(labels, l)
		}
	}
	out.Labels = labels
	return out
}

// WithPath returns a copy of the overlay filed at the given folder.
func (m Metadata) WithPath(p string) Metadata {
	out := m.clone()
	out.Path = CleanPath(p)
	return out
}

// Equal reports whether two overlays are equivalent after normalization.
func (m Metadata) Equal(other Metadata) bool {
	a, b := m.normalized(), other.normalized()
	if a.Path != b.Path || len(a.Labels) != len(b.Labels) {
		return false
	}
	for i := range a.Labels {
		if a.Labels[i] != b.Labels[i] {
			return false
		}
	}
	return true
}

// clone returns a deep copy. The registry relies on this for rollback
// when a metadata write-back fails.
func (m Metadata) clone() Metadata {
	out := Metadata{Path: m.Path}
	if len(m.Labels) > 0 {
		out.Labels = append([]string(nil), m.Labels...)
	}
	return out
}

// normalized returns a copy with a cleaned absolute path and sorted,
// deduplicated labels.
func (m Metadata) normalized() Metadata {
	return Metadata{
		Path:   CleanPath(m.Path),
		Labels: dedupeLabels(m.Labels),
	}
}

// CleanPath normalizes a folder path to an absolute, slash-cleaned
// form. Empty and relative paths are anchored at the root.
func CleanPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return RootPath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// dedupeLabels collapses duplicates and blanks and returns the labels
// sorted. A nil result means no labels.
func dedupeLabels(labels []string) []string {
	if len(labels) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(labels))
	var out []string
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}

	sort.Strings(out)
	return out
}
