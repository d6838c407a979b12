package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/digitalocean/go-libvirt"

	"github.com/calebstewart/vmm/internal/clone"
	"github.com/calebstewart/vmm/internal/menu"
	"github.com/calebstewart/vmm/internal/overlay"
	"github.com/calebstewart/vmm/internal/registry"
)

// choiceStep scripts one Choose call: select the item with the given
// text, or abort.
type choiceStep struct {
	pick  string
	abort bool
}

// askStep scripts one Ask call.
type askStep struct {
	text  string
	abort bool
}

// scriptedMenu replays a fixed sequence of operator selections and
// records every prompt and notification.
type scriptedMenu struct {
	t       *testing.T
	choices []choiceStep
	asks    []askStep

	prompts []string
	notices []string
}

func (m *scriptedMenu) Choose(prompt string, items []menu.Item) (menu.Item, bool, error) {
	m.prompts = append(m.prompts, prompt)
	if len(m.choices) == 0 {
		m.t.Fatalf("unexpected Choose(%q)", prompt)
	}
	step := m.choices[0]
	m.choices = m.choices[1:]

	if step.abort {
		return menu.Item{}, false, nil
	}
	for _, item := range items {
		if item.Text == step.pick {
			return item, true, nil
		}
	}
	m.t.Fatalf("Choose(%q): no item %q in %v", prompt, step.pick, itemTexts(items))
	return menu.Item{}, false, nil
}

func (m *scriptedMenu) Ask(prompt string, _ []menu.Item) (string, bool, error) {
	m.prompts = append(m.prompts, prompt)
	if len(m.asks) == 0 {
		m.t.Fatalf("unexpected Ask(%q)", prompt)
	}
	step := m.asks[0]
	m.asks = m.asks[1:]

	if step.abort {
		return "", false, nil
	}
	return step.text, true, nil
}

func (m *scriptedMenu) Notify(message string) {
	m.notices = append(m.notices, message)
}

func itemTexts(items []menu.Item) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Text)
	}
	return out
}

// mockClient satisfies both the registry's and the session's libvirt
// interfaces so one instance can back a whole test session.
type mockClient struct {
	domains  []libvirt.Domain
	overlays map[string]string // raw overlay XML by domain name

	active map[string]bool
	saved  map[string]bool

	snapshots map[string][]string
	xmlDesc   string

	failSaveRemove bool
	failDefine     bool

	created     []string
	shutdown    []string
	destroyed   []string
	savedState  []string
	saveRemoved []string
	reverted    []string
	definedXML  []string
	snapCreated []string
	setOverlays map[string]string
}

func (m *mockClient) ConnectListAllDomains(_ int32, _ libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
	return m.domains, uint32(len(m.domains)), nil
}

func (m *mockClient) DomainLookupByUUID(id libvirt.UUID) (libvirt.Domain, error) {
	for _, d := range m.domains {
		if d.UUID == id {
			return d, nil
		}
	}
	return libvirt.Domain{}, fmt.Errorf("no domain with uuid %v", id)
}

func (m *mockClient) DomainGetMetadata(dom libvirt.Domain, _ int32, _ libvirt.OptString, _ libvirt.DomainModificationImpact) (string, error) {
	raw, ok := m.overlays[dom.Name]
	if !ok {
		return "", fmt.Errorf("metadata not found")
	}
	return raw, nil
}

func (m *mockClient) DomainSetMetadata(dom libvirt.Domain, _ int32, metadata libvirt.OptString, _ libvirt.OptString, _ libvirt.OptString, _ libvirt.DomainModificationImpact) error {
	if m.setOverlays == nil {
		m.setOverlays = make(map[string]string)
	}
	if len(metadata) > 0 {
		m.setOverlays[dom.Name] = metadata[0]
	}
	return nil
}

func (m *mockClient) DomainIsActive(dom libvirt.Domain) (int32, error) {
	if m.active[dom.Name] {
		return 1, nil
	}
	return 0, nil
}

func (m *mockClient) DomainHasManagedSaveImage(dom libvirt.Domain, _ uint32) (int32, error) {
	if m.saved[dom.Name] {
		return 1, nil
	}
	return 0, nil
}

func (m *mockClient) DomainCreate(dom libvirt.Domain) error {
	m.created = append(m.created, dom.Name)
	return nil
}

func (m *mockClient) DomainShutdown(dom libvirt.Domain) error {
	m.shutdown = append(m.shutdown, dom.Name)
	return nil
}

func (m *mockClient) DomainDestroy(dom libvirt.Domain) error {
	m.destroyed = append(m.destroyed, dom.Name)
	return nil
}

func (m *mockClient) DomainManagedSave(dom libvirt.Domain, _ uint32) error {
	m.savedState = append(m.savedState, dom.Name)
	return nil
}

func (m *mockClient) DomainManagedSaveRemove(dom libvirt.Domain, _ uint32) error {
	if m.failSaveRemove {
		return fmt.Errorf("save image is locked")
	}
	m.saveRemoved = append(m.saveRemoved, dom.Name)
	return nil
}

func (m *mockClient) DomainSnapshotListNames(dom libvirt.Domain, _ int32, _ uint32) ([]string, error) {
	return m.snapshots[dom.Name], nil
}

func (m *mockClient) DomainSnapshotCreateXML(dom libvirt.Domain, xmlDesc string, _ uint32) (libvirt.DomainSnapshot, error) {
	m.snapCreated = append(m.snapCreated, xmlDesc)
	return libvirt.DomainSnapshot{Dom: dom}, nil
}

func (m *mockClient) DomainSnapshotLookupByName(dom libvirt.Domain, name string, _ uint32) (libvirt.DomainSnapshot, error) {
	return libvirt.DomainSnapshot{Name: name, Dom: dom}, nil
}

func (m *mockClient) DomainRevertToSnapshot(snap libvirt.DomainSnapshot, _ uint32) error {
	m.reverted = append(m.reverted, snap.Name)
	return nil
}

func (m *mockClient) DomainGetXMLDesc(_ libvirt.Domain, _ libvirt.DomainXMLFlags) (string, error) {
	return m.xmlDesc, nil
}

func (m *mockClient) DomainDefineXML(xml string) (libvirt.Domain, error) {
	if m.failDefine {
		return libvirt.Domain{}, fmt.Errorf("XML document failed schema validation")
	}
	m.definedXML = append(m.definedXML, xml)
	return libvirt.Domain{Name: "redefined"}, nil
}

// mockCloner records clone requests and returns a canned outcome.
type mockCloner struct {
	dom     *registry.Domain
	results []clone.DiskResult
	err     error

	requests []clone.Request
}

func (m *mockCloner) Clone(_ context.Context, req clone.Request) (*registry.Domain, []clone.DiskResult, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.results, m.err
	}
	return m.dom, m.results, nil
}

func testUUID(b byte) libvirt.UUID {
	var id libvirt.UUID
	id[15] = b
	return id
}

func encodedOverlay(t *testing.T, path string, labels ...string) string {
	t.Helper()
	raw, err := overlay.Metadata{Path: path, Labels: labels}.Encode()
	if err != nil {
		t.Fatalf("failed to encode overlay: %v", err)
	}
	return raw
}

// newTestSession loads a registry from the mock client and wires a
// session around it with command execution stubbed out.
func newTestSession(t *testing.T, client *mockClient, m *scriptedMenu, c cloner, opts Options) (*Session, *registry.Registry) {
	t.Helper()

	reg, err := registry.Load(client)
	if err != nil {
		t.Fatalf("failed to load registry: %v", err)
	}

	s := New(client, reg, m, c, opts)
	s.runCommand = func([]string) error { return nil }
	s.startCommand = func([]string) error { return nil }
	return s, reg
}

func domainByName(t *testing.T, reg *registry.Registry, name string) *registry.Domain {
	t.Helper()
	for _, d := range reg.Domains() {
		if d.Name == name {
			return d
		}
	}
	t.Fatalf("no domain named %q in registry", name)
	return nil
}
