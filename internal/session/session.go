// Package session drives the interactive loop: main menu, folder and
// label browsing, and the per-domain action dispatcher. Each user
// selection is one blocking round trip to the hypervisor; the registry
// is exclusively owned by this loop and nothing here is concurrent.
package session

import (
	"context"
	"fmt"
	"path"

	"github.com/digitalocean/go-libvirt"
	log "github.com/sirupsen/logrus"

	"github.com/calebstewart/vmm/internal/clone"
	"github.com/calebstewart/vmm/internal/menu"
	"github.com/calebstewart/vmm/internal/overlay"
	"github.com/calebstewart/vmm/internal/registry"
)

// Options is the immutable session configuration threaded through the
// dispatch loop.
type Options struct {
	// OneShot exits the session after the first completed action.
	// Aborted prompts do not count as a completed action.
	OneShot bool

	// ViewerCommand is the argv prefix launched by the open-viewer
	// action; the domain UUID is appended.
	ViewerCommand []string

	// EditorCommand is the argv prefix launched by the edit-descriptor
	// action; the descriptor temp file path is appended.
	EditorCommand []string
}

// libvirtClient defines the libvirt operations the session loop needs
// beyond what the registry and clone orchestrator already own.
//
// In production this is satisfied by *libvirt.Libvirt directly.
// In tests this is satisfied by mock implementations.
type libvirtClient interface {
	DomainIsActive(Dom libvirt.Domain) (int32, error)
	DomainHasManagedSaveImage(Dom libvirt.Domain, Flags uint32) (int32, error)

	DomainCreate(Dom libvirt.Domain) error
	DomainShutdown(Dom libvirt.Domain) error
	DomainDestroy(Dom libvirt.Domain) error
	DomainManagedSave(Dom libvirt.Domain, Flags uint32) error
	DomainManagedSaveRemove(Dom libvirt.Domain, Flags uint32) error

	DomainSnapshotListNames(Dom libvirt.Domain, Maxnames int32, Flags uint32) ([]string, error)
	DomainSnapshotCreateXML(Dom libvirt.Domain, XMLDesc string, Flags uint32) (libvirt.DomainSnapshot, error)
	DomainSnapshotLookupByName(Dom libvirt.Domain, Name string, Flags uint32) (libvirt.DomainSnapshot, error)
	DomainRevertToSnapshot(Snap libvirt.DomainSnapshot, Flags uint32) error

	DomainGetXMLDesc(Dom libvirt.Domain, Flags libvirt.DomainXMLFlags) (string, error)
	DomainDefineXML(XML string) (libvirt.Domain, error)
}

// cloner defines the clone operation the dispatcher invokes.
// In production this is satisfied by *clone.Orchestrator.
type cloner interface {
	Clone(ctx context.Context, req clone.Request) (*registry.Domain, []clone.DiskResult, error)
}

// Session is the interactive loop over one libvirt connection.
type Session struct {
	client libvirtClient
	reg    *registry.Registry
	menu   menu.Provider
	cloner cloner
	opts   Options

	// runCommand blocks until the command exits (editor); startCommand
	// detaches (viewer). Both are injected for tests.
	runCommand   func(argv []string) error
	startCommand func(argv []string) error

	// tempDir overrides the descriptor temp file location in tests.
	tempDir string
}

// New creates a session over an already-loaded registry.
func New(client libvirtClient, reg *registry.Registry, provider menu.Provider, c cloner, opts Options) *Session {
	return &Session{
		client:       client,
		reg:          reg,
		menu:         provider,
		cloner:       c,
		opts:         opts,
		runCommand:   runAttached,
		startCommand: runDetached,
	}
}

// mainEntry identifies a main menu selection.
type mainEntry int

const (
	entryBrowseAll mainEntry = iota
	entryBrowseFolders
	entryBrowseLabels
)

// folderRef marks a menu item as a folder path selection.
type folderRef string

// Run presents the main menu until the operator aborts or a one-shot
// action completes. Action failures are surfaced and never terminate
// the loop; only a menu provider failure is returned as an error.
func (s *Session) Run(ctx context.Context) error {
	items := []menu.Item{
		{Text: "Browse All", Value: entryBrowseAll},
		{Text: "Browse VM Folders", Value: entryBrowseFolders},
		{Text: "Browse VM Labels", Value: entryBrowseLabels},
	}

	for {
		item, ok, err := s.menu.Choose("> ", items)
		if err != nil {
			return fmt.Errorf("main menu failed: %w", err)
		}
		if !ok {
			return nil
		}

		var done bool
		switch item.Value.(mainEntry) {
		case entryBrowseAll:
			done, err = s.browseAll(ctx)
		case entryBrowseFolders:
			done, err = s.browseByPath(ctx, overlay.RootPath)
		case entryBrowseLabels:
			done, err = s.browseByLabel(ctx)
		}
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// browseAll lists every known domain by its full display path.
func (s *Session) browseAll(ctx context.Context) (bool, error) {
	for {
		domains := s.reg.Domains()
		items := make([]menu.Item, 0, len(domains))
		for _, d := range domains {
			items = append(items, menu.Item{Text: d.DisplayPath(), Value: d})
		}

		item, ok, err := s.menu.Choose("browse[all]> ", items)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}

		done, err := s.interact(ctx, item.Value.(*registry.Domain))
		if err != nil || done {
			return done, err
		}
	}
}

// browseByPath walks the folder tree one level at a time. Folder
// entries are the registry's compressed child segments; selecting one
// descends, aborting ascends to the caller.
func (s *Session) browseByPath(ctx context.Context, folder string) (bool, error) {
	for {
		children := s.reg.ChildrenOf(folder)
		domains := s.reg.DomainsAt(folder)

		items := make([]menu.Item, 0, len(children)+len(domains))
		for _, seg := range children {
			items = append(items, menu.Item{Text: seg + "/", Bold: true, Value: folderRef(path.Join(folder, seg))})
		}
		for _, d := range domains {
			items = append(items, menu.Item{Text: d.Name, Value: d})
		}

		item, ok, err := s.menu.Choose(fmt.Sprintf("browse[%s]> ", folder), items)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}

		var done bool
		switch v := item.Value.(type) {
		case folderRef:
			done, err = s.browseByPath(ctx, string(v))
		case *registry.Domain:
			done, err = s.interact(ctx, v)
		}
		if err != nil || done {
			return done, err
		}
	}
}

// browseByLabel picks a label, then a domain carrying it.
func (s *Session) browseByLabel(ctx context.Context) (bool, error) {
	for {
		labels := s.reg.Labels()
		items := make([]menu.Item, 0, len(labels))
		for _, l := range labels {
			items = append(items, menu.Item{Text: l, Value: l})
		}

		item, ok, err := s.menu.Choose("browse[by-label]> ", items)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		label := item.Value.(string)

		domains := s.reg.DomainsWithLabel(label)
		domItems := make([]menu.Item, 0, len(domains))
		for _, d := range domains {
			domItems = append(domItems, menu.Item{Text: d.DisplayPath(), Value: d})
		}

		domItem, ok, err := s.menu.Choose(fmt.Sprintf("browse[by-label=%s]> ", label), domItems)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}

		done, err := s.interact(ctx, domItem.Value.(*registry.Domain))
		if err != nil || done {
			return done, err
		}
	}
}

// surface reports an action failure to the operator and the log; the
// loop then continues from a fresh state classification.
func (s *Session) surface(d *registry.Domain, err error) {
	log.Errorf("action on domain %q failed: %v", d.Name, err)
	s.menu.Notify(fmt.Sprintf("domain '%s': %v", d.Name, err))
}
