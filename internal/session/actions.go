package session

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/digitalocean/go-libvirt"
	log "github.com/sirupsen/logrus"

	"github.com/calebstewart/vmm/internal/clone"
	"github.com/calebstewart/vmm/internal/lifecycle"
	"github.com/calebstewart/vmm/internal/menu"
	"github.com/calebstewart/vmm/internal/registry"
)

// maxSnapshots caps the snapshot name listing.
const maxSnapshots = 128

// interact is the per-domain action loop: classify, present the legal
// actions, dispatch the selection, re-classify. It returns true when a
// one-shot session completed an action. Failures are surfaced and the
// loop continues; only menu provider failures are returned.
func (s *Session) interact(ctx context.Context, d *registry.Domain) (bool, error) {
	for {
		state, err := lifecycle.Classify(s.client, d.Handle())
		if err != nil {
			// The domain may have disappeared between enumeration and
			// selection; report and fall back to the caller's menu.
			s.surface(d, err)
			return false, nil
		}

		actions := lifecycle.ActionsFor(state)
		items := make([]menu.Item, 0, len(actions))
		for _, a := range actions {
			items = append(items, menu.Item{Text: a.Label, Value: a.Kind})
		}

		item, ok, err := s.menu.Choose(fmt.Sprintf("domain[%s]> ", d.DisplayPath()), items)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}

		acted, err := s.dispatch(ctx, d, item.Value.(lifecycle.ActionKind))
		if err != nil {
			s.surface(d, err)
			continue
		}
		if acted && s.opts.OneShot {
			return true, nil
		}
	}
}

// dispatch invokes the operation behind an action kind. It returns
// whether an action actually completed: an aborted sub-prompt performs
// nothing and does not consume a one-shot session.
func (s *Session) dispatch(ctx context.Context, d *registry.Domain, kind lifecycle.ActionKind) (bool, error) {
	switch kind {
	case lifecycle.ActionStart, lifecycle.ActionRestoreState:
		if err := s.client.DomainCreate(d.Handle()); err != nil {
			return false, fmt.Errorf("failed to start domain: %w", err)
		}
		s.menu.Notify(fmt.Sprintf("starting domain '%s'", d.Name))
		return true, nil

	case lifecycle.ActionCleanStart:
		return s.doCleanStart(d)

	case lifecycle.ActionShutdown:
		if err := s.client.DomainShutdown(d.Handle()); err != nil {
			return false, fmt.Errorf("failed to request shutdown: %w", err)
		}
		s.menu.Notify(fmt.Sprintf("requested domain '%s' shutdown", d.Name))
		return true, nil

	case lifecycle.ActionForceOff:
		if err := s.client.DomainDestroy(d.Handle()); err != nil {
			return false, fmt.Errorf("failed to force off: %w", err)
		}
		s.menu.Notify(fmt.Sprintf("forced domain '%s' off", d.Name))
		return true, nil

	case lifecycle.ActionSaveState:
		if err := s.client.DomainManagedSave(d.Handle(), 0); err != nil {
			return false, fmt.Errorf("failed to save state: %w", err)
		}
		s.menu.Notify(fmt.Sprintf("saved domain '%s' state", d.Name))
		return true, nil

	case lifecycle.ActionDiscardSave:
		if err := s.client.DomainManagedSaveRemove(d.Handle(), 0); err != nil {
			return false, fmt.Errorf("failed to remove saved state: %w", err)
		}
		s.menu.Notify(fmt.Sprintf("removed domain '%s' saved state", d.Name))
		return true, nil

	case lifecycle.ActionOpenViewer:
		return s.doOpenViewer(d)

	case lifecycle.ActionSnapshot:
		return s.doSnapshot(d)

	case lifecycle.ActionRestoreSnapshot:
		return s.doRestoreSnapshot(d)

	case lifecycle.ActionMove:
		return s.doMove(d)

	case lifecycle.ActionAddLabel:
		return s.doAddLabel(d)

	case lifecycle.ActionRemoveLabel:
		return s.doRemoveLabel(d)

	case lifecycle.ActionLinkedClone:
		return s.doClone(ctx, d, clone.ModeLinked)

	case lifecycle.ActionHeavyClone:
		return s.doClone(ctx, d, clone.ModeHeavy)

	case lifecycle.ActionEditDescriptor:
		return s.doEditDescriptor(d)
	}

	return false, fmt.Errorf("unhandled action kind %d", kind)
}

// doCleanStart discards the saved state and then boots. The discard is
// its own step so its failure is observable; the boot is aborted when
// the discard fails.
func (s *Session) doCleanStart(d *registry.Domain) (bool, error) {
	if err := s.client.DomainManagedSaveRemove(d.Handle(), 0); err != nil {
		return false, fmt.Errorf("failed to remove saved state, not starting: %w", err)
	}
	if err := s.client.DomainCreate(d.Handle()); err != nil {
		return false, fmt.Errorf("failed to start domain: %w", err)
	}
	s.menu.Notify(fmt.Sprintf("clean starting domain '%s'", d.Name))
	return true, nil
}

func (s *Session) doOpenViewer(d *registry.Domain) (bool, error) {
	argv := append(append([]string(nil), s.opts.ViewerCommand...), d.UUID.String())
	if err := s.startCommand(argv); err != nil {
		return false, fmt.Errorf("failed to launch viewer: %w", err)
	}
	return true, nil
}

func (s *Session) doSnapshot(d *registry.Domain) (bool, error) {
	name, ok, err := s.menu.Ask(fmt.Sprintf("snapshot-name[%s]> ", d.DisplayPath()), nil)
	if err != nil {
		return false, err
	}
	if !ok || name == "" {
		return false, nil
	}

	snapXML, err := snapshotXML(name)
	if err != nil {
		return false, fmt.Errorf("invalid snapshot name %q: %w", name, err)
	}
	if _, err := s.client.DomainSnapshotCreateXML(d.Handle(), snapXML, 0); err != nil {
		return false, fmt.Errorf("failed to take snapshot %q: %w", name, err)
	}

	s.menu.Notify(fmt.Sprintf("took snapshot '%s' of domain '%s'", name, d.Name))
	return true, nil
}

// snapshotXML builds the snapshot descriptor with the name escaped, so
// names containing XML metacharacters still produce a valid document.
func snapshotXML(name string) (string, error) {
	var buf bytes.Buffer
	buf.WriteString("<domainsnapshot><name>")
	if err := xml.EscapeText(&buf, []byte(name)); err != nil {
		return "", err
	}
	buf.WriteString("</name></domainsnapshot>")
	return buf.String(), nil
}

func (s *Session) doRestoreSnapshot(d *registry.Domain) (bool, error) {
	names, err := s.client.DomainSnapshotListNames(d.Handle(), maxSnapshots, 0)
	if err != nil {
		return false, fmt.Errorf("failed to list snapshots: %w", err)
	}

	items := make([]menu.Item, 0, len(names))
	for _, n := range names {
		items = append(items, menu.Item{Text: n, Value: n})
	}

	item, ok, err := s.menu.Choose(fmt.Sprintf("revert-to-snapshot[%s]> ", d.DisplayPath()), items)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	name := item.Value.(string)

	snap, err := s.client.DomainSnapshotLookupByName(d.Handle(), name, 0)
	if err != nil {
		return false, fmt.Errorf("failed to lookup snapshot %q: %w", name, err)
	}
	if err := s.client.DomainRevertToSnapshot(snap, 0); err != nil {
		return false, fmt.Errorf("failed to revert to snapshot %q: %w", name, err)
	}

	s.menu.Notify(fmt.Sprintf("reverted domain '%s' to '%s'", d.Name, name))
	return true, nil
}

// newFolderRef marks the "New Folder" entry in the move menu.
type newFolderRef struct{}

// doMove offers the folders currently in use plus a free-text "New
// Folder" entry, then refiles the domain through the registry so the
// overlay is persisted before the in-memory move applies.
func (s *Session) doMove(d *registry.Domain) (bool, error) {
	paths := s.reg.Paths()
	items := make([]menu.Item, 0, len(paths)+1)
	items = append(items, menu.Item{Text: "New Folder", Bold: true, Value: newFolderRef{}})
	for _, p := range paths {
		items = append(items, menu.Item{Text: p, Value: folderRef(p)})
	}

	item, ok, err := s.menu.Choose(fmt.Sprintf("move-domain[%s]> ", d.DisplayPath()), items)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	var folder string
	switch v := item.Value.(type) {
	case folderRef:
		folder = string(v)
	case newFolderRef:
		text, ok, err := s.menu.Ask(fmt.Sprintf("new-folder[%s]> ", d.Name), nil)
		if err != nil {
			return false, err
		}
		if !ok || text == "" {
			return false, nil
		}
		folder = text
	}

	if err := s.reg.Move(d, folder); err != nil {
		return false, err
	}

	s.menu.Notify(fmt.Sprintf("moved domain '%s' to '%s'", d.Name, d.Meta.Path))
	return true, nil
}

// doAddLabel prompts for a label, suggesting the union of every known
// domain's labels.
func (s *Session) doAddLabel(d *registry.Domain) (bool, error) {
	labels := s.reg.Labels()
	suggestions := make([]menu.Item, 0, len(labels))
	for _, l := range labels {
		suggestions = append(suggestions, menu.Item{Text: l})
	}

	label, ok, err := s.menu.Ask(fmt.Sprintf("add-domain-label[%s]> ", d.DisplayPath()), suggestions)
	if err != nil {
		return false, err
	}
	if !ok || label == "" {
		return false, nil
	}

	if err := s.reg.AddLabel(d, label); err != nil {
		return false, err
	}

	s.menu.Notify(fmt.Sprintf("added label '%s' to domain '%s'", label, d.Name))
	return true, nil
}

// doRemoveLabel is a no-op for unlabeled domains.
func (s *Session) doRemoveLabel(d *registry.Domain) (bool, error) {
	if len(d.Meta.Labels) == 0 {
		return false, nil
	}

	items := make([]menu.Item, 0, len(d.Meta.Labels))
	for _, l := range d.Meta.Labels {
		items = append(items, menu.Item{Text: l, Value: l})
	}

	item, ok, err := s.menu.Choose(fmt.Sprintf("remove-label[%s]> ", d.DisplayPath()), items)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	label := item.Value.(string)

	if err := s.reg.RemoveLabel(d, label); err != nil {
		return false, err
	}

	s.menu.Notify(fmt.Sprintf("removed label '%s' from domain '%s'", label, d.Name))
	return true, nil
}

// doClone asks for the clone's name, rejects collisions with known
// domains, and appends the clone to the registry only after the
// orchestrator registered it with libvirt.
func (s *Session) doClone(ctx context.Context, d *registry.Domain, mode clone.Mode) (bool, error) {
	name, ok, err := s.menu.Ask(fmt.Sprintf("clone-name[%s]> ", d.DisplayPath()), nil)
	if err != nil {
		return false, err
	}
	if !ok || name == "" {
		return false, nil
	}

	if s.reg.HasName(name) {
		return false, fmt.Errorf("a domain named %q already exists", name)
	}

	newDom, results, err := s.cloner.Clone(ctx, clone.Request{
		Source: d,
		Name:   name,
		Mode:   mode,
	})
	if err != nil {
		return false, err
	}

	s.reg.Append(newDom)

	if failed := clone.Failed(results); len(failed) > 0 {
		devs := make([]string, 0, len(failed))
		for _, r := range failed {
			devs = append(devs, r.Device)
		}
		s.menu.Notify(fmt.Sprintf("cloned domain '%s' to '%s' with failed disk(s): %s",
			d.Name, name, strings.Join(devs, ", ")))
	} else {
		s.menu.Notify(fmt.Sprintf("cloned domain '%s' to '%s'", d.Name, name))
	}
	return true, nil
}

// doEditDescriptor dumps the domain descriptor to a temp file, runs the
// configured editor on it, and redefines the domain from the result. A
// rejected definition re-prompts to edit again or abandon, keeping the
// operator's edits in the temp file across attempts.
func (s *Session) doEditDescriptor(d *registry.Domain) (bool, error) {
	desc, err := s.client.DomainGetXMLDesc(d.Handle(), libvirt.DomainXMLSecure|libvirt.DomainXMLInactive)
	if err != nil {
		return false, fmt.Errorf("failed to fetch descriptor: %w", err)
	}

	dir := s.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	file, err := os.CreateTemp(dir, fmt.Sprintf("vmm-%s-*.xml", d.Name))
	if err != nil {
		return false, fmt.Errorf("failed to create descriptor temp file: %w", err)
	}
	path := file.Name()
	defer os.Remove(path)

	if _, err := file.WriteString(desc); err != nil {
		file.Close()
		return false, fmt.Errorf("failed to write descriptor temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		return false, fmt.Errorf("failed to write descriptor temp file: %w", err)
	}

	for {
		argv := append(append([]string(nil), s.opts.EditorCommand...), path)
		if err := s.runCommand(argv); err != nil {
			return false, fmt.Errorf("editor failed: %w", err)
		}

		edited, err := os.ReadFile(path)
		if err != nil {
			return false, fmt.Errorf("failed to read edited descriptor: %w", err)
		}
		if string(edited) == desc {
			log.Infof("descriptor of %q unchanged, not redefining", d.Name)
			return false, nil
		}

		if _, err := s.client.DomainDefineXML(string(edited)); err != nil {
			log.Warnf("rejected descriptor for %q: %v", d.Name, err)
			item, ok, cerr := s.menu.Choose(
				fmt.Sprintf("descriptor-rejected[%s: %v]> ", filepath.Base(path), err),
				[]menu.Item{
					{Text: "Edit Again", Value: true},
					{Text: "Abandon", Value: false},
				},
			)
			if cerr != nil {
				return false, cerr
			}
			if again, _ := item.Value.(bool); !ok || !again {
				return false, nil
			}
			continue
		}

		s.menu.Notify(fmt.Sprintf("redefined domain '%s'", d.Name))
		return true, nil
	}
}
