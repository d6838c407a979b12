// Package registry maintains the session's in-memory set of known
// domains, each pairing libvirt identity with its decoded organization
// overlay. It supports folder-tree queries (with folder compression),
// label queries, and overlay mutations that persist back through the
// domain's metadata element.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/calebstewart/vmm/internal/overlay"
)

// ErrPersist indicates an overlay write-back failed. The in-memory
// overlay is left unchanged when this is returned.
var ErrPersist = errors.New("failed to persist overlay metadata")

// libvirtClient defines the libvirt operations the registry needs.
//
// In production this is satisfied by *libvirt.Libvirt directly.
// In tests this is satisfied by mock implementations.
type libvirtClient interface {
	ConnectListAllDomains(NeedResults int32, Flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error)

	DomainLookupByUUID(UUID libvirt.UUID) (libvirt.Domain, error)

	DomainGetMetadata(Dom libvirt.Domain, Type int32, URI libvirt.OptString, Flags libvirt.DomainModificationImpact) (string, error)

	DomainSetMetadata(Dom libvirt.Domain, Type int32, Metadata libvirt.OptString, Key libvirt.OptString, URI libvirt.OptString, Flags libvirt.DomainModificationImpact) error
}

// Registry is the session's exclusively-owned set of domains.
//
// It is not safe for concurrent use: the interactive session loop is
// its single owner and every mutation is a blocking round trip.
type Registry struct {
	client  libvirtClient
	domains []*Domain
	byUUID  map[uuid.UUID]*Domain
}

// Load enumerates all domains (active and inactive) and decodes each
// one's overlay. A failed metadata read degrades that one domain to the
// default overlay; it never aborts the load.
func Load(client libvirtClient) (*Registry, error) {
	domains, _, err := client.ConnectListAllDomains(1, libvirt.ConnectListDomainsActive|libvirt.ConnectListDomainsInactive)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}

	reg := &Registry{
		client: client,
		byUUID: make(map[uuid.UUID]*Domain, len(domains)),
	}

	for _, dom := range domains {
		raw, err := client.DomainGetMetadata(
			dom,
			int32(libvirt.DomainMetadataElement),
			libvirt.OptString{overlay.Namespace},
			libvirt.DomainModificationImpact(0),
		)
		if err != nil {
			// Either way the domain degrades to unfiled and unlabeled,
			// but only a real read failure is worth a warning; most
			// domains simply have no overlay yet.
			if isNoMetadata(err) {
				log.Debugf("no overlay metadata for domain %q", dom.Name)
			} else {
				log.Warnf("failed to read overlay metadata for domain %q: %v", dom.Name, err)
			}
			raw = ""
		}

		reg.add(fromLibvirt(dom, raw))
	}

	return reg, nil
}

// Domains returns all known domains sorted by name.
func (r *Registry) Domains() []*Domain {
	out := append([]*Domain(nil), r.domains...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of known domains.
func (r *Registry) Len() int {
	return len(r.domains)
}

// ByUUID looks up a domain by its stable identifier.
func (r *Registry) ByUUID(id uuid.UUID) (*Domain, bool) {
	d, ok := r.byUUID[id]
	return d, ok
}

// HasName reports whether any known domain currently uses the name.
// Used to reject clone names that would collide.
func (r *Registry) HasName(name string) bool {
	for _, d := range r.domains {
		if d.Name == name {
			return true
		}
	}
	return false
}

// ChildrenOf returns the sorted set of direct child folder segments
// under the given folder. A domain nested several levels deeper still
// contributes only the next single path component, so deep trees
// compress to one folder entry per branch.
func (r *Registry) ChildrenOf(folder string) []string {
	folder = overlay.CleanPath(folder)

	seen := make(map[string]struct{})
	for _, d := range r.domains {
		seg, ok := childSegment(folder, d.Meta.Path)
		if !ok {
			continue
		}
		seen[seg] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for seg := range seen {
		out = append(out, seg)
	}
	sort.Strings(out)
	return out
}

// DomainsAt returns the domains filed exactly at the given folder,
// sorted by name.
func (r *Registry) DomainsAt(folder string) []*Domain {
	folder = overlay.CleanPath(folder)

	var out []*Domain
	for _, d := range r.domains {
		if d.Meta.Path == folder {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Paths returns the sorted set of folders currently in use.
func (r *Registry) Paths() []string {
	seen := make(map[string]struct{})
	for _, d := range r.domains {
		seen[d.Meta.Path] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Labels returns the sorted union of every domain's label set.
func (r *Registry) Labels() []string {
	seen := make(map[string]struct{})
	for _, d := range r.domains {
		for _, l := range d.Meta.Labels {
			seen[l] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// DomainsWithLabel returns the domains carrying the label, sorted by name.
func (r *Registry) DomainsWithLabel(label string) []*Domain {
	var out []*Domain
	for _, d := range r.domains {
		if d.Meta.HasLabel(label) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Move refiles the domain at a new folder and persists the overlay.
// The in-memory overlay only changes once the write-back succeeds.
func (r *Registry) Move(d *Domain, folder string) error {
	return r.commit(d, d.Meta.WithPath(folder))
}

// AddLabel attaches a label to the domain and persists the overlay.
func (r *Registry) AddLabel(d *Domain, label string) error {
	return r.commit(d, d.Meta.WithLabel(label))
}

// RemoveLabel detaches a label from the domain and persists the overlay.
func (r *Registry) RemoveLabel(d *Domain, label string) error {
	return r.commit(d, d.Meta.WithoutLabel(label))
}

// Append records a newly defined domain (e.g. a fresh clone). It must
// be called only after the domain definition succeeded with libvirt.
func (r *Registry) Append(d *Domain) {
	r.add(d)
}

// commit persists a candidate overlay and applies it in memory only on
// success, keeping registry state consistent with what libvirt saw.
func (r *Registry) commit(d *Domain, next overlay.Metadata) error {
	if err := r.persist(d, next); err != nil {
		return err
	}
	d.Meta = next
	return nil
}

// persist encodes the overlay and attaches it to the live domain,
// looked up by UUID so renames elsewhere cannot misdirect the write.
func (r *Registry) persist(d *Domain, meta overlay.Metadata) error {
	encoded, err := meta.Encode()
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrPersist, err)
	}

	dom, err := r.client.DomainLookupByUUID(libvirt.UUID(d.UUID))
	if err != nil {
		return fmt.Errorf("%w: lookup domain %q: %v", ErrPersist, d.Name, err)
	}

	err = r.client.DomainSetMetadata(
		dom,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{encoded},
		libvirt.OptString{overlay.Key},
		libvirt.OptString{overlay.Namespace},
		libvirt.DomainModificationImpact(0),
	)
	if err != nil {
		return fmt.Errorf("%w: set metadata on %q: %v", ErrPersist, d.Name, err)
	}

	return nil
}

// isNoMetadata reports whether err is libvirt telling us the domain
// has no metadata element under our namespace.
func isNoMetadata(err error) bool {
	var lverr libvirt.Error
	return errors.As(err, &lverr) && lverr.Code == uint32(libvirt.ErrNoDomainMetadata)
}

func (r *Registry) add(d *Domain) {
	r.domains = append(r.domains, d)
	r.byUUID[d.UUID] = d
}

// childSegment returns the first path component of candidate relative
// to folder, if candidate is a strict descendant of folder.
func childSegment(folder, candidate string) (string, bool) {
	if candidate == folder {
		return "", false
	}

	prefix := folder
	if prefix != "/" {
		prefix += "/"
	}
	if !strings.HasPrefix(candidate, prefix) {
		return "", false
	}

	rest := strings.TrimPrefix(candidate, prefix)
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return "", false
	}
	return rest, true
}
