package registry

import (
	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"

	"github.com/calebstewart/vmm/internal/overlay"
)

// Domain pairs a libvirt-reported identity with its decoded overlay.
//
// Name is unique at a point in time but owned by libvirt, and ID is
// only meaningful while the domain is running; UUID is the only stable
// join key and everything in this package keys on it.
type Domain struct {
	Name string
	ID   int32
	UUID uuid.UUID

	// Meta is the decoded organization overlay. Mutate it only through
	// Registry.Move/AddLabel/RemoveLabel so changes are persisted.
	Meta overlay.Metadata
}

// DisplayPath is the domain's full location in the folder tree:
// overlay path joined with the domain name.
func (d *Domain) DisplayPath() string {
	return d.Meta.DisplayPath(d.Name)
}

// Handle returns the libvirt RPC handle for this domain. The handle is
// rebuilt from identity rather than cached so it stays valid across
// renames of other fields.
func (d *Domain) Handle() libvirt.Domain {
	return libvirt.Domain{
		Name: d.Name,
		UUID: libvirt.UUID(d.UUID),
		ID:   d.ID,
	}
}

// fromLibvirt builds a Domain from a libvirt handle and its raw
// overlay payload ("" when absent).
func fromLibvirt(dom libvirt.Domain, rawOverlay string) *Domain {
	return &Domain{
		Name: dom.Name,
		ID:   dom.ID,
		UUID: uuid.UUID(dom.UUID),
		Meta: overlay.Decode(rawOverlay),
	}
}
