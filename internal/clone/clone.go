// Package clone implements domain cloning: it rewrites a source
// domain's descriptor under a new name and identifier, provisions new
// storage for each writable disk, and registers the result as a new
// domain definition.
//
// Two modes are supported. A linked clone provisions copy-on-write
// delta volumes that reference the source volumes as read-only backing
// files; it is only possible for formats that support backing chains
// (qcow2, qed) and silently costs nothing for disk content. A heavy
// clone provisions fully independent content copies. A linked request
// degrades to a copy per-disk when the source format cannot back a
// chain, and the degradation is recorded in that disk's result.
package clone

import (
	"context"
	"errors"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	libvirtxml "libvirt.org/go/libvirtxml"

	"github.com/calebstewart/vmm/internal/overlay"
	"github.com/calebstewart/vmm/internal/registry"
	"github.com/calebstewart/vmm/internal/storage"
)

// Mode selects how clone disks are provisioned.
type Mode int

const (
	// ModeLinked provisions copy-on-write deltas backed by the source
	// volumes where the format allows it.
	ModeLinked Mode = iota
	// ModeHeavy provisions independent full copies.
	ModeHeavy
)

func (m Mode) String() string {
	switch m {
	case ModeLinked:
		return "linked"
	case ModeHeavy:
		return "heavy"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Policy decides whether a clone with failed disks is still registered.
type Policy string

const (
	// PolicyBestEffort registers the assembled descriptor even when
	// some disks failed to provision: a clone with one stale disk
	// reference is more recoverable by an operator than a silently
	// discarded operation.
	PolicyBestEffort Policy = "best-effort"
	// PolicyAllOrNothing refuses to register the clone when any disk
	// failed to provision.
	PolicyAllOrNothing Policy = "all-or-nothing"
)

// IsValid checks if the policy is a known value.
func (p Policy) IsValid() bool {
	return p == PolicyBestEffort || p == PolicyAllOrNothing
}

// Request describes a clone operation.
type Request struct {
	// Source is the domain to clone. Its descriptor and volumes are
	// read-only inputs; nothing about the source is mutated.
	Source *registry.Domain
	// Name is the new domain's name. Must be non-empty; callers are
	// expected to have checked it against existing domain names.
	Name string
	// Mode selects linked or heavy disk provisioning.
	Mode Mode
}

// DiskResult is the per-disk outcome of a clone.
type DiskResult struct {
	// Device is the disk's target device name (e.g. "vda"), or "" when
	// the disk entry had none.
	Device string
	// SourcePath is the original disk source path, if any.
	SourcePath string
	// NewPath is the provisioned volume's path; empty when the disk
	// was shared, skipped, or failed.
	NewPath string
	// Linked reports whether a backing-file relationship to the source
	// volume was established.
	Linked bool
	// Shared reports that the disk was read-only and intentionally
	// left pointing at the original volume.
	Shared bool
	// Skipped reports that the disk entry was malformed (no source or
	// no target device) and was carried over unchanged.
	Skipped bool
	// Err is the provisioning failure for this disk, if any.
	Err error
}

// Failed returns the subset of results that carry an error.
func Failed(results []DiskResult) []DiskResult {
	var out []DiskResult
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// ErrDisksFailed is returned under PolicyAllOrNothing when any disk
// failed to provision; the clone is not registered.
var ErrDisksFailed = errors.New("clone aborted: not all disks could be provisioned")

// libvirtClient defines the libvirt operations needed for cloning.
type libvirtClient interface {
	DomainGetXMLDesc(Dom libvirt.Domain, Flags libvirt.DomainXMLFlags) (string, error)
	DomainDefineXML(XML string) (libvirt.Domain, error)
}

// volumeProvisioner defines the storage operations needed for cloning.
// In production this is satisfied by *storage.Manager.
type volumeProvisioner interface {
	ResolveVolume(ctx context.Context, path string) (*storage.Volume, error)
	CreateLinked(ctx context.Context, source *storage.Volume, name string) (*storage.Volume, error)
	CreateCopy(ctx context.Context, source *storage.Volume, name string) (*storage.Volume, error)
}

// Orchestrator drives domain cloning against libvirt and the storage
// manager.
type Orchestrator struct {
	client  libvirtClient
	volumes volumeProvisioner
	policy  Policy
}

// New creates a clone orchestrator with the given failure policy.
func New(client libvirtClient, volumes volumeProvisioner, policy Policy) *Orchestrator {
	if !policy.IsValid() {
		policy = PolicyBestEffort
	}
	return &Orchestrator{
		client:  client,
		volumes: volumes,
		policy:  policy,
	}
}

// Clone produces a new domain from the request:
//
//  1. Fetch the source descriptor and rewrite its identity (new name,
//     freshly generated UUID, no transient id, clean metadata slot).
//  2. Provision new storage per disk: read-only disks stay shared,
//     linked mode provisions backing-file deltas where the format
//     allows, everything else gets a full copy. Malformed disk entries
//     are skipped and a provisioning failure on one disk does not stop
//     the others.
//  3. Register the rewritten descriptor with libvirt (unless the
//     policy is all-or-nothing and some disk failed).
//
// The returned results always describe every disk that was considered,
// including failures. The returned Domain starts with the default
// overlay; the caller appends it to the registry.
func (o *Orchestrator) Clone(ctx context.Context, req Request) (*registry.Domain, []DiskResult, error) {
	if req.Source == nil {
		return nil, nil, fmt.Errorf("clone request has no source domain")
	}
	if req.Name == "" {
		return nil, nil, fmt.Errorf("clone name must not be empty")
	}

	log.Infof("cloning domain %q to %q (%s)", req.Source.Name, req.Name, req.Mode)

	desc, err := o.client.DomainGetXMLDesc(req.Source.Handle(), 0)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch descriptor of %q: %w", req.Source.Name, err)
	}

	var domXML libvirtxml.Domain
	if err := domXML.Unmarshal(desc); err != nil {
		return nil, nil, fmt.Errorf("failed to parse descriptor of %q: %w", req.Source.Name, err)
	}

	// The source's name, identifier, and transient id must never leak
	// into the clone. The metadata slot is cleared too: the clone
	// starts unfiled and unlabeled rather than inheriting the source's
	// overlay.
	newUUID := uuid.New()
	domXML.Name = req.Name
	domXML.UUID = newUUID.String()
	domXML.ID = nil
	domXML.Metadata = nil

	results := o.cloneDisks(ctx, &domXML, req)

	if failed := Failed(results); len(failed) > 0 {
		for _, r := range failed {
			log.Warnf("disk %s: %v", r.Device, r.Err)
		}
		if o.policy == PolicyAllOrNothing {
			return nil, results, fmt.Errorf("%w: %d of %d disks failed", ErrDisksFailed, len(failed), len(results))
		}
		log.Warnf("registering clone %q with %d failed disk(s)", req.Name, len(failed))
	}

	rewritten, err := domXML.Marshal()
	if err != nil {
		return nil, results, fmt.Errorf("failed to serialize clone descriptor: %w", err)
	}

	dom, err := o.client.DomainDefineXML(rewritten)
	if err != nil {
		return nil, results, fmt.Errorf("failed to define clone %q: %w", req.Name, err)
	}

	log.Infof("defined clone domain %q (%s)", dom.Name, newUUID)

	return &registry.Domain{
		Name: dom.Name,
		ID:   -1,
		UUID: uuid.UUID(dom.UUID),
		Meta: overlay.Default(),
	}, results, nil
}

// cloneDisks rewrites the descriptor's disk devices in place and
// returns one result per disk device.
func (o *Orchestrator) cloneDisks(ctx context.Context, domXML *libvirtxml.Domain, req Request) []DiskResult {
	if domXML.Devices == nil {
		return nil
	}

	results := make([]DiskResult, 0, len(domXML.Devices.Disks))
	for i := range domXML.Devices.Disks {
		disk := &domXML.Devices.Disks[i]
		results = append(results, o.cloneDisk(ctx, disk, req))
	}
	return results
}

func (o *Orchestrator) cloneDisk(ctx context.Context, disk *libvirtxml.DomainDisk, req Request) DiskResult {
	result := DiskResult{}
	if disk.Target != nil {
		result.Device = disk.Target.Dev
	}
	result.SourcePath = diskSourcePath(disk)

	// Incomplete disk entries (no source reference, or no target
	// device name) are carried over unchanged; they must not abort
	// the clone.
	if result.SourcePath == "" || result.Device == "" {
		log.Warnf("skipping malformed disk entry (dev=%q, source=%q)", result.Device, result.SourcePath)
		result.Skipped = true
		return result
	}

	// Read-only disks are shared, not cloned: both domains point at
	// the same backing file on purpose.
	if disk.ReadOnly != nil {
		result.Shared = true
		return result
	}

	source, err := o.volumes.ResolveVolume(ctx, result.SourcePath)
	if err != nil {
		result.Err = fmt.Errorf("failed to resolve volume: %w", err)
		return result
	}

	var newVol *storage.Volume
	name := cloneVolumeName(req.Name, result.Device, source.Format)
	if req.Mode == ModeLinked && source.Format.SupportsBacking() {
		newVol, err = o.volumes.CreateLinked(ctx, source, name)
		result.Linked = err == nil
	} else {
		if req.Mode == ModeLinked {
			log.Warnf("disk %s: format %s cannot back a linked clone, copying instead", result.Device, source.Format)
		}
		newVol, err = o.volumes.CreateCopy(ctx, source, name)
	}
	if err != nil {
		result.Linked = false
		result.Err = fmt.Errorf("failed to provision volume: %w", err)
		return result
	}

	setDiskSourcePath(disk, newVol.Path)
	result.NewPath = newVol.Path
	return result
}

// diskSourcePath extracts the disk's source path from whichever source
// variant the descriptor uses. Returns "" when there is none.
func diskSourcePath(disk *libvirtxml.DomainDisk) string {
	if disk.Source == nil {
		return ""
	}
	if disk.Source.File != nil {
		return disk.Source.File.File
	}
	if disk.Source.Block != nil {
		return disk.Source.Block.Dev
	}
	return ""
}

// setDiskSourcePath rewrites the disk's source reference to the newly
// provisioned volume. Provisioned volumes are always file-backed.
func setDiskSourcePath(disk *libvirtxml.DomainDisk, path string) {
	disk.Source = &libvirtxml.DomainDiskSource{
		File: &libvirtxml.DomainDiskSourceFile{File: path},
	}
}

// cloneVolumeName names a clone's disk volume after the clone and the
// target device, with an extension matching the volume format.
func cloneVolumeName(cloneName, dev string, format storage.VolumeFormat) string {
	ext := string(format)
	if format == storage.VolumeFormatRaw {
		ext = "img"
	}
	return fmt.Sprintf("%s-%s.%s", cloneName, dev, ext)
}
