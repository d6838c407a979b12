package storage

import (
	"context"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	libvirtxml "libvirt.org/go/libvirtxml"
)

// LibvirtClient is the interface for libvirt storage operations.
// This allows for dependency injection and testing.
type LibvirtClient interface {
	StorageVolLookupByPath(Path string) (libvirt.StorageVol, error)
	StoragePoolLookupByVolume(Vol libvirt.StorageVol) (libvirt.StoragePool, error)
	StorageVolGetXMLDesc(Vol libvirt.StorageVol, Flags uint32) (string, error)
	StorageVolGetPath(Vol libvirt.StorageVol) (string, error)
	StorageVolCreateXML(Pool libvirt.StoragePool, XML string, Flags libvirt.StorageVolCreateFlags) (libvirt.StorageVol, error)
	StorageVolCreateXMLFrom(Pool libvirt.StoragePool, XML string, Clonevol libvirt.StorageVol, Flags libvirt.StorageVolCreateFlags) (libvirt.StorageVol, error)
}

// Manager coordinates storage volume resolution and clone provisioning.
type Manager struct {
	client LibvirtClient
}

// NewManager creates a new storage manager.
func NewManager(client LibvirtClient) *Manager {
	return &Manager{
		client: client,
	}
}

// ResolveVolume resolves a disk source path to its storage volume and
// containing pool, and parses the volume descriptor for its format and
// capacity. A volume descriptor without an explicit format is raw.
func (m *Manager) ResolveVolume(ctx context.Context, path string) (*Volume, error) {
	vol, err := m.client.StorageVolLookupByPath(path)
	if err != nil {
		return nil, fmt.Errorf("volume not found for path %s: %w", path, err)
	}

	pool, err := m.client.StoragePoolLookupByVolume(vol)
	if err != nil {
		return nil, fmt.Errorf("pool not found for volume %s: %w", vol.Name, err)
	}

	desc, err := m.client.StorageVolGetXMLDesc(vol, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch volume descriptor for %s: %w", vol.Name, err)
	}

	var volXML libvirtxml.StorageVolume
	if err := volXML.Unmarshal(desc); err != nil {
		return nil, fmt.Errorf("failed to parse volume descriptor for %s: %w", vol.Name, err)
	}

	format := VolumeFormatRaw
	if volXML.Target != nil && volXML.Target.Format != nil && volXML.Target.Format.Type != "" {
		format = VolumeFormat(volXML.Target.Format.Type)
	}

	var capacity uint64
	if volXML.Capacity != nil {
		capacity = volXML.Capacity.Value
	}

	return &Volume{
		Name:     vol.Name,
		Path:     path,
		Format:   format,
		Capacity: capacity,
		Pool:     pool.Name,
		vol:      vol,
		pool:     pool,
	}, nil
}
