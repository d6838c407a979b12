package storage

import (
	"context"
	"fmt"
	"strings"

	libvirtxml "libvirt.org/go/libvirtxml"
)

// CreateLinked provisions a new volume in the source volume's pool
// whose backing store references the source at the source's format.
// The result is a thin copy-on-write delta; the source is never
// opened for writing.
//
// The source format must support backing files; callers are expected
// to have checked Format.SupportsBacking() and fall back to CreateCopy
// otherwise.
func (m *Manager) CreateLinked(ctx context.Context, source *Volume, name string) (*Volume, error) {
	if !source.Format.SupportsBacking() {
		return nil, fmt.Errorf("format %s does not support backing files", source.Format)
	}

	volXML, err := generateVolumeXML(name, source, true)
	if err != nil {
		return nil, fmt.Errorf("failed to generate volume XML: %w", err)
	}

	vol, err := m.client.StorageVolCreateXML(source.pool, volXML, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create linked volume: %w", err)
	}

	path, err := m.client.StorageVolGetPath(vol)
	if err != nil {
		return nil, fmt.Errorf("failed to get path of new volume: %w", err)
	}

	return &Volume{
		Name:     vol.Name,
		Path:     path,
		Format:   source.Format,
		Capacity: source.Capacity,
		Pool:     source.Pool,
		vol:      vol,
		pool:     source.pool,
	}, nil
}

// CreateCopy provisions a new volume in the source volume's pool as a
// full content copy of the source. No backing-file relationship is
// established; the copy is fully independent.
func (m *Manager) CreateCopy(ctx context.Context, source *Volume, name string) (*Volume, error) {
	volXML, err := generateVolumeXML(name, source, false)
	if err != nil {
		return nil, fmt.Errorf("failed to generate volume XML: %w", err)
	}

	vol, err := m.client.StorageVolCreateXMLFrom(source.pool, volXML, source.vol, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to copy volume: %w", err)
	}

	path, err := m.client.StorageVolGetPath(vol)
	if err != nil {
		return nil, fmt.Errorf("failed to get path of new volume: %w", err)
	}

	return &Volume{
		Name:     vol.Name,
		Path:     path,
		Format:   source.Format,
		Capacity: source.Capacity,
		Pool:     source.Pool,
		vol:      vol,
		pool:     source.pool,
	}, nil
}

// generateVolumeXML generates XML for a clone volume derived from the
// source. When linked is set, the source becomes the backing store.
func generateVolumeXML(name string, source *Volume, linked bool) (string, error) {
	vol := &libvirtxml.StorageVolume{
		Type: "file",
		Name: name,
		Capacity: &libvirtxml.StorageVolumeSize{
			Value: source.Capacity,
			Unit:  "B",
		},
		Target: &libvirtxml.StorageVolumeTarget{
			Format: &libvirtxml.StorageVolumeTargetFormat{
				Type: string(source.Format),
			},
		},
	}

	if linked {
		vol.BackingStore = &libvirtxml.StorageVolumeBackingStore{
			Path: source.Path,
			Format: &libvirtxml.StorageVolumeTargetFormat{
				Type: string(source.Format),
			},
		}
	}

	xmlBytes, err := vol.Marshal()
	if err != nil {
		return "", err
	}

	// Clean up the XML: remove standalone attribute
	xml := string(xmlBytes)
	xml = strings.TrimPrefix(xml, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>")
	xml = strings.TrimSpace(xml)

	return xml, nil
}
