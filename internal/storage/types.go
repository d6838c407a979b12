package storage

import (
	"github.com/digitalocean/go-libvirt"
)

// VolumeFormat represents the on-disk format of a storage volume.
type VolumeFormat string

const (
	VolumeFormatQCOW2 VolumeFormat = "qcow2" // QCOW2 format
	VolumeFormatQED   VolumeFormat = "qed"   // QED format
	VolumeFormatRaw   VolumeFormat = "raw"   // Raw format
)

// SupportsBacking reports whether the format can reference another
// volume as a read-only backing file. Linked clones are only possible
// for these formats; anything else degrades to a full copy.
func (f VolumeFormat) SupportsBacking() bool {
	switch f {
	case VolumeFormatQCOW2, VolumeFormatQED:
		return true
	}
	return false
}

// Volume is a resolved storage volume: the libvirt handles plus the
// descriptor fields cloning needs.
type Volume struct {
	Name     string
	Path     string
	Format   VolumeFormat
	Capacity uint64 // bytes
	Pool     string

	vol  libvirt.StorageVol
	pool libvirt.StoragePool
}
