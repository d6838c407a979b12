// Package storage resolves and provisions libvirt storage volumes on
// behalf of the clone orchestrator.
//
// The Manager resolves a disk's backing volume from its source path,
// determines the volume's format from its descriptor, and provisions
// clone volumes in the same pool: either a thin copy-on-write delta
// referencing the source as a backing file, or a full content copy.
// The source volume is read-only input in both cases.
//
// Consumer-Side Interface:
//
// LibvirtClient lists only the storage operations this package needs.
// In production it is satisfied by *libvirt.Libvirt; tests supply mock
// implementations (see mocks_test.go).
package storage
