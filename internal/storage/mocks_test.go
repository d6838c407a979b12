package storage

import (
	"fmt"

	"github.com/digitalocean/go-libvirt"
	libvirtxml "libvirt.org/go/libvirtxml"
)

// mockLibvirtClient is a mock implementation of LibvirtClient for testing.
type mockLibvirtClient struct {
	// volumesByPath maps source path -> volume fixture.
	volumesByPath map[string]*mockVolume

	// failCreate forces both create calls to fail.
	failCreate error

	// recorded create calls
	createdXML     []string
	createdFromXML []string
	lastCloneVol   libvirt.StorageVol
}

type mockVolume struct {
	name    string
	pool    string
	path    string
	xmlDesc string
}

func newMockLibvirtClient() *mockLibvirtClient {
	return &mockLibvirtClient{
		volumesByPath: make(map[string]*mockVolume),
	}
}

func (m *mockLibvirtClient) addVolume(v *mockVolume) {
	m.volumesByPath[v.path] = v
}

func (m *mockLibvirtClient) StorageVolLookupByPath(path string) (libvirt.StorageVol, error) {
	v, ok := m.volumesByPath[path]
	if !ok {
		return libvirt.StorageVol{}, fmt.Errorf("no storage vol with matching path %q", path)
	}
	return libvirt.StorageVol{Pool: v.pool, Name: v.name, Key: v.path}, nil
}

func (m *mockLibvirtClient) StoragePoolLookupByVolume(vol libvirt.StorageVol) (libvirt.StoragePool, error) {
	if vol.Pool == "" {
		return libvirt.StoragePool{}, fmt.Errorf("no pool for volume %q", vol.Name)
	}
	return libvirt.StoragePool{Name: vol.Pool}, nil
}

func (m *mockLibvirtClient) StorageVolGetXMLDesc(vol libvirt.StorageVol, flags uint32) (string, error) {
	v, ok := m.volumesByPath[vol.Key]
	if !ok {
		return "", fmt.Errorf("no storage vol %q", vol.Name)
	}
	return v.xmlDesc, nil
}

func (m *mockLibvirtClient) StorageVolGetPath(vol libvirt.StorageVol) (string, error) {
	return "/pool/" + vol.Pool + "/" + vol.Name, nil
}

func (m *mockLibvirtClient) StorageVolCreateXML(pool libvirt.StoragePool, xml string, flags libvirt.StorageVolCreateFlags) (libvirt.StorageVol, error) {
	if m.failCreate != nil {
		return libvirt.StorageVol{}, m.failCreate
	}
	m.createdXML = append(m.createdXML, xml)

	name, err := volumeNameFromXML(xml)
	if err != nil {
		return libvirt.StorageVol{}, err
	}
	return libvirt.StorageVol{Pool: pool.Name, Name: name}, nil
}

func (m *mockLibvirtClient) StorageVolCreateXMLFrom(pool libvirt.StoragePool, xml string, clonevol libvirt.StorageVol, flags libvirt.StorageVolCreateFlags) (libvirt.StorageVol, error) {
	if m.failCreate != nil {
		return libvirt.StorageVol{}, m.failCreate
	}
	m.createdFromXML = append(m.createdFromXML, xml)
	m.lastCloneVol = clonevol

	name, err := volumeNameFromXML(xml)
	if err != nil {
		return libvirt.StorageVol{}, err
	}
	return libvirt.StorageVol{Pool: pool.Name, Name: name}, nil
}

func volumeNameFromXML(xml string) (string, error) {
	var vol libvirtxml.StorageVolume
	if err := vol.Unmarshal(xml); err != nil {
		return "", fmt.Errorf("invalid volume XML: %w", err)
	}
	if vol.Name == "" {
		return "", fmt.Errorf("volume XML missing name")
	}
	return vol.Name, nil
}

// volumeXML builds a volume descriptor fixture for the mock.
func volumeXML(name, format string, capacity uint64) string {
	return fmt.Sprintf(
		`<volume type="file"><name>%s</name><capacity unit="bytes">%d</capacity><target><format type="%s"/></target></volume>`,
		name, capacity, format,
	)
}
