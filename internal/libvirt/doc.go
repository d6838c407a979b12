// Package libvirt provides a client wrapper for interacting with libvirt.
//
// This package wraps github.com/digitalocean/go-libvirt to provide
// connection management (connect, disconnect, ping) against the local
// libvirtd Unix socket.
//
// The Client type handles the connection lifecycle, while exposing the
// underlying *libvirt.Libvirt for packages that need direct access to
// the libvirt API.
//
// Connection Management:
//
//	client, err := libvirt.Connect("", 0)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	// Check connection
//	if err := client.Ping(); err != nil {
//	    return err
//	}
//
// Consumer-Side Interfaces:
//
// This package does not define interfaces. Instead, consumers
// (internal/registry, internal/storage, internal/clone, internal/session)
// define their own client interfaces specifying only the operations they
// need. The *libvirt.Libvirt type satisfies these interfaces implicitly,
// enabling clean dependency injection.
package libvirt
