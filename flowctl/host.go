// Package flowctl installs bidirectional forwarding state along a
// chosen path and classifies inbound packets to drive that
// installation on demand.
package flowctl

import (
	"net"
	"sync"

	"github.com/netrack/flowctl/topo"
)

// HostLocation records the point of attachment of an end host: the
// switch and port it was last observed on.
type HostLocation struct {
	Dpid topo.DatapathId
	Port topo.PortNo
}

// HostLocator learns host locations from ARP observations. Only the
// latest observation is kept per IP; a host that moves is picked up on
// its next ARP.
type HostLocator struct {
	mu    sync.RWMutex
	hosts map[string]HostLocation
}

// NewHostLocator creates an empty locator.
func NewHostLocator() *HostLocator {
	return &HostLocator{hosts: make(map[string]HostLocation)}
}

// Observe records that ip was last seen attached at (dpid, port),
// overwriting any prior binding.
func (h *HostLocator) Observe(ip net.IP, dpid topo.DatapathId, port topo.PortNo) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.hosts[ip.String()] = HostLocation{Dpid: dpid, Port: port}
}

// Lookup returns the last known location of ip, if any.
func (h *HostLocator) Lookup(ip net.IP) (HostLocation, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	loc, ok := h.hosts[ip.String()]
	return loc, ok
}
