package topo

import (
	"sync"

	"go.uber.org/zap"

	of "github.com/netrack/flowctl"
	"github.com/netrack/flowctl/ofp"
)

// AdminState mirrors the administrative configuration of a port.
type AdminState int

const (
	AdminUp AdminState = iota
	AdminDown
	AdminNoRecv
	AdminNoFwd
	AdminNoPacketIn
)

func adminStateOf(c ofp.PortConfig) AdminState {
	switch {
	case c&ofp.PortConfigDown != 0:
		return AdminDown
	case c&ofp.PortConfigNoFwd != 0:
		return AdminNoFwd
	case c&ofp.PortConfigNoRcv != 0:
		return AdminNoRecv
	case c&ofp.PortConfigNoPacketIn != 0:
		return AdminNoPacketIn
	default:
		return AdminUp
	}
}

// LinkState mirrors the operational state of a port.
type LinkState int

const (
	LinkUp LinkState = iota
	LinkDown
	LinkBlocked
	LinkLive
)

func linkStateOf(s ofp.PortState) LinkState {
	switch {
	case s&ofp.PortStateLinkDown != 0:
		return LinkDown
	case s&ofp.PortStateBlocked != 0:
		return LinkBlocked
	case s&ofp.PortStateLive != 0:
		return LinkLive
	default:
		return LinkUp
	}
}

// PortDescriptor records everything TopologyTracker and the measurement
// engine need to know about a single switch port.
type PortDescriptor struct {
	Dpid   DatapathId
	PortNo PortNo

	AdminState AdminState
	LinkState  LinkState

	CurrSpeed uint32
	MaxSpeed  uint32
}

type portKey struct {
	dpid DatapathId
	port PortNo
}

// PortCatalog records per-port descriptors, mutated by port-desc
// multipart replies and PortStatus events.
type PortCatalog struct {
	log      *zap.SugaredLogger
	registry *SwitchRegistry

	mu    sync.RWMutex
	ports map[portKey]*PortDescriptor
}

func NewPortCatalog(log *zap.SugaredLogger, registry *SwitchRegistry) *PortCatalog {
	return &PortCatalog{log: log, registry: registry, ports: make(map[portKey]*PortDescriptor)}
}

// Get returns the descriptor for (dpid, port), if known.
func (c *PortCatalog) Get(dpid DatapathId, port PortNo) (*PortDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.ports[portKey{dpid, port}]
	return d, ok
}

// Ports returns every known port of a switch.
func (c *PortCatalog) Ports(dpid DatapathId) []*PortDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*PortDescriptor
	for k, d := range c.ports {
		if k.dpid == dpid {
			out = append(out, d)
		}
	}
	return out
}

func (c *PortCatalog) set(dpid DatapathId, p ofp.Port) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ports[portKey{dpid, p.PortNo}] = &PortDescriptor{
		Dpid:       dpid,
		PortNo:     p.PortNo,
		AdminState: adminStateOf(p.Config),
		LinkState:  linkStateOf(p.State),
		CurrSpeed:  p.CurrSpeed,
		MaxSpeed:   p.MaxSpeed,
	}
}

// applyPortStatus folds a PortStatus event in, zeroing CurrSpeed when
// the link goes down or is blocked — a down port carries no bandwidth.
func (c *PortCatalog) applyPortStatus(dpid DatapathId, status *ofp.PortStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := portKey{dpid, status.Port.PortNo}
	d, ok := c.ports[key]
	if !ok {
		d = &PortDescriptor{Dpid: dpid, PortNo: status.Port.PortNo}
		c.ports[key] = d
	}

	d.AdminState = adminStateOf(status.Port.Config)
	d.LinkState = linkStateOf(status.Port.State)
	d.MaxSpeed = status.Port.MaxSpeed
	d.CurrSpeed = status.Port.CurrSpeed

	if d.LinkState == LinkDown || d.LinkState == LinkBlocked {
		d.CurrSpeed = 0
	}
}

// Serve implements of.Handler for of.TypePortStatus messages, resolving
// the reporting datapath from the connection the event arrived on
// through SwitchRegistry.LookupByConn, the same lookup every measure
// package collector uses to identify the originating switch.
func (c *PortCatalog) Serve(rw of.ResponseWriter, req *of.Request) {
	dpid, ok := c.registry.LookupByConn(rw.Conn())
	if !ok {
		return
	}

	var status ofp.PortStatus
	if _, err := status.ReadFrom(req.Body); err != nil {
		c.log.Warnw("failed to parse port status", "error", err)
		return
	}

	c.applyPortStatus(dpid, &status)
}

// ApplyPortDescription folds the reply to a PortDesc multipart request
// into the catalog, refreshing CurrSpeed for every reported port.
func (c *PortCatalog) ApplyPortDescription(dpid DatapathId, ports ofp.Ports) {
	for _, p := range ports {
		c.set(dpid, p)
	}
}
