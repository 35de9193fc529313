package flowctl

import (
	"io"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"go.uber.org/zap"

	of "github.com/netrack/flowctl"
	"github.com/netrack/flowctl/ofp"
	"github.com/netrack/flowctl/routing"
	"github.com/netrack/flowctl/topo"
)

// DefaultPolicy is the policy PacketInRouter installs flows under when
// none is specified.
const DefaultPolicy = routing.PolicyHop

// PacketInRouter classifies inbound packets and drives HostLocator and
// FlowInstaller accordingly: ARP observations update host location,
// IPv4 packets trigger path computation and flow installation.
type PacketInRouter struct {
	log       *zap.SugaredLogger
	registry  *topo.SwitchRegistry
	locator   *HostLocator
	installer *FlowInstaller
	engine    *routing.PathEngine
	policy    routing.Policy
}

// NewPacketInRouter wires together the collaborators needed to react to
// packet-in events.
func NewPacketInRouter(log *zap.SugaredLogger, registry *topo.SwitchRegistry, locator *HostLocator, installer *FlowInstaller, engine *routing.PathEngine) *PacketInRouter {
	return &PacketInRouter{
		log:       log,
		registry:  registry,
		locator:   locator,
		installer: installer,
		engine:    engine,
		policy:    DefaultPolicy,
	}
}

// SetPolicy overrides the default routing policy used for IPv4 flows.
func (r *PacketInRouter) SetPolicy(p routing.Policy) {
	r.policy = p
}

// Serve implements of.Handler for of.TypePacketIn messages.
func (r *PacketInRouter) Serve(rw of.ResponseWriter, req *of.Request) {
	dpid, ok := r.registry.LookupByConn(rw.Conn())
	if !ok {
		return
	}

	var in ofp.PacketIn
	if _, err := in.ReadFrom(req.Body); err != nil {
		r.log.Warnw("failed to parse packet-in", "error", err)
		return
	}

	inPort := inPortOf(in.Match)

	pkt := gopacket.NewPacket(in.Data, layers.LayerTypeEthernet, gopacket.DecodeOptions{Lazy: true, NoCopy: true})

	if arpLayer := pkt.Layer(layers.LayerTypeARP); arpLayer != nil {
		r.handleARP(dpid, inPort, &in, arpLayer.(*layers.ARP))
		return
	}

	if ipLayer := pkt.Layer(layers.LayerTypeIPv4); ipLayer != nil {
		r.handleIPv4(dpid, ipLayer.(*layers.IPv4))
		return
	}
}

func inPortOf(m ofp.Match) topo.PortNo {
	xm := m.Field(ofp.XMTypeInPort)
	if xm == nil {
		return 0
	}
	return topo.PortNo(xm.Value.UInt32())
}

// handleARP learns the source host's attachment point and, when the
// destination is already known, relays the ARP frame as a PacketOut
// from the destination's own switch out its learned port — mirroring
// the original's arp_forwarding, which always replies through the
// destination's datapath rather than the one the request arrived on.
// An unknown destination is dropped silently; this core never floods.
func (r *PacketInRouter) handleARP(dpid topo.DatapathId, port topo.PortNo, in *ofp.PacketIn, arp *layers.ARP) {
	src := net.IP(arp.SourceProtAddress)
	r.locator.Observe(src, dpid, port)

	dst := net.IP(arp.DstProtAddress)
	dstLoc, ok := r.locator.Lookup(dst)
	if !ok {
		return
	}

	entry, ok := r.registry.Get(dstLoc.Dpid)
	if !ok {
		return
	}

	if err := r.relayARP(entry, in, dstLoc.Port); err != nil {
		r.log.Warnw("failed to relay arp packet-out", "dst", dst, "error", err)
	}
}

// relayARP sends the original ARP frame out entry's outPort, carrying
// forward whatever buffer the switch already holds the packet under
// (only re-attaching the frame data when the packet was not buffered).
func (r *PacketInRouter) relayARP(entry *topo.SwitchEntry, in *ofp.PacketIn, outPort topo.PortNo) error {
	out := &ofp.PacketOut{
		Buffer: in.Buffer,
		InPort: ofp.PortController,
		Actions: ofp.Actions{&ofp.ActionOutput{
			Port:   outPort,
			MaxLen: ofp.ContentLenNoBuffer,
		}},
	}

	frame := &packetOutFrame{out: out}
	if in.Buffer == ofp.NoBuffer {
		frame.frame = in.Data
	}

	body, err := of.NewReader(frame)
	if err != nil {
		return err
	}

	req, err := of.NewRequest(of.TypePacketOut, body)
	if err != nil {
		return err
	}

	return of.Send(entry.Conn, req)
}

// packetOutFrame serializes a PacketOut header followed by the raw
// Ethernet frame bytes carried as its payload, mirroring
// measure.LLDPDelayProbe's own packet-out encoding.
type packetOutFrame struct {
	out   *ofp.PacketOut
	frame []byte
}

func (p *packetOutFrame) WriteTo(w io.Writer) (int64, error) {
	n, err := p.out.WriteTo(w)
	if err != nil {
		return n, err
	}

	nn, err := w.Write(p.frame)
	return n + int64(nn), err
}

func (r *PacketInRouter) handleIPv4(dpid topo.DatapathId, ip *layers.IPv4) {
	srcLoc, ok := r.locator.Lookup(ip.SrcIP)
	if !ok {
		return
	}
	dstLoc, ok := r.locator.Lookup(ip.DstIP)
	if !ok {
		return
	}

	path, err := r.engine.Route(srcLoc.Dpid, dstLoc.Dpid, r.policy)
	if err != nil {
		r.log.Warnw("path computation failed", "src", ip.SrcIP, "dst", ip.DstIP, "error", err)
		return
	}
	if len(path) == 0 {
		r.log.Debugw("no path available", "src", ip.SrcIP, "dst", ip.DstIP)
		return
	}

	if err := r.installer.Install(path, ip.SrcIP, ip.DstIP); err != nil {
		r.log.Warnw("flow installation failed", "src", ip.SrcIP, "dst", ip.DstIP, "error", err)
	}
}
