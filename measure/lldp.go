package measure

import (
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"go.uber.org/zap"

	of "github.com/netrack/flowctl"
	"github.com/netrack/flowctl/ofp"
	"github.com/netrack/flowctl/topo"
)

// lldpTimestampOUI is an organizationally-specific TLV identifier used
// to smuggle the relay send timestamp inside an otherwise standard
// LLDP frame; chosen from the IEEE 802.1 reserved experimental range.
const (
	lldpTimestampOUI     = 0x0080c2
	lldpTimestampSubtype = 0x01
)

// DefaultLLDPEmitPeriod is the default interval between LLDP relay
// emissions.
const DefaultLLDPEmitPeriod = time.Second

// LLDPDelayProbe measures the relayed one-way LLDP transit time: it
// emits LLDP frames (with an embedded send timestamp) out of every
// known switch port, and on packet-in tries to decode the frame back
// to recover (src_dpid, src_port, send_ts).
type LLDPDelayProbe struct {
	log      *zap.SugaredLogger
	registry *topo.SwitchRegistry
	tracker  *topo.TopologyTracker
	period   time.Duration
	runner   of.Runner

	mu    sync.RWMutex
	delay map[linkSide]time.Duration // lldp_delay(a,b), keyed by (src,dst) dpid pair
}

type linkSide struct {
	src, dst topo.DatapathId
}

// NewLLDPDelayProbe creates a probe bound to registry. Successful LLDP
// decodes on the packet-in path feed discovered links back into
// tracker, since relayed LLDP is the controller's only source of
// switch-to-switch adjacency. period and runner govern RunEmit; a
// non-positive period falls back to DefaultLLDPEmitPeriod and a nil
// runner falls back to of.SequentialRunner.
func NewLLDPDelayProbe(log *zap.SugaredLogger, registry *topo.SwitchRegistry, tracker *topo.TopologyTracker, period time.Duration, runner of.Runner) *LLDPDelayProbe {
	if period <= 0 {
		period = DefaultLLDPEmitPeriod
	}
	if runner == nil {
		runner = of.SequentialRunner{}
	}

	return &LLDPDelayProbe{
		log:      log,
		registry: registry,
		tracker:  tracker,
		period:   period,
		runner:   runner,
		delay:    make(map[linkSide]time.Duration),
	}
}

// RunEmit starts the periodic LLDP relay loop, emitting a frame out of
// every known-up port of every connected switch once per period; it
// returns when stop is closed. This is the only way the topology graph
// gains edges in production — AddLink is invoked exclusively from
// Serve, which only fires when a relayed frame emitted here comes back
// on some other switch's packet-in.
func (p *LLDPDelayProbe) RunEmit(stop <-chan struct{}, catalog *topo.PortCatalog) {
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.emitAll(catalog)
		}
	}
}

func (p *LLDPDelayProbe) emitAll(catalog *topo.PortCatalog) {
	for _, e := range p.registry.List() {
		e, ports := e, emittablePorts(catalog.Ports(e.ID))
		p.runner.Run(func() { p.Emit(e, ports) })
	}
}

// emittablePorts filters out the switch's local port and any port that
// is administratively or operationally down, mirroring the skip
// PortStatsCollector.ApplyPortStats already applies to the local port.
func emittablePorts(descs []*topo.PortDescriptor) []topo.PortNo {
	ports := make([]topo.PortNo, 0, len(descs))
	for _, d := range descs {
		if d.PortNo == topo.PortLocal {
			continue
		}
		if d.AdminState != topo.AdminUp {
			continue
		}
		if d.LinkState == topo.LinkDown {
			continue
		}
		ports = append(ports, d.PortNo)
	}
	return ports
}

// Delay returns the most recently measured lldp_delay(src, dst).
func (p *LLDPDelayProbe) Delay(src, dst topo.DatapathId) (time.Duration, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	d, ok := p.delay[linkSide{src, dst}]
	return d, ok
}

// Emit builds and sends an LLDP frame out of every given port of a
// switch, carrying the current send timestamp in an org-specific TLV.
func (p *LLDPDelayProbe) Emit(e *topo.SwitchEntry, ports []topo.PortNo) {
	now := time.Now()

	for _, port := range ports {
		frame, err := buildLLDPFrame(e.ID, port, now)
		if err != nil {
			p.log.Warnw("failed to build lldp frame", "error", err)
			continue
		}

		out := &ofp.PacketOut{
			Buffer: ofp.NoBuffer,
			InPort: ofp.PortController,
			Actions: ofp.Actions{&ofp.ActionOutput{
				Port:   port,
				MaxLen: ofp.ContentLenNoBuffer,
			}},
		}

		body, err := of.NewReader(&packetOutFrame{out: out, frame: frame})
		if err != nil {
			p.log.Warnw("failed to encode lldp packet-out", "error", err)
			continue
		}

		req, err := of.NewRequest(of.TypePacketOut, body)
		if err != nil {
			continue
		}

		if err := of.Send(e.Conn, req); err != nil {
			p.log.Warnw("failed to send lldp packet-out", "dpid", e.ID, "error", err)
			continue
		}
	}
}

// packetOutFrame serializes a PacketOut header followed by the raw
// Ethernet frame bytes that make up its payload.
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

func buildLLDPFrame(dpid topo.DatapathId, port topo.PortNo, ts time.Time) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       dpidMAC(dpid),
		DstMAC:       layers.LLDPNearestBridgeMulticastAddress,
		EthernetType: layers.EthernetTypeLinkLayerDiscovery,
	}

	tsValue := []byte(strconv.FormatInt(ts.UnixNano(), 10))

	ld := &layers.LinkLayerDiscovery{
		ChassisID: layers.LLDPChassisID{
			Subtype: layers.LLDPChassisIDSubTypeLocal,
			ID:      []byte(strconv.FormatUint(uint64(dpid), 10)),
		},
		PortID: layers.LLDPPortID{
			Subtype: layers.LLDPPortIDSubtypeLocal,
			ID:      []byte(strconv.FormatUint(uint64(port), 10)),
		},
		TTL: 120,
		Values: []layers.LLDPOrgSpecificTLV{{
			OUI:     lldpTimestampOUI,
			SubType: lldpTimestampSubtype,
			Info:    tsValue,
		}},
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}

	if err := gopacket.SerializeLayers(buf, opts, eth, ld); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// dpidMAC derives a locally-administered MAC address from a datapath
// ID, so the relayed frame carries a stable, recognizable source.
func dpidMAC(dpid topo.DatapathId) []byte {
	mac := make([]byte, 6)
	mac[0] = 0x02
	for i := 1; i < 6; i++ {
		mac[i] = byte(dpid >> uint(8*(5-i)))
	}
	return mac
}

// Serve implements of.Handler for of.TypePacketIn messages carrying a
// relayed LLDP frame. On success it yields (src_dpid, src_port) and
// records lldp_delay(src_dpid, dst_dpid) where dst_dpid is the
// receiving switch.
func (p *LLDPDelayProbe) Serve(rw of.ResponseWriter, req *of.Request) {
	dstID, ok := p.registry.LookupByConn(rw.Conn())
	if !ok {
		return
	}

	var in ofp.PacketIn
	if _, err := in.ReadFrom(req.Body); err != nil {
		return
	}

	pkt := gopacket.NewPacket(in.Data, layers.LayerTypeEthernet, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	lldpLayer := pkt.Layer(layers.LayerTypeLinkLayerDiscovery)
	if lldpLayer == nil {
		return
	}

	ld := lldpLayer.(*layers.LinkLayerDiscovery)
	srcDpid, err := strconv.ParseUint(string(ld.ChassisID.ID), 10, 64)
	if err != nil {
		return
	}
	srcPort, err := strconv.ParseUint(string(ld.PortID.ID), 10, 64)
	if err != nil {
		return
	}

	var sentNanos int64
	for _, tlv := range ld.Values {
		if tlv.OUI == lldpTimestampOUI && tlv.SubType == lldpTimestampSubtype {
			sentNanos, err = strconv.ParseInt(string(tlv.Info), 10, 64)
			break
		}
	}
	if sentNanos == 0 {
		return
	}

	d := time.Since(time.Unix(0, sentNanos))
	if d < 0 {
		d = 0
	}

	src := topo.DatapathId(srcDpid)

	p.mu.Lock()
	p.delay[linkSide{src, dstID}] = d
	p.mu.Unlock()

	if p.tracker != nil {
		dstPort := inPortOf(in.Match)
		p.tracker.AddLink(topo.Link{
			Src: src, SrcPort: topo.PortNo(srcPort),
			Dst: dstID, DstPort: dstPort,
		})
	}
}

// inPortOf extracts the in_port match field carried by a packet-in.
func inPortOf(m ofp.Match) topo.PortNo {
	xm := m.Field(ofp.XMTypeInPort)
	if xm == nil {
		return 0
	}
	return topo.PortNo(xm.Value.UInt32())
}
