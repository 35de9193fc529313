package flowctl

import (
	"net"
	"time"

	"go.uber.org/zap"

	of "github.com/netrack/flowctl"
	"github.com/netrack/flowctl/ctlerr"
	"github.com/netrack/flowctl/metrics"
	"github.com/netrack/flowctl/ofp"
	"github.com/netrack/flowctl/ofputil"
	"github.com/netrack/flowctl/topo"
)

const (
	flowPriority    = 1
	flowIdleTimeout = 250 * time.Second
)

// FlowInstaller programs bidirectional forwarding state along a chosen
// path in a single, idempotent operation.
type FlowInstaller struct {
	log      *zap.SugaredLogger
	registry *topo.SwitchRegistry
	tracker  *topo.TopologyTracker
	locator  *HostLocator
	metrics  *metrics.Registry
}

// NewFlowInstaller creates an installer bound to registry (for switch
// channels), tracker (for link port pairs), and locator (for host
// attachment points).
func NewFlowInstaller(log *zap.SugaredLogger, registry *topo.SwitchRegistry, tracker *topo.TopologyTracker, locator *HostLocator) *FlowInstaller {
	return &FlowInstaller{log: log, registry: registry, tracker: tracker, locator: locator}
}

// WithMetrics attaches a metrics registry that Install reports
// installed-segment counts to.
func (f *FlowInstaller) WithMetrics(m *metrics.Registry) *FlowInstaller {
	f.metrics = m
	return f
}

// Install programs forward and reverse flow entries for (srcIP, dstIP)
// along path. Re-invoking with identical inputs yields the same rule
// set, since every add is preceded by a delete of the same match.
func (f *FlowInstaller) Install(path []topo.DatapathId, srcIP, dstIP net.IP) error {
	switch len(path) {
	case 0:
		return ctlerr.New(ctlerr.PlanningFailure, "flowctl.Install", errNoPath)

	case 1:
		ingress, ok1 := f.locator.Lookup(srcIP)
		egress, ok2 := f.locator.Lookup(dstIP)
		if !ok1 || !ok2 {
			return ctlerr.New(ctlerr.MissingTopologyData, "flowctl.Install", errUnknownHost)
		}

		return f.installSegment(path[0], srcIP, dstIP, ingress.Port, egress.Port)
	}

	ingress, ok := f.locator.Lookup(srcIP)
	if !ok {
		return ctlerr.New(ctlerr.MissingTopologyData, "flowctl.Install", errUnknownHost)
	}
	egress, ok := f.locator.Lookup(dstIP)
	if !ok {
		return ctlerr.New(ctlerr.MissingTopologyData, "flowctl.Install", errUnknownHost)
	}

	revPort := ingress.Port

	for i := 0; i < len(path)-1; i++ {
		link, ok := f.findLink(path[i], path[i+1])
		if !ok {
			return ctlerr.New(ctlerr.MissingTopologyData, "flowctl.Install", errMissingLink)
		}

		if err := f.installSegment(path[i], srcIP, dstIP, revPort, link.SrcPort); err != nil {
			return err
		}

		revPort = link.DstPort
	}

	return f.installSegment(path[len(path)-1], srcIP, dstIP, revPort, egress.Port)
}

func (f *FlowInstaller) findLink(a, b topo.DatapathId) (topo.Link, bool) {
	for _, l := range f.tracker.Neighbors(a) {
		if l.Dst == b {
			return l, true
		}
	}
	return topo.Link{}, false
}

// installSegment installs the forward rule (srcIP→dstIP, output
// fwdOut) and the reverse rule (dstIP→srcIP, output revOut) on a single
// switch, evicting any stale rule with the same match first.
func (f *FlowInstaller) installSegment(dpid topo.DatapathId, srcIP, dstIP net.IP, revOut, fwdOut topo.PortNo) error {
	entry, ok := f.registry.Get(dpid)
	if !ok {
		return ctlerr.New(ctlerr.MissingTopologyData, "flowctl.installSegment", errUnknownSwitch)
	}

	fwdMatch := ofputil.ExtendedMatch(
		ofputil.MatchEthType(0x0800),
		ofputil.MatchIPv4Src(srcIP),
		ofputil.MatchIPv4Dst(dstIP),
	)
	revMatch := ofputil.ExtendedMatch(
		ofputil.MatchEthType(0x0800),
		ofputil.MatchIPv4Src(dstIP),
		ofputil.MatchIPv4Dst(srcIP),
	)

	if err := f.replace(entry, fwdMatch, fwdOut); err != nil {
		return err
	}
	if err := f.replace(entry, revMatch, revOut); err != nil {
		return err
	}

	if f.metrics != nil {
		f.metrics.FlowsInstalledTotal.Inc()
	}
	return nil
}

func (f *FlowInstaller) replace(entry *topo.SwitchEntry, match ofp.Match, out topo.PortNo) error {
	del, err := ofputil.FlowFlush(0, match)
	if err != nil {
		return err
	}
	if err := of.Send(entry.Conn, del); err != nil {
		return ctlerr.New(ctlerr.TransientNetwork, "flowctl.replace", err)
	}

	add := &ofp.FlowMod{
		Table:       0,
		Command:     ofp.FlowAdd,
		Priority:    flowPriority,
		IdleTimeout: uint16(flowIdleTimeout.Seconds()),
		Buffer:      ofp.NoBuffer,
		Match:       match,
		Instructions: ofputil.ActionsApply(&ofp.ActionOutput{
			Port:   out,
			MaxLen: ofp.ContentLenNoBuffer,
		}),
	}

	body, err := of.NewReader(add)
	if err != nil {
		return err
	}

	req, err := of.NewRequest(of.TypeFlowMod, body)
	if err != nil {
		return err
	}

	if err := of.Send(entry.Conn, req); err != nil {
		return ctlerr.New(ctlerr.TransientNetwork, "flowctl.replace", err)
	}
	return nil
}

type sentinel string

func (s sentinel) Error() string { return string(s) }

const (
	errNoPath        = sentinel("flowctl: empty path")
	errUnknownHost   = sentinel("flowctl: host location unknown")
	errMissingLink   = sentinel("flowctl: missing link port pair")
	errUnknownSwitch = sentinel("flowctl: switch not connected")
)
