package topo

import (
	"sync"
	"time"

	"go.uber.org/zap"

	of "github.com/netrack/flowctl"
	"github.com/netrack/flowctl/ofp"
)

// default dwell time before a settled graph is declared stable.
const DefaultStableSeconds = 5 * time.Second

// Link describes a discovered directed connection between two
// datapaths, together with the port pair it rides on.
type Link struct {
	Src     DatapathId
	SrcPort PortNo
	Dst     DatapathId
	DstPort PortNo
}

type linkKey struct {
	src, dst DatapathId
}

// EdgeAnnotation carries the delay/bandwidth/loss overlay for a single
// directed edge.
type EdgeAnnotation struct {
	Delay              time.Duration
	AvailableBandwidth uint32 // kbit/s
	PacketLoss         float64
}

// TopologyTracker maintains the directed switch/link graph and detects
// when it has settled into a stable state.
type TopologyTracker struct {
	log           *zap.SugaredLogger
	registry      *SwitchRegistry
	stableSeconds time.Duration

	mu    sync.RWMutex
	nodes map[DatapathId]struct{}
	links map[linkKey]Link
	annot map[linkKey]EdgeAnnotation

	lastSnapshot   snapshot
	firstUnchanged time.Time
	stable         bool

	onStable   []func()
	onUnstable []func()

	now func() time.Time
}

// NewTopologyTracker creates a tracker bound to registry, whose switch
// enter/leave events drive node membership.
func NewTopologyTracker(log *zap.SugaredLogger, registry *SwitchRegistry, stableSeconds time.Duration) *TopologyTracker {
	if stableSeconds <= 0 {
		stableSeconds = DefaultStableSeconds
	}

	t := &TopologyTracker{
		log:           log,
		registry:      registry,
		stableSeconds: stableSeconds,
		nodes:         make(map[DatapathId]struct{}),
		links:         make(map[linkKey]Link),
		annot:         make(map[linkKey]EdgeAnnotation),
		now:           time.Now,
	}

	registry.OnEnter(func(e *SwitchEntry) { t.AddNode(e.ID) })
	registry.OnLeave(func(id DatapathId) { t.RemoveNode(id) })

	return t
}

// OnStable registers a callback fired exactly once per stabilization
// transition (false→true).
func (t *TopologyTracker) OnStable(fn func()) {
	t.onStable = append(t.onStable, fn)
}

// OnUnstable registers a callback fired whenever a previously stable
// graph is disturbed by a mutation (true→false).
func (t *TopologyTracker) OnUnstable(fn func()) {
	t.onUnstable = append(t.onUnstable, fn)
}

// Stable reports whether the graph is currently considered stable.
func (t *TopologyTracker) Stable() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stable
}

// AddNode registers a switch as a graph node and re-evaluates stability.
func (t *TopologyTracker) AddNode(id DatapathId) {
	t.mu.Lock()
	t.nodes[id] = struct{}{}
	t.mu.Unlock()

	t.reevaluate()
}

// RemoveNode drops a switch and every link touching it.
func (t *TopologyTracker) RemoveNode(id DatapathId) {
	t.mu.Lock()
	delete(t.nodes, id)
	for k, l := range t.links {
		if l.Src == id || l.Dst == id {
			delete(t.links, k)
			delete(t.annot, k)
		}
	}
	t.mu.Unlock()

	t.reevaluate()
}

// AddLink inserts both directions of a discovered physical link.
func (t *TopologyTracker) AddLink(l Link) {
	t.mu.Lock()
	t.links[linkKey{l.Src, l.Dst}] = l
	t.links[linkKey{l.Dst, l.Src}] = Link{
		Src: l.Dst, SrcPort: l.DstPort,
		Dst: l.Src, DstPort: l.SrcPort,
	}
	t.mu.Unlock()

	t.reevaluate()
}

// RemoveLink deletes both directions of a link between src and dst.
func (t *TopologyTracker) RemoveLink(src, dst DatapathId) {
	t.mu.Lock()
	delete(t.links, linkKey{src, dst})
	delete(t.links, linkKey{dst, src})
	delete(t.annot, linkKey{src, dst})
	delete(t.annot, linkKey{dst, src})
	t.mu.Unlock()

	t.reevaluate()
}

// Nodes returns the current set of datapath IDs in the graph.
func (t *TopologyTracker) Nodes() []DatapathId {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]DatapathId, 0, len(t.nodes))
	for id := range t.nodes {
		out = append(out, id)
	}
	return out
}

// Links returns every directed link currently known.
func (t *TopologyTracker) Links() []Link {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Link, 0, len(t.links))
	for _, l := range t.links {
		out = append(out, l)
	}
	return out
}

// Neighbors returns the outgoing links of dpid.
func (t *TopologyTracker) Neighbors(dpid DatapathId) []Link {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Link
	for k, l := range t.links {
		if k.src == dpid {
			out = append(out, l)
		}
	}
	return out
}

// Annotate records the delay/bandwidth/loss overlay for a directed edge.
func (t *TopologyTracker) Annotate(src, dst DatapathId, a EdgeAnnotation) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.links[linkKey{src, dst}]; !ok {
		return
	}
	t.annot[linkKey{src, dst}] = a
}

// Annotation returns the overlay recorded for a directed edge, if any.
func (t *TopologyTracker) Annotation(src, dst DatapathId) (EdgeAnnotation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	a, ok := t.annot[linkKey{src, dst}]
	return a, ok
}

// snapshot is a comparable fingerprint of node and link membership,
// used to detect whether the graph changed between rebuilds.
type snapshot struct {
	nodesLen int
	linksLen int
}

func (t *TopologyTracker) fingerprint() snapshot {
	return snapshot{nodesLen: len(t.nodes), linksLen: len(t.links)}
}

// reevaluate recomputes the stability state after any mutation. The
// comparison is a membership-count fingerprint against the previously
// stored snapshot: a redundant re-add of an already-known node or link
// leaves the fingerprint unchanged, so the dwell clock keeps running
// rather than being restarted.
func (t *TopologyTracker) reevaluate() {
	t.mu.Lock()
	fp := t.fingerprint()
	if fp == t.lastSnapshot {
		t.mu.Unlock()
		return
	}
	t.lastSnapshot = fp

	now := t.now()
	t.firstUnchanged = now
	wasStable := t.stable
	t.stable = false
	t.mu.Unlock()

	if wasStable {
		t.log.Infow("topology changed, graph no longer stable")
		for _, fn := range t.onUnstable {
			fn()
		}
	}

	go t.awaitStability(now)
}

// awaitStability sleeps until stableSeconds have elapsed since the last
// mutation and, if nothing has changed meanwhile, declares the graph
// stable and requests a port-description refresh from every switch.
func (t *TopologyTracker) awaitStability(since time.Time) {
	timer := time.NewTimer(t.stableSeconds)
	defer timer.Stop()
	<-timer.C

	t.mu.Lock()
	if t.firstUnchanged != since || t.stable {
		t.mu.Unlock()
		return
	}
	t.stable = true
	t.mu.Unlock()

	t.log.Infow("graph stabilized", "dwell", t.stableSeconds)

	for _, fn := range t.onStable {
		fn()
	}

	t.refreshPortDescriptions()
}

// refreshPortDescriptions sends a PortDesc multipart request to every
// known datapath, so curr_speed reflects the settled topology.
func (t *TopologyTracker) refreshPortDescriptions() {
	for _, e := range t.registry.List() {
		body := ofp.NewMultipartRequest(ofp.MultipartTypePortDescription, nil)

		rd, err := of.NewReader(body)
		if err != nil {
			t.log.Warnw("failed to encode port-desc request", "dpid", e.ID, "error", err)
			continue
		}

		req, err := of.NewRequest(of.TypeMultipartRequest, rd)
		if err != nil {
			t.log.Warnw("failed to build port-desc request", "dpid", e.ID, "error", err)
			continue
		}

		if err := of.Send(e.Conn, req); err != nil {
			t.log.Warnw("failed to send port-desc request", "dpid", e.ID, "error", err)
		}
	}
}
