package measure

import (
	"sync"
	"time"

	"go.uber.org/zap"

	of "github.com/netrack/flowctl"
	"github.com/netrack/flowctl/metrics"
	"github.com/netrack/flowctl/ofp"
	"github.com/netrack/flowctl/topo"
)

// DefaultStatsPeriod is the default interval between port-stats polls.
const DefaultStatsPeriod = 5 * time.Second

// DefaultPortStatHistory bounds the number of samples retained per port.
const DefaultPortStatHistory = 5

// PortStatsSample mirrors a single port-stats snapshot.
type PortStatsSample struct {
	RxPackets, TxPackets               uint64
	RxBytes, TxBytes                   uint64
	RxDropped, TxDropped               uint64
	RxErrors, TxErrors                 uint64
	DurationSec, DurationNSec          uint32
}

func sampleOf(s ofp.PortStats) PortStatsSample {
	return PortStatsSample{
		RxPackets:    s.RxPackets,
		TxPackets:    s.TxPackets,
		RxBytes:      s.RxBytes,
		TxBytes:      s.TxBytes,
		RxDropped:    s.RxDropped,
		TxDropped:    s.TxDropped,
		RxErrors:     s.RxErrors,
		TxErrors:     s.TxErrors,
		DurationSec:  s.DurationSec,
		DurationNSec: s.DurationNSec,
	}
}

// Seconds returns the sample's duration counter as a float.
func (s PortStatsSample) Seconds() float64 {
	return float64(s.DurationSec) + float64(s.DurationNSec)*1e-9
}

type portKey struct {
	dpid topo.DatapathId
	port topo.PortNo
}

// PortStatsCollector periodically polls port counters, gated on the
// topology being stable, and keeps a bounded FIFO history per port.
type PortStatsCollector struct {
	log      *zap.SugaredLogger
	registry *topo.SwitchRegistry
	tracker  *topo.TopologyTracker
	period   time.Duration
	history  int

	mu      sync.RWMutex
	samples map[portKey][]PortStatsSample

	metrics *metrics.Registry
}

// WithMetrics attaches a metrics registry that Serve reports ingested
// sample counts to.
func (c *PortStatsCollector) WithMetrics(m *metrics.Registry) *PortStatsCollector {
	c.metrics = m
	return c
}

// NewPortStatsCollector creates a collector polling every period,
// retaining up to history samples per port.
func NewPortStatsCollector(log *zap.SugaredLogger, registry *topo.SwitchRegistry, tracker *topo.TopologyTracker, period time.Duration, history int) *PortStatsCollector {
	if period <= 0 {
		period = DefaultStatsPeriod
	}
	if history <= 0 {
		history = DefaultPortStatHistory
	}

	return &PortStatsCollector{
		log:      log,
		registry: registry,
		tracker:  tracker,
		period:   period,
		history:  history,
		samples:  make(map[portKey][]PortStatsSample),
	}
}

// History returns the retained samples for (dpid, port), oldest first.
func (c *PortStatsCollector) History(dpid topo.DatapathId, port topo.PortNo) []PortStatsSample {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hist := c.samples[portKey{dpid, port}]
	out := make([]PortStatsSample, len(hist))
	copy(out, hist)
	return out
}

// Run polls every switch once per period while the topology is stable;
// it returns when stop is closed. Each iteration re-checks stability at
// the loop head, matching the cooperative-task cancellation contract.
func (c *PortStatsCollector) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !c.tracker.Stable() {
				continue
			}
			c.pollAll()
		}
	}
}

func (c *PortStatsCollector) pollAll() {
	for _, e := range c.registry.List() {
		if err := c.poll(e); err != nil {
			c.log.Warnw("failed to poll port stats", "dpid", e.ID, "error", err)
		}
	}
}

func (c *PortStatsCollector) poll(e *topo.SwitchEntry) error {
	req := ofp.NewMultipartRequest(ofp.MultipartTypePortStats, &ofp.PortStatsRequest{PortNo: ofp.PortAny})

	body, err := of.NewReader(req)
	if err != nil {
		return err
	}

	msg, err := of.NewRequest(of.TypeMultipartRequest, body)
	if err != nil {
		return err
	}

	return of.Send(e.Conn, msg)
}

// Serve implements of.Handler for of.TypeMultipartReply messages
// carrying a port-stats reply body.
func (c *PortStatsCollector) Serve(rw of.ResponseWriter, req *of.Request) {
	dpid, ok := c.registry.LookupByConn(rw.Conn())
	if !ok {
		return
	}

	var reply ofp.MultipartReply
	if _, err := reply.ReadFrom(req.Body); err != nil {
		c.log.Warnw("failed to parse multipart reply header", "error", err)
		return
	}
	if reply.Type != ofp.MultipartTypePortStats {
		return
	}

	var stats ofp.PortStatsList
	if _, err := stats.ReadFrom(req.Body); err != nil {
		c.log.Warnw("failed to parse port stats", "error", err)
		return
	}

	c.ApplyPortStats(dpid, stats)
}

// ApplyPortStats folds a decoded port-stats reply into the per-port
// history, skipping the switch's local (non-forwarding) port.
func (c *PortStatsCollector) ApplyPortStats(dpid topo.DatapathId, stats ofp.PortStatsList) {
	for _, s := range stats {
		if s.PortNo == topo.PortLocal {
			continue
		}
		c.insert(dpid, s.PortNo, sampleOf(s))
		if c.metrics != nil {
			c.metrics.PortStatsSamplesTotal.Inc()
		}
	}
}

func (c *PortStatsCollector) insert(dpid topo.DatapathId, port topo.PortNo, s PortStatsSample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := portKey{dpid, port}
	hist := c.samples[key]

	if len(hist) > 0 {
		last := hist[len(hist)-1]
		if s.Seconds() < last.Seconds() {
			// counters went backwards (switch reset) — start over.
			hist = nil
		}
	}

	hist = append(hist, s)
	if len(hist) > c.history {
		hist = hist[len(hist)-c.history:]
	}

	c.samples[key] = hist
}
