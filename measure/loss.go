package measure

import (
	"go.uber.org/zap"

	"github.com/netrack/flowctl/topo"
)

// LossEstimator derives per-link packet loss from the cumulative port
// counters of the latest sample on each side. It prefers the port-based view (tx on one side vs. rx on
// the other) and falls back to a counter-based view when the peer
// side's stats are not yet available.
type LossEstimator struct {
	log     *zap.SugaredLogger
	stats   *PortStatsCollector
	tracker *topo.TopologyTracker
}

// NewLossEstimator creates an estimator reading from stats and writing
// annotations onto tracker.
func NewLossEstimator(log *zap.SugaredLogger, stats *PortStatsCollector, tracker *topo.TopologyTracker) *LossEstimator {
	return &LossEstimator{log: log, stats: stats, tracker: tracker}
}

func lastSample(hist []PortStatsSample) (PortStatsSample, bool) {
	if len(hist) == 0 {
		return PortStatsSample{}, false
	}
	return hist[len(hist)-1], true
}

// directionalLoss computes max(0, tx − rx) / tx, or 0 when tx is 0.
func directionalLoss(tx, rx uint64) float64 {
	if tx == 0 {
		return 0
	}

	diff := int64(tx) - int64(rx)
	if diff < 0 {
		diff = 0
	}
	return float64(diff) / float64(tx)
}

// PortBased computes the link loss between the two ends of a physical
// link as the average of the forward and reverse directional losses.
func (e *LossEstimator) PortBased(l topo.Link) (float64, bool) {
	srcHist := e.stats.History(l.Src, l.SrcPort)
	dstHist := e.stats.History(l.Dst, l.DstPort)

	src, ok1 := lastSample(srcHist)
	dst, ok2 := lastSample(dstHist)
	if !ok1 || !ok2 {
		return 0, false
	}

	fwd := directionalLoss(src.TxPackets, dst.RxPackets)
	rev := directionalLoss(dst.TxPackets, src.RxPackets)

	return (abs(fwd) + abs(rev)) / 2, true
}

// CounterBased computes loss from a single port's own error/drop
// counters, used as a fallback when the peer side's stats are absent.
func (e *LossEstimator) CounterBased(dpid topo.DatapathId, port topo.PortNo) float64 {
	hist := e.stats.History(dpid, port)
	s, ok := lastSample(hist)
	if !ok {
		return 0
	}

	total := s.RxPackets + s.TxPackets + s.RxErrors + s.TxErrors
	if total == 0 {
		return 0
	}

	dropped := s.RxDropped + s.TxDropped
	return float64(dropped) / float64(total)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// Loss returns the estimated packet loss fraction for a link, preferring
// the port-based view and falling back to the source side's
// counter-based view when the peer's samples are unavailable.
func (e *LossEstimator) Loss(l topo.Link) float64 {
	if loss, ok := e.PortBased(l); ok {
		return loss
	}
	return e.CounterBased(l.Src, l.SrcPort)
}

// Refresh recomputes and writes loss for every known link.
func (e *LossEstimator) Refresh() {
	for _, l := range e.tracker.Links() {
		loss := e.Loss(l)

		prev, _ := e.tracker.Annotation(l.Src, l.Dst)
		prev.PacketLoss = loss
		e.tracker.Annotate(l.Src, l.Dst, prev)
	}
}
