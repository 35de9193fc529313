package measure

import (
	"go.uber.org/zap"

	"github.com/netrack/flowctl/topo"
)

// BandwidthEstimator derives instantaneous port load and per-link
// available bandwidth from the PortStatsCollector's sample history.
type BandwidthEstimator struct {
	log     *zap.SugaredLogger
	stats   *PortStatsCollector
	catalog PortCatalogReader
	tracker *topo.TopologyTracker
}

// PortCatalogReader is the subset of topo.PortCatalog the estimator
// needs, so tests can supply a double.
type PortCatalogReader interface {
	Get(dpid topo.DatapathId, port topo.PortNo) (*topo.PortDescriptor, bool)
}

// NewBandwidthEstimator creates an estimator reading from stats and
// catalog, writing annotations onto tracker.
func NewBandwidthEstimator(log *zap.SugaredLogger, stats *PortStatsCollector, catalog PortCatalogReader, tracker *topo.TopologyTracker) *BandwidthEstimator {
	return &BandwidthEstimator{log: log, stats: stats, catalog: catalog, tracker: tracker}
}

// LoadKbps computes the instantaneous load on (dpid, port) in kbit/s,
// per the documented edge cases: a single sample falls back to the
// cumulative average; a zero Δt with identical byte counts also falls
// back to the average; a zero Δt with differing counts signals a clock
// glitch and reports zero.
func LoadKbps(hist []PortStatsSample) float64 {
	if len(hist) == 0 {
		return 0
	}

	last := hist[len(hist)-1]
	lastBytes := last.TxBytes + last.RxBytes

	if len(hist) == 1 {
		d := last.Seconds()
		if d <= 0 {
			return 0
		}
		return float64(lastBytes) * 8 / d / 1000
	}

	prev := hist[len(hist)-2]
	prevBytes := prev.TxBytes + prev.RxBytes

	dt := last.Seconds() - prev.Seconds()
	if dt == 0 {
		if lastBytes == prevBytes {
			d := last.Seconds()
			if d <= 0 {
				return 0
			}
			return float64(lastBytes) * 8 / d / 1000
		}
		return 0
	}
	if dt < 0 {
		return 0
	}

	deltaBytes := int64(lastBytes) - int64(prevBytes)
	if deltaBytes < 0 {
		deltaBytes = 0
	}

	return float64(deltaBytes) * 8 / dt / 1000
}

// AvailableBandwidth returns max(0, curr_speed − load_kbps) for a port.
func (e *BandwidthEstimator) AvailableBandwidth(dpid topo.DatapathId, port topo.PortNo) float64 {
	desc, ok := e.catalog.Get(dpid, port)
	if !ok {
		return 0
	}

	load := LoadKbps(e.stats.History(dpid, port))
	avail := float64(desc.CurrSpeed) - load
	if avail < 0 {
		return 0
	}
	return avail
}

// Refresh recomputes and writes available bandwidth for every known
// link, keyed by the source-side port of the link.
func (e *BandwidthEstimator) Refresh() {
	for _, l := range e.tracker.Links() {
		avail := e.AvailableBandwidth(l.Src, l.SrcPort)

		prev, _ := e.tracker.Annotation(l.Src, l.Dst)
		prev.AvailableBandwidth = uint32(avail)
		e.tracker.Annotate(l.Src, l.Dst, prev)
	}
}
