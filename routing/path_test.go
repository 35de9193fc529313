package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/netrack/flowctl/topo"
)

func newTestTracker(t *testing.T) *topo.TopologyTracker {
	log := zaptest.NewLogger(t).Sugar()
	registry := topo.NewSwitchRegistry(log)
	return topo.NewTopologyTracker(log, registry, time.Hour)
}

func TestRouteHopPolicyLine(t *testing.T) {
	tr := newTestTracker(t)
	tr.AddNode(1)
	tr.AddNode(2)
	tr.AddNode(3)
	tr.AddLink(topo.Link{Src: 1, SrcPort: 1, Dst: 2, DstPort: 1})
	tr.AddLink(topo.Link{Src: 2, SrcPort: 2, Dst: 3, DstPort: 1})

	log := zaptest.NewLogger(t).Sugar()
	engine := NewPathEngine(log, tr)

	path, err := engine.Route(1, 3, PolicyHop)
	require.NoError(t, err)
	assert.Equal(t, []topo.DatapathId{1, 2, 3}, path)
}

func TestRouteUnreachableReturnsEmpty(t *testing.T) {
	tr := newTestTracker(t)
	tr.AddNode(1)
	tr.AddNode(2)

	log := zaptest.NewLogger(t).Sugar()
	engine := NewPathEngine(log, tr)

	path, err := engine.Route(1, 2, PolicyHop)
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestRouteSameNode(t *testing.T) {
	tr := newTestTracker(t)
	tr.AddNode(1)

	log := zaptest.NewLogger(t).Sugar()
	engine := NewPathEngine(log, tr)

	path, err := engine.Route(1, 1, PolicyHop)
	require.NoError(t, err)
	assert.Equal(t, []topo.DatapathId{1}, path)
}

func TestRouteBandwidthPicksWidestPath(t *testing.T) {
	tr := newTestTracker(t)
	for _, id := range []topo.DatapathId{1, 2, 3, 4} {
		tr.AddNode(id)
	}

	// two parallel paths 1->2->4 (narrow) and 1->3->4 (wide).
	tr.AddLink(topo.Link{Src: 1, SrcPort: 1, Dst: 2, DstPort: 1})
	tr.AddLink(topo.Link{Src: 2, SrcPort: 2, Dst: 4, DstPort: 1})
	tr.AddLink(topo.Link{Src: 1, SrcPort: 2, Dst: 3, DstPort: 1})
	tr.AddLink(topo.Link{Src: 3, SrcPort: 2, Dst: 4, DstPort: 2})

	tr.Annotate(1, 2, topo.EdgeAnnotation{AvailableBandwidth: 100})
	tr.Annotate(2, 4, topo.EdgeAnnotation{AvailableBandwidth: 100})
	tr.Annotate(1, 3, topo.EdgeAnnotation{AvailableBandwidth: 1000})
	tr.Annotate(3, 4, topo.EdgeAnnotation{AvailableBandwidth: 1000})

	log := zaptest.NewLogger(t).Sugar()
	engine := NewPathEngine(log, tr)

	path, err := engine.Route(1, 4, PolicyBandwidth)
	require.NoError(t, err)
	assert.Equal(t, []topo.DatapathId{1, 3, 4}, path)
}
