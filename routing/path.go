// Package routing computes policy-specific paths over the annotated
// topology graph.
package routing

import (
	"sort"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/netrack/flowctl/ctlerr"
	"github.com/netrack/flowctl/metrics"
	"github.com/netrack/flowctl/topo"
)

// Policy selects the edge weight and tie-break PathEngine optimizes for.
type Policy int

const (
	PolicyHop Policy = iota
	PolicyDelay
	PolicyBandwidth
	PolicyLoss
)

func (p Policy) String() string {
	switch p {
	case PolicyHop:
		return "hop"
	case PolicyDelay:
		return "delay"
	case PolicyBandwidth:
		return "bandwidth"
	case PolicyLoss:
		return "loss"
	default:
		return "unknown"
	}
}

// maxPaths and maxHops bound the widest-path DFS enumeration used for
// the bandwidth policy, which gonum has no built-in bounded simple-path
// walker for.
const (
	maxPaths = 256
	maxHops  = 16
)

// PathEngine computes shortest/widest paths over a live topology graph.
type PathEngine struct {
	log     *zap.SugaredLogger
	tracker *topo.TopologyTracker
	metrics *metrics.Registry
	oracle  *PathOracle
}

// NewPathEngine creates an engine reading edges and annotations from
// tracker.
func NewPathEngine(log *zap.SugaredLogger, tracker *topo.TopologyTracker) *PathEngine {
	return &PathEngine{log: log, tracker: tracker}
}

// WithMetrics attaches a metrics registry that Route reports its
// computation latency to, partitioned by policy.
func (e *PathEngine) WithMetrics(m *metrics.Registry) *PathEngine {
	e.metrics = m
	return e
}

// WithPathOracle attaches a persisted-path oracle that Route consults
// before any policy-based computation; an oracle hit overrides live
// planning entirely for that (src, dst) pair.
func (e *PathEngine) WithPathOracle(o *PathOracle) *PathEngine {
	e.oracle = o
	return e
}

// Route returns an ordered list of datapath IDs from src to dst under
// policy, or an empty slice if unreachable. A persisted-path oracle
// entry for (src, dst), if attached via WithPathOracle, is returned
// ahead of any live computation and is not subject to policy.
func (e *PathEngine) Route(src, dst topo.DatapathId, policy Policy) ([]topo.DatapathId, error) {
	if path, ok := e.oracle.Lookup(src, dst); ok {
		return path, nil
	}

	if e.metrics != nil {
		start := time.Now()
		defer func() {
			e.metrics.PathComputeDuration.WithLabelValues(policy.String()).Observe(time.Since(start).Seconds())
		}()
	}

	if src == dst {
		return []topo.DatapathId{src}, nil
	}

	if policy == PolicyBandwidth {
		return e.widestPath(src, dst)
	}
	return e.shortestPath(src, dst, policy)
}

func (e *PathEngine) weight(policy Policy, l topo.Link) float64 {
	switch policy {
	case PolicyDelay:
		ann, _ := e.tracker.Annotation(l.Src, l.Dst)
		return float64(ann.Delay)
	case PolicyLoss:
		ann, _ := e.tracker.Annotation(l.Src, l.Dst)
		return ann.PacketLoss
	default:
		return 1
	}
}

func (e *PathEngine) buildGraph(policy Policy) *simple.WeightedDirectedGraph {
	g := simple.NewWeightedDirectedGraph(0, 0)

	for _, id := range e.tracker.Nodes() {
		g.AddNode(simple.Node(int64(id)))
	}

	for _, l := range e.tracker.Links() {
		w := e.weight(policy, l)
		g.SetWeightedEdge(simple.WeightedEdge{
			F: simple.Node(int64(l.Src)),
			T: simple.Node(int64(l.Dst)),
			W: w,
		})
	}

	return g
}

func (e *PathEngine) shortestPath(src, dst topo.DatapathId, policy Policy) ([]topo.DatapathId, error) {
	g := e.buildGraph(policy)

	from := simple.Node(int64(src))
	if g.Node(from.ID()) == nil {
		return nil, ctlerr.New(ctlerr.PlanningFailure, "routing.shortestPath", errUnknownNode(src))
	}

	shortest := path.DijkstraFrom(from, g)

	nodes, _ := shortest.To(int64(dst))
	if len(nodes) == 0 {
		return nil, nil
	}

	out := make([]topo.DatapathId, len(nodes))
	for i, n := range nodes {
		out[i] = topo.DatapathId(n.ID())
	}
	return out, nil
}

// widestPath enumerates simple paths from src to dst in order of
// increasing hop count (a bounded DFS re-run with its depth limit raised
// one hop at a time — gonum has no bounded simple-path enumerator) and
// returns the one maximizing the bottleneck available
// bandwidth over its interior edges. The first path to achieve the
// best bottleneck wins ties.
func (e *PathEngine) widestPath(src, dst topo.DatapathId) ([]topo.DatapathId, error) {
	adj := make(map[topo.DatapathId][]topo.Link)
	for _, l := range e.tracker.Links() {
		adj[l.Src] = append(adj[l.Src], l)
	}
	for _, links := range adj {
		sort.Slice(links, func(i, j int) bool { return links[i].Dst < links[j].Dst })
	}

	var (
		best      []topo.DatapathId
		bestWidth = -1.0
		visited   = map[topo.DatapathId]bool{src: true}
		cur       = []topo.DatapathId{src}
		paths     int
		depth     int
	)

	var dfs func(node topo.DatapathId, bottleneck float64)
	dfs = func(node topo.DatapathId, bottleneck float64) {
		if paths >= maxPaths {
			return
		}

		if node == dst {
			// Paths shorter than depth were counted on an earlier pass.
			if len(cur)-1 == depth {
				paths++
				if bottleneck > bestWidth {
					bestWidth = bottleneck
					best = append([]topo.DatapathId(nil), cur...)
				}
			}
			return
		}

		if len(cur)-1 == depth {
			return
		}

		for _, l := range adj[node] {
			if visited[l.Dst] {
				continue
			}

			ann, _ := e.tracker.Annotation(l.Src, l.Dst)
			edgeWidth := float64(ann.AvailableBandwidth)

			next := edgeWidth
			if node != src && bottleneck < edgeWidth {
				next = bottleneck
			}

			visited[l.Dst] = true
			cur = append(cur, l.Dst)
			dfs(l.Dst, next)
			cur = cur[:len(cur)-1]
			visited[l.Dst] = false

			if paths >= maxPaths {
				return
			}
		}
	}

	for depth = 1; depth <= maxHops && paths < maxPaths; depth++ {
		dfs(src, -1)
	}

	return best, nil
}

type errUnknownNodeT struct{ dpid topo.DatapathId }

func (e errUnknownNodeT) Error() string { return "routing: unknown datapath in graph" }

func errUnknownNode(dpid topo.DatapathId) error { return errUnknownNodeT{dpid} }
