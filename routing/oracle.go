package routing

import (
	"encoding/json"
	"os"
	"strconv"
	"sync"

	"github.com/netrack/flowctl/topo"
)

// PathOracle is a persisted-path JSON override consulted by Route
// ahead of any policy-based planning. The backing file maps
// src_dpid → dst_dpid → a list of candidate paths; the first candidate
// for a pair is the one Lookup returns. A PathOracle with no loaded
// entries is a well-formed no-op: Lookup always misses, so Route falls
// straight through to live computation.
type PathOracle struct {
	mu    sync.RWMutex
	paths map[topo.DatapathId]map[topo.DatapathId][]topo.DatapathId
}

// LoadPathOracle reads and parses the persisted-path file at name. A
// read or parse failure triggers a single retry; if that also fails,
// LoadPathOracle returns an oracle with no entries (so callers keep
// routing live) alongside the error, matching the "log and continue
// with stale data" behavior the rest of the controller applies to
// corrupt input.
func LoadPathOracle(name string) (*PathOracle, error) {
	paths, err := readPathOracleFile(name)
	if err != nil {
		paths, err = readPathOracleFile(name)
	}
	if err != nil {
		return &PathOracle{paths: map[topo.DatapathId]map[topo.DatapathId][]topo.DatapathId{}}, err
	}

	return &PathOracle{paths: paths}, nil
}

// Reload re-reads name, replacing the in-memory table on success. On
// failure — after the same single retry LoadPathOracle applies — the
// prior table is left untouched, so a transient error never disturbs
// previously-resolved overrides.
func (o *PathOracle) Reload(name string) error {
	paths, err := readPathOracleFile(name)
	if err != nil {
		paths, err = readPathOracleFile(name)
	}
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.paths = paths
	o.mu.Unlock()
	return nil
}

// Lookup returns the overriding path for (src, dst), if the oracle
// covers that pair. A nil oracle always misses.
func (o *PathOracle) Lookup(src, dst topo.DatapathId) ([]topo.DatapathId, bool) {
	if o == nil {
		return nil, false
	}

	o.mu.RLock()
	defer o.mu.RUnlock()

	dsts, ok := o.paths[src]
	if !ok {
		return nil, false
	}
	path, ok := dsts[dst]
	return path, ok
}

func readPathOracleFile(name string) (map[topo.DatapathId]map[topo.DatapathId][]topo.DatapathId, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}

	var raw map[string]map[string][][]uint64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	out := make(map[topo.DatapathId]map[topo.DatapathId][]topo.DatapathId, len(raw))
	for srcStr, dsts := range raw {
		src, err := strconv.ParseUint(srcStr, 10, 64)
		if err != nil {
			continue
		}

		inner := make(map[topo.DatapathId][]topo.DatapathId, len(dsts))
		for dstStr, candidates := range dsts {
			dst, err := strconv.ParseUint(dstStr, 10, 64)
			if err != nil || len(candidates) == 0 {
				continue
			}

			chosen := make([]topo.DatapathId, len(candidates[0]))
			for i, id := range candidates[0] {
				chosen[i] = topo.DatapathId(id)
			}
			inner[topo.DatapathId(dst)] = chosen
		}
		out[topo.DatapathId(src)] = inner
	}

	return out, nil
}
