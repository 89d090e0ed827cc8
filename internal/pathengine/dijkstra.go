package pathengine

import (
	"math"

	"github.com/wandsdn/helix/internal/topology"
)

const cspfAlphaFactor = 64.0

// CSPFWeight builds the §4.B′ constrained-shortest-path weight function:
// w(e) = 1 + alpha*usage(e)/cap(e), alpha = 64*cap(e). The capacity
// cancels, so w(e) = 1 + 64*usage(e) with usage in bps: the weight grows
// with an edge's absolute load, not its load relative to capacity.
// Saturated edges (usage >= cap) get no separate penalty, so a path
// over a saturated low-capacity edge can weigh less than one over a
// non-saturated high-capacity edge.
func CSPFWeight(e *topology.Edge) float64 {
	if e.CapacityBps == 0 {
		return math.Inf(1)
	}
	ratio := e.UsageBps / float64(e.CapacityBps)
	alpha := cspfAlphaFactor * float64(e.CapacityBps)
	return 1 + alpha*ratio
}

// usageRatio is the secondary metric tracked for CSPF tie-breaking
// (§4.B "ties are broken first by smaller maximum edge usage").
func usageRatio(e *topology.Edge) float64 {
	if e.CapacityBps == 0 {
		return math.Inf(1)
	}
	return e.UsageBps / float64(e.CapacityBps)
}

type searchKey struct {
	weight   float64
	hops     int
	maxUsage float64
	path     []topology.NodeID
}

// less implements the tie-break order of §4.B. cspf selects which
// secondary ordering applies on a weight tie.
func less(a, b searchKey, cspf bool) bool {
	const eps = 1e-9
	if math.Abs(a.weight-b.weight) > eps {
		return a.weight < b.weight
	}
	if cspf {
		if math.Abs(a.maxUsage-b.maxUsage) > eps {
			return a.maxUsage < b.maxUsage
		}
		if a.hops != b.hops {
			return a.hops < b.hops
		}
	} else {
		if a.hops != b.hops {
			return a.hops < b.hops
		}
	}
	return lexLess(a.path, b.path)
}

func lexLess(a, b []topology.NodeID) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// dijkstraSwitches runs Dijkstra over the switch-level subgraph of snap
// from src to dst, using weight for edge cost and cspf to choose the
// tie-break order. It returns the node sequence (including src and dst)
// and, for every node after the first, the edge used to reach it.
func dijkstraSwitches(snap *topology.Snapshot, src, dst topology.NodeID, weight topology.Weight, cspf bool, excludeNodes map[topology.NodeID]bool, excludeEdges map[topology.EdgeKey]bool) ([]topology.NodeID, map[topology.NodeID]*topology.Edge, bool) {
	best := map[topology.NodeID]searchKey{
		src: {weight: 0, hops: 0, maxUsage: 0, path: []topology.NodeID{src}},
	}
	visited := map[topology.NodeID]bool{}
	prevEdge := map[topology.NodeID]*topology.Edge{}

	for {
		// Pick the unvisited node with the smallest key.
		var u topology.NodeID
		found := false
		var uk searchKey
		for n, k := range best {
			if visited[n] {
				continue
			}
			if !found || less(k, uk, cspf) {
				u, uk, found = n, k, true
			}
		}
		if !found {
			break
		}
		visited[u] = true
		if u == dst {
			break
		}

		for _, e := range snap.AllEdgesFrom(u) {
			if !e.Active || visited[e.To] {
				continue
			}
			if excludeNodes != nil && excludeNodes[e.To] && e.To != dst {
				continue
			}
			if excludeEdges != nil && excludeEdges[(topology.EdgeKey{From: e.From, FromPort: e.FromPort, To: e.To})] {
				continue
			}
			w := weight(e)
			if math.IsInf(w, 1) {
				continue
			}
			mu := uk.maxUsage
			if r := usageRatio(e); r > mu {
				mu = r
			}
			cand := searchKey{
				weight:   uk.weight + w,
				hops:     uk.hops + 1,
				maxUsage: mu,
				path:     append(append([]topology.NodeID{}, uk.path...), e.To),
			}
			if cur, ok := best[e.To]; !ok || less(cand, cur, cspf) {
				best[e.To] = cand
				prevEdge[e.To] = e
			}
		}
	}

	fk, ok := best[dst]
	if !ok || !visited[dst] {
		return nil, nil, false
	}
	return fk.path, prevEdge, true
}

// anchor resolves id to the switch/port it is reachable through: for a
// host, its attachment switch and the host-facing port; for a switch,
// the switch itself with port 0 (no host-facing semantics apply).
func anchor(snap *topology.Snapshot, id topology.NodeID) (topology.NodeID, topology.PortNo, bool) {
	n := snap.Node(id)
	if n == nil {
		return "", 0, false
	}
	if n.Kind == topology.KindHost {
		sw, port, ok := snap.HostAttachPort(id)
		return sw, port, ok
	}
	return id, 0, true
}

// ShortestPath implements §4.B `shortest_path`. Returns (path, true) on
// success, including the empty path when src == dst, or (nil, false) if
// no path exists.
func ShortestPath(snap *topology.Snapshot, src, dst topology.NodeID, weight topology.Weight) (Path, bool) {
	return shortestPath(snap, src, dst, weight, false, nil, nil)
}

// ShortestPathCSPF is ShortestPath using the CSPF tie-break order.
func ShortestPathCSPF(snap *topology.Snapshot, src, dst topology.NodeID, weight topology.Weight) (Path, bool) {
	return shortestPath(snap, src, dst, weight, true, nil, nil)
}

// ShortestPathExcludingEdges is ShortestPathCSPF with a set of excluded
// directed edges, used by the TE engine's CSPFRecomp strategy to
// recompute a path with the congested link(s) removed (§4.E).
func ShortestPathExcludingEdges(snap *topology.Snapshot, src, dst topology.NodeID, weight topology.Weight, excludeEdges map[topology.EdgeKey]bool) (Path, bool) {
	return shortestPath(snap, src, dst, weight, true, nil, excludeEdges)
}

func shortestPath(snap *topology.Snapshot, src, dst topology.NodeID, weight topology.Weight, cspf bool, excludeNodes map[topology.NodeID]bool, excludeEdges map[topology.EdgeKey]bool) (Path, bool) {
	if src == dst {
		return Path{}, true
	}

	srcSw, srcPort, ok := anchor(snap, src)
	if !ok {
		return nil, false
	}
	dstSw, dstPort, ok := anchor(snap, dst)
	if !ok {
		return nil, false
	}

	if srcSw == dstSw {
		return Path{{Switch: srcSw, InPort: srcPort, OutPort: dstPort}}, true
	}

	swPath, prevEdge, ok := dijkstraSwitches(snap, srcSw, dstSw, weight, cspf, excludeNodes, excludeEdges)
	if !ok {
		return nil, false
	}

	hops := make(Path, len(swPath))
	for i, node := range swPath {
		var in topology.PortNo
		if i == 0 {
			in = srcPort
		} else {
			in = prevEdge[node].ToPort
		}
		var out topology.PortNo
		if i == len(swPath)-1 {
			out = dstPort
		} else {
			out = prevEdge[swPath[i+1]].FromPort
		}
		hops[i] = Hop{Switch: node, InPort: in, OutPort: out}
	}
	return hops, true
}
