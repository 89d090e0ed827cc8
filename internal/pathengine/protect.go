package pathengine

import "github.com/wandsdn/helix/internal/topology"

// BackupKind records whether a computed backup gives full node-disjoint
// coverage or only a weaker, link-disjoint guarantee (§4.B).
type BackupKind int

const (
	// BackupNone means no backup could be found at all.
	BackupNone BackupKind = iota
	// BackupNodeDisjoint is a fully node-disjoint backup.
	BackupNodeDisjoint
	// BackupLinkDisjoint is only link-disjoint: the protection installer
	// must not promise full coverage against a transit-switch failure.
	BackupLinkDisjoint
)

// DisjointPair implements §4.B `disjoint_pair`: a primary shortest path
// and, if one exists, a node-disjoint (preferred) or link-disjoint
// backup.
func DisjointPair(snap *topology.Snapshot, src, dst topology.NodeID, weight topology.Weight) (primary, backup Path, kind BackupKind) {
	primary, ok := ShortestPath(snap, src, dst, weight)
	if !ok {
		return nil, nil, BackupNone
	}
	if len(primary) <= 1 {
		// No transit switches to protect against; no backup needed
		// beyond the primary itself.
		return primary, nil, BackupNone
	}

	// Node-disjoint: exclude every transit switch of the primary path
	// (not the first/last switch, which are fixed by src/dst).
	excludeNodes := map[topology.NodeID]bool{}
	for _, h := range primary[1 : len(primary)-1] {
		excludeNodes[h.Switch] = true
	}
	if b, ok := shortestPath(snap, src, dst, weight, false, excludeNodes, nil); ok {
		return primary, b, BackupNodeDisjoint
	}

	// Link-disjoint: exclude only the edges (both directions) used by
	// the primary.
	excludeEdges := map[topology.EdgeKey]bool{}
	for i := 0; i < len(primary); i++ {
		h := primary[i]
		if i > 0 {
			prev := primary[i-1]
			excludeEdges[topology.EdgeKey{From: prev.Switch, FromPort: prev.OutPort, To: h.Switch}] = true
			excludeEdges[topology.EdgeKey{From: h.Switch, FromPort: h.InPort, To: prev.Switch}] = true
		}
	}
	if b, ok := shortestPath(snap, src, dst, weight, false, nil, excludeEdges); ok {
		return primary, b, BackupLinkDisjoint
	}

	return primary, nil, BackupNone
}

// Splices computes, for every on-path switch of primary (excluding the
// last) that also lies on backup, the backup's egress port at that
// switch, skipping any whose backup next hop would revisit the
// already-traversed primary prefix (§4.B `splices`).
//
// strict splices additionally require every link of the backup from
// that switch onward to be active in the topology; loose splices get
// no check beyond the revisit test.
func Splices(snap *topology.Snapshot, primary, backup Path, strict bool) map[topology.NodeID]topology.PortNo {
	out := map[topology.NodeID]topology.PortNo{}
	if len(backup) == 0 {
		return out
	}

	backupIndex := map[topology.NodeID]int{}
	for i, h := range backup {
		backupIndex[h.Switch] = i
	}

	visited := map[topology.NodeID]bool{}
	for _, h := range primary {
		visited[h.Switch] = true
	}

	for pi, ph := range primary {
		if pi == len(primary)-1 {
			continue // last switch needs no splice, it already reaches dst
		}
		bi, onBackup := backupIndex[ph.Switch]
		if !onBackup || bi == len(backup)-1 {
			continue
		}
		nextHop := backup[bi+1]
		if visited[nextHop.Switch] && nextHop.Switch != ph.Switch {
			// Splicing here would revisit an already-traversed primary
			// switch; skip (both strict and loose reject this).
			if loops(primary, pi, nextHop.Switch) {
				continue
			}
		}

		if strict {
			// Strict: the splice must continue to reach dst using only
			// currently-known, active links — verify the suffix of
			// backup from bi onward is fully active.
			if !suffixActive(snap, backup[bi:]) {
				continue
			}
		}

		out[ph.Switch] = backup[bi].OutPort
	}
	return out
}

func loops(primary Path, uptoIdx int, candidate topology.NodeID) bool {
	for i := 0; i <= uptoIdx; i++ {
		if primary[i].Switch == candidate {
			return true
		}
	}
	return false
}

func suffixActive(snap *topology.Snapshot, hops Path) bool {
	for i := 0; i < len(hops)-1; i++ {
		e := snap.Edge(hops[i].Switch, hops[i].OutPort)
		if e == nil || e.To != hops[i+1].Switch {
			return false
		}
	}
	return true
}
