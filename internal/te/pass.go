package te

import (
	"sort"

	log "github.com/Sirupsen/logrus"

	"github.com/wandsdn/helix/internal/candidate"
	"github.com/wandsdn/helix/internal/pathengine"
	"github.com/wandsdn/helix/internal/topology"
)

// Result is one (gid, new_primary) decision the engine hands to the
// protection installer (§4.E "Output").
type Result struct {
	Gid     candidate.Gid
	Primary pathengine.Path
}

// Report summarises the outcome of one optimisation pass.
type Report struct {
	Results            []Result
	ResidualCongestion bool
}

// Pass runs one §4.E optimisation pass: it finds every candidate routed
// over a congested edge, sorts them, and attempts to re-path each one in
// turn, updating usageTable after every decision so later candidates
// see the effect (§4.E "Application").
func Pass(cfg Config, snap *topology.Snapshot, candidates *candidate.Set, usageTable *candidate.UsageTable, rates func(candidate.Gid) float64) Report {
	congested := CongestedEdges(snap, cfg.Tau)
	if len(congested) == 0 {
		return Report{}
	}
	congestedSet := map[topology.EdgeKey]bool{}
	excludeEdges := map[topology.EdgeKey]bool{}
	for _, e := range congested {
		congestedSet[topology.EdgeKey{From: e.From, FromPort: e.FromPort, To: e.To}] = true
		excludeEdges[topology.EdgeKey{From: e.From, FromPort: e.FromPort, To: e.To}] = true
		excludeEdges[topology.EdgeKey{From: e.To, FromPort: e.ToPort, To: e.From}] = true
	}

	affected := candidatesOnCongestedEdges(candidates, congestedSet)
	sortCandidates(cfg, affected, rates)

	var results []Result
	for _, c := range affected {
		newPath, ok := repath(cfg, snap, c, congestedSet, excludeEdges, usageTable)
		if !ok {
			continue
		}
		results = append(results, Result{Gid: c.Gid, Primary: newPath})
		applyUsage(usageTable, c, newPath)
	}

	residual := len(CongestedEdges(snap, cfg.Tau)) > 0
	if residual {
		log.Warn("te: pass completed with residual congestion")
	}
	return Report{Results: results, ResidualCongestion: residual}
}

func candidatesOnCongestedEdges(candidates *candidate.Set, congestedSet map[topology.EdgeKey]bool) []*candidate.Candidate {
	var out []*candidate.Candidate
	for _, c := range candidates.All() {
		if pathTraversesAny(c.Primary, congestedSet) {
			out = append(out, c)
		}
	}
	return out
}

func pathTraversesAny(p pathengine.Path, keys map[topology.EdgeKey]bool) bool {
	for i := 0; i < len(p)-1; i++ {
		if keys[topology.EdgeKey{From: p[i].Switch, FromPort: p[i].OutPort, To: p[i+1].Switch}] {
			return true
		}
	}
	return false
}

func sortCandidates(cfg Config, cs []*candidate.Candidate, rates func(candidate.Gid) float64) {
	sort.SliceStable(cs, func(i, j int) bool {
		ri, rj := rates(cs[i].Gid), rates(cs[j].Gid)
		if cfg.CandidateSortRev {
			return ri > rj // heavy hitters first
		}
		return ri < rj
	})
}

// repath builds the potential path set for c and applies the resolved
// selection strategy, falling back to partial-accept if configured and
// no strictly-valid path exists.
func repath(cfg Config, snap *topology.Snapshot, c *candidate.Candidate, congestedSet, excludeEdges map[topology.EdgeKey]bool, usageTable *candidate.UsageTable) (pathengine.Path, bool) {
	pots := potentialPaths(cfg, snap, c, congestedSet, excludeEdges, usageTable)

	selectFn := cfg.Strategy.Resolve()
	if p, ok := selectFn(cfg, pots); ok {
		return p, true
	}

	if cfg.PartialAccept {
		currentMax := MaxUsageRatio(snap)
		if p, ok := partialAccept(cfg.Strategy, cfg, pots, currentMax); ok {
			return p, true
		}
	}
	return nil, false
}

// potentialPaths builds the candidate's potential path set per §4.E:
// for CSPFRecomp it is exactly the recomputed path (congested edges
// excluded); for the other strategies it is the candidate's current
// buckets (the primary only if it avoids every congested edge, and the
// backup if present) plus the same CSPF recompute, each evaluated
// against projected usage.
func potentialPaths(cfg Config, snap *topology.Snapshot, c *candidate.Candidate, congestedSet, excludeEdges map[topology.EdgeKey]bool, usageTable *candidate.UsageTable) []candidatePath {
	if cfg.Strategy == CSPFRecomp {
		p, ok := shortestPathExcluding(snap, c.Src, c.Dst, excludeEdges)
		if !ok {
			return nil
		}
		return []candidatePath{evaluate(snap, c, p, cfg.Tau, usageTable)}
	}

	var pots []candidatePath
	if len(c.Primary) > 0 && !pathTraversesAny(c.Primary, congestedSet) {
		// Shouldn't normally happen (repath is only called for affected
		// candidates), kept defensive.
		pots = append(pots, evaluate(snap, c, c.Primary, cfg.Tau, usageTable))
	}
	if len(c.Backup) > 0 {
		pots = append(pots, evaluate(snap, c, c.Backup, cfg.Tau, usageTable))
	}
	// Group-table swap methods also consider a splice-reachable, CSPF
	// style alternative as an additional potential regardless of
	// strategy -- the spec only restricts CSPFRecomp to a single
	// verbatim recompute, it does not forbid the others from seeing one.
	if p, ok := shortestPathExcluding(snap, c.Src, c.Dst, excludeEdges); ok {
		pots = append(pots, evaluate(snap, c, p, cfg.Tau, usageTable))
	}
	return pots
}

func shortestPathExcluding(snap *topology.Snapshot, src, dst topology.NodeID, excludeEdges map[topology.EdgeKey]bool) (pathengine.Path, bool) {
	return pathengine.ShortestPathExcludingEdges(snap, src, dst, pathengine.CSPFWeight, excludeEdges)
}

// evaluate computes a candidatePath's projected-usage validity (§4.E
// "A path is valid if every edge's projected usage ... <= cap; it is
// strictly valid if additionally <= tau*cap").
func evaluate(snap *topology.Snapshot, c *candidate.Candidate, p pathengine.Path, tau float64, usageTable *candidate.UsageTable) candidatePath {
	maxRatio := 0.0
	valid := true
	strict := true
	for i := 0; i < len(p)-1; i++ {
		key := topology.EdgeKey{From: p[i].Switch, FromPort: p[i].OutPort, To: p[i+1].Switch}
		e := snap.Edge(p[i].Switch, p[i].OutPort)
		if e == nil || e.CapacityBps == 0 {
			valid, strict = false, false
			continue
		}
		projected := usageTable.Projected(key, c.Gid, c.SendRateBps)
		ratio := projected / float64(e.CapacityBps)
		if ratio > maxRatio {
			maxRatio = ratio
		}
		if projected > float64(e.CapacityBps) {
			valid = false
		}
		if ratio > tau {
			strict = false
		}
	}
	return candidatePath{path: p, maxUsage: maxRatio, strictOK: valid && strict, validOK: valid}
}

// applyUsage commits a candidate's new path into the usage table so the
// next candidate in the pass sees its effect (§4.E "Application").
func applyUsage(usageTable *candidate.UsageTable, c *candidate.Candidate, newPath pathengine.Path) {
	for i := 0; i < len(c.Primary)-1; i++ {
		key := topology.EdgeKey{From: c.Primary[i].Switch, FromPort: c.Primary[i].OutPort, To: c.Primary[i+1].Switch}
		usageTable.Set(key, c.Gid, 0)
	}
	for i := 0; i < len(newPath)-1; i++ {
		key := topology.EdgeKey{From: newPath[i].Switch, FromPort: newPath[i].OutPort, To: newPath[i+1].Switch}
		usageTable.Set(key, c.Gid, c.SendRateBps)
	}
}
