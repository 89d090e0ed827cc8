// Package te implements §4.E of the specification: congestion
// detection, the consolidation timer, and the four closed traffic
// engineering selection strategies.
package te

import (
	"sort"

	"github.com/wandsdn/helix/internal/pathengine"
)

// Strategy names the closed set of selection methods (§4.E, §9). There
// is no fifth value and no string-keyed dispatch at call sites: the
// configured method is mapped to a Strategy once at startup, and the
// engine turns it into a SelectFunc through Resolve's closed switch.
type Strategy int

const (
	FirstSol Strategy = iota
	BestSolUsage
	BestSolPLen
	CSPFRecomp
)

func (s Strategy) String() string {
	switch s {
	case FirstSol:
		return "first_sol"
	case BestSolUsage:
		return "best_sol_usage"
	case BestSolPLen:
		return "best_sol_plen"
	case CSPFRecomp:
		return "cspf_recomp"
	default:
		return "unknown"
	}
}

// ParseStrategy resolves a config string to a Strategy. Returns false
// for anything outside the closed set.
func ParseStrategy(s string) (Strategy, bool) {
	switch s {
	case "first_sol":
		return FirstSol, true
	case "best_sol_usage":
		return BestSolUsage, true
	case "best_sol_plen":
		return BestSolPLen, true
	case "cspf_recomp":
		return CSPFRecomp, true
	default:
		return 0, false
	}
}

// candidatePath is one potential path under consideration for a
// congested candidate, with its projected maximum edge usage ratio
// precomputed.
type candidatePath struct {
	path     pathengine.Path
	maxUsage float64 // max projected usage/cap ratio across the path's edges
	strictOK bool    // every edge's projected usage/cap <= tau
	validOK  bool    // every edge's projected usage <= cap
}

// SelectFunc picks a replacement path for a congested candidate from
// its potential path set, or reports none chosen.
type SelectFunc func(cfg Config, pots []candidatePath) (pathengine.Path, bool)

// Resolve returns the SelectFunc for a Strategy (§9, no dynamic string
// dispatch). repath calls it for each candidate it processes.
func (s Strategy) Resolve() SelectFunc {
	switch s {
	case FirstSol:
		return selectFirstSol
	case BestSolUsage:
		return selectBestSolUsage
	case BestSolPLen:
		return selectBestSolPLen
	case CSPFRecomp:
		return selectCSPFRecomp
	default:
		return selectFirstSol
	}
}

func selectFirstSol(cfg Config, pots []candidatePath) (pathengine.Path, bool) {
	for _, p := range pots {
		if p.strictOK {
			return p.path, true
		}
	}
	return nil, false
}

func selectBestSolUsage(cfg Config, pots []candidatePath) (pathengine.Path, bool) {
	var strict []candidatePath
	for _, p := range pots {
		if p.strictOK {
			strict = append(strict, p)
		}
	}
	if len(strict) == 0 {
		return nil, false
	}
	sort.SliceStable(strict, func(i, j int) bool {
		if cfg.PotPathSortRev {
			return strict[i].maxUsage < strict[j].maxUsage // minimise: most headroom
		}
		return strict[i].maxUsage > strict[j].maxUsage // maximise: tightest fit
	})
	return strict[0].path, true
}

func selectBestSolPLen(cfg Config, pots []candidatePath) (pathengine.Path, bool) {
	var strict []candidatePath
	for _, p := range pots {
		if p.strictOK {
			strict = append(strict, p)
		}
	}
	if len(strict) == 0 {
		return nil, false
	}
	sort.SliceStable(strict, func(i, j int) bool {
		if strict[i].maxUsage != strict[j].maxUsage {
			if cfg.PotPathSortRev {
				return strict[i].maxUsage < strict[j].maxUsage
			}
			return strict[i].maxUsage > strict[j].maxUsage
		}
		return len(strict[i].path) < len(strict[j].path)
	})
	return strict[0].path, true
}

// selectCSPFRecomp does not choose among alternatives: for CSPFRecomp,
// potentialPaths supplies only the recomputed path, and this takes it
// verbatim provided it is strictly valid.
func selectCSPFRecomp(cfg Config, pots []candidatePath) (pathengine.Path, bool) {
	if len(pots) == 0 {
		return nil, false
	}
	return pots[0].path, pots[0].strictOK
}

// partialAccept implements §4.E "Partial accept": among pots that are
// merely valid (not strictly valid), take the first after sorting by
// max usage (highest first, or lowest first when PotPathSortRev is set)
// and then by path length, and only install it if its max usage is
// strictly below currentMaxUsage. FirstSol never calls this.
func partialAccept(strategy Strategy, cfg Config, pots []candidatePath, currentMaxUsage float64) (pathengine.Path, bool) {
	if strategy == FirstSol {
		return nil, false
	}

	var valid []candidatePath
	for _, p := range pots {
		if p.validOK && !p.strictOK {
			valid = append(valid, p)
		}
	}
	if len(valid) == 0 {
		return nil, false
	}

	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].maxUsage != valid[j].maxUsage {
			if cfg.PotPathSortRev {
				return valid[i].maxUsage < valid[j].maxUsage // ascending: most headroom
			}
			return valid[i].maxUsage > valid[j].maxUsage // descending: tightest fit
		}
		return len(valid[i].path) < len(valid[j].path)
	})

	best := valid[0]
	if best.maxUsage < currentMaxUsage {
		return best.path, true
	}
	return nil, false
}
