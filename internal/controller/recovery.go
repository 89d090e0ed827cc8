package controller

import (
	"github.com/wandsdn/helix/internal/candidate"
	"github.com/wandsdn/helix/internal/pathengine"
	"github.com/wandsdn/helix/internal/topology"
)

// RecoveryStrategy is the closed set of ways a controller derives and
// installs backup coverage for a candidate, matching the original's
// distinct controller variants (reactive vs. proactive, strict vs.
// loose splice).
type RecoveryStrategy int

const (
	// Reactive installs only a primary path up front; a backup is
	// computed and installed only after a failure is actually observed.
	Reactive RecoveryStrategy = iota
	// ProtectionStrict pre-installs a strict-splice backup (§4.B) at
	// candidate creation time, so failover is switch-local.
	ProtectionStrict
	// ProtectionLooseSplice pre-installs a loose-splice backup.
	ProtectionLooseSplice
)

func (r RecoveryStrategy) String() string {
	switch r {
	case Reactive:
		return "reactive"
	case ProtectionStrict:
		return "protection_strict"
	case ProtectionLooseSplice:
		return "protection_loose_splice"
	default:
		return "unknown"
	}
}

// ParseRecoveryStrategy resolves a config string; false for anything
// outside the closed set.
func ParseRecoveryStrategy(s string) (RecoveryStrategy, bool) {
	switch s {
	case "reactive":
		return Reactive, true
	case "protection_strict":
		return ProtectionStrict, true
	case "protection_loose_splice":
		return ProtectionLooseSplice, true
	default:
		return 0, false
	}
}

// Plan is what a RecoveryStrategy computes for a newly (re)pathed
// candidate: the primary path always, and a backup/splice map only when
// the strategy pre-installs protection.
type Plan struct {
	Primary pathengine.Path
	Backup  pathengine.Path
	Splices map[topology.NodeID]topology.PortNo
}

// Compute applies the strategy to a fresh primary path computation.
func (r RecoveryStrategy) Compute(snap *topology.Snapshot, src, dst topology.NodeID, weight topology.Weight) Plan {
	if r == Reactive {
		primary, ok := pathengine.ShortestPath(snap, src, dst, weight)
		if !ok {
			return Plan{}
		}
		return Plan{Primary: primary}
	}

	primary, backup, kind := pathengine.DisjointPair(snap, src, dst, weight)
	if kind == pathengine.BackupNone {
		return Plan{Primary: primary}
	}
	strict := r == ProtectionStrict
	splices := pathengine.Splices(snap, primary, backup, strict)
	return Plan{Primary: primary, Backup: backup, Splices: splices}
}

// ReactiveBackup computes a backup on demand, after a failure has
// already been observed on the candidate's primary path (only ever
// called for the Reactive strategy).
func ReactiveBackup(snap *topology.Snapshot, c *candidate.Candidate, weight topology.Weight) (pathengine.Path, bool) {
	_, backup, kind := pathengine.DisjointPair(snap, c.Src, c.Dst, weight)
	if kind == pathengine.BackupNone {
		return nil, false
	}
	return backup, true
}
