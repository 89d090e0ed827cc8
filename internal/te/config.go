package te

import "time"

// Config bundles the §4.E / §6 `[te]` tunables the engine needs. The
// config loader is responsible for validating bounds before handing
// this struct to the engine.
type Config struct {
	// Tau is the congestion threshold usage/cap > Tau (default 0.90).
	Tau float64

	// ConsolidationDelay batches near-simultaneous congestion triggers
	// into one pass (default 1s, must be < poll interval).
	ConsolidationDelay time.Duration

	// Strategy is the resolved selection method.
	Strategy Strategy

	// CandidateSortRev: true = heavy hitters first (default).
	CandidateSortRev bool

	// PotPathSortRev: secondary sort direction for BestSolUsage/PLen.
	PotPathSortRev bool

	// PartialAccept enables §4.E partial-accept behaviour.
	PartialAccept bool
}

// DefaultConfig returns the specification's stated defaults.
func DefaultConfig() Config {
	return Config{
		Tau:                0.90,
		ConsolidationDelay: time.Second,
		Strategy:           FirstSol,
		CandidateSortRev:   true,
		PotPathSortRev:     false,
		PartialAccept:      false,
	}
}
