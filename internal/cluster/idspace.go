package cluster

import (
	"fmt"
	"sync"

	"github.com/jainvipin/bitset"
)

// idspaceWidth bounds the instance IDs an area can declare. The spec
// describes extra_instances as "a list of positive integers"; in
// practice an area's membership is small, so a fixed-width bitset (the
// same sizing approach the teacher uses for its VLAN/VXLAN ID pools)
// is simpler than a growable one.
const idspaceWidth = 256

// IDSpace tracks the configured and currently-live instance IDs for
// one area's cluster membership ("Cluster membership": instance IDs
// are non-negative integers, 0 is the implicit primary). Passed to
// Election.UseIDSpace, it backs that Election's liveness bookkeeping
// and lowest-live-instance comparison with the same bitset-based slot
// allocator the teacher uses for VLAN/VXLAN pools, rather than a plain
// map or lexicographic string comparison, since membership here is a
// fixed small-integer universe.
type IDSpace struct {
	mu         sync.Mutex
	configured *bitset.BitSet
	live       *bitset.BitSet
}

// NewIDSpace builds an IDSpace for one area given its extra_instances
// list from the switch-to-controller map. Instance 0 is always
// configured.
func NewIDSpace(extraInstances []uint) *IDSpace {
	configured := bitset.New(idspaceWidth)
	configured.Set(0)
	for _, id := range extraInstances {
		configured.Set(id)
	}
	return &IDSpace{configured: configured, live: bitset.New(idspaceWidth)}
}

// IsConfigured reports whether id is part of this area's declared
// membership.
func (s *IDSpace) IsConfigured(id uint) bool {
	return s.configured.Test(id)
}

// MarkLive records id as currently live (a heartbeat was just seen
// from it). It rejects IDs outside the configured membership.
func (s *IDSpace) MarkLive(id uint) error {
	if !s.configured.Test(id) {
		return fmt.Errorf("cluster: instance %d is not a configured member of this area", id)
	}
	s.mu.Lock()
	s.live.Set(id)
	s.mu.Unlock()
	return nil
}

// MarkDead clears id's liveness, e.g. after its heartbeat times out.
func (s *IDSpace) MarkDead(id uint) {
	s.mu.Lock()
	s.live.Clear(id)
	s.mu.Unlock()
}

// LowestLive returns the lowest currently-live instance ID, which is
// master by the deterministic election rule.
func (s *IDSpace) LowestLive() (uint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live.NextSet(0)
}
