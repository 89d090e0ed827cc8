package candidate

import (
	"sync"

	"github.com/wandsdn/helix/internal/topology"
)

// UsageTable is the §3 "Link-usage table": for every directed edge, a
// mapping gid -> contributed bps, plus the total. The invariant
// total == sum(contributions) is maintained by construction: callers
// only mutate through Set/Clear, never touch totals directly.
type UsageTable struct {
	mu    sync.RWMutex
	byKey map[topology.EdgeKey]map[Gid]float64
}

// NewUsageTable creates an empty usage table.
func NewUsageTable() *UsageTable {
	return &UsageTable{byKey: make(map[topology.EdgeKey]map[Gid]float64)}
}

// Set records gid's contribution to edge key, replacing any previous
// value for that gid on that edge.
func (u *UsageTable) Set(key topology.EdgeKey, gid Gid, bps float64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	m, ok := u.byKey[key]
	if !ok {
		m = make(map[Gid]float64)
		u.byKey[key] = m
	}
	if bps == 0 {
		delete(m, gid)
		if len(m) == 0 {
			delete(u.byKey, key)
		}
		return
	}
	m[gid] = bps
}

// Clear removes gid's contribution from every edge (used when a
// candidate is re-pathed or destroyed).
func (u *UsageTable) Clear(gid Gid) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for key, m := range u.byKey {
		delete(m, gid)
		if len(m) == 0 {
			delete(u.byKey, key)
		}
	}
}

// Total returns the sum of all contributions on edge key.
func (u *UsageTable) Total(key topology.EdgeKey) float64 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	var total float64
	for _, v := range u.byKey[key] {
		total += v
	}
	return total
}

// Contribution returns gid's current contribution to edge key.
func (u *UsageTable) Contribution(key topology.EdgeKey, gid Gid) float64 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.byKey[key][gid]
}

// Projected returns the total usage of edge key if gid's contribution
// were replaced by newBps (§4.E "current − candidate contribution +
// new contribution"), without mutating the table.
func (u *UsageTable) Projected(key topology.EdgeKey, gid Gid, newBps float64) float64 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	total := 0.0
	for g, v := range u.byKey[key] {
		if g == gid {
			continue
		}
		total += v
	}
	return total + newBps
}
