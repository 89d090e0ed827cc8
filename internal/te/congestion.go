package te

import (
	"time"

	log "github.com/Sirupsen/logrus"

	"github.com/wandsdn/helix/internal/topology"
)

// CongestedEdges returns every edge whose usage/cap ratio exceeds tau
// (§4.E "Trigger").
func CongestedEdges(snap *topology.Snapshot, tau float64) []*topology.Edge {
	var out []*topology.Edge
	for _, e := range snap.AllEdges() {
		if !e.Active || e.CapacityBps == 0 {
			continue
		}
		if e.UsageBps/float64(e.CapacityBps) > tau {
			out = append(out, e)
		}
	}
	return out
}

// MaxUsageRatio returns the network-wide maximum usage/cap ratio across
// all active edges, used as the partial-accept baseline (§4.E).
func MaxUsageRatio(snap *topology.Snapshot) float64 {
	max := 0.0
	for _, e := range snap.AllEdges() {
		if !e.Active || e.CapacityBps == 0 {
			continue
		}
		if r := e.UsageBps / float64(e.CapacityBps); r > max {
			max = r
		}
	}
	return max
}

// ConsolidationTimer batches near-simultaneous congestion triggers into
// a single optimisation pass (§4.E "consolidation delay"). It mirrors
// the teacher's single-threaded, cooperative-scheduling control loop:
// the timer only ever runs on the caller's own goroutine via Trigger
// and Ready, no background goroutine of its own.
type ConsolidationTimer struct {
	delay   time.Duration
	pending bool
	due     time.Time
}

// NewConsolidationTimer creates a timer with the given consolidation
// delay (§4.E default 1s, must be < poll interval T -- enforced by the
// config loader, not here).
func NewConsolidationTimer(delay time.Duration) *ConsolidationTimer {
	return &ConsolidationTimer{delay: delay}
}

// Trigger arms (or re-arms) the timer; repeated triggers before it
// fires collapse into the same pass.
func (c *ConsolidationTimer) Trigger(now time.Time) {
	if !c.pending {
		c.pending = true
		c.due = now.Add(c.delay)
		log.WithField("due", c.due).Debug("te: consolidation timer armed")
	}
}

// Ready reports whether the timer is due, and clears it if so.
func (c *ConsolidationTimer) Ready(now time.Time) bool {
	if !c.pending || now.Before(c.due) {
		return false
	}
	c.pending = false
	return true
}

// Pending reports whether a pass is currently scheduled.
func (c *ConsolidationTimer) Pending() bool { return c.pending }
