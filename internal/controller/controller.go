package controller

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/Sirupsen/logrus"

	"github.com/wandsdn/helix/internal/candidate"
	"github.com/wandsdn/helix/internal/protection"
	"github.com/wandsdn/helix/internal/stats"
	"github.com/wandsdn/helix/internal/te"
	"github.com/wandsdn/helix/internal/timeline"
	"github.com/wandsdn/helix/internal/topology"
)

// Controller is the local controller of §4.F: a single authoritative
// state (topology, candidate set, link-usage table) mutated only by the
// control task, per §5's concurrency invariant. Stats polling and bus
// delivery run on their own goroutines and submit work through Submit*
// methods; they never touch authoritative state directly.
type Controller struct {
	Graph      *topology.Graph
	Candidates *candidate.Set
	Usage      *candidate.UsageTable
	Installer  *protection.Installer
	Strategy   RecoveryStrategy
	TEConfig   te.Config
	Weight     topology.Weight

	// controlMu is the §5 control mutex: authoritative state is mutated
	// only while held.
	controlMu sync.Mutex
	fsm       *fsm

	// quietInterval is "one full poll interval" (§4.F DISCOVERING ->
	// STABLE): the control task arms a timer for this long on every
	// topology change seen while DISCOVERING, and fires OnQuiescent once
	// it elapses with no further change.
	quietInterval time.Duration

	consolidation *te.ConsolidationTimer
	rates         map[candidate.Gid]float64

	timeline    *timeline.Recorder
	timelineCID string
	hasInstance bool
	instance    uint

	ready  chan stats.ReadyEvent
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a controller. weight is the edge-weight function used
// for primary path computation (§4.B CSPFWeight or topology.UnitWeight
// depending on configuration). quietInterval is the poll interval used
// to detect topology quiescence (§4.F DISCOVERING -> STABLE); pass the
// same interval the stats collector polls at.
func New(strategy RecoveryStrategy, teCfg te.Config, installer *protection.Installer, weight topology.Weight, quietInterval time.Duration) *Controller {
	return &Controller{
		Graph:         topology.New(),
		Candidates:    candidate.NewSet(),
		Usage:         candidate.NewUsageTable(),
		Installer:     installer,
		Strategy:      strategy,
		TEConfig:      teCfg,
		Weight:        weight,
		fsm:           newFSM(),
		quietInterval: quietInterval,
		consolidation: te.NewConsolidationTimer(teCfg.ConsolidationDelay),
		rates:         make(map[candidate.Gid]float64),
		ready:         make(chan stats.ReadyEvent, 1),
		stopCh:        make(chan struct{}),
	}
}

// UseTimeline attaches a timeline.Recorder that every subsequent
// control-task transition is reported through (§6 "Event timeline
// output format"). It is optional: a Controller with no recorder
// attached emits nothing.
func (c *Controller) UseTimeline(rec *timeline.Recorder, cid string, hasInstance bool, instance uint) {
	c.timeline = rec
	c.timelineCID = cid
	c.hasInstance = hasInstance
	c.instance = instance
}

func (c *Controller) emit(kind timeline.Kind, info string) {
	if c.timeline == nil {
		return
	}
	c.timeline.Record("local_ctrl", c.timelineCID, c.hasInstance, c.instance, kind, info)
}

// State returns the controller's current FSM state.
func (c *Controller) State() State {
	c.controlMu.Lock()
	defer c.controlMu.Unlock()
	return c.fsm.State()
}

// Run is the control task: a single goroutine serialising every mutation
// of authoritative state (§5). It subscribes to the topology graph's
// change feed and the stats collector's ready events, processing each
// to completion before the next (cooperative scheduling, as in the
// teacher's own single dispatch loop shape).
func (c *Controller) Run() {
	sub := make(chan topology.Change, 64)
	c.Graph.Subscribe(sub)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		var quietTimer *time.Timer
		var quietC <-chan time.Time
		resetQuiet := func() {
			if c.quietInterval <= 0 {
				return
			}
			if quietTimer == nil {
				quietTimer = time.NewTimer(c.quietInterval)
			} else {
				if !quietTimer.Stop() {
					select {
					case <-quietTimer.C:
					default:
					}
				}
				quietTimer.Reset(c.quietInterval)
			}
			quietC = quietTimer.C
		}
		stopQuiet := func() {
			if quietTimer != nil {
				quietTimer.Stop()
			}
			quietC = nil
		}

		for {
			select {
			case ch := <-sub:
				if c.handleTopologyChange(ch) {
					resetQuiet()
				} else {
					stopQuiet()
				}
			case <-quietC:
				c.handleQuiescent()
				stopQuiet()
			case ev := <-c.ready:
				c.handleStatsReady(ev)
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop halts the control task and waits for it to exit.
func (c *Controller) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

// SubmitStatsReady feeds a stats-ready event into the control task
// (called by the stats collector's own goroutine).
func (c *Controller) SubmitStatsReady(ev stats.ReadyEvent) {
	select {
	case c.ready <- ev:
	default:
		log.Warn("controller: stats-ready event dropped, control task busy")
	}
}

// SetCandidateRate records a candidate's current measured send rate,
// consulted by the TE pass's candidate sort (§4.E).
func (c *Controller) SetCandidateRate(gid candidate.Gid, rate float64) {
	c.controlMu.Lock()
	defer c.controlMu.Unlock()
	c.rates[gid] = rate
}

// handleTopologyChange processes one change and reports whether the
// FSM is in DISCOVERING afterwards, so Run knows whether to arm or
// clear the quiescence timer.
func (c *Controller) handleTopologyChange(ch topology.Change) bool {
	c.controlMu.Lock()
	defer c.controlMu.Unlock()

	c.emit(timeline.EventLocal, fmt.Sprintf("topology_change,%v,%s,%s", ch.Kind, ch.A, ch.B))

	switch ch.Kind {
	case topology.LinkUp, topology.HostDiscovered:
		c.fsm.OnFirstLink()
	case topology.LinkDown:
		c.fsm.OnLinkDown()
	case topology.Inconsistent:
		log.WithError(ch.Err).Warn("controller: topology inconsistency reported")
		return c.fsm.State() == Discovering
	}

	// A TE pass in progress is conceptually cancelled by any topology
	// change arriving (§5 "Cancellation & timeouts"): because Run
	// processes one event fully before the next, there is no pass to
	// preempt here -- the invariant holds by construction of the single
	// control task, not by an explicit cancel signal.
	snap := c.Graph.Snapshot()
	c.repathAffected(snap, ch)

	if c.fsm.State() == Degraded {
		c.fsm.OnRepathComplete()
	}
	return c.fsm.State() == Discovering
}

// handleQuiescent fires DISCOVERING -> STABLE once the topology has
// seen no change for one full poll interval (§4.F).
func (c *Controller) handleQuiescent() {
	c.controlMu.Lock()
	defer c.controlMu.Unlock()

	if c.fsm.State() != Discovering {
		return
	}
	c.fsm.OnQuiescent()
	c.emit(timeline.EventLocal, "quiescent")
}

// repathAffected recomputes and reinstalls every candidate touching the
// endpoints of a topology change (§4.F "on topology delta, invoke B+C").
// A link or host coming up can only ever improve reachability, so a
// candidate with no path yet is always worth retrying regardless of
// which switches the new link touches; a link going down only affects
// candidates whose installed primary actually crosses it.
func (c *Controller) repathAffected(snap *topology.Snapshot, ch topology.Change) {
	for _, cand := range c.Candidates.All() {
		pathless := len(cand.Primary) == 0
		improving := ch.Kind == topology.LinkUp || ch.Kind == topology.HostDiscovered
		if !(improving && pathless) && !candidateTouchesChange(cand, ch) {
			continue
		}
		plan := c.Strategy.Compute(snap, cand.Src, cand.Dst, c.Weight)
		c.Candidates.Update(cand.Gid, func(cc *candidate.Candidate) {
			cc.Primary = plan.Primary
			cc.Backup = plan.Backup
			cc.Splices = plan.Splices
			if len(plan.Primary) == 0 {
				cc.State = candidate.NoPath
			} else {
				cc.State = ""
			}
		})
		if len(plan.Primary) == 0 {
			continue
		}
		rs := protection.Compile(cand)
		if _, err := c.Installer.Apply(cand.Gid, rs); err != nil {
			log.WithError(err).WithField("gid", cand.Gid).Error("controller: failed to apply protection rules")
		}
	}
}

func candidateTouchesChange(cand *candidate.Candidate, ch topology.Change) bool {
	for _, h := range cand.Primary {
		if h.Switch == ch.A || h.Switch == ch.B {
			return true
		}
	}
	return cand.Src == ch.A || cand.Src == ch.B || cand.Dst == ch.A || cand.Dst == ch.B
}

func (c *Controller) handleStatsReady(ev stats.ReadyEvent) {
	c.controlMu.Lock()
	defer c.controlMu.Unlock()

	snap := c.Graph.Snapshot()
	if len(te.CongestedEdges(snap, c.TEConfig.Tau)) == 0 {
		return
	}
	c.consolidation.Trigger(ev.At)
	if !c.consolidation.Ready(ev.At) {
		return
	}
	c.runTEPass(snap)
}

func (c *Controller) runTEPass(snap *topology.Snapshot) {
	c.emit(timeline.Action, "te_pass_start")
	report := te.Pass(c.TEConfig, snap, c.Candidates, c.Usage, func(gid candidate.Gid) float64 {
		return c.rates[gid]
	})
	for _, res := range report.Results {
		cand := c.Candidates.Get(res.Gid)
		if cand == nil {
			continue
		}
		c.Candidates.Update(res.Gid, func(cc *candidate.Candidate) { cc.Primary = res.Primary })
		rs := protection.Compile(cand)
		if _, err := c.Installer.Apply(res.Gid, rs); err != nil {
			log.WithError(err).WithField("gid", res.Gid).Error("controller: failed to apply TE repath")
			continue
		}
		c.emit(timeline.EventOFP, fmt.Sprintf("group_mod,%d", res.Gid))
	}
	c.emit(timeline.Action, fmt.Sprintf("te_pass_end,residual=%v", report.ResidualCongestion))
	if report.ResidualCongestion {
		log.Warn("controller: TE pass ended with residual congestion")
	}
}

// Snapshot renders a human-readable dump of candidate send-rates, used
// to answer SIGUSR1 (§4.F "emit a human-readable snapshot").
func (c *Controller) Snapshot(includePorts bool) string {
	c.controlMu.Lock()
	defer c.controlMu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "state: %s\n", c.fsm.State())
	cands := c.Candidates.All()
	sort.Slice(cands, func(i, j int) bool { return cands[i].Gid < cands[j].Gid })
	for _, cand := range cands {
		fmt.Fprintf(&b, "candidate gid=%d %s->%s rate=%.0fbps state=%q hops=%d\n",
			cand.Gid, cand.Src, cand.Dst, c.rates[cand.Gid], cand.State, len(cand.Primary))
	}
	if includePorts {
		for _, e := range c.Graph.Snapshot().AllEdges() {
			fmt.Fprintf(&b, "port %s:%d -> %s usage=%.0fbps cap=%dbps\n", e.From, e.FromPort, e.To, e.UsageBps, e.CapacityBps)
		}
	}
	return b.String()
}
