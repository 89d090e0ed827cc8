// Package stats implements §4.D of the specification: periodic
// switch polling, EWMA-smoothed port send-rate derivation, per-candidate
// send-rate attribution, and counter-reset detection.
package stats

import (
	"sync"
	"time"

	log "github.com/Sirupsen/logrus"

	"github.com/wandsdn/helix/internal/topology"
)

// SmoothingFactor is the exponential smoothing factor applied to raw
// port send-rate samples (§4.D "exponentially smoothed with factor
// 0.5"). new = factor*sample + (1-factor)*old.
const SmoothingFactor = 0.5

// PortCounters is one raw poll sample for a switch port.
type PortCounters struct {
	Switch  topology.NodeID
	Port    topology.PortNo
	TxBytes uint64
	At      time.Time
}

// FlowCounters is one raw poll sample for a candidate's first-hop flow.
type FlowCounters struct {
	Gid     uint64
	TxBytes uint64
	At      time.Time
}

// SwitchPoller is the collaborator that performs the actual switch
// round-trip; a real implementation talks OpenFlow/gRPC/whatever the
// switch driver speaks, out of scope here (§1).
type SwitchPoller interface {
	PollPorts(sw topology.NodeID) ([]PortCounters, error)
	PollFlows(sw topology.NodeID) ([]FlowCounters, error)
}

type portState struct {
	last     PortCounters
	haveLast bool
	haveRate bool
	rateBps  float64
}

type flowState struct {
	last     FlowCounters
	haveLast bool
	haveRate bool
	rateBps  float64
}

// ReadyEvent is published once per completed polling cycle (§4.D
// "stats-ready event").
type ReadyEvent struct {
	At time.Time
}

// Collector polls a fixed set of switches at a configured interval and
// maintains smoothed send-rate state for ports and candidates.
type Collector struct {
	poller       SwitchPoller
	interval     time.Duration
	collectPorts bool

	mu     sync.Mutex
	ports  map[topology.EdgeKey]*portState
	flows  map[uint64]*flowState
	ready  chan ReadyEvent
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a collector. interval must already be validated against
// §6's [0.5, 600] bound by the caller (config layer). If collectPorts
// is false, port polling (and therefore TE) is disabled entirely (§4.D).
func New(poller SwitchPoller, interval time.Duration, collectPorts bool) *Collector {
	return &Collector{
		poller:       poller,
		interval:     interval,
		collectPorts: collectPorts,
		ports:        make(map[topology.EdgeKey]*portState),
		flows:        make(map[uint64]*flowState),
		ready:        make(chan ReadyEvent, 1),
		stopCh:       make(chan struct{}),
	}
}

// Ready returns the channel on which stats-ready events are published.
func (c *Collector) Ready() <-chan ReadyEvent { return c.ready }

// Start begins the polling loop over switches, following the teacher's
// select-loop shape (netplugin/cluster.go peerDiscoveryLoop): a ticker
// drives cycles, a stop channel drives shutdown.
func (c *Collector) Start(switches []topology.NodeID) {
	if !c.collectPorts {
		log.Info("stats: port collection disabled, TE has no utilisation signal")
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.pollCycle(switches)
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop halts the polling loop and waits for it to exit.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Collector) pollCycle(switches []topology.NodeID) {
	now := time.Now()
	for _, sw := range switches {
		samples, err := c.poller.PollPorts(sw)
		if err != nil {
			log.WithError(err).WithField("switch", sw).Warn("stats: port poll failed")
			continue
		}
		for _, s := range samples {
			c.applyPortSample(s)
		}

		flowSamples, err := c.poller.PollFlows(sw)
		if err != nil {
			log.WithError(err).WithField("switch", sw).Warn("stats: flow poll failed")
			continue
		}
		for _, s := range flowSamples {
			c.applyFlowSample(s)
		}
	}

	select {
	case c.ready <- ReadyEvent{At: now}:
	default:
		log.Warn("stats: ready event dropped, consumer not keeping up")
	}
}

func (c *Collector) applyPortSample(s PortCounters) {
	key := topology.EdgeKey{From: s.Switch, FromPort: s.Port}
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.ports[key]
	if !ok {
		st = &portState{}
		c.ports[key] = st
	}
	if !st.haveLast {
		st.last = s
		st.haveLast = true
		return
	}
	if s.TxBytes < st.last.TxBytes || !s.At.After(st.last.At) {
		// Counter reset or non-monotonic delta: drop the sample (§4.D).
		log.WithFields(log.Fields{"switch": s.Switch, "port": s.Port}).
			Debug("stats: dropping non-monotonic port sample")
		st.last = s
		return
	}
	dt := s.At.Sub(st.last.At).Seconds()
	if dt <= 0 {
		st.last = s
		return
	}
	dbytes := float64(s.TxBytes - st.last.TxBytes)
	sample := dbytes * 8 / dt
	st.rateBps = ewma(st.rateBps, sample, st.haveRate)
	st.haveRate = true
	st.last = s
}

func (c *Collector) applyFlowSample(s FlowCounters) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.flows[s.Gid]
	if !ok {
		st = &flowState{}
		c.flows[s.Gid] = st
	}
	if !st.haveLast {
		st.last = s
		st.haveLast = true
		return
	}
	if s.TxBytes < st.last.TxBytes || !s.At.After(st.last.At) {
		log.WithField("gid", s.Gid).Debug("stats: dropping non-monotonic flow sample")
		st.last = s
		return
	}
	dt := s.At.Sub(st.last.At).Seconds()
	if dt <= 0 {
		st.last = s
		return
	}
	dbytes := float64(s.TxBytes - st.last.TxBytes)
	sample := dbytes * 8 / dt
	st.rateBps = ewma(st.rateBps, sample, st.haveRate)
	st.haveRate = true
	st.last = s
}

// PortRate returns the current smoothed send-rate of a port, in bps.
func (c *Collector) PortRate(sw topology.NodeID, port topology.PortNo) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.ports[topology.EdgeKey{From: sw, FromPort: port}]
	if !ok {
		return 0
	}
	return st.rateBps
}

// CandidateRate returns the current smoothed send-rate attributed to a
// candidate via its first-hop flow counter, in bps.
func (c *Collector) CandidateRate(gid uint64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.flows[gid]
	if !ok {
		return 0
	}
	return st.rateBps
}

func ewma(old, sample float64, haveRate bool) float64 {
	if !haveRate {
		return sample
	}
	return SmoothingFactor*sample + (1-SmoothingFactor)*old
}
