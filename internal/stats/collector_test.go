package stats

import (
	"testing"
	"time"

	"github.com/wandsdn/helix/internal/topology"
)

type noopPoller struct{}

func (noopPoller) PollPorts(topology.NodeID) ([]PortCounters, error) { return nil, nil }
func (noopPoller) PollFlows(topology.NodeID) ([]FlowCounters, error) { return nil, nil }

func TestApplyPortSampleFirstSampleSeedsRate(t *testing.T) {
	c := New(noopPoller{}, time.Second, true)
	sw := topology.SwitchID(1)
	base := time.Unix(1000, 0)

	c.applyPortSample(PortCounters{Switch: sw, Port: 1, TxBytes: 1000, At: base})
	if got := c.PortRate(sw, 1); got != 0 {
		t.Fatalf("expected no rate from a single sample, got %v", got)
	}

	c.applyPortSample(PortCounters{Switch: sw, Port: 1, TxBytes: 2000, At: base.Add(time.Second)})
	// 1000 bytes over 1s = 8000 bps, first real sample seeds the EWMA directly.
	if got := c.PortRate(sw, 1); got != 8000 {
		t.Fatalf("expected rate 8000, got %v", got)
	}
}

func TestApplyPortSampleSmoothsSubsequentSamples(t *testing.T) {
	c := New(noopPoller{}, time.Second, true)
	sw := topology.SwitchID(1)
	base := time.Unix(1000, 0)

	c.applyPortSample(PortCounters{Switch: sw, Port: 1, TxBytes: 0, At: base})
	c.applyPortSample(PortCounters{Switch: sw, Port: 1, TxBytes: 1000, At: base.Add(time.Second)}) // 8000 bps
	c.applyPortSample(PortCounters{Switch: sw, Port: 1, TxBytes: 3000, At: base.Add(2 * time.Second)}) // 16000 bps

	// EWMA: 0.5*16000 + 0.5*8000 = 12000
	if got := c.PortRate(sw, 1); got != 12000 {
		t.Fatalf("expected smoothed rate 12000, got %v", got)
	}
}

func TestApplyPortSampleDropsCounterReset(t *testing.T) {
	c := New(noopPoller{}, time.Second, true)
	sw := topology.SwitchID(1)
	base := time.Unix(1000, 0)

	c.applyPortSample(PortCounters{Switch: sw, Port: 1, TxBytes: 5000, At: base})
	c.applyPortSample(PortCounters{Switch: sw, Port: 1, TxBytes: 8000, At: base.Add(time.Second)}) // seeds rate to 24000
	if got := c.PortRate(sw, 1); got != 24000 {
		t.Fatalf("setup: expected rate 24000, got %v", got)
	}

	// Counter reset: TxBytes drops below the last sample.
	c.applyPortSample(PortCounters{Switch: sw, Port: 1, TxBytes: 100, At: base.Add(2 * time.Second)})
	if got := c.PortRate(sw, 1); got != 24000 {
		t.Fatalf("expected reset sample to be dropped, rate should remain 24000, got %v", got)
	}
}

func TestCandidateRateUnknownGidIsZero(t *testing.T) {
	c := New(noopPoller{}, time.Second, true)
	if got := c.CandidateRate(999); got != 0 {
		t.Fatalf("expected 0 for unknown gid, got %v", got)
	}
}
