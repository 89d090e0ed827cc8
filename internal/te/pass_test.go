package te

import (
	"testing"
	"time"

	"github.com/wandsdn/helix/internal/candidate"
	"github.com/wandsdn/helix/internal/pathengine"
	"github.com/wandsdn/helix/internal/topology"
)

const gbps = 1000000000

// buildCongested builds h1-s1-s2-h2 with the s1->s2 edge at 95% usage
// (congested at the default tau=0.90) plus a parallel, uncongested
// chord h1-s1-s3-s2-h2.
func buildCongested(t *testing.T) (*topology.Graph, topology.NodeID, topology.NodeID) {
	t.Helper()
	g := topology.New()
	s1, s2, s3 := topology.SwitchID(1), topology.SwitchID(2), topology.SwitchID(3)

	must := func(err error) {
		if err != nil {
			t.Fatalf("AddLink: %v", err)
		}
	}
	must(g.AddLink(s1, 1, s2, 1, gbps))
	must(g.AddLink(s1, 2, s3, 1, gbps))
	must(g.AddLink(s3, 2, s2, 2, gbps))

	h1 := topology.HostID("h1")
	h2 := topology.HostID("h2")
	g.AddHost(h1, "h1", "10.0.0.1", s1, 9)
	g.AddHost(h2, "h2", "10.0.0.2", s2, 9)

	g.SetPortUsage(s1, 1, 0.95*gbps)
	g.SetPortUsage(s2, 2, 0.1*gbps)
	g.SetPortUsage(s3, 1, 0.1*gbps)
	return g, h1, h2
}

func TestCongestedEdgesDetectsAboveTau(t *testing.T) {
	g, _, _ := buildCongested(t)
	snap := g.Snapshot()
	edges := CongestedEdges(snap, 0.90)
	if len(edges) != 1 {
		t.Fatalf("expected exactly 1 congested edge, got %d", len(edges))
	}
	if edges[0].From != topology.SwitchID(1) || edges[0].To != topology.SwitchID(2) {
		t.Fatalf("unexpected congested edge: %+v", edges[0])
	}
}

func TestConsolidationTimerBatchesTriggers(t *testing.T) {
	timer := NewConsolidationTimer(time.Second)
	t0 := time.Unix(1000, 0)

	timer.Trigger(t0)
	timer.Trigger(t0.Add(200 * time.Millisecond)) // collapses into the same pass
	if timer.Ready(t0.Add(500 * time.Millisecond)) {
		t.Fatalf("timer should not be ready before the delay elapses")
	}
	if !timer.Ready(t0.Add(1100 * time.Millisecond)) {
		t.Fatalf("timer should be ready once the delay has elapsed")
	}
	if timer.Pending() {
		t.Fatalf("timer should be cleared after firing")
	}
}

func TestPassCSPFRecompRoutesAroundCongestion(t *testing.T) {
	g, h1, h2 := buildCongested(t)
	snap := g.Snapshot()

	candidates := candidate.NewSet()
	c := candidates.Ensure(h1, h2)
	primary, ok := pathengine.ShortestPath(snap, h1, h2, topology.UnitWeight)
	if !ok {
		t.Fatalf("expected a primary path")
	}
	candidates.Update(c.Gid, func(c *candidate.Candidate) {
		c.Primary = primary
		c.SendRateBps = 0.5 * gbps
	})

	// The candidate carries 0.5 Gbps of the 0.95 Gbps on s1->s2, so
	// moving it onto the s3 chord keeps every edge there under tau.
	usage := candidate.NewUsageTable()
	usage.Set(topology.EdgeKey{From: topology.SwitchID(1), FromPort: 1, To: topology.SwitchID(2)}, c.Gid, 0.5*gbps)

	cfg := DefaultConfig()
	cfg.Strategy = CSPFRecomp

	report := Pass(cfg, snap, candidates, usage, func(candidate.Gid) float64 { return 0.5 * gbps })
	if len(report.Results) != 1 {
		t.Fatalf("expected 1 result, got %d: %+v", len(report.Results), report)
	}
	nodes := report.Results[0].Primary.Nodes()
	foundS3 := false
	for _, n := range nodes {
		if n == topology.SwitchID(3) {
			foundS3 = true
		}
	}
	if !foundS3 {
		t.Fatalf("expected recomputed path to route via s3, got %+v", nodes)
	}
}

func TestPassNoCongestionIsNoop(t *testing.T) {
	g := topology.New()
	s1, s2 := topology.SwitchID(1), topology.SwitchID(2)
	if err := g.AddLink(s1, 1, s2, 1, gbps); err != nil {
		t.Fatalf("AddLink: %v", err)
	}
	g.SetPortUsage(s1, 1, 0.1*gbps)
	snap := g.Snapshot()

	report := Pass(DefaultConfig(), snap, candidate.NewSet(), candidate.NewUsageTable(), func(candidate.Gid) float64 { return 0 })
	if len(report.Results) != 0 || report.ResidualCongestion {
		t.Fatalf("expected a no-op report, got %+v", report)
	}
}
