package pathengine

import (
	"testing"

	"github.com/wandsdn/helix/internal/topology"
)

// buildLinear builds h1-s1-s2-s3-s4-s5-h2 plus a chord s1-s4, all links
// 1 Gbps -- the S1 scenario topology of the specification.
func buildLinear(t *testing.T) (*topology.Graph, topology.NodeID, topology.NodeID) {
	t.Helper()
	g := topology.New()
	const gbps = 1000000000

	s := func(i int) topology.NodeID { return topology.SwitchID(uint64(i)) }

	must := func(err error) {
		if err != nil {
			t.Fatalf("AddLink: %v", err)
		}
	}
	must(g.AddLink(s(1), 2, s(2), 1, gbps))
	must(g.AddLink(s(2), 2, s(3), 1, gbps))
	must(g.AddLink(s(3), 2, s(4), 1, gbps))
	must(g.AddLink(s(4), 2, s(5), 1, gbps))
	must(g.AddLink(s(1), 3, s(4), 3, gbps))

	h1 := topology.HostID("h1")
	h2 := topology.HostID("h2")
	g.AddHost(h1, "h1", "10.0.0.1", s(1), 1)
	g.AddHost(h2, "h2", "10.0.0.2", s(5), 2)
	return g, h1, h2
}

func TestShortestPathSourceEqualsDest(t *testing.T) {
	g, h1, _ := buildLinear(t)
	snap := g.Snapshot()
	p, ok := ShortestPath(snap, h1, h1, topology.UnitWeight)
	if !ok {
		t.Fatalf("expected ok for src==dst")
	}
	if len(p) != 0 {
		t.Fatalf("expected empty path for src==dst, got %+v", p)
	}
}

func TestShortestPathDisconnected(t *testing.T) {
	g := topology.New()
	h1 := topology.HostID("h1")
	h2 := topology.HostID("h2")
	g.AddHost(h1, "h1", "10.0.0.1", topology.SwitchID(1), 1)
	g.AddHost(h2, "h2", "10.0.0.2", topology.SwitchID(2), 1)
	snap := g.Snapshot()
	_, ok := ShortestPath(snap, h1, h2, topology.UnitWeight)
	if ok {
		t.Fatalf("expected no path between disconnected hosts")
	}
}

func TestShortestPathLinear(t *testing.T) {
	g, h1, h2 := buildLinear(t)
	snap := g.Snapshot()
	p, ok := ShortestPath(snap, h1, h2, topology.UnitWeight)
	if !ok {
		t.Fatalf("expected a path")
	}
	got := p.Nodes()
	want := []topology.NodeID{topology.SwitchID(1), topology.SwitchID(4), topology.SwitchID(5)}
	if len(got) != len(want) {
		t.Fatalf("unexpected path length: %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected path %+v, want %+v", got, want)
		}
	}
}

func TestDisjointPairNodeDisjointBackup(t *testing.T) {
	g, h1, h2 := buildLinear(t)
	snap := g.Snapshot()

	// Force the primary onto the long way round by making the chord
	// heavier via a CSPF-style weight that penalises s1-s4.
	weight := func(e *topology.Edge) float64 {
		if e.From == topology.SwitchID(1) && e.To == topology.SwitchID(4) {
			return 100
		}
		if e.From == topology.SwitchID(4) && e.To == topology.SwitchID(1) {
			return 100
		}
		return 1
	}

	primary, backup, kind := DisjointPair(snap, h1, h2, weight)
	if len(primary) == 0 {
		t.Fatalf("expected a primary path")
	}
	if kind == BackupNone {
		t.Fatalf("expected some backup to be found")
	}
	if kind == BackupNodeDisjoint {
		primSet := map[topology.NodeID]bool{}
		for _, h := range primary[1 : len(primary)-1] {
			primSet[h.Switch] = true
		}
		for _, h := range backup[1 : len(backup)-1] {
			if primSet[h.Switch] {
				t.Fatalf("backup reuses a primary transit switch: %s", h.Switch)
			}
		}
	}
}

func TestSplicesStrictRequiresActiveSuffix(t *testing.T) {
	g, h1, h2 := buildLinear(t)
	snap := g.Snapshot()

	primary, ok := ShortestPath(snap, h1, h2, topology.UnitWeight)
	if !ok {
		t.Fatalf("expected primary path")
	}
	_, backup, kind := DisjointPair(snap, h1, h2, topology.UnitWeight)
	if kind == BackupNone {
		t.Fatalf("expected a backup")
	}

	splices := Splices(snap, primary, backup, true)
	if len(splices) == 0 {
		t.Fatalf("expected at least one splice point")
	}
}
