package topology

import "testing"

func TestAddLinkBackReference(t *testing.T) {
	g := New()
	s1 := SwitchID(1)
	s2 := SwitchID(2)

	if err := g.AddLink(s1, 1, s2, 1, 1000000000); err != nil {
		t.Fatalf("AddLink: %v", err)
	}

	e := g.Edge(s1, 1)
	if e == nil {
		t.Fatalf("expected edge s1:1 -> s2:1")
	}
	if e.To != s2 || e.ToPort != 1 {
		t.Fatalf("unexpected edge: %+v", e)
	}

	neigh := g.Neighbours(s1)
	if len(neigh) != 1 || neigh[0] != s2 {
		t.Fatalf("unexpected neighbours: %+v", neigh)
	}
}

func TestRemoveLinkRetainsEdgeInactive(t *testing.T) {
	g := New()
	s1, s2 := SwitchID(1), SwitchID(2)
	g.AddLink(s1, 1, s2, 1, 1000000000)
	g.RemoveLink(s1, 1, s2, 1)

	if e := g.Edge(s1, 1); e != nil {
		t.Fatalf("expected no active edge after RemoveLink, got %+v", e)
	}

	// Reactivating the same link should restore it (append-only in
	// failure mode, §4.A).
	g.AddLink(s1, 1, s2, 1, 1000000000)
	if e := g.Edge(s1, 1); e == nil {
		t.Fatalf("expected edge to reactivate")
	}
}

func TestSnapshotIsIndependentOfLiveMutation(t *testing.T) {
	g := New()
	s1, s2 := SwitchID(1), SwitchID(2)
	g.AddLink(s1, 1, s2, 1, 1000000000)

	snap := g.Snapshot()
	g.RemoveLink(s1, 1, s2, 1)

	if e := snap.Edge(s1, 1); e == nil {
		t.Fatalf("snapshot should retain the edge that existed at capture time")
	}
	if e := g.Edge(s1, 1); e != nil {
		t.Fatalf("live graph should reflect the removal")
	}
}

func TestHostAttachment(t *testing.T) {
	g := New()
	s1 := SwitchID(1)
	h1 := HostID("aa:bb:cc:dd:ee:01")
	g.AddHost(h1, "aa:bb:cc:dd:ee:01", "10.0.0.1", s1, 5)

	neigh := g.Neighbours(h1)
	if len(neigh) != 1 || neigh[0] != s1 {
		t.Fatalf("unexpected host neighbours: %+v", neigh)
	}

	g.RemoveHost(h1)
	if n := g.Node(h1); n != nil {
		t.Fatalf("expected host to be removed")
	}
}

func TestSubscribeReceivesLinkUpEvents(t *testing.T) {
	g := New()
	ch := make(chan Change, 8)
	g.Subscribe(ch)

	s1, s2 := SwitchID(1), SwitchID(2)
	g.AddLink(s1, 1, s2, 1, 1000000000)

	select {
	case c := <-ch:
		if c.Kind != LinkUp {
			t.Fatalf("expected LinkUp, got %+v", c)
		}
	default:
		t.Fatalf("expected a queued LinkUp event")
	}
}
