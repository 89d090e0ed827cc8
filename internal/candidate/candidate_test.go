package candidate

import (
	"testing"

	"github.com/wandsdn/helix/internal/topology"
)

func TestDeriveGidDeterministic(t *testing.T) {
	src := topology.HostID("h1")
	dst := topology.HostID("h2")

	a := DeriveGid(src, dst)
	b := DeriveGid(src, dst)
	if a != b {
		t.Fatalf("expected gid to be stable across calls")
	}

	rev := DeriveGid(dst, src)
	if rev == a {
		t.Fatalf("ordered pair (dst,src) must not collide with (src,dst)")
	}
}

func TestSetIsScopedNotGlobal(t *testing.T) {
	s1 := NewSet()
	s2 := NewSet()

	s1.Ensure(topology.HostID("h1"), topology.HostID("h2"))
	if len(s2.All()) != 0 {
		t.Fatalf("second Set must not see candidates created on the first")
	}
}

func TestUsageTableInvariant(t *testing.T) {
	u := NewUsageTable()
	key := topology.EdgeKey{From: topology.SwitchID(1), FromPort: 1, To: topology.SwitchID(2)}

	u.Set(key, Gid(1), 10)
	u.Set(key, Gid(2), 20)
	if got := u.Total(key); got != 30 {
		t.Fatalf("expected total 30, got %v", got)
	}

	if got := u.Projected(key, Gid(1), 50); got != 70 {
		t.Fatalf("expected projected total 70 (20 + 50), got %v", got)
	}

	u.Clear(Gid(1))
	if got := u.Total(key); got != 20 {
		t.Fatalf("expected total 20 after clearing gid 1, got %v", got)
	}
}
