package rootctrl

import (
	"sync"
	"testing"

	"github.com/wandsdn/helix/internal/bus"
	"github.com/wandsdn/helix/internal/topology"
)

// fakeBus fans out every Publish to every Subscribe channel on the same
// topic, enough to drive root/area/client round trips deterministically
// without a real etcd/consul instance.
type fakeBus struct {
	mu   sync.Mutex
	subs map[string][]chan bus.Message
}

func newFakeBus() *fakeBus {
	return &fakeBus{subs: make(map[string][]chan bus.Message)}
}

func (b *fakeBus) Publish(topic string, msg bus.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[topic] {
		ch <- msg
	}
	return nil
}

func (b *fakeBus) Subscribe(topic string) (<-chan bus.Message, error) {
	ch := make(chan bus.Message, 32)
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()
	return ch, nil
}

func (b *fakeBus) Close() error { return nil }

// buildArea creates a single-switch area topology with one host
// attached, enough for a segment query to resolve host->switch.
func buildArea(sw, host topology.NodeID) *topology.Graph {
	g := topology.New()
	g.AddHost(host, "host", "10.0.0.1", sw, 1)
	return g
}

func TestResolvePathStitchesAcrossOneLink(t *testing.T) {
	b := newFakeBus()

	areaASw := topology.SwitchID(1)
	areaAHost := topology.HostID("hostA")
	areaAGraph := buildArea(areaASw, areaAHost)

	areaBSw := topology.SwitchID(2)
	areaBHost := topology.HostID("hostB")
	areaBGraph := buildArea(areaBSw, areaBHost)

	cat := NewCatalogue()
	cat.SetHostArea(areaAHost, "area-a")
	cat.SetHostArea(areaBHost, "area-b")
	cat.AddLink(InterAreaLink{AreaA: "area-a", SwA: areaASw, PortA: 9, AreaB: "area-b", SwB: areaBSw, PortB: 9})

	agentA := NewAreaAgent(b, "area-a", areaAGraph, topology.UnitWeight)
	if err := agentA.Run(); err != nil {
		t.Fatalf("agentA.Run: %v", err)
	}
	defer agentA.Stop()
	agentB := NewAreaAgent(b, "area-b", areaBGraph, topology.UnitWeight)
	if err := agentB.Run(); err != nil {
		t.Fatalf("agentB.Run: %v", err)
	}
	defer agentB.Stop()

	root := New(b, "root", cat)
	if err := root.Run(); err != nil {
		t.Fatalf("root.Run: %v", err)
	}
	defer root.Stop()

	client, err := NewClient(b, "root", "area-a")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	path, _, err := client.RequestPath(areaAHost, areaBHost)
	if err != nil {
		t.Fatalf("RequestPath: %v", err)
	}
	if len(path) == 0 {
		t.Fatalf("expected a non-empty stitched path")
	}
	if path[0].Switch != areaASw {
		t.Fatalf("expected stitched path to start at %s, got %s", areaASw, path[0].Switch)
	}
	if path[len(path)-1].Switch != areaBSw {
		t.Fatalf("expected stitched path to end at %s, got %s", areaBSw, path[len(path)-1].Switch)
	}
}

func TestResolvePathRejectsUnknownHostArea(t *testing.T) {
	b := newFakeBus()
	cat := NewCatalogue()
	cat.SetHostArea(topology.HostID("hostA"), "area-a")

	root := New(b, "root", cat)
	if err := root.Run(); err != nil {
		t.Fatalf("root.Run: %v", err)
	}
	defer root.Stop()

	client, err := NewClient(b, "root", "area-a")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, _, err = client.RequestPath(topology.HostID("hostA"), topology.HostID("hostMissing"))
	if err == nil {
		t.Fatalf("expected an error for an unknown destination area")
	}
}

func TestCatalogueLinksBetweenAreReversible(t *testing.T) {
	cat := NewCatalogue()
	sw1, sw2 := topology.SwitchID(1), topology.SwitchID(2)
	cat.AddLink(InterAreaLink{AreaA: "area-a", SwA: sw1, PortA: 9, AreaB: "area-b", SwB: sw2, PortB: 9})

	forward := cat.LinksBetween("area-a", "area-b")
	if len(forward) != 1 || forward[0].SwA != sw1 {
		t.Fatalf("unexpected forward links: %+v", forward)
	}
	backward := cat.LinksBetween("area-b", "area-a")
	if len(backward) != 1 || backward[0].SwA != sw2 || backward[0].SwB != sw1 {
		t.Fatalf("unexpected backward links: %+v", backward)
	}
}
