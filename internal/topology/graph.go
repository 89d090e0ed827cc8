package topology

import (
	"sync"

	log "github.com/Sirupsen/logrus"

	"github.com/wandsdn/helix/internal/helixerr"
)

// ChangeKind distinguishes the flavours of topology-change event §4.A
// says mutations must emit.
type ChangeKind int

const (
	// LinkUp reports that an edge pair became active (new link, or a
	// previously down link recovering).
	LinkUp ChangeKind = iota
	// LinkDown reports that an edge pair was marked inactive.
	LinkDown
	// HostDiscovered reports a new host attached to the graph.
	HostDiscovered
	// HostRemoved reports a host aged out by the discovery timeout.
	HostRemoved
	// Inconsistent reports a broken back-reference invariant (§3).
	Inconsistent
)

// Change is one topology-change event, delivered to subscribers (§4.A:
// "Mutations emit topology-change events consumed by components B, C, F").
type Change struct {
	Kind  ChangeKind
	A, B  NodeID
	PortA PortNo
	PortB PortNo
	Err   error
}

// Graph is the directed multigraph of §4.A. All mutation methods
// acquire mu; Snapshot() returns an immutable, deep copy for workers to
// compute against without holding the lock (§5 "shared read-only with
// workers via snapshot").
type Graph struct {
	mu    sync.RWMutex
	nodes map[NodeID]*Node

	subsMu sync.Mutex
	subs   []chan<- Change
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{nodes: make(map[NodeID]*Node)}
}

// Subscribe registers a channel that receives topology Change events.
// The channel must be serviced by the caller; Graph never blocks
// indefinitely on a full channel — it drops the event and logs a
// warning, since a slow subscriber must not stall the control task.
func (g *Graph) Subscribe(ch chan<- Change) {
	g.subsMu.Lock()
	defer g.subsMu.Unlock()
	g.subs = append(g.subs, ch)
}

func (g *Graph) emit(c Change) {
	g.subsMu.Lock()
	defer g.subsMu.Unlock()
	for _, ch := range g.subs {
		select {
		case ch <- c:
		default:
			log.Warnf("topology: dropped change event %+v, subscriber channel full", c)
		}
	}
}

func (g *Graph) ensureNode(id NodeID, kind NodeKind) *Node {
	n, ok := g.nodes[id]
	if !ok {
		n = &Node{ID: id, Kind: kind, Ports: make(map[PortNo]*PortDesc)}
		g.nodes[id] = n
	}
	return n
}

// AddLink installs (or reactivates) the two directed edges for a
// physical link u:pu <-> v:pv with the given nominal capacity, and
// checks the back-reference invariant of §3.
func (g *Graph) AddLink(u NodeID, pu PortNo, v NodeID, pv PortNo, capBps uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	nu := g.ensureNode(u, KindSwitch)
	nv := g.ensureNode(v, KindSwitch)

	du, ok := nu.Ports[pu]
	if !ok {
		du = &PortDesc{Port: pu}
		nu.Ports[pu] = du
	}
	dv, ok := nv.Ports[pv]
	if !ok {
		dv = &PortDesc{Port: pv}
		nv.Ports[pv] = dv
	}

	du.PeerDPID, du.PeerPort, du.AdminUp, du.Active = v, pv, true, true
	dv.PeerDPID, dv.PeerPort, dv.AdminUp, dv.Active = u, pu, true, true
	if du.CapacityBps == 0 {
		du.CapacityBps = capBps
	}
	if dv.CapacityBps == 0 {
		dv.CapacityBps = capBps
	}

	if err := g.checkBackRefLocked(u, pu); err != nil {
		g.emit(Change{Kind: Inconsistent, A: u, PortA: pu, Err: err})
		return err
	}

	g.emit(Change{Kind: LinkUp, A: u, PortA: pu, B: v, PortB: pv})
	return nil
}

// checkBackRefLocked validates that the peer's back-reference points at
// (dpid, port); mu must already be held.
func (g *Graph) checkBackRefLocked(dpid NodeID, port PortNo) error {
	n, ok := g.nodes[dpid]
	if !ok {
		return nil
	}
	pd, ok := n.Ports[port]
	if !ok || pd.PeerDPID == "" {
		return nil
	}
	peer, ok := g.nodes[pd.PeerDPID]
	if !ok {
		return nil
	}
	peerPd, ok := peer.Ports[pd.PeerPort]
	if !ok || peerPd.PeerDPID != dpid || peerPd.PeerPort != port {
		return helixerr.Invariantf("topology inconsistency: %s:%d claims peer %s:%d, back-reference does not match",
			dpid, port, pd.PeerDPID, pd.PeerPort)
	}
	return nil
}

// RemoveLink marks the link down: both edges are retained but Active is
// cleared, so the graph can revert on recovery (§4.A).
func (g *Graph) RemoveLink(u NodeID, pu PortNo, v NodeID, pv PortNo) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if n, ok := g.nodes[u]; ok {
		if pd, ok := n.Ports[pu]; ok {
			pd.Active = false
		}
	}
	if n, ok := g.nodes[v]; ok {
		if pd, ok := n.Ports[pv]; ok {
			pd.Active = false
		}
	}
	g.emit(Change{Kind: LinkDown, A: u, PortA: pu, B: v, PortB: pv})
}

// SetPortUsage records the latest send-rate estimate for a port (§4.D).
// The stats collector keeps its own rates and does not call this.
func (g *Graph) SetPortUsage(dpid NodeID, port PortNo, bps float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.nodes[dpid]; ok {
		if pd, ok := n.Ports[port]; ok {
			pd.SendRateBps = bps
		}
	}
}

// AddHost registers (or re-touches) a host attached to dpid:port, and
// registers the attachment switch if it is not yet known.
func (g *Graph) AddHost(id NodeID, mac, ip string, dpid NodeID, port PortNo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if dpid != "" {
		g.ensureNode(dpid, KindSwitch)
	}
	n := g.ensureNode(id, KindHost)
	n.HostMAC, n.HostIP = mac, ip
	n.AttachDPID, n.AttachPort = dpid, port
	g.emit(Change{Kind: HostDiscovered, A: id, B: dpid, PortB: port})
}

// RemoveHost deletes a host node (discovery timeout or endpoint gone).
func (g *Graph) RemoveHost(id NodeID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.nodes, id)
	g.emit(Change{Kind: HostRemoved, A: id})
}

// Neighbours returns the NodeIDs reachable over one active edge from id.
func (g *Graph) Neighbours(id NodeID) []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	var out []NodeID
	if n.Kind == KindHost {
		if n.AttachDPID != "" {
			out = append(out, n.AttachDPID)
		}
		return out
	}
	for _, pd := range n.Ports {
		if pd.Active && pd.PeerDPID != "" {
			out = append(out, pd.PeerDPID)
		}
	}
	return out
}

// Edge returns the active edge leaving dpid:port, or nil.
func (g *Graph) Edge(dpid NodeID, port PortNo) *Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edgeLocked(dpid, port)
}

func (g *Graph) edgeLocked(dpid NodeID, port PortNo) *Edge {
	n, ok := g.nodes[dpid]
	if !ok {
		return nil
	}
	pd, ok := n.Ports[port]
	if !ok || !pd.Active || pd.PeerDPID == "" {
		return nil
	}
	return &Edge{
		From: dpid, FromPort: port,
		To: pd.PeerDPID, ToPort: pd.PeerPort,
		CapacityBps: pd.CapacityBps,
		UsageBps:    pd.SendRateBps,
		Active:      pd.Active,
	}
}

// Node returns a shallow copy of node metadata, or nil.
func (g *Graph) Node(id NodeID) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	cp := *n
	return &cp
}
