package topology

// Snapshot is an immutable, point-in-time copy of the graph, handed to
// worker tasks so path computation and TE selection can run without
// holding Graph's mutex (§5: "Path computation and TE selection may run
// on the control task ... or on worker tasks against an immutable
// snapshot followed by a commit that re-validates the snapshot").
type Snapshot struct {
	nodes map[NodeID]*Node
}

// Snapshot takes a deep copy of the current graph state.
func (g *Graph) Snapshot() *Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	cp := make(map[NodeID]*Node, len(g.nodes))
	for id, n := range g.nodes {
		nc := *n
		nc.Ports = make(map[PortNo]*PortDesc, len(n.Ports))
		for p, pd := range n.Ports {
			pdc := *pd
			nc.Ports[p] = &pdc
		}
		cp[id] = &nc
	}
	return &Snapshot{nodes: cp}
}

// Neighbours mirrors Graph.Neighbours against the frozen snapshot.
func (s *Snapshot) Neighbours(id NodeID) []NodeID {
	n, ok := s.nodes[id]
	if !ok {
		return nil
	}
	if n.Kind == KindHost {
		if n.AttachDPID != "" {
			return []NodeID{n.AttachDPID}
		}
		return nil
	}
	var out []NodeID
	for _, pd := range n.Ports {
		if pd.Active && pd.PeerDPID != "" {
			out = append(out, pd.PeerDPID)
		}
	}
	return out
}

// Edge mirrors Graph.Edge against the frozen snapshot.
func (s *Snapshot) Edge(dpid NodeID, port PortNo) *Edge {
	n, ok := s.nodes[dpid]
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

// Node mirrors Graph.Node against the frozen snapshot.
func (s *Snapshot) Node(id NodeID) *Node {
	n, ok := s.nodes[id]
	if !ok {
		return nil
	}
	return n
}

// HostAttachPort returns the switch port a host is attached to.
func (s *Snapshot) HostAttachPort(host NodeID) (NodeID, PortNo, bool) {
	n, ok := s.nodes[host]
	if !ok || n.Kind != KindHost {
		return "", 0, false
	}
	return n.AttachDPID, n.AttachPort, n.AttachDPID != ""
}

// PortOfPeer returns the port on dpid facing peer, if an active edge
// connects them.
func (s *Snapshot) PortOfPeer(dpid, peer NodeID) (PortNo, bool) {
	n, ok := s.nodes[dpid]
	if !ok {
		return 0, false
	}
	for p, pd := range n.Ports {
		if pd.Active && pd.PeerDPID == peer {
			return p, true
		}
	}
	return 0, false
}

// AllEdgesFrom returns every active outgoing edge of dpid.
func (s *Snapshot) AllEdgesFrom(dpid NodeID) []*Edge {
	n, ok := s.nodes[dpid]
	if !ok {
		return nil
	}
	var out []*Edge
	for p, pd := range n.Ports {
		if pd.Active && pd.PeerDPID != "" {
			out = append(out, &Edge{
				From: dpid, FromPort: p,
				To: pd.PeerDPID, ToPort: pd.PeerPort,
				CapacityBps: pd.CapacityBps,
				UsageBps:    pd.SendRateBps,
				Active:      pd.Active,
			})
		}
	}
	return out
}

// AllEdges returns every active directed edge in the snapshot.
func (s *Snapshot) AllEdges() []*Edge {
	var out []*Edge
	for id := range s.nodes {
		out = append(out, s.AllEdgesFrom(id)...)
	}
	return out
}
