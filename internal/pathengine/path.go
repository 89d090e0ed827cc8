// Package pathengine implements §4.B of the Helix specification:
// Dijkstra shortest-path search with the specified tie-break order,
// node/link-disjoint backup-path computation, and primary/backup path
// splicing.
package pathengine

import "github.com/wandsdn/helix/internal/topology"

// Hop is one (switch, ingress_port, egress_port) triple of a Path (§3).
type Hop struct {
	Switch  topology.NodeID
	InPort  topology.PortNo
	OutPort topology.PortNo
}

// Path is an ordered sequence of hops from a source host to a
// destination host. An empty, non-nil Path represents src == dst
// (§4.B "source equals destination yields empty path (not NONE)").
type Path []Hop

// Nodes returns just the switch sequence of the path, in order.
func (p Path) Nodes() []topology.NodeID {
	out := make([]topology.NodeID, len(p))
	for i, h := range p {
		out[i] = h.Switch
	}
	return out
}
