// Package topology implements the directed multigraph of §4.A/§3 of the
// Helix specification: switches and hosts, per-port capacity and live
// usage, and the topology-change events consumed by the path engine,
// the protection installer and the local controller.
package topology

import "fmt"

// NodeKind distinguishes switches from hosts.
type NodeKind int

const (
	// KindSwitch is a data-plane switch, identified by DPID.
	KindSwitch NodeKind = iota
	// KindHost is an end host, identified by a MAC/IP pair.
	KindHost
)

func (k NodeKind) String() string {
	if k == KindHost {
		return "host"
	}
	return "switch"
}

// NodeID is a stable identifier: "dp:<dpid>" (decimal 64-bit DPID) for
// switches, or "host:<mac>" for hosts (§3 "Node").
type NodeID string

// SwitchID builds a NodeID for a switch from its datapath identifier.
func SwitchID(dpid uint64) NodeID {
	return NodeID(fmt.Sprintf("dp:%d", dpid))
}

// HostID builds a NodeID for a host from its MAC address.
func HostID(mac string) NodeID {
	return NodeID("host:" + mac)
}

// PortNo identifies a port on a switch.
type PortNo uint32

// PortDesc describes one port of a switch (§3 "PortDesc").
type PortDesc struct {
	Port PortNo

	// PeerDPID/PeerPort identify the other end of the link, if known.
	// PeerDPID is "" when the port has no discovered peer.
	PeerDPID NodeID
	PeerPort PortNo

	AdminUp bool

	// CapacityBps is the nominal capacity of the port, from the static
	// CSV or OpenFlow port-desc (§6).
	CapacityBps uint64

	// SendRateBps is the port's outbound rate estimate, as last set
	// through Graph.SetPortUsage (§4.D).
	SendRateBps float64

	// Active is false while the link is known-down (failure mode); the
	// port/edge is retained so it can be reactivated on recovery
	// (§4.A "append-only in failure mode").
	Active bool
}

// Node is either a switch (with a port map) or a host.
type Node struct {
	ID   NodeID
	Kind NodeKind

	// Ports holds PortDesc by port number; empty for hosts.
	Ports map[PortNo]*PortDesc

	// HostMAC/HostIP are populated for host nodes.
	HostMAC string
	HostIP  string

	// AttachDPID/AttachPort is the switch port a host is attached to,
	// populated for host nodes once discovered.
	AttachDPID NodeID
	AttachPort PortNo
}

// EdgeKey identifies one directed edge of the graph.
type EdgeKey struct {
	From     NodeID
	FromPort PortNo
	To       NodeID
}

// Edge is one directed, single-port-of-origin edge derived from a pair
// of adjacent PortDescs (§3 "Edge"). Each physical link yields two Edge
// values, one per direction, each with independent usage.
type Edge struct {
	From     NodeID
	FromPort PortNo
	To       NodeID
	ToPort   PortNo

	CapacityBps uint64
	UsageBps    float64

	Active bool
}

// Weight is a function that scores an edge for shortest-path search.
// Returned weights must be > 0 for the tie-break rules of §4.B to hold.
type Weight func(e *Edge) float64

// UnitWeight scores every active edge at 1 (hop count).
func UnitWeight(e *Edge) float64 {
	return 1
}
