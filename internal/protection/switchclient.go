package protection

import (
	"github.com/wandsdn/helix/internal/candidate"
	"github.com/wandsdn/helix/internal/topology"
)

// SwitchClient is what the installer needs from a switch: the ability to
// program fast-failover groups and the flows that point at them. It is
// intentionally narrow and carries no OpenFlow wire format -- encoding
// groups/flows onto the wire is a collaborator's concern, out of scope
// here (§1), mirroring how the teacher's ofctrl.OFSwitch separates the
// forwarding-graph model from the protocol encoder underneath it.
type SwitchClient interface {
	InstallGroup(sw topology.NodeID, g Group) error
	ModifyGroup(sw topology.NodeID, g Group) error
	DeleteGroup(sw topology.NodeID, gid candidate.Gid) error

	InstallFlow(sw topology.NodeID, f Flow) error
	DeleteFlow(sw topology.NodeID, f Flow) error
}
