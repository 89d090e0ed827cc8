package rootctrl

import "github.com/wandsdn/helix/internal/topology"

// ReqKind distinguishes the two roles INTER_AREA_REQ plays: a local
// controller asking root for a stitched cross-area path, and root
// asking an area master for one of its local segments of that path.
type ReqKind string

const (
	// ReqStitchedPath is sent by a local controller to root (§4.H).
	ReqStitchedPath ReqKind = "path"
	// ReqSegment is sent by root to an area master, asking for the
	// shortest local path between two nodes in that area's topology.
	ReqSegment ReqKind = "segment"
)

// ReqPayload is the INTER_AREA_REQ body. ReplyTopic tells the responder
// which bus topic to publish its RespPayload to, since the bus routes
// purely on topic strings rather than on Message.AreaID.
type ReqPayload struct {
	ReqID      string          `json:"req_id"`
	Kind       ReqKind         `json:"kind"`
	Src        topology.NodeID `json:"src"`
	Dst        topology.NodeID `json:"dst"`
	ReplyTopic string          `json:"reply_topic"`
}

// PathHop mirrors pathengine.Hop without importing it, so the wire
// format does not depend on internal path-search plumbing.
type PathHop struct {
	Switch  topology.NodeID `json:"switch"`
	InPort  topology.PortNo `json:"in_port"`
	OutPort topology.PortNo `json:"out_port"`
}

// RespPayload is the INTER_AREA_RESP body. MaxUsage is the maximum
// per-edge usage ratio observed along Path, reported so root can
// tie-break candidate stitched paths by aggregated utilisation (§4.H
// step 3).
type RespPayload struct {
	ReqID    string    `json:"req_id"`
	Err      string    `json:"err,omitempty"`
	Path     []PathHop `json:"path,omitempty"`
	MaxUsage float64   `json:"max_usage"`
}
