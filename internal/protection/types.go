// Package protection implements §4.C of the Helix specification: it
// compiles a candidate's primary path and splice map into per-switch
// fast-failover group and flow rules and installs them in
// install-then-activate / deactivate-then-uninstall order. The backup
// path reaches the rules only through the splice map: switches that
// lie on the backup path alone get no group or flow from Compile.
//
// The shape of Group/Bucket/Flow below mirrors the teacher's forwarding
// graph API (Godeps/_workspace/.../contiv/ofnet/ofctrl: Flow, Table,
// OFSwitch) — a small, typed model of switch state kept on the
// controller side, separate from the wire encoding, which is explicitly
// out of scope (§1).
package protection

import (
	"github.com/wandsdn/helix/internal/candidate"
	"github.com/wandsdn/helix/internal/topology"
)

// Bucket is one fast-failover bucket: forward out Egress, autonomously
// selected by the switch as long as WatchPort is up (§3 "Group entry").
type Bucket struct {
	Egress topology.PortNo
	Watch  topology.PortNo
}

// Group is the per-(switch,gid) fast-failover group entry (§3).
type Group struct {
	Switch  topology.NodeID
	Gid     candidate.Gid
	Buckets []Bucket
}

// Flow matches a candidate's host pair (on the first-hop switch) or its
// gid metadata (downstream) and directs packets to Group.
type Flow struct {
	Switch topology.NodeID
	Gid    candidate.Gid

	// FirstHop is true only for the switch nearest the source host; it
	// matches on host addresses and stamps the gid as metadata so
	// downstream switches need not re-match on hosts (§4.C).
	FirstHop bool
}

// RuleSet is the full set of groups/flows a candidate requires, one
// entry per on-path switch.
type RuleSet struct {
	Groups []Group
	Flows  []Flow
}

// Diff is the atomic, per-switch set of rule changes the installer
// emits on topology change (§4.C "the diff ... is emitted atomically
// per switch").
type Diff struct {
	AddGroups    []Group
	ModifyGroups []Group
	DelGroups    []Group

	AddFlows []Flow
	DelFlows []Flow
}

// Empty reports whether the diff has nothing to apply.
func (d Diff) Empty() bool {
	return len(d.AddGroups) == 0 && len(d.ModifyGroups) == 0 && len(d.DelGroups) == 0 &&
		len(d.AddFlows) == 0 && len(d.DelFlows) == 0
}
