package protection

import (
	"github.com/Sirupsen/logrus"

	"github.com/wandsdn/helix/internal/candidate"
	"github.com/wandsdn/helix/internal/topology"
)

// Installer applies RuleSet diffs to switches through a SwitchClient,
// keeping track of what is currently installed so it can compute
// incremental diffs on repath or topology change (§4.C).
//
// Ordering invariant: on install, groups are pushed before the flows
// that reference them (a flow referencing an absent group is a switch
// error); on removal, flows are pulled before the groups they reference
// (deactivate-then-uninstall). This mirrors the teacher's Flow/Table
// install ordering in ofctrl, where flow entries are never installed
// ahead of the table state they depend on.
type Installer struct {
	client SwitchClient

	// installed tracks, per gid, the groups and flows currently on the
	// switches, so a stale group is never left referenced by nothing
	// (§4.C "a group never outlives every flow that could reference it").
	installed map[candidate.Gid]RuleSet
}

// NewInstaller creates an installer bound to client.
func NewInstaller(client SwitchClient) *Installer {
	return &Installer{client: client, installed: make(map[candidate.Gid]RuleSet)}
}

// Apply installs want, replacing whatever was previously installed for
// the same gid, and returns the diff it applied.
func (ins *Installer) Apply(gid candidate.Gid, want RuleSet) (Diff, error) {
	have := ins.installed[gid]
	diff := computeDiff(have, want)

	if err := ins.apply(diff); err != nil {
		return diff, err
	}
	if len(want.Groups) == 0 && len(want.Flows) == 0 {
		delete(ins.installed, gid)
	} else {
		ins.installed[gid] = want
	}
	return diff, nil
}

// Remove tears down every rule installed for gid (candidate destroyed).
func (ins *Installer) Remove(gid candidate.Gid) error {
	have, ok := ins.installed[gid]
	if !ok {
		return nil
	}
	diff := computeDiff(have, RuleSet{})
	if err := ins.apply(diff); err != nil {
		return err
	}
	delete(ins.installed, gid)
	return nil
}

// RemoveAll tears down every rule currently installed, in the same
// flows-before-groups order Remove uses for one gid. Used for orderly
// shutdown (§6): every candidate's forwarding state is pulled from the
// switches before the controller leaves the bus.
func (ins *Installer) RemoveAll() error {
	gids := make([]candidate.Gid, 0, len(ins.installed))
	for gid := range ins.installed {
		gids = append(gids, gid)
	}
	var firstErr error
	for _, gid := range gids {
		if err := ins.Remove(gid); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (ins *Installer) apply(d Diff) error {
	// Install-then-activate: new/changed groups exist before any flow
	// can point at them.
	for _, g := range d.AddGroups {
		if err := ins.client.InstallGroup(g.Switch, g); err != nil {
			return err
		}
	}
	for _, g := range d.ModifyGroups {
		if err := ins.client.ModifyGroup(g.Switch, g); err != nil {
			return err
		}
	}
	for _, f := range d.AddFlows {
		if err := ins.client.InstallFlow(f.Switch, f); err != nil {
			return err
		}
	}

	// Deactivate-then-uninstall: flows that no longer apply are pulled
	// before the groups they referenced are removed.
	for _, f := range d.DelFlows {
		if err := ins.client.DeleteFlow(f.Switch, f); err != nil {
			return err
		}
	}
	for _, g := range d.DelGroups {
		if err := ins.client.DeleteGroup(g.Switch, g.Gid); err != nil {
			return err
		}
	}

	if !d.Empty() {
		logrus.WithFields(logrus.Fields{
			"add_groups": len(d.AddGroups), "mod_groups": len(d.ModifyGroups), "del_groups": len(d.DelGroups),
			"add_flows": len(d.AddFlows), "del_flows": len(d.DelFlows),
		}).Debug("protection: applied diff")
	}
	return nil
}

func computeDiff(have, want RuleSet) Diff {
	var d Diff

	haveGroups := indexGroups(have.Groups)
	wantGroups := indexGroups(want.Groups)

	for key, g := range wantGroups {
		if old, ok := haveGroups[key]; !ok {
			d.AddGroups = append(d.AddGroups, g)
		} else if !bucketsEqual(old.Buckets, g.Buckets) {
			d.ModifyGroups = append(d.ModifyGroups, g)
		}
	}
	for key, g := range haveGroups {
		if _, ok := wantGroups[key]; !ok {
			d.DelGroups = append(d.DelGroups, g)
		}
	}

	haveFlows := indexFlows(have.Flows)
	wantFlows := indexFlows(want.Flows)
	for key, f := range wantFlows {
		if _, ok := haveFlows[key]; !ok {
			d.AddFlows = append(d.AddFlows, f)
		}
	}
	for key, f := range haveFlows {
		if _, ok := wantFlows[key]; !ok {
			d.DelFlows = append(d.DelFlows, f)
		}
	}
	return d
}

type groupKey struct {
	sw  topology.NodeID
	gid candidate.Gid
}

func indexGroups(gs []Group) map[groupKey]Group {
	out := make(map[groupKey]Group, len(gs))
	for _, g := range gs {
		out[groupKey{g.Switch, g.Gid}] = g
	}
	return out
}

func indexFlows(fs []Flow) map[groupKey]Flow {
	out := make(map[groupKey]Flow, len(fs))
	for _, f := range fs {
		out[groupKey{f.Switch, f.Gid}] = f
	}
	return out
}

func bucketsEqual(a, b []Bucket) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
