package protection

import (
	"testing"

	"github.com/wandsdn/helix/internal/candidate"
	"github.com/wandsdn/helix/internal/topology"
)

// fakeSwitchClient records calls in order so tests can assert on
// install-then-activate / deactivate-then-uninstall sequencing.
type fakeSwitchClient struct {
	calls  []string
	groups map[topology.NodeID]map[candidate.Gid]Group
	flows  map[topology.NodeID]map[candidate.Gid]bool
}

func newFakeSwitchClient() *fakeSwitchClient {
	return &fakeSwitchClient{
		groups: make(map[topology.NodeID]map[candidate.Gid]Group),
		flows:  make(map[topology.NodeID]map[candidate.Gid]bool),
	}
}

func (f *fakeSwitchClient) InstallGroup(sw topology.NodeID, g Group) error {
	f.calls = append(f.calls, "install_group")
	if f.groups[sw] == nil {
		f.groups[sw] = make(map[candidate.Gid]Group)
	}
	f.groups[sw][g.Gid] = g
	return nil
}

func (f *fakeSwitchClient) ModifyGroup(sw topology.NodeID, g Group) error {
	f.calls = append(f.calls, "modify_group")
	f.groups[sw][g.Gid] = g
	return nil
}

func (f *fakeSwitchClient) DeleteGroup(sw topology.NodeID, gid candidate.Gid) error {
	f.calls = append(f.calls, "delete_group")
	delete(f.groups[sw], gid)
	return nil
}

func (f *fakeSwitchClient) InstallFlow(sw topology.NodeID, fl Flow) error {
	f.calls = append(f.calls, "install_flow")
	if f.flows[sw] == nil {
		f.flows[sw] = make(map[candidate.Gid]bool)
	}
	f.flows[sw][fl.Gid] = true
	return nil
}

func (f *fakeSwitchClient) DeleteFlow(sw topology.NodeID, fl Flow) error {
	f.calls = append(f.calls, "delete_flow")
	delete(f.flows[sw], fl.Gid)
	return nil
}

func sampleCandidate() *candidate.Candidate {
	s1, s2, s3 := topology.SwitchID(1), topology.SwitchID(2), topology.SwitchID(3)
	return &candidate.Candidate{
		Gid: candidate.Gid(42),
		Primary: candidate.Path{
			{Switch: s1, InPort: 1, OutPort: 2},
			{Switch: s2, InPort: 1, OutPort: 2},
			{Switch: s3, InPort: 1, OutPort: 0},
		},
		Splices: map[topology.NodeID]topology.PortNo{
			s1: 5,
		},
	}
}

func TestApplyInstallsGroupsBeforeFlows(t *testing.T) {
	client := newFakeSwitchClient()
	ins := NewInstaller(client)

	rs := Compile(sampleCandidate())
	if _, err := ins.Apply(candidate.Gid(42), rs); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	sawGroup := false
	for _, c := range client.calls {
		if c == "install_group" {
			sawGroup = true
		}
		if c == "install_flow" && !sawGroup {
			t.Fatalf("flow installed before any group: %v", client.calls)
		}
	}
	if !sawGroup {
		t.Fatalf("expected at least one group to be installed")
	}
}

func TestApplySplicePortProducesTwoBuckets(t *testing.T) {
	rs := Compile(sampleCandidate())
	found := false
	for _, g := range rs.Groups {
		if g.Switch == topology.SwitchID(1) {
			found = true
			if len(g.Buckets) != 2 {
				t.Fatalf("expected 2 buckets at spliced switch, got %d", len(g.Buckets))
			}
		}
	}
	if !found {
		t.Fatalf("expected a group at switch 1")
	}
}

func TestRemoveDeactivatesFlowsBeforeGroups(t *testing.T) {
	client := newFakeSwitchClient()
	ins := NewInstaller(client)

	gid := candidate.Gid(42)
	rs := Compile(sampleCandidate())
	if _, err := ins.Apply(gid, rs); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	client.calls = nil

	if err := ins.Remove(gid); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	sawFlowDel := false
	for _, c := range client.calls {
		if c == "delete_flow" {
			sawFlowDel = true
		}
		if c == "delete_group" && !sawFlowDel {
			t.Fatalf("group deleted before its flow: %v", client.calls)
		}
	}

	for sw, gs := range client.groups {
		if _, ok := gs[gid]; ok {
			t.Fatalf("group for gid still present on switch %s after Remove", sw)
		}
	}
}

func TestApplyIsIdempotentWhenUnchanged(t *testing.T) {
	client := newFakeSwitchClient()
	ins := NewInstaller(client)

	gid := candidate.Gid(42)
	rs := Compile(sampleCandidate())
	if _, err := ins.Apply(gid, rs); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	diff, err := ins.Apply(gid, rs)
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if !diff.Empty() {
		t.Fatalf("expected empty diff on unchanged re-apply, got %+v", diff)
	}
}
