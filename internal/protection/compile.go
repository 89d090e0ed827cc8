package protection

import "github.com/wandsdn/helix/internal/candidate"

// Compile builds the RuleSet a candidate requires from its primary path
// and splice map (§4.C). Every on-path switch except the last gets a
// group with a primary bucket (watching the primary egress port) and,
// if a splice exists at that switch, a second bucket pointing at the
// spliced egress -- the switch itself performs the failover, with no
// controller round-trip on link failure (§1 "fast-failover").
func Compile(c *candidate.Candidate) RuleSet {
	var rs RuleSet
	if len(c.Primary) == 0 {
		return rs
	}

	for i, h := range c.Primary {
		if i == len(c.Primary)-1 {
			continue // last switch delivers directly to the destination host
		}
		buckets := []Bucket{{Egress: h.OutPort, Watch: h.OutPort}}
		if splicePort, ok := c.Splices[h.Switch]; ok && splicePort != h.OutPort {
			buckets = append(buckets, Bucket{Egress: splicePort, Watch: splicePort})
		}
		rs.Groups = append(rs.Groups, Group{Switch: h.Switch, Gid: c.Gid, Buckets: buckets})
		rs.Flows = append(rs.Flows, Flow{Switch: h.Switch, Gid: c.Gid, FirstHop: i == 0})
	}
	return rs
}

// Merge combines the rule sets of every switch a repath touches, used
// when computing the diff against a previously installed RuleSet.
func Merge(sets ...RuleSet) RuleSet {
	var out RuleSet
	for _, s := range sets {
		out.Groups = append(out.Groups, s.Groups...)
		out.Flows = append(out.Flows, s.Flows...)
	}
	return out
}
