// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package discovery mines each switch's rule table for distinct match
// templates, launches a synthetic flow per template, and runs the
// exhaustive path search to build the flow catalog (§4.5.1).
package discovery

import (
	"flowmesh.dev/flowmesh/internal/ipaddr"
	"flowmesh.dev/flowmesh/internal/rule"
	"flowmesh.dev/flowmesh/internal/topo"
)

// template is the bucketed key mined from one rule's match clause: the
// (in_port, ip_dscp, nw_dst) triple that together seed a synthetic probe
// flow (§4.5.1 step 1). hasInPort is false when the rule's match omits
// in_port or gives it as the wildcard "*"; DiscoverCatalog then launches
// the probe with in_port 0, which matches rules whose in_port is absent or
// "*" but not rules that name a specific port.
type template struct {
	hasInPort bool
	inPort    int
	ipDSCP    any
	nwDst     ipaddr.Range
}

// mineTemplates collects the set of distinct templates across a switch's
// table 0, skipping rules whose match lacks ip_dscp or nw_dst (both are
// required fields of the triple; only in_port may default).
func mineTemplates(s *topo.Switch) []template {
	seen := make(map[template]struct{})
	var out []template

	for _, r := range s.Table0 {
		var tpl template
		haveIPDSCP, haveNWDst := false, false

		for _, attr := range r.Match {
			switch attr.Name {
			case "in_port":
				if eq, ok := attr.Cmp.(rule.Equal); ok {
					if n, ok := toInt(eq.Want); ok {
						tpl.hasInPort = true
						tpl.inPort = n
					}
				}
			case "ip_dscp":
				if eq, ok := attr.Cmp.(rule.Equal); ok {
					tpl.ipDSCP = eq.Want
					haveIPDSCP = true
				}
			case "nw_dst":
				if c, ok := attr.Cmp.(rule.Contains); ok {
					tpl.nwDst = c.Want
					haveNWDst = true
				}
			}
		}

		if !haveIPDSCP || !haveNWDst {
			continue
		}
		if _, ok := seen[tpl]; ok {
			continue
		}
		seen[tpl] = struct{}{}
		out = append(out, tpl)
	}
	return out
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// DiscoverCatalog runs §4.5.1 end to end: for every switch, mine its match
// templates, launch a synthetic flow per template, run DiscoverFlows, and
// keep every resulting path whose visited length reaches minimumHops.
func DiscoverCatalog(top *topo.Topology, minimumHops int) []*rule.Flow {
	var results []*rule.Flow

	for _, name := range sortedSwitchNames(top) {
		s := top.Switches[name]
		for _, tpl := range mineTemplates(s) {
			port := 0
			if tpl.hasInPort {
				port = tpl.inPort
			}

			flow := rule.NewFlow("")
			flow.Set("nsrc", name)
			flow.Set("dl_type", 2048)
			flow.NWTTL = 24
			flow.Set("in_port", port)
			flow.Set("ingress_port", port)
			if tpl.ipDSCP != nil {
				flow.Set("ip_dscp", tpl.ipDSCP)
			}
			flow.Set("nw_dst", ipaddr.ToIP(tpl.nwDst.Low))

			for _, f := range s.DiscoverFlows(flow, port, top.Switches, top.Neighbors) {
				if len(f.Visited) >= minimumHops {
					results = append(results, f)
				}
			}
		}
	}
	return results
}

func sortedSwitchNames(top *topo.Topology) []string {
	names := make([]string, 0, len(top.Switches))
	for name := range top.Switches {
		names = append(names, name)
	}
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}
