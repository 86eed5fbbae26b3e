// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package topo models the switch graph: per-switch forwarding state (§4.3)
// and the topology/link-state structures that tie switches together into a
// routable network (§4.4).
package topo

import (
	"github.com/google/uuid"

	"flowmesh.dev/flowmesh/internal/ipaddr"
	"flowmesh.dev/flowmesh/internal/rule"
)

// Switch is one node of the network: its neighbor/port map, its single rule
// table, the IP ranges it serves, and a shared view onto the network's
// current link-up bits (§4.3).
type Switch struct {
	Name string

	// Nbrs maps local port number -> neighbor switch name, per the
	// topology input's ordered neighbor list (§4.4).
	Nbrs map[int]string

	// Table0 is the switch's only rule table; only table 0 participates
	// in routing (§2.1 of the external interfaces, §4.3).
	Table0 []rule.Rule

	// CIDR is the set of address ranges this switch terminates traffic
	// for (atDestination).
	CIDR []ipaddr.Range

	// Code is an opaque per-switch integer label carried through from the
	// input document; the engine never interprets it.
	Code int

	linkState *LinkState
}

// NewSwitch constructs a Switch with its rule table and served CIDR ranges.
// The shared LinkState is attached separately via SetLinkState once the
// full Topology is assembled (saveLinkState, §4.4).
func NewSwitch(name string, nbrs map[int]string, table0 []rule.Rule, cidr []ipaddr.Range, code int) *Switch {
	return &Switch{
		Name:   name,
		Nbrs:   nbrs,
		Table0: table0,
		CIDR:   cidr,
		Code:   code,
	}
}

// SetLinkState installs the shared link-state reference every switch in a
// Topology observes (saveLinkState, §4.4).
func (s *Switch) SetLinkState(ls *LinkState) {
	s.linkState = ls
}

// AtDestination reports whether flow's nw_dst falls within any CIDR range
// this switch serves (§4.3).
func (s *Switch) AtDestination(flow *rule.Flow) bool {
	val, ok := flow.Get("nw_dst")
	if !ok {
		return false
	}
	dst, ok := val.(string)
	if !ok {
		return false
	}
	target, err := ipaddr.Parse(dst)
	if err != nil {
		return false
	}
	for _, r := range s.CIDR {
		if ipaddr.Contains(r, target) {
			return true
		}
	}
	return false
}

// CheckLinkState reports whether the link attached to the given local port
// is currently up. A port not present in Nbrs is never up (§4.3).
func (s *Switch) CheckLinkState(port int) bool {
	nbr, ok := s.Nbrs[port]
	if !ok {
		return false
	}
	if s.linkState == nil {
		return false
	}
	return s.linkState.Get(LinkName(s.Name, nbr))
}

// Route scans Table0 in insertion order; the first rule whose MatchAndAction
// returns a non-empty port list wins and remaining rules are not consulted
// (§4.3). The returned pairs share a single primary flow (the original,
// carried on the first output port) plus, for multicast rules, an
// independent deep-cloned flow per subsequent port so downstream TTL/field
// mutations on one branch never interfere with another.
func (s *Switch) Route(inPort int, flow *rule.Flow) []FlowPort {
	flow.InPort = inPort

	for _, r := range s.Table0 {
		ports, ok := rule.MatchAndAction(r, flow, s.CheckLinkState)
		if !ok {
			continue
		}
		out := make([]FlowPort, 0, len(ports))
		for i, p := range ports {
			f := flow
			if i > 0 {
				f = flow.Clone()
				f.FID = uuid.New().String()
			}
			out = append(out, FlowPort{Flow: f, Port: p})
		}
		return out
	}
	return nil
}

// FlowPort pairs a flow with the local output port it is to be forwarded
// through, as produced by Switch.Route.
type FlowPort struct {
	Flow *rule.Flow
	Port int
}

// DiscoverFlows performs the exhaustive path search rooted at this switch
// (§4.3): append self to the visited path, stop and return a single-flow
// result on arrival, otherwise route and recurse into every reachable,
// not-yet-visited neighbor, concatenating results. A dead "sys.stdout"
// branch gated on flow.Tagged existed in the original and is never
// reachable from this engine; §9 notes it as safe to omit entirely.
func (s *Switch) DiscoverFlows(flow *rule.Flow, inPort int, switches map[string]*Switch, neighbors NeighborMap) []*rule.Flow {
	flow.AppendVisited(s.Name)

	if s.AtDestination(flow) {
		flow.Set("ndst", s.Name)
		return []*rule.Flow{flow}
	}

	routed := s.Route(inPort, flow)
	if len(routed) == 0 {
		return nil
	}

	var results []*rule.Flow
	portMap := neighbors[s.Name]
	for _, fp := range routed {
		peer, ok := portMap[fp.Port]
		if !ok {
			// fp.Port has no symmetric neighbor entry: traffic exits the
			// modeled network here.
			continue
		}
		if fp.Flow.HasVisited(peer.Switch) {
			// Cycle guard: the candidate neighbor already appears on this
			// flow's path.
			continue
		}
		nbr, ok := switches[peer.Switch]
		if !ok {
			continue
		}
		results = append(results, nbr.DiscoverFlows(fp.Flow, peer.Port, switches, neighbors)...)
	}
	return results
}
