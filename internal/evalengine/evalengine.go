// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package evalengine runs single link/switch-failure evaluations against a
// flow catalog, validates flows against a no-failure baseline, and computes
// the Poisson-weighted critical-flow probability metric (§4.5.2-§4.5.6).
package evalengine

import (
	"sort"

	"flowmesh.dev/flowmesh/internal/errors"
	"flowmesh.dev/flowmesh/internal/ipaddr"
	"flowmesh.dev/flowmesh/internal/rule"
	"flowmesh.dev/flowmesh/internal/schema"
	"flowmesh.dev/flowmesh/internal/topo"
)

// frame is one entry of a single flow's per-evaluation routing stack.
type frame struct {
	switchID string
	port     int
	flow     *rule.Flow
}

// flowFromRecord rebuilds a routable rule.Flow from a cataloged flow
// record's retained attributes.
func flowFromRecord(name string, rec schema.FlowRecord) *rule.Flow {
	flow := rule.NewFlow(name)
	flow.NWTTL = 24
	flow.Set("dl_type", rec.DLType)
	if rec.IPDSCP != nil {
		flow.Set("ip_dscp", rec.IPDSCP)
	}
	if rec.NWDst != "" {
		flow.Set("nw_dst", rec.NWDst)
	}
	if rec.NWProto != nil {
		flow.Set("nw_proto", rec.NWProto)
	}
	if rec.NWSrc != nil {
		flow.Set("nw_src", rec.NWSrc)
	}
	return flow
}

// RunSingleEvaluation implements §4.5.2: reset the shared link state so
// that every link in downLinks is down and every other tracked link is up,
// then attempt to route each named flow from the catalog.
//
// Per the observed source behavior documented in §9/§4.5.2 (an ambiguity
// this specification pins rather than "fixes"), each flow keeps its own
// routing stack and the inner loop stops — counting the flow as routed or
// as failed — on the *first* popped frame that reaches a destination or
// fails to route, even if other multicast siblings remain on the stack.
// This makes the metric's repeated-evaluation inner loop cheap, at the cost
// of not being an exhaustive search the way discovery.DiscoverCatalog is.
func RunSingleEvaluation(top *topo.Topology, catalog schema.Catalog, flowNames []string, downLinks []string) []string {
	down := make(map[string]struct{}, len(downLinks))
	for _, l := range downLinks {
		down[l] = struct{}{}
	}
	top.LinkState.Reset(down)

	var failed []string
	for _, name := range flowNames {
		rec, ok := catalog[name]
		if !ok || !runFlow(top, rec, name) {
			failed = append(failed, name)
		}
	}

	sort.Strings(failed)
	return failed
}

// runFlow executes the per-flow stack loop described in RunSingleEvaluation's
// doc comment.
func runFlow(top *topo.Topology, rec schema.FlowRecord, name string) bool {
	stack := []frame{{switchID: rec.NSrc, port: rec.IngressPort, flow: flowFromRecord(name, rec)}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		sw, ok := top.Switches[f.switchID]
		if !ok {
			return false
		}
		if sw.AtDestination(f.flow) {
			return true
		}

		routed := sw.Route(f.port, f.flow)
		if len(routed) == 0 {
			return false
		}

		portMap := top.Neighbors[f.switchID]
		for _, fp := range routed {
			peer, ok := portMap[fp.Port]
			if !ok {
				continue
			}
			stack = append(stack, frame{switchID: peer.Switch, port: peer.Port, flow: fp.Flow})
		}
	}
	return false
}

// ValidateBaseline implements §4.5.3: for each candidate flow, verify its
// nsrc/ndst are known switches and its nw_dst (if present) is IP-format,
// then classify it by a no-failure evaluation. A flow name missing from the
// catalog, or referencing an unknown switch, is a fatal semantic-
// inconsistency error; a malformed nw_dst is a fatal malformed-input
// error; a flow that merely fails
// the baseline evaluation is reported in failedToRoute and execution
// continues (§7, category 4).
func ValidateBaseline(top *topo.Topology, catalog schema.Catalog, flowNames []string) (ok []string, failedToRoute []string, err error) {
	for _, name := range flowNames {
		rec, found := catalog[name]
		if !found {
			return nil, nil, errors.Errorf(errors.KindSemanticInconsistency, "evalengine: flow %q not present in catalog", name)
		}
		if _, known := top.Switches[rec.NSrc]; !known {
			return nil, nil, errors.Errorf(errors.KindSemanticInconsistency, "evalengine: flow %q references unknown source switch %q", name, rec.NSrc)
		}
		if rec.NDst != "" {
			if _, known := top.Switches[rec.NDst]; !known {
				return nil, nil, errors.Errorf(errors.KindSemanticInconsistency, "evalengine: flow %q references unknown destination switch %q", name, rec.NDst)
			}
		}
		if rec.NWDst != "" && !ipaddr.IsFormat(rec.NWDst) {
			return nil, nil, errors.Errorf(errors.KindMalformedInput, "evalengine: flow %q has malformed nw_dst %q", name, rec.NWDst)
		}
	}

	baselineFailed := RunSingleEvaluation(top, catalog, flowNames, nil)
	failedSet := make(map[string]struct{}, len(baselineFailed))
	for _, name := range baselineFailed {
		failedSet[name] = struct{}{}
	}

	for _, name := range flowNames {
		if _, isFailed := failedSet[name]; isFailed {
			failedToRoute = append(failedToRoute, name)
			continue
		}
		ok = append(ok, name)
	}
	return ok, failedToRoute, nil
}

// VisitedLinks converts a flow's visited switch path into the canonical
// link names of each consecutive hop, for use by the critical-flow metric
// (§4.5.4: "a link from f's visited path").
func VisitedLinks(visited []string) []string {
	if len(visited) < 2 {
		return nil
	}
	links := make([]string, 0, len(visited)-1)
	for i := 0; i+1 < len(visited); i++ {
		links = append(links, topo.LinkName(visited[i], visited[i+1]))
	}
	return links
}
