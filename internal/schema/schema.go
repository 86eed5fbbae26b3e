// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package schema defines the three JSON input documents and two JSON
// output documents the engine speaks (§6), and assembles a session's
// switch graph from them.
package schema

import (
	"encoding/json"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"flowmesh.dev/flowmesh/internal/errors"
	"flowmesh.dev/flowmesh/internal/ipaddr"
	"flowmesh.dev/flowmesh/internal/rule"
	"flowmesh.dev/flowmesh/internal/topo"
)

// TopologyDoc is the one_hop_neighbor_nodes input: each switch's neighbors
// in port-number order (position 1-based).
type TopologyDoc struct {
	OneHopNeighborNodes map[string][]string `json:"one_hop_neighbor_nodes"`
}

// RulesDoc is the nodes input: per-switch, per-opaque-code rule lists.
type RulesDoc struct {
	Nodes map[string]map[string][]map[string]any `json:"nodes"`
}

// IPMappingDoc is the switchName -> CIDR list input.
type IPMappingDoc map[string][]string

// FlowRecord is one entry of the flow catalog output: a discovered flow's
// attribute set plus its traversal path (§4.5.1, "keep" attribute set).
type FlowRecord struct {
	NSrc        string   `json:"nsrc"`
	NDst        string   `json:"ndst"`
	IngressPort int      `json:"ingress_port"`
	DLType      int      `json:"dl_type"`
	IPDSCP      any      `json:"ip_dscp,omitempty"`
	NWDst       string   `json:"nw_dst,omitempty"`
	NWProto     any      `json:"nw_proto,omitempty"`
	NWSrc       any      `json:"nw_src,omitempty"`
	Visited     []string `json:"visited"`
}

// Catalog is the flow catalog output document: flowName -> FlowRecord.
type Catalog map[string]FlowRecord

// ParseTopology decodes a topology input document.
func ParseTopology(data []byte) (TopologyDoc, error) {
	var doc TopologyDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return TopologyDoc{}, errors.Wrap(err, errors.KindMalformedInput, "schema: failed to decode topology document")
	}
	return doc, nil
}

// ParseRules decodes a rules input document.
func ParseRules(data []byte) (RulesDoc, error) {
	var doc RulesDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return RulesDoc{}, errors.Wrap(err, errors.KindMalformedInput, "schema: failed to decode rules document")
	}
	return doc, nil
}

// ParseIPMapping decodes an IP mapping input document.
func ParseIPMapping(data []byte) (IPMappingDoc, error) {
	var doc IPMappingDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, errors.KindMalformedInput, "schema: failed to decode IP mapping document")
	}
	return doc, nil
}

// BuildSwitches assembles the per-switch Nbrs maps, rule tables, and CIDR
// ranges from the three input documents into topo.Switch values, without
// yet resolving the neighbor map or link state (that is topo.BuildTopology's
// job, once every switch exists).
//
// Every rule listed under a switch's opaque code key is parsed (so unknown
// attributes reach the diagnostics), but only rules whose table_id is 0
// enter Table0, per §4.3 ("only table 0 is used"). A numeric code key
// becomes the switch's Code; with several code keys, which one ends up in
// Code, and the order their rules enter Table0, is not defined.
func BuildSwitches(topology TopologyDoc, rules RulesDoc, ipmap IPMappingDoc) (map[string]*topo.Switch, *rule.Diagnostics, error) {
	diag := rule.NewDiagnostics()
	switches := make(map[string]*topo.Switch, len(topology.OneHopNeighborNodes))

	for name, nbrList := range topology.OneHopNeighborNodes {
		nbrs := make(map[int]string, len(nbrList))
		for i, nbr := range nbrList {
			nbrs[i+1] = nbr
		}

		var table0 []rule.Rule
		code := 0
		for key, rawRules := range rules.Nodes[name] {
			if n, err := strconv.Atoi(key); err == nil {
				code = n
			}
			for _, raw := range rawRules {
				r, err := rule.New(raw, diag)
				if err != nil {
					return nil, nil, errors.Wrapf(err, errors.KindMalformedInput, "schema: switch %q", name)
				}
				if r.TableID == 0 {
					table0 = append(table0, r)
				}
			}
		}

		var cidrs []ipaddr.Range
		for _, c := range ipmap[name] {
			r, err := ipaddr.Parse(c)
			if err != nil {
				return nil, nil, errors.Wrapf(err, errors.KindMalformedInput, "schema: switch %q CIDR %q", name, c)
			}
			cidrs = append(cidrs, r)
		}

		switches[name] = topo.NewSwitch(name, nbrs, table0, cidrs, code)
	}

	if err := validateSymmetry(topology); err != nil {
		return nil, nil, err
	}

	return switches, diag, nil
}

// validateSymmetry rejects a neighbor list that references a switch absent
// from the topology, which is fatal. It does not reject or log an
// asymmetric neighbor list; topo.BuildTopology leaves such a direction out
// of the neighbor map, so it acts as an off-network edge.
func validateSymmetry(topology TopologyDoc) error {
	for name, nbrList := range topology.OneHopNeighborNodes {
		for _, nbr := range nbrList {
			if _, ok := topology.OneHopNeighborNodes[nbr]; !ok {
				return errors.Errorf(errors.KindSemanticInconsistency, "schema: switch %q references unknown neighbor %q", name, nbr)
			}
		}
	}
	return nil
}

// LoadSession parses the three raw input documents and assembles a fully
// wired topo.Topology, ready for discovery or evaluation. If parsing saw
// any unknown rule attribute, match attribute, or action verb, it returns
// no topology, the non-empty Diagnostics, and a KindUnknownAttribute error
// naming them, per §7's strictness guard.
func LoadSession(topologyJSON, rulesJSON, ipMappingJSON []byte) (*topo.Topology, *rule.Diagnostics, error) {
	topology, err := ParseTopology(topologyJSON)
	if err != nil {
		return nil, nil, err
	}
	rules, err := ParseRules(rulesJSON)
	if err != nil {
		return nil, nil, err
	}
	ipmap, err := ParseIPMapping(ipMappingJSON)
	if err != nil {
		return nil, nil, err
	}

	switches, diag, err := BuildSwitches(topology, rules, ipmap)
	if err != nil {
		return nil, nil, err
	}
	if !diag.Empty() {
		return nil, diag, errors.Errorf(errors.KindUnknownAttribute,
			"schema: unknown rule attributes %v, match attributes %v, action verbs %v",
			diag.RuleAttrList(), diag.MatchAttrList(), diag.ActionVerbList())
	}
	return topo.BuildTopology(switches), diag, nil
}

// SessionSnapshot is a human-readable rendering of a loaded session's
// switch graph, for operator-facing review (served as JSON by the HTTP
// shell's snapshot route, or rendered as YAML by MarshalYAML) rather than
// the wire format the engine itself consumes.
type SessionSnapshot struct {
	Switches []SwitchSnapshot `yaml:"switches"`
	Links    []string         `yaml:"links"`
}

// SwitchSnapshot is one switch's entry in a SessionSnapshot.
type SwitchSnapshot struct {
	Name      string   `yaml:"name"`
	Neighbors []string `yaml:"neighbors"`
	CIDRCount int      `yaml:"cidr_count"`
	RuleCount int      `yaml:"rule_count"`
}

// Snapshot renders a Topology into a SessionSnapshot.
func Snapshot(t *topo.Topology) SessionSnapshot {
	names := make([]string, 0, len(t.Switches))
	for name := range t.Switches {
		names = append(names, name)
	}
	sort.Strings(names)

	snap := SessionSnapshot{Links: t.LinkState.Names()}
	for _, name := range names {
		s := t.Switches[name]
		nbrNames := make([]string, 0, len(s.Nbrs))
		ports := make([]int, 0, len(s.Nbrs))
		for port := range s.Nbrs {
			ports = append(ports, port)
		}
		sort.Ints(ports)
		for _, port := range ports {
			nbrNames = append(nbrNames, s.Nbrs[port])
		}
		snap.Switches = append(snap.Switches, SwitchSnapshot{
			Name:      name,
			Neighbors: nbrNames,
			CIDRCount: len(s.CIDR),
			RuleCount: len(s.Table0),
		})
	}
	return snap
}

// MarshalYAML renders a SessionSnapshot as YAML for operator-facing output.
func MarshalYAML(snap SessionSnapshot) ([]byte, error) {
	out, err := yaml.Marshal(snap)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindMalformedInput, "schema: failed to render session snapshot as YAML")
	}
	return out, nil
}

// BuildCatalog strips a set of discovered flows down to the keep attribute
// set (§4.5.1) and assigns each a name of the form "<nsrc>-<ndst>-<counter>"
// with a per-(nsrc,ndst)-base counter starting at 0.
func BuildCatalog(flows []*rule.Flow) Catalog {
	catalog := make(Catalog, len(flows))
	counters := make(map[string]int)

	names := make([]string, 0, len(flows))
	byName := make(map[string]*rule.Flow, len(flows))
	for i, f := range flows {
		nsrc, _ := f.Get("nsrc")
		ndst, _ := f.Get("ndst")
		base := asString(nsrc) + "-" + asString(ndst)
		counter := counters[base]
		counters[base] = counter + 1
		name := base + "-" + strconv.Itoa(counter)
		names = append(names, name)
		byName[name] = flows[i]
	}
	sort.Strings(names)

	for _, name := range names {
		f := byName[name]
		nwDst, _ := f.Get("nw_dst")
		dlType, _ := f.Get("dl_type")
		ingress, _ := f.Get("ingress_port")
		ipDSCP, _ := f.Get("ip_dscp")
		nwProto, _ := f.Get("nw_proto")
		nwSrc, _ := f.Get("nw_src")
		nsrc, _ := f.Get("nsrc")
		ndst, _ := f.Get("ndst")

		catalog[name] = FlowRecord{
			NSrc:        asString(nsrc),
			NDst:        asString(ndst),
			IngressPort: asInt(ingress),
			DLType:      asInt(dlType),
			IPDSCP:      ipDSCP,
			NWDst:       asString(nwDst),
			NWProto:     nwProto,
			NWSrc:       nwSrc,
			Visited:     append([]string(nil), f.Visited...),
		}
	}
	return catalog
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

