// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package topo

import "sort"

// NeighborPort is one endpoint of a symmetric adjacency: a peer switch name
// plus the local port on that peer which faces back to the switch that
// looked it up.
type NeighborPort struct {
	Switch string
	Port   int
}

// NeighborMap is the two-level mapping switchId -> localPort ->
// (peerSwitchId, peerLocalPort), computed by intersecting each switch's
// Nbrs with its neighbors' Nbrs (§4.4).
type NeighborMap map[string]map[int]NeighborPort

// LinkName returns the canonical undirected link identifier for switches a
// and b: the lexicographically smaller name first (§4.4).
func LinkName(a, b string) string {
	if a < b {
		return a + "-" + b
	}
	return b + "-" + a
}

// LinkState is the shared linkName -> up-bit map every switch in a Topology
// observes. Exactly one entry exists per undirected link (§4.4).
type LinkState struct {
	up map[string]bool
}

// NewLinkState returns a LinkState with every link in names marked up.
func NewLinkState(names []string) *LinkState {
	ls := &LinkState{up: make(map[string]bool, len(names))}
	for _, n := range names {
		ls.up[n] = true
	}
	return ls
}

// Get reports the up-bit for a canonical link name; an unknown link is
// treated as down.
func (ls *LinkState) Get(name string) bool {
	return ls.up[name]
}

// Set installs the up-bit for a canonical link name.
func (ls *LinkState) Set(name string, up bool) {
	ls.up[name] = up
}

// Names returns every canonical link name this LinkState tracks, sorted.
func (ls *LinkState) Names() []string {
	out := make([]string, 0, len(ls.up))
	for n := range ls.up {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy of the up-bit map, for parallel metric
// workers that must each own their own LinkState (§5).
func (ls *LinkState) Clone() *LinkState {
	clone := &LinkState{up: make(map[string]bool, len(ls.up))}
	for k, v := range ls.up {
		clone.up[k] = v
	}
	return clone
}

// Reset installs the up-bit for every tracked link: true unless its name
// appears in down, per step 1 of a single evaluation (§4.5.2).
func (ls *LinkState) Reset(down map[string]struct{}) {
	for n := range ls.up {
		_, isDown := down[n]
		ls.up[n] = !isDown
	}
}

// Topology is the assembled switch graph for one session: every switch by
// name, the symmetric neighbor map, and the canonical link-state vector
// they all share.
type Topology struct {
	Switches    map[string]*Switch
	Neighbors   NeighborMap
	LinkState   *LinkState
	linkByNode  map[string][]string // switch name -> canonical link names incident on it
}

// BuildTopology assembles a Topology from a set of switches whose Nbrs maps
// are already populated from the port-numbered neighbor lists in the
// topology input document (§4.4, "Port map").
func BuildTopology(switches map[string]*Switch) *Topology {
	neighbors := buildNeighborMap(switches)
	linkNames, linkByNode := buildLinkState(switches)
	ls := NewLinkState(linkNames)
	for _, s := range switches {
		s.SetLinkState(ls)
	}
	return &Topology{
		Switches:   switches,
		Neighbors:  neighbors,
		LinkState:  ls,
		linkByNode: linkByNode,
	}
}

// buildNeighborMap computes, for each (self, localPort, nbr), the peer port
// by searching nbr.Nbrs for the entry whose value equals self.Name. An
// asymmetric edge (no such entry) is omitted: that direction is treated as
// off-network (§4.4).
func buildNeighborMap(switches map[string]*Switch) NeighborMap {
	nm := make(NeighborMap, len(switches))
	for name, s := range switches {
		ports := make(map[int]NeighborPort)
		for localPort, nbrName := range s.Nbrs {
			nbr, ok := switches[nbrName]
			if !ok {
				continue
			}
			for peerPort, peerNbrName := range nbr.Nbrs {
				if peerNbrName == name {
					ports[localPort] = NeighborPort{Switch: nbrName, Port: peerPort}
					break
				}
			}
		}
		nm[name] = ports
	}
	return nm
}

// buildLinkState populates a linkName -> true entry for every switch-port
// pair exactly once (canonicalization deduplicates), and records which
// canonical link names are incident on each switch for the switch-variant
// metric's link-union step (§4.4, §4.5.5).
func buildLinkState(switches map[string]*Switch) ([]string, map[string][]string) {
	seen := make(map[string]struct{})
	byNode := make(map[string][]string, len(switches))
	var names []string
	for name, s := range switches {
		for _, nbrName := range s.Nbrs {
			link := LinkName(name, nbrName)
			if _, ok := seen[link]; !ok {
				seen[link] = struct{}{}
				names = append(names, link)
			}
			byNode[name] = appendUnique(byNode[name], link)
		}
	}
	sort.Strings(names)
	for name := range byNode {
		sort.Strings(byNode[name])
	}
	return names, byNode
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// LinksOf returns the canonical link names incident on the given switch,
// sorted.
func (t *Topology) LinksOf(switchName string) []string {
	return append([]string(nil), t.linkByNode[switchName]...)
}

// LinksOfAny returns the union of canonical link names incident on any of
// the given switches, sorted and deduplicated, per the switch-variant
// metric's translation step (§4.5.5).
func (t *Topology) LinksOfAny(switchNames []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, name := range switchNames {
		for _, link := range t.linkByNode[name] {
			if _, ok := seen[link]; !ok {
				seen[link] = struct{}{}
				out = append(out, link)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Fork returns an independent Topology that shares every Switch's
// read-only routing data (Nbrs, Table0, CIDR) but owns a freshly cloned
// LinkState, so concurrent metric workers never race on a shared map (§5).
func (t *Topology) Fork() *Topology {
	ls := t.LinkState.Clone()
	switches := make(map[string]*Switch, len(t.Switches))
	for name, s := range t.Switches {
		clone := *s
		clone.SetLinkState(ls)
		switches[name] = &clone
	}
	return &Topology{
		Switches:   switches,
		Neighbors:  t.Neighbors,
		LinkState:  ls,
		linkByNode: t.linkByNode,
	}
}

// Neighborhood computes the set of switches within hops steps of start via
// BFS on the undirected switch graph, inclusive of start, per the
// neighborhood metric variant (§4.5.6).
func (t *Topology) Neighborhood(start string, hops int) []string {
	visited := map[string]int{start: 0}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		depth := visited[cur]
		if depth >= hops {
			continue
		}
		for _, peer := range t.Neighbors[cur] {
			if _, ok := visited[peer.Switch]; ok {
				continue
			}
			visited[peer.Switch] = depth + 1
			queue = append(queue, peer.Switch)
		}
	}
	out := make([]string, 0, len(visited))
	for name := range visited {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
