// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package rule

// Flow is a packet-header profile carried through the switch graph. Most
// attributes (nsrc, ndst, dl_type, ip_dscp, nw_dst, nw_proto, nw_src,
// ingress_port) live in the generic Attrs map, matching the spec's "mapping
// from attribute name to value"; in_port and nw_ttl get dedicated fields
// because they are mutated on every hop and compared numerically by the
// rule engine.
type Flow struct {
	FID    string
	Attrs  map[string]any
	InPort int
	NWTTL  int

	Visited []string
	visited map[string]struct{}

	// Tagged marks flows routed through the dead sys.stdout/tagged branch
	// of the original discoverFlows; never set by this engine (§9).
	Tagged bool
}

// NewFlow creates an empty flow with the given identifier and a fresh
// 24-hop TTL, per §3's stated default.
func NewFlow(fid string) *Flow {
	return &Flow{
		FID:     fid,
		Attrs:   make(map[string]any),
		NWTTL:   24,
		visited: make(map[string]struct{}),
	}
}

// Get resolves an attribute by name, special-casing the fields that are not
// stored in Attrs.
func (f *Flow) Get(name string) (any, bool) {
	switch name {
	case "in_port":
		return f.InPort, true
	case "nw_ttl":
		return f.NWTTL, true
	default:
		v, ok := f.Attrs[name]
		return v, ok
	}
}

// Set writes an attribute by name, honoring the same special cases as Get.
// It backs the SET_FIELD action.
func (f *Flow) Set(name string, val any) {
	switch name {
	case "in_port":
		if n, ok := toInt(val); ok {
			f.InPort = n
		}
	case "nw_ttl":
		if n, ok := toInt(val); ok {
			f.NWTTL = n
		}
	default:
		if f.Attrs == nil {
			f.Attrs = make(map[string]any)
		}
		f.Attrs[name] = val
	}
}

// AppendVisited records self as the latest hop.
func (f *Flow) AppendVisited(name string) {
	f.Visited = append(f.Visited, name)
	if f.visited == nil {
		f.visited = make(map[string]struct{})
	}
	f.visited[name] = struct{}{}
}

// HasVisited reports whether name already appears in the visited path,
// backing the cycle guard in discoverFlows. Backed by a side-set alongside
// the ordered slice so membership is O(1), per §9's note on cycle
// detection cost.
func (f *Flow) HasVisited(name string) bool {
	if f.visited == nil {
		return false
	}
	_, ok := f.visited[name]
	return ok
}

// Clone returns a deep copy suitable for an independent multicast branch:
// Attrs, Visited and the visited set are all copied so downstream TTL/field
// mutations on one branch never leak into another. FID is preserved; the
// caller (internal/topo, which owns flow identity) decides whether to
// reassign it.
func (f *Flow) Clone() *Flow {
	clone := &Flow{
		FID:     f.FID,
		Attrs:   make(map[string]any, len(f.Attrs)),
		InPort:  f.InPort,
		NWTTL:   f.NWTTL,
		Visited: append([]string(nil), f.Visited...),
		visited: make(map[string]struct{}, len(f.visited)),
		Tagged:  f.Tagged,
	}
	for k, v := range f.Attrs {
		clone.Attrs[k] = v
	}
	for k := range f.visited {
		clone.visited[k] = struct{}{}
	}
	return clone
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
