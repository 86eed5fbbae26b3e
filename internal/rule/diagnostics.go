// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package rule

// Diagnostics accumulates attributes the engine sees but does not
// recognize, across every rule parsed in a session. §9 redesigns the
// original's module-level global "newly seen" sets as this explicit,
// passed-in accumulator.
type Diagnostics struct {
	RuleAttrs   map[string]struct{}
	MatchAttrs  map[string]struct{}
	ActionVerbs map[string]struct{}
}

// NewDiagnostics returns an empty accumulator ready to be threaded through
// rule parsing for one session.
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{
		RuleAttrs:   make(map[string]struct{}),
		MatchAttrs:  make(map[string]struct{}),
		ActionVerbs: make(map[string]struct{}),
	}
}

func (d *Diagnostics) noteRuleAttr(name string)   { d.RuleAttrs[name] = struct{}{} }
func (d *Diagnostics) noteMatchAttr(name string)  { d.MatchAttrs[name] = struct{}{} }
func (d *Diagnostics) noteActionVerb(name string) { d.ActionVerbs[name] = struct{}{} }

// Empty reports whether no unknown attribute was observed. A non-empty
// Diagnostics after parsing a whole rule set is fatal (schema.LoadSession
// returns a KindUnknownAttribute error) per §7.3: the engine refuses to
// silently ignore semantics it does not understand.
func (d *Diagnostics) Empty() bool {
	return len(d.RuleAttrs) == 0 && len(d.MatchAttrs) == 0 && len(d.ActionVerbs) == 0
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// RuleAttrList returns the unknown rule-level attribute names in sorted order.
func (d *Diagnostics) RuleAttrList() []string { return sortedKeys(d.RuleAttrs) }

// MatchAttrList returns the unknown match attribute names in sorted order.
func (d *Diagnostics) MatchAttrList() []string { return sortedKeys(d.MatchAttrs) }

// ActionVerbList returns the unknown action verbs in sorted order.
func (d *Diagnostics) ActionVerbList() []string { return sortedKeys(d.ActionVerbs) }
