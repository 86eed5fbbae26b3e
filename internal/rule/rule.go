// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package rule implements the per-switch packet-match/action interpreter:
// a single forwarding rule is a match predicate plus an ordered action
// list, modeled on an OpenFlow-style flow table entry (§4.2 of the
// specification).
package rule

import (
	"strconv"
	"strings"

	"flowmesh.dev/flowmesh/internal/errors"
)

// Verb identifies a recognized action.
type Verb string

const (
	VerbOutput   Verb = "OUTPUT"
	VerbDecNWTTL Verb = "DEC_NW_TTL"
	VerbSetField Verb = "SET_FIELD"
)

// Action is one entry of a rule's ordered action list.
type Action struct {
	Verb Verb
	Arg  string
}

// Rule is a single forwarding table entry: (table_id, match, actions).
type Rule struct {
	TableID int
	Match   []Attr
	Actions []Action

	// Complex is true when |match| > 1. Tracked for diagnostic reporting
	// only; it gates no behavior in the core path (§4.2, §9).
	Complex bool
}

// knownRuleAttrs are the top-level rule keys the engine recognizes, beyond
// the three required ones, per §6.
var knownRuleAttrs = map[string]struct{}{
	"table_id": {}, "match": {}, "actions": {},
	"idle_timeout": {}, "packet_count": {}, "hard_timeout": {}, "byte_count": {},
	"duration_sec": {}, "duration_nsec": {}, "priority": {}, "length": {},
	"flags": {}, "cookie": {},
}

var knownActionVerbs = map[Verb]struct{}{
	VerbOutput: {}, VerbDecNWTTL: {}, VerbSetField: {},
}

// New builds a Rule from a raw attribute map, as decoded from one entry of
// the rules input document's per-switch rule list (§6). table_id, match,
// and actions are required; any other top-level key, any unrecognized
// match attribute, and any unrecognized action verb is recorded into diag
// rather than rejected outright. Only a missing or ill-typed required
// attribute (a non-numeric table_id, a non-object match, a non-array
// actions, or a non-string action entry) is fatal (§4.2, §7.3).
func New(raw map[string]any, diag *Diagnostics) (Rule, error) {
	for name := range raw {
		if _, known := knownRuleAttrs[name]; !known {
			diag.noteRuleAttr(name)
		}
	}

	tableIDRaw, ok := raw["table_id"]
	if !ok {
		return Rule{}, errors.New(errors.KindMalformedInput, "rule: missing required attribute \"table_id\"")
	}
	tableID, ok := toInt(coerceMatchValue(tableIDRaw))
	if !ok {
		return Rule{}, errors.Errorf(errors.KindMalformedInput, "rule: table_id is not numeric: %v", tableIDRaw)
	}

	matchRaw, ok := raw["match"]
	if !ok {
		return Rule{}, errors.New(errors.KindMalformedInput, "rule: missing required attribute \"match\"")
	}
	matchMap, ok := matchRaw.(map[string]any)
	if !ok {
		return Rule{}, errors.New(errors.KindMalformedInput, "rule: \"match\" must be an object")
	}

	actionsRaw, ok := raw["actions"]
	if !ok {
		return Rule{}, errors.New(errors.KindMalformedInput, "rule: missing required attribute \"actions\"")
	}
	actionsList, ok := actionsRaw.([]any)
	if !ok {
		return Rule{}, errors.New(errors.KindMalformedInput, "rule: \"actions\" must be an array")
	}

	match := buildMatch(matchMap, diag)

	actions := make([]Action, 0, len(actionsList))
	for _, a := range actionsList {
		s, ok := a.(string)
		if !ok {
			return Rule{}, errors.Errorf(errors.KindMalformedInput, "rule: action %v is not a string", a)
		}
		act := parseAction(s)
		if _, known := knownActionVerbs[act.Verb]; !known {
			diag.noteActionVerb(string(act.Verb))
		}
		actions = append(actions, act)
	}

	return Rule{
		TableID: tableID,
		Match:   match,
		Actions: actions,
		Complex: len(match) > 1,
	}, nil
}

// parseAction splits a raw action string ("OUTPUT:2", "DEC_NW_TTL",
// "SET_FIELD:nw_dst:{10.0.0.5}") into a verb and argument on the first
// colon, per §6.
func parseAction(raw string) Action {
	idx := strings.IndexByte(raw, ':')
	if idx < 0 {
		return Action{Verb: Verb(raw)}
	}
	return Action{Verb: Verb(raw[:idx]), Arg: raw[idx+1:]}
}

// MatchAndAction evaluates the rule's match predicate against flow and, on
// a full match, applies its actions in order. linkUp reports whether the
// link attached to a given local port is currently up (Switch.
// checkLinkState). It returns the resulting output port list and whether
// it is non-empty and flow.NWTTL is still positive (§4.2).
//
// Per §4.2/§8: of a rule's OUTPUT actions, only the first is ever
// considered — it contributes its port iff its link is up; every
// subsequent OUTPUT action in the same rule is ignored outright, even if
// the first one's link was down. There is no fallback to a later OUTPUT.
func MatchAndAction(r Rule, flow *Flow, linkUp func(port int) bool) ([]int, bool) {
	for _, attr := range r.Match {
		val, ok := flow.Get(attr.Name)
		if !ok {
			return nil, false
		}
		if !attr.Cmp.Match(val) {
			return nil, false
		}
	}

	var ports []int
	outputSeen := false
	for _, act := range r.Actions {
		switch act.Verb {
		case VerbOutput:
			if outputSeen {
				continue
			}
			outputSeen = true
			port, err := strconv.Atoi(act.Arg)
			if err != nil {
				continue
			}
			if linkUp(port) {
				ports = append(ports, port)
			}
		case VerbDecNWTTL:
			flow.NWTTL--
		case VerbSetField:
			field, value, ok := splitSetField(act.Arg)
			if ok {
				flow.Set(field, value)
			}
		}
	}

	if len(ports) == 0 || flow.NWTTL <= 0 {
		return nil, false
	}
	return ports, true
}

// splitSetField parses a SET_FIELD argument of the form "field:value",
// stripping an optional "{...}" wrapper from the value, per §6.
func splitSetField(arg string) (field, value string, ok bool) {
	idx := strings.IndexByte(arg, ':')
	if idx < 0 {
		return "", "", false
	}
	field = arg[:idx]
	value = strings.TrimSuffix(strings.TrimPrefix(arg[idx+1:], "{"), "}")
	return field, value, true
}
