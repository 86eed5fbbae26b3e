// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package rule

import "testing"

func alwaysUp(int) bool { return true }

func mustRule(t *testing.T, raw map[string]any, diag *Diagnostics) Rule {
	t.Helper()
	r, err := New(raw, diag)
	if err != nil {
		t.Fatalf("unexpected error building rule: %v", err)
	}
	return r
}

func TestZeroLengthMatchMatchesEverything(t *testing.T) {
	diag := NewDiagnostics()
	r := mustRule(t, map[string]any{
		"table_id": float64(0),
		"match":    map[string]any{},
		"actions":  []any{"OUTPUT:1"},
	}, diag)

	flow := NewFlow("f1")
	ports, ok := MatchAndAction(r, flow, alwaysUp)
	if !ok || len(ports) != 1 || ports[0] != 1 {
		t.Fatalf("expected vacuous match to output port 1, got %v ok=%v", ports, ok)
	}
}

func TestInPortWildcardMatchesAnyPort(t *testing.T) {
	diag := NewDiagnostics()
	r := mustRule(t, map[string]any{
		"table_id": float64(0),
		"match":    map[string]any{"in_port": "*"},
		"actions":  []any{"OUTPUT:2"},
	}, diag)

	flow := NewFlow("f1")
	flow.InPort = 7
	ports, ok := MatchAndAction(r, flow, alwaysUp)
	if !ok || len(ports) != 1 || ports[0] != 2 {
		t.Fatalf("expected wildcard in_port to match, got %v ok=%v", ports, ok)
	}
}

func TestInPortExactOnlyMatchesThatPort(t *testing.T) {
	diag := NewDiagnostics()
	r := mustRule(t, map[string]any{
		"table_id": float64(0),
		"match":    map[string]any{"in_port": "3"},
		"actions":  []any{"OUTPUT:2"},
	}, diag)

	flow := NewFlow("f1")
	flow.InPort = 4
	if _, ok := MatchAndAction(r, flow, alwaysUp); ok {
		t.Fatal("expected mismatched in_port to fail to match")
	}

	flow.InPort = 3
	if _, ok := MatchAndAction(r, flow, alwaysUp); !ok {
		t.Fatal("expected exact in_port match to succeed")
	}
}

func TestNWDstContainment(t *testing.T) {
	diag := NewDiagnostics()
	r := mustRule(t, map[string]any{
		"table_id": float64(0),
		"match":    map[string]any{"nw_dst": "10.0.0.0/24"},
		"actions":  []any{"OUTPUT:1"},
	}, diag)

	inside := NewFlow("f1")
	inside.Set("nw_dst", "10.0.0.5")
	if _, ok := MatchAndAction(r, inside, alwaysUp); !ok {
		t.Error("expected address inside CIDR to match")
	}

	outside := NewFlow("f2")
	outside.Set("nw_dst", "10.0.1.5")
	if _, ok := MatchAndAction(r, outside, alwaysUp); ok {
		t.Error("expected address outside CIDR not to match")
	}
}

func TestOnlyFirstOutputEverConsidered(t *testing.T) {
	diag := NewDiagnostics()
	r := mustRule(t, map[string]any{
		"table_id": float64(0),
		"match":    map[string]any{},
		"actions":  []any{"OUTPUT:2", "OUTPUT:3"},
	}, diag)

	// First OUTPUT's link (port 2) is down; per §8 scenario the second
	// OUTPUT (port 3, live) is NOT used as a fallback.
	linkUp := func(port int) bool { return port == 3 }
	flow := NewFlow("f1")
	if _, ok := MatchAndAction(r, flow, linkUp); ok {
		t.Fatal("expected rule to fail to route when only the first OUTPUT's link is down")
	}
}

func TestSecondOutputIgnoredEvenWhenFirstIsUp(t *testing.T) {
	diag := NewDiagnostics()
	r := mustRule(t, map[string]any{
		"table_id": float64(0),
		"match":    map[string]any{},
		"actions":  []any{"OUTPUT:2", "OUTPUT:3"},
	}, diag)

	flow := NewFlow("f1")
	ports, ok := MatchAndAction(r, flow, alwaysUp)
	if !ok || len(ports) != 1 || ports[0] != 2 {
		t.Fatalf("expected only port 2 from the first OUTPUT, got %v ok=%v", ports, ok)
	}
}

func TestDecNWTTLExhaustion(t *testing.T) {
	diag := NewDiagnostics()
	r := mustRule(t, map[string]any{
		"table_id": float64(0),
		"match":    map[string]any{},
		"actions":  []any{"DEC_NW_TTL", "OUTPUT:1"},
	}, diag)

	flow := NewFlow("f1")
	flow.NWTTL = 1
	if _, ok := MatchAndAction(r, flow, alwaysUp); ok {
		t.Fatal("expected TTL exhaustion after DEC_NW_TTL to suppress output")
	}
	if flow.NWTTL != 0 {
		t.Fatalf("expected NWTTL to reach 0, got %d", flow.NWTTL)
	}
}

func TestSetFieldStripsBraces(t *testing.T) {
	diag := NewDiagnostics()
	r := mustRule(t, map[string]any{
		"table_id": float64(0),
		"match":    map[string]any{},
		"actions":  []any{"SET_FIELD:nw_dst:{10.0.0.9}", "OUTPUT:1"},
	}, diag)

	flow := NewFlow("f1")
	if _, ok := MatchAndAction(r, flow, alwaysUp); !ok {
		t.Fatal("expected rule to match and route")
	}
	got, _ := flow.Get("nw_dst")
	if got != "10.0.0.9" {
		t.Errorf("expected nw_dst to be set to 10.0.0.9, got %v", got)
	}
}

func TestUnknownAttributesAccumulateInDiagnostics(t *testing.T) {
	diag := NewDiagnostics()
	_ = mustRule(t, map[string]any{
		"table_id": float64(0),
		"match":    map[string]any{"dl_type": "2048", "exotic_field": "1"},
		"actions":  []any{"OUTPUT:1", "FLOOD"},
		"weird_rule_key": "y",
	}, diag)

	if diag.Empty() {
		t.Fatal("expected diagnostics to record unknown attributes")
	}
	if len(diag.MatchAttrList()) != 1 || diag.MatchAttrList()[0] != "exotic_field" {
		t.Errorf("expected exotic_field recorded, got %v", diag.MatchAttrList())
	}
	if len(diag.ActionVerbList()) != 1 || diag.ActionVerbList()[0] != "FLOOD" {
		t.Errorf("expected FLOOD recorded, got %v", diag.ActionVerbList())
	}
	if len(diag.RuleAttrList()) != 1 || diag.RuleAttrList()[0] != "weird_rule_key" {
		t.Errorf("expected weird_rule_key recorded, got %v", diag.RuleAttrList())
	}
}

func TestMissingRequiredAttributeIsFatal(t *testing.T) {
	diag := NewDiagnostics()
	_, err := New(map[string]any{
		"match":   map[string]any{},
		"actions": []any{},
	}, diag)
	if err == nil {
		t.Fatal("expected missing table_id to be a fatal error")
	}
}

func TestNumericStringCoercion(t *testing.T) {
	diag := NewDiagnostics()
	r := mustRule(t, map[string]any{
		"table_id": float64(0),
		"match":    map[string]any{"dl_type": "2048"},
		"actions":  []any{"OUTPUT:1"},
	}, diag)

	flow := NewFlow("f1")
	flow.Set("dl_type", 2048)
	if _, ok := MatchAndAction(r, flow, alwaysUp); !ok {
		t.Fatal("expected numeric string match value to compare equal to int flow value")
	}
}
