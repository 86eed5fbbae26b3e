// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package evalengine

import (
	"testing"

	"flowmesh.dev/flowmesh/internal/ipaddr"
	"flowmesh.dev/flowmesh/internal/rule"
	"flowmesh.dev/flowmesh/internal/schema"
	"flowmesh.dev/flowmesh/internal/topo"
)

func outputRule(t *testing.T, action string) rule.Rule {
	t.Helper()
	diag := rule.NewDiagnostics()
	r, err := rule.New(map[string]any{
		"table_id": float64(0),
		"match":    map[string]any{},
		"actions":  []any{action},
	}, diag)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return r
}

func mustRange(t *testing.T, s string) ipaddr.Range {
	t.Helper()
	r, err := ipaddr.Parse(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return r
}

// buildLinear mirrors §8 scenario 1: n1-n2-n3, n3 serves 10.0.0.0/24.
func buildLinear(t *testing.T) (*topo.Topology, schema.Catalog) {
	t.Helper()
	n1 := topo.NewSwitch("n1", map[int]string{1: "n2"}, []rule.Rule{outputRule(t, "OUTPUT:1")}, nil, 0)
	n2 := topo.NewSwitch("n2", map[int]string{1: "n1", 2: "n3"}, []rule.Rule{outputRule(t, "OUTPUT:2")}, nil, 0)
	n3 := topo.NewSwitch("n3", map[int]string{1: "n2"}, nil, []ipaddr.Range{mustRange(t, "10.0.0.0/24")}, 0)
	top := topo.BuildTopology(map[string]*topo.Switch{"n1": n1, "n2": n2, "n3": n3})

	catalog := schema.Catalog{
		"n1-n3-0": {
			NSrc:        "n1",
			NDst:        "n3",
			IngressPort: 0,
			DLType:      2048,
			NWDst:       "10.0.0.5",
			Visited:     []string{"n1", "n2", "n3"},
		},
	}
	return top, catalog
}

func TestRunSingleEvaluationBaselineRoutes(t *testing.T) {
	top, catalog := buildLinear(t)
	failed := RunSingleEvaluation(top, catalog, []string{"n1-n3-0"}, nil)
	if len(failed) != 0 {
		t.Fatalf("expected the baseline to route successfully, got failed=%v", failed)
	}
}

func TestRunSingleEvaluationFailsWhenLinkDown(t *testing.T) {
	top, catalog := buildLinear(t)
	failed := RunSingleEvaluation(top, catalog, []string{"n1-n3-0"}, []string{topo.LinkName("n1", "n2")})
	if len(failed) != 1 || failed[0] != "n1-n3-0" {
		t.Fatalf("expected n1-n3-0 to fail with n1-n2 down, got %v", failed)
	}
}

func TestRunSingleEvaluationUnknownFlowNameFails(t *testing.T) {
	top, catalog := buildLinear(t)
	failed := RunSingleEvaluation(top, catalog, []string{"ghost"}, nil)
	if len(failed) != 1 || failed[0] != "ghost" {
		t.Fatalf("expected an unknown flow name to be reported failed, got %v", failed)
	}
}

func TestValidateBaselineClassifiesRoutableAndFailing(t *testing.T) {
	top, catalog := buildLinear(t)
	catalog["n3-n1-0"] = schema.FlowRecord{
		NSrc:    "n3",
		NDst:    "n1",
		NWDst:   "10.0.1.5", // outside n3's 10.0.0.0/24 and n3 has no rules; this will fail baseline
		Visited: []string{"n3"},
	}

	ok, failedToRoute, err := ValidateBaseline(top, catalog, []string{"n1-n3-0", "n3-n1-0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ok) != 1 || ok[0] != "n1-n3-0" {
		t.Errorf("expected n1-n3-0 to validate as ok, got %v", ok)
	}
	if len(failedToRoute) != 1 || failedToRoute[0] != "n3-n1-0" {
		t.Errorf("expected n3-n1-0 to be reported failedToRoute, got %v", failedToRoute)
	}
}

func TestValidateBaselineRejectsUnknownSourceSwitch(t *testing.T) {
	top, catalog := buildLinear(t)
	catalog["ghost-flow"] = schema.FlowRecord{NSrc: "ghost", NDst: "n3"}

	if _, _, err := ValidateBaseline(top, catalog, []string{"ghost-flow"}); err == nil {
		t.Fatal("expected an unknown source switch to be a fatal error")
	}
}

func TestValidateBaselineRejectsMalformedNWDst(t *testing.T) {
	top, catalog := buildLinear(t)
	catalog["malformed"] = schema.FlowRecord{NSrc: "n1", NDst: "n3", NWDst: "not-an-ip"}

	if _, _, err := ValidateBaseline(top, catalog, []string{"malformed"}); err == nil {
		t.Fatal("expected a malformed nw_dst to be a fatal error")
	}
}

func TestVisitedLinksConsecutivePairs(t *testing.T) {
	links := VisitedLinks([]string{"n1", "n2", "n3"})
	want := []string{topo.LinkName("n1", "n2"), topo.LinkName("n2", "n3")}
	if len(links) != len(want) || links[0] != want[0] || links[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, links)
	}
}

func TestVisitedLinksSingleSwitchIsEmpty(t *testing.T) {
	if links := VisitedLinks([]string{"n1"}); len(links) != 0 {
		t.Fatalf("expected no links for a single-switch path, got %v", links)
	}
}
