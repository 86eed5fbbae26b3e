// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestGetReturnsSameRegistryInstance(t *testing.T) {
	a := Get()
	b := Get()
	if a != b {
		t.Fatal("expected Get() to return a singleton")
	}
}

func TestObserveDiscoveryIncrementsCounterAndGauge(t *testing.T) {
	r := Get()
	r.ObserveDiscovery(5*time.Millisecond, 3)

	var m dto.Metric
	if err := r.DiscoveryRuns.Write(&m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Counter.GetValue() < 1 {
		t.Errorf("expected DiscoveryRuns to have been incremented, got %v", m.Counter.GetValue())
	}

	var g dto.Metric
	if err := r.FlowsDiscovered.Write(&g); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Gauge.GetValue() != 3 {
		t.Errorf("expected FlowsDiscovered=3, got %v", g.Gauge.GetValue())
	}
}

func TestObserveEvaluationLabelsOutcome(t *testing.T) {
	r := Get()
	r.ObserveEvaluation(time.Millisecond, 0)
	r.ObserveEvaluation(time.Millisecond, 2)

	var m dto.Metric
	if err := r.EvaluationRuns.WithLabelValues("has_failures").Write(&m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Counter.GetValue() < 1 {
		t.Errorf("expected has_failures outcome to be counted, got %v", m.Counter.GetValue())
	}
}

func TestObserveMetricLabelsVariant(t *testing.T) {
	r := Get()
	r.ObserveMetric("switch", time.Millisecond)

	var m dto.Metric
	if err := r.MetricRuns.WithLabelValues("switch").Write(&m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Counter.GetValue() < 1 {
		t.Errorf("expected switch-variant metric run to be counted, got %v", m.Counter.GetValue())
	}
}
