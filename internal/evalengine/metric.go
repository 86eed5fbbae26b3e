// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package evalengine

import (
	"math"
	"sync"

	"flowmesh.dev/flowmesh/internal/errors"
	"flowmesh.dev/flowmesh/internal/schema"
	"flowmesh.dev/flowmesh/internal/topo"
)

// MetricResult is the outcome of a critical-flow probability run: either
// the metric converged (UpperBound nil) or the loop stopped early once the
// remaining tail was within tolerance of the running total, in which case
// UpperBound names the subset size at which it stopped (§4.5.4).
type MetricResult struct {
	Probability float64
	UpperBound  *int
}

// Parameters bundles the metric's rate/window/tolerance inputs (§4.5.4).
type Parameters struct {
	FailureRate float64
	TimeWindow  float64
	Tolerance   float64
}

// LinkMetric computes the critical-flow probability metric for flow over
// candidate link set links (§4.5.4). Per §4.5.1's note, a subset of links
// that shares no link with the flow's visited path trivially contributes 0
// and is skipped rather than evaluated.
//
// Subset evaluation within each size class i is fanned out across workers,
// each operating on its own Topology.Fork() so no goroutine races on the
// shared LinkState (§5).
func LinkMetric(top *topo.Topology, catalog schema.Catalog, flowName string, links []string, p Parameters) (MetricResult, error) {
	rec, ok := catalog[flowName]
	if !ok {
		return MetricResult{}, errors.Errorf(errors.KindSemanticInconsistency, "evalengine: flow %q not present in catalog", flowName)
	}
	visited := make(map[string]struct{})
	for _, l := range VisitedLinks(rec.Visited) {
		visited[l] = struct{}{}
	}

	n := len(links)
	var pTotal, pWindow float64

	for i := 1; i <= n; i++ {
		subsets := relevantSubsets(links, i, visited)
		pm := evaluateSubsetsParallel(top, catalog, flowName, subsets) / combination(n, i)
		px := poisson(p.FailureRate*p.TimeWindow, i)
		pWindow += px

		if (1 - pWindow) < p.Tolerance*(pTotal+pm*px) {
			ub := i
			return MetricResult{Probability: pTotal, UpperBound: &ub}, nil
		}
		pTotal += pm * px
	}

	return MetricResult{Probability: pTotal}, nil
}

// SwitchMetric implements §4.5.5: translate candidate switches to the union
// of their incident canonical links, then run the link variant with the
// additional step that the flow's visited path is intersected against the
// candidate-switch set rather than the candidate-link set.
//
// Pinned reading (§9 Open Question, since the switch visited/candidate
// intersection is underspecified): this is a single degenerate-case guard
// over the whole call, mirroring §4.5.1's note that a subset sharing no
// link with the visited path trivially contributes 0 — here, if none of
// the candidate switches lie on the flow's visited switch path, the metric
// is 0 without running any evaluation at all. Once past that guard, the
// per-subset relevance test inside LinkMetric (visited *links*) applies as
// usual to the translated link set.
func SwitchMetric(top *topo.Topology, catalog schema.Catalog, flowName string, switches []string, p Parameters) (MetricResult, error) {
	rec, ok := catalog[flowName]
	if !ok {
		return MetricResult{}, errors.Errorf(errors.KindSemanticInconsistency, "evalengine: flow %q not present in catalog", flowName)
	}
	visited := make(map[string]struct{}, len(rec.Visited))
	for _, s := range rec.Visited {
		visited[s] = struct{}{}
	}
	touchesCandidate := false
	for _, s := range switches {
		if _, ok := visited[s]; ok {
			touchesCandidate = true
			break
		}
	}
	if !touchesCandidate {
		return MetricResult{Probability: 0}, nil
	}

	links := top.LinksOfAny(switches)
	return LinkMetric(top, catalog, flowName, links, p)
}

// NeighborhoodMetric implements §4.5.6: compute the BFS neighborhood of
// center within hops steps and convert it to links. Then, for each subset
// size i, evaluate every known flow in the catalog against each i-sized
// subset of those links, normalizing each failure count by the number of
// flows, and accumulate with the same Poisson weighting and tolerance stop
// as LinkMetric, so the metric expresses an average per-flow failure
// probability.
func NeighborhoodMetric(top *topo.Topology, catalog schema.Catalog, center string, hops int, p Parameters) (MetricResult, error) {
	switches := top.Neighborhood(center, hops)
	links := top.LinksOfAny(switches)

	flowNames := make([]string, 0, len(catalog))
	for name := range catalog {
		flowNames = append(flowNames, name)
	}
	if len(flowNames) == 0 {
		return MetricResult{Probability: 0}, nil
	}

	n := len(links)
	var pTotal, pWindow float64

	for i := 1; i <= n; i++ {
		subsets := subsetsOfSize(links, i)
		var failSum float64
		for _, s := range subsets {
			worker := top.Fork()
			failed := RunSingleEvaluation(worker, catalog, flowNames, s)
			failSum += float64(len(failed)) / float64(len(flowNames))
		}
		pm := failSum / combination(n, i)
		px := poisson(p.FailureRate*p.TimeWindow, i)
		pWindow += px

		if (1 - pWindow) < p.Tolerance*(pTotal+pm*px) {
			ub := i
			return MetricResult{Probability: pTotal, UpperBound: &ub}, nil
		}
		pTotal += pm * px
	}

	return MetricResult{Probability: pTotal}, nil
}

// relevantSubsets returns every i-sized subset of links that contains at
// least one link from visited (§4.5.4's evals[i-1]).
func relevantSubsets(links []string, i int, visited map[string]struct{}) [][]string {
	all := subsetsOfSize(links, i)
	out := make([][]string, 0, len(all))
	for _, s := range all {
		if intersects(s, visited) {
			out = append(out, s)
		}
	}
	return out
}

func intersects(links []string, set map[string]struct{}) bool {
	for _, l := range links {
		if _, ok := set[l]; ok {
			return true
		}
	}
	return false
}

// subsetsOfSize enumerates every size-i subset of items, in input order.
func subsetsOfSize(items []string, i int) [][]string {
	var out [][]string
	if i <= 0 || i > len(items) {
		return out
	}
	combo := make([]int, i)
	for idx := range combo {
		combo[idx] = idx
	}
	for {
		picked := make([]string, i)
		for j, idx := range combo {
			picked[j] = items[idx]
		}
		out = append(out, picked)

		pos := i - 1
		for pos >= 0 && combo[pos] == pos+len(items)-i {
			pos--
		}
		if pos < 0 {
			break
		}
		combo[pos]++
		for j := pos + 1; j < i; j++ {
			combo[j] = combo[j-1] + 1
		}
	}
	return out
}

// evaluateSubsetsParallel runs a single-flow evaluation for every subset in
// subsets and returns the number of subsets for which the flow failed,
// fanning the work out across a bounded worker pool where each worker owns
// an independently forked Topology (§5).
func evaluateSubsetsParallel(top *topo.Topology, catalog schema.Catalog, flowName string, subsets [][]string) float64 {
	if len(subsets) == 0 {
		return 0
	}

	const maxWorkers = 8
	workers := maxWorkers
	if len(subsets) < workers {
		workers = len(subsets)
	}

	jobs := make(chan []string)
	var mu sync.Mutex
	var failCount float64

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			worker := top.Fork()
			for s := range jobs {
				failed := RunSingleEvaluation(worker, catalog, []string{flowName}, s)
				if len(failed) > 0 {
					mu.Lock()
					failCount++
					mu.Unlock()
				}
			}
		}()
	}

	for _, s := range subsets {
		jobs <- s
	}
	close(jobs)
	wg.Wait()

	return failCount
}

// combination returns C(n, i) as a float64.
func combination(n, i int) float64 {
	if i < 0 || i > n {
		return 0
	}
	return factorial(n) / (factorial(i) * factorial(n-i))
}

func factorial(n int) float64 {
	f := 1.0
	for k := 2; k <= n; k++ {
		f *= float64(k)
	}
	return f
}

// poisson returns the Poisson probability of exactly i events given mean
// lambda = r*T (§4.5.4).
func poisson(lambda float64, i int) float64 {
	return math.Pow(lambda, float64(i)) * math.Exp(-lambda) / factorial(i)
}
