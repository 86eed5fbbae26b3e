// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package catalogdiff compares two flow-catalog discovery runs (e.g. before
// and after a topology or rule-table edit), adapted from the teacher's
// internal/config.ConfigDiff/Change/ChangeType shape (internal/config/hcl.go)
// from HCL configuration sections onto flow records.
package catalogdiff

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"flowmesh.dev/flowmesh/internal/schema"
)

// ChangeType mirrors the teacher's ChangeType enum (internal/config/hcl.go).
type ChangeType string

const (
	Added    ChangeType = "added"
	Removed  ChangeType = "removed"
	Modified ChangeType = "modified"
)

// Change describes one flow's difference between two catalog snapshots.
type Change struct {
	FlowName   string
	Type       ChangeType
	OldVisited []string
	NewVisited []string
	PathDiff   string // unified diff of the visited-path text, only for Modified
}

// Diff is the structured result of comparing two catalogs, summarized the
// way the teacher's ConfigDiff carries Added/Modified/Removed plus a count
// summary (DiffSummary).
type Diff struct {
	Added    []Change
	Removed  []Change
	Modified []Change
	Summary  Summary
}

// Summary mirrors the teacher's DiffSummary shape, narrowed to this domain.
type Summary struct {
	TotalChanges  int
	FlowsAdded    int
	FlowsRemoved  int
	FlowsModified int
}

// CompareCatalogs computes a Diff between an older and newer discovery run.
// A flow present in both with an identical visited path in the same order
// is unchanged and does not appear in the result at all.
func CompareCatalogs(old, new schema.Catalog) *Diff {
	diff := &Diff{}

	names := make(map[string]struct{}, len(old)+len(new))
	for name := range old {
		names[name] = struct{}{}
	}
	for name := range new {
		names[name] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	for _, name := range sorted {
		oldRec, hadOld := old[name]
		newRec, hasNew := new[name]

		switch {
		case !hadOld && hasNew:
			diff.Added = append(diff.Added, Change{FlowName: name, Type: Added, NewVisited: newRec.Visited})
		case hadOld && !hasNew:
			diff.Removed = append(diff.Removed, Change{FlowName: name, Type: Removed, OldVisited: oldRec.Visited})
		case !samePath(oldRec.Visited, newRec.Visited):
			diff.Modified = append(diff.Modified, Change{
				FlowName:   name,
				Type:       Modified,
				OldVisited: oldRec.Visited,
				NewVisited: newRec.Visited,
				PathDiff:   unifiedPathDiff(name, oldRec.Visited, newRec.Visited),
			})
		}
	}

	diff.Summary = Summary{
		TotalChanges:  len(diff.Added) + len(diff.Removed) + len(diff.Modified),
		FlowsAdded:    len(diff.Added),
		FlowsRemoved:  len(diff.Removed),
		FlowsModified: len(diff.Modified),
	}
	return diff
}

func samePath(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// unifiedPathDiff renders a visited-path change as a line-per-hop unified
// diff via go-difflib, the way the teacher's config diff would render a
// line-oriented text change instead of a structured field comparison.
func unifiedPathDiff(flowName string, oldVisited, newVisited []string) string {
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(strings.Join(oldVisited, "\n")),
		B:        difflib.SplitLines(strings.Join(newVisited, "\n")),
		FromFile: fmt.Sprintf("%s (before)", flowName),
		ToFile:   fmt.Sprintf("%s (after)", flowName),
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return ""
	}
	return text
}
