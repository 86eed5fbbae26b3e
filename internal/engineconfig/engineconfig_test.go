// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engineconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.hcl")
	contents := "minimum_hops = 2\nfailure_rate = 0.02\ntolerance = 0.1\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.MinimumHops != 2 {
		t.Errorf("expected minimum_hops=2, got %d", got.MinimumHops)
	}
	if got.FailureRate != 0.02 {
		t.Errorf("expected failure_rate=0.02, got %v", got.FailureRate)
	}
	if got.Tolerance != 0.1 {
		t.Errorf("expected tolerance=0.1, got %v", got.Tolerance)
	}
	// TimeWindow not set by the fixture; should retain the built-in default.
	if got.TimeWindow != DefaultSessionDefaults().TimeWindow {
		t.Errorf("expected time_window to retain default %v, got %v", DefaultSessionDefaults().TimeWindow, got.TimeWindow)
	}
}

func TestValidateRejectsOutOfRangeTolerance(t *testing.T) {
	d := DefaultSessionDefaults()
	d.Tolerance = 1.5
	if err := d.Validate(); err == nil {
		t.Fatal("expected tolerance >= 1 to be rejected")
	}
}

func TestValidateRejectsNegativeMinimumHops(t *testing.T) {
	d := DefaultSessionDefaults()
	d.MinimumHops = -1
	if err := d.Validate(); err == nil {
		t.Fatal("expected negative minimum_hops to be rejected")
	}
}
