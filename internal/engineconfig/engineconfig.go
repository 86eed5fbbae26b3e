// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package engineconfig loads the session-wide ambient defaults for the
// evaluation engine from an HCL file, following the same hclsimple decode
// path the teacher's internal/config package uses for its firewall
// configuration.
package engineconfig

import (
	"os"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"flowmesh.dev/flowmesh/internal/errors"
)

// SessionDefaults holds the tunables that apply across an entire discovery
// and evaluation session: the minimum hop count a discovered flow must
// clear to be cataloged, and the failure-rate/time-window/tolerance inputs
// to the critical-flow probability metric (§4.5.1, §4.5.4).
type SessionDefaults struct {
	MinimumHops int     `hcl:"minimum_hops,optional" json:"minimum_hops"`
	FailureRate float64 `hcl:"failure_rate,optional" json:"failure_rate"`
	TimeWindow  float64 `hcl:"time_window,optional" json:"time_window"`
	Tolerance   float64 `hcl:"tolerance,optional" json:"tolerance"`
}

// DefaultSessionDefaults returns the engine's built-in defaults, used when
// no HCL file is supplied.
func DefaultSessionDefaults() SessionDefaults {
	return SessionDefaults{
		MinimumHops: 1,
		FailureRate: 0.01,
		TimeWindow:  24.0,
		Tolerance:   0.05,
	}
}

// Load decodes session defaults from an HCL file at path, starting from
// DefaultSessionDefaults and overwriting only the fields the file sets.
func Load(path string) (SessionDefaults, error) {
	defaults := DefaultSessionDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return SessionDefaults{}, errors.Wrap(err, errors.KindMalformedInput, "engineconfig: failed to read session defaults file")
	}

	if err := hclsimple.Decode(path, data, nil, &defaults); err != nil {
		return SessionDefaults{}, errors.Wrap(err, errors.KindMalformedInput, "engineconfig: failed to decode session defaults")
	}

	if err := defaults.Validate(); err != nil {
		return SessionDefaults{}, err
	}
	return defaults, nil
}

// Validate reports whether the session defaults are within sane bounds:
// tolerance must be a probability in (0, 1) per §4.5.4, and the remaining
// fields must be non-negative.
func (d SessionDefaults) Validate() error {
	if d.Tolerance <= 0 || d.Tolerance >= 1 {
		return errors.Errorf(errors.KindMalformedInput, "engineconfig: tolerance must be in (0, 1), got %v", d.Tolerance)
	}
	if d.MinimumHops < 0 {
		return errors.Errorf(errors.KindMalformedInput, "engineconfig: minimum_hops must be non-negative, got %d", d.MinimumHops)
	}
	if d.FailureRate < 0 {
		return errors.Errorf(errors.KindMalformedInput, "engineconfig: failure_rate must be non-negative, got %v", d.FailureRate)
	}
	if d.TimeWindow < 0 {
		return errors.Errorf(errors.KindMalformedInput, "engineconfig: time_window must be non-negative, got %v", d.TimeWindow)
	}
	return nil
}
