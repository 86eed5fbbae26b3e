// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ipaddr parses IPv4 addresses and CIDR blocks into closed integer
// intervals, and tests containment between them. It underlies the nw_dst
// match comparator in internal/rule and the per-switch CIDR membership
// check in internal/topo.
package ipaddr

import (
	"fmt"
	"strconv"
	"strings"

	"flowmesh.dev/flowmesh/internal/errors"
)

// Range is an inclusive integer interval [Low, High] within [0, 2^32-1],
// derived from a single dotted-quad IP (width 1) or a CIDR block (width
// 2^(32-prefix)).
type Range struct {
	Low  uint32
	High uint32
}

// Contains reports whether outer fully contains inner.
func Contains(outer, inner Range) bool {
	return outer.Low <= inner.Low && inner.High <= outer.High
}

// Parse accepts "a.b.c.d" (width 1) or "a.b.c.d/p" with 0<=p<=32 and
// returns the corresponding Range.
func Parse(s string) (Range, error) {
	addr, prefix, hasPrefix, err := split(s)
	if err != nil {
		return Range{}, err
	}

	ip, err := parseDottedQuad(addr)
	if err != nil {
		return Range{}, err
	}

	if !hasPrefix {
		return Range{Low: ip, High: ip}, nil
	}

	if prefix < 0 || prefix > 32 {
		return Range{}, errors.Errorf(errors.KindMalformedInput, "ipaddr: prefix out of range in %q", s)
	}

	width := uint(32 - prefix)
	var mask uint32
	if width >= 32 {
		mask = 0xFFFFFFFF
	} else {
		mask = (uint32(1) << width) - 1
	}
	low := ip &^ mask
	high := low | mask
	return Range{Low: low, High: high}, nil
}

// IsFormat performs a lexical-only check that s is a well-formed IP or CIDR.
func IsFormat(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// ToIP renders a 32-bit integer as a standard dotted-quad string.
func ToIP(n uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}

func split(s string) (addr string, prefix int, hasPrefix bool, err error) {
	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		addr = s[:idx]
		prefixStr := s[idx+1:]
		p, perr := strconv.Atoi(prefixStr)
		if perr != nil {
			return "", 0, false, errors.Errorf(errors.KindMalformedInput, "ipaddr: invalid prefix %q in %q", prefixStr, s)
		}
		return addr, p, true, nil
	}
	return s, 0, false, nil
}

func parseDottedQuad(s string) (uint32, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, errors.Errorf(errors.KindMalformedInput, "ipaddr: malformed IP %q", s)
	}

	var out uint32
	for _, part := range parts {
		if part == "" {
			return 0, errors.Errorf(errors.KindMalformedInput, "ipaddr: malformed IP %q", s)
		}
		octet, err := strconv.Atoi(part)
		if err != nil || octet < 0 || octet > 255 {
			return 0, errors.Errorf(errors.KindMalformedInput, "ipaddr: octet out of range in %q", s)
		}
		out = out<<8 | uint32(octet)
	}
	return out, nil
}
