// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package latency computes the artificial "thinking" delay shown before an
// assistant reply becomes visible.
//
// The delay grows linearly with the reply length and is clamped between a
// base and a maximum:
//
//	delay = clamp(Base + PerChar*runes(text), Base, Max)
//
// The result is deterministic for a given text so tests are reproducible.
// Each assistant surface carries its own Policy; the dashboard surfaces were
// never consistent about the constants and the per-surface values are kept.
package latency

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// =============================================================================
// POLICY
// =============================================================================

// Policy holds the timing constants for one assistant surface.
type Policy struct {
	Base    time.Duration
	PerChar time.Duration
	Max     time.Duration
}

// Default is the policy used when a surface does not declare one.
var Default = Policy{
	Base:    800 * time.Millisecond,
	PerChar: 10 * time.Millisecond,
	Max:     3000 * time.Millisecond,
}

// FromMillis builds a policy from millisecond values as they appear in rule
// tables and config files.
func FromMillis(baseMs, perCharMs, maxMs int) Policy {
	return Policy{
		Base:    time.Duration(baseMs) * time.Millisecond,
		PerChar: time.Duration(perCharMs) * time.Millisecond,
		Max:     time.Duration(maxMs) * time.Millisecond,
	}
}

// Delay returns the simulated reply delay for text. It never exceeds Max and
// is monotonically non-decreasing in the rune length of text.
func (p Policy) Delay(text string) time.Duration {
	return p.DelayForLength(utf8.RuneCountInString(text))
}

// DelayForLength is Delay for a precomputed rune count.
func (p Policy) DelayForLength(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	d := p.Base
	if p.PerChar > 0 && n > 0 {
		// Saturate instead of overflowing on very large inputs.
		room := p.Max - p.Base
		if room <= 0 || time.Duration(n) > room/p.PerChar {
			d = p.Max
		} else {
			d += time.Duration(n) * p.PerChar
		}
	}
	if d > p.Max {
		d = p.Max
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Scaled returns a copy of p with every constant multiplied by factor.
// A factor of 0 makes replies immediate.
func (p Policy) Scaled(factor float64) Policy {
	if factor == 1 {
		return p
	}
	if factor < 0 {
		factor = 0
	}
	return Policy{
		Base:    time.Duration(float64(p.Base) * factor),
		PerChar: time.Duration(float64(p.PerChar) * factor),
		Max:     time.Duration(float64(p.Max) * factor),
	}
}

// Validate reports a policy that cannot produce sensible delays.
func (p Policy) Validate() error {
	if p.Base < 0 || p.PerChar < 0 || p.Max < 0 {
		return fmt.Errorf("latency values must not be negative (base=%v per_char=%v max=%v)", p.Base, p.PerChar, p.Max)
	}
	if p.Max < p.Base {
		return fmt.Errorf("latency max %v is below base %v", p.Max, p.Base)
	}
	return nil
}

// String returns a compact description for logs and CLI output.
func (p Policy) String() string {
	return fmt.Sprintf("base=%v per_char=%v max=%v", p.Base, p.PerChar, p.Max)
}
