// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package interval models the selected dashboard time window.
//
// A Selection remembers the preset that produced it so auto refresh and URL
// state recompute a relative window ("last 1h") at every refresh instead of
// freezing a stale absolute range. Zoom and explicit selections use the
// User preset, which carries a fixed absolute range.
package interval

import (
	"fmt"
	"strings"
	"time"
)

// User is the preset id of an absolute, user selected range.
const User = "user"

const (
	presetToday     = "today"
	presetYesterday = "yesterday"
)

// Presets lists the relative windows offered by the interval selector.
var Presets = []string{"5m", "15m", "30m", "1h", "3h", "6h", "12h", "24h", presetToday, presetYesterday}

// Range is an absolute time window [Start, End).
type Range struct {
	Start time.Time
	End   time.Time
}

// Duration returns End - Start.
func (r Range) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// StartISO8601 renders Start in UTC RFC 3339 form.
func (r Range) StartISO8601() string {
	return r.Start.UTC().Format(time.RFC3339)
}

// EndISO8601 renders End in UTC RFC 3339 form.
func (r Range) EndISO8601() string {
	return r.End.UTC().Format(time.RFC3339)
}

// Clamp restricts t to the range boundaries.
func (r Range) Clamp(t time.Time) time.Time {
	if t.Before(r.Start) {
		return r.Start
	}
	if t.After(r.End) {
		return r.End
	}
	return t
}

// Valid reports whether the range is non-empty.
func (r Range) Valid() bool {
	return !r.Start.IsZero() && r.End.After(r.Start)
}

func (r Range) String() string {
	return r.StartISO8601() + "/" + r.EndISO8601()
}

// Selection is the interval chosen in the interval selector.
type Selection struct {
	// Preset is one of Presets, a Go duration ("2h"), or User.
	Preset string
	// Start and End are only meaningful for the User preset.
	Start time.Time
	End   time.Time
	// BucketLength overrides the suggested bucket length when positive.
	BucketLength time.Duration
}

// Preset returns a relative selection. It accepts every entry of Presets and
// any positive Go duration.
func Preset(id string) (Selection, error) {
	id = strings.TrimSpace(id)
	switch id {
	case presetToday, presetYesterday:
		return Selection{Preset: id}, nil
	case "", User:
		return Selection{}, fmt.Errorf("interval: %q is not a relative preset", id)
	}
	d, err := parseLast(id)
	if err != nil {
		return Selection{}, err
	}
	if d <= 0 {
		return Selection{}, fmt.Errorf("interval: preset %q must be positive", id)
	}
	return Selection{Preset: id}, nil
}

// MustPreset is Preset for constant ids.
func MustPreset(id string) Selection {
	s, err := Preset(id)
	if err != nil {
		panic(err)
	}
	return s
}

// Absolute returns a User selection for a fixed range.
func Absolute(start, end time.Time) Selection {
	return Selection{Preset: User, Start: start, End: end}
}

// IsAbsolute reports whether the selection is a frozen range.
func (s Selection) IsAbsolute() bool {
	return s.Preset == User
}

// Resolve computes the absolute range for the selection at now.
func (s Selection) Resolve(now time.Time) Range {
	switch s.Preset {
	case User:
		return Range{Start: s.Start, End: s.End}
	case presetToday:
		start := startOfDay(now)
		return Range{Start: start, End: now}
	case presetYesterday:
		end := startOfDay(now)
		return Range{Start: end.AddDate(0, 0, -1), End: end}
	}
	d, err := parseLast(s.Preset)
	if err != nil || d <= 0 {
		d = time.Hour
	}
	end := now.Truncate(time.Second)
	return Range{Start: end.Add(-d), End: end}
}

// Bucket returns the bucket length used when querying r.
func (s Selection) Bucket(r Range) time.Duration {
	if s.BucketLength > 0 {
		return s.BucketLength
	}
	return SuggestBucketLength(r)
}

func (s Selection) String() string {
	if s.IsAbsolute() {
		return Range{Start: s.Start, End: s.End}.String()
	}
	return s.Preset
}

// Parse reads a selection from its String form: a preset id or
// "<start>/<end>" with RFC 3339 timestamps.
func Parse(v string) (Selection, error) {
	if start, end, ok := strings.Cut(v, "/"); ok {
		st, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return Selection{}, fmt.Errorf("interval: invalid start: %w", err)
		}
		et, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return Selection{}, fmt.Errorf("interval: invalid end: %w", err)
		}
		if !et.After(st) {
			return Selection{}, fmt.Errorf("interval: end must be after start")
		}
		return Absolute(st, et), nil
	}
	return Preset(v)
}

var bucketLadder = []time.Duration{
	10 * time.Second,
	30 * time.Second,
	time.Minute,
	5 * time.Minute,
	10 * time.Minute,
	30 * time.Minute,
	time.Hour,
	3 * time.Hour,
	6 * time.Hour,
	24 * time.Hour,
}

// maxBuckets bounds the number of points per series.
const maxBuckets = 120

// SuggestBucketLength picks the smallest ladder step that keeps the number of
// buckets within maxBuckets.
func SuggestBucketLength(r Range) time.Duration {
	span := r.Duration()
	for _, step := range bucketLadder {
		if span/step <= maxBuckets {
			return step
		}
	}
	return bucketLadder[len(bucketLadder)-1]
}

func parseLast(id string) (time.Duration, error) {
	// "24h" and friends are valid Go durations; "1d"/"7d" are accepted as days.
	if strings.HasSuffix(id, "d") {
		var days int
		if _, err := fmt.Sscanf(id, "%dd", &days); err == nil {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	d, err := time.ParseDuration(id)
	if err != nil {
		return 0, fmt.Errorf("interval: unknown preset %q", id)
	}
	return d, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
