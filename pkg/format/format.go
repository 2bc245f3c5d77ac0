// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package format maps unit tags used by dashboard descriptors to display
// functions shared by every chart and table renderer.
package format

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Recognized format tags.
const (
	BinaryByte    = "binary_byte"
	CompactNumber = "compact_number"
	Percentage    = "percentage"
	Nanosecond    = "nanosecond"
	Microsecond   = "microsecond"
	Millisecond   = "millisecond"
	ByteRate      = "byte_rate"
	Rate          = "rate"
	DateTime      = "dateTime"
	ShortDateTime = "shortDateTime"
	TimeDuration  = "timeDuration"
	TimeDiff      = "timeDiff"
)

// Func renders a numeric value.
type Func func(v float64) string

// Registry resolves format tags. It is immutable after construction and safe
// for concurrent use.
type Registry struct {
	formatters map[string]Func
	now        func() time.Time
	loc        *time.Location
}

// Option configures a Registry.
type Option func(*Registry)

// WithLocation sets the zone used by the date formats.
func WithLocation(loc *time.Location) Option {
	return func(r *Registry) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithClock sets the reference clock used by timeDiff.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry builds a registry with every built-in tag.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		now: time.Now,
		loc: time.Local,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.formatters = map[string]Func{
		BinaryByte:    binaryByte,
		CompactNumber: compactNumber,
		Percentage:    percentage,
		Nanosecond:    timeLadder(0),
		Microsecond:   timeLadder(1),
		Millisecond:   timeLadder(2),
		ByteRate:      func(v float64) string { return binaryByte(v) + "/s" },
		Rate:          func(v float64) string { return compactNumber(v) + "/s" },
		DateTime:      r.dateLayout("2006-01-02 15:04:05"),
		ShortDateTime: r.dateLayout("01-02 15:04:05"),
		TimeDuration:  timeDuration,
		TimeDiff:      r.timeDiff,
	}
	return r
}

// Default is the registry used by the package level helpers.
var Default = NewRegistry()

// Get returns the formatter for tag, or an identity formatter for unknown tags.
func Get(tag string) Func {
	return Default.Get(tag)
}

// Value formats v with the Default registry.
func Value(tag string, v any) string {
	return Default.Value(tag, v)
}

// Get returns the formatter for tag. Unknown tags pass the value through.
func (r *Registry) Get(tag string) Func {
	if fn, ok := r.formatters[tag]; ok {
		return fn
	}
	return identity
}

// Has reports whether tag is a known format.
func (r *Registry) Has(tag string) bool {
	_, ok := r.formatters[tag]
	return ok
}

// Value formats an arbitrary cell value. Non-numeric values and unknown tags
// are rendered as-is.
func (r *Registry) Value(tag string, v any) string {
	f, ok := toFloat(v)
	if !ok {
		if v == nil {
			return ""
		}
		return fmt.Sprint(v)
	}
	return r.Get(tag)(f)
}

func identity(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

var (
	binaryUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}
)

// scale divides v by base until it fits the unit ladder.
func scale(v, base float64, units []string) (float64, string) {
	i := 0
	abs := math.Abs(v)
	for abs >= base && i < len(units)-1 {
		abs /= base
		v /= base
		i++
	}
	return v, units[i]
}

func binaryByte(v float64) string {
	scaled, unit := scale(v, 1024, binaryUnits)
	if unit == "B" {
		return trimNumber(scaled) + " B"
	}
	return fmt.Sprintf("%.2f %s", scaled, unit)
}

// compactNumber uses SI prefixes from kilo upwards; smaller magnitudes are
// printed as is.
func compactNumber(v float64) string {
	if math.Abs(v) < 1000 {
		return trimNumber(v)
	}
	scaled, prefix := humanize.ComputeSI(v)
	return fmt.Sprintf("%.2f%s", scaled, strings.ToUpper(prefix))
}

func percentage(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

// trimNumber prints integers without decimals and fractions with two.
func trimNumber(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

type timeUnit struct {
	suffix string
	// next is the factor to the following unit; zero marks the last one.
	next float64
}

var timeUnits = []timeUnit{
	{"ns", 1000},
	{"μs", 1000},
	{"ms", 1000},
	{"s", 60},
	{"min", 60},
	{"h", 0},
}

// timeLadder returns one auto-scaling formatter starting at the given rung.
func timeLadder(start int) Func {
	return func(v float64) string {
		i := start
		// Step on the rounded value so 999.999ns prints as 1μs.
		for timeUnits[i].next > 0 && math.Abs(round2(v)) >= timeUnits[i].next {
			v /= timeUnits[i].next
			i++
		}
		return trimNumber(round2(v)) + timeUnits[i].suffix
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (r *Registry) dateLayout(layout string) Func {
	return func(v float64) string {
		return time.UnixMilli(int64(v)).In(r.loc).Format(layout)
	}
}

func (r *Registry) timeDiff(v float64) string {
	return humanize.RelTime(time.UnixMilli(int64(v)), r.now(), "ago", "from now")
}

// timeDuration renders milliseconds as days, hours and minutes. Seconds are
// only shown when every larger component is zero.
func timeDuration(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	ms := int64(v)
	const (
		minute = int64(60 * 1000)
		hour   = 60 * minute
		day    = 24 * hour
	)
	days := ms / day
	hours := (ms % day) / hour
	minutes := (ms % hour) / minute

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dDay", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dHour", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dMin", minutes))
	}
	if len(parts) == 0 {
		return sign + fmt.Sprintf("%ds", (ms%minute)/1000)
	}
	return sign + strings.Join(parts, " ")
}
