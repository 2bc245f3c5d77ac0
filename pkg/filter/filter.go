// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package filter holds the page-wide filter selection and time window.
//
// A single State is owned by the dashboard controller and passed explicitly
// to every component that reads it. Components observe changes through
// Subscribe; queries read an immutable Snapshot.
package filter

import (
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/jllopis/kairos-console/pkg/interval"
)

// MatcherType names a matcher kind understood by the backend.
type MatcherType string

// Equal is the only matcher produced by filter bars.
const Equal MatcherType = "equal"

// Matcher is a predicate on one dimension.
type Matcher struct {
	Type    MatcherType `json:"type"`
	Pattern string      `json:"pattern"`
}

// Filter is a matcher bound to a dimension.
type Filter struct {
	Dimension string  `json:"dimension"`
	Matcher   Matcher `json:"matcher"`
}

// Equals builds an equality filter.
func Equals(dimension, value string) Filter {
	return Filter{Dimension: dimension, Matcher: Matcher{Type: Equal, Pattern: value}}
}

// KeySeparator separates a filter bar prefix from the dimension in a key.
const KeySeparator = ":"

// Key builds a prefixed filter key. An empty prefix yields the bare dimension.
func Key(prefix, dimension string) string {
	if prefix == "" {
		return dimension
	}
	return prefix + KeySeparator + dimension
}

// DimensionOf returns the dimension part of a filter key.
func DimensionOf(key string) string {
	if i := strings.LastIndex(key, KeySeparator); i >= 0 {
		return key[i+len(KeySeparator):]
	}
	return key
}

// ChangeKind distinguishes filter notifications from interval notifications.
type ChangeKind int

const (
	FilterChanged ChangeKind = iota
	ExpressionChanged
	IntervalChanged
)

func (k ChangeKind) String() string {
	switch k {
	case FilterChanged:
		return "filter"
	case ExpressionChanged:
		return "expression"
	case IntervalChanged:
		return "interval"
	default:
		return "unknown"
	}
}

// Change describes one mutation. Filter is nil when the key was cleared.
// Cascaded lists dependent keys reset by the mutation.
type Change struct {
	Kind     ChangeKind
	Key      string
	Filter   *Filter
	Interval interval.Selection
	Cascaded []string
}

// Listener receives changes synchronously after the state lock is released.
type Listener func(Change)

// CascadePolicy maps an ancestor key to the keys that must be reset when the
// ancestor changes. Resets are applied transitively.
type CascadePolicy map[string][]string

type entry struct {
	filter Filter
	seq    uint64
}

// State is the mutable filter selection. It is safe for concurrent use.
type State struct {
	mu         sync.RWMutex
	order      []string
	entries    map[string]entry
	seq        uint64
	expression string
	selection  interval.Selection
	cascade    CascadePolicy

	lmu       sync.Mutex
	listeners map[int]Listener
	nextID    int
}

// Option configures a State.
type Option func(*State)

// WithCascade installs the cascading reset policy.
func WithCascade(policy CascadePolicy) Option {
	return func(s *State) {
		s.cascade = policy
	}
}

// WithInterval sets the initial interval selection.
func WithInterval(sel interval.Selection) Option {
	return func(s *State) {
		s.selection = sel
	}
}

// New creates an empty State with a one hour window.
func New(opts ...Option) *State {
	s := &State{
		entries:   make(map[string]entry),
		selection: interval.MustPreset("1h"),
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetCascade replaces the cascading reset policy.
func (s *State) SetCascade(policy CascadePolicy) {
	s.mu.Lock()
	s.cascade = policy
	s.mu.Unlock()
}

// Subscribe registers l and returns a function that removes it.
func (s *State) Subscribe(l Listener) func() {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.lmu.Unlock()
	return func() {
		s.lmu.Lock()
		delete(s.listeners, id)
		s.lmu.Unlock()
	}
}

// SetFilter inserts or overwrites an equality matcher for key.
func (s *State) SetFilter(key, value string) {
	s.SetMatcher(key, Equals(DimensionOf(key), value))
}

// SetMatcher inserts or overwrites the filter stored under key.
func (s *State) SetMatcher(key string, f Filter) {
	s.mu.Lock()
	prev, existed := s.entries[key]
	if !existed {
		s.order = append(s.order, key)
	}
	s.seq++
	s.entries[key] = entry{filter: f, seq: s.seq}
	var cascaded []string
	if !existed || prev.filter != f {
		cascaded = s.resetDependentsLocked(key)
	}
	s.mu.Unlock()

	s.notify(Change{Kind: FilterChanged, Key: key, Filter: &f, Cascaded: cascaded})
}

// ClearFilter removes key. It reports whether the key was present.
func (s *State) ClearFilter(key string) bool {
	s.mu.Lock()
	if _, ok := s.entries[key]; !ok {
		s.mu.Unlock()
		return false
	}
	s.removeLocked(key)
	cascaded := s.resetDependentsLocked(key)
	s.mu.Unlock()

	s.notify(Change{Kind: FilterChanged, Key: key, Cascaded: cascaded})
	return true
}

// SetExpression replaces the free-text filter expression.
func (s *State) SetExpression(expr string) {
	expr = strings.TrimSpace(expr)
	s.mu.Lock()
	s.expression = expr
	s.mu.Unlock()
	s.notify(Change{Kind: ExpressionChanged})
}

// SetInterval replaces the active time window.
func (s *State) SetInterval(sel interval.Selection) {
	s.mu.Lock()
	s.selection = sel
	s.mu.Unlock()
	s.notify(Change{Kind: IntervalChanged, Interval: sel})
}

// Interval returns the selected interval.
func (s *State) Interval() interval.Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selection
}

// Get returns the filter stored under key.
func (s *State) Get(key string) (Filter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e.filter, ok
}

// Snapshot returns an immutable copy of the current selection.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Expression: s.expression,
		Interval:   s.selection,
		keys:       make(map[string]struct{}, len(s.order)),
	}
	for _, key := range s.order {
		snap.keys[key] = struct{}{}
	}
	snap.Filters = s.dedupedLocked()
	return snap
}

// ToFilterList returns the ordered filter list for embedding in a query.
func (s *State) ToFilterList() []Filter {
	return s.Snapshot().ToFilterList()
}

// ToFilterExpression returns the filters and expression as one predicate.
func (s *State) ToFilterExpression() string {
	return s.Snapshot().ToFilterExpression()
}

// Encode writes the state into URL query values.
func (s *State) Encode() url.Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := url.Values{}
	for _, key := range s.order {
		e := s.entries[key]
		if e.filter.Matcher.Type == Equal {
			v.Set(urlFilterPrefix+key, e.filter.Matcher.Pattern)
		}
	}
	if s.expression != "" {
		v.Set(urlExpression, s.expression)
	}
	v.Set(urlInterval, s.selection.String())
	return v
}

const (
	urlFilterPrefix = "filter."
	urlExpression   = "expr"
	urlInterval     = "interval"
)

// Decode restores state from URL query values produced by Encode. It does
// not notify listeners; callers refresh explicitly after restoring.
func (s *State) Decode(v url.Values) error {
	var sel interval.Selection
	if raw := v.Get(urlInterval); raw != "" {
		parsed, err := interval.Parse(raw)
		if err != nil {
			return err
		}
		sel = parsed
	}

	keys := make([]string, 0)
	for name := range v {
		if strings.HasPrefix(name, urlFilterPrefix) {
			keys = append(keys, strings.TrimPrefix(name, urlFilterPrefix))
		}
	}
	sort.Strings(keys)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		if _, ok := s.entries[key]; !ok {
			s.order = append(s.order, key)
		}
		s.seq++
		s.entries[key] = entry{filter: Equals(DimensionOf(key), v.Get(urlFilterPrefix+key)), seq: s.seq}
	}
	s.expression = strings.TrimSpace(v.Get(urlExpression))
	if sel.Preset != "" {
		s.selection = sel
	}
	return nil
}

func (s *State) removeLocked(key string) {
	delete(s.entries, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// resetDependentsLocked clears the dependents of key, transitively.
func (s *State) resetDependentsLocked(key string) []string {
	if len(s.cascade) == 0 {
		return nil
	}
	var cleared []string
	visited := map[string]bool{key: true}
	queue := append([]string(nil), s.cascade[key]...)
	for len(queue) > 0 {
		dep := queue[0]
		queue = queue[1:]
		if visited[dep] {
			continue
		}
		visited[dep] = true
		if _, ok := s.entries[dep]; ok {
			s.removeLocked(dep)
			cleared = append(cleared, dep)
		}
		queue = append(queue, s.cascade[dep]...)
	}
	return cleared
}

// dedupedLocked keeps one filter per dimension: the most recently set one,
// placed at the position of the first key carrying that dimension.
func (s *State) dedupedLocked() []Filter {
	latest := make(map[string]entry, len(s.order))
	for _, key := range s.order {
		e := s.entries[key]
		if cur, ok := latest[e.filter.Dimension]; !ok || e.seq > cur.seq {
			latest[e.filter.Dimension] = e
		}
	}
	out := make([]Filter, 0, len(latest))
	seen := make(map[string]bool, len(latest))
	for _, key := range s.order {
		dim := s.entries[key].filter.Dimension
		if seen[dim] {
			continue
		}
		seen[dim] = true
		out = append(out, latest[dim].filter)
	}
	return out
}

func (s *State) notify(c Change) {
	s.lmu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.lmu.Unlock()

	for _, l := range listeners {
		l(c)
	}
}

// Snapshot is an immutable view of a State.
type Snapshot struct {
	Filters    []Filter
	Expression string
	Interval   interval.Selection
	keys       map[string]struct{}
}

// ToFilterList returns a copy of the deduplicated filters.
func (s Snapshot) ToFilterList() []Filter {
	return append([]Filter(nil), s.Filters...)
}

// ToFilterExpression joins the equality filters and the free-text expression
// with AND.
func (s Snapshot) ToFilterExpression() string {
	parts := make([]string, 0, len(s.Filters)+1)
	for _, f := range s.Filters {
		parts = append(parts, f.Expression())
	}
	if s.Expression != "" {
		if len(parts) > 0 {
			parts = append(parts, "("+s.Expression+")")
		} else {
			parts = append(parts, s.Expression)
		}
	}
	return strings.Join(parts, " AND ")
}

// Has reports whether a filter key or a filter on that dimension is set.
func (s Snapshot) Has(key string) bool {
	if _, ok := s.keys[key]; ok {
		return true
	}
	for _, f := range s.Filters {
		if f.Dimension == key {
			return true
		}
	}
	return false
}

// Missing returns the required keys that are not set.
func (s Snapshot) Missing(required []string) []string {
	var missing []string
	for _, key := range required {
		if !s.Has(key) {
			missing = append(missing, key)
		}
	}
	return missing
}

// Expression renders the filter as a textual predicate.
func (f Filter) Expression() string {
	op := "="
	switch f.Matcher.Type {
	case Equal, "":
	default:
		op = string(f.Matcher.Type)
	}
	return f.Dimension + " " + op + " '" + quoteEscaper.Replace(f.Matcher.Pattern) + "'"
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, "'", `\'`)
