package condition

import (
	"log/slog"
	"sync"

	"github.com/obsidianstack/valuemetric/pkg/types"
)

// Definition is one configured condition.
type Definition struct {
	ID   string
	Expr Expr

	// Dimensions makes the condition sliced by these labels. A slice is
	// active when its own series matches Expr; the overall condition is
	// active when any slice is.
	Dimensions []string
}

// Sliced reports whether the condition has per-slice truth values.
func (d Definition) Sliced() bool { return len(d.Dimensions) > 0 }

// Change describes what an Update did to one condition.
type Change struct {
	ID             string
	Overall        bool
	OverallChanged bool

	// SlicesChanged is true when the overall value stayed the same but at
	// least one slice flipped.
	SlicesChanged bool
}

type state struct {
	overall bool
	slices  map[types.DimensionKey]bool
}

// Tracker holds the current truth value of every condition and answers
// Evaluate queries from metric producers. A Tracker is shared by all
// producers of an agent and outlives them.
//
// All exported methods are safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	defs   map[string]Definition
	states map[string]*state
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		defs:   make(map[string]Definition),
		states: make(map[string]*state),
	}
}

// Define adds or replaces a condition. A new condition starts inactive.
func (t *Tracker) Define(d Definition) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.defs[d.ID] = d
	if _, ok := t.states[d.ID]; !ok {
		t.states[d.ID] = &state{slices: make(map[types.DimensionKey]bool)}
	}
}

// Update re-evaluates condition id from freshly pulled samples. Sample keys
// are projected onto the condition's dimensions. An empty sample set makes
// the condition inactive.
func (t *Tracker) Update(id string, samples []types.Sample) Change {
	t.mu.Lock()
	defer t.mu.Unlock()

	d, ok := t.defs[id]
	if !ok {
		slog.Warn("condition: update for unknown condition", "condition", id)
		return Change{ID: id}
	}
	st := t.states[id]

	next := make(map[types.DimensionKey]bool, len(samples))
	overall := false
	for _, s := range samples {
		match := d.Expr.Match(s.Value)
		if d.Sliced() {
			k := s.Key.Project(d.Dimensions...)
			next[k] = next[k] || match
		}
		overall = overall || match
	}

	ch := Change{ID: id, Overall: overall, OverallChanged: overall != st.overall}
	if d.Sliced() && !ch.OverallChanged {
		ch.SlicesChanged = !sameTruth(st.slices, next)
	}
	st.overall = overall
	st.slices = next
	return ch
}

// Set forces the overall value of an unsliced condition.
func (t *Tracker) Set(id string, active bool) Change {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[id]
	if !ok {
		st = &state{slices: make(map[types.DimensionKey]bool)}
		t.states[id] = st
		t.defs[id] = Definition{ID: id}
	}
	ch := Change{ID: id, Overall: active, OverallChanged: st.overall != active}
	st.overall = active
	return ch
}

// Overall returns the overall truth value of condition id.
func (t *Tracker) Overall(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.states[id]
	return ok && st.overall
}

// Evaluate returns whether condition id holds for the slice key. Unknown
// conditions are false. For sliced conditions key is projected onto the
// condition's dimensions before lookup.
func (t *Tracker) Evaluate(id string, key types.DimensionKey) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.states[id]
	if !ok || !st.overall {
		return false
	}
	d := t.defs[id]
	if !d.Sliced() {
		return true
	}
	return st.slices[key.Project(d.Dimensions...)]
}

// sameTruth compares two slice tables; missing entries count as false.
func sameTruth(a, b map[types.DimensionKey]bool) bool {
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	for k, v := range b {
		if a[k] != v {
			return false
		}
	}
	return true
}
