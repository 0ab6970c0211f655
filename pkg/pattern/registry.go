package pattern

import (
	"sync"
)

// ChangeType represents the kind of registry change.
type ChangeType string

const (
	ChangeAdded   ChangeType = "pattern.added"
	ChangeRemoved ChangeType = "pattern.removed"
)

// Change is delivered to subscribers when the registry mutates.
type Change struct {
	Type    ChangeType
	Pattern Pattern
}

// Subscriber is a channel that receives registry changes.
type Subscriber chan Change

// Registry is the process-wide set of active patterns. Reads take a
// wait-free snapshot; writes are serialized by the callers (the HTTP
// handlers performing the mutation) and the consumer only samples the
// registry at block boundaries.
type Registry struct {
	mu          sync.RWMutex
	snapshot    []Pattern
	subscribers map[Subscriber]bool
}

// NewRegistry creates a registry seeded with the given patterns.
// Duplicates are collapsed.
func NewRegistry(initial []Pattern) *Registry {
	r := &Registry{
		subscribers: make(map[Subscriber]bool),
	}
	for _, p := range initial {
		r.addLocked(p)
	}
	return r
}

// Snapshot returns the current pattern set. The returned slice is never
// mutated afterwards and is safe to hold across block boundaries.
func (r *Registry) Snapshot() []Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// Add inserts a pattern. It reports whether the set changed.
func (r *Registry) Add(p Pattern) bool {
	r.mu.Lock()
	changed := r.addLocked(p)
	r.mu.Unlock()

	if changed {
		r.notify(Change{Type: ChangeAdded, Pattern: p})
	}
	return changed
}

func (r *Registry) addLocked(p Pattern) bool {
	for _, q := range r.snapshot {
		if q.Equal(p) {
			return false
		}
	}
	// Copy-on-write so outstanding snapshots stay immutable.
	next := make([]Pattern, len(r.snapshot), len(r.snapshot)+1)
	copy(next, r.snapshot)
	r.snapshot = append(next, p)
	return true
}

// Remove deletes every registered pattern included by p and returns the
// removed patterns.
func (r *Registry) Remove(p Pattern) []Pattern {
	r.mu.Lock()
	var kept, removed []Pattern
	for _, q := range r.snapshot {
		if p.Includes(q) {
			removed = append(removed, q)
		} else {
			kept = append(kept, q)
		}
	}
	r.snapshot = kept
	r.mu.Unlock()

	for _, q := range removed {
		r.notify(Change{Type: ChangeRemoved, Pattern: q})
	}
	return removed
}

// Subscribe registers a change listener.
func (r *Registry) Subscribe() Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub := make(Subscriber, 16)
	r.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a listener and closes its channel.
func (r *Registry) Unsubscribe(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subscribers, sub)
	close(sub)
}

func (r *Registry) notify(change Change) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for sub := range r.subscribers {
		select {
		case sub <- change:
		default:
			// Listener buffer full, skip
		}
	}
}
