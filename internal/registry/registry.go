package registry

import (
	"errors"
	"fmt"
	"sync"
)

// Registry is a threadsafe in-memory table of tracked launches.
// A secondary index by label makes role-based termination cheap.
type Registry struct {
	mu      sync.RWMutex
	byID    map[int]*TrackedProcess
	byLabel map[string]map[int]struct{}
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		byID:    make(map[int]*TrackedProcess),
		byLabel: make(map[string]map[int]struct{}),
	}
}

// Add records a freshly launched process. An entry left behind for a pid that
// has since been reaped is replaced, since the OS is free to hand the pid out again.
func (r *Registry) Add(p TrackedProcess) (TrackedProcess, error) {
	if p.ID <= 0 {
		return TrackedProcess{}, errors.New("id must be > 0")
	}
	label, err := NormalizeLabel(p.Label)
	if err != nil {
		return TrackedProcess{}, err
	}
	p.Label = label
	if p.LaunchedAt.IsZero() {
		p.LaunchedAt = now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old := r.byID[p.ID]; old != nil {
		if !old.Exited() {
			return TrackedProcess{}, fmt.Errorf("pid %d is already tracked as %q", p.ID, old.Label)
		}
		r.removeLocked(old.ID)
	}

	entry := p.clone()
	r.byID[entry.ID] = &entry
	if _, ok := r.byLabel[entry.Label]; !ok {
		r.byLabel[entry.Label] = make(map[int]struct{})
	}
	r.byLabel[entry.Label][entry.ID] = struct{}{}
	return entry.clone(), nil
}

// Get returns a copy of the entry for id.
func (r *Registry) Get(id int) (TrackedProcess, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p := r.byID[id]
	if p == nil {
		return TrackedProcess{}, false
	}
	return p.clone(), true
}

// ByLabel returns every entry sharing label, sorted by id.
func (r *Registry) ByLabel(label string) []TrackedProcess {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byLabel[label]
	out := make([]TrackedProcess, 0, len(ids))
	for id := range ids {
		out = append(out, r.byID[id].clone())
	}
	sortByID(out)
	return out
}

// List returns every entry sorted by id.
func (r *Registry) List() []TrackedProcess {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TrackedProcess, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, p.clone())
	}
	sortByID(out)
	return out
}

// Len returns the number of tracked entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Remove deletes an entry by id. Only the first of several racing callers
// observes true.
func (r *Registry) Remove(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(id)
}

// RemoveByLabel deletes every entry with label and returns them.
func (r *Registry) RemoveByLabel(label string) []TrackedProcess {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.byLabel[label]
	out := make([]TrackedProcess, 0, len(ids))
	for id := range ids {
		out = append(out, r.byID[id].clone())
	}
	for _, p := range out {
		r.removeLocked(p.ID)
	}
	sortByID(out)
	return out
}

// Prune drops entries whose process has already been reaped.
func (r *Registry) Prune() []TrackedProcess {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []TrackedProcess
	for id, p := range r.byID {
		if p.Exited() {
			out = append(out, p.clone())
			r.removeLocked(id)
		}
	}
	sortByID(out)
	return out
}

// Reset clears the table and returns what it held.
func (r *Registry) Reset() []TrackedProcess {
	r.mu.Lock()
	out := make([]TrackedProcess, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, p.clone())
	}
	r.byID = make(map[int]*TrackedProcess)
	r.byLabel = make(map[string]map[int]struct{})
	r.mu.Unlock()

	sortByID(out)
	return out
}

func (r *Registry) removeLocked(id int) bool {
	p := r.byID[id]
	if p == nil {
		return false
	}
	delete(r.byID, id)
	delete(r.byLabel[p.Label], id)
	if len(r.byLabel[p.Label]) == 0 {
		delete(r.byLabel, p.Label)
	}
	return true
}
