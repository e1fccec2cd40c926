// Package channels tracks which chat channels have search enabled.
package channels

import (
	"slices"
	"sync"
)

// Registry is the enabled-channel set.
type Registry interface {
	IsEnabled(channelID int64) bool
	Enable(channelID int64) bool
	Disable(channelID int64) bool
	List() []int64
}

// MemoryRegistry is a process-lifetime Registry. Safe for concurrent use.
type MemoryRegistry struct {
	mu       sync.RWMutex
	enabled  map[int64]struct{}
	onChange func(n int)
}

var _ Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry returns a registry seeded with ids.
func NewMemoryRegistry(ids ...int64) *MemoryRegistry {
	r := &MemoryRegistry{enabled: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		r.enabled[id] = struct{}{}
	}
	return r
}

// OnChange registers fn to be called with the new size after every change.
func (r *MemoryRegistry) OnChange(fn func(n int)) {
	r.mu.Lock()
	r.onChange = fn
	n := len(r.enabled)
	r.mu.Unlock()

	if fn != nil {
		fn(n)
	}
}

// IsEnabled reports whether search is enabled in channelID.
func (r *MemoryRegistry) IsEnabled(channelID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.enabled[channelID]
	return ok
}

// Enable adds channelID and reports whether it was newly added.
func (r *MemoryRegistry) Enable(channelID int64) bool {
	return r.update(func() bool {
		if _, ok := r.enabled[channelID]; ok {
			return false
		}
		r.enabled[channelID] = struct{}{}
		return true
	})
}

// Disable removes channelID and reports whether it was present.
func (r *MemoryRegistry) Disable(channelID int64) bool {
	return r.update(func() bool {
		if _, ok := r.enabled[channelID]; !ok {
			return false
		}
		delete(r.enabled, channelID)
		return true
	})
}

// Merge enables every id in ids and returns how many were new.
func (r *MemoryRegistry) Merge(ids []int64) int {
	added := 0
	r.update(func() bool {
		for _, id := range ids {
			if _, ok := r.enabled[id]; !ok {
				r.enabled[id] = struct{}{}
				added++
			}
		}
		return added > 0
	})
	return added
}

// List returns the enabled ids in ascending order.
func (r *MemoryRegistry) List() []int64 {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.enabled))
	for id := range r.enabled {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

func (r *MemoryRegistry) update(fn func() bool) bool {
	r.mu.Lock()
	changed := fn()
	n, notify := len(r.enabled), r.onChange
	r.mu.Unlock()

	if changed && notify != nil {
		notify(n)
	}
	return changed
}
