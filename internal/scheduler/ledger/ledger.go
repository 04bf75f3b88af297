// Package ledger tracks the resources still available to the current scheduling pass.
package ledger

import (
	"sync"

	"github.com/armadaproject/taskhive/internal/scheduler/model"
)

// ResourcesByNodeType holds, per node type, the amount of each resource kind that can still be reserved.
// Only the kinds a node type budgets are constrained; requirements on other kinds are ignored for that node type.
// All methods are safe for concurrent use and each reservation is atomic.
type ResourcesByNodeType struct {
	remaining map[string]model.Resources
	mu        sync.Mutex
}

// NewResourcesByNodeType builds a ledger from the free amount per node type.
// Negative amounts, which can appear when usage exceeds a recently reduced capacity, are clamped to zero.
func NewResourcesByNodeType(available map[string]model.Resources) *ResourcesByNodeType {
	remaining := make(map[string]model.Resources, len(available))
	for nodeType, rs := range available {
		copied := make(model.Resources, len(rs))
		for name, amount := range rs {
			copied[name] = max(amount, 0)
		}
		remaining[nodeType] = copied
	}
	return &ResourcesByNodeType{remaining: remaining}
}

// CanReserve reports whether requirements fit in what remains for nodeType, without changing the ledger.
func (r *ResourcesByNodeType) CanReserve(nodeType string, requirements model.Resources) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fits(nodeType, requirements)
}

// TryReserve subtracts requirements from nodeType if every budgeted kind has enough left.
// Either all kinds are reserved or none are.
func (r *ResourcesByNodeType) TryReserve(nodeType string, requirements model.Resources) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.fits(nodeType, requirements) {
		return false
	}
	budget := r.remaining[nodeType]
	for name, amount := range requirements {
		if _, ok := budget[name]; ok {
			budget[name] -= amount
		}
	}
	return true
}

// Release returns previously reserved requirements to nodeType, e.g. after a failed dispatch.
func (r *ResourcesByNodeType) Release(nodeType string, requirements model.Resources) {
	r.mu.Lock()
	defer r.mu.Unlock()
	budget := r.remaining[nodeType]
	for name, amount := range requirements {
		if _, ok := budget[name]; ok {
			budget[name] += amount
		}
	}
}

// Remaining returns a copy of what is left for nodeType.
func (r *ResourcesByNodeType) Remaining(nodeType string) model.Resources {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining[nodeType].DeepCopy()
}

// Snapshot returns a copy of the whole ledger.
func (r *ResourcesByNodeType) Snapshot() map[string]model.Resources {
	r.mu.Lock()
	defer r.mu.Unlock()
	rv := make(map[string]model.Resources, len(r.remaining))
	for nodeType, rs := range r.remaining {
		rv[nodeType] = rs.DeepCopy()
	}
	return rv
}

func (r *ResourcesByNodeType) fits(nodeType string, requirements model.Resources) bool {
	budget := r.remaining[nodeType]
	for name, amount := range requirements {
		if available, ok := budget[name]; ok && available < amount {
			return false
		}
	}
	return true
}
