package pool

import "sync"

// Registry tracks live instances by id, preserving creation order.
type Registry struct {
	items map[string]*Instance
	order []string
	mu    sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]*Instance)}
}

// Put registers an instance. It returns false if the id is already taken.
func (r *Registry) Put(inst *Instance) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[inst.ID]; exists {
		return false
	}
	r.items[inst.ID] = inst
	r.order = append(r.order, inst.ID)
	return true
}

// Get returns an instance by id.
func (r *Registry) Get(id string) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.items[id]
	return inst, ok
}

// Remove unregisters an instance and returns it.
func (r *Registry) Remove(id string) (*Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.items[id]
	if !ok {
		return nil, false
	}
	delete(r.items, id)
	for idx, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:idx], r.order[idx+1:]...)
			break
		}
	}
	return inst, true
}

// List returns a snapshot of registered ids in creation order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// Instances returns a snapshot of registered instances in creation order.
func (r *Registry) Instances() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Instance, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.items[id])
	}
	return result
}

// Clear atomically removes every instance and returns them in creation order.
func (r *Registry) Clear() []*Instance {
	r.mu.Lock()
	defer r.mu.Unlock()

	drained := make([]*Instance, 0, len(r.order))
	for _, id := range r.order {
		drained = append(drained, r.items[id])
	}
	r.items = make(map[string]*Instance)
	r.order = nil
	return drained
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
