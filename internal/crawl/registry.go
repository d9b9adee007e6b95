package crawl

import "sync"

// keyRegistry tracks in-flight runs so same-key crawls are rejected
// instead of racing on the checkpoint.
type keyRegistry struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newKeyRegistry() *keyRegistry {
	return &keyRegistry{active: make(map[string]struct{})}
}

// acquire reports whether the key was free and is now held.
func (r *keyRegistry) acquire(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.active[key]; busy {
		return false
	}
	r.active[key] = struct{}{}
	return true
}

func (r *keyRegistry) release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, key)
}
